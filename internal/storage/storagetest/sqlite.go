// Package storagetest 提供基于 SQLite 内存库的测试仓储
package storagetest

import (
	"fmt"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/taoyao-code/wallbox-server/internal/storage/gormrepo"
	"github.com/taoyao-code/wallbox-server/internal/storage/models"
)

var seq atomic.Int64

// NewDB 每个测试独立的内存库；单连接保证事务内外看到同一份数据
func NewDB(t testing.TB) *gorm.DB {
	t.Helper()
	dsn := fmt.Sprintf("file:wallbox_test_%d?mode=memory&cache=shared&_foreign_keys=0", seq.Add(1))
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	require.NoError(t, err)

	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })

	require.NoError(t, db.AutoMigrate(models.All()...))
	return db
}

// NewRepo 返回内存库上的 gorm 仓储
func NewRepo(t testing.TB) *gormrepo.Repository {
	return gormrepo.New(NewDB(t))
}
