package app

import (
	"context"

	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/taoyao-code/wallbox-server/db"
	cfgpkg "github.com/taoyao-code/wallbox-server/internal/config"
	"github.com/taoyao-code/wallbox-server/internal/migrate"
	pgstorage "github.com/taoyao-code/wallbox-server/internal/storage/pg"
)

var migrations = migrate.Runner{FS: db.Migrations, Dir: "migrations"}

// SchemaHead 当前二进制期望的迁移版本
func SchemaHead() (int64, error) {
	return migrations.Head()
}

// ConnectDBAndMigrate 建立连接池，按需执行内嵌迁移，并在同一连接池上打开 GORM
func ConnectDBAndMigrate(ctx context.Context, cfg cfgpkg.DatabaseConfig, log *zap.Logger) (*pgxpool.Pool, *gorm.DB, error) {
	pool, err := pgstorage.NewPool(ctx, cfg, log)
	if err != nil {
		log.Error("db connect error", zap.Error(err))
		return nil, nil, err
	}
	if cfg.AutoMigrate {
		n, err := migrations.Up(ctx, pool)
		if err != nil {
			log.Error("db migrate error", zap.Error(err))
			pool.Close()
			return nil, nil, err
		}
		log.Info("db migrations applied", zap.Int("applied", n))
	}
	gdb, err := pgstorage.OpenGorm(pool, log, cfg.TraceSQL)
	if err != nil {
		pool.Close()
		return nil, nil, err
	}
	return pool, gdb, nil
}
