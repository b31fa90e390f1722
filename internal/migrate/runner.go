package migrate

import (
	"context"
	"errors"
	"io/fs"
	"path"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

// Runner 迁移执行器，脚本来源为任意 fs.FS（通常是内嵌的 db.Migrations）
type Runner struct {
	FS  fs.FS
	Dir string
}

// EnsureTable 保证 schema_migrations 表存在
func EnsureTable(ctx context.Context, db *pgxpool.Pool) error {
	_, err := db.Exec(ctx, `CREATE TABLE IF NOT EXISTS schema_migrations (
        version BIGINT PRIMARY KEY,
        applied_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
    )`)
	return err
}

// AppliedVersions 已应用版本
func AppliedVersions(ctx context.Context, db *pgxpool.Pool) (map[int64]bool, error) {
	rows, err := db.Query(ctx, `SELECT version FROM schema_migrations`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	res := make(map[int64]bool)
	for rows.Next() {
		var v int64
		if err := rows.Scan(&v); err != nil {
			return nil, err
		}
		res[v] = true
	}
	return res, rows.Err()
}

// Migration 单个向上迁移脚本
type Migration struct {
	Version int64
	Path    string
}

// Discover 扫描 *_up.sql 并按版本排序；版本号重复视为错误
func (r Runner) Discover() ([]Migration, error) {
	if r.FS == nil {
		return nil, errors.New("migrations fs is nil")
	}
	root := r.Dir
	if root == "" {
		root = "."
	}
	var files []Migration
	seen := make(map[int64]string)
	err := fs.WalkDir(r.FS, root, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		name := path.Base(p)
		if !strings.HasSuffix(name, "_up.sql") {
			return nil
		}
		ver, err := strconv.ParseInt(strings.SplitN(name, "_", 2)[0], 10, 64)
		if err != nil {
			return nil
		}
		if prev, dup := seen[ver]; dup {
			return errors.New("duplicate migration version: " + prev + " and " + p)
		}
		seen[ver] = p
		files = append(files, Migration{Version: ver, Path: p})
		return nil
	})
	if err != nil {
		return nil, err
	}
	sort.Slice(files, func(i, j int) bool { return files[i].Version < files[j].Version })
	return files, nil
}

// Head 内嵌迁移的最高版本，没有迁移时为 0
func (r Runner) Head() (int64, error) {
	ms, err := r.Discover()
	if err != nil {
		return 0, err
	}
	if len(ms) == 0 {
		return 0, nil
	}
	return ms[len(ms)-1].Version, nil
}

// Up 执行未应用的向上迁移，每个脚本一个事务
func (r Runner) Up(ctx context.Context, db *pgxpool.Pool) (int, error) {
	ups, err := r.Discover()
	if err != nil {
		return 0, err
	}
	if err := EnsureTable(ctx, db); err != nil {
		return 0, err
	}
	applied, err := AppliedVersions(ctx, db)
	if err != nil {
		return 0, err
	}
	count := 0
	for _, m := range ups {
		if applied[m.Version] {
			continue
		}
		content, err := fs.ReadFile(r.FS, m.Path)
		if err != nil {
			return count, err
		}
		tx, err := db.Begin(ctx)
		if err != nil {
			return count, err
		}
		_, execErr := tx.Exec(ctx, string(content))
		if execErr == nil {
			_, execErr = tx.Exec(ctx, `INSERT INTO schema_migrations(version, applied_at) VALUES($1,$2)`, m.Version, time.Now())
		}
		if execErr != nil {
			_ = tx.Rollback(ctx)
			return count, execErr
		}
		if err := tx.Commit(ctx); err != nil {
			return count, err
		}
		count++
	}
	return count, nil
}
