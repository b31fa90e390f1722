package health

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/taoyao-code/wallbox-server/internal/storage/models"
)

// DatabaseChecker 检查连接池、迁移版本与进行中的充电请求
type DatabaseChecker struct {
	pool       *pgxpool.Pool
	schemaHead int64
}

// NewDatabaseChecker schemaHead 为内嵌迁移的最高版本
func NewDatabaseChecker(pool *pgxpool.Pool, schemaHead int64) *DatabaseChecker {
	return &DatabaseChecker{pool: pool, schemaHead: schemaHead}
}

func (c *DatabaseChecker) Name() string {
	return "database"
}

func (c *DatabaseChecker) Check(ctx context.Context) CheckResult {
	start := time.Now()
	if err := c.pool.Ping(ctx); err != nil {
		return since(start, StatusUnhealthy, fmt.Sprintf("ping failed: %v", err), nil)
	}

	stats := c.pool.Stat()
	status, message := poolState(stats.AcquiredConns(), stats.MaxConns())
	details := map[string]interface{}{
		"acquired_conns": stats.AcquiredConns(),
		"max_conns":      stats.MaxConns(),
		"schema_head":    c.schemaHead,
	}

	var applied int64
	if err := c.pool.QueryRow(ctx, `SELECT COALESCE(MAX(version), 0) FROM schema_migrations`).Scan(&applied); err != nil {
		return since(start, StatusUnhealthy, fmt.Sprintf("read schema version: %v", err), details)
	}
	details["schema_version"] = applied
	if st, msg := schemaState(applied, c.schemaHead); st != StatusHealthy {
		status, message = Worse(status, st), msg
	}

	// 仅作观测，查询失败不影响状态
	var inProgress int64
	if err := c.pool.QueryRow(ctx, `SELECT COUNT(*) FROM charging_requests WHERE status = $1`, models.RequestInProgress).Scan(&inProgress); err == nil {
		details["in_progress_requests"] = inProgress
	}
	return since(start, status, message, details)
}

// poolState 连接池占用超过九成降级，占满不健康
func poolState(acquired, limit int32) (Status, string) {
	if limit <= 0 {
		return StatusHealthy, ""
	}
	switch u := float64(acquired) / float64(limit); {
	case u >= 1:
		return StatusUnhealthy, "connection pool exhausted"
	case u > 0.9:
		return StatusDegraded, "connection pool near limit"
	}
	return StatusHealthy, ""
}

// schemaState 库表落后于代码时无法正确读写；领先时多为新版本滚动发布中
func schemaState(applied, head int64) (Status, string) {
	switch {
	case head <= 0 || applied == head:
		return StatusHealthy, ""
	case applied < head:
		return StatusUnhealthy, fmt.Sprintf("schema at %d, expected %d", applied, head)
	default:
		return StatusDegraded, fmt.Sprintf("schema at %d is ahead of %d", applied, head)
	}
}
