package health

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// notifyBacklogLimit 推送积压超过该值视为降级
const notifyBacklogLimit = 1000

// RedisPinger Redis 客户端需要暴露的最小能力
type RedisPinger interface {
	HealthCheck(ctx context.Context) error
	Stats() *redis.PoolStats
	QueueDepth(ctx context.Context) (int64, error)
}

// RedisChecker Redis 健康检查器。Redis 为可选依赖，故障只判为 Degraded
type RedisChecker struct {
	client RedisPinger
}

// NewRedisChecker 创建Redis健康检查器
func NewRedisChecker(client RedisPinger) *RedisChecker {
	return &RedisChecker{client: client}
}

func (c *RedisChecker) Name() string {
	return "redis"
}

func (c *RedisChecker) Check(ctx context.Context) CheckResult {
	start := time.Now()

	if err := c.client.HealthCheck(ctx); err != nil {
		return since(start, StatusDegraded, fmt.Sprintf("ping failed: %v", err), nil)
	}

	stats := c.client.Stats()
	utilization := 0.0
	if stats.TotalConns > 0 {
		utilization = float64(stats.TotalConns-stats.IdleConns) / float64(stats.TotalConns)
	}
	details := map[string]interface{}{
		"total_conns": stats.TotalConns,
		"idle_conns":  stats.IdleConns,
		"timeouts":    stats.Timeouts,
		"utilization": fmt.Sprintf("%.1f%%", utilization*100),
	}

	status, message := StatusHealthy, ""
	if utilization > 0.9 {
		status, message = StatusDegraded, "connection pool near limit"
	}
	depth, err := c.client.QueueDepth(ctx)
	switch {
	case err != nil:
		details["notify_queue_error"] = err.Error()
	case depth > notifyBacklogLimit:
		details["notify_queue_depth"] = depth
		status, message = StatusDegraded, fmt.Sprintf("notification backlog %d", depth)
	default:
		details["notify_queue_depth"] = depth
	}
	return since(start, status, message, details)
}
