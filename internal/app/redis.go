package app

import (
	"go.uber.org/zap"

	cfgpkg "github.com/taoyao-code/wallbox-server/internal/config"
	"github.com/taoyao-code/wallbox-server/internal/health"
	redisstorage "github.com/taoyao-code/wallbox-server/internal/storage/redis"
)

// NewRedisClient 未启用时返回 nil；推送队列与回调去重随之退化为进程内实现
func NewRedisClient(cfg cfgpkg.RedisConfig, notifyWorkers int, instanceID string, logger *zap.Logger) (*redisstorage.Client, error) {
	if !cfg.Enabled {
		logger.Info("redis is disabled, using in-process queue and dedup")
		return nil, nil
	}

	client, err := redisstorage.NewClient(cfg, notifyWorkers, instanceID)
	if err != nil {
		return nil, err
	}

	logger.Info("redis client initialized",
		zap.String("addr", cfg.Addr),
		zap.Int("pool_size", client.Options().PoolSize),
		zap.String("dedup_prefix", client.DedupPrefix()),
		zap.String("notify_queue", client.NotifyQueueKey()))

	return client, nil
}

// AddRedisChecker 添加Redis检查器到聚合器
func AddRedisChecker(aggregator *health.Aggregator, redisClient *redisstorage.Client) {
	if redisClient != nil {
		aggregator.AddChecker(health.NewRedisChecker(redisClient))
	}
}
