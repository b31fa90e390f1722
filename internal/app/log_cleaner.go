package app

import (
	"context"
	"time"

	"go.uber.org/zap"
)

// LogPruner 报文日志清理
type LogPruner interface {
	DeleteUnnecessaryLogs(ctx context.Context, before time.Time) (int64, error)
}

// LogCleaner 定期删除标记为 not_necessary 且超过保留期的充电桩报文
type LogCleaner struct {
	repo          LogPruner
	logger        *zap.Logger
	checkInterval time.Duration
	retention     time.Duration
	now           func() time.Time

	// 统计
	statsCleaned int64
}

func NewLogCleaner(repo LogPruner, retention time.Duration, logger *zap.Logger) *LogCleaner {
	if retention <= 0 {
		retention = 7 * 24 * time.Hour
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LogCleaner{
		repo:          repo,
		logger:        logger.Named("log_cleaner"),
		checkInterval: time.Hour, // 每小时清理一次
		retention:     retention,
		now:           time.Now,
	}
}

// Start 启动清理器
func (c *LogCleaner) Start(ctx context.Context) {
	c.logger.Info("wallbox log cleaner started",
		zap.Duration("check_interval", c.checkInterval),
		zap.Duration("retention", c.retention))

	ticker := time.NewTicker(c.checkInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			c.logger.Info("wallbox log cleaner stopped", zap.Int64("total_cleaned", c.statsCleaned))
			return
		case <-ticker.C:
			c.clean(ctx)
		}
	}
}

func (c *LogCleaner) clean(ctx context.Context) {
	cutoff := c.now().Add(-c.retention)
	n, err := c.repo.DeleteUnnecessaryLogs(ctx, cutoff)
	if err != nil {
		c.logger.Error("failed to clean wallbox logs", zap.Error(err), zap.Time("cutoff", cutoff))
		return
	}
	if n > 0 {
		c.statsCleaned += n
		c.logger.Info("cleaned wallbox logs",
			zap.Int64("cleaned", n),
			zap.Int64("total_cleaned", c.statsCleaned))
	}
}

// Stats 获取统计信息
func (c *LogCleaner) Stats() map[string]interface{} {
	return map[string]interface{}{
		"total_cleaned": c.statsCleaned,
	}
}
