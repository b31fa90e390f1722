package app

import (
	"context"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/taoyao-code/wallbox-server/internal/storage/models"
)

// RequestSweeper 巡检依赖的充电请求能力
type RequestSweeper interface {
	StuckRequests(ctx context.Context, olderThan time.Duration, limit int) ([]models.ChargingRequest, error)
	RetryCaptures(ctx context.Context, maxAttempts, limit int) (int, error)
}

// RequestMonitor 充电请求巡检器
// 定期告警长时间未结束的充电，并重试失败的扣款
type RequestMonitor struct {
	svc    RequestSweeper
	logger *zap.Logger

	checkInterval      time.Duration // 检查间隔
	stuckAfter         time.Duration // in_progress 超过该时长告警
	maxCaptureAttempts int
	batch              int

	// 统计
	statsChecked  atomic.Int64
	statsStuck    atomic.Int64
	statsCaptured atomic.Int64
}

// NewRequestMonitor 零值参数使用默认值
func NewRequestMonitor(svc RequestSweeper, interval, stuckAfter time.Duration, logger *zap.Logger) *RequestMonitor {
	if interval <= 0 {
		interval = time.Minute
	}
	if stuckAfter <= 0 {
		stuckAfter = 12 * time.Hour
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &RequestMonitor{
		svc:                svc,
		logger:             logger.Named("request_monitor"),
		checkInterval:      interval,
		stuckAfter:         stuckAfter,
		maxCaptureAttempts: 5,
		batch:              100,
	}
}

// Start 阻塞运行直到 ctx 取消
func (m *RequestMonitor) Start(ctx context.Context) {
	m.logger.Info("request monitor started",
		zap.Duration("check_interval", m.checkInterval),
		zap.Duration("stuck_after", m.stuckAfter))

	ticker := time.NewTicker(m.checkInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			m.logger.Info("request monitor stopped",
				zap.Int64("checked", m.statsChecked.Load()),
				zap.Int64("stuck_alerted", m.statsStuck.Load()),
				zap.Int64("captured", m.statsCaptured.Load()))
			return
		case <-ticker.C:
			m.check(ctx)
		}
	}
}

func (m *RequestMonitor) check(ctx context.Context) {
	m.statsChecked.Add(1)
	m.checkStuckRequests(ctx)
	m.retryCaptures(ctx)
}

// checkStuckRequests 充电结束回调丢失时请求会停在 in_progress，只告警不改状态
func (m *RequestMonitor) checkStuckRequests(ctx context.Context) {
	list, err := m.svc.StuckRequests(ctx, m.stuckAfter, m.batch)
	if err != nil {
		m.logger.Error("query stuck requests failed", zap.Error(err))
		return
	}
	for _, r := range list {
		m.statsStuck.Add(1)
		fields := []zap.Field{
			zap.Int64("request_id", r.ID),
			zap.String("reference", r.Reference),
			zap.Int64("station_id", r.StationID),
		}
		if r.StartedAt != nil {
			fields = append(fields, zap.Time("started_at", *r.StartedAt), zap.Duration("age", time.Since(*r.StartedAt)))
		}
		fields = append(fields, zap.String("action", "检查 CSMS 会话或人工结束"))
		m.logger.Warn("charging request stuck in progress", fields...)
	}
}

func (m *RequestMonitor) retryCaptures(ctx context.Context) {
	n, err := m.svc.RetryCaptures(ctx, m.maxCaptureAttempts, m.batch)
	if err != nil {
		m.logger.Error("retry captures failed", zap.Error(err))
	}
	if n > 0 {
		m.statsCaptured.Add(int64(n))
		m.logger.Info("pending captures settled", zap.Int("count", n))
	}
}

// Stats 获取统计信息
func (m *RequestMonitor) Stats() map[string]interface{} {
	return map[string]interface{}{
		"checked":         m.statsChecked.Load(),
		"stuck_alerted":   m.statsStuck.Load(),
		"captured":        m.statsCaptured.Load(),
		"check_interval":  m.checkInterval.Seconds(),
		"stuck_after_sec": m.stuckAfter.Seconds(),
	}
}
