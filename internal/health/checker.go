package health

import (
	"context"
	"time"
)

// Status 健康状态
type Status string

const (
	StatusHealthy   Status = "healthy"
	StatusDegraded  Status = "degraded"  // 可受理回调与查询，部分能力缺失
	StatusUnhealthy Status = "unhealthy" // 数据库不可用或结构不匹配
)

func (s Status) severity() int {
	switch s {
	case StatusUnhealthy:
		return 2
	case StatusDegraded:
		return 1
	}
	return 0
}

// Worse 取两者中更严重的状态
func Worse(a, b Status) Status {
	if b.severity() > a.severity() {
		return b
	}
	return a
}

// CheckResult 单项检查结果
type CheckResult struct {
	Status  Status                 `json:"status"`
	Message string                 `json:"message,omitempty"`
	Details map[string]interface{} `json:"details,omitempty"`
	Latency time.Duration          `json:"latency"`
}

// Checker 数据库、Redis、CSMS 等依赖的检查器
type Checker interface {
	Name() string
	Check(ctx context.Context) CheckResult
}

// since 补上耗时；message 为空时按状态填默认文案
func since(start time.Time, status Status, message string, details map[string]interface{}) CheckResult {
	if message == "" && status == StatusHealthy {
		message = "ok"
	}
	return CheckResult{Status: status, Message: message, Details: details, Latency: time.Since(start)}
}
