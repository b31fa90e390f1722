package health

import (
	"context"
	"time"
)

// CSMSChecker 只检查 CSMS 凭据是否已配置，不主动调用远端
// 缺少凭据时服务仍可处理回调与查询，因此为 Degraded
type CSMSChecker struct {
	configured func() bool
}

func NewCSMSChecker(configured func() bool) *CSMSChecker {
	return &CSMSChecker{configured: configured}
}

func (c *CSMSChecker) Name() string { return "csms" }

func (c *CSMSChecker) Check(_ context.Context) CheckResult {
	start := time.Now()
	if c.configured == nil || !c.configured() {
		return CheckResult{Status: StatusDegraded, Message: "csms baseURL/token not configured", Latency: time.Since(start)}
	}
	return CheckResult{Status: StatusHealthy, Message: "ok", Latency: time.Since(start)}
}
