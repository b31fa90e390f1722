package app

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/taoyao-code/wallbox-server/internal/metrics"
)

// NewMetrics 初始化注册表与应用指标；关闭指标时返回 nil，各埋点可安全调用
func NewMetrics(enabled bool) (*prometheus.Registry, *metrics.AppMetrics) {
	if !enabled {
		return nil, nil
	}
	reg := metrics.NewRegistry()
	return reg, metrics.NewAppMetrics(reg)
}
