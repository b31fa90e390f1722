package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// NewRegistry 创建自定义 Prometheus Registry，并注册常用采集器
func NewRegistry() *prometheus.Registry {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return reg
}

// Handler 返回 Prometheus 指标 HTTP 处理器
func Handler(reg *prometheus.Registry) http.Handler {
	return promhttp.HandlerFor(reg, promhttp.HandlerOpts{Registry: reg})
}

// AppMetrics 自定义业务指标
type AppMetrics struct {
	TransitionTotal     *prometheus.CounterVec   // labels: from, to
	CSMSRequestTotal    *prometheus.CounterVec   // labels: op, result=ok|validation|error
	CSMSRequestDuration *prometheus.HistogramVec // labels: op
	WebhookEventTotal   *prometheus.CounterVec   // labels: kind, result
	NotificationTotal   *prometheus.CounterVec   // labels: result
	PaymentCaptureTotal *prometheus.CounterVec   // labels: result
	EventPublishTotal   *prometheus.CounterVec   // labels: result
}

// NewAppMetrics 注册并返回业务指标；reg 为 nil 时只创建不注册（测试用）
func NewAppMetrics(reg prometheus.Registerer) *AppMetrics {
	m := &AppMetrics{
		TransitionTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "charging_transition_total",
			Help: "Charging request state transitions.",
		}, []string{"from", "to"}),
		CSMSRequestTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "csms_request_total",
			Help: "CSMS API calls by operation and result.",
		}, []string{"op", "result"}),
		CSMSRequestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "csms_request_duration_seconds",
			Help:    "CSMS API call latency.",
			Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
		}, []string{"op"}),
		WebhookEventTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "webhook_event_total",
			Help: "Inbound CSMS webhook events.",
		}, []string{"kind", "result"}),
		NotificationTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "notification_total",
			Help: "Push notification deliveries.",
		}, []string{"result"}),
		PaymentCaptureTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "payment_capture_total",
			Help: "Payment capture attempts.",
		}, []string{"result"}),
		EventPublishTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "event_publish_total",
			Help: "Lifecycle events published.",
		}, []string{"result"}),
	}
	if reg != nil {
		reg.MustRegister(m.TransitionTotal, m.CSMSRequestTotal, m.CSMSRequestDuration,
			m.WebhookEventTotal, m.NotificationTotal, m.PaymentCaptureTotal, m.EventPublishTotal)
	}
	return m
}

// Transition 记录一次状态迁移，m 为 nil 时忽略
func (m *AppMetrics) Transition(from, to string) {
	if m == nil {
		return
	}
	m.TransitionTotal.WithLabelValues(from, to).Inc()
}

// Webhook 记录回调事件
func (m *AppMetrics) Webhook(kind, result string) {
	if m == nil {
		return
	}
	m.WebhookEventTotal.WithLabelValues(kind, result).Inc()
}

// Notification 记录推送结果
func (m *AppMetrics) Notification(result string) {
	if m == nil {
		return
	}
	m.NotificationTotal.WithLabelValues(result).Inc()
}

// Capture 记录扣款结果
func (m *AppMetrics) Capture(result string) {
	if m == nil {
		return
	}
	m.PaymentCaptureTotal.WithLabelValues(result).Inc()
}

// Publish 记录事件发布结果
func (m *AppMetrics) Publish(result string) {
	if m == nil {
		return
	}
	m.EventPublishTotal.WithLabelValues(result).Inc()
}
