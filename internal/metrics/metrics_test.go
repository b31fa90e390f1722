package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestAppMetricsRegistered(t *testing.T) {
	reg := NewRegistry()
	m := NewAppMetrics(reg)

	m.Transition("draft", "requested")
	m.Transition("draft", "requested")
	m.Capture("ok")

	assert.Equal(t, 2.0, testutil.ToFloat64(m.TransitionTotal.WithLabelValues("draft", "requested")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.PaymentCaptureTotal.WithLabelValues("ok")))

	n, err := testutil.GatherAndCount(reg, "charging_transition_total")
	assert.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestNilMetricsIsSafe(t *testing.T) {
	var m *AppMetrics
	assert.NotPanics(t, func() {
		m.Transition("a", "b")
		m.Webhook("sessions", "ok")
		m.Notification("sent")
		m.Capture("ok")
		m.Publish("ok")
	})
}
