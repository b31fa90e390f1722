package app

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	cfgpkg "github.com/taoyao-code/wallbox-server/internal/config"
	"github.com/taoyao-code/wallbox-server/internal/storage/models"
)

type fakeSweeper struct {
	stuck      []models.ChargingRequest
	stuckErr   error
	captured   int
	captureErr error
	olderThan  time.Duration
	attempts   int
}

func (f *fakeSweeper) StuckRequests(_ context.Context, olderThan time.Duration, _ int) ([]models.ChargingRequest, error) {
	f.olderThan = olderThan
	return f.stuck, f.stuckErr
}

func (f *fakeSweeper) RetryCaptures(_ context.Context, maxAttempts, _ int) (int, error) {
	f.attempts = maxAttempts
	return f.captured, f.captureErr
}

func TestRequestMonitorDefaults(t *testing.T) {
	m := NewRequestMonitor(&fakeSweeper{}, 0, 0, nil)
	assert.Equal(t, time.Minute, m.checkInterval)
	assert.Equal(t, 12*time.Hour, m.stuckAfter)
	assert.Equal(t, 60.0, m.Stats()["check_interval"])
}

func TestRequestMonitorCheck(t *testing.T) {
	started := time.Now().Add(-13 * time.Hour)
	f := &fakeSweeper{
		stuck:    []models.ChargingRequest{{ID: 1, StartedAt: &started}, {ID: 2}},
		captured: 3,
	}
	m := NewRequestMonitor(f, time.Minute, 12*time.Hour, zap.NewNop())
	m.check(context.Background())

	assert.Equal(t, 12*time.Hour, f.olderThan)
	assert.Equal(t, 5, f.attempts)
	stats := m.Stats()
	assert.Equal(t, int64(1), stats["checked"])
	assert.Equal(t, int64(2), stats["stuck_alerted"])
	assert.Equal(t, int64(3), stats["captured"])
}

func TestRequestMonitorErrorsDoNotStopCheck(t *testing.T) {
	f := &fakeSweeper{stuckErr: errors.New("db down"), captureErr: errors.New("db down")}
	m := NewRequestMonitor(f, time.Minute, time.Hour, zap.NewNop())
	m.check(context.Background())
	assert.Equal(t, 5, f.attempts)
	assert.Equal(t, int64(0), m.Stats()["stuck_alerted"])
}

func TestRequestMonitorStopsOnCancel(t *testing.T) {
	m := NewRequestMonitor(&fakeSweeper{}, 10*time.Millisecond, time.Hour, zap.NewNop())
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		m.Start(ctx)
		close(done)
	}()
	require.Eventually(t, func() bool { return m.statsChecked.Load() > 0 }, time.Second, 5*time.Millisecond)
	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("monitor did not stop")
	}
}

type fakePruner struct {
	before time.Time
	n      int64
	err    error
}

func (f *fakePruner) DeleteUnnecessaryLogs(_ context.Context, before time.Time) (int64, error) {
	f.before = before
	return f.n, f.err
}

func TestLogCleaner(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	p := &fakePruner{n: 4}
	c := NewLogCleaner(p, 48*time.Hour, zap.NewNop())
	c.now = func() time.Time { return now }

	c.clean(context.Background())
	assert.Equal(t, now.Add(-48*time.Hour), p.before)
	c.clean(context.Background())
	assert.Equal(t, int64(8), c.Stats()["total_cleaned"])

	p.err = errors.New("boom")
	c.clean(context.Background())
	assert.Equal(t, int64(8), c.Stats()["total_cleaned"])

	assert.Equal(t, 7*24*time.Hour, NewLogCleaner(p, 0, nil).retention)
}

func TestGenerateInstanceID(t *testing.T) {
	t.Setenv("INSTANCE_ID", "")
	id := GenerateInstanceID("wb")
	assert.True(t, strings.HasPrefix(id, "wb-"), id)

	t.Setenv("INSTANCE_ID", "fixed")
	assert.Equal(t, "fixed", GenerateInstanceID("wb"))
}

func TestSchemaHeadMatchesEmbeddedMigrations(t *testing.T) {
	head, err := SchemaHead()
	require.NoError(t, err)
	assert.GreaterOrEqual(t, head, int64(1))
}

func TestNewRedisClientDisabled(t *testing.T) {
	c, err := NewRedisClient(cfgpkg.RedisConfig{Enabled: false}, 2, "wb-1", zap.NewNop())
	require.NoError(t, err)
	assert.Nil(t, c)
}

func TestNewMetricsDisabled(t *testing.T) {
	reg, m := NewMetrics(false)
	assert.Nil(t, reg)
	assert.Nil(t, m)
	reg, m = NewMetrics(true)
	assert.NotNil(t, reg)
	assert.NotNil(t, m)
}
