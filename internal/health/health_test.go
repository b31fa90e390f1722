package health

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubChecker struct {
	name   string
	status Status
}

func (m *stubChecker) Name() string { return m.name }

func (m *stubChecker) Check(ctx context.Context) CheckResult {
	return CheckResult{Status: m.status, Message: "stub", Latency: time.Millisecond}
}

func TestAggregatorOverall(t *testing.T) {
	cases := []struct {
		name  string
		in    []Status
		want  Status
		ready bool
	}{
		{"全部健康", []Status{StatusHealthy, StatusHealthy}, StatusHealthy, true},
		{"部分降级", []Status{StatusHealthy, StatusDegraded}, StatusDegraded, true},
		{"部分不健康", []Status{StatusDegraded, StatusUnhealthy}, StatusUnhealthy, false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			agg := NewAggregator()
			for i, s := range tc.in {
				agg.AddChecker(&stubChecker{name: string(rune('a' + i)), status: s})
			}
			assert.Equal(t, tc.want, agg.OverallStatus(context.Background()))
			assert.Equal(t, tc.ready, agg.Ready(context.Background()))
		})
	}
}

type fakeRedis struct {
	err      error
	stats    redis.PoolStats
	depth    int64
	depthErr error
}

func (f *fakeRedis) HealthCheck(context.Context) error { return f.err }
func (f *fakeRedis) Stats() *redis.PoolStats          { return &f.stats }
func (f *fakeRedis) QueueDepth(context.Context) (int64, error) {
	return f.depth, f.depthErr
}

func TestRedisChecker(t *testing.T) {
	ok := NewRedisChecker(&fakeRedis{stats: redis.PoolStats{TotalConns: 10, IdleConns: 8}})
	assert.Equal(t, StatusHealthy, ok.Check(context.Background()).Status)

	busy := NewRedisChecker(&fakeRedis{stats: redis.PoolStats{TotalConns: 10, IdleConns: 0}})
	assert.Equal(t, StatusDegraded, busy.Check(context.Background()).Status)

	down := NewRedisChecker(&fakeRedis{err: errors.New("refused")})
	res := down.Check(context.Background())
	assert.Equal(t, StatusDegraded, res.Status)
	assert.Contains(t, res.Message, "refused")

	backlog := NewRedisChecker(&fakeRedis{stats: redis.PoolStats{TotalConns: 10, IdleConns: 8}, depth: 5000})
	res = backlog.Check(context.Background())
	assert.Equal(t, StatusDegraded, res.Status)
	assert.Equal(t, int64(5000), res.Details["notify_queue_depth"])

	// 队列长度读取失败只记录，不降级
	lenErr := NewRedisChecker(&fakeRedis{stats: redis.PoolStats{TotalConns: 10, IdleConns: 8}, depthErr: errors.New("WRONGTYPE")})
	res = lenErr.Check(context.Background())
	assert.Equal(t, StatusHealthy, res.Status)
	assert.Equal(t, "WRONGTYPE", res.Details["notify_queue_error"])
}

func TestWorse(t *testing.T) {
	assert.Equal(t, StatusDegraded, Worse(StatusHealthy, StatusDegraded))
	assert.Equal(t, StatusUnhealthy, Worse(StatusUnhealthy, StatusDegraded))
	assert.Equal(t, StatusHealthy, Worse(StatusHealthy, StatusHealthy))
}

func TestDatabaseStates(t *testing.T) {
	cases := []struct {
		name          string
		acquired, max int32
		applied, head int64
		wantPool      Status
		wantSchema    Status
	}{
		{"空闲且版本一致", 1, 10, 3, 3, StatusHealthy, StatusHealthy},
		{"连接池接近上限", 10, 11, 3, 3, StatusDegraded, StatusHealthy},
		{"连接池耗尽", 10, 10, 3, 3, StatusUnhealthy, StatusHealthy},
		{"库表落后", 0, 10, 1, 3, StatusHealthy, StatusUnhealthy},
		{"库表领先", 0, 10, 4, 3, StatusHealthy, StatusDegraded},
		{"未知迁移头", 0, 0, 7, 0, StatusHealthy, StatusHealthy},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			pool, _ := poolState(tc.acquired, tc.max)
			assert.Equal(t, tc.wantPool, pool)
			schema, msg := schemaState(tc.applied, tc.head)
			assert.Equal(t, tc.wantSchema, schema)
			if schema != StatusHealthy {
				assert.NotEmpty(t, msg)
			}
		})
	}
}

func TestCSMSChecker(t *testing.T) {
	assert.Equal(t, StatusDegraded, NewCSMSChecker(func() bool { return false }).Check(context.Background()).Status)
	assert.Equal(t, StatusHealthy, NewCSMSChecker(func() bool { return true }).Check(context.Background()).Status)
}

func TestReadiness(t *testing.T) {
	r := New()
	assert.False(t, r.Ready())
	r.SetDBReady(true)
	assert.False(t, r.Ready())
	r.SetHTTPReady(true)
	assert.True(t, r.Ready())
}

func TestHTTPRoutes(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	RegisterHTTPRoutes(r, NewAggregator(&stubChecker{"database", StatusUnhealthy}, &stubChecker{"csms", StatusDegraded}))

	rr := httptest.NewRecorder()
	r.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rr.Code)

	var report HealthReport
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &report))
	assert.Equal(t, StatusUnhealthy, report.Status)
	assert.Len(t, report.Checks, 2)

	rr = httptest.NewRecorder()
	r.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/health/live", nil))
	assert.Equal(t, http.StatusOK, rr.Code)

	rr = httptest.NewRecorder()
	r.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/health/ready", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rr.Code)
}
