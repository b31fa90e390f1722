package httpserver

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"

	cfgpkg "github.com/taoyao-code/wallbox-server/internal/config"
	appmetrics "github.com/taoyao-code/wallbox-server/internal/metrics"
)

func newTestServer(ready bool) *Server {
	gin.SetMode(gin.TestMode)
	cfg := cfgpkg.HTTPConfig{Addr: ":0", ReadTimeout: time.Second, WriteTimeout: time.Second}
	reg := appmetrics.NewRegistry()
	return New(cfg, "/metrics", appmetrics.Handler(reg), func() bool { return ready })
}

func serve(s *Server, method, path string) *httptest.ResponseRecorder {
	rr := httptest.NewRecorder()
	s.srv.Handler.ServeHTTP(rr, httptest.NewRequest(method, path, nil))
	return rr
}

func TestHealthzReadyzMetrics(t *testing.T) {
	srv := newTestServer(true)

	assert.Equal(t, http.StatusOK, serve(srv, http.MethodGet, "/healthz").Code)
	assert.Equal(t, http.StatusOK, serve(srv, http.MethodGet, "/readyz").Code)
	assert.Equal(t, http.StatusOK, serve(srv, http.MethodGet, "/metrics").Code)
}

func TestReadyzNotReady(t *testing.T) {
	srv := newTestServer(false)
	assert.Equal(t, http.StatusServiceUnavailable, serve(srv, http.MethodGet, "/readyz").Code)
}

func TestRegisterRoutes(t *testing.T) {
	srv := newTestServer(true)
	srv.Register(func(r *gin.Engine) {
		r.GET("/api/v1/ping", func(c *gin.Context) { c.String(http.StatusOK, "pong") })
	})

	rr := serve(srv, http.MethodGet, "/api/v1/ping")
	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, "pong", rr.Body.String())
}
