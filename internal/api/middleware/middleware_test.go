package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

const secret = "test-secret"

func token(t *testing.T, claims jwt.MapClaims, key string) string {
	t.Helper()
	s, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(key))
	require.NoError(t, err)
	return s
}

func serve(h gin.HandlerFunc, headers map[string]string) *httptest.ResponseRecorder {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(RequestTracing())
	r.GET("/x", h, func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"user_id": UserID(c)})
	})
	req := httptest.NewRequest(http.MethodGet, "/x", nil)
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestJWTAuth(t *testing.T) {
	cfg := AuthConfig{Enabled: true, JWTSecret: secret}
	mw := JWTAuth(cfg, zap.NewNop())
	exp := time.Now().Add(time.Hour).Unix()

	tests := []struct {
		name   string
		header string
		status int
		body   string
	}{
		{"valid numeric id", "Bearer " + token(t, jwt.MapClaims{"user_id": 7, "type": "access", "exp": exp}, secret), 200, `"user_id":7`},
		{"valid string id", "Bearer " + token(t, jwt.MapClaims{"user_id": "8", "type": "access", "exp": exp}, secret), 200, `"user_id":8`},
		{"missing header", "", 401, "TOKEN_INVALID"},
		{"refresh token", "Bearer " + token(t, jwt.MapClaims{"user_id": 7, "type": "refresh", "exp": exp}, secret), 401, "access token required"},
		{"wrong key", "Bearer " + token(t, jwt.MapClaims{"user_id": 7, "type": "access", "exp": exp}, "other"), 401, "TOKEN_INVALID"},
		{"expired", "Bearer " + token(t, jwt.MapClaims{"user_id": 7, "type": "access", "exp": time.Now().Add(-time.Minute).Unix()}, secret), 401, "TOKEN_EXPIRED"},
		{"no exp", "Bearer " + token(t, jwt.MapClaims{"user_id": 7, "type": "access"}, secret), 401, "TOKEN_INVALID"},
		{"no user", "Bearer " + token(t, jwt.MapClaims{"type": "access", "exp": exp}, secret), 401, "user id not found"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			h := map[string]string{}
			if tc.header != "" {
				h["Authorization"] = tc.header
			}
			w := serve(mw, h)
			assert.Equal(t, tc.status, w.Code)
			assert.Contains(t, w.Body.String(), tc.body)
		})
	}
}

func TestJWTAuthDisabledAcceptsUserHeader(t *testing.T) {
	w := serve(JWTAuth(AuthConfig{}, zap.NewNop()), map[string]string{"X-User-ID": "42"})
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"user_id":42`)

	// 启用后忽略该头
	w = serve(JWTAuth(AuthConfig{Enabled: true, JWTSecret: secret}, zap.NewNop()), map[string]string{"X-User-ID": "42"})
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestWebhookAuth(t *testing.T) {
	mw := WebhookAuth("tok", zap.NewNop())
	assert.Equal(t, http.StatusOK, serve(mw, map[string]string{"Authorization": "Bearer tok"}).Code)
	assert.Equal(t, http.StatusUnauthorized, serve(mw, map[string]string{"Authorization": "Bearer tok2"}).Code)
	assert.Equal(t, http.StatusUnauthorized, serve(mw, map[string]string{"Authorization": "tok"}).Code)

	// 未配置令牌时一律拒绝
	empty := WebhookAuth("", zap.NewNop())
	assert.Equal(t, http.StatusUnauthorized, serve(empty, map[string]string{"Authorization": "Bearer "}).Code)
}

func TestAdminKeyAuth(t *testing.T) {
	mw := AdminKeyAuth([]string{"k1", "k2"}, zap.NewNop())
	assert.Equal(t, http.StatusOK, serve(mw, map[string]string{"X-API-Key": "k2"}).Code)
	assert.Equal(t, http.StatusOK, serve(mw, map[string]string{"Authorization": "Bearer k1"}).Code)
	assert.Equal(t, http.StatusForbidden, serve(mw, map[string]string{"X-API-Key": "k3"}).Code)
	assert.Equal(t, http.StatusUnauthorized, serve(mw, nil).Code)
	assert.Equal(t, "sk_l****cdef", maskAPIKey("sk_live_abcdef"))
}

func TestRateLimit(t *testing.T) {
	mw := RateLimit(RateLimitConfig{Enabled: true, RPS: 1, Burst: 2})
	codes := make([]int, 0, 3)
	for i := 0; i < 3; i++ {
		codes = append(codes, serve(mw, nil).Code)
	}
	// serve 每次新建路由，限流状态保存在中间件闭包内
	assert.Equal(t, []int{200, 200, 429}, codes)

	off := RateLimit(RateLimitConfig{})
	for i := 0; i < 5; i++ {
		assert.Equal(t, http.StatusOK, serve(off, nil).Code)
	}
}

func TestRequestTracingKeepsIncomingID(t *testing.T) {
	w := serve(func(c *gin.Context) { c.Next() }, map[string]string{"X-Request-ID": "abc"})
	assert.Equal(t, "abc", w.Header().Get("X-Request-ID"))
	w = serve(func(c *gin.Context) { c.Next() }, nil)
	assert.Len(t, w.Header().Get("X-Request-ID"), 36)
}
