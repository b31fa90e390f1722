// Package middleware 提供HTTP中间件
package middleware

import (
	"crypto/subtle"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"go.uber.org/zap"

	"github.com/taoyao-code/wallbox-server/internal/apperr"
)

const (
	ctxUserID = "user_id"
	// 回调与管理接口统一记录调用方
	ctxCaller = "caller"
)

// AuthConfig 用户 API 认证配置
type AuthConfig struct {
	Enabled   bool
	JWTSecret string
	AdminKeys []string
}

// abort 与业务接口相同的错误信封
func abort(c *gin.Context, err *apperr.Error) {
	c.AbortWithStatusJSON(apperr.HTTPStatus(err), gin.H{
		"code":       err.Code,
		"message":    err.Message,
		"request_id": c.GetString("request_id"),
	})
}

func bearer(c *gin.Context) string {
	auth := c.GetHeader("Authorization")
	parts := strings.SplitN(auth, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return ""
	}
	return strings.TrimSpace(parts[1])
}

// JWTAuth 校验 HS256 访问令牌，user_id 写入上下文。
// 令牌由外部身份服务签发，这里只验签与校验 type=access。
// 未启用时允许 X-User-ID 头（仅开发环境）。
func JWTAuth(cfg AuthConfig, logger *zap.Logger) gin.HandlerFunc {
	secret := []byte(cfg.JWTSecret)
	parser := jwt.NewParser(jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}), jwt.WithExpirationRequired())
	return func(c *gin.Context) {
		if !cfg.Enabled {
			if id, err := strconv.ParseInt(c.GetHeader("X-User-ID"), 10, 64); err == nil && id > 0 {
				c.Set(ctxUserID, id)
				c.Next()
				return
			}
		}
		raw := bearer(c)
		if raw == "" {
			abort(c, apperr.Unauthorized(apperr.CodeTokenInvalid, "missing bearer token"))
			return
		}
		claims := jwt.MapClaims{}
		_, err := parser.ParseWithClaims(raw, claims, func(*jwt.Token) (interface{}, error) { return secret, nil })
		if err != nil {
			code := apperr.CodeTokenInvalid
			if errors.Is(err, jwt.ErrTokenExpired) {
				code = apperr.CodeTokenExpired
			}
			logger.Debug("jwt rejected", zap.String("path", c.Request.URL.Path), zap.Error(err))
			abort(c, apperr.Unauthorized(code, "invalid or expired token"))
			return
		}
		if t, _ := claims["type"].(string); t != "access" {
			abort(c, apperr.Unauthorized(apperr.CodeTokenInvalid, "access token required"))
			return
		}
		userID, err := extractUserID(claims)
		if err != nil {
			abort(c, apperr.Unauthorized(apperr.CodeTokenInvalid, "user id not found in token"))
			return
		}
		c.Set(ctxUserID, userID)
		c.Next()
	}
}

func extractUserID(claims jwt.MapClaims) (int64, error) {
	switch v := claims["user_id"].(type) {
	case float64:
		return int64(v), nil
	case string:
		return strconv.ParseInt(v, 10, 64)
	default:
		return 0, fmt.Errorf("user_id not present")
	}
}

// UserID 当前用户；未认证返回 0
func UserID(c *gin.Context) int64 {
	return c.GetInt64(ctxUserID)
}

// AdminKeyAuth 管理接口 API Key 认证
//
// 使用方式:
//  1. Header: X-API-Key: sk_live_xxxx
//  2. Header: Authorization: Bearer sk_live_xxxx
func AdminKeyAuth(keys []string, logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		apiKey := c.GetHeader("X-API-Key")
		if apiKey == "" {
			apiKey = bearer(c)
		}
		if apiKey == "" {
			logger.Warn("admin auth: missing api key",
				zap.String("path", c.Request.URL.Path),
				zap.String("remote_addr", c.ClientIP()),
			)
			abort(c, apperr.Unauthorized(apperr.CodeTokenInvalid, "X-API-Key or Authorization: Bearer <key> is required"))
			return
		}
		if !matchAny(keys, apiKey) {
			logger.Warn("admin auth: invalid api key",
				zap.String("path", c.Request.URL.Path),
				zap.String("remote_addr", c.ClientIP()),
				zap.String("api_key_prefix", maskAPIKey(apiKey)),
			)
			abort(c, apperr.AccessDenied("invalid api key"))
			return
		}
		logger.Info("admin auth: authenticated",
			zap.String("path", c.Request.URL.Path),
			zap.String("method", c.Request.Method),
			zap.String("api_key_prefix", maskAPIKey(apiKey)),
		)
		c.Set(ctxCaller, "admin:"+maskAPIKey(apiKey))
		c.Next()
	}
}

// WebhookAuth CSMS 回调 Bearer 令牌认证；令牌未配置时拒绝全部回调
func WebhookAuth(token string, logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		if token == "" {
			logger.Error("webhook token not configured", zap.String("path", c.Request.URL.Path))
			abort(c, apperr.Unauthorized(apperr.CodeTokenInvalid, "API token not configured"))
			return
		}
		got := bearer(c)
		if got == "" {
			abort(c, apperr.Unauthorized(apperr.CodeTokenInvalid, "invalid authorization header"))
			return
		}
		if subtle.ConstantTimeCompare([]byte(got), []byte(token)) != 1 {
			logger.Warn("webhook auth: invalid token",
				zap.String("path", c.Request.URL.Path),
				zap.String("remote_addr", c.ClientIP()),
			)
			abort(c, apperr.Unauthorized(apperr.CodeTokenInvalid, "invalid access token"))
			return
		}
		c.Set(ctxCaller, "csms")
		c.Next()
	}
}

// matchAny 逐个常量时间比较，不提前返回
func matchAny(keys []string, key string) bool {
	ok := 0
	for _, k := range keys {
		if k == "" {
			continue
		}
		ok |= subtle.ConstantTimeCompare([]byte(k), []byte(key))
	}
	return ok == 1
}

// maskAPIKey 脱敏API Key（仅显示前4位和后4位）
func maskAPIKey(key string) string {
	if len(key) <= 8 {
		return "****"
	}
	return key[:4] + "****" + key[len(key)-4:]
}

// CORS 移动端与管理后台跨域
func CORS() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Writer.Header().Set("Access-Control-Allow-Origin", "*")
		c.Writer.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, PATCH, DELETE, OPTIONS")
		c.Writer.Header().Set("Access-Control-Allow-Headers", "Content-Type, X-API-Key, X-Request-ID, Authorization")

		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}

		c.Next()
	}
}
