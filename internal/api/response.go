// Package api 移动端、管理端与 CSMS 回调的 HTTP 接口
package api

import (
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/taoyao-code/wallbox-server/internal/apperr"
)

// StandardResponse 标准响应格式
type StandardResponse struct {
	Code      string                 `json:"code"`              // OK 或稳定错误码
	Message   string                 `json:"message"`           // 消息
	Data      interface{}            `json:"data,omitempty"`    // 业务数据
	Details   map[string]interface{} `json:"details,omitempty"` // 诊断字段
	RequestID string                 `json:"request_id"`        // 请求追踪ID
	Timestamp int64                  `json:"timestamp"`         // 时间戳
}

const codeOK = "OK"

func ok(c *gin.Context, status int, message string, data interface{}) {
	c.JSON(status, StandardResponse{
		Code:      codeOK,
		Message:   message,
		Data:      data,
		RequestID: c.GetString("request_id"),
		Timestamp: time.Now().Unix(),
	})
}

// fail 业务错误转为统一信封；内部错误不暴露原因
func fail(c *gin.Context, logger *zap.Logger, err error) {
	e := apperr.As(err)
	status := apperr.HTTPStatus(e)
	msg := e.Message
	if e.Kind == apperr.KindInternal {
		logger.Error("request failed",
			zap.String("path", c.FullPath()),
			zap.String("request_id", c.GetString("request_id")),
			zap.Error(err))
		msg = "internal error"
	} else {
		logger.Info("request rejected",
			zap.String("path", c.FullPath()),
			zap.String("code", e.Code),
			zap.String("message", e.Message))
	}
	c.AbortWithStatusJSON(status, StandardResponse{
		Code:      e.Code,
		Message:   msg,
		Details:   e.Details,
		RequestID: c.GetString("request_id"),
		Timestamp: time.Now().Unix(),
	})
}

func badRequest(c *gin.Context, logger *zap.Logger, err error) {
	fail(c, logger, apperr.Validation("invalid request body").WithDetail("error", err.Error()))
}

func pathID(c *gin.Context, name string) (int64, error) {
	id, err := strconv.ParseInt(c.Param(name), 10, 64)
	if err != nil || id <= 0 {
		return 0, apperr.Validation("invalid " + name)
	}
	return id, nil
}

// page 分页参数，limit 上限 100
func page(c *gin.Context) (limit, offset int) {
	limit, offset = 20, 0
	if v, err := strconv.Atoi(c.Query("limit")); err == nil && v > 0 {
		limit = v
	}
	if limit > 100 {
		limit = 100
	}
	if v, err := strconv.Atoi(c.Query("offset")); err == nil && v >= 0 {
		offset = v
	}
	return limit, offset
}

