package api

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/taoyao-code/wallbox-server/internal/api/middleware"
	"github.com/taoyao-code/wallbox-server/internal/storage/models"
)

// TokenRegistrar 推送令牌登记
type TokenRegistrar interface {
	RegisterToken(ctx context.Context, userID int64, token, platform string) (*models.DeviceToken, error)
}

// DeviceHandler 移动端推送令牌
type DeviceHandler struct {
	tokens TokenRegistrar
	logger *zap.Logger
}

func NewDeviceHandler(tokens TokenRegistrar, logger *zap.Logger) *DeviceHandler {
	return &DeviceHandler{tokens: tokens, logger: logger}
}

// RegisterTokenBody 推送令牌
type RegisterTokenBody struct {
	Token    string `json:"token" binding:"required"`
	Platform string `json:"platform"`
}

// RegisterToken 登记推送令牌
// @Summary 登记推送令牌
// @Tags 设备
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param request body RegisterTokenBody true "令牌"
// @Success 200 {object} StandardResponse
// @Failure 400 {object} StandardResponse
// @Router /api/v1/devices/tokens [post]
func (h *DeviceHandler) RegisterToken(c *gin.Context) {
	var body RegisterTokenBody
	if err := c.ShouldBindJSON(&body); err != nil {
		badRequest(c, h.logger, err)
		return
	}
	t, err := h.tokens.RegisterToken(c.Request.Context(), middleware.UserID(c), body.Token, body.Platform)
	if err != nil {
		fail(c, h.logger, err)
		return
	}
	ok(c, http.StatusOK, "token registered", gin.H{"id": t.ID, "platform": t.Platform, "active": t.Active})
}
