package api

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/taoyao-code/wallbox-server/internal/charging"
)

// AdminHandler 运维接口：解锁重试与人工确认
type AdminHandler struct {
	svc    *charging.Service
	logger *zap.Logger
}

func NewAdminHandler(svc *charging.Service, logger *zap.Logger) *AdminHandler {
	return &AdminHandler{svc: svc, logger: logger}
}

// RetryUnlock 重新下发解锁
// @Summary 重新下发枪锁解锁
// @Tags 运维
// @Produce json
// @Security ApiKeyAuth
// @Param id path int true "请求ID"
// @Success 202 {object} StandardResponse
// @Failure 409 {object} StandardResponse
// @Router /api/v1/admin/requests/{id}/unlock [post]
func (h *AdminHandler) RetryUnlock(c *gin.Context) {
	id, err := pathID(c, "id")
	if err != nil {
		fail(c, h.logger, err)
		return
	}
	res, err := h.svc.RetryUnlock(c.Request.Context(), id)
	if err != nil {
		fail(c, h.logger, err)
		return
	}
	ok(c, http.StatusAccepted, "unlock sent", res)
}

// ConfirmUnlock 人工确认已解锁
// @Summary 人工确认枪锁已解锁
// @Tags 运维
// @Produce json
// @Security ApiKeyAuth
// @Param id path int true "请求ID"
// @Success 200 {object} StandardResponse
// @Router /api/v1/admin/requests/{id}/unlock/confirm [post]
func (h *AdminHandler) ConfirmUnlock(c *gin.Context) {
	id, err := pathID(c, "id")
	if err != nil {
		fail(c, h.logger, err)
		return
	}
	req, err := h.svc.ConfirmUnlock(c.Request.Context(), id)
	if err != nil {
		fail(c, h.logger, err)
		return
	}
	ok(c, http.StatusOK, "unlock confirmed", gin.H{"id": req.ID, "unlock_confirmed_at": req.UnlockConfirmedAt})
}
