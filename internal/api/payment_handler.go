package api

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/taoyao-code/wallbox-server/internal/apperr"
	"github.com/taoyao-code/wallbox-server/internal/charging"
	"github.com/taoyao-code/wallbox-server/internal/metrics"
	"github.com/taoyao-code/wallbox-server/internal/payment"
)

// 支付回调签名允许的时钟偏差
const paymentMaxSkew = 5 * time.Minute

// PaymentHandler 支付网关交易状态回调
type PaymentHandler struct {
	svc     *charging.Service
	secret  string
	dedup   Deduper
	metrics *metrics.AppMetrics
	logger  *zap.Logger
	now     func() time.Time
}

func NewPaymentHandler(svc *charging.Service, secret string, dedup Deduper, m *metrics.AppMetrics, logger *zap.Logger) *PaymentHandler {
	return &PaymentHandler{svc: svc, secret: secret, dedup: dedup, metrics: m, logger: logger, now: time.Now}
}

// TransactionCallback 交易状态回调体
type TransactionCallback struct {
	Reference string `json:"reference"`
	State     string `json:"state"`
}

// Transactions 交易状态回调
// @Summary 支付网关交易状态回调
// @Description 签名头：X-Signature / X-Timestamp / X-Nonce，HMAC-SHA256
// @Tags 支付回调
// @Accept json
// @Produce json
// @Param request body TransactionCallback true "交易状态"
// @Success 200 {object} StandardResponse
// @Failure 401 {object} StandardResponse
// @Failure 404 {object} StandardResponse
// @Router /api/payments/transactions [post]
func (h *PaymentHandler) Transactions(c *gin.Context) {
	const kind = "payment"
	body, err := io.ReadAll(io.LimitReader(c.Request.Body, maxWebhookBody))
	if err != nil || len(bytes.TrimSpace(body)) == 0 {
		h.reject(c, kind, apperr.Validation("No data received"))
		return
	}
	nonce := c.GetHeader("X-Nonce")
	if h.secret == "" || !payment.Verify(h.secret, c.Request.Method, c.Request.URL.Path,
		c.GetHeader("X-Timestamp"), nonce, c.GetHeader("X-Signature"), body, h.now(), paymentMaxSkew) {
		h.reject(c, kind, apperr.Unauthorized("INVALID_SIGNATURE", "invalid payment callback signature"))
		return
	}
	var in TransactionCallback
	if err := json.Unmarshal(body, &in); err != nil {
		h.reject(c, kind, apperr.Validation("invalid JSON").WithDetail("error", err.Error()))
		return
	}

	// nonce 防重放
	key := "payment:" + nonce
	if h.dedup != nil {
		first, err := h.dedup.Claim(c.Request.Context(), key)
		if err != nil {
			h.logger.Warn("payment dedup unavailable", zap.Error(err))
		} else if !first {
			h.metrics.Webhook(kind, "duplicate")
			ok(c, http.StatusOK, "duplicate", nil)
			return
		}
	}
	txn, err := h.svc.HandleTransactionUpdate(c.Request.Context(), charging.TransactionUpdate{
		Reference: in.Reference,
		State:     in.State,
	})
	if err != nil {
		if h.dedup != nil {
			_ = h.dedup.Release(c.Request.Context(), key)
		}
		h.reject(c, kind, err)
		return
	}
	h.metrics.Webhook(kind, "ok")
	h.logger.Info("payment transaction updated",
		zap.String("reference", txn.Reference),
		zap.String("state", txn.State),
		zap.Int64("request_id", txn.RequestID))
	ok(c, http.StatusOK, "transaction updated", gin.H{
		"reference":  txn.Reference,
		"state":      txn.State,
		"request_id": txn.RequestID,
	})
}

func (h *PaymentHandler) reject(c *gin.Context, kind string, err error) {
	h.metrics.Webhook(kind, apperr.KindOf(err).String())
	fail(c, h.logger, err)
}
