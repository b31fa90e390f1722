package api

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/taoyao-code/wallbox-server/internal/apperr"
	"github.com/taoyao-code/wallbox-server/internal/charging"
	"github.com/taoyao-code/wallbox-server/internal/csms"
	"github.com/taoyao-code/wallbox-server/internal/metrics"
	"github.com/taoyao-code/wallbox-server/internal/station"
	"github.com/taoyao-code/wallbox-server/internal/storage"
	"github.com/taoyao-code/wallbox-server/internal/storage/models"
)

// CSMS 回调时间格式
const webhookTimeLayout = "2006-01-02T15:04:05Z"

// maxWebhookBody 回调请求体上限
const maxWebhookBody = 1 << 20

// Deduper 回调去重
type Deduper interface {
	Claim(ctx context.Context, key string) (bool, error)
	Release(ctx context.Context, key string) error
}

// WebhookHandler CSMS 回调：会话、状态、报文日志
type WebhookHandler struct {
	charging *charging.Service
	stations *station.Service
	logs     storage.LogRepository
	dedup    Deduper
	metrics  *metrics.AppMetrics
	logger   *zap.Logger
}

func NewWebhookHandler(cs *charging.Service, ss *station.Service, logs storage.LogRepository, dedup Deduper, m *metrics.AppMetrics, logger *zap.Logger) *WebhookHandler {
	return &WebhookHandler{charging: cs, stations: ss, logs: logs, dedup: dedup, metrics: m, logger: logger}
}

// SessionPayload 会话回调；数值字段兼容字符串与数字
type SessionPayload struct {
	TransactionID     string        `json:"transaction_id"`
	ChargingStationID string        `json:"charging_station_id"`
	CustomerID        *csms.Decimal `json:"customer_id"`
	Status            string        `json:"status"`
	RequestID         *csms.Decimal `json:"request_id"`
	VehicleID         *csms.Decimal `json:"vehicle_id"`
	MaxAmountLimit    *csms.Decimal `json:"max_amount_limit"`
	StartMeter        *csms.Decimal `json:"start_meter"`
	StopMeter         *csms.Decimal `json:"stop_meter"`
	TotalEnergy       *csms.Decimal `json:"total_energy"`
	Cost              *csms.Decimal `json:"cost"`
	StartTime         string        `json:"start_time"`
	EndTime           string        `json:"end_time"`
	TotalDuration     string        `json:"total_duration"`
}

// StatusPayload 充电桩状态回调
type StatusPayload struct {
	ChargerID string `json:"charger_id"`
	Status    string `json:"status"`
}

// LogPayload 充电桩报文日志
type LogPayload struct {
	Message      *string         `json:"message"`
	Payload      json.RawMessage `json:"payload"`
	ChargerID    string          `json:"charger_id"`
	Direction    string          `json:"direction"`
	NotNecessary bool            `json:"not_necessary"`
	CreatedAt    string          `json:"created_at"`
}

// readBody 读取并保留请求体，用于摘要与解析
func readBody(c *gin.Context) ([]byte, error) {
	body, err := io.ReadAll(io.LimitReader(c.Request.Body, maxWebhookBody))
	if err != nil {
		return nil, apperr.Validation("unreadable body")
	}
	if len(bytes.TrimSpace(body)) == 0 {
		return nil, apperr.Validation("No data received")
	}
	return body, nil
}

func digest(kind string, body []byte) string {
	h := sha256.Sum256(body)
	return kind + ":" + hex.EncodeToString(h[:])
}

// claim 相同报文在窗口内只处理一次；去重故障时照常处理
func (h *WebhookHandler) claim(c *gin.Context, key string) bool {
	if h.dedup == nil {
		return true
	}
	first, err := h.dedup.Claim(c.Request.Context(), key)
	if err != nil {
		h.logger.Warn("webhook dedup unavailable", zap.Error(err))
		return true
	}
	return first
}

func (h *WebhookHandler) release(c *gin.Context, key string) {
	if h.dedup == nil {
		return
	}
	if err := h.dedup.Release(c.Request.Context(), key); err != nil {
		h.logger.Warn("webhook dedup release failed", zap.String("key", key), zap.Error(err))
	}
}

func parseInt(field string, d *csms.Decimal) (*int64, error) {
	if d == nil || *d == "" {
		return nil, nil
	}
	s := strings.TrimSuffix(string(*d), ".0")
	v, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return nil, apperr.Validation("invalid " + field).WithDetail(field, string(*d))
	}
	return &v, nil
}

func parseFloat(field string, d *csms.Decimal) (*float64, error) {
	if d == nil || *d == "" {
		return nil, nil
	}
	v, err := strconv.ParseFloat(string(*d), 64)
	if err != nil {
		return nil, apperr.Validation("invalid " + field).WithDetail(field, string(*d))
	}
	return &v, nil
}

func parseMoney(field string, d *csms.Decimal) (*int64, error) {
	if d == nil || *d == "" {
		return nil, nil
	}
	v, err := csms.ParseCents(string(*d))
	if err != nil {
		return nil, apperr.Validation("invalid " + field).WithDetail(field, string(*d))
	}
	return &v, nil
}

// parseTime 格式不符时忽略该字段
func (h *WebhookHandler) parseTime(field, s string) *time.Time {
	if s == "" {
		return nil
	}
	t, err := time.Parse(webhookTimeLayout, s)
	if err != nil {
		h.logger.Warn("invalid datetime format", zap.String("field", field), zap.String("value", s))
		return nil
	}
	return &t
}

// toEvent 解析回调字段；必填项缺失由状态机统一校验
func (h *WebhookHandler) toEvent(p SessionPayload) (charging.SessionEvent, error) {
	ev := charging.SessionEvent{
		TransactionID: strings.TrimSpace(p.TransactionID),
		ChargerID:     strings.TrimSpace(p.ChargingStationID),
		Status:        strings.TrimSpace(p.Status),
		StartTime:     h.parseTime("start_time", p.StartTime),
		StopTime:      h.parseTime("end_time", p.EndTime),
	}
	var err error
	if ev.CustomerID, err = parseInt("customer_id", p.CustomerID); err != nil {
		return ev, err
	}
	if ev.RequestID, err = parseInt("request_id", p.RequestID); err != nil {
		return ev, err
	}
	if p.VehicleID != nil && *p.VehicleID != "" {
		ref := string(*p.VehicleID)
		ev.VehicleRef = &ref
	}
	if ev.MaxAmountCent, err = parseMoney("max_amount_limit", p.MaxAmountLimit); err != nil {
		return ev, err
	}
	if ev.CostCent, err = parseMoney("cost", p.Cost); err != nil {
		return ev, err
	}
	if ev.MeterStart, err = parseFloat("start_meter", p.StartMeter); err != nil {
		return ev, err
	}
	if ev.MeterStop, err = parseFloat("stop_meter", p.StopMeter); err != nil {
		return ev, err
	}
	if ev.TotalEnergyKWh, err = parseFloat("total_energy", p.TotalEnergy); err != nil {
		return ev, err
	}
	if ev.StartTime != nil && ev.StopTime != nil && !ev.StopTime.Before(*ev.StartTime) {
		d := int64(ev.StopTime.Sub(*ev.StartTime) / time.Second)
		ev.DurationSec = &d
	}
	return ev, nil
}

// Sessions 会话回调
// @Summary CSMS 会话回调
// @Description 按 transaction_id 创建或更新会话；Ended/Failed 首次出现时完成关联请求
// @Tags CSMS 回调
// @Accept json
// @Produce json
// @Security WebhookToken
// @Param request body SessionPayload true "会话数据"
// @Success 200 {object} map[string]interface{}
// @Failure 400 {object} StandardResponse
// @Failure 401 {object} StandardResponse
// @Failure 404 {object} StandardResponse
// @Router /api/wallbox/sessions [post]
func (h *WebhookHandler) Sessions(c *gin.Context) {
	const kind = "session"
	body, err := readBody(c)
	if err != nil {
		h.reject(c, kind, err)
		return
	}
	var p SessionPayload
	if err := json.Unmarshal(body, &p); err != nil {
		h.reject(c, kind, apperr.Validation("invalid JSON").WithDetail("error", err.Error()))
		return
	}
	ev, err := h.toEvent(p)
	if err != nil {
		h.reject(c, kind, err)
		return
	}
	key := digest(kind, body)
	if !h.claim(c, key) {
		h.metrics.Webhook(kind, "duplicate")
		c.JSON(http.StatusOK, gin.H{"success": true, "action": "duplicate", "session_name": ev.TransactionID})
		return
	}
	out, err := h.charging.HandleSessionEvent(c.Request.Context(), ev)
	if err != nil {
		h.release(c, key)
		h.reject(c, kind, err)
		return
	}
	h.metrics.Webhook(kind, "ok")
	h.logger.Info("charging session received",
		zap.String("action", out.Action),
		zap.String("transaction_id", out.TransactionID),
		zap.String("status", ev.Status),
		zap.Bool("finalized", out.Finalized))
	c.JSON(http.StatusOK, gin.H{
		"success":      true,
		"action":       out.Action,
		"session_id":   out.SessionID,
		"session_name": out.TransactionID,
	})
}

// StatusUpdate 充电桩状态回调
// @Summary CSMS 充电桩状态回调
// @Tags CSMS 回调
// @Accept json
// @Produce json
// @Security WebhookToken
// @Param request body StatusPayload true "状态"
// @Success 200 {object} map[string]interface{}
// @Failure 400 {object} StandardResponse
// @Router /api/wallbox/status-update [post]
func (h *WebhookHandler) StatusUpdate(c *gin.Context) {
	const kind = "status"
	var p StatusPayload
	if err := c.ShouldBindJSON(&p); err != nil {
		h.reject(c, kind, apperr.Validation("invalid JSON").WithDetail("error", err.Error()))
		return
	}
	st, err := h.stations.ApplyStatus(c.Request.Context(), strings.TrimSpace(p.ChargerID), strings.TrimSpace(p.Status))
	if err != nil {
		h.reject(c, kind, err)
		return
	}
	h.metrics.Webhook(kind, "ok")
	c.JSON(http.StatusOK, gin.H{
		"success":    true,
		"station_id": st.ID,
		"charger_id": st.ChargerID,
		"new_status": st.Status,
	})
}

// Logs 报文日志回调
// @Summary CSMS 报文日志
// @Tags CSMS 回调
// @Accept json
// @Produce json
// @Security WebhookToken
// @Param request body LogPayload true "日志"
// @Success 200 {object} map[string]interface{}
// @Failure 400 {object} StandardResponse
// @Router /api/wallbox/logs [post]
func (h *WebhookHandler) Logs(c *gin.Context) {
	const kind = "log"
	var p LogPayload
	if err := c.ShouldBindJSON(&p); err != nil {
		h.reject(c, kind, apperr.Validation("invalid JSON").WithDetail("error", err.Error()))
		return
	}
	var missing []string
	if p.Message == nil {
		missing = append(missing, "message")
	}
	if len(p.Payload) == 0 {
		missing = append(missing, "payload")
	}
	if strings.TrimSpace(p.ChargerID) == "" {
		missing = append(missing, "charger_id")
	}
	if p.Direction == "" {
		missing = append(missing, "direction")
	}
	if len(missing) > 0 {
		h.reject(c, kind, apperr.Validation("missing required fields").WithDetail("fields", missing))
		return
	}
	if p.Direction != models.DirectionC2S && p.Direction != models.DirectionS2C {
		h.reject(c, kind, apperr.Validation("direction must be C2S or S2C"))
		return
	}
	st, err := h.stations.GetByChargerID(c.Request.Context(), p.ChargerID)
	if err != nil {
		h.reject(c, kind, err)
		return
	}
	entry := &models.WallboxLog{
		StationID:    st.ID,
		Direction:    p.Direction,
		Message:      *p.Message,
		Payload:      payloadText(p.Payload),
		NotNecessary: p.NotNecessary,
	}
	if t := h.parseTime("created_at", p.CreatedAt); t != nil {
		entry.CreatedAt = *t
	}
	if err := h.logs.AppendWallboxLog(c.Request.Context(), entry); err != nil {
		h.reject(c, kind, err)
		return
	}
	h.metrics.Webhook(kind, "ok")
	c.JSON(http.StatusOK, gin.H{"success": true, "log_id": entry.ID})
}

// payloadText 对象原样保存 JSON，字符串去掉引号
func payloadText(raw json.RawMessage) string {
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	return string(raw)
}

func (h *WebhookHandler) reject(c *gin.Context, kind string, err error) {
	h.metrics.Webhook(kind, apperr.KindOf(err).String())
	fail(c, h.logger, err)
}
