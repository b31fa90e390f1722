// Package csms 充电桩管理系统（CSMS）HTTP 客户端
package csms

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/taoyao-code/wallbox-server/internal/apperr"
	"github.com/taoyao-code/wallbox-server/internal/metrics"
)

// DefaultTimeout 单次调用超时，不做重试
const DefaultTimeout = 10 * time.Second

// Config 客户端配置
type Config struct {
	BaseURL           string
	Token             string
	Timeout           time.Duration
	RequestsPerSecond float64
	Burst             int
}

// Client CSMS 客户端，并发安全
type Client struct {
	cfg     Config
	http    *http.Client
	limiter *rate.Limiter
	logger  *zap.Logger
	metrics *metrics.AppMetrics
}

// New 创建客户端；凭据缺失不报错，调用时返回配置错误
func New(cfg Config, logger *zap.Logger, m *metrics.AppMetrics) *Client {
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	limit := rate.Inf
	if cfg.RequestsPerSecond > 0 {
		limit = rate.Limit(cfg.RequestsPerSecond)
	}
	burst := cfg.Burst
	if burst <= 0 {
		burst = 1
	}
	return &Client{
		cfg:     cfg,
		http:    &http.Client{Timeout: cfg.Timeout},
		limiter: rate.NewLimiter(limit, burst),
		logger:  logger.Named("csms"),
		metrics: m,
	}
}

// Configured 基础地址与令牌是否齐全
func (c *Client) Configured() bool {
	return strings.TrimSpace(c.cfg.BaseURL) != "" && strings.TrimSpace(c.cfg.Token) != ""
}

// do 发送请求并统一错误语义：
//   - 凭据缺失 -> 配置错误
//   - 400 -> CSMS 校验错误（带 detail）
//   - 404 -> 返回 found=false，无错误
//   - 其它非 2xx、网络错误、超时 -> 外部服务错误
func (c *Client) do(ctx context.Context, op, method, path string, in, out interface{}) (found bool, err error) {
	if !c.Configured() {
		return false, apperr.Configuration("CSMS API credentials not configured")
	}

	start := time.Now()
	result := "ok"
	defer func() {
		if c.metrics != nil {
			c.metrics.CSMSRequestTotal.WithLabelValues(op, result).Inc()
			c.metrics.CSMSRequestDuration.WithLabelValues(op).Observe(time.Since(start).Seconds())
		}
	}()

	if err := c.limiter.Wait(ctx); err != nil {
		result = "error"
		return false, apperr.External("CSMS request cancelled", err)
	}

	endpoint := strings.TrimRight(c.cfg.BaseURL, "/") + path
	var body io.Reader
	if in != nil {
		buf, err := json.Marshal(in)
		if err != nil {
			result = "error"
			return false, apperr.Internal("encode CSMS payload", err)
		}
		body = bytes.NewReader(buf)
	}

	req, err := http.NewRequestWithContext(ctx, method, endpoint, body)
	if err != nil {
		result = "error"
		return false, apperr.Internal("build CSMS request", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.cfg.Token)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	c.logger.Debug("csms request", zap.String("op", op), zap.String("method", method), zap.String("url", endpoint))

	resp, err := c.http.Do(req)
	if err != nil {
		result = "error"
		c.logger.Warn("csms request failed", zap.String("op", op), zap.Error(err))
		return false, apperr.External(fmt.Sprintf("CSMS API error: %s", op), err)
	}
	defer resp.Body.Close()
	raw, _ := io.ReadAll(io.LimitReader(resp.Body, 1<<20))

	switch {
	case resp.StatusCode == http.StatusNoContent:
		return true, nil
	case resp.StatusCode == http.StatusNotFound:
		result = "not_found"
		return false, nil
	case resp.StatusCode == http.StatusBadRequest:
		result = "validation"
		detail := parseDetail(raw)
		c.logger.Warn("csms validation error", zap.String("op", op), zap.String("detail", detail))
		return false, (&apperr.Error{
			Kind:    apperr.KindValidation,
			Code:    apperr.CodeCSMSValidation,
			Message: "CSMS API Validation Error: " + detail,
		}).WithDetail("detail", detail)
	case resp.StatusCode < 200 || resp.StatusCode >= 300:
		result = "error"
		c.logger.Warn("csms non-2xx", zap.String("op", op), zap.Int("status", resp.StatusCode), zap.ByteString("body", truncate(raw, 512)))
		return false, apperr.External(fmt.Sprintf("CSMS API error: %s returned HTTP %d", op, resp.StatusCode), nil).
			WithDetail("status", resp.StatusCode)
	}

	if out != nil && len(bytes.TrimSpace(raw)) > 0 {
		if err := json.Unmarshal(raw, out); err != nil {
			result = "error"
			return true, apperr.External(fmt.Sprintf("CSMS API error: %s returned malformed body", op), err)
		}
	}
	return true, nil
}

// parseDetail 提取 400 响应中的 detail；非 JSON 时返回原文
func parseDetail(raw []byte) string {
	var eb errorBody
	if err := json.Unmarshal(raw, &eb); err == nil && len(eb.Detail) > 0 {
		var s string
		if json.Unmarshal(eb.Detail, &s) == nil {
			return s
		}
		return string(eb.Detail)
	}
	return strings.TrimSpace(string(truncate(raw, 512)))
}

func truncate(b []byte, n int) []byte {
	if len(b) > n {
		return b[:n]
	}
	return b
}

func chargerPath(chargerID string) string {
	return pathChargers + url.PathEscape(chargerID) + "/"
}

func requireChargerID(chargerID string) error {
	if strings.TrimSpace(chargerID) == "" {
		return apperr.Validation("charger_id is required before any CSMS interaction")
	}
	return nil
}

// ---------- 充电桩 ----------

// GetCharger 查询充电桩；不存在返回 nil, nil
func (c *Client) GetCharger(ctx context.Context, chargerID string) (*Charger, error) {
	if err := requireChargerID(chargerID); err != nil {
		return nil, err
	}
	var ch Charger
	found, err := c.do(ctx, "get_charger", http.MethodGet, chargerPath(chargerID), nil, &ch)
	if err != nil || !found {
		return nil, err
	}
	return &ch, nil
}

// CreateCharger 创建充电桩
func (c *Client) CreateCharger(ctx context.Context, p ChargerPayload) (*Charger, error) {
	if err := validatePayload(p); err != nil {
		return nil, err
	}
	var ch Charger
	found, err := c.do(ctx, "create_charger", http.MethodPost, pathChargers, normalize(p), &ch)
	if err != nil {
		return nil, err
	}
	if !found {
		return nil, apperr.External("No response received from CSMS API", nil)
	}
	return &ch, nil
}

// UpdateCharger 全量更新（PUT）
func (c *Client) UpdateCharger(ctx context.Context, chargerID string, p ChargerPayload) (*Charger, error) {
	return c.update(ctx, "update_charger", http.MethodPut, chargerID, p)
}

// PatchCharger 部分更新（PATCH）
func (c *Client) PatchCharger(ctx context.Context, chargerID string, p ChargerPayload) (*Charger, error) {
	return c.update(ctx, "patch_charger", http.MethodPatch, chargerID, p)
}

func (c *Client) update(ctx context.Context, op, method, chargerID string, p ChargerPayload) (*Charger, error) {
	if err := requireChargerID(chargerID); err != nil {
		return nil, err
	}
	if err := validatePayload(p); err != nil {
		return nil, err
	}
	var ch Charger
	found, err := c.do(ctx, op, method, chargerPath(chargerID), normalize(p), &ch)
	if err != nil {
		return nil, err
	}
	if !found {
		return nil, apperr.NotFound("charger", chargerID)
	}
	return &ch, nil
}

// DeleteCharger 删除充电桩；远端已不存在视为成功
func (c *Client) DeleteCharger(ctx context.Context, chargerID string) error {
	if err := requireChargerID(chargerID); err != nil {
		return err
	}
	_, err := c.do(ctx, "delete_charger", http.MethodDelete, chargerPath(chargerID), nil, nil)
	return err
}

func validatePayload(p ChargerPayload) error {
	if err := requireChargerID(p.ChargerID); err != nil {
		return err
	}
	if strings.TrimSpace(string(p.PricePerKWh)) == "" {
		return apperr.Validation("Missing required field: price_per_kwh")
	}
	return nil
}

func normalize(p ChargerPayload) ChargerPayload {
	if p.RFIDTags == nil {
		p.RFIDTags = []RFIDTag{}
	}
	return p
}

// BuildPayload 由本地快照构造请求体
func BuildPayload(s StationSnapshot) ChargerPayload {
	p := ChargerPayload{
		LocalID:             s.LocalID,
		ChargerID:           s.ChargerID,
		PricePerKWh:         FormatCents(s.PricePerKWhCent),
		RFIDTags:            append([]RFIDTag{}, s.RFIDTags...),
		SubscriptionExpDate: FormatDate(s.SubscriptionExpiresAt),
		Latitude:            FormatFloat(s.Latitude),
		Longitude:           FormatFloat(s.Longitude),
	}
	if s.OwnerID > 0 {
		owner := s.OwnerID
		p.OwnerID = &owner
	}
	return p
}

// Sync 幂等同步：远端存在则 PATCH 并返回远端状态，否则创建并返回 ws_url
func (c *Client) Sync(ctx context.Context, s StationSnapshot) (*SyncResult, error) {
	if err := requireChargerID(s.ChargerID); err != nil {
		return nil, err
	}
	if s.PricePerKWhCent <= 0 {
		return nil, apperr.Validation("price per kWh is required for CSMS sync")
	}

	existing, err := c.GetCharger(ctx, s.ChargerID)
	if err != nil {
		return nil, err
	}
	payload := BuildPayload(s)
	if existing != nil {
		if _, err := c.PatchCharger(ctx, s.ChargerID, payload); err != nil {
			return nil, err
		}
		return &SyncResult{Status: existing.Status}, nil
	}

	created, err := c.CreateCharger(ctx, payload)
	if err != nil {
		return nil, err
	}
	c.logger.Info("charger created on csms", zap.String("charger_id", s.ChargerID))
	return &SyncResult{Created: true, Status: created.Status, WSURL: created.WSURL}, nil
}

// ---------- 指令 ----------

// RemoteStart 远程启动；仅当响应带非空 status 时视为成功
func (c *Client) RemoteStart(ctx context.Context, r RemoteStartRequest) (*CommandResult, error) {
	if err := requireChargerID(r.ChargerID); err != nil {
		return nil, err
	}
	if r.MaxLimit == "" {
		r.MaxLimit = FormatCents(0)
	}
	var res CommandResult
	if _, err := c.do(ctx, "remote_start", http.MethodPost, pathRemoteStart, r, &res); err != nil {
		return nil, err
	}
	if strings.TrimSpace(res.Status) == "" {
		c.logger.Warn("remote start not acknowledged", zap.String("charger_id", r.ChargerID), zap.Int64("request_id", r.RequestID))
		return nil, apperr.External("Failed to start charging session: charger did not acknowledge", nil)
	}
	c.logger.Info("remote start accepted", zap.String("charger_id", r.ChargerID), zap.Int64("request_id", r.RequestID), zap.String("status", res.Status))
	return &res, nil
}

// RemoteStop 远程停止
func (c *Client) RemoteStop(ctx context.Context, chargerID, transactionID string) (*CommandResult, error) {
	if err := requireChargerID(chargerID); err != nil {
		return nil, err
	}
	if strings.TrimSpace(transactionID) == "" {
		return nil, apperr.Validation("transaction_id is required")
	}
	var res CommandResult
	if _, err := c.do(ctx, "remote_stop", http.MethodPost, pathRemoteStop, RemoteStopRequest{ChargerID: chargerID, TransactionID: transactionID}, &res); err != nil {
		return nil, err
	}
	return &res, nil
}

// Unlock 解锁枪头
func (c *Client) Unlock(ctx context.Context, chargerID string) (*CommandResult, error) {
	if err := requireChargerID(chargerID); err != nil {
		return nil, err
	}
	var res CommandResult
	if _, err := c.do(ctx, "unlock", http.MethodPost, pathUnlock, unlockRequest{ChargerID: chargerID}, &res); err != nil {
		return nil, err
	}
	return &res, nil
}

// Reset 重启充电桩
func (c *Client) Reset(ctx context.Context, chargerID string, t ResetType) (*CommandResult, error) {
	if err := requireChargerID(chargerID); err != nil {
		return nil, err
	}
	if !t.Valid() {
		return nil, apperr.Validation("Invalid reset type. Must be 'Soft' or 'Hard'")
	}
	var res CommandResult
	if _, err := c.do(ctx, "reset", http.MethodPost, pathReset, resetRequest{ChargerID: chargerID, ResetType: t}, &res); err != nil {
		return nil, err
	}
	return &res, nil
}

// IsTimeout 调用方据此区分超时（可重试但需上报）
func IsTimeout(err error) bool {
	var ne interface{ Timeout() bool }
	return errors.As(err, &ne) && ne.Timeout()
}
