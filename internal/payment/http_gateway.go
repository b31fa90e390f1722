package payment

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math/rand"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/taoyao-code/wallbox-server/internal/apperr"
	cfgpkg "github.com/taoyao-code/wallbox-server/internal/config"
)

const (
	linkPath    = "/payment-links"
	capturePath = "/transactions/%s/capture"
)

// HTTPGateway 签名 JSON 调用外部支付网关；网络错误与 5xx 退避重试
type HTTPGateway struct {
	client    *http.Client
	baseURL   string
	apiKey    string
	secret    string
	returnURL string
	retries   int
	backoff   []time.Duration
	logger    *zap.Logger
	now       func() time.Time
}

func NewHTTPGateway(cfg cfgpkg.PaymentConfig, logger *zap.Logger) *HTTPGateway {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	retries := cfg.Retries
	if retries < 0 {
		retries = 0
	}
	return &HTTPGateway{
		client:    &http.Client{Timeout: timeout},
		baseURL:   strings.TrimRight(cfg.BaseURL, "/"),
		apiKey:    cfg.APIKey,
		secret:    cfg.Secret,
		returnURL: cfg.ReturnURL,
		retries:   retries,
		backoff:   []time.Duration{100 * time.Millisecond, 200 * time.Millisecond, 500 * time.Millisecond, time.Second, 2 * time.Second},
		logger:    logger.Named("payment"),
		now:       time.Now,
	}
}

// Configured 是否配置了网关地址与密钥
func (g *HTTPGateway) Configured() bool {
	return g != nil && g.baseURL != "" && g.secret != ""
}

type linkBody struct {
	Reference  string `json:"reference"`
	OrderID    int64  `json:"order_id"`
	CustomerID int64  `json:"customer_id"`
	Amount     string `json:"amount"`
	ReturnURL  string `json:"return_url,omitempty"`
}

type linkResponse struct {
	URL       string `json:"url"`
	Reference string `json:"reference"`
}

type errorResponse struct {
	Detail string `json:"detail"`
}

func (g *HTTPGateway) CreatePaymentLink(ctx context.Context, req LinkRequest) (*Link, error) {
	if req.AmountCent <= 0 {
		return nil, apperr.Validation("payment amount must be positive")
	}
	var out linkResponse
	err := g.post(ctx, linkPath, linkBody{
		Reference:  req.RequestRef,
		OrderID:    req.OrderID,
		CustomerID: req.CustomerID,
		Amount:     FormatAmount(req.AmountCent),
		ReturnURL:  g.returnURL,
	}, &out)
	if err != nil {
		return nil, err
	}
	if out.URL == "" || out.Reference == "" {
		return nil, apperr.External("payment gateway returned an empty link", nil)
	}
	return &Link{URL: out.URL, Reference: out.Reference}, nil
}

func (g *HTTPGateway) Capture(ctx context.Context, req CaptureRequest) error {
	if req.Reference == "" {
		return apperr.Validation("transaction reference is required")
	}
	path := fmt.Sprintf(capturePath, url.PathEscape(req.Reference))
	return g.post(ctx, path, map[string]string{"amount": FormatAmount(req.AmountCent)}, nil)
}

func (g *HTTPGateway) post(ctx context.Context, path string, payload, out interface{}) error {
	if !g.Configured() {
		return apperr.Configuration("payment gateway base URL and secret are required")
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return apperr.Internal("encode payment request", err)
	}
	endpoint := g.baseURL + path
	u, err := url.Parse(endpoint)
	if err != nil {
		return apperr.Configuration("invalid payment gateway URL")
	}

	var lastErr error
	for attempt := 0; attempt <= g.retries; attempt++ {
		code, respBody, err := g.send(ctx, endpoint, u.Path, body)
		switch {
		case err != nil:
			lastErr = apperr.External("payment gateway unreachable", err)
		case code >= 200 && code < 300:
			if out != nil && len(respBody) > 0 {
				if err := json.Unmarshal(respBody, out); err != nil {
					return apperr.External("decode payment gateway response", err)
				}
			}
			return nil
		case code < 500:
			// 4xx 不重试
			var e errorResponse
			_ = json.Unmarshal(respBody, &e)
			msg := e.Detail
			if msg == "" {
				msg = fmt.Sprintf("payment gateway rejected request: http %d", code)
			}
			return apperr.External(msg, nil).WithDetail("status", code)
		default:
			lastErr = apperr.External(fmt.Sprintf("payment gateway error: http %d", code), nil)
		}
		if attempt == g.retries {
			break
		}
		g.logger.Warn("payment request failed, retrying", zap.String("path", path), zap.Int("attempt", attempt+1), zap.Error(lastErr))
		wait := g.backoff[minInt(attempt, len(g.backoff)-1)]
		select {
		case <-ctx.Done():
			return apperr.External("payment request cancelled", ctx.Err())
		case <-time.After(wait):
		}
	}
	return lastErr
}

// send 每次重试重新签名（时间戳与 nonce 不复用）
func (g *HTTPGateway) send(ctx context.Context, endpoint, path string, body []byte) (int, []byte, error) {
	ts := g.now().Unix()
	nonce := fmt.Sprintf("%08x", rand.Uint32())
	sig := Sign(g.secret, Canonical(http.MethodPost, path, ts, nonce, body))

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return 0, nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Api-Key", g.apiKey)
	req.Header.Set("X-Signature", sig)
	req.Header.Set("X-Timestamp", fmt.Sprintf("%d", ts))
	req.Header.Set("X-Nonce", nonce)

	resp, err := g.client.Do(req)
	if err != nil {
		return 0, nil, err
	}
	defer resp.Body.Close()
	rb, _ := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	return resp.StatusCode, rb, nil
}

func minInt(a, b int) int {
	if a < b {
		return a
	}
	return b
}
