// Package payment 支付网关：预授权链接生成与扣款
package payment

import (
	"context"
	"fmt"

	"github.com/taoyao-code/wallbox-server/internal/apperr"
	"github.com/taoyao-code/wallbox-server/internal/storage/models"
)

//go:generate mockgen -destination=../charging/mocks/payment.go -package=mocks . Gateway

// LinkRequest 预授权链接参数
type LinkRequest struct {
	RequestRef string
	OrderID    int64
	CustomerID int64
	AmountCent int64
}

// Link 网关返回的支付链接；Reference 用于后续回调与扣款
type Link struct {
	URL       string
	Reference string
}

// CaptureRequest 按实际金额扣款
type CaptureRequest struct {
	Reference  string
	AmountCent int64
}

// Gateway 支付渠道
type Gateway interface {
	CreatePaymentLink(ctx context.Context, req LinkRequest) (*Link, error)
	Capture(ctx context.Context, req CaptureRequest) error
}

// Providers 按渠道名选择网关
type Providers map[string]Gateway

func (p Providers) Get(provider string) (Gateway, error) {
	if gw, ok := p[provider]; ok && gw != nil {
		return gw, nil
	}
	return nil, apperr.Configuration(fmt.Sprintf("payment provider %q is not configured", provider))
}

// ManualGateway 现金渠道：站主线下收款，扣款只做本地记账
type ManualGateway struct{}

func (ManualGateway) CreatePaymentLink(context.Context, LinkRequest) (*Link, error) {
	return nil, apperr.Validation("cash payments have no payment link")
}

func (ManualGateway) Capture(context.Context, CaptureRequest) error { return nil }

// NewProviders manual 总是可用；gateway 为 nil 时预授权不可用
func NewProviders(gateway Gateway) Providers {
	p := Providers{models.ProviderManual: ManualGateway{}}
	if gateway != nil {
		p[models.ProviderGateway] = gateway
	}
	return p
}

// FormatAmount 分 -> "12.34"
func FormatAmount(cent int64) string {
	sign := ""
	if cent < 0 {
		sign = "-"
		cent = -cent
	}
	return fmt.Sprintf("%s%d.%02d", sign, cent/100, cent%100)
}
