package notify

import (
	_ "embed"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

//go:embed messages.yaml
var defaultMessages []byte

// 文案 key
const (
	MsgRequestCreated    = "request_created"
	MsgRequestSubmitted  = "request_submitted"
	MsgOrderCreated      = "order_created"
	MsgRequestApproved   = "request_approved"
	MsgApprovedCash      = "approved_cash"
	MsgApprovedPreAuth   = "approved_preauth"
	MsgPaymentAuthorized = "payment_authorized"
	MsgRequestScheduled  = "request_scheduled"
	MsgStartSent         = "start_sent"
	MsgStopSent          = "stop_sent"
	MsgChargingCompleted = "charging_completed"
	MsgChargingFailed    = "charging_failed"
	MsgRequestCancelled  = "request_cancelled"
)

// Catalog 推送文案表
type Catalog struct {
	messages map[string]string
}

// DefaultCatalog 内嵌文案
func DefaultCatalog() *Catalog {
	c, err := parseCatalog(defaultMessages, nil)
	if err != nil {
		panic(fmt.Sprintf("embedded messages.yaml: %v", err))
	}
	return c
}

// LoadCatalog 以内嵌文案为底，path 非空时覆盖同名 key
func LoadCatalog(path string) (*Catalog, error) {
	base := DefaultCatalog()
	if path == "" {
		return base, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read messages file: %w", err)
	}
	return parseCatalog(data, base.messages)
}

func parseCatalog(data []byte, base map[string]string) (*Catalog, error) {
	m := make(map[string]string, len(base))
	for k, v := range base {
		m[k] = v
	}
	var overlay map[string]string
	if err := yaml.Unmarshal(data, &overlay); err != nil {
		return nil, err
	}
	for k, v := range overlay {
		m[k] = v
	}
	return &Catalog{messages: m}, nil
}

// Text 未知 key 原样返回
func (c *Catalog) Text(key string, args ...interface{}) string {
	if c == nil {
		return key
	}
	tpl, ok := c.messages[key]
	if !ok {
		return key
	}
	if len(args) == 0 {
		return tpl
	}
	return fmt.Sprintf(tpl, args...)
}
