package csms

import (
	"bytes"
	"encoding/json"
	"time"
)

// 接口路径
const (
	pathChargers    = "/api/v1/csms/chargers/"
	pathRemoteStart = "/api/v1/csms/remote-start-transaction/"
	pathRemoteStop  = "/api/v1/csms/remote-stop-transaction/"
	pathUnlock      = "/api/v1/csms/unlock-connector/"
	pathReset       = "/api/v1/csms/reset/"
)

// ResetType 重启方式
type ResetType string

const (
	ResetSoft ResetType = "Soft"
	ResetHard ResetType = "Hard"
)

func (t ResetType) Valid() bool { return t == ResetSoft || t == ResetHard }

// Decimal CSMS 数值字段统一按字符串传输；解码时兼容裸数字
type Decimal string

func (d *Decimal) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if bytes.Equal(b, []byte("null")) {
		*d = ""
		return nil
	}
	if len(b) > 0 && b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		*d = Decimal(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(b, &n); err != nil {
		return err
	}
	*d = Decimal(n.String())
	return nil
}

// RFIDTag 充电桩白名单卡
type RFIDTag struct {
	TagID     string `json:"tag_id"`
	IsAllowed bool   `json:"is_allowed"`
}

// ChargerPayload 创建/更新充电桩的请求体
type ChargerPayload struct {
	LocalID             int64     `json:"local_id,omitempty"`
	OwnerID             *int64    `json:"owner_id,omitempty"`
	ChargerID           string    `json:"charger_id"`
	PricePerKWh         Decimal   `json:"price_per_kwh"`
	RFIDTags            []RFIDTag `json:"rfid_tags"`
	SubscriptionExpDate *string   `json:"subscription_exp_date"`
	Latitude            Decimal   `json:"latitude,omitempty"`
	Longitude           Decimal   `json:"longitude,omitempty"`
}

// Charger CSMS 返回的充电桩
type Charger struct {
	LocalID     int64     `json:"local_id,omitempty"`
	ChargerID   string    `json:"charger_id"`
	Status      string    `json:"status"`
	WSURL       string    `json:"ws_url,omitempty"`
	PricePerKWh Decimal   `json:"price_per_kwh,omitempty"`
	RFIDTags    []RFIDTag `json:"rfid_tags,omitempty"`
}

// RemoteStartRequest 远程启动；RequestID 会随会话回调原样带回，用于关联请求
type RemoteStartRequest struct {
	ChargerID          string  `json:"charger_id"`
	CustomerID         int64   `json:"customer_id"`
	MaxLimit           Decimal `json:"max_limit"`
	RequestID          int64   `json:"request_id"`
	ChargingPowerLimit Decimal `json:"charging_power_limit,omitempty"`
}

type RemoteStopRequest struct {
	ChargerID     string `json:"charger_id"`
	TransactionID string `json:"transaction_id"`
}

type unlockRequest struct {
	ChargerID string `json:"charger_id"`
}

type resetRequest struct {
	ChargerID string    `json:"charger_id"`
	ResetType ResetType `json:"reset_type"`
}

// CommandResult 指令类接口的响应；Status 非空才视为桩已受理
type CommandResult struct {
	Status  string `json:"status"`
	Message string `json:"message,omitempty"`
}

// StationSnapshot 同步所需的本地充电站快照
type StationSnapshot struct {
	LocalID               int64
	OwnerID               int64
	ChargerID             string
	PricePerKWhCent       int64
	SubscriptionExpiresAt *time.Time
	Latitude              *float64
	Longitude             *float64
	RFIDTags              []RFIDTag
}

// SyncResult 同步结果
type SyncResult struct {
	Created bool
	// 更新路径下为远端当前状态，需回写本地
	Status string
	// 创建路径下返回的 websocket 地址
	WSURL string
}

type errorBody struct {
	Detail json.RawMessage `json:"detail"`
}
