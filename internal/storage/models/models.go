package models

import (
	"time"
)

// 注意：
// - 保持与 db/migrations 下的建表语句对齐
// - 不使用 gorm.Model，显式声明每个字段，避免隐式 DeletedAt
// - 金额统一使用分（int64），出入 CSMS 时再转换为字符串小数

// User 映射 users 表（请求人/站主）
type User struct {
	ID        int64     `gorm:"column:id;primaryKey;autoIncrement"`
	Name      string    `gorm:"column:name;type:text;not null"`
	Email     *string   `gorm:"column:email;type:text;uniqueIndex"`
	Active    bool      `gorm:"column:active;not null"`
	CreatedAt time.Time `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt time.Time `gorm:"column:updated_at;autoUpdateTime"`
}

func (User) TableName() string { return "users" }

// Vehicle 映射 vehicles 表
type Vehicle struct {
	ID        int64     `gorm:"column:id;primaryKey;autoIncrement"`
	OwnerID   int64     `gorm:"column:owner_id;not null;index"`
	Plate     string    `gorm:"column:plate;type:text;not null"`
	Model     *string   `gorm:"column:model;type:text"`
	CreatedAt time.Time `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt time.Time `gorm:"column:updated_at;autoUpdateTime"`
}

func (Vehicle) TableName() string { return "vehicles" }

// ChargingStation 映射 charging_stations 表
type ChargingStation struct {
	ID        int64  `gorm:"column:id;primaryKey;autoIncrement"`
	ChargerID string `gorm:"column:charger_id;type:text;not null;uniqueIndex"`
	OwnerID   int64  `gorm:"column:owner_id;not null;index"`
	Name      string `gorm:"column:name;type:text;not null;default:''"`
	// 电价（分/kWh）
	PricePerKWhCent int64 `gorm:"column:price_per_kwh_cent;not null;default:0"`
	// 访客单次消费上限（分）
	GuestMaxAmountCent int64 `gorm:"column:guest_max_amount_cent;not null;default:0"`
	// 状态仅由 CSMS 回写
	Status    string   `gorm:"column:status;type:text;not null;default:'Unavailable'"`
	Latitude  *float64 `gorm:"column:latitude"`
	Longitude *float64 `gorm:"column:longitude"`
	// CSMS 创建充电桩后返回的 websocket 地址
	WSURL                 *string    `gorm:"column:ws_url;type:text"`
	SubscriptionExpiresAt *time.Time `gorm:"column:subscription_expires_at"`
	LastSyncedAt          *time.Time `gorm:"column:last_synced_at"`
	CreatedAt             time.Time  `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt             time.Time  `gorm:"column:updated_at;autoUpdateTime"`
}

func (ChargingStation) TableName() string { return "charging_stations" }

// StationPartner 映射 station_partners 表（月结用户，复合主键）
type StationPartner struct {
	StationID int64     `gorm:"column:station_id;primaryKey"`
	UserID    int64     `gorm:"column:user_id;primaryKey"`
	CreatedAt time.Time `gorm:"column:created_at;autoCreateTime"`
}

func (StationPartner) TableName() string { return "station_partners" }

// StationRFIDTag 映射 station_rfid_tags 表
type StationRFIDTag struct {
	ID        int64     `gorm:"column:id;primaryKey;autoIncrement"`
	StationID int64     `gorm:"column:station_id;not null;uniqueIndex:uq_station_tag,priority:1"`
	TagID     string    `gorm:"column:tag_id;type:text;not null;uniqueIndex:uq_station_tag,priority:2"`
	IsAllowed bool      `gorm:"column:is_allowed;not null"`
	CreatedAt time.Time `gorm:"column:created_at;autoCreateTime"`
}

func (StationRFIDTag) TableName() string { return "station_rfid_tags" }

// ChargingRequest 映射 charging_requests 表（编排聚合根）
type ChargingRequest struct {
	ID          int64  `gorm:"column:id;primaryKey;autoIncrement"`
	Reference   string `gorm:"column:reference;type:text;not null;uniqueIndex"`
	RequesterID int64  `gorm:"column:requester_id;not null;index"`
	StationID   int64  `gorm:"column:station_id;not null;index"`
	VehicleID   int64  `gorm:"column:vehicle_id;not null"`
	Status      string `gorm:"column:status;type:text;not null;index"`
	// cash | pre-authorize，访客审批时必填
	PaymentMethod   *string  `gorm:"column:payment_method;type:text"`
	ChargingPowerKW *float64 `gorm:"column:charging_power_kw"`
	// 冗余自 payment_transactions.state，同事务内更新
	TransactionID    *int64  `gorm:"column:transaction_id"`
	TransactionState string  `gorm:"column:transaction_state;type:text;not null;default:''"`
	PaymentLink      *string `gorm:"column:payment_link;type:text"`
	OrderID          *int64  `gorm:"column:order_id"`
	SessionID        *int64  `gorm:"column:session_id"`
	// 时间线
	RequestedAt       *time.Time `gorm:"column:requested_at"`
	ScheduledAt       *time.Time `gorm:"column:scheduled_at"`
	StartedAt         *time.Time `gorm:"column:started_at"`
	CompletedAt       *time.Time `gorm:"column:completed_at"`
	CancelledAt       *time.Time `gorm:"column:cancelled_at"`
	UnlockRequestedAt *time.Time `gorm:"column:unlock_requested_at"`
	UnlockConfirmedAt *time.Time `gorm:"column:unlock_confirmed_at"`
	CreatedAt         time.Time  `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt         time.Time  `gorm:"column:updated_at;autoUpdateTime"`
}

func (ChargingRequest) TableName() string { return "charging_requests" }

// ChargingSession 映射 charging_sessions 表（仅由 CSMS 回调创建）
type ChargingSession struct {
	ID            int64   `gorm:"column:id;primaryKey;autoIncrement"`
	TransactionID string  `gorm:"column:transaction_id;type:text;not null;uniqueIndex"`
	StationID     int64   `gorm:"column:station_id;not null;index"`
	RequestID     *int64  `gorm:"column:request_id;index"`
	CustomerID    *int64  `gorm:"column:customer_id"`
	VehicleRef    *string `gorm:"column:vehicle_ref;type:text"`
	Status        string  `gorm:"column:status;type:text;not null"`
	// 电表读数（Wh）与累计电量（kWh）
	MeterStart       *float64   `gorm:"column:meter_start"`
	MeterStop        *float64   `gorm:"column:meter_stop"`
	TotalEnergyKWh   *float64   `gorm:"column:total_energy_kwh"`
	CostCent         *int64     `gorm:"column:cost_cent"`
	MaxAmountCent    *int64     `gorm:"column:max_amount_cent"`
	DurationSec      *int64     `gorm:"column:duration_sec"`
	StartTime        *time.Time `gorm:"column:start_time"`
	StopTime         *time.Time `gorm:"column:stop_time"`
	// 终态处理完成标记，用于回调重放幂等
	FinalizedAt *time.Time `gorm:"column:finalized_at"`
	CreatedAt   time.Time  `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt   time.Time  `gorm:"column:updated_at;autoUpdateTime"`
}

func (ChargingSession) TableName() string { return "charging_sessions" }

// FinancialOrder 映射 financial_orders 表（每个请求唯一）
type FinancialOrder struct {
	ID          int64 `gorm:"column:id;primaryKey;autoIncrement"`
	RequestID   int64 `gorm:"column:request_id;not null;uniqueIndex"`
	CustomerID  int64 `gorm:"column:customer_id;not null"`
	SellerID    int64 `gorm:"column:seller_id;not null"`
	AmountCent  int64 `gorm:"column:amount_cent;not null"`
	// 会话结束后的实际扣款金额
	CaptureAmountCent *int64     `gorm:"column:capture_amount_cent"`
	CaptureState      string     `gorm:"column:capture_state;type:text;not null;default:'none'"`
	CaptureAttempts   int        `gorm:"column:capture_attempts;not null;default:0"`
	CaptureError      *string    `gorm:"column:capture_error;type:text"`
	CapturedAt        *time.Time `gorm:"column:captured_at"`
	CreatedAt         time.Time  `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt         time.Time  `gorm:"column:updated_at;autoUpdateTime"`
}

func (FinancialOrder) TableName() string { return "financial_orders" }

// PaymentTransaction 映射 payment_transactions 表
type PaymentTransaction struct {
	ID          int64     `gorm:"column:id;primaryKey;autoIncrement"`
	RequestID   int64     `gorm:"column:request_id;not null;index"`
	OrderID     int64     `gorm:"column:order_id;not null"`
	Provider    string    `gorm:"column:provider;type:text;not null"`
	Reference   string    `gorm:"column:reference;type:text;not null;uniqueIndex"`
	State       string    `gorm:"column:state;type:text;not null"`
	AmountCent  int64     `gorm:"column:amount_cent;not null"`
	PaymentLink *string   `gorm:"column:payment_link;type:text"`
	CreatedAt   time.Time `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt   time.Time `gorm:"column:updated_at;autoUpdateTime"`
}

func (PaymentTransaction) TableName() string { return "payment_transactions" }

// DeviceToken 映射 device_tokens 表（Expo 推送令牌）
type DeviceToken struct {
	ID         int64      `gorm:"column:id;primaryKey;autoIncrement"`
	UserID     int64      `gorm:"column:user_id;not null;index"`
	Token      string     `gorm:"column:token;type:text;not null;uniqueIndex"`
	Platform   string     `gorm:"column:platform;type:text;not null;default:'expo'"`
	Active     bool       `gorm:"column:active;not null"`
	LastUsedAt *time.Time `gorm:"column:last_used_at"`
	CreatedAt  time.Time  `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt  time.Time  `gorm:"column:updated_at;autoUpdateTime"`
}

func (DeviceToken) TableName() string { return "device_tokens" }

// PushNotification 映射 push_notifications 表（推送记录）
type PushNotification struct {
	ID            int64     `gorm:"column:id;primaryKey;autoIncrement"`
	UserID        int64     `gorm:"column:user_id;not null;index"`
	DeviceTokenID *int64    `gorm:"column:device_token_id"`
	Message       string    `gorm:"column:message;type:text;not null"`
	Status        string    `gorm:"column:status;type:text;not null"`
	TicketID      *string   `gorm:"column:ticket_id;type:text"`
	Error         *string   `gorm:"column:error;type:text"`
	CreatedAt     time.Time `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt     time.Time `gorm:"column:updated_at;autoUpdateTime"`
}

func (PushNotification) TableName() string { return "push_notifications" }

// WallboxLog 映射 wallbox_logs 表（OCPP 报文日志）
type WallboxLog struct {
	ID           int64     `gorm:"column:id;primaryKey;autoIncrement"`
	StationID    int64     `gorm:"column:station_id;not null;index"`
	Direction    string    `gorm:"column:direction;type:text;not null"` // C2S | S2C
	Message      string    `gorm:"column:message;type:text;not null"`
	Payload      string    `gorm:"column:payload;type:text"`
	NotNecessary bool      `gorm:"column:not_necessary;not null;default:false;index"`
	CreatedAt    time.Time `gorm:"column:created_at;autoCreateTime;index"`
}

func (WallboxLog) TableName() string { return "wallbox_logs" }

// All 返回全部模型（测试中 AutoMigrate 使用）
func All() []interface{} {
	return []interface{}{
		&User{}, &Vehicle{}, &ChargingStation{}, &StationPartner{}, &StationRFIDTag{},
		&ChargingRequest{}, &ChargingSession{}, &FinancialOrder{}, &PaymentTransaction{},
		&DeviceToken{}, &PushNotification{}, &WallboxLog{},
	}
}
