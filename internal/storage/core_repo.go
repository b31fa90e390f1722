package storage

import (
	"context"
	"errors"
	"time"

	"github.com/taoyao-code/wallbox-server/internal/storage/models"
)

// ErrNotFound 记录不存在（实现层统一转换，屏蔽具体 ORM 错误）
var ErrNotFound = errors.New("storage: record not found")

// UserRepository 用户与车辆
type UserRepository interface {
	CreateUser(ctx context.Context, u *models.User) error
	GetUser(ctx context.Context, id int64) (*models.User, error)
	CreateVehicle(ctx context.Context, v *models.Vehicle) error
	GetVehicle(ctx context.Context, id int64) (*models.Vehicle, error)
}

// StationRepository 充电站、月结伙伴与 RFID
type StationRepository interface {
	CreateStation(ctx context.Context, s *models.ChargingStation) error
	GetStation(ctx context.Context, id int64) (*models.ChargingStation, error)
	GetStationByChargerID(ctx context.Context, chargerID string) (*models.ChargingStation, error)
	// LockStation 行锁读取（SELECT ... FOR UPDATE），必须在事务内调用
	LockStation(ctx context.Context, id int64) (*models.ChargingStation, error)
	SaveStation(ctx context.Context, s *models.ChargingStation) error
	UpdateStationStatus(ctx context.Context, id int64, status string) error
	DeleteStation(ctx context.Context, id int64) error
	ListStations(ctx context.Context, ownerID int64, limit, offset int) ([]models.ChargingStation, error)

	ListPartnerIDs(ctx context.Context, stationID int64) ([]int64, error)
	ReplacePartners(ctx context.Context, stationID int64, userIDs []int64) error
	ListRFIDTags(ctx context.Context, stationID int64) ([]models.StationRFIDTag, error)
	ReplaceRFIDTags(ctx context.Context, stationID int64, tags []models.StationRFIDTag) error
}

// RequestRepository 充电请求（聚合根）
type RequestRepository interface {
	CreateRequest(ctx context.Context, r *models.ChargingRequest) error
	GetRequest(ctx context.Context, id int64) (*models.ChargingRequest, error)
	// LockRequest 行锁读取，保证同一请求的状态迁移串行化
	LockRequest(ctx context.Context, id int64) (*models.ChargingRequest, error)
	SaveRequest(ctx context.Context, r *models.ChargingRequest) error
	DeleteRequest(ctx context.Context, id int64) error
	ListRequestsByRequester(ctx context.Context, requesterID int64, limit, offset int) ([]models.ChargingRequest, error)
	// ListRequestsByOwner 站主名下所有站点收到的请求（排除请求人本人）
	ListRequestsByOwner(ctx context.Context, ownerID int64, limit, offset int) ([]models.ChargingRequest, error)
	// ListStuckRequests in_progress 且 started_at 早于 before 的请求
	ListStuckRequests(ctx context.Context, before time.Time, limit int) ([]models.ChargingRequest, error)
}

// SessionRepository 充电会话（外部交易号为业务键）
type SessionRepository interface {
	GetSession(ctx context.Context, id int64) (*models.ChargingSession, error)
	GetSessionByTransactionID(ctx context.Context, txnID string) (*models.ChargingSession, error)
	LockSessionByTransactionID(ctx context.Context, txnID string) (*models.ChargingSession, error)
	// InsertSessionIfAbsent 冲突时不插入，返回是否新建
	InsertSessionIfAbsent(ctx context.Context, s *models.ChargingSession) (bool, error)
	SaveSession(ctx context.Context, s *models.ChargingSession) error
}

// OrderRepository 财务订单与支付交易
type OrderRepository interface {
	CreateOrder(ctx context.Context, o *models.FinancialOrder) error
	GetOrderByRequest(ctx context.Context, requestID int64) (*models.FinancialOrder, error)
	LockOrderByRequest(ctx context.Context, requestID int64) (*models.FinancialOrder, error)
	SaveOrder(ctx context.Context, o *models.FinancialOrder) error
	// ListPendingCaptures capture_state 为 pending/failed 且尝试次数未超限
	ListPendingCaptures(ctx context.Context, maxAttempts, limit int) ([]models.FinancialOrder, error)

	CreateTransaction(ctx context.Context, t *models.PaymentTransaction) error
	GetTransaction(ctx context.Context, id int64) (*models.PaymentTransaction, error)
	GetTransactionByReference(ctx context.Context, ref string) (*models.PaymentTransaction, error)
	SaveTransaction(ctx context.Context, t *models.PaymentTransaction) error
}

// NotificationRepository 推送令牌与推送记录
type NotificationRepository interface {
	UpsertDeviceToken(ctx context.Context, t *models.DeviceToken) error
	ListActiveDeviceTokens(ctx context.Context, userID int64) ([]models.DeviceToken, error)
	DeactivateDeviceToken(ctx context.Context, token string) error
	CreatePushNotification(ctx context.Context, n *models.PushNotification) error
	SavePushNotification(ctx context.Context, n *models.PushNotification) error
}

// LogRepository 充电桩报文日志
type LogRepository interface {
	AppendWallboxLog(ctx context.Context, l *models.WallboxLog) error
	DeleteUnnecessaryLogs(ctx context.Context, before time.Time) (int64, error)
}

// Repo 业务存储抽象。
// 约束：
// - 上层禁止直接写 SQL，统一通过本接口访问
// - WithTx 提供显式工作单元，fn 内所有读写处于同一事务
// - 嵌套调用复用当前事务
type Repo interface {
	WithTx(ctx context.Context, fn func(repo Repo) error) error

	UserRepository
	StationRepository
	RequestRepository
	SessionRepository
	OrderRepository
	NotificationRepository
	LogRepository
}
