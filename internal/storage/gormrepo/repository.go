package gormrepo

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/taoyao-code/wallbox-server/internal/storage"
	"github.com/taoyao-code/wallbox-server/internal/storage/models"
)

// Repository 基于 GORM 的 storage.Repo 实现。
// 使用 isTx 标记区分事务上下文，避免嵌套事务重复 Begin/Commit。
type Repository struct {
	db   *gorm.DB
	isTx bool
}

// New 返回一个使用给定 *gorm.DB 的 Repo 实例。
func New(db *gorm.DB) *Repository {
	return &Repository{db: db}
}

var _ storage.Repo = (*Repository)(nil)

// WithTx 复用现有事务或开启新事务执行 fn。
func (r *Repository) WithTx(ctx context.Context, fn func(storage.Repo) error) error {
	if r.isTx {
		return fn(r)
	}

	tx := r.db.WithContext(ctx).Begin()
	if tx.Error != nil {
		return tx.Error
	}

	child := &Repository{db: tx, isTx: true}
	if err := fn(child); err != nil {
		_ = tx.Rollback()
		return err
	}
	return tx.Commit().Error
}

// notFound 将 gorm 的未找到错误转换为 storage.ErrNotFound
func notFound(err error) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return storage.ErrNotFound
	}
	return err
}

func forUpdate() clause.Locking {
	return clause.Locking{Strength: "UPDATE"}
}

// ---------- 用户/车辆 ----------

func (r *Repository) CreateUser(ctx context.Context, u *models.User) error {
	return r.db.WithContext(ctx).Create(u).Error
}

func (r *Repository) GetUser(ctx context.Context, id int64) (*models.User, error) {
	var u models.User
	if err := r.db.WithContext(ctx).Where("id = ?", id).Take(&u).Error; err != nil {
		return nil, notFound(err)
	}
	return &u, nil
}

func (r *Repository) CreateVehicle(ctx context.Context, v *models.Vehicle) error {
	return r.db.WithContext(ctx).Create(v).Error
}

func (r *Repository) GetVehicle(ctx context.Context, id int64) (*models.Vehicle, error) {
	var v models.Vehicle
	if err := r.db.WithContext(ctx).Where("id = ?", id).Take(&v).Error; err != nil {
		return nil, notFound(err)
	}
	return &v, nil
}

// ---------- 充电站 ----------

func (r *Repository) CreateStation(ctx context.Context, s *models.ChargingStation) error {
	return r.db.WithContext(ctx).Create(s).Error
}

func (r *Repository) GetStation(ctx context.Context, id int64) (*models.ChargingStation, error) {
	var s models.ChargingStation
	if err := r.db.WithContext(ctx).Where("id = ?", id).Take(&s).Error; err != nil {
		return nil, notFound(err)
	}
	return &s, nil
}

// GetStationByChargerID 通过 CSMS 充电桩编号查询。
func (r *Repository) GetStationByChargerID(ctx context.Context, chargerID string) (*models.ChargingStation, error) {
	var s models.ChargingStation
	if err := r.db.WithContext(ctx).Where("charger_id = ?", chargerID).Take(&s).Error; err != nil {
		return nil, notFound(err)
	}
	return &s, nil
}

// LockStation 行锁定充电站记录。
func (r *Repository) LockStation(ctx context.Context, id int64) (*models.ChargingStation, error) {
	var s models.ChargingStation
	err := r.db.WithContext(ctx).
		Clauses(forUpdate()).
		Where("id = ?", id).
		Take(&s).Error
	if err != nil {
		return nil, notFound(err)
	}
	return &s, nil
}

func (r *Repository) SaveStation(ctx context.Context, s *models.ChargingStation) error {
	return r.db.WithContext(ctx).Save(s).Error
}

// UpdateStationStatus 仅更新状态字段。
func (r *Repository) UpdateStationStatus(ctx context.Context, id int64, status string) error {
	res := r.db.WithContext(ctx).
		Model(&models.ChargingStation{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{
			"status":     status,
			"updated_at": time.Now(),
		})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return storage.ErrNotFound
	}
	return nil
}

// DeleteStation 删除充电站及其伙伴、RFID 关联。
func (r *Repository) DeleteStation(ctx context.Context, id int64) error {
	return r.WithTx(ctx, func(repo storage.Repo) error {
		tx := repo.(*Repository).db.WithContext(ctx)
		if err := tx.Where("station_id = ?", id).Delete(&models.StationPartner{}).Error; err != nil {
			return err
		}
		if err := tx.Where("station_id = ?", id).Delete(&models.StationRFIDTag{}).Error; err != nil {
			return err
		}
		res := tx.Where("id = ?", id).Delete(&models.ChargingStation{})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return storage.ErrNotFound
		}
		return nil
	})
}

// ListStations 分页返回充电站；ownerID 为 0 时不过滤。
func (r *Repository) ListStations(ctx context.Context, ownerID int64, limit, offset int) ([]models.ChargingStation, error) {
	var out []models.ChargingStation
	q := r.db.WithContext(ctx).Order("id DESC")
	if ownerID > 0 {
		q = q.Where("owner_id = ?", ownerID)
	}
	q = paginate(q, limit, offset)
	if err := q.Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}

func (r *Repository) ListPartnerIDs(ctx context.Context, stationID int64) ([]int64, error) {
	var ids []int64
	err := r.db.WithContext(ctx).
		Model(&models.StationPartner{}).
		Where("station_id = ?", stationID).
		Order("user_id").
		Pluck("user_id", &ids).Error
	return ids, err
}

// ReplacePartners 全量替换月结伙伴集合。
func (r *Repository) ReplacePartners(ctx context.Context, stationID int64, userIDs []int64) error {
	return r.WithTx(ctx, func(repo storage.Repo) error {
		tx := repo.(*Repository).db.WithContext(ctx)
		if err := tx.Where("station_id = ?", stationID).Delete(&models.StationPartner{}).Error; err != nil {
			return err
		}
		if len(userIDs) == 0 {
			return nil
		}
		rows := make([]models.StationPartner, 0, len(userIDs))
		seen := make(map[int64]struct{}, len(userIDs))
		for _, id := range userIDs {
			if _, dup := seen[id]; dup {
				continue
			}
			seen[id] = struct{}{}
			rows = append(rows, models.StationPartner{StationID: stationID, UserID: id})
		}
		return tx.Create(&rows).Error
	})
}

func (r *Repository) ListRFIDTags(ctx context.Context, stationID int64) ([]models.StationRFIDTag, error) {
	var tags []models.StationRFIDTag
	err := r.db.WithContext(ctx).
		Where("station_id = ?", stationID).
		Order("tag_id").
		Find(&tags).Error
	return tags, err
}

// ReplaceRFIDTags 全量替换 RFID 标签。
func (r *Repository) ReplaceRFIDTags(ctx context.Context, stationID int64, tags []models.StationRFIDTag) error {
	return r.WithTx(ctx, func(repo storage.Repo) error {
		tx := repo.(*Repository).db.WithContext(ctx)
		if err := tx.Where("station_id = ?", stationID).Delete(&models.StationRFIDTag{}).Error; err != nil {
			return err
		}
		if len(tags) == 0 {
			return nil
		}
		rows := make([]models.StationRFIDTag, 0, len(tags))
		for _, t := range tags {
			rows = append(rows, models.StationRFIDTag{StationID: stationID, TagID: t.TagID, IsAllowed: t.IsAllowed})
		}
		return tx.Create(&rows).Error
	})
}

// ---------- 充电请求 ----------

func (r *Repository) CreateRequest(ctx context.Context, req *models.ChargingRequest) error {
	return r.db.WithContext(ctx).Create(req).Error
}

func (r *Repository) GetRequest(ctx context.Context, id int64) (*models.ChargingRequest, error) {
	var req models.ChargingRequest
	if err := r.db.WithContext(ctx).Where("id = ?", id).Take(&req).Error; err != nil {
		return nil, notFound(err)
	}
	return &req, nil
}

// LockRequest 行锁定充电请求。
func (r *Repository) LockRequest(ctx context.Context, id int64) (*models.ChargingRequest, error) {
	var req models.ChargingRequest
	err := r.db.WithContext(ctx).
		Clauses(forUpdate()).
		Where("id = ?", id).
		Take(&req).Error
	if err != nil {
		return nil, notFound(err)
	}
	return &req, nil
}

func (r *Repository) SaveRequest(ctx context.Context, req *models.ChargingRequest) error {
	return r.db.WithContext(ctx).Save(req).Error
}

func (r *Repository) DeleteRequest(ctx context.Context, id int64) error {
	res := r.db.WithContext(ctx).Where("id = ?", id).Delete(&models.ChargingRequest{})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return storage.ErrNotFound
	}
	return nil
}

func (r *Repository) ListRequestsByRequester(ctx context.Context, requesterID int64, limit, offset int) ([]models.ChargingRequest, error) {
	var out []models.ChargingRequest
	q := r.db.WithContext(ctx).Where("requester_id = ?", requesterID).Order("id DESC")
	if err := paginate(q, limit, offset).Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}

func (r *Repository) ListRequestsByOwner(ctx context.Context, ownerID int64, limit, offset int) ([]models.ChargingRequest, error) {
	var out []models.ChargingRequest
	q := r.db.WithContext(ctx).
		Model(&models.ChargingRequest{}).
		Select("charging_requests.*").
		Joins("JOIN charging_stations ON charging_stations.id = charging_requests.station_id").
		Where("charging_stations.owner_id = ? AND charging_requests.requester_id <> ?", ownerID, ownerID).
		Order("charging_requests.id DESC")
	if err := paginate(q, limit, offset).Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}

func (r *Repository) ListStuckRequests(ctx context.Context, before time.Time, limit int) ([]models.ChargingRequest, error) {
	var out []models.ChargingRequest
	q := r.db.WithContext(ctx).
		Where("status = ? AND started_at IS NOT NULL AND started_at < ?", models.RequestInProgress, before).
		Order("started_at")
	if err := paginate(q, limit, 0).Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}

// ---------- 充电会话 ----------

func (r *Repository) GetSession(ctx context.Context, id int64) (*models.ChargingSession, error) {
	var s models.ChargingSession
	if err := r.db.WithContext(ctx).Where("id = ?", id).Take(&s).Error; err != nil {
		return nil, notFound(err)
	}
	return &s, nil
}

func (r *Repository) GetSessionByTransactionID(ctx context.Context, txnID string) (*models.ChargingSession, error) {
	var s models.ChargingSession
	if err := r.db.WithContext(ctx).Where("transaction_id = ?", txnID).Take(&s).Error; err != nil {
		return nil, notFound(err)
	}
	return &s, nil
}

// LockSessionByTransactionID 行锁定会话，串行化同一交易的回调处理。
func (r *Repository) LockSessionByTransactionID(ctx context.Context, txnID string) (*models.ChargingSession, error) {
	var s models.ChargingSession
	err := r.db.WithContext(ctx).
		Clauses(forUpdate()).
		Where("transaction_id = ?", txnID).
		Take(&s).Error
	if err != nil {
		return nil, notFound(err)
	}
	return &s, nil
}

// InsertSessionIfAbsent 以 transaction_id 冲突为界插入，返回是否新建。
func (r *Repository) InsertSessionIfAbsent(ctx context.Context, s *models.ChargingSession) (bool, error) {
	res := r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "transaction_id"}},
			DoNothing: true,
		}).
		Create(s)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

func (r *Repository) SaveSession(ctx context.Context, s *models.ChargingSession) error {
	return r.db.WithContext(ctx).Save(s).Error
}

// ---------- 订单/交易 ----------

func (r *Repository) CreateOrder(ctx context.Context, o *models.FinancialOrder) error {
	return r.db.WithContext(ctx).Create(o).Error
}

func (r *Repository) GetOrderByRequest(ctx context.Context, requestID int64) (*models.FinancialOrder, error) {
	var o models.FinancialOrder
	if err := r.db.WithContext(ctx).Where("request_id = ?", requestID).Take(&o).Error; err != nil {
		return nil, notFound(err)
	}
	return &o, nil
}

func (r *Repository) LockOrderByRequest(ctx context.Context, requestID int64) (*models.FinancialOrder, error) {
	var o models.FinancialOrder
	err := r.db.WithContext(ctx).
		Clauses(forUpdate()).
		Where("request_id = ?", requestID).
		Take(&o).Error
	if err != nil {
		return nil, notFound(err)
	}
	return &o, nil
}

func (r *Repository) SaveOrder(ctx context.Context, o *models.FinancialOrder) error {
	return r.db.WithContext(ctx).Save(o).Error
}

func (r *Repository) ListPendingCaptures(ctx context.Context, maxAttempts, limit int) ([]models.FinancialOrder, error) {
	var out []models.FinancialOrder
	q := r.db.WithContext(ctx).
		Where("capture_state IN ? AND capture_attempts < ?", []string{models.CapturePending, models.CaptureFailed}, maxAttempts).
		Order("updated_at")
	if err := paginate(q, limit, 0).Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}

func (r *Repository) CreateTransaction(ctx context.Context, t *models.PaymentTransaction) error {
	return r.db.WithContext(ctx).Create(t).Error
}

func (r *Repository) GetTransaction(ctx context.Context, id int64) (*models.PaymentTransaction, error) {
	var t models.PaymentTransaction
	if err := r.db.WithContext(ctx).Where("id = ?", id).Take(&t).Error; err != nil {
		return nil, notFound(err)
	}
	return &t, nil
}

func (r *Repository) GetTransactionByReference(ctx context.Context, ref string) (*models.PaymentTransaction, error) {
	var t models.PaymentTransaction
	if err := r.db.WithContext(ctx).Where("reference = ?", ref).Take(&t).Error; err != nil {
		return nil, notFound(err)
	}
	return &t, nil
}

func (r *Repository) SaveTransaction(ctx context.Context, t *models.PaymentTransaction) error {
	return r.db.WithContext(ctx).Save(t).Error
}

// ---------- 推送 ----------

// UpsertDeviceToken 令牌已存在时重新绑定用户并激活。
func (r *Repository) UpsertDeviceToken(ctx context.Context, t *models.DeviceToken) error {
	now := time.Now()
	t.Active = true
	t.LastUsedAt = &now
	return r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns: []clause.Column{{Name: "token"}},
			DoUpdates: clause.Assignments(map[string]interface{}{
				"user_id":      gorm.Expr("excluded.user_id"),
				"platform":     gorm.Expr("excluded.platform"),
				"active":       true,
				"last_used_at": now,
				"updated_at":   now,
			}),
		}).
		Create(t).Error
}

func (r *Repository) ListActiveDeviceTokens(ctx context.Context, userID int64) ([]models.DeviceToken, error) {
	var out []models.DeviceToken
	err := r.db.WithContext(ctx).
		Where("user_id = ? AND active = ?", userID, true).
		Order("id").
		Find(&out).Error
	return out, err
}

// DeactivateDeviceToken 推送服务返回 DeviceNotRegistered 时停用令牌。
func (r *Repository) DeactivateDeviceToken(ctx context.Context, token string) error {
	return r.db.WithContext(ctx).
		Model(&models.DeviceToken{}).
		Where("token = ?", token).
		Updates(map[string]interface{}{"active": false, "updated_at": time.Now()}).Error
}

func (r *Repository) CreatePushNotification(ctx context.Context, n *models.PushNotification) error {
	return r.db.WithContext(ctx).Create(n).Error
}

func (r *Repository) SavePushNotification(ctx context.Context, n *models.PushNotification) error {
	return r.db.WithContext(ctx).Save(n).Error
}

// ---------- 报文日志 ----------

func (r *Repository) AppendWallboxLog(ctx context.Context, l *models.WallboxLog) error {
	return r.db.WithContext(ctx).Create(l).Error
}

// DeleteUnnecessaryLogs 清理标记为 not_necessary 且早于 before 的日志。
func (r *Repository) DeleteUnnecessaryLogs(ctx context.Context, before time.Time) (int64, error) {
	res := r.db.WithContext(ctx).
		Where("not_necessary = ? AND created_at < ?", true, before).
		Delete(&models.WallboxLog{})
	return res.RowsAffected, res.Error
}

func paginate(q *gorm.DB, limit, offset int) *gorm.DB {
	if limit > 0 {
		q = q.Limit(limit)
	}
	if offset > 0 {
		q = q.Offset(offset)
	}
	return q
}
