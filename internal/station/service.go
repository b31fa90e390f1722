// Package station 充电站注册与 CSMS 同步
package station

import (
	"context"
	"errors"
	"sort"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/taoyao-code/wallbox-server/internal/apperr"
	"github.com/taoyao-code/wallbox-server/internal/csms"
	"github.com/taoyao-code/wallbox-server/internal/events"
	"github.com/taoyao-code/wallbox-server/internal/storage"
	"github.com/taoyao-code/wallbox-server/internal/storage/models"
)

//go:generate mockgen -destination=mocks/csms.go -package=mocks . CSMS

// CSMS 注册表依赖的 CSMS 能力
type CSMS interface {
	Sync(ctx context.Context, s csms.StationSnapshot) (*csms.SyncResult, error)
	Reset(ctx context.Context, chargerID string, t csms.ResetType) (*csms.CommandResult, error)
	DeleteCharger(ctx context.Context, chargerID string) error
}

// Service 充电站注册表
type Service struct {
	repo   storage.Repo
	csms   CSMS
	events events.Publisher
	logger *zap.Logger
	now    func() time.Time
}

func NewService(repo storage.Repo, c CSMS, pub events.Publisher, logger *zap.Logger) *Service {
	if pub == nil {
		pub = events.NopPublisher{}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{repo: repo, csms: c, events: pub, logger: logger.Named("station"), now: time.Now}
}

// RegisterInput 注册参数；电价与访客上限在首次同步前必须给出
type RegisterInput struct {
	ChargerID             string
	Name                  string
	PricePerKWhCent       int64
	GuestMaxAmountCent    int64
	Latitude              *float64
	Longitude             *float64
	SubscriptionExpiresAt *time.Time
	RFIDTags              []csms.RFIDTag
}

// UpdateInput 局部更新，nil 表示不修改
type UpdateInput struct {
	Name                  *string
	PricePerKWhCent       *int64
	GuestMaxAmountCent    *int64
	Latitude              *float64
	Longitude             *float64
	SubscriptionExpiresAt *time.Time
}

func notFound(err error, resource string, id interface{}) error {
	if errors.Is(err, storage.ErrNotFound) {
		return apperr.NotFound(resource, id)
	}
	return err
}

func requireOwner(st *models.ChargingStation, actorID int64) error {
	if st.OwnerID != actorID {
		return apperr.AccessDenied("only the station owner can manage this station")
	}
	return nil
}

// Register 本地创建并同步到 CSMS；同步失败整体回滚
func (s *Service) Register(ctx context.Context, ownerID int64, in RegisterInput) (*models.ChargingStation, error) {
	in.ChargerID = strings.TrimSpace(in.ChargerID)
	if in.ChargerID == "" {
		return nil, apperr.Validation("charger_id is required")
	}
	if in.PricePerKWhCent <= 0 {
		return nil, apperr.Validation("price per kWh must be configured")
	}
	if in.GuestMaxAmountCent <= 0 {
		return nil, apperr.Validation("guest spend cap must be configured")
	}
	if _, err := s.repo.GetStationByChargerID(ctx, in.ChargerID); err == nil {
		return nil, apperr.Validation("charger_id already registered").WithDetail("charger_id", in.ChargerID)
	} else if !errors.Is(err, storage.ErrNotFound) {
		return nil, err
	}

	st := &models.ChargingStation{
		ChargerID:             in.ChargerID,
		OwnerID:               ownerID,
		Name:                  in.Name,
		PricePerKWhCent:       in.PricePerKWhCent,
		GuestMaxAmountCent:    in.GuestMaxAmountCent,
		Status:                "Unavailable",
		Latitude:              in.Latitude,
		Longitude:             in.Longitude,
		SubscriptionExpiresAt: in.SubscriptionExpiresAt,
	}
	var created bool
	err := s.repo.WithTx(ctx, func(tx storage.Repo) error {
		if err := tx.CreateStation(ctx, st); err != nil {
			return err
		}
		if err := tx.ReplaceRFIDTags(ctx, st.ID, toModelTags(in.RFIDTags)); err != nil {
			return err
		}
		res, err := s.syncLocked(ctx, tx, st)
		if err != nil {
			return err
		}
		created = res.Created
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.logger.Info("station registered", zap.Int64("station_id", st.ID), zap.String("charger_id", st.ChargerID), zap.Bool("created_remote", created))
	s.publishSynced(ctx, st, created)
	return st, nil
}

func (s *Service) Get(ctx context.Context, id int64) (*models.ChargingStation, error) {
	st, err := s.repo.GetStation(ctx, id)
	if err != nil {
		return nil, notFound(err, "station", id)
	}
	return st, nil
}

func (s *Service) GetByChargerID(ctx context.Context, chargerID string) (*models.ChargingStation, error) {
	st, err := s.repo.GetStationByChargerID(ctx, chargerID)
	if err != nil {
		return nil, notFound(err, "station", chargerID)
	}
	return st, nil
}

// List ownerID<=0 时返回全部
func (s *Service) List(ctx context.Context, ownerID int64, limit, offset int) ([]models.ChargingStation, error) {
	return s.repo.ListStations(ctx, ownerID, limit, offset)
}

// Details 站点及其月结伙伴、RFID 列表
func (s *Service) Details(ctx context.Context, id int64) (*models.ChargingStation, []int64, []models.StationRFIDTag, error) {
	st, err := s.Get(ctx, id)
	if err != nil {
		return nil, nil, nil, err
	}
	partners, err := s.repo.ListPartnerIDs(ctx, id)
	if err != nil {
		return nil, nil, nil, err
	}
	tags, err := s.repo.ListRFIDTags(ctx, id)
	if err != nil {
		return nil, nil, nil, err
	}
	return st, partners, tags, nil
}

// Update 电价、订阅到期、坐标变化时触发同步；名称与访客上限仅本地生效
func (s *Service) Update(ctx context.Context, actorID, id int64, in UpdateInput) (*models.ChargingStation, error) {
	var st *models.ChargingStation
	var synced bool
	err := s.repo.WithTx(ctx, func(tx storage.Repo) error {
		var err error
		st, err = tx.LockStation(ctx, id)
		if err != nil {
			return notFound(err, "station", id)
		}
		if err := requireOwner(st, actorID); err != nil {
			return err
		}

		needSync := false
		if in.Name != nil {
			st.Name = *in.Name
		}
		if in.GuestMaxAmountCent != nil {
			if *in.GuestMaxAmountCent <= 0 {
				return apperr.Validation("guest spend cap must be positive")
			}
			st.GuestMaxAmountCent = *in.GuestMaxAmountCent
		}
		if in.PricePerKWhCent != nil && *in.PricePerKWhCent != st.PricePerKWhCent {
			if *in.PricePerKWhCent <= 0 {
				return apperr.Validation("price per kWh must be positive")
			}
			st.PricePerKWhCent = *in.PricePerKWhCent
			needSync = true
		}
		if in.SubscriptionExpiresAt != nil && !timeEqual(st.SubscriptionExpiresAt, in.SubscriptionExpiresAt) {
			st.SubscriptionExpiresAt = in.SubscriptionExpiresAt
			needSync = true
		}
		if in.Latitude != nil && !floatEqual(st.Latitude, in.Latitude) {
			st.Latitude = in.Latitude
			needSync = true
		}
		if in.Longitude != nil && !floatEqual(st.Longitude, in.Longitude) {
			st.Longitude = in.Longitude
			needSync = true
		}

		if needSync {
			if _, err := s.syncLocked(ctx, tx, st); err != nil {
				return err
			}
			synced = true
			return nil
		}
		return tx.SaveStation(ctx, st)
	})
	if err != nil {
		return nil, err
	}
	if synced {
		s.publishSynced(ctx, st, false)
	}
	return st, nil
}

// SetPartners 替换月结伙伴；站主本人不计入
func (s *Service) SetPartners(ctx context.Context, actorID, id int64, userIDs []int64) ([]int64, error) {
	var out []int64
	err := s.repo.WithTx(ctx, func(tx storage.Repo) error {
		st, err := tx.LockStation(ctx, id)
		if err != nil {
			return notFound(err, "station", id)
		}
		if err := requireOwner(st, actorID); err != nil {
			return err
		}
		filtered := make([]int64, 0, len(userIDs))
		for _, uid := range userIDs {
			if uid > 0 && uid != st.OwnerID {
				filtered = append(filtered, uid)
			}
		}
		if err := tx.ReplacePartners(ctx, id, filtered); err != nil {
			return err
		}
		out, err = tx.ListPartnerIDs(ctx, id)
		return err
	})
	return out, err
}

// SetRFIDTags 替换 RFID 白名单并同步；同一 tag 以最后一次为准
func (s *Service) SetRFIDTags(ctx context.Context, actorID, id int64, tags []csms.RFIDTag) ([]models.StationRFIDTag, error) {
	var st *models.ChargingStation
	var out []models.StationRFIDTag
	err := s.repo.WithTx(ctx, func(tx storage.Repo) error {
		var err error
		st, err = tx.LockStation(ctx, id)
		if err != nil {
			return notFound(err, "station", id)
		}
		if err := requireOwner(st, actorID); err != nil {
			return err
		}
		for _, t := range tags {
			if strings.TrimSpace(t.TagID) == "" {
				return apperr.Validation("tag_id is required")
			}
		}
		if err := tx.ReplaceRFIDTags(ctx, id, toModelTags(tags)); err != nil {
			return err
		}
		if _, err := s.syncLocked(ctx, tx, st); err != nil {
			return err
		}
		out, err = tx.ListRFIDTags(ctx, id)
		return err
	})
	if err != nil {
		return nil, err
	}
	s.publishSynced(ctx, st, false)
	return out, nil
}

// Sync 手动同步
func (s *Service) Sync(ctx context.Context, actorID, id int64) (*models.ChargingStation, error) {
	var st *models.ChargingStation
	var created bool
	err := s.repo.WithTx(ctx, func(tx storage.Repo) error {
		var err error
		st, err = tx.LockStation(ctx, id)
		if err != nil {
			return notFound(err, "station", id)
		}
		if err := requireOwner(st, actorID); err != nil {
			return err
		}
		res, err := s.syncLocked(ctx, tx, st)
		if err != nil {
			return err
		}
		created = res.Created
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.publishSynced(ctx, st, created)
	return st, nil
}

// ApplyStatus CSMS 回调写入状态；这是本地状态唯一的写入口（同步镜像除外）
func (s *Service) ApplyStatus(ctx context.Context, chargerID, status string) (*models.ChargingStation, error) {
	if strings.TrimSpace(chargerID) == "" || strings.TrimSpace(status) == "" {
		return nil, apperr.Validation("charger_id and status are required")
	}
	if !models.IsValidStationStatus(status) {
		return nil, apperr.Validation("Invalid status value").WithDetail("valid", models.StationStatuses)
	}
	st, err := s.repo.GetStationByChargerID(ctx, chargerID)
	if err != nil {
		return nil, notFound(err, "station", chargerID)
	}
	if st.Status == status {
		return st, nil
	}
	if err := s.repo.UpdateStationStatus(ctx, st.ID, status); err != nil {
		return nil, err
	}
	s.logger.Info("station status updated", zap.String("charger_id", chargerID), zap.String("from", st.Status), zap.String("to", status))
	st.Status = status
	return st, nil
}

// Reset 远程重启，不改本地状态
func (s *Service) Reset(ctx context.Context, actorID, id int64, t csms.ResetType) (*csms.CommandResult, error) {
	st, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := requireOwner(st, actorID); err != nil {
		return nil, err
	}
	if !t.Valid() {
		return nil, apperr.Validation("Invalid reset type. Must be 'Soft' or 'Hard'")
	}
	return s.csms.Reset(ctx, st.ChargerID, t)
}

// Delete 先删远端再删本地
func (s *Service) Delete(ctx context.Context, actorID, id int64) error {
	return s.repo.WithTx(ctx, func(tx storage.Repo) error {
		st, err := tx.LockStation(ctx, id)
		if err != nil {
			return notFound(err, "station", id)
		}
		if err := requireOwner(st, actorID); err != nil {
			return err
		}
		if err := s.csms.DeleteCharger(ctx, st.ChargerID); err != nil {
			return err
		}
		if err := tx.DeleteStation(ctx, id); err != nil {
			return err
		}
		s.logger.Info("station deleted", zap.Int64("station_id", id), zap.String("charger_id", st.ChargerID))
		return nil
	})
}

// syncLocked 调用 CSMS 同步并把结果写回；调用方持有站点行锁
func (s *Service) syncLocked(ctx context.Context, tx storage.Repo, st *models.ChargingStation) (*csms.SyncResult, error) {
	tags, err := tx.ListRFIDTags(ctx, st.ID)
	if err != nil {
		return nil, err
	}
	res, err := s.csms.Sync(ctx, Snapshot(st, tags))
	if err != nil {
		s.logger.Warn("station sync failed", zap.String("charger_id", st.ChargerID), zap.Error(err))
		return nil, err
	}
	if models.IsValidStationStatus(res.Status) {
		st.Status = res.Status
	}
	if res.WSURL != "" {
		ws := res.WSURL
		st.WSURL = &ws
	}
	now := s.now()
	st.LastSyncedAt = &now
	if err := tx.SaveStation(ctx, st); err != nil {
		return nil, err
	}
	return res, nil
}

func (s *Service) publishSynced(ctx context.Context, st *models.ChargingStation, created bool) {
	err := s.events.Publish(ctx, events.Event{
		Kind:       events.KindStationSynced,
		Key:        st.ChargerID,
		StationID:  st.ID,
		OccurredAt: s.now().UTC(),
		Data:       map[string]interface{}{"created": created, "status": st.Status},
	})
	if err != nil {
		s.logger.Warn("publish station.synced failed", zap.Int64("station_id", st.ID), zap.Error(err))
	}
}

// Snapshot 本地站点 -> 同步快照
func Snapshot(st *models.ChargingStation, tags []models.StationRFIDTag) csms.StationSnapshot {
	out := csms.StationSnapshot{
		LocalID:               st.ID,
		OwnerID:               st.OwnerID,
		ChargerID:             st.ChargerID,
		PricePerKWhCent:       st.PricePerKWhCent,
		SubscriptionExpiresAt: st.SubscriptionExpiresAt,
		Latitude:              st.Latitude,
		Longitude:             st.Longitude,
		RFIDTags:              make([]csms.RFIDTag, 0, len(tags)),
	}
	for _, t := range tags {
		out.RFIDTags = append(out.RFIDTags, csms.RFIDTag{TagID: t.TagID, IsAllowed: t.IsAllowed})
	}
	return out
}

func toModelTags(in []csms.RFIDTag) []models.StationRFIDTag {
	byID := make(map[string]bool, len(in))
	for _, t := range in {
		byID[strings.TrimSpace(t.TagID)] = t.IsAllowed
	}
	out := make([]models.StationRFIDTag, 0, len(byID))
	for id, allowed := range byID {
		if id == "" {
			continue
		}
		out = append(out, models.StationRFIDTag{TagID: id, IsAllowed: allowed})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].TagID < out[j].TagID })
	return out
}

func timeEqual(a, b *time.Time) bool {
	if a == nil || b == nil {
		return a == b
	}
	return a.Equal(*b)
}

func floatEqual(a, b *float64) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}
