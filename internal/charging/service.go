// Package charging 充电请求状态机、会话对账与审批/支付判定
package charging

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/taoyao-code/wallbox-server/internal/apperr"
	"github.com/taoyao-code/wallbox-server/internal/csms"
	"github.com/taoyao-code/wallbox-server/internal/events"
	"github.com/taoyao-code/wallbox-server/internal/metrics"
	"github.com/taoyao-code/wallbox-server/internal/notify"
	"github.com/taoyao-code/wallbox-server/internal/payment"
	"github.com/taoyao-code/wallbox-server/internal/storage"
	"github.com/taoyao-code/wallbox-server/internal/storage/models"
)

//go:generate mockgen -destination=mocks/deps.go -package=mocks . CSMS,Notifier

// CSMS 状态机用到的远程指令
type CSMS interface {
	RemoteStart(ctx context.Context, r csms.RemoteStartRequest) (*csms.CommandResult, error)
	RemoteStop(ctx context.Context, chargerID, transactionID string) (*csms.CommandResult, error)
	Unlock(ctx context.Context, chargerID string) (*csms.CommandResult, error)
}

// Notifier 推送；返回 false 只记录，不影响业务
type Notifier interface {
	Notify(ctx context.Context, userID int64, message string) bool
}

// Deps 服务依赖；Events/Messages/Metrics/Logger 可为空
type Deps struct {
	Repo     storage.Repo
	CSMS     CSMS
	Notifier Notifier
	Payments payment.Providers
	Events   events.Publisher
	Messages *notify.Catalog
	Metrics  *metrics.AppMetrics
	Logger   *zap.Logger
}

// Service 充电请求编排
type Service struct {
	repo     storage.Repo
	csms     CSMS
	notifier Notifier
	payments payment.Providers
	events   events.Publisher
	msgs     *notify.Catalog
	metrics  *metrics.AppMetrics
	logger   *zap.Logger
	now      func() time.Time
}

func NewService(d Deps) *Service {
	s := &Service{
		repo:     d.Repo,
		csms:     d.CSMS,
		notifier: d.Notifier,
		payments: d.Payments,
		events:   d.Events,
		msgs:     d.Messages,
		metrics:  d.Metrics,
		logger:   d.Logger,
		now:      time.Now,
	}
	if s.events == nil {
		s.events = events.NopPublisher{}
	}
	if s.msgs == nil {
		s.msgs = notify.DefaultCatalog()
	}
	if s.logger == nil {
		s.logger = zap.NewNop()
	}
	s.logger = s.logger.Named("charging")
	if s.payments == nil {
		s.payments = payment.NewProviders(nil)
	}
	return s
}

// effects 事务提交后执行的尽力而为副作用
type effects []func(ctx context.Context)

func (e *effects) add(fn func(ctx context.Context)) { *e = append(*e, fn) }

func (e effects) run(ctx context.Context) {
	for _, fn := range e {
		fn(ctx)
	}
}

func notFound(err error, resource string, id interface{}) error {
	if errors.Is(err, storage.ErrNotFound) {
		return apperr.NotFound(resource, id)
	}
	return err
}

// roleOf 按站点当前伙伴名单计算
func roleOf(ctx context.Context, repo storage.Repo, req *models.ChargingRequest, st *models.ChargingStation) (Role, error) {
	partners, err := repo.ListPartnerIDs(ctx, st.ID)
	if err != nil {
		return "", err
	}
	return ClassifyRole(req.RequesterID, st.OwnerID, partners), nil
}

// stationOf 站点已删除时返回 nil
func stationOf(ctx context.Context, repo storage.Repo, req *models.ChargingRequest) (*models.ChargingStation, error) {
	st, err := repo.GetStation(ctx, req.StationID)
	if errors.Is(err, storage.ErrNotFound) {
		return nil, nil
	}
	return st, err
}

func (s *Service) notify(ctx context.Context, userID int64, key string, args ...interface{}) {
	if s.notifier == nil {
		return
	}
	if !s.notifier.Notify(ctx, userID, s.msgs.Text(key, args...)) {
		s.logger.Debug("notification not delivered", zap.Int64("user_id", userID), zap.String("message", key))
	}
}

// transitioned 提交后记录指标并发布事件
func (s *Service) transitioned(fx *effects, req *models.ChargingRequest, from string) {
	to := req.Status
	snapshot := *req
	fx.add(func(ctx context.Context) {
		s.metrics.Transition(from, to)
		s.logger.Info("request transitioned",
			zap.Int64("request_id", snapshot.ID),
			zap.String("reference", snapshot.Reference),
			zap.String("from", from),
			zap.String("to", to))
		err := s.events.Publish(ctx, events.Event{
			Kind:       events.KindRequestTransitioned,
			Key:        snapshot.Reference,
			RequestID:  snapshot.ID,
			StationID:  snapshot.StationID,
			From:       from,
			To:         to,
			OccurredAt: s.now().UTC(),
			Data:       map[string]interface{}{"requester_id": snapshot.RequesterID},
		})
		if err != nil {
			s.logger.Warn("publish transition failed", zap.Int64("request_id", snapshot.ID), zap.Error(err))
		}
	})
}

// RequestView 请求详情：角色与按钮状态实时计算
type RequestView struct {
	Request *models.ChargingRequest
	Station *models.ChargingStation
	Order   *models.FinancialOrder
	Session *models.ChargingSession
	Role    Role
	Gate    Gate
	// 访客上限对应的可充电量
	EstimatedMaxEnergyKWh float64
}

// Get 请求人或站主可见
func (s *Service) Get(ctx context.Context, actorID, id int64) (*models.ChargingRequest, error) {
	v, err := s.View(ctx, actorID, id)
	if err != nil {
		return nil, err
	}
	return v.Request, nil
}

func (s *Service) View(ctx context.Context, actorID, id int64) (*RequestView, error) {
	req, err := s.repo.GetRequest(ctx, id)
	if err != nil {
		return nil, notFound(err, "charging request", id)
	}
	v, err := s.buildView(ctx, req)
	if err != nil {
		return nil, err
	}
	if req.RequesterID != actorID && (v.Station == nil || v.Station.OwnerID != actorID) {
		return nil, apperr.AccessDenied("you are not allowed to view this charging request")
	}
	return v, nil
}

func (s *Service) buildView(ctx context.Context, req *models.ChargingRequest) (*RequestView, error) {
	v := &RequestView{Request: req, Role: RoleGuest}
	st, err := stationOf(ctx, s.repo, req)
	if err != nil {
		return nil, err
	}
	v.Station = st
	if st != nil {
		if v.Role, err = roleOf(ctx, s.repo, req, st); err != nil {
			return nil, err
		}
		if v.Role == RoleGuest {
			v.EstimatedMaxEnergyKWh = EstimateEnergyKWh(st.GuestMaxAmountCent, st.PricePerKWhCent)
		}
	}
	order, err := s.repo.GetOrderByRequest(ctx, req.ID)
	switch {
	case err == nil:
		v.Order = order
	case !errors.Is(err, storage.ErrNotFound):
		return nil, err
	}
	if req.SessionID != nil {
		sess, err := s.repo.GetSession(ctx, *req.SessionID)
		if err != nil && !errors.Is(err, storage.ErrNotFound) {
			return nil, err
		}
		v.Session = sess
	}
	v.Gate = Evaluate(gateInput(req, v.Role, st != nil, v.Order != nil))
	return v, nil
}

func gateInput(req *models.ChargingRequest, role Role, stationExists, hasOrder bool) GateInput {
	in := GateInput{
		Role:             role,
		Status:           req.Status,
		StationExists:    stationExists,
		HasOrder:         hasOrder,
		TransactionState: req.TransactionState,
	}
	if req.PaymentMethod != nil {
		in.PaymentMethod = *req.PaymentMethod
	}
	if req.PaymentLink != nil {
		in.PaymentLink = *req.PaymentLink
	}
	return in
}

// ListMine 请求人自己的请求
func (s *Service) ListMine(ctx context.Context, actorID int64, limit, offset int) ([]RequestView, error) {
	list, err := s.repo.ListRequestsByRequester(ctx, actorID, limit, offset)
	if err != nil {
		return nil, err
	}
	return s.views(ctx, list)
}

// ListForOwner 站主收到的请求
func (s *Service) ListForOwner(ctx context.Context, actorID int64, limit, offset int) ([]RequestView, error) {
	list, err := s.repo.ListRequestsByOwner(ctx, actorID, limit, offset)
	if err != nil {
		return nil, err
	}
	return s.views(ctx, list)
}

func (s *Service) views(ctx context.Context, list []models.ChargingRequest) ([]RequestView, error) {
	out := make([]RequestView, 0, len(list))
	for i := range list {
		v, err := s.buildView(ctx, &list[i])
		if err != nil {
			return nil, err
		}
		out = append(out, *v)
	}
	return out, nil
}
