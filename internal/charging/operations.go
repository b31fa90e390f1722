package charging

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/taoyao-code/wallbox-server/internal/apperr"
	"github.com/taoyao-code/wallbox-server/internal/csms"
	"github.com/taoyao-code/wallbox-server/internal/notify"
	"github.com/taoyao-code/wallbox-server/internal/payment"
	"github.com/taoyao-code/wallbox-server/internal/storage"
	"github.com/taoyao-code/wallbox-server/internal/storage/models"
)

// CreateInput 新建请求参数
type CreateInput struct {
	StationID       int64
	VehicleID       int64
	ScheduledAt     *time.Time
	ChargingPowerKW *float64
	PaymentMethod   *string
}

// UpdateInput 草稿修改，nil 表示不修改
type UpdateInput struct {
	VehicleID       *int64
	ScheduledAt     *time.Time
	ChargingPowerKW *float64
	PaymentMethod   *string
}

func newReference() string {
	return "CR-" + strings.ToUpper(strings.ReplaceAll(uuid.NewString(), "-", "")[:12])
}

func validatePowerAndMethod(power *float64, method *string) error {
	if power != nil && *power <= 0 {
		return apperr.Validation("charging power limit must be positive")
	}
	if method != nil && !models.IsValidPaymentMethod(*method) {
		return apperr.Validation("payment method must be 'cash' or 'pre-authorize'")
	}
	return nil
}

func requireVehicle(ctx context.Context, repo storage.Repo, vehicleID, actorID int64) error {
	v, err := repo.GetVehicle(ctx, vehicleID)
	if err != nil {
		return notFound(err, "vehicle", vehicleID)
	}
	if v.OwnerID != actorID {
		return apperr.AccessDenied("vehicle does not belong to the requester")
	}
	return nil
}

func requireRequester(req *models.ChargingRequest, actorID int64, action string) error {
	if req.RequesterID != actorID {
		return apperr.AccessDenied("only the requester can " + action)
	}
	return nil
}

// checkGuestDate 访客排期不得早于提交时间
func checkGuestDate(role Role, req *models.ChargingRequest, scheduledAt *time.Time) error {
	if role != RoleGuest || scheduledAt == nil || req.RequestedAt == nil {
		return nil
	}
	if scheduledAt.Before(*req.RequestedAt) {
		return apperr.Validation("scheduled date cannot be earlier than the requested date")
	}
	return nil
}

// Create 新建草稿
func (s *Service) Create(ctx context.Context, actorID int64, in CreateInput) (*models.ChargingRequest, error) {
	if in.StationID <= 0 || in.VehicleID <= 0 {
		return nil, apperr.Validation("station_id and vehicle_id are required")
	}
	if err := validatePowerAndMethod(in.ChargingPowerKW, in.PaymentMethod); err != nil {
		return nil, err
	}
	if _, err := s.repo.GetStation(ctx, in.StationID); err != nil {
		return nil, notFound(err, "station", in.StationID)
	}
	if err := requireVehicle(ctx, s.repo, in.VehicleID, actorID); err != nil {
		return nil, err
	}
	req := &models.ChargingRequest{
		Reference:       newReference(),
		RequesterID:     actorID,
		StationID:       in.StationID,
		VehicleID:       in.VehicleID,
		Status:          models.RequestDraft,
		PaymentMethod:   in.PaymentMethod,
		ChargingPowerKW: in.ChargingPowerKW,
		ScheduledAt:     in.ScheduledAt,
	}
	if err := s.repo.CreateRequest(ctx, req); err != nil {
		return nil, err
	}
	var fx effects
	s.transitioned(&fx, req, "")
	fx.add(func(ctx context.Context) { s.notify(ctx, req.RequesterID, notify.MsgRequestCreated) })
	fx.run(ctx)
	return req, nil
}

// Update 仅草稿可改
func (s *Service) Update(ctx context.Context, actorID, id int64, in UpdateInput) (*models.ChargingRequest, error) {
	if err := validatePowerAndMethod(in.ChargingPowerKW, in.PaymentMethod); err != nil {
		return nil, err
	}
	var out *models.ChargingRequest
	err := s.repo.WithTx(ctx, func(tx storage.Repo) error {
		req, err := tx.LockRequest(ctx, id)
		if err != nil {
			return notFound(err, "charging request", id)
		}
		if err := requireRequester(req, actorID, "edit this request"); err != nil {
			return err
		}
		if req.Status != models.RequestDraft {
			return apperr.InvalidState("only draft requests can be edited")
		}
		if in.VehicleID != nil {
			if err := requireVehicle(ctx, tx, *in.VehicleID, actorID); err != nil {
				return err
			}
			req.VehicleID = *in.VehicleID
		}
		if in.ScheduledAt != nil {
			req.ScheduledAt = in.ScheduledAt
		}
		if in.ChargingPowerKW != nil {
			req.ChargingPowerKW = in.ChargingPowerKW
		}
		if in.PaymentMethod != nil {
			req.PaymentMethod = in.PaymentMethod
		}
		out = req
		return tx.SaveRequest(ctx, req)
	})
	return out, err
}

// Delete 仅草稿可删
func (s *Service) Delete(ctx context.Context, actorID, id int64) error {
	return s.repo.WithTx(ctx, func(tx storage.Repo) error {
		req, err := tx.LockRequest(ctx, id)
		if err != nil {
			return notFound(err, "charging request", id)
		}
		if err := requireRequester(req, actorID, "delete this request"); err != nil {
			return err
		}
		if req.Status != models.RequestDraft {
			return apperr.InvalidState("only draft requests can be deleted")
		}
		return tx.DeleteRequest(ctx, id)
	})
}

// Submit 访客提交审批：draft -> requested
func (s *Service) Submit(ctx context.Context, actorID, id int64) (*models.ChargingRequest, error) {
	var out *models.ChargingRequest
	var fx effects
	err := s.repo.WithTx(ctx, func(tx storage.Repo) error {
		req, err := tx.LockRequest(ctx, id)
		if err != nil {
			return notFound(err, "charging request", id)
		}
		if err := requireRequester(req, actorID, "submit this request"); err != nil {
			return err
		}
		st, err := stationOf(ctx, tx, req)
		if err != nil {
			return err
		}
		if st == nil {
			return apperr.Validation("charging station is required")
		}
		role, err := roleOf(ctx, tx, req, st)
		if err != nil {
			return err
		}
		if role != RoleGuest {
			return apperr.RoleMismatch("owners and monthly users do not need approval")
		}
		if req.Status != models.RequestDraft {
			return apperr.InvalidState("only draft requests can be submitted for approval")
		}
		now := s.now()
		req.RequestedAt = &now
		if err := checkGuestDate(role, req, req.ScheduledAt); err != nil {
			return err
		}
		from := req.Status
		req.Status = models.RequestRequested
		if err := tx.SaveRequest(ctx, req); err != nil {
			return err
		}
		s.transitioned(&fx, req, from)
		ownerID := st.OwnerID
		fx.add(func(ctx context.Context) { s.notify(ctx, ownerID, notify.MsgRequestSubmitted) })
		out = req
		return nil
	})
	if err != nil {
		return nil, err
	}
	fx.run(ctx)
	return out, nil
}

// Approve 站主审批访客请求：requested -> approved，并按上限建单
func (s *Service) Approve(ctx context.Context, actorID, id int64, method string) (*models.ChargingRequest, error) {
	if method != "" && !models.IsValidPaymentMethod(method) {
		return nil, apperr.Validation("payment method must be 'cash' or 'pre-authorize'")
	}
	var out *models.ChargingRequest
	var fx effects
	err := s.repo.WithTx(ctx, func(tx storage.Repo) error {
		req, err := tx.LockRequest(ctx, id)
		if err != nil {
			return notFound(err, "charging request", id)
		}
		st, err := stationOf(ctx, tx, req)
		if err != nil {
			return err
		}
		if st == nil {
			return apperr.Validation("charging station is required")
		}
		if st.OwnerID != actorID {
			return apperr.AccessDenied("only the station owner can approve requests")
		}
		role, err := roleOf(ctx, tx, req, st)
		if err != nil {
			return err
		}
		if role != RoleGuest {
			return apperr.RoleMismatch("only guest requests need approval")
		}
		if req.Status != models.RequestRequested {
			return apperr.InvalidState("only requested charging requests can be approved")
		}
		if method == "" && req.PaymentMethod != nil {
			method = *req.PaymentMethod
		}
		if method == "" {
			return apperr.Validation("payment method is required")
		}
		if st.GuestMaxAmountCent <= 0 {
			return apperr.Validation("guest spend cap is not configured for this station")
		}

		order, err := s.ensureOrder(ctx, tx, req, st.OwnerID, st.GuestMaxAmountCent)
		if err != nil {
			return err
		}
		txn := &models.PaymentTransaction{RequestID: req.ID, OrderID: order.ID, AmountCent: order.AmountCent}
		var link string
		switch method {
		case models.PaymentCash:
			txn.Provider = models.ProviderManual
			txn.Reference = "CASH-" + req.Reference
			txn.State = models.TxAuthorized
		case models.PaymentPreAuthorize:
			gw, err := s.payments.Get(models.ProviderGateway)
			if err != nil {
				return err
			}
			l, err := gw.CreatePaymentLink(ctx, payment.LinkRequest{
				RequestRef: req.Reference,
				OrderID:    order.ID,
				CustomerID: req.RequesterID,
				AmountCent: order.AmountCent,
			})
			if err != nil {
				s.logger.Warn("create payment link failed", zap.Int64("request_id", req.ID), zap.Error(err))
				return err
			}
			link = l.URL
			txn.Provider = models.ProviderGateway
			txn.Reference = l.Reference
			txn.State = models.TxDraft
			txn.PaymentLink = &link
			req.PaymentLink = &link
		}
		if err := tx.CreateTransaction(ctx, txn); err != nil {
			return err
		}
		req.PaymentMethod = &method
		req.TransactionID = &txn.ID
		req.TransactionState = txn.State
		from := req.Status
		req.Status = models.RequestApproved
		if err := tx.SaveRequest(ctx, req); err != nil {
			return err
		}
		s.transitioned(&fx, req, from)
		requester := req.RequesterID
		fx.add(func(ctx context.Context) {
			s.notify(ctx, requester, notify.MsgOrderCreated)
			s.notify(ctx, requester, notify.MsgRequestApproved)
			if method == models.PaymentCash {
				s.notify(ctx, requester, notify.MsgApprovedCash)
			} else {
				s.notify(ctx, requester, notify.MsgApprovedPreAuth, link)
			}
		})
		out = req
		return nil
	})
	if err != nil {
		return nil, err
	}
	fx.run(ctx)
	return out, nil
}

// ensureOrder 每个请求至多一张订单
func (s *Service) ensureOrder(ctx context.Context, tx storage.Repo, req *models.ChargingRequest, sellerID, amountCent int64) (*models.FinancialOrder, error) {
	order, err := tx.GetOrderByRequest(ctx, req.ID)
	if err == nil {
		return order, nil
	}
	if !errors.Is(err, storage.ErrNotFound) {
		return nil, err
	}
	order = &models.FinancialOrder{
		RequestID:    req.ID,
		CustomerID:   req.RequesterID,
		SellerID:     sellerID,
		AmountCent:   amountCent,
		CaptureState: models.CaptureNone,
	}
	if err := tx.CreateOrder(ctx, order); err != nil {
		return nil, err
	}
	req.OrderID = &order.ID
	return order, nil
}

// Schedule 设定排期：访客需已审批；站主/月结用户从草稿直接排期
func (s *Service) Schedule(ctx context.Context, actorID, id int64, scheduledAt *time.Time) (*models.ChargingRequest, error) {
	var out *models.ChargingRequest
	var fx effects
	err := s.repo.WithTx(ctx, func(tx storage.Repo) error {
		req, err := tx.LockRequest(ctx, id)
		if err != nil {
			return notFound(err, "charging request", id)
		}
		if err := requireRequester(req, actorID, "schedule this request"); err != nil {
			return err
		}
		st, err := stationOf(ctx, tx, req)
		if err != nil {
			return err
		}
		if st == nil {
			return apperr.Validation("charging station is required")
		}
		role, err := roleOf(ctx, tx, req, st)
		if err != nil {
			return err
		}
		switch {
		case role == RoleGuest && (req.Status == models.RequestDraft || req.Status == models.RequestRequested):
			return apperr.InvalidState("guest requests must be approved before scheduling")
		case role == RoleGuest && req.Status != models.RequestApproved && req.Status != models.RequestScheduled:
			return apperr.InvalidState(fmt.Sprintf("cannot schedule a request in status %s", req.Status))
		case role != RoleGuest && req.Status != models.RequestDraft && req.Status != models.RequestScheduled:
			return apperr.InvalidState(fmt.Sprintf("cannot schedule a request in status %s", req.Status))
		}
		if scheduledAt == nil {
			scheduledAt = req.ScheduledAt
		}
		if scheduledAt == nil {
			return apperr.Validation("scheduled date is required")
		}
		if err := checkGuestDate(role, req, scheduledAt); err != nil {
			return err
		}
		// 月结与站主不设上限
		if _, err := s.ensureOrder(ctx, tx, req, st.OwnerID, 0); err != nil {
			return err
		}
		req.ScheduledAt = scheduledAt
		from := req.Status
		req.Status = models.RequestScheduled
		if err := tx.SaveRequest(ctx, req); err != nil {
			return err
		}
		if from != req.Status {
			s.transitioned(&fx, req, from)
		}
		requester := req.RequesterID
		fx.add(func(ctx context.Context) { s.notify(ctx, requester, notify.MsgRequestScheduled) })
		out = req
		return nil
	})
	if err != nil {
		return nil, err
	}
	fx.run(ctx)
	return out, nil
}

// Start 远程启动成功后才进入 in_progress；行锁持有至 CSMS 返回
func (s *Service) Start(ctx context.Context, actorID, id int64) (*models.ChargingRequest, error) {
	var out *models.ChargingRequest
	var fx effects
	err := s.repo.WithTx(ctx, func(tx storage.Repo) error {
		req, err := tx.LockRequest(ctx, id)
		if err != nil {
			return notFound(err, "charging request", id)
		}
		if err := requireRequester(req, actorID, "start charging"); err != nil {
			return err
		}
		st, err := stationOf(ctx, tx, req)
		if err != nil {
			return err
		}
		if st == nil || strings.TrimSpace(st.ChargerID) == "" {
			return apperr.Validation("charging station not properly configured with CSMS ID")
		}
		role, err := roleOf(ctx, tx, req, st)
		if err != nil {
			return err
		}
		if role == RoleGuest && req.TransactionState != models.TxAuthorized {
			return apperr.InvalidState("an authorized payment is required before charging")
		}
		order, err := tx.GetOrderByRequest(ctx, req.ID)
		if errors.Is(err, storage.ErrNotFound) {
			return apperr.Validation("a financial order is required before charging")
		} else if err != nil {
			return err
		}
		switch role {
		case RoleGuest:
			if req.Status != models.RequestApproved && req.Status != models.RequestScheduled {
				return apperr.InvalidState(fmt.Sprintf("cannot start charging from status %s", req.Status))
			}
		default:
			if req.Status != models.RequestScheduled {
				return apperr.InvalidState(fmt.Sprintf("cannot start charging from status %s", req.Status))
			}
		}

		var limit int64
		if role == RoleGuest {
			limit = order.AmountCent
		}
		cmd := csms.RemoteStartRequest{
			ChargerID:  st.ChargerID,
			CustomerID: req.RequesterID,
			MaxLimit:   csms.FormatCents(limit),
			RequestID:  req.ID,
		}
		if req.ChargingPowerKW != nil {
			cmd.ChargingPowerLimit = csms.FormatFloat(req.ChargingPowerKW)
		}
		res, err := s.csms.RemoteStart(ctx, cmd)
		if err != nil {
			s.logger.Warn("remote start failed", zap.Int64("request_id", req.ID), zap.String("charger_id", st.ChargerID), zap.Error(err))
			return err
		}
		if res == nil || strings.TrimSpace(res.Status) == "" {
			return apperr.External("charger did not acknowledge the start command", nil)
		}

		now := s.now()
		from := req.Status
		req.Status = models.RequestInProgress
		req.StartedAt = &now
		if err := tx.SaveRequest(ctx, req); err != nil {
			return err
		}
		s.transitioned(&fx, req, from)
		requester := req.RequesterID
		fx.add(func(ctx context.Context) { s.notify(ctx, requester, notify.MsgStartSent) })
		out = req
		return nil
	})
	if err != nil {
		return nil, err
	}
	fx.run(ctx)
	return out, nil
}

// Complete 只发送远程停止；完成状态由会话回调写入
func (s *Service) Complete(ctx context.Context, actorID, id int64) (*csms.CommandResult, error) {
	var res *csms.CommandResult
	var fx effects
	err := s.repo.WithTx(ctx, func(tx storage.Repo) error {
		req, err := tx.LockRequest(ctx, id)
		if err != nil {
			return notFound(err, "charging request", id)
		}
		if err := requireRequester(req, actorID, "stop charging"); err != nil {
			return err
		}
		if req.Status != models.RequestInProgress {
			return apperr.InvalidState("only in-progress requests can be completed")
		}
		if req.SessionID == nil {
			return apperr.Validation("no active charging session found to complete")
		}
		sess, err := tx.GetSession(ctx, *req.SessionID)
		if err != nil {
			return notFound(err, "charging session", *req.SessionID)
		}
		if models.IsTerminalSession(sess.Status) {
			return apperr.InvalidState("charging session has already ended")
		}
		st, err := stationOf(ctx, tx, req)
		if err != nil {
			return err
		}
		if st == nil || strings.TrimSpace(st.ChargerID) == "" {
			return apperr.Validation("charging station not properly configured with CSMS ID")
		}
		res, err = s.csms.RemoteStop(ctx, st.ChargerID, sess.TransactionID)
		if err != nil {
			s.logger.Warn("remote stop failed", zap.Int64("request_id", req.ID), zap.String("transaction_id", sess.TransactionID), zap.Error(err))
			return err
		}
		requester := req.RequesterID
		fx.add(func(ctx context.Context) { s.notify(ctx, requester, notify.MsgStopSent) })
		return nil
	})
	if err != nil {
		return nil, err
	}
	fx.run(ctx)
	return res, nil
}

// Cancel 站主取消任意未终结请求
func (s *Service) Cancel(ctx context.Context, actorID, id int64) (*models.ChargingRequest, error) {
	var out *models.ChargingRequest
	var fx effects
	err := s.repo.WithTx(ctx, func(tx storage.Repo) error {
		req, err := tx.LockRequest(ctx, id)
		if err != nil {
			return notFound(err, "charging request", id)
		}
		st, err := stationOf(ctx, tx, req)
		if err != nil {
			return err
		}
		if st == nil || st.OwnerID != actorID {
			return apperr.AccessDenied("only the station owner can cancel requests")
		}
		if models.IsTerminalRequest(req.Status) {
			return apperr.InvalidState(fmt.Sprintf("cannot cancel a %s request", req.Status))
		}
		now := s.now()
		from := req.Status
		req.Status = models.RequestCancelled
		req.CancelledAt = &now
		if err := tx.SaveRequest(ctx, req); err != nil {
			return err
		}
		if from == models.RequestInProgress {
			s.logger.Warn("cancelled an in-progress request, session left to the charger", zap.Int64("request_id", req.ID))
		}
		s.transitioned(&fx, req, from)
		requester := req.RequesterID
		fx.add(func(ctx context.Context) { s.notify(ctx, requester, notify.MsgRequestCancelled) })
		out = req
		return nil
	})
	if err != nil {
		return nil, err
	}
	fx.run(ctx)
	return out, nil
}

// RetryUnlock 管理端重发解锁指令，同步返回 CSMS 结果
func (s *Service) RetryUnlock(ctx context.Context, id int64) (*csms.CommandResult, error) {
	var chargerID string
	err := s.repo.WithTx(ctx, func(tx storage.Repo) error {
		req, err := tx.LockRequest(ctx, id)
		if err != nil {
			return notFound(err, "charging request", id)
		}
		if req.Status != models.RequestCompleted {
			return apperr.InvalidState("only completed requests can be unlocked")
		}
		st, err := stationOf(ctx, tx, req)
		if err != nil {
			return err
		}
		if st == nil {
			return apperr.Validation("charging station is required")
		}
		chargerID = st.ChargerID
		now := s.now()
		req.UnlockRequestedAt = &now
		return tx.SaveRequest(ctx, req)
	})
	if err != nil {
		return nil, err
	}
	return s.csms.Unlock(ctx, chargerID)
}

// ConfirmUnlock 管理端确认已解锁（幂等）
func (s *Service) ConfirmUnlock(ctx context.Context, id int64) (*models.ChargingRequest, error) {
	var out *models.ChargingRequest
	err := s.repo.WithTx(ctx, func(tx storage.Repo) error {
		req, err := tx.LockRequest(ctx, id)
		if err != nil {
			return notFound(err, "charging request", id)
		}
		if req.Status != models.RequestCompleted {
			return apperr.InvalidState("only completed requests can be unlocked")
		}
		out = req
		if req.UnlockConfirmedAt != nil {
			return nil
		}
		now := s.now()
		req.UnlockConfirmedAt = &now
		return tx.SaveRequest(ctx, req)
	})
	return out, err
}

// unlockAfterCompleted 完成后尽力解锁，失败只记录
func (s *Service) unlockAfterCompleted(ctx context.Context, requestID int64, chargerID string) {
	if _, err := s.csms.Unlock(ctx, chargerID); err != nil {
		s.logger.Warn("unlock after completion failed", zap.Int64("request_id", requestID), zap.String("charger_id", chargerID), zap.Error(err))
	}
}
