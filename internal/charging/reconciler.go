package charging

import (
	"context"
	"errors"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/taoyao-code/wallbox-server/internal/apperr"
	"github.com/taoyao-code/wallbox-server/internal/events"
	"github.com/taoyao-code/wallbox-server/internal/notify"
	"github.com/taoyao-code/wallbox-server/internal/payment"
	"github.com/taoyao-code/wallbox-server/internal/storage"
	"github.com/taoyao-code/wallbox-server/internal/storage/models"
)

// SessionEvent CSMS 会话回调（已完成字段解析）
type SessionEvent struct {
	TransactionID  string
	ChargerID      string
	Status         string
	CustomerID     *int64
	RequestID      *int64
	VehicleRef     *string
	MaxAmountCent  *int64
	MeterStart     *float64
	MeterStop      *float64
	TotalEnergyKWh *float64
	CostCent       *int64
	DurationSec    *int64
	StartTime      *time.Time
	StopTime       *time.Time
}

// SessionOutcome 回调处理结果
type SessionOutcome struct {
	Action        string // created | updated
	SessionID     int64
	TransactionID string
	RequestID     *int64
	Finalized     bool
}

func (ev SessionEvent) validate() error {
	var missing []string
	if strings.TrimSpace(ev.TransactionID) == "" {
		missing = append(missing, "transaction_id")
	}
	if strings.TrimSpace(ev.ChargerID) == "" {
		missing = append(missing, "charging_station_id")
	}
	if strings.TrimSpace(ev.Status) == "" {
		missing = append(missing, "status")
	}
	if len(missing) > 0 {
		return apperr.Validation("missing required fields").WithDetail("fields", missing)
	}
	if !models.IsValidSessionStatus(ev.Status) {
		return apperr.Validation("invalid session status").WithDetail("status", ev.Status)
	}
	return nil
}

// apply 只覆盖本次上报的字段；已终结的会话忽略非终态上报，且保留首个终态
func (ev SessionEvent) apply(sess *models.ChargingSession) {
	if sess.FinalizedAt != nil || models.IsTerminalSession(sess.Status) {
		if !models.IsTerminalSession(ev.Status) {
			return
		}
		ev.Status = sess.Status
	}
	sess.Status = ev.Status
	if ev.CustomerID != nil {
		sess.CustomerID = ev.CustomerID
	}
	if ev.VehicleRef != nil {
		sess.VehicleRef = ev.VehicleRef
	}
	if ev.MaxAmountCent != nil {
		sess.MaxAmountCent = ev.MaxAmountCent
	}
	if ev.MeterStart != nil {
		sess.MeterStart = ev.MeterStart
	}
	if ev.MeterStop != nil {
		sess.MeterStop = ev.MeterStop
	}
	if ev.TotalEnergyKWh != nil {
		sess.TotalEnergyKWh = ev.TotalEnergyKWh
	}
	if ev.CostCent != nil {
		sess.CostCent = ev.CostCent
	}
	if ev.DurationSec != nil {
		sess.DurationSec = ev.DurationSec
	}
	if ev.StartTime != nil {
		sess.StartTime = ev.StartTime
	}
	if ev.StopTime != nil {
		sess.StopTime = ev.StopTime
	}
}

// HandleSessionEvent 按外部交易号 upsert 会话；终态只结算一次，重放幂等
func (s *Service) HandleSessionEvent(ctx context.Context, ev SessionEvent) (*SessionOutcome, error) {
	if err := ev.validate(); err != nil {
		return nil, err
	}
	st, err := s.repo.GetStationByChargerID(ctx, ev.ChargerID)
	if err != nil {
		return nil, notFound(err, "station", ev.ChargerID)
	}

	out := &SessionOutcome{TransactionID: ev.TransactionID}
	var fx effects
	err = s.repo.WithTx(ctx, func(tx storage.Repo) error {
		fresh := &models.ChargingSession{TransactionID: ev.TransactionID, StationID: st.ID}
		ev.apply(fresh)
		created, err := tx.InsertSessionIfAbsent(ctx, fresh)
		if err != nil {
			return err
		}
		sess, err := tx.LockSessionByTransactionID(ctx, ev.TransactionID)
		if err != nil {
			return err
		}
		if created {
			out.Action = "created"
		} else {
			out.Action = "updated"
			ev.apply(sess)
		}
		out.SessionID = sess.ID

		req, err := s.linkRequest(ctx, tx, sess, ev, st)
		if err != nil {
			return err
		}
		// 已完成或取消的请求不再随会话回调变化
		open := req != nil && !models.IsTerminalRequest(req.Status)
		if req != nil {
			out.RequestID = &req.ID
		}
		if open {
			if err := s.trackOrderPrice(ctx, tx, req, sess, st); err != nil {
				return err
			}
		}

		if models.IsTerminalSession(sess.Status) {
			// 终态先于关联号到达时，会话已结束但请求仍待结算
			if open {
				out.Finalized = true
				if err := s.finalizeRequest(ctx, tx, &fx, req, sess, st); err != nil {
					return err
				}
			}
			if sess.FinalizedAt == nil {
				now := s.now()
				sess.FinalizedAt = &now
				out.Finalized = true
				s.sessionFinalized(&fx, sess, st)
			}
		}
		if err := tx.SaveSession(ctx, sess); err != nil {
			return err
		}
		if open {
			return tx.SaveRequest(ctx, req)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	fx.run(ctx)
	return out, nil
}

// linkRequest 首次带关联号时双向绑定；已绑定的沿用原请求
func (s *Service) linkRequest(ctx context.Context, tx storage.Repo, sess *models.ChargingSession, ev SessionEvent, st *models.ChargingStation) (*models.ChargingRequest, error) {
	id := sess.RequestID
	if id == nil {
		id = ev.RequestID
	}
	if id == nil {
		return nil, nil
	}
	req, err := tx.LockRequest(ctx, *id)
	if errors.Is(err, storage.ErrNotFound) {
		s.logger.Warn("session refers to unknown request", zap.String("transaction_id", sess.TransactionID), zap.Int64("request_id", *id))
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	if req.StationID != st.ID {
		s.logger.Warn("session station does not match request",
			zap.String("transaction_id", sess.TransactionID),
			zap.Int64("request_id", req.ID),
			zap.Int64("session_station_id", st.ID),
			zap.Int64("request_station_id", req.StationID))
		return nil, nil
	}
	if models.IsTerminalRequest(req.Status) {
		if req.SessionID != nil && *req.SessionID == sess.ID {
			return req, nil
		}
		s.logger.Warn("session refers to closed request, not linked",
			zap.String("transaction_id", sess.TransactionID),
			zap.Int64("request_id", req.ID),
			zap.String("request_status", req.Status))
		return nil, nil
	}
	sess.RequestID = &req.ID
	if req.SessionID == nil || *req.SessionID != sess.ID {
		req.SessionID = &sess.ID
	}
	return req, nil
}

// trackOrderPrice 订单结算金额跟随最新上报费用
func (s *Service) trackOrderPrice(ctx context.Context, tx storage.Repo, req *models.ChargingRequest, sess *models.ChargingSession, st *models.ChargingStation) error {
	if sess.CostCent == nil && sess.TotalEnergyKWh == nil {
		return nil
	}
	order, err := tx.LockOrderByRequest(ctx, req.ID)
	if errors.Is(err, storage.ErrNotFound) {
		return nil
	}
	if err != nil {
		return err
	}
	if order.CaptureState == models.CaptureDone {
		return nil
	}
	amount := CostCent(sess.CostCent, sess.TotalEnergyKWh, st.PricePerKWhCent, order.AmountCent)
	order.CaptureAmountCent = &amount
	return tx.SaveOrder(ctx, order)
}

// finalizeRequest 终态结算：登记扣款、完成请求、解锁、通知
func (s *Service) finalizeRequest(ctx context.Context, tx storage.Repo, fx *effects, req *models.ChargingRequest, sess *models.ChargingSession, st *models.ChargingStation) error {
	order, err := tx.LockOrderByRequest(ctx, req.ID)
	switch {
	case errors.Is(err, storage.ErrNotFound):
		order = nil
	case err != nil:
		return err
	}
	capture := false
	if order != nil && order.CaptureState != models.CaptureDone {
		amount := CostCent(sess.CostCent, sess.TotalEnergyKWh, st.PricePerKWhCent, order.AmountCent)
		order.CaptureAmountCent = &amount
		if req.TransactionState == models.TxAuthorized && req.TransactionID != nil {
			order.CaptureState = models.CapturePending
			capture = true
		} else {
			order.CaptureState = models.CaptureSkipped
		}
		if err := tx.SaveOrder(ctx, order); err != nil {
			return err
		}
	}

	now := s.now()
	from := req.Status
	req.Status = models.RequestCompleted
	req.CompletedAt = &now
	req.UnlockRequestedAt = &now
	s.transitioned(fx, req, from)

	requestID, requester, chargerID := req.ID, req.RequesterID, st.ChargerID
	msg := notify.MsgChargingCompleted
	if sess.Status == models.SessionFailed {
		msg = notify.MsgChargingFailed
	}
	fx.add(func(ctx context.Context) {
		if capture {
			if err := s.CaptureOrder(ctx, requestID); err != nil {
				s.logger.Warn("capture after completion failed, will retry", zap.Int64("request_id", requestID), zap.Error(err))
			}
		}
		s.unlockAfterCompleted(ctx, requestID, chargerID)
		s.notify(ctx, requester, msg)
	})
	return nil
}

func (s *Service) sessionFinalized(fx *effects, sess *models.ChargingSession, st *models.ChargingStation) {
	data := map[string]interface{}{"transaction_id": sess.TransactionID, "status": sess.Status}
	if sess.CostCent != nil {
		data["cost_cent"] = *sess.CostCent
	}
	if sess.TotalEnergyKWh != nil {
		data["total_energy_kwh"] = *sess.TotalEnergyKWh
	}
	e := events.Event{Kind: events.KindSessionFinalized, Key: sess.TransactionID, StationID: st.ID, Data: data}
	if sess.RequestID != nil {
		e.RequestID = *sess.RequestID
	}
	fx.add(func(ctx context.Context) {
		e.OccurredAt = s.now().UTC()
		if err := s.events.Publish(ctx, e); err != nil {
			s.logger.Warn("publish session finalized failed", zap.String("transaction_id", e.Key), zap.Error(err))
		}
	})
}

// CaptureOrder 对 pending/failed 订单扣款；已扣款或无需扣款时直接返回
func (s *Service) CaptureOrder(ctx context.Context, requestID int64) error {
	var captureErr error
	result := ""
	err := s.repo.WithTx(ctx, func(tx storage.Repo) error {
		order, err := tx.LockOrderByRequest(ctx, requestID)
		if err != nil {
			return notFound(err, "financial order", requestID)
		}
		if order.CaptureState != models.CapturePending && order.CaptureState != models.CaptureFailed {
			return nil
		}
		req, err := tx.GetRequest(ctx, requestID)
		if err != nil {
			return notFound(err, "charging request", requestID)
		}
		if req.TransactionID == nil {
			order.CaptureState = models.CaptureSkipped
			return tx.SaveOrder(ctx, order)
		}
		txn, err := tx.GetTransaction(ctx, *req.TransactionID)
		if err != nil {
			return notFound(err, "payment transaction", *req.TransactionID)
		}
		var amount int64
		if order.CaptureAmountCent != nil {
			amount = *order.CaptureAmountCent
		}

		gw, err := s.payments.Get(txn.Provider)
		if err == nil {
			captureErr = gw.Capture(ctx, payment.CaptureRequest{Reference: txn.Reference, AmountCent: amount})
		} else {
			captureErr = err
		}
		order.CaptureAttempts++
		if captureErr != nil {
			msg := captureErr.Error()
			order.CaptureState = models.CaptureFailed
			order.CaptureError = &msg
			result = "failed"
		} else {
			now := s.now()
			order.CaptureState = models.CaptureDone
			order.CaptureError = nil
			order.CapturedAt = &now
			txn.State = models.TxDone
			if err := tx.SaveTransaction(ctx, txn); err != nil {
				return err
			}
			result = "captured"
		}
		return tx.SaveOrder(ctx, order)
	})
	if result != "" {
		s.metrics.Capture(result)
	}
	if err != nil {
		return err
	}
	return captureErr
}

// RetryCaptures 后台重试未完成扣款，返回成功条数
func (s *Service) RetryCaptures(ctx context.Context, maxAttempts, limit int) (int, error) {
	orders, err := s.repo.ListPendingCaptures(ctx, maxAttempts, limit)
	if err != nil {
		return 0, err
	}
	done := 0
	for _, o := range orders {
		if ctx.Err() != nil {
			return done, ctx.Err()
		}
		if err := s.CaptureOrder(ctx, o.RequestID); err != nil {
			s.logger.Warn("capture retry failed", zap.Int64("request_id", o.RequestID), zap.Int("attempts", o.CaptureAttempts+1), zap.Error(err))
			continue
		}
		done++
	}
	return done, nil
}

// StuckRequests in_progress 超过 olderThan 仍未结束的请求
func (s *Service) StuckRequests(ctx context.Context, olderThan time.Duration, limit int) ([]models.ChargingRequest, error) {
	return s.repo.ListStuckRequests(ctx, s.now().Add(-olderThan), limit)
}

// TransactionUpdate 支付渠道回调
type TransactionUpdate struct {
	Reference string
	State     string
}

// HandleTransactionUpdate 更新交易状态并同步到请求；请求已终结时只更新交易
func (s *Service) HandleTransactionUpdate(ctx context.Context, in TransactionUpdate) (*models.PaymentTransaction, error) {
	if strings.TrimSpace(in.Reference) == "" {
		return nil, apperr.Validation("reference is required")
	}
	if !models.IsValidTransactionState(in.State) {
		return nil, apperr.Validation("invalid transaction state").WithDetail("state", in.State)
	}
	var out *models.PaymentTransaction
	var fx effects
	err := s.repo.WithTx(ctx, func(tx storage.Repo) error {
		txn, err := tx.GetTransactionByReference(ctx, in.Reference)
		if err != nil {
			return notFound(err, "payment transaction", in.Reference)
		}
		req, err := tx.LockRequest(ctx, txn.RequestID)
		if err != nil {
			return notFound(err, "charging request", txn.RequestID)
		}
		// 持锁后重读，避免并发回调覆盖
		if txn, err = tx.GetTransaction(ctx, txn.ID); err != nil {
			return err
		}
		out = txn
		if txn.State == in.State {
			return nil
		}
		from := txn.State
		txn.State = in.State
		if err := tx.SaveTransaction(ctx, txn); err != nil {
			return err
		}
		if models.IsTerminalRequest(req.Status) || req.TransactionID == nil || *req.TransactionID != txn.ID {
			return nil
		}
		req.TransactionState = in.State
		if err := tx.SaveRequest(ctx, req); err != nil {
			return err
		}
		s.logger.Info("transaction state updated", zap.Int64("request_id", req.ID), zap.String("from", from), zap.String("to", in.State))
		if in.State == models.TxAuthorized {
			requester := req.RequesterID
			fx.add(func(ctx context.Context) { s.notify(ctx, requester, notify.MsgPaymentAuthorized) })
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	fx.run(ctx)
	return out, nil
}
