// Package notify 推送通知：异步队列 + Expo 通道
package notify

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/taoyao-code/wallbox-server/internal/apperr"
	"github.com/taoyao-code/wallbox-server/internal/metrics"
	"github.com/taoyao-code/wallbox-server/internal/storage"
	"github.com/taoyao-code/wallbox-server/internal/storage/models"
)

// Dispatcher 入队即返回，worker 负责投递与落库
type Dispatcher struct {
	repo    storage.NotificationRepository
	queue   Queue
	sender  Sender
	workers int
	logger  *zap.Logger
	metrics *metrics.AppMetrics
	wg      sync.WaitGroup
}

func NewDispatcher(repo storage.NotificationRepository, q Queue, sender Sender, workers int, logger *zap.Logger, m *metrics.AppMetrics) *Dispatcher {
	if workers <= 0 {
		workers = 2
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Dispatcher{repo: repo, queue: q, sender: sender, workers: workers, logger: logger.Named("notify"), metrics: m}
}

// Notify 用户无有效令牌或入队失败时返回 false；调用方不应因此失败
func (d *Dispatcher) Notify(ctx context.Context, userID int64, message string) bool {
	if userID <= 0 || strings.TrimSpace(message) == "" {
		return false
	}
	tokens, err := d.repo.ListActiveDeviceTokens(ctx, userID)
	if err != nil {
		d.logger.Warn("list device tokens failed", zap.Int64("user_id", userID), zap.Error(err))
		d.metrics.Notification("error")
		return false
	}
	if len(tokens) == 0 {
		d.logger.Debug("no device token", zap.Int64("user_id", userID))
		d.metrics.Notification("no_token")
		return false
	}
	job := Job{ID: uuid.NewString(), UserID: userID, Message: message, Created: time.Now().UTC()}
	if err := d.queue.Push(ctx, job); err != nil {
		d.logger.Warn("enqueue notification failed", zap.Int64("user_id", userID), zap.Error(err))
		d.metrics.Notification("enqueue_failed")
		return false
	}
	return true
}

// Start 启动 worker，ctx 取消后退出
func (d *Dispatcher) Start(ctx context.Context) {
	d.logger.Info("starting notification workers", zap.Int("workers", d.workers))
	for i := 0; i < d.workers; i++ {
		d.wg.Add(1)
		go d.worker(ctx, i+1)
	}
}

// Wait 等待 worker 退出
func (d *Dispatcher) Wait() { d.wg.Wait() }

func (d *Dispatcher) worker(ctx context.Context, id int) {
	defer d.wg.Done()
	logger := d.logger.With(zap.Int("worker_id", id))
	for {
		if ctx.Err() != nil {
			return
		}
		job, err := d.queue.Pop(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			logger.Error("queue pop failed", zap.Error(err))
			select {
			case <-ctx.Done():
				return
			case <-time.After(time.Second):
			}
			continue
		}
		if job == nil {
			continue
		}
		d.Deliver(ctx, *job)
	}
}

// Deliver 向用户全部有效令牌推送，返回成功条数
func (d *Dispatcher) Deliver(ctx context.Context, job Job) int {
	tokens, err := d.repo.ListActiveDeviceTokens(ctx, job.UserID)
	if err != nil {
		d.logger.Warn("list device tokens failed", zap.String("job_id", job.ID), zap.Error(err))
		return 0
	}
	sent := 0
	for i := range tokens {
		tok := tokens[i]
		rec := &models.PushNotification{UserID: job.UserID, DeviceTokenID: &tok.ID, Message: job.Message, Status: models.PushPending}
		if err := d.repo.CreatePushNotification(ctx, rec); err != nil {
			d.logger.Warn("record notification failed", zap.Int64("user_id", job.UserID), zap.Error(err))
			continue
		}
		ticket := d.sender.Send(ctx, tok.Token, job.Message)
		rec.Status = ticket.Status
		if ticket.ID != "" {
			rec.TicketID = &ticket.ID
		}
		if ticket.Error != "" {
			rec.Error = &ticket.Error
		}
		if err := d.repo.SavePushNotification(ctx, rec); err != nil {
			d.logger.Warn("update notification failed", zap.Int64("notification_id", rec.ID), zap.Error(err))
		}
		if ticket.Unregistered {
			if err := d.repo.DeactivateDeviceToken(ctx, tok.Token); err != nil {
				d.logger.Warn("deactivate token failed", zap.Int64("token_id", tok.ID), zap.Error(err))
			}
		}
		d.metrics.Notification(ticket.Status)
		if ticket.Status == models.PushSent {
			sent++
		}
	}
	return sent
}

// RegisterToken 登记推送令牌；同一令牌换绑到最新用户
func (d *Dispatcher) RegisterToken(ctx context.Context, userID int64, token, platform string) (*models.DeviceToken, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return nil, apperr.Validation("token is required")
	}
	if platform == "" {
		platform = "expo"
	}
	if platform == "expo" && !isExpoToken(token) {
		return nil, apperr.Validation("invalid Expo push token")
	}
	t := &models.DeviceToken{UserID: userID, Token: token, Platform: platform, Active: true}
	if err := d.repo.UpsertDeviceToken(ctx, t); err != nil {
		return nil, err
	}
	return t, nil
}

func isExpoToken(s string) bool {
	return (strings.HasPrefix(s, "ExponentPushToken[") || strings.HasPrefix(s, "ExpoPushToken[")) && strings.HasSuffix(s, "]")
}
