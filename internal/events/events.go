// Package events 充电生命周期事件发布
package events

import (
	"context"
	"encoding/json"
	"time"

	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"

	cfgpkg "github.com/taoyao-code/wallbox-server/internal/config"
	"github.com/taoyao-code/wallbox-server/internal/metrics"
)

// 事件类型
const (
	KindRequestTransitioned = "request.transitioned"
	KindSessionFinalized    = "session.finalized"
	KindStationSynced       = "station.synced"
)

// Event 生命周期事件；Key 决定分区，同一请求的事件保持有序
type Event struct {
	Kind       string                 `json:"kind"`
	Key        string                 `json:"key"`
	RequestID  int64                  `json:"request_id,omitempty"`
	StationID  int64                  `json:"station_id,omitempty"`
	From       string                 `json:"from,omitempty"`
	To         string                 `json:"to,omitempty"`
	OccurredAt time.Time              `json:"occurred_at"`
	Data       map[string]interface{} `json:"data,omitempty"`
}

// Publisher 事件发布者；发布失败不影响已提交的业务状态
type Publisher interface {
	Publish(ctx context.Context, e Event) error
}

// NopPublisher 未启用 Kafka 时使用
type NopPublisher struct{}

func (NopPublisher) Publish(context.Context, Event) error { return nil }

// messageWriter kafka.Writer 的最小子集
type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// KafkaPublisher 基于 segmentio/kafka-go 的发布者
type KafkaPublisher struct {
	w       messageWriter
	logger  *zap.Logger
	metrics *metrics.AppMetrics
}

// NewKafkaPublisher 按配置创建 Writer，按 Key 哈希分区
func NewKafkaPublisher(cfg cfgpkg.KafkaConfig, logger *zap.Logger, m *metrics.AppMetrics) *KafkaPublisher {
	batchTimeout := cfg.BatchTimeout
	if batchTimeout <= 0 {
		batchTimeout = 50 * time.Millisecond
	}
	w := &kafka.Writer{
		Addr:                   kafka.TCP(cfg.Brokers...),
		Topic:                  cfg.Topic,
		Balancer:               &kafka.Hash{},
		BatchTimeout:           batchTimeout,
		RequiredAcks:           kafka.RequireOne,
		AllowAutoTopicCreation: true,
	}
	return newKafkaPublisher(w, logger, m)
}

func newKafkaPublisher(w messageWriter, logger *zap.Logger, m *metrics.AppMetrics) *KafkaPublisher {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &KafkaPublisher{w: w, logger: logger.Named("events"), metrics: m}
}

func (p *KafkaPublisher) Publish(ctx context.Context, e Event) error {
	if e.OccurredAt.IsZero() {
		e.OccurredAt = time.Now().UTC()
	}
	value, err := json.Marshal(e)
	if err != nil {
		p.metrics.Publish("error")
		return err
	}
	msg := kafka.Message{
		Key:   []byte(e.Key),
		Value: value,
		Time:  e.OccurredAt,
		Headers: []kafka.Header{
			{Key: "kind", Value: []byte(e.Kind)},
		},
	}
	if err := p.w.WriteMessages(ctx, msg); err != nil {
		p.metrics.Publish("error")
		p.logger.Warn("publish event failed", zap.String("kind", e.Kind), zap.String("key", e.Key), zap.Error(err))
		return err
	}
	p.metrics.Publish("ok")
	return nil
}

// Close 刷新缓冲并关闭连接
func (p *KafkaPublisher) Close() error {
	return p.w.Close()
}
