package events

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/taoyao-code/wallbox-server/internal/metrics"
)

type fakeWriter struct {
	msgs   []kafka.Message
	err    error
	closed bool
}

func (f *fakeWriter) WriteMessages(_ context.Context, msgs ...kafka.Message) error {
	if f.err != nil {
		return f.err
	}
	f.msgs = append(f.msgs, msgs...)
	return nil
}

func (f *fakeWriter) Close() error {
	f.closed = true
	return nil
}

func TestKafkaPublisherWritesKeyedMessage(t *testing.T) {
	w := &fakeWriter{}
	p := newKafkaPublisher(w, zap.NewNop(), metrics.NewAppMetrics(nil))

	err := p.Publish(context.Background(), Event{Kind: KindRequestTransitioned, Key: "REQ-1", RequestID: 1, From: "draft", To: "requested"})
	require.NoError(t, err)
	require.Len(t, w.msgs, 1)

	msg := w.msgs[0]
	assert.Equal(t, "REQ-1", string(msg.Key))
	assert.Equal(t, "kind", msg.Headers[0].Key)
	assert.Equal(t, KindRequestTransitioned, string(msg.Headers[0].Value))

	var e Event
	require.NoError(t, json.Unmarshal(msg.Value, &e))
	assert.Equal(t, "requested", e.To)
	assert.False(t, e.OccurredAt.IsZero())

	require.NoError(t, p.Close())
	assert.True(t, w.closed)
}

func TestKafkaPublisherError(t *testing.T) {
	boom := errors.New("broker down")
	p := newKafkaPublisher(&fakeWriter{err: boom}, nil, nil)
	assert.ErrorIs(t, p.Publish(context.Background(), Event{Kind: KindStationSynced, Key: "CP-1"}), boom)
}

func TestNopPublisher(t *testing.T) {
	var p Publisher = NopPublisher{}
	assert.NoError(t, p.Publish(context.Background(), Event{}))
}
