package events

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/technosupport/roomview/internal/config"
)

type fakeNATS struct {
	mu       sync.Mutex
	failures int
	subjects []string
	payloads [][]byte
	drained  bool
}

func (f *fakeNATS) Publish(subj string, data []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failures > 0 {
		f.failures--
		return errors.New("nats: connection closed")
	}
	f.subjects = append(f.subjects, subj)
	f.payloads = append(f.payloads, data)
	return nil
}

func (f *fakeNATS) Drain() error {
	f.drained = true
	return nil
}

func (f *fakeNATS) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.subjects)
}

func TestNATSPublisher_SubjectAndPayload(t *testing.T) {
	conn := &fakeNATS{}
	p := NewNATSPublisher(conn, "roomview.events", 0)

	evt := New(TypePTZCommand, "sys-1", "Camera_1", map[string]any{"method": "pan", "arg": "left"})
	require.NoError(t, p.Publish(context.Background(), evt))

	require.Len(t, conn.subjects, 1)
	assert.Equal(t, "roomview.events.ptz.command", conn.subjects[0])

	var got Event
	require.NoError(t, json.Unmarshal(conn.payloads[0], &got))
	assert.Equal(t, evt.ID, got.ID)
	assert.Equal(t, "sys-1", got.SystemID)
	assert.Equal(t, "pan", got.Attributes["method"])

	require.NoError(t, p.Close())
	assert.True(t, conn.drained)
}

func TestNATSPublisher_Retries(t *testing.T) {
	conn := &fakeNATS{failures: 2}
	p := NewNATSPublisher(conn, "roomview.events", 2)

	require.NoError(t, p.Publish(context.Background(), New(TypePTZHome, "sys-1", "Camera_1", nil)))
	assert.Equal(t, 1, conn.count())
}

func TestNATSPublisher_GivesUp(t *testing.T) {
	conn := &fakeNATS{failures: 5}
	p := NewNATSPublisher(conn, "roomview.events", 1)

	err := p.Publish(context.Background(), New(TypePTZHome, "sys-1", "Camera_1", nil))
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "publish failed after 1 retries")
}

type fakeChannel struct {
	exchange string
	key      string
	msg      amqp.Publishing
	closed   bool
}

func (f *fakeChannel) PublishWithContext(_ context.Context, exchange, key string, _, _ bool, msg amqp.Publishing) error {
	f.exchange, f.key, f.msg = exchange, key, msg
	return nil
}

func (f *fakeChannel) Close() error {
	f.closed = true
	return nil
}

func TestAMQPPublisher_RoutesByType(t *testing.T) {
	ch := &fakeChannel{}
	p := &AMQPPublisher{channel: ch, exchange: "roomview"}

	evt := New(TypeDiscoveryComplete, "sys-9", "Recording_1", map[string]any{"previews": 2})
	require.NoError(t, p.Publish(context.Background(), evt))

	assert.Equal(t, "roomview", ch.exchange)
	assert.Equal(t, TypeDiscoveryComplete, ch.key)
	assert.Equal(t, "application/json", ch.msg.ContentType)
	assert.Equal(t, evt.ID.String(), ch.msg.MessageId)
	assert.Equal(t, amqp.Persistent, ch.msg.DeliveryMode)

	require.NoError(t, p.Close())
	assert.True(t, ch.closed)
}

func TestOpen_Drivers(t *testing.T) {
	p, err := Open(config.EventsConfig{}, zap.NewNop())
	require.NoError(t, err)
	assert.IsType(t, Nop{}, p)

	_, err = Open(config.EventsConfig{Driver: "kafka"}, zap.NewNop())
	assert.Error(t, err)
}

func TestEmit_PublishesInBackground(t *testing.T) {
	conn := &fakeNATS{}
	p := NewNATSPublisher(conn, "roomview.events", 0)

	Emit(p, zap.NewNop(), New(TypePTZCommand, "sys-1", "Camera_1", nil))

	assert.Eventually(t, func() bool { return conn.count() == 1 }, time.Second, 10*time.Millisecond)
}
