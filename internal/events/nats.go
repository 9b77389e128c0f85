package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"
)

// natsConn is the subset of *nats.Conn the publisher needs.
type natsConn interface {
	Publish(subj string, data []byte) error
	Drain() error
}

type NATSPublisher struct {
	conn       natsConn
	subject    string
	maxRetries int
}

// DialNATS connects and returns a publisher on subject.
func DialNATS(url, subject string, maxRetries int) (*NATSPublisher, error) {
	nc, err := nats.Connect(url, nats.Name("roomview"), nats.MaxReconnects(-1))
	if err != nil {
		return nil, fmt.Errorf("connect nats: %w", err)
	}
	return NewNATSPublisher(nc, subject, maxRetries), nil
}

func NewNATSPublisher(conn natsConn, subject string, maxRetries int) *NATSPublisher {
	return &NATSPublisher{
		conn:       conn,
		subject:    subject,
		maxRetries: maxRetries,
	}
}

// Publish sends to "<subject>.<event type>".
func (p *NATSPublisher) Publish(ctx context.Context, evt *Event) error {
	data, err := json.Marshal(evt)
	if err != nil {
		return fmt.Errorf("marshal error: %w", err)
	}
	subject := p.subject + "." + evt.Type

	for i := 0; i <= p.maxRetries; i++ {
		err = p.conn.Publish(subject, data)
		if err == nil {
			return nil
		}

		// Backoff
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(time.Duration(i*100) * time.Millisecond):
		}
	}

	return fmt.Errorf("publish failed after %d retries: %w", p.maxRetries, err)
}

func (p *NATSPublisher) Close() error {
	return p.conn.Drain()
}
