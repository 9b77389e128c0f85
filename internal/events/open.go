package events

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/technosupport/roomview/internal/config"
)

// Open builds the publisher selected by cfg.Driver. An empty driver disables
// publishing.
func Open(cfg config.EventsConfig, logger *zap.Logger) (Publisher, error) {
	switch strings.ToLower(cfg.Driver) {
	case "", "none":
		return Nop{}, nil
	case "nats":
		p, err := DialNATS(cfg.NatsURL, cfg.NatsSubject, cfg.RetryMax)
		if err != nil {
			return nil, err
		}
		logger.Info("Publishing events to NATS", zap.String("subject", cfg.NatsSubject))
		return p, nil
	case "amqp":
		p, err := DialAMQP(cfg.AMQPURL, cfg.AMQPExchange)
		if err != nil {
			return nil, err
		}
		logger.Info("Publishing events to AMQP", zap.String("exchange", cfg.AMQPExchange))
		return p, nil
	default:
		return nil, fmt.Errorf("unknown events driver %q", cfg.Driver)
	}
}

// Emit publishes in the background and logs failures. Callers on latency
// sensitive paths use this instead of Publish.
func Emit(p Publisher, logger *zap.Logger, evt *Event) {
	if p == nil {
		return
	}
	if _, ok := p.(Nop); ok {
		return
	}
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		if err := p.Publish(ctx, evt); err != nil {
			logger.Warn("Event publish failed", zap.String("type", evt.Type), zap.Error(err))
		}
	}()
}
