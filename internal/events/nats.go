package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"
	"go.uber.org/zap"

	"github.com/spec-kit/ticket-triage/internal/config"
)

// Conn is the subset of *nats.Conn the publisher uses.
type Conn interface {
	Publish(subject string, data []byte) error
}

// NATSPublisher forwards dispatcher events to NATS subjects named
// <prefix>.<event_type>.
type NATSPublisher struct {
	conn   Conn
	prefix string
	logger *zap.Logger
}

// ConnectNATS dials the configured server. It returns nil, nil when no URL is set.
func ConnectNATS(cfg config.NATSConfig, name string, logger *zap.Logger) (*nats.Conn, error) {
	if cfg.URL == "" {
		logger.Info("NATS_URL not provided; events stay in-process")
		return nil, nil
	}
	conn, err := nats.Connect(cfg.URL,
		nats.Name(name),
		nats.ReconnectWait(2*time.Second),
		nats.MaxReconnects(-1),
		nats.Timeout(5*time.Second),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			logger.Warn("nats disconnected", zap.Error(err))
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			logger.Info("nats reconnected", zap.String("url", nc.ConnectedUrl()))
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("connect to nats: %w", err)
	}
	logger.Info("connected to nats", zap.String("url", conn.ConnectedUrl()))
	return conn, nil
}

// NewNATSPublisher wraps conn.
func NewNATSPublisher(conn Conn, prefix string, logger *zap.Logger) *NATSPublisher {
	if prefix == "" {
		prefix = "triage"
	}
	return &NATSPublisher{conn: conn, prefix: prefix, logger: logger}
}

// Subject returns the NATS subject for an event type.
func (p *NATSPublisher) Subject(eventType EventType) string {
	return p.prefix + "." + string(eventType)
}

// Handle publishes one event. It is an EventHandler.
func (p *NATSPublisher) Handle(_ context.Context, event Event) error {
	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal event %s: %w", event.ID, err)
	}
	if err := p.conn.Publish(p.Subject(event.Type), data); err != nil {
		p.logger.Warn("nats publish failed", zap.String("event_type", string(event.Type)), zap.Error(err))
		return fmt.Errorf("publish event %s: %w", event.ID, err)
	}
	return nil
}

// Register subscribes the publisher to every event type.
func (p *NATSPublisher) Register(d Dispatcher) {
	for _, t := range AllEventTypes {
		d.Subscribe(t, p.Handle)
	}
}
