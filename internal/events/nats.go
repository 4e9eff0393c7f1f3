package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"
	"go.uber.org/zap"

	"github.com/hinteval/sessiond/internal/logging"
)

// Config holds NATS publisher settings.
type Config struct {
	URL           string
	SubjectPrefix string
}

// natsPublisher publishes lifecycle events to a NATS broker.
type natsPublisher struct {
	conn   *nats.Conn
	prefix string
	logger *logging.Logger
	now    func() time.Time
}

// Connect establishes the broker connection. The connection retries in the
// background, so a broker that is briefly down does not block startup.
func Connect(cfg *Config, logger *logging.Logger) (Publisher, error) {
	if cfg == nil || cfg.URL == "" {
		return nil, fmt.Errorf("events url is required")
	}
	if logger == nil {
		logger = logging.NewNop()
	}
	prefix := cfg.SubjectPrefix
	if prefix == "" {
		prefix = DefaultSubjectPrefix
	}

	conn, err := nats.Connect(cfg.URL,
		nats.Name("sessiond"),
		nats.RetryOnFailedConnect(true),
		nats.MaxReconnects(5),
		nats.ReconnectWait(1*time.Second),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to NATS at %s: %w", cfg.URL, err)
	}

	return &natsPublisher{
		conn:   conn,
		prefix: prefix,
		logger: logger,
		now:    time.Now,
	}, nil
}

func (p *natsPublisher) SessionImported(ctx context.Context, evt ImportedEvent) error {
	if evt.At.IsZero() {
		evt.At = p.now()
	}
	return p.publish(ctx, p.prefix+"."+importedSuffix, evt)
}

func (p *natsPublisher) SessionCleared(ctx context.Context, evt ClearedEvent) error {
	if evt.At.IsZero() {
		evt.At = p.now()
	}
	return p.publish(ctx, p.prefix+"."+clearedSuffix, evt)
}

func (p *natsPublisher) publish(ctx context.Context, subject string, payload any) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to encode event: %w", err)
	}
	if err := p.conn.Publish(subject, data); err != nil {
		return fmt.Errorf("failed to publish %s: %w", subject, err)
	}
	p.logger.Debug(ctx, "published event", zap.String("subject", subject))
	return nil
}

// Close drains buffered messages before closing the connection.
func (p *natsPublisher) Close() error {
	if err := p.conn.Drain(); err != nil {
		p.conn.Close()
		return err
	}
	return nil
}

// Nop is a Publisher that discards every event. Used when events are
// disabled in config.
type Nop struct{}

func (Nop) SessionImported(context.Context, ImportedEvent) error { return nil }
func (Nop) SessionCleared(context.Context, ClearedEvent) error   { return nil }
func (Nop) Close() error                                         { return nil }
