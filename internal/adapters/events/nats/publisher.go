// Package nats publishes recorded events to a NATS subject per charge point.
package nats

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/tjfontaine/ocpp-sniffer/internal/core/domain"
	"github.com/tjfontaine/ocpp-sniffer/internal/core/ports"
)

// Config holds NATS publisher configuration.
type Config struct {
	// URL is the NATS server URL (e.g., "nats://localhost:4222").
	URL string

	// Subject is the prefix; events go to "<Subject>.<charge point id>".
	Subject string

	// Name is the client name for connection identification.
	Name string

	// MaxReconnects is the maximum number of reconnection attempts.
	// Use -1 for infinite reconnects.
	MaxReconnects int

	ReconnectWait time.Duration
	Timeout       time.Duration
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() Config {
	return Config{
		URL:           nats.DefaultURL,
		Subject:       "ocpp.events",
		Name:          "ocpp-sniffer",
		MaxReconnects: -1,
		ReconnectWait: 2 * time.Second,
		Timeout:       5 * time.Second,
	}
}

// Publisher implements ports.EventPublisher over a NATS connection. The
// message body is the record's log line.
type Publisher struct {
	conn    *nats.Conn
	subject string
}

var _ ports.EventPublisher = (*Publisher)(nil)

// NewPublisher connects to NATS.
func NewPublisher(cfg Config, logger *slog.Logger) (*Publisher, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.Subject == "" {
		cfg.Subject = DefaultConfig().Subject
	}

	opts := []nats.Option{
		nats.Name(cfg.Name),
		nats.MaxReconnects(cfg.MaxReconnects),
		nats.ReconnectWait(cfg.ReconnectWait),
		nats.Timeout(cfg.Timeout),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if err != nil {
				logger.Warn("NATS disconnected", slog.String("error", err.Error()))
			}
		}),
		nats.ReconnectHandler(func(c *nats.Conn) {
			logger.Info("NATS reconnected", slog.String("url", c.ConnectedUrl()))
		}),
	}

	conn, err := nats.Connect(cfg.URL, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to NATS: %w", err)
	}

	return &Publisher{conn: conn, subject: cfg.Subject}, nil
}

// Publish sends the record line to the charge point's subject.
func (p *Publisher) Publish(ctx context.Context, rec *domain.EventRecord) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	line, err := rec.MarshalLine()
	if err != nil {
		return fmt.Errorf("encode record: %w", err)
	}
	return p.conn.Publish(Subject(p.subject, rec.ChargePointID), line)
}

// Close flushes pending messages and closes the connection.
func (p *Publisher) Close() error {
	if p.conn == nil || p.conn.IsClosed() {
		return nil
	}
	return p.conn.Drain()
}

// Subject returns the subject for a charge point. Characters that NATS treats
// as separators or wildcards are replaced with '_'.
func Subject(prefix, chargePointID string) string {
	token := strings.Map(func(r rune) rune {
		switch r {
		case '.', '*', '>', ' ', '\t', '\r', '\n':
			return '_'
		}
		return r
	}, chargePointID)
	if token == "" {
		token = "_"
	}
	return prefix + "." + token
}
