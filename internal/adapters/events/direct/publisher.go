// Package direct provides an in-process event publisher.
package direct

import (
	"context"

	"github.com/tjfontaine/ocpp-sniffer/internal/core/domain"
	"github.com/tjfontaine/ocpp-sniffer/internal/core/ports"
)

// Publisher implements ports.EventPublisher without an external bus. Events
// are handed to an optional sink; with none configured they are dropped.
// This is the default for single-instance deployments.
type Publisher struct {
	sink ports.EventSink
}

var _ ports.EventPublisher = (*Publisher)(nil)

// NewPublisher creates a direct publisher. sink may be nil.
func NewPublisher(sink ports.EventSink) *Publisher {
	return &Publisher{sink: sink}
}

// Publish forwards the record to the sink, if any.
func (p *Publisher) Publish(ctx context.Context, rec *domain.EventRecord) error {
	if p.sink == nil {
		return nil
	}
	return p.sink.Append(ctx, rec)
}

// Close is a no-op for direct publisher. The sink is owned by the caller.
func (p *Publisher) Close() error {
	return nil
}
