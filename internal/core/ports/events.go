package ports

import (
	"context"
	"iter"

	"github.com/tjfontaine/ocpp-sniffer/internal/core/domain"
)

// EventSink persists event records. Append must be atomic per record.
// Implementations: jsonl (primary log), sqlite (mirror), memory.
type EventSink interface {
	Append(ctx context.Context, rec *domain.EventRecord) error
	Close() error
}

// EventSource replays persisted records in write order. Records fails only
// when the source itself cannot be opened; unreadable entries are skipped.
// Implementations: jsonl, sqlite, memory.
type EventSource interface {
	Records(ctx context.Context) (iter.Seq[domain.EventRecord], error)
}

// EventPublisher fans recorded events out to an external bus.
// Implementations: direct (no bus, default), NATS.
type EventPublisher interface {
	Publish(ctx context.Context, rec *domain.EventRecord) error
	Close() error
}
