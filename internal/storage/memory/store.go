package memory

import (
	"context"
	"iter"
	"sync"

	"github.com/tjfontaine/ocpp-sniffer/internal/core/domain"
	"github.com/tjfontaine/ocpp-sniffer/internal/core/ports"
)

// Store is an in-memory event log. Records are kept in append order.
type Store struct {
	mu      sync.RWMutex
	records []domain.EventRecord
}

var (
	_ ports.EventSink   = (*Store)(nil)
	_ ports.EventSource = (*Store)(nil)
)

// New creates a new in-memory store
func New() *Store {
	return &Store{}
}

func (s *Store) Append(ctx context.Context, rec *domain.EventRecord) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records = append(s.records, *rec)
	return nil
}

// Records yields a snapshot of the records stored when iteration starts.
func (s *Store) Records(ctx context.Context) (iter.Seq[domain.EventRecord], error) {
	return func(yield func(domain.EventRecord) bool) {
		for _, rec := range s.Snapshot() {
			if ctx.Err() != nil || !yield(rec) {
				return
			}
		}
	}, nil
}

// Snapshot returns a copy of all stored records.
func (s *Store) Snapshot() []domain.EventRecord {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]domain.EventRecord, len(s.records))
	copy(out, s.records)
	return out
}

func (s *Store) Close() error {
	return nil
}
