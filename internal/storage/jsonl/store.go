// Package jsonl implements the append-only event log: one JSON record per
// line, in the format written by domain.EventRecord.MarshalLine.
package jsonl

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"os"
	"path/filepath"
	"sync"

	"github.com/tjfontaine/ocpp-sniffer/internal/core/domain"
	"github.com/tjfontaine/ocpp-sniffer/internal/core/ports"
)

// ErrClosed is returned by Append after Close.
var ErrClosed = errors.New("jsonl: store closed")

// Store appends records to a log file. All writes go through a single
// goroutine that issues exactly one Write per record, so concurrent callers
// never interleave bytes and write order equals read order.
type Store struct {
	path string
	file *os.File

	mu     sync.RWMutex
	closed bool
	reqs   chan appendRequest
	done   chan struct{}
}

// Ensure Store implements the EventSink and EventSource ports
var (
	_ ports.EventSink   = (*Store)(nil)
	_ ports.EventSource = (*Store)(nil)
)

type appendRequest struct {
	line   []byte
	result chan error
}

// Open opens (creating if needed) the log at path in append mode.
func Open(path string) (*Store, error) {
	if path == "" {
		return nil, fmt.Errorf("log path cannot be empty")
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create log directory: %w", err)
		}
	}

	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open log %s: %w", path, err)
	}

	s := &Store{
		path: path,
		file: f,
		reqs: make(chan appendRequest),
		done: make(chan struct{}),
	}
	go s.run()
	return s, nil
}

// Path returns the log file location.
func (s *Store) Path() string {
	return s.path
}

func (s *Store) run() {
	defer close(s.done)
	for req := range s.reqs {
		_, err := s.file.Write(req.line)
		req.result <- err
	}
}

// Append serializes rec and writes it as one line. The record is fully
// encoded before any byte reaches the file, so an encoding failure leaves the
// log untouched. Once handed to the writer the append completes even if ctx
// is cancelled.
func (s *Store) Append(ctx context.Context, rec *domain.EventRecord) error {
	line, err := rec.MarshalLine()
	if err != nil {
		return fmt.Errorf("encode record: %w", err)
	}
	line = append(line, '\n')

	req := appendRequest{line: line, result: make(chan error, 1)}

	s.mu.RLock()
	if s.closed {
		s.mu.RUnlock()
		return ErrClosed
	}
	select {
	case s.reqs <- req:
	case <-ctx.Done():
		s.mu.RUnlock()
		return ctx.Err()
	}
	s.mu.RUnlock()

	if err := <-req.result; err != nil {
		return fmt.Errorf("write %s: %w", s.path, err)
	}
	return nil
}

// Close waits for pending appends and closes the file.
func (s *Store) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	close(s.reqs)
	s.mu.Unlock()

	<-s.done
	return s.file.Close()
}

// Records replays the log this store appends to.
func (s *Store) Records(ctx context.Context) (iter.Seq[domain.EventRecord], error) {
	return Reader{Path: s.path}.Records(ctx)
}
