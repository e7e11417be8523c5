package runtime

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/tjfontaine/ocpp-sniffer/internal/adapters/events/direct"
	"github.com/tjfontaine/ocpp-sniffer/internal/adapters/events/nats"
	"github.com/tjfontaine/ocpp-sniffer/internal/capture"
	"github.com/tjfontaine/ocpp-sniffer/internal/config"
	"github.com/tjfontaine/ocpp-sniffer/internal/storage/jsonl"
	"github.com/tjfontaine/ocpp-sniffer/internal/storage/memory"
	"github.com/tjfontaine/ocpp-sniffer/internal/storage/sqlite"
)

// Option is a functional option for configuring a Sniffer.
type Option func(*Sniffer) error

// WithLogger sets the logger. Apply it first so later options log through it.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Sniffer) error {
		s.logger = logger
		return nil
	}
}

// WithJSONLStore appends to the JSON lines log at path (default).
func WithJSONLStore(path string) Option {
	return func(s *Sniffer) error {
		store, err := jsonl.Open(path)
		if err != nil {
			return fmt.Errorf("open event log: %w", err)
		}
		s.store = store
		return nil
	}
}

// WithMemoryStore keeps events in process only.
func WithMemoryStore() Option {
	return func(s *Sniffer) error {
		s.store = memory.New()
		return nil
	}
}

// WithStore uses a caller-provided primary store.
func WithStore(store Store) Option {
	return func(s *Sniffer) error {
		s.store = store
		return nil
	}
}

// WithSQLiteMirror copies every record into a SQLite database.
func WithSQLiteMirror(path string) Option {
	return func(s *Sniffer) error {
		store, err := sqlite.New(path)
		if err != nil {
			return fmt.Errorf("create sqlite mirror: %w", err)
		}
		s.mirrors = append(s.mirrors, store)

		n, err := store.Count(context.Background())
		if err != nil {
			return fmt.Errorf("inspect sqlite mirror: %w", err)
		}
		s.logger.Info("sqlite mirror opened", slog.String("path", path), slog.Int64("events", n))
		return nil
	}
}

// WithDirectEvents keeps events in process (default).
func WithDirectEvents() Option {
	return func(s *Sniffer) error {
		s.events = direct.NewPublisher(nil)
		return nil
	}
}

// WithNATSEvents publishes every record to NATS.
func WithNATSEvents(cfg nats.Config) Option {
	return func(s *Sniffer) error {
		publisher, err := nats.NewPublisher(cfg, s.logger)
		if err != nil {
			return fmt.Errorf("create nats event publisher: %w", err)
		}
		s.events = publisher
		return nil
	}
}

// WithObserver sets the observer notified of every captured frame.
func WithObserver(o capture.Observer) Option {
	return func(s *Sniffer) error {
		s.observer = o
		return nil
	}
}

// OptionsFromConfig translates storage and event settings into options.
func OptionsFromConfig(cfg *config.Config) []Option {
	var opts []Option
	switch cfg.Storage.Type {
	case "memory":
		opts = append(opts, WithMemoryStore())
	default:
		opts = append(opts, WithJSONLStore(cfg.Storage.LogPath))
	}
	if cfg.Storage.SQLite.Path != "" {
		opts = append(opts, WithSQLiteMirror(cfg.Storage.SQLite.Path))
	}
	if cfg.NATS.URL != "" {
		natsCfg := nats.DefaultConfig()
		natsCfg.URL = cfg.NATS.URL
		natsCfg.Subject = cfg.NATS.Subject
		opts = append(opts, WithNATSEvents(natsCfg))
	} else {
		opts = append(opts, WithDirectEvents())
	}
	return opts
}
