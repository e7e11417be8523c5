// Package runtime assembles the capture pipeline and manages the lifecycle of
// its listeners and stores.
package runtime

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"

	"golang.org/x/sync/errgroup"

	"github.com/tjfontaine/ocpp-sniffer/internal/adapters/events/direct"
	"github.com/tjfontaine/ocpp-sniffer/internal/capture"
	"github.com/tjfontaine/ocpp-sniffer/internal/config"
	"github.com/tjfontaine/ocpp-sniffer/internal/core/ports"
	"github.com/tjfontaine/ocpp-sniffer/internal/recorder"
	"github.com/tjfontaine/ocpp-sniffer/internal/server"
)

// Store is a primary event log: written by the recorder, read by the admin API.
type Store interface {
	ports.EventSink
	ports.EventSource
}

// Sniffer runs the capture listener and, when enabled, the admin listener.
type Sniffer struct {
	cfg *config.Config

	// Dependencies (injected via options)
	store    Store
	mirrors  []ports.EventSink
	events   ports.EventPublisher
	observer capture.Observer
	logger   *slog.Logger

	recorder *recorder.Recorder
}

// New creates a Sniffer for cfg.
func New(cfg *config.Config, opts ...Option) (*Sniffer, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config required")
	}
	s := &Sniffer{
		cfg:    cfg,
		logger: slog.Default(),
	}

	for _, opt := range opts {
		if err := opt(s); err != nil {
			s.Close()
			return nil, fmt.Errorf("apply option: %w", err)
		}
	}

	if s.store == nil {
		return nil, fmt.Errorf("event store required (use WithJSONLStore or WithMemoryStore)")
	}
	if s.events == nil {
		s.logger.Info("no event publisher specified, events stay in process")
		s.events = direct.NewPublisher(nil)
	}

	recOpts := []recorder.Option{
		recorder.WithLogger(s.logger),
		recorder.WithPublisher(s.events),
	}
	for _, m := range s.mirrors {
		recOpts = append(recOpts, recorder.WithMirror(m))
	}
	rec, err := recorder.New(s.store, recOpts...)
	if err != nil {
		s.Close()
		return nil, err
	}
	s.recorder = rec

	return s, nil
}

// Recorder returns the recorder frames are written through.
func (s *Sniffer) Recorder() *recorder.Recorder {
	return s.recorder
}

// Run listens on the configured addresses and serves until ctx is cancelled.
func (s *Sniffer) Run(ctx context.Context) error {
	captureLn, err := server.Listen("capture", s.cfg.Server.CaptureAddr())
	if err != nil {
		return err
	}

	var adminLn net.Listener
	if addr := s.cfg.Server.AdminAddr(); addr != "" {
		adminLn, err = server.Listen("admin", addr)
		if err != nil {
			captureLn.Close()
			return err
		}
	}

	return s.Serve(ctx, captureLn, adminLn)
}

// Serve runs on pre-opened listeners. adminLn may be nil.
func (s *Sniffer) Serve(ctx context.Context, captureLn, adminLn net.Listener) error {
	handler := capture.NewHandler(s.recorder,
		capture.WithLogger(s.logger),
		capture.WithObserver(s.observer),
		capture.WithSubprotocols(s.cfg.Server.Subprotocol),
	)

	g, ctx := errgroup.WithContext(ctx)

	captureSrv := server.New("capture", captureLn.Addr().String(),
		server.NewCaptureRouter(handler, s.logger), s.logger)
	g.Go(func() error { return captureSrv.Serve(ctx, captureLn) })

	if adminLn != nil {
		adminSrv := server.New("admin", adminLn.Addr().String(),
			server.NewAdminRouter(s.store, s.logger), s.logger)
		g.Go(func() error { return adminSrv.Serve(ctx, adminLn) })
	}

	s.logger.Info("OCPP sniffer listening",
		slog.String("addr", "ws://"+captureLn.Addr().String()),
		slog.String("subprotocol", s.cfg.Server.Subprotocol),
	)

	return g.Wait()
}

// Close releases the publisher, mirrors and primary store.
func (s *Sniffer) Close() error {
	var errs []error
	if s.recorder != nil {
		errs = append(errs, s.recorder.Close())
	} else {
		for _, m := range s.mirrors {
			errs = append(errs, m.Close())
		}
		if s.events != nil {
			errs = append(errs, s.events.Close())
		}
	}
	if s.store != nil {
		errs = append(errs, s.store.Close())
	}
	if err := errors.Join(errs...); err != nil {
		s.logger.Error("failed to close resources", slog.String("error", err.Error()))
		return err
	}
	return nil
}
