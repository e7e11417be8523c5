package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

const shutdownTimeout = 10 * time.Second

// Server is a named HTTP listener with graceful shutdown.
type Server struct {
	Name   string
	Addr   string
	Router http.Handler
	logger *slog.Logger
}

func New(name, addr string, router http.Handler, logger *slog.Logger) *Server {
	return &Server{
		Name:   name,
		Addr:   addr,
		Router: router,
		logger: logger,
	}
}

// Listen opens the TCP listener for the server called name.
func Listen(name, addr string) (net.Listener, error) {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("%s listener: %w", name, err)
	}
	return ln, nil
}

// Serve accepts connections on ln until ctx is cancelled, then shuts down.
// Hijacked connections such as WebSockets are not tracked by Shutdown; their
// handlers end when the peer goes away or the listener process exits.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	srv := &http.Server{
		Handler:           s.Router,
		ReadHeaderTimeout: 10 * time.Second,
		BaseContext:       func(net.Listener) context.Context { return ctx },
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("starting server",
			slog.String("server", s.Name),
			slog.String("addr", ln.Addr().String()),
		)
		errCh <- srv.Serve(ln)
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	s.logger.Info("shutting down server", slog.String("server", s.Name))
	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("%s shutdown: %w", s.Name, err)
	}
	return nil
}

// NewCaptureRouter mounts the capture handler on every path.
func NewCaptureRouter(capture http.Handler, logger *slog.Logger) *chi.Mux {
	r := chi.NewRouter()
	r.Use(RequestIDMiddleware)
	r.Use(LoggingMiddleware(logger))
	r.Use(middleware.Recoverer)
	r.Handle("/*", capture)
	return r
}
