// Package capture accepts charge point WebSocket connections and records
// every frame they send. It never replies.
package capture

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/tjfontaine/ocpp-sniffer/internal/core/domain"
	"github.com/tjfontaine/ocpp-sniffer/internal/logging"
	"github.com/tjfontaine/ocpp-sniffer/internal/metrics"
)

// DefaultSubprotocol is the WebSocket subprotocol most OCPP 1.6 chargers
// require during the handshake.
const DefaultSubprotocol = "ocpp1.6"

// UnknownChargePoint labels connections made to the root path.
const UnknownChargePoint = "unknown_cp"

// Recorder persists one frame.
type Recorder interface {
	Record(ctx context.Context, chargePointID, raw string) (domain.EventRecord, error)
}

// Handler upgrades every request to a WebSocket and records its frames.
type Handler struct {
	recorder Recorder
	observer Observer
	logger   *slog.Logger
	upgrader websocket.Upgrader
}

// Option configures a Handler.
type Option func(*Handler)

// WithObserver sets the observer notified after each recorded frame.
func WithObserver(o Observer) Option {
	return func(h *Handler) { h.observer = o }
}

// WithLogger sets the handler's logger.
func WithLogger(logger *slog.Logger) Option {
	return func(h *Handler) { h.logger = logger }
}

// WithSubprotocols sets the subprotocols offered during the handshake.
func WithSubprotocols(protocols ...string) Option {
	return func(h *Handler) { h.upgrader.Subprotocols = protocols }
}

// NewHandler creates a capture handler.
func NewHandler(rec Recorder, opts ...Option) *Handler {
	h := &Handler{
		recorder: rec,
		logger:   slog.Default(),
		upgrader: websocket.Upgrader{
			Subprotocols: []string{DefaultSubprotocol},
			// Chargers do not send browser origins.
			CheckOrigin: func(*http.Request) bool { return true },
		},
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// ChargePointID derives the connection label from a request path.
func ChargePointID(path string) string {
	if id := strings.Trim(path, "/"); id != "" {
		return id
	}
	return UnknownChargePoint
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	cpID := ChargePointID(r.URL.Path)
	logger := h.logger.With(
		logging.ChargePoint(cpID),
		logging.Session(uuid.New().String()),
	)

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade has already written the HTTP error response.
		logger.Warn("websocket upgrade failed", logging.Error(err))
		return
	}
	defer conn.Close()

	metrics.ConnectionsTotal.Inc()
	metrics.ConnectionsActive.Inc()
	defer metrics.ConnectionsActive.Dec()

	logger.Info("charge point connected",
		slog.String(logging.FieldRemoteAddr, r.RemoteAddr),
		slog.String("subprotocol", conn.Subprotocol()),
	)
	if co, ok := h.observer.(ConnectionObserver); ok {
		co.Connected(cpID)
	}

	err = h.serve(r.Context(), conn, cpID, logger)

	if co, ok := h.observer.(ConnectionObserver); ok {
		co.Disconnected(cpID)
	}
	if err != nil && !isClosure(err) {
		logger.Warn("charge point connection failed", logging.Error(err))
		return
	}
	logger.Info("charge point disconnected")
}

func (h *Handler) serve(ctx context.Context, conn *websocket.Conn, cpID string, logger *slog.Logger) error {
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			return err
		}

		rec, err := h.recorder.Record(ctx, cpID, string(data))
		if err != nil {
			logger.Error("failed to record frame", logging.Error(err))
		} else if uid, ok := domain.UniqueIDOf(rec.Decoded); ok {
			logger.Debug("frame recorded", logging.UniqueID(uid), logging.Action(domain.ActionOf(rec.Decoded)))
		}
		// A frame that could not be persisted is still shown.
		if h.observer != nil && rec.Decoded != nil {
			h.observer.Observe(rec)
		}
	}
}

func isClosure(err error) bool {
	var ce *websocket.CloseError
	return errors.As(err, &ce)
}
