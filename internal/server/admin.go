package server

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/tjfontaine/ocpp-sniffer/internal/core/ports"
	"github.com/tjfontaine/ocpp-sniffer/internal/query"
)

const apiTimeout = 30 * time.Second

// NewAdminRouter serves health, metrics and the event query API over src.
func NewAdminRouter(src ports.EventSource, logger *slog.Logger) http.Handler {
	r := chi.NewRouter()
	r.Use(RequestIDMiddleware)
	r.Use(LoggingMiddleware(logger))
	r.Use(middleware.Recoverer)

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		w.Write([]byte("ok\n"))
	})
	r.Handle("/metrics", promhttp.Handler())

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(TimeoutMiddleware(apiTimeout))
		r.Get("/events", eventsHandler(src))
	})

	return otelhttp.NewHandler(r, "ocpp-sniffer-admin")
}

// eventsHandler streams matching records as JSON lines.
func eventsHandler(src ports.EventSource) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		filter, limit, err := parseFilter(r)
		if err != nil {
			AddError(r.Context(), err)
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}

		seq, err := src.Records(r.Context())
		if err != nil {
			AddError(r.Context(), err)
			http.Error(w, "event log unavailable", http.StatusServiceUnavailable)
			return
		}

		w.Header().Set("Content-Type", "application/x-ndjson")
		matched := 0
		for rec := range query.Limit(query.Query(seq, filter), limit) {
			if err := query.Line(w, rec); err != nil {
				AddError(r.Context(), err)
				return
			}
			matched++
		}
		AddLogField(r.Context(), "matched", strconv.Itoa(matched))
	}
}

func parseFilter(r *http.Request) (query.Filter, int, error) {
	q := r.URL.Query()
	f := query.Filter{
		ChargePointID: q.Get("cp"),
		Action:        q.Get("action"),
	}

	if v := q.Get("only_errors"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return f, 0, fmt.Errorf("invalid only_errors %q", v)
		}
		f.OnlyErrors = b
	}
	if v := q.Get("connector"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return f, 0, fmt.Errorf("invalid connector %q", v)
		}
		f.ConnectorID = &n
	}
	if tag := q.Get("idtag"); tag != "" {
		f.IDTag = &tag
	}

	limit := 0
	if v := q.Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			return f, 0, fmt.Errorf("invalid limit %q", v)
		}
		limit = n
	}
	return f, limit, nil
}

// TimeoutMiddleware bounds the request context. Handlers stop when they
// observe ctx.Done(); nothing is forcibly aborted.
func TimeoutMiddleware(timeout time.Duration) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx, cancel := context.WithTimeout(r.Context(), timeout)
			defer cancel()
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
