// Package recorder turns raw frames into persisted event records. Each frame
// is decoded, stamped with the current UTC time, appended to the primary log
// and then fanned out to any mirrors and the event bus.
package recorder

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/tjfontaine/ocpp-sniffer/internal/codec/ocpp"
	"github.com/tjfontaine/ocpp-sniffer/internal/core/domain"
	"github.com/tjfontaine/ocpp-sniffer/internal/core/ports"
	"github.com/tjfontaine/ocpp-sniffer/internal/logging"
	"github.com/tjfontaine/ocpp-sniffer/internal/metrics"
)

// ErrStoreWrite wraps failures of the primary sink. The record was not
// persisted.
var ErrStoreWrite = errors.New("store write failed")

const persistTimeout = 5 * time.Second

// Recorder decodes and persists frames. It is safe for concurrent use as long
// as its sinks are.
type Recorder struct {
	sink      ports.EventSink
	mirrors   []ports.EventSink
	publisher ports.EventPublisher
	clock     func() time.Time
	logger    *slog.Logger
	tracer    trace.Tracer
}

// Option configures a Recorder.
type Option func(*Recorder)

// WithClock overrides the timestamp source.
func WithClock(clock func() time.Time) Option {
	return func(r *Recorder) { r.clock = clock }
}

// WithMirror adds a secondary sink written after the primary one.
func WithMirror(sink ports.EventSink) Option {
	return func(r *Recorder) {
		if sink != nil {
			r.mirrors = append(r.mirrors, sink)
		}
	}
}

// WithPublisher sets the event bus that receives every persisted record.
func WithPublisher(p ports.EventPublisher) Option {
	return func(r *Recorder) { r.publisher = p }
}

// WithLogger sets the logger used for mirror and publish failures.
func WithLogger(logger *slog.Logger) Option {
	return func(r *Recorder) { r.logger = logger }
}

// New creates a Recorder appending to sink.
func New(sink ports.EventSink, opts ...Option) (*Recorder, error) {
	if sink == nil {
		return nil, fmt.Errorf("event sink required")
	}
	r := &Recorder{
		sink:   sink,
		clock:  time.Now,
		logger: slog.Default(),
		tracer: otel.Tracer("ocpp-sniffer/recorder"),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r, nil
}

// Record decodes raw, appends the resulting record to the primary sink and
// returns it. Decode failures are recorded like any other frame. Only a
// primary sink failure is returned, wrapped in ErrStoreWrite.
func (r *Recorder) Record(ctx context.Context, chargePointID, raw string) (domain.EventRecord, error) {
	ctx, span := r.tracer.Start(ctx, "ocpp.record", trace.WithAttributes(
		attribute.String("ocpp.charge_point_id", chargePointID),
	))
	defer span.End()

	decoded := ocpp.Decode(raw)
	rec := domain.EventRecord{
		Timestamp:     r.clock().UTC(),
		ChargePointID: chargePointID,
		Raw:           raw,
		Decoded:       decoded,
	}

	kind := outcome(decoded)
	span.SetAttributes(attribute.String("ocpp.outcome", kind))
	if uid, ok := domain.UniqueIDOf(decoded); ok {
		span.SetAttributes(attribute.String("ocpp.unique_id", uid))
	}
	metrics.FramesTotal.WithLabelValues(kind).Inc()
	metrics.FrameBytesTotal.Add(float64(len(raw)))

	// A frame that arrived must be persisted even if the connection is
	// torn down meanwhile.
	persistCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), persistTimeout)
	defer cancel()

	start := time.Now()
	err := r.sink.Append(persistCtx, &rec)
	metrics.StoreDuration.Observe(time.Since(start).Seconds())
	if err != nil {
		metrics.StoreErrors.WithLabelValues("primary").Inc()
		span.RecordError(err)
		span.SetStatus(codes.Error, "append failed")
		return rec, fmt.Errorf("%w: %w", ErrStoreWrite, err)
	}

	for _, mirror := range r.mirrors {
		if err := mirror.Append(persistCtx, &rec); err != nil {
			metrics.StoreErrors.WithLabelValues("mirror").Inc()
			r.logger.Warn("mirror append failed",
				logging.ChargePoint(chargePointID),
				logging.Error(err),
			)
		}
	}

	if r.publisher != nil {
		if err := r.publisher.Publish(persistCtx, &rec); err != nil {
			metrics.PublishErrors.Inc()
			r.logger.Warn("event publish failed",
				logging.ChargePoint(chargePointID),
				logging.Error(err),
			)
		}
	}

	return rec, nil
}

// Close closes mirrors and the publisher. The primary sink is owned by the
// caller.
func (r *Recorder) Close() error {
	var errs []error
	for _, mirror := range r.mirrors {
		errs = append(errs, mirror.Close())
	}
	if r.publisher != nil {
		errs = append(errs, r.publisher.Close())
	}
	return errors.Join(errs...)
}

func outcome(d domain.Decoded) string {
	switch v := d.(type) {
	case *domain.Call:
		return "call"
	case *domain.CallResult:
		return "callresult"
	case *domain.CallError:
		return "callerror"
	case *domain.DecodeError:
		return string(v.Kind)
	}
	return "unknown"
}
