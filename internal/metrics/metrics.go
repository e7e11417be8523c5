// Package metrics holds the Prometheus collectors exported on the admin
// listener.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// FramesTotal counts recorded frames by outcome: call, callresult,
	// callerror or the decode error kind.
	FramesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ocpp_sniffer_frames_total",
			Help: "Total number of frames recorded, by decode outcome",
		},
		[]string{"kind"},
	)

	FrameBytesTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "ocpp_sniffer_frame_bytes_total",
			Help: "Total bytes of frame data received",
		},
	)

	StoreDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "ocpp_sniffer_store_append_duration_seconds",
			Help:    "Duration of primary log appends in seconds",
			Buckets: prometheus.DefBuckets,
		},
	)

	StoreErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ocpp_sniffer_store_errors_total",
			Help: "Total number of failed appends, by sink",
		},
		[]string{"sink"},
	)

	PublishErrors = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "ocpp_sniffer_publish_errors_total",
			Help: "Total number of failed event bus publishes",
		},
	)

	ConnectionsActive = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "ocpp_sniffer_connections_active",
			Help: "Number of open charge point connections",
		},
	)

	ConnectionsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "ocpp_sniffer_connections_total",
			Help: "Total number of accepted charge point connections",
		},
	)
)
