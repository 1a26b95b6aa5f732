/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package telemetry

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// ListenersActive is the number of registered listeners per concert.
	ListenersActive = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "encore_listeners_active",
		Help: "Listeners currently registered with a broadcast",
	}, []string{"concert_id"})

	// ListenersTotal counts listener joins.
	ListenersTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "encore_listeners_total",
		Help: "Listener joins since process start",
	}, []string{"concert_id"})

	// FramesProduced counts frames emitted by a feed, split by source.
	FramesProduced = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "encore_feed_frames_produced_total",
		Help: "Frames produced by the broadcast feed",
	}, []string{"concert_id", "source"})

	// FramesDropped counts frames discarded from slow subscriber queues.
	FramesDropped = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "encore_feed_frames_dropped_total",
		Help: "Frames dropped because a subscriber queue was full",
	}, []string{"concert_id"})

	// BroadcastStarts counts start attempts by outcome.
	BroadcastStarts = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "encore_broadcast_starts_total",
		Help: "Broadcast start attempts",
	}, []string{"result"})

	// BroadcastCompletions counts playlists played to the end.
	BroadcastCompletions = promauto.NewCounter(prometheus.CounterOpts{
		Name: "encore_broadcast_completions_total",
		Help: "Broadcasts whose playlist was played to the end",
	})

	// CompileDuration observes playlist compilation time.
	CompileDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "encore_playlist_compile_duration_seconds",
		Help:    "Playlist compilation time",
		Buckets: []float64{0.5, 1, 2, 5, 10, 30, 60, 120, 300},
	})

	// SignalingErrors counts rejected signaling messages by message type.
	SignalingErrors = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "encore_signaling_errors_total",
		Help: "Signaling messages rejected by the coordinator",
	}, []string{"type"})

	// DeliveryFailures counts isolated per-listener send failures.
	DeliveryFailures = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "encore_delivery_failures_total",
		Help: "Per-listener delivery failures",
	}, []string{"kind"})

	// Reactions counts emoji reactions relayed.
	Reactions = promauto.NewCounter(prometheus.CounterOpts{
		Name: "encore_reactions_total",
		Help: "Emoji reactions relayed to listeners",
	})

	// DatabaseQueryDuration observes gorm operation latency.
	DatabaseQueryDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "encore_db_query_duration_seconds",
		Help:    "Database operation duration",
		Buckets: []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1},
	}, []string{"operation", "table"})

	// DatabaseErrorsTotal counts failed database operations.
	DatabaseErrorsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "encore_db_errors_total",
		Help: "Database operations that returned an error",
	}, []string{"operation"})

	// DatabaseConnectionsOpen is the size of the connection pool.
	DatabaseConnectionsOpen = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "encore_db_connections_open",
		Help: "Open database connections",
	})

	// APIRequestDuration observes HTTP handler latency.
	APIRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "encore_api_request_duration_seconds",
		Help:    "HTTP request duration",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "endpoint", "status"})

	// APIRequestsTotal counts HTTP requests.
	APIRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "encore_api_requests_total",
		Help: "HTTP requests",
	}, []string{"method", "endpoint", "status"})

	// APIActiveConnections is the number of in-flight HTTP requests,
	// including open signaling websockets.
	APIActiveConnections = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "encore_api_active_connections",
		Help: "In-flight HTTP requests",
	})
)

// Handler exposes the metrics endpoint.
func Handler() http.Handler {
	return promhttp.Handler()
}
