// Package metrics holds the hub's Prometheus collectors.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Drop reasons for FramesDropped.
const (
	DropBackpressure = "backpressure"
	DropClosed       = "closed"
	DropEncode       = "encode"
)

var (
	// WebSocket Metrics
	ActiveConnections = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "dispatch_ws_connections_active",
		Help: "The current number of open signaling connections.",
	})
	TotalConnections = promauto.NewCounter(prometheus.CounterOpts{
		Name: "dispatch_ws_connections_total",
		Help: "The total number of signaling connections accepted.",
	})
	MessagesReceived = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "dispatch_ws_messages_received_total",
		Help: "Inbound signaling messages by type.",
	}, []string{"type"})
	FramesSent = promauto.NewCounter(prometheus.CounterOpts{
		Name: "dispatch_ws_frames_sent_total",
		Help: "Frames enqueued to a connection.",
	})
	FramesDropped = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "dispatch_ws_frames_dropped_total",
		Help: "Frames that could not be enqueued.",
	}, []string{"reason"})
	RateLimited = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "dispatch_ws_rate_limited_total",
		Help: "Messages refused by a rate limiter.",
	}, []string{"limiter"})

	// Presence Metrics
	OnlineUsers = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "dispatch_presence_online_users",
		Help: "Users with a routable connection.",
	})
	PresenceBroadcasts = promauto.NewCounter(prometheus.CounterOpts{
		Name: "dispatch_presence_broadcasts_total",
		Help: "Presence snapshots published.",
	})
	LocationUpdates = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "dispatch_presence_location_updates_total",
		Help: "Location updates by outcome.",
	}, []string{"outcome"})

	// Call Metrics
	CallsStarted = promauto.NewCounter(prometheus.CounterOpts{
		Name: "dispatch_calls_started_total",
		Help: "Call sessions created.",
	})
	CallsFinished = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "dispatch_calls_finished_total",
		Help: "Call sessions destroyed by terminal state.",
	}, []string{"state"})
	CallsUnavailable = promauto.NewCounter(prometheus.CounterOpts{
		Name: "dispatch_calls_unavailable_total",
		Help: "Initiations whose target was offline.",
	})
	CallsBusy = promauto.NewCounter(prometheus.CounterOpts{
		Name: "dispatch_calls_busy_total",
		Help: "Initiations refused because the pair or target was busy.",
	})
	CallsActive = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "dispatch_calls_active",
		Help: "Live call sessions.",
	})

	HandlerPanics = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "dispatch_handler_panics_total",
		Help: "Recovered panics by component.",
	}, []string{"component"})
)

// Handler exposes the default registry.
func Handler() http.Handler {
	return promhttp.Handler()
}
