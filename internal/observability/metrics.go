package observability

import (
	"strconv"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Transition and telemetry outcome labels.
const (
	TransitionStarted    = "started"
	TransitionRedirected = "redirected"
	TransitionCompleted  = "completed"
	TransitionCancelled  = "cancelled"
	TransitionRejected   = "rejected"

	TelemetryCompleted   = "completed"
	TelemetrySuperseded  = "superseded"
	TelemetryNoEquipment = "no_equipment"
	TelemetryTimeout     = "timeout"
	TelemetryRejected    = "rejected"
	TelemetryFailed      = "failed"
)

var (
	registerOnce sync.Once

	viewpointTransitions = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "twinctl",
			Subsystem: "viewpoint",
			Name:      "transitions_total",
			Help:      "Viewpoint transition lifecycle events.",
		},
		[]string{"outcome"},
	)
	telemetryRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "twinctl",
			Subsystem: "telemetry",
			Name:      "requests_total",
			Help:      "Telemetry request terminal outcomes.",
		},
		[]string{"outcome"},
	)
	telemetryStaleDrops = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "twinctl",
			Subsystem: "telemetry",
			Name:      "stale_drops_total",
			Help:      "Responses discarded because a newer request superseded them.",
		},
	)
	wireMessages = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "twinctl",
			Subsystem: "transport",
			Name:      "messages_total",
			Help:      "Wire messages by direction and type.",
		},
		[]string{"direction", "type"},
	)
	httpRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "twinctl",
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Diagnostics API requests.",
		},
		[]string{"method", "path", "status"},
	)
	httpDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "twinctl",
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "Diagnostics API request duration in seconds.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"method", "path", "status"},
	)
)

func RegisterMetrics() {
	registerOnce.Do(func() {
		prometheus.MustRegister(
			viewpointTransitions,
			telemetryRequests,
			telemetryStaleDrops,
			wireMessages,
			httpRequests,
			httpDuration,
		)
	})
}

func RecordTransition(outcome string) {
	RegisterMetrics()
	viewpointTransitions.WithLabelValues(outcome).Inc()
}

func RecordTelemetry(outcome string) {
	RegisterMetrics()
	telemetryRequests.WithLabelValues(outcome).Inc()
}

func RecordStaleDrop() {
	RegisterMetrics()
	telemetryStaleDrops.Inc()
}

func RecordWireMessage(direction, msgType string) {
	RegisterMetrics()
	wireMessages.WithLabelValues(direction, msgType).Inc()
}

func RecordHTTPRequest(method, path string, status int, duration time.Duration) {
	RegisterMetrics()
	statusLabel := strconv.Itoa(status)
	httpRequests.WithLabelValues(method, path, statusLabel).Inc()
	httpDuration.WithLabelValues(method, path, statusLabel).Observe(duration.Seconds())
}
