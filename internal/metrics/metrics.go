package metrics

import (
	"runtime"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Event pipeline metrics
	eventsProcessed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "marketwatch_events_processed_total",
			Help: "Total number of marketplace events applied to the entity store",
		},
		[]string{"network", "event"},
	)

	eventFailures = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "marketwatch_event_failures_total",
			Help: "Total number of event processing failures by error kind",
		},
		[]string{"network", "kind"},
	)

	lastEventTimestamp = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "marketwatch_last_event_unix_seconds",
			Help: "Unix timestamp of the most recently processed event",
		},
		[]string{"network"},
	)

	queueDepth = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "marketwatch_log_queue_depth",
			Help: "Number of logs waiting in the per-network delivery queue",
		},
		[]string{"network"},
	)

	// Chain call metrics
	chainCallRetries = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "marketwatch_chain_call_retries_total",
			Help: "Total number of retried read-only chain calls",
		},
		[]string{"network", "operation"},
	)

	resubscribes = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "marketwatch_resubscribes_total",
			Help: "Total number of log subscription reconnects",
		},
		[]string{"network"},
	)

	// Dead letter metrics
	deadLetters = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "marketwatch_dead_letters_total",
			Help: "Total number of events persisted to the dead-letter store",
		},
		[]string{"network"},
	)

	// Notification metrics
	notifications = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "marketwatch_notifications_total",
			Help: "Total number of notification deliveries by outcome",
		},
		[]string{"network", "outcome"},
	)

	// System metrics
	goroutineCount = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "marketwatch_goroutines",
			Help: "Current number of goroutines",
		},
	)

	memoryUsage = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "marketwatch_memory_bytes",
			Help: "Current heap memory usage in bytes",
		},
	)
)

// EventProcessedInc records a successfully applied event.
func EventProcessedInc(network, event string) {
	eventsProcessed.WithLabelValues(network, event).Inc()
}

// EventFailureInc records an event processing failure by error kind.
func EventFailureInc(network, kind string) {
	eventFailures.WithLabelValues(network, kind).Inc()
}

// LastEventTimestampSet records the chain timestamp of the latest event.
func LastEventTimestampSet(network string, unixSeconds int64) {
	lastEventTimestamp.WithLabelValues(network).Set(float64(unixSeconds))
}

// QueueDepthSet records the current delivery queue depth.
func QueueDepthSet(network string, depth int) {
	queueDepth.WithLabelValues(network).Set(float64(depth))
}

// ChainCallRetryInc records a retried chain call.
func ChainCallRetryInc(network, operation string) {
	chainCallRetries.WithLabelValues(network, operation).Inc()
}

// ResubscribeInc records a subscription reconnect.
func ResubscribeInc(network string) {
	resubscribes.WithLabelValues(network).Inc()
}

// DeadLetterInc records an event parked in the dead-letter store.
func DeadLetterInc(network string) {
	deadLetters.WithLabelValues(network).Inc()
}

// NotificationSentInc records a delivered notification.
func NotificationSentInc(network string) {
	notifications.WithLabelValues(network, "sent").Inc()
}

// NotificationFailureInc records a failed notification delivery.
func NotificationFailureInc(network string) {
	notifications.WithLabelValues(network, "failed").Inc()
}

// UpdateSystemMetrics refreshes goroutine and memory gauges.
func UpdateSystemMetrics() {
	goroutineCount.Set(float64(runtime.NumGoroutine()))

	var m runtime.MemStats
	runtime.ReadMemStats(&m)
	memoryUsage.Set(float64(m.HeapAlloc))
}
