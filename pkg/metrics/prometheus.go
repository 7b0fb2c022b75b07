// Package metrics provides Prometheus metrics for the minerwatch feed tracker.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Manager manages all Prometheus metrics for the service.
type Manager struct {
	namespace        string
	subsystem        string
	histogramBuckets []float64
	enabled          bool
	customLabels     map[string]string
	metricPrefix     string
	registry         prometheus.Registerer

	// Stream metrics
	framesReceived   prometheus.Counter
	framesDiscarded  *prometheus.CounterVec
	eventsClassified *prometheus.CounterVec
	eventsUnknown    *prometheus.CounterVec
	processLatency   prometheus.Histogram
	processPanics    prometheus.Counter

	// Identity resolution metrics
	eventsBuffered     prometheus.Counter
	eventsReplayed     prometheus.Counter
	eventsEvicted      *prometheus.CounterVec
	signatureConflicts prometheus.Counter
	minersTotal        prometheus.Gauge
	signaturesTotal    prometheus.Gauge
	pendingEvents      prometheus.Gauge

	// Queue metrics
	queueSize     prometheus.Gauge
	queueCapacity prometheus.Gauge
	queueBlocked  prometheus.Counter

	// Connection metrics
	connectionState   prometheus.Gauge
	dials             *prometheus.CounterVec
	reconnects        prometheus.Counter
	heartbeatFailures prometheus.Counter
	transportErrors   *prometheus.CounterVec
	reconnectDelay    prometheus.Histogram

	// HTTP metrics
	httpRequests        *prometheus.CounterVec
	httpRequestDuration *prometheus.HistogramVec

	// System metrics
	systemMemoryUsage    prometheus.Gauge
	systemGoroutineCount prometheus.Gauge
}

// Global metrics manager instance.
var globalManager *Manager //nolint:gochecknoglobals // intentional global for singleton metrics manager

// Custom registry to avoid default Go metrics.
var customRegistry = prometheus.NewRegistry() //nolint:gochecknoglobals // intentional global for metrics registry

func init() { //nolint:gochecknoinits // intentional init for global metrics setup
	globalManager = NewManager(WithPrometheusRegistry(customRegistry))
}

// NewManager creates a new metrics manager with default configuration.
func NewManager(opts ...Option) *Manager {
	m := &Manager{
		namespace:        "minerwatch",
		subsystem:        "feed",
		histogramBuckets: prometheus.DefBuckets,
		enabled:          true,
		customLabels:     make(map[string]string),
		registry:         prometheus.DefaultRegisterer,
	}

	for _, opt := range opts {
		opt(m)
	}

	// Disabled managers still hand out live collectors, they just are not exposed.
	if !m.enabled {
		m.registry = prometheus.NewRegistry()
	}

	m.initializeMetrics()
	return m
}

func (m *Manager) name(n string) string {
	if m.metricPrefix == "" {
		return n
	}
	return m.metricPrefix + "_" + n
}

func (m *Manager) counterOpts(name, help string) prometheus.CounterOpts {
	return prometheus.CounterOpts{
		Namespace:   m.namespace,
		Subsystem:   m.subsystem,
		Name:        m.name(name),
		Help:        help,
		ConstLabels: m.customLabels,
	}
}

func (m *Manager) gaugeOpts(name, help string) prometheus.GaugeOpts {
	return prometheus.GaugeOpts{
		Namespace:   m.namespace,
		Subsystem:   m.subsystem,
		Name:        m.name(name),
		Help:        help,
		ConstLabels: m.customLabels,
	}
}

func (m *Manager) histogramOpts(name, help string, buckets []float64) prometheus.HistogramOpts {
	return prometheus.HistogramOpts{
		Namespace:   m.namespace,
		Subsystem:   m.subsystem,
		Name:        m.name(name),
		Help:        help,
		Buckets:     buckets,
		ConstLabels: m.customLabels,
	}
}

// initializeMetrics creates all the Prometheus metrics.
func (m *Manager) initializeMetrics() { //nolint:funlen // long function required for comprehensive metrics initialization
	auto := promauto.With(m.registry)

	m.framesReceived = auto.NewCounter(m.counterOpts("frames_received_total",
		"Total number of frames read from the feed"))
	m.framesDiscarded = auto.NewCounterVec(m.counterOpts("frames_discarded_total",
		"Frames dropped before reaching the store, by reason"), []string{"reason"})
	m.eventsClassified = auto.NewCounterVec(m.counterOpts("events_classified_total",
		"Classified events by kind"), []string{"kind"})
	m.eventsUnknown = auto.NewCounterVec(m.counterOpts("events_unrecognized_total",
		"Events whose tag matched no classification rule"), []string{"validity", "phase"})
	m.processLatency = auto.NewHistogram(m.histogramOpts("process_latency_ms",
		"Time to classify and apply one frame in milliseconds",
		[]float64{0.01, 0.05, 0.1, 0.5, 1, 5, 10, 50}))
	m.processPanics = auto.NewCounter(m.counterOpts("process_panics_total",
		"Frames whose processing panicked and was recovered"))

	m.eventsBuffered = auto.NewCounter(m.counterOpts("events_buffered_total",
		"Events parked until their signature resolves to a key"))
	m.eventsReplayed = auto.NewCounter(m.counterOpts("events_replayed_total",
		"Buffered events replayed after their signature resolved"))
	m.eventsEvicted = auto.NewCounterVec(m.counterOpts("events_evicted_total",
		"Buffered events dropped by the retention policy"), []string{"reason"})
	m.signatureConflicts = auto.NewCounter(m.counterOpts("signature_conflicts_total",
		"Attempts to bind a known signature to a different key"))
	m.minersTotal = auto.NewGauge(m.gaugeOpts("miners_total",
		"Number of tracked miner records"))
	m.signaturesTotal = auto.NewGauge(m.gaugeOpts("signatures_total",
		"Number of known signature to key mappings"))
	m.pendingEvents = auto.NewGauge(m.gaugeOpts("pending_events",
		"Events currently waiting for identity resolution"))

	m.queueSize = auto.NewGauge(m.gaugeOpts("queue_size",
		"Frames waiting to be processed"))
	m.queueCapacity = auto.NewGauge(m.gaugeOpts("queue_capacity",
		"Maximum frames the queue holds"))
	m.queueBlocked = auto.NewCounter(m.counterOpts("queue_blocked_total",
		"Enqueue calls that had to wait for space"))

	m.connectionState = auto.NewGauge(m.gaugeOpts("connection_state",
		"Connection state: 0 disconnected, 1 connecting, 2 connected, 3 closed"))
	m.dials = auto.NewCounterVec(m.counterOpts("dials_total",
		"Dial attempts by result"), []string{"result"})
	m.reconnects = auto.NewCounter(m.counterOpts("reconnects_total",
		"Reconnect waits scheduled after a failure"))
	m.heartbeatFailures = auto.NewCounter(m.counterOpts("heartbeat_failures_total",
		"Connections dropped because the heartbeat went unanswered"))
	m.transportErrors = auto.NewCounterVec(m.counterOpts("transport_errors_total",
		"Transport faults by reason"), []string{"reason"})
	m.reconnectDelay = auto.NewHistogram(m.histogramOpts("reconnect_delay_seconds",
		"Delay waited before each reconnect", prometheus.ExponentialBuckets(0.1, 2, 10)))

	m.httpRequests = auto.NewCounterVec(prometheus.CounterOpts{
		Namespace:   m.namespace,
		Subsystem:   "http",
		Name:        m.name("requests_total"),
		Help:        "Total number of HTTP requests",
		ConstLabels: m.customLabels,
	}, []string{"endpoint", "method", "status_code"})
	m.httpRequestDuration = auto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace:   m.namespace,
		Subsystem:   "http",
		Name:        m.name("request_duration_ms"),
		Help:        "HTTP request duration in milliseconds",
		Buckets:     m.histogramBuckets,
		ConstLabels: m.customLabels,
	}, []string{"endpoint", "method", "status_code"})

	m.systemMemoryUsage = auto.NewGauge(prometheus.GaugeOpts{
		Namespace:   m.namespace,
		Subsystem:   "system",
		Name:        m.name("memory_bytes"),
		Help:        "Allocated heap bytes",
		ConstLabels: m.customLabels,
	})
	m.systemGoroutineCount = auto.NewGauge(prometheus.GaugeOpts{
		Namespace:   m.namespace,
		Subsystem:   "system",
		Name:        m.name("goroutines"),
		Help:        "Number of goroutines",
		ConstLabels: m.customLabels,
	})
}

// Stream Metrics Functions.

// RecordFrameReceived increments the received frame counter.
func RecordFrameReceived() {
	globalManager.framesReceived.Inc()
}

// RecordFrameDiscarded counts a frame dropped for the given reason.
func RecordFrameDiscarded(reason string) {
	globalManager.framesDiscarded.WithLabelValues(reason).Inc()
}

// RecordEventClassified counts a classified event by kind.
func RecordEventClassified(kind string) {
	globalManager.eventsClassified.WithLabelValues(kind).Inc()
}

// RecordEventUnrecognized counts an event whose tag matched no rule.
func RecordEventUnrecognized(validity, phase string) {
	globalManager.eventsUnknown.WithLabelValues(validity, phase).Inc()
}

// RecordProcessLatency records per-frame processing latency.
func RecordProcessLatency(latencyMs float64) {
	globalManager.processLatency.Observe(latencyMs)
}

// RecordProcessPanic counts a recovered processing panic.
func RecordProcessPanic() {
	globalManager.processPanics.Inc()
}

// Identity Resolution Metrics Functions.

// RecordEventBuffered counts an event parked in the pending buffer.
func RecordEventBuffered() {
	globalManager.eventsBuffered.Inc()
}

// RecordEventsReplayed counts buffered events replayed after resolution.
func RecordEventsReplayed(n int) {
	globalManager.eventsReplayed.Add(float64(n))
}

// RecordEventsEvicted counts buffered events dropped for the given reason.
func RecordEventsEvicted(reason string, n int) {
	if n <= 0 {
		return
	}
	globalManager.eventsEvicted.WithLabelValues(reason).Add(float64(n))
}

// RecordSignatureConflict counts a rejected signature remap.
func RecordSignatureConflict() {
	globalManager.signatureConflicts.Inc()
}

// UpdateMinersTotal sets the number of tracked miners.
func UpdateMinersTotal(count int) {
	globalManager.minersTotal.Set(float64(count))
}

// UpdateSignaturesTotal sets the number of known signatures.
func UpdateSignaturesTotal(count int) {
	globalManager.signaturesTotal.Set(float64(count))
}

// UpdatePendingEvents sets the number of events awaiting resolution.
func UpdatePendingEvents(count int) {
	globalManager.pendingEvents.Set(float64(count))
}

// Queue Metrics Functions.

// UpdateQueueSize sets the current queue length.
func UpdateQueueSize(size int) {
	globalManager.queueSize.Set(float64(size))
}

// UpdateQueueCapacity sets the queue capacity.
func UpdateQueueCapacity(capacity int) {
	globalManager.queueCapacity.Set(float64(capacity))
}

// RecordQueueBlocked counts an enqueue that waited for space.
func RecordQueueBlocked() {
	globalManager.queueBlocked.Inc()
}

// Connection Metrics Functions.

// UpdateConnectionState sets the connection state gauge.
func UpdateConnectionState(state int) {
	globalManager.connectionState.Set(float64(state))
}

// RecordDial counts a dial attempt; result is "ok" or "error".
func RecordDial(result string) {
	globalManager.dials.WithLabelValues(result).Inc()
}

// RecordReconnect counts a scheduled reconnect and observes its delay.
func RecordReconnect(delaySeconds float64) {
	globalManager.reconnects.Inc()
	globalManager.reconnectDelay.Observe(delaySeconds)
}

// RecordHeartbeatFailure counts a heartbeat timeout.
func RecordHeartbeatFailure() {
	globalManager.heartbeatFailures.Inc()
}

// RecordTransportError counts a transport fault.
func RecordTransportError(reason string) {
	globalManager.transportErrors.WithLabelValues(reason).Inc()
}

// HTTP Metrics Functions.

// RecordHTTPRequest increments the HTTP request counter.
func RecordHTTPRequest(endpoint, method, statusCode string) {
	globalManager.httpRequests.WithLabelValues(endpoint, method, statusCode).Inc()
}

// RecordHTTPRequestDuration records HTTP request duration.
func RecordHTTPRequestDuration(endpoint, method, statusCode string, duration float64) {
	globalManager.httpRequestDuration.WithLabelValues(endpoint, method, statusCode).Observe(duration)
}

// System Metrics Functions.

// UpdateSystemMemoryUsage sets the system memory usage in bytes.
func UpdateSystemMemoryUsage(bytes uint64) {
	globalManager.systemMemoryUsage.Set(float64(bytes))
}

// UpdateSystemGoroutineCount sets the number of goroutines.
func UpdateSystemGoroutineCount(count int) {
	globalManager.systemGoroutineCount.Set(float64(count))
}

// GetRegistry returns the custom Prometheus registry used by our metrics.
func GetRegistry() *prometheus.Registry {
	return customRegistry
}
