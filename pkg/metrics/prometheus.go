package metrics

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus metrics for the relay
type Metrics struct {
	registry *prometheus.Registry

	// HTTP request metrics
	httpRequestsTotal    *prometheus.CounterVec
	httpRequestDuration  *prometheus.HistogramVec
	httpRequestsInFlight prometheus.Gauge

	// WebSocket metrics
	websocketConnections   prometheus.Gauge
	websocketMessagesTotal *prometheus.CounterVec

	// Envelope metrics
	envelopesStoredTotal prometheus.Counter
	envelopesAckedTotal  prometheus.Counter
	envelopesPurgedTotal prometheus.Counter

	// Key bundle metrics
	bundlesPublishedTotal  prometheus.Counter
	oneTimeKeysServedTotal prometheus.Counter

	// Push metrics (websocket and offline providers)
	pushDeliveredTotal *prometheus.CounterVec
	pushMissedTotal    *prometheus.CounterVec

	// Rate limiting metrics
	rateLimitBlockedTotal *prometheus.CounterVec
}

// NewMetrics creates and registers all Prometheus metrics on a private registry
func NewMetrics(serviceName string) *Metrics {
	registry := prometheus.NewRegistry()
	factory := promauto.With(registry)
	labels := prometheus.Labels{"service": serviceName}

	return &Metrics{
		registry: registry,

		httpRequestsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name:        "http_requests_total",
				Help:        "Total number of HTTP requests",
				ConstLabels: labels,
			},
			[]string{"method", "endpoint", "status"},
		),
		httpRequestDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:        "http_request_duration_seconds",
				Help:        "HTTP request latency in seconds",
				ConstLabels: labels,
				Buckets:     prometheus.DefBuckets,
			},
			[]string{"method", "endpoint"},
		),
		httpRequestsInFlight: factory.NewGauge(
			prometheus.GaugeOpts{
				Name:        "http_requests_in_flight",
				Help:        "Number of HTTP requests currently being processed",
				ConstLabels: labels,
			},
		),

		websocketConnections: factory.NewGauge(
			prometheus.GaugeOpts{
				Name:        "websocket_connections",
				Help:        "Number of live presence connections",
				ConstLabels: labels,
			},
		),
		websocketMessagesTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name:        "websocket_messages_total",
				Help:        "Total number of WebSocket frames by type and direction",
				ConstLabels: labels,
			},
			[]string{"type", "direction"},
		),

		envelopesStoredTotal: factory.NewCounter(
			prometheus.CounterOpts{
				Name:        "envelopes_stored_total",
				Help:        "Total number of envelopes durably stored",
				ConstLabels: labels,
			},
		),
		envelopesAckedTotal: factory.NewCounter(
			prometheus.CounterOpts{
				Name:        "envelopes_acked_total",
				Help:        "Total number of envelopes transitioned to delivered",
				ConstLabels: labels,
			},
		),
		envelopesPurgedTotal: factory.NewCounter(
			prometheus.CounterOpts{
				Name:        "envelopes_purged_total",
				Help:        "Total number of envelopes removed by the retention sweep",
				ConstLabels: labels,
			},
		),

		bundlesPublishedTotal: factory.NewCounter(
			prometheus.CounterOpts{
				Name:        "key_bundles_published_total",
				Help:        "Total number of key bundle publishes",
				ConstLabels: labels,
			},
		),
		oneTimeKeysServedTotal: factory.NewCounter(
			prometheus.CounterOpts{
				Name:        "one_time_pre_keys_served_total",
				Help:        "Total number of one-time pre-keys consumed by fetches",
				ConstLabels: labels,
			},
		),

		pushDeliveredTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name:        "push_delivered_total",
				Help:        "Total number of new-message pushes delivered, by transport",
				ConstLabels: labels,
			},
			[]string{"transport"},
		),
		pushMissedTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name:        "push_missed_total",
				Help:        "Total number of new-message pushes that found no reachable device",
				ConstLabels: labels,
			},
			[]string{"transport"},
		),

		rateLimitBlockedTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name:        "rate_limit_blocked_total",
				Help:        "Total number of requests blocked by rate limiting",
				ConstLabels: labels,
			},
			[]string{"endpoint"},
		),
	}
}

// GetRegistry returns the private registry for the metrics endpoint
func (m *Metrics) GetRegistry() *prometheus.Registry {
	return m.registry
}

// RecordHTTPRequest records an HTTP request with its duration
func (m *Metrics) RecordHTTPRequest(method, endpoint string, statusCode int, duration time.Duration) {
	m.httpRequestsTotal.WithLabelValues(method, endpoint, strconv.Itoa(statusCode)).Inc()
	m.httpRequestDuration.WithLabelValues(method, endpoint).Observe(duration.Seconds())
}

// IncrementHTTPRequestsInFlight increments the in-flight gauge
func (m *Metrics) IncrementHTTPRequestsInFlight() {
	m.httpRequestsInFlight.Inc()
}

// DecrementHTTPRequestsInFlight decrements the in-flight gauge
func (m *Metrics) DecrementHTTPRequestsInFlight() {
	m.httpRequestsInFlight.Dec()
}

// WebSocketConnected records a new live connection
func (m *Metrics) WebSocketConnected() {
	m.websocketConnections.Inc()
}

// WebSocketDisconnected records a closed live connection
func (m *Metrics) WebSocketDisconnected() {
	m.websocketConnections.Dec()
}

// RecordWebSocketMessage records a WebSocket frame
func (m *Metrics) RecordWebSocketMessage(msgType, direction string) {
	m.websocketMessagesTotal.WithLabelValues(msgType, direction).Inc()
}

// RecordEnvelopeStored records a durable envelope write
func (m *Metrics) RecordEnvelopeStored() {
	m.envelopesStoredTotal.Inc()
}

// RecordEnvelopesAcked records acknowledged envelopes
func (m *Metrics) RecordEnvelopesAcked(count int) {
	m.envelopesAckedTotal.Add(float64(count))
}

// RecordEnvelopesPurged records envelopes removed by the retention sweep
func (m *Metrics) RecordEnvelopesPurged(count int) {
	m.envelopesPurgedTotal.Add(float64(count))
}

// RecordBundlePublished records a key bundle publish
func (m *Metrics) RecordBundlePublished() {
	m.bundlesPublishedTotal.Inc()
}

// RecordOneTimeKeyServed records a consumed one-time pre-key
func (m *Metrics) RecordOneTimeKeyServed() {
	m.oneTimeKeysServedTotal.Inc()
}

// RecordPushDelivered records a delivered new-message push
func (m *Metrics) RecordPushDelivered(transport string) {
	m.pushDeliveredTotal.WithLabelValues(transport).Inc()
}

// RecordPushMissed records a push attempt that found no reachable device
func (m *Metrics) RecordPushMissed(transport string) {
	m.pushMissedTotal.WithLabelValues(transport).Inc()
}

// RecordRateLimitBlocked records a request blocked by rate limiting
func (m *Metrics) RecordRateLimitBlocked(endpoint string) {
	m.rateLimitBlockedTotal.WithLabelValues(endpoint).Inc()
}
