package observability

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds the service's Prometheus collectors. A nil *Metrics is a no-op.
type Metrics struct {
	requestCount    *prometheus.CounterVec
	requestDuration *prometheus.HistogramVec
	errorCount      *prometheus.CounterVec

	scans          *prometheus.CounterVec
	scanDuration   prometheus.Histogram
	ticketsChecked prometheus.Counter
	transitions    *prometheus.CounterVec
	casConflicts   prometheus.Counter
	emitFailures   prometheus.Counter
	redelivered    prometheus.Counter
}

// NewMetrics registers collectors on reg. Pass prometheus.DefaultRegisterer in
// production and a fresh registry in tests.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		requestCount: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "sla_engine_http_requests_total",
			Help: "Total number of HTTP requests processed",
		}, []string{"method", "path", "status_code"}),
		requestDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "sla_engine_http_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: prometheus.DefBuckets,
		}, []string{"method", "path"}),
		errorCount: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "sla_engine_http_errors_total",
			Help: "Total number of HTTP error responses by code",
		}, []string{"method", "path", "code"}),
		scans: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "sla_engine_scans_total",
			Help: "Detector scans by result",
		}, []string{"result"}), // completed, skipped, failed
		scanDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "sla_engine_scan_duration_seconds",
			Help:    "Detector scan duration in seconds",
			Buckets: []float64{0.05, 0.1, 0.5, 1, 5, 15, 30, 60, 120},
		}),
		ticketsChecked: factory.NewCounter(prometheus.CounterOpts{
			Name: "sla_engine_tickets_checked_total",
			Help: "Tickets classified by the detector",
		}),
		transitions: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "sla_engine_transitions_total",
			Help: "Committed SLA transitions by dimension and kind",
		}, []string{"dimension", "kind"}),
		casConflicts: factory.NewCounter(prometheus.CounterOpts{
			Name: "sla_engine_cas_conflicts_total",
			Help: "Optimistic concurrency conflicts on ticket SLA updates",
		}),
		emitFailures: factory.NewCounter(prometheus.CounterOpts{
			Name: "sla_engine_emit_failures_total",
			Help: "Notification events that could not be handed to the dispatcher",
		}),
		redelivered: factory.NewCounter(prometheus.CounterOpts{
			Name: "sla_engine_outbox_redelivered_total",
			Help: "Outbox events redelivered by a later scan",
		}),
	}
}

// RecordRequest observes one HTTP request.
func (m *Metrics) RecordRequest(path, method string, status int, duration time.Duration) {
	if m == nil {
		return
	}
	m.requestCount.WithLabelValues(method, path, strconv.Itoa(status)).Inc()
	m.requestDuration.WithLabelValues(method, path).Observe(duration.Seconds())
}

// RecordError counts an error response.
func (m *Metrics) RecordError(path, method, code string) {
	if m == nil {
		return
	}
	m.errorCount.WithLabelValues(method, path, code).Inc()
}

// ObserveScan records a finished, skipped or failed scan.
func (m *Metrics) ObserveScan(result string, duration time.Duration) {
	if m == nil {
		return
	}
	m.scans.WithLabelValues(result).Inc()
	if duration > 0 {
		m.scanDuration.Observe(duration.Seconds())
	}
}

// TicketChecked counts one classified ticket.
func (m *Metrics) TicketChecked() {
	if m == nil {
		return
	}
	m.ticketsChecked.Inc()
}

// Transition counts a committed event.
func (m *Metrics) Transition(dimension, kind string) {
	if m == nil {
		return
	}
	m.transitions.WithLabelValues(dimension, kind).Inc()
}

// CASConflict counts a lost optimistic update.
func (m *Metrics) CASConflict() {
	if m == nil {
		return
	}
	m.casConflicts.Inc()
}

// EmitFailure counts an event the dispatcher rejected.
func (m *Metrics) EmitFailure() {
	if m == nil {
		return
	}
	m.emitFailures.Inc()
}

// Redelivered counts outbox events handed off by a later scan.
func (m *Metrics) Redelivered(n int) {
	if m == nil || n <= 0 {
		return
	}
	m.redelivered.Add(float64(n))
}
