package observability

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Ingest and consumer outcome labels. Terminal failures (invalid, conflict)
// and retryable ones (error) are distinct series.
const (
	OutcomeCreated   = "created"
	OutcomeDuplicate = "duplicate"
	OutcomeIndexed   = "indexed"
	OutcomeInvalid   = "invalid"
	OutcomeConflict  = "conflict"
	OutcomeError     = "error"
)

// Metrics holds all Prometheus metrics for the archive.
type Metrics struct {
	// HTTP metrics
	HTTPRequestsTotal   *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec

	// Pipeline metrics
	IngestTotal      *prometheus.CounterVec
	ConsumedTotal    *prometheus.CounterVec
	ConsumeDuration  *prometheus.HistogramVec
	ReindexQueued    *prometheus.CounterVec
	QueueDepth       prometheus.Gauge
	DeadLetterDepth  prometheus.Gauge

	// Cold tier metrics
	BlobOperationsTotal *prometheus.CounterVec

	registry *prometheus.Registry
}

// NewMetrics creates and registers all metrics on the given registry.
// A nil registry gets a fresh one.
func NewMetrics(registry *prometheus.Registry) *Metrics {
	if registry == nil {
		registry = prometheus.NewRegistry()
	}

	m := &Metrics{
		HTTPRequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "archivist_http_requests_total",
				Help: "Total number of HTTP requests",
			},
			[]string{"method", "path", "status"},
		),
		HTTPRequestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "archivist_http_request_duration_seconds",
				Help:    "HTTP request duration in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"method", "path"},
		),
		IngestTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "archivist_ingest_total",
				Help: "Content submissions by category and outcome",
			},
			[]string{"category", "outcome"},
		),
		ConsumedTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "archivist_consumed_total",
				Help: "Queue messages processed by category and outcome",
			},
			[]string{"category", "outcome"},
		),
		ConsumeDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "archivist_consume_duration_seconds",
				Help:    "Per-message processing duration in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"category"},
		),
		ReindexQueued: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "archivist_reindex_queued_total",
				Help: "Messages fanned out by the bulk enumeration trigger",
			},
			[]string{"category"},
		),
		QueueDepth: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "archivist_queue_depth",
			Help: "Messages waiting on the indexing queue",
		}),
		DeadLetterDepth: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "archivist_dead_letter_depth",
			Help: "Messages parked on the dead-letter list",
		}),
		BlobOperationsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "archivist_blob_operations_total",
				Help: "Cold tier operations by type and result",
			},
			[]string{"operation", "result"},
		),
		registry: registry,
	}

	registry.MustRegister(
		m.HTTPRequestsTotal,
		m.HTTPRequestDuration,
		m.IngestTotal,
		m.ConsumedTotal,
		m.ConsumeDuration,
		m.ReindexQueued,
		m.QueueDepth,
		m.DeadLetterDepth,
		m.BlobOperationsTotal,
	)

	return m
}

// Handler returns the /metrics HTTP handler for this registry.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// ObserveHTTP records one completed HTTP request.
func (m *Metrics) ObserveHTTP(method, path string, status int, duration time.Duration) {
	m.HTTPRequestsTotal.WithLabelValues(method, path, strconv.Itoa(status)).Inc()
	m.HTTPRequestDuration.WithLabelValues(method, path).Observe(duration.Seconds())
}
