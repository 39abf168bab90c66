package storage

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const (
	statusSuccess = "success"
	statusError   = "error"
)

// Metrics holds the Prometheus collectors for durable I/O. A nil *Metrics
// records nothing.
type Metrics struct {
	operationsTotal   *prometheus.CounterVec
	operationDuration *prometheus.HistogramVec
	attemptsTotal     *prometheus.CounterVec
	retriesTotal      *prometheus.CounterVec
	bytesTotal        *prometheus.CounterVec
}

// NewMetrics creates the collectors and registers them with reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		operationsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "framedb_io_operations_total",
				Help: "Total number of durable I/O operations by outcome",
			},
			[]string{"operation", "status"},
		),

		operationDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "framedb_io_operation_duration_seconds",
				Help:    "Durable I/O operation duration in seconds, backoff included",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"operation"},
		),

		attemptsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "framedb_io_attempts_total",
				Help: "Total number of backend calls, retries included",
			},
			[]string{"operation"},
		),

		retriesTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "framedb_io_retries_total",
				Help: "Total number of retries after transient failures",
			},
			[]string{"operation"},
		),

		bytesTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "framedb_io_bytes_total",
				Help: "Total bytes appended or read",
			},
			[]string{"operation"},
		),
	}
}

// RecordOperation records the outcome of one durable operation.
func (m *Metrics) RecordOperation(operation string, success bool, duration time.Duration) {
	if m == nil {
		return
	}
	status := statusSuccess
	if !success {
		status = statusError
	}
	m.operationsTotal.WithLabelValues(operation, status).Inc()
	m.operationDuration.WithLabelValues(operation).Observe(duration.Seconds())
}

// RecordAttempt records one backend call.
func (m *Metrics) RecordAttempt(operation string) {
	if m == nil {
		return
	}
	m.attemptsTotal.WithLabelValues(operation).Inc()
}

// RecordRetry records a retry after a transient failure.
func (m *Metrics) RecordRetry(operation string) {
	if m == nil {
		return
	}
	m.retriesTotal.WithLabelValues(operation).Inc()
}

// RecordBytes records bytes moved by an operation.
func (m *Metrics) RecordBytes(operation string, n int) {
	if m == nil || n == 0 {
		return
	}
	m.bytesTotal.WithLabelValues(operation).Add(float64(n))
}
