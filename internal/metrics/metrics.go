// Package metrics exposes Prometheus collectors for filesystem operations.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "vnodefs"

// Frontend names used as the "frontend" label.
const (
	FrontendFUSE   = "fuse"
	FrontendWebDAV = "webdav"
)

// Metrics holds the operation collectors shared by every frontend.
// All methods are safe on a nil receiver.
type Metrics struct {
	Ops          *prometheus.CounterVec
	OpErrors     *prometheus.CounterVec
	OpDuration   *prometheus.HistogramVec
	ReadBytes    prometheus.Counter
	WrittenBytes prometheus.Counter
	OpenHandles  prometheus.Gauge
}

// New creates and registers the collectors with the given registry.
func New(reg prometheus.Registerer) *Metrics {
	labels := []string{"frontend", "op"}
	m := &Metrics{
		Ops: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "ops_total",
			Help:      "Total filesystem operations.",
		}, labels),
		OpErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "op_errors_total",
			Help:      "Filesystem operations that returned an error.",
		}, labels),
		OpDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "op_duration_seconds",
			Help:      "Duration of filesystem operations.",
			Buckets:   []float64{0.0001, 0.0005, 0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1},
		}, labels),
		ReadBytes: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "read_bytes_total",
			Help:      "Total bytes read from files and devices.",
		}),
		WrittenBytes: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "written_bytes_total",
			Help:      "Total bytes written to files and devices.",
		}),
		OpenHandles: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "open_handles",
			Help:      "Number of currently open file handles.",
		}),
	}

	reg.MustRegister(
		m.Ops,
		m.OpErrors,
		m.OpDuration,
		m.ReadBytes,
		m.WrittenBytes,
		m.OpenHandles,
	)

	return m
}

// Observe records one completed operation that began at start.
func (m *Metrics) Observe(frontend, op string, start time.Time, err error) {
	if m == nil {
		return
	}
	m.Ops.WithLabelValues(frontend, op).Inc()
	if err != nil {
		m.OpErrors.WithLabelValues(frontend, op).Inc()
	}
	m.OpDuration.WithLabelValues(frontend, op).Observe(time.Since(start).Seconds())
}

func (m *Metrics) AddRead(n int) {
	if m == nil || n <= 0 {
		return
	}
	m.ReadBytes.Add(float64(n))
}

func (m *Metrics) AddWritten(n int) {
	if m == nil || n <= 0 {
		return
	}
	m.WrittenBytes.Add(float64(n))
}

func (m *Metrics) HandleOpened() {
	if m != nil {
		m.OpenHandles.Inc()
	}
}

func (m *Metrics) HandleClosed() {
	if m != nil {
		m.OpenHandles.Dec()
	}
}
