package metrics

import (
	"context"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.opentelemetry.io/otel/trace"
)

// initHTTPMetrics initializes HTTP API metrics.
func (m *Manager) initHTTPMetrics(cfg Config) {
	m.httpRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "path", "status"},
	)

	m.httpDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: cfg.HTTPDurationBuckets,
		},
		[]string{"method", "path"},
	)

	m.httpConnections = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "http_active_connections",
			Help: "Current number of active HTTP connections",
		},
	)

	m.registry.MustRegister(m.httpRequests)
	m.registry.MustRegister(m.httpDuration)
	m.registry.MustRegister(m.httpConnections)
}

// traceExemplarLabels derives Prometheus exemplar labels from the sampled
// span in ctx, linking metrics samples to traces.
func traceExemplarLabels(ctx context.Context) (prometheus.Labels, bool) {
	spanCtx := trace.SpanContextFromContext(ctx)
	if !spanCtx.IsValid() || !spanCtx.IsSampled() {
		return nil, false
	}
	return prometheus.Labels{
		"trace_id": spanCtx.TraceID().String(),
		"span_id":  spanCtx.SpanID().String(),
	}, true
}

// RecordHTTPRequest records an HTTP request with method, path, and status.
// When ctx carries a sampled span, samples are recorded with trace exemplars.
func (m *Manager) RecordHTTPRequest(ctx context.Context, method, path, status string, duration time.Duration) {
	if !m.enabled {
		return
	}

	counter := m.httpRequests.WithLabelValues(method, path, status)
	histogram := m.httpDuration.WithLabelValues(method, path)

	labels, ok := traceExemplarLabels(ctx)
	if !ok {
		counter.Inc()
		histogram.Observe(duration.Seconds())
		return
	}

	if adder, isAdder := counter.(prometheus.ExemplarAdder); isAdder {
		adder.AddWithExemplar(1, labels)
	} else {
		counter.Inc()
	}
	if observer, isObserver := histogram.(prometheus.ExemplarObserver); isObserver {
		observer.ObserveWithExemplar(duration.Seconds(), labels)
	} else {
		histogram.Observe(duration.Seconds())
	}
}

// IncActiveConnections increments the active HTTP connections count.
func (m *Manager) IncActiveConnections() {
	if !m.enabled {
		return
	}
	m.httpConnections.Inc()
}

// DecActiveConnections decrements the active HTTP connections count.
func (m *Manager) DecActiveConnections() {
	if !m.enabled {
		return
	}
	m.httpConnections.Dec()
}
