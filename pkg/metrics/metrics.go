// Package metrics exposes gateline's Prometheus instrumentation: saga
// outcomes, order throughput, and HTTP latency, served on a dedicated
// scrape port away from the public API.
package metrics

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Manager owns the registry and every metric family gateline records. A
// disabled manager keeps all Record methods as cheap no-ops so call sites
// never branch on configuration.
type Manager struct {
	registry *prometheus.Registry
	enabled  bool

	sagaExecutions           *prometheus.CounterVec
	sagaDuration             *prometheus.HistogramVec
	sagaActive               prometheus.Gauge
	sagaCompensations        *prometheus.CounterVec
	sagaCompensationDuration prometheus.Histogram
	sagaStepRetries          *prometheus.CounterVec

	orderOutcomes *prometheus.CounterVec
	ticketsIssued prometheus.Counter

	httpRequests    *prometheus.CounterVec
	httpDuration    *prometheus.HistogramVec
	httpConnections prometheus.Gauge
}

// Config mirrors the metrics section of gateline's configuration.
type Config struct {
	Enabled bool
	Port    int
	Path    string

	SagaDurationBuckets         []float64
	CompensationDurationBuckets []float64
	HTTPDurationBuckets         []float64
}

// DefaultConfig returns the scrape settings and histogram buckets used when
// the config file does not override them. Saga buckets reach minutes because
// a purchase can sit on inventory retries; HTTP buckets stay sub-second.
func DefaultConfig() Config {
	return Config{
		Enabled: true,
		Port:    9091,
		Path:    "/metrics",
		SagaDurationBuckets:         []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60, 120, 300},
		CompensationDurationBuckets: []float64{0.01, 0.05, 0.1, 0.5, 1, 5, 10, 30},
		HTTPDurationBuckets:         []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 5},
	}
}

// NewManager builds the registry and registers every family, plus the Go
// runtime and process collectors.
func NewManager(cfg Config) *Manager {
	if !cfg.Enabled {
		return &Manager{}
	}

	m := &Manager{
		registry: prometheus.NewRegistry(),
		enabled:  true,
	}
	m.registry.MustRegister(
		prometheus.NewGoCollector(),
		prometheus.NewProcessCollector(prometheus.ProcessCollectorOpts{}),
	)

	m.initSagaMetrics(cfg)
	m.initOrderMetrics(cfg)
	m.initHTTPMetrics(cfg)
	return m
}

// Enabled reports whether this manager records anything.
func (m *Manager) Enabled() bool {
	return m.enabled
}

// Handler serves the scrape endpoint. Disabled managers answer 404 so a
// misconfigured scraper fails loudly instead of collecting nothing.
func (m *Manager) Handler() http.Handler {
	if !m.enabled {
		return http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			w.WriteHeader(http.StatusNotFound)
		})
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// StartServer runs the scrape listener until ctx is canceled. It blocks like
// http.Server.ListenAndServe; main() runs it in its own goroutine.
func (m *Manager) StartServer(ctx context.Context, port int, path string) error {
	if !m.enabled {
		return nil
	}

	mux := http.NewServeMux()
	mux.Handle(path, m.Handler())
	server := &http.Server{Addr: fmt.Sprintf(":%d", port), Handler: mux}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = server.Shutdown(shutdownCtx)
	}()

	return server.ListenAndServe()
}

// NoOpManager returns a disabled manager for tests and metrics-off deploys.
func NoOpManager() *Manager {
	return &Manager{}
}
