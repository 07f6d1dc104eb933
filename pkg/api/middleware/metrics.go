package middleware

import (
	"context"
	"net/http"
	"strconv"
	"strings"
	"time"
)

// MetricsRecorder is the slice of the metrics manager this middleware needs.
type MetricsRecorder interface {
	RecordHTTPRequest(ctx context.Context, method, path, status string, duration time.Duration)
	IncActiveConnections()
	DecActiveConnections()
}

// Metrics records one observation per request: method, templated path,
// status, and latency. The /metrics endpoint itself is exempt so Prometheus
// scrapes do not count themselves.
func Metrics(recorder MetricsRecorder) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if strings.HasPrefix(r.URL.Path, "/metrics") {
				next.ServeHTTP(w, r)
				return
			}

			start := time.Now()
			recorder.IncActiveConnections()
			defer recorder.DecActiveConnections()

			wrapped := &metricsResponseWriter{ResponseWriter: w, statusCode: http.StatusOK}

			record := func() {
				recorder.RecordHTTPRequest(r.Context(),
					r.Method,
					templatePath(r.URL.Path),
					strconv.Itoa(wrapped.statusCode),
					time.Since(start),
				)
			}

			// A panicking handler still counts, as a 500, before the
			// recovery middleware above sees the panic.
			defer func() {
				if v := recover(); v != nil {
					wrapped.statusCode = http.StatusInternalServerError
					record()
					panic(v)
				}
			}()

			next.ServeHTTP(wrapped, r)
			record()
		})
	}
}

// metricsResponseWriter keeps the first status written; later writes cannot
// change what was already sent to the client.
type metricsResponseWriter struct {
	http.ResponseWriter
	statusCode int
	written    bool
}

func (rw *metricsResponseWriter) WriteHeader(code int) {
	if !rw.written {
		rw.statusCode = code
		rw.written = true
	}
	rw.ResponseWriter.WriteHeader(code)
}

func (rw *metricsResponseWriter) Write(b []byte) (int, error) {
	rw.written = true
	return rw.ResponseWriter.Write(b)
}

// templatePath collapses id-shaped segments so the path label stays low
// cardinality: /api/v1/orders/1f0c... becomes /api/v1/orders/:id.
func templatePath(path string) string {
	segments := strings.Split(path, "/")
	for i, seg := range segments {
		if seg == "" {
			continue
		}
		if len(seg) == 36 && strings.Count(seg, "-") == 4 {
			segments[i] = ":id"
			continue
		}
		if _, err := strconv.Atoi(seg); err == nil {
			segments[i] = ":id"
		}
	}
	return strings.Join(segments, "/")
}
