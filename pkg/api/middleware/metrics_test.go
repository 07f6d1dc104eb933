package middleware

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"go.opentelemetry.io/otel/trace"
)

// captureRecorder remembers the labels of the last observation and tracks
// the active connection gauge.
type captureRecorder struct {
	calls    int
	method   string
	path     string
	status   string
	traceID  string
	inFlight int
}

func (c *captureRecorder) RecordHTTPRequest(ctx context.Context, method, path, status string, _ time.Duration) {
	c.calls++
	c.method, c.path, c.status = method, path, status
	if sc := trace.SpanContextFromContext(ctx); sc.IsValid() {
		c.traceID = sc.TraceID().String()
	}
}

func (c *captureRecorder) IncActiveConnections() { c.inFlight++ }
func (c *captureRecorder) DecActiveConnections() { c.inFlight-- }

func serveWithMetrics(rec *captureRecorder, req *http.Request, handler http.HandlerFunc) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	Metrics(rec)(handler).ServeHTTP(w, req)
	return w
}

func TestMetricsObservesRequest(t *testing.T) {
	rec := &captureRecorder{}
	w := serveWithMetrics(rec, httptest.NewRequest(http.MethodPost, "/api/v1/orders", nil),
		func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusCreated)
		})

	if w.Code != http.StatusCreated {
		t.Fatalf("status = %d, want 201", w.Code)
	}
	if rec.calls != 1 {
		t.Fatalf("observations = %d, want 1", rec.calls)
	}
	if rec.method != http.MethodPost || rec.path != "/api/v1/orders" || rec.status != "201" {
		t.Fatalf("labels = %s %s %s, want POST /api/v1/orders 201", rec.method, rec.path, rec.status)
	}
	if rec.inFlight != 0 {
		t.Fatalf("in-flight gauge = %d after the request, want 0", rec.inFlight)
	}
}

func TestMetricsTemplatesIDSegments(t *testing.T) {
	rec := &captureRecorder{}
	serveWithMetrics(rec, httptest.NewRequest(http.MethodGet, "/api/v1/orders/550e8400-e29b-41d4-a716-446655440000", nil),
		func(w http.ResponseWriter, r *http.Request) {})

	if rec.path != "/api/v1/orders/:id" {
		t.Fatalf("path label = %q, want /api/v1/orders/:id", rec.path)
	}
}

func TestMetricsSkipsScrapeEndpoint(t *testing.T) {
	rec := &captureRecorder{}
	serveWithMetrics(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil),
		func(w http.ResponseWriter, r *http.Request) {})

	if rec.calls != 0 {
		t.Fatalf("scrapes of /metrics must not be observed, got %d", rec.calls)
	}
}

func TestMetricsImplicitStatusIs200(t *testing.T) {
	rec := &captureRecorder{}
	serveWithMetrics(rec, httptest.NewRequest(http.MethodGet, "/api/v1/events", nil),
		func(w http.ResponseWriter, r *http.Request) {
			w.Write([]byte("[]"))
		})

	if rec.status != "200" {
		t.Fatalf("status label = %q, want 200 for implicit header", rec.status)
	}
}

func TestMetricsFirstStatusWins(t *testing.T) {
	rec := &captureRecorder{}
	serveWithMetrics(rec, httptest.NewRequest(http.MethodGet, "/api/v1/events/evt-1", nil),
		func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusConflict)
			w.WriteHeader(http.StatusOK) // ignored, already sent
		})

	if rec.status != "409" {
		t.Fatalf("status label = %q, want the first written 409", rec.status)
	}
}

func TestMetricsRecordsPanicAs500(t *testing.T) {
	rec := &captureRecorder{}

	defer func() {
		if recover() == nil {
			t.Fatal("the panic must propagate past the metrics middleware")
		}
		if rec.calls != 1 {
			t.Fatalf("observations = %d, a panicking request must still count", rec.calls)
		}
		if rec.status != "500" {
			t.Fatalf("status label = %q, want 500", rec.status)
		}
	}()

	serveWithMetrics(rec, httptest.NewRequest(http.MethodPost, "/api/v1/orders", nil),
		func(http.ResponseWriter, *http.Request) {
			panic("ticket encoder unavailable")
		})
}

func TestMetricsCarriesTraceContext(t *testing.T) {
	sc := trace.NewSpanContext(trace.SpanContextConfig{
		TraceID:    trace.TraceID{1, 1, 1, 1, 1, 1, 1, 1, 1, 1, 1, 1, 1, 1, 1, 1},
		SpanID:     trace.SpanID{2, 2, 2, 2, 2, 2, 2, 2},
		TraceFlags: trace.FlagsSampled,
	})
	ctx := trace.ContextWithSpanContext(context.Background(), sc)

	rec := &captureRecorder{}
	serveWithMetrics(rec, httptest.NewRequest(http.MethodGet, "/api/v1/orders/9", nil).WithContext(ctx),
		func(w http.ResponseWriter, r *http.Request) {})

	if rec.traceID != sc.TraceID().String() {
		t.Fatalf("trace id seen by recorder = %q, want %q", rec.traceID, sc.TraceID())
	}
}

func TestTemplatePath(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"/api/v1/orders/123", "/api/v1/orders/:id"},
		{"/api/v1/orders/550e8400-e29b-41d4-a716-446655440000", "/api/v1/orders/:id"},
		{"/api/v1/orders/123/tickets", "/api/v1/orders/:id/tickets"},
		{"/api/v1/events", "/api/v1/events"},
		{"/health", "/health"},
	}

	for _, tt := range tests {
		if got := templatePath(tt.in); got != tt.want {
			t.Errorf("templatePath(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}
