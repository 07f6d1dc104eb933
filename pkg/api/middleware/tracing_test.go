package middleware

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	otelcodes "go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/propagation"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
	"go.opentelemetry.io/otel/trace"
)

// installSpanRecorder swaps in a recording tracer provider and returns a
// restore func.
func installSpanRecorder(t *testing.T) (*tracetest.SpanRecorder, func()) {
	t.Helper()

	prevProvider := otel.GetTracerProvider()
	prevPropagator := otel.GetTextMapPropagator()
	recorder := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(recorder))
	otel.SetTracerProvider(tp)
	otel.SetTextMapPropagator(propagation.TraceContext{})

	return recorder, func() {
		_ = tp.Shutdown(context.Background())
		otel.SetTracerProvider(prevProvider)
		otel.SetTextMapPropagator(prevPropagator)
	}
}

func endedSpans(recorder *tracetest.SpanRecorder, want int, timeout time.Duration) []sdktrace.ReadOnlySpan {
	deadline := time.Now().Add(timeout)
	for {
		spans := recorder.Ended()
		if len(spans) >= want || time.Now().After(deadline) {
			return spans
		}
		time.Sleep(10 * time.Millisecond)
	}
}

func intAttribute(attrs []attribute.KeyValue, key string) (int64, bool) {
	for _, attr := range attrs {
		if string(attr.Key) == key {
			return attr.Value.AsInt64(), true
		}
	}
	return 0, false
}

func okHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
}

func TestTracingContinuesInboundTrace(t *testing.T) {
	recorder, restore := installSpanRecorder(t)
	defer restore()

	parent := trace.NewSpanContext(trace.SpanContextConfig{
		TraceID:    trace.TraceID{0xaa, 1, 2, 3, 4, 5, 6, 7, 8, 9, 10, 11, 12, 13, 14, 15},
		SpanID:     trace.SpanID{0xbb, 1, 2, 3, 4, 5, 6, 7},
		TraceFlags: trace.FlagsSampled,
	})
	carrier := propagation.MapCarrier{}
	otel.GetTextMapPropagator().Inject(
		trace.ContextWithSpanContext(context.Background(), parent), carrier)

	handler := Tracing(DefaultTracingOptions())(okHandler())
	req := httptest.NewRequest(http.MethodPost, "/api/v1/orders", nil)
	for k, v := range carrier {
		req.Header.Set(k, v)
	}
	handler.ServeHTTP(httptest.NewRecorder(), req)

	spans := endedSpans(recorder, 1, 500*time.Millisecond)
	if len(spans) != 1 {
		t.Fatalf("expected 1 span, got %d", len(spans))
	}
	if got := spans[0].Parent().TraceID(); got != parent.TraceID() {
		t.Fatalf("continued trace id = %s, want %s", got, parent.TraceID())
	}
}

func TestTracingStartsRootWithoutHeaders(t *testing.T) {
	recorder, restore := installSpanRecorder(t)
	defer restore()

	handler := Tracing(DefaultTracingOptions())(okHandler())
	handler.ServeHTTP(httptest.NewRecorder(),
		httptest.NewRequest(http.MethodGet, "/api/v1/sagas", nil))

	spans := endedSpans(recorder, 1, 500*time.Millisecond)
	if len(spans) != 1 {
		t.Fatalf("expected 1 span, got %d", len(spans))
	}
	if spans[0].Parent().IsValid() {
		t.Fatal("expected a root span without inbound trace headers")
	}
}

func TestTracingSpanNameUsesChiRoute(t *testing.T) {
	recorder, restore := installSpanRecorder(t)
	defer restore()

	router := chi.NewRouter()
	router.Use(Tracing(DefaultTracingOptions()))
	router.Get("/api/v1/orders/{id}", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	router.ServeHTTP(httptest.NewRecorder(),
		httptest.NewRequest(http.MethodGet, "/api/v1/orders/ord-123", nil))

	spans := endedSpans(recorder, 1, 500*time.Millisecond)
	if len(spans) != 1 {
		t.Fatalf("expected 1 span, got %d", len(spans))
	}
	if got := spans[0].Name(); got != "GET /api/v1/orders/{id}" {
		t.Fatalf("span name = %q, want route pattern", got)
	}
}

func TestTracingStatusMapping(t *testing.T) {
	tests := []struct {
		name       string
		statusCode int
		want       otelcodes.Code
	}{
		{name: "2xx ok", statusCode: http.StatusCreated, want: otelcodes.Ok},
		{name: "4xx error", statusCode: http.StatusConflict, want: otelcodes.Error},
		{name: "5xx error", statusCode: http.StatusServiceUnavailable, want: otelcodes.Error},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			recorder, restore := installSpanRecorder(t)
			defer restore()

			handler := Tracing(DefaultTracingOptions())(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
				w.WriteHeader(tt.statusCode)
			}))
			handler.ServeHTTP(httptest.NewRecorder(),
				httptest.NewRequest(http.MethodPost, "/api/v1/orders", nil))

			spans := endedSpans(recorder, 1, 500*time.Millisecond)
			if len(spans) != 1 {
				t.Fatalf("expected 1 span, got %d", len(spans))
			}
			if got := spans[0].Status().Code; got != tt.want {
				t.Fatalf("span status = %v, want %v", got, tt.want)
			}
			if code, ok := intAttribute(spans[0].Attributes(), "http.response.status_code"); !ok || code != int64(tt.statusCode) {
				t.Fatalf("status code attribute = %d (present=%v), want %d", code, ok, tt.statusCode)
			}
		})
	}
}

func TestTracingSkipsHealthAndEventStream(t *testing.T) {
	recorder, restore := installSpanRecorder(t)
	defer restore()

	handler := Tracing(DefaultTracingOptions())(okHandler())
	for _, path := range []string{"/health", "/ready", "/ws/events"} {
		handler.ServeHTTP(httptest.NewRecorder(),
			httptest.NewRequest(http.MethodGet, path, nil))
	}

	if spans := endedSpans(recorder, 1, 200*time.Millisecond); len(spans) != 0 {
		t.Fatalf("expected no spans for skipped paths, got %d", len(spans))
	}
}

func TestInjectOutboundTraceContext(t *testing.T) {
	_, restore := installSpanRecorder(t)
	defer restore()

	ctx, span := otel.Tracer("test").Start(context.Background(), "outbound")
	defer span.End()

	req := httptest.NewRequest(http.MethodGet, "http://mail.internal/send", nil).WithContext(ctx)
	req.Header.Set("x-custom", "1")
	injected := InjectOutboundTraceContext(req)
	if injected == nil {
		t.Fatal("expected non-nil request")
	}
	if injected.Header.Get("traceparent") == "" {
		t.Fatal("expected traceparent header injected")
	}
	if injected.Header.Get("x-custom") != "1" {
		t.Fatal("expected existing headers preserved")
	}
}

func TestNewTracingRequest(t *testing.T) {
	_, restore := installSpanRecorder(t)
	defer restore()

	ctx, span := otel.Tracer("test").Start(context.Background(), "outbound")
	defer span.End()

	req, err := NewTracingRequest(ctx, http.MethodGet, "http://inventory.internal/remaining", nil)
	if err != nil {
		t.Fatalf("NewTracingRequest() error = %v", err)
	}
	if req.Header.Get("traceparent") == "" {
		t.Fatal("expected traceparent header on new request")
	}
}
