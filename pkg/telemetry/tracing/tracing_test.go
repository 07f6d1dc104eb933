package tracing

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/gateline/gateline/config"
	"go.opentelemetry.io/otel"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
)

func enabledTracingConfig() config.TracingConfig {
	return config.TracingConfig{
		Enabled:    true,
		Exporter:   "otlpgrpc",
		Endpoint:   "localhost:4317",
		Timeout:    200 * time.Millisecond,
		Sampler:    "always_on",
		SampleRate: 1.0,
	}
}

func stubExporter(t *testing.T, exp sdktrace.SpanExporter) {
	t.Helper()
	orig := newOTLPExporter
	t.Cleanup(func() { newOTLPExporter = orig })
	newOTLPExporter = func(context.Context, config.TracingConfig) (sdktrace.SpanExporter, error) {
		return exp, nil
	}
}

type recordingExporter struct {
	exportCalls    int
	shutdownCalled bool
	exportErr      error
}

func (r *recordingExporter) ExportSpans(context.Context, []sdktrace.ReadOnlySpan) error {
	r.exportCalls++
	return r.exportErr
}

func (r *recordingExporter) Shutdown(context.Context) error {
	r.shutdownCalled = true
	return nil
}

type stallingExporter struct{}

func (stallingExporter) ExportSpans(context.Context, []sdktrace.ReadOnlySpan) error {
	return nil
}

func (stallingExporter) Shutdown(ctx context.Context) error {
	<-ctx.Done()
	return ctx.Err()
}

func TestInitDisabledSkipsExporter(t *testing.T) {
	orig := newOTLPExporter
	t.Cleanup(func() { newOTLPExporter = orig })

	built := false
	newOTLPExporter = func(context.Context, config.TracingConfig) (sdktrace.SpanExporter, error) {
		built = true
		return &recordingExporter{}, nil
	}

	shutdown, err := Init(context.Background(), config.TracingConfig{Enabled: false}, "gateline", "test")
	if err != nil {
		t.Fatalf("Init() error = %v", err)
	}
	if built {
		t.Fatal("disabled tracing must not build an exporter")
	}
	if err := shutdown(context.Background()); err != nil {
		t.Fatalf("shutdown() error = %v", err)
	}
}

func TestInitValidatesConfig(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*config.TracingConfig)
		wantMsg string
	}{
		{"missing exporter", func(c *config.TracingConfig) { c.Exporter = "" }, "exporter"},
		{"missing endpoint", func(c *config.TracingConfig) { c.Endpoint = "" }, "endpoint"},
		{"zero timeout", func(c *config.TracingConfig) { c.Timeout = 0 }, "timeout"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := enabledTracingConfig()
			tt.mutate(&cfg)
			_, err := Init(context.Background(), cfg, "gateline", "test")
			if err == nil {
				t.Fatal("expected validation error")
			}
			if !strings.Contains(err.Error(), tt.wantMsg) {
				t.Fatalf("error = %v, want mention of %q", err, tt.wantMsg)
			}
		})
	}
}

func TestInitAndShutdown(t *testing.T) {
	exp := &recordingExporter{}
	stubExporter(t, exp)

	cfg := enabledTracingConfig()
	cfg.Endpoint = "http://localhost:4317/v1/traces"
	cfg.Headers = map[string]string{"x-team": "ticketing"}
	cfg.Sampler = "parentbased_traceidratio"
	cfg.SampleRate = 0.1

	shutdown, err := Init(context.Background(), cfg, "gateline", "test")
	if err != nil {
		t.Fatalf("Init() error = %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := shutdown(ctx); err != nil {
		t.Fatalf("shutdown() error = %v", err)
	}
	if !exp.shutdownCalled {
		t.Fatal("expected exporter shutdown")
	}
}

func TestExportFailureIsReportedAndDropped(t *testing.T) {
	exp := &recordingExporter{exportErr: errors.New("collector unavailable")}
	stubExporter(t, exp)

	origReporter := reportExporterFailure
	t.Cleanup(func() { reportExporterFailure = origReporter })

	reported := 0
	reportExporterFailure = func(err error, kind, endpoint string, spanCount int) {
		reported++
		if err == nil || kind == "" || endpoint == "" || spanCount <= 0 {
			t.Fatalf("incomplete failure report: err=%v kind=%q endpoint=%q spans=%d",
				err, kind, endpoint, spanCount)
		}
	}

	shutdown, err := Init(context.Background(), enabledTracingConfig(), "gateline", "test")
	if err != nil {
		t.Fatalf("Init() error = %v", err)
	}

	_, span := otel.Tracer("test").Start(context.Background(), "purchase")
	span.End()

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := shutdown(ctx); err != nil {
		t.Fatalf("a failed export must not fail shutdown: %v", err)
	}
	if exp.exportCalls == 0 {
		t.Fatal("expected export attempts")
	}
	if reported == 0 {
		t.Fatal("expected the failure to be reported")
	}
}

func TestShutdownHonorsContextDeadline(t *testing.T) {
	stubExporter(t, stallingExporter{})

	shutdown, err := Init(context.Background(), enabledTracingConfig(), "gateline", "test")
	if err != nil {
		t.Fatalf("Init() error = %v", err)
	}

	start := time.Now()
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	if err := shutdown(ctx); err == nil {
		t.Fatal("expected a deadline error from shutdown")
	}
	if elapsed := time.Since(start); elapsed > 500*time.Millisecond {
		t.Fatalf("shutdown outlived its deadline, elapsed=%v", elapsed)
	}
}

func TestSelectSampler(t *testing.T) {
	tests := []struct {
		sampler string
		want    string
	}{
		{"always_on", "AlwaysOnSampler"},
		{"always_off", "AlwaysOffSampler"},
		{"parentbased_traceidratio", "ParentBased"},
	}

	for _, tt := range tests {
		got := selectSampler(config.TracingConfig{Sampler: tt.sampler, SampleRate: 0.25}).Description()
		if !strings.Contains(got, tt.want) {
			t.Fatalf("selectSampler(%q).Description() = %q, want contains %q", tt.sampler, got, tt.want)
		}
	}
}

func TestNormalizeEndpoint(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"localhost:4317", "localhost:4317"},
		{"  collector:4317  ", "collector:4317"},
		{"http://localhost:4317/v1/traces", "localhost:4317"},
		{"", ""},
	}

	for _, tt := range tests {
		if got := normalizeEndpoint(tt.in); got != tt.want {
			t.Fatalf("normalizeEndpoint(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}
