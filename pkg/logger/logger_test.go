package logger

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"go.opentelemetry.io/otel/trace"
)

// fileLogger builds a JSON logger writing to a temp file and returns a
// function that closes the logger and decodes the first record.
func fileLogger(t *testing.T, level Level) (Logger, func() map[string]any) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "gateline.log")
	log := New(&Config{Level: level, Format: "json", Output: path})

	return log, func() map[string]any {
		if err := log.Close(); err != nil {
			t.Fatalf("close logger: %v", err)
		}
		raw, err := os.ReadFile(path)
		if err != nil {
			t.Fatalf("read log file: %v", err)
		}
		if len(raw) == 0 {
			t.Fatal("expected a log record, file is empty")
		}
		var record map[string]any
		if err := json.Unmarshal(raw[:firstLine(raw)], &record); err != nil {
			t.Fatalf("decode log record: %v", err)
		}
		return record
	}
}

func firstLine(b []byte) int {
	for i, c := range b {
		if c == '\n' {
			return i
		}
	}
	return len(b)
}

func TestParseLevel(t *testing.T) {
	tests := []struct {
		input string
		want  Level
	}{
		{"debug", DebugLevel},
		{"info", InfoLevel},
		{"warn", WarnLevel},
		{"warning", WarnLevel},
		{"error", ErrorLevel},
		{"verbose", InfoLevel},
		{"", InfoLevel},
	}

	for _, tt := range tests {
		if got := ParseLevel(tt.input); got != tt.want {
			t.Errorf("ParseLevel(%q) = %v, want %v", tt.input, got, tt.want)
		}
	}
}

func TestLevelString(t *testing.T) {
	tests := []struct {
		level Level
		want  string
	}{
		{DebugLevel, "debug"},
		{InfoLevel, "info"},
		{WarnLevel, "warn"},
		{ErrorLevel, "error"},
		{Level(42), "unknown"},
	}

	for _, tt := range tests {
		if got := tt.level.String(); got != tt.want {
			t.Errorf("Level(%d).String() = %q, want %q", tt.level, got, tt.want)
		}
	}
}

func TestNewNilConfigUsesDefaults(t *testing.T) {
	log := New(nil)
	if log == nil {
		t.Fatal("expected a logger from nil config")
	}
	if got := log.GetLevel(); got != InfoLevel {
		t.Fatalf("default level = %v, want info", got)
	}
}

func TestRecordUsesRenamedKeys(t *testing.T) {
	log, decode := fileLogger(t, InfoLevel)
	log.Info("order confirmed", "order_id", "ord-123")

	record := decode()
	if record["message"] != "order confirmed" {
		t.Fatalf(`record["message"] = %v, want "order confirmed"`, record["message"])
	}
	if record["level"] != "INFO" {
		t.Fatalf(`record["level"] = %v, want INFO`, record["level"])
	}
	if _, present := record["msg"]; present {
		t.Fatal("slog's default msg key must be renamed")
	}
	if record["order_id"] != "ord-123" {
		t.Fatalf("order_id = %v, want ord-123", record["order_id"])
	}
}

func TestContextMethodsAttachTraceFields(t *testing.T) {
	sc := trace.NewSpanContext(trace.SpanContextConfig{
		TraceID:    trace.TraceID{1, 2, 3, 4, 5, 6, 7, 8, 9, 10, 11, 12, 13, 14, 15, 16},
		SpanID:     trace.SpanID{1, 2, 3, 4, 5, 6, 7, 8},
		TraceFlags: trace.FlagsSampled,
	})
	ctx := trace.ContextWithSpanContext(context.Background(), sc)

	log, decode := fileLogger(t, InfoLevel)
	log.InfoContext(ctx, "reservation held", "event_id", "evt-9")

	record := decode()
	if record["trace_id"] != sc.TraceID().String() {
		t.Fatalf("trace_id = %v, want %s", record["trace_id"], sc.TraceID())
	}
	if record["span_id"] != sc.SpanID().String() {
		t.Fatalf("span_id = %v, want %s", record["span_id"], sc.SpanID())
	}
}

func TestContextMethodsWithoutSpanOmitTraceFields(t *testing.T) {
	log, decode := fileLogger(t, InfoLevel)
	log.InfoContext(context.Background(), "waitlist updated")

	record := decode()
	if _, present := record["trace_id"]; present {
		t.Fatal("trace_id must not appear without an active span")
	}
}

func TestSetLevelTakesEffect(t *testing.T) {
	log, decode := fileLogger(t, ErrorLevel)

	log.Debug("suppressed")
	log.SetLevel(DebugLevel)
	if got := log.GetLevel(); got != DebugLevel {
		t.Fatalf("GetLevel() = %v after SetLevel(debug)", got)
	}
	log.Debug("inventory snapshot", "remaining", 4)

	record := decode()
	if record["message"] != "inventory snapshot" {
		t.Fatalf("first record = %v, the suppressed line should not be there", record["message"])
	}
}

func TestWithSharesLevelNotCloser(t *testing.T) {
	log, decode := fileLogger(t, InfoLevel)

	child := log.With("component", "waitlist")
	if err := child.Close(); err != nil {
		t.Fatalf("closing a child must be a no-op: %v", err)
	}

	// The parent's output must still be open after the child closes.
	log.Info("processed")
	if record := decode(); record["message"] != "processed" {
		t.Fatalf("parent record = %v", record["message"])
	}

	log.SetLevel(DebugLevel)
	if got := child.GetLevel(); got != DebugLevel {
		t.Fatalf("child level = %v, want the parent's debug", got)
	}
}

func TestWithContextRoundTrip(t *testing.T) {
	log := New(&Config{Level: InfoLevel, Format: "text", Output: "stdout"})
	ctx := log.WithContext(context.Background())

	if FromContext(ctx) != log {
		t.Fatal("FromContext must return the logger stored by WithContext")
	}
}

func TestFromContextFallsBackToGlobal(t *testing.T) {
	if FromContext(context.Background()) != Global() {
		t.Fatal("a bare context must resolve to the global logger")
	}
}

func TestSetGlobal(t *testing.T) {
	prev := Global()
	defer SetGlobal(prev)

	replacement := New(&Config{Level: DebugLevel, Format: "text", Output: "stdout"})
	SetGlobal(replacement)
	if Global() != replacement {
		t.Fatal("SetGlobal did not take")
	}

	SetGlobal(nil)
	if Global() != replacement {
		t.Fatal("SetGlobal(nil) must leave the global logger in place")
	}
}

func TestGlobalShorthands(t *testing.T) {
	ctx := context.Background()
	Debug("d", "k", "v")
	Info("i", "k", "v")
	Warn("w", "k", "v")
	Error("e", "k", "v")
	DebugContext(ctx, "d")
	InfoContext(ctx, "i")
	WarnContext(ctx, "w")
	ErrorContext(ctx, "e")
	SetLevel(InfoLevel)
}

func TestCloseOnStreamOutputs(t *testing.T) {
	for _, output := range []string{"stdout", "stderr", ""} {
		log := New(&Config{Level: InfoLevel, Format: "text", Output: output})
		if err := log.Close(); err != nil {
			t.Errorf("Close() on %q output = %v", output, err)
		}
	}
}

func TestUnopenablePathFallsBackToStdout(t *testing.T) {
	log := New(&Config{
		Level:  InfoLevel,
		Format: "text",
		Output: filepath.Join(t.TempDir(), "missing", "nested", "gateline.log"),
	}).(*SlogLogger)

	if log.closer != nil {
		t.Fatal("fallback to stdout must not hold a closer")
	}
	log.Info("still logging")
	if err := log.Close(); err != nil {
		t.Fatalf("Close() after fallback = %v", err)
	}
}
