package observability

import (
	"bytes"
	"context"
	"strings"
	"testing"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace/noop"

	"github.com/abhisek/gradewise/internal/config"
)

func TestInit_Disabled(t *testing.T) {
	shutdown, err := Init(context.Background(), config.TracingConfig{}, "dev", nil)
	if err != nil {
		t.Fatalf("Init: %v", err)
	}
	if err := shutdown(context.Background()); err != nil {
		t.Fatalf("shutdown: %v", err)
	}
}

func TestInit_ExportsSpans(t *testing.T) {
	t.Cleanup(func() { otel.SetTracerProvider(noop.NewTracerProvider()) })

	var buf bytes.Buffer
	cfg := config.TracingConfig{Enabled: true, SampleRatio: 1, ServiceName: "gradewise-test"}
	shutdown, err := initWithWriter(context.Background(), cfg, "v0.0.1", nil, &buf)
	if err != nil {
		t.Fatalf("Init: %v", err)
	}

	_, span := otel.Tracer("test").Start(context.Background(), "attempt.submit")
	span.End()

	if err := shutdown(context.Background()); err != nil {
		t.Fatalf("shutdown: %v", err)
	}
	out := buf.String()
	if !strings.Contains(out, `"Name":"attempt.submit"`) {
		t.Errorf("span not exported:\n%s", out)
	}
	if !strings.Contains(out, "gradewise-test") {
		t.Errorf("service name missing from resource:\n%s", out)
	}
}

func TestInit_ZeroRatioSamplesNothing(t *testing.T) {
	t.Cleanup(func() { otel.SetTracerProvider(noop.NewTracerProvider()) })

	var buf bytes.Buffer
	shutdown, err := initWithWriter(context.Background(), config.TracingConfig{Enabled: true}, "dev", nil, &buf)
	if err != nil {
		t.Fatalf("Init: %v", err)
	}
	_, span := otel.Tracer("test").Start(context.Background(), "grade")
	span.End()
	_ = shutdown(context.Background())

	if buf.Len() != 0 {
		t.Errorf("expected no spans at ratio 0, got:\n%s", buf.String())
	}
}
