package tracing

import (
	"context"
	"errors"
	"testing"
	"time"

	"go.opentelemetry.io/otel/attribute"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()
	if cfg.ServiceName != "telecare-call" {
		t.Errorf("expected service name 'telecare-call', got '%s'", cfg.ServiceName)
	}
	if cfg.JaegerURL != "http://localhost:14268/api/traces" {
		t.Errorf("unexpected Jaeger URL: %s", cfg.JaegerURL)
	}
	if cfg.SampleRate != 1.0 {
		t.Errorf("expected sample rate 1.0, got %f", cfg.SampleRate)
	}
}

func TestInit_Disabled(t *testing.T) {
	tp, err := Init(Config{Enabled: false})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := tp.Shutdown(context.Background()); err != nil {
		t.Errorf("shutdown of disabled provider should be a no-op, got %v", err)
	}
}

func TestStartSpan(t *testing.T) {
	ctx := context.Background()
	ctx, span := StartSpan(ctx, "test.operation")
	if span == nil {
		t.Error("expected non-nil span")
	}
	AddSpanAttributes(ctx, attribute.String("test.key", "test.value"))
	RecordError(ctx, errors.New("test error"))
	MeasureDuration(ctx, time.Now().Add(-10*time.Millisecond), "test.operation")
	span.End()
}

func TestTraceHelpers(t *testing.T) {
	ctx := context.Background()

	_, span := TraceBootstrap(ctx, "initiate", "appt-1")
	if span == nil {
		t.Error("expected non-nil bootstrap span")
	}
	span.End()

	_, span = TraceSignalingMessage(ctx, "OFFER", "call-1")
	if span == nil {
		t.Error("expected non-nil signaling span")
	}
	span.End()

	_, span = TraceNegotiation(ctx, "create_offer", "call-1")
	if span == nil {
		t.Error("expected non-nil negotiation span")
	}
	span.End()
}
