package telemetry

import (
	"context"
	"testing"

	"luxe-escrow-server/config"
)

func TestInitTracerDisabledWithoutEndpoint(t *testing.T) {
	shutdown, err := InitTracer(context.Background(), config.TelemetryConfig{ServiceName: "test"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := shutdown(context.Background()); err != nil {
		t.Errorf("no-op shutdown returned %v", err)
	}
}

func TestInitTracerWithEndpoint(t *testing.T) {
	// grpc.NewClient connects lazily, so no collector needs to be listening.
	shutdown, err := InitTracer(context.Background(), config.TelemetryConfig{
		OTLPEndpoint: "localhost:4317",
		ServiceName:  "test",
		Environment:  "test",
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_ = shutdown(ctx)
}
