package tracing

import (
	"context"
	"strings"
	"testing"
	"time"
)

func TestSamplerRatio(t *testing.T) {
	tests := []struct {
		ratio float64
		root  string
	}{
		{0, "AlwaysOnSampler"},
		{-1, "AlwaysOnSampler"},
		{2, "AlwaysOnSampler"},
		{1, "AlwaysOnSampler"},
		{0.25, "TraceIDRatioBased{0.25}"},
	}
	for _, tt := range tests {
		desc := Options{SampleRatio: tt.ratio}.sampler().Description()
		if !strings.HasPrefix(desc, "ParentBased{root:"+tt.root+",") {
			t.Errorf("ratio %v: sampler = %s, want root %s", tt.ratio, desc, tt.root)
		}
	}
}

func TestNewProviderRecordsSpans(t *testing.T) {
	tp, err := newProvider(context.Background(), Options{ServiceName: "docmcp-test"})
	if err != nil {
		t.Fatalf("newProvider: %v", err)
	}
	defer tp.Shutdown(context.Background())

	_, span := tp.Tracer("test").Start(context.Background(), "session.open")
	if !span.SpanContext().IsValid() || !span.IsRecording() {
		t.Error("span should be valid and recording")
	}
	span.End()
}

func TestNewProviderWithExporter(t *testing.T) {
	tp, err := newProvider(context.Background(), Options{
		ServiceName: "docmcp-test",
		Endpoint:    "127.0.0.1:4318",
		Insecure:    true,
		SampleRatio: 0.5,
	})
	if err != nil {
		t.Fatalf("newProvider: %v", err)
	}

	// Nothing was exported, so shutdown never reaches the collector.
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := tp.Shutdown(ctx); err != nil {
		t.Errorf("Shutdown: %v", err)
	}
}

func TestShutdownWithoutProvider(t *testing.T) {
	providerMu.Lock()
	saved := provider
	provider = nil
	providerMu.Unlock()
	defer func() {
		providerMu.Lock()
		provider = saved
		providerMu.Unlock()
	}()

	if err := ShutdownOpenTelemetry(context.Background()); err != nil {
		t.Errorf("ShutdownOpenTelemetry: %v", err)
	}
}
