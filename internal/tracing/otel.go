package tracing

import (
	"context"
	"fmt"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
	"go.opentelemetry.io/otel/trace"
)

var (
	providerOnce sync.Once
	providerMu   sync.RWMutex
	provider     *sdktrace.TracerProvider
	providerErr  error
)

// Options configures the tracer provider.
type Options struct {
	ServiceName string
	// Endpoint is an OTLP/HTTP collector host:port. Without one, spans are
	// recorded but not exported.
	Endpoint string
	Insecure bool
	// SampleRatio outside (0, 1] samples everything.
	SampleRatio float64
}

func (o Options) sampler() sdktrace.Sampler {
	ratio := o.SampleRatio
	if ratio <= 0 || ratio > 1 {
		ratio = 1
	}
	return sdktrace.ParentBased(sdktrace.TraceIDRatioBased(ratio))
}

func newProvider(ctx context.Context, o Options) (*sdktrace.TracerProvider, error) {
	res, err := resource.New(ctx, resource.WithAttributes(semconv.ServiceName(o.ServiceName)))
	if err != nil {
		return nil, err
	}

	opts := []sdktrace.TracerProviderOption{
		sdktrace.WithSampler(o.sampler()),
		sdktrace.WithResource(res),
	}
	if o.Endpoint != "" {
		exportOpts := []otlptracehttp.Option{otlptracehttp.WithEndpoint(o.Endpoint)}
		if o.Insecure {
			exportOpts = append(exportOpts, otlptracehttp.WithInsecure())
		}
		exporter, err := otlptracehttp.New(ctx, exportOpts...)
		if err != nil {
			return nil, fmt.Errorf("failed to create OTLP exporter: %w", err)
		}
		opts = append(opts, sdktrace.WithBatcher(exporter))
	}
	return sdktrace.NewTracerProvider(opts...), nil
}

// InitOpenTelemetry installs the process-wide tracer provider. Only the first
// call has an effect; later calls return its error.
func InitOpenTelemetry(o Options) error {
	providerOnce.Do(func() {
		tp, err := newProvider(context.Background(), o)
		if err != nil {
			providerErr = err
			return
		}

		providerMu.Lock()
		provider = tp
		providerMu.Unlock()

		otel.SetTracerProvider(tp)
	})
	return providerErr
}

// ShutdownOpenTelemetry flushes pending spans and shuts the provider down.
func ShutdownOpenTelemetry(ctx context.Context) error {
	providerMu.RLock()
	tp := provider
	providerMu.RUnlock()
	if tp == nil {
		return nil
	}
	return tp.Shutdown(ctx)
}

// Attributes converts the non-empty fields of f into span attributes.
func Attributes(f Fields) []attribute.KeyValue {
	var attrs []attribute.KeyValue
	if f.TraceID != "" {
		attrs = append(attrs, attribute.String("docmcp.trace_id", f.TraceID))
	}
	if f.Operation != "" {
		attrs = append(attrs, attribute.String("docmcp.operation", f.Operation))
	}
	if f.SessionKey != "" {
		attrs = append(attrs, attribute.String("docmcp.session_key", f.SessionKey))
	}
	if f.Path != "" {
		attrs = append(attrs, attribute.String("docmcp.path", f.Path))
	}
	return attrs
}

// StartSpan starts a span stamped with the correlation fields of ctx plus
// attrs. When ctx has no trace id yet, the span's trace id is adopted.
func StartSpan(ctx context.Context, tracerName, spanName string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	if ctx == nil {
		ctx = context.Background()
	}

	all := append(Attributes(FromContext(ctx)), attrs...)
	ctx, span := otel.Tracer(tracerName).Start(ctx, spanName, trace.WithAttributes(all...))

	if sc := span.SpanContext(); sc.IsValid() && GetTraceID(ctx) == "" {
		ctx = WithTraceID(ctx, sc.TraceID().String())
	}
	return ctx, span
}
