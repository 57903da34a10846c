package telemetry

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
	"go.opentelemetry.io/otel/trace"
)

const instrumentationName = "torrentstream/resolverservice"

// Tracer returns the service tracer from the global provider. It is a noop
// tracer until Init installs an exporter.
func Tracer() trace.Tracer {
	return otel.Tracer(instrumentationName)
}

type Options struct {
	ServiceName string
	// Endpoint is host:port or a URL; an https scheme enables TLS.
	Endpoint string
	// SampleRatio in (0,1]; other values sample everything.
	SampleRatio float64
}

// Init wires the global trace provider to an OTLP/HTTP exporter. Without an
// endpoint tracing stays off and shutdown is a noop.
func Init(ctx context.Context, opts Options) (shutdown func(context.Context) error, err error) {
	noop := func(context.Context) error { return nil }
	if strings.TrimSpace(opts.Endpoint) == "" {
		return noop, nil
	}

	host, secure, err := parseEndpoint(opts.Endpoint)
	if err != nil {
		return noop, err
	}
	exporterOpts := []otlptracehttp.Option{
		otlptracehttp.WithEndpoint(host),
		otlptracehttp.WithTimeout(3 * time.Second),
		otlptracehttp.WithRetry(otlptracehttp.RetryConfig{Enabled: false}),
	}
	if !secure {
		exporterOpts = append(exporterOpts, otlptracehttp.WithInsecure())
	}

	initCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	exporter, err := otlptracehttp.New(initCtx, exporterOpts...)
	if err != nil {
		return noop, fmt.Errorf("otlp exporter: %w", err)
	}

	res, err := resource.New(ctx,
		resource.WithAttributes(semconv.ServiceName(opts.ServiceName)),
	)
	if err != nil {
		return noop, fmt.Errorf("otel resource: %w", err)
	}

	tp := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter),
		sdktrace.WithResource(res),
		sdktrace.WithSampler(sampler(opts.SampleRatio)),
	)
	otel.SetTracerProvider(tp)
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{},
		propagation.Baggage{},
	))

	return tp.Shutdown, nil
}

func sampler(ratio float64) sdktrace.Sampler {
	if ratio <= 0 || ratio >= 1 {
		return sdktrace.ParentBased(sdktrace.AlwaysSample())
	}
	return sdktrace.ParentBased(sdktrace.TraceIDRatioBased(ratio))
}

// parseEndpoint accepts "collector:4318", "http://collector:4318" or
// "https://collector". The exporter wants the bare host.
func parseEndpoint(raw string) (host string, secure bool, err error) {
	value := strings.TrimSpace(raw)
	if !strings.Contains(value, "://") {
		return strings.TrimSuffix(value, "/"), false, nil
	}
	parsed, err := url.Parse(value)
	if err != nil {
		return "", false, fmt.Errorf("parse otlp endpoint: %w", err)
	}
	if parsed.Host == "" {
		return "", false, fmt.Errorf("parse otlp endpoint %q: missing host", raw)
	}
	return parsed.Host, parsed.Scheme == "https", nil
}
