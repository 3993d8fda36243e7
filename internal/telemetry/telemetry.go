package telemetry

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.21.0"
	"go.opentelemetry.io/otel/trace"

	"github.com/CodeMonkeyCybersecurity/aasprobe/internal/config"
	"github.com/CodeMonkeyCybersecurity/aasprobe/internal/core"
)

// Telemetry owns the tracer provider for a run and the outcome instruments.
// With telemetry disabled the global no-op providers are used, so callers
// never need to check for nil.
type Telemetry struct {
	tracer         trace.Tracer
	tracerProvider *sdktrace.TracerProvider

	probeCounter metric.Int64Counter
	attemptsHist metric.Int64Histogram
}

func New(ctx context.Context, cfg config.TelemetryConfig) (*Telemetry, error) {
	serviceName := cfg.ServiceName
	if serviceName == "" {
		serviceName = "aasprobe"
	}

	t := &Telemetry{}

	if cfg.Enabled {
		res, err := resource.New(ctx,
			resource.WithAttributes(
				semconv.ServiceName(serviceName),
				semconv.ServiceVersion("1.0.0"),
			),
		)
		if err != nil {
			return nil, fmt.Errorf("failed to create resource: %w", err)
		}

		client := otlptracehttp.NewClient(
			otlptracehttp.WithEndpoint(cfg.Endpoint),
			otlptracehttp.WithInsecure(),
		)
		exporter, err := otlptrace.New(ctx, client)
		if err != nil {
			return nil, fmt.Errorf("failed to create OTLP exporter: %w", err)
		}

		tp := sdktrace.NewTracerProvider(
			sdktrace.WithSampler(sdktrace.TraceIDRatioBased(cfg.SampleRate)),
			sdktrace.WithResource(res),
			sdktrace.WithBatcher(exporter),
		)

		otel.SetTracerProvider(tp)
		otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
			propagation.TraceContext{},
			propagation.Baggage{},
		))
		t.tracerProvider = tp
		t.tracer = tp.Tracer(serviceName)
	} else {
		t.tracer = otel.Tracer(serviceName)
	}

	meter := otel.Meter(serviceName)

	var err error
	t.probeCounter, err = meter.Int64Counter("aasprobe.probes.total",
		metric.WithDescription("Probes completed, by outcome"),
		metric.WithUnit("1"),
	)
	if err != nil {
		return nil, err
	}

	t.attemptsHist, err = meter.Int64Histogram("aasprobe.probe.attempts",
		metric.WithDescription("Network attempts spent per probe"),
		metric.WithUnit("1"),
	)
	if err != nil {
		return nil, err
	}

	return t, nil
}

// Tracer returns the tracer probes should start spans from.
func (t *Telemetry) Tracer() trace.Tracer {
	return t.tracer
}

// RecordProbe implements core.Recorder.
func (t *Telemetry) RecordProbe(ctx context.Context, result core.Result) {
	attrs := metric.WithAttributes(attribute.String("probe.outcome", result.Outcome.String()))
	t.probeCounter.Add(ctx, 1, attrs)
	t.attemptsHist.Record(ctx, int64(result.Attempts), attrs)
}

// Close flushes pending spans.
func (t *Telemetry) Close() error {
	if t.tracerProvider == nil {
		return nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return t.tracerProvider.Shutdown(ctx)
}
