// Package tracing configures the OpenTelemetry tracer provider and HTTP server spans.
package tracing

import (
	"context"
	"fmt"
	"io"
	"os"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	"go.opentelemetry.io/otel/exporters/zipkin"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"
)

// Exporter names accepted by Config.Exporter
const (
	ExporterNone   = "none"
	ExporterStdout = "stdout"
	ExporterZipkin = "zipkin"
)

// Config selects and configures the span exporter
type Config struct {
	ServiceName string
	Exporter    string
	ZipkinURL   string
	SampleRatio float64

	// Writer receives stdout exporter output (default: os.Stdout)
	Writer io.Writer
}

// Provider owns the tracer provider and its shutdown
type Provider struct {
	trace.TracerProvider
	shutdown func(context.Context) error
}

// Shutdown flushes pending spans and stops the exporter
func (p *Provider) Shutdown(ctx context.Context) error {
	if p == nil || p.shutdown == nil {
		return nil
	}
	return p.shutdown(ctx)
}

// Setup builds the tracer provider for config and installs it, with the
// W3C trace-context propagator, as the otel globals.
func Setup(ctx context.Context, config Config) (*Provider, error) {
	provider, err := New(ctx, config)
	if err != nil {
		return nil, err
	}
	otel.SetTracerProvider(provider.TracerProvider)
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{},
		propagation.Baggage{},
	))
	return provider, nil
}

// New builds a provider without touching the otel globals
func New(ctx context.Context, config Config) (*Provider, error) {
	var exporter sdktrace.SpanExporter
	var err error

	switch config.Exporter {
	case "", ExporterNone:
		return &Provider{TracerProvider: noop.NewTracerProvider()}, nil
	case ExporterStdout:
		w := config.Writer
		if w == nil {
			w = os.Stdout
		}
		exporter, err = stdouttrace.New(stdouttrace.WithWriter(w))
	case ExporterZipkin:
		if config.ZipkinURL == "" {
			return nil, fmt.Errorf("zipkin exporter requires a collector URL")
		}
		exporter, err = zipkin.New(config.ZipkinURL)
	default:
		return nil, fmt.Errorf("unknown trace exporter %q", config.Exporter)
	}
	if err != nil {
		return nil, fmt.Errorf("create %s exporter: %w", config.Exporter, err)
	}

	tp := newSDKProvider(config, sdktrace.WithBatcher(exporter))
	return &Provider{TracerProvider: tp, shutdown: tp.Shutdown}, nil
}

// NewWithSpanProcessor builds an SDK provider around processor, e.g. a tracetest.SpanRecorder
func NewWithSpanProcessor(config Config, processor sdktrace.SpanProcessor) *Provider {
	tp := newSDKProvider(config, sdktrace.WithSpanProcessor(processor))
	return &Provider{TracerProvider: tp, shutdown: tp.Shutdown}
}

func newSDKProvider(config Config, opt sdktrace.TracerProviderOption) *sdktrace.TracerProvider {
	name := config.ServiceName
	if name == "" {
		name = "tasklist"
	}
	ratio := config.SampleRatio
	if ratio <= 0 || ratio > 1 {
		ratio = 1
	}

	return sdktrace.NewTracerProvider(
		opt,
		sdktrace.WithSampler(sdktrace.ParentBased(sdktrace.TraceIDRatioBased(ratio))),
		sdktrace.WithResource(resource.NewSchemaless(attribute.String("service.name", name))),
	)
}
