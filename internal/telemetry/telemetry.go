// Package telemetry wires OpenTelemetry metrics and tracing for devprobe.
package telemetry

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/otel/metric"
	metricnoop "go.opentelemetry.io/otel/metric/noop"
	"go.opentelemetry.io/otel/sdk/resource"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
	"go.opentelemetry.io/otel/trace"
	tracenoop "go.opentelemetry.io/otel/trace/noop"
	"go.uber.org/multierr"
)

const instrumentationName = "github.com/hazz-dev/devprobe"

// Config selects exporters. Writer receives stdout-exporter output and
// defaults to os.Stderr.
type Config struct {
	ServiceName string
	Version     string
	Metrics     string
	Tracing     string
	Writer      io.Writer
}

// Provider owns the SDK providers created by Setup.
type Provider struct {
	meterProvider  *sdkmetric.MeterProvider
	tracerProvider *sdktrace.TracerProvider
	meter          metric.Meter
	tracer         trace.Tracer
	handler        http.Handler
}

// Setup builds meter and tracer providers. With both exporters set to
// "none" it returns no-op instruments and allocates nothing.
func Setup(ctx context.Context, cfg Config) (*Provider, error) {
	if cfg.ServiceName == "" {
		cfg.ServiceName = "devprobe"
	}
	if cfg.Writer == nil {
		cfg.Writer = os.Stderr
	}

	p := &Provider{
		meter:  metricnoop.NewMeterProvider().Meter(instrumentationName),
		tracer: tracenoop.NewTracerProvider().Tracer(instrumentationName),
	}

	reader, registry, err := newMetricsReader(ctx, cfg.Metrics, cfg.Writer)
	if err != nil {
		return nil, err
	}
	spanExporter, err := newSpanExporter(ctx, cfg.Tracing, cfg.Writer)
	if err != nil {
		return nil, err
	}
	if reader == nil && spanExporter == nil {
		return p, nil
	}

	res, err := resource.New(ctx,
		resource.WithAttributes(
			semconv.ServiceName(cfg.ServiceName),
			semconv.ServiceVersion(cfg.Version),
		),
	)
	if err != nil {
		return nil, fmt.Errorf("creating resource: %w", err)
	}

	if reader != nil {
		p.meterProvider = sdkmetric.NewMeterProvider(
			sdkmetric.WithReader(reader),
			sdkmetric.WithResource(res),
		)
		p.meter = p.meterProvider.Meter(instrumentationName)
	}
	if registry != nil {
		p.handler = promhttp.HandlerFor(registry, promhttp.HandlerOpts{})
	}
	if spanExporter != nil {
		p.tracerProvider = sdktrace.NewTracerProvider(
			sdktrace.WithBatcher(spanExporter),
			sdktrace.WithResource(res),
		)
		p.tracer = p.tracerProvider.Tracer(instrumentationName)
	}
	return p, nil
}

func (p *Provider) Meter() metric.Meter { return p.meter }

func (p *Provider) Tracer() trace.Tracer { return p.tracer }

// MetricsHandler serves the Prometheus scrape endpoint. It is nil unless
// the prometheus exporter is selected.
func (p *Provider) MetricsHandler() http.Handler { return p.handler }

// Shutdown flushes and stops the providers.
func (p *Provider) Shutdown(ctx context.Context) error {
	var err error
	if p.tracerProvider != nil {
		err = multierr.Append(err, p.tracerProvider.Shutdown(ctx))
	}
	if p.meterProvider != nil {
		err = multierr.Append(err, p.meterProvider.Shutdown(ctx))
	}
	return err
}
