package engine

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/hazz-dev/devprobe/internal/checker"
)

type runMetrics struct {
	checks      metric.Int64Counter
	latency     metric.Float64Histogram
	runDuration metric.Float64Histogram
	unhealthy   metric.Int64Counter
}

func newRunMetrics(meter metric.Meter) (*runMetrics, error) {
	checks, err := meter.Int64Counter("devprobe.checks",
		metric.WithDescription("Health checks performed, by kind and status"))
	if err != nil {
		return nil, err
	}
	latency, err := meter.Float64Histogram("devprobe.check.latency",
		metric.WithDescription("Latency of checks that produced one"),
		metric.WithUnit("ms"))
	if err != nil {
		return nil, err
	}
	runDuration, err := meter.Float64Histogram("devprobe.run.duration",
		metric.WithDescription("Wall time of a check batch"),
		metric.WithUnit("s"))
	if err != nil {
		return nil, err
	}
	unhealthy, err := meter.Int64Counter("devprobe.runs.unhealthy",
		metric.WithDescription("Check batches with at least one service not up"))
	if err != nil {
		return nil, err
	}
	return &runMetrics{checks: checks, latency: latency, runDuration: runDuration, unhealthy: unhealthy}, nil
}

func (m *runMetrics) recordResult(ctx context.Context, r checker.CheckResult) {
	attrs := metric.WithAttributes(
		attribute.String("kind", string(r.Kind)),
		attribute.String("status", string(r.Status)),
	)
	m.checks.Add(ctx, 1, attrs)
	if ms, ok := r.LatencyMillis(); ok {
		m.latency.Record(ctx, ms, attrs)
	}
}

func (m *runMetrics) recordRun(ctx context.Context, d time.Duration, s checker.Summary) {
	m.runDuration.Record(ctx, d.Seconds())
	if !s.Healthy() {
		m.unhealthy.Add(ctx, 1)
	}
}
