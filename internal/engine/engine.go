// Package engine runs batches of health checks with bounded concurrency.
package engine

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	metricnoop "go.opentelemetry.io/otel/metric/noop"
	"go.opentelemetry.io/otel/trace"
	tracenoop "go.opentelemetry.io/otel/trace/noop"
	"go.uber.org/zap"
	"golang.org/x/sync/semaphore"

	"github.com/hazz-dev/devprobe/internal/checker"
)

const (
	DefaultPerCheckTimeout = 5 * time.Second
	DefaultOverallTimeout  = 30 * time.Second
	DefaultMaxConcurrency  = 10
)

var (
	ErrNoDescriptors  = errors.New("no services to check")
	ErrInvalidTimeout = errors.New("invalid timeout")

	// ErrOverallTimeout is the cancellation cause recorded for checks
	// still outstanding when a batch deadline passes.
	ErrOverallTimeout = errors.New("overall timeout exceeded")
)

// Options are the engine-wide defaults. Zero values select the package
// defaults.
type Options struct {
	PerCheckTimeout time.Duration
	OverallTimeout  time.Duration
	MaxConcurrency  int
}

// Timeouts override Options for a single run. Zero means use the default.
type Timeouts struct {
	PerCheck time.Duration
	Overall  time.Duration
}

// CheckerFactory builds a checker for a validated descriptor.
type CheckerFactory func(d checker.Descriptor, timeout time.Duration) (checker.Checker, error)

// PresetSource resolves preset names to descriptors.
type PresetSource interface {
	Resolve(name string) ([]checker.Descriptor, error)
}

// Request combines presets and ad-hoc services into one batch. Preset
// services come first, in the order the presets are named.
type Request struct {
	Presets  []string
	Services []checker.Descriptor
	Timeouts Timeouts
}

// Engine is safe for concurrent use. Each run gets its own semaphore.
type Engine struct {
	opts    Options
	factory CheckerFactory
	presets PresetSource
	logger  *zap.Logger
	tracer  trace.Tracer
	meter   metric.Meter
	metrics *runMetrics
}

// Option configures an Engine.
type Option func(*Engine)

// WithLogger sets the logger used for run summaries.
func WithLogger(l *zap.Logger) Option { return func(e *Engine) { e.logger = l } }

// WithFactory replaces checker.New (for testing).
func WithFactory(f CheckerFactory) Option { return func(e *Engine) { e.factory = f } }

// WithPresets sets the source used by Check to expand preset names.
func WithPresets(src PresetSource) Option { return func(e *Engine) { e.presets = src } }

// WithTracer sets the tracer used for run spans.
func WithTracer(t trace.Tracer) Option { return func(e *Engine) { e.tracer = t } }

// WithMeter sets the meter used for check and run metrics.
func WithMeter(m metric.Meter) Option { return func(e *Engine) { e.meter = m } }

// New returns an engine with the given defaults.
func New(opts Options, options ...Option) *Engine {
	if opts.PerCheckTimeout <= 0 {
		opts.PerCheckTimeout = DefaultPerCheckTimeout
	}
	if opts.OverallTimeout <= 0 {
		opts.OverallTimeout = DefaultOverallTimeout
	}
	if opts.MaxConcurrency <= 0 {
		opts.MaxConcurrency = DefaultMaxConcurrency
	}

	e := &Engine{
		opts:    opts,
		factory: checker.New,
		logger:  zap.NewNop(),
		tracer:  tracenoop.NewTracerProvider().Tracer("devprobe/engine"),
		meter:   metricnoop.NewMeterProvider().Meter("devprobe/engine"),
	}
	for _, o := range options {
		o(e)
	}

	m, err := newRunMetrics(e.meter)
	if err != nil {
		e.logger.Warn("engine metrics disabled", zap.Error(err))
		m, _ = newRunMetrics(metricnoop.NewMeterProvider().Meter("devprobe/engine"))
	}
	e.metrics = m
	return e
}

// Options returns the effective defaults.
func (e *Engine) Options() Options { return e.opts }

// Check resolves the request and runs it.
func (e *Engine) Check(ctx context.Context, req Request) ([]checker.CheckResult, error) {
	descriptors, err := Resolve(e.presets, req.Presets, req.Services)
	if err != nil {
		return nil, err
	}
	return e.Run(ctx, descriptors, req.Timeouts)
}

// Resolve expands preset names and appends the ad-hoc services.
func Resolve(src PresetSource, presets []string, services []checker.Descriptor) ([]checker.Descriptor, error) {
	var out []checker.Descriptor
	for _, name := range presets {
		if src == nil {
			return nil, fmt.Errorf("resolving preset %q: no presets configured", name)
		}
		ds, err := src.Resolve(name)
		if err != nil {
			return nil, fmt.Errorf("resolving preset %q: %w", name, err)
		}
		out = append(out, ds...)
	}
	return append(out, services...), nil
}

type outcome struct {
	index  int
	result checker.CheckResult
}

// Run checks every descriptor and returns exactly one result per
// descriptor, in input order. Invalid descriptors yield error results
// without being probed. Run returns within the overall timeout; checks
// still outstanding then are reported down with ErrOverallTimeout.
func (e *Engine) Run(ctx context.Context, descriptors []checker.Descriptor, t Timeouts) ([]checker.CheckResult, error) {
	if len(descriptors) == 0 {
		return nil, ErrNoDescriptors
	}
	perCheck, overall, err := e.resolveTimeouts(t)
	if err != nil {
		return nil, err
	}

	runID := uuid.NewString()
	logger := e.logger.With(zap.String("run_id", runID))
	ctx, span := e.tracer.Start(ctx, "engine.Run", trace.WithAttributes(
		attribute.String("devprobe.run_id", runID),
		attribute.Int("devprobe.services", len(descriptors)),
	))
	defer span.End()

	start := time.Now()
	runCtx, cancel := context.WithTimeoutCause(ctx, overall, ErrOverallTimeout)
	defer cancel()

	n := len(descriptors)
	results := make([]checker.CheckResult, n)
	settled := make([]bool, n)
	started := make([]atomic.Int64, n)
	done := make(chan outcome, n)
	sem := semaphore.NewWeighted(int64(e.opts.MaxConcurrency))

	pending := 0
	for i, d := range descriptors {
		c, err := e.prepare(d, perCheck)
		if err != nil {
			results[i] = checker.ErrorResult(d, err)
			settled[i] = true
			continue
		}
		// Fails once the batch deadline passes; the descriptor is then
		// reported as never started.
		if err := sem.Acquire(runCtx, 1); err != nil {
			continue
		}
		pending++
		go func(i int, c checker.Checker) {
			defer sem.Release(1)
			started[i].Store(time.Now().UnixNano())
			done <- outcome{index: i, result: c.Check(runCtx)}
		}(i, c)
	}

collect:
	for pending > 0 {
		select {
		case o := <-done:
			results[o.index] = o.result
			settled[o.index] = true
			pending--
		case <-runCtx.Done():
			break collect
		}
	}
	for drained := false; !drained; {
		select {
		case o := <-done:
			results[o.index] = o.result
			settled[o.index] = true
		default:
			drained = true
		}
	}

	if runCtx.Err() != nil {
		cause := context.Cause(runCtx)
		now := time.Now()
		for i := range results {
			if settled[i] {
				continue
			}
			r := checker.NewResult(descriptors[i])
			r.Status = checker.StatusDown
			r.Detail = cause.Error()
			if ts := started[i].Load(); ts != 0 {
				r = r.WithLatency(now.Sub(time.Unix(0, ts)))
			}
			results[i] = r
		}
	}

	elapsed := time.Since(start)
	summary := checker.Summarize(results)
	for _, r := range results {
		e.metrics.recordResult(ctx, r)
		logger.Debug("check finished",
			zap.String("service", r.ServiceName),
			zap.String("kind", string(r.Kind)),
			zap.String("target", r.Target),
			zap.String("status", string(r.Status)),
			zap.String("detail", r.Detail),
			zap.Duration("latency", r.Latency),
		)
	}
	e.metrics.recordRun(ctx, elapsed, summary)

	span.SetAttributes(
		attribute.Int("devprobe.up", summary.Up),
		attribute.Int("devprobe.down", summary.Down),
		attribute.Int("devprobe.errors", summary.Errors),
	)
	if !summary.Healthy() {
		span.SetStatus(codes.Error, summary.String())
	}

	logger.Info("check run finished",
		zap.Int("services", summary.Total),
		zap.Int("up", summary.Up),
		zap.Int("down", summary.Down),
		zap.Int("errors", summary.Errors),
		zap.Duration("duration", elapsed),
	)
	return results, nil
}

func (e *Engine) prepare(d checker.Descriptor, perCheck time.Duration) (checker.Checker, error) {
	if err := d.Validate(); err != nil {
		return nil, err
	}
	timeout := perCheck
	if d.Timeout > 0 {
		timeout = d.Timeout
	}
	return e.factory(d, timeout)
}

func (e *Engine) resolveTimeouts(t Timeouts) (time.Duration, time.Duration, error) {
	if t.PerCheck < 0 {
		return 0, 0, fmt.Errorf("%w: per-check timeout %s is negative", ErrInvalidTimeout, t.PerCheck)
	}
	if t.Overall < 0 {
		return 0, 0, fmt.Errorf("%w: overall timeout %s is negative", ErrInvalidTimeout, t.Overall)
	}
	perCheck, overall := t.PerCheck, t.Overall
	if perCheck == 0 {
		perCheck = e.opts.PerCheckTimeout
	}
	if overall == 0 {
		overall = e.opts.OverallTimeout
	}
	return perCheck, overall, nil
}
