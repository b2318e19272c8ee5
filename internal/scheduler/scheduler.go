package scheduler

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"github.com/hazz-dev/devprobe/internal/checker"
	"github.com/hazz-dev/devprobe/internal/engine"
	"github.com/hazz-dev/devprobe/internal/storage"
)

// Runner executes one batch of checks.
type Runner interface {
	Check(ctx context.Context, req engine.Request) ([]checker.CheckResult, error)
}

// Store defines the storage operations required by the scheduler.
type Store interface {
	InsertResults(ctx context.Context, results []checker.CheckResult) error
	LatestCheck(ctx context.Context, service string) (*storage.Check, error)
	Prune(ctx context.Context, before time.Time, keep int) (int64, error)
}

// Options configure what is monitored and how history is bounded.
type Options struct {
	Presets        []string
	Services       []checker.Descriptor
	Schedule       cron.Schedule
	Timeouts       engine.Timeouts
	Retention      time.Duration
	KeepPerService int
	SlowThreshold  time.Duration
}

// ParseSchedule returns the cron schedule for expr, or a fixed interval
// when expr is empty.
func ParseSchedule(expr string, interval time.Duration) (cron.Schedule, error) {
	if expr != "" {
		s, err := cron.ParseStandard(expr)
		if err != nil {
			return nil, fmt.Errorf("parsing schedule %q: %w", expr, err)
		}
		return s, nil
	}
	if interval <= 0 {
		return nil, fmt.Errorf("interval must be positive, got %s", interval)
	}
	return cron.Every(interval), nil
}

// Scheduler re-runs a batch of checks on a schedule.
type Scheduler struct {
	runner   Runner
	store    Store
	opts     Options
	onResult func(checker.CheckResult, *checker.Status)
	logger   *zap.Logger
	wg       sync.WaitGroup
}

// New creates a new Scheduler. Pass nil logger to discard logs.
func New(runner Runner, store Store, opts Options, logger *zap.Logger) *Scheduler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Scheduler{
		runner: runner,
		store:  store,
		opts:   opts,
		logger: logger,
	}
}

// SetOnResult sets the callback invoked after each check.
// result is the current check result; prev is the previous status (nil on first check).
func (s *Scheduler) SetOnResult(fn func(checker.CheckResult, *checker.Status)) {
	s.onResult = fn
}

// Start runs a batch immediately and then on every schedule activation
// until ctx is cancelled. It is non-blocking.
func (s *Scheduler) Start(ctx context.Context) {
	s.wg.Add(1)
	go s.loop(ctx)
}

// Wait blocks until the scheduler goroutine has exited.
func (s *Scheduler) Wait() {
	s.wg.Wait()
}

func (s *Scheduler) loop(ctx context.Context) {
	defer s.wg.Done()

	s.RunOnce(ctx)

	for {
		now := time.Now()
		timer := time.NewTimer(s.opts.Schedule.Next(now).Sub(now))
		select {
		case <-ctx.Done():
			timer.Stop()
			return
		case <-timer.C:
			s.RunOnce(ctx)
		}
	}
}

// RunOnce runs a single monitoring pass.
func (s *Scheduler) RunOnce(ctx context.Context) {
	results, err := s.runner.Check(ctx, engine.Request{
		Presets:  s.opts.Presets,
		Services: s.opts.Services,
		Timeouts: s.opts.Timeouts,
	})
	if err != nil {
		s.logger.Error("running monitored checks", zap.Error(err))
		return
	}

	// Fetch previous statuses before recording this pass.
	prev := make(map[string]*checker.Status, len(results))
	for _, r := range results {
		if _, seen := prev[r.ServiceName]; seen {
			continue
		}
		last, err := s.store.LatestCheck(ctx, r.ServiceName)
		if err != nil {
			s.logger.Warn("fetching previous check", zap.String("service", r.ServiceName), zap.Error(err))
		}
		if last != nil {
			st := checker.Status(last.Status)
			prev[r.ServiceName] = &st
		} else {
			prev[r.ServiceName] = nil
		}
	}

	if err := s.store.InsertResults(ctx, results); err != nil {
		s.logger.Error("storing check results", zap.Error(err))
	}
	if s.opts.Retention > 0 {
		removed, err := s.store.Prune(ctx, time.Now().Add(-s.opts.Retention), s.opts.KeepPerService)
		if err != nil {
			s.logger.Warn("pruning history", zap.Error(err))
		} else if removed > 0 {
			s.logger.Debug("pruned history", zap.Int64("removed", removed))
		}
	}

	for _, r := range results {
		if s.opts.SlowThreshold > 0 && r.Status == checker.StatusUp && r.Latency > s.opts.SlowThreshold {
			s.logger.Warn("slow response",
				zap.String("service", r.ServiceName),
				zap.Duration("latency", r.Latency),
				zap.Duration("threshold", s.opts.SlowThreshold),
			)
		}
		if s.onResult != nil {
			s.onResult(r, prev[r.ServiceName])
		}
	}
}
