package checker

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// DefaultTimeout bounds a probe when no timeout is supplied.
const DefaultTimeout = 5 * time.Second

// ErrProbeTimeout is the cancellation cause of a probe whose own deadline
// expired.
var ErrProbeTimeout = errors.New("timeout")

// Checker performs a single health check.
type Checker interface {
	Check(ctx context.Context) CheckResult
}

// New returns the appropriate Checker for the descriptor. The descriptor
// is not validated here; probers report malformed targets as error results.
func New(d Descriptor, timeout time.Duration) (Checker, error) {
	timeout = orDefault(timeout)
	switch d.Kind {
	case KindPort:
		return newPortChecker(d, timeout), nil
	case KindHTTP:
		return newHTTPChecker(d, timeout), nil
	default:
		return nil, fmt.Errorf("unknown checker kind %q", d.Kind)
	}
}

// cancelDetail describes why a probe context ended. It reports whether
// the probe's own deadline caused it.
func cancelDetail(ctx context.Context) (string, bool) {
	cause := context.Cause(ctx)
	if errors.Is(cause, ErrProbeTimeout) {
		return ErrProbeTimeout.Error(), true
	}
	return cause.Error(), false
}

// finishCancelled fills in a result for a probe whose context ended.
func finishCancelled(ctx context.Context, result CheckResult, timeout, elapsed time.Duration) CheckResult {
	detail, own := cancelDetail(ctx)
	result.Status = StatusDown
	result.Detail = detail
	if own {
		return result.WithLatency(timeout)
	}
	return result.WithLatency(elapsed)
}

func orDefault(timeout time.Duration) time.Duration {
	if timeout <= 0 {
		return DefaultTimeout
	}
	return timeout
}
