package checker

import (
	"context"
	"net"
	"strconv"
	"time"
)

// Dialer opens network connections.
type Dialer interface {
	DialContext(ctx context.Context, network, address string) (net.Conn, error)
}

type portChecker struct {
	desc    Descriptor
	timeout time.Duration
	dialer  Dialer
}

func newPortChecker(d Descriptor, timeout time.Duration) *portChecker {
	return &portChecker{desc: d, timeout: timeout, dialer: &net.Dialer{}}
}

// NewPortCheckerWithDialer creates a port checker with a custom dialer (for testing).
func NewPortCheckerWithDialer(d Descriptor, timeout time.Duration, dialer Dialer) Checker {
	return &portChecker{desc: d, timeout: orDefault(timeout), dialer: dialer}
}

// ProbePort checks whether host:port accepts a TCP connection.
func ProbePort(ctx context.Context, host string, port int, timeout time.Duration) CheckResult {
	name := "Port " + strconv.Itoa(port)
	return newPortChecker(PortService(name, host, port), orDefault(timeout)).Check(ctx)
}

func (c *portChecker) Check(ctx context.Context) CheckResult {
	result := NewResult(c.desc)

	host, port, err := c.desc.Address()
	if err != nil {
		result.Status = StatusError
		result.Detail = err.Error()
		return result
	}

	pctx, cancel := context.WithTimeoutCause(ctx, c.timeout, ErrProbeTimeout)
	defer cancel()

	start := time.Now()
	conn, err := c.dialer.DialContext(pctx, "tcp", net.JoinHostPort(host, strconv.Itoa(port)))
	elapsed := time.Since(start)
	if err == nil {
		conn.Close()
		result.Status = StatusUp
		return result.WithLatency(elapsed)
	}

	switch {
	case pctx.Err() != nil:
		return finishCancelled(pctx, result, c.timeout, elapsed)
	case isDNSError(err):
		result.Status = StatusError
		result.Detail = err.Error()
		return result
	}

	result.Status = StatusDown
	if reason, ok := connFailure(err); ok {
		result.Detail = reason
	} else {
		result.Detail = err.Error()
	}
	return result.WithLatency(elapsed)
}
