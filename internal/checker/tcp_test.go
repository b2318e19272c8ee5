package checker_test

import (
	"context"
	"errors"
	"net"
	"os"
	"strconv"
	"syscall"
	"testing"
	"time"

	"github.com/hazz-dev/devprobe/internal/checker"
)

// dialFunc adapts a function to checker.Dialer.
type dialFunc func(ctx context.Context, network, address string) (net.Conn, error)

func (f dialFunc) DialContext(ctx context.Context, network, address string) (net.Conn, error) {
	return f(ctx, network, address)
}

// blockingDialer never connects; it waits for the context to end.
func blockingDialer() checker.Dialer {
	return dialFunc(func(ctx context.Context, _, _ string) (net.Conn, error) {
		<-ctx.Done()
		return nil, ctx.Err()
	})
}

func listen(t *testing.T) (net.Listener, int) {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { ln.Close() })
	go func() {
		for {
			conn, err := ln.Accept()
			if err != nil {
				return
			}
			conn.Close()
		}
	}()
	return ln, ln.Addr().(*net.TCPAddr).Port
}

func closedPort(t *testing.T) int {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	port := ln.Addr().(*net.TCPAddr).Port
	ln.Close()
	return port
}

func TestPortChecker_Success(t *testing.T) {
	_, port := listen(t)

	result := checker.ProbePort(context.Background(), "127.0.0.1", port, 2*time.Second)
	if result.Status != checker.StatusUp {
		t.Fatalf("expected StatusUp, got %q: %s", result.Status, result.Detail)
	}
	if !result.HasLatency || result.Latency <= 0 {
		t.Errorf("expected positive latency, got %v (has=%v)", result.Latency, result.HasLatency)
	}
	if result.ServiceName != "Port "+strconv.Itoa(port) {
		t.Errorf("unexpected default name %q", result.ServiceName)
	}
	if result.Kind != checker.KindPort {
		t.Errorf("expected kind port, got %q", result.Kind)
	}
}

func TestPortChecker_ConnectionRefused(t *testing.T) {
	port := closedPort(t)

	result := checker.ProbePort(context.Background(), "127.0.0.1", port, 2*time.Second)
	if result.Status != checker.StatusDown {
		t.Fatalf("expected StatusDown for refused connection, got %q", result.Status)
	}
	if result.Detail != "connection refused" {
		t.Errorf("expected detail %q, got %q", "connection refused", result.Detail)
	}
	if !result.HasLatency {
		t.Error("expected latency on refused connection")
	}
}

func TestPortChecker_ConnectionReset(t *testing.T) {
	dialer := dialFunc(func(context.Context, string, string) (net.Conn, error) {
		return nil, &net.OpError{Op: "dial", Net: "tcp", Err: os.NewSyscallError("connect", syscall.ECONNRESET)}
	})
	c := checker.NewPortCheckerWithDialer(checker.PortService("db", "", 5432), time.Second, dialer)

	result := c.Check(context.Background())
	if result.Status != checker.StatusDown || result.Detail != "connection reset" {
		t.Errorf("expected down/connection reset, got %q/%q", result.Status, result.Detail)
	}
}

func TestPortChecker_Timeout(t *testing.T) {
	timeout := 30 * time.Millisecond
	c := checker.NewPortCheckerWithDialer(checker.PortService("slow", "10.255.255.1", 81), timeout, blockingDialer())

	start := time.Now()
	result := c.Check(context.Background())
	if elapsed := time.Since(start); elapsed > time.Second {
		t.Fatalf("check took %v, expected about %v", elapsed, timeout)
	}
	if result.Status != checker.StatusDown {
		t.Fatalf("expected StatusDown on timeout, got %q", result.Status)
	}
	if result.Detail != "timeout" {
		t.Errorf("expected detail %q, got %q", "timeout", result.Detail)
	}
	if !result.HasLatency || result.Latency != timeout {
		t.Errorf("expected latency equal to timeout %v, got %v", timeout, result.Latency)
	}
}

func TestPortChecker_ParentCancelCause(t *testing.T) {
	ctx, cancel := context.WithCancelCause(context.Background())
	cancel(errors.New("overall timeout exceeded"))

	c := checker.NewPortCheckerWithDialer(checker.PortService("x", "", 80), time.Second, blockingDialer())
	result := c.Check(ctx)
	if result.Status != checker.StatusDown {
		t.Fatalf("expected StatusDown, got %q", result.Status)
	}
	if result.Detail != "overall timeout exceeded" {
		t.Errorf("expected parent cause as detail, got %q", result.Detail)
	}
}

func TestPortChecker_DNSFailure(t *testing.T) {
	dialer := dialFunc(func(context.Context, string, string) (net.Conn, error) {
		return nil, &net.OpError{Op: "dial", Net: "tcp", Err: &net.DNSError{Err: "no such host", Name: "nope.invalid", IsNotFound: true}}
	})
	c := checker.NewPortCheckerWithDialer(checker.PortService("ghost", "nope.invalid", 80), time.Second, dialer)

	result := c.Check(context.Background())
	if result.Status != checker.StatusError {
		t.Fatalf("expected StatusError for resolution failure, got %q", result.Status)
	}
	if result.HasLatency {
		t.Error("expected no latency for resolution failure")
	}
	if result.Detail == "" {
		t.Error("expected resolution message in detail")
	}
}

func TestPortChecker_InvalidPort(t *testing.T) {
	called := false
	dialer := dialFunc(func(context.Context, string, string) (net.Conn, error) {
		called = true
		return nil, errors.New("unexpected dial")
	})

	for _, target := range []string{"0", "70000", "not-a-number", "localhost:-1"} {
		d := checker.Descriptor{Name: "bad", Kind: checker.KindPort, Target: target}
		result := checker.NewPortCheckerWithDialer(d, time.Second, dialer).Check(context.Background())
		if result.Status != checker.StatusError {
			t.Errorf("target %q: expected StatusError, got %q", target, result.Status)
		}
		if result.HasLatency {
			t.Errorf("target %q: expected no latency", target)
		}
	}
	if called {
		t.Error("dialer must not be called for invalid ports")
	}
}

func TestProbePort_ZeroPort(t *testing.T) {
	result := checker.ProbePort(context.Background(), "", 0, time.Second)
	if result.Status != checker.StatusError {
		t.Errorf("expected StatusError for port 0, got %q", result.Status)
	}
}
