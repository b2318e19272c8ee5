package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/hazz-dev/devprobe/internal/checker"
	"github.com/hazz-dev/devprobe/internal/engine"
	"github.com/hazz-dev/devprobe/internal/preset"
)

func newEngine() *engine.Engine {
	return engine.New(engine.Options{PerCheckTimeout: 2 * time.Second}, engine.WithPresets(preset.Default()))
}

func openPort(t *testing.T) int {
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
	return ln.Addr().(*net.TCPAddr).Port
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

func TestRunChecks_AllUp_OutputFormat(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	var buf bytes.Buffer
	err := runChecks(context.Background(), &buf, newEngine(), checkOptions{urls: []string{srv.URL}})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	output := buf.String()
	for _, want := range []string{"SERVICE", "LATENCY", srv.URL, "http", "up", "404 Not Found", "1/1 services are healthy"} {
		if !strings.Contains(output, want) {
			t.Errorf("expected output to contain %q, got:\n%s", want, output)
		}
	}
}

func TestRunChecks_DownReturnsError(t *testing.T) {
	up := openPort(t)
	down := closedPort(t)

	var buf bytes.Buffer
	err := runChecks(context.Background(), &buf, newEngine(), checkOptions{ports: []int{up, down}})
	if !errors.Is(err, errUnhealthy) {
		t.Fatalf("expected errUnhealthy, got %v", err)
	}

	output := buf.String()
	if !strings.Contains(output, "down") || !strings.Contains(output, "1/2 services are healthy") {
		t.Errorf("unexpected output:\n%s", output)
	}
	upLine := strings.Index(output, "localhost:"+itoa(up))
	downLine := strings.Index(output, "localhost:"+itoa(down))
	if upLine < 0 || downLine < 0 || upLine > downLine {
		t.Errorf("expected results in request order, got:\n%s", output)
	}
}

func TestRunChecks_JSON(t *testing.T) {
	port := openPort(t)

	var buf bytes.Buffer
	err := runChecks(context.Background(), &buf, newEngine(), checkOptions{ports: []int{port}, json: true})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	var report checker.BatchReport
	if err := json.Unmarshal(buf.Bytes(), &report); err != nil {
		t.Fatalf("output is not JSON: %v\n%s", err, buf.String())
	}
	if report.OverallStatus != "healthy" || len(report.Services) != 1 {
		t.Errorf("unexpected report %+v", report)
	}
	if report.Services[0].LatencyMS == nil {
		t.Error("expected latency for an open port")
	}
}

func TestRunChecks_UnknownPreset(t *testing.T) {
	var buf bytes.Buffer
	err := runChecks(context.Background(), &buf, newEngine(), checkOptions{presets: []string{"nope"}})
	if !errors.Is(err, preset.ErrUnknownPreset) {
		t.Errorf("expected ErrUnknownPreset, got %v", err)
	}
}

func TestCheckOptions_Request(t *testing.T) {
	req := checkOptions{}.request()
	if len(req.Presets) != 1 || req.Presets[0] != preset.All {
		t.Errorf("expected all presets by default, got %v", req.Presets)
	}

	req = checkOptions{
		ports:          []int{5432, 12345},
		urls:           []string{"http://localhost:3000"},
		timeout:        time.Second,
		overallTimeout: 4 * time.Second,
	}.request()
	if len(req.Presets) != 0 {
		t.Errorf("expected no presets when services are given, got %v", req.Presets)
	}
	if len(req.Services) != 3 {
		t.Fatalf("expected 3 services, got %d", len(req.Services))
	}
	if req.Services[0].Name != "PostgreSQL (5432)" || req.Services[1].Name != "Port 12345" {
		t.Errorf("unexpected port names %q, %q", req.Services[0].Name, req.Services[1].Name)
	}
	if req.Services[2].Kind != checker.KindHTTP {
		t.Errorf("expected http service last, got %+v", req.Services[2])
	}
	if req.Timeouts.PerCheck != time.Second || req.Timeouts.Overall != 4*time.Second {
		t.Errorf("unexpected timeouts %+v", req.Timeouts)
	}
}
