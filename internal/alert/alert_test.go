package alert_test

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/hazz-dev/devprobe/internal/alert"
	"github.com/hazz-dev/devprobe/internal/checker"
)

func statusPtr(s checker.Status) *checker.Status {
	return &s
}

func makeResult(service string, status checker.Status) checker.CheckResult {
	return checker.CheckResult{
		ServiceName: service,
		Kind:        checker.KindPort,
		Target:      "localhost:5432",
		Status:      status,
		Latency:     10 * time.Millisecond,
		HasLatency:  true,
		CheckedAt:   time.Now().UTC(),
	}
}

func countingServer(t *testing.T) (*httptest.Server, *int32) {
	t.Helper()
	var callCount int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&callCount, 1)
		w.WriteHeader(http.StatusOK)
	}))
	t.Cleanup(srv.Close)
	return srv, &callCount
}

func TestAlerter_StateChange_UpToDown(t *testing.T) {
	srv, calls := countingServer(t)

	a := alert.New(srv.URL, time.Hour, nil)
	a.Notify(makeResult("api", checker.StatusDown), statusPtr(checker.StatusUp))
	a.Wait()

	if n := atomic.LoadInt32(calls); n != 1 {
		t.Errorf("expected 1 webhook call for up→down, got %d", n)
	}
}

func TestAlerter_StateChange_ErrorToUp(t *testing.T) {
	srv, calls := countingServer(t)

	a := alert.New(srv.URL, time.Hour, nil)
	a.Notify(makeResult("api", checker.StatusUp), statusPtr(checker.StatusError))
	a.Wait()

	if n := atomic.LoadInt32(calls); n != 1 {
		t.Errorf("expected 1 webhook call for error→up, got %d", n)
	}
}

func TestAlerter_SameState_NoWebhook(t *testing.T) {
	srv, calls := countingServer(t)

	a := alert.New(srv.URL, time.Hour, nil)
	a.Notify(makeResult("api", checker.StatusUp), statusPtr(checker.StatusUp))
	a.Notify(makeResult("api", checker.StatusDown), statusPtr(checker.StatusDown))
	a.Wait()

	if n := atomic.LoadInt32(calls); n != 0 {
		t.Errorf("expected no webhook calls without a state change, got %d", n)
	}
}

func TestAlerter_FirstCheck_NoWebhook(t *testing.T) {
	srv, calls := countingServer(t)

	a := alert.New(srv.URL, time.Hour, nil)
	a.Notify(makeResult("api", checker.StatusDown), nil)
	a.Wait()

	if n := atomic.LoadInt32(calls); n != 0 {
		t.Errorf("expected no webhook on first check, got %d", n)
	}
}

func TestAlerter_Cooldown_SuppressesAlerts(t *testing.T) {
	srv, calls := countingServer(t)

	a := alert.New(srv.URL, time.Hour, nil)
	a.Notify(makeResult("api", checker.StatusDown), statusPtr(checker.StatusUp))
	a.Notify(makeResult("api", checker.StatusUp), statusPtr(checker.StatusDown))
	a.Wait()

	if n := atomic.LoadInt32(calls); n != 1 {
		t.Errorf("expected second alert to be suppressed, got %d calls", n)
	}
}

func TestAlerter_Cooldown_PerService(t *testing.T) {
	srv, calls := countingServer(t)

	a := alert.New(srv.URL, time.Hour, nil)
	a.Notify(makeResult("api", checker.StatusDown), statusPtr(checker.StatusUp))
	a.Notify(makeResult("db", checker.StatusDown), statusPtr(checker.StatusUp))
	a.Wait()

	if n := atomic.LoadInt32(calls); n != 2 {
		t.Errorf("expected 2 webhook calls (one per service), got %d", n)
	}
}

func TestAlerter_WebhookPayload(t *testing.T) {
	payloads := make(chan map[string]any, 1)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		var payload map[string]any
		json.Unmarshal(body, &payload)
		payloads <- payload
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	a := alert.New(srv.URL, time.Hour, nil)
	result := makeResult("api", checker.StatusDown)
	result.Detail = "connection refused"
	a.Notify(result, statusPtr(checker.StatusUp))
	a.Wait()

	var payload map[string]any
	select {
	case payload = <-payloads:
	case <-time.After(2 * time.Second):
		t.Fatal("webhook not received")
	}

	want := map[string]any{
		"service":         "api",
		"kind":            "port",
		"target":          "localhost:5432",
		"status":          "down",
		"previous_status": "up",
		"detail":          "connection refused",
		"latency_ms":      10.0,
		"source":          "devprobe",
	}
	for k, v := range want {
		if payload[k] != v {
			t.Errorf("payload[%q] = %v, want %v", k, payload[k], v)
		}
	}
}

func TestAlerter_HTTPError_DoesNotCrash(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	a := alert.New(srv.URL, time.Hour, nil)
	a.Notify(makeResult("api", checker.StatusDown), statusPtr(checker.StatusUp))
	a.Wait()
}
