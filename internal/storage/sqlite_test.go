package storage_test

import (
	"context"
	"testing"
	"time"

	"github.com/hazz-dev/devprobe/internal/checker"
	"github.com/hazz-dev/devprobe/internal/storage"
)

func openTestDB(t *testing.T) *storage.DB {
	t.Helper()
	db, err := storage.Open(storage.InMemory)
	if err != nil {
		t.Fatalf("opening in-memory DB: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

func makeResult(service string, status checker.Status, latencyMs int64, at time.Time) checker.CheckResult {
	r := checker.CheckResult{
		ServiceName: service,
		Kind:        checker.KindPort,
		Target:      "localhost:5432",
		Status:      status,
		CheckedAt:   at,
	}
	if latencyMs >= 0 {
		r = r.WithLatency(time.Duration(latencyMs) * time.Millisecond)
	}
	return r
}

func TestInsertCheck_And_LatestCheck(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()

	r := makeResult("api", checker.StatusUp, 42, time.Now())
	r.Kind = checker.KindHTTP
	r.Target = "http://localhost:3000"
	r.StatusCode = 200
	r.Detail = "200 OK"
	if err := db.InsertCheck(ctx, r); err != nil {
		t.Fatalf("InsertCheck: %v", err)
	}

	got, err := db.LatestCheck(ctx, "api")
	if err != nil {
		t.Fatalf("LatestCheck: %v", err)
	}
	if got == nil {
		t.Fatal("expected a check, got nil")
	}
	if got.Service != "api" || got.Kind != "http" || got.Target != "http://localhost:3000" {
		t.Errorf("unexpected identity %+v", got)
	}
	if got.Status != "up" || got.StatusCode != 200 || got.Detail != "200 OK" {
		t.Errorf("unexpected outcome %+v", got)
	}
	if got.LatencyMs == nil || *got.LatencyMs != 42 {
		t.Errorf("expected latency 42ms, got %v", got.LatencyMs)
	}
	if !got.CheckedAt.Equal(r.CheckedAt.UTC().Truncate(time.Nanosecond)) {
		t.Errorf("checked_at mismatch: %v vs %v", got.CheckedAt, r.CheckedAt)
	}
}

func TestInsertCheck_NoLatency(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()

	r := makeResult("ghost", checker.StatusError, -1, time.Now())
	r.Detail = "lookup failed"
	if err := db.InsertCheck(ctx, r); err != nil {
		t.Fatal(err)
	}
	got, err := db.LatestCheck(ctx, "ghost")
	if err != nil {
		t.Fatal(err)
	}
	if got.LatencyMs != nil {
		t.Errorf("expected nil latency, got %v", *got.LatencyMs)
	}
	if got.Status != "error" {
		t.Errorf("expected error status, got %q", got.Status)
	}
}

func TestLatestCheck_ReturnsNilWhenEmpty(t *testing.T) {
	db := openTestDB(t)
	got, err := db.LatestCheck(context.Background(), "nonexistent")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != nil {
		t.Errorf("expected nil, got %+v", got)
	}
}

func TestLatestCheck_ReturnsMostRecent(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()

	base := time.Now().Add(-time.Minute)
	// Sub-second timestamps that would misorder as RFC3339Nano strings.
	db.InsertCheck(ctx, makeResult("api", checker.StatusDown, 1, base.Truncate(time.Second).Add(100*time.Millisecond)))
	db.InsertCheck(ctx, makeResult("api", checker.StatusUp, 2, base.Truncate(time.Second).Add(120*time.Millisecond)))

	got, err := db.LatestCheck(ctx, "api")
	if err != nil {
		t.Fatal(err)
	}
	if got.Status != "up" {
		t.Errorf("expected latest status up, got %q", got.Status)
	}
}

func TestInsertResults_And_History(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()

	base := time.Now().Add(-time.Hour)
	var batch []checker.CheckResult
	for i := 0; i < 10; i++ {
		batch = append(batch, makeResult("db", checker.StatusUp, int64(i), base.Add(time.Duration(i)*time.Second)))
	}
	batch = append(batch, makeResult("cache", checker.StatusDown, 5, base))
	if err := db.InsertResults(ctx, batch); err != nil {
		t.Fatalf("InsertResults: %v", err)
	}

	history, err := db.History(ctx, "db", 3)
	if err != nil {
		t.Fatal(err)
	}
	if len(history) != 3 {
		t.Fatalf("expected 3 rows, got %d", len(history))
	}
	if *history[0].LatencyMs != 9 || *history[2].LatencyMs != 7 {
		t.Errorf("expected newest first, got %v, %v", *history[0].LatencyMs, *history[2].LatencyMs)
	}

	empty, err := db.History(ctx, "nonexistent", 10)
	if err != nil {
		t.Fatal(err)
	}
	if empty == nil || len(empty) != 0 {
		t.Errorf("expected empty non-nil slice, got %v", empty)
	}
}

func TestAllLatest_ReturnsOnePerService(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()

	now := time.Now()
	db.InsertResults(ctx, []checker.CheckResult{
		makeResult("b", checker.StatusUp, 1, now.Add(-2*time.Second)),
		makeResult("a", checker.StatusUp, 1, now.Add(-time.Second)),
		makeResult("b", checker.StatusDown, 2, now),
	})

	latest, err := db.AllLatest(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(latest) != 2 {
		t.Fatalf("expected 2 services, got %d", len(latest))
	}
	if latest[0].Service != "a" || latest[1].Service != "b" {
		t.Errorf("expected services ordered by name, got %q, %q", latest[0].Service, latest[1].Service)
	}
	if latest[1].Status != "down" {
		t.Errorf("expected latest b to be down, got %q", latest[1].Status)
	}
}

func TestUptimePercent(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()

	now := time.Now()
	statuses := []checker.Status{checker.StatusUp, checker.StatusDown, checker.StatusUp, checker.StatusError}
	for i, s := range statuses {
		db.InsertCheck(ctx, makeResult("api", s, 1, now.Add(time.Duration(i)*time.Second)))
	}
	// Outside the window.
	db.InsertCheck(ctx, makeResult("api", checker.StatusDown, 1, now.Add(-48*time.Hour)))

	pct, err := db.UptimePercent(ctx, "api", now.Add(-24*time.Hour), 100)
	if err != nil {
		t.Fatal(err)
	}
	if pct != 50 {
		t.Errorf("expected 50%%, got %v", pct)
	}

	pct, err = db.UptimePercent(ctx, "api", now.Add(-24*time.Hour), 2)
	if err != nil {
		t.Fatal(err)
	}
	if pct != 50 {
		t.Errorf("expected 50%% over last 2, got %v", pct)
	}

	pct, err = db.UptimePercent(ctx, "nobody", now.Add(-time.Hour), 100)
	if err != nil || pct != 0 {
		t.Errorf("expected 0 for unknown service, got %v (%v)", pct, err)
	}
}

func TestPrune(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()

	now := time.Now()
	db.InsertCheck(ctx, makeResult("old", checker.StatusUp, 1, now.Add(-48*time.Hour)))
	for i := 0; i < 5; i++ {
		db.InsertCheck(ctx, makeResult("busy", checker.StatusUp, int64(i), now.Add(time.Duration(i)*time.Second)))
	}

	removed, err := db.Prune(ctx, now.Add(-24*time.Hour), 3)
	if err != nil {
		t.Fatalf("Prune: %v", err)
	}
	if removed != 3 {
		t.Errorf("expected 3 rows removed, got %d", removed)
	}

	if got, _ := db.LatestCheck(ctx, "old"); got != nil {
		t.Error("expired check survived prune")
	}
	history, _ := db.History(ctx, "busy", 10)
	if len(history) != 3 {
		t.Fatalf("expected 3 rows kept, got %d", len(history))
	}
	if *history[2].LatencyMs != 2 {
		t.Errorf("expected oldest kept row to have latency 2, got %v", *history[2].LatencyMs)
	}
}

func TestClose(t *testing.T) {
	db, err := storage.Open(storage.InMemory)
	if err != nil {
		t.Fatal(err)
	}
	if err := db.Close(); err != nil {
		t.Errorf("Close: %v", err)
	}
}
