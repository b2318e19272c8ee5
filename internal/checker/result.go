package checker

import (
	"fmt"
	"math"
	"time"
)

// Status represents the health state of a service.
type Status string

const (
	StatusUp    Status = "up"
	StatusDown  Status = "down"
	StatusError Status = "error"
)

// CheckResult is the outcome of a single health check. Latency is only
// meaningful when HasLatency is set.
type CheckResult struct {
	ServiceName string
	Kind        Kind
	Target      string
	Status      Status
	Detail      string
	StatusCode  int
	Latency     time.Duration
	HasLatency  bool
	CheckedAt   time.Time
}

// NewResult returns a result stamped with the descriptor's identity and
// the current time. Status is left empty.
func NewResult(d Descriptor) CheckResult {
	return CheckResult{
		ServiceName: d.Name,
		Kind:        d.Kind,
		Target:      d.Target,
		CheckedAt:   time.Now(),
	}
}

// ErrorResult reports a descriptor that could not be probed at all.
func ErrorResult(d Descriptor, err error) CheckResult {
	r := NewResult(d)
	r.Status = StatusError
	r.Detail = err.Error()
	return r
}

// WithLatency returns a copy of r with the latency set.
func (r CheckResult) WithLatency(d time.Duration) CheckResult {
	r.Latency = d
	r.HasLatency = true
	return r
}

// LatencyMillis returns the latency in milliseconds rounded to two decimals.
func (r CheckResult) LatencyMillis() (float64, bool) {
	if !r.HasLatency {
		return 0, false
	}
	ms := float64(r.Latency) / float64(time.Millisecond)
	return math.Round(ms*100) / 100, true
}

// Report is the JSON view of a CheckResult.
type Report struct {
	Name       string   `json:"name" jsonschema:"service display name"`
	Kind       string   `json:"kind" jsonschema:"port or http"`
	Target     string   `json:"target" jsonschema:"host:port or URL that was probed"`
	Status     string   `json:"status" jsonschema:"up, down or error"`
	Detail     string   `json:"detail,omitempty" jsonschema:"status line or failure reason"`
	StatusCode int      `json:"status_code,omitempty" jsonschema:"HTTP status code, http checks only"`
	LatencyMS  *float64 `json:"latency_ms,omitempty" jsonschema:"response time in milliseconds"`
	CheckedAt  string   `json:"checked_at" jsonschema:"RFC 3339 timestamp of the check"`
}

// NewReport converts a result to its JSON view.
func NewReport(r CheckResult) Report {
	rep := Report{
		Name:       r.ServiceName,
		Kind:       string(r.Kind),
		Target:     r.Target,
		Status:     string(r.Status),
		Detail:     r.Detail,
		StatusCode: r.StatusCode,
		CheckedAt:  r.CheckedAt.UTC().Format(time.RFC3339),
	}
	if ms, ok := r.LatencyMillis(); ok {
		rep.LatencyMS = &ms
	}
	return rep
}

// Summary counts results by status.
type Summary struct {
	Total  int
	Up     int
	Down   int
	Errors int
}

// Summarize counts the results.
func Summarize(results []CheckResult) Summary {
	s := Summary{Total: len(results)}
	for _, r := range results {
		switch r.Status {
		case StatusUp:
			s.Up++
		case StatusDown:
			s.Down++
		default:
			s.Errors++
		}
	}
	return s
}

// Healthy reports whether every result is up. An empty batch is not healthy.
func (s Summary) Healthy() bool {
	return s.Total > 0 && s.Up == s.Total
}

func (s Summary) String() string {
	return fmt.Sprintf("%d/%d services are healthy", s.Up, s.Total)
}

// BatchReport is the JSON view of a multi-service check.
type BatchReport struct {
	OverallStatus string   `json:"overall_status" jsonschema:"healthy when every service is up, otherwise unhealthy"`
	Summary       string   `json:"summary" jsonschema:"count of healthy services"`
	Services      []Report `json:"services" jsonschema:"per-service results in request order"`
}

// NewBatchReport converts results, preserving their order.
func NewBatchReport(results []CheckResult) BatchReport {
	summary := Summarize(results)
	overall := "unhealthy"
	if summary.Healthy() {
		overall = "healthy"
	}
	services := make([]Report, len(results))
	for i, r := range results {
		services[i] = NewReport(r)
	}
	return BatchReport{
		OverallStatus: overall,
		Summary:       summary.String(),
		Services:      services,
	}
}
