package alert

import (
	"bytes"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/hazz-dev/devprobe/internal/checker"
)

// Alerter sends webhook notifications on service state changes.
type Alerter struct {
	webhookURL string
	cooldown   time.Duration
	client     *http.Client
	lastAlert  map[string]time.Time
	mu         sync.Mutex
	inflight   sync.WaitGroup
	logger     *zap.Logger
}

// New creates a new Alerter. Pass nil logger to discard logs.
func New(webhookURL string, cooldown time.Duration, logger *zap.Logger) *Alerter {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Alerter{
		webhookURL: webhookURL,
		cooldown:   cooldown,
		client:     &http.Client{Timeout: 10 * time.Second},
		lastAlert:  make(map[string]time.Time),
		logger:     logger,
	}
}

type webhookPayload struct {
	Service        string   `json:"service"`
	Kind           string   `json:"kind"`
	Target         string   `json:"target"`
	Status         string   `json:"status"`
	PreviousStatus string   `json:"previous_status"`
	Detail         string   `json:"detail"`
	StatusCode     int      `json:"status_code,omitempty"`
	LatencyMs      *float64 `json:"latency_ms,omitempty"`
	CheckedAt      string   `json:"checked_at"`
	Source         string   `json:"source"`
}

// Notify sends a webhook if the service state has changed and the cooldown has elapsed.
func (a *Alerter) Notify(result checker.CheckResult, previousStatus *checker.Status) {
	// No previous status means first check.
	if previousStatus == nil {
		return
	}
	if result.Status == *previousStatus {
		return
	}

	a.mu.Lock()
	last, exists := a.lastAlert[result.ServiceName]
	if exists && time.Since(last) < a.cooldown {
		a.mu.Unlock()
		a.logger.Info("alert suppressed by cooldown", zap.String("service", result.ServiceName))
		return
	}
	a.lastAlert[result.ServiceName] = time.Now()
	a.mu.Unlock()

	// Send asynchronously so Notify doesn't block the scheduler.
	a.inflight.Add(1)
	go func() {
		defer a.inflight.Done()
		a.send(result, string(*previousStatus))
	}()
}

// Wait blocks until every webhook started by Notify has finished.
func (a *Alerter) Wait() {
	a.inflight.Wait()
}

func (a *Alerter) send(result checker.CheckResult, prevStatus string) {
	report := checker.NewReport(result)
	payload := webhookPayload{
		Service:        report.Name,
		Kind:           report.Kind,
		Target:         report.Target,
		Status:         report.Status,
		PreviousStatus: prevStatus,
		Detail:         report.Detail,
		StatusCode:     report.StatusCode,
		LatencyMs:      report.LatencyMS,
		CheckedAt:      report.CheckedAt,
		Source:         "devprobe",
	}

	body, err := json.Marshal(payload)
	if err != nil {
		a.logger.Error("marshaling webhook payload", zap.String("service", result.ServiceName), zap.Error(err))
		return
	}

	resp, err := a.client.Post(a.webhookURL, "application/json", bytes.NewReader(body))
	if err != nil {
		a.logger.Error("sending webhook",
			zap.String("service", result.ServiceName),
			zap.String("url", a.webhookURL),
			zap.Error(err),
		)
		return
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		a.logger.Warn("webhook returned non-2xx status",
			zap.String("service", result.ServiceName),
			zap.Int("status", resp.StatusCode),
		)
	}
}
