package queue

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/samet-stack/ironforge/pkg/job"
)

// DLQEntry is what an Alerter receives when a job is moved to the dead
// letter queue. This is side-channel observability, not part of the core
// state machine: RedisBackend.MoveToDLQ fires alerters best-effort after
// the store mutation has already succeeded.
type DLQEntry struct {
	Job      *job.Job  `json:"job"`
	FailedAt time.Time `json:"failed_at"`
}

// Alerter is notified whenever a job exhausts its retries and lands in
// the dead letter queue.
type Alerter interface {
	Alert(ctx context.Context, entry DLQEntry) error
}

// WebhookAlerter posts a JSON payload to an arbitrary HTTP endpoint.
type WebhookAlerter struct {
	URL     string
	Headers map[string]string
	client  *http.Client
}

// NewWebhookAlerter creates a webhook alerter with a 10 second send timeout.
func NewWebhookAlerter(url string) *WebhookAlerter {
	return &WebhookAlerter{
		URL:     url,
		Headers: make(map[string]string),
		client:  &http.Client{Timeout: 10 * time.Second},
	}
}

// Alert sends an alert via webhook.
func (w *WebhookAlerter) Alert(ctx context.Context, entry DLQEntry) error {
	data, err := json.Marshal(map[string]any{
		"type":        "job_dead_lettered",
		"job_id":      entry.Job.ID,
		"kind":        entry.Job.Kind,
		"retry_count": entry.Job.RetryCount,
		"failed_at":   entry.FailedAt,
	})
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, w.URL, strings.NewReader(string(data)))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	for k, v := range w.Headers {
		req.Header.Set(k, v)
	}

	resp, err := w.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	return nil
}

// LogAlerter writes a structured log line. It is the default alerter
// wired by cmd/server when no webhook is configured.
type LogAlerter struct {
	Logger func(format string, args ...any)
}

// NewLogAlerter creates a log alerter.
func NewLogAlerter(logger func(format string, args ...any)) *LogAlerter {
	return &LogAlerter{Logger: logger}
}

// Alert logs the failure.
func (l *LogAlerter) Alert(ctx context.Context, entry DLQEntry) error {
	l.Logger("job %s (kind: %s) dead-lettered after %d retries",
		entry.Job.ID, entry.Job.Kind, entry.Job.RetryCount)
	return nil
}
