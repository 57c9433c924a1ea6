package jobs

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"
)

// Event describes a job state change pushed to interested listeners.
type Event struct {
	JobID    string `json:"job_id"`
	Owner    string `json:"owner"`
	Status   Status `json:"status"`
	Stage    string `json:"stage,omitempty"`
	Progress int    `json:"progress"`
	Message  string `json:"message,omitempty"`
	Error    string `json:"error,omitempty"`
}

// Notifier delivers job events. Delivery is fire-and-forget: a failed
// notification never fails the job.
type Notifier interface {
	Notify(ctx context.Context, event Event)
}

// LogNotifier writes events to the structured log.
type LogNotifier struct {
	Logger *slog.Logger
}

func (n *LogNotifier) Notify(_ context.Context, event Event) {
	log := n.Logger
	if log == nil {
		log = slog.Default()
	}
	log.Info("job event",
		"job_id", event.JobID,
		"owner", event.Owner,
		"status", event.Status,
		"stage", event.Stage,
		"progress", event.Progress,
		"message", event.Message)
}

// WebhookNotifier POSTs events to a callback URL.
type WebhookNotifier struct {
	URL    string
	Client *http.Client
	Logger *slog.Logger
}

func (n *WebhookNotifier) Notify(ctx context.Context, event Event) {
	log := n.Logger
	if log == nil {
		log = slog.Default()
	}
	client := n.Client
	if client == nil {
		client = &http.Client{Timeout: 10 * time.Second}
	}

	body, err := json.Marshal(event)
	if err != nil {
		log.Warn("webhook marshal failed", "job_id", event.JobID, "error", err)
		return
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.URL, bytes.NewReader(body))
	if err != nil {
		log.Warn("webhook request failed", "job_id", event.JobID, "error", err)
		return
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := client.Do(req)
	if err != nil {
		log.Warn("webhook delivery failed", "job_id", event.JobID, "error", err)
		return
	}
	resp.Body.Close()
	if resp.StatusCode >= 300 {
		log.Warn("webhook rejected", "job_id", event.JobID, "status", resp.StatusCode)
	}
}

// MultiNotifier fans one event out to several notifiers.
type MultiNotifier []Notifier

func (m MultiNotifier) Notify(ctx context.Context, event Event) {
	for _, n := range m {
		n.Notify(ctx, event)
	}
}
