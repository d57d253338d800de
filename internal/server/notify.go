package server

import (
	"bytes"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/kilupskalvis/contentsync/internal/models"
)

// RunEvent is the payload sent to notification URLs after a sync run.
type RunEvent struct {
	Event     string   `json:"event"`
	RunID     string   `json:"run_id"`
	Kind      string   `json:"kind"`
	ObjectIDs []string `json:"object_ids"`
	Deleted   []string `json:"deleted"`
	Timestamp string   `json:"timestamp"`
}

// NotifierConfig holds the list of configured notification URLs.
type NotifierConfig struct {
	URLs []string
}

// WebhookNotifier sends HTTP POST notifications to configured URLs once a
// run has changed the index.
type WebhookNotifier struct {
	config  *NotifierConfig
	client  *http.Client
	logger  *slog.Logger
	backoff time.Duration
	wg      sync.WaitGroup
}

// NewWebhookNotifier creates a notifier. Returns nil if no URLs are configured.
func NewWebhookNotifier(cfg *NotifierConfig, logger *slog.Logger) *WebhookNotifier {
	if cfg == nil || len(cfg.URLs) == 0 {
		return nil
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &WebhookNotifier{
		config:  cfg,
		client:  &http.Client{Timeout: 10 * time.Second},
		logger:  logger,
		backoff: time.Second,
	}
}

// NotifyRun sends an index_updated event to all configured URLs.
// Runs asynchronously; Wait blocks until deliveries finish.
func (wn *WebhookNotifier) NotifyRun(run *models.SyncRun) {
	if wn == nil {
		return
	}

	event := &RunEvent{
		Event:     "index_updated",
		RunID:     run.ID,
		Kind:      string(run.Kind),
		ObjectIDs: run.Upserted,
		Deleted:   run.Deleted,
		Timestamp: run.FinishedAt.UTC().Format(time.RFC3339),
	}

	wn.wg.Add(1)
	go func() {
		defer wn.wg.Done()
		wn.send(event)
	}()
}

// Wait blocks until in-flight deliveries are done.
func (wn *WebhookNotifier) Wait() {
	if wn == nil {
		return
	}
	wn.wg.Wait()
}

// send delivers the event to all configured URLs.
func (wn *WebhookNotifier) send(event *RunEvent) {
	data, err := json.Marshal(event)
	if err != nil {
		wn.logger.Error("notify: marshal event", "error", err)
		return
	}

	for _, url := range wn.config.URLs {
		if err := wn.post(url, data); err != nil {
			wn.logger.Warn("notify: delivery failed", "url", url, "error", err)
		} else {
			wn.logger.Debug("notify: delivered", "url", url, "run_id", event.RunID)
		}
	}
}

// post sends a single POST with retry (up to 2 retries).
func (wn *WebhookNotifier) post(url string, data []byte) error {
	const maxRetries = 2

	var lastErr error
	for attempt := 0; attempt <= maxRetries; attempt++ {
		if attempt > 0 {
			time.Sleep(time.Duration(attempt) * wn.backoff)
		}

		req, err := http.NewRequest("POST", url, bytes.NewReader(data))
		if err != nil {
			return fmt.Errorf("create request: %w", err)
		}
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("User-Agent", "contentsync/1.0")

		resp, err := wn.client.Do(req)
		if err != nil {
			lastErr = err
			continue
		}
		resp.Body.Close()

		if resp.StatusCode >= 200 && resp.StatusCode < 300 {
			return nil
		}

		lastErr = fmt.Errorf("HTTP %d", resp.StatusCode)
		if resp.StatusCode < 500 {
			return lastErr // don't retry 4xx
		}
	}

	return lastErr
}
