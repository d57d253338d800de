package models

import "time"

// RunKind identifies what triggered a sync run
type RunKind string

const (
	RunReindex RunKind = "reindex"
	RunWebhook RunKind = "webhook"
	RunManual  RunKind = "manual"
)

// SyncRun is one journaled reindex or reconciliation pass
type SyncRun struct {
	ID         string    `json:"id"`
	Kind       RunKind   `json:"kind"`
	StartedAt  time.Time `json:"started_at"`
	FinishedAt time.Time `json:"finished_at"`
	Codenames  []string  `json:"codenames,omitempty"`
	Upserted   []string  `json:"upserted"`
	Deleted    []string  `json:"deleted"`
	Error      string    `json:"error,omitempty"`
}

// ShortID returns the first 8 characters of the run ID
func (r *SyncRun) ShortID() string {
	if len(r.ID) > 8 {
		return r.ID[:8]
	}
	return r.ID
}

// Failed reports whether the run ended with an error
func (r *SyncRun) Failed() bool {
	return r.Error != ""
}

// Duration returns how long the run took
func (r *SyncRun) Duration() time.Duration {
	if r.FinishedAt.IsZero() {
		return 0
	}
	return r.FinishedAt.Sub(r.StartedAt)
}
