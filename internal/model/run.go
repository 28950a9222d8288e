package model

import "time"

const (
	RunSuccess = "success"
	RunFailed  = "failed"
)

// BackupRun is one row of the append-only backup history. Exactly one row is
// written per orchestration run, for successes and failures alike. FilePath
// is populated only on success and may outlive the artifact it points at:
// retention pruning deletes artifacts, never history.
type BackupRun struct {
	ID         string    `json:"id"`
	Status     string    `json:"status"`
	SizeBytes  int64     `json:"size_bytes"`
	DurationMs int64     `json:"duration_ms"`
	FilePath   string    `json:"file_path,omitempty"`
	Message    *string   `json:"message,omitempty"`
	CreatedAt  time.Time `json:"created_at"`
}
