// Package jobs tracks storybook generation jobs: lifecycle state,
// progress reporting, and the credit reservation tied to each job.
package jobs

import (
	"encoding/json"
	"time"
)

// Status is the lifecycle state of a job.
type Status string

const (
	StatusPending    Status = "pending"
	StatusProcessing Status = "processing"
	StatusCompleted  Status = "completed"
	StatusFailed     Status = "failed"
)

// Terminal reports whether the status is final.
func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusFailed
}

// Record is one generation job.
type Record struct {
	ID     string `json:"id"`
	Owner  string `json:"owner"`
	Status Status `json:"status"`

	// Stage and Progress describe where a processing job is. Progress
	// is a percentage from 0 to 100.
	Stage    string `json:"stage,omitempty"`
	Progress int    `json:"progress"`
	Message  string `json:"message,omitempty"`

	// ReservedCredits is the amount held for this job. It is nonzero
	// only while the job is live; the terminal transition zeroes it,
	// exactly once, whether the job completed or failed.
	ReservedCredits int `json:"reserved_credits"`

	// CreditsUsed is the amount actually consumed, set at completion.
	CreditsUsed int `json:"credits_used"`

	// Result holds the assembled book. On failure it may hold a partial
	// book built from checkpoints.
	Result json.RawMessage `json:"result,omitempty"`

	// Error is the failure reason for failed jobs.
	Error string `json:"error,omitempty"`

	Input json.RawMessage `json:"input,omitempty"`

	CreatedAt  time.Time  `json:"created_at"`
	UpdatedAt  time.Time  `json:"updated_at"`
	FinishedAt *time.Time `json:"finished_at,omitempty"`
}
