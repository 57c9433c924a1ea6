// Package checkpoint persists intermediate pipeline results so a crashed
// or cancelled job can resume without repeating paid provider calls, and
// so partial books can be assembled for failed jobs.
package checkpoint

import (
	"context"
	"encoding/json"
	"errors"
	"time"
)

// Pipeline step names. Together with the job ID and an index they key a
// checkpoint row; writing the same key again replaces the payload.
const (
	StepOutline  = "outline"
	StepBible    = "visual_bible"
	StepPageText = "page_text"
	StepPage     = "partial_page"
	StepCover    = "cover"
)

// ErrNotFound is returned when no checkpoint exists for a key.
var ErrNotFound = errors.New("checkpoint not found")

// Checkpoint is one saved intermediate result.
type Checkpoint struct {
	JobID string `json:"job_id"`
	Step  string `json:"step"`

	// Index distinguishes rows within a step: the page number for page
	// steps (covers use 0, -1, -2), zero for singleton steps.
	Index int `json:"index"`

	Payload json.RawMessage `json:"payload"`

	// CreatedAt is when the key was first written. Overwrites bump
	// UpdatedAt but keep CreatedAt, so ListAll replays in the order the
	// pipeline first produced each result.
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Store persists checkpoints keyed by (job, step, index).
type Store interface {
	// Save upserts a checkpoint. Last write wins.
	Save(ctx context.Context, cp Checkpoint) error

	// Get returns one checkpoint or ErrNotFound.
	Get(ctx context.Context, jobID, step string, index int) (*Checkpoint, error)

	// List returns all checkpoints for a job and step, ordered by index.
	List(ctx context.Context, jobID, step string) ([]Checkpoint, error)

	// ListAll returns every checkpoint for a job, in creation order.
	ListAll(ctx context.Context, jobID string) ([]Checkpoint, error)

	// DeleteJob removes all checkpoints for a job.
	DeleteJob(ctx context.Context, jobID string) error
}

// SavePayload marshals v and saves it under the key.
func SavePayload(ctx context.Context, s Store, jobID, step string, index int, v any) error {
	payload, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return s.Save(ctx, Checkpoint{
		JobID:   jobID,
		Step:    step,
		Index:   index,
		Payload: payload,
	})
}

// LoadPayload fetches the checkpoint for the key and unmarshals it into v.
func LoadPayload(ctx context.Context, s Store, jobID, step string, index int, v any) error {
	cp, err := s.Get(ctx, jobID, step, index)
	if err != nil {
		return err
	}
	return json.Unmarshal(cp.Payload, v)
}
