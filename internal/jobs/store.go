package jobs

import (
	"context"
	"encoding/json"
	"errors"
)

var (
	// ErrNotFound is returned when no job exists with the given ID.
	ErrNotFound = errors.New("job not found")

	// ErrTerminal is returned when a mutation targets a job that has
	// already completed or failed. Terminal transitions happen once.
	ErrTerminal = errors.New("job already in a terminal state")
)

// Store persists job records.
type Store interface {
	// Create inserts a new pending job.
	Create(ctx context.Context, job *Record) error

	// Get returns a job or ErrNotFound.
	Get(ctx context.Context, id string) (*Record, error)

	// ListByOwner returns an owner's jobs, newest first.
	ListByOwner(ctx context.Context, owner string) ([]Record, error)

	// UpdateProgress moves a live job to processing and records its
	// stage, percentage, and message. Returns ErrTerminal for finished
	// jobs.
	UpdateProgress(ctx context.Context, id, stage string, progress int, message string) error

	// Complete finishes a job with its result, records the credits
	// actually used, and zeroes the reservation. Returns ErrTerminal if
	// the job already finished.
	Complete(ctx context.Context, id string, result json.RawMessage, creditsUsed int) error

	// Fail finishes a job with an error. A partial result assembled
	// from checkpoints may be attached. The reservation is zeroed.
	// Returns ErrTerminal if the job already finished.
	Fail(ctx context.Context, id, errMsg string, partial json.RawMessage) error
}
