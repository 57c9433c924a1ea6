package jobs

import (
	"context"
	"encoding/json"
	"sort"
	"sync"
	"time"
)

// MemoryStore is an in-memory Store for tests and single-node runs.
// Error injection fields force failures on specific operations.
type MemoryStore struct {
	mu   sync.RWMutex
	jobs map[string]*Record

	// CreateErr, when set, is returned by every Create call.
	CreateErr error
	// UpdateErr, when set, is returned by every mutation.
	UpdateErr error

	now func() time.Time
}

// NewMemoryStore creates an empty in-memory job store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		jobs: make(map[string]*Record),
		now:  time.Now,
	}
}

func (s *MemoryStore) Create(_ context.Context, job *Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.CreateErr != nil {
		return s.CreateErr
	}
	now := s.now()
	job.Status = StatusPending
	job.CreatedAt = now
	job.UpdatedAt = now
	clone := *job
	s.jobs[job.ID] = &clone
	return nil
}

func (s *MemoryStore) Get(_ context.Context, id string) (*Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	job, ok := s.jobs[id]
	if !ok {
		return nil, ErrNotFound
	}
	clone := *job
	return &clone, nil
}

func (s *MemoryStore) ListByOwner(_ context.Context, owner string) ([]Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []Record
	for _, job := range s.jobs {
		if job.Owner == owner {
			out = append(out, *job)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

func (s *MemoryStore) UpdateProgress(_ context.Context, id, stage string, progress int, message string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.UpdateErr != nil {
		return s.UpdateErr
	}
	job, ok := s.jobs[id]
	if !ok {
		return ErrNotFound
	}
	if job.Status.Terminal() {
		return ErrTerminal
	}
	job.Status = StatusProcessing
	job.Stage = stage
	job.Progress = progress
	job.Message = message
	job.UpdatedAt = s.now()
	return nil
}

func (s *MemoryStore) Complete(_ context.Context, id string, result json.RawMessage, creditsUsed int) error {
	return s.finish(id, func(job *Record) {
		job.Status = StatusCompleted
		job.Progress = 100
		job.Result = result
		job.CreditsUsed = creditsUsed
	})
}

func (s *MemoryStore) Fail(_ context.Context, id, errMsg string, partial json.RawMessage) error {
	return s.finish(id, func(job *Record) {
		job.Status = StatusFailed
		job.Error = errMsg
		job.Result = partial
	})
}

func (s *MemoryStore) finish(id string, apply func(*Record)) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.UpdateErr != nil {
		return s.UpdateErr
	}
	job, ok := s.jobs[id]
	if !ok {
		return ErrNotFound
	}
	if job.Status.Terminal() {
		return ErrTerminal
	}
	apply(job)
	job.ReservedCredits = 0
	now := s.now()
	job.UpdatedAt = now
	job.FinishedAt = &now
	return nil
}
