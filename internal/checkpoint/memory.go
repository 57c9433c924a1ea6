package checkpoint

import (
	"context"
	"sort"
	"sync"
	"time"
)

type memoryKey struct {
	jobID string
	step  string
	index int
}

// MemoryStore is an in-memory Store for tests and single-node runs.
// Error injection fields force failures on specific operations.
type MemoryStore struct {
	mu   sync.RWMutex
	rows map[memoryKey]Checkpoint

	// seq numbers each key in first-write order. Overwrites keep the
	// original number, so ListAll replays in creation order.
	seq     map[memoryKey]int
	nextSeq int

	// SaveErr, when set, is returned by every Save call.
	SaveErr error
	// GetErr, when set, is returned by every read call.
	GetErr error

	saves int
	now   func() time.Time
}

// NewMemoryStore creates an empty in-memory checkpoint store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		rows: make(map[memoryKey]Checkpoint),
		seq:  make(map[memoryKey]int),
		now:  time.Now,
	}
}

func (s *MemoryStore) Save(_ context.Context, cp Checkpoint) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.SaveErr != nil {
		return s.SaveErr
	}
	s.saves++
	key := memoryKey{cp.JobID, cp.Step, cp.Index}
	cp.UpdatedAt = s.now()
	if prev, ok := s.rows[key]; ok {
		cp.CreatedAt = prev.CreatedAt
	} else {
		cp.CreatedAt = cp.UpdatedAt
		s.seq[key] = s.nextSeq
		s.nextSeq++
	}
	s.rows[key] = cp
	return nil
}

func (s *MemoryStore) Get(_ context.Context, jobID, step string, index int) (*Checkpoint, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.GetErr != nil {
		return nil, s.GetErr
	}
	cp, ok := s.rows[memoryKey{jobID, step, index}]
	if !ok {
		return nil, ErrNotFound
	}
	return &cp, nil
}

func (s *MemoryStore) List(_ context.Context, jobID, step string) ([]Checkpoint, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.GetErr != nil {
		return nil, s.GetErr
	}
	var out []Checkpoint
	for key, cp := range s.rows {
		if key.jobID == jobID && key.step == step {
			out = append(out, cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Index < out[j].Index })
	return out, nil
}

func (s *MemoryStore) ListAll(_ context.Context, jobID string) ([]Checkpoint, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.GetErr != nil {
		return nil, s.GetErr
	}
	type row struct {
		cp  Checkpoint
		seq int
	}
	var rows []row
	for key, cp := range s.rows {
		if key.jobID == jobID {
			rows = append(rows, row{cp, s.seq[key]})
		}
	}
	sort.Slice(rows, func(i, j int) bool { return rows[i].seq < rows[j].seq })
	out := make([]Checkpoint, 0, len(rows))
	for _, r := range rows {
		out = append(out, r.cp)
	}
	return out, nil
}

func (s *MemoryStore) DeleteJob(_ context.Context, jobID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for key := range s.rows {
		if key.jobID == jobID {
			delete(s.rows, key)
			delete(s.seq, key)
		}
	}
	return nil
}

// Saves returns how many successful writes the store has seen.
func (s *MemoryStore) Saves() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.saves
}
