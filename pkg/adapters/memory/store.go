package memory

import (
	"context"
	"sort"
	"sync"

	"github.com/aretw0/sluice/pkg/domain"
)

// Store implements ports.RunStore in memory.
// Safe for concurrent use.
type Store struct {
	data map[string]*domain.RunRecord
	seq  map[string]int
	next int
	mu   sync.RWMutex
}

// NewStore creates a new in-memory store.
func NewStore() *Store {
	return &Store{
		data: make(map[string]*domain.RunRecord),
		seq:  make(map[string]int),
	}
}

func clone(run *domain.RunRecord) *domain.RunRecord {
	c := *run
	c.Tasks = append([]string(nil), run.Tasks...)
	c.Results = append([]domain.TaskResult(nil), run.Results...)
	return &c
}

// Save persists the record in memory.
func (s *Store) Save(_ context.Context, run *domain.RunRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.seq[run.ID]; !ok {
		s.seq[run.ID] = s.next
		s.next++
	}
	s.data[run.ID] = clone(run)
	return nil
}

// Load retrieves a copy of the record.
func (s *Store) Load(_ context.Context, runID string) (*domain.RunRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	run, ok := s.data[runID]
	if !ok {
		return nil, domain.ErrRunNotFound
	}
	return clone(run), nil
}

// Delete removes the record.
func (s *Store) Delete(_ context.Context, runID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.data, runID)
	delete(s.seq, runID)
	return nil
}

// List returns run IDs in the order they were first saved.
func (s *Store) List(_ context.Context) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ids := make([]string, 0, len(s.data))
	for id := range s.data {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return s.seq[ids[i]] < s.seq[ids[j]] })
	return ids, nil
}
