package queuexmemory

import (
	"context"
	"sort"
	"sync"

	"github.com/gardenledger/fieldsync/pkg/queuex"
)

// MemoryStore implements queuex.Store in process memory. Intended for tests
// and local development; it is not durable across restarts.
type MemoryStore struct {
	mu   sync.RWMutex
	jobs map[string]queuex.Job
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{jobs: make(map[string]queuex.Job)}
}

func (s *MemoryStore) Put(_ context.Context, job queuex.Job) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.jobs[job.ID] = job
	return nil
}

func (s *MemoryStore) Get(_ context.Context, id string) (*queuex.Job, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	job, ok := s.jobs[id]
	if !ok {
		return nil, queuex.NotFound(id)
	}
	copied := job
	return &copied, nil
}

func (s *MemoryStore) List(_ context.Context, filter queuex.Filter) ([]queuex.Job, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]queuex.Job, 0, len(s.jobs))
	for _, job := range s.jobs {
		if filter.Synced != nil && job.Synced != *filter.Synced {
			continue
		}
		out = append(out, job)
	}

	sort.Slice(out, func(i, j int) bool {
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out, nil
}

func (s *MemoryStore) Update(_ context.Context, job queuex.Job) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.jobs[job.ID]; !ok {
		return queuex.NotFound(job.ID)
	}
	s.jobs[job.ID] = job
	return nil
}

func (s *MemoryStore) Delete(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.jobs, id)
	return nil
}

func (s *MemoryStore) DeleteSynced(_ context.Context) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	removed := 0
	for id, job := range s.jobs {
		if job.Synced {
			delete(s.jobs, id)
			removed++
		}
	}
	return removed, nil
}
