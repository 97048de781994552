package draft

import (
	"context"
	"sort"
	"sync"

	"github.com/fjod/go_till/internal/clock"
	"github.com/fjod/go_till/internal/domain"
	"github.com/google/uuid"
)

// MemoryStore keeps drafts in process memory. It backs single-binary
// deployments that run without mongo, and the service tests.
type MemoryStore struct {
	mu     sync.RWMutex
	drafts map[string]Draft
	clock  clock.Clock
}

func NewMemoryStore(clk clock.Clock) *MemoryStore {
	return &MemoryStore{
		drafts: make(map[string]Draft),
		clock:  clk,
	}
}

func (s *MemoryStore) Save(_ context.Context, d Draft) (Draft, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.clock.Now()
	if d.Reference != "" {
		for id, existing := range s.drafts {
			if existing.Reference == d.Reference {
				d.ID = id
				d.CreatedAt = existing.CreatedAt
				d.UpdatedAt = now
				s.drafts[id] = d
				return d, nil
			}
		}
	}

	d.ID = uuid.New().String()
	d.CreatedAt = now
	d.UpdatedAt = now
	s.drafts[d.ID] = d
	return d, nil
}

func (s *MemoryStore) List(_ context.Context) ([]Summary, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	summaries := make([]Summary, 0, len(s.drafts))
	for _, d := range s.drafts {
		summaries = append(summaries, summarize(d))
	}
	sort.Slice(summaries, func(i, j int) bool {
		return summaries[i].CreatedAt.After(summaries[j].CreatedAt)
	})
	return summaries, nil
}

func (s *MemoryStore) Load(_ context.Context, id string) (Draft, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	d, ok := s.drafts[id]
	if !ok {
		return Draft{}, domain.ErrNotFound
	}
	return d, nil
}

func (s *MemoryStore) Discard(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.drafts[id]; !ok {
		return domain.ErrNotFound
	}
	delete(s.drafts, id)
	return nil
}
