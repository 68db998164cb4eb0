package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/corvid-labs/fieldlaw/internal/core/domain"
	"github.com/corvid-labs/fieldlaw/internal/core/ports/driven"
)

// Ensure ResultStore implements the interface.
var _ driven.ResultStore = (*ResultStore)(nil)

// ResultStore is an in-memory implementation of driven.ResultStore.
type ResultStore struct {
	mu      sync.RWMutex
	results map[string]domain.DiscoveryResult
	created map[string]time.Time
}

// NewResultStore creates a new in-memory result store.
func NewResultStore() *ResultStore {
	return &ResultStore{
		results: make(map[string]domain.DiscoveryResult),
		created: make(map[string]time.Time),
	}
}

// SaveResult stores or updates a run result under result.RunID.
func (s *ResultStore) SaveResult(_ context.Context, result *domain.DiscoveryResult) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.results[result.RunID] = *result
	if _, ok := s.created[result.RunID]; !ok {
		s.created[result.RunID] = time.Now()
	}
	return nil
}

// GetResult retrieves a run result by ID.
func (s *ResultStore) GetResult(_ context.Context, runID string) (*domain.DiscoveryResult, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	result, ok := s.results[runID]
	if !ok {
		return nil, domain.ErrRunNotFound
	}
	return &result, nil
}

// ListRuns returns summary rows for all stored runs, newest first.
func (s *ResultStore) ListRuns(_ context.Context) ([]domain.RunRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	records := make([]domain.RunRecord, 0, len(s.results))
	for id := range s.results {
		result := s.results[id]
		record := domain.RunRecord{
			ID:         id,
			TargetName: result.TargetName,
			State:      result.State,
			CreatedAt:  s.created[id],
		}
		if best := result.Ranked.Best(); best != nil {
			record.BestFormula = best.Formula
		}
		records = append(records, record)
	}
	sort.Slice(records, func(i, j int) bool {
		if !records[i].CreatedAt.Equal(records[j].CreatedAt) {
			return records[i].CreatedAt.After(records[j].CreatedAt)
		}
		return records[i].ID < records[j].ID
	})
	return records, nil
}
