package memory

import (
	"context"
	"sync"

	"github.com/corvid-labs/fieldlaw/internal/core/domain"
	"github.com/corvid-labs/fieldlaw/internal/core/ports/driven"
)

// Ensure SampleStore implements the interface.
var _ driven.SampleStore = (*SampleStore)(nil)

// SampleStore is an in-memory implementation of driven.SampleStore.
type SampleStore struct {
	mu       sync.RWMutex
	datasets map[string][]domain.Sample
}

// NewSampleStore creates a new in-memory sample store.
func NewSampleStore() *SampleStore {
	return &SampleStore{
		datasets: make(map[string][]domain.Sample),
	}
}

// AddDataset registers samples under a dataset ID, replacing any existing
// dataset with the same ID.
func (s *SampleStore) AddDataset(id string, samples []domain.Sample) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.datasets[id] = samples
}

// LoadSamples returns the samples for a dataset.
func (s *SampleStore) LoadSamples(_ context.Context, datasetID string) ([]domain.Sample, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	samples, ok := s.datasets[datasetID]
	if !ok {
		return nil, domain.ErrDatasetNotFound
	}
	out := make([]domain.Sample, len(samples))
	copy(out, samples)
	return out, nil
}
