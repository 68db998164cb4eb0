package driven

import (
	"context"

	"github.com/corvid-labs/fieldlaw/internal/core/domain"
)

// SampleStore loads sample datasets produced by the ingestion collaborator.
type SampleStore interface {
	// LoadSamples returns the samples for a dataset.
	// Returns domain.ErrDatasetNotFound if the dataset is unknown.
	LoadSamples(ctx context.Context, datasetID string) ([]domain.Sample, error)
}

// ResultStore persists discovery runs for the reporting collaborator.
type ResultStore interface {
	// SaveResult stores or updates a run result under result.RunID.
	SaveResult(ctx context.Context, result *domain.DiscoveryResult) error

	// GetResult retrieves a run result by ID.
	// Returns domain.ErrRunNotFound if the run is unknown.
	GetResult(ctx context.Context, runID string) (*domain.DiscoveryResult, error)

	// ListRuns returns summary rows for all stored runs, newest first.
	ListRuns(ctx context.Context) ([]domain.RunRecord, error)
}
