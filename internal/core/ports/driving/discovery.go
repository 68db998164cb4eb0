package driving

import (
	"context"

	"github.com/corvid-labs/fieldlaw/internal/core/domain"
)

// Discovery runs the equation-discovery pipeline: library build, sparse fit,
// optional symbolic search, ranking, and bootstrap uncertainty.
type Discovery interface {
	// Run executes one discovery over the given samples. The returned
	// result always carries the stages that completed and the diagnostics
	// trail, even when err is non-nil and the run aborted; callers inspect
	// result.State to tell the two apart.
	Run(ctx context.Context, samples []domain.Sample, cfg domain.DiscoveryConfig) (*domain.DiscoveryResult, error)

	// RunDataset loads a stored dataset, runs discovery on it, and persists
	// the result under a fresh run ID.
	RunDataset(ctx context.Context, datasetID string, cfg domain.DiscoveryConfig) (*domain.DiscoveryResult, error)
}
