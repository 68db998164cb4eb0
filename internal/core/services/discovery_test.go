package services

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/corvid-labs/fieldlaw/internal/adapters/driven/provider/analytic"
	"github.com/corvid-labs/fieldlaw/internal/adapters/driven/storage/memory"
	"github.com/corvid-labs/fieldlaw/internal/core/domain"
	"github.com/corvid-labs/fieldlaw/internal/core/ports/driven"
)

// --- Mock implementations for discovery testing ---

// discoveryFailingResultStore implements driven.ResultStore and refuses every
// save.
type discoveryFailingResultStore struct{}

func (s *discoveryFailingResultStore) SaveResult(context.Context, *domain.DiscoveryResult) error {
	return errors.New("disk full")
}

func (s *discoveryFailingResultStore) GetResult(context.Context, string) (*domain.DiscoveryResult, error) {
	return nil, domain.ErrRunNotFound
}

func (s *discoveryFailingResultStore) ListRuns(context.Context) ([]domain.RunRecord, error) {
	return nil, nil
}

// --- Test helpers ---

func discoveryConfig() domain.DiscoveryConfig {
	cfg := domain.DefaultConfig()
	cfg.Seed = 7
	cfg.Workers = 2
	cfg.Uncertainty.Resamples = 40
	return cfg
}

func hasDiagnostic(diags []domain.Diagnostic, stage, substr string) bool {
	for _, d := range diags {
		if d.Stage == stage && strings.Contains(d.Message, substr) {
			return true
		}
	}
	return false
}

// --- Tests ---

func TestNewDiscoveryService(t *testing.T) {
	svc := NewDiscoveryService(NewSolverRegistry(), memory.NewSampleStore(), memory.NewResultStore())

	require.NotNil(t, svc)
	assert.NotNil(t, svc.library)
	assert.NotNil(t, svc.ranking)
	assert.NotNil(t, svc.uncertainty)
	assert.NotNil(t, svc.factory)
}

func TestDiscoveryService_Run_RecoversDiffusionLaw(t *testing.T) {
	svc := NewDiscoveryService(NewSolverRegistry(), nil, nil)

	result, err := svc.Run(context.Background(), waveSamples(60), discoveryConfig())

	require.NoError(t, err)
	assert.Equal(t, domain.StateDone, result.State)
	assert.Empty(t, result.AbortReason)
	assert.Empty(t, result.Diagnostics)
	assert.Empty(t, result.RunID)
	assert.Greater(t, result.Elapsed, time.Duration(0))

	require.NotNil(t, result.Ranked)
	best := result.Ranked.Best()
	require.NotNil(t, best)
	assert.Equal(t, domain.MethodSparse, best.Method)
	assert.Equal(t, "u_t = 0.1 u_xx", best.Formula)
	assert.Equal(t, 1, best.Metrics.Terms)

	require.NotNil(t, result.Uncertainty)
	assert.Equal(t, 60, result.Uncertainty.Samples)
	require.Len(t, result.Uncertainty.Intervals, 1)
	iv := result.Uncertainty.Intervals[0]
	assert.Equal(t, "u_xx", iv.Name)
	assert.InDelta(t, 0.1, iv.Median, 1e-9)
	assert.Equal(t, 1.0, iv.Stability)
}

func TestDiscoveryService_Run_DeterministicAcrossRuns(t *testing.T) {
	samples := waveSamples(60)
	for i := range samples {
		samples[i].Derivatives["u_t"] += gridNoise(i)
	}
	cfg := discoveryConfig()

	first, err := NewDiscoveryService(NewSolverRegistry(), nil, nil).Run(context.Background(), samples, cfg)
	require.NoError(t, err)
	second, err := NewDiscoveryService(NewSolverRegistry(), nil, nil).Run(context.Background(), samples, cfg)
	require.NoError(t, err)

	assert.Equal(t, first.Ranked, second.Ranked)
	assert.Equal(t, first.Uncertainty, second.Uncertainty)
	assert.Equal(t, first.State, second.State)
}

func TestDiscoveryService_Run_InvalidConfig(t *testing.T) {
	svc := NewDiscoveryService(NewSolverRegistry(), nil, nil)
	cfg := discoveryConfig()
	cfg.Sparse.Threshold = -1

	result, err := svc.Run(context.Background(), waveSamples(20), cfg)

	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrConfiguration)
	assert.Equal(t, domain.StateAborted, result.State)
	assert.NotEmpty(t, result.AbortReason)
	assert.Nil(t, result.Ranked)
}

func TestDiscoveryService_Run_EmptyLibraryAborts(t *testing.T) {
	svc := NewDiscoveryService(NewSolverRegistry(), nil, nil)
	cfg := discoveryConfig()
	cfg.Library = domain.LibraryConfig{CollinearityTolerance: 0.9999}

	result, err := svc.Run(context.Background(), waveSamples(20), cfg)

	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrEmptyLibrary)
	assert.Equal(t, domain.StateAborted, result.State)
	assert.Contains(t, result.AbortReason, "build library")
}

func TestDiscoveryService_Run_InsufficientSamplesAbortsAfterRanking(t *testing.T) {
	svc := NewDiscoveryService(NewSolverRegistry(), nil, nil)
	cfg := discoveryConfig()
	cfg.Library.CrossTerms = false
	cfg.Library.PolynomialDegree = 0

	result, err := svc.Run(context.Background(), waveSamples(8), cfg)

	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrInsufficientData)
	assert.Equal(t, domain.StateAborted, result.State)
	assert.Contains(t, result.AbortReason, "insufficient data")
	assert.Nil(t, result.Uncertainty)

	// The ranked stage completed before the abort and must be preserved.
	require.NotNil(t, result.Ranked)
	best := result.Ranked.Best()
	require.NotNil(t, best)
	assert.Equal(t, "u_t = 0.1 u_xx", best.Formula)
}

func TestDiscoveryService_Run_SymbolicSolverFailureDegrades(t *testing.T) {
	registry := NewSolverRegistry()
	registry.Register(domain.MethodSymbolic, func(domain.DiscoveryConfig, int64) (driven.EquationSolver, error) {
		return nil, errors.New("binary not installed")
	})
	svc := NewDiscoveryService(registry, nil, nil)
	cfg := discoveryConfig()
	cfg.Symbolic.Enabled = true

	result, err := svc.Run(context.Background(), waveSamples(60), cfg)

	require.NoError(t, err)
	assert.Equal(t, domain.StateDone, result.State)
	assert.True(t, hasDiagnostic(result.Diagnostics, "symbolic", "solver unavailable"))
	require.NotNil(t, result.Ranked)
	assert.NotNil(t, result.Ranked.BestSparse())
}

func TestDiscoveryService_Run_SymbolicEnabledCompletes(t *testing.T) {
	svc := NewDiscoveryService(NewSolverRegistry(), nil, nil)
	cfg := discoveryConfig()
	cfg.Symbolic.Enabled = true
	cfg.Symbolic.PopulationSize = 24
	cfg.Symbolic.Generations = 6
	cfg.Symbolic.PlateauGenerations = 3
	cfg.Symbolic.MaxComplexity = 9
	cfg.Symbolic.TopK = 2
	cfg.Symbolic.UnaryOps = []string{"sin"}
	cfg.Symbolic.Budget = 0

	result, err := svc.Run(context.Background(), waveSamples(60), cfg)

	require.NoError(t, err)
	assert.Equal(t, domain.StateDone, result.State)
	require.NotNil(t, result.Ranked)
	assert.NotNil(t, result.Ranked.BestSparse())
	require.NotNil(t, result.Uncertainty)
}

func TestDiscoveryService_RunDataset_PersistsResult(t *testing.T) {
	sampleStore := memory.NewSampleStore()
	resultStore := memory.NewResultStore()
	sampleStore.AddDataset("wave", waveSamples(60))
	svc := NewDiscoveryService(NewSolverRegistry(), sampleStore, resultStore)

	result, err := svc.RunDataset(context.Background(), "wave", discoveryConfig())

	require.NoError(t, err)
	assert.NotEmpty(t, result.RunID)

	stored, err := resultStore.GetResult(context.Background(), result.RunID)
	require.NoError(t, err)
	assert.Equal(t, result.State, stored.State)
	assert.Equal(t, result.Ranked.Best().Formula, stored.Ranked.Best().Formula)

	records, err := resultStore.ListRuns(context.Background())
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, "u_t = 0.1 u_xx", records[0].BestFormula)
	assert.Equal(t, domain.StateDone, records[0].State)
}

func TestDiscoveryService_RunDataset_PersistsAbortedRuns(t *testing.T) {
	sampleStore := memory.NewSampleStore()
	resultStore := memory.NewResultStore()
	sampleStore.AddDataset("tiny", waveSamples(8))
	svc := NewDiscoveryService(NewSolverRegistry(), sampleStore, resultStore)
	cfg := discoveryConfig()
	cfg.Library.CrossTerms = false
	cfg.Library.PolynomialDegree = 0

	result, err := svc.RunDataset(context.Background(), "tiny", cfg)

	require.Error(t, err)
	require.NotNil(t, result)
	require.NotEmpty(t, result.RunID)

	stored, getErr := resultStore.GetResult(context.Background(), result.RunID)
	require.NoError(t, getErr)
	assert.Equal(t, domain.StateAborted, stored.State)
}

func TestDiscoveryService_RunDataset_UnknownDataset(t *testing.T) {
	svc := NewDiscoveryService(NewSolverRegistry(), memory.NewSampleStore(), memory.NewResultStore())

	_, err := svc.RunDataset(context.Background(), "missing", discoveryConfig())

	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrDatasetNotFound)
}

func TestDiscoveryService_RunDataset_NoSampleStore(t *testing.T) {
	svc := NewDiscoveryService(NewSolverRegistry(), nil, nil)

	_, err := svc.RunDataset(context.Background(), "wave", discoveryConfig())

	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrConfiguration)
}

func TestDiscoveryService_RunDataset_SaveFailureIsDiagnostic(t *testing.T) {
	sampleStore := memory.NewSampleStore()
	sampleStore.AddDataset("wave", waveSamples(60))
	svc := NewDiscoveryService(NewSolverRegistry(), sampleStore, &discoveryFailingResultStore{})

	result, err := svc.RunDataset(context.Background(), "wave", discoveryConfig())

	require.NoError(t, err)
	assert.Equal(t, domain.StateDone, result.State)
	assert.True(t, hasDiagnostic(result.Diagnostics, "persist", "failed to save result"))
}

func TestDiscoveryService_Run_RecoversHeatEquation(t *testing.T) {
	provider := analytic.NewHeat()
	samples, err := provider.Evaluate(context.Background(), provider.Grid(24, 16), []string{"u_x", "u_xx", "u_t"})
	require.NoError(t, err)

	cfg := discoveryConfig()
	cfg.Uncertainty.Enabled = false

	result, err := NewDiscoveryService(NewSolverRegistry(), nil, nil).Run(context.Background(), samples, cfg)

	require.NoError(t, err)
	assert.Equal(t, domain.StateDone, result.State)

	best := result.Ranked.BestSparse()
	require.NotNil(t, best)
	assert.Equal(t, "u_t = 0.01 u_xx", best.Formula)
	require.Len(t, best.Terms, 1)
	assert.Equal(t, "u_xx", best.Terms[0].Term.Name)
	assert.InDelta(t, 0.01, best.Terms[0].Coefficient, 1e-9)
	assert.Greater(t, best.Metrics.R2, 0.95)
}

func TestDiscoveryService_Run_EnlargedLibraryKeepsBestBIC(t *testing.T) {
	provider := analytic.NewHeat()
	samples, err := provider.Evaluate(context.Background(), provider.Grid(24, 16), []string{"u_x", "u_xx", "u_t"})
	require.NoError(t, err)

	small := discoveryConfig()
	small.Uncertainty.Enabled = false
	small.Library.PolynomialDegree = 0
	small.Library.CrossTerms = false

	large := discoveryConfig()
	large.Uncertainty.Enabled = false
	large.Library.PolynomialDegree = 3
	large.Library.CrossTerms = true

	smallResult, err := NewDiscoveryService(NewSolverRegistry(), nil, nil).Run(context.Background(), samples, small)
	require.NoError(t, err)
	largeResult, err := NewDiscoveryService(NewSolverRegistry(), nil, nil).Run(context.Background(), samples, large)
	require.NoError(t, err)

	smallBest := smallResult.Ranked.Best()
	largeBest := largeResult.Ranked.Best()
	require.NotNil(t, smallBest)
	require.NotNil(t, largeBest)

	// Junk terms only add candidates; selection still lands on the same
	// model, so the best BIC cannot get worse.
	assert.Equal(t, smallBest.Formula, largeBest.Formula)
	assert.LessOrEqual(t, float64(largeBest.Metrics.BIC), float64(smallBest.Metrics.BIC)+1e-9)
}

func TestDiscoveryService_Run_RecoversBurgersEquation(t *testing.T) {
	provider := analytic.NewBurgers()
	samples, err := provider.Evaluate(context.Background(), provider.Grid(32, 16), []string{"u_x", "u_xx", "u_t"})
	require.NoError(t, err)

	cfg := discoveryConfig()
	cfg.Uncertainty.Enabled = false

	result, err := NewDiscoveryService(NewSolverRegistry(), nil, nil).Run(context.Background(), samples, cfg)

	require.NoError(t, err)
	assert.Equal(t, domain.StateDone, result.State)

	best := result.Ranked.BestSparse()
	require.NotNil(t, best)
	assert.Equal(t, "u_t = 0.01 u_xx - 1 u*u_x", best.Formula)
	require.Len(t, best.Terms, 2)
	assert.Equal(t, "u_xx", best.Terms[0].Term.Name)
	assert.InDelta(t, 0.01, best.Terms[0].Coefficient, 1e-9)
	assert.Equal(t, "u*u_x", best.Terms[1].Term.Name)
	assert.InDelta(t, -1.0, best.Terms[1].Coefficient, 1e-8)
}
