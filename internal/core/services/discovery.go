package services

import (
	"context"
	"fmt"
	"math/rand"
	"runtime"
	"time"

	"github.com/google/uuid"

	"github.com/corvid-labs/fieldlaw/internal/core/domain"
	"github.com/corvid-labs/fieldlaw/internal/core/ports/driven"
	"github.com/corvid-labs/fieldlaw/internal/core/ports/driving"
	"github.com/corvid-labs/fieldlaw/internal/logger"
)

// Ensure DiscoveryService implements the interface.
var _ driving.Discovery = (*DiscoveryService)(nil)

// DiscoveryService sequences one discovery run through its state machine:
// library build, sparse fit, optional symbolic search, ranking, and optional
// bootstrap uncertainty. Failed optional steps degrade to diagnostics; failed
// required steps abort the run with the completed stages preserved.
type DiscoveryService struct {
	library     *LibraryService
	ranking     *RankingService
	uncertainty *UncertaintyService
	factory     driven.SolverFactory
	samples     driven.SampleStore
	results     driven.ResultStore
}

// NewDiscoveryService creates a discovery orchestrator. The sample and result
// stores may be nil, in which case only Run is usable.
func NewDiscoveryService(
	factory driven.SolverFactory,
	samples driven.SampleStore,
	results driven.ResultStore,
) *DiscoveryService {
	return &DiscoveryService{
		library:     NewLibraryService(),
		ranking:     NewRankingService(),
		uncertainty: NewUncertaintyService(),
		factory:     factory,
		samples:     samples,
		results:     results,
	}
}

// Run executes one discovery over the given samples. The returned result
// always carries the stages that completed and the diagnostics trail, even
// when the run aborted.
func (d *DiscoveryService) Run(
	ctx context.Context, samples []domain.Sample, cfg domain.DiscoveryConfig,
) (*domain.DiscoveryResult, error) {
	start := time.Now()
	result := &domain.DiscoveryResult{
		TargetName: cfg.TargetName,
		State:      domain.StateInitialized,
	}

	if err := cfg.Validate(); err != nil {
		return d.abort(result, start, fmt.Errorf("validate config: %w", err))
	}
	if d.factory == nil {
		return d.abort(result, start, fmt.Errorf("%w: no solver factory configured", domain.ErrConfiguration))
	}

	// Step seeds are drawn from one master stream in a fixed order, so a run
	// stays reproducible even when optional steps are toggled.
	master := rand.New(rand.NewSource(cfg.Seed))
	sparseSeed := master.Int63()
	symbolicSeed := master.Int63()
	bootstrapSeed := master.Int63()

	// 1. Build the feature library
	logger.Section("Feature Library")
	fm, libDiags, err := d.library.Build(ctx, samples, cfg)
	result.Diagnostics = append(result.Diagnostics, libDiags...)
	if err != nil {
		return d.abort(result, start, fmt.Errorf("build library: %w", err))
	}
	d.advance(result, domain.StateLibraryBuilt)
	logger.Info("Library ready: %d terms x %d samples for target %s",
		len(fm.Terms), fm.Rows(), fm.TargetName)

	// 2. Sparse regression
	logger.Section("Sparse Regression")
	sparseSolver, err := d.factory.Create(domain.MethodSparse, cfg, sparseSeed)
	if err != nil {
		return d.abort(result, start, fmt.Errorf("create sparse solver: %w", err))
	}
	candidates, sparseDiags, err := sparseSolver.Solve(ctx, fm)
	result.Diagnostics = append(result.Diagnostics, sparseDiags...)
	if err != nil {
		return d.abort(result, start, fmt.Errorf("sparse fit: %w", err))
	}
	d.advance(result, domain.StateSparseFitted)
	logger.Info("Sparse fit produced %d candidate(s)", len(candidates))

	// 3. Symbolic search (optional; failures degrade to sparse-only)
	if cfg.Symbolic.Enabled {
		logger.Section("Symbolic Search")
		symCandidates, ok := d.runSymbolic(ctx, fm, cfg, symbolicSeed, result)
		if ok {
			candidates = append(candidates, symCandidates...)
			d.advance(result, domain.StateSymbolicFitted)
		}
	}

	// 4. Rank candidates
	logger.Section("Ranking")
	ranked, rankDiags, err := d.ranking.Rank(fm, candidates)
	result.Diagnostics = append(result.Diagnostics, rankDiags...)
	if err != nil {
		return d.abort(result, start, fmt.Errorf("rank candidates: %w", err))
	}
	result.Ranked = ranked
	d.advance(result, domain.StateRanked)
	if best := ranked.Best(); best != nil {
		logger.Info("Best candidate: %s (BIC %.4g)", best.Formula, float64(best.Metrics.BIC))
	}

	// 5. Bootstrap uncertainty (optional)
	if cfg.Uncertainty.Enabled {
		logger.Section("Uncertainty")
		target := ranked.BestSparse()
		if target == nil {
			result.Diagnostics = append(result.Diagnostics, domain.Diagnostic{
				Stage:   "uncertainty",
				Message: "no sparse candidate to bootstrap, skipping uncertainty",
			})
		} else {
			report, uncDiags, err := d.uncertainty.Estimate(ctx, fm, *target, cfg, bootstrapSeed)
			result.Diagnostics = append(result.Diagnostics, uncDiags...)
			if err != nil {
				return d.abort(result, start, fmt.Errorf("estimate uncertainty: %w", err))
			}
			if report != nil {
				result.Uncertainty = report
				d.advance(result, domain.StateUncertaintyComputed)
			}
		}
	}

	// 6. Done
	d.advance(result, domain.StateDone)
	result.Elapsed = time.Since(start)

	total := 0
	if result.Ranked != nil {
		total = len(result.Ranked.Equations)
	}
	logger.Info("Discovery complete: %d candidate(s) ranked in %s",
		total, result.Elapsed.Round(time.Millisecond))
	return result, nil
}

// RunDataset loads a stored dataset, runs discovery on it, and persists the
// result under a fresh run ID. Aborted runs are persisted too, so failures
// stay inspectable.
func (d *DiscoveryService) RunDataset(
	ctx context.Context, datasetID string, cfg domain.DiscoveryConfig,
) (*domain.DiscoveryResult, error) {
	if d.samples == nil {
		return nil, fmt.Errorf("%w: no sample store configured", domain.ErrConfiguration)
	}

	samples, err := d.samples.LoadSamples(ctx, datasetID)
	if err != nil {
		return nil, fmt.Errorf("load dataset %s: %w", datasetID, err)
	}
	logger.Info("Loaded dataset %s: %d samples", datasetID, len(samples))

	result, runErr := d.Run(ctx, samples, cfg)
	if result == nil {
		return nil, runErr
	}
	result.RunID = uuid.New().String()

	if d.results != nil {
		if err := d.results.SaveResult(ctx, result); err != nil {
			logger.Warn("Failed to persist run %s: %v", result.RunID, err)
			result.Diagnostics = append(result.Diagnostics, domain.Diagnostic{
				Stage:   "persist",
				Message: fmt.Sprintf("failed to save result: %v", err),
			})
		}
	}
	return result, runErr
}

// runSymbolic runs the symbolic step and reports whether it completed. Any
// failure is downgraded to a diagnostic; the pipeline continues with the
// sparse candidates it already has.
func (d *DiscoveryService) runSymbolic(
	ctx context.Context,
	fm *domain.FeatureMatrix,
	cfg domain.DiscoveryConfig,
	seed int64,
	result *domain.DiscoveryResult,
) ([]domain.CandidateEquation, bool) {
	solver, err := d.factory.Create(domain.MethodSymbolic, cfg, seed)
	if err != nil {
		logger.Warn("Symbolic solver unavailable: %v", err)
		result.Diagnostics = append(result.Diagnostics, domain.Diagnostic{
			Stage:   "symbolic",
			Message: fmt.Sprintf("solver unavailable: %v, continuing with sparse candidates", err),
		})
		return nil, false
	}

	candidates, diags, err := solver.Solve(ctx, fm)
	result.Diagnostics = append(result.Diagnostics, diags...)
	if err != nil {
		logger.Warn("Symbolic search failed: %v", err)
		result.Diagnostics = append(result.Diagnostics, domain.Diagnostic{
			Stage:   "symbolic",
			Message: fmt.Sprintf("search failed: %v, continuing with sparse candidates", err),
		})
		return nil, false
	}
	logger.Info("Symbolic search produced %d candidate(s)", len(candidates))
	return candidates, true
}

// abort marks the run aborted, preserving whatever stages completed.
func (d *DiscoveryService) abort(
	result *domain.DiscoveryResult, start time.Time, err error,
) (*domain.DiscoveryResult, error) {
	result.State = domain.StateAborted
	result.AbortReason = err.Error()
	result.Elapsed = time.Since(start)
	logger.Warn("Discovery aborted: %v", err)
	return result, err
}

// advance moves the run to the next state, refusing transitions the state
// machine does not allow.
func (d *DiscoveryService) advance(result *domain.DiscoveryResult, to domain.RunState) {
	if !domain.CanTransition(result.State, to) {
		logger.Warn("Refusing state transition %s -> %s", result.State, to)
		return
	}
	result.State = to
}

// workerCount resolves configured parallelism, defaulting to one worker per
// CPU.
func workerCount(configured int) int {
	if configured > 0 {
		return configured
	}
	return runtime.NumCPU()
}
