package services

import (
	"context"
	"errors"
	"fmt"
	"math"
	"math/rand"
	"sort"
	"sync"
	"time"

	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat"

	"github.com/corvid-labs/fieldlaw/internal/core/domain"
	"github.com/corvid-labs/fieldlaw/internal/logger"
	"github.com/corvid-labs/fieldlaw/internal/solvers/lstsq"
	"github.com/corvid-labs/fieldlaw/internal/solvers/sparse"
)

// UncertaintyService estimates per-coefficient confidence intervals and
// term-stability scores by bootstrap resampling.
type UncertaintyService struct{}

// NewUncertaintyService creates a new uncertainty service.
func NewUncertaintyService() *UncertaintyService {
	return &UncertaintyService{}
}

// resampleOutcome carries one bootstrap iteration's results. Outcomes land
// in pre-allocated per-resample slots, so the worker fan-out cannot reorder
// or lose anything.
type resampleOutcome struct {
	coefs    []float64 // OLS refit on the fixed subset; nil when the solve failed
	retained []bool    // STLSQ term retention, aligned with the subset
	stlsqOK  bool
}

// Estimate bootstraps the given sparse candidate: B row resamples with
// replacement, an OLS refit of the fixed term subset per resample for the
// interval distribution, and a full STLSQ refit per resample for stability.
// Resample indices are drawn sequentially from the seed before any parallel
// work starts. Cancellation between resamples keeps what finished; if
// nothing finished, only diagnostics are returned.
func (u *UncertaintyService) Estimate(
	ctx context.Context,
	fm *domain.FeatureMatrix,
	eq domain.CandidateEquation,
	cfg domain.DiscoveryConfig,
	seed int64,
) (*domain.UncertaintyReport, []domain.Diagnostic, error) {
	defer logger.Timing("uncertainty", time.Now())
	n := fm.Rows()
	if n < domain.MinUncertaintySamples {
		return nil, nil, fmt.Errorf("%w: %d samples, need at least %d",
			domain.ErrInsufficientData, n, domain.MinUncertaintySamples)
	}
	if eq.Method != domain.MethodSparse {
		return nil, nil, fmt.Errorf("uncertainty: candidate %q is not a linear fit", eq.Formula)
	}
	if len(eq.Terms) == 0 {
		return nil, []domain.Diagnostic{{
			Stage:   "uncertainty",
			Message: "candidate has no surviving terms to bootstrap",
		}}, nil
	}

	// Resolve the equation's fixed term subset against the matrix.
	subset := make([]int, len(eq.Terms))
	for i, wt := range eq.Terms {
		j := wt.Index
		if j < 0 || j >= fm.Cols() || fm.Terms[j].Name != wt.Term.Name {
			idx, ok := fm.ColumnIndex(wt.Term.Name)
			if !ok {
				return nil, nil, fmt.Errorf("term %q not present in feature matrix", wt.Term.Name)
			}
			j = idx
		}
		subset[i] = j
	}
	xSub := lstsq.SelectColumns(fm.Data, subset)
	y := fm.TargetValues()

	b := cfg.Uncertainty.Resamples
	if b < 1 {
		b = 1
	}

	// Draw every resample's row indices up front from one sequential stream,
	// so worker scheduling cannot influence what gets sampled.
	rng := rand.New(rand.NewSource(seed))
	resamples := make([][]int, b)
	for i := range resamples {
		rows := make([]int, n)
		for j := range rows {
			rows[j] = rng.Intn(n)
		}
		resamples[i] = rows
	}

	outcomes := make([]resampleOutcome, b)
	jobs := make(chan int)
	var wg sync.WaitGroup
	workers := workerCount(cfg.Workers)
	if workers > b {
		workers = b
	}
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := range jobs {
				outcomes[i] = refitOne(fm, xSub, y, resamples[i], subset, cfg.Sparse)
			}
		}()
	}
	enqueued := 0
	for i := 0; i < b; i++ {
		if ctx.Err() != nil {
			break
		}
		jobs <- i
		enqueued++
	}
	close(jobs)
	wg.Wait()

	var diags []domain.Diagnostic
	if enqueued < b {
		diags = append(diags, domain.Diagnostic{
			Stage:   "uncertainty",
			Message: fmt.Sprintf("bootstrap cancelled after %d of %d resamples, intervals use what finished", enqueued, b),
		})
	}

	olsDone, stlsqDone := 0, 0
	for i := 0; i < enqueued; i++ {
		if outcomes[i].coefs != nil {
			olsDone++
		}
		if outcomes[i].stlsqOK {
			stlsqDone++
		}
	}
	if failed := enqueued - olsDone; failed > 0 {
		diags = append(diags, domain.Diagnostic{
			Stage:   "uncertainty",
			Message: fmt.Sprintf("%d of %d resamples failed to refit and were skipped", failed, enqueued),
		})
	}
	if olsDone == 0 {
		diags = append(diags, domain.Diagnostic{
			Stage:   "uncertainty",
			Message: "no resample produced a usable refit, no intervals computed",
		})
		return nil, diags, nil
	}

	intervals := make([]domain.CoefficientInterval, len(eq.Terms))
	for t := range eq.Terms {
		dist := make([]float64, 0, olsDone)
		retainCount := 0
		for i := 0; i < enqueued; i++ {
			if outcomes[i].coefs != nil {
				dist = append(dist, outcomes[i].coefs[t])
			}
			if outcomes[i].stlsqOK && outcomes[i].retained[t] {
				retainCount++
			}
		}
		sort.Float64s(dist)
		stability := 0.0
		if stlsqDone > 0 {
			stability = float64(retainCount) / float64(stlsqDone)
		}
		intervals[t] = domain.CoefficientInterval{
			Name:      eq.Terms[t].Term.Name,
			Lower:     stat.Quantile(0.025, stat.Empirical, dist, nil),
			Median:    stat.Quantile(0.5, stat.Empirical, dist, nil),
			Upper:     stat.Quantile(0.975, stat.Empirical, dist, nil),
			Stability: stability,
		}
	}

	logger.Debug("Uncertainty: %d/%d resamples usable for %q", olsDone, b, eq.Formula)
	return &domain.UncertaintyReport{
		Formula:   eq.Formula,
		Samples:   n,
		Resamples: olsDone,
		Intervals: intervals,
	}, diags, nil
}

// refitOne fits one bootstrap resample. The OLS refit keeps its coefficients
// even under a condition-number warning (the solution is still the
// least-squares one); anything non-finite counts as a failed resample. The
// STLSQ refit counts a degenerate fit as completed-with-nothing-retained.
func refitOne(
	fm *domain.FeatureMatrix,
	xSub *mat.Dense,
	y []float64,
	rows []int,
	subset []int,
	sparseCfg domain.SparseConfig,
) resampleOutcome {
	var out resampleOutcome
	xb := lstsq.SelectRows(xSub, rows)
	yb := lstsq.GatherRows(y, rows)

	coefs, err := lstsq.Solve(xb, yb, 0)
	if coefs != nil && allFinite(coefs) {
		out.coefs = coefs
	} else if err != nil {
		logger.Debug("Uncertainty: resample refit failed: %v", err)
	}

	full := lstsq.SelectRows(fm.Data, rows)
	res, err := sparse.Fit(full, yb, sparseCfg)
	switch {
	case err == nil:
		out.stlsqOK = true
		out.retained = make([]bool, len(subset))
		for t, j := range subset {
			for k, a := range res.Active {
				if a == j && res.Coefficients[k] != 0 {
					out.retained[t] = true
					break
				}
			}
		}
	case errors.Is(err, domain.ErrDegenerateFit):
		out.stlsqOK = true
		out.retained = make([]bool, len(subset))
	default:
		logger.Debug("Uncertainty: resample stability refit failed: %v", err)
	}
	return out
}

func allFinite(v []float64) bool {
	for _, x := range v {
		if math.IsNaN(x) || math.IsInf(x, 0) {
			return false
		}
	}
	return true
}
