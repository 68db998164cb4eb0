package services

import (
	"fmt"
	"math"
	"sort"
	"strings"

	"gonum.org/v1/gonum/stat"

	"github.com/corvid-labs/fieldlaw/internal/core/domain"
	"github.com/corvid-labs/fieldlaw/internal/logger"
)

// RankingService scores candidate equations on the fitting data and orders
// them into a deterministic ranking.
type RankingService struct{}

// NewRankingService creates a new ranking service.
func NewRankingService() *RankingService {
	return &RankingService{}
}

// Rank computes RMSE, R², AIC and BIC for every candidate, deduplicates
// candidates that reduce to the same model, and sorts by BIC ascending with
// fewer terms, lower RMSE, and formula text as tie-breaks. Candidates whose
// predictions fail or come back non-finite are dropped with a diagnostic.
func (r *RankingService) Rank(
	fm *domain.FeatureMatrix, candidates []domain.CandidateEquation,
) (*domain.RankedResult, []domain.Diagnostic, error) {
	n := fm.Rows()
	if n == 0 {
		return nil, nil, fmt.Errorf("%w: empty feature matrix", domain.ErrEvaluation)
	}
	y := fm.TargetValues()

	var diags []domain.Diagnostic
	scored := make([]domain.CandidateEquation, 0, len(candidates))
	for _, cand := range candidates {
		pred, err := cand.Predict(fm)
		if err != nil {
			diags = append(diags, domain.Diagnostic{
				Stage:   "ranking",
				Message: fmt.Sprintf("dropped candidate %q: %v", cand.Formula, err),
			})
			continue
		}
		rss, finite := residualSumOfSquares(pred, y)
		if !finite {
			diags = append(diags, domain.Diagnostic{
				Stage:   "ranking",
				Message: fmt.Sprintf("dropped candidate %q: non-finite predictions", cand.Formula),
			})
			continue
		}
		cand.Metrics = computeMetrics(rss, y, nonzeroTermCount(cand))
		scored = append(scored, cand)
	}

	// Dedupe candidates sharing a term set (or formula, for symbolic fits),
	// keeping the lower RMSE.
	index := make(map[string]int)
	unique := make([]domain.CandidateEquation, 0, len(scored))
	for _, cand := range scored {
		key := dedupeKey(cand)
		if at, ok := index[key]; ok {
			if cand.Metrics.RMSE < unique[at].Metrics.RMSE {
				unique[at] = cand
			}
			logger.Debug("Ranking: deduplicated candidate %q", cand.Formula)
			continue
		}
		index[key] = len(unique)
		unique = append(unique, cand)
	}

	sort.SliceStable(unique, func(i, j int) bool {
		a, b := unique[i].Metrics, unique[j].Metrics
		if a.BIC != b.BIC {
			return a.BIC < b.BIC
		}
		if a.Terms != b.Terms {
			return a.Terms < b.Terms
		}
		if a.RMSE != b.RMSE {
			return a.RMSE < b.RMSE
		}
		return unique[i].Formula < unique[j].Formula
	})

	logger.Debug("Ranking: %d of %d candidates ranked", len(unique), len(candidates))
	return &domain.RankedResult{TargetName: fm.TargetName, Equations: unique}, diags, nil
}

func residualSumOfSquares(pred, y []float64) (float64, bool) {
	var rss float64
	for i := range y {
		if math.IsNaN(pred[i]) || math.IsInf(pred[i], 0) {
			return 0, false
		}
		d := pred[i] - y[i]
		rss += d * d
	}
	return rss, true
}

// nonzeroTermCount is the k of the information criteria, before the +1 for
// the noise-variance parameter. Sparse candidates count surviving terms;
// symbolic candidates count the distinct library terms their expression
// references, recorded by the solver at construction.
func nonzeroTermCount(c domain.CandidateEquation) int {
	if c.Method == domain.MethodSparse {
		return len(c.Terms)
	}
	return c.Metrics.Terms
}

// computeMetrics derives the fit metrics under a homoscedastic Gaussian
// likelihood with variance RSS/n. A zero-residual fit gives -Inf for both
// criteria, ranking perfect fits first.
func computeMetrics(rss float64, y []float64, terms int) domain.Metrics {
	n := float64(len(y))
	rmse := math.Sqrt(rss / n)

	mean := stat.Mean(y, nil)
	var tss float64
	for _, v := range y {
		d := v - mean
		tss += d * d
	}
	var r2 float64
	switch {
	case tss > 0:
		r2 = 1 - rss/tss
	case rss == 0:
		r2 = 1
	default:
		r2 = 0
	}

	k := float64(terms + 1)
	aic := math.Inf(-1)
	bic := math.Inf(-1)
	if rss > 0 {
		sigma2 := rss / n
		logL := -0.5 * n * (math.Log(2*math.Pi*sigma2) + 1)
		aic = 2*k - 2*logL
		bic = k*math.Log(n) - 2*logL
	}

	return domain.Metrics{
		RMSE:  rmse,
		R2:    r2,
		AIC:   domain.Criterion(aic),
		BIC:   domain.Criterion(bic),
		Terms: terms,
	}
}

// dedupeKey collapses candidates that are the same model: sparse fits by
// their sorted surviving term names, symbolic fits by rendered formula.
func dedupeKey(c domain.CandidateEquation) string {
	if c.Method != domain.MethodSparse {
		return "formula:" + c.Formula
	}
	names := make([]string, len(c.Terms))
	for i, wt := range c.Terms {
		names[i] = wt.Term.Name
	}
	sort.Strings(names)
	return "terms:" + strings.Join(names, ",")
}
