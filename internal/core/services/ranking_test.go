package services

import (
	"errors"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"

	"github.com/corvid-labs/fieldlaw/internal/core/domain"
)

// --- Test helpers ---

// rankMatrix builds a feature matrix directly from named columns, bypassing
// the library builder.
func rankMatrix(t *testing.T, names []string, cols [][]float64, y []float64) *domain.FeatureMatrix {
	t.Helper()
	n := len(y)
	data := mat.NewDense(n, len(cols), nil)
	terms := make([]domain.LibraryTerm, len(cols))
	for j, col := range cols {
		require.Len(t, col, n)
		data.SetCol(j, col)
		terms[j] = domain.DerivativeTerm(names[j])
	}
	return &domain.FeatureMatrix{
		Data:       data,
		Target:     mat.NewVecDense(n, y),
		Terms:      terms,
		TargetName: "u_t",
	}
}

// linearCandidate builds a sparse candidate from term name to coefficient.
func linearCandidate(fm *domain.FeatureMatrix, coefs map[string]float64) domain.CandidateEquation {
	var terms []domain.WeightedTerm
	for j, term := range fm.Terms {
		c, ok := coefs[term.Name]
		if !ok {
			continue
		}
		terms = append(terms, domain.WeightedTerm{Term: term, Index: j, Coefficient: c})
	}
	return domain.NewLinearCandidate(fm.TargetName, terms)
}

// symbolicCandidate builds a symbolic candidate with a fixed predictor.
func symbolicCandidate(formula string, termCount int, pred func(*domain.FeatureMatrix) ([]float64, error)) domain.CandidateEquation {
	return domain.CandidateEquation{
		Method:     domain.MethodSymbolic,
		TargetName: "u_t",
		Formula:    formula,
		Complexity: 3,
		Metrics:    domain.Metrics{Terms: termCount},
		Predictor:  pred,
	}
}

// --- Tests ---

func TestRankingService_Rank_OrdersByBIC(t *testing.T) {
	svc := NewRankingService()
	fm := rankMatrix(t,
		[]string{"a", "b"},
		[][]float64{{1, 2, 3, 4, 5, 6}, {1, 1, 2, 2, 3, 3}},
		[]float64{2, 4, 6, 8, 10, 12},
	)
	exact := linearCandidate(fm, map[string]float64{"a": 2})
	rough := linearCandidate(fm, map[string]float64{"b": 3})

	ranked, diags, err := svc.Rank(fm, []domain.CandidateEquation{rough, exact})

	require.NoError(t, err)
	assert.Empty(t, diags)
	require.Len(t, ranked.Equations, 2)
	assert.Equal(t, "u_t = 2 a", ranked.Equations[0].Formula)
	assert.True(t, math.IsInf(float64(ranked.Equations[0].Metrics.BIC), -1))
	assert.Equal(t, 1.0, ranked.Equations[0].Metrics.R2)
	assert.InDelta(t, math.Sqrt(16.0/6.0), ranked.Equations[1].Metrics.RMSE, 1e-12)
}

func TestRankingService_Rank_TermCountBreaksBICTies(t *testing.T) {
	svc := NewRankingService()
	// Duplicate columns let two candidates of different size both fit exactly,
	// driving both criteria to -Inf.
	fm := rankMatrix(t,
		[]string{"x1", "x2"},
		[][]float64{{1, 2, 3, 4}, {1, 2, 3, 4}},
		[]float64{1, 2, 3, 4},
	)
	one := linearCandidate(fm, map[string]float64{"x1": 1})
	two := linearCandidate(fm, map[string]float64{"x1": 0.5, "x2": 0.5})

	ranked, _, err := svc.Rank(fm, []domain.CandidateEquation{two, one})

	require.NoError(t, err)
	require.Len(t, ranked.Equations, 2)
	assert.Equal(t, "u_t = 1 x1", ranked.Equations[0].Formula)
	assert.Equal(t, 1, ranked.Equations[0].Metrics.Terms)
	assert.Equal(t, 2, ranked.Equations[1].Metrics.Terms)
}

func TestRankingService_Rank_MetricsMatchClosedForm(t *testing.T) {
	svc := NewRankingService()
	// Residuals (0, 0, 1): RSS 1 over n 3 with k = 1 term + 1.
	fm := rankMatrix(t, []string{"x"}, [][]float64{{1, 2, 2}}, []float64{1, 2, 3})
	cand := linearCandidate(fm, map[string]float64{"x": 1})

	ranked, _, err := svc.Rank(fm, []domain.CandidateEquation{cand})

	require.NoError(t, err)
	require.Len(t, ranked.Equations, 1)
	m := ranked.Equations[0].Metrics
	assert.InDelta(t, 0.5773502691896257, m.RMSE, 1e-12)
	assert.InDelta(t, 0.5, m.R2, 1e-12)
	assert.InDelta(t, 9.217794333223708, float64(m.AIC), 1e-9)
	assert.InDelta(t, 7.415018910559928, float64(m.BIC), 1e-9)
	assert.Equal(t, 1, m.Terms)
}

func TestRankingService_Rank_DropsFailedPredictions(t *testing.T) {
	svc := NewRankingService()
	fm := rankMatrix(t, []string{"x"}, [][]float64{{1, 2, 3}}, []float64{1, 2, 3})
	good := linearCandidate(fm, map[string]float64{"x": 1})
	failing := symbolicCandidate("u_t = exp(x)", 1, func(*domain.FeatureMatrix) ([]float64, error) {
		return nil, errors.New("evaluation blew up")
	})
	inf := symbolicCandidate("u_t = 1/x", 1, func(fm *domain.FeatureMatrix) ([]float64, error) {
		return []float64{math.Inf(1), 0, 0}, nil
	})

	ranked, diags, err := svc.Rank(fm, []domain.CandidateEquation{failing, good, inf})

	require.NoError(t, err)
	require.Len(t, ranked.Equations, 1)
	assert.Equal(t, "u_t = 1 x", ranked.Equations[0].Formula)
	require.Len(t, diags, 2)
	for _, d := range diags {
		assert.Equal(t, "ranking", d.Stage)
		assert.Contains(t, d.Message, "dropped candidate")
	}
}

func TestRankingService_Rank_DeduplicatesSameTermSet(t *testing.T) {
	svc := NewRankingService()
	fm := rankMatrix(t, []string{"x"}, [][]float64{{1, 2, 3}}, []float64{1, 2, 3})
	worse := linearCandidate(fm, map[string]float64{"x": 0.9})
	exact := linearCandidate(fm, map[string]float64{"x": 1})

	ranked, _, err := svc.Rank(fm, []domain.CandidateEquation{worse, exact})

	require.NoError(t, err)
	require.Len(t, ranked.Equations, 1)
	assert.Equal(t, "u_t = 1 x", ranked.Equations[0].Formula)
}

func TestRankingService_Rank_SymbolicKeepsRecordedTermCount(t *testing.T) {
	svc := NewRankingService()
	fm := rankMatrix(t, []string{"x"}, [][]float64{{1, 2, 3}}, []float64{1, 2, 3})
	cand := symbolicCandidate("u_t = x + sin(x) - sin(x)", 2, func(fm *domain.FeatureMatrix) ([]float64, error) {
		return fm.Column(0), nil
	})

	ranked, _, err := svc.Rank(fm, []domain.CandidateEquation{cand})

	require.NoError(t, err)
	require.Len(t, ranked.Equations, 1)
	assert.Equal(t, 2, ranked.Equations[0].Metrics.Terms)
	assert.True(t, math.IsInf(float64(ranked.Equations[0].Metrics.BIC), -1))
}

func TestRankingService_Rank_FormulaBreaksFinalTie(t *testing.T) {
	svc := NewRankingService()
	fm := rankMatrix(t, []string{"x"}, [][]float64{{1, 2, 3}}, []float64{1, 2, 3})
	perfect := func(fm *domain.FeatureMatrix) ([]float64, error) {
		return fm.Column(0), nil
	}
	b := symbolicCandidate("u_t = b", 1, perfect)
	a := symbolicCandidate("u_t = a", 1, perfect)

	ranked, _, err := svc.Rank(fm, []domain.CandidateEquation{b, a})

	require.NoError(t, err)
	require.Len(t, ranked.Equations, 2)
	assert.Equal(t, "u_t = a", ranked.Equations[0].Formula)
	assert.Equal(t, "u_t = b", ranked.Equations[1].Formula)
}

func TestRankingService_Rank_ZeroTermCandidate(t *testing.T) {
	svc := NewRankingService()
	fm := rankMatrix(t, []string{"x"}, [][]float64{{1, 2, 3}}, []float64{1, 2, 3})
	zero := domain.NewLinearCandidate("u_t", nil)

	ranked, _, err := svc.Rank(fm, []domain.CandidateEquation{zero})

	require.NoError(t, err)
	require.Len(t, ranked.Equations, 1)
	assert.Equal(t, "u_t = 0", ranked.Equations[0].Formula)
	// RSS 14 against TSS 2: a zero model can be much worse than the mean.
	assert.InDelta(t, -6.0, ranked.Equations[0].Metrics.R2, 1e-12)
	assert.Equal(t, 0, ranked.Equations[0].Metrics.Terms)
}

func TestRankingService_Rank_EmptyMatrix(t *testing.T) {
	svc := NewRankingService()
	fm := &domain.FeatureMatrix{Data: &mat.Dense{}, Target: &mat.VecDense{}, TargetName: "u_t"}

	_, _, err := svc.Rank(fm, nil)

	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrEvaluation)
}
