package services

import (
	"context"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/corvid-labs/fieldlaw/internal/core/domain"
)

// --- Test helpers ---

// waveFeatureMatrix builds a u/u_x/u_xx matrix on the wave grid with target
// 0.5 u_xx plus optional per-row noise.
func waveFeatureMatrix(t *testing.T, n int, noise func(i int) float64) *domain.FeatureMatrix {
	t.Helper()
	u := make([]float64, n)
	ux := make([]float64, n)
	uxx := make([]float64, n)
	y := make([]float64, n)
	for i := 0; i < n; i++ {
		x := 0.15 * float64(i)
		u[i] = math.Sin(x) + 0.3*math.Cos(2.1*x)
		ux[i] = math.Cos(x) - 0.63*math.Sin(2.1*x)
		uxx[i] = -math.Sin(x) - 1.323*math.Cos(2.1*x)
		y[i] = 0.5 * uxx[i]
		if noise != nil {
			y[i] += noise(i)
		}
	}
	return rankMatrix(t, []string{"u", "u_x", "u_xx"}, [][]float64{u, ux, uxx}, y)
}

// gridNoise is deterministic pseudo-noise, so bootstrap tests stay
// reproducible without seeding a second generator.
func gridNoise(i int) float64 {
	return 0.05 * math.Sin(13.7*float64(i))
}

func uncertaintyConfig() domain.DiscoveryConfig {
	cfg := domain.DefaultConfig()
	cfg.Workers = 4
	cfg.Uncertainty.Resamples = 50
	cfg.Sparse.Threshold = 0.05
	return cfg
}

// --- Tests ---

func TestUncertaintyService_Estimate_InsufficientSamples(t *testing.T) {
	svc := NewUncertaintyService()
	fm := waveFeatureMatrix(t, 5, nil)
	eq := linearCandidate(fm, map[string]float64{"u_xx": 0.5})

	_, _, err := svc.Estimate(context.Background(), fm, eq, uncertaintyConfig(), 1)

	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrInsufficientData)
	assert.Contains(t, err.Error(), "5 samples")
}

func TestUncertaintyService_Estimate_ExactDataTightIntervals(t *testing.T) {
	svc := NewUncertaintyService()
	fm := waveFeatureMatrix(t, 60, nil)
	eq := linearCandidate(fm, map[string]float64{"u_xx": 0.5})

	report, diags, err := svc.Estimate(context.Background(), fm, eq, uncertaintyConfig(), 7)

	require.NoError(t, err)
	require.NotNil(t, report)
	assert.Empty(t, diags)
	assert.Equal(t, eq.Formula, report.Formula)
	assert.Equal(t, 60, report.Samples)
	assert.Equal(t, 50, report.Resamples)

	require.Len(t, report.Intervals, 1)
	iv := report.Intervals[0]
	assert.Equal(t, "u_xx", iv.Name)
	assert.InDelta(t, 0.5, iv.Lower, 1e-9)
	assert.InDelta(t, 0.5, iv.Median, 1e-9)
	assert.InDelta(t, 0.5, iv.Upper, 1e-9)
	assert.Equal(t, 1.0, iv.Stability)
}

func TestUncertaintyService_Estimate_DeterministicWithSeed(t *testing.T) {
	svc := NewUncertaintyService()
	fm := waveFeatureMatrix(t, 60, gridNoise)
	eq := linearCandidate(fm, map[string]float64{"u_xx": 0.5})
	cfg := uncertaintyConfig()

	first, _, err := svc.Estimate(context.Background(), fm, eq, cfg, 42)
	require.NoError(t, err)
	second, _, err := svc.Estimate(context.Background(), fm, eq, cfg, 42)
	require.NoError(t, err)

	require.Equal(t, first, second)
	// Noisy data gives a genuine spread, so the determinism check is not
	// comparing degenerate point intervals.
	assert.Less(t, first.Intervals[0].Lower, first.Intervals[0].Upper)
}

func TestUncertaintyService_Estimate_StabilityReflectsRetention(t *testing.T) {
	svc := NewUncertaintyService()
	fm := waveFeatureMatrix(t, 60, gridNoise)
	// u_x enters at noise level; STLSQ refits should eliminate it on nearly
	// every resample while keeping u_xx on all of them.
	y := fm.TargetValues()
	for i := range y {
		y[i] += 0.001 * fm.Data.At(i, 1)
		fm.Target.SetVec(i, y[i])
	}
	eq := linearCandidate(fm, map[string]float64{"u_x": 0.001, "u_xx": 0.5})

	report, _, err := svc.Estimate(context.Background(), fm, eq, uncertaintyConfig(), 11)

	require.NoError(t, err)
	require.NotNil(t, report)
	require.Len(t, report.Intervals, 2)
	assert.Equal(t, "u_x", report.Intervals[0].Name)
	assert.Equal(t, "u_xx", report.Intervals[1].Name)
	assert.Less(t, report.Intervals[0].Stability, 0.5)
	assert.Greater(t, report.Intervals[1].Stability, 0.9)
}

func TestUncertaintyService_Estimate_NonSparseCandidate(t *testing.T) {
	svc := NewUncertaintyService()
	fm := waveFeatureMatrix(t, 60, nil)
	cand := symbolicCandidate("u_t = sin(u)", 1, nil)

	_, _, err := svc.Estimate(context.Background(), fm, cand, uncertaintyConfig(), 1)

	require.Error(t, err)
	assert.Contains(t, err.Error(), "not a linear fit")
}

func TestUncertaintyService_Estimate_NoSurvivingTerms(t *testing.T) {
	svc := NewUncertaintyService()
	fm := waveFeatureMatrix(t, 60, nil)
	zero := domain.NewLinearCandidate("u_t", nil)

	report, diags, err := svc.Estimate(context.Background(), fm, zero, uncertaintyConfig(), 1)

	require.NoError(t, err)
	assert.Nil(t, report)
	require.Len(t, diags, 1)
	assert.Contains(t, diags[0].Message, "no surviving terms")
}

func TestUncertaintyService_Estimate_CancelledBeforeStart(t *testing.T) {
	svc := NewUncertaintyService()
	fm := waveFeatureMatrix(t, 60, nil)
	eq := linearCandidate(fm, map[string]float64{"u_xx": 0.5})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	report, diags, err := svc.Estimate(ctx, fm, eq, uncertaintyConfig(), 1)

	require.NoError(t, err)
	assert.Nil(t, report)
	require.Len(t, diags, 2)
	assert.Contains(t, diags[0].Message, "bootstrap cancelled after 0 of 50")
	assert.Contains(t, diags[1].Message, "no resample produced a usable refit")
}

func TestUncertaintyService_Estimate_ResolvesTermsByName(t *testing.T) {
	svc := NewUncertaintyService()
	fm := waveFeatureMatrix(t, 60, nil)
	// A stale index must fall back to name lookup.
	eq := domain.NewLinearCandidate("u_t", []domain.WeightedTerm{
		{Term: fm.Terms[2], Index: 0, Coefficient: 0.5},
	})

	report, _, err := svc.Estimate(context.Background(), fm, eq, uncertaintyConfig(), 3)

	require.NoError(t, err)
	require.NotNil(t, report)
	require.Len(t, report.Intervals, 1)
	assert.Equal(t, "u_xx", report.Intervals[0].Name)
	assert.InDelta(t, 0.5, report.Intervals[0].Median, 1e-9)
}

func TestUncertaintyService_Estimate_UnknownTerm(t *testing.T) {
	svc := NewUncertaintyService()
	fm := waveFeatureMatrix(t, 60, nil)
	eq := domain.NewLinearCandidate("u_t", []domain.WeightedTerm{
		{Term: domain.DerivativeTerm("u_zz"), Index: 5, Coefficient: 1},
	})

	_, _, err := svc.Estimate(context.Background(), fm, eq, uncertaintyConfig(), 1)

	require.Error(t, err)
	assert.Contains(t, err.Error(), `term "u_zz" not present`)
}
