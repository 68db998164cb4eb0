// Package sparse implements sequential thresholded least squares (STLSQ):
// repeated least-squares fits where coefficients small relative to the
// largest one are driven to exactly zero, yielding a parsimonious linear
// model over the term library.
package sparse

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat"

	"github.com/corvid-labs/fieldlaw/internal/core/domain"
	"github.com/corvid-labs/fieldlaw/internal/core/ports/driven"
	"github.com/corvid-labs/fieldlaw/internal/logger"
	"github.com/corvid-labs/fieldlaw/internal/solvers/lstsq"
)

// fallbackRidge regularizes a singular unregularized solve just enough to
// get finite coefficients.
const fallbackRidge = 1e-8

// boundaryTol is the relative tolerance within which a coefficient counts as
// exactly at the elimination cutoff.
const boundaryTol = 1e-12

// Ensure Solver implements the interface.
var _ driven.EquationSolver = (*Solver)(nil)

// Solver fits one linear candidate per call by STLSQ.
type Solver struct {
	cfg domain.SparseConfig
}

// NewSolver creates an STLSQ solver with the given settings.
func NewSolver(cfg domain.SparseConfig) *Solver {
	return &Solver{cfg: cfg}
}

// Name identifies the solver in diagnostics.
func (s *Solver) Name() string { return string(domain.MethodSparse) }

// Solve runs STLSQ over the full library. A degenerate fit (every term
// eliminated) is recoverable: it yields a zero-term candidate and a
// diagnostic, not an error.
func (s *Solver) Solve(_ context.Context, fm *domain.FeatureMatrix) ([]domain.CandidateEquation, []domain.Diagnostic, error) {
	defer logger.Timing("sparse fit", time.Now())
	logger.Debug("sparse: fitting %d samples x %d terms, threshold=%g", fm.Rows(), fm.Cols(), s.cfg.Threshold)

	res, err := Fit(fm.Data, fm.TargetValues(), s.cfg)
	diags := res.Diagnostics
	if err != nil {
		if !errors.Is(err, domain.ErrDegenerateFit) {
			return nil, diags, fmt.Errorf("sparse solve: %w", err)
		}
		diags = append(diags, domain.Diagnostic{
			Stage:   s.Name(),
			Message: err.Error(),
		})
		eq := domain.NewLinearCandidate(fm.TargetName, nil)
		return []domain.CandidateEquation{eq}, diags, nil
	}

	terms := make([]domain.WeightedTerm, 0, len(res.Active))
	for i, j := range res.Active {
		if res.Coefficients[i] == 0 {
			continue
		}
		terms = append(terms, domain.WeightedTerm{
			Term:        fm.Terms[j],
			Index:       j,
			Coefficient: res.Coefficients[i],
		})
	}
	eq := domain.NewLinearCandidate(fm.TargetName, terms)
	logger.Debug("sparse: %d of %d terms survived: %s", len(terms), fm.Cols(), eq.Formula)
	return []domain.CandidateEquation{eq}, diags, nil
}

// Result is one STLSQ fit: the surviving column indices and their
// coefficients in the original (unscaled) basis.
type Result struct {
	// Active lists surviving column indices, ascending.
	Active []int

	// Coefficients is parallel to Active.
	Coefficients []float64

	// Diagnostics records recoverable numerical trouble.
	Diagnostics []domain.Diagnostic
}

// Fit runs the STLSQ iteration on a raw design matrix. Columns are scaled to
// unit variance before fitting and coefficients are rescaled back, so the
// relative threshold compares terms of different physical units fairly.
// Scaling does not center: a zero threshold therefore reproduces ordinary
// least squares exactly.
//
// Returns an error wrapping domain.ErrDegenerateFit when every term is
// eliminated.
func Fit(x *mat.Dense, y []float64, cfg domain.SparseConfig) (Result, error) {
	rows, cols := x.Dims()
	if rows == 0 || cols == 0 {
		return Result{}, fmt.Errorf("sparse: empty design matrix (%dx%d)", rows, cols)
	}
	if len(y) != rows {
		return Result{}, fmt.Errorf("sparse: %d rows but %d target values", rows, len(y))
	}
	maxIter := cfg.MaxIterations
	if maxIter < 1 {
		maxIter = 1
	}

	scales := lstsq.ColumnScales(x)
	xs := lstsq.ScaleColumns(x, scales)

	var res Result
	active := make([]int, cols)
	for j := range active {
		active[j] = j
	}

	ridgeFallback := false
	solveActive := func(act []int) ([]float64, error) {
		sub := lstsq.SelectColumns(xs, act)
		c, err := lstsq.Solve(sub, y, cfg.Ridge)
		if err != nil {
			if _, ok := err.(mat.Condition); !ok {
				return nil, err
			}
			if cfg.Ridge == 0 {
				c, err = lstsq.Solve(sub, y, fallbackRidge)
				if err != nil {
					if _, ok := err.(mat.Condition); !ok {
						return nil, err
					}
				}
				if !ridgeFallback {
					ridgeFallback = true
					res.Diagnostics = append(res.Diagnostics, domain.Diagnostic{
						Stage:   string(domain.MethodSparse),
						Message: fmt.Sprintf("near-singular active set, refit with ridge %g", fallbackRidge),
					})
				}
			}
		}
		for _, v := range c {
			if math.IsNaN(v) || math.IsInf(v, 0) {
				return nil, fmt.Errorf("%w: non-finite coefficients from least squares", domain.ErrDegenerateFit)
			}
		}
		return c, nil
	}

	var coefs []float64
	stable := false
	for iter := 0; iter < maxIter && !stable; iter++ {
		c, err := solveActive(active)
		if err != nil {
			return res, err
		}
		coefs = c

		if cfg.Threshold == 0 {
			stable = true
			break
		}
		maxAbs := maxAbsolute(c)
		if maxAbs == 0 {
			return res, fmt.Errorf("%w: all coefficients are zero", domain.ErrDegenerateFit)
		}
		drop := selectEliminations(c, xs, active, cfg.Threshold*maxAbs, boundaryTol*maxAbs)
		if len(drop) == 0 {
			stable = true
			break
		}
		if len(drop) == len(active) {
			return res, fmt.Errorf("%w: threshold %g eliminated every term", domain.ErrDegenerateFit, cfg.Threshold)
		}
		active = removeIndices(active, drop)
	}
	if !stable {
		// Iteration budget ran out right after an elimination; the surviving
		// subset still needs its refit.
		c, err := solveActive(active)
		if err != nil {
			return res, err
		}
		coefs = c
	}

	res.Active = active
	res.Coefficients = make([]float64, len(active))
	for i, j := range active {
		res.Coefficients[i] = coefs[i] / scales[j]
	}
	return res, nil
}

// selectEliminations returns positions (into the active slice) to eliminate
// this iteration: every coefficient strictly below the cut, plus, when two or
// more sit exactly at the cut, the one of those most correlated with a
// surviving column. Eliminating only one of a boundary tie keeps the basis
// parsimonious without discarding equally-plausible terms wholesale.
func selectEliminations(c []float64, xs *mat.Dense, active []int, cut, eps float64) []int {
	var below, boundary, surviving []int
	for i, v := range c {
		a := math.Abs(v)
		switch {
		case a < cut-eps:
			below = append(below, i)
		case a <= cut+eps:
			boundary = append(boundary, i)
		default:
			surviving = append(surviving, i)
		}
	}
	if len(boundary) < 2 {
		return below
	}

	// Tie at the cutoff: correlate each tied column against the survivors
	// (or against the other tied columns when nothing clearly survives).
	rows, _ := xs.Dims()
	colOf := func(i int) []float64 {
		col := make([]float64, rows)
		mat.Col(col, active[i], xs)
		return col
	}
	best := boundary[0]
	bestCorr := -1.0
	for _, b := range boundary {
		others := surviving
		if len(others) == 0 {
			for _, o := range boundary {
				if o != b {
					others = append(others, o)
				}
			}
		}
		bc := colOf(b)
		maxCorr := 0.0
		for _, o := range others {
			r := math.Abs(stat.Correlation(bc, colOf(o), nil))
			if !math.IsNaN(r) && r > maxCorr {
				maxCorr = r
			}
		}
		if maxCorr > bestCorr {
			bestCorr = maxCorr
			best = b
		}
	}
	return append(below, best)
}

func maxAbsolute(c []float64) float64 {
	m := 0.0
	for _, v := range c {
		if a := math.Abs(v); a > m {
			m = a
		}
	}
	return m
}

// removeIndices drops the given positions from active, preserving order.
func removeIndices(active []int, drop []int) []int {
	dropSet := make(map[int]struct{}, len(drop))
	for _, d := range drop {
		dropSet[d] = struct{}{}
	}
	out := active[:0]
	for i, j := range active {
		if _, gone := dropSet[i]; !gone {
			out = append(out, j)
		}
	}
	return out
}
