package services

import (
	"context"
	"fmt"
	"math"
	"time"

	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat"

	"github.com/corvid-labs/fieldlaw/internal/core/domain"
	"github.com/corvid-labs/fieldlaw/internal/logger"
)

// LibraryService turns samples into a design matrix of candidate terms.
type LibraryService struct{}

// NewLibraryService creates a new library service.
func NewLibraryService() *LibraryService {
	return &LibraryService{}
}

// Build generates the term catalog described by the config, evaluates every
// term at every sample, and prunes columns that would destabilize the fit.
// Dropped columns are reported as diagnostics; an empty matrix is
// ErrEmptyLibrary because no later step can run without one.
func (l *LibraryService) Build(
	_ context.Context, samples []domain.Sample, cfg domain.DiscoveryConfig,
) (*domain.FeatureMatrix, []domain.Diagnostic, error) {
	defer logger.Timing("library", time.Now())
	if len(samples) == 0 {
		return nil, nil, fmt.Errorf("%w: no samples provided", domain.ErrEvaluation)
	}

	// 1. Generate the term catalog
	terms, err := generateTerms(samples, cfg)
	if err != nil {
		return nil, nil, err
	}
	if len(terms) == 0 {
		return nil, nil, fmt.Errorf("%w: configuration generated no candidate terms", domain.ErrEmptyLibrary)
	}
	logger.Debug("Library: %d candidate terms generated", len(terms))

	// 2. Evaluate the target vector
	n := len(samples)
	y := make([]float64, n)
	for i, s := range samples {
		v, ok := s.Derivative(cfg.TargetName)
		if !ok {
			return nil, nil, fmt.Errorf("%w: sample %d carries no target derivative %q",
				domain.ErrEvaluation, i, cfg.TargetName)
		}
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return nil, nil, fmt.Errorf("%w: non-finite target value at sample %d",
				domain.ErrEvaluation, i)
		}
		y[i] = v
	}

	// 3. Evaluate term columns, dropping any with non-finite values
	var diags []domain.Diagnostic
	kept := make([]domain.LibraryTerm, 0, len(terms))
	cols := make([][]float64, 0, len(terms))
	for _, term := range terms {
		col := make([]float64, n)
		finite := true
		for i, s := range samples {
			v := term.Evaluate(s)
			if math.IsNaN(v) || math.IsInf(v, 0) {
				finite = false
				break
			}
			col[i] = v
		}
		if !finite {
			diags = append(diags, domain.Diagnostic{
				Stage:   "library",
				Message: fmt.Sprintf("dropped term %q: evaluates to non-finite values", term.Name),
			})
			continue
		}
		kept = append(kept, term)
		cols = append(cols, col)
	}
	if len(kept) == 0 {
		return nil, diags, fmt.Errorf("%w: every candidate term evaluated to non-finite values",
			domain.ErrEmptyLibrary)
	}

	// 4. Prune collinear and duplicate-constant columns
	kept, cols, pruneDiags := pruneCollinear(kept, cols, cfg.Library.CollinearityTolerance)
	diags = append(diags, pruneDiags...)
	if len(kept) == 0 {
		return nil, diags, fmt.Errorf("%w: collinearity pruning removed every column",
			domain.ErrEmptyLibrary)
	}

	// 5. Assemble the matrix
	data := mat.NewDense(n, len(kept), nil)
	for j, col := range cols {
		for i, v := range col {
			data.Set(i, j, v)
		}
	}
	target := mat.NewVecDense(n, y)

	logger.Debug("Library: kept %d of %d columns (%d samples)", len(kept), len(terms), n)
	return &domain.FeatureMatrix{
		Data:       data,
		Target:     target,
		Terms:      kept,
		TargetName: cfg.TargetName,
	}, diags, nil
}

// generateTerms expands the library config into concrete terms, in a fixed
// order: linear, powers, cross products, constant, custom. Generated names
// that collide are skipped silently; a colliding custom name is a
// configuration error because the caller asked for something ambiguous.
func generateTerms(samples []domain.Sample, cfg domain.DiscoveryConfig) ([]domain.LibraryTerm, error) {
	lib := cfg.Library
	field := domain.FieldTerm(cfg.FieldName)

	var base []domain.LibraryTerm
	if lib.Linear {
		base = append(base, field)
		for _, name := range domain.DerivativeNames(samples) {
			if name == cfg.TargetName {
				continue
			}
			base = append(base, domain.DerivativeTerm(name))
		}
	}

	seen := make(map[string]bool)
	var terms []domain.LibraryTerm
	add := func(t domain.LibraryTerm) {
		if seen[t.Name] {
			return
		}
		seen[t.Name] = true
		terms = append(terms, t)
	}

	for _, t := range base {
		add(t)
	}
	for d := 2; d <= lib.PolynomialDegree; d++ {
		add(domain.PowerTerm(field, d))
	}
	if lib.CrossTerms {
		for i := 0; i < len(base); i++ {
			for j := i + 1; j < len(base); j++ {
				add(domain.ProductTerm(base[i], base[j]))
			}
		}
	}
	if lib.IncludeConstant {
		add(domain.ConstantTerm())
	}
	for _, c := range lib.CustomTerms {
		if seen[c.Name] {
			return nil, fmt.Errorf("%w: duplicate term name %q", domain.ErrConfiguration, c.Name)
		}
		seen[c.Name] = true
		terms = append(terms, domain.NewCustomTerm(c.Name, c.Fn))
	}
	return terms, nil
}

// pruneCollinear drops columns whose absolute Pearson correlation with an
// earlier kept column reaches the tolerance, and constant columns beyond the
// first. The earlier column always wins so pruning is order-stable.
func pruneCollinear(
	terms []domain.LibraryTerm, cols [][]float64, tolerance float64,
) ([]domain.LibraryTerm, [][]float64, []domain.Diagnostic) {
	var diags []domain.Diagnostic
	keptTerms := make([]domain.LibraryTerm, 0, len(terms))
	keptCols := make([][]float64, 0, len(cols))
	constantAt := -1

	for j := range terms {
		if stat.Variance(cols[j], nil) == 0 {
			if constantAt >= 0 {
				diags = append(diags, domain.Diagnostic{
					Stage: "library",
					Message: fmt.Sprintf("dropped term %q: constant column duplicates %q",
						terms[j].Name, keptTerms[constantAt].Name),
				})
				continue
			}
			constantAt = len(keptTerms)
			keptTerms = append(keptTerms, terms[j])
			keptCols = append(keptCols, cols[j])
			continue
		}

		collinearWith := -1
		for k := range keptCols {
			if k == constantAt {
				continue
			}
			if math.Abs(stat.Correlation(keptCols[k], cols[j], nil)) >= tolerance {
				collinearWith = k
				break
			}
		}
		if collinearWith >= 0 {
			diags = append(diags, domain.Diagnostic{
				Stage: "library",
				Message: fmt.Sprintf("dropped term %q: collinear with %q (|r| >= %g)",
					terms[j].Name, keptTerms[collinearWith].Name, tolerance),
			})
			continue
		}
		keptTerms = append(keptTerms, terms[j])
		keptCols = append(keptCols, cols[j])
	}
	return keptTerms, keptCols, diags
}
