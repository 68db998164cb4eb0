package domain

import (
	"fmt"
	"time"
)

// MinUncertaintySamples is the smallest sample count for which bootstrap
// confidence intervals are meaningful. Below it the uncertainty step refuses
// with ErrInsufficientData.
const MinUncertaintySamples = 10

// CustomTerm pairs a term name with a pure evaluation function, letting
// callers extend the library beyond the built-in term classes.
type CustomTerm struct {
	Name string
	Fn   func(Sample) float64
}

// LibraryConfig selects which candidate-term classes the builder generates.
type LibraryConfig struct {
	// Linear includes the field and each sampled derivative as terms.
	Linear bool

	// PolynomialDegree is the maximum power of the field to include.
	// Values below 2 generate no power terms.
	PolynomialDegree int

	// CrossTerms includes pairwise products of the linear terms.
	CrossTerms bool

	// IncludeConstant adds an all-ones intercept column.
	IncludeConstant bool

	// CustomTerms are caller-supplied extra terms.
	CustomTerms []CustomTerm

	// CollinearityTolerance is the absolute pairwise correlation at or above
	// which the later of two columns is dropped.
	CollinearityTolerance float64
}

// SparseConfig parameterizes the STLSQ solver.
type SparseConfig struct {
	// Threshold is relative: coefficients below Threshold times the largest
	// absolute coefficient are eliminated. Zero disables elimination, making
	// the fit plain least squares.
	Threshold float64

	// Ridge is the L2 regularization strength. Zero fits ordinary least
	// squares.
	Ridge float64

	// MaxIterations caps the threshold/refit loop.
	MaxIterations int
}

// SymbolicConfig parameterizes the evolutionary expression search.
type SymbolicConfig struct {
	// Enabled turns the slower symbolic step on.
	Enabled bool

	// PopulationSize is the number of programs per generation.
	PopulationSize int

	// Generations caps the search.
	Generations int

	// PlateauGenerations stops the search after this many generations
	// without fitness improvement.
	PlateauGenerations int

	// MaxComplexity caps a program's node count.
	MaxComplexity int

	// Parsimony scales the per-node complexity penalty added to fitness.
	Parsimony float64

	// UnaryOps names the unary functions available to the search.
	// Supported: sin, cos, exp, log, sqrt, neg.
	UnaryOps []string

	// TopK is how many distinct expressions the search returns.
	TopK int

	// Budget bounds wall-clock search time.
	Budget time.Duration
}

// UncertaintyConfig parameterizes bootstrap resampling.
type UncertaintyConfig struct {
	// Enabled turns the uncertainty step on.
	Enabled bool

	// Resamples is the bootstrap resample count B.
	Resamples int
}

// DiscoveryConfig is the immutable configuration for one discovery run. It
// is threaded explicitly through every step; there is no ambient state, so
// identical config, samples, and seed reproduce identical results.
type DiscoveryConfig struct {
	// TargetName is the derivative to explain, e.g. "u_t".
	TargetName string

	// FieldName names the raw field term, e.g. "u".
	FieldName string

	// Seed drives every random choice in the run.
	Seed int64

	// Workers bounds step-internal parallelism. Zero means one worker per
	// CPU.
	Workers int

	Library     LibraryConfig
	Sparse      SparseConfig
	Symbolic    SymbolicConfig
	Uncertainty UncertaintyConfig
}

// DefaultConfig returns the settings a run uses when the caller has no
// opinion: quadratic library with cross terms, 1% relative threshold over
// twenty STLSQ iterations, symbolic search off, two hundred bootstrap
// resamples.
func DefaultConfig() DiscoveryConfig {
	return DiscoveryConfig{
		TargetName: "u_t",
		FieldName:  "u",
		Library: LibraryConfig{
			Linear:                true,
			PolynomialDegree:      2,
			CrossTerms:            true,
			CollinearityTolerance: 0.9999,
		},
		Sparse: SparseConfig{
			Threshold:     0.01,
			MaxIterations: 20,
		},
		Symbolic: SymbolicConfig{
			PopulationSize:     64,
			Generations:        200,
			PlateauGenerations: 15,
			MaxComplexity:      25,
			Parsimony:          1e-3,
			UnaryOps:           []string{"sin", "cos", "exp", "log", "sqrt"},
			TopK:               3,
			Budget:             60 * time.Second,
		},
		Uncertainty: UncertaintyConfig{
			Enabled:   true,
			Resamples: 200,
		},
	}
}

var supportedUnaryOps = map[string]struct{}{
	"sin": {}, "cos": {}, "exp": {}, "log": {}, "sqrt": {}, "neg": {},
}

// Validate rejects contradictory or out-of-range settings. All failures wrap
// ErrConfiguration and are surfaced before any step runs.
func (c DiscoveryConfig) Validate() error {
	if c.TargetName == "" {
		return fmt.Errorf("%w: target name is empty", ErrConfiguration)
	}
	if c.FieldName == "" {
		return fmt.Errorf("%w: field name is empty", ErrConfiguration)
	}
	if c.FieldName == c.TargetName {
		return fmt.Errorf("%w: field %q cannot be its own target", ErrConfiguration, c.FieldName)
	}
	if c.Workers < 0 {
		return fmt.Errorf("%w: workers must be >= 0 (got %d)", ErrConfiguration, c.Workers)
	}
	if c.Library.PolynomialDegree < 0 {
		return fmt.Errorf("%w: polynomial degree must be >= 0 (got %d)", ErrConfiguration, c.Library.PolynomialDegree)
	}
	if c.Library.CollinearityTolerance <= 0 || c.Library.CollinearityTolerance > 1 {
		return fmt.Errorf("%w: collinearity tolerance must be in (0, 1] (got %g)", ErrConfiguration, c.Library.CollinearityTolerance)
	}
	seen := make(map[string]struct{})
	for _, ct := range c.Library.CustomTerms {
		if ct.Name == "" {
			return fmt.Errorf("%w: custom term with empty name", ErrConfiguration)
		}
		if ct.Fn == nil {
			return fmt.Errorf("%w: custom term %q has no evaluation function", ErrConfiguration, ct.Name)
		}
		if _, dup := seen[ct.Name]; dup {
			return fmt.Errorf("%w: duplicate custom term %q", ErrConfiguration, ct.Name)
		}
		seen[ct.Name] = struct{}{}
	}
	if c.Sparse.Threshold < 0 {
		return fmt.Errorf("%w: sparse threshold must be >= 0 (got %g)", ErrConfiguration, c.Sparse.Threshold)
	}
	if c.Sparse.Ridge < 0 {
		return fmt.Errorf("%w: ridge strength must be >= 0 (got %g)", ErrConfiguration, c.Sparse.Ridge)
	}
	if c.Sparse.MaxIterations < 1 {
		return fmt.Errorf("%w: sparse max iterations must be >= 1 (got %d)", ErrConfiguration, c.Sparse.MaxIterations)
	}
	if c.Symbolic.Enabled {
		if c.Symbolic.PopulationSize < 2 {
			return fmt.Errorf("%w: symbolic population must be >= 2 (got %d)", ErrConfiguration, c.Symbolic.PopulationSize)
		}
		if c.Symbolic.Generations < 1 {
			return fmt.Errorf("%w: symbolic generations must be >= 1 (got %d)", ErrConfiguration, c.Symbolic.Generations)
		}
		if c.Symbolic.PlateauGenerations < 1 {
			return fmt.Errorf("%w: symbolic plateau must be >= 1 (got %d)", ErrConfiguration, c.Symbolic.PlateauGenerations)
		}
		if c.Symbolic.MaxComplexity < 1 {
			return fmt.Errorf("%w: symbolic max complexity must be >= 1 (got %d)", ErrConfiguration, c.Symbolic.MaxComplexity)
		}
		if c.Symbolic.Parsimony < 0 {
			return fmt.Errorf("%w: symbolic parsimony must be >= 0 (got %g)", ErrConfiguration, c.Symbolic.Parsimony)
		}
		if c.Symbolic.TopK < 1 {
			return fmt.Errorf("%w: symbolic top-k must be >= 1 (got %d)", ErrConfiguration, c.Symbolic.TopK)
		}
		if c.Symbolic.Budget < 0 {
			return fmt.Errorf("%w: symbolic budget must be >= 0 (got %s)", ErrConfiguration, c.Symbolic.Budget)
		}
		for _, op := range c.Symbolic.UnaryOps {
			if _, ok := supportedUnaryOps[op]; !ok {
				return fmt.Errorf("%w: unknown unary operator %q", ErrConfiguration, op)
			}
		}
	}
	if c.Uncertainty.Enabled && c.Uncertainty.Resamples < 1 {
		return fmt.Errorf("%w: bootstrap resamples must be >= 1 (got %d)", ErrConfiguration, c.Uncertainty.Resamples)
	}
	return nil
}
