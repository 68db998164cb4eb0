package driven

import (
	"context"

	"github.com/corvid-labs/fieldlaw/internal/core/domain"
)

// EquationSolver fits candidate equations to a feature matrix. Solvers are
// configured at construction and must be deterministic for a fixed seed.
type EquationSolver interface {
	// Name identifies the solver in diagnostics.
	Name() string

	// Solve returns zero or more candidates for the matrix's target,
	// plus any recoverable warnings hit along the way. An empty slice with
	// a nil error means the solver found nothing better than the trivial
	// model; the run continues without its candidates.
	Solve(ctx context.Context, fm *domain.FeatureMatrix) ([]domain.CandidateEquation, []domain.Diagnostic, error)
}

// SolverBuilder creates an EquationSolver for one run from the run's
// configuration and its step seed.
type SolverBuilder func(cfg domain.DiscoveryConfig, seed int64) (EquationSolver, error)

// SolverFactory creates solvers from run configuration. It maintains a
// registry of methods and their builders.
type SolverFactory interface {
	// Create returns a solver for the given method.
	// Returns domain.ErrConfiguration if the method is unknown.
	Create(method domain.Method, cfg domain.DiscoveryConfig, seed int64) (EquationSolver, error)

	// Register adds a solver builder for the given method.
	Register(method domain.Method, builder SolverBuilder)

	// SupportedMethods returns all registered methods.
	SupportedMethods() []domain.Method
}
