package services

import (
	"fmt"
	"sort"

	"github.com/corvid-labs/fieldlaw/internal/core/domain"
	"github.com/corvid-labs/fieldlaw/internal/core/ports/driven"
	"github.com/corvid-labs/fieldlaw/internal/solvers/sparse"
	"github.com/corvid-labs/fieldlaw/internal/solvers/symbolic"
)

// Ensure SolverRegistry implements the interface.
var _ driven.SolverFactory = (*SolverRegistry)(nil)

// SolverRegistry maps solver methods to builders. The built-in sparse and
// symbolic solvers are registered on construction; callers may register
// additional methods or replace the built-ins.
type SolverRegistry struct {
	builders map[domain.Method]driven.SolverBuilder
}

// NewSolverRegistry creates a registry with the built-in solvers.
func NewSolverRegistry() *SolverRegistry {
	r := &SolverRegistry{builders: make(map[domain.Method]driven.SolverBuilder)}
	r.registerBuiltinSolvers()
	return r
}

func (r *SolverRegistry) registerBuiltinSolvers() {
	r.Register(domain.MethodSparse, func(cfg domain.DiscoveryConfig, _ int64) (driven.EquationSolver, error) {
		return sparse.NewSolver(cfg.Sparse), nil
	})
	r.Register(domain.MethodSymbolic, func(cfg domain.DiscoveryConfig, seed int64) (driven.EquationSolver, error) {
		return symbolic.NewSolver(cfg.Symbolic, workerCount(cfg.Workers), seed), nil
	})
}

// Register adds or replaces the builder for a method.
func (r *SolverRegistry) Register(method domain.Method, builder driven.SolverBuilder) {
	r.builders[method] = builder
}

// Create builds a solver for the method, configured for one run.
func (r *SolverRegistry) Create(
	method domain.Method, cfg domain.DiscoveryConfig, seed int64,
) (driven.EquationSolver, error) {
	builder, ok := r.builders[method]
	if !ok {
		return nil, fmt.Errorf("%w: unknown solver method %q", domain.ErrConfiguration, method)
	}
	return builder(cfg, seed)
}

// SupportedMethods lists the registered methods in stable order.
func (r *SolverRegistry) SupportedMethods() []domain.Method {
	methods := make([]domain.Method, 0, len(r.builders))
	for m := range r.builders {
		methods = append(methods, m)
	}
	sort.Slice(methods, func(i, j int) bool { return methods[i] < methods[j] })
	return methods
}
