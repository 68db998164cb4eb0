package symbolic

import (
	"context"
	"fmt"
	"math"
	"math/rand"
	"sort"
	"sync"
	"time"

	"github.com/corvid-labs/fieldlaw/internal/core/domain"
	"github.com/corvid-labs/fieldlaw/internal/core/ports/driven"
	"github.com/corvid-labs/fieldlaw/internal/logger"
)

const (
	tournamentSize = 3
	eliteCount     = 2
	crossoverRate  = 0.6
	mutationRate   = 0.3
)

// Solver evolves candidate expressions against a feature matrix. All
// breeding decisions come from a single seeded RNG, so two solvers built
// with the same seed produce identical results; only fitness evaluation
// runs in parallel.
type Solver struct {
	cfg     domain.SymbolicConfig
	workers int
	rng     *rand.Rand
}

var _ driven.EquationSolver = (*Solver)(nil)

// NewSolver returns a symbolic solver seeded for reproducible searches.
func NewSolver(cfg domain.SymbolicConfig, workers int, seed int64) *Solver {
	return &Solver{cfg: cfg, workers: workers, rng: rand.New(rand.NewSource(seed))}
}

// Name implements driven.EquationSolver.
func (s *Solver) Name() string { return "symbolic" }

type score struct {
	fitness float64
	mse     float64
}

// Solve runs the evolutionary search and returns up to TopK distinct
// expressions that predict the target better than the zero model. Finding
// none is not an error; the returned slice is simply empty.
func (s *Solver) Solve(ctx context.Context, fm *domain.FeatureMatrix) ([]domain.CandidateEquation, []domain.Diagnostic, error) {
	rows := fm.Rows()
	nCols := fm.Cols()
	if rows == 0 || nCols == 0 {
		return nil, nil, fmt.Errorf("%w: empty feature matrix", domain.ErrEvaluation)
	}

	columns := make([][]float64, nCols)
	for j := range columns {
		columns[j] = fm.Column(j)
	}
	y := fm.TargetValues()
	var zeroMSE float64
	for _, v := range y {
		zeroMSE += v * v
	}
	zeroMSE /= float64(rows)

	unaries := make([]opCode, 0, len(s.cfg.UnaryOps))
	for _, name := range s.cfg.UnaryOps {
		if op, ok := unaryByName[name]; ok {
			unaries = append(unaries, op)
		}
	}
	maxNodes := s.cfg.MaxComplexity
	if maxNodes < 1 {
		maxNodes = 1
	}
	popSize := s.cfg.PopulationSize
	if popSize < 2 {
		popSize = 2
	}

	// Seed the population with one bare leaf per column so every library
	// term is reachable from generation zero, then fill with random growth.
	pop := make([]program, 0, popSize)
	for j := 0; j < nCols && len(pop) < popSize; j++ {
		pop = append(pop, program{nodes: []node{{op: opTerm, arg: int32(j)}}})
	}
	for len(pop) < popSize {
		pop = append(pop, randomProgram(s.rng, nCols, maxNodes, unaries))
	}
	scores := s.evaluate(pop, columns, y, rows)

	var diags []domain.Diagnostic
	start := time.Now()
	best := math.Inf(1)
	plateau := 0
	for gen := 0; gen < s.cfg.Generations; gen++ {
		if ctx.Err() != nil {
			diags = append(diags, domain.Diagnostic{
				Stage:   "symbolic",
				Message: fmt.Sprintf("search cancelled at generation %d, keeping best programs found so far", gen),
			})
			break
		}
		if s.cfg.Budget > 0 && time.Since(start) >= s.cfg.Budget {
			logger.Debug("symbolic: time budget reached at generation %d", gen)
			break
		}

		pop = s.breed(pop, scores, nCols, maxNodes, unaries)
		scores = s.evaluate(pop, columns, y, rows)

		genBest := math.Inf(1)
		for _, sc := range scores {
			if sc.fitness < genBest {
				genBest = sc.fitness
			}
		}
		if genBest < best-1e-12 {
			best = genBest
			plateau = 0
			continue
		}
		plateau++
		if s.cfg.PlateauGenerations > 0 && plateau >= s.cfg.PlateauGenerations {
			logger.Debug("symbolic: fitness plateaued for %d generations, stopping at generation %d", plateau, gen)
			break
		}
	}

	names := make([]string, len(fm.Terms))
	for i, t := range fm.Terms {
		names[i] = t.Name
	}
	order := make([]int, len(pop))
	for i := range order {
		order[i] = i
	}
	sort.SliceStable(order, func(a, b int) bool {
		return scores[order[a]].fitness < scores[order[b]].fitness
	})

	topK := s.cfg.TopK
	if topK < 1 {
		topK = 1
	}
	seen := make(map[string]struct{})
	var candidates []domain.CandidateEquation
	for _, i := range order {
		if len(candidates) >= topK {
			break
		}
		if !(scores[i].mse < zeroMSE) {
			continue
		}
		expr := pop[i].render(names)
		if _, dup := seen[expr]; dup {
			continue
		}
		seen[expr] = struct{}{}
		candidates = append(candidates, s.candidate(pop[i], expr, fm.TargetName, names))
	}
	if len(candidates) == 0 {
		diags = append(diags, domain.Diagnostic{
			Stage:   "symbolic",
			Message: "no expression outperformed the zero model, returning no symbolic candidates",
		})
	}
	logger.Debug("symbolic: search finished with %d candidate(s) in %s", len(candidates), time.Since(start).Round(time.Millisecond))
	return candidates, diags, nil
}

// breed builds the next generation: the two fittest programs carry over
// unchanged, the rest come from tournament-selected crossover and mutation.
func (s *Solver) breed(pop []program, scores []score, nCols, maxNodes int, unaries []opCode) []program {
	fitness := make([]float64, len(scores))
	for i, sc := range scores {
		fitness[i] = sc.fitness
	}
	next := make([]program, 0, len(pop))
	e1, e2 := bestTwo(fitness)
	elites := []int{e1}
	if eliteCount > 1 && e2 != e1 {
		elites = append(elites, e2)
	}
	for _, e := range elites {
		if len(next) < len(pop) {
			next = append(next, pop[e].clone())
		}
	}
	for len(next) < len(pop) {
		var child program
		if s.rng.Float64() < crossoverRate {
			a := pop[tournament(s.rng, fitness, tournamentSize)]
			b := pop[tournament(s.rng, fitness, tournamentSize)]
			child = crossover(a, b, s.rng, maxNodes)
		} else {
			child = pop[tournament(s.rng, fitness, tournamentSize)].clone()
		}
		if s.rng.Float64() < mutationRate {
			switch s.rng.Intn(3) {
			case 0:
				child = pointMutate(child, s.rng, nCols, unaries)
			case 1:
				child = subtreeMutate(child, s.rng, nCols, maxNodes, unaries)
			default:
				child = jitterConstants(child, s.rng)
			}
		}
		next = append(next, child)
	}
	return next
}

// bestTwo returns the indices of the two lowest fitness values, preferring
// earlier indices on ties.
func bestTwo(fitness []float64) (int, int) {
	b1, b2 := 0, -1
	for i := 1; i < len(fitness); i++ {
		switch {
		case fitness[i] < fitness[b1]:
			b2 = b1
			b1 = i
		case b2 < 0 || fitness[i] < fitness[b2]:
			b2 = i
		}
	}
	if b2 < 0 {
		b2 = b1
	}
	return b1, b2
}

// evaluate scores the whole population. Results land in per-index slots, so
// the parallel fan-out cannot perturb determinism.
func (s *Solver) evaluate(pop []program, columns [][]float64, y []float64, rows int) []score {
	scores := make([]score, len(pop))
	workers := s.workers
	if workers < 1 {
		workers = 1
	}
	if workers > len(pop) {
		workers = len(pop)
	}
	jobs := make(chan int)
	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := range jobs {
				scores[i] = s.scoreProgram(pop[i], columns, y, rows)
			}
		}()
	}
	for i := range pop {
		jobs <- i
	}
	close(jobs)
	wg.Wait()
	return scores
}

// scoreProgram computes fitness as prediction MSE plus a parsimony penalty
// per node. Programs that produce non-finite values score +Inf.
func (s *Solver) scoreProgram(p program, columns [][]float64, y []float64, rows int) score {
	out, ok := p.eval(columns, rows)
	if !ok {
		return score{fitness: math.Inf(1), mse: math.Inf(1)}
	}
	var sum float64
	for i, v := range out {
		d := v - y[i]
		sum += d * d
	}
	mse := sum / float64(rows)
	return score{fitness: mse + s.cfg.Parsimony*float64(p.size()), mse: mse}
}

// candidate wraps a program as a CandidateEquation whose predictor resolves
// term columns by name, so it works against any compatible feature matrix.
func (s *Solver) candidate(p program, expr, target string, names []string) domain.CandidateEquation {
	prog := p.clone()
	refs := prog.referencedTerms()
	predictor := func(m *domain.FeatureMatrix) ([]float64, error) {
		cols := make([][]float64, len(names))
		for _, j := range refs {
			idx, ok := m.ColumnIndex(names[j])
			if !ok {
				return nil, fmt.Errorf("term %q not present in feature matrix", names[j])
			}
			cols[j] = m.Column(idx)
		}
		out, ok := prog.eval(cols, m.Rows())
		if !ok {
			return nil, fmt.Errorf("%w: expression produced non-finite values", domain.ErrEvaluation)
		}
		return out, nil
	}
	return domain.CandidateEquation{
		Method:     domain.MethodSymbolic,
		TargetName: target,
		Formula:    target + " = " + expr,
		Complexity: prog.size(),
		Metrics:    domain.Metrics{Terms: len(refs)},
		Predictor:  predictor,
	}
}
