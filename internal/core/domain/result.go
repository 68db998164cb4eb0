package domain

import "time"

// Diagnostic records a warning, drop, or fallback encountered during a run.
// Diagnostics accumulate in step order and never abort anything themselves.
type Diagnostic struct {
	// Stage names the pipeline step that produced the entry.
	Stage string

	// Message is the human-readable description.
	Message string
}

// RankedResult is the ordered candidate list for one run. Rank is slice
// position; the ordering is a strict total order (BIC, then term count, then
// RMSE, then formula) so identical inputs rank identically.
type RankedResult struct {
	// TargetName is the derivative all candidates explain.
	TargetName string

	// Equations are the candidates, best first.
	Equations []CandidateEquation
}

// Best returns the top-ranked candidate, or nil when none exist.
func (r *RankedResult) Best() *CandidateEquation {
	if r == nil || len(r.Equations) == 0 {
		return nil
	}
	return &r.Equations[0]
}

// BestSparse returns the top-ranked sparse-method candidate, or nil. The
// uncertainty step needs a fixed linear term subset, which only sparse
// candidates carry.
func (r *RankedResult) BestSparse() *CandidateEquation {
	if r == nil {
		return nil
	}
	for i := range r.Equations {
		if r.Equations[i].Method == MethodSparse {
			return &r.Equations[i]
		}
	}
	return nil
}

// CoefficientInterval is the bootstrap summary for one term: percentile
// bounds of its coefficient distribution and how often full STLSQ refits on
// the same resamples kept the term.
type CoefficientInterval struct {
	// Name is the term name.
	Name string

	// Lower, Median, Upper are the 2.5th, 50th, and 97.5th percentiles.
	Lower  float64
	Median float64
	Upper  float64

	// Stability is the retained fraction across STLSQ refits, in [0, 1].
	Stability float64
}

// UncertaintyReport is the bootstrap result for one candidate equation.
// Intervals are computed only from refits on the candidate's own term
// subset.
type UncertaintyReport struct {
	// Formula identifies the source candidate.
	Formula string

	// Samples is the row count of the fitting data.
	Samples int

	// Resamples is how many bootstrap refits completed.
	Resamples int

	// Intervals holds one entry per term, in the candidate's term order.
	Intervals []CoefficientInterval
}

// DiscoveryResult is everything one run produced: the ranked equations, the
// uncertainty report, and the diagnostics trail, plus the terminal state. On
// abort the completed stages are still populated.
type DiscoveryResult struct {
	// RunID identifies the run for persistence; empty for anonymous runs.
	RunID string

	// TargetName is the derivative the run explained.
	TargetName string

	// State is the run's final state.
	State RunState

	// AbortReason is set when State is StateAborted.
	AbortReason string

	// Ranked is the ordered candidate list, nil if ranking never ran.
	Ranked *RankedResult

	// Uncertainty is the bootstrap report, nil if the step was skipped,
	// failed, or never ran.
	Uncertainty *UncertaintyReport

	// Diagnostics is the run's warning/drop/fallback trail.
	Diagnostics []Diagnostic

	// Elapsed is the wall-clock duration of the run.
	Elapsed time.Duration
}

// RunRecord is the persistence summary row for a run.
type RunRecord struct {
	// ID is the run identifier.
	ID string

	// TargetName is the derivative the run explained.
	TargetName string

	// BestFormula is the top-ranked equation, empty if none.
	BestFormula string

	// State is the run's final state.
	State RunState

	// CreatedAt is when the run was persisted.
	CreatedAt time.Time
}
