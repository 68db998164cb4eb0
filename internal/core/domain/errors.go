package domain

import "errors"

// Domain errors represent discovery-run failures.
// These are distinct from infrastructure errors.
var (
	// ErrConfiguration indicates an invalid or contradictory configuration.
	// Surfaced immediately, before any discovery step runs.
	ErrConfiguration = errors.New("invalid configuration")

	// ErrEmptyLibrary indicates the term catalog produced zero usable columns.
	// With no design matrix there is nothing for later steps to fit, so the
	// run aborts.
	ErrEmptyLibrary = errors.New("empty term library")

	// ErrDegenerateFit indicates thresholding eliminated every term.
	// Recoverable: the run continues with a zero-term candidate and a
	// diagnostic.
	ErrDegenerateFit = errors.New("degenerate fit")

	// ErrInsufficientData indicates too few samples for bootstrap intervals.
	// Fatal for the uncertainty step only; earlier results are kept.
	ErrInsufficientData = errors.New("insufficient data")

	// ErrEvaluation indicates the sampled data itself is invalid, such as an
	// out-of-domain point or a missing target derivative. Aborts the run.
	ErrEvaluation = errors.New("evaluation failed")

	// Storage Errors.

	// ErrRunNotFound indicates a requested discovery run does not exist.
	ErrRunNotFound = errors.New("run not found")

	// ErrDatasetNotFound indicates a requested sample dataset does not exist.
	ErrDatasetNotFound = errors.New("dataset not found")
)
