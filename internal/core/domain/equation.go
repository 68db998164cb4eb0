package domain

import (
	"fmt"
	"math"
	"strconv"
	"strings"
)

// Method identifies which solver produced a candidate equation.
type Method string

const (
	// MethodSparse is sequential thresholded least squares over the library.
	MethodSparse Method = "sparse"

	// MethodSymbolic is evolutionary search over expression trees.
	MethodSymbolic Method = "symbolic"
)

// WeightedTerm is a library term with its fitted coefficient and its column
// index in the feature matrix it was fitted against.
type WeightedTerm struct {
	Term        LibraryTerm
	Index       int
	Coefficient float64
}

// Criterion is an information-criterion value. Lower is better, and a
// perfect fit is legitimately -Inf, which plain JSON cannot represent, so
// non-finite values are encoded as quoted strings.
type Criterion float64

// MarshalJSON implements json.Marshaler.
func (c Criterion) MarshalJSON() ([]byte, error) {
	v := float64(c)
	if math.IsInf(v, 0) || math.IsNaN(v) {
		return []byte(strconv.Quote(strconv.FormatFloat(v, 'g', -1, 64))), nil
	}
	return []byte(strconv.FormatFloat(v, 'g', -1, 64)), nil
}

// UnmarshalJSON implements json.Unmarshaler.
func (c *Criterion) UnmarshalJSON(b []byte) error {
	s := string(b)
	if unquoted, err := strconv.Unquote(s); err == nil {
		s = unquoted
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return fmt.Errorf("parse criterion %q: %w", string(b), err)
	}
	*c = Criterion(v)
	return nil
}

// Metrics are the fit-quality and parsimony measures for one candidate.
// Lower AIC/BIC is better.
type Metrics struct {
	RMSE  float64
	R2    float64
	AIC   Criterion
	BIC   Criterion
	Terms int
}

// CandidateEquation is a fitted model for the target derivative: a term
// subset with coefficients for sparse fits, or a closed-form expression for
// symbolic fits. Zero-coefficient terms are pruned before storage.
type CandidateEquation struct {
	// Method records the originating solver.
	Method Method

	// TargetName is the derivative this equation explains.
	TargetName string

	// Terms are the surviving weighted terms. Empty for symbolic candidates,
	// whose structure lives in the formula and predictor.
	Terms []WeightedTerm

	// Formula is the canonical human-readable equation string.
	Formula string

	// Complexity counts surviving terms for sparse fits and expression nodes
	// for symbolic fits.
	Complexity int

	// Metrics are filled in by the ranking step.
	Metrics Metrics

	// Predictor overrides the default linear prediction. Set by the symbolic
	// solver, where predictions come from the expression tree. Not persisted;
	// a reloaded symbolic candidate keeps only its formula and metrics.
	Predictor func(fm *FeatureMatrix) ([]float64, error) `json:"-"`
}

// Predict evaluates the equation on every row of the matrix. Linear
// candidates resolve their terms against the matrix by index, falling back to
// name lookup so parsed equations predict against any matrix carrying the
// same terms.
func (e *CandidateEquation) Predict(fm *FeatureMatrix) ([]float64, error) {
	if e.Predictor != nil {
		return e.Predictor(fm)
	}
	pred := make([]float64, fm.Rows())
	for _, wt := range e.Terms {
		j := wt.Index
		if j < 0 || j >= fm.Cols() || fm.Terms[j].Name != wt.Term.Name {
			idx, ok := fm.ColumnIndex(wt.Term.Name)
			if !ok {
				return nil, fmt.Errorf("term %q not present in feature matrix", wt.Term.Name)
			}
			j = idx
		}
		for i := range pred {
			pred[i] += wt.Coefficient * fm.Data.At(i, j)
		}
	}
	return pred, nil
}

// NewLinearCandidate builds a sparse-method candidate from surviving terms,
// deriving the canonical formula and complexity.
func NewLinearCandidate(target string, terms []WeightedTerm) CandidateEquation {
	return CandidateEquation{
		Method:     MethodSparse,
		TargetName: target,
		Terms:      terms,
		Formula:    FormatEquation(target, terms),
		Complexity: len(terms),
	}
}

// FormatEquation renders the canonical equation string, e.g.
// "u_t = 0.01 u_xx - 1 u*u_x". Coefficients keep ten significant digits so a
// re-parsed equation reproduces predictions. An empty term set renders as
// "target = 0".
func FormatEquation(target string, terms []WeightedTerm) string {
	if len(terms) == 0 {
		return target + " = 0"
	}
	var b strings.Builder
	b.WriteString(target)
	b.WriteString(" = ")
	for i, wt := range terms {
		c := wt.Coefficient
		switch {
		case i == 0 && c < 0:
			b.WriteString("-")
		case i > 0 && c < 0:
			b.WriteString(" - ")
		case i > 0:
			b.WriteString(" + ")
		}
		b.WriteString(strconv.FormatFloat(math.Abs(c), 'g', 10, 64))
		b.WriteString(" ")
		b.WriteString(wt.Term.Name)
	}
	return b.String()
}

// ParsedTerm is one name/coefficient pair recovered from a canonical string.
type ParsedTerm struct {
	Name        string
	Coefficient float64
}

// ParseEquation inverts FormatEquation: it splits a canonical string into the
// target name and its term coefficients. Term names never contain spaces, so
// the grammar is "target = [-]coef name ( (+|-) coef name )*" or "target = 0".
func ParseEquation(s string) (string, []ParsedTerm, error) {
	target, rhs, ok := strings.Cut(s, " = ")
	if !ok {
		return "", nil, fmt.Errorf("equation %q: missing \" = \"", s)
	}
	rhs = strings.TrimSpace(rhs)
	if rhs == "0" {
		return target, nil, nil
	}
	fields := strings.Fields(rhs)
	var terms []ParsedTerm
	sign := 1.0
	for i := 0; i < len(fields); {
		switch fields[i] {
		case "+":
			sign = 1
			i++
			continue
		case "-":
			sign = -1
			i++
			continue
		}
		if i+1 >= len(fields) {
			return "", nil, fmt.Errorf("equation %q: coefficient %q has no term name", s, fields[i])
		}
		coef, err := strconv.ParseFloat(fields[i], 64)
		if err != nil {
			return "", nil, fmt.Errorf("equation %q: parse coefficient %q: %w", s, fields[i], err)
		}
		terms = append(terms, ParsedTerm{Name: fields[i+1], Coefficient: sign * coef})
		sign = 1
		i += 2
	}
	return target, terms, nil
}

// EvaluateLinear predicts the target from parsed name/coefficient pairs by
// resolving each name against the matrix columns.
func EvaluateLinear(fm *FeatureMatrix, terms []ParsedTerm) ([]float64, error) {
	pred := make([]float64, fm.Rows())
	for _, pt := range terms {
		j, ok := fm.ColumnIndex(pt.Name)
		if !ok {
			return nil, fmt.Errorf("term %q not present in feature matrix", pt.Name)
		}
		for i := range pred {
			pred[i] += pt.Coefficient * fm.Data.At(i, j)
		}
	}
	return pred, nil
}
