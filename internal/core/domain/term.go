package domain

import (
	"fmt"
	"math"
	"sort"
	"strings"
)

// TermKind is the closed set of library-term variants. Evaluation is a pure
// function of the kind and the sample, so terms are stateless and reusable
// across samples.
type TermKind int

const (
	// TermField evaluates to the raw field value.
	TermField TermKind = iota

	// TermDerivative evaluates to a named partial derivative.
	TermDerivative

	// TermPower evaluates to an integer power of a base term.
	TermPower

	// TermProduct evaluates to the product of its factor terms.
	TermProduct

	// TermConstant evaluates to 1, giving the fit an intercept column.
	TermConstant

	// TermCustom evaluates a caller-supplied pure function.
	TermCustom
)

// LibraryTerm is a named candidate expression with a deterministic evaluation
// rule over a Sample. The name uniquely identifies the rule within a run.
type LibraryTerm struct {
	// Name is the symbolic name, e.g. "u", "u_xx", "(u)^2", "u*u_x".
	Name string

	// Kind selects the evaluation rule.
	Kind TermKind

	// Derivative is the derivative name for TermDerivative terms.
	Derivative string

	// Degree is the exponent for TermPower terms.
	Degree int

	// Factors are the sub-terms for TermPower (one base) and
	// TermProduct (two or more factors).
	Factors []LibraryTerm

	// Fn is the evaluation callback for TermCustom terms. Not persisted;
	// custom terms cannot be rehydrated from storage.
	Fn func(Sample) float64 `json:"-"`
}

// Evaluate computes the term's value at a sample. A derivative the sample
// does not carry evaluates to NaN, which the library builder drops as a
// non-finite column.
func (t LibraryTerm) Evaluate(s Sample) float64 {
	switch t.Kind {
	case TermField:
		return s.Value
	case TermDerivative:
		v, ok := s.Derivatives[t.Derivative]
		if !ok {
			return math.NaN()
		}
		return v
	case TermPower:
		return math.Pow(t.Factors[0].Evaluate(s), float64(t.Degree))
	case TermProduct:
		prod := 1.0
		for _, f := range t.Factors {
			prod *= f.Evaluate(s)
		}
		return prod
	case TermConstant:
		return 1
	case TermCustom:
		return t.Fn(s)
	default:
		return math.NaN()
	}
}

func (t LibraryTerm) String() string { return t.Name }

// FieldTerm builds the raw-field term.
func FieldTerm(fieldName string) LibraryTerm {
	return LibraryTerm{Name: fieldName, Kind: TermField}
}

// DerivativeTerm builds a term for the named partial derivative.
func DerivativeTerm(name string) LibraryTerm {
	return LibraryTerm{Name: name, Kind: TermDerivative, Derivative: name}
}

// PowerTerm builds base^degree, named "(base)^degree".
func PowerTerm(base LibraryTerm, degree int) LibraryTerm {
	return LibraryTerm{
		Name:    fmt.Sprintf("(%s)^%d", base.Name, degree),
		Kind:    TermPower,
		Degree:  degree,
		Factors: []LibraryTerm{base},
	}
}

// ProductTerm builds the product of the given factors. Factors are sorted by
// name so that "u_x*u" and "u*u_x" produce the same term.
func ProductTerm(factors ...LibraryTerm) LibraryTerm {
	sorted := make([]LibraryTerm, len(factors))
	copy(sorted, factors)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Name < sorted[j].Name })
	names := make([]string, len(sorted))
	for i, f := range sorted {
		names[i] = f.Name
	}
	return LibraryTerm{
		Name:    strings.Join(names, "*"),
		Kind:    TermProduct,
		Factors: sorted,
	}
}

// ConstantTerm builds the all-ones intercept term, named "1".
func ConstantTerm() LibraryTerm {
	return LibraryTerm{Name: "1", Kind: TermConstant}
}

// NewCustomTerm builds a term from a caller-supplied evaluation function.
// The function must be pure: same sample, same value.
func NewCustomTerm(name string, fn func(Sample) float64) LibraryTerm {
	return LibraryTerm{Name: name, Kind: TermCustom, Fn: fn}
}
