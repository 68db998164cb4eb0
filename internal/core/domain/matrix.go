package domain

import (
	"gonum.org/v1/gonum/mat"
)

// FeatureMatrix is the design matrix for one discovery run: the ordered
// samples evaluated against the ordered library terms, plus the target
// vector. Row count matches between matrix and target; column order matches
// the Terms order so coefficients attribute back to terms by index.
type FeatureMatrix struct {
	// Data holds one row per sample and one column per term.
	Data *mat.Dense

	// Target is the derivative being explained, one entry per sample.
	Target *mat.VecDense

	// Terms names the columns, in column order.
	Terms []LibraryTerm

	// TargetName is the derivative name the target vector holds.
	TargetName string
}

// Rows returns the sample count.
func (fm *FeatureMatrix) Rows() int {
	r, _ := fm.Data.Dims()
	return r
}

// Cols returns the term count.
func (fm *FeatureMatrix) Cols() int {
	_, c := fm.Data.Dims()
	return c
}

// Column returns a copy of column j.
func (fm *FeatureMatrix) Column(j int) []float64 {
	col := make([]float64, fm.Rows())
	mat.Col(col, j, fm.Data)
	return col
}

// ColumnIndex returns the column index of the named term.
func (fm *FeatureMatrix) ColumnIndex(name string) (int, bool) {
	for i, t := range fm.Terms {
		if t.Name == name {
			return i, true
		}
	}
	return 0, false
}

// TargetValues returns a copy of the target vector.
func (fm *FeatureMatrix) TargetValues() []float64 {
	out := make([]float64, fm.Target.Len())
	for i := range out {
		out[i] = fm.Target.AtVec(i)
	}
	return out
}
