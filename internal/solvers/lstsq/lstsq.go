// Package lstsq is the shared least-squares core for the solvers: column
// scaling, plain and ridge-regularized solves, and fit-quality measures.
// Everything operates on gonum dense matrices.
package lstsq

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat"
)

// ColumnScales returns each column's sample standard deviation, for
// unit-variance scaling. Zero-variance columns get scale 1 so scaling never
// divides by zero.
func ColumnScales(x *mat.Dense) []float64 {
	rows, cols := x.Dims()
	scales := make([]float64, cols)
	col := make([]float64, rows)
	for j := 0; j < cols; j++ {
		mat.Col(col, j, x)
		s := stat.StdDev(col, nil)
		if s == 0 || math.IsNaN(s) {
			s = 1
		}
		scales[j] = s
	}
	return scales
}

// ScaleColumns returns a copy of x with column j divided by scales[j].
// Scaling is a pure rescaling of the basis: coefficients fitted on the
// scaled matrix divide by the same scales to recover original-basis
// coefficients.
func ScaleColumns(x *mat.Dense, scales []float64) *mat.Dense {
	rows, cols := x.Dims()
	out := mat.NewDense(rows, cols, nil)
	for j := 0; j < cols; j++ {
		s := scales[j]
		for i := 0; i < rows; i++ {
			out.Set(i, j, x.At(i, j)/s)
		}
	}
	return out
}

// Solve finds least-squares coefficients for x·c ≈ y. With ridge > 0 it
// solves the regularized problem through the augmented system
// [x; sqrt(ridge)·I]. For singular or near-singular systems the returned
// error is a mat.Condition and the coefficients are still populated;
// callers decide whether the conditioning is acceptable.
func Solve(x *mat.Dense, y []float64, ridge float64) ([]float64, error) {
	rows, cols := x.Dims()
	if len(y) != rows {
		return nil, fmt.Errorf("lstsq: matrix has %d rows but target has %d", rows, len(y))
	}
	a := x
	b := y
	if ridge > 0 {
		aug := mat.NewDense(rows+cols, cols, nil)
		aug.Slice(0, rows, 0, cols).(*mat.Dense).Copy(x)
		s := math.Sqrt(ridge)
		for j := 0; j < cols; j++ {
			aug.Set(rows+j, j, s)
		}
		a = aug
		b = make([]float64, rows+cols)
		copy(b, y)
	}

	var coef mat.VecDense
	err := coef.SolveVec(a, mat.NewVecDense(len(b), b))
	if err != nil {
		if _, ok := err.(mat.Condition); !ok {
			return nil, err
		}
	}
	out := make([]float64, cols)
	for j := range out {
		out[j] = coef.AtVec(j)
	}
	return out, err
}

// Predict computes x·c.
func Predict(x *mat.Dense, coefs []float64) []float64 {
	rows, _ := x.Dims()
	var v mat.VecDense
	v.MulVec(x, mat.NewVecDense(len(coefs), coefs))
	out := make([]float64, rows)
	for i := range out {
		out[i] = v.AtVec(i)
	}
	return out
}

// RSS returns the residual sum of squares.
func RSS(obs, pred []float64) float64 {
	var rss float64
	for i := range obs {
		d := obs[i] - pred[i]
		rss += d * d
	}
	return rss
}

// RMSE returns the root-mean-square error.
func RMSE(obs, pred []float64) float64 {
	if len(obs) == 0 {
		return 0
	}
	return math.Sqrt(RSS(obs, pred) / float64(len(obs)))
}

// RSquared returns the coefficient of determination. A zero-variance target
// gives 1 for a perfect fit and 0 otherwise.
func RSquared(obs, pred []float64) float64 {
	rss := RSS(obs, pred)
	mean := stat.Mean(obs, nil)
	var tss float64
	for _, o := range obs {
		d := o - mean
		tss += d * d
	}
	if tss == 0 {
		if rss == 0 {
			return 1
		}
		return 0
	}
	return 1 - rss/tss
}

// SelectColumns returns a copy of x restricted to the given columns, in
// order.
func SelectColumns(x *mat.Dense, cols []int) *mat.Dense {
	rows, _ := x.Dims()
	out := mat.NewDense(rows, len(cols), nil)
	for jj, j := range cols {
		for i := 0; i < rows; i++ {
			out.Set(i, jj, x.At(i, j))
		}
	}
	return out
}

// SelectRows returns a copy of x restricted to the given rows, in order.
// Rows may repeat, which is how bootstrap resamples are built.
func SelectRows(x *mat.Dense, rows []int) *mat.Dense {
	_, cols := x.Dims()
	out := mat.NewDense(len(rows), cols, nil)
	for ii, i := range rows {
		for j := 0; j < cols; j++ {
			out.Set(ii, j, x.At(i, j))
		}
	}
	return out
}

// GatherRows returns y restricted to the given indices, in order.
func GatherRows(y []float64, rows []int) []float64 {
	out := make([]float64, len(rows))
	for ii, i := range rows {
		out[ii] = y[i]
	}
	return out
}
