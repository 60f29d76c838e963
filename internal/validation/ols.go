package validation

import (
	"errors"
	"fmt"
	"math"

	"goregime/domain/core"
	"goregime/domain/regime"

	"gonum.org/v1/gonum/mat"
)

var errSingular = errors.New("singular design matrix")

// ols regresses y on the rows of x and returns the coefficients and residual sum of squares
func ols(x [][]float64, y []float64) (beta []float64, ssr float64, err error) {
	n := len(y)
	if n == 0 || len(x) != n {
		return nil, 0, errors.New("empty or misaligned regression")
	}
	cols := len(x[0])
	if n <= cols {
		return nil, 0, fmt.Errorf("%d observations for %d regressors", n, cols)
	}
	design := mat.NewDense(n, cols, nil)
	for i, row := range x {
		design.SetRow(i, row)
	}
	var b mat.VecDense
	if err := b.SolveVec(design, mat.NewVecDense(n, append([]float64(nil), y...))); err != nil {
		return nil, 0, errSingular
	}
	beta = make([]float64, cols)
	for i := range beta {
		beta[i] = b.AtVec(i)
	}
	for i, row := range x {
		e := y[i]
		for j, v := range row {
			e -= beta[j] * v
		}
		ssr += e * e
	}
	return beta, ssr, nil
}

// guard runs fn and turns a panic or non-finite statistic into an error-tagged outcome
func guard(name string, fn func() (regime.TestOutcome, error)) (out regime.TestOutcome) {
	defer func() {
		if r := recover(); r != nil {
			out = regime.FailedOutcome(name, core.NewDiagnosticError(name, fmt.Sprint(r)))
		}
	}()
	out, err := fn()
	if err != nil {
		return regime.FailedOutcome(name, core.NewDiagnosticError(name, err.Error()))
	}
	if !isFinite(out.Statistic) || math.IsNaN(out.PValue) {
		return regime.FailedOutcome(name, core.NewDiagnosticError(name, "undefined statistic"))
	}
	for k, d := range out.Details {
		if !isFinite(d) {
			delete(out.Details, k)
		}
	}
	out.Name = name
	return out
}

func isFinite(x float64) bool {
	return !math.IsNaN(x) && !math.IsInf(x, 0)
}

func clampProbability(p float64) float64 {
	return math.Max(0, math.Min(1, p))
}
