package switching

import (
	"errors"
	"math"

	"gonum.org/v1/gonum/mat"
)

// LinearFit is an ordinary least squares AR(p) fit with intercept
type LinearFit struct {
	Intercept     float64
	Coefficients  []float64
	Sigma2        float64
	LogLikelihood float64
	Residuals     []float64
	NumParams     int
	NumObs        int
}

// FitLinearAR fits y_t = c + phi . (y_t-1..y_t-p) + e_t by least squares
func FitLinearAR(values []float64, p int) (*LinearFit, error) {
	d := newDesign(values, p)
	T := d.len()
	if T <= p+2 {
		return nil, errors.New("too few observations for linear autoregression")
	}

	x := mat.NewDense(T, p+1, nil)
	y := mat.NewVecDense(T, append([]float64(nil), d.y...))
	for t := 0; t < T; t++ {
		x.Set(t, 0, 1)
		for i := 0; i < p; i++ {
			x.Set(t, i+1, d.x[t][i])
		}
	}

	var beta mat.VecDense
	if err := beta.SolveVec(x, y); err != nil {
		return nil, err
	}

	fit := &LinearFit{
		Intercept:    beta.AtVec(0),
		Coefficients: make([]float64, p),
		Residuals:    make([]float64, T),
		NumParams:    p + 2,
		NumObs:       T,
	}
	for i := 0; i < p; i++ {
		fit.Coefficients[i] = beta.AtVec(i + 1)
	}
	rss := 0.0
	for t := 0; t < T; t++ {
		e := d.y[t] - mat.Dot(x.RowView(t), &beta)
		fit.Residuals[t] = e
		rss += e * e
	}
	fit.Sigma2 = rss / float64(T)
	if fit.Sigma2 <= 0 {
		return nil, errors.New("linear autoregression has zero residual variance")
	}
	fit.LogLikelihood = -0.5 * float64(T) * (math.Log(2*math.Pi*fit.Sigma2) + 1)
	return fit, nil
}
