package validation

import (
	"errors"
	"fmt"

	"goregime/domain/regime"
	"goregime/internal/switching"

	"gonum.org/v1/gonum/stat"
	"gonum.org/v1/gonum/stat/distuv"
)

// ValidateResiduals checks the standardized residuals for autocorrelation (Ljung-Box),
// conditional heteroskedasticity (ARCH LM) and first-order serial correlation (Durbin-Watson)
func (v *Validator) ValidateResiduals(model *regime.FittedRegimeModel) regime.ResidualResult {
	result := regime.ResidualResult{Tests: make(map[string]regime.TestOutcome, 3)}
	if model == nil {
		result.Error = errNoModel.Error()
		return result
	}
	var resid []float64
	func() {
		defer func() {
			if r := recover(); r != nil {
				result.Error = fmt.Sprintf("residuals unavailable: %v", r)
			}
		}()
		resid = switching.StandardizedResiduals(model)
	}()
	if result.Error != "" {
		return result
	}

	result.Tests[CheckLjungBox] = guard(CheckLjungBox, func() (regime.TestOutcome, error) {
		return v.ljungBox(resid, ljungBoxLags)
	})
	result.Tests[CheckARCH] = guard(CheckARCH, func() (regime.TestOutcome, error) {
		return v.archLM(resid, archLags)
	})
	result.Tests[CheckDurbinWatson] = guard(CheckDurbinWatson, func() (regime.TestOutcome, error) {
		return durbinWatson(resid)
	})
	return result
}

// ljungBox computes Q = n(n+2) sum_h r_h^2/(n-h); no residual autocorrelation passes
func (v *Validator) ljungBox(e []float64, lags int) (regime.TestOutcome, error) {
	n := len(e)
	if n <= lags+1 {
		return regime.TestOutcome{}, fmt.Errorf("need more than %d residuals", lags+1)
	}
	mean := stat.Mean(e, nil)
	denom := 0.0
	for _, x := range e {
		denom += (x - mean) * (x - mean)
	}
	if denom == 0 {
		return regime.TestOutcome{}, errors.New("residuals have zero variance")
	}
	q := 0.0
	for h := 1; h <= lags; h++ {
		num := 0.0
		for t := h; t < n; t++ {
			num += (e[t] - mean) * (e[t-h] - mean)
		}
		r := num / denom
		q += r * r / float64(n-h)
	}
	q *= float64(n) * float64(n+2)
	p := distuv.ChiSquared{K: float64(lags)}.Survival(q)
	return regime.TestOutcome{
		Statistic: q,
		PValue:    clampProbability(p),
		Passed:    p > v.cfg.SignificanceLevel,
		Details:   map[string]float64{"lags": float64(lags)},
	}, nil
}

// archLM regresses e_t^2 on its lags; LM = T*R^2 ~ chi2(lags). Homoskedastic residuals pass.
func (v *Validator) archLM(e []float64, lags int) (regime.TestOutcome, error) {
	sq := make([]float64, len(e))
	for i, x := range e {
		sq[i] = x * x
	}
	T := len(sq) - lags
	if T <= lags+2 {
		return regime.TestOutcome{}, fmt.Errorf("need more than %d residuals", 2*lags+2)
	}
	x := make([][]float64, T)
	y := make([]float64, T)
	for t := lags; t < len(sq); t++ {
		row := make([]float64, lags+1)
		row[0] = 1
		for i := 1; i <= lags; i++ {
			row[i] = sq[t-i]
		}
		x[t-lags] = row
		y[t-lags] = sq[t]
	}
	_, ssr, err := ols(x, y)
	if err != nil {
		return regime.TestOutcome{}, err
	}
	mean := stat.Mean(y, nil)
	sst := 0.0
	for _, yv := range y {
		sst += (yv - mean) * (yv - mean)
	}
	if sst == 0 {
		return regime.TestOutcome{}, errors.New("squared residuals have zero variance")
	}
	r2 := 1 - ssr/sst
	lm := float64(T) * r2
	p := distuv.ChiSquared{K: float64(lags)}.Survival(lm)
	return regime.TestOutcome{
		Statistic: lm,
		PValue:    clampProbability(p),
		Passed:    p > v.cfg.SignificanceLevel,
		Details:   map[string]float64{"lags": float64(lags), "r_squared": r2},
	}, nil
}

// durbinWatson passes when the statistic lies within [1.5, 2.5]
func durbinWatson(e []float64) (regime.TestOutcome, error) {
	if len(e) < 3 {
		return regime.TestOutcome{}, errors.New("need at least three residuals")
	}
	num, denom := 0.0, e[0]*e[0]
	for t := 1; t < len(e); t++ {
		d := e[t] - e[t-1]
		num += d * d
		denom += e[t] * e[t]
	}
	if denom == 0 {
		return regime.TestOutcome{}, errors.New("residuals are all zero")
	}
	dw := num / denom
	return regime.TestOutcome{
		Statistic:     dw,
		CriticalValue: durbinWatsonLower,
		Passed:        dw >= durbinWatsonLower && dw <= durbinWatsonUpper,
		Details:       map[string]float64{"lower": durbinWatsonLower, "upper": durbinWatsonUpper},
	}, nil
}
