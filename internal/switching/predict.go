package switching

import (
	"math"

	"goregime/domain/regime"
	"goregime/domain/timeseries"
)

func paramsOf(model *regime.FittedRegimeModel) *params {
	return &params{
		k:      model.NumRegimes,
		p:      model.AROrder,
		mu:     model.Means,
		sigma2: model.Variances,
		phi:    model.ARCoefficients,
		trans:  model.Transition,
		init:   model.InitialProbs,
	}
}

// Predict runs the fitted model's filter over the table's series and returns the filtered
// regime probabilities of every observation
func Predict(model *regime.FittedRegimeModel, table *timeseries.Table) ([][]float64, error) {
	series, err := ExtractSeries(table, model.Target)
	if err != nil {
		return nil, err
	}
	return FilterSeries(model, series.Values), nil
}

// FilterSeries returns filtered probabilities over values using the model's parameters
func FilterSeries(model *regime.FittedRegimeModel, values []float64) [][]float64 {
	par := paramsOf(model)
	if len(values) <= par.p {
		return nil
	}
	fr := filter(par, newDesign(values, par.p))
	if math.IsInf(fr.ll, -1) {
		// a zero-probability or non-finite observation stops the filter; rows without a
		// finite positive mass from there on are uniform
		for t := range fr.filtered {
			if s := sum(fr.filtered[t]); math.Abs(s-1) > 1e-9 || math.IsNaN(s) {
				normalize(fr.filtered[t])
			}
		}
	}
	return backfill(fr.filtered, par.p)
}

// SmoothSeries returns smoothed probabilities over values using the model's parameters
func SmoothSeries(model *regime.FittedRegimeModel, values []float64) [][]float64 {
	par := paramsOf(model)
	if len(values) <= par.p {
		return nil
	}
	fr := filter(par, newDesign(values, par.p))
	if math.IsInf(fr.ll, -1) {
		return FilterSeries(model, values)
	}
	smoothed, _ := smooth(par, fr)
	return backfill(smoothed, par.p)
}

// OneStepForecasts returns E[y_t | y_1..t-1] for t = p..n-1 aligned to values; the first
// p entries are NaN
func OneStepForecasts(model *regime.FittedRegimeModel, values []float64) []float64 {
	par := paramsOf(model)
	out := make([]float64, len(values))
	for i := range out {
		out[i] = math.NaN()
	}
	if len(values) <= par.p {
		return out
	}
	d := newDesign(values, par.p)
	fr := filter(par, d)
	for t := 0; t < d.len(); t++ {
		pred := fr.predicted[t]
		if sum(pred) == 0 {
			continue
		}
		yhat := par.ar(d.x[t])
		for j := 0; j < par.k; j++ {
			yhat += pred[j] * par.mu[j]
		}
		out[t+par.p] = yhat
	}
	return out
}

// StandardizedResiduals returns (y_t - E[y_t | smoothed state]) / sd_t for t >= p
func StandardizedResiduals(model *regime.FittedRegimeModel) []float64 {
	par := paramsOf(model)
	d := newDesign(model.Series, par.p)
	out := make([]float64, 0, d.len())
	for t := 0; t < d.len(); t++ {
		probs := model.Smoothed[t+par.p]
		mean, variance := par.ar(d.x[t]), 0.0
		for j := 0; j < par.k; j++ {
			mean += probs[j] * par.mu[j]
			variance += probs[j] * par.sigma2[j]
		}
		if variance <= 0 {
			continue
		}
		out = append(out, (d.y[t]-mean)/math.Sqrt(variance))
	}
	return out
}

// Propagate advances a regime distribution h steps through the transition matrix
func Propagate(model *regime.FittedRegimeModel, dist []float64, h int) []float64 {
	cur := append([]float64(nil), dist...)
	next := make([]float64, len(cur))
	for step := 0; step < h; step++ {
		for j := range next {
			next[j] = 0
			for i := range cur {
				next[j] += cur[i] * model.Transition[i][j]
			}
		}
		cur, next = next, cur
	}
	return cur
}

func sum(v []float64) float64 {
	s := 0.0
	for _, x := range v {
		s += x
	}
	return s
}
