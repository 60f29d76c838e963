package analyzer

import (
	"context"
	"fmt"
	"math"

	"goregime/domain/core"
	"goregime/domain/regime"
	"goregime/domain/timeseries"
	"goregime/internal/errors"
	"goregime/internal/switching"
)

// forecastDecay discounts confidence per period ahead
const forecastDecay = 0.95

// GetRegimeForecast projects the regime distribution horizon periods ahead through the fitted
// transition matrix. Only an invalid horizon is an error; any other failure yields the flat
// forecast.
func (a *Analyzer) GetRegimeForecast(ctx context.Context, table *timeseries.Table, horizon int) (entries []regime.ForecastEntry, err error) {
	if horizon < 1 {
		return nil, errors.InputError(fmt.Errorf("%w: got %d", core.ErrInvalidHorizon, horizon))
	}

	var f *fitted
	err = a.stage(StageForecast, func() (ferr error) {
		f, ferr = a.fittedFor(ctx, table)
		if ferr != nil {
			return ferr
		}
		entries, ferr = forecast(f, horizon)
		return ferr
	})
	if err != nil {
		a.logger.Warn("forecast fell back to flat output: %v", err)
		a.observer.ObserveFallback(StageForecast)
		return regime.FlatForecast(horizon), nil
	}
	return entries, nil
}

// fittedFor returns the cached fit for table or runs preprocess, fit and characterize
func (a *Analyzer) fittedFor(ctx context.Context, table *timeseries.Table) (*fitted, error) {
	key := Fingerprint(table, "", a.cfg).String()
	if f, ok := a.models.get(key); ok {
		a.logger.Debug("forecast reusing fitted model %s", key)
		return f, nil
	}

	clean, err := a.preprocessor.Preprocess(table)
	if err != nil {
		return nil, err
	}
	model, err := a.model.Fit(ctx, clean)
	if err != nil {
		return nil, err
	}
	char, err := a.characterizer.CharacterizeRegimes(model, clean)
	if err != nil {
		return nil, err
	}
	f := &fitted{clean: clean, model: model, char: char}
	a.models.put(key, f)
	return f, nil
}

func forecast(f *fitted, horizon int) ([]regime.ForecastEntry, error) {
	latest := f.model.LatestProbabilities()
	if len(latest) != f.model.NumRegimes {
		return nil, fmt.Errorf("model has no filtered state for %d regimes", f.model.NumRegimes)
	}

	out := make([]regime.ForecastEntry, horizon)
	dist := latest
	for h := 1; h <= horizon; h++ {
		dist = switching.Propagate(f.model, dist, 1)
		byName := probabilitiesByName(dist, f.char)
		name, p := mostLikely(byName)
		if math.IsNaN(p) {
			return nil, fmt.Errorf("forecast probability for month %d is not finite", h)
		}
		out[h-1] = regime.ForecastEntry{
			Month:       h,
			Regime:      name,
			Probability: p,
			Confidence:  p * math.Pow(forecastDecay, float64(h)),
		}
	}
	return out, nil
}

// mostLikely picks the highest probability regime, breaking ties by canonical order
func mostLikely(probs map[regime.RegimeType]float64) (regime.RegimeType, float64) {
	best, bestP := regime.Unknown, -1.0
	for _, r := range regime.AllRegimes() {
		p, ok := probs[r]
		if ok && p > bestP {
			best, bestP = r, p
		}
	}
	return best, bestP
}
