package validation

import (
	"context"
	"errors"
	"fmt"
	"math"

	"goregime/domain/regime"
	"goregime/internal/switching"
)

// windowScore is the out-of-sample performance of one fit/evaluate split
type windowScore struct {
	accuracy float64
	rmse     float64
}

// ValidateOutOfSample refits the model on past data only and scores regime identification
// on the following periods against the full-sample assignments, plus one-step forecast
// RMSE, under rolling window, walk-forward and temporal cross-validation protocols
func (v *Validator) ValidateOutOfSample(ctx context.Context, model *regime.FittedRegimeModel) regime.OutOfSampleResult {
	result := regime.OutOfSampleResult{
		Methods: make(map[string]regime.OutOfSampleMethod, 3),
		Quality: regime.QualityLabelPoor,
	}
	if model == nil {
		return result
	}

	result.Methods[MethodRollingWindow] = v.runMethod(ctx, model, MethodRollingWindow, rollingSplits)
	result.Methods[MethodWalkForward] = v.runMethod(ctx, model, MethodWalkForward, walkForwardSplits)
	result.Methods[MethodTemporalCV] = v.runMethod(ctx, model, MethodTemporalCV, temporalCVSplits)

	accSum, rmseSum := 0.0, 0.0
	for _, m := range result.Methods {
		if m.Error != "" {
			continue
		}
		result.MethodsOK++
		accSum += m.Accuracy
		rmseSum += m.RMSE
	}
	if result.MethodsOK > 0 {
		result.MeanAccuracy = accSum / float64(result.MethodsOK)
		result.MeanRMSE = rmseSum / float64(result.MethodsOK)
	}
	if result.MethodsOK > 0 && result.MeanAccuracy > goodAccuracyThreshold {
		result.Quality = regime.QualityLabelGood
	}
	return result
}

// split is a training range [trainFrom, trainTo) evaluated on [trainTo, testTo)
type split struct {
	trainFrom, trainTo, testTo int
}

type splitter func(n int) ([]split, error)

func rollingSplits(n int) ([]split, error) {
	window := n / 2
	testLen := n / 10
	if testLen < 5 {
		testLen = 5
	}
	span := n - window - testLen
	if window < minObsPerFold || span < 0 {
		return nil, errors.New("too few observations for rolling windows")
	}
	windows := span/testLen + 1
	if windows > maxRollingWindows {
		windows = maxRollingWindows
	}
	splits := make([]split, windows)
	for i := range splits {
		start := 0
		if windows > 1 {
			start = i * span / (windows - 1)
		}
		splits[i] = split{trainFrom: start, trainTo: start + window, testTo: start + window + testLen}
	}
	return splits, nil
}

func walkForwardSplits(n int) ([]split, error) {
	cut := int(walkForwardTrainShare * float64(n))
	if cut < minObsPerFold || n-cut < 1 {
		return nil, errors.New("too few observations for walk-forward split")
	}
	return []split{{trainFrom: 0, trainTo: cut, testTo: n}}, nil
}

// temporalCVSplits trains on all folds before each evaluated fold
func temporalCVSplits(n int) ([]split, error) {
	folds := n / minObsPerFold
	if folds > maxCVFolds {
		folds = maxCVFolds
	}
	if folds < 2 {
		return nil, fmt.Errorf("temporal cross-validation needs at least %d observations", 2*minObsPerFold)
	}
	size := n / folds
	splits := make([]split, 0, folds-1)
	for i := 1; i < folds; i++ {
		end := (i + 1) * size
		if i == folds-1 {
			end = n
		}
		splits = append(splits, split{trainFrom: 0, trainTo: i * size, testTo: end})
	}
	return splits, nil
}

func (v *Validator) runMethod(ctx context.Context, model *regime.FittedRegimeModel, name string, splitFn splitter) regime.OutOfSampleMethod {
	out := regime.OutOfSampleMethod{Method: name}
	if v.fitter == nil {
		out.Error = "no fitter for resampling refits"
		return out
	}
	splits, err := splitFn(len(model.Series))
	if err != nil {
		out.Error = err.Error()
		return out
	}

	full := model.Assignments()
	var accSum, rmseSum float64
	var lastErr error
	for _, s := range splits {
		score, err := v.evaluate(ctx, model, full, s)
		if err != nil {
			lastErr = err
			v.logger.Debug("%s split %v skipped: %v", name, s, err)
			continue
		}
		out.Windows++
		accSum += score.accuracy
		rmseSum += score.rmse
	}
	if out.Windows == 0 {
		if lastErr == nil {
			lastErr = errors.New("no split evaluated")
		}
		out.Error = lastErr.Error()
		return out
	}
	out.Accuracy = accSum / float64(out.Windows)
	out.RMSE = rmseSum / float64(out.Windows)
	return out
}

// evaluate fits on the training range, then filters through the test range without look-ahead
func (v *Validator) evaluate(ctx context.Context, model *regime.FittedRegimeModel, full []int, s split) (score windowScore, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("evaluation panicked: %v", r)
		}
	}()

	trained, err := v.fitter.FitK(ctx, seriesOf(model, s.trainFrom, s.trainTo), model.NumRegimes)
	if err != nil {
		return windowScore{}, describeFit(model.NumRegimes, err)
	}

	values := model.Series[s.trainFrom:s.testTo]
	probs := switching.FilterSeries(trained, values)
	forecasts := switching.OneStepForecasts(trained, values)
	if len(probs) != len(values) {
		return windowScore{}, errors.New("filter produced no probabilities")
	}

	correct, total, sse, forecastN := 0, 0, 0.0, 0
	for t := s.trainTo - s.trainFrom; t < len(values); t++ {
		if argMax(probs[t]) == full[s.trainFrom+t] {
			correct++
		}
		total++
		if !math.IsNaN(forecasts[t]) {
			e := forecasts[t] - values[t]
			sse += e * e
			forecastN++
		}
	}
	if total == 0 || forecastN == 0 {
		return windowScore{}, errors.New("empty test range")
	}
	return windowScore{
		accuracy: float64(correct) / float64(total),
		rmse:     math.Sqrt(sse / float64(forecastN)),
	}, nil
}
