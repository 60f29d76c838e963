// Package validation runs econometric diagnostics on a fitted regime-switching model.
// No operation returns an error: a test that cannot be computed is recorded inline with
// its reason and counts as a failed check.
package validation

import (
	"context"
	"errors"
	"fmt"

	"goregime/domain/regime"
	"goregime/internal"
	"goregime/internal/config"
	"goregime/internal/switching"

	"golang.org/x/sync/errgroup"
)

var errNoModel = errors.New("no fitted model")

// Fitter refits a fixed number of regimes on a sub-series
type Fitter interface {
	FitK(ctx context.Context, series switching.Series, k int) (*regime.FittedRegimeModel, error)
}

// Validator holds the settings and refitting capability shared by all diagnostics
type Validator struct {
	cfg    config.PipelineConfig
	fitter Fitter
	logger *internal.Logger
}

// New creates a validator; fitter is used for lower-order, sub-sample and resampling refits
func New(cfg config.PipelineConfig, fitter Fitter, logger *internal.Logger) *Validator {
	if logger == nil {
		logger = internal.DefaultLogger
	}
	return &Validator{cfg: cfg, fitter: fitter, logger: logger.With("validation")}
}

// Validate runs the four diagnostic groups concurrently and scores the share of passing checks
func (v *Validator) Validate(ctx context.Context, model *regime.FittedRegimeModel) regime.ModelValidationResult {
	if model == nil {
		return regime.InvalidValidationResult(errNoModel.Error())
	}

	var (
		lin regime.LinearityResult
		num regime.RegimeNumberResult
		oos regime.OutOfSampleResult
		res regime.ResidualResult
	)
	var g errgroup.Group
	g.Go(v.safely("linearity", func() { lin = v.ValidateLinearity(ctx, model) }))
	g.Go(v.safely("regime number", func() { num = v.ValidateRegimeNumber(ctx, model) }))
	g.Go(v.safely("out of sample", func() { oos = v.ValidateOutOfSample(ctx, model) }))
	g.Go(v.safely("residuals", func() { res = v.ValidateResiduals(model) }))
	_ = g.Wait()

	if lin.Tests == nil {
		lin = regime.LinearityResult{Tests: map[string]regime.TestOutcome{}, CombinedPValue: 1,
			SignificanceLevel: v.cfg.SignificanceLevel, Conclusion: regime.ConclusionInconclusive, Error: "linearity validation aborted"}
	}
	if num.Tests == nil {
		num = regime.RegimeNumberResult{SelectedRegimes: model.NumRegimes, Tests: map[string]regime.TestOutcome{},
			InformationCriteria: map[string]float64{}, CandidateBIC: map[int]float64{}, Error: "regime number validation aborted"}
	}
	if oos.Methods == nil {
		oos = regime.OutOfSampleResult{Methods: map[string]regime.OutOfSampleMethod{}, Quality: regime.QualityLabelPoor}
	}
	if res.Tests == nil {
		res = regime.ResidualResult{Tests: map[string]regime.TestOutcome{}, Error: "residual diagnostics aborted"}
	}

	checks := map[string]bool{
		CheckConverged:       model.Metrics.Converged,
		CheckLinearity:       lin.Conclusion == regime.ConclusionNonLinear,
		CheckLikelihoodRatio: passed(num.Tests, CheckLikelihoodRatio),
		CheckInformationCrit: passed(num.Tests, CheckInformationCrit),
		CheckParamStability:  passed(num.Tests, CheckParamStability),
		CheckOutOfSample:     oos.Quality == regime.QualityLabelGood,
		CheckLjungBox:        passed(res.Tests, CheckLjungBox),
		CheckARCH:            passed(res.Tests, CheckARCH),
		CheckDurbinWatson:    passed(res.Tests, CheckDurbinWatson),
	}

	result := regime.NewModelValidationResult(model.Metrics, lin, num, oos, res, checks, v.cfg.ValidityThreshold)
	v.logger.Info("validation score %.2f (%d checks, valid=%t)", result.Score, len(checks), result.IsValid)
	return result
}

func (v *Validator) safely(group string, fn func()) func() error {
	return func() error {
		defer func() {
			if r := recover(); r != nil {
				v.logger.Error("%s validation panicked: %v", group, r)
			}
		}()
		fn()
		return nil
	}
}

func passed(tests map[string]regime.TestOutcome, name string) bool {
	t, ok := tests[name]
	return ok && t.Error == "" && t.Passed
}

func argMax(v []float64) int {
	best := 0
	for i := 1; i < len(v); i++ {
		if v[i] > v[best] {
			best = i
		}
	}
	return best
}

func seriesOf(model *regime.FittedRegimeModel, from, to int) switching.Series {
	s := switching.Series{Name: model.Target, Values: model.Series[from:to]}
	if len(model.Index) == len(model.Series) {
		s.Index = model.Index[from:to]
	}
	return s
}

func describeFit(k int, err error) error {
	return fmt.Errorf("refit with %d regimes failed: %w", k, err)
}
