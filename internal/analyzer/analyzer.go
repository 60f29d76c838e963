// Package analyzer orchestrates one regime analysis: preprocess, fit, validate,
// characterize and aggregate, falling back to a defined result when a stage fails.
package analyzer

import (
	"context"
	"fmt"
	"time"

	"goregime/domain/core"
	"goregime/domain/regime"
	"goregime/domain/timeseries"
	"goregime/internal"
	"goregime/internal/characterize"
	"goregime/internal/config"
	"goregime/internal/errors"
	"goregime/internal/preprocess"
	"goregime/internal/switching"
	"goregime/internal/validation"
	"goregime/ports"
)

// Stage names reported in fallbacks, logs and metrics
const (
	StagePreprocess   = "preprocess"
	StageFit          = "fit"
	StageValidate     = "validate"
	StageCharacterize = "characterize"
	StageAggregate    = "aggregate"
	StageForecast     = "forecast"
)

// StageObserver receives stage timings and fallbacks
type StageObserver interface {
	ObserveStage(stage string, elapsed time.Duration, err error)
	ObserveFallback(stage string)
}

type noopObserver struct{}

func (noopObserver) ObserveStage(string, time.Duration, error) {}
func (noopObserver) ObserveFallback(string)                    {}

// Analyzer runs the pipeline for one request at a time per call; it holds no per-request state
// besides the fitted-model cache
type Analyzer struct {
	cfg           config.PipelineConfig
	preprocessor  ports.Preprocessor
	model         ports.RegimeModel
	validator     ports.Validator
	characterizer ports.Characterizer
	models        *ModelCache
	observer      StageObserver
	logger        *internal.Logger
}

// Option customizes an Analyzer
type Option func(*Analyzer)

func WithPreprocessor(p ports.Preprocessor) Option { return func(a *Analyzer) { a.preprocessor = p } }
func WithModel(m ports.RegimeModel) Option         { return func(a *Analyzer) { a.model = m } }
func WithValidator(v ports.Validator) Option       { return func(a *Analyzer) { a.validator = v } }
func WithCharacterizer(c ports.Characterizer) Option {
	return func(a *Analyzer) { a.characterizer = c }
}
func WithModelCache(c *ModelCache) Option { return func(a *Analyzer) { a.models = c } }
func WithObserver(o StageObserver) Option { return func(a *Analyzer) { a.observer = o } }

// New builds an analyzer with the default components for cfg
func New(cfg config.PipelineConfig, logger *internal.Logger, opts ...Option) (*Analyzer, error) {
	if err := config.ValidatePipeline(cfg); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = internal.DefaultLogger
	}
	a := &Analyzer{cfg: cfg, logger: logger.With("analyzer"), observer: noopObserver{}}
	for _, opt := range opts {
		opt(a)
	}

	if a.preprocessor == nil {
		p, err := preprocess.New(cfg, logger)
		if err != nil {
			return nil, errors.ConfigInvalid(err.Error())
		}
		a.preprocessor = p
	}
	fitter := switching.New(cfg, logger)
	if a.model == nil {
		a.model = fitter
	}
	if a.validator == nil {
		a.validator = validation.New(cfg, fitter, logger)
	}
	if a.characterizer == nil {
		a.characterizer = characterize.New(cfg, logger)
	}
	if a.models == nil {
		a.models = NewModelCache(time.Hour, defaultModelCacheEntries)
	}
	return a, nil
}

// Fingerprint identifies (data, country, pipeline config) for caching
func Fingerprint(table *timeseries.Table, country string, cfg config.PipelineConfig) core.Fingerprint {
	in := core.FingerprintInput{Country: country, Config: cfg.FingerprintMap()}
	if table != nil {
		in.Timestamps = table.IndexUnix()
		in.Columns = table.Values
	}
	return core.ComputeFingerprint(in)
}

// fitted is the output of the fit and characterize stages
type fitted struct {
	clean *timeseries.Table
	model *regime.FittedRegimeModel
	char  *regime.Characterization
}

// AnalyzeRegimes runs the full pipeline. Input errors are returned immediately; any other
// stage failure yields the fallback result with a nil error.
func (a *Analyzer) AnalyzeRegimes(ctx context.Context, table *timeseries.Table, country string) (*regime.RegimeAnalysisResult, error) {
	runID := core.NewRunID()
	quality := a.preprocessor.ValidateQuality(table)

	var clean *timeseries.Table
	if err := a.stage(StagePreprocess, func() (err error) {
		clean, err = a.preprocessor.Preprocess(table)
		return err
	}); err != nil {
		return a.fail(runID, country, quality, StagePreprocess, err)
	}

	var model *regime.FittedRegimeModel
	if err := a.stage(StageFit, func() (err error) {
		model, err = a.model.Fit(ctx, clean)
		return err
	}); err != nil {
		return a.fail(runID, country, quality, StageFit, err)
	}

	var validationResult regime.ModelValidationResult
	if err := a.stage(StageValidate, func() error {
		validationResult = a.validator.Validate(ctx, model)
		return nil
	}); err != nil {
		return a.fail(runID, country, quality, StageValidate, err)
	}

	var char *regime.Characterization
	if err := a.stage(StageCharacterize, func() (err error) {
		char, err = a.characterizer.CharacterizeRegimes(model, clean)
		return err
	}); err != nil {
		return a.fail(runID, country, quality, StageCharacterize, err)
	}

	var result *regime.RegimeAnalysisResult
	if err := a.stage(StageAggregate, func() (err error) {
		result, err = a.aggregate(model, validationResult, char)
		return err
	}); err != nil {
		return a.fail(runID, country, quality, StageAggregate, err)
	}

	a.models.put(Fingerprint(table, "", a.cfg).String(), &fitted{clean: clean, model: model, char: char})

	result.RunID = runID
	result.Country = country
	result.DataQuality = quality
	result.Timestamp = core.Now()
	a.logger.Info("run %s: %s regime with confidence %.2f (%d regimes, valid=%t)",
		runID, result.CurrentRegime, result.Confidence, result.NumRegimes, result.Validation.IsValid)
	return result, nil
}

// stage times fn, recovering a panic into an error
func (a *Analyzer) stage(name string, fn func() error) (err error) {
	start := time.Now()
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%s stage panicked: %v", name, r)
		}
		a.observer.ObserveStage(name, time.Since(start), err)
	}()
	return fn()
}

// fail returns input errors unchanged in meaning and converts everything else to the fallback
func (a *Analyzer) fail(runID core.RunID, country string, quality regime.DataQualityReport, stage string, err error) (*regime.RegimeAnalysisResult, error) {
	if core.IsInputError(err) {
		a.logger.Warn("run %s rejected at %s: %v", runID, stage, err)
		return nil, errors.InputError(err)
	}
	if stage == StageFit && core.IsConvergenceError(err) {
		err = errors.ConvergenceFailure(err)
	}
	a.logger.Warn("run %s fell back at %s: %v", runID, stage, err)
	a.observer.ObserveFallback(stage)
	return regime.FallbackResult(runID, country, quality, stage, err), nil
}

// aggregate derives the current regime, regime probabilities, transition matrix and confidence
func (a *Analyzer) aggregate(model *regime.FittedRegimeModel, v regime.ModelValidationResult, char *regime.Characterization) (*regime.RegimeAnalysisResult, error) {
	latest := model.LatestProbabilities()
	if len(latest) != model.NumRegimes {
		return nil, fmt.Errorf("model has %d latest probabilities for %d regimes", len(latest), model.NumRegimes)
	}

	current := argMax(latest)
	probs := probabilitiesByName(latest, char)

	transitions := TransitionMatrixFor(model, char)
	if err := transitions.Validate(); err != nil {
		return nil, err
	}

	terms := ConfidenceTerms{LatestProbability: &latest[current]}
	validity := 0.0
	if v.IsValid {
		validity = validConfidence
	}
	terms.Validation = &validity
	if mean, ok := char.MeanConfidence(); ok {
		terms.Characterization = &mean
	}
	convergence := 0.0
	if model.Metrics.Converged {
		convergence = convergedConfidence
	}
	terms.Convergence = &convergence

	return &regime.RegimeAnalysisResult{
		CurrentRegime:       char.NameOf(current),
		RegimeProbabilities: probs,
		Characteristics:     char.Regimes,
		TransitionMatrix:    transitions,
		Validation:          v,
		Confidence:          OverallConfidence(terms),
		NumRegimes:          model.NumRegimes,
	}, nil
}

// probabilitiesByName sums cluster probabilities per regime name; every named regime is present
func probabilitiesByName(clusterProbs []float64, char *regime.Characterization) map[regime.RegimeType]float64 {
	out := make(map[regime.RegimeType]float64, 5)
	for _, r := range regime.NamedRegimes() {
		out[r] = 0
	}
	for k, p := range clusterProbs {
		out[char.NameOf(k)] += p
	}
	return out
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
