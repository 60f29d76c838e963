package app

import (
	"context"
	"fmt"
	"time"

	"goregime/domain/core"
	"goregime/domain/regime"
	"goregime/domain/timeseries"
	"goregime/internal"
	"goregime/internal/analyzer"
	"goregime/internal/cache"
	"goregime/internal/config"
	"goregime/internal/errors"
	"goregime/internal/metrics"
	"goregime/internal/report"
	"goregime/ports"

	"golang.org/x/sync/singleflight"
)

// RegimeService is the entry point used by the CLI and the HTTP API. It consults the result
// cache, collapses concurrent identical requests, runs the analyzer and records run summaries.
type RegimeService struct {
	pipeline config.PipelineConfig
	ttl      time.Duration
	analyzer *analyzer.Analyzer
	cache    ports.ResultCache
	runs     ports.RunRepository
	metrics  *metrics.Registry
	group    singleflight.Group
	logger   *internal.Logger
}

// ServiceOption customizes a RegimeService
type ServiceOption func(*RegimeService)

func WithCache(c ports.ResultCache) ServiceOption { return func(s *RegimeService) { s.cache = c } }

func WithRunRepository(r ports.RunRepository) ServiceOption {
	return func(s *RegimeService) { s.runs = r }
}

func WithMetrics(m *metrics.Registry) ServiceOption { return func(s *RegimeService) { s.metrics = m } }

// ReportResult is a rendered analysis with its forecast
type ReportResult struct {
	Result   *regime.RegimeAnalysisResult `json:"result"`
	Forecast []regime.ForecastEntry       `json:"forecast"`
	Markdown string                       `json:"markdown"`
	HTML     []byte                       `json:"-"`
}

// NewRegimeService builds the analyzer for cfg.Pipeline and wires the optional collaborators
func NewRegimeService(cfg *config.Config, logger *internal.Logger, opts ...ServiceOption) (*RegimeService, error) {
	if logger == nil {
		logger = internal.DefaultLogger
	}
	s := &RegimeService{
		pipeline: cfg.Pipeline,
		ttl:      cfg.Cache.TTL,
		cache:    cache.Nop{},
		logger:   logger.With("regime_service"),
	}
	for _, opt := range opts {
		opt(s)
	}

	var aopts []analyzer.Option
	if s.metrics != nil {
		aopts = append(aopts, analyzer.WithObserver(s.metrics))
	}
	a, err := analyzer.New(cfg.Pipeline, logger, aopts...)
	if err != nil {
		return nil, errors.Wrap(err, "failed to build analyzer")
	}
	s.analyzer = a
	return s, nil
}

// Analyze returns the cached result for (table, country, config) or runs the pipeline
func (s *RegimeService) Analyze(ctx context.Context, table *timeseries.Table, country string) (*regime.RegimeAnalysisResult, error) {
	key := analyzer.Fingerprint(table, country, s.pipeline).String()

	cached, found, err := s.cache.Get(ctx, key)
	s.observeCache(found, err)
	if err != nil {
		s.logger.Warn("result cache lookup failed, recomputing: %v", err)
	}
	if found {
		s.observeOutcome(metrics.OutcomeCached)
		return cached, nil
	}

	v, err, shared := s.group.Do(key, func() (interface{}, error) {
		result, err := s.analyzer.AnalyzeRegimes(ctx, table, country)
		if err != nil {
			return nil, err
		}
		if s.metrics != nil {
			s.metrics.ObserveResult(result)
		}
		s.store(ctx, key, result)
		return result, nil
	})
	if err != nil {
		if core.IsInputError(err) {
			s.observeOutcome(metrics.OutcomeInputError)
		}
		return nil, err
	}
	if shared {
		s.logger.Debug("analysis %s shared between concurrent requests", key)
	}
	return v.(*regime.RegimeAnalysisResult), nil
}

// store caches successful results and records every run; failures are only logged
func (s *RegimeService) store(ctx context.Context, key string, result *regime.RegimeAnalysisResult) {
	if !result.IsFallback {
		if err := s.cache.Set(ctx, key, result, s.ttl); err != nil {
			s.logger.Warn("failed to cache result %s: %v", result.RunID, err)
		}
	}
	if s.runs != nil {
		if err := s.runs.SaveRun(ctx, key, result); err != nil {
			s.logger.Warn("failed to record run %s: %v", result.RunID, err)
		}
	}
}

// Forecast projects regimes horizon periods ahead
func (s *RegimeService) Forecast(ctx context.Context, table *timeseries.Table, horizon int) ([]regime.ForecastEntry, error) {
	return s.analyzer.GetRegimeForecast(ctx, table, horizon)
}

// Report analyzes table and renders the result with a forecast of horizon periods
func (s *RegimeService) Report(ctx context.Context, table *timeseries.Table, country string, horizon int) (*ReportResult, error) {
	result, err := s.Analyze(ctx, table, country)
	if err != nil {
		return nil, err
	}
	var forecast []regime.ForecastEntry
	if horizon > 0 {
		if forecast, err = s.Forecast(ctx, table, horizon); err != nil {
			return nil, err
		}
	}
	return &ReportResult{
		Result:   result,
		Forecast: forecast,
		Markdown: report.Markdown(result, forecast),
		HTML:     report.HTML(result, forecast),
	}, nil
}

// GetRun loads a recorded run
func (s *RegimeService) GetRun(ctx context.Context, id core.RunID) (*ports.RunSummary, error) {
	if s.runs == nil {
		return nil, errors.NotFound(fmt.Sprintf("run %s", id))
	}
	return s.runs.GetRun(ctx, id)
}

// ListRuns lists recorded runs; empty when no run store is configured
func (s *RegimeService) ListRuns(ctx context.Context, filters ports.RunFilters) ([]ports.RunSummary, error) {
	if s.runs == nil {
		return []ports.RunSummary{}, nil
	}
	return s.runs.ListRuns(ctx, filters)
}

func (s *RegimeService) observeCache(hit bool, err error) {
	if s.metrics != nil {
		s.metrics.ObserveCache(hit, err)
	}
}

func (s *RegimeService) observeOutcome(outcome string) {
	if s.metrics != nil {
		s.metrics.ObserveOutcome(outcome)
	}
}
