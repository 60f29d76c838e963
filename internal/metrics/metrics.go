// Package metrics exposes Prometheus instrumentation for the regime pipeline
package metrics

import (
	"net/http"
	"time"

	"goregime/domain/regime"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "goregime"

// Outcomes of one analysis request
const (
	OutcomeSuccess    = "success"
	OutcomeFallback   = "fallback"
	OutcomeInputError = "input_error"
	OutcomeCached     = "cached"
)

// Registry holds the pipeline metrics on its own prometheus registry
type Registry struct {
	reg *prometheus.Registry

	StageDuration   *prometheus.HistogramVec
	Analyses        *prometheus.CounterVec
	Fallbacks       *prometheus.CounterVec
	CacheRequests   *prometheus.CounterVec
	SelectedRegimes prometheus.Histogram
	Confidence      prometheus.Histogram
}

// NewRegistry creates and registers all pipeline metrics
func NewRegistry() *Registry {
	r := &Registry{
		reg: prometheus.NewRegistry(),

		StageDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "stage_duration_seconds",
				Help:      "Duration of each pipeline stage in seconds",
				Buckets:   []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60},
			},
			[]string{"stage", "result"},
		),

		Analyses: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "analyses_total",
				Help:      "Analysis requests by outcome",
			},
			[]string{"outcome"},
		),

		Fallbacks: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "fallbacks_total",
				Help:      "Fallback results by failed stage",
			},
			[]string{"stage"},
		),

		CacheRequests: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "cache_requests_total",
				Help:      "Result cache lookups by result (hit, miss, error)",
			},
			[]string{"result"},
		),

		SelectedRegimes: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "selected_regimes",
				Help:      "Number of regimes selected by the model search",
				Buckets:   prometheus.LinearBuckets(1, 1, 8),
			},
		),

		Confidence: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "confidence",
				Help:      "Overall confidence of non-fallback results",
				Buckets:   prometheus.LinearBuckets(0.1, 0.1, 10),
			},
		),
	}

	r.reg.MustRegister(
		r.StageDuration,
		r.Analyses,
		r.Fallbacks,
		r.CacheRequests,
		r.SelectedRegimes,
		r.Confidence,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return r
}

// ObserveStage records how long a stage took and whether it failed
func (r *Registry) ObserveStage(stage string, elapsed time.Duration, err error) {
	result := "ok"
	if err != nil {
		result = "error"
	}
	r.StageDuration.WithLabelValues(stage, result).Observe(elapsed.Seconds())
}

func (r *Registry) ObserveFallback(stage string) {
	r.Fallbacks.WithLabelValues(stage).Inc()
}

// ObserveResult counts a finished analysis
func (r *Registry) ObserveResult(result *regime.RegimeAnalysisResult) {
	if result.IsFallback {
		r.Analyses.WithLabelValues(OutcomeFallback).Inc()
		return
	}
	r.Analyses.WithLabelValues(OutcomeSuccess).Inc()
	r.SelectedRegimes.Observe(float64(result.NumRegimes))
	r.Confidence.Observe(result.Confidence)
}

func (r *Registry) ObserveOutcome(outcome string) {
	r.Analyses.WithLabelValues(outcome).Inc()
}

// ObserveCache counts a cache lookup as hit, miss or error
func (r *Registry) ObserveCache(hit bool, err error) {
	switch {
	case err != nil:
		r.CacheRequests.WithLabelValues("error").Inc()
	case hit:
		r.CacheRequests.WithLabelValues("hit").Inc()
	default:
		r.CacheRequests.WithLabelValues("miss").Inc()
	}
}

// Handler serves the registry in the Prometheus exposition format
func (r *Registry) Handler() http.Handler {
	return promhttp.HandlerFor(r.reg, promhttp.HandlerOpts{Registry: r.reg})
}

func (r *Registry) Gatherer() prometheus.Gatherer { return r.reg }
