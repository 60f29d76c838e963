// Package switching fits Markov-switching autoregressions with regime-dependent mean and
// variance by expectation maximization, searching over the number of regimes.
package switching

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"

	"goregime/domain/core"
	"goregime/domain/regime"
	"goregime/domain/timeseries"
	"goregime/internal"
	"goregime/internal/config"

	"golang.org/x/sync/errgroup"
	"gonum.org/v1/gonum/stat"
)

// bicTieTolerance treats two BIC values closer than this as equal
const bicTieTolerance = 1e-9

// Model searches k = 2..MaxRegimes and keeps the converged fit with the lowest BIC
type Model struct {
	cfg    config.PipelineConfig
	logger *internal.Logger
}

// New creates a model search from the pipeline configuration
func New(cfg config.PipelineConfig, logger *internal.Logger) *Model {
	if logger == nil {
		logger = internal.DefaultLogger
	}
	return &Model{cfg: cfg, logger: logger.With("switching")}
}

// AROrder is the autoregressive order every candidate uses
func (m *Model) AROrder() int { return m.cfg.AROrder }

// Fit extracts the target series from a clean table and selects the best regime count
func (m *Model) Fit(ctx context.Context, table *timeseries.Table) (*regime.FittedRegimeModel, error) {
	series, err := ExtractSeries(table, m.cfg.TargetColumn)
	if err != nil {
		return nil, err
	}
	return m.FitSeries(ctx, series)
}

// FitSeries runs the candidate search on an extracted series
func (m *Model) FitSeries(ctx context.Context, series Series) (*regime.FittedRegimeModel, error) {
	if len(series.Values) < config.MinObservations {
		return nil, core.NewInsufficientDataError(len(series.Values), config.MinObservations)
	}
	if m.cfg.FitTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeoutCause(ctx, m.cfg.FitTimeout, errFitTimeout)
		defer cancel()
	}

	maxK := m.cfg.MaxRegimes
	if maxK < 2 {
		maxK = 2
	}
	slots := make([]*candidate, maxK-1)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(maxK - 1)
	for k := 2; k <= maxK; k++ {
		k := k
		g.Go(func() error {
			c, err := m.fitCandidate(gctx, series, k)
			if err != nil {
				return err
			}
			slots[k-2] = c
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	best, candidates, reasons := selectCandidate(slots)
	if best == nil {
		m.logger.Warn("no candidate converged for %s (%s)", series.Name, strings.Join(reasons, "; "))
		if stat.Variance(series.Values, nil) < minVariance {
			return nil, fmt.Errorf("%w: %w", core.ErrNoConvergence, core.ErrDegenerateSeries)
		}
		return nil, fmt.Errorf("%w: %s", core.ErrNoConvergence, strings.Join(reasons, "; "))
	}

	model := best.model
	model.Candidates = candidates
	m.logger.Info("selected %d regimes for %s (BIC %.3f, %d iterations)",
		model.NumRegimes, series.Name, model.Metrics.BIC, model.Metrics.Iterations)
	return model, nil
}

// FitK fits exactly k regimes. A non-converged fit is returned as an error wrapping
// core.ErrNoConvergence.
func (m *Model) FitK(ctx context.Context, series Series, k int) (*regime.FittedRegimeModel, error) {
	if len(series.Values) < config.MinObservations {
		return nil, core.NewInsufficientDataError(len(series.Values), config.MinObservations)
	}
	c, err := m.fitCandidate(ctx, series, k)
	if err != nil {
		return nil, err
	}
	if !c.summary.Converged {
		return nil, fmt.Errorf("%w: k=%d: %s", core.ErrNoConvergence, k, c.summary.Reason)
	}
	c.model.Candidates = []regime.CandidateFit{c.summary}
	return c.model, nil
}

// selectCandidate returns the converged candidate with the lowest BIC, the summaries of
// every candidate in k order and the reasons the others failed. Ties keep the smaller k.
func selectCandidate(slots []*candidate) (*candidate, []regime.CandidateFit, []string) {
	candidates := make([]regime.CandidateFit, 0, len(slots))
	var best *candidate
	var reasons []string
	for _, c := range slots {
		candidates = append(candidates, c.summary)
		if !c.summary.Converged {
			reasons = append(reasons, fmt.Sprintf("k=%d: %s", c.summary.NumRegimes, c.summary.Reason))
			continue
		}
		if best == nil || c.summary.BIC < best.summary.BIC-bicTieTolerance {
			best = c
		}
	}
	return best, candidates, reasons
}

type candidate struct {
	summary regime.CandidateFit
	model   *regime.FittedRegimeModel
}

// fitCandidate never fails on numerical trouble: degeneracy and the fit timeout are
// reported as a non-converged summary. Only cancellation by the caller is returned as an error.
func (m *Model) fitCandidate(ctx context.Context, series Series, k int) (*candidate, error) {
	p := m.cfg.AROrder
	c := &candidate{summary: regime.CandidateFit{NumRegimes: k}}
	if len(series.Values)-p < 2*k {
		c.summary.Reason = "too few observations for regime count"
		return c, nil
	}
	if stat.Variance(series.Values, nil) < minVariance {
		c.summary.Reason = core.ErrDegenerateSeries.Error()
		return c, nil
	}

	d := newDesign(series.Values, p)
	par := initialParams(d, k, p)

	prev := math.Inf(-1)
	var fr filterResult
	var smoothed [][]float64
	converged := false
	iter := 0
	for iter = 1; iter <= m.cfg.MaxIterations; iter++ {
		if err := ctx.Err(); err != nil {
			if !errors.Is(context.Cause(ctx), errFitTimeout) {
				return nil, err
			}
			c.summary.Reason = errFitTimeout.Error()
			iter--
			break
		}
		fr = filter(par, d)
		if math.IsInf(fr.ll, 0) || math.IsNaN(fr.ll) {
			c.summary.Reason = errNonFinite.Error()
			break
		}
		var joint [][]float64
		smoothed, joint = smooth(par, fr)
		if math.Abs(fr.ll-prev) < m.cfg.Tolerance {
			converged = true
			break
		}
		prev = fr.ll
		if err := par.maximize(d, smoothed, joint); err != nil {
			c.summary.Reason = err.Error()
			break
		}
	}
	if iter > m.cfg.MaxIterations {
		iter = m.cfg.MaxIterations
		c.summary.Reason = errIterationCap.Error()
	}
	c.summary.Iterations = iter
	c.summary.LogLikelihood = fr.ll
	if !converged {
		m.logger.Debug("k=%d did not converge: %s", k, c.summary.Reason)
		return c, nil
	}

	perm := ascendingOrder(par.mu)
	par.reorder(perm)
	filtered := permuteRows(fr.filtered, perm)
	smoothed = permuteRows(smoothed, perm)

	model := buildModel(series, par, filtered, smoothed, fr.ll, iter)
	c.model = model
	c.summary.Converged = true
	c.summary.AIC = model.Metrics.AIC
	c.summary.BIC = model.Metrics.BIC
	return c, nil
}

// NumParams counts k means, k variances, p AR coefficients and k(k-1) free transition probabilities
func NumParams(k, p int) int {
	return 2*k + p + k*(k-1)
}

// InformationCriteria returns AIC, BIC and HQIC for a log-likelihood
func InformationCriteria(ll float64, params, nobs int) (aic, bic, hqic float64) {
	q, n := float64(params), float64(nobs)
	aic = 2*q - 2*ll
	bic = q*math.Log(n) - 2*ll
	hqic = 2*q*math.Log(math.Log(n)) - 2*ll
	return aic, bic, hqic
}

func buildModel(series Series, par *params, filtered, smoothed [][]float64, ll float64, iter int) *regime.FittedRegimeModel {
	n, p, k := len(series.Values), par.p, par.k
	q := NumParams(k, p)
	aic, bic, hqic := InformationCriteria(ll, q, n-p)

	model := &regime.FittedRegimeModel{
		NumRegimes:     k,
		AROrder:        p,
		Target:         series.Name,
		Means:          par.mu,
		Variances:      par.sigma2,
		ARCoefficients: par.phi,
		Transition:     par.trans,
		InitialProbs:   par.init,
		Series:         append([]float64(nil), series.Values...),
		Index:          series.Index,
		Smoothed:       backfill(smoothed, p),
		Filtered:       backfill(filtered, p),
		Metrics: regime.FitMetrics{
			NumRegimes:      k,
			AIC:             aic,
			BIC:             bic,
			HQIC:            hqic,
			LogLikelihood:   ll,
			Converged:       true,
			Iterations:      iter,
			NumObservations: n - p,
			NumParams:       q,
		},
	}
	model.Summaries = Summaries(model)
	return model
}

// backfill prepends p copies of the first row so probabilities cover every observation
func backfill(rows [][]float64, p int) [][]float64 {
	out := make([][]float64, 0, len(rows)+p)
	for i := 0; i < p; i++ {
		out = append(out, append([]float64(nil), rows[0]...))
	}
	return append(out, rows...)
}

// Summaries computes per-regime statistics over the observations whose most likely regime it is
func Summaries(model *regime.FittedRegimeModel) []regime.RegimeSummary {
	assign := model.Assignments()
	out := make([]regime.RegimeSummary, model.NumRegimes)
	for j := range out {
		var vals []float64
		for t, a := range assign {
			if a == j && t < len(model.Series) {
				vals = append(vals, model.Series[t])
			}
		}
		s := regime.RegimeSummary{Regime: j, Duration: len(vals)}
		if len(assign) > 0 {
			s.Frequency = float64(len(vals)) / float64(len(assign))
		}
		switch {
		case len(vals) > 1:
			s.Mean, s.Std = stat.MeanStdDev(vals, nil)
		case len(vals) == 1:
			s.Mean = vals[0]
		}
		out[j] = s
	}
	return out
}
