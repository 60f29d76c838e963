package validation

import (
	"context"
	"errors"
	"math"

	"goregime/domain/regime"
	"goregime/internal/switching"

	"gonum.org/v1/gonum/stat/distuv"
)

// lowerFit summarizes the k-1 regime alternative
type lowerFit struct {
	regimes int
	ll      float64
	bic     float64
	params  int
}

// ValidateRegimeNumber compares the selected k with k-1 regimes, reports information
// criteria, checks parameter stability on a leading sub-sample and recommends a regime
// count from the candidate BICs
func (v *Validator) ValidateRegimeNumber(ctx context.Context, model *regime.FittedRegimeModel) regime.RegimeNumberResult {
	result := regime.RegimeNumberResult{
		Tests:               make(map[string]regime.TestOutcome, 3),
		InformationCriteria: map[string]float64{},
		CandidateBIC:        map[int]float64{},
	}
	if model == nil {
		result.Error = errNoModel.Error()
		return result
	}
	result.SelectedRegimes = model.NumRegimes
	result.InformationCriteria = map[string]float64{
		"aic":  model.Metrics.AIC,
		"bic":  model.Metrics.BIC,
		"hqic": model.Metrics.HQIC,
	}
	result.CandidateBIC = model.CandidateBIC()
	result.Recommendation = recommend(result.CandidateBIC, model.NumRegimes)

	lower, lowerErr := v.lowerFit(ctx, model)
	result.Tests[CheckLikelihoodRatio] = guard(CheckLikelihoodRatio, func() (regime.TestOutcome, error) {
		if lowerErr != nil {
			return regime.TestOutcome{}, lowerErr
		}
		lr := math.Max(0, 2*(model.Metrics.LogLikelihood-lower.ll))
		df := float64(model.Metrics.NumParams - lower.params)
		if df <= 0 {
			return regime.TestOutcome{}, errors.New("non-positive degrees of freedom")
		}
		p := distuv.ChiSquared{K: df}.Survival(lr)
		return regime.TestOutcome{
			Statistic: lr,
			PValue:    clampProbability(p),
			Passed:    p <= v.cfg.SignificanceLevel,
			Details:   map[string]float64{"df": df, "alternative_regimes": float64(lower.regimes)},
		}, nil
	})
	result.Tests[CheckInformationCrit] = guard(CheckInformationCrit, func() (regime.TestOutcome, error) {
		if lowerErr != nil {
			return regime.TestOutcome{}, lowerErr
		}
		improvement := lower.bic - model.Metrics.BIC
		return regime.TestOutcome{
			Statistic: improvement,
			Passed:    improvement > 0,
			Details:   map[string]float64{"bic": model.Metrics.BIC, "alternative_bic": lower.bic},
		}, nil
	})
	result.Tests[CheckParamStability] = guard(CheckParamStability, func() (regime.TestOutcome, error) {
		return v.parameterStability(ctx, model)
	})
	return result
}

// lowerFit is the linear AR when k = 2, otherwise the k-1 candidate from the search or a refit
func (v *Validator) lowerFit(ctx context.Context, model *regime.FittedRegimeModel) (lowerFit, error) {
	k := model.NumRegimes - 1
	nobs := model.Metrics.NumObservations
	if k <= linearModelRegimeCount {
		linear, err := switching.FitLinearAR(model.Series, model.AROrder)
		if err != nil {
			return lowerFit{}, err
		}
		_, bic, _ := switching.InformationCriteria(linear.LogLikelihood, linear.NumParams, linear.NumObs)
		return lowerFit{regimes: 1, ll: linear.LogLikelihood, bic: bic, params: linear.NumParams}, nil
	}
	for _, c := range model.Candidates {
		if c.NumRegimes == k && c.Converged {
			return lowerFit{regimes: k, ll: c.LogLikelihood, bic: c.BIC, params: switching.NumParams(k, model.AROrder)}, nil
		}
	}
	if v.fitter == nil {
		return lowerFit{}, errors.New("no fitter for lower-order refit")
	}
	alt, err := v.fitter.FitK(ctx, seriesOf(model, 0, len(model.Series)), k)
	if err != nil {
		return lowerFit{}, describeFit(k, err)
	}
	_, bic, _ := switching.InformationCriteria(alt.Metrics.LogLikelihood, alt.Metrics.NumParams, nobs)
	return lowerFit{regimes: k, ll: alt.Metrics.LogLikelihood, bic: bic, params: alt.Metrics.NumParams}, nil
}

// parameterStability refits k regimes on the leading share of the series and measures how
// many regime assignments and how much of each mean survive
func (v *Validator) parameterStability(ctx context.Context, model *regime.FittedRegimeModel) (regime.TestOutcome, error) {
	if v.fitter == nil {
		return regime.TestOutcome{}, errors.New("no fitter for sub-sample refit")
	}
	m := int(stabilitySampleShare * float64(len(model.Series)))
	if m < minObsPerFold {
		return regime.TestOutcome{}, errors.New("sub-sample too short")
	}
	sub, err := v.fitter.FitK(ctx, seriesOf(model, 0, m), model.NumRegimes)
	if err != nil {
		return regime.TestOutcome{}, describeFit(model.NumRegimes, err)
	}

	full := model.Assignments()
	part := sub.Assignments()
	agree := 0
	for t := 0; t < m; t++ {
		if part[t] == full[t] {
			agree++
		}
	}
	agreement := float64(agree) / float64(m)

	shift := 0.0
	for j := 0; j < model.NumRegimes; j++ {
		sd := math.Sqrt(model.Variances[j])
		if sd > 0 {
			shift = math.Max(shift, math.Abs(sub.Means[j]-model.Means[j])/sd)
		}
	}
	return regime.TestOutcome{
		Statistic:     agreement,
		CriticalValue: minStabilityAgreement,
		Passed:        agreement >= minStabilityAgreement,
		Details:       map[string]float64{"max_mean_shift_sd": shift, "sample_size": float64(m)},
	}, nil
}

// recommend maps candidate BICs to "2", "3" or "4+": more regimes are recommended only when
// they improve BIC by more than bicDecisionThreshold
func recommend(bics map[int]float64, selected int) string {
	b2, ok2 := bics[2]
	if !ok2 {
		return category(selected)
	}
	rec, best := RecommendTwoRegimes, b2
	if b3, ok := bics[3]; ok && best-b3 > bicDecisionThreshold {
		rec, best = RecommendThreeRegimes, b3
	}
	b4, ok4 := math.Inf(1), false
	for k, b := range bics {
		if k >= 4 && b < b4 {
			b4, ok4 = b, true
		}
	}
	if ok4 && best-b4 > bicDecisionThreshold {
		rec = RecommendFourOrMore
	}
	return rec
}

func category(k int) string {
	switch {
	case k <= 2:
		return RecommendTwoRegimes
	case k == 3:
		return RecommendThreeRegimes
	default:
		return RecommendFourOrMore
	}
}
