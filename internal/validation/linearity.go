package validation

import (
	"context"
	"errors"
	"math"
	"sort"

	"goregime/domain/regime"
	"goregime/internal/switching"

	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat/distuv"
)

// ValidateLinearity tests the fitted model against a linear autoregression. The combined
// p-value is the minimum over the tests that could be computed.
func (v *Validator) ValidateLinearity(ctx context.Context, model *regime.FittedRegimeModel) regime.LinearityResult {
	result := regime.LinearityResult{
		Tests:             make(map[string]regime.TestOutcome, 3),
		CombinedPValue:    1,
		SignificanceLevel: v.cfg.SignificanceLevel,
		Conclusion:        regime.ConclusionInconclusive,
	}
	if model == nil {
		result.Error = errNoModel.Error()
		return result
	}

	result.Tests[TestDavies] = guard(TestDavies, func() (regime.TestOutcome, error) { return v.daviesTest(model) })
	result.Tests[TestHansen] = guard(TestHansen, func() (regime.TestOutcome, error) { return v.thresholdTest(model) })
	result.Tests[TestWald] = guard(TestWald, func() (regime.TestOutcome, error) { return v.waldEqualMeans(model) })

	computed := 0
	for _, t := range result.Tests {
		if t.Error != "" {
			continue
		}
		computed++
		if t.PValue < result.CombinedPValue {
			result.CombinedPValue = t.PValue
		}
	}
	if computed == 0 {
		result.Error = "no linearity test could be computed"
		return result
	}
	if result.CombinedPValue <= v.cfg.SignificanceLevel {
		result.Conclusion = regime.ConclusionNonLinear
	} else {
		result.Conclusion = regime.ConclusionLinear
	}
	return result
}

// daviesTest bounds the p-value of the likelihood ratio against a linear AR(p), whose
// transition probabilities are unidentified under the null
func (v *Validator) daviesTest(model *regime.FittedRegimeModel) (regime.TestOutcome, error) {
	linear, err := switching.FitLinearAR(model.Series, model.AROrder)
	if err != nil {
		return regime.TestOutcome{}, err
	}
	lr := math.Max(0, 2*(model.Metrics.LogLikelihood-linear.LogLikelihood))
	p := daviesBound(lr, daviesNuisanceDF)
	return regime.TestOutcome{
		Statistic: lr,
		PValue:    p,
		Passed:    p <= v.cfg.SignificanceLevel,
		Details: map[string]float64{
			"switching_log_likelihood": model.Metrics.LogLikelihood,
			"linear_log_likelihood":    linear.LogLikelihood,
		},
	}, nil
}

// daviesBound is the Davies (1987) upper bound on P(sup LR > m) for q nuisance parameters,
// with total variation approximated by 2*sqrt(m)
func daviesBound(m float64, q int) float64 {
	if m <= 0 {
		return 1
	}
	fq := float64(q)
	chi := distuv.ChiSquared{K: fq}.Survival(m)
	variation := 2 * math.Sqrt(m)
	tail := variation * math.Pow(m, (fq-1)/2) * math.Exp(-m/2) * math.Pow(2, -fq/2) / math.Gamma(fq/2)
	return clampProbability(chi + tail)
}

// thresholdTest is a sup-F test of a two-regime threshold autoregression split on y_t-1
// against the linear model
func (v *Validator) thresholdTest(model *regime.FittedRegimeModel) (regime.TestOutcome, error) {
	y := model.Series
	p := model.AROrder
	start := p
	if start < 1 {
		start = 1
	}
	n := len(y) - start
	k := p + 1
	if n < 2*k+10 {
		return regime.TestOutcome{}, errors.New("too few observations for threshold search")
	}

	rows := make([][]float64, n)
	thresholdVar := make([]float64, n)
	dep := make([]float64, n)
	for t := start; t < len(y); t++ {
		row := make([]float64, k)
		row[0] = 1
		for i := 0; i < p; i++ {
			row[i+1] = y[t-1-i]
		}
		rows[t-start] = row
		thresholdVar[t-start] = y[t-1]
		dep[t-start] = y[t]
	}

	_, ssr0, err := ols(rows, dep)
	if err != nil {
		return regime.TestOutcome{}, err
	}

	candidates := append([]float64(nil), thresholdVar...)
	sort.Float64s(candidates)
	lo := int(math.Ceil(thresholdTrim * float64(n)))
	hi := int(math.Floor((1 - thresholdTrim) * float64(n)))

	best, bestGamma := math.Inf(1), math.NaN()
	for c := lo; c < hi; c++ {
		gamma := candidates[c]
		if c > lo && gamma == candidates[c-1] {
			continue
		}
		split := make([][]float64, n)
		below := 0
		for i, row := range rows {
			s := make([]float64, 2*k)
			if thresholdVar[i] <= gamma {
				copy(s[:k], row)
				below++
			} else {
				copy(s[k:], row)
			}
			split[i] = s
		}
		if below < k+1 || n-below < k+1 {
			continue
		}
		_, ssr1, err := ols(split, dep)
		if err != nil {
			continue
		}
		if ssr1 < best {
			best, bestGamma = ssr1, gamma
		}
	}
	if math.IsInf(best, 1) || best <= 0 {
		return regime.TestOutcome{}, errors.New("no admissible threshold")
	}

	df2 := float64(n - 2*k)
	f := ((ssr0 - best) / float64(k)) / (best / df2)
	pv := distuv.F{D1: float64(k), D2: df2}.Survival(math.Max(f, 0))
	return regime.TestOutcome{
		Statistic: f,
		PValue:    clampProbability(pv),
		Passed:    pv <= v.cfg.SignificanceLevel,
		Details:   map[string]float64{"threshold": bestGamma, "ssr_linear": ssr0, "ssr_threshold": best},
	}, nil
}

// waldEqualMeans tests mu_1 = ... = mu_k using Var(mu_j) = sigma2_j / n_j with n_j the
// expected number of periods in regime j
func (v *Validator) waldEqualMeans(model *regime.FittedRegimeModel) (regime.TestOutcome, error) {
	k := model.NumRegimes
	if k < 2 {
		return regime.TestOutcome{}, errors.New("wald test needs at least two regimes")
	}
	weight := make([]float64, k)
	for _, row := range model.Smoothed {
		for j, p := range row {
			weight[j] += p
		}
	}

	contrast := mat.NewVecDense(k-1, nil)
	cov := mat.NewSymDense(k-1, nil)
	variance := make([]float64, k)
	for j := 0; j < k; j++ {
		if weight[j] <= 0 {
			return regime.TestOutcome{}, errors.New("regime without observations")
		}
		variance[j] = model.Variances[j] / weight[j]
	}
	// contrasts mu_j - mu_0 share the variance of mu_0
	for a := 0; a < k-1; a++ {
		contrast.SetVec(a, model.Means[a+1]-model.Means[0])
		for b := a; b < k-1; b++ {
			c := variance[0]
			if a == b {
				c += variance[a+1]
			}
			cov.SetSym(a, b, c)
		}
	}

	var solved mat.VecDense
	if err := solved.SolveVec(cov, contrast); err != nil {
		return regime.TestOutcome{}, errSingular
	}
	w := mat.Dot(contrast, &solved)
	p := distuv.ChiSquared{K: float64(k - 1)}.Survival(w)
	return regime.TestOutcome{
		Statistic: w,
		PValue:    clampProbability(p),
		Passed:    p <= v.cfg.SignificanceLevel,
		Details:   map[string]float64{"df": float64(k - 1)},
	}, nil
}
