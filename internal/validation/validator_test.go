package validation

import (
	"context"
	"errors"
	"math/rand"
	"testing"

	"goregime/domain/regime"
	"goregime/internal/config"
	"goregime/internal/switching"
	"goregime/internal/testkit"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type failingFitter struct{}

func (failingFitter) FitK(context.Context, switching.Series, int) (*regime.FittedRegimeModel, error) {
	return nil, errors.New("refit unavailable")
}

func fittedMixture(t *testing.T) (*regime.FittedRegimeModel, *switching.Model, config.PipelineConfig) {
	t.Helper()
	cfg := config.DefaultPipelineConfig()
	cfg.MaxRegimes = 3
	m := switching.New(cfg, nil)
	model, err := m.FitSeries(context.Background(), switching.Series{Name: "y", Values: testkit.TwoStateMixture(42)})
	require.NoError(t, err)
	return model, m, cfg
}

func TestValidate_TwoStateMixture(t *testing.T) {
	model, fitter, cfg := fittedMixture(t)
	v := New(cfg, fitter, nil)

	result := v.Validate(context.Background(), model)

	assert.Len(t, result.Checks, 9)
	assert.True(t, result.Checks[CheckConverged])
	assert.Equal(t, regime.ConclusionNonLinear, result.Linearity.Conclusion)
	assert.LessOrEqual(t, result.Linearity.CombinedPValue, 0.05)
	assert.True(t, result.Checks[CheckLinearity])
	assert.True(t, result.Checks[CheckLikelihoodRatio])

	assert.GreaterOrEqual(t, result.Score, 0.0)
	assert.LessOrEqual(t, result.Score, 1.0)
	assert.Equal(t, result.Score >= cfg.ValidityThreshold, result.IsValid)

	assert.Equal(t, 2, result.RegimeNumber.SelectedRegimes)
	assert.Equal(t, RecommendTwoRegimes, result.RegimeNumber.Recommendation)
	assert.Contains(t, result.RegimeNumber.InformationCriteria, "hqic")

	wf := result.OutOfSample.Methods[MethodWalkForward]
	assert.Empty(t, wf.Error)
	assert.Greater(t, wf.Accuracy, 0.7)
	assert.Greater(t, result.OutOfSample.MethodsOK, 0)

	for _, name := range []string{CheckLjungBox, CheckARCH, CheckDurbinWatson} {
		assert.Contains(t, result.Residuals.Tests, name)
	}
}

func TestValidate_NilModel(t *testing.T) {
	v := New(config.DefaultPipelineConfig(), nil, nil)
	result := v.Validate(context.Background(), nil)
	assert.False(t, result.IsValid)
	assert.Equal(t, 0.0, result.Score)
	assert.NotEmpty(t, result.Reason)
}

func TestValidate_FailingRefitsAreRecordedInline(t *testing.T) {
	model, _, cfg := fittedMixture(t)
	v := New(cfg, failingFitter{}, nil)

	result := v.Validate(context.Background(), model)

	for name, method := range result.OutOfSample.Methods {
		assert.NotEmpty(t, method.Error, name)
	}
	assert.Equal(t, 0, result.OutOfSample.MethodsOK)
	assert.Equal(t, regime.QualityLabelPoor, result.OutOfSample.Quality)
	assert.False(t, result.Checks[CheckOutOfSample])
	assert.NotEmpty(t, result.RegimeNumber.Tests[CheckParamStability].Error)
	assert.False(t, result.Checks[CheckParamStability])

	// k=2 compares against the linear model, which needs no refit
	assert.Empty(t, result.RegimeNumber.Tests[CheckLikelihoodRatio].Error)
}

func TestRecommend(t *testing.T) {
	tests := []struct {
		name     string
		bics     map[int]float64
		selected int
		want     string
	}{
		{"two wins", map[int]float64{2: 100, 3: 95, 4: 93}, 2, "2"},
		{"three clearly better", map[int]float64{2: 100, 3: 80, 4: 75}, 3, "3"},
		{"four clearly better", map[int]float64{2: 100, 3: 80, 4: 60, 5: 65}, 4, "4+"},
		{"four beats two but not three", map[int]float64{2: 100, 3: 95, 5: 88}, 5, "2"},
		{"missing two falls back to selection", map[int]float64{3: 50}, 3, "3"},
		{"empty", map[int]float64{}, 5, "4+"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, recommend(tt.bics, tt.selected))
		})
	}
}

func TestResidualStatistics(t *testing.T) {
	v := New(config.DefaultPipelineConfig(), nil, nil)
	rng := rand.New(rand.NewSource(11))

	white := make([]float64, 400)
	walk := make([]float64, 400)
	for i := range white {
		white[i] = rng.NormFloat64()
		if i > 0 {
			walk[i] = walk[i-1] + white[i]
		}
	}

	dw, err := durbinWatson(white)
	require.NoError(t, err)
	assert.InDelta(t, 2.0, dw.Statistic, 0.3)
	assert.True(t, dw.Passed)

	dw, err = durbinWatson(walk)
	require.NoError(t, err)
	assert.False(t, dw.Passed)

	whiteQ, err := v.ljungBox(white, ljungBoxLags)
	require.NoError(t, err)
	walkQ, err := v.ljungBox(walk, ljungBoxLags)
	require.NoError(t, err)
	assert.False(t, walkQ.Passed)
	assert.Less(t, whiteQ.Statistic, walkQ.Statistic)

	arch, err := v.archLM(white, archLags)
	require.NoError(t, err)
	assert.GreaterOrEqual(t, arch.PValue, 0.0)
	assert.LessOrEqual(t, arch.PValue, 1.0)

	_, err = v.ljungBox(white[:5], ljungBoxLags)
	assert.Error(t, err)
}

func TestDaviesBound(t *testing.T) {
	assert.Equal(t, 1.0, daviesBound(0, 1))
	prev := 1.0
	for _, m := range []float64{2, 5, 10, 20, 40} {
		p := daviesBound(m, 1)
		assert.LessOrEqual(t, p, prev)
		prev = p
	}
	assert.Less(t, daviesBound(40, 1), 1e-6)
}

func TestSplits(t *testing.T) {
	rolling, err := rollingSplits(200)
	require.NoError(t, err)
	assert.LessOrEqual(t, len(rolling), maxRollingWindows)
	for _, s := range rolling {
		assert.LessOrEqual(t, s.testTo, 200)
		assert.Equal(t, 100, s.trainTo-s.trainFrom)
	}

	wf, err := walkForwardSplits(200)
	require.NoError(t, err)
	assert.Equal(t, []split{{trainFrom: 0, trainTo: 140, testTo: 200}}, wf)

	cv, err := temporalCVSplits(200)
	require.NoError(t, err)
	assert.Len(t, cv, maxCVFolds-1)
	for _, s := range cv {
		assert.GreaterOrEqual(t, s.testTo-s.trainTo, minObsPerFold)
		assert.Equal(t, 0, s.trainFrom)
	}

	_, err = temporalCVSplits(15)
	assert.Error(t, err)
}

func TestGuardRecoversPanics(t *testing.T) {
	out := guard("boom", func() (regime.TestOutcome, error) {
		var m map[string]float64
		m["x"] = 1
		return regime.TestOutcome{}, nil
	})
	assert.False(t, out.Passed)
	assert.Contains(t, out.Error, "boom")
}
