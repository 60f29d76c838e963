package analyzer

import (
	"context"
	stderrors "errors"
	"math"
	"testing"
	"time"

	"goregime/domain/core"
	"goregime/domain/regime"
	"goregime/domain/timeseries"
	"goregime/internal/config"
	"goregime/internal/errors"
	"goregime/internal/switching"
	"goregime/internal/testkit"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testConfig() config.PipelineConfig {
	cfg := config.DefaultPipelineConfig()
	cfg.MaxRegimes = 3
	return cfg
}

func newAnalyzer(t *testing.T, opts ...Option) *Analyzer {
	t.Helper()
	a, err := New(testConfig(), nil, opts...)
	require.NoError(t, err)
	return a
}

type recordingObserver struct {
	stages    []string
	fallbacks []string
}

func (o *recordingObserver) ObserveStage(stage string, _ time.Duration, _ error) {
	o.stages = append(o.stages, stage)
}

func (o *recordingObserver) ObserveFallback(stage string) {
	o.fallbacks = append(o.fallbacks, stage)
}

type failingCharacterizer struct{}

func (failingCharacterizer) CharacterizeRegimes(*regime.FittedRegimeModel, *timeseries.Table) (*regime.Characterization, error) {
	return nil, stderrors.New("rules unavailable")
}

// truncatingModel fits all but the first period, leaving the model shorter than the table
type truncatingModel struct {
	cfg config.PipelineConfig
}

func (m truncatingModel) Fit(ctx context.Context, table *timeseries.Table) (*regime.FittedRegimeModel, error) {
	return switching.New(m.cfg, nil).Fit(ctx, table.Slice(1, table.Len()))
}

type panickingValidator struct{}

func (panickingValidator) Validate(context.Context, *regime.FittedRegimeModel) regime.ModelValidationResult {
	panic("validator exploded")
}

func requireTransitionRows(t *testing.T, m regime.TransitionMatrix) {
	t.Helper()
	require.NoError(t, m.Validate())
	for i, row := range m.Probabilities {
		sum := 0.0
		for _, p := range row {
			sum += p
		}
		assert.InDelta(t, 1.0, sum, 1e-6, "row %s", m.Regimes[i])
	}
}

func TestAnalyzeRegimes_TwoStateMixture(t *testing.T) {
	obs := &recordingObserver{}
	a := newAnalyzer(t, WithObserver(obs))
	table := testkit.SeriesTable("y", testkit.TwoStateMixture(42))

	result, err := a.AnalyzeRegimes(context.Background(), table, "US")
	require.NoError(t, err)
	require.NotNil(t, result)

	assert.False(t, result.IsFallback)
	assert.Equal(t, 2, result.NumRegimes)
	assert.Equal(t, "US", result.Country)
	assert.NotEmpty(t, result.RunID)
	assert.Equal(t, regime.Expansion, result.CurrentRegime)
	assert.Greater(t, result.Confidence, 0.6)
	assert.LessOrEqual(t, result.Confidence, 1.0)

	require.Contains(t, result.Characteristics, regime.Expansion)
	require.Contains(t, result.Characteristics, regime.Recession)
	assert.Greater(t, result.Characteristics[regime.Expansion].Means["y"], result.Characteristics[regime.Recession].Means["y"])
	for name, rc := range result.Characteristics {
		assert.Greater(t, rc.Confidence, 0.6, name)
	}

	total := 0.0
	for _, r := range regime.NamedRegimes() {
		require.Contains(t, result.RegimeProbabilities, r)
		total += result.RegimeProbabilities[r]
	}
	assert.InDelta(t, 1.0, total, 1e-6)

	requireTransitionRows(t, result.TransitionMatrix)
	assert.Equal(t, []regime.RegimeType{regime.Recession, regime.Expansion}, result.TransitionMatrix.Regimes)
	assert.Greater(t, result.TransitionMatrix.Prob(regime.Expansion, regime.Expansion), 0.9)

	assert.Equal(t, []string{StagePreprocess, StageFit, StageValidate, StageCharacterize, StageAggregate}, obs.stages)
	assert.Empty(t, obs.fallbacks)
	assert.Equal(t, 1, a.models.Len())
}

func TestAnalyzeRegimes_ConstantSeriesFallsBack(t *testing.T) {
	obs := &recordingObserver{}
	a := newAnalyzer(t, WithObserver(obs))

	result, err := a.AnalyzeRegimes(context.Background(), testkit.ConstantTable(60, 3.5), "DE")
	require.NoError(t, err)
	require.NotNil(t, result)

	assert.True(t, result.IsFallback)
	assert.Equal(t, StageFit, result.FailedStage)
	assert.Equal(t, regime.Unknown, result.CurrentRegime)
	assert.Zero(t, result.Confidence)
	assert.Empty(t, result.Characteristics)
	assert.False(t, result.Validation.IsValid)
	assert.Equal(t, "DE", result.Country)
	for _, r := range regime.NamedRegimes() {
		assert.Equal(t, 0.25, result.RegimeProbabilities[r])
	}
	requireTransitionRows(t, result.TransitionMatrix)
	assert.Len(t, result.TransitionMatrix.Regimes, 4)
	assert.InDelta(t, 1.0, result.DataQuality.Completeness, 1e-9)
	assert.Equal(t, []string{StageFit}, obs.fallbacks)
}

func TestAnalyzeRegimes_ObservationBoundary(t *testing.T) {
	values := testkit.TwoStateMixture(7)

	tests := []struct {
		name      string
		rows      int
		wantInput bool
	}{
		{"nine rows rejected", 9, true},
		{"ten rows proceed", 10, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			a := newAnalyzer(t)
			result, err := a.AnalyzeRegimes(context.Background(), testkit.SeriesTable("y", values[:tt.rows]), "US")
			if tt.wantInput {
				require.Error(t, err)
				assert.Nil(t, result)
				assert.Equal(t, errors.CodeInputError, errors.GetCode(err))
				assert.ErrorIs(t, err, core.ErrInsufficientData)
				return
			}
			require.NoError(t, err)
			require.NotNil(t, result)
		})
	}
}

func TestAnalyzeRegimes_InputErrors(t *testing.T) {
	tests := []struct {
		name  string
		table *timeseries.Table
		want  error
	}{
		{"nil table", nil, core.ErrInsufficientData},
		{"no columns", &timeseries.Table{Index: testkit.MonthlyIndex(time.Date(2000, 1, 1, 0, 0, 0, 0, time.UTC), 20), Values: map[string][]float64{}}, core.ErrNoNumericColumns},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := newAnalyzer(t).AnalyzeRegimes(context.Background(), tt.table, "US")
			require.Error(t, err)
			assert.ErrorIs(t, err, tt.want)
			assert.Equal(t, errors.CodeInputError, errors.GetCode(err))
		})
	}
}

func TestAnalyzeRegimes_StageFailuresFallBack(t *testing.T) {
	table := testkit.SeriesTable("y", testkit.TwoStateMixture(3))

	tests := []struct {
		name  string
		opt   Option
		stage string
	}{
		{"characterizer error", WithCharacterizer(failingCharacterizer{}), StageCharacterize},
		{"validator panic", WithValidator(panickingValidator{}), StageValidate},
		{"model shorter than table", WithModel(truncatingModel{cfg: testConfig()}), StageCharacterize},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			obs := &recordingObserver{}
			a := newAnalyzer(t, tt.opt, WithObserver(obs))

			result, err := a.AnalyzeRegimes(context.Background(), table, "US")
			require.NoError(t, err)
			assert.True(t, result.IsFallback)
			assert.Equal(t, tt.stage, result.FailedStage)
			assert.NotEmpty(t, result.FallbackReason)
			assert.Zero(t, result.Confidence)
			assert.Equal(t, []string{tt.stage}, obs.fallbacks)
		})
	}
}

func TestAnalyzeRegimes_InfiniteCellsStillAnalyzed(t *testing.T) {
	values := testkit.TwoStateMixture(5)
	other := testkit.MixtureSeries(6, testkit.Phase{Periods: len(values), Mean: 1, Std: 0.5})
	values[50], values[51] = math.Inf(1), math.NaN()
	table := timeseries.MustTable(testkit.MonthlyIndex(time.Date(2000, 1, 1, 0, 0, 0, 0, time.UTC), len(values)),
		[]string{"a", "b"}, map[string][]float64{"a": values, "b": other})

	cfg := testConfig()
	cfg.TargetColumn = "a"
	a, err := New(cfg, nil)
	require.NoError(t, err)

	result, err := a.AnalyzeRegimes(context.Background(), table, "US")
	require.NoError(t, err)
	require.NotNil(t, result)
	assert.NotEqual(t, StageCharacterize, result.FailedStage)
	requireTransitionRows(t, result.TransitionMatrix)
}

func TestOverallConfidence_MonotoneInTerms(t *testing.T) {
	latest, valid, char, conv := 0.7, validConfidence, 0.65, convergedConfidence

	steps := []ConfidenceTerms{
		{},
		{LatestProbability: &latest},
		{LatestProbability: &latest, Validation: &valid},
		{LatestProbability: &latest, Validation: &valid, Characterization: &char},
		{LatestProbability: &latest, Validation: &valid, Characterization: &char, Convergence: &conv},
	}

	prev := -1.0
	for i, terms := range steps {
		got := OverallConfidence(terms)
		assert.GreaterOrEqual(t, got, prev, "step %d", i)
		assert.GreaterOrEqual(t, got, 0.0)
		assert.LessOrEqual(t, got, 1.0)
		prev = got
	}
	assert.Zero(t, OverallConfidence(ConfidenceTerms{}))
	assert.InDelta(t, (0.7+0.8+0.65+0.9)/4, prev, 1e-12)

	nan := math.NaN()
	assert.Zero(t, OverallConfidence(ConfidenceTerms{LatestProbability: &nan}))
}

func TestEmpiricalTransitionMatrix(t *testing.T) {
	seq := []regime.RegimeType{
		regime.Expansion, regime.Expansion, regime.Expansion, regime.Recession,
		regime.Recession, regime.Expansion,
	}
	m := EmpiricalTransitionMatrix(seq, regime.NamedRegimes())
	requireTransitionRows(t, m)

	assert.InDelta(t, 2.0/3.0, m.Prob(regime.Expansion, regime.Expansion), 1e-12)
	assert.InDelta(t, 1.0/3.0, m.Prob(regime.Expansion, regime.Recession), 1e-12)
	assert.InDelta(t, 0.5, m.Prob(regime.Recession, regime.Expansion), 1e-12)
	for _, to := range regime.NamedRegimes() {
		assert.Equal(t, 0.25, m.Prob(regime.Recovery, to), "empty rows are uniform")
	}
}

func TestTransitionMatrixFor(t *testing.T) {
	char := &regime.Characterization{ClusterNames: []regime.RegimeType{regime.Recession, regime.Expansion, regime.Expansion}}
	model := &regime.FittedRegimeModel{
		NumRegimes: 3,
		Transition: [][]float64{
			{0.8, 0.1, 0.1},
			{0.2, 0.7, 0.1},
			{0.0, 0.5, 0.5},
		},
		Summaries: []regime.RegimeSummary{
			{Regime: 0, Frequency: 0.5},
			{Regime: 1, Frequency: 0.25},
			{Regime: 2, Frequency: 0.25},
		},
	}

	m := TransitionMatrixFor(model, char)
	requireTransitionRows(t, m)
	assert.Equal(t, []regime.RegimeType{regime.Recession, regime.Expansion}, m.Regimes)
	assert.InDelta(t, 0.8, m.Prob(regime.Recession, regime.Recession), 1e-12)
	assert.InDelta(t, 0.2, m.Prob(regime.Recession, regime.Expansion), 1e-12)
	// pooled: (0.25*0.2 + 0.25*0.0) / 0.5
	assert.InDelta(t, 0.1, m.Prob(regime.Expansion, regime.Recession), 1e-12)
	assert.InDelta(t, 0.9, m.Prob(regime.Expansion, regime.Expansion), 1e-12)
	assert.Nil(t, m.Row(regime.Contraction), "uncharacterized regimes have no row")

	t.Run("unknown cluster adds a row", func(t *testing.T) {
		withUnknown := &regime.Characterization{ClusterNames: []regime.RegimeType{regime.Recession, regime.Unknown, regime.Expansion}}
		m := TransitionMatrixFor(model, withUnknown)
		requireTransitionRows(t, m)
		assert.Equal(t, []regime.RegimeType{regime.Recession, regime.Expansion, regime.Unknown}, m.Regimes)
	})

	t.Run("empirical fallback", func(t *testing.T) {
		two := &regime.Characterization{ClusterNames: []regime.RegimeType{regime.Recession, regime.Expansion}}
		smoothed := [][]float64{{0.9, 0.1}, {0.9, 0.1}, {0.2, 0.8}, {0.1, 0.9}}
		tests := []struct {
			name       string
			transition [][]float64
		}{
			{"missing", nil},
			{"wrong shape", [][]float64{{1}}},
			{"rows do not sum to one", [][]float64{{0.5, 0.1}, {0.5, 0.5}}},
			{"negative entry", [][]float64{{1.2, -0.2}, {0.5, 0.5}}},
			{"non-finite entry", [][]float64{{math.NaN(), 1}, {0.5, 0.5}}},
		}
		for _, tt := range tests {
			t.Run(tt.name, func(t *testing.T) {
				broken := &regime.FittedRegimeModel{NumRegimes: 2, Transition: tt.transition, Smoothed: smoothed}
				m := TransitionMatrixFor(broken, two)
				requireTransitionRows(t, m)
				assert.Len(t, m.Regimes, 2)
				assert.InDelta(t, 0.5, m.Prob(regime.Recession, regime.Expansion), 1e-12)
				assert.InDelta(t, 1.0, m.Prob(regime.Expansion, regime.Expansion), 1e-12)
			})
		}
	})
}

func TestGetRegimeForecast(t *testing.T) {
	table := testkit.SeriesTable("y", testkit.TwoStateMixture(42))

	t.Run("reuses the analysis fit", func(t *testing.T) {
		a := newAnalyzer(t)
		_, err := a.AnalyzeRegimes(context.Background(), table, "US")
		require.NoError(t, err)
		require.Equal(t, 1, a.models.Len())

		entries, err := a.GetRegimeForecast(context.Background(), table, 6)
		require.NoError(t, err)
		require.Len(t, entries, 6)
		for i, e := range entries {
			assert.Equal(t, i+1, e.Month)
			assert.Equal(t, regime.Expansion, e.Regime)
			assert.Greater(t, e.Probability, 0.5)
			assert.InDelta(t, e.Probability*math.Pow(0.95, float64(i+1)), e.Confidence, 1e-12)
		}
		assert.GreaterOrEqual(t, entries[0].Confidence, entries[5].Confidence)
		assert.Equal(t, 1, a.models.Len())
	})

	t.Run("fits when nothing is cached", func(t *testing.T) {
		a := newAnalyzer(t)
		entries, err := a.GetRegimeForecast(context.Background(), table, 3)
		require.NoError(t, err)
		require.Len(t, entries, 3)
		assert.Equal(t, 1, a.models.Len())
	})

	t.Run("flat on failure", func(t *testing.T) {
		obs := &recordingObserver{}
		a := newAnalyzer(t, WithObserver(obs))
		entries, err := a.GetRegimeForecast(context.Background(), testkit.ConstantTable(40, 1), 6)
		require.NoError(t, err)
		assert.Equal(t, regime.FlatForecast(6), entries)
		assert.Equal(t, []string{StageForecast}, obs.fallbacks)
	})

	t.Run("flat on too little data", func(t *testing.T) {
		entries, err := newAnalyzer(t).GetRegimeForecast(context.Background(), testkit.ConstantTable(3, 1), 6)
		require.NoError(t, err)
		require.Len(t, entries, 6)
		for i, e := range entries {
			assert.Equal(t, i+1, e.Month)
			assert.Equal(t, regime.Unknown, e.Regime)
		}
	})

	t.Run("invalid horizon", func(t *testing.T) {
		for _, h := range []int{0, -3} {
			entries, err := newAnalyzer(t).GetRegimeForecast(context.Background(), table, h)
			require.Error(t, err)
			assert.Nil(t, entries)
			assert.ErrorIs(t, err, core.ErrInvalidHorizon)
			assert.Equal(t, errors.CodeInputError, errors.GetCode(err))
		}
	})
}

func TestModelCache_Expiry(t *testing.T) {
	c := NewModelCache(time.Minute, 0)
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	c.now = func() time.Time { return now }

	c.put("a", &fitted{})
	_, ok := c.get("a")
	assert.True(t, ok)

	now = now.Add(2 * time.Minute)
	_, ok = c.get("a")
	assert.False(t, ok)
	assert.Zero(t, c.Len())

	c.put("b", &fitted{})
	assert.Equal(t, 1, c.Len())
}

func TestModelCache_BoundedEntries(t *testing.T) {
	tests := []struct {
		name       string
		maxEntries int
		keys       []string
		wantLen    int
		evicted    []string
		kept       []string
	}{
		{"under the bound", 3, []string{"a", "b"}, 2, nil, []string{"a", "b"}},
		{"oldest evicted first", 2, []string{"a", "b", "c", "d"}, 2, []string{"a", "b"}, []string{"c", "d"}},
		{"overwrite does not evict", 2, []string{"a", "b", "b", "b"}, 2, nil, []string{"a", "b"}},
		{"unbounded", 0, []string{"a", "b", "c", "d", "e"}, 5, nil, []string{"a", "e"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := NewModelCache(0, tt.maxEntries)
			now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
			c.now = func() time.Time { return now }

			for _, k := range tt.keys {
				now = now.Add(time.Second)
				c.put(k, &fitted{})
			}

			assert.Equal(t, tt.wantLen, c.Len())
			for _, k := range tt.evicted {
				_, ok := c.get(k)
				assert.False(t, ok, k)
			}
			for _, k := range tt.kept {
				_, ok := c.get(k)
				assert.True(t, ok, k)
			}
		})
	}
}

func TestFingerprint_DistinguishesInputs(t *testing.T) {
	table := testkit.SeriesTable("y", testkit.TwoStateMixture(1))
	cfg := testConfig()

	assert.Equal(t, Fingerprint(table, "US", cfg), Fingerprint(table, "US", cfg))
	assert.NotEqual(t, Fingerprint(table, "US", cfg), Fingerprint(table, "DE", cfg))

	other := cfg
	other.AROrder = 2
	assert.NotEqual(t, Fingerprint(table, "US", cfg), Fingerprint(table, "US", other))
}
