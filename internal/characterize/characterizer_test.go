package characterize

import (
	"context"
	"math"
	"testing"

	"goregime/domain/core"
	"goregime/domain/regime"
	"goregime/internal/config"
	"goregime/internal/switching"
	"goregime/internal/testkit"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newCharacterizer() *Characterizer {
	return New(config.DefaultPipelineConfig(), nil)
}

// modelFor builds a model whose smoothed probabilities put prob on the assigned cluster
func modelFor(assign []int, k int, prob float64) *regime.FittedRegimeModel {
	smoothed := make([][]float64, len(assign))
	for t, a := range assign {
		row := make([]float64, k)
		for j := range row {
			row[j] = (1 - prob) / float64(k-1)
		}
		row[a] = prob
		smoothed[t] = row
	}
	return &regime.FittedRegimeModel{NumRegimes: k, Smoothed: smoothed}
}

func TestCharacterize_TwoStateMixture(t *testing.T) {
	values := testkit.TwoStateMixture(42)
	table := testkit.SeriesTable("y", values)

	cfg := config.DefaultPipelineConfig()
	cfg.MaxRegimes = 3
	model, err := switching.New(cfg, nil).Fit(context.Background(), table)
	require.NoError(t, err)
	require.Equal(t, 2, model.NumRegimes)

	result, err := newCharacterizer().CharacterizeRegimes(model, table)
	require.NoError(t, err)

	require.Len(t, result.Clusters, 2)
	low, high := result.Clusters[0].Regime, result.Clusters[1].Regime
	assert.Greater(t, high.Means["y"], low.Means["y"])
	assert.Equal(t, regime.Recession, result.NameOf(0))
	assert.Equal(t, regime.Expansion, result.NameOf(1))

	for name, rc := range result.Regimes {
		assert.Greater(t, rc.Confidence, 0.6, name)
		assert.LessOrEqual(t, rc.Confidence, 1.0, name)
		assert.LessOrEqual(t, len(rc.RepresentativePeriods), 5)
	}
	mean, ok := result.MeanConfidence()
	assert.True(t, ok)
	assert.Greater(t, mean, 0.6)
}

func TestCharacterize_MacroIndicators(t *testing.T) {
	cfg := testkit.DefaultMacroConfig()
	table, labels := testkit.NewMacroGenerator(cfg).Generate()

	assign := make([]int, len(labels))
	for i, rec := range labels {
		if rec {
			assign[i] = 0
		} else {
			assign[i] = 1
		}
	}
	result, err := newCharacterizer().CharacterizeRegimes(modelFor(assign, 2, 0.95), table)
	require.NoError(t, err)

	assert.Equal(t, regime.Recession, result.NameOf(0))
	assert.Equal(t, regime.Expansion, result.NameOf(1))

	rec := result.Regimes[regime.Recession]
	assert.Equal(t, cfg.Cycles*cfg.RecessionLen, rec.Duration)
	assert.InDelta(t, float64(cfg.RecessionLen)/float64(cfg.RecessionLen+cfg.ExpansionLen), rec.Frequency, 1e-9)
	assert.InDelta(t, 1.0, rec.Stability, 1e-9)
	assert.InDelta(t, 0.95, rec.AverageProbability, 1e-9)
	assert.InDelta(t, 0.975, rec.Confidence, 1e-9)
	assert.Greater(t, rec.Means["unemployment_rate"], result.Regimes[regime.Expansion].Means["unemployment_rate"])
	assert.Len(t, rec.RepresentativePeriods, 5)
	assert.False(t, rec.RepresentativePeriods[0].Timestamp.IsZero())
}

func TestCharacterize_UnknownClustersMerged(t *testing.T) {
	// three clusters with nearly identical means never clear the threshold for distinct names
	values := testkit.MixtureSeries(9, testkit.Phase{Periods: 30, Mean: 0, Std: 1})
	table := testkit.SeriesTable("y", values)
	assign := make([]int, len(values))
	for i := range assign {
		assign[i] = i % 3
	}

	c := New(config.PipelineConfig{ConfidenceThreshold: 1.01}, nil)
	result, err := c.CharacterizeRegimes(modelFor(assign, 3, 0.5), table)
	require.NoError(t, err)

	require.Len(t, result.Clusters, 3)
	require.Len(t, result.Regimes, 1)
	unknown := result.Regimes[regime.Unknown]
	assert.Equal(t, []int{0, 1, 2}, sortedInts(unknown.Clusters))
	assert.Equal(t, 30, unknown.Duration)
	assert.InDelta(t, 1.0, unknown.Frequency, 1e-12)
	for _, cl := range result.Clusters {
		assert.Equal(t, 10, cl.Regime.Duration)
		assert.Equal(t, regime.Unknown, cl.Regime.Name)
	}
}

func TestCharacterize_LengthMismatch(t *testing.T) {
	table := testkit.SeriesTable("y", make([]float64, 20))
	_, err := newCharacterizer().CharacterizeRegimes(modelFor(make([]int, 19), 2, 0.9), table)
	assert.ErrorIs(t, err, core.ErrStageInconsistent)
	assert.False(t, core.IsInputError(err), "a stage mismatch must not be reported as bad input")

	_, err = newCharacterizer().CharacterizeRegimes(nil, table)
	assert.ErrorIs(t, err, core.ErrStageInconsistent)
}

func TestAssignNames_Collisions(t *testing.T) {
	c := newCharacterizer()
	clusters := []regime.ClusterCharacteristics{
		{Cluster: 0, Scores: []regime.NameScore{{Regime: regime.Expansion, Score: 0.9}, {Regime: regime.Recovery, Score: 0.7}}},
		{Cluster: 1, Scores: []regime.NameScore{{Regime: regime.Expansion, Score: 1.0}, {Regime: regime.Recovery, Score: 0.5}}},
		{Cluster: 2, Scores: []regime.NameScore{{Regime: regime.Expansion, Score: 0.8}, {Regime: regime.Recovery, Score: 0.65}}},
		{Cluster: 3, Scores: []regime.NameScore{{Regime: regime.Recession, Score: 1.0}}},
		{Cluster: 4},
	}
	names := c.assignNames(clusters)
	assert.Equal(t, []regime.RegimeType{
		regime.Recovery,  // displaced from expansion by cluster 1
		regime.Expansion, // highest score wins
		regime.Unknown,   // expansion and recovery taken
		regime.Recession,
		regime.Unknown, // empty cluster
	}, names)
}

func TestIdentifyRegimeName(t *testing.T) {
	c := newCharacterizer()
	tests := []struct {
		name    string
		profile Profile
		want    regime.RegimeType
		score   float64
	}{
		{"strong growth", Profile{RoleGrowth: 2}, regime.Expansion, 1},
		{"mild growth", Profile{RoleGrowth: 0.25}, regime.Recovery, 1},
		{"mild decline", Profile{RoleGrowth: -0.25}, regime.Contraction, 1},
		{"deep decline", Profile{RoleGrowth: -1.5}, regime.Recession, 1},
		{"classic recession", Profile{RoleGrowth: -1, RoleUnemployment: 1, RoleInflation: -0.5}, regime.Recession, 1},
		{"stagflation is unknown", Profile{RoleGrowth: 3, RoleUnemployment: 3}, regime.Unknown, 0.5},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, score := c.IdentifyRegimeName(tt.profile)
			assert.Equal(t, tt.want, got)
			assert.InDelta(t, tt.score, score, 1e-9)
		})
	}
}

func TestRoleOf(t *testing.T) {
	tests := map[string]Role{
		"GDP_Growth":        RoleGrowth,
		"unemployment_rate": RoleUnemployment,
		"CPI_YoY":           RoleInflation,
		"Industrial Output": RoleGrowth,
	}
	for col, want := range tests {
		got, ok := RoleOf(col)
		assert.True(t, ok, col)
		assert.Equal(t, want, got, col)
	}
	_, ok := RoleOf("ten_year_yield")
	assert.False(t, ok)

	roles := columnRoles([]string{"a", "b"})
	assert.Equal(t, map[string]Role{"a": RoleGrowth, "b": RoleGrowth}, roles)
}

func TestRangeCredit(t *testing.T) {
	r := Range{Min: 0, Max: 0.5}
	assert.Equal(t, 1.0, r.Credit(0.25))
	assert.InDelta(t, 0.5, r.Credit(1.0), 1e-12)
	assert.InDelta(t, 0.75, r.Credit(-0.25), 1e-12)
	assert.Equal(t, 0.0, r.Credit(3))
	assert.Equal(t, 1.0, Range{Min: -math.Inf(1), Max: 0}.Credit(-100))
}

func TestAverageRun(t *testing.T) {
	in := map[int]bool{1: true}
	assert.InDelta(t, 2.0, averageRun([]int{1, 1, 0, 1, 0, 0, 1, 1, 1}, in), 1e-12)
	assert.Equal(t, 0.0, averageRun([]int{0, 0}, in))
}

func sortedInts(v []int) []int {
	out := append([]int(nil), v...)
	for i := 1; i < len(out); i++ {
		for j := i; j > 0 && out[j] < out[j-1]; j-- {
			out[j], out[j-1] = out[j-1], out[j]
		}
	}
	return out
}
