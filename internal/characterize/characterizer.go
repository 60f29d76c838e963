// Package characterize turns statistical regime clusters into named economic regimes using
// a rule table over growth, unemployment and inflation indicators.
package characterize

import (
	"fmt"
	"math"
	"sort"

	"goregime/domain/core"
	"goregime/domain/regime"
	"goregime/domain/timeseries"
	"goregime/internal"
	"goregime/internal/config"

	"github.com/montanaflynn/stats"
)

const (
	// stabilityCap is the average run length at which temporal stability saturates
	stabilityCap = 10.0
	// representativePeriods is the number of highest-probability periods kept per regime
	representativePeriods = 5
)

// Characterizer names clusters by the rule whose ranges best contain the cluster's indicator means
type Characterizer struct {
	rules     []Rule
	threshold float64
	logger    *internal.Logger
}

// New creates a characterizer with the default rule table
func New(cfg config.PipelineConfig, logger *internal.Logger) *Characterizer {
	if logger == nil {
		logger = internal.DefaultLogger
	}
	return &Characterizer{rules: DefaultRules(), threshold: cfg.ConfidenceThreshold, logger: logger.With("characterize")}
}

// IdentifyRegimeName returns the best-scoring name for a profile, or Unknown when the best
// score is below the confidence threshold
func (c *Characterizer) IdentifyRegimeName(profile Profile) (regime.RegimeType, float64) {
	ranked := rank(c.rules, profile)
	if len(ranked) == 0 || ranked[0].Score < c.threshold {
		score := 0.0
		if len(ranked) > 0 {
			score = ranked[0].Score
		}
		return regime.Unknown, score
	}
	return ranked[0].Regime, ranked[0].Score
}

// CharacterizeRegimes assigns each period to its most probable cluster, summarizes the
// indicators per cluster and names clusters so that each named regime is used at most once
func (c *Characterizer) CharacterizeRegimes(model *regime.FittedRegimeModel, data *timeseries.Table) (*regime.Characterization, error) {
	if model == nil || data == nil {
		return nil, fmt.Errorf("%w: characterization needs a model and data", core.ErrStageInconsistent)
	}
	if model.Len() != data.Len() {
		return nil, fmt.Errorf("%w: model covers %d periods, table has %d", core.ErrStageInconsistent, model.Len(), data.Len())
	}

	assign := model.Assignments()
	members := make([][]int, model.NumRegimes)
	for t, k := range assign {
		members[k] = append(members[k], t)
	}

	roles := columnRoles(data.Columns)
	colMean, colStd := columnMoments(data)

	clusters := make([]regime.ClusterCharacteristics, model.NumRegimes)
	for k := range clusters {
		clusters[k] = regime.ClusterCharacteristics{Cluster: k}
		if len(members[k]) == 0 {
			continue
		}
		profile := profileOf(data, members[k], roles, colMean, colStd)
		clusters[k].Profile = profile.asMap()
		clusters[k].Scores = rank(c.rules, profile)
	}

	names := c.assignNames(clusters)

	result := &regime.Characterization{
		Regimes:      make(map[regime.RegimeType]regime.RegimeCharacteristics),
		Clusters:     clusters,
		ClusterNames: names,
	}
	groups := make(map[regime.RegimeType][]int)
	for k, name := range names {
		clusters[k].Regime = describe(model, data, assign, []int{k}, name)
		clusters[k].Regime.NameScore = scoreFor(clusters[k].Scores, name)
		if len(members[k]) > 0 {
			groups[name] = append(groups[name], k)
		}
	}
	for name, ks := range groups {
		rc := describe(model, data, assign, ks, name)
		if len(ks) == 1 {
			rc.NameScore = clusters[ks[0]].Regime.NameScore
		}
		result.Regimes[name] = rc
	}

	c.logger.Debug("characterized %d clusters into %d regimes", len(clusters), len(result.Regimes))
	return result, nil
}

// assignNames processes clusters by descending best score; each named regime is used once
// and a displaced cluster takes its next best free name above the threshold
func (c *Characterizer) assignNames(clusters []regime.ClusterCharacteristics) []regime.RegimeType {
	names := make([]regime.RegimeType, len(clusters))
	order := make([]int, 0, len(clusters))
	for k := range clusters {
		names[k] = regime.Unknown
		if len(clusters[k].Scores) > 0 {
			order = append(order, k)
		}
	}
	sort.SliceStable(order, func(a, b int) bool {
		return clusters[order[a]].Scores[0].Score > clusters[order[b]].Scores[0].Score
	})

	used := make(map[regime.RegimeType]bool)
	for _, k := range order {
		for _, ns := range clusters[k].Scores {
			if ns.Score < c.threshold {
				break
			}
			if !used[ns.Regime] {
				names[k] = ns.Regime
				used[ns.Regime] = true
				break
			}
		}
	}
	return names
}

func scoreFor(scores []regime.NameScore, name regime.RegimeType) float64 {
	for _, s := range scores {
		if s.Regime == name {
			return s.Score
		}
	}
	if len(scores) > 0 {
		return scores[0].Score
	}
	return 0
}

// columnRoles maps columns to roles; with no recognised column every column is growth
func columnRoles(columns []string) map[string]Role {
	roles := make(map[string]Role, len(columns))
	for _, col := range columns {
		if role, ok := RoleOf(col); ok {
			roles[col] = role
		}
	}
	if len(roles) == 0 {
		for _, col := range columns {
			roles[col] = RoleGrowth
		}
	}
	return roles
}

func columnMoments(data *timeseries.Table) (map[string]float64, map[string]float64) {
	means := make(map[string]float64, len(data.Columns))
	stds := make(map[string]float64, len(data.Columns))
	for _, col := range data.Columns {
		all := make([]int, data.Len())
		for i := range all {
			all[i] = i
		}
		means[col], stds[col] = moments(pick(data.Values[col], all))
	}
	return means, stds
}

// profileOf averages the z-scores of the cluster means of each role's columns
func profileOf(data *timeseries.Table, rows []int, roles map[string]Role, colMean, colStd map[string]float64) Profile {
	sums := make(map[Role]float64)
	counts := make(map[Role]int)
	for _, col := range data.Columns {
		role, ok := roles[col]
		if !ok {
			continue
		}
		vals := pick(data.Values[col], rows)
		if len(vals) == 0 {
			continue
		}
		m, _ := moments(vals)
		z := 0.0
		if colStd[col] > 0 {
			z = (m - colMean[col]) / colStd[col]
		}
		sums[role] += z
		counts[role]++
	}
	profile := make(Profile, len(sums))
	for role, s := range sums {
		profile[role] = s / float64(counts[role])
	}
	return profile
}

// describe builds the characteristics of the union of the given clusters
func describe(model *regime.FittedRegimeModel, data *timeseries.Table, assign []int, clusters []int, name regime.RegimeType) regime.RegimeCharacteristics {
	in := make(map[int]bool, len(clusters))
	for _, k := range clusters {
		in[k] = true
	}
	var rows []int
	probSum := 0.0
	for t, k := range assign {
		if in[k] {
			rows = append(rows, t)
			probSum += model.Smoothed[t][k]
		}
	}

	rc := regime.RegimeCharacteristics{
		Name:     name,
		Clusters: append([]int(nil), clusters...),
		Duration: len(rows),
		Means:    make(map[string]float64, len(data.Columns)),
		StdDevs:  make(map[string]float64, len(data.Columns)),
	}
	if len(assign) > 0 {
		rc.Frequency = float64(len(rows)) / float64(len(assign))
	}
	if len(rows) == 0 {
		return rc
	}

	for _, col := range data.Columns {
		rc.Means[col], rc.StdDevs[col] = moments(pick(data.Values[col], rows))
	}
	rc.AverageProbability = probSum / float64(len(rows))
	rc.Stability = math.Min(averageRun(assign, in)/stabilityCap, 1)
	rc.Confidence = clamp01((rc.Stability + rc.AverageProbability) / 2)
	rc.RepresentativePeriods = topPeriods(model, data, assign, rows, representativePeriods)
	return rc
}

// averageRun is the mean length of consecutive runs of periods assigned to the cluster set
func averageRun(assign []int, in map[int]bool) float64 {
	runs, total, current := 0, 0, 0
	for _, k := range assign {
		if in[k] {
			current++
			continue
		}
		if current > 0 {
			runs++
			total += current
			current = 0
		}
	}
	if current > 0 {
		runs++
		total += current
	}
	if runs == 0 {
		return 0
	}
	return float64(total) / float64(runs)
}

func topPeriods(model *regime.FittedRegimeModel, data *timeseries.Table, assign, rows []int, n int) []regime.Period {
	sorted := append([]int(nil), rows...)
	sort.SliceStable(sorted, func(a, b int) bool {
		return model.Smoothed[sorted[a]][assign[sorted[a]]] > model.Smoothed[sorted[b]][assign[sorted[b]]]
	})
	if len(sorted) > n {
		sorted = sorted[:n]
	}
	out := make([]regime.Period, len(sorted))
	for i, t := range sorted {
		out[i] = regime.Period{Index: t}
		if data.HasIndex() {
			out[i].Timestamp = data.Index[t]
		}
	}
	return out
}

func pick(values []float64, rows []int) []float64 {
	out := make([]float64, 0, len(rows))
	for _, t := range rows {
		if v := values[t]; !math.IsNaN(v) && !math.IsInf(v, 0) {
			out = append(out, v)
		}
	}
	return out
}

// moments returns the mean and sample standard deviation, with std 0 for a single value
func moments(values []float64) (float64, float64) {
	mean, err := stats.Mean(values)
	if err != nil {
		return 0, 0
	}
	if len(values) < 2 {
		return mean, 0
	}
	std, err := stats.StandardDeviationSample(values)
	if err != nil {
		return mean, 0
	}
	return mean, std
}

func clamp01(v float64) float64 {
	return math.Max(0, math.Min(1, v))
}
