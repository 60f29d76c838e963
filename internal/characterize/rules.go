package characterize

import (
	"math"
	"sort"
	"strings"

	"goregime/domain/regime"
)

// Role is the economic meaning of an indicator column
type Role string

const (
	RoleGrowth       Role = "growth"
	RoleUnemployment Role = "unemployment"
	RoleInflation    Role = "inflation"
)

// roleKeywords match lower-cased column names; the first role with a matching keyword wins
var roleKeywords = []struct {
	role     Role
	keywords []string
}{
	{RoleUnemployment, []string{"unemploy", "jobless", "unrate", "claims"}},
	{RoleInflation, []string{"inflation", "cpi", "pce", "deflator", "price"}},
	{RoleGrowth, []string{"gdp", "growth", "output", "production", "indpro", "pmi", "income", "retail", "sales"}},
}

var roleOrder = []Role{RoleGrowth, RoleUnemployment, RoleInflation}

// RoleOf classifies a column name, reporting false for untracked columns
func RoleOf(column string) (Role, bool) {
	name := strings.ToLower(column)
	for _, rk := range roleKeywords {
		for _, kw := range rk.keywords {
			if strings.Contains(name, kw) {
				return rk.role, true
			}
		}
	}
	return "", false
}

// Range is a closed interval of z-scores; use infinities for open ends
type Range struct {
	Min float64
	Max float64
}

// penaltyWidth is the distance outside a range at which credit falls to zero
const penaltyWidth = 1.0

// Credit is 1 inside the range and decreases linearly to 0 over penaltyWidth outside it
func (r Range) Credit(z float64) float64 {
	switch {
	case z < r.Min:
		return math.Max(0, 1-(r.Min-z)/penaltyWidth)
	case z > r.Max:
		return math.Max(0, 1-(z-r.Max)/penaltyWidth)
	default:
		return 1
	}
}

// Rule defines the indicator ranges of one named regime
type Rule struct {
	Regime regime.RegimeType
	Ranges map[Role]Range
}

var inf = math.Inf(1)

// DefaultRules are expressed in z-scores of cluster means relative to the full sample
func DefaultRules() []Rule {
	return []Rule{
		{Regime: regime.Recession, Ranges: map[Role]Range{
			RoleGrowth:       {Min: -inf, Max: -0.5},
			RoleUnemployment: {Min: 0.5, Max: inf},
			RoleInflation:    {Min: -inf, Max: 0},
		}},
		{Regime: regime.Contraction, Ranges: map[Role]Range{
			RoleGrowth:       {Min: -0.5, Max: 0},
			RoleUnemployment: {Min: 0, Max: 0.75},
			RoleInflation:    {Min: -0.5, Max: 1},
		}},
		{Regime: regime.Recovery, Ranges: map[Role]Range{
			RoleGrowth:       {Min: 0, Max: 0.5},
			RoleUnemployment: {Min: -0.25, Max: 0.75},
			RoleInflation:    {Min: -1, Max: 0.5},
		}},
		{Regime: regime.Expansion, Ranges: map[Role]Range{
			RoleGrowth:       {Min: 0.5, Max: inf},
			RoleUnemployment: {Min: -inf, Max: 0},
			RoleInflation:    {Min: 0, Max: inf},
		}},
	}
}

// Profile holds the z-score of a cluster's mean for each tracked role
type Profile map[Role]float64

func (p Profile) asMap() map[string]float64 {
	out := make(map[string]float64, len(p))
	for role, z := range p {
		out[string(role)] = z
	}
	return out
}

// rank scores every rule against the profile, best first. Ties keep rule order.
func rank(rules []Rule, profile Profile) []regime.NameScore {
	out := make([]regime.NameScore, 0, len(rules))
	for _, rule := range rules {
		total, tracked := 0.0, 0
		for _, role := range roleOrder {
			z, present := profile[role]
			r, ok := rule.Ranges[role]
			if !present || !ok || math.IsNaN(z) {
				continue
			}
			total += r.Credit(z)
			tracked++
		}
		score := 0.0
		if tracked > 0 {
			score = total / float64(tracked)
		}
		out = append(out, regime.NameScore{Regime: rule.Regime, Score: score})
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Score > out[j].Score })
	return out
}
