// Package regime holds the value types produced by the regime-identification pipeline.
// All values are created fresh per analysis and are not mutated after construction.
package regime

import (
	"fmt"
	"strings"
)

// RegimeType is a named macroeconomic regime
type RegimeType string

const (
	Recession   RegimeType = "recession"
	Recovery    RegimeType = "recovery"
	Expansion   RegimeType = "expansion"
	Contraction RegimeType = "contraction"

	// Unknown is the explicit "no confident identification" label
	Unknown RegimeType = "unknown"
)

// NamedRegimes returns the four named regimes in canonical order
func NamedRegimes() []RegimeType {
	return []RegimeType{Recession, Recovery, Expansion, Contraction}
}

// AllRegimes returns the named regimes followed by Unknown
func AllRegimes() []RegimeType {
	return append(NamedRegimes(), Unknown)
}

func (r RegimeType) String() string { return string(r) }

// IsNamed reports whether r is one of the four named regimes
func (r RegimeType) IsNamed() bool {
	switch r {
	case Recession, Recovery, Expansion, Contraction:
		return true
	}
	return false
}

// ParseRegimeType is case-insensitive; anything unrecognised is an error
func ParseRegimeType(s string) (RegimeType, error) {
	r := RegimeType(strings.ToLower(strings.TrimSpace(s)))
	if r.IsNamed() || r == Unknown {
		return r, nil
	}
	return Unknown, fmt.Errorf("unknown regime type %q", s)
}

// order returns the canonical sort position of a regime
func (r RegimeType) order() int {
	for i, named := range AllRegimes() {
		if named == r {
			return i
		}
	}
	return len(AllRegimes())
}

// SortRegimes sorts regimes into canonical order in place
func SortRegimes(regimes []RegimeType) {
	for i := 1; i < len(regimes); i++ {
		for j := i; j > 0 && regimes[j].order() < regimes[j-1].order(); j-- {
			regimes[j], regimes[j-1] = regimes[j-1], regimes[j]
		}
	}
}

// ForecastEntry is one future period of a regime forecast
type ForecastEntry struct {
	Month       int        `json:"month"`
	Regime      RegimeType `json:"regime"`
	Probability float64    `json:"probability"`
	Confidence  float64    `json:"confidence"`
}

// FlatForecast is the default forecast used when generation fails
func FlatForecast(horizon int) []ForecastEntry {
	out := make([]ForecastEntry, horizon)
	for i := range out {
		out[i] = ForecastEntry{
			Month:       i + 1,
			Regime:      Unknown,
			Probability: 0.25,
			Confidence:  0.5,
		}
	}
	return out
}
