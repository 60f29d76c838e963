// Package testkit generates seeded synthetic macroeconomic series for tests and demos.
package testkit

import (
	"math/rand"
	"time"

	"goregime/domain/timeseries"
)

// Phase is one block of a piecewise-Gaussian series
type Phase struct {
	Periods int
	Mean    float64
	Std     float64
}

// MixtureSeries draws consecutive Gaussian phases with a fixed seed
func MixtureSeries(seed int64, phases ...Phase) []float64 {
	rng := rand.New(rand.NewSource(seed))
	var out []float64
	for _, p := range phases {
		for i := 0; i < p.Periods; i++ {
			out = append(out, p.Mean+p.Std*rng.NormFloat64())
		}
	}
	return out
}

// TwoStateMixture is 100 periods of N(0,1) followed by 100 periods of N(5,1)
func TwoStateMixture(seed int64) []float64 {
	return MixtureSeries(seed, Phase{Periods: 100, Mean: 0, Std: 1}, Phase{Periods: 100, Mean: 5, Std: 1})
}

// MonthlyIndex returns n month-start timestamps beginning at start
func MonthlyIndex(start time.Time, n int) []time.Time {
	index := make([]time.Time, n)
	for i := range index {
		index[i] = start.AddDate(0, i, 0)
	}
	return index
}

// SeriesTable wraps a single column in a monthly-indexed table
func SeriesTable(column string, values []float64) *timeseries.Table {
	start := time.Date(2000, 1, 1, 0, 0, 0, 0, time.UTC)
	return timeseries.MustTable(MonthlyIndex(start, len(values)), []string{column}, map[string][]float64{
		column: append([]float64(nil), values...),
	})
}

// ConstantTable is a single column of n identical values
func ConstantTable(n int, value float64) *timeseries.Table {
	values := make([]float64, n)
	for i := range values {
		values[i] = value
	}
	return SeriesTable("value", values)
}

// MacroGeneratorConfig configures the macro table generator
type MacroGeneratorConfig struct {
	Start         time.Time `json:"start"`
	Cycles        int       `json:"cycles"`
	ExpansionLen  int       `json:"expansion_len"`
	RecessionLen  int       `json:"recession_len"`
	NoiseScale    float64   `json:"noise_scale"`
	MissingRate   float64   `json:"missing_rate"`
	Seed          int64     `json:"seed"`
	IncludeSpikes bool      `json:"include_spikes"`
}

// DefaultMacroConfig returns a four-cycle monthly economy
func DefaultMacroConfig() MacroGeneratorConfig {
	return MacroGeneratorConfig{
		Start:        time.Date(2000, 1, 1, 0, 0, 0, 0, time.UTC),
		Cycles:       4,
		ExpansionLen: 36,
		RecessionLen: 12,
		NoiseScale:   0.3,
		Seed:         42,
	}
}

// regimeLevels are the indicator means of one synthetic phase
type regimeLevels struct {
	growth, unemployment, inflation float64
}

var (
	expansionLevels = regimeLevels{growth: 3.0, unemployment: 4.5, inflation: 2.5}
	recessionLevels = regimeLevels{growth: -2.0, unemployment: 8.0, inflation: 1.0}
)

// MacroGenerator produces GDP growth, unemployment and inflation columns alternating
// between expansion and recession phases
type MacroGenerator struct {
	config MacroGeneratorConfig
	rng    *rand.Rand
}

// NewMacroGenerator creates a generator seeded from config
func NewMacroGenerator(config MacroGeneratorConfig) *MacroGenerator {
	return &MacroGenerator{
		config: config,
		rng:    rand.New(rand.NewSource(config.Seed)),
	}
}

// Columns lists the generated indicator names
func (g *MacroGenerator) Columns() []string {
	return []string{"gdp_growth", "unemployment_rate", "inflation"}
}

// Generate returns the table and the true phase label (true = recession) of every period
func (g *MacroGenerator) Generate() (*timeseries.Table, []bool) {
	var growth, unemployment, inflation []float64
	var labels []bool

	emit := func(levels regimeLevels, periods int, recession bool) {
		for i := 0; i < periods; i++ {
			growth = append(growth, g.noisy(levels.growth))
			unemployment = append(unemployment, g.noisy(levels.unemployment))
			inflation = append(inflation, g.noisy(levels.inflation))
			labels = append(labels, recession)
		}
	}
	for c := 0; c < g.config.Cycles; c++ {
		emit(expansionLevels, g.config.ExpansionLen, false)
		emit(recessionLevels, g.config.RecessionLen, true)
	}

	columns := g.Columns()
	values := map[string][]float64{
		columns[0]: growth,
		columns[1]: unemployment,
		columns[2]: inflation,
	}
	for _, name := range columns {
		g.degrade(values[name])
	}
	return timeseries.MustTable(MonthlyIndex(g.config.Start, len(growth)), columns, values), labels
}

func (g *MacroGenerator) noisy(level float64) float64 {
	return level + g.config.NoiseScale*g.rng.NormFloat64()
}

// degrade blanks cells at MissingRate and optionally injects a few extreme spikes
func (g *MacroGenerator) degrade(col []float64) {
	for i := range col {
		if g.config.MissingRate > 0 && g.rng.Float64() < g.config.MissingRate {
			col[i] = nan
		}
	}
	if g.config.IncludeSpikes && len(col) > 20 {
		for _, i := range []int{len(col) / 5, len(col) / 2} {
			col[i] = col[i] * 25
		}
	}
}
