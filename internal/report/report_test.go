package report

import (
	"errors"
	"strings"
	"testing"

	"goregime/domain/core"
	"goregime/domain/regime"

	"github.com/stretchr/testify/assert"
)

func sampleResult() *regime.RegimeAnalysisResult {
	return &regime.RegimeAnalysisResult{
		RunID:         core.RunID("run-1"),
		Country:       "US",
		CurrentRegime: regime.Expansion,
		RegimeProbabilities: map[regime.RegimeType]float64{
			regime.Recession: 0.1, regime.Recovery: 0, regime.Expansion: 0.9, regime.Contraction: 0,
		},
		Characteristics: map[regime.RegimeType]regime.RegimeCharacteristics{
			regime.Expansion: {Name: regime.Expansion, Duration: 100, Frequency: 0.5, Confidence: 0.97, Means: map[string]float64{"gdp": 3.1, "cpi": 2}},
			regime.Recession: {Name: regime.Recession, Duration: 100, Frequency: 0.5, Confidence: 0.95, Means: map[string]float64{"gdp": -1.5}},
		},
		TransitionMatrix: regime.UniformTransitionMatrix(regime.NamedRegimes()),
		Validation: regime.ModelValidationResult{
			IsValid: true,
			Score:   0.78,
			Checks:  map[string]bool{"converged": true, "arch_lm": false},
		},
		Confidence: 0.83,
		NumRegimes: 2,
	}
}

func TestMarkdown(t *testing.T) {
	forecast := []regime.ForecastEntry{{Month: 1, Regime: regime.Expansion, Probability: 0.9, Confidence: 0.855}}
	md := Markdown(sampleResult(), forecast)

	assert.Contains(t, md, "# Regime analysis: US")
	assert.Contains(t, md, "Current regime: **expansion**")
	assert.Contains(t, md, "| expansion | 100 | 50.0% | 0.97 | cpi=2.00, gdp=3.10 |")
	assert.Contains(t, md, "| recession | 0.250 | 0.250 | 0.250 | 0.250 |")
	assert.Contains(t, md, "| arch_lm | no |")
	assert.Contains(t, md, "| 1 | expansion | 0.900 | 0.855 |")
	assert.Less(t, strings.Index(md, "| arch_lm |"), strings.Index(md, "| converged |"))
}

func TestMarkdown_Fallback(t *testing.T) {
	result := regime.FallbackResult(core.RunID("run-2"), "", regime.DataQualityReport{}, "fit", errors.New("no candidate converged"))
	md := Markdown(result, nil)

	assert.Contains(t, md, "# Regime analysis: -")
	assert.Contains(t, md, "the fit stage failed (no candidate converged)")
	assert.NotContains(t, md, "## Regimes\n")
	assert.NotContains(t, md, "## Forecast")
}

func TestHTML(t *testing.T) {
	out := string(HTML(sampleResult(), nil))

	assert.Contains(t, out, "<h1")
	assert.Contains(t, out, "<table>")
	assert.Contains(t, out, "<strong>expansion</strong>")
}
