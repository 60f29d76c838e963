// Package report renders an analysis result as Markdown or HTML
package report

import (
	"fmt"
	"sort"
	"strings"

	"goregime/domain/regime"

	"github.com/gomarkdown/markdown"
	"github.com/gomarkdown/markdown/html"
	"github.com/gomarkdown/markdown/parser"
)

// Markdown renders result, and forecast when non-empty, as a Markdown document
func Markdown(result *regime.RegimeAnalysisResult, forecast []regime.ForecastEntry) string {
	var b strings.Builder

	fmt.Fprintf(&b, "# Regime analysis: %s\n\n", orDash(result.Country))
	fmt.Fprintf(&b, "- Run: `%s`\n", result.RunID)
	fmt.Fprintf(&b, "- Generated: %s\n", result.Timestamp)
	fmt.Fprintf(&b, "- Current regime: **%s**\n", result.CurrentRegime)
	fmt.Fprintf(&b, "- Confidence: %.2f\n", result.Confidence)
	fmt.Fprintf(&b, "- Regimes identified: %d\n", result.NumRegimes)
	fmt.Fprintf(&b, "- Data quality: %s (%.2f)\n\n", result.DataQuality.Level, result.DataQuality.Overall)

	if result.IsFallback {
		fmt.Fprintf(&b, "> Fallback result: the %s stage failed (%s).\n\n", result.FailedStage, orDash(result.FallbackReason))
	}

	writeProbabilities(&b, result)
	writeCharacteristics(&b, result)
	writeTransitions(&b, result.TransitionMatrix)
	writeValidation(&b, result.Validation)
	if len(forecast) > 0 {
		writeForecast(&b, forecast)
	}
	return b.String()
}

// HTML renders the Markdown report to an HTML fragment
func HTML(result *regime.RegimeAnalysisResult, forecast []regime.ForecastEntry) []byte {
	p := parser.NewWithExtensions(parser.CommonExtensions | parser.AutoHeadingIDs)
	doc := p.Parse([]byte(Markdown(result, forecast)))
	renderer := html.NewRenderer(html.RendererOptions{Flags: html.CommonFlags | html.HrefTargetBlank})
	return markdown.Render(doc, renderer)
}

func writeProbabilities(b *strings.Builder, result *regime.RegimeAnalysisResult) {
	b.WriteString("## Regime probabilities\n\n| Regime | Probability |\n|---|---|\n")
	for _, r := range regime.AllRegimes() {
		if p, ok := result.RegimeProbabilities[r]; ok {
			fmt.Fprintf(b, "| %s | %.3f |\n", r, p)
		}
	}
	b.WriteString("\n")
}

func writeCharacteristics(b *strings.Builder, result *regime.RegimeAnalysisResult) {
	if len(result.Characteristics) == 0 {
		return
	}
	b.WriteString("## Regimes\n\n| Regime | Periods | Frequency | Confidence | Indicator means |\n|---|---|---|---|---|\n")
	for _, r := range regime.AllRegimes() {
		rc, ok := result.Characteristics[r]
		if !ok {
			continue
		}
		fmt.Fprintf(b, "| %s | %d | %.1f%% | %.2f | %s |\n", r, rc.Duration, 100*rc.Frequency, rc.Confidence, means(rc.Means))
	}
	b.WriteString("\n")
}

func writeTransitions(b *strings.Builder, m regime.TransitionMatrix) {
	if len(m.Regimes) == 0 {
		return
	}
	b.WriteString("## Transition probabilities\n\n| from \\ to |")
	for _, r := range m.Regimes {
		fmt.Fprintf(b, " %s |", r)
	}
	b.WriteString("\n|---|")
	b.WriteString(strings.Repeat("---|", len(m.Regimes)))
	b.WriteString("\n")
	for i, from := range m.Regimes {
		fmt.Fprintf(b, "| %s |", from)
		for _, p := range m.Probabilities[i] {
			fmt.Fprintf(b, " %.3f |", p)
		}
		b.WriteString("\n")
	}
	b.WriteString("\n")
}

func writeValidation(b *strings.Builder, v regime.ModelValidationResult) {
	fmt.Fprintf(b, "## Validation\n\nValid: **%t** (score %.2f)\n\n", v.IsValid, v.Score)
	if v.Reason != "" {
		fmt.Fprintf(b, "Reason: %s\n\n", v.Reason)
	}
	if len(v.Checks) == 0 {
		return
	}
	names := make([]string, 0, len(v.Checks))
	for name := range v.Checks {
		names = append(names, name)
	}
	sort.Strings(names)
	b.WriteString("| Check | Passed |\n|---|---|\n")
	for _, name := range names {
		mark := "no"
		if v.Checks[name] {
			mark = "yes"
		}
		fmt.Fprintf(b, "| %s | %s |\n", name, mark)
	}
	fmt.Fprintf(b, "\nLinearity: %s (combined p = %.4f). Recommendation: %s.\n\n",
		v.Linearity.Conclusion, v.Linearity.CombinedPValue, orDash(v.RegimeNumber.Recommendation))
}

func writeForecast(b *strings.Builder, forecast []regime.ForecastEntry) {
	b.WriteString("## Forecast\n\n| Month | Regime | Probability | Confidence |\n|---|---|---|---|\n")
	for _, e := range forecast {
		fmt.Fprintf(b, "| %d | %s | %.3f | %.3f |\n", e.Month, e.Regime, e.Probability, e.Confidence)
	}
	b.WriteString("\n")
}

func means(m map[string]float64) string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, len(keys))
	for i, k := range keys {
		parts[i] = fmt.Sprintf("%s=%.2f", k, m[k])
	}
	return strings.Join(parts, ", ")
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}
