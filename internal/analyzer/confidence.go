package analyzer

const (
	validConfidence     = 0.8
	convergedConfidence = 0.9
	confidenceSlots     = 4
)

// ConfidenceTerms holds the four confidence contributions; nil marks a term that could not be computed
type ConfidenceTerms struct {
	LatestProbability *float64
	Validation        *float64
	Characterization  *float64
	Convergence       *float64
}

// OverallConfidence is the sum of the clamped terms divided by four, whichever terms are
// present. It is deliberately not the mean of the computable terms: a missing term counts as
// zero, so adding a computable term never lowers the result, and no terms give 0.
func OverallConfidence(t ConfidenceTerms) float64 {
	sum := 0.0
	for _, term := range []*float64{t.LatestProbability, t.Validation, t.Characterization, t.Convergence} {
		if term != nil {
			sum += clamp01(*term)
		}
	}
	return sum / confidenceSlots
}

func clamp01(v float64) float64 {
	switch {
	case v != v || v < 0:
		return 0
	case v > 1:
		return 1
	}
	return v
}
