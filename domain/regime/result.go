package regime

import (
	"fmt"
	"math"
	"time"

	"goregime/domain/core"
)

// TransitionTolerance is the allowed deviation of a row sum from 1
const TransitionTolerance = 1e-6

// Period identifies one row of the analysed table
type Period struct {
	Index     int       `json:"index"`
	Timestamp time.Time `json:"timestamp,omitempty"`
}

// RegimeCharacteristics describes one named regime
type RegimeCharacteristics struct {
	Name                  RegimeType         `json:"name"`
	Clusters              []int              `json:"clusters"`
	Duration              int                `json:"duration"`
	Frequency             float64            `json:"frequency"`
	Means                 map[string]float64 `json:"means"`
	StdDevs               map[string]float64 `json:"std_devs"`
	Confidence            float64            `json:"confidence"`
	NameScore             float64            `json:"name_score"`
	Stability             float64            `json:"stability"`
	AverageProbability    float64            `json:"average_probability"`
	RepresentativePeriods []Period           `json:"representative_periods"`
}

// TransitionMatrix is a row-stochastic matrix indexed by regime
type TransitionMatrix struct {
	Regimes       []RegimeType `json:"regimes"`
	Probabilities [][]float64  `json:"probabilities"`
}

// UniformTransitionMatrix gives every transition the same probability
func UniformTransitionMatrix(regimes []RegimeType) TransitionMatrix {
	n := len(regimes)
	probs := make([][]float64, n)
	for i := range probs {
		probs[i] = make([]float64, n)
		for j := range probs[i] {
			probs[i][j] = 1 / float64(n)
		}
	}
	return TransitionMatrix{Regimes: append([]RegimeType(nil), regimes...), Probabilities: probs}
}

// Prob returns P(to | from), or 0 when either regime is absent
func (m TransitionMatrix) Prob(from, to RegimeType) float64 {
	i, j := m.position(from), m.position(to)
	if i < 0 || j < 0 {
		return 0
	}
	return m.Probabilities[i][j]
}

// Row returns the outgoing distribution of a regime
func (m TransitionMatrix) Row(from RegimeType) map[RegimeType]float64 {
	i := m.position(from)
	if i < 0 {
		return nil
	}
	out := make(map[RegimeType]float64, len(m.Regimes))
	for j, to := range m.Regimes {
		out[to] = m.Probabilities[i][j]
	}
	return out
}

// Validate checks squareness and that each row sums to 1
func (m TransitionMatrix) Validate() error {
	n := len(m.Regimes)
	if len(m.Probabilities) != n {
		return fmt.Errorf("transition matrix has %d rows for %d regimes", len(m.Probabilities), n)
	}
	for i, row := range m.Probabilities {
		if len(row) != n {
			return fmt.Errorf("transition row %s has %d columns, expected %d", m.Regimes[i], len(row), n)
		}
		sum := 0.0
		for _, p := range row {
			if p < 0 || math.IsNaN(p) {
				return fmt.Errorf("transition row %s has invalid probability %v", m.Regimes[i], p)
			}
			sum += p
		}
		if math.Abs(sum-1) > TransitionTolerance {
			return fmt.Errorf("transition row %s sums to %.8f", m.Regimes[i], sum)
		}
	}
	return nil
}

func (m TransitionMatrix) position(r RegimeType) int {
	for i, x := range m.Regimes {
		if x == r {
			return i
		}
	}
	return -1
}

// RegimeAnalysisResult is the terminal artifact of one analysis run
type RegimeAnalysisResult struct {
	RunID               core.RunID                           `json:"run_id"`
	Country             string                               `json:"country"`
	CurrentRegime       RegimeType                           `json:"current_regime"`
	RegimeProbabilities map[RegimeType]float64               `json:"regime_probabilities"`
	Characteristics     map[RegimeType]RegimeCharacteristics `json:"characteristics"`
	TransitionMatrix    TransitionMatrix                     `json:"transition_matrix"`
	Validation          ModelValidationResult                `json:"validation"`
	Confidence          float64                              `json:"confidence"`
	NumRegimes          int                                  `json:"num_regimes"`
	Timestamp           core.Timestamp                       `json:"timestamp"`
	DataQuality         DataQualityReport                    `json:"data_quality"`
	IsFallback          bool                                 `json:"is_fallback"`
	FailedStage         string                               `json:"failed_stage,omitempty"`
	FallbackReason      string                               `json:"fallback_reason,omitempty"`
}

// FallbackResult is the defined result when a pipeline stage fails after input validation
func FallbackResult(runID core.RunID, country string, quality DataQualityReport, stage string, reason error) *RegimeAnalysisResult {
	probs := make(map[RegimeType]float64, 4)
	for _, r := range NamedRegimes() {
		probs[r] = 0.25
	}
	msg := ""
	if reason != nil {
		msg = reason.Error()
	}
	return &RegimeAnalysisResult{
		RunID:               runID,
		Country:             country,
		CurrentRegime:       Unknown,
		RegimeProbabilities: probs,
		Characteristics:     map[RegimeType]RegimeCharacteristics{},
		TransitionMatrix:    UniformTransitionMatrix(NamedRegimes()),
		Validation:          InvalidValidationResult(msg),
		Confidence:          0,
		Timestamp:           core.Now(),
		DataQuality:         quality,
		IsFallback:          true,
		FailedStage:         stage,
		FallbackReason:      msg,
	}
}
