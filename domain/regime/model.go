package regime

import (
	"time"
)

// FitMetrics is the scalar summary of a fitted model
type FitMetrics struct {
	NumRegimes      int     `json:"num_regimes"`
	AIC             float64 `json:"aic"`
	BIC             float64 `json:"bic"`
	HQIC            float64 `json:"hqic"`
	LogLikelihood   float64 `json:"log_likelihood"`
	Converged       bool    `json:"converged"`
	Iterations      int     `json:"iterations"`
	NumObservations int     `json:"num_observations"`
	NumParams       int     `json:"num_params"`
}

// CandidateFit records the outcome of fitting one regime count during model search
type CandidateFit struct {
	NumRegimes    int     `json:"num_regimes"`
	Converged     bool    `json:"converged"`
	AIC           float64 `json:"aic"`
	BIC           float64 `json:"bic"`
	LogLikelihood float64 `json:"log_likelihood"`
	Iterations    int     `json:"iterations"`
	Reason        string  `json:"reason,omitempty"`
}

// RegimeSummary holds statistics of the observations assigned to one regime
type RegimeSummary struct {
	Regime    int     `json:"regime"`
	Mean      float64 `json:"mean"`
	Std       float64 `json:"std"`
	Duration  int     `json:"duration"`
	Frequency float64 `json:"frequency"`
}

// FittedRegimeModel is a Markov-switching model fitted to a single series.
// Regimes are ordered by ascending mean.
type FittedRegimeModel struct {
	NumRegimes     int             `json:"num_regimes"`
	AROrder        int             `json:"ar_order"`
	Target         string          `json:"target"`
	Means          []float64       `json:"means"`
	Variances      []float64       `json:"variances"`
	ARCoefficients []float64       `json:"ar_coefficients"`
	Transition     [][]float64     `json:"transition"` // Transition[i][j] = P(s_t=j | s_{t-1}=i)
	InitialProbs   []float64       `json:"initial_probs"`
	Series         []float64       `json:"series"`
	Index          []time.Time     `json:"index,omitempty"`
	Smoothed       [][]float64     `json:"smoothed"`
	Filtered       [][]float64     `json:"filtered"`
	Metrics        FitMetrics      `json:"metrics"`
	Candidates     []CandidateFit  `json:"candidates"`
	Summaries      []RegimeSummary `json:"summaries"`
}

// Len returns the number of timesteps covered by the smoothed probabilities
func (m *FittedRegimeModel) Len() int {
	return len(m.Smoothed)
}

// MostLikelyRegime returns the arg-max regime at timestep t
func (m *FittedRegimeModel) MostLikelyRegime(t int) int {
	return argMax(m.Smoothed[t])
}

// Assignments returns the arg-max regime of every timestep
func (m *FittedRegimeModel) Assignments() []int {
	out := make([]int, len(m.Smoothed))
	for t := range m.Smoothed {
		out[t] = argMax(m.Smoothed[t])
	}
	return out
}

// LatestProbabilities returns the smoothed probabilities at the last timestep
func (m *FittedRegimeModel) LatestProbabilities() []float64 {
	if len(m.Smoothed) == 0 {
		return nil
	}
	return m.Smoothed[len(m.Smoothed)-1]
}

// CandidateBIC returns BIC by regime count for converged candidates
func (m *FittedRegimeModel) CandidateBIC() map[int]float64 {
	out := make(map[int]float64)
	for _, c := range m.Candidates {
		if c.Converged {
			out[c.NumRegimes] = c.BIC
		}
	}
	return out
}

func argMax(v []float64) int {
	best := 0
	for i := 1; i < len(v); i++ {
		if v[i] > v[best] {
			best = i
		}
	}
	return best
}
