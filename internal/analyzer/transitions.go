package analyzer

import (
	"math"

	"goregime/domain/regime"
)

const stochasticTolerance = 1e-6

// TransitionMatrixFor maps the model's cluster transitions onto regime names. The matrix has
// one row per regime some cluster carries. Clusters sharing a name are pooled, weighted by
// their frequency. Without a usable cluster matrix the matrix is counted from the most likely
// regime sequence.
func TransitionMatrixFor(model *regime.FittedRegimeModel, char *regime.Characterization) regime.TransitionMatrix {
	names := regimesOf(char, model.NumRegimes)
	if !stochastic(model.Transition, model.NumRegimes) {
		seq := make([]regime.RegimeType, 0, model.Len())
		for _, c := range model.Assignments() {
			seq = append(seq, char.NameOf(c))
		}
		return EmpiricalTransitionMatrix(seq, names)
	}

	weights := clusterWeights(model)
	pos := positions(names)
	n := len(names)
	acc := zeros(n)
	mass := make([]float64, n)
	for i := 0; i < model.NumRegimes; i++ {
		from := pos[char.NameOf(i)]
		mass[from] += weights[i]
		for j, p := range model.Transition[i] {
			acc[from][pos[char.NameOf(j)]] += weights[i] * p
		}
	}
	for i := range acc {
		if mass[i] <= 0 {
			uniformRow(acc[i])
			continue
		}
		for j := range acc[i] {
			acc[i][j] /= mass[i]
		}
	}
	return regime.TransitionMatrix{Regimes: names, Probabilities: acc}
}

// EmpiricalTransitionMatrix counts consecutive transitions in seq and row-normalizes.
// Rows without any outgoing transition are uniform.
func EmpiricalTransitionMatrix(seq []regime.RegimeType, regimes []regime.RegimeType) regime.TransitionMatrix {
	pos := positions(regimes)
	counts := zeros(len(regimes))
	for t := 1; t < len(seq); t++ {
		from, ok1 := pos[seq[t-1]]
		to, ok2 := pos[seq[t]]
		if ok1 && ok2 {
			counts[from][to]++
		}
	}
	for _, row := range counts {
		total := 0.0
		for _, c := range row {
			total += c
		}
		if total == 0 {
			uniformRow(row)
			continue
		}
		for j := range row {
			row[j] /= total
		}
	}
	return regime.TransitionMatrix{Regimes: append([]regime.RegimeType(nil), regimes...), Probabilities: counts}
}

// regimesOf lists the regimes carried by the k clusters in canonical order
func regimesOf(char *regime.Characterization, k int) []regime.RegimeType {
	carried := make(map[regime.RegimeType]bool, k)
	for i := 0; i < k; i++ {
		carried[char.NameOf(i)] = true
	}
	names := make([]regime.RegimeType, 0, len(carried))
	for _, r := range regime.AllRegimes() {
		if carried[r] {
			names = append(names, r)
		}
	}
	return names
}

func clusterWeights(model *regime.FittedRegimeModel) []float64 {
	w := make([]float64, model.NumRegimes)
	total := 0.0
	for _, s := range model.Summaries {
		if s.Regime >= 0 && s.Regime < len(w) {
			w[s.Regime] = s.Frequency
			total += s.Frequency
		}
	}
	if total <= 0 {
		for i := range w {
			w[i] = 1
		}
	}
	return w
}

// stochastic reports whether m is k x k with non-negative finite entries and rows summing to 1
func stochastic(m [][]float64, k int) bool {
	if k < 1 || len(m) != k {
		return false
	}
	for _, row := range m {
		if len(row) != k {
			return false
		}
		sum := 0.0
		for _, p := range row {
			if p < 0 || math.IsNaN(p) || math.IsInf(p, 0) {
				return false
			}
			sum += p
		}
		if math.Abs(sum-1) > stochasticTolerance {
			return false
		}
	}
	return true
}

func positions(names []regime.RegimeType) map[regime.RegimeType]int {
	out := make(map[regime.RegimeType]int, len(names))
	for i, r := range names {
		out[r] = i
	}
	return out
}

func zeros(n int) [][]float64 {
	out := make([][]float64, n)
	for i := range out {
		out[i] = make([]float64, n)
	}
	return out
}

func uniformRow(row []float64) {
	for j := range row {
		row[j] = 1 / float64(len(row))
	}
}
