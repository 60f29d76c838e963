package preprocess

import (
	"fmt"
	"math"
	"sort"

	"goregime/domain/timeseries"
)

// ImputationPolicy fills every missing value of every column in place
type ImputationPolicy interface {
	Name() string
	Impute(t *timeseries.Table)
}

// ImputationPolicyFor returns the policy registered under name
func ImputationPolicyFor(name string) (ImputationPolicy, error) {
	switch name {
	case "", "interpolate":
		return Interpolator{}, nil
	case "ffill":
		return ForwardFiller{}, nil
	case "knn":
		return KNNImputer{K: 5}, nil
	default:
		return nil, fmt.Errorf("unknown imputation method %q", name)
	}
}

// Interpolator fills gaps linearly, in time when the table has an index and by position
// otherwise. Leading and trailing gaps take the nearest observed value.
type Interpolator struct{}

func (Interpolator) Name() string { return "interpolate" }

func (Interpolator) Impute(t *timeseries.Table) {
	x := positions(t)
	for _, name := range t.Columns {
		interpolate(x, t.Values[name])
	}
}

func positions(t *timeseries.Table) []float64 {
	x := make([]float64, t.Len())
	if t.HasIndex() {
		for i, ts := range t.IndexUnix() {
			x[i] = float64(ts)
		}
		return x
	}
	for i := range x {
		x[i] = float64(i)
	}
	return x
}

func interpolate(x, col []float64) {
	prev := -1
	for i, v := range col {
		if math.IsNaN(v) {
			continue
		}
		switch {
		case prev == -1:
			for j := 0; j < i; j++ {
				col[j] = v
			}
		case i-prev > 1:
			span := x[i] - x[prev]
			for j := prev + 1; j < i; j++ {
				w := float64(j-prev) / float64(i-prev)
				if span > 0 {
					w = (x[j] - x[prev]) / span
				}
				col[j] = col[prev] + w*(v-col[prev])
			}
		}
		prev = i
	}
	if prev == -1 {
		fillConstant(col, 0)
		return
	}
	for j := prev + 1; j < len(col); j++ {
		col[j] = col[prev]
	}
}

// ForwardFiller carries the last observation forward, then fills any leading gap backwards
type ForwardFiller struct{}

func (ForwardFiller) Name() string { return "ffill" }

func (ForwardFiller) Impute(t *timeseries.Table) {
	for _, name := range t.Columns {
		col := t.Values[name]
		last := math.NaN()
		for i, v := range col {
			if math.IsNaN(v) {
				col[i] = last
			} else {
				last = v
			}
		}
		next := math.NaN()
		for i := len(col) - 1; i >= 0; i-- {
			if math.IsNaN(col[i]) {
				col[i] = next
			} else {
				next = col[i]
			}
		}
		if math.IsNaN(next) {
			fillConstant(col, 0)
		}
	}
}

// KNNImputer replaces each missing cell with the mean of that column over the K nearest
// rows, measured on the other columns both rows observe. A row sharing no observed columns
// with its candidates falls back to distance in time.
type KNNImputer struct {
	K int
}

func (KNNImputer) Name() string { return "knn" }

func (k KNNImputer) Impute(t *timeseries.Table) {
	n := t.Len()
	original := t.Clone()
	type candidate struct {
		row  int
		dist float64
	}

	for _, name := range t.Columns {
		src := original.Values[name]
		dst := t.Values[name]
		median := finiteMedian(src)
		for i := 0; i < n; i++ {
			if !math.IsNaN(src[i]) {
				continue
			}
			cands := make([]candidate, 0, n)
			for j := 0; j < n; j++ {
				if j == i || math.IsNaN(src[j]) {
					continue
				}
				d, ok := rowDistance(original, name, i, j)
				if !ok {
					d = float64(abs(i - j))
				}
				cands = append(cands, candidate{row: j, dist: d})
			}
			if len(cands) == 0 {
				dst[i] = median
				continue
			}
			sort.SliceStable(cands, func(a, b int) bool { return cands[a].dist < cands[b].dist })
			m := k.K
			if m > len(cands) {
				m = len(cands)
			}
			sum := 0.0
			for _, c := range cands[:m] {
				sum += src[c.row]
			}
			dst[i] = sum / float64(m)
		}
	}
}

// rowDistance is the RMS difference between rows i and j over columns other than skip
// that are observed in both
func rowDistance(t *timeseries.Table, skip string, i, j int) (float64, bool) {
	sum, shared := 0.0, 0
	for _, name := range t.Columns {
		if name == skip {
			continue
		}
		a, b := t.Values[name][i], t.Values[name][j]
		if math.IsNaN(a) || math.IsNaN(b) || math.IsInf(a, 0) || math.IsInf(b, 0) {
			continue
		}
		sum += (a - b) * (a - b)
		shared++
	}
	if shared == 0 {
		return 0, false
	}
	return math.Sqrt(sum / float64(shared)), true
}

func fillConstant(col []float64, v float64) {
	for i := range col {
		col[i] = v
	}
}

func abs(x int) int {
	if x < 0 {
		return -x
	}
	return x
}
