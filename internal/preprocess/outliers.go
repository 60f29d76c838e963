package preprocess

import (
	"fmt"
	"math"
	"sort"
)

// OutlierPolicy treats extreme values in a single column. Missing and non-finite values
// are left untouched. Treat must leave already-clean data unchanged.
type OutlierPolicy interface {
	Name() string
	Treat(values []float64) (treated []float64, flagged int)
}

// OutlierPolicyFor returns the policy registered under name
func OutlierPolicyFor(name string) (OutlierPolicy, error) {
	switch name {
	case "", "iqr":
		return IQRClipper{Multiplier: 1.5}, nil
	case "zscore":
		return ZScoreCapper{Threshold: 3}, nil
	case "density":
		return DensityIsolator{Neighbors: 10, Threshold: 1.5}, nil
	default:
		return nil, fmt.Errorf("unknown outlier method %q", name)
	}
}

// IQRClipper clips values to [Q1 - m*IQR, Q3 + m*IQR]
type IQRClipper struct {
	Multiplier float64
}

func (c IQRClipper) Name() string { return "iqr" }

func (c IQRClipper) Treat(values []float64) ([]float64, int) {
	out := append([]float64(nil), values...)
	q1, q3, ok := quartiles(values)
	if !ok {
		return out, 0
	}
	iqr := q3 - q1
	lo, hi := q1-c.Multiplier*iqr, q3+c.Multiplier*iqr
	flagged := 0
	for i, v := range out {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			continue
		}
		if v < lo {
			out[i] = lo
			flagged++
		} else if v > hi {
			out[i] = hi
			flagged++
		}
	}
	return out, flagged
}

// ZScoreCapper replaces values with |z| above Threshold by the column median
type ZScoreCapper struct {
	Threshold float64
}

func (c ZScoreCapper) Name() string { return "zscore" }

func (c ZScoreCapper) Treat(values []float64) ([]float64, int) {
	out := append([]float64(nil), values...)
	mean, std, n := meanStd(values)
	if n < 3 || std == 0 {
		return out, 0
	}
	median := finiteMedian(values)
	flagged := 0
	for i, v := range out {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			continue
		}
		if math.Abs((v-mean)/std) > c.Threshold {
			out[i] = median
			flagged++
		}
	}
	return out, flagged
}

// DensityIsolator flags points whose local outlier factor over their k nearest neighbours
// exceeds Threshold and that lie outside the interquartile range; flagged points are
// replaced by the column median.
type DensityIsolator struct {
	Neighbors int
	Threshold float64
}

func (d DensityIsolator) Name() string { return "density" }

func (d DensityIsolator) Treat(values []float64) ([]float64, int) {
	out := append([]float64(nil), values...)

	positions := make([]int, 0, len(values))
	for i, v := range values {
		if !math.IsNaN(v) && !math.IsInf(v, 0) {
			positions = append(positions, i)
		}
	}
	n := len(positions)
	k := d.Neighbors
	if k >= n {
		k = n - 1
	}
	if k < 2 {
		return out, 0
	}
	q1, q3, ok := quartiles(values)
	if !ok {
		return out, 0
	}

	// sort the finite points once; neighbours in one dimension are contiguous
	sort.Slice(positions, func(a, b int) bool { return values[positions[a]] < values[positions[b]] })
	x := make([]float64, n)
	for i, p := range positions {
		x[i] = values[p]
	}

	neighbors := make([][]int, n)
	kdist := make([]float64, n)
	for i := 0; i < n; i++ {
		lo, hi := i-1, i+1
		nb := make([]int, 0, k)
		for len(nb) < k {
			switch {
			case lo < 0:
				nb = append(nb, hi)
				hi++
			case hi >= n:
				nb = append(nb, lo)
				lo--
			case x[i]-x[lo] <= x[hi]-x[i]:
				nb = append(nb, lo)
				lo--
			default:
				nb = append(nb, hi)
				hi++
			}
		}
		neighbors[i] = nb
		kdist[i] = math.Abs(x[nb[len(nb)-1]] - x[i])
	}

	lrd := make([]float64, n)
	for i := 0; i < n; i++ {
		sum := 0.0
		for _, j := range neighbors[i] {
			sum += math.Max(kdist[j], math.Abs(x[i]-x[j]))
		}
		if sum == 0 {
			lrd[i] = math.Inf(1)
		} else {
			lrd[i] = float64(k) / sum
		}
	}

	median := finiteMedian(values)
	flagged := 0
	for i := 0; i < n; i++ {
		if math.IsInf(lrd[i], 1) || (x[i] >= q1 && x[i] <= q3) {
			continue
		}
		ratio := 0.0
		for _, j := range neighbors[i] {
			ratio += lrd[j] / lrd[i]
		}
		lof := ratio / float64(k)
		if lof > d.Threshold {
			out[positions[i]] = median
			flagged++
		}
	}
	return out, flagged
}
