package preprocess

import (
	"github.com/montanaflynn/stats"
	"gonum.org/v1/gonum/stat"
)

// finiteMedian returns the median of the finite values, or 0 when there are none
func finiteMedian(values []float64) float64 {
	f := finite(values)
	if len(f) == 0 {
		return 0
	}
	m, err := stats.Median(f)
	if err != nil {
		return 0
	}
	return m
}

// quartiles returns Q1 and Q3 of the finite values
func quartiles(values []float64) (q1, q3 float64, ok bool) {
	f := finite(values)
	if len(f) < 4 {
		return 0, 0, false
	}
	var err error
	if q1, err = stats.Percentile(f, 25); err != nil {
		return 0, 0, false
	}
	if q3, err = stats.Percentile(f, 75); err != nil {
		return 0, 0, false
	}
	return q1, q3, true
}

// meanStd returns the mean and sample standard deviation of the finite values
func meanStd(values []float64) (mean, std float64, n int) {
	f := finite(values)
	if len(f) == 0 {
		return 0, 0, 0
	}
	if len(f) == 1 {
		return f[0], 0, 1
	}
	mean, std = stat.MeanStdDev(f, nil)
	return mean, std, len(f)
}
