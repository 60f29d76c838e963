package preprocess

import (
	"errors"
	"math"
	"sort"
	"time"

	"goregime/domain/regime"
	"goregime/domain/timeseries"

	"github.com/montanaflynn/stats"
	"gonum.org/v1/gonum/stat"
)

// largeGapFactor marks an inter-observation gap as large when it exceeds this multiple of the modal gap
const largeGapFactor = 1.5

var (
	errNoColumns      = errors.New("no numeric columns")
	errNoTimestamps   = errors.New("fewer than two timestamps")
	errNoVariability  = errors.New("no column with a non-zero mean")
	errNoStationarity = errors.New("no column with a defined time correlation")
)

// ValidateQuality scores the table on completeness, temporal consistency, variability and
// stationarity. A dimension that cannot be computed scores 0 and its reason is recorded.
func (p *Preprocessor) ValidateQuality(table *timeseries.Table) regime.DataQualityReport {
	errs := make(map[string]string)
	score := func(dim string, fn func(*timeseries.Table) (float64, error)) float64 {
		if table == nil {
			errs[dim] = "no data"
			return 0
		}
		v, err := fn(table)
		if err != nil || math.IsNaN(v) {
			if err == nil {
				err = errors.New("undefined score")
			}
			errs[dim] = err.Error()
			p.logger.Debug("quality dimension %s failed: %v", dim, err)
			return 0
		}
		return clamp01(v)
	}

	report := regime.NewDataQualityReport(
		score(regime.DimensionCompleteness, completeness),
		score(regime.DimensionTemporalConsistency, temporalConsistency),
		score(regime.DimensionVariability, variability),
		score(regime.DimensionStationarity, stationarity),
		errs,
	)
	if len(report.Errors) == 0 {
		report.Errors = nil
	}
	return report
}

func completeness(t *timeseries.Table) (float64, error) {
	total := t.Len() * len(t.Columns)
	if total == 0 {
		return 0, errNoColumns
	}
	return 1 - float64(t.MissingCells())/float64(total), nil
}

// temporalConsistency is the share of inter-observation gaps that are not large relative to
// the modal gap. Tables without an index are treated as evenly spaced.
func temporalConsistency(t *timeseries.Table) (float64, error) {
	if !t.HasIndex() {
		return 1, nil
	}
	stamps := make([]time.Time, 0, t.Len())
	for _, ts := range t.Index {
		if !ts.IsZero() {
			stamps = append(stamps, ts)
		}
	}
	if len(stamps) < 2 {
		return 0, errNoTimestamps
	}
	sort.Slice(stamps, func(i, j int) bool { return stamps[i].Before(stamps[j]) })

	gaps := make([]float64, 0, len(stamps)-1)
	for i := 1; i < len(stamps); i++ {
		// hour resolution absorbs DST and month-length jitter
		gaps = append(gaps, math.Round(stamps[i].Sub(stamps[i-1]).Hours()))
	}
	modes, err := stats.Mode(gaps)
	if err != nil {
		return 0, err
	}
	var modal float64
	if len(modes) > 0 {
		modal = modes[0]
	} else if modal, err = stats.Median(gaps); err != nil {
		return 0, err
	}
	if modal <= 0 {
		return 0, errors.New("non-positive modal gap")
	}

	large := 0
	for _, g := range gaps {
		if g > largeGapFactor*modal || g <= 0 {
			large++
		}
	}
	return 1 - float64(large)/float64(len(gaps)), nil
}

// variability is the mean coefficient of variation across columns, capped at 1
func variability(t *timeseries.Table) (float64, error) {
	var cvs []float64
	for _, name := range t.Columns {
		mean, std, n := meanStd(t.Values[name])
		if n < 2 || math.Abs(mean) < 1e-12 {
			continue
		}
		cvs = append(cvs, std/math.Abs(mean))
	}
	if len(cvs) == 0 {
		return 0, errNoVariability
	}
	return math.Min(stat.Mean(cvs, nil), 1), nil
}

// stationarity is 1 - |corr(value, time position)| averaged across columns
func stationarity(t *timeseries.Table) (float64, error) {
	var scores []float64
	for _, name := range t.Columns {
		var xs, ys []float64
		for i, v := range t.Values[name] {
			if math.IsNaN(v) || math.IsInf(v, 0) {
				continue
			}
			xs = append(xs, float64(i))
			ys = append(ys, v)
		}
		if len(ys) < 3 {
			continue
		}
		r := stat.Correlation(xs, ys, nil)
		if math.IsNaN(r) {
			continue
		}
		scores = append(scores, 1-math.Abs(r))
	}
	if len(scores) == 0 {
		return 0, errNoStationarity
	}
	return stat.Mean(scores, nil), nil
}

func clamp01(v float64) float64 {
	return math.Max(0, math.Min(1, v))
}
