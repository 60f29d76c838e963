// Package preprocess cleans, repairs, normalizes and quality-scores raw time series tables
// before they reach the regime model.
package preprocess

import (
	"math"
	"sort"

	"goregime/domain/core"
	"goregime/domain/timeseries"
	"goregime/internal"
	"goregime/internal/config"
)

// Preprocessor runs the cleaning pipeline with one outlier, imputation and scaling policy
type Preprocessor struct {
	outliers OutlierPolicy
	imputer  ImputationPolicy
	scaler   Scaler
	minObs   int
	logger   *internal.Logger
}

// New builds a preprocessor from the pipeline configuration
func New(cfg config.PipelineConfig, logger *internal.Logger) (*Preprocessor, error) {
	outliers, err := OutlierPolicyFor(cfg.OutlierMethod)
	if err != nil {
		return nil, err
	}
	imputer, err := ImputationPolicyFor(cfg.ImputationMethod)
	if err != nil {
		return nil, err
	}
	scaler, err := ScalerFor(cfg.NormalizationMethod)
	if err != nil {
		return nil, err
	}
	if logger == nil {
		logger = internal.DefaultLogger
	}
	return &Preprocessor{
		outliers: outliers,
		imputer:  imputer,
		scaler:   scaler,
		minObs:   config.MinObservations,
		logger:   logger.With("preprocess"),
	}, nil
}

// Preprocess returns a cleaned copy of table: no NaN or Inf in numeric columns, rows sorted
// by strictly increasing timestamp, columns scaled. The input is not modified.
func (p *Preprocessor) Preprocess(table *timeseries.Table) (*timeseries.Table, error) {
	if table == nil || table.Len() == 0 {
		return nil, core.NewInsufficientDataError(0, p.minObs)
	}
	if len(table.Columns) == 0 {
		return nil, core.ErrNoNumericColumns
	}
	if table.Len() < p.minObs {
		return nil, core.NewInsufficientDataError(table.Len(), p.minObs)
	}

	clean, err := p.clean(table)
	if err != nil {
		return nil, err
	}

	for _, name := range clean.Columns {
		treated, flagged := p.outliers.Treat(clean.Values[name])
		clean.Values[name] = treated
		if flagged > 0 {
			p.logger.Debug("%s: %d outliers treated with %s", name, flagged, p.outliers.Name())
		}
	}

	p.imputer.Impute(clean)

	for _, name := range clean.Columns {
		clean.Values[name] = p.scaler.Scale(clean.Values[name])
	}

	p.finalValidation(clean)

	p.logger.Debug("preprocessed %d rows x %d columns (outliers=%s imputation=%s scaling=%s)",
		clean.Len(), len(clean.Columns), p.outliers.Name(), p.imputer.Name(), p.scaler.Name())
	return clean, nil
}

// clean turns infinities into missing cells, drops empty columns and rows, sorts
// chronologically and removes duplicate timestamps
func (p *Preprocessor) clean(table *timeseries.Table) (*timeseries.Table, error) {
	t := table.Clone()

	if n := infToMissing(t); n > 0 {
		p.logger.Warn("treating %d infinite cells as missing", n)
	}

	for _, name := range append([]string(nil), t.Columns...) {
		if allMissing(t.Values[name]) {
			p.logger.Debug("dropping empty column %s", name)
			t.DropColumn(name)
		}
	}
	if len(t.Columns) == 0 {
		return nil, core.ErrNoNumericColumns
	}

	keep := make([]int, 0, t.Len())
	for i := 0; i < t.Len(); i++ {
		if t.HasIndex() && t.Index[i].IsZero() {
			continue
		}
		empty := true
		for _, name := range t.Columns {
			if !math.IsNaN(t.Values[name][i]) {
				empty = false
				break
			}
		}
		if !empty {
			keep = append(keep, i)
		}
	}

	if t.HasIndex() {
		sort.SliceStable(keep, func(a, b int) bool {
			return t.Index[keep[a]].Before(t.Index[keep[b]])
		})
		// last row wins on duplicate timestamps
		deduped := keep[:0:0]
		for i, idx := range keep {
			if i+1 < len(keep) && t.Index[keep[i+1]].Equal(t.Index[idx]) {
				continue
			}
			deduped = append(deduped, idx)
		}
		if dropped := len(keep) - len(deduped); dropped > 0 {
			p.logger.Warn("dropped %d rows with duplicate timestamps", dropped)
		}
		keep = deduped
	}

	if len(keep) < p.minObs {
		return nil, core.NewInsufficientDataError(len(keep), p.minObs)
	}

	out := t.Rows(keep)
	for _, name := range append([]string(nil), out.Columns...) {
		if allMissing(out.Values[name]) {
			out.DropColumn(name)
		}
	}
	if len(out.Columns) == 0 {
		return nil, core.ErrNoNumericColumns
	}
	return out, nil
}

// finalValidation guarantees a finite table: any cell still NaN or infinite after imputation
// and scaling takes the column median of the finite cells, or 0 when there are none
func (p *Preprocessor) finalValidation(t *timeseries.Table) {
	for _, name := range t.Columns {
		col := t.Values[name]
		median := finiteMedian(col)
		replaced := 0
		for i, v := range col {
			if math.IsNaN(v) || math.IsInf(v, 0) {
				col[i] = median
				replaced++
			}
		}
		if replaced > 0 {
			p.logger.Warn("column %s: %d non-finite values replaced by the median after imputation", name, replaced)
		}
	}
}

// infToMissing rewrites ±Inf as NaN in place and returns how many cells changed
func infToMissing(t *timeseries.Table) int {
	n := 0
	for _, name := range t.Columns {
		col := t.Values[name]
		for i, v := range col {
			if math.IsInf(v, 0) {
				col[i] = math.NaN()
				n++
			}
		}
	}
	return n
}

func allMissing(values []float64) bool {
	for _, v := range values {
		if !math.IsNaN(v) {
			return false
		}
	}
	return true
}

// finite returns the finite values of a column
func finite(values []float64) []float64 {
	out := make([]float64, 0, len(values))
	for _, v := range values {
		if !math.IsNaN(v) && !math.IsInf(v, 0) {
			out = append(out, v)
		}
	}
	return out
}
