package switching

import (
	"fmt"
	"math"
	"time"

	"goregime/domain/core"
	"goregime/domain/timeseries"
	"goregime/internal/config"
)

// CompositeTarget names the row-mean series used when no target column is configured
const CompositeTarget = "composite"

// Series is the univariate input of a regime fit
type Series struct {
	Name   string
	Values []float64
	Index  []time.Time
}

// ExtractSeries picks the target column, or the row-wise mean of all columns when target is
// empty or CompositeTarget. Rows without a finite value are skipped.
func ExtractSeries(table *timeseries.Table, target string) (Series, error) {
	if table == nil || table.Len() == 0 {
		return Series{}, core.NewInsufficientDataError(0, config.MinObservations)
	}
	if len(table.Columns) == 0 {
		return Series{}, core.ErrNoNumericColumns
	}

	var raw []float64
	name := CompositeTarget
	if target != "" && target != CompositeTarget {
		col := table.Column(target)
		if col == nil {
			return Series{}, fmt.Errorf("%w: target column %q not found", core.ErrInvalidTable, target)
		}
		raw, name = col, target
	} else {
		raw = table.RowMeans()
	}

	s := Series{Name: name, Values: make([]float64, 0, len(raw))}
	for i, v := range raw {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			continue
		}
		s.Values = append(s.Values, v)
		if table.HasIndex() {
			s.Index = append(s.Index, table.Index[i])
		}
	}
	if len(s.Values) < config.MinObservations {
		return Series{}, core.NewInsufficientDataError(len(s.Values), config.MinObservations)
	}
	return s, nil
}
