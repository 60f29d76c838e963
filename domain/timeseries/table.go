// Package timeseries defines the tabular time series consumed by the regime pipeline.
package timeseries

import (
	"fmt"
	"math"
	"time"
)

// Table is an ordered sequence of rows with one float column per named indicator.
// NaN marks a missing cell. Index is optional; when present it has one timestamp per row.
type Table struct {
	Index   []time.Time
	Columns []string
	Values  map[string][]float64
}

// NewTable builds a table and checks that every column matches the index length.
func NewTable(index []time.Time, columns []string, values map[string][]float64) (*Table, error) {
	t := &Table{
		Index:   index,
		Columns: append([]string(nil), columns...),
		Values:  make(map[string][]float64, len(columns)),
	}

	rows := -1
	if len(index) > 0 {
		rows = len(index)
	}
	for _, name := range columns {
		col, ok := values[name]
		if !ok {
			return nil, fmt.Errorf("column %q has no values", name)
		}
		if rows >= 0 && len(col) != rows {
			return nil, fmt.Errorf("column %q has %d rows, expected %d", name, len(col), rows)
		}
		rows = len(col)
		t.Values[name] = append([]float64(nil), col...)
	}
	return t, nil
}

// MustTable is NewTable for fixtures; it panics on malformed input.
func MustTable(index []time.Time, columns []string, values map[string][]float64) *Table {
	t, err := NewTable(index, columns, values)
	if err != nil {
		panic(err)
	}
	return t
}

// Len returns the number of rows
func (t *Table) Len() int {
	if t == nil {
		return 0
	}
	if len(t.Index) > 0 {
		return len(t.Index)
	}
	for _, name := range t.Columns {
		return len(t.Values[name])
	}
	return 0
}

// HasIndex reports whether rows carry timestamps
func (t *Table) HasIndex() bool {
	return t != nil && len(t.Index) > 0
}

// Column returns the values of a column, or nil when it does not exist
func (t *Table) Column(name string) []float64 {
	if t == nil {
		return nil
	}
	return t.Values[name]
}

// Clone returns a deep copy
func (t *Table) Clone() *Table {
	if t == nil {
		return nil
	}
	out := &Table{
		Columns: append([]string(nil), t.Columns...),
		Values:  make(map[string][]float64, len(t.Columns)),
	}
	if len(t.Index) > 0 {
		out.Index = append([]time.Time(nil), t.Index...)
	}
	for _, name := range t.Columns {
		out.Values[name] = append([]float64(nil), t.Values[name]...)
	}
	return out
}

// Rows returns a new table with the given rows in the given order
func (t *Table) Rows(indices []int) *Table {
	out := &Table{
		Columns: append([]string(nil), t.Columns...),
		Values:  make(map[string][]float64, len(t.Columns)),
	}
	if t.HasIndex() {
		out.Index = make([]time.Time, len(indices))
		for i, idx := range indices {
			out.Index[i] = t.Index[idx]
		}
	}
	for _, name := range t.Columns {
		src := t.Values[name]
		col := make([]float64, len(indices))
		for i, idx := range indices {
			col[i] = src[idx]
		}
		out.Values[name] = col
	}
	return out
}

// Slice returns rows [from, to)
func (t *Table) Slice(from, to int) *Table {
	indices := make([]int, 0, to-from)
	for i := from; i < to; i++ {
		indices = append(indices, i)
	}
	return t.Rows(indices)
}

// DropColumn removes a column in place
func (t *Table) DropColumn(name string) {
	for i, c := range t.Columns {
		if c == name {
			t.Columns = append(t.Columns[:i], t.Columns[i+1:]...)
			break
		}
	}
	delete(t.Values, name)
}

// MissingCells counts NaN cells across all columns
func (t *Table) MissingCells() int {
	missing := 0
	for _, name := range t.Columns {
		for _, v := range t.Values[name] {
			if math.IsNaN(v) {
				missing++
			}
		}
	}
	return missing
}

// NonFiniteCells counts NaN and Inf cells across all columns
func (t *Table) NonFiniteCells() int {
	count := 0
	for _, name := range t.Columns {
		for _, v := range t.Values[name] {
			if math.IsNaN(v) || math.IsInf(v, 0) {
				count++
			}
		}
	}
	return count
}

// RowMeans returns the mean of the non-missing cells of each row.
// Rows without any observed cell yield NaN.
func (t *Table) RowMeans() []float64 {
	n := t.Len()
	out := make([]float64, n)
	for i := 0; i < n; i++ {
		sum, count := 0.0, 0
		for _, name := range t.Columns {
			v := t.Values[name][i]
			if math.IsNaN(v) || math.IsInf(v, 0) {
				continue
			}
			sum += v
			count++
		}
		if count == 0 {
			out[i] = math.NaN()
			continue
		}
		out[i] = sum / float64(count)
	}
	return out
}

// IndexUnix returns the index as unix seconds, used for fingerprints
func (t *Table) IndexUnix() []int64 {
	out := make([]int64, len(t.Index))
	for i, ts := range t.Index {
		out[i] = ts.Unix()
	}
	return out
}
