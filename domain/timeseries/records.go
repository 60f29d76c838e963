package timeseries

import (
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"goregime/domain/core"
)

// dateColumnNames are header names treated as the row timestamp
var dateColumnNames = map[string]bool{
	"date":             true,
	"time":             true,
	"timestamp":        true,
	"period":           true,
	"month":            true,
	"observation_date": true,
	"datetime":         true,
}

var dateLayouts = []string{
	time.RFC3339,
	"2006-01-02",
	"2006-01-02 15:04:05",
	"2006/01/02",
	"01/02/2006",
	"2006-01",
	"2006/01",
	"Jan 2006",
	"2006",
}

// missingTokens are cell values read as missing rather than unparsable
var missingTokens = map[string]bool{
	"":     true,
	".":    true,
	"na":   true,
	"n/a":  true,
	"nan":  true,
	"null": true,
	"none": true,
	"-":    true,
}

// minNumericShare is the share of non-missing cells that must parse for a column to be numeric
const minNumericShare = 0.5

// FromRecords coerces a header row and string rows into a Table. A recognised date column
// becomes the index; columns whose non-missing cells mostly fail to parse are dropped.
// Rows whose date cannot be parsed keep a zero timestamp and are removed during cleaning.
func FromRecords(headers []string, rows [][]string) (*Table, error) {
	if len(headers) == 0 {
		return nil, fmt.Errorf("%w: no header row", core.ErrInvalidTable)
	}

	dateCol := -1
	for i, h := range headers {
		if dateColumnNames[strings.ToLower(strings.TrimSpace(h))] {
			dateCol = i
			break
		}
	}

	var index []time.Time
	if dateCol >= 0 {
		index = make([]time.Time, len(rows))
		for r, row := range rows {
			if dateCol < len(row) {
				if ts, ok := ParseDate(row[dateCol]); ok {
					index[r] = ts
				}
			}
		}
	}

	columns := make([]string, 0, len(headers))
	values := make(map[string][]float64, len(headers))
	for c, h := range headers {
		if c == dateCol {
			continue
		}
		name := strings.TrimSpace(h)
		if name == "" {
			name = fmt.Sprintf("column_%d", c+1)
		}
		if _, dup := values[name]; dup {
			name = fmt.Sprintf("%s_%d", name, c+1)
		}

		col := make([]float64, len(rows))
		observed, parsed := 0, 0
		for r, row := range rows {
			cell := ""
			if c < len(row) {
				cell = row[c]
			}
			v, missing, ok := ParseNumber(cell)
			switch {
			case missing:
				col[r] = math.NaN()
			case ok:
				observed++
				parsed++
				col[r] = v
			default:
				observed++
				col[r] = math.NaN()
			}
		}
		if observed > 0 && float64(parsed)/float64(observed) < minNumericShare {
			continue
		}
		columns = append(columns, name)
		values[name] = col
	}

	if len(columns) == 0 {
		return nil, core.ErrNoNumericColumns
	}
	return NewTable(index, columns, values)
}

// ParseNumber parses a numeric cell. missing is true for empty/NA tokens.
func ParseNumber(cell string) (value float64, missing bool, ok bool) {
	s := strings.TrimSpace(cell)
	if missingTokens[strings.ToLower(s)] {
		return math.NaN(), true, false
	}
	s = strings.ReplaceAll(s, ",", "")
	percent := strings.HasSuffix(s, "%")
	s = strings.TrimSuffix(s, "%")
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return math.NaN(), false, false
	}
	if percent {
		v /= 100
	}
	return v, false, true
}

// ParseDate tries the supported layouts in order
func ParseDate(cell string) (time.Time, bool) {
	s := strings.TrimSpace(cell)
	if s == "" {
		return time.Time{}, false
	}
	for _, layout := range dateLayouts {
		if ts, err := time.Parse(layout, s); err == nil {
			return ts.UTC(), true
		}
	}
	return time.Time{}, false
}
