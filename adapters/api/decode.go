package api

import (
	"bytes"
	"fmt"
	"io"
	"mime"
	"net/http"
	"strconv"

	"goregime/adapters/excel"
	"goregime/domain/core"
	"goregime/domain/timeseries"

	"github.com/tidwall/gjson"
)

// maxBodyBytes caps request bodies
const maxBodyBytes = 32 << 20

// request is the decoded form of an analyze, forecast or report call
type request struct {
	Country string
	Horizon int
	Table   *timeseries.Table
}

// decodeRequest reads a JSON body, or a CSV/XLSX upload with country and horizon as query
// parameters. JSON data is either columnar:
//
//	{"country": "US", "horizon": 6, "data": {"dates": [...], "series": {"gdp": [1.2, null]}}}
//
// or a list of records:
//
//	{"country": "US", "data": [{"date": "2020-01", "gdp": 1.2}, ...]}
func decodeRequest(r *http.Request, reader *excel.DataReader) (*request, error) {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxBodyBytes))
	if err != nil {
		return nil, fmt.Errorf("failed to read body: %w", err)
	}

	mediaType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	switch mediaType {
	case "text/csv", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet":
		fileType := excel.FileTypeCSV
		if mediaType != "text/csv" {
			fileType = excel.FileTypeXLSX
		}
		table, err := reader.Read(bytes.NewReader(body), fileType)
		if err != nil {
			return nil, err
		}
		horizon, _ := strconv.Atoi(r.URL.Query().Get("horizon"))
		return &request{Country: r.URL.Query().Get("country"), Horizon: horizon, Table: table}, nil
	}

	if !gjson.ValidBytes(body) {
		return nil, fmt.Errorf("%w: body is not valid JSON", core.ErrInvalidTable)
	}
	doc := gjson.ParseBytes(body)
	req := &request{
		Country: doc.Get("country").String(),
		Horizon: int(doc.Get("horizon").Int()),
	}

	data := doc.Get("data")
	switch {
	case data.IsArray():
		req.Table, err = recordsTable(data)
	case data.IsObject():
		req.Table, err = columnarTable(data)
	default:
		err = fmt.Errorf("%w: missing data", core.ErrInvalidTable)
	}
	if err != nil {
		return nil, err
	}
	return req, nil
}

// columnarTable converts {"dates": [...], "series": {...}} into string records
func columnarTable(data gjson.Result) (*timeseries.Table, error) {
	series := data.Get("series")
	if !series.IsObject() {
		return nil, fmt.Errorf("%w: data.series must be an object of arrays", core.ErrInvalidTable)
	}
	dates := data.Get("dates").Array()

	var names []string
	cols := make(map[string][]gjson.Result)
	n := len(dates)
	series.ForEach(func(key, value gjson.Result) bool {
		names = append(names, key.String())
		cols[key.String()] = value.Array()
		if len(dates) == 0 && len(value.Array()) > n {
			n = len(value.Array())
		}
		return true
	})

	headers := make([]string, 0, len(names)+1)
	if len(dates) > 0 {
		headers = append(headers, "date")
	}
	headers = append(headers, names...)

	rows := make([][]string, n)
	for i := range rows {
		row := make([]string, 0, len(headers))
		if len(dates) > 0 {
			row = append(row, dates[i].String())
		}
		for _, name := range names {
			row = append(row, cell(cols[name], i))
		}
		rows[i] = row
	}
	return timeseries.FromRecords(headers, rows)
}

// recordsTable converts [{"date": ..., "col": ...}, ...] into string records
func recordsTable(data gjson.Result) (*timeseries.Table, error) {
	records := data.Array()
	seen := make(map[string]bool)
	var headers []string
	for _, rec := range records {
		if !rec.IsObject() {
			return nil, fmt.Errorf("%w: data records must be objects", core.ErrInvalidTable)
		}
		rec.ForEach(func(key, _ gjson.Result) bool {
			if !seen[key.String()] {
				seen[key.String()] = true
				headers = append(headers, key.String())
			}
			return true
		})
	}

	rows := make([][]string, len(records))
	for i, rec := range records {
		fields := rec.Map()
		row := make([]string, len(headers))
		for j, h := range headers {
			if v, ok := fields[h]; ok && v.Type != gjson.Null {
				row[j] = v.String()
			}
		}
		rows[i] = row
	}
	return timeseries.FromRecords(headers, rows)
}

func cell(values []gjson.Result, i int) string {
	if i >= len(values) || values[i].Type == gjson.Null {
		return ""
	}
	return values[i].String()
}
