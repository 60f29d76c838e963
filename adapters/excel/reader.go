package excel

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"goregime/domain/core"
	"goregime/domain/timeseries"
	"goregime/internal"
	"goregime/ports"

	"github.com/xuri/excelize/v2"
)

// File types understood by DataReader
const (
	FileTypeCSV  = "csv"
	FileTypeXLSX = "xlsx"
)

// DataReader reads CSV and XLSX files into time series tables. The first row holds the
// headers; a date-like header becomes the index.
type DataReader struct {
	sheet  string
	logger *internal.Logger
}

var _ ports.TableReader = (*DataReader)(nil)

// NewDataReader creates a reader using sheet for workbooks; an empty sheet selects the first one
func NewDataReader(sheet string, logger *internal.Logger) *DataReader {
	if logger == nil {
		logger = internal.DefaultLogger
	}
	return &DataReader{sheet: sheet, logger: logger.With("excel")}
}

// FileTypeOf maps a path to csv or xlsx by extension
func FileTypeOf(path string) string {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".csv", ".txt":
		return FileTypeCSV
	default:
		return FileTypeXLSX
	}
}

// ReadTable reads the file at path
func (r *DataReader) ReadTable(path string) (*timeseries.Table, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s: %w", path, err)
	}
	defer f.Close()
	return r.Read(f, FileTypeOf(path))
}

// Read parses a CSV or XLSX stream
func (r *DataReader) Read(src io.Reader, fileType string) (*timeseries.Table, error) {
	start := time.Now()

	var rows [][]string
	var err error
	switch fileType {
	case FileTypeCSV:
		rows, err = r.csvRows(src)
	case FileTypeXLSX:
		rows, err = r.sheetRows(src)
	default:
		return nil, fmt.Errorf("%w: unsupported file type %q", core.ErrInvalidTable, fileType)
	}
	if err != nil {
		return nil, err
	}
	if len(rows) < 2 {
		return nil, fmt.Errorf("%w: need a header row and at least one data row", core.ErrInvalidTable)
	}

	headers := make([]string, len(rows[0]))
	for i, h := range rows[0] {
		headers[i] = strings.TrimSpace(h)
	}
	table, err := timeseries.FromRecords(headers, rows[1:])
	if err != nil {
		return nil, err
	}
	r.logger.Debug("%s read in %.2fms (%d rows, %d numeric columns)",
		strings.ToUpper(fileType), float64(time.Since(start).Microseconds())/1e3, table.Len(), len(table.Columns))
	return table, nil
}

func (r *DataReader) csvRows(src io.Reader) ([][]string, error) {
	reader := csv.NewReader(src)
	reader.FieldsPerRecord = -1
	reader.TrimLeadingSpace = true
	rows, err := reader.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("%w: failed to read CSV: %v", core.ErrInvalidTable, err)
	}
	return rows, nil
}

func (r *DataReader) sheetRows(src io.Reader) ([][]string, error) {
	f, err := excelize.OpenReader(src)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to open workbook: %v", core.ErrInvalidTable, err)
	}
	defer f.Close()

	sheet := r.sheet
	if sheet == "" {
		sheets := f.GetSheetList()
		if len(sheets) == 0 {
			return nil, fmt.Errorf("%w: workbook has no sheets", core.ErrInvalidTable)
		}
		sheet = sheets[0]
	}
	rows, err := f.GetRows(sheet)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to read sheet %s: %v", core.ErrInvalidTable, sheet, err)
	}
	return rows, nil
}
