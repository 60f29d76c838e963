package excel

import (
	"encoding/csv"
	"fmt"
	"io"
	"math"
	"strconv"

	"goregime/domain/timeseries"

	"github.com/xuri/excelize/v2"
)

// DefaultSheet is the sheet name used when writing workbooks
const DefaultSheet = "Data"

// WriteTable writes table with a leading date column (when indexed) in the given file type.
// Missing values are written as empty cells.
func WriteTable(w io.Writer, table *timeseries.Table, fileType string) error {
	records := tableRecords(table)
	switch fileType {
	case FileTypeCSV:
		cw := csv.NewWriter(w)
		if err := cw.WriteAll(records); err != nil {
			return fmt.Errorf("failed to write CSV: %w", err)
		}
		return nil
	case FileTypeXLSX:
		return writeWorkbook(w, table, records[0])
	default:
		return fmt.Errorf("unsupported file type %q", fileType)
	}
}

func tableRecords(table *timeseries.Table) [][]string {
	indexed := len(table.Index) > 0
	header := make([]string, 0, len(table.Columns)+1)
	if indexed {
		header = append(header, "date")
	}
	header = append(header, table.Columns...)

	records := [][]string{header}
	for i := 0; i < table.Len(); i++ {
		row := make([]string, 0, len(header))
		if indexed {
			row = append(row, table.Index[i].Format("2006-01-02"))
		}
		for _, c := range table.Columns {
			v := table.Values[c][i]
			if math.IsNaN(v) {
				row = append(row, "")
				continue
			}
			row = append(row, strconv.FormatFloat(v, 'f', -1, 64))
		}
		records = append(records, row)
	}
	return records
}

func writeWorkbook(w io.Writer, table *timeseries.Table, header []string) error {
	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName("Sheet1", DefaultSheet); err != nil {
		return err
	}
	if err := f.SetSheetRow(DefaultSheet, "A1", &header); err != nil {
		return err
	}

	indexed := len(table.Index) > 0
	for i := 0; i < table.Len(); i++ {
		row := make([]interface{}, 0, len(header))
		if indexed {
			row = append(row, table.Index[i].Format("2006-01-02"))
		}
		for _, c := range table.Columns {
			v := table.Values[c][i]
			if math.IsNaN(v) || math.IsInf(v, 0) {
				row = append(row, nil)
				continue
			}
			row = append(row, v)
		}
		cell, err := excelize.CoordinatesToCellName(1, i+2)
		if err != nil {
			return err
		}
		if err := f.SetSheetRow(DefaultSheet, cell, &row); err != nil {
			return err
		}
	}
	if _, err := f.WriteTo(w); err != nil {
		return fmt.Errorf("failed to write workbook: %w", err)
	}
	return nil
}
