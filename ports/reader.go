package ports

import "goregime/domain/timeseries"

// TableReader loads a time series table from a file
type TableReader interface {
	ReadTable(path string) (*timeseries.Table, error)
}
