package ports

import (
	"context"

	"goregime/domain/regime"
	"goregime/domain/timeseries"
)

// Preprocessor cleans raw tables and scores their quality
type Preprocessor interface {
	Preprocess(table *timeseries.Table) (*timeseries.Table, error)
	ValidateQuality(table *timeseries.Table) regime.DataQualityReport
}

// RegimeModel fits a regime-switching model to a clean table
type RegimeModel interface {
	Fit(ctx context.Context, table *timeseries.Table) (*regime.FittedRegimeModel, error)
}

// Validator runs diagnostics on a fitted model. It never fails; problems are recorded in
// the result.
type Validator interface {
	Validate(ctx context.Context, model *regime.FittedRegimeModel) regime.ModelValidationResult
}

// Characterizer names the statistical clusters of a fitted model
type Characterizer interface {
	CharacterizeRegimes(model *regime.FittedRegimeModel, data *timeseries.Table) (*regime.Characterization, error)
}
