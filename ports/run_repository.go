package ports

import (
	"context"

	"goregime/domain/core"
	"goregime/domain/regime"
)

// RunSummary is the persisted digest of one analysis run
type RunSummary struct {
	RunID         core.RunID          `json:"run_id"`
	Country       string              `json:"country"`
	Fingerprint   string              `json:"fingerprint"`
	CurrentRegime regime.RegimeType   `json:"current_regime"`
	Confidence    float64             `json:"confidence"`
	NumRegimes    int                 `json:"num_regimes"`
	IsValid       bool                `json:"is_valid"`
	IsFallback    bool                `json:"is_fallback"`
	QualityLevel  regime.QualityLevel `json:"quality_level"`
	Result        []byte              `json:"-"`
	CreatedAt     core.Timestamp      `json:"created_at"`
}

// RunFilters narrows ListRuns
type RunFilters struct {
	Country string
	Limit   int
	Offset  int
}

// RunRepository persists analysis run summaries
type RunRepository interface {
	SaveRun(ctx context.Context, fingerprint string, result *regime.RegimeAnalysisResult) error
	GetRun(ctx context.Context, runID core.RunID) (*RunSummary, error)
	ListRuns(ctx context.Context, filters RunFilters) ([]RunSummary, error)
}
