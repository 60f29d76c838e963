package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	goerrors "errors"
	"fmt"
	"time"

	"goregime/domain/core"
	"goregime/domain/regime"
	"goregime/internal/errors"
	"goregime/ports"

	"github.com/jmoiron/sqlx"
)

const defaultListLimit = 50

// runRow is the regime_runs table layout
type runRow struct {
	RunID         string    `db:"run_id"`
	Country       string    `db:"country"`
	Fingerprint   string    `db:"fingerprint"`
	CurrentRegime string    `db:"current_regime"`
	Confidence    float64   `db:"confidence"`
	NumRegimes    int       `db:"num_regimes"`
	IsValid       bool      `db:"is_valid"`
	IsFallback    bool      `db:"is_fallback"`
	QualityLevel  string    `db:"quality_level"`
	Result        []byte    `db:"result"`
	CreatedAt     time.Time `db:"created_at"`
}

func (r runRow) summary() ports.RunSummary {
	return ports.RunSummary{
		RunID:         core.RunID(r.RunID),
		Country:       r.Country,
		Fingerprint:   r.Fingerprint,
		CurrentRegime: regime.RegimeType(r.CurrentRegime),
		Confidence:    r.Confidence,
		NumRegimes:    r.NumRegimes,
		IsValid:       r.IsValid,
		IsFallback:    r.IsFallback,
		QualityLevel:  regime.QualityLevel(r.QualityLevel),
		Result:        r.Result,
		CreatedAt:     core.NewTimestamp(r.CreatedAt),
	}
}

// RunRepository stores analysis run summaries in PostgreSQL
type RunRepository struct {
	db *sqlx.DB
}

func NewRunRepository(db *sqlx.DB) *RunRepository {
	return &RunRepository{db: db}
}

var _ ports.RunRepository = (*RunRepository)(nil)

// SaveRun inserts the run, replacing an earlier row with the same run id
func (r *RunRepository) SaveRun(ctx context.Context, fingerprint string, result *regime.RegimeAnalysisResult) error {
	payload, err := json.Marshal(result)
	if err != nil {
		return errors.DatabaseError(fmt.Errorf("failed to marshal result: %w", err))
	}
	row := runRow{
		RunID:         result.RunID.String(),
		Country:       result.Country,
		Fingerprint:   fingerprint,
		CurrentRegime: result.CurrentRegime.String(),
		Confidence:    result.Confidence,
		NumRegimes:    result.NumRegimes,
		IsValid:       result.Validation.IsValid,
		IsFallback:    result.IsFallback,
		QualityLevel:  string(result.DataQuality.Level),
		Result:        payload,
		CreatedAt:     result.Timestamp.Time(),
	}
	if row.CreatedAt.IsZero() {
		row.CreatedAt = time.Now().UTC()
	}

	_, err = r.db.NamedExecContext(ctx, `
		INSERT INTO regime_runs (
			run_id, country, fingerprint, current_regime, confidence, num_regimes,
			is_valid, is_fallback, quality_level, result, created_at
		) VALUES (
			:run_id, :country, :fingerprint, :current_regime, :confidence, :num_regimes,
			:is_valid, :is_fallback, :quality_level, :result, :created_at
		)
		ON CONFLICT (run_id) DO UPDATE SET
			current_regime = EXCLUDED.current_regime,
			confidence = EXCLUDED.confidence,
			result = EXCLUDED.result
	`, row)
	if err != nil {
		return errors.DatabaseError(fmt.Errorf("failed to save run %s: %w", row.RunID, err))
	}
	return nil
}

// GetRun loads one run including its full result payload
func (r *RunRepository) GetRun(ctx context.Context, runID core.RunID) (*ports.RunSummary, error) {
	var row runRow
	err := r.db.GetContext(ctx, &row, `
		SELECT run_id, country, fingerprint, current_regime, confidence, num_regimes,
		       is_valid, is_fallback, quality_level, result, created_at
		FROM regime_runs
		WHERE run_id = $1
	`, runID.String())
	if goerrors.Is(err, sql.ErrNoRows) {
		return nil, errors.Wrapf(core.ErrRunNotFound, "run %s", runID)
	}
	if err != nil {
		return nil, errors.DatabaseError(fmt.Errorf("failed to get run %s: %w", runID, err))
	}
	s := row.summary()
	return &s, nil
}

// ListRuns returns runs newest first without their result payloads
func (r *RunRepository) ListRuns(ctx context.Context, filters ports.RunFilters) ([]ports.RunSummary, error) {
	limit := filters.Limit
	if limit <= 0 {
		limit = defaultListLimit
	}
	offset := filters.Offset
	if offset < 0 {
		offset = 0
	}

	var rows []runRow
	err := r.db.SelectContext(ctx, &rows, `
		SELECT run_id, country, fingerprint, current_regime, confidence, num_regimes,
		       is_valid, is_fallback, quality_level, NULL::bytea AS result, created_at
		FROM regime_runs
		WHERE ($1 = '' OR country = $1)
		ORDER BY created_at DESC
		LIMIT $2 OFFSET $3
	`, filters.Country, limit, offset)
	if err != nil {
		return nil, errors.DatabaseError(fmt.Errorf("failed to list runs: %w", err))
	}

	out := make([]ports.RunSummary, len(rows))
	for i, row := range rows {
		out[i] = row.summary()
	}
	return out, nil
}
