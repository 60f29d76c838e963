package postgres

import (
	"context"
	"encoding/json"
	stderrors "errors"
	"regexp"
	"testing"
	"time"

	"goregime/domain/core"
	"goregime/domain/regime"
	"goregime/internal/errors"
	"goregime/ports"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var runColumns = []string{
	"run_id", "country", "fingerprint", "current_regime", "confidence", "num_regimes",
	"is_valid", "is_fallback", "quality_level", "result", "created_at",
}

func newMockRepo(t *testing.T) (*RunRepository, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return NewRunRepository(sqlx.NewDb(db, "postgres")), mock
}

func sampleResult() *regime.RegimeAnalysisResult {
	return &regime.RegimeAnalysisResult{
		RunID:               core.RunID("5a0c3f0e-8d7b-4b8e-9a52-1f1f1c7f2e10"),
		Country:             "US",
		CurrentRegime:       regime.Expansion,
		RegimeProbabilities: map[regime.RegimeType]float64{regime.Expansion: 0.9, regime.Recession: 0.1},
		TransitionMatrix:    regime.UniformTransitionMatrix(regime.NamedRegimes()),
		Validation:          regime.ModelValidationResult{IsValid: true, Score: 0.78},
		Confidence:          0.82,
		NumRegimes:          2,
		Timestamp:           core.NewTimestamp(time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)),
		DataQuality:         regime.NewDataQualityReport(1, 1, 0.8, 0.9, nil),
	}
}

func TestRunRepository_SaveRun(t *testing.T) {
	repo, mock := newMockRepo(t)
	result := sampleResult()

	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO regime_runs")).
		WithArgs(
			result.RunID.String(), "US", "fp-1", "expansion", 0.82, 2,
			true, false, string(regime.QualityExcellent), sqlmock.AnyArg(), result.Timestamp.Time(),
		).
		WillReturnResult(sqlmock.NewResult(0, 1))

	require.NoError(t, repo.SaveRun(context.Background(), "fp-1", result))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRunRepository_SaveRunFailure(t *testing.T) {
	repo, mock := newMockRepo(t)
	mock.ExpectExec("INSERT INTO regime_runs").WillReturnError(stderrors.New("connection reset"))

	err := repo.SaveRun(context.Background(), "fp-1", sampleResult())
	require.Error(t, err)
	assert.Equal(t, errors.CodeDatabaseError, errors.GetCode(err))
}

func TestRunRepository_GetRun(t *testing.T) {
	repo, mock := newMockRepo(t)
	result := sampleResult()
	payload, err := json.Marshal(result)
	require.NoError(t, err)
	created := result.Timestamp.Time()

	mock.ExpectQuery("SELECT (.+) FROM regime_runs WHERE run_id = \\$1").
		WithArgs(result.RunID.String()).
		WillReturnRows(sqlmock.NewRows(runColumns).
			AddRow(result.RunID.String(), "US", "fp-1", "expansion", 0.82, 2, true, false, "excellent", payload, created))

	got, err := repo.GetRun(context.Background(), result.RunID)
	require.NoError(t, err)
	assert.Equal(t, result.RunID, got.RunID)
	assert.Equal(t, regime.Expansion, got.CurrentRegime)
	assert.Equal(t, regime.QualityExcellent, got.QualityLevel)
	assert.True(t, got.IsValid)
	assert.Equal(t, created, got.CreatedAt.Time())

	var decoded regime.RegimeAnalysisResult
	require.NoError(t, json.Unmarshal(got.Result, &decoded))
	assert.Equal(t, result.Confidence, decoded.Confidence)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRunRepository_GetRunNotFound(t *testing.T) {
	repo, mock := newMockRepo(t)
	mock.ExpectQuery("SELECT (.+) FROM regime_runs").WillReturnRows(sqlmock.NewRows(runColumns))

	_, err := repo.GetRun(context.Background(), core.RunID("missing"))
	require.Error(t, err)
	assert.True(t, core.IsNotFoundError(err))
	assert.Equal(t, errors.CodeNotFound, errors.GetCode(err))
}

func TestRunRepository_ListRuns(t *testing.T) {
	created := time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)

	tests := []struct {
		name       string
		filters    ports.RunFilters
		wantLimit  int
		wantOffset int
	}{
		{"defaults", ports.RunFilters{}, defaultListLimit, 0},
		{"country page", ports.RunFilters{Country: "DE", Limit: 5, Offset: 10}, 5, 10},
		{"negative offset", ports.RunFilters{Offset: -4}, defaultListLimit, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			repo, mock := newMockRepo(t)
			mock.ExpectQuery("SELECT (.+) FROM regime_runs WHERE (.+) ORDER BY created_at DESC LIMIT \\$2 OFFSET \\$3").
				WithArgs(tt.filters.Country, tt.wantLimit, tt.wantOffset).
				WillReturnRows(sqlmock.NewRows(runColumns).
					AddRow("a", "DE", "fp-a", "recession", 0.7, 2, true, false, "good", nil, created).
					AddRow("b", "DE", "fp-b", "unknown", 0.0, 0, false, true, "poor", nil, created.Add(-time.Hour)))

			runs, err := repo.ListRuns(context.Background(), tt.filters)
			require.NoError(t, err)
			require.Len(t, runs, 2)
			assert.Equal(t, core.RunID("a"), runs[0].RunID)
			assert.True(t, runs[1].IsFallback)
			assert.Nil(t, runs[1].Result)
			assert.NoError(t, mock.ExpectationsWereMet())
		})
	}
}
