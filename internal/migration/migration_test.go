package migration

import (
	"context"
	stderrors "errors"
	"testing"

	"goregime/internal/errors"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMigrationRunner_Run(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectExec("CREATE TABLE IF NOT EXISTS regime_runs").WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec("CREATE INDEX IF NOT EXISTS idx_regime_runs_country_created").WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec("CREATE INDEX IF NOT EXISTS idx_regime_runs_fingerprint").WillReturnResult(sqlmock.NewResult(0, 0))

	runner := NewRunner()
	require.NoError(t, runner.Run(context.Background(), sqlx.NewDb(db, "postgres")))
	assert.Equal(t, "1.0.0", runner.Version())
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestMigrationRunner_StopsOnFailure(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectExec("CREATE TABLE IF NOT EXISTS regime_runs").WillReturnError(stderrors.New("permission denied"))

	err = NewRunner().Run(context.Background(), sqlx.NewDb(db, "postgres"))
	require.Error(t, err)
	assert.Equal(t, errors.CodeDatabaseError, errors.GetCode(err))
	assert.Contains(t, err.Error(), "regime_runs")
	assert.NoError(t, mock.ExpectationsWereMet())
}
