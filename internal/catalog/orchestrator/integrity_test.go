package orchestrator

import (
	"context"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/require"
)

// These exercise checkIntegrity/finalizeCatalog against a mocked driver
// rather than a real sqlite file, since provoking sqlite's own quick_check
// into reporting corruption (as opposed to an outright I/O error) isn't
// practical to set up from a fixture on disk.

func TestCheckIntegrityPassesOnOK(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectQuery("PRAGMA quick_check").WillReturnRows(
		sqlmock.NewRows([]string{"quick_check"}).AddRow("ok"))

	require.NoError(t, checkIntegrity(context.Background(), db, false))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestCheckIntegrityFailsOnCorruption(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectQuery("PRAGMA quick_check").WillReturnRows(
		sqlmock.NewRows([]string{"quick_check"}).AddRow("*** in database main ***\npage 3 is never used"))

	err = checkIntegrity(context.Background(), db, true)
	require.Error(t, err)
	require.Contains(t, err.Error(), "wal carried over: true")
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestFinalizeCatalogRunsCheckpointThenJournalModeThenQuickCheck(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectExec("PRAGMA wal_checkpoint").WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec("PRAGMA journal_mode").WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery("PRAGMA quick_check").WillReturnRows(
		sqlmock.NewRows([]string{"quick_check"}).AddRow("ok"))

	require.NoError(t, finalizeCatalog(context.Background(), db))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestFinalizeCatalogSurfacesCheckpointError(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectExec("PRAGMA wal_checkpoint").WillReturnError(sqlContextErr)

	err = finalizeCatalog(context.Background(), db)
	require.Error(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}

var sqlContextErr = sqlmockDriverErr("disk I/O error")

type sqlmockDriverErr string

func (e sqlmockDriverErr) Error() string { return string(e) }
