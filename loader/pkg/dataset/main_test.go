package dataset

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"testing"

	"github.com/jackc/pgx/v5"
	"github.com/stretchr/testify/require"

	"github.com/vesdata/warehouse/loader/pkg/postgres"
	postgrestesting "github.com/vesdata/warehouse/loader/pkg/postgres/testing"
	utilstesting "github.com/vesdata/warehouse/utils/pkg/testing"
)

var sharedDB *postgrestesting.DB

func TestMain(m *testing.M) {
	log := utilstesting.NewLogger()
	db, err := postgrestesting.NewDB(context.Background(), log, nil)
	if err != nil {
		// Unit tests still run; database tests skip themselves.
		log.Warn("postgres container unavailable, database tests will be skipped", "error", err)
	} else {
		sharedDB = db
	}
	code := m.Run()
	if sharedDB != nil {
		sharedDB.Close()
	}
	os.Exit(code)
}

func testLogger() *slog.Logger {
	return utilstesting.NewLogger()
}

func testDB(t *testing.T) postgres.DB {
	if sharedDB == nil {
		t.Skip("postgres container unavailable")
	}
	client, err := postgrestesting.NewTestClient(t, sharedDB, false)
	require.NoError(t, err)
	return client
}

func createVeteranDimTable(t *testing.T, db postgres.DB) {
	_, err := db.Exec(t.Context(), `
		CREATE TABLE dim_test_veterans (
			version_id UUID PRIMARY KEY,
			entity_id TEXT NOT NULL,
			op_id UUID NOT NULL,
			file_number TEXT NOT NULL,
			last_name TEXT,
			rating_pct BIGINT,
			content_hash CHAR(32) NOT NULL,
			effective_start TIMESTAMPTZ NOT NULL,
			effective_end TIMESTAMPTZ,
			is_current BOOLEAN NOT NULL DEFAULT TRUE
		)
	`)
	require.NoError(t, err)
	_, err = db.Exec(t.Context(),
		"CREATE UNIQUE INDEX dim_test_veterans_current_uq ON dim_test_veterans (entity_id) WHERE is_current")
	require.NoError(t, err)
}

func createRequestSnapshotTable(t *testing.T, db postgres.DB) {
	_, err := db.Exec(t.Context(), `
		CREATE TABLE fact_test_requests (
			row_id TEXT PRIMARY KEY,
			op_id UUID NOT NULL,
			request_number TEXT NOT NULL,
			received_date DATE,
			assigned_date DATE,
			status TEXT,
			days_to_assignment BIGINT,
			created_at TIMESTAMPTZ NOT NULL,
			updated_at TIMESTAMPTZ NOT NULL
		)
	`)
	require.NoError(t, err)
}

// commitFailDB hands out transactions whose Commit always fails, for
// exercising the write paths' commit error handling against real SQL.
type commitFailDB struct {
	postgres.DB
}

func (db commitFailDB) Begin(ctx context.Context) (pgx.Tx, error) {
	tx, err := db.DB.Begin(ctx)
	if err != nil {
		return nil, err
	}
	return commitFailTx{Tx: tx}, nil
}

type commitFailTx struct {
	pgx.Tx
}

func (tx commitFailTx) Commit(ctx context.Context) error {
	tx.Tx.Rollback(ctx)
	return errors.New("connection reset")
}

func countRows(t *testing.T, db postgres.DB, table, where string, args ...any) int {
	query := fmt.Sprintf("SELECT COUNT(*) FROM %s", table)
	if where != "" {
		query += " WHERE " + where
	}
	var count int
	require.NoError(t, db.QueryRow(t.Context(), query, args...).Scan(&count))
	return count
}
