package ves

import (
	"context"
	"log/slog"
	"os"
	"testing"

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

// testDB returns a pool scoped to a fresh schema with the loader
// migrations applied.
func testDB(t *testing.T) postgres.DB {
	if sharedDB == nil {
		t.Skip("postgres container unavailable")
	}
	client, err := postgrestesting.NewTestClient(t, sharedDB, true)
	require.NoError(t, err)
	return client
}
