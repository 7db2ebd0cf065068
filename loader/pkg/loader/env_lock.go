package loader

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/vesdata/warehouse/loader/pkg/postgres"
)

// checkEnvLock binds a database to one VES environment. The first
// loader to start claims the lock; any loader configured for a
// different environment is refused before it can write a row.
func checkEnvLock(ctx context.Context, db postgres.DB, vesEnv string) error {
	var storedEnv string
	err := db.QueryRow(ctx, "SELECT ves_env FROM _env_lock LIMIT 1").Scan(&storedEnv)
	switch {
	case errors.Is(err, pgx.ErrNoRows):
		// No rows — insert the lock
		if _, err := db.Exec(ctx, "INSERT INTO _env_lock (ves_env) VALUES ($1)", vesEnv); err != nil {
			return fmt.Errorf("failed to insert env lock: %w", err)
		}
		return nil
	case err != nil:
		return fmt.Errorf("failed to query env lock: %w", err)
	case storedEnv != vesEnv:
		return fmt.Errorf("database is locked to env %q but loader is configured for %q", storedEnv, vesEnv)
	}
	return nil
}
