package postgrestesting

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	tcpostgres "github.com/testcontainers/testcontainers-go/modules/postgres"

	"github.com/vesdata/warehouse/loader/pkg/postgres"
)

type DBConfig struct {
	Database       string
	Username       string
	Password       string
	ContainerImage string
}

type DB struct {
	log       *slog.Logger
	cfg       *DBConfig
	dsn       string
	container *tcpostgres.PostgresContainer
}

// DSN returns the connection string for the Postgres container.
func (db *DB) DSN() string {
	return db.dsn
}

// SchemaDSN returns a connection string scoped to one schema via
// search_path, so parallel tests sharing the container stay isolated.
func (db *DB) SchemaDSN(schema string) string {
	return db.dsn + "&search_path=" + schema
}

func (db *DB) Close() {
	terminateCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := db.container.Terminate(terminateCtx); err != nil {
		db.log.Error("failed to terminate Postgres container", "error", err)
	}
}

func (cfg *DBConfig) Validate() error {
	if cfg.Database == "" {
		cfg.Database = "warehouse"
	}
	if cfg.Username == "" {
		cfg.Username = "warehouse"
	}
	if cfg.Password == "" {
		cfg.Password = "password"
	}
	if cfg.ContainerImage == "" {
		cfg.ContainerImage = "postgres:17-alpine"
	}
	return nil
}

// NewTestClient creates a pool scoped to a fresh schema in the shared
// container and optionally runs the loader migrations into it.
func NewTestClient(t *testing.T, db *DB, migrate bool) (postgres.DB, error) {
	schema := "t_" + strings.ReplaceAll(uuid.NewString(), "-", "")

	admin, err := postgres.NewClient(t.Context(), postgres.Config{
		Logger: slog.Default(),
		DSN:    db.dsn,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect for schema setup: %w", err)
	}
	defer admin.Close()

	if _, err := admin.Exec(t.Context(), "CREATE SCHEMA "+schema); err != nil {
		return nil, fmt.Errorf("failed to create test schema: %w", err)
	}

	dsn := db.SchemaDSN(schema)
	if migrate {
		if err := postgres.RunMigrations(t.Context(), slog.Default(), postgres.MigrationConfig{DSN: dsn}); err != nil {
			return nil, fmt.Errorf("failed to run migrations: %w", err)
		}
	}

	client, err := postgres.NewClient(t.Context(), postgres.Config{
		Logger: slog.Default(),
		DSN:    dsn,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create test client: %w", err)
	}

	t.Cleanup(client.Close)
	return client, nil
}

// NewDB creates a new Postgres testcontainer.
func NewDB(ctx context.Context, log *slog.Logger, cfg *DBConfig) (*DB, error) {
	if cfg == nil {
		cfg = &DBConfig{}
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("failed to validate DB config: %w", err)
	}

	// Retry container start up to 3 times for retryable errors
	var container *tcpostgres.PostgresContainer
	var lastErr error
	for attempt := 1; attempt <= 3; attempt++ {
		var err error
		container, err = runContainer(ctx, cfg)
		if err != nil {
			lastErr = err
			if isRetryableContainerStartErr(err) && attempt < 3 {
				time.Sleep(time.Duration(attempt) * 750 * time.Millisecond)
				continue
			}
			return nil, fmt.Errorf("failed to start Postgres container after retries: %w", lastErr)
		}
		break
	}

	if container == nil {
		return nil, fmt.Errorf("failed to start Postgres container after retries: %w", lastErr)
	}

	dsn, err := container.ConnectionString(ctx, "sslmode=disable")
	if err != nil {
		container.Terminate(ctx)
		return nil, fmt.Errorf("failed to get Postgres connection string: %w", err)
	}

	return &DB{
		log:       log,
		cfg:       cfg,
		dsn:       dsn,
		container: container,
	}, nil
}

// runContainer starts the Postgres container, converting panics into
// errors. testcontainers panics instead of returning an error when no
// Docker host can be resolved at all, and TestMain callers rely on
// NewDB returning an error so database tests degrade to skips.
func runContainer(ctx context.Context, cfg *DBConfig) (container *tcpostgres.PostgresContainer, err error) {
	defer func() {
		if r := recover(); r != nil {
			container = nil
			err = fmt.Errorf("postgres container start panicked: %v", r)
		}
	}()
	return tcpostgres.Run(ctx,
		cfg.ContainerImage,
		tcpostgres.WithDatabase(cfg.Database),
		tcpostgres.WithUsername(cfg.Username),
		tcpostgres.WithPassword(cfg.Password),
		tcpostgres.BasicWaitStrategies(),
	)
}

func isRetryableContainerStartErr(err error) bool {
	if err == nil {
		return false
	}
	s := err.Error()
	return strings.Contains(s, "wait until ready") ||
		strings.Contains(s, "mapped port") ||
		strings.Contains(s, "timeout") ||
		strings.Contains(s, "context deadline exceeded") ||
		strings.Contains(s, "/containers/") && strings.Contains(s, "json")
}
