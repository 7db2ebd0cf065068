package loader

import (
	"errors"
	"log/slog"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/vesdata/warehouse/loader/pkg/postgres"
)

type Config struct {
	Logger *slog.Logger
	Clock  clockwork.Clock
	DB     postgres.DB

	// VESEnv names the environment this database belongs to (dev,
	// staging, prod). The loader refuses to write into a database
	// locked to a different environment.
	VESEnv string

	MigrationsEnable bool
	MigrationsConfig postgres.MigrationConfig

	RefreshInterval time.Duration
	Source          Source
}

func (c *Config) Validate() error {
	if c.Logger == nil {
		return errors.New("logger is required")
	}
	if c.DB == nil {
		return errors.New("database connection is required")
	}
	if c.VESEnv == "" {
		return errors.New("ves env is required")
	}
	if c.RefreshInterval <= 0 {
		return errors.New("refresh interval must be greater than 0")
	}
	if c.Source == nil {
		return errors.New("source is required")
	}

	if c.Clock == nil {
		c.Clock = clockwork.NewRealClock()
	}
	return nil
}
