package ves

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/jonboulle/clockwork"

	"github.com/vesdata/warehouse/loader/pkg/dataset"
	"github.com/vesdata/warehouse/loader/pkg/postgres"
)

type StoreConfig struct {
	Logger *slog.Logger
	Clock  clockwork.Clock
	DB     postgres.DB
}

func (cfg *StoreConfig) Validate() error {
	if cfg.Logger == nil {
		return errors.New("logger is required")
	}
	if cfg.DB == nil {
		return errors.New("database connection is required")
	}
	if cfg.Clock == nil {
		cfg.Clock = clockwork.NewRealClock()
	}
	return nil
}

// Store owns the four VES warehouse tables. All writes go through the
// generic dataset loaders; this type only binds them to the concrete
// schemas and staging transforms.
type Store struct {
	log *slog.Logger
	cfg StoreConfig

	veteranSchema     *VeteranSchema
	providerSchema    *ProviderSchema
	examRequestSchema *ExamRequestSchema
	appointmentSchema *AppointmentSchema

	veterans     *dataset.DimensionType2Dataset
	providers    *dataset.DimensionType2Dataset
	examRequests *dataset.SnapshotDataset
	appointments *dataset.SnapshotDataset
}

func NewStore(cfg StoreConfig) (*Store, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	s := &Store{
		log:               cfg.Logger,
		cfg:               cfg,
		veteranSchema:     &VeteranSchema{},
		providerSchema:    &ProviderSchema{},
		examRequestSchema: &ExamRequestSchema{},
		appointmentSchema: &AppointmentSchema{},
	}

	var err error
	if s.veterans, err = dataset.NewDimensionType2Dataset(cfg.Logger, s.veteranSchema); err != nil {
		return nil, fmt.Errorf("failed to create veterans dataset: %w", err)
	}
	if s.providers, err = dataset.NewDimensionType2Dataset(cfg.Logger, s.providerSchema); err != nil {
		return nil, fmt.Errorf("failed to create providers dataset: %w", err)
	}
	if s.examRequests, err = dataset.NewSnapshotDataset(cfg.Logger, s.examRequestSchema); err != nil {
		return nil, fmt.Errorf("failed to create exam requests dataset: %w", err)
	}
	if s.appointments, err = dataset.NewSnapshotDataset(cfg.Logger, s.appointmentSchema); err != nil {
		return nil, fmt.Errorf("failed to create appointments dataset: %w", err)
	}
	return s, nil
}

// DB returns the underlying database handle.
func (s *Store) DB() postgres.DB {
	return s.cfg.DB
}

// LoadVeterans applies a veteran batch to the Type-2 dimension.
func (s *Store) LoadVeterans(ctx context.Context, records []VeteranRecord) (*dataset.WriteReport, error) {
	s.log.Debug("ves/store: loading veterans", "count", len(records))

	staged, rejected := StageVeterans(records)
	report, err := s.veterans.WriteBatch(ctx, s.cfg.DB, len(staged), func(i int) ([]any, error) {
		return s.veteranSchema.ToRow(staged[i]), nil
	}, &dataset.DimensionWriteConfig{EffectiveTS: s.cfg.Clock.Now()})
	if err != nil {
		return report, fmt.Errorf("failed to write veterans batch: %w", err)
	}
	report.Skipped = append(rejected, report.Skipped...)
	return report, nil
}

// LoadProviders applies a provider batch to the Type-2 dimension.
func (s *Store) LoadProviders(ctx context.Context, records []ProviderRecord) (*dataset.WriteReport, error) {
	s.log.Debug("ves/store: loading providers", "count", len(records))

	staged, rejected := StageProviders(records)
	report, err := s.providers.WriteBatch(ctx, s.cfg.DB, len(staged), func(i int) ([]any, error) {
		return s.providerSchema.ToRow(staged[i]), nil
	}, &dataset.DimensionWriteConfig{EffectiveTS: s.cfg.Clock.Now()})
	if err != nil {
		return report, fmt.Errorf("failed to write providers batch: %w", err)
	}
	report.Skipped = append(rejected, report.Skipped...)
	return report, nil
}

// MergeExamRequests merges an exam-request batch into the
// accumulating snapshot.
func (s *Store) MergeExamRequests(ctx context.Context, records []ExamRequestRecord) (*dataset.WriteReport, error) {
	s.log.Debug("ves/store: merging exam requests", "count", len(records))

	staged, rejected := StageExamRequests(records)
	report, err := s.examRequests.WriteBatch(ctx, s.cfg.DB, len(staged), func(i int) ([]any, error) {
		return s.examRequestSchema.ToRow(staged[i]), nil
	}, &dataset.SnapshotWriteConfig{MergeTS: s.cfg.Clock.Now()})
	if err != nil {
		return report, fmt.Errorf("failed to merge exam requests batch: %w", err)
	}
	report.Skipped = append(rejected, report.Skipped...)
	return report, nil
}

// MergeAppointments merges an appointment batch into the accumulating
// snapshot.
func (s *Store) MergeAppointments(ctx context.Context, records []AppointmentRecord) (*dataset.WriteReport, error) {
	s.log.Debug("ves/store: merging appointments", "count", len(records))

	staged, rejected := StageAppointments(records)
	report, err := s.appointments.WriteBatch(ctx, s.cfg.DB, len(staged), func(i int) ([]any, error) {
		return s.appointmentSchema.ToRow(staged[i]), nil
	}, &dataset.SnapshotWriteConfig{MergeTS: s.cfg.Clock.Now()})
	if err != nil {
		return report, fmt.Errorf("failed to merge appointments batch: %w", err)
	}
	report.Skipped = append(rejected, report.Skipped...)
	return report, nil
}

// GetCurrentVeteran returns the current dimension version for a file
// number, or nil when the veteran has never been loaded.
func (s *Store) GetCurrentVeteran(ctx context.Context, fileNumber string) (dataset.Row, error) {
	return s.veterans.GetCurrentVersion(ctx, s.cfg.DB, dataset.NewNaturalKey(fileNumber))
}

// GetExamRequest returns the snapshot row for a request number, or
// nil when the request has never been seen.
func (s *Store) GetExamRequest(ctx context.Context, requestNumber string) (dataset.Row, error) {
	return s.examRequests.GetRow(ctx, s.cfg.DB, dataset.NewNaturalKey(requestNumber))
}

// GetAppointment returns the snapshot row for an appointment ID, or
// nil when the appointment has never been seen.
func (s *Store) GetAppointment(ctx context.Context, appointmentID string) (dataset.Row, error) {
	return s.appointments.GetRow(ctx, s.cfg.DB, dataset.NewNaturalKey(appointmentID))
}
