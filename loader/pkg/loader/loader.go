// Package loader runs the periodic load cycle: fetch a batch from the
// operational source, write the dimensions, then merge the facts, and
// keep the outcome of the last cycle available for the ops endpoints.
package loader

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/vesdata/warehouse/loader/pkg/dataset"
	"github.com/vesdata/warehouse/loader/pkg/metrics"
	"github.com/vesdata/warehouse/loader/pkg/postgres"
	"github.com/vesdata/warehouse/loader/pkg/ves"
)

type Loader struct {
	log   *slog.Logger
	cfg   Config
	store *ves.Store

	refreshMu sync.Mutex // prevents concurrent load cycles

	mu        sync.RWMutex
	lastRunAt time.Time
	lastRun   []*dataset.WriteReport

	readyOnce sync.Once
	readyCh   chan struct{}
}

func New(ctx context.Context, cfg Config) (*Loader, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	if cfg.MigrationsEnable {
		if err := postgres.RunMigrations(ctx, cfg.Logger, cfg.MigrationsConfig); err != nil {
			return nil, fmt.Errorf("failed to run migrations: %w", err)
		}
		cfg.Logger.Info("migrations completed")
	}

	if err := checkEnvLock(ctx, cfg.DB, cfg.VESEnv); err != nil {
		return nil, fmt.Errorf("failed env lock check: %w", err)
	}

	store, err := ves.NewStore(ves.StoreConfig{
		Logger: cfg.Logger,
		Clock:  cfg.Clock,
		DB:     cfg.DB,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create store: %w", err)
	}

	return &Loader{
		log:     cfg.Logger,
		cfg:     cfg,
		store:   store,
		readyCh: make(chan struct{}),
	}, nil
}

func (l *Loader) Store() *ves.Store {
	return l.store
}

// Ready returns true once at least one load cycle has completed.
func (l *Loader) Ready() bool {
	select {
	case <-l.readyCh:
		return true
	default:
		return false
	}
}

// WaitReady blocks until the first load cycle completes or the context
// is cancelled.
func (l *Loader) WaitReady(ctx context.Context) error {
	select {
	case <-l.readyCh:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("context cancelled while waiting for loader: %w", ctx.Err())
	}
}

func (l *Loader) Start(ctx context.Context) {
	go func() {
		l.log.Info("loader: starting load loop", "interval", l.cfg.RefreshInterval)

		l.safeRunOnce(ctx)

		ticker := l.cfg.Clock.NewTicker(l.cfg.RefreshInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.Chan():
				l.safeRunOnce(ctx)
			}
		}
	}()
}

// safeRunOnce wraps RunOnce with panic recovery to keep the load loop
// alive.
func (l *Loader) safeRunOnce(ctx context.Context) {
	defer func() {
		if r := recover(); r != nil {
			l.log.Error("loader: load cycle panicked", "panic", r)
			metrics.LoadRunTotal.WithLabelValues("panic").Inc()
		}
	}()

	if err := l.RunOnce(ctx); err != nil {
		if errors.Is(err, context.Canceled) {
			return
		}
		l.log.Error("loader: load cycle failed", "error", err)
	}
}

// RunOnce executes a single load cycle. Dimensions load before facts
// so a fact row never references a provider version the dimension has
// not seen yet; the two dimensions (and then the two facts) load
// concurrently.
func (l *Loader) RunOnce(ctx context.Context) error {
	l.refreshMu.Lock()
	defer l.refreshMu.Unlock()

	start := time.Now()
	defer func() {
		duration := time.Since(start)
		l.log.Info("loader: load cycle completed", "duration", duration.String())
		metrics.LoadRunDuration.Observe(duration.Seconds())
	}()

	batch, err := l.cfg.Source.FetchBatch(ctx)
	if err != nil {
		metrics.LoadRunTotal.WithLabelValues("error").Inc()
		return fmt.Errorf("failed to fetch batch: %w", err)
	}

	reports := make([]*dataset.WriteReport, 4)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		reports[0], err = l.store.LoadVeterans(gctx, batch.Veterans)
		return err
	})
	g.Go(func() error {
		var err error
		reports[1], err = l.store.LoadProviders(gctx, batch.Providers)
		return err
	})
	if err := g.Wait(); err != nil {
		metrics.LoadRunTotal.WithLabelValues("error").Inc()
		return fmt.Errorf("failed to load dimensions: %w", err)
	}

	g, gctx = errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		reports[2], err = l.store.MergeExamRequests(gctx, batch.ExamRequests)
		return err
	})
	g.Go(func() error {
		var err error
		reports[3], err = l.store.MergeAppointments(gctx, batch.Appointments)
		return err
	})
	if err := g.Wait(); err != nil {
		metrics.LoadRunTotal.WithLabelValues("error").Inc()
		return fmt.Errorf("failed to merge facts: %w", err)
	}

	for _, r := range reports {
		l.log.Info("loader: table written", "table", r.Table, "summary", r.Summary())
		metrics.ObserveReport(r.Table, r.Inserted, r.Updated, r.Unchanged, len(r.Skipped), len(r.Conflicts))
	}

	l.mu.Lock()
	l.lastRunAt = l.cfg.Clock.Now().UTC()
	l.lastRun = reports
	l.mu.Unlock()

	l.readyOnce.Do(func() {
		close(l.readyCh)
		l.log.Info("loader: first load cycle complete, loader is ready")
	})

	metrics.LoadRunTotal.WithLabelValues("success").Inc()
	return nil
}

// TableStatus summarizes the last write to one table.
type TableStatus struct {
	Table     string               `json:"table"`
	Inserted  int                  `json:"inserted"`
	Updated   int                  `json:"updated"`
	Unchanged int                  `json:"unchanged"`
	Skipped   []dataset.SkippedRow `json:"skipped,omitempty"`
	Conflicts int                  `json:"conflicts"`
}

// Status is the loader state exposed on the ops endpoint.
type Status struct {
	Ready     bool          `json:"ready"`
	LastRunAt *time.Time    `json:"last_run_at,omitempty"`
	Tables    []TableStatus `json:"tables,omitempty"`
}

func (l *Loader) Status() Status {
	l.mu.RLock()
	defer l.mu.RUnlock()

	st := Status{Ready: l.Ready()}
	if !l.lastRunAt.IsZero() {
		t := l.lastRunAt
		st.LastRunAt = &t
	}
	for _, r := range l.lastRun {
		st.Tables = append(st.Tables, TableStatus{
			Table:     r.Table,
			Inserted:  r.Inserted,
			Updated:   r.Updated,
			Unchanged: r.Unchanged,
			Skipped:   r.Skipped,
			Conflicts: len(r.Conflicts),
		})
	}
	return st
}
