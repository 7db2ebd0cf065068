package dataset

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/vesdata/warehouse/loader/pkg/changehash"
	"github.com/vesdata/warehouse/loader/pkg/postgres"
)

// DimensionWriteConfig carries per-batch write options.
type DimensionWriteConfig struct {
	// EffectiveTS is the validity boundary for versions opened or
	// closed by this batch. Zero means the current wall-clock time.
	EffectiveTS time.Time

	// OpID identifies the ingest operation for lineage. Zero means a
	// fresh random ID.
	OpID uuid.UUID
}

func (cfg *DimensionWriteConfig) normalize() {
	if cfg.EffectiveTS.IsZero() {
		cfg.EffectiveTS = time.Now()
	}
	// Postgres timestamptz resolution is microseconds.
	cfg.EffectiveTS = cfg.EffectiveTS.UTC().Truncate(time.Microsecond)
	if cfg.OpID == uuid.Nil {
		cfg.OpID = uuid.New()
	}
}

// WriteBatch applies a batch of source records to the dimension.
// writeRowFn returns values in the order given by Columns():
// business-key columns (strings) first, then attribute columns.
//
// Each record is processed in its own transaction: the current
// version is locked, and on a hash change the expire and insert are
// committed together, so a reader never observes zero or two current
// rows for one key. A record that fails validation or errors during
// its write is skipped and reported; the rest of the batch continues.
func (d *DimensionType2Dataset) WriteBatch(
	ctx context.Context,
	db postgres.DB,
	count int,
	writeRowFn func(int) ([]any, error),
	cfg *DimensionWriteConfig,
) (*WriteReport, error) {
	if cfg == nil {
		cfg = &DimensionWriteConfig{}
	}
	cfg.normalize()

	report := &WriteReport{Table: d.TableName()}
	if count == 0 {
		return report, nil
	}

	d.log.Debug("writing dimension batch", "table", d.TableName(), "count", count, "op_id", cfg.OpID)

	for i := 0; i < count; i++ {
		select {
		case <-ctx.Done():
			return report, fmt.Errorf("context cancelled during dimension batch: %w", ctx.Err())
		default:
		}

		row, err := writeRowFn(i)
		if err != nil {
			return report, fmt.Errorf("failed to get row data %d: %w", i, err)
		}
		if len(row) != len(d.cols) {
			return report, fmt.Errorf("row %d has %d columns, expected exactly %d", i, len(row), len(d.cols))
		}

		key, err := d.businessKey(row)
		if err != nil {
			d.log.Warn("skipping dimension row", "table", d.TableName(), "row", i, "reason", err)
			report.skip(fmt.Sprintf("row %d", i), SkipInvalidKey, err.Error())
			continue
		}

		hash, err := changehash.Sum(row[len(d.bkCols):])
		if err != nil {
			d.log.Warn("skipping dimension row", "table", d.TableName(), "key", key.String(), "reason", err)
			report.skip(key.String(), SkipInvalidValue, err.Error())
			continue
		}

		if err := d.writeRow(ctx, db, key, row, hash, cfg, report); err != nil {
			// A failed Begin means the connection itself is gone;
			// continuing the batch would just repeat the failure.
			if errors.Is(err, errBeginFailed) {
				return report, fmt.Errorf("failed to start transaction for key %s: %w", key.String(), err)
			}
			d.log.Warn("dimension row write failed", "table", d.TableName(), "key", key.String(), "error", err)
			report.skip(key.String(), SkipWriteError, err.Error())
		}
	}

	d.log.Debug("wrote dimension batch", "table", d.TableName(), "summary", report.Summary())
	return report, nil
}

var errBeginFailed = errors.New("begin transaction failed")

func (d *DimensionType2Dataset) businessKey(row []any) (NaturalKey, error) {
	parts := make([]string, len(d.bkCols))
	for i := range d.bkCols {
		s, ok := row[i].(string)
		if !ok {
			return nil, fmt.Errorf("business key column %q must be a string, got %T", d.bkCols[i], row[i])
		}
		parts[i] = s
	}
	key := NewNaturalKey(parts...)
	if key.IsEmpty() {
		return nil, fmt.Errorf("business key is empty")
	}
	return key, nil
}

// writeRow runs the per-key decide-and-write sequence inside one
// transaction, with the current version row-locked for the duration.
// Two first sightings of the same key racing each other have no row to
// lock; there the partial unique index on (entity_id) WHERE is_current
// breaks the tie, and the loser is reported as a skipped write error.
// Report counters move only after the commit succeeds, so a row never
// counts as both written and skipped.
func (d *DimensionType2Dataset) writeRow(
	ctx context.Context,
	db postgres.DB,
	key NaturalKey,
	row []any,
	hash changehash.Digest,
	cfg *DimensionWriteConfig,
	report *WriteReport,
) error {
	tx, err := db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("%w: %w", errBeginFailed, err)
	}
	defer tx.Rollback(ctx)

	entityID := string(key.ToSurrogate())

	var currentVersionID uuid.UUID
	var currentHash string
	err = tx.QueryRow(ctx, d.selectCurrentSQL, entityID).Scan(&currentVersionID, &currentHash)
	switch {
	case errors.Is(err, pgx.ErrNoRows):
		// First sighting of this business key.
		if err := d.insertVersion(ctx, tx, entityID, row, hash, cfg); err != nil {
			return err
		}
		if err := tx.Commit(ctx); err != nil {
			return fmt.Errorf("failed to commit: %w", err)
		}
		report.Inserted++
		return nil

	case err != nil:
		return fmt.Errorf("failed to look up current version: %w", err)

	case currentHash == hash.String():
		// No real change; leave the dimension untouched.
		report.Unchanged++
		return nil

	default:
		// Expire the current version and open the new one in the
		// same transaction.
		if _, err := tx.Exec(ctx, d.expireSQL, cfg.EffectiveTS, currentVersionID); err != nil {
			return fmt.Errorf("failed to expire current version: %w", err)
		}
		if err := d.insertVersion(ctx, tx, entityID, row, hash, cfg); err != nil {
			return err
		}
		if err := tx.Commit(ctx); err != nil {
			return fmt.Errorf("failed to commit: %w", err)
		}
		report.Updated++
		return nil
	}
}

func (d *DimensionType2Dataset) insertVersion(
	ctx context.Context,
	tx pgx.Tx,
	entityID string,
	row []any,
	hash changehash.Digest,
	cfg *DimensionWriteConfig,
) error {
	args := make([]any, 0, len(row)+5)
	args = append(args, uuid.New(), entityID, cfg.OpID)
	args = append(args, row...)
	args = append(args, hash.String(), cfg.EffectiveTS)

	if _, err := tx.Exec(ctx, d.insertSQL, args...); err != nil {
		return fmt.Errorf("failed to insert version: %w", err)
	}
	return nil
}

// GetCurrentVersion returns the current version for a business key as
// a column-name keyed row, or nil when the key has no current version.
func (d *DimensionType2Dataset) GetCurrentVersion(ctx context.Context, db postgres.DB, key NaturalKey) (Row, error) {
	rows, err := db.Query(ctx, d.selectRowSQL, string(key.ToSurrogate()))
	if err != nil {
		return nil, fmt.Errorf("failed to query current version: %w", err)
	}
	defer rows.Close()

	if !rows.Next() {
		return nil, rows.Err()
	}

	values, err := rows.Values()
	if err != nil {
		return nil, fmt.Errorf("failed to read current version: %w", err)
	}

	row := make(Row, len(values))
	for i, fd := range rows.FieldDescriptions() {
		row[fd.Name] = values[i]
	}
	return row, nil
}
