package dataset

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/vesdata/warehouse/loader/pkg/postgres"
)

// SnapshotWriteConfig carries per-batch merge options.
type SnapshotWriteConfig struct {
	// MergeTS is recorded as updated_at (and created_at on insert).
	// Zero means the current wall-clock time.
	MergeTS time.Time

	// OpID identifies the ingest operation for lineage. Zero means a
	// fresh random ID.
	OpID uuid.UUID
}

func (cfg *SnapshotWriteConfig) normalize() {
	if cfg.MergeTS.IsZero() {
		cfg.MergeTS = time.Now()
	}
	cfg.MergeTS = cfg.MergeTS.UTC().Truncate(time.Microsecond)
	if cfg.OpID == uuid.Nil {
		cfg.OpID = uuid.New()
	}
}

// WriteBatch merges a batch of staged records into the fact table.
// writeRowFn returns values in the order given by Columns():
// natural-key columns (strings) first, then payload columns.
//
// Each record runs in its own transaction with the target row locked,
// so the lookup-decide-write sequence is safe against concurrent
// batches touching the same key. Applying the same batch twice yields
// the same final state: incoming nulls never erase stored milestones,
// and a merge that changes nothing leaves the row (including
// updated_at) untouched.
func (d *SnapshotDataset) WriteBatch(
	ctx context.Context,
	db postgres.DB,
	count int,
	writeRowFn func(int) ([]any, error),
	cfg *SnapshotWriteConfig,
) (*WriteReport, error) {
	if cfg == nil {
		cfg = &SnapshotWriteConfig{}
	}
	cfg.normalize()

	report := &WriteReport{Table: d.TableName()}
	if count == 0 {
		return report, nil
	}

	d.log.Debug("merging snapshot batch", "table", d.TableName(), "count", count, "op_id", cfg.OpID)

	for i := 0; i < count; i++ {
		select {
		case <-ctx.Done():
			return report, fmt.Errorf("context cancelled during snapshot batch: %w", ctx.Err())
		default:
		}

		row, err := writeRowFn(i)
		if err != nil {
			return report, fmt.Errorf("failed to get row data %d: %w", i, err)
		}
		if len(row) != len(d.cols) {
			return report, fmt.Errorf("row %d has %d columns, expected exactly %d", i, len(row), len(d.cols))
		}

		key, err := d.naturalKey(row)
		if err != nil {
			d.log.Warn("skipping snapshot row", "table", d.TableName(), "row", i, "reason", err)
			report.skip(fmt.Sprintf("row %d", i), SkipInvalidKey, err.Error())
			continue
		}

		if err := d.mergeRow(ctx, db, key, row, cfg, report); err != nil {
			if errors.Is(err, errBeginFailed) {
				return report, fmt.Errorf("failed to start transaction for key %s: %w", key.String(), err)
			}
			d.log.Warn("snapshot row merge failed", "table", d.TableName(), "key", key.String(), "error", err)
			report.skip(key.String(), SkipWriteError, err.Error())
		}
	}

	d.log.Debug("merged snapshot batch", "table", d.TableName(), "summary", report.Summary())
	return report, nil
}

func (d *SnapshotDataset) naturalKey(row []any) (NaturalKey, error) {
	parts := make([]string, len(d.keyCols))
	for i := range d.keyCols {
		s, ok := row[i].(string)
		if !ok {
			return nil, fmt.Errorf("natural key column %q must be a string, got %T", d.keyCols[i], row[i])
		}
		parts[i] = s
	}
	key := NewNaturalKey(parts...)
	if key.IsEmpty() {
		return nil, fmt.Errorf("natural key is empty")
	}
	return key, nil
}

func (d *SnapshotDataset) mergeRow(
	ctx context.Context,
	db postgres.DB,
	key NaturalKey,
	row []any,
	cfg *SnapshotWriteConfig,
	report *WriteReport,
) error {
	tx, err := db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("%w: %w", errBeginFailed, err)
	}
	defer tx.Rollback(ctx)

	rowID := string(key.ToSurrogate())

	incoming := make(Row, len(d.payloadCols))
	for i, col := range d.payloadCols {
		incoming[col] = row[len(d.keyCols)+i]
	}

	existing, found, err := d.lockRow(ctx, tx, rowID)
	if err != nil {
		return err
	}

	if !found {
		// Birth of the process instance: take every incoming value
		// as-is, then fill derived metrics.
		if err := d.applyDerived(key, row, incoming); err != nil {
			return err
		}
		if err := d.insertRow(ctx, tx, rowID, row, incoming, cfg); err != nil {
			return err
		}
		if err := tx.Commit(ctx); err != nil {
			return fmt.Errorf("failed to commit: %w", err)
		}
		report.Inserted++
		return nil
	}

	merged, _, conflicts := mergePayload(key.String(), d.payloadCols, d.policies, existing, incoming)
	for _, c := range conflicts {
		d.log.Warn("milestone conflict, stored value wins",
			"table", d.TableName(), "key", c.Key, "column", c.Column,
			"stored", c.Stored, "incoming", c.Incoming)
	}
	report.Conflicts = append(report.Conflicts, conflicts...)

	if err := d.applyDerived(key, row, merged); err != nil {
		return err
	}
	// Change detection only makes sense on the final payload. The
	// policy merge can take an incoming null into an OVERWRITE column
	// that derivation immediately restores to the stored value, so its
	// own change signal is discarded and the comparison starts fresh.
	changed := false
	for _, col := range d.payloadCols {
		if !valuesEqual(merged[col], existing[col]) {
			changed = true
			break
		}
	}

	if !changed {
		report.Unchanged++
		return nil
	}

	args := make([]any, 0, len(d.payloadCols)+3)
	for _, col := range d.payloadCols {
		args = append(args, merged[col])
	}
	args = append(args, cfg.OpID, cfg.MergeTS, rowID)
	if _, err := tx.Exec(ctx, d.updateSQL, args...); err != nil {
		return fmt.Errorf("failed to update row: %w", err)
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit: %w", err)
	}
	report.Updated++
	return nil
}

// lockRow reads and row-locks the existing payload for a key.
func (d *SnapshotDataset) lockRow(ctx context.Context, tx pgx.Tx, rowID string) (Row, bool, error) {
	rows, err := tx.Query(ctx, d.selectForUpdateSQL, rowID)
	if err != nil {
		return nil, false, fmt.Errorf("failed to look up row: %w", err)
	}
	defer rows.Close()

	if !rows.Next() {
		return nil, false, rows.Err()
	}

	values, err := rows.Values()
	if err != nil {
		return nil, false, fmt.Errorf("failed to read row: %w", err)
	}

	existing := make(Row, len(d.payloadCols))
	for i, col := range d.payloadCols {
		existing[col] = values[i]
	}
	rows.Close()
	return existing, true, nil
}

// applyDerived recomputes derived metric columns on a merged payload.
// Every derived column must be a declared payload column; anything
// else is a schema bug, not a row-level data problem.
func (d *SnapshotDataset) applyDerived(key NaturalKey, row []any, payload Row) error {
	full := make(Row, len(d.cols))
	for i, col := range d.keyCols {
		full[col] = row[i]
	}
	for col, v := range payload {
		full[col] = v
	}

	derived := d.schema.Derive(full)
	for col, v := range derived {
		if _, ok := d.policies[col]; !ok {
			return fmt.Errorf("derived column %q is not a declared payload column", col)
		}
		payload[col] = v
	}
	return nil
}

func (d *SnapshotDataset) insertRow(
	ctx context.Context,
	tx pgx.Tx,
	rowID string,
	row []any,
	payload Row,
	cfg *SnapshotWriteConfig,
) error {
	args := make([]any, 0, len(d.cols)+4)
	args = append(args, rowID, cfg.OpID)
	for i := range d.keyCols {
		args = append(args, row[i])
	}
	for _, col := range d.payloadCols {
		args = append(args, payload[col])
	}
	args = append(args, cfg.MergeTS, cfg.MergeTS)

	if _, err := tx.Exec(ctx, d.insertSQL, args...); err != nil {
		return fmt.Errorf("failed to insert row: %w", err)
	}
	return nil
}

// GetRow returns the snapshot row for a natural key as a column-name
// keyed row, or nil when the process instance has never been seen.
func (d *SnapshotDataset) GetRow(ctx context.Context, db postgres.DB, key NaturalKey) (Row, error) {
	rows, err := db.Query(ctx, d.selectRowSQL, string(key.ToSurrogate()))
	if err != nil {
		return nil, fmt.Errorf("failed to query row: %w", err)
	}
	defer rows.Close()

	if !rows.Next() {
		return nil, rows.Err()
	}

	values, err := rows.Values()
	if err != nil {
		return nil, fmt.Errorf("failed to read row: %w", err)
	}

	row := make(Row, len(values))
	for i, fd := range rows.FieldDescriptions() {
		row[fd.Name] = values[i]
	}
	return row, nil
}
