package dataset

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

// requestSnapshotSchema mirrors the shape of the exam-request fact:
// two milestone dates, one mutable status, one derived lag metric.
func requestSnapshotSchema() SnapshotSchema {
	return &testSnapSchema{
		name: "test_requests",
		keys: []string{"request_number"},
		payload: []string{
			"received_date:PRESERVE_IF_SET",
			"assigned_date:PRESERVE_IF_SET",
			"status:OVERWRITE",
			"days_to_assignment:OVERWRITE",
		},
		derive: func(row Row) map[string]any {
			return map[string]any{
				"days_to_assignment": DaysBetween(row["received_date"], row["assigned_date"]),
			}
		},
	}
}

func TestWarehouse_Dataset_Snapshot_MergeLifecycle(t *testing.T) {
	t.Parallel()
	log := testLogger()
	db := testDB(t)
	ctx := t.Context()

	createRequestSnapshotTable(t, db)

	ds, err := NewSnapshotDataset(log, requestSnapshotSchema())
	require.NoError(t, err)

	key := NewNaturalKey("ER-1")

	// Batch 1: birth of the request. Only the first milestone is
	// known; the derived lag is null, not zero.
	report, err := ds.WriteBatch(ctx, db, 1, func(i int) ([]any, error) {
		return []any{"ER-1", jan(1), nil, "UNASSIGNED", nil}, nil
	}, nil)
	require.NoError(t, err)
	require.Equal(t, 1, report.Inserted)

	row, err := ds.GetRow(ctx, db, key)
	require.NoError(t, err)
	require.NotNil(t, row)
	require.Equal(t, jan(1), row["received_date"].(time.Time).UTC())
	require.Nil(t, row["assigned_date"])
	require.Equal(t, "UNASSIGNED", row["status"])
	require.Nil(t, row["days_to_assignment"])

	// Batch 2: assignment arrives; received_date is not resupplied
	// but must survive, and the lag metric is recomputed.
	report, err = ds.WriteBatch(ctx, db, 1, func(i int) ([]any, error) {
		return []any{"ER-1", nil, jan(4), "ASSIGNED", nil}, nil
	}, nil)
	require.NoError(t, err)
	require.Equal(t, 1, report.Updated)
	require.Empty(t, report.Conflicts)

	row, err = ds.GetRow(ctx, db, key)
	require.NoError(t, err)
	require.Equal(t, jan(1), row["received_date"].(time.Time).UTC(), "preserved milestone")
	require.Equal(t, jan(4), row["assigned_date"].(time.Time).UTC())
	require.Equal(t, "ASSIGNED", row["status"])
	require.Equal(t, int64(3), row["days_to_assignment"])
}

func TestWarehouse_Dataset_Snapshot_MilestoneConflict(t *testing.T) {
	t.Parallel()
	log := testLogger()
	db := testDB(t)
	ctx := t.Context()

	createRequestSnapshotTable(t, db)

	ds, err := NewSnapshotDataset(log, requestSnapshotSchema())
	require.NoError(t, err)

	_, err = ds.WriteBatch(ctx, db, 1, func(i int) ([]any, error) {
		return []any{"ER-2", jan(1), jan(5), "ASSIGNED", nil}, nil
	}, nil)
	require.NoError(t, err)

	// A late batch contradicts the stored assigned_date. Stored value
	// wins; the event is a data-quality signal, not an error.
	report, err := ds.WriteBatch(ctx, db, 1, func(i int) ([]any, error) {
		return []any{"ER-2", jan(1), jan(2), "ASSIGNED", nil}, nil
	}, nil)
	require.NoError(t, err)
	require.Len(t, report.Conflicts, 1)
	require.Equal(t, "ER-2", report.Conflicts[0].Key)
	require.Equal(t, "assigned_date", report.Conflicts[0].Column)

	row, err := ds.GetRow(ctx, db, NewNaturalKey("ER-2"))
	require.NoError(t, err)
	require.Equal(t, jan(5), row["assigned_date"].(time.Time).UTC(), "stored value must be unchanged")
}

func TestWarehouse_Dataset_Snapshot_Idempotence(t *testing.T) {
	t.Parallel()
	log := testLogger()
	db := testDB(t)
	ctx := t.Context()

	createRequestSnapshotTable(t, db)

	ds, err := NewSnapshotDataset(log, requestSnapshotSchema())
	require.NoError(t, err)

	batch := [][]any{
		{"ER-1", jan(1), nil, "UNASSIGNED", nil},
		{"ER-2", jan(2), jan(6), "ASSIGNED", nil},
	}
	writeRowFn := func(i int) ([]any, error) { return batch[i], nil }

	report, err := ds.WriteBatch(ctx, db, len(batch), writeRowFn, nil)
	require.NoError(t, err)
	require.Equal(t, 2, report.Inserted)

	before, err := ds.GetRow(ctx, db, NewNaturalKey("ER-2"))
	require.NoError(t, err)

	// Same batch again: no rows touched, updated_at untouched.
	report, err = ds.WriteBatch(ctx, db, len(batch), writeRowFn, nil)
	require.NoError(t, err)
	require.Equal(t, 0, report.Inserted)
	require.Equal(t, 0, report.Updated)
	require.Equal(t, 2, report.Unchanged)

	after, err := ds.GetRow(ctx, db, NewNaturalKey("ER-2"))
	require.NoError(t, err)
	require.Equal(t, before["updated_at"], after["updated_at"])
	require.Equal(t, before["created_at"], after["created_at"])
}

// Source feeds never carry the derived lag; after the first write it
// is stored non-null while every replay brings null for it. The
// OVERWRITE pass takes that null, derivation restores the value, and
// the net result must read as unchanged, not as an update.
func TestWarehouse_Dataset_Snapshot_ReplayRecomputesDerived(t *testing.T) {
	t.Parallel()
	log := testLogger()
	db := testDB(t)
	ctx := t.Context()

	createRequestSnapshotTable(t, db)

	ds, err := NewSnapshotDataset(log, requestSnapshotSchema())
	require.NoError(t, err)

	writeRowFn := func(i int) ([]any, error) {
		return []any{"ER-7", jan(2), jan(6), "ASSIGNED", nil}, nil
	}

	report, err := ds.WriteBatch(ctx, db, 1, writeRowFn, nil)
	require.NoError(t, err)
	require.Equal(t, 1, report.Inserted)

	before, err := ds.GetRow(ctx, db, NewNaturalKey("ER-7"))
	require.NoError(t, err)
	require.Equal(t, int64(4), before["days_to_assignment"])

	report, err = ds.WriteBatch(ctx, db, 1, writeRowFn, nil)
	require.NoError(t, err)
	require.Equal(t, 0, report.Updated)
	require.Equal(t, 1, report.Unchanged)
	require.Empty(t, report.Conflicts)

	after, err := ds.GetRow(ctx, db, NewNaturalKey("ER-7"))
	require.NoError(t, err)
	require.Equal(t, int64(4), after["days_to_assignment"])
	require.Equal(t, before["updated_at"], after["updated_at"])
}

func TestWarehouse_Dataset_Snapshot_CommitFailure(t *testing.T) {
	t.Parallel()
	log := testLogger()
	db := testDB(t)
	ctx := t.Context()

	createRequestSnapshotTable(t, db)

	ds, err := NewSnapshotDataset(log, requestSnapshotSchema())
	require.NoError(t, err)

	report, err := ds.WriteBatch(ctx, db, 1, func(i int) ([]any, error) {
		return []any{"ER-8", jan(1), nil, "UNASSIGNED", nil}, nil
	}, nil)
	require.NoError(t, err)
	require.Equal(t, 1, report.Inserted)

	// A merge whose commit fails must show up as skipped only, never
	// as updated, and must leave the stored row untouched.
	report, err = ds.WriteBatch(ctx, commitFailDB{DB: db}, 1, func(i int) ([]any, error) {
		return []any{"ER-8", nil, jan(4), "ASSIGNED", nil}, nil
	}, nil)
	require.NoError(t, err)
	require.Equal(t, 0, report.Updated)
	require.Len(t, report.Skipped, 1)
	require.Equal(t, SkipWriteError, report.Skipped[0].Reason)
	require.Contains(t, report.Skipped[0].Detail, "failed to commit")

	row, err := ds.GetRow(ctx, db, NewNaturalKey("ER-8"))
	require.NoError(t, err)
	require.Nil(t, row["assigned_date"])
	require.Equal(t, "UNASSIGNED", row["status"])
}

func TestWarehouse_Dataset_Snapshot_CreatedAtImmutable(t *testing.T) {
	t.Parallel()
	log := testLogger()
	db := testDB(t)
	ctx := t.Context()

	createRequestSnapshotTable(t, db)

	ds, err := NewSnapshotDataset(log, requestSnapshotSchema())
	require.NoError(t, err)

	t1 := time.Date(2024, 1, 1, 10, 0, 0, 0, time.UTC)
	t2 := time.Date(2024, 1, 3, 10, 0, 0, 0, time.UTC)

	_, err = ds.WriteBatch(ctx, db, 1, func(i int) ([]any, error) {
		return []any{"ER-9", jan(1), nil, "UNASSIGNED", nil}, nil
	}, &SnapshotWriteConfig{MergeTS: t1})
	require.NoError(t, err)

	_, err = ds.WriteBatch(ctx, db, 1, func(i int) ([]any, error) {
		return []any{"ER-9", nil, jan(3), "ASSIGNED", nil}, nil
	}, &SnapshotWriteConfig{MergeTS: t2})
	require.NoError(t, err)

	row, err := ds.GetRow(ctx, db, NewNaturalKey("ER-9"))
	require.NoError(t, err)
	require.Equal(t, t1, row["created_at"].(time.Time).UTC())
	require.Equal(t, t2, row["updated_at"].(time.Time).UTC())
}

func TestWarehouse_Dataset_Snapshot_RowIsolation(t *testing.T) {
	t.Parallel()
	log := testLogger()
	db := testDB(t)
	ctx := t.Context()

	createRequestSnapshotTable(t, db)

	ds, err := NewSnapshotDataset(log, requestSnapshotSchema())
	require.NoError(t, err)

	batch := [][]any{
		{"ER-1", jan(1), nil, "UNASSIGNED", nil},
		{"", jan(2), nil, "UNASSIGNED", nil},
		{"ER-3", jan(3), nil, "UNASSIGNED", nil},
	}
	report, err := ds.WriteBatch(ctx, db, len(batch), func(i int) ([]any, error) {
		return batch[i], nil
	}, nil)
	require.NoError(t, err)
	require.Equal(t, 2, report.Inserted)
	require.Len(t, report.Skipped, 1)
	require.Equal(t, SkipInvalidKey, report.Skipped[0].Reason)
	require.Equal(t, 2, countRows(t, db, ds.TableName(), ""))
}
