package dataset

import (
	"fmt"
	"log/slog"
	"strings"
)

// SnapshotDataset maintains one accumulating-snapshot fact table: one
// row per process instance, created on first sighting of the natural
// key and merged in place as later batches bring new information.
// Rows are never deleted; a process closes by reaching its terminal
// milestone column.
type SnapshotDataset struct {
	log    *slog.Logger
	schema SnapshotSchema

	keyCols     []string
	payloadCols []string
	policies    map[string]ColumnPolicy
	cols        []string

	selectForUpdateSQL string
	insertSQL          string
	updateSQL          string
	selectRowSQL       string
}

func NewSnapshotDataset(log *slog.Logger, schema SnapshotSchema) (*SnapshotDataset, error) {
	if schema.Name() == "" {
		return nil, fmt.Errorf("table_name is required")
	}
	if err := validateIdentifier(schema.Name()); err != nil {
		return nil, fmt.Errorf("invalid table name: %w", err)
	}

	keyCols := schema.NaturalKeyColumns()
	if len(keyCols) == 0 {
		return nil, fmt.Errorf("natural key columns are required")
	}
	if err := validateIdentifiers(keyCols); err != nil {
		return nil, err
	}

	payloadCols, policies, err := parsePolicyColumns(schema.PayloadColumns())
	if err != nil {
		return nil, err
	}
	if len(payloadCols) == 0 {
		return nil, fmt.Errorf("payload columns are required")
	}
	for _, keyCol := range keyCols {
		if _, ok := policies[keyCol]; ok {
			return nil, fmt.Errorf("column %q cannot be both key and payload", keyCol)
		}
	}

	cols := make([]string, 0, len(keyCols)+len(payloadCols))
	cols = append(cols, keyCols...)
	cols = append(cols, payloadCols...)

	d := &SnapshotDataset{
		log:         log,
		schema:      schema,
		keyCols:     keyCols,
		payloadCols: payloadCols,
		policies:    policies,
		cols:        cols,
	}
	d.buildSQL()
	return d, nil
}

func (d *SnapshotDataset) TableName() string {
	return "fact_" + d.schema.Name()
}

// Columns returns the order writeRowFn must produce values in:
// natural-key columns (strings) first, then payload columns.
func (d *SnapshotDataset) Columns() []string {
	return d.cols
}

// Policy returns the declared policy for a payload column.
func (d *SnapshotDataset) Policy(col string) (ColumnPolicy, bool) {
	p, ok := d.policies[col]
	return p, ok
}

func (d *SnapshotDataset) buildSQL() {
	table := d.TableName()
	payload := strings.Join(d.payloadCols, ", ")

	d.selectForUpdateSQL = fmt.Sprintf(
		"SELECT %s FROM %s WHERE row_id = $1 FOR UPDATE",
		payload, table,
	)

	var b strings.Builder
	b.WriteString("INSERT INTO ")
	b.WriteString(table)
	b.WriteString(" (row_id, op_id, ")
	b.WriteString(strings.Join(d.cols, ", "))
	b.WriteString(", created_at, updated_at) VALUES ($1, $2, ")
	arg := 3
	for range d.cols {
		fmt.Fprintf(&b, "$%d, ", arg)
		arg++
	}
	fmt.Fprintf(&b, "$%d, $%d)", arg, arg+1)
	d.insertSQL = b.String()

	b.Reset()
	b.WriteString("UPDATE ")
	b.WriteString(table)
	b.WriteString(" SET ")
	arg = 1
	for _, col := range d.payloadCols {
		fmt.Fprintf(&b, "%s = $%d, ", col, arg)
		arg++
	}
	fmt.Fprintf(&b, "op_id = $%d, updated_at = $%d WHERE row_id = $%d", arg, arg+1, arg+2)
	d.updateSQL = b.String()

	d.selectRowSQL = fmt.Sprintf(
		"SELECT row_id, %s, created_at, updated_at FROM %s WHERE row_id = $1",
		strings.Join(d.cols, ", "), table,
	)
}
