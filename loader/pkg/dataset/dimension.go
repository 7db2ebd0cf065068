package dataset

import (
	"fmt"
	"log/slog"
	"strings"
)

// DimensionType2Dataset maintains one Type-2 dimension table. Each
// business key has a chain of versions with contiguous
// [effective_start, effective_end) intervals and at most one row
// marked current. A version is only added when the content hash of
// the tracked attributes actually changes, so re-running the same
// batch is a no-op.
type DimensionType2Dataset struct {
	log    *slog.Logger
	schema DimensionSchema

	bkCols   []string
	attrCols []string
	cols     []string

	selectCurrentSQL string
	expireSQL        string
	insertSQL        string
	selectRowSQL     string
}

func NewDimensionType2Dataset(log *slog.Logger, schema DimensionSchema) (*DimensionType2Dataset, error) {
	if schema.Name() == "" {
		return nil, fmt.Errorf("table_name is required")
	}
	if err := validateIdentifier(schema.Name()); err != nil {
		return nil, fmt.Errorf("invalid table name: %w", err)
	}

	bkCols := schema.BusinessKeyColumns()
	if len(bkCols) == 0 {
		return nil, fmt.Errorf("business key columns are required")
	}
	attrCols := schema.AttributeColumns()
	if len(attrCols) == 0 {
		return nil, fmt.Errorf("attribute columns are required")
	}

	cols := make([]string, 0, len(bkCols)+len(attrCols))
	cols = append(cols, bkCols...)
	cols = append(cols, attrCols...)
	if err := validateIdentifiers(cols); err != nil {
		return nil, err
	}

	d := &DimensionType2Dataset{
		log:      log,
		schema:   schema,
		bkCols:   bkCols,
		attrCols: attrCols,
		cols:     cols,
	}
	d.buildSQL()
	return d, nil
}

func (d *DimensionType2Dataset) TableName() string {
	return "dim_" + d.schema.Name()
}

// Columns returns the order writeRowFn must produce values in:
// business-key columns first, then tracked attribute columns.
func (d *DimensionType2Dataset) Columns() []string {
	return d.cols
}

func (d *DimensionType2Dataset) buildSQL() {
	table := d.TableName()

	d.selectCurrentSQL = fmt.Sprintf(
		"SELECT version_id, content_hash FROM %s WHERE entity_id = $1 AND is_current FOR UPDATE",
		table,
	)

	d.expireSQL = fmt.Sprintf(
		"UPDATE %s SET effective_end = $1, is_current = FALSE WHERE version_id = $2",
		table,
	)

	// version_id, entity_id, op_id, payload columns, content_hash,
	// effective_start. effective_end stays null and is_current true
	// until the version is expired.
	var b strings.Builder
	b.WriteString("INSERT INTO ")
	b.WriteString(table)
	b.WriteString(" (version_id, entity_id, op_id, ")
	b.WriteString(strings.Join(d.cols, ", "))
	b.WriteString(", content_hash, effective_start, effective_end, is_current) VALUES ($1, $2, $3, ")
	arg := 4
	for range d.cols {
		fmt.Fprintf(&b, "$%d, ", arg)
		arg++
	}
	fmt.Fprintf(&b, "$%d, $%d, NULL, TRUE)", arg, arg+1)
	d.insertSQL = b.String()

	d.selectRowSQL = fmt.Sprintf(
		"SELECT version_id, entity_id, %s, content_hash, effective_start, effective_end, is_current FROM %s WHERE entity_id = $1 AND is_current",
		strings.Join(d.cols, ", "), table,
	)
}
