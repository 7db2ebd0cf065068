// Package dataset implements the two generic warehouse loaders every
// dimension and fact table is an instance of: a Type-2
// slowly-changing-dimension writer and an accumulating-snapshot
// merger. Both are driven entirely by declared table metadata, so the
// same code serves every table.
package dataset

import (
	"fmt"
	"regexp"
	"strings"
)

// ColumnPolicy controls how the snapshot merger treats an incoming
// value when a row already exists for the natural key.
type ColumnPolicy string

const (
	// PolicyPreserveIfSet keeps the stored value unless it is null.
	// This is what makes milestone columns append-only.
	PolicyPreserveIfSet ColumnPolicy = "PRESERVE_IF_SET"

	// PolicyOverwrite always takes the incoming value. Used for
	// mutable current-state fields and recomputed metrics.
	PolicyOverwrite ColumnPolicy = "OVERWRITE"
)

// Row is a table row keyed by column name, as handed to derivation
// hooks.
type Row map[string]any

// DimensionSchema describes one Type-2 dimension table.
type DimensionSchema interface {
	// Name is the table name without the dim_ prefix.
	Name() string
	// BusinessKeyColumns are the natural-key columns, stable across
	// all versions of an entity.
	BusinessKeyColumns() []string
	// AttributeColumns are the tracked attributes. The content hash
	// covers exactly these, in this order.
	AttributeColumns() []string
}

// SnapshotSchema describes one accumulating-snapshot fact table.
type SnapshotSchema interface {
	// Name is the table name without the fact_ prefix.
	Name() string
	// NaturalKeyColumns identify one process instance.
	NaturalKeyColumns() []string
	// PayloadColumns declare every non-key column as "name:POLICY",
	// e.g. "received_date:PRESERVE_IF_SET" or "status:OVERWRITE".
	PayloadColumns() []string
	// Derive recomputes derived metric columns from a merged row.
	// It is called on every insert and update; returned values
	// overwrite the corresponding columns. May return nil.
	Derive(row Row) map[string]any
}

// Table and column identifiers are interpolated into SQL, so they are
// restricted to a fixed shape and validated when a dataset is built.
// All data values travel as query parameters.
var identifierRe = regexp.MustCompile(`^[a-z][a-z0-9_]*$`)

func validateIdentifier(name string) error {
	if !identifierRe.MatchString(name) {
		return fmt.Errorf("invalid identifier %q", name)
	}
	return nil
}

func validateIdentifiers(names []string) error {
	seen := make(map[string]struct{}, len(names))
	for _, name := range names {
		if err := validateIdentifier(name); err != nil {
			return err
		}
		if _, ok := seen[name]; ok {
			return fmt.Errorf("duplicate column %q", name)
		}
		seen[name] = struct{}{}
	}
	return nil
}

// parsePolicyColumns splits "name:POLICY" declarations into ordered
// column names and a policy lookup.
func parsePolicyColumns(decls []string) ([]string, map[string]ColumnPolicy, error) {
	cols := make([]string, 0, len(decls))
	policies := make(map[string]ColumnPolicy, len(decls))
	for _, decl := range decls {
		name, policy, ok := strings.Cut(decl, ":")
		if !ok {
			return nil, nil, fmt.Errorf("column %q must be declared as name:POLICY", decl)
		}
		switch ColumnPolicy(policy) {
		case PolicyPreserveIfSet, PolicyOverwrite:
		default:
			return nil, nil, fmt.Errorf("column %q has unknown policy %q", name, policy)
		}
		cols = append(cols, name)
		policies[name] = ColumnPolicy(policy)
	}
	if err := validateIdentifiers(cols); err != nil {
		return nil, nil, err
	}
	return cols, policies, nil
}
