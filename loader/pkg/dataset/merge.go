package dataset

import (
	"time"

	"github.com/vesdata/warehouse/loader/pkg/changehash"
)

// mergePayload applies per-column policies to an existing snapshot
// row. It returns the merged payload (by column name), whether any
// column actually changed, and the milestone conflicts encountered.
//
// A conflict is an incoming non-null value for a PRESERVE_IF_SET
// column whose stored value is already non-null and different. The
// stored value wins; the conflict is surfaced as a data-quality
// signal, never as an error.
func mergePayload(
	key string,
	cols []string,
	policies map[string]ColumnPolicy,
	existing Row,
	incoming Row,
) (merged Row, changed bool, conflicts []Conflict) {
	merged = make(Row, len(cols))

	for _, col := range cols {
		stored := existing[col]
		next := incoming[col]

		switch policies[col] {
		case PolicyPreserveIfSet:
			if isNull(stored) {
				merged[col] = next
			} else {
				merged[col] = stored
				if !isNull(next) && !valuesEqual(stored, next) {
					conflicts = append(conflicts, Conflict{
						Key:      key,
						Column:   col,
						Stored:   stored,
						Incoming: next,
					})
				}
			}
		case PolicyOverwrite:
			merged[col] = next
		}

		if !valuesEqual(merged[col], stored) {
			changed = true
		}
	}

	return merged, changed, conflicts
}

// isNull treats untyped nil and nil typed pointers as null, matching
// how staged records carry optional columns.
func isNull(v any) bool {
	switch x := v.(type) {
	case nil:
		return true
	case *string:
		return x == nil
	case *int64:
		return x == nil
	case *float64:
		return x == nil
	case *bool:
		return x == nil
	case *time.Time:
		return x == nil
	default:
		return false
	}
}

// valuesEqual compares two scalars through their canonical hash form,
// so int32(3) from a database scan equals int(3) from a staged record
// and timestamps compare by instant regardless of zone.
func valuesEqual(a, b any) bool {
	if isNull(a) || isNull(b) {
		return isNull(a) && isNull(b)
	}
	da, errA := changehash.Sum([]any{a})
	db, errB := changehash.Sum([]any{b})
	if errA != nil || errB != nil {
		return false
	}
	return da == db
}
