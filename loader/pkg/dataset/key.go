package dataset

import (
	"github.com/vesdata/warehouse/loader/pkg/changehash"
)

// NaturalKey is the ordered business-key parts identifying one entity
// or process instance.
type NaturalKey []string

func NewNaturalKey(parts ...string) NaturalKey {
	return NaturalKey(parts)
}

// Surrogate is a stable system identifier derived from a natural key.
// The same natural key always maps to the same surrogate, across runs
// and across processes, so it can be used for joins without a lookup.
type Surrogate string

func (k NaturalKey) ToSurrogate() Surrogate {
	values := make([]any, len(k))
	for i, part := range k {
		values[i] = part
	}
	// Sum only errors on unsupported types; strings never fail.
	d, _ := changehash.Sum(values)
	return Surrogate(d.String())
}

// IsEmpty reports whether any key part is missing. A record with an
// empty key part is a validation failure, not a writable row.
func (k NaturalKey) IsEmpty() bool {
	if len(k) == 0 {
		return true
	}
	for _, part := range k {
		if part == "" {
			return true
		}
	}
	return false
}

// String joins the key parts for log and report output.
func (k NaturalKey) String() string {
	if len(k) == 1 {
		return k[0]
	}
	s := ""
	for i, part := range k {
		if i > 0 {
			s += "/"
		}
		s += part
	}
	return s
}
