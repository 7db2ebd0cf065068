package dataset

import "fmt"

// SkipReason classifies why a row was not written.
type SkipReason string

const (
	SkipInvalidKey   SkipReason = "invalid_key"
	SkipInvalidValue SkipReason = "invalid_value"
	SkipUnchanged    SkipReason = "unchanged"
	SkipWriteError   SkipReason = "write_error"
)

// SkippedRow records one row the batch left out, with enough context
// for an operator to reprocess it later.
type SkippedRow struct {
	Key    string     `json:"key,omitempty"`
	Reason SkipReason `json:"reason"`
	Detail string     `json:"detail,omitempty"`
}

// Conflict records a data-quality signal: an incoming value for a
// PRESERVE_IF_SET column that contradicted an already-stored value.
// The stored value won; the incoming value was ignored.
type Conflict struct {
	Key      string
	Column   string
	Stored   any
	Incoming any
}

// WriteReport summarizes one batch write. Batches report partial
// success rather than a single pass/fail flag.
type WriteReport struct {
	Table     string
	Inserted  int
	Updated   int
	Unchanged int
	Skipped   []SkippedRow
	Conflicts []Conflict
}

func (r *WriteReport) skip(key string, reason SkipReason, detail string) {
	r.Skipped = append(r.Skipped, SkippedRow{Key: key, Reason: reason, Detail: detail})
}

// Summary renders the counts for log output.
func (r *WriteReport) Summary() string {
	return fmt.Sprintf("inserted=%d updated=%d unchanged=%d skipped=%d conflicts=%d",
		r.Inserted, r.Updated, r.Unchanged, len(r.Skipped), len(r.Conflicts))
}
