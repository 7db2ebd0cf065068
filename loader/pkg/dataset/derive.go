package dataset

import "time"

// asTime coerces a column value to a time, handling both staged
// pointer values and database scan values.
func asTime(v any) (time.Time, bool) {
	switch x := v.(type) {
	case time.Time:
		return x, true
	case *time.Time:
		if x == nil {
			return time.Time{}, false
		}
		return *x, true
	default:
		return time.Time{}, false
	}
}

// DaysBetween returns the whole days from start to end as an int64,
// or nil when either endpoint is still null. A process that has not
// reached a milestone has no lag, not a lag of zero.
func DaysBetween(start, end any) any {
	s, ok := asTime(start)
	if !ok {
		return nil
	}
	e, ok := asTime(end)
	if !ok {
		return nil
	}
	s, e = s.UTC(), e.UTC()
	sd := time.Date(s.Year(), s.Month(), s.Day(), 0, 0, 0, 0, time.UTC)
	ed := time.Date(e.Year(), e.Month(), e.Day(), 0, 0, 0, 0, time.UTC)
	return int64(ed.Sub(sd) / (24 * time.Hour))
}

// MetWithinDays reports whether end arrived within the given number
// of days after start, or nil while either endpoint is null. Used for
// SLA flags that stay undecided until the terminal milestone lands.
func MetWithinDays(start, end any, days int64) any {
	d := DaysBetween(start, end)
	if d == nil {
		return nil
	}
	return d.(int64) <= days
}
