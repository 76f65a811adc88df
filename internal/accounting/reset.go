package accounting

import "time"

// NewDaySince reports whether now falls on a later UTC calendar date than
// lastReset, i.e. whether a key's daily counters are due for rollover.
// Pure function; both arguments are normalized to UTC before comparison,
// so a key created late in the evening still resets at the next midnight.
func NewDaySince(lastReset, now time.Time) bool {
	last := lastReset.UTC()
	cur := now.UTC()

	ly, lm, ld := last.Date()
	cy, cm, cd := cur.Date()
	if cy != ly {
		return cy > ly
	}
	if cm != lm {
		return cm > lm
	}
	return cd > ld
}

// StartOfDayUTC returns midnight UTC of the day containing t. Aggregation
// queries use it as the "today" boundary.
func StartOfDayUTC(t time.Time) time.Time {
	u := t.UTC()
	return time.Date(u.Year(), u.Month(), u.Day(), 0, 0, 0, 0, time.UTC)
}
