package window

import (
	"time"

	"github.com/golang-sql/civil"
)

// wallClock returns the instant at which clocks in loc read tod on day.
//
// A reading that occurs twice (clocks set back) resolves to the earlier
// instant. A reading that never occurs (clocks set forward) resolves to the
// instant the gap ends, so later readings never map to earlier instants.
func wallClock(day civil.Date, tod TimeSpec, loc *time.Location) time.Time {
	naive := time.Date(day.Year, day.Month, day.Day, tod.Hour, tod.Minute, tod.Second, 0, time.UTC)

	_, before := naive.Add(-24 * time.Hour).In(loc).Zone()
	_, after := naive.Add(24 * time.Hour).In(loc).Zone()

	var best time.Time
	for _, off := range []int{before, after} {
		at := naive.Add(-time.Duration(off) * time.Second)
		if _, got := at.In(loc).Zone(); got != off {
			continue
		}
		if best.IsZero() || at.Before(best) {
			best = at
		}
	}
	if !best.IsZero() {
		return best.UTC()
	}

	// Gap: with the pre-transition offset the reading lands past the
	// transition, whose start is the first instant after the gap.
	past := naive.Add(-time.Duration(before) * time.Second).In(loc)
	if start, _ := past.ZoneBounds(); !start.IsZero() && !start.After(past) {
		return start.UTC()
	}
	return time.Date(day.Year, day.Month, day.Day, tod.Hour, tod.Minute, tod.Second, 0, loc).UTC()
}
