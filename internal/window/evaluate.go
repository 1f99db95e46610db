package window

import "time"

const (
	AttrStartTimeLocal = "start_time_local"
	AttrEndTimeLocal   = "end_time_local"
	AttrStartTimeUTC   = "start_time_utc"
	AttrEndTimeUTC     = "end_time_utc"
	AttrTimezone       = "timezone"
	AttrIsChild        = "is_child"
)

// Result is the outcome of evaluating one occurrence at an instant.
type Result struct {
	Active     bool
	Start      time.Time
	End        time.Time
	StartLocal time.Time
	EndLocal   time.Time
	Timezone   string
	IsChild    bool
}

// Evaluate reports whether now lies in [w.Start, w.End). The local times are
// for display only.
func Evaluate(now time.Time, w ResolvedWindow, display *time.Location, isChild bool) Result {
	if display == nil {
		display = time.UTC
	}
	return Result{
		Active:     w.Contains(now),
		Start:      w.Start.UTC(),
		End:        w.End.UTC(),
		StartLocal: w.Start.In(display),
		EndLocal:   w.End.In(display),
		Timezone:   display.String(),
		IsChild:    isChild,
	}
}

func (r Result) Attributes() map[string]any {
	return map[string]any{
		AttrStartTimeLocal: r.StartLocal.Format(time.RFC3339),
		AttrEndTimeLocal:   r.EndLocal.Format(time.RFC3339),
		AttrStartTimeUTC:   r.Start.Format(time.RFC3339),
		AttrEndTimeUTC:     r.End.Format(time.RFC3339),
		AttrTimezone:       r.Timezone,
		AttrIsChild:        r.IsChild,
	}
}
