package window

import (
	"fmt"
	"time"

	"github.com/golang-sql/civil"
)

// SunEvents supplies the instant of a solar event for a calendar day. It
// returns an error wrapping ErrSolarDataUnavailable when the event does not
// happen that day.
type SunEvents interface {
	SunEvent(day civil.Date, event SolarEvent) (time.Time, error)
}

type SunEventsFunc func(day civil.Date, event SolarEvent) (time.Time, error)

func (f SunEventsFunc) SunEvent(day civil.Date, event SolarEvent) (time.Time, error) {
	return f(day, event)
}

// ResolvedWindow is one concrete occurrence of a window as UTC instants.
// End at or before Start encodes an empty window.
type ResolvedWindow struct {
	Start time.Time `json:"start_utc" yaml:"start_utc"`
	End   time.Time `json:"end_utc" yaml:"end_utc"`
}

func (w ResolvedWindow) Contains(now time.Time) bool {
	return !now.Before(w.Start) && now.Before(w.End)
}

func (w ResolvedWindow) Duration() time.Duration {
	if !w.End.After(w.Start) {
		return 0
	}
	return w.End.Sub(w.Start)
}

// NextChange is the next instant at which membership may flip: the start if
// it is still ahead, the end while inside, otherwise the same start a day on.
func (w ResolvedWindow) NextChange(now time.Time) time.Time {
	switch {
	case now.Before(w.Start):
		return w.Start
	case now.Before(w.End):
		return w.End
	default:
		return w.Start.Add(24 * time.Hour)
	}
}

// Resolve computes the occurrence of a root window that starts on day. A
// window whose end comes before its start runs past midnight and ends on the
// following day.
func Resolve(day civil.Date, cfg WindowConfig, sun SunEvents) (ResolvedWindow, error) {
	loc := cfg.location()
	start, err := boundary(day, cfg.Start, loc, sun)
	if err != nil {
		return ResolvedWindow{}, err
	}
	end, err := boundary(day, cfg.End, loc, sun)
	if err != nil {
		return ResolvedWindow{}, err
	}
	start = start.Add(cfg.StartOffset)
	end = end.Add(cfg.EndOffset)

	if crossesMidnight(cfg, start, end) {
		end, err = boundary(day.AddDays(1), cfg.End, loc, sun)
		if err != nil {
			return ResolvedWindow{}, err
		}
		end = end.Add(cfg.EndOffset)
	}
	return ResolvedWindow{Start: start, End: end}, nil
}

// crossesMidnight compares two clock boundaries on the wall clock so that a
// DST gap cannot make a same-day window look overnight. Anything involving a
// solar event is compared on the resolved instants.
func crossesMidnight(cfg WindowConfig, start, end time.Time) bool {
	if !cfg.Start.IsSolar() && !cfg.End.IsSolar() {
		s := time.Duration(cfg.Start.seconds())*time.Second + cfg.StartOffset
		e := time.Duration(cfg.End.seconds())*time.Second + cfg.EndOffset
		return e < s
	}
	return end.Before(start)
}

func boundary(day civil.Date, spec TimeSpec, loc *time.Location, sun SunEvents) (time.Time, error) {
	if !spec.IsSolar() {
		return wallClock(day, spec, loc), nil
	}
	if sun == nil {
		return time.Time{}, fmt.Errorf("%s on %s: no sun event source: %w", spec.Event, day, ErrSolarDataUnavailable)
	}
	at, err := sun.SunEvent(day, spec.Event)
	if err != nil {
		return time.Time{}, fmt.Errorf("%s on %s: %w", spec.Event, day, err)
	}
	if at.IsZero() {
		return time.Time{}, fmt.Errorf("%s on %s: %w", spec.Event, day, ErrSolarDataUnavailable)
	}
	return at.UTC(), nil
}
