package window

import (
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/golang-sql/civil"
)

// maxSearchDays bounds the forward search for the occurrence that has not
// ended yet.
const maxSearchDays = 366

// Table is a read-only set of window definitions keyed by id.
type Table struct {
	defs map[string]Definition
}

// Occurrence is the resolved window for the reference day it was built from.
// For a child the day is the one its root ancestor was resolved for.
type Occurrence struct {
	Day    civil.Date
	Window ResolvedWindow
}

// NewTable validates defs: ids must be unique and non-empty, and every child
// must reach a root window through existing parents.
func NewTable(defs ...Definition) (Table, error) {
	t := Table{defs: make(map[string]Definition, len(defs))}
	for _, d := range defs {
		if d.ID == "" {
			return Table{}, configErr(d.Name, "id", errors.New("id is required"))
		}
		if _, dup := t.defs[d.ID]; dup {
			return Table{}, configErr(d.ID, "id", errors.New("duplicate id"))
		}
		if d.Spec == nil {
			return Table{}, configErr(d.ID, "", errors.New("no window specification"))
		}
		t.defs[d.ID] = d
	}
	for _, id := range t.IDs() {
		if _, err := t.root(id); err != nil {
			return Table{}, err
		}
	}
	return t, nil
}

// IDs returns the ids in lexical order.
func (t Table) IDs() []string {
	ids := make([]string, 0, len(t.defs))
	for id := range t.defs {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

func (t Table) Len() int { return len(t.defs) }

func (t Table) Get(id string) (Definition, bool) {
	d, ok := t.defs[id]
	return d, ok
}

// root follows parent links from id to its root window.
func (t Table) root(id string) (WindowConfig, error) {
	seen := map[string]bool{}
	cur := id
	for {
		d, ok := t.defs[cur]
		if !ok {
			return WindowConfig{}, configErr(id, "parent", fmt.Errorf("unknown window %q", cur))
		}
		switch s := d.Spec.(type) {
		case WindowConfig:
			return s, nil
		case ChildConfig:
			if seen[cur] {
				return WindowConfig{}, configErr(id, "parent", fmt.Errorf("parent cycle through %q", cur))
			}
			seen[cur] = true
			cur = s.Parent
		default:
			return WindowConfig{}, configErr(cur, "", fmt.Errorf("unsupported specification %T", d.Spec))
		}
	}
}

// Location is the zone used to display a window: its own for a root, its
// root ancestor's for a child.
func (t Table) Location(id string) (*time.Location, error) {
	r, err := t.root(id)
	if err != nil {
		return nil, err
	}
	return r.location(), nil
}

// Resolve computes the occurrence of id for day. Children are composed from
// their parent's occurrence for the same day.
func (t Table) Resolve(day civil.Date, id string, sun SunEvents) (ResolvedWindow, error) {
	d, ok := t.defs[id]
	if !ok {
		return ResolvedWindow{}, fmt.Errorf("unknown window %q", id)
	}
	switch s := d.Spec.(type) {
	case WindowConfig:
		return Resolve(day, s, sun)
	case ChildConfig:
		parent, err := t.Resolve(day, s.Parent, sun)
		if err != nil {
			return ResolvedWindow{}, err
		}
		return ResolveChild(parent, s), nil
	default:
		return ResolvedWindow{}, fmt.Errorf("window %q: unsupported specification %T", id, d.Spec)
	}
}

// Locate finds the occurrence of id that matters at now: the one containing
// now, or else the next one to start.
func (t Table) Locate(now time.Time, id string, sun SunEvents) (Occurrence, error) {
	d, ok := t.defs[id]
	if !ok {
		return Occurrence{}, fmt.Errorf("unknown window %q", id)
	}
	switch s := d.Spec.(type) {
	case WindowConfig:
		return locateRoot(now, s, sun)
	case ChildConfig:
		parent, err := t.Locate(now, s.Parent, sun)
		if err != nil {
			return Occurrence{}, err
		}
		return t.locateChild(now, id, parent, sun)
	default:
		return Occurrence{}, fmt.Errorf("window %q: unsupported specification %T", id, d.Spec)
	}
}

// locateChild picks among the child occurrences built from the day before,
// the day of and the day after the parent's located occurrence: the one
// containing now, else the earliest one still ahead. Offsets can move a child
// outside its parent, e.g. the hour after the parent has ended.
func (t Table) locateChild(now time.Time, id string, parent Occurrence, sun SunEvents) (Occurrence, error) {
	var next *Occurrence
	for _, day := range []civil.Date{parent.Day.AddDays(-1), parent.Day, parent.Day.AddDays(1)} {
		w, err := t.Resolve(day, id, sun)
		if err != nil {
			if day != parent.Day && errors.Is(err, ErrSolarDataUnavailable) {
				continue
			}
			return Occurrence{}, err
		}
		occ := Occurrence{Day: day, Window: w}
		if w.Contains(now) {
			return occ, nil
		}
		if w.Start.After(now) && (next == nil || w.Start.Before(next.Window.Start)) {
			next = &occ
		}
	}
	if next != nil {
		return *next, nil
	}
	return t.resolveOccurrence(parent.Day, id, sun)
}

func (t Table) resolveOccurrence(day civil.Date, id string, sun SunEvents) (Occurrence, error) {
	w, err := t.Resolve(day, id, sun)
	if err != nil {
		return Occurrence{}, err
	}
	return Occurrence{Day: day, Window: w}, nil
}

func locateRoot(now time.Time, cfg WindowConfig, sun SunEvents) (Occurrence, error) {
	day := civil.DateOf(now.In(cfg.location()))
	w, err := Resolve(day, cfg, sun)
	if err != nil {
		return Occurrence{}, err
	}
	for i := 0; i < maxSearchDays && !now.Before(w.End); i++ {
		day = day.AddDays(1)
		if w, err = Resolve(day, cfg, sun); err != nil {
			return Occurrence{}, err
		}
	}
	if now.Before(w.Start) {
		prevDay := day.AddDays(-1)
		prev, err := Resolve(prevDay, cfg, sun)
		if err != nil && !errors.Is(err, ErrSolarDataUnavailable) {
			return Occurrence{}, err
		}
		if err == nil && prev.Contains(now) {
			return Occurrence{Day: prevDay, Window: prev}, nil
		}
	}
	return Occurrence{Day: day, Window: w}, nil
}

// Evaluate locates the occurrence of id at now and evaluates it.
func (t Table) Evaluate(now time.Time, id string, sun SunEvents) (Result, Occurrence, error) {
	loc, err := t.Location(id)
	if err != nil {
		return Result{}, Occurrence{}, err
	}
	occ, err := t.Locate(now, id, sun)
	if err != nil {
		return Result{}, Occurrence{}, err
	}
	return Evaluate(now, occ.Window, loc, t.defs[id].IsChild()), occ, nil
}
