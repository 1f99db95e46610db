// Package monitor evaluates every configured window on a schedule, announces
// state changes and keeps the last statuses for the status API.
package monitor

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/rowjay/tzwindow/internal/config"
	"github.com/rowjay/tzwindow/internal/notify"
	"github.com/rowjay/tzwindow/internal/state"
	"github.com/rowjay/tzwindow/internal/util"
	"github.com/rowjay/tzwindow/internal/version"
	"github.com/rowjay/tzwindow/internal/window"
)

// Status is the evaluated state of one window.
type Status = state.WindowStatus

const minDelay = 10 * time.Millisecond

type Monitor struct {
	Table    window.Table
	Sun      window.SunEvents
	Notifier notify.Notifier
	Store    *state.Store
	Log      zerolog.Logger
	Watch    config.WatchConfig
	Now      func() time.Time

	mu       sync.RWMutex
	statuses map[string]Status

	// persisted is set once a snapshot is known to exist in Store.
	persisted bool
}

func New(table window.Table, sun window.SunEvents, watch config.WatchConfig, log zerolog.Logger) *Monitor {
	if watch.Interval <= 0 {
		watch.Interval = time.Minute
	}
	return &Monitor{Table: table, Sun: sun, Watch: watch, Log: log, Now: time.Now, statuses: map[string]Status{}}
}

// Seed loads the last persisted statuses so unchanged states are not
// announced again after a restart.
func (m *Monitor) Seed(ctx context.Context) error {
	if m.Store == nil {
		return nil
	}
	snap, err := m.Store.Latest(ctx)
	if errors.Is(err, state.ErrNoSnapshot) {
		return nil
	}
	if err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.persisted = true
	for id, st := range snap.ByID() {
		if _, ok := m.Table.Get(id); ok {
			m.statuses[id] = st
		}
	}
	m.Log.Debug().Time("taken_at", snap.TakenAt).Int("windows", len(m.statuses)).Msg("seeded from snapshot")
	return nil
}

// Check evaluates every window at now, announces changes and persists a
// snapshot. Per-window failures are reported in the status, not returned.
func (m *Monitor) Check(ctx context.Context, now time.Time) ([]Status, error) {
	ids := m.Table.IDs()
	results := make([]Status, len(ids))

	eg, _ := errgroup.WithContext(ctx)
	if m.Watch.Concurrency > 0 {
		eg.SetLimit(m.Watch.Concurrency)
	}
	for i, id := range ids {
		i, id := i, id
		eg.Go(func() error {
			results[i] = m.evaluate(now, id)
			return nil
		})
	}
	_ = eg.Wait()
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	m.mu.Lock()
	previous := m.statuses
	m.statuses = make(map[string]Status, len(results))
	for _, st := range results {
		m.statuses[st.ID] = st
	}
	m.mu.Unlock()

	changed := len(previous) != len(results)
	for _, st := range results {
		prev := state.StateUnknown
		if p, ok := previous[st.ID]; ok {
			prev = p.State
		}
		if prev == st.State {
			continue
		}
		changed = true
		m.announce(ctx, now, prev, st)
	}

	if m.Store != nil && (changed || !m.persisted) {
		snap := state.Snapshot{
			ID:          fmt.Sprintf("check-%d", now.UnixNano()),
			TakenAt:     now.UTC(),
			ToolVersion: version.Version,
			Statuses:    results,
		}
		if key, err := m.Store.Save(ctx, snap); err != nil {
			m.Log.Warn().Err(err).Msg("failed to write snapshot")
		} else {
			m.persisted = true
			m.Log.Debug().Str("key", key).Msg("snapshot written")
		}
	}
	return results, nil
}

func (m *Monitor) evaluate(now time.Time, id string) Status {
	def, _ := m.Table.Get(id)
	st := Status{ID: id, Name: def.Name, State: state.StateUnknown}
	res, occ, err := m.Table.Evaluate(now, id, m.Sun)
	if err != nil {
		st.Error = err.Error()
		m.Log.Warn().Err(err).Str("window", id).Msg("window evaluation failed")
		return st
	}
	st.State = state.StateOff
	if res.Active {
		st.State = state.StateOn
	}
	st.Attributes = res.Attributes()
	st.NextUpdate = occ.Window.NextChange(now).UTC()
	return st
}

func (m *Monitor) announce(ctx context.Context, now time.Time, previous string, st Status) {
	m.Log.Info().Str("window", st.ID).Str("from", previous).Str("to", st.State).Msg("window changed")
	if m.Notifier == nil {
		return
	}
	event := notify.NewEvent(st.ID, st.Name, previous, st.State, now, st.Attributes)
	event.Error = st.Error
	policy := util.PolicyFrom(m.Watch, m.Log.With().Str("window", st.ID).Str("event", event.ID).Logger())
	_ = util.Retry(ctx, policy, "notify", func(int) error {
		return m.Notifier.Notify(ctx, event)
	})
}

// Run checks until ctx is done, waking at the earlier of the interval and the
// next expected transition.
func (m *Monitor) Run(ctx context.Context) error {
	for {
		now := m.Now()
		statuses, err := m.Check(ctx, now)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return err
		}
		delay := m.nextDelay(now, statuses)
		m.Log.Debug().Dur("delay", delay).Msg("next check scheduled")

		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil
		case <-timer.C:
		}
	}
}

func (m *Monitor) nextDelay(now time.Time, statuses []Status) time.Duration {
	delay := m.Watch.Interval
	for _, st := range statuses {
		// Offsets can put a computed change at or before now; those fall
		// back to the interval.
		if !st.NextUpdate.After(now) {
			continue
		}
		if d := st.NextUpdate.Sub(now); d < delay {
			delay = d
		}
	}
	return max(delay, minDelay)
}

// Statuses returns the last evaluated statuses ordered by window id.
func (m *Monitor) Statuses() []Status {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]Status, 0, len(m.statuses))
	for _, st := range m.statuses {
		out = append(out, st)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Status returns the last evaluated status of one window.
func (m *Monitor) Status(id string) (Status, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	st, ok := m.statuses[id]
	return st, ok
}
