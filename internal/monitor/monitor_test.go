package monitor

import (
	"context"
	"errors"
	"io"
	"sync"
	"testing"
	"time"
	_ "time/tzdata"

	"github.com/golang-sql/civil"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rowjay/tzwindow/internal/config"
	"github.com/rowjay/tzwindow/internal/notify"
	"github.com/rowjay/tzwindow/internal/state"
	"github.com/rowjay/tzwindow/internal/window"
)

type recorder struct {
	mu     sync.Mutex
	events []notify.Event
	fail   int
}

func (r *recorder) Notify(_ context.Context, e notify.Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.fail > 0 {
		r.fail--
		return errors.New("unreachable")
	}
	r.events = append(r.events, e)
	return nil
}

func (r *recorder) take() []notify.Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := r.events
	r.events = nil
	return out
}

func berlinTable(t *testing.T) window.Table {
	t.Helper()
	loc, err := time.LoadLocation("Europe/Berlin")
	require.NoError(t, err)
	table, err := window.NewTable(
		window.Definition{ID: "night", Name: "Night", Spec: window.WindowConfig{
			Start: window.At(23, 0, 0), End: window.At(2, 0, 0), Location: loc,
		}},
		window.Definition{ID: "night-first-half-hour", Spec: window.ChildConfig{
			Parent: "night", StartAnchor: window.ParentStart, EndAnchor: window.ParentStart, EndOffset: 30 * time.Minute,
		}},
		window.Definition{ID: "dusk", Spec: window.WindowConfig{
			Start: window.AtSun(window.Sunset), End: window.At(23, 0, 0), Location: loc,
		}},
	)
	require.NoError(t, err)
	return table
}

func noSun() window.SunEvents {
	return window.SunEventsFunc(func(civil.Date, window.SolarEvent) (time.Time, error) {
		return time.Time{}, window.ErrSolarDataUnavailable
	})
}

func newMonitor(t *testing.T, store *state.Store, rec *recorder) *Monitor {
	m := New(berlinTable(t), noSun(), config.WatchConfig{Interval: time.Hour, RetryCount: 2, RetryBackoff: time.Millisecond}, zerolog.New(io.Discard))
	m.Store = store
	if rec != nil {
		m.Notifier = rec
	}
	return m
}

func byID(statuses []Status) map[string]Status {
	out := map[string]Status{}
	for _, st := range statuses {
		out[st.ID] = st
	}
	return out
}

func TestCheckAnnouncesChanges(t *testing.T) {
	rec := &recorder{}
	m := newMonitor(t, nil, rec)
	ctx := context.Background()

	// 21:00 UTC is 22:00 in Berlin in January.
	before := time.Date(2024, 1, 10, 21, 0, 0, 0, time.UTC)
	statuses, err := m.Check(ctx, before)
	require.NoError(t, err)
	got := byID(statuses)
	assert.Equal(t, state.StateOff, got["night"].State)
	assert.Equal(t, time.Date(2024, 1, 10, 22, 0, 0, 0, time.UTC), got["night"].NextUpdate)
	assert.Equal(t, state.StateUnknown, got["dusk"].State)
	assert.NotEmpty(t, got["dusk"].Error)
	assert.Equal(t, "Europe/Berlin", got["night"].Attributes[window.AttrTimezone])

	// unknown -> off for both clock windows; dusk stays unknown.
	events := rec.take()
	require.Len(t, events, 2)
	for _, e := range events {
		assert.Equal(t, state.StateUnknown, e.Previous)
		assert.Equal(t, state.StateOff, e.State)
	}

	inside := time.Date(2024, 1, 10, 22, 10, 0, 0, time.UTC)
	_, err = m.Check(ctx, inside)
	require.NoError(t, err)
	events = rec.take()
	require.Len(t, events, 2)
	assert.Equal(t, state.StateOn, events[0].State)
	assert.Equal(t, state.StateOff, events[0].Previous)

	_, err = m.Check(ctx, inside.Add(time.Minute))
	require.NoError(t, err)
	assert.Empty(t, rec.take())

	st, ok := m.Status("night-first-half-hour")
	require.True(t, ok)
	assert.Equal(t, state.StateOn, st.State)
	assert.Equal(t, time.Date(2024, 1, 10, 22, 30, 0, 0, time.UTC), st.NextUpdate)
	assert.Len(t, m.Statuses(), 3)
	assert.Equal(t, "dusk", m.Statuses()[0].ID)
}

func TestCheckRetriesNotifications(t *testing.T) {
	rec := &recorder{fail: 1}
	m := newMonitor(t, nil, rec)
	_, err := m.Check(context.Background(), time.Date(2024, 1, 10, 22, 10, 0, 0, time.UTC))
	require.NoError(t, err)
	assert.Len(t, rec.take(), 2)
}

func TestSeedSuppressesKnownStates(t *testing.T) {
	store, err := state.Open(config.StateConfig{Local: config.LocalStore{Path: t.TempDir()}, Compression: "zstd", KeepLast: 3})
	require.NoError(t, err)
	ctx := context.Background()
	inside := time.Date(2024, 1, 10, 22, 10, 0, 0, time.UTC)

	first := newMonitor(t, store, &recorder{})
	_, err = first.Check(ctx, inside)
	require.NoError(t, err)

	rec := &recorder{}
	second := newMonitor(t, store, rec)
	require.NoError(t, second.Seed(ctx))
	st, ok := second.Status("night")
	require.True(t, ok)
	assert.Equal(t, state.StateOn, st.State)

	_, err = second.Check(ctx, inside.Add(5*time.Minute))
	require.NoError(t, err)
	assert.Empty(t, rec.take())

	_, err = second.Check(ctx, inside.Add(30*time.Minute))
	require.NoError(t, err)
	events := rec.take()
	require.Len(t, events, 1)
	assert.Equal(t, "night-first-half-hour", events[0].Window)
	assert.Equal(t, state.StateOff, events[0].State)
}

func TestNextDelay(t *testing.T) {
	m := newMonitor(t, nil, nil)
	now := time.Date(2024, 1, 10, 21, 0, 0, 0, time.UTC)
	statuses := []Status{
		{ID: "a", NextUpdate: now.Add(90 * time.Minute)},
		{ID: "b", NextUpdate: now.Add(20 * time.Minute)},
		{ID: "c"},
	}
	assert.Equal(t, 20*time.Minute, m.nextDelay(now, statuses))
	assert.Equal(t, time.Hour, m.nextDelay(now, statuses[:1]))
	assert.Equal(t, time.Hour, m.nextDelay(now, []Status{{NextUpdate: now}}))
	assert.Equal(t, time.Hour, m.nextDelay(now, []Status{{NextUpdate: now.Add(-3 * time.Hour)}}))
	assert.Equal(t, minDelay, m.nextDelay(now, []Status{{NextUpdate: now.Add(time.Millisecond)}}))
}

func TestRunStopsWithContext(t *testing.T) {
	rec := &recorder{}
	m := newMonitor(t, nil, rec)
	m.Now = func() time.Time { return time.Date(2024, 1, 10, 21, 0, 0, 0, time.UTC) }
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- m.Run(ctx) }()

	require.Eventually(t, func() bool { return len(m.Statuses()) == 3 }, time.Second, 5*time.Millisecond)
	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("Run did not return after cancel")
	}
}

func TestSnapshotWrittenOnlyOnChange(t *testing.T) {
	store, err := state.Open(config.StateConfig{Local: config.LocalStore{Path: t.TempDir()}, Compression: "none", KeepLast: 10})
	require.NoError(t, err)
	ctx := context.Background()
	count := func() int {
		objs, err := store.Backend.List(ctx, "snapshots")
		require.NoError(t, err)
		return len(objs)
	}

	m := newMonitor(t, store, &recorder{})
	inside := time.Date(2024, 1, 10, 22, 10, 0, 0, time.UTC)
	_, err = m.Check(ctx, inside)
	require.NoError(t, err)
	assert.Equal(t, 1, count())

	for i := 1; i <= 3; i++ {
		_, err = m.Check(ctx, inside.Add(time.Duration(i)*time.Second))
		require.NoError(t, err)
	}
	assert.Equal(t, 1, count(), "unchanged states must not be written again")

	// The first-half-hour child switches off at 22:30.
	_, err = m.Check(ctx, inside.Add(25*time.Minute))
	require.NoError(t, err)
	assert.Equal(t, 2, count())

	seeded := newMonitor(t, store, &recorder{})
	require.NoError(t, seeded.Seed(ctx))
	_, err = seeded.Check(ctx, inside.Add(26*time.Minute))
	require.NoError(t, err)
	assert.Equal(t, 2, count())
}
