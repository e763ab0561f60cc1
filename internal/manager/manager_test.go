package manager

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/loykin/vpnclient/internal/event"
	"github.com/loykin/vpnclient/internal/history"
	"github.com/loykin/vpnclient/internal/lifecycle"
	"github.com/loykin/vpnclient/internal/status"
	"github.com/loykin/vpnclient/internal/store"
)

var t0 = time.Date(2024, 12, 7, 10, 0, 0, 0, time.UTC)

type clock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *clock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

func newTestManager(st store.EventStore, ok bool, c *clock) *Manager {
	if c == nil {
		c = &clock{now: t0}
	}
	return NewManager(st, Options{Simulator: lifecycle.Always(ok), Now: c.Now})
}

func statuses(t *testing.T, st store.EventStore) []event.Status {
	t.Helper()
	events, err := st.All(context.Background())
	require.NoError(t, err)
	out := make([]event.Status, len(events))
	for i, e := range events {
		out[i] = e.Status
	}
	return out
}

func TestEmptyLogReportsNoEvents(t *testing.T) {
	m := newTestManager(store.NewMemory(), true, nil)
	ctx := context.Background()

	r, err := m.Status(ctx)
	require.NoError(t, err)
	assert.Equal(t, "No events found", r.String())

	h, err := m.History(ctx, history.Query{})
	require.NoError(t, err)
	assert.Equal(t, "No events found", h.String())
}

func TestUpOnEmptyLog(t *testing.T) {
	st := store.NewMemory()
	m := newTestManager(st, true, nil)
	ctx := context.Background()

	res, err := m.Up(ctx)
	require.NoError(t, err)
	assert.False(t, res.Skipped)
	assert.Equal(t, "Starting...\r\nStatus: UP", res.String())
	assert.Equal(t, []event.Status{event.Starting, event.Up}, statuses(t, st))

	r, err := m.Status(ctx)
	require.NoError(t, err)
	assert.Equal(t, "Status: UP\r\nUptime: 0 seconds", r.String())
}

func TestUpWhenAlreadyUp(t *testing.T) {
	st := store.NewMemory(
		event.New(event.Starting, t0.Add(-time.Minute)),
		event.New(event.Up, t0.Add(-time.Minute)),
	)
	m := newTestManager(st, true, nil)

	res, err := m.Up(context.Background())
	require.NoError(t, err)
	assert.True(t, res.Skipped)
	assert.Equal(t, "Already UP", res.String())
	assert.Len(t, statuses(t, st), 2)
}

func TestUpAfterFailureOrDown(t *testing.T) {
	for _, tail := range []event.Status{event.Down, event.Failed, event.Starting, event.Stopping} {
		t.Run(tail.String(), func(t *testing.T) {
			st := store.NewMemory(event.New(tail, t0))
			m := newTestManager(st, false, nil)
			res, err := m.Up(context.Background())
			require.NoError(t, err)
			assert.Equal(t, "Starting...\r\nStatus: FAILED", res.String())
			assert.Equal(t, []event.Status{tail, event.Starting, event.Failed}, statuses(t, st))
		})
	}
}

func TestDownIdempotency(t *testing.T) {
	cases := map[string][]event.Event{
		"empty":  nil,
		"down":   {event.New(event.Down, t0)},
		"failed": {event.New(event.Starting, t0), event.New(event.Failed, t0)},
	}
	for name, seed := range cases {
		t.Run(name, func(t *testing.T) {
			st := store.NewMemory(seed...)
			m := newTestManager(st, true, nil)
			res, err := m.Down(context.Background())
			require.NoError(t, err)
			assert.Equal(t, "Already DOWN", res.String())
			assert.Len(t, statuses(t, st), len(seed))
		})
	}
}

func TestDownFromUp(t *testing.T) {
	for _, ok := range []bool{true, false} {
		st := store.NewMemory(event.New(event.Starting, t0), event.New(event.Up, t0))
		m := newTestManager(st, ok, nil)
		res, err := m.Down(context.Background())
		require.NoError(t, err)
		want := event.Down
		if !ok {
			want = event.Failed
		}
		assert.Equal(t, "Stopping...\r\nStatus: "+want.String(), res.String())
		assert.Equal(t, []event.Status{event.Starting, event.Up, event.Stopping, want}, statuses(t, st))
	}
}

func TestStatusTails(t *testing.T) {
	for _, tail := range []event.Status{event.Starting, event.Stopping, event.Failed} {
		st := store.NewMemory(event.New(event.Up, t0), event.New(tail, t0))
		r, err := newTestManager(st, true, nil).Status(context.Background())
		require.NoError(t, err)
		assert.Equal(t, "No events found", r.String(), "tail %s", tail)
	}

	st := store.NewMemory(event.New(event.Stopping, t0), event.New(event.Down, t0))
	r, err := newTestManager(st, true, nil).Status(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "Status: DOWN", r.String())
}

func TestUptimeGrows(t *testing.T) {
	c := &clock{now: t0}
	st := store.NewMemory(event.New(event.Starting, t0), event.New(event.Up, t0))
	m := newTestManager(st, true, c)
	c.Advance(3 * time.Second)

	r, err := m.Status(context.Background())
	require.NoError(t, err)
	assert.Equal(t, status.Up, r.Kind)
	assert.GreaterOrEqual(t, r.Uptime, int64(3))
}

func TestFullCycleAgainstJSONFile(t *testing.T) {
	st, err := store.NewJSONFile(filepath.Join(t.TempDir(), "events.json"))
	require.NoError(t, err)
	c := &clock{now: t0}
	m := newTestManager(st, true, c)
	ctx := context.Background()

	_, err = m.Up(ctx)
	require.NoError(t, err)
	c.Advance(time.Hour)
	res, err := m.Down(ctx)
	require.NoError(t, err)
	assert.Equal(t, "Stopping...\r\nStatus: DOWN", res.String())

	h, err := m.History(ctx, history.Query{Order: history.Desc})
	require.NoError(t, err)
	assert.Equal(t,
		"Status: STOPPING, Timestamp: 2024-12-07T11:00:00\n"+
			"Status: DOWN, Timestamp: 2024-12-07T11:00:00\n"+
			"Status: STARTING, Timestamp: 2024-12-07T10:00:00\n"+
			"Status: UP, Timestamp: 2024-12-07T10:00:00",
		h.String())
}

func TestHistoryFilters(t *testing.T) {
	day := func(d int) time.Time { return time.Date(2024, 12, d, 12, 0, 0, 0, time.UTC) }
	st := store.NewMemory(
		event.New(event.Starting, day(1)), event.New(event.Up, day(1)),
		event.New(event.Stopping, day(2)), event.New(event.Down, day(2)),
		event.New(event.Starting, day(3)), event.New(event.Failed, day(3)),
	)
	m := newTestManager(st, true, nil)
	from, err := history.ParseDate("2024-12-02")
	require.NoError(t, err)
	to, err := history.ParseDate("2024-12-03")
	require.NoError(t, err)

	h, err := m.History(context.Background(), history.Query{From: &from, To: &to})
	require.NoError(t, err)
	require.Len(t, h.Entries, 4)
	assert.Equal(t, event.Stopping, h.Entries[0].Status)

	failed := event.Failed
	h, err = m.History(context.Background(), history.Query{Status: &failed})
	require.NoError(t, err)
	assert.Equal(t, "Status: FAILED, Timestamp: 2024-12-03T12:00:00", h.String())

	up := event.Up
	h, err = m.History(context.Background(), history.Query{From: &from, Status: &up})
	require.NoError(t, err)
	assert.Equal(t, "No events found", h.String())
}

func TestStorageErrors(t *testing.T) {
	boom := errors.New("disk full")
	st := store.NewMemory()
	st.FailAppendAfter(0, boom)
	m := newTestManager(st, true, nil)

	_, err := m.Up(context.Background())
	require.ErrorIs(t, err, boom)
	assert.Empty(t, statuses(t, st))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = m.Status(ctx)
	require.Error(t, err)
	_, err = m.History(ctx, history.Query{})
	require.Error(t, err)
	require.Error(t, m.Refresh(ctx))
}

func TestConcurrentUpAppendsOnce(t *testing.T) {
	st := store.NewMemory()
	m := newTestManager(st, true, nil)

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _ = m.Up(context.Background())
		}()
	}
	wg.Wait()
	assert.Equal(t, []event.Status{event.Starting, event.Up}, statuses(t, st))
}
