package twitterbot

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recorder struct {
	mu  sync.Mutex
	ids []string
}

func (r *recorder) handle(_ context.Context, ev InboundEvent) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.ids = append(r.ids, ev.ID)
	return nil
}

func (r *recorder) got() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.ids...)
}

func event(id string, at time.Time) InboundEvent {
	return InboundEvent{ID: id, AuthorHandle: "someone", Text: "hi " + id, CreatedAt: at}
}

func TestTick_DispatchesOnlyNewerInOrder(t *testing.T) {
	clock := clockwork.NewFakeClockAt(t0.Add(30 * time.Second))
	rec := &recorder{}
	var gotSince time.Time
	var gotLimit int
	m := NewMonitor(MonitorConfig{
		Fetch: func(_ context.Context, since time.Time, limit int) ([]InboundEvent, error) {
			gotSince, gotLimit = since, limit
			return []InboundEvent{
				event("old", t0.Add(-10*time.Second)),
				event("mid", t0.Add(5*time.Second)),
				event("new", t0.Add(20*time.Second)),
			}, nil
		},
		Handle:    rec.handle,
		BatchSize: 50,
		Since:     t0,
		Clock:     clock,
	})

	require.NoError(t, m.Tick(context.Background()))
	assert.Equal(t, []string{"mid", "new"}, rec.got())
	assert.True(t, gotSince.Equal(t0))
	assert.Equal(t, 50, gotLimit)
	assert.True(t, m.Cursor().LastChecked.Equal(t0.Add(30*time.Second)))
}

func TestTick_SortsAndDedupes(t *testing.T) {
	clock := clockwork.NewFakeClockAt(t0.Add(time.Minute))
	rec := &recorder{}
	batch := []InboundEvent{
		event("c", t0.Add(30*time.Second)),
		event("a", t0.Add(10*time.Second)),
		event("b", t0.Add(20*time.Second)),
		event("a", t0.Add(10*time.Second)),
	}
	m := NewMonitor(MonitorConfig{
		Fetch: func(context.Context, time.Time, int) ([]InboundEvent, error) {
			return batch, nil
		},
		Handle: rec.handle,
		Since:  t0,
		Clock:  clock,
	})

	require.NoError(t, m.Tick(context.Background()))
	assert.Equal(t, []string{"a", "b", "c"}, rec.got())

	// The same batch again is entirely behind the cursor.
	require.NoError(t, m.Tick(context.Background()))
	assert.Equal(t, []string{"a", "b", "c"}, rec.got())
}

func TestTick_FetchErrorKeepsCursor(t *testing.T) {
	clock := clockwork.NewFakeClockAt(t0.Add(time.Minute))
	failure := NewError(KindTransient, "SearchTimeline", 503, nil)
	m := NewMonitor(MonitorConfig{
		Fetch: func(context.Context, time.Time, int) ([]InboundEvent, error) {
			return nil, failure
		},
		Since: t0,
		Clock: clock,
	})

	err := m.Tick(context.Background())
	assert.ErrorIs(t, err, failure)
	assert.True(t, m.Cursor().LastChecked.Equal(t0))
}

func TestTick_HandlerErrorDoesNotStopBatch(t *testing.T) {
	clock := clockwork.NewFakeClockAt(t0.Add(time.Minute))
	var seen []string
	m := NewMonitor(MonitorConfig{
		Fetch: func(context.Context, time.Time, int) ([]InboundEvent, error) {
			return []InboundEvent{event("1", t0.Add(time.Second)), event("2", t0.Add(2*time.Second))}, nil
		},
		Handle: func(_ context.Context, ev InboundEvent) error {
			seen = append(seen, ev.ID)
			return errors.New("responder down")
		},
		Since: t0,
		Clock: clock,
	})

	require.NoError(t, m.Tick(context.Background()))
	assert.Equal(t, []string{"1", "2"}, seen)
	assert.True(t, m.Cursor().LastChecked.Equal(t0.Add(time.Minute)))
}

func TestTick_FutureItemAdvancesCursor(t *testing.T) {
	clock := clockwork.NewFakeClockAt(t0)
	future := t0.Add(time.Hour)
	var cursors []time.Time
	m := NewMonitor(MonitorConfig{
		Fetch: func(context.Context, time.Time, int) ([]InboundEvent, error) {
			return []InboundEvent{event("x", future)}, nil
		},
		Since:    t0.Add(-time.Minute),
		Clock:    clock,
		OnCursor: func(t time.Time) { cursors = append(cursors, t) },
	})

	require.NoError(t, m.Tick(context.Background()))
	assert.True(t, m.Cursor().LastChecked.Equal(future))
	require.Len(t, cursors, 1)
	assert.True(t, cursors[0].Equal(future))
}

func TestStartStop_NoItems(t *testing.T) {
	clock := clockwork.NewFakeClockAt(t0)
	rec := &recorder{}
	fetched := make(chan struct{}, 4)
	m := NewMonitor(MonitorConfig{
		Fetch: func(context.Context, time.Time, int) ([]InboundEvent, error) {
			fetched <- struct{}{}
			return nil, nil
		},
		Handle:   rec.handle,
		Interval: 10 * time.Second,
		Clock:    clock,
	})

	require.NoError(t, m.Start(context.Background()))
	assert.Equal(t, StatePolling, m.State())
	assert.True(t, m.Cursor().Active)
	assert.True(t, m.Cursor().LastChecked.Equal(t0), "cursor seeded from the clock")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, clock.BlockUntilContext(ctx, 1))
	assert.Empty(t, fetched, "no poll before the first interval")
	clock.Advance(10 * time.Second)
	await(t, fetched)

	m.Stop()
	m.Wait()
	assert.Equal(t, StateStopped, m.State())
	assert.False(t, m.Cursor().Active)
	assert.Empty(t, rec.got())
}

func TestStart_AlreadyRunning(t *testing.T) {
	m := NewMonitor(MonitorConfig{
		Fetch: func(context.Context, time.Time, int) ([]InboundEvent, error) { return nil, nil },
		Clock: clockwork.NewFakeClock(),
	})
	require.NoError(t, m.Start(context.Background()))
	defer m.Stop()
	assert.ErrorIs(t, m.Start(context.Background()), ErrMonitorRunning)
	assert.ErrorIs(t, m.StartStream(context.Background(), streamFunc(nil)), ErrMonitorRunning)
}

func TestStart_NoFetch(t *testing.T) {
	assert.Error(t, NewMonitor(MonitorConfig{}).Start(context.Background()))
}

func TestStop_Idle(t *testing.T) {
	m := NewMonitor(MonitorConfig{})
	m.Stop()
	assert.Equal(t, StateStopped, m.State())
}

func TestPoll_ContextCancelEndsLoop(t *testing.T) {
	m := NewMonitor(MonitorConfig{
		Fetch: func(context.Context, time.Time, int) ([]InboundEvent, error) { return nil, nil },
		Clock: clockwork.NewFakeClock(),
	})
	ctx, cancel := context.WithCancel(context.Background())
	require.NoError(t, m.Start(ctx))
	cancel()
	require.Eventually(t, func() bool { return !m.Cursor().Active }, 5*time.Second, 10*time.Millisecond)
	assert.Equal(t, StateStopped, m.State())
	assert.NoError(t, m.Start(context.Background()), "a finished monitor can start again")
	m.Stop()
	m.Wait()
}

func TestMonitorStateString(t *testing.T) {
	assert.Equal(t, "stopped", StateStopped.String())
	assert.Equal(t, "polling", StatePolling.String())
	assert.Equal(t, "streaming", StateStreaming.String())
}

func TestStop_FromHandler(t *testing.T) {
	clock := clockwork.NewFakeClockAt(t0)
	var m *Monitor
	m = NewMonitor(MonitorConfig{
		Fetch: func(context.Context, time.Time, int) ([]InboundEvent, error) {
			return []InboundEvent{event("bye", t0.Add(time.Millisecond))}, nil
		},
		Handle: func(context.Context, InboundEvent) error {
			m.Stop()
			return nil
		},
		Interval: time.Second,
		Since:    t0.Add(-time.Second),
		Clock:    clock,
	})
	require.NoError(t, m.Start(context.Background()))

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, clock.BlockUntilContext(ctx, 1))
	clock.Advance(time.Second)

	select {
	case <-m.Done():
	case <-time.After(5 * time.Second):
		t.Fatal("monitor did not exit after Stop from its own handler")
	}
	assert.False(t, m.Cursor().Active)
	assert.Equal(t, StateStopped, m.State())
}
