package twitterbot

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
)

// ErrMonitorRunning is returned by Start and StartStream on a running monitor.
var ErrMonitorRunning = errors.New("monitor already running")

// MonitorState is the monitor's lifecycle state.
type MonitorState int

const (
	StateStopped MonitorState = iota
	StatePolling
	StateStreaming
)

func (s MonitorState) String() string {
	switch s {
	case StatePolling:
		return "polling"
	case StateStreaming:
		return "streaming"
	}
	return "stopped"
}

// FetchFunc returns up to limit recent items created after since.
type FetchFunc func(ctx context.Context, since time.Time, limit int) ([]InboundEvent, error)

// HandlerFunc consumes one inbound event.
type HandlerFunc func(ctx context.Context, ev InboundEvent) error

// MonitorConfig configures a Monitor.
type MonitorConfig struct {
	Fetch  FetchFunc
	Handle HandlerFunc

	// Interval between polls. Default 30s.
	Interval time.Duration
	// BatchSize bounds each fetch. Default 20.
	BatchSize int
	// Since seeds the cursor. Zero means the time Start is called.
	Since time.Time

	// RestartDelay is the fixed wait before reopening a failed stream. Default 1m.
	RestartDelay time.Duration
	// MaxRestarts caps consecutive stream restarts. Zero means 5, negative means unlimited.
	MaxRestarts int

	// OnCursor is called whenever the cursor advances.
	OnCursor func(lastChecked time.Time)

	Clock clockwork.Clock
}

func (cfg *MonitorConfig) defaults() {
	if cfg.Interval <= 0 {
		cfg.Interval = 30 * time.Second
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 20
	}
	if cfg.RestartDelay <= 0 {
		cfg.RestartDelay = time.Minute
	}
	if cfg.MaxRestarts == 0 {
		cfg.MaxRestarts = 5
	}
	if cfg.Clock == nil {
		cfg.Clock = clockwork.NewRealClock()
	}
}

// StreamCursor is the monitor's position.
type StreamCursor struct {
	LastChecked time.Time
	Active      bool
}

// Monitor polls or streams for new inbound events and dispatches each one once.
type Monitor struct {
	cfg MonitorConfig

	tickMu sync.Mutex // serializes ticks and stream dispatch

	mu      sync.Mutex
	cursor  StreamCursor
	state   MonitorState
	stop    chan struct{}
	done    chan struct{}
	cancel  context.CancelFunc
	running bool
}

// NewMonitor creates a stopped monitor.
func NewMonitor(cfg MonitorConfig) *Monitor {
	cfg.defaults()
	return &Monitor{
		cfg:    cfg,
		cursor: StreamCursor{LastChecked: cfg.Since},
	}
}

// Cursor returns a snapshot of the cursor.
func (m *Monitor) Cursor() StreamCursor {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.cursor
}

// State returns the current lifecycle state.
func (m *Monitor) State() MonitorState {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// Start begins fixed-interval polling. The first poll happens one interval after Start.
func (m *Monitor) Start(ctx context.Context) error {
	if m.cfg.Fetch == nil {
		return fmt.Errorf("monitor: no fetch function")
	}
	stop, done, err := m.begin(StatePolling, nil)
	if err != nil {
		return err
	}
	slog.Info("monitor: polling started", slog.Duration("interval", m.cfg.Interval))
	go m.pollLoop(ctx, stop, done)
	return nil
}

// Stop ends polling or streaming without waiting. An in-flight tick or
// handler runs to completion and then the loop exits; no further ticks start.
// Stop may be called from a handler. Wait blocks until the loop is gone.
func (m *Monitor) Stop() {
	m.mu.Lock()
	if !m.running || m.stop == nil {
		m.mu.Unlock()
		return
	}
	m.cursor.Active = false
	stop, cancel := m.stop, m.cancel
	m.stop, m.cancel = nil, nil
	m.mu.Unlock()

	close(stop)
	if cancel != nil {
		cancel()
	}
	slog.Info("monitor: stopping")
}

// Wait blocks until the current loop has exited. It returns at once on a
// monitor that was never started.
func (m *Monitor) Wait() {
	<-m.Done()
}

// Done is closed when the current loop exits, whether through Stop, ctx or
// exhausted stream restarts.
func (m *Monitor) Done() <-chan struct{} {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.done == nil {
		return closedDone
	}
	return m.done
}

var closedDone = func() chan struct{} {
	c := make(chan struct{})
	close(c)
	return c
}()

func (m *Monitor) begin(state MonitorState, cancel context.CancelFunc) (chan struct{}, chan struct{}, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.running {
		return nil, nil, ErrMonitorRunning
	}
	if m.cursor.LastChecked.IsZero() {
		m.cursor.LastChecked = m.cfg.Clock.Now()
	}
	m.running = true
	m.cursor.Active = true
	m.state = state
	m.stop = make(chan struct{})
	m.done = make(chan struct{})
	m.cancel = cancel
	return m.stop, m.done, nil
}

func (m *Monitor) finish(done chan struct{}) {
	m.mu.Lock()
	m.running = false
	m.cursor.Active = false
	m.state = StateStopped
	cancel := m.cancel
	m.stop, m.cancel = nil, nil
	m.mu.Unlock()
	if cancel != nil {
		cancel()
	}
	close(done)
	slog.Info("monitor: stopped")
}

func (m *Monitor) active() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.cursor.Active
}

func (m *Monitor) pollLoop(ctx context.Context, stop, done chan struct{}) {
	defer m.finish(done)
	for {
		select {
		case <-stop:
			return
		case <-ctx.Done():
			return
		case <-m.cfg.Clock.After(m.cfg.Interval):
		}
		if !m.active() {
			return
		}
		if err := m.Tick(ctx); err != nil {
			slog.Warn("monitor: tick failed", slog.Any("error", err))
		}
	}
}

// Tick runs one poll cycle: fetch a batch, dispatch every item newer than the
// cursor in timestamp order, then advance the cursor. A fetch error leaves the
// cursor unchanged. Handler errors are logged and do not stop the batch.
func (m *Monitor) Tick(ctx context.Context) error {
	m.tickMu.Lock()
	defer m.tickMu.Unlock()

	since := m.Cursor().LastChecked
	items, err := m.cfg.Fetch(ctx, since, m.cfg.BatchSize)
	if err != nil {
		return fmt.Errorf("fetch since %s: %w", since.Format(time.RFC3339), err)
	}

	slices.SortStableFunc(items, func(a, b InboundEvent) int {
		return a.CreatedAt.Compare(b.CreatedAt)
	})

	newest := since
	seen := make(map[string]bool, len(items))
	dispatched := 0
	for _, ev := range items {
		if !ev.CreatedAt.After(since) || (ev.ID != "" && seen[ev.ID]) {
			continue
		}
		seen[ev.ID] = true
		m.dispatch(ctx, ev)
		dispatched++
		if ev.CreatedAt.After(newest) {
			newest = ev.CreatedAt
		}
	}

	// Completion time, unless an item claimed to be from the future.
	next := m.cfg.Clock.Now()
	if newest.After(next) {
		next = newest
	}
	m.advance(next)

	if dispatched > 0 {
		slog.Info("monitor: dispatched", slog.Int("count", dispatched), slog.Int("fetched", len(items)))
	} else {
		slog.Debug("monitor: nothing new", slog.Int("fetched", len(items)))
	}
	return nil
}

func (m *Monitor) dispatch(ctx context.Context, ev InboundEvent) {
	if m.cfg.Handle == nil {
		return
	}
	if err := m.cfg.Handle(ctx, ev); err != nil {
		slog.Warn("monitor: handler failed", slog.String("id", ev.ID), slog.Any("error", err))
	}
}

func (m *Monitor) advance(t time.Time) {
	m.mu.Lock()
	if !t.After(m.cursor.LastChecked) {
		m.mu.Unlock()
		return
	}
	m.cursor.LastChecked = t
	m.mu.Unlock()
	if m.cfg.OnCursor != nil {
		m.cfg.OnCursor(t)
	}
}
