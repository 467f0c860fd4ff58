package twitterbot

import (
	"context"
	"fmt"
	"log/slog"
	"sync/atomic"
)

// StartStream subscribes to src instead of polling. When the stream fails the
// monitor flips to StateStopped and reopens it after RestartDelay, giving up
// after MaxRestarts consecutive failures. A delivered event resets the count.
// Stop closes the stream but not a handler already running: handlers get ctx,
// not the stream's context.
func (m *Monitor) StartStream(ctx context.Context, src StreamSource) error {
	if src == nil {
		return fmt.Errorf("monitor: nil stream source")
	}
	streamCtx, cancel := context.WithCancel(ctx)
	stop, done, err := m.begin(StateStreaming, cancel)
	if err != nil {
		cancel()
		return err
	}
	slog.Info("monitor: streaming started")
	go m.streamLoop(streamCtx, ctx, src, stop, done)
	return nil
}

func (m *Monitor) streamLoop(ctx, handleCtx context.Context, src StreamSource, stop, done chan struct{}) {
	defer m.finish(done)

	var failures atomic.Int32
	emit := func(ev InboundEvent) {
		if !m.active() {
			return
		}
		failures.Store(0)
		m.tickMu.Lock()
		m.dispatch(handleCtx, ev)
		m.tickMu.Unlock()
		m.advance(ev.CreatedAt)
	}

	for {
		m.setState(StateStreaming)
		err := src.Stream(ctx, emit)
		if ctx.Err() != nil || !m.active() {
			return
		}

		m.setState(StateStopped)
		n := int(failures.Add(1))
		if err == nil {
			err = fmt.Errorf("stream closed")
		}
		if m.cfg.MaxRestarts > 0 && n > m.cfg.MaxRestarts {
			slog.Error("monitor: stream restarts exhausted, giving up",
				slog.Int("restarts", m.cfg.MaxRestarts), slog.Any("error", err))
			return
		}
		slog.Warn("monitor: stream failed, scheduling restart",
			slog.Int("failure", n),
			slog.Duration("delay", m.cfg.RestartDelay),
			slog.Any("error", err))

		select {
		case <-stop:
			return
		case <-ctx.Done():
			return
		case <-m.cfg.Clock.After(m.cfg.RestartDelay):
		}
	}
}

func (m *Monitor) setState(s MonitorState) {
	m.mu.Lock()
	m.state = s
	m.mu.Unlock()
}
