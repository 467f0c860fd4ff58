package twitterbot

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/jonboulle/clockwork"
)

const (
	defaultMaxAttempts       = 3
	defaultBaseDelay         = time.Second
	defaultMaxDelay          = 5 * time.Minute
	defaultMaxRateLimitWaits = 3
)

// Caller wraps a platform operation with bounded retry. Failed attempts back
// off exponentially from BaseDelay; rate-limit errors with a future reset wait
// until the reset without consuming an attempt.
type Caller struct {
	// MaxAttempts bounds non-rate-limit attempts. Default 3.
	MaxAttempts int
	// BaseDelay is the first backoff. Attempt n (zero-based) waits BaseDelay*2^n. Default 1s.
	BaseDelay time.Duration
	// MaxDelay caps a single backoff sleep. Default 5m.
	MaxDelay time.Duration
	// MaxRateLimitWaits bounds waits for a rate-limit reset within one call. Default 3.
	MaxRateLimitWaits int
	// Clock defaults to the real clock.
	Clock clockwork.Clock
	// OnAttempt is called after every attempt for external metrics.
	OnAttempt func(name string, attempt int, err error)
}

// NewCaller returns a Caller with the given attempt ceiling and base delay.
func NewCaller(maxAttempts int, baseDelay time.Duration) *Caller {
	c := &Caller{MaxAttempts: maxAttempts, BaseDelay: baseDelay}
	c.defaults()
	return c
}

func (c *Caller) defaults() {
	if c.MaxAttempts <= 0 {
		c.MaxAttempts = defaultMaxAttempts
	}
	if c.BaseDelay <= 0 {
		c.BaseDelay = defaultBaseDelay
	}
	if c.MaxDelay <= 0 {
		c.MaxDelay = defaultMaxDelay
	}
	if c.MaxRateLimitWaits <= 0 {
		c.MaxRateLimitWaits = defaultMaxRateLimitWaits
	}
	if c.Clock == nil {
		c.Clock = clockwork.NewRealClock()
	}
}

// retryState lives for exactly one Do call.
type retryState struct {
	attempt        int // failed non-rate-limit attempts so far
	rateLimitWaits int
	tries          int
	lastErr        error
	waitUntil      time.Time
}

// Do runs fn until it succeeds, fails with a non-retryable error or the
// attempt budget is spent.
func (c *Caller) Do(ctx context.Context, name string, fn func(ctx context.Context) error) error {
	cfg := *c
	cfg.defaults()

	var st retryState
	for {
		if err := ctx.Err(); err != nil {
			return terminal(name, st, err)
		}

		st.tries++
		err := fn(ctx)
		if cfg.OnAttempt != nil {
			cfg.OnAttempt(name, st.tries, err)
		}
		if err == nil {
			if st.tries > 1 {
				slog.Info("retry: succeeded", slog.String("op", name), slog.Int("tries", st.tries))
			}
			return nil
		}
		st.lastErr = err

		switch KindOf(err) {
		case KindValidation:
			return err
		case KindAuthentication, KindTerminal:
			slog.Warn("retry: non-retryable failure", slog.String("op", name), slog.Int("tries", st.tries), slog.Any("error", err))
			st.attempt++
			return terminal(name, st, err)
		}

		if reset, ok := RateLimitReset(err); ok && reset.After(cfg.Clock.Now()) {
			if st.rateLimitWaits >= cfg.MaxRateLimitWaits {
				slog.Warn("retry: rate limit waits exhausted", slog.String("op", name), slog.Int("waits", st.rateLimitWaits))
				return terminal(name, st, err)
			}
			st.rateLimitWaits++
			st.waitUntil = reset
			wait := reset.Sub(cfg.Clock.Now())
			slog.Warn("retry: rate limited, waiting for reset",
				slog.String("op", name),
				slog.Time("reset", reset),
				slog.Duration("wait", wait))
			if err := sleep(ctx, cfg.Clock, wait); err != nil {
				return terminal(name, st, err)
			}
			continue
		}

		st.attempt++
		if st.attempt >= cfg.MaxAttempts {
			slog.Warn("retry: attempts exhausted", slog.String("op", name), slog.Int("attempts", st.attempt), slog.Any("error", err))
			return terminal(name, st, err)
		}

		delay := cfg.backoff(st.attempt - 1)
		st.waitUntil = cfg.Clock.Now().Add(delay)
		slog.Warn("retry: attempt failed",
			slog.String("op", name),
			slog.Int("attempt", st.attempt),
			slog.Int("max", cfg.MaxAttempts),
			slog.Duration("backoff", delay),
			slog.Any("error", err))
		if err := sleep(ctx, cfg.Clock, delay); err != nil {
			return terminal(name, st, err)
		}
	}
}

// Call is Do for operations that return a value.
func Call[T any](ctx context.Context, c *Caller, name string, fn func(ctx context.Context) (T, error)) (T, error) {
	var out T
	err := c.Do(ctx, name, func(ctx context.Context) error {
		v, err := fn(ctx)
		if err != nil {
			return err
		}
		out = v
		return nil
	})
	return out, err
}

// backoff returns BaseDelay*2^n capped at MaxDelay.
func (c *Caller) backoff(n int) time.Duration {
	d := c.BaseDelay
	for i := 0; i < n; i++ {
		d *= 2
		if d >= c.MaxDelay || d <= 0 {
			return c.MaxDelay
		}
	}
	return min(d, c.MaxDelay)
}

func terminal(name string, st retryState, cause error) *Error {
	e := &Error{Kind: KindTerminal, Op: name, Attempts: st.tries, Err: cause}
	var pe *Error
	if errors.As(cause, &pe) {
		e.Code = pe.Code
	}
	return e
}

func sleep(ctx context.Context, clock clockwork.Clock, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	select {
	case <-clock.After(d):
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
