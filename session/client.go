// Package session is the session-based backing client: it logs in with a
// username, password and email against the web GraphQL API and keeps the
// resulting cookies fresh.
package session

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"time"

	stealth "github.com/anatolykoptev/go-stealth"
	"github.com/anatolykoptev/go-stealth/pool"
	"github.com/anatolykoptev/go-stealth/ratelimit"

	twitterbot "github.com/anatolykoptev/go-twitterbot"
)

// Client posts with the primary account and spreads reads over the pool.
type Client struct {
	client  *stealth.BrowserClient
	pool    *pool.Pool[*Account]
	primary *Account
	cfg     Config

	// do and pause replace the HTTP exchange and the between-attempt sleep
	// when set.
	do    func(bc *stealth.BrowserClient, method, url string, headers map[string]string, body io.Reader) ([]byte, map[string]string, int, error)
	pause func(ctx context.Context, attempt int) error
}

var _ twitterbot.Platform = (*Client)(nil)
var _ twitterbot.MentionSource = (*Client)(nil)

// New logs in the primary account and any read accounts. A primary login
// failure is returned as a KindAuthentication error.
func New(ctx context.Context, cfg Config) (*Client, error) {
	cfg.defaults()
	if cfg.Username == "" {
		return nil, twitterbot.NewError(twitterbot.KindAuthentication, "session.New", 0, fmt.Errorf("username is required"))
	}

	opts := []stealth.ClientOption{stealth.WithHeaderOrder(twitterHeaderOrder)}
	if cfg.Proxy != "" {
		opts = append(opts, stealth.WithProxy(cfg.Proxy))
	}
	bc, err := stealth.NewClient(opts...)
	if err != nil {
		return nil, fmt.Errorf("stealth client: %w", err)
	}

	primary := &Account{
		Username:   cfg.Username,
		Password:   cfg.Password,
		Email:      cfg.Email,
		TOTPSecret: cfg.TOTPSecret,
		AuthToken:  cfg.AuthToken,
		CT0:        cfg.CT0,
	}
	accounts := append([]*Account{primary}, cfg.ReadAccounts...)
	for i, acc := range accounts {
		acc.active = true
		acc.rateLimiter = ratelimit.NewLimiter(cfg.RateLimit)
		acc.HealthTracker = pool.DefaultHealthTracker()
		if acc.UserAgent == "" {
			AssignBrowserProfile(acc, i)
		}
	}

	p := pool.New(accounts, pool.Config{
		AlertHook: func(topic string, payload any) {
			slog.Warn("session: pool alert", slog.String("topic", topic), slog.Any("payload", payload))
		},
		ProxyBackoff: pool.BackoffConfig{
			InitialWait: cfg.ProxyBackoffInitial,
			MaxWait:     cfg.ProxyBackoffMax,
			Multiplier:  2.0,
			JitterPct:   0.3,
		},
	})

	c := &Client{client: bc, pool: p, primary: primary, cfg: cfg}

	for _, acc := range accounts {
		if acc.Proxy != "" {
			accClient, err := stealth.NewClient(
				stealth.WithProxy(acc.Proxy),
				stealth.WithProfile(acc.Profile.TLSProfile),
				stealth.WithHeaderOrder(twitterHeaderOrder),
			)
			if err != nil {
				slog.Warn("session: per-account client failed", slog.String("user", acc.Username), slog.Any("error", err))
			} else {
				acc.client = accClient
			}
		}

		err := c.loadOrLogin(ctx, acc)
		if err == nil {
			continue
		}
		if acc == primary {
			return nil, twitterbot.NewError(twitterbot.KindAuthentication, "login", 0, err)
		}
		slog.Warn("session: read account login failed", slog.String("user", acc.Username), slog.Any("error", err))
		acc.SetActive(false)
	}

	return c, nil
}

// Username is the primary account's screen name.
func (c *Client) Username() string { return c.primary.Username }

// Pool returns the read account pool.
func (c *Client) Pool() *pool.Pool[*Account] { return c.pool }

func (c *Client) clientForAccount(acc *Account) *stealth.BrowserClient {
	if acc.client != nil {
		return acc.client
	}
	return c.client
}

func (c *Client) send(bc *stealth.BrowserClient, method, url string, headers map[string]string, body io.Reader) ([]byte, map[string]string, int, error) {
	if c.do != nil {
		return c.do(bc, method, url, headers, body)
	}
	return bc.DoWithHeaderOrder(method, url, headers, body, twitterHeaderOrder)
}

// wait sleeps before an attempt: human-like jitter before the first, backoff
// between retries.
func (c *Client) wait(ctx context.Context, attempt int) error {
	if c.pause != nil {
		return c.pause(ctx, attempt)
	}
	if attempt == 0 {
		return stealth.DefaultJitter.Sleep(ctx)
	}
	select {
	case <-time.After(stealth.DefaultBackoff.Duration(attempt)):
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (c *Client) recordAPICall(endpoint string, success, rateLimited bool) {
	if c.cfg.MetricsHook != nil {
		c.cfg.MetricsHook(endpoint, success, rateLimited)
	}
}
