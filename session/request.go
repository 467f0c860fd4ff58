package session

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"

	stealth "github.com/anatolykoptev/go-stealth"

	twitterbot "github.com/anatolykoptev/go-twitterbot"
)

// get executes a read, rotating through the pool on account-level failures.
func (c *Client) get(ctx context.Context, endpoint, url string) ([]byte, error) {
	return c.run(ctx, endpoint, func() (*Account, error) {
		acc, err := c.pool.Next(func(a *Account) bool { return a.usable(endpoint) })
		if err != nil {
			return nil, c.poolExhausted(endpoint, err)
		}
		return acc, nil
	}, "GET", url, nil)
}

// post executes a mutation with the primary account.
func (c *Client) post(ctx context.Context, endpoint, url string, payload []byte) ([]byte, error) {
	return c.run(ctx, endpoint, func() (*Account, error) {
		if !c.primary.usable(endpoint) {
			return nil, c.poolExhausted(endpoint, fmt.Errorf("%s blocked for %s", endpoint, c.primary.Username))
		}
		return c.primary, nil
	}, "POST", url, payload)
}

// run is the per-request retry loop over accounts returned by pick.
func (c *Client) run(ctx context.Context, endpoint string, pick func() (*Account, error), method, url string, payload []byte) ([]byte, error) {
	var lastErr error
	for attempt := range c.cfg.MaxRetries {
		if err := c.wait(ctx, attempt); err != nil {
			return nil, twitterbot.NewError(twitterbot.KindTransient, endpoint, 0, err)
		}

		acc, err := pick()
		if err != nil {
			if lastErr == nil {
				lastErr = err
			}
			break
		}

		body, err := c.exchange(acc, method, endpoint, url, payload)
		if err == nil {
			return body, nil
		}
		lastErr = err

		var xe *exchangeError
		if errors.As(err, &xe) && !xe.retry {
			break
		}
	}
	return nil, toPlatformError(endpoint, lastErr)
}

// exchange performs one HTTP exchange with acc and reacts to account-level
// errors (csrf rotation, relogin, deactivation) before reporting them.
func (c *Client) exchange(acc *Account, method, endpoint, url string, payload []byte) ([]byte, error) {
	if acc.CT0Age() > ct0MaxAge {
		acc.RotateCT0()
		c.persist(acc)
		slog.Info("session: ct0 rotated (proactive)", slog.String("user", acc.Username))
	}

	var body io.Reader
	if payload != nil {
		body = bytes.NewReader(payload)
	}
	authTok, ct0, ua := acc.Credentials()
	respBody, hdrs, status, err := c.send(c.clientForAccount(acc), method, url, twitterHeaders(authTok, ct0, ua), body)
	if err != nil {
		if acc.Proxy != "" && isProxyError(err) {
			c.markProxyDown(acc)
		} else {
			acc.RecordFailure()
		}
		return nil, &exchangeError{retry: true, err: err}
	}
	acc.resetProxyFailures()

	if status == 429 {
		reset := parseRateLimitReset(hdrs["x-rate-limit-reset"])
		c.recordAPICall(endpoint, false, true)
		acc.MarkEndpointRateLimited(endpoint, reset)
		return nil, &exchangeError{status: status, resetAt: reset, retry: acc != c.primary}
	}

	class := classifyError(respBody)
	ok := status == 200 || status == 201
	if !ok && status != 401 && status != 403 {
		c.recordAPICall(endpoint, false, false)
		slog.Warn("session: unexpected status", slog.String("endpoint", endpoint), slog.Int("status", status), slog.String("body", truncateBytes(respBody, 300)))
		c.recordFailure(acc)
		return nil, &exchangeError{status: status, class: class, retry: status >= 500,
			err: errors.New(truncateBytes(respBody, 200))}
	}

	switch class {
	case errNone:
		if !ok {
			c.recordAPICall(endpoint, false, false)
			c.recordFailure(acc)
			return nil, &exchangeError{status: status, err: errors.New(truncateBytes(respBody, 200))}
		}
		if newCT0 := extractCT0FromHeaders(hdrs); newCT0 != "" && newCT0 != ct0 {
			acc.SetCT0(newCT0)
			c.persist(acc)
		}
		c.recordAPICall(endpoint, true, false)
		acc.RecordSuccess()
		return respBody, nil

	case errInternal:
		if ok && hasResponseData(respBody) {
			c.recordAPICall(endpoint, true, false)
			acc.RecordSuccess()
			slog.Debug("session: error 131 with usable data, treating as success", slog.String("endpoint", endpoint))
			return respBody, nil
		}
		return nil, &exchangeError{status: status, class: class, retry: true}

	case errCSRF:
		slog.Warn("session: csrf mismatch, rotating ct0", slog.String("user", acc.Username))
		acc.RotateCT0()
		c.persist(acc)
		return nil, &exchangeError{status: status, class: class, retry: true}

	case errAuthExpired:
		slog.Warn("session: auth expired, attempting relogin", slog.String("user", acc.Username))
		if err := c.relogin(acc); err != nil {
			c.pool.SoftDeactivate(acc, c.cfg.AuthCooldown)
			return nil, &exchangeError{status: status, class: class, err: err}
		}
		return nil, &exchangeError{status: status, class: class, retry: true}

	case errDuplicate:
		c.recordAPICall(endpoint, false, false)
		return nil, &exchangeError{status: status, class: class}
	}

	c.recordAPICall(endpoint, false, class == errBanned)
	slog.Warn("session: account error", slog.String("user", acc.Username), slog.String("class", class.String()))
	switch class {
	case errSuspended:
		c.pool.DeactivateItem(acc)
	case errBanned, errLocked:
		c.pool.SoftDeactivate(acc, c.cfg.BanCooldown)
	default:
		c.pool.SoftDeactivate(acc, c.cfg.AuthCooldown)
	}
	xe := &exchangeError{status: status, class: class, retry: acc != c.primary}
	if class == errBanned {
		xe.resetAt = parseRateLimitReset(hdrs["x-rate-limit-reset"])
	}
	return nil, xe
}

// recordFailure counts a failure and drops the account from the pool once it
// is unhealthy. The primary account is never dropped.
func (c *Client) recordFailure(acc *Account) {
	if unhealthy := acc.RecordFailure(); !unhealthy || acc == c.primary {
		return
	}
	total, failed, consec := acc.Stats()
	slog.Warn("session: account unhealthy, deactivating",
		slog.String("user", acc.Username),
		slog.Int("total", total),
		slog.Int("failed", failed),
		slog.Int("consec", consec))
	c.pool.DeactivateItem(acc)
}

// poolExhausted builds the error for "no account may serve endpoint". When
// the primary account is rate limited the reset time is carried along.
func (c *Client) poolExhausted(endpoint string, cause error) *twitterbot.Error {
	if reset := c.primary.EndpointAvailableAt(endpoint); !reset.IsZero() {
		return twitterbot.RateLimited(endpoint, reset, cause)
	}
	return twitterbot.NewError(twitterbot.KindTransient, endpoint, 0, fmt.Errorf("no usable account: %w", cause))
}

func (c *Client) persist(acc *Account) {
	authTok, ct0, _ := acc.Credentials()
	if err := saveSession(c.cfg.SessionDir, acc.Username, authTok, ct0); err != nil {
		slog.Warn("session: save failed", slog.String("user", acc.Username), slog.Any("error", err))
	}
}

// isProxyError reports whether err looks like a proxy connectivity failure.
func isProxyError(err error) bool {
	if err == nil {
		return false
	}
	msg := err.Error()
	return strings.Contains(msg, "proxy") ||
		strings.Contains(msg, "SOCKS") ||
		strings.Contains(msg, "tunnel") ||
		strings.Contains(msg, "connection refused") ||
		strings.Contains(msg, "no such host")
}

// markProxyDown applies exponential backoff for proxy failures.
func (c *Client) markProxyDown(acc *Account) {
	acc.mu.Lock()
	acc.proxyConsecFails++
	fails := acc.proxyConsecFails
	acc.mu.Unlock()

	duration := stealth.BackoffConfig{
		InitialWait: c.cfg.ProxyBackoffInitial,
		MaxWait:     c.cfg.ProxyBackoffMax,
		Multiplier:  2.0,
		JitterPct:   0.3,
	}.Duration(fails - 1)

	acc.mu.Lock()
	acc.proxyBackoff = time.Now().Add(duration)
	acc.mu.Unlock()

	slog.Warn("session: proxy down, backing off",
		slog.String("user", acc.Username),
		slog.String("proxy", stealth.MaskProxy(acc.Proxy)),
		slog.Int("consec_fails", fails),
		slog.Duration("backoff", duration))
}

func truncateBytes(b []byte, n int) string {
	if len(b) <= n {
		return string(b)
	}
	return string(b[:n]) + "..."
}

// hasResponseData reports whether the JSON body has a non-null "data" field.
func hasResponseData(body []byte) bool {
	var envelope struct {
		Data json.RawMessage `json:"data"`
	}
	if json.Unmarshal(body, &envelope) != nil {
		return false
	}
	return len(envelope.Data) > 0 && string(envelope.Data) != "null"
}
