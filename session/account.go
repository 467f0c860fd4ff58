package session

import (
	"log/slog"
	"strings"
	"sync"
	"time"

	stealth "github.com/anatolykoptev/go-stealth"
	"github.com/anatolykoptev/go-stealth/pool"
	"github.com/anatolykoptev/go-stealth/ratelimit"
)

// Account is a logged-in web session. The primary account posts; every
// account in the pool may serve reads.
type Account struct {
	Username   string
	Password   string
	Email      string
	TOTPSecret string
	AuthToken  string
	CT0        string
	Proxy      string
	UserAgent  string
	Profile    stealth.BrowserProfile

	active       bool
	reactivateAt time.Time
	client       *stealth.BrowserClient

	mu               sync.Mutex
	ct0RefreshedAt   time.Time
	proxyBackoff     time.Time
	proxyConsecFails int
	rateLimiter      *ratelimit.Limiter

	pool.HealthTracker
}

// ID implements pool.Identity.
func (a *Account) ID() string { return a.Username }

// IsActive implements pool.Identity.
func (a *Account) IsActive() bool { return a.active }

// SetActive implements pool.Identity.
func (a *Account) SetActive(v bool) { a.active = v }

// ReactivateAt implements pool.Identity.
func (a *Account) ReactivateAt() time.Time { return a.reactivateAt }

// SetReactivateAt implements pool.Identity.
func (a *Account) SetReactivateAt(t time.Time) { a.reactivateAt = t }

// CT0Age is the time since the csrf token was last refreshed.
func (a *Account) CT0Age() time.Duration {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.ct0RefreshedAt.IsZero() {
		return 24 * time.Hour
	}
	return time.Since(a.ct0RefreshedAt)
}

// RotateCT0 replaces the csrf token with a fresh random one.
func (a *Account) RotateCT0() {
	a.SetCT0(GenerateCT0())
}

// SetCT0 stores a csrf token issued by the server.
func (a *Account) SetCT0(ct0 string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.CT0 = ct0
	a.ct0RefreshedAt = time.Now()
}

// Credentials returns (authToken, ct0, userAgent) under lock.
func (a *Account) Credentials() (authToken, ct0, userAgent string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.AuthToken, a.CT0, a.UserAgent
}

// SetCredentials replaces both session cookies.
func (a *Account) SetCredentials(authToken, ct0 string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.AuthToken = authToken
	a.CT0 = ct0
	a.ct0RefreshedAt = time.Now()
}

func (a *Account) limiter() *ratelimit.Limiter {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.rateLimiter
}

// usable reports whether the account may hit endpoint right now.
func (a *Account) usable(endpoint string) bool {
	a.mu.Lock()
	backoff := a.proxyBackoff
	a.mu.Unlock()
	if time.Now().Before(backoff) {
		return false
	}
	if rl := a.limiter(); rl != nil {
		return rl.Allow(endpoint)
	}
	return true
}

// MarkEndpointRateLimited blocks endpoint for this account until the reset.
func (a *Account) MarkEndpointRateLimited(endpoint string, until time.Time) {
	if rl := a.limiter(); rl != nil {
		rl.MarkRateLimited(endpoint, until)
	}
}

// EndpointAvailableAt is when the account may hit endpoint again, zero if now.
func (a *Account) EndpointAvailableAt(endpoint string) time.Time {
	if rl := a.limiter(); rl != nil && rl.IsRateLimited(endpoint) {
		return rl.AvailableAt(endpoint)
	}
	return time.Time{}
}

func (a *Account) resetProxyFailures() {
	a.mu.Lock()
	a.proxyConsecFails = 0
	a.mu.Unlock()
}

// AssignBrowserProfile picks a built-in browser profile by index.
func AssignBrowserProfile(acc *Account, idx int) {
	p := stealth.BuiltinProfiles[idx%len(stealth.BuiltinProfiles)]
	acc.Profile = p
	acc.UserAgent = p.UserAgent
}

// ParseAccounts parses extra read accounts from a comma-separated list of
// "user:pass", "user:pass:email" or "user:pass:email:totp_secret".
func ParseAccounts(raw string) []*Account {
	var accounts []*Account
	for _, entry := range strings.Split(raw, ",") {
		entry = strings.TrimSpace(entry)
		if entry == "" {
			continue
		}
		parts := strings.SplitN(entry, ":", 4)
		if len(parts) < 2 || parts[0] == "" {
			slog.Warn("session: invalid account entry, skipping", slog.String("entry", parts[0]))
			continue
		}
		acc := &Account{Username: parts[0], Password: parts[1]}
		if len(parts) >= 3 {
			acc.Email = parts[2]
		}
		if len(parts) == 4 {
			acc.TOTPSecret = parts[3]
		}
		accounts = append(accounts, acc)
	}
	return accounts
}
