package session

import (
	"time"

	"github.com/anatolykoptev/go-stealth/ratelimit"
)

// Config configures the session-based client.
type Config struct {
	// Username, Password and Email identify the posting account. Email answers
	// the alternate-identifier and login-confirmation challenges.
	Username   string
	Password   string
	Email      string
	TOTPSecret string

	// AuthToken and CT0 skip the login flow when set.
	AuthToken string
	CT0       string

	// ReadAccounts join the primary account in the read pool.
	ReadAccounts []*Account

	// Proxy is used by every account without its own proxy.
	Proxy string

	// SessionDir overrides the cookie persistence directory.
	// Default: ~/.go-twitterbot/sessions
	SessionDir string

	// SessionTTL controls how long saved sessions are considered valid.
	SessionTTL time.Duration

	// AuthCooldown is the soft-deactivation duration for auth errors.
	AuthCooldown time.Duration

	// BanCooldown is the soft-deactivation duration for locked accounts.
	BanCooldown time.Duration

	// RateLimit configures per-account per-endpoint rate limiting.
	RateLimit ratelimit.Config

	// MaxRetries bounds transport-level retries of one request. Default 3.
	MaxRetries int

	// MetricsHook is called on each API request.
	MetricsHook func(endpoint string, success, rateLimited bool)

	ProxyBackoffInitial time.Duration
	ProxyBackoffMax     time.Duration
}

func (cfg *Config) defaults() {
	if cfg.SessionTTL == 0 {
		cfg.SessionTTL = 24 * time.Hour
	}
	if cfg.AuthCooldown == 0 {
		cfg.AuthCooldown = 1 * time.Hour
	}
	if cfg.BanCooldown == 0 {
		cfg.BanCooldown = 6 * time.Hour
	}
	if cfg.RateLimit.RequestsPerWindow == 0 {
		cfg.RateLimit = ratelimit.DefaultConfig
	}
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = 3
	}
	if cfg.ProxyBackoffInitial == 0 {
		cfg.ProxyBackoffInitial = 30 * time.Second
	}
	if cfg.ProxyBackoffMax == 0 {
		cfg.ProxyBackoffMax = 30 * time.Minute
	}
}
