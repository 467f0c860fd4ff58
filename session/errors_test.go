package session

import (
	"errors"
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	twitterbot "github.com/anatolykoptev/go-twitterbot"
)

func TestClassifyError(t *testing.T) {
	tests := []struct {
		name     string
		body     string
		expected errorClass
	}{
		{"no errors", `{"data":{"user":{}}}`, errNone},
		{"empty errors", `{"errors":[]}`, errNone},
		{"banned 88", `{"errors":[{"code":88}]}`, errBanned},
		{"suspended 64", `{"errors":[{"code":64}]}`, errSuspended},
		{"locked 326", `{"errors":[{"code":326}]}`, errLocked},
		{"csrf 353", `{"errors":[{"code":353}]}`, errCSRF},
		{"auth expired 32", `{"errors":[{"code":32}]}`, errAuthExpired},
		{"blocked 161", `{"errors":[{"code":161}]}`, errBlocked},
		{"not authorized 219", `{"errors":[{"code":219}]}`, errNotAuthorized},
		{"internal 131", `{"errors":[{"code":131}]}`, errInternal},
		{"duplicate 187", `{"errors":[{"code":187}]}`, errDuplicate},
		{"unknown code", `{"errors":[{"code":999}]}`, errNone},
		{"invalid json", `{invalid`, errNone},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, classifyError([]byte(tt.body)))
		})
	}
}

func TestParseRateLimitReset(t *testing.T) {
	ts := time.Now().Add(3 * time.Minute).Unix()
	assert.Equal(t, time.Unix(ts, 0), parseRateLimitReset(strconv.FormatInt(ts, 10)))

	for _, v := range []string{"", "not-a-number"} {
		got := parseRateLimitReset(v)
		assert.Greater(t, time.Until(got), 14*time.Minute, "fallback for %q", v)
	}
}

func TestToPlatformError(t *testing.T) {
	reset := time.Now().Add(time.Minute)
	tests := []struct {
		name string
		err  error
		kind twitterbot.ErrorKind
	}{
		{"429", &exchangeError{status: 429, resetAt: reset}, twitterbot.KindRateLimit},
		{"banned", &exchangeError{status: 200, class: errBanned, resetAt: reset}, twitterbot.KindRateLimit},
		{"duplicate", &exchangeError{status: 403, class: errDuplicate}, twitterbot.KindTerminal},
		{"401", &exchangeError{status: 401}, twitterbot.KindAuthentication},
		{"suspended", &exchangeError{status: 200, class: errSuspended}, twitterbot.KindAuthentication},
		{"network", &exchangeError{retry: true, err: errors.New("dial tcp: timeout")}, twitterbot.KindTransient},
		{"503", &exchangeError{status: 503}, twitterbot.KindTransient},
		{"400", &exchangeError{status: 400}, twitterbot.KindTerminal},
		{"plain error", errors.New("boom"), twitterbot.KindTransient},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			pe := toPlatformError("op", tt.err)
			assert.Equal(t, tt.kind, pe.Kind)
			assert.Equal(t, "op", pe.Op)
		})
	}

	pe := toPlatformError("post", &exchangeError{status: 429, resetAt: reset})
	got, ok := twitterbot.RateLimitReset(pe)
	require.True(t, ok)
	assert.Equal(t, reset, got)
}

func TestToPlatformError_PassesThrough(t *testing.T) {
	orig := twitterbot.NewError(twitterbot.KindAuthentication, "login", 0, errors.New("bad password"))
	assert.Same(t, orig, toPlatformError("other", orig))
}
