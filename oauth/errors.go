package oauth

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/tidwall/gjson"

	twitterbot "github.com/anatolykoptev/go-twitterbot"
)

// resetFallback applies when a 429 carries no usable reset header.
const resetFallback = 15 * time.Minute

// parseRateLimitReset parses the x-rate-limit-reset unix timestamp.
func parseRateLimitReset(v string) time.Time {
	if ts, err := strconv.ParseInt(v, 10, 64); err == nil && ts > 0 {
		return time.Unix(ts, 0)
	}
	return time.Now().Add(resetFallback)
}

// apiMessage pulls a human-readable message out of a v1.1 or v2 error body.
func apiMessage(body []byte) string {
	for _, path := range []string{"errors.0.message", "errors.0.detail", "detail", "title", "error"} {
		if v := gjson.GetBytes(body, path); v.Exists() && v.String() != "" {
			return v.String()
		}
	}
	return truncate(string(body), 200)
}

// statusError maps a non-2xx response to the uniform error model.
func statusError(op string, resp *http.Response, body []byte) *twitterbot.Error {
	status := resp.StatusCode
	cause := fmt.Errorf("HTTP %d: %s", status, apiMessage(body))
	switch {
	case status == http.StatusTooManyRequests:
		return twitterbot.RateLimited(op, parseRateLimitReset(resp.Header.Get("x-rate-limit-reset")), cause)
	case status == http.StatusUnauthorized, status == http.StatusForbidden:
		return twitterbot.NewError(twitterbot.KindAuthentication, op, status, cause)
	case status >= 500:
		return twitterbot.NewError(twitterbot.KindTransient, op, status, cause)
	}
	return twitterbot.NewError(twitterbot.KindTerminal, op, status, cause)
}

// bodyError reports a 2xx response that carries errors and no data, which is
// how v2 answers lookups of missing or suspended resources.
func bodyError(op string, body []byte) *twitterbot.Error {
	if gjson.GetBytes(body, "data").Exists() || !gjson.GetBytes(body, "errors.0").Exists() {
		return nil
	}
	code := 0
	if gjson.GetBytes(body, "errors.0.type").String() == "https://api.twitter.com/2/problems/resource-not-found" {
		code = http.StatusNotFound
	}
	return twitterbot.NewError(twitterbot.KindTerminal, op, code, errors.New(apiMessage(body)))
}

// transportError wraps network failures, which are always worth retrying.
func transportError(op string, err error) *twitterbot.Error {
	return twitterbot.NewError(twitterbot.KindTransient, op, 0, err)
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
