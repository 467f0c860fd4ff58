package session

import (
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	twitterbot "github.com/anatolykoptev/go-twitterbot"
)

// errorClass categorizes error codes found in GraphQL response bodies.
type errorClass int

const (
	errNone          errorClass = iota
	errBanned                   // 88: rate limit abuse
	errSuspended                // 64: account suspended
	errLocked                   // 326: account locked (captcha needed)
	errCSRF                     // 353: csrf token mismatch
	errAuthExpired              // 32: could not authenticate
	errBlocked                  // 161: blocked from performing action
	errNotAuthorized            // 179, 219: not authorized
	errInternal                 // 131: internal error
	errDuplicate                // 187: duplicate status
)

func (c errorClass) String() string {
	switch c {
	case errBanned:
		return "rate limit abuse (88)"
	case errSuspended:
		return "account suspended (64)"
	case errLocked:
		return "account locked (326)"
	case errCSRF:
		return "csrf mismatch (353)"
	case errAuthExpired:
		return "could not authenticate (32)"
	case errBlocked:
		return "action blocked (161)"
	case errNotAuthorized:
		return "not authorized"
	case errInternal:
		return "internal error (131)"
	case errDuplicate:
		return "duplicate status (187)"
	}
	return "none"
}

// classifyError inspects a response body for known error codes.
func classifyError(body []byte) errorClass {
	var errResp struct {
		Errors []struct {
			Code int `json:"code"`
		} `json:"errors"`
	}
	if json.Unmarshal(body, &errResp) != nil || len(errResp.Errors) == 0 {
		return errNone
	}

	for _, e := range errResp.Errors {
		switch e.Code {
		case 88:
			return errBanned
		case 64:
			return errSuspended
		case 326:
			return errLocked
		case 353:
			return errCSRF
		case 32:
			return errAuthExpired
		case 161:
			return errBlocked
		case 179, 219:
			return errNotAuthorized
		case 131:
			return errInternal
		case 187:
			return errDuplicate
		}
	}
	return errNone
}

// parseRateLimitReset parses the X-Rate-Limit-Reset unix timestamp header.
// Falls back to 15 minutes from now if missing or invalid.
func parseRateLimitReset(v string) time.Time {
	if ts, err := strconv.ParseInt(v, 10, 64); err == nil {
		return time.Unix(ts, 0)
	}
	return time.Now().Add(15 * time.Minute)
}

// exchangeError is the failure of one HTTP exchange.
type exchangeError struct {
	status  int
	class   errorClass
	resetAt time.Time
	// retry means another attempt within the same request may succeed.
	retry bool
	err   error
}

func (e *exchangeError) Error() string {
	switch {
	case e.err != nil && e.status != 0:
		return fmt.Sprintf("HTTP %d: %v", e.status, e.err)
	case e.err != nil:
		return e.err.Error()
	case e.class != errNone:
		return fmt.Sprintf("HTTP %d: %s", e.status, e.class)
	}
	return fmt.Sprintf("HTTP %d", e.status)
}

func (e *exchangeError) Unwrap() error { return e.err }

// toPlatformError maps the last exchange failure of an operation to the
// uniform error model.
func toPlatformError(op string, err error) *twitterbot.Error {
	var pe *twitterbot.Error
	if errors.As(err, &pe) {
		return pe
	}
	var xe *exchangeError
	if !errors.As(err, &xe) {
		return twitterbot.NewError(twitterbot.KindTransient, op, 0, err)
	}

	switch {
	case xe.status == 429 || xe.class == errBanned:
		return twitterbot.RateLimited(op, xe.resetAt, xe)
	case xe.class == errDuplicate:
		return twitterbot.NewError(twitterbot.KindTerminal, op, 187, xe)
	case xe.class == errAuthExpired, xe.class == errSuspended, xe.class == errLocked,
		xe.class == errNotAuthorized, xe.class == errBlocked,
		xe.status == 401, xe.status == 403:
		return twitterbot.NewError(twitterbot.KindAuthentication, op, xe.status, xe)
	case xe.status == 0, xe.status >= 500, xe.class == errInternal, xe.class == errCSRF:
		return twitterbot.NewError(twitterbot.KindTransient, op, xe.status, xe)
	}
	return twitterbot.NewError(twitterbot.KindTerminal, op, xe.status, xe)
}
