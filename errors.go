package twitterbot

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// ErrorKind is the discriminant populated at the platform boundary.
// Retry logic inspects only the kind, never a backing SDK's error types.
type ErrorKind int

const (
	KindUnknown        ErrorKind = iota
	KindAuthentication           // bad credentials or missing permission
	KindRateLimit                // carries a reset time
	KindValidation               // content rule violation
	KindTransient                // network hiccup, 5xx, retryable
	KindTerminal                 // attempts exhausted or non-retryable
)

func (k ErrorKind) String() string {
	switch k {
	case KindAuthentication:
		return "authentication"
	case KindRateLimit:
		return "rate_limit"
	case KindValidation:
		return "validation"
	case KindTransient:
		return "transient"
	case KindTerminal:
		return "terminal"
	}
	return "unknown"
}

// Error is the uniform failure result returned by every platform operation.
type Error struct {
	Kind ErrorKind
	// Op is the operation name, e.g. "CreateTweet" or "POST /2/tweets".
	Op string
	// Code is the HTTP status or platform error code, 0 if none.
	Code int
	// ResetAt is set for KindRateLimit when the platform reported one.
	ResetAt time.Time
	// Attempts is set by Caller on terminal errors.
	Attempts int
	Err      error
}

func (e *Error) Error() string {
	var b strings.Builder
	b.WriteString(e.Op)
	b.WriteString(": ")
	b.WriteString(e.Kind.String())
	if e.Code != 0 {
		fmt.Fprintf(&b, " (code %d)", e.Code)
	}
	if e.Attempts > 0 {
		fmt.Fprintf(&b, " after %d attempts", e.Attempts)
	}
	if !e.ResetAt.IsZero() {
		fmt.Fprintf(&b, ", resets at %s", e.ResetAt.UTC().Format(time.RFC3339))
	}
	if e.Err != nil {
		b.WriteString(": ")
		b.WriteString(e.Err.Error())
	}
	return b.String()
}

func (e *Error) Unwrap() error { return e.Err }

// NewError builds an *Error of the given kind.
func NewError(kind ErrorKind, op string, code int, err error) *Error {
	return &Error{Kind: kind, Op: op, Code: code, Err: err}
}

// RateLimited builds a KindRateLimit error with a reset time.
func RateLimited(op string, resetAt time.Time, err error) *Error {
	return &Error{Kind: KindRateLimit, Op: op, Code: 429, ResetAt: resetAt, Err: err}
}

// KindOf reports the kind of the outermost *Error or *ValidationError in err's chain.
func KindOf(err error) ErrorKind {
	if err == nil {
		return KindUnknown
	}
	var ve *ValidationError
	var e *Error
	switch {
	case errors.As(err, &e):
		return e.Kind
	case errors.As(err, &ve):
		return KindValidation
	}
	return KindUnknown
}

// RateLimitReset returns the reset time carried by a rate-limit error.
func RateLimitReset(err error) (time.Time, bool) {
	var e *Error
	if !errors.As(err, &e) || e.Kind != KindRateLimit || e.ResetAt.IsZero() {
		return time.Time{}, false
	}
	return e.ResetAt, true
}

// IsRetryable reports whether Caller would try err again.
// Errors without a kind are treated as transient.
func IsRetryable(err error) bool {
	switch KindOf(err) {
	case KindRateLimit, KindTransient, KindUnknown:
		return err != nil
	}
	return false
}
