// Package syncerr defines the error kinds shared by the export pipeline.
//
// Callers classify failures with errors.Is against the sentinel kinds:
//
//	if errors.Is(err, syncerr.ErrAuth) { ... }
package syncerr

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"
)

var (
	ErrValidation   = errors.New("validation error")
	ErrNotFound     = fmt.Errorf("%w: not found", ErrValidation)
	ErrInvalidQuery = fmt.Errorf("%w: invalid query", ErrValidation)
	ErrAuth         = errors.New("authentication failed")
	ErrRateLimit    = errors.New("rate limited")
	ErrServer       = errors.New("server error")
	ErrClient       = errors.New("request rejected")
	ErrNetwork      = errors.New("network error")
	ErrContentRead  = errors.New("content unreadable")
	ErrCanceled     = errors.New("canceled")
	ErrDuplicate    = errors.New("already registered")
)

// Error carries the kind of a failure plus the context needed to retry it
type Error struct {
	Kind       error
	Op         string
	StatusCode int
	RetryAfter time.Duration
	Err        error
}

func (e *Error) Error() string {
	var b strings.Builder
	if e.Op != "" {
		b.WriteString(e.Op)
		b.WriteString(": ")
	}
	b.WriteString(e.Kind.Error())
	if e.StatusCode != 0 {
		fmt.Fprintf(&b, " (status %d)", e.StatusCode)
	}
	if e.Err != nil {
		b.WriteString(": ")
		b.WriteString(e.Err.Error())
	}
	return b.String()
}

func (e *Error) Unwrap() []error {
	if e.Err == nil {
		return []error{e.Kind}
	}
	return []error{e.Kind, e.Err}
}

// New creates an error of the given kind
func New(kind error, op string, err error) *Error {
	return &Error{Kind: kind, Op: op, Err: err}
}

// FromStatus classifies a non-2xx HTTP response
func FromStatus(op string, code int, body string) *Error {
	var kind error
	switch {
	case code == http.StatusUnauthorized || code == http.StatusForbidden:
		kind = ErrAuth
	case code == http.StatusNotFound:
		kind = ErrNotFound
	case code == http.StatusTooManyRequests:
		kind = ErrRateLimit
	case code >= 500:
		kind = ErrServer
	default:
		kind = ErrClient
	}

	var err error
	if body = strings.TrimSpace(body); body != "" {
		if len(body) > 500 {
			body = body[:500]
		}
		err = errors.New(body)
	}
	return &Error{Kind: kind, Op: op, StatusCode: code, Err: err}
}

// FromResponse classifies a response and picks up its Retry-After header
func FromResponse(op string, resp *http.Response, body string) *Error {
	e := FromStatus(op, resp.StatusCode, body)
	e.RetryAfter = ParseRetryAfter(resp.Header.Get("Retry-After"))
	return e
}

// FromTransport classifies an error returned before any response arrived.
// Timeouts count as network errors.
func FromTransport(op string, err error) *Error {
	if errors.Is(err, context.Canceled) {
		return &Error{Kind: ErrCanceled, Op: op, Err: err}
	}
	return &Error{Kind: ErrNetwork, Op: op, Err: err}
}

// StatusCode returns the HTTP status carried by err, or 0
func StatusCode(err error) int {
	var e *Error
	if errors.As(err, &e) {
		return e.StatusCode
	}
	return 0
}

// RetryAfter returns the server-requested delay carried by err, or 0
func RetryAfter(err error) time.Duration {
	var e *Error
	if errors.As(err, &e) {
		return e.RetryAfter
	}
	return 0
}

// ParseRetryAfter reads a Retry-After header in seconds or HTTP-date form
func ParseRetryAfter(v string) time.Duration {
	v = strings.TrimSpace(v)
	if v == "" {
		return 0
	}
	if secs, err := strconv.Atoi(v); err == nil && secs > 0 {
		return time.Duration(secs) * time.Second
	}
	if t, err := http.ParseTime(v); err == nil {
		if d := time.Until(t); d > 0 {
			return d
		}
	}
	return 0
}
