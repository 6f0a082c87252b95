package fetcher

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"
)

// Kind classifies the outcome of a GitHub request.
type Kind string

const (
	KindNotFound    Kind = "not_found"
	KindRateLimited Kind = "rate_limited"
	KindAuth        Kind = "auth_failure"
	KindTransient   Kind = "transient_failure"
	KindRequest     Kind = "request_failure"
)

// Sentinels for errors.Is against an *Error.
var (
	ErrNotFound    = errors.New("resource not found")
	ErrRateLimited = errors.New("rate limit exceeded")
	ErrAuth        = errors.New("authentication failed")
	ErrTransient   = errors.New("transient failure")
	ErrRequest     = errors.New("request failed")
)

func (k Kind) sentinel() error {
	switch k {
	case KindNotFound:
		return ErrNotFound
	case KindRateLimited:
		return ErrRateLimited
	case KindAuth:
		return ErrAuth
	case KindTransient:
		return ErrTransient
	default:
		return ErrRequest
	}
}

// Error is a classified GitHub request failure.
type Error struct {
	Kind     Kind
	Op       string
	Status   int
	Attempts int
	Err      error

	// Rate-limit details, set when Kind is KindRateLimited.
	Reset      time.Time
	RetryAfter time.Duration
}

func (e *Error) Error() string {
	var b strings.Builder
	b.WriteString(e.Op)
	b.WriteString(": ")
	b.WriteString(string(e.Kind))
	if e.Status != 0 {
		fmt.Fprintf(&b, " (%d %s)", e.Status, http.StatusText(e.Status))
	}
	if e.Attempts > 1 {
		fmt.Fprintf(&b, " after %d attempts", e.Attempts)
	}
	if e.Err != nil {
		b.WriteString(": ")
		b.WriteString(e.Err.Error())
	}
	return b.String()
}

func (e *Error) Unwrap() error { return e.Err }

func (e *Error) Is(target error) bool {
	return target == e.Kind.sentinel()
}

// NotFound builds a KindNotFound error for outcomes decided without a 404,
// e.g. a path that resolves to a directory.
func NotFound(op, msg string) *Error {
	return &Error{Kind: KindNotFound, Op: op, Err: errors.New(msg)}
}

// KindOf returns the kind of a classified error, or "" for anything else.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return ""
}
