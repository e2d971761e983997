package apperror

import (
	"errors"
	"fmt"
	"strings"
)

type Kind int

const (
	KindUnknown Kind = iota
	// KindNetwork is a connection-level failure that survived all retries.
	KindNetwork
	// KindUnavailable is 429/5xx that survived all retries.
	KindUnavailable
	// KindHTTP is a terminal non-2xx response.
	KindHTTP
	KindAuth
	KindMalformed
	KindValidation
	KindConfig
	// KindAmbiguous means the manifest could not be consulted; callers fail closed.
	KindAmbiguous
	KindNotFound
	KindForbidden
)

func (k Kind) String() string {
	switch k {
	case KindNetwork:
		return "network_failure"
	case KindUnavailable:
		return "rate_limited_or_server_error"
	case KindHTTP:
		return "http_error"
	case KindAuth:
		return "auth_failure"
	case KindMalformed:
		return "malformed_response"
	case KindValidation:
		return "validation_error"
	case KindConfig:
		return "config_error"
	case KindAmbiguous:
		return "ambiguous_state"
	case KindNotFound:
		return "not_found"
	case KindForbidden:
		return "forbidden"
	}
	return "unknown"
}

// Error is the typed error shared by the transport, courier and lifecycle layers.
type Error struct {
	Kind   Kind
	Op     string
	Code   int
	Body   string
	Fields []string
	Err    error
}

func (e *Error) Error() string {
	var b strings.Builder
	if e.Op != "" {
		b.WriteString(e.Op)
		b.WriteString(": ")
	}
	b.WriteString(e.Kind.String())
	if e.Code != 0 {
		fmt.Fprintf(&b, " (http %d)", e.Code)
	}
	if len(e.Fields) > 0 {
		b.WriteString(": missing ")
		b.WriteString(strings.Join(e.Fields, ", "))
	}
	if e.Body != "" {
		b.WriteString(": ")
		b.WriteString(truncate(e.Body, 512))
	}
	if e.Err != nil {
		b.WriteString(": ")
		b.WriteString(e.Err.Error())
	}
	return b.String()
}

func (e *Error) Unwrap() error {
	return e.Err
}

func New(kind Kind, op string, err error) *Error {
	return &Error{Kind: kind, Op: op, Err: err}
}

func HTTP(op string, code int, body string) *Error {
	return &Error{Kind: KindHTTP, Op: op, Code: code, Body: body}
}

func Validation(op string, fields []string) *Error {
	return &Error{Kind: KindValidation, Op: op, Fields: fields}
}

func Config(op, msg string) *Error {
	return &Error{Kind: KindConfig, Op: op, Err: errors.New(msg)}
}

// Ambiguous wraps a failed existence check.
func Ambiguous(op string, err error) *Error {
	return &Error{Kind: KindAmbiguous, Op: op, Err: err}
}

// KindOf returns the outermost Kind in the chain, or KindUnknown.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindUnknown
}

func Is(err error, kind Kind) bool {
	for err != nil {
		var e *Error
		if !errors.As(err, &e) {
			return false
		}
		if e.Kind == kind {
			return true
		}
		err = e.Err
	}
	return false
}

// StatusCode digs the first HTTP code out of the chain.
func StatusCode(err error) int {
	for err != nil {
		var e *Error
		if !errors.As(err, &e) {
			return 0
		}
		if e.Code != 0 {
			return e.Code
		}
		err = e.Err
	}
	return 0
}

// RemoteBody returns the first remote response body in the chain.
func RemoteBody(err error) string {
	for err != nil {
		var e *Error
		if !errors.As(err, &e) {
			return ""
		}
		if e.Body != "" {
			return e.Body
		}
		err = e.Err
	}
	return ""
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
