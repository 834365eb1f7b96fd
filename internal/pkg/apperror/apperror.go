// Package apperror centralizes the error taxonomy that the sync engine
// propagates across stage, batch, and item boundaries. It replaces
// exception-driven control flow with a tagged-union error value: callers
// switch on Kind rather than on concrete error types.
package apperror

import (
	"errors"
	"fmt"
)

// Kind classifies an error for retry, surfacing, and reporting decisions.
type Kind int

const (
	// Internal is the zero value so an unclassified error never silently
	// looks like a specific, handled kind.
	Internal Kind = iota
	Configuration
	Transport
	RateLimit
	Client
	Authentication
	Validation
	TransientDB
	PersistentDB
	Cancelled
)

var kindNames = map[Kind]string{
	Internal:       "internal",
	Configuration:  "configuration",
	Transport:      "transport",
	RateLimit:      "rate_limit",
	Client:         "client",
	Authentication: "authentication",
	Validation:     "validation",
	TransientDB:    "transient_db",
	PersistentDB:   "persistent_db",
	Cancelled:      "cancelled",
}

func (k Kind) String() string {
	if s, ok := kindNames[k]; ok {
		return s
	}
	return "internal"
}

// Error is the concrete error type carrying a Kind plus context. It wraps
// an optional underlying cause so errors.Is/errors.As keep working through
// the taxonomy.
type Error struct {
	Kind     Kind
	Message  string
	Endpoint string
	Method   string
	Status   int
	cause    error
}

func (e *Error) Error() string {
	if e.Endpoint != "" {
		return fmt.Sprintf("%s: %s %s (status %d): %s", e.Kind, e.Method, e.Endpoint, e.Status, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error { return e.cause }

// New builds an Error of the given kind with a plain message.
func New(kind Kind, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

// Wrap builds an Error of the given kind wrapping an underlying cause.
func Wrap(kind Kind, cause error, message string) *Error {
	return &Error{Kind: kind, Message: message, cause: cause}
}

// WrapAPI builds a Client/Transport/RateLimit/Authentication error carrying
// the endpoint, method, and HTTP status that produced it.
func WrapAPI(kind Kind, method, endpoint string, status int, cause error) *Error {
	e := &Error{Kind: kind, Endpoint: endpoint, Method: method, Status: status, cause: cause}
	if cause != nil {
		e.Message = cause.Error()
	} else {
		e.Message = kind.String()
	}
	return e
}

// KindOf returns the Kind of err if it is (or wraps) an *Error, and
// Internal otherwise.
func KindOf(err error) Kind {
	var ae *Error
	if errors.As(err, &ae) {
		return ae.Kind
	}
	return Internal
}

// IsRetryable reports whether err should be retried by the caller's retry
// loop: Transport and RateLimit are retryable, TransientDB is retryable
// within the transaction budget, everything else is not.
func IsRetryable(err error) bool {
	switch KindOf(err) {
	case Transport, RateLimit, TransientDB:
		return true
	default:
		return false
	}
}

// IsCancelled reports whether err represents a cooperative stop rather
// than a genuine failure.
func IsCancelled(err error) bool {
	return KindOf(err) == Cancelled
}

// Classify maps an HTTP status code to the Kind an API response of that
// status should carry, per the MLP/DDS failure classification: network
// and 5xx are retryable Transport errors, 429 is RateLimit, 401/403 is
// Authentication, and other 4xx are non-retryable Client errors.
func Classify(statusCode int) Kind {
	switch {
	case statusCode == 429:
		return RateLimit
	case statusCode == 401 || statusCode == 403:
		return Authentication
	case statusCode >= 500:
		return Transport
	case statusCode >= 400:
		return Client
	default:
		return Internal
	}
}
