package domain

import (
	"errors"
	"time"
)

type ErrorKind string

const (
	KindSourceUnavailable        ErrorKind = "source_unavailable"
	KindMediaInvalid             ErrorKind = "media_invalid"
	KindMediaUnavailable         ErrorKind = "media_unavailable"
	KindDestinationRejected      ErrorKind = "destination_rejected"
	KindDestinationRateLimited   ErrorKind = "destination_rate_limited"
	KindDestinationUnavailable   ErrorKind = "destination_unavailable"
	KindDuplicateKey             ErrorKind = "duplicate_key"
	KindNoDestinationsConfigured ErrorKind = "no_destinations_configured"
	KindLedgerCorrupt            ErrorKind = "ledger_corrupt"
)

// Error is the pipeline failure taxonomy. Two Errors match under errors.Is
// when their kinds are equal, so the Err* values below work as sentinels.
type Error struct {
	Kind ErrorKind
	Op   string
	Err  error

	// RetryAfter is the wait the remote side asked for, if any.
	RetryAfter time.Duration
	// Uncertain marks a failure after which the remote side may have applied
	// the request anyway.
	Uncertain bool
	// Ref is the remote handle of the request whose outcome is uncertain,
	// such as the id of media already uploaded for the post.
	Ref string
}

func (e *Error) Error() string {
	msg := string(e.Kind)
	if e.Op != "" {
		msg = e.Op + ": " + msg
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is enables errors.Is matching on kind.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Kind == e.Kind
}

var (
	ErrSourceUnavailable        = &Error{Kind: KindSourceUnavailable}
	ErrMediaInvalid             = &Error{Kind: KindMediaInvalid}
	ErrMediaUnavailable         = &Error{Kind: KindMediaUnavailable}
	ErrDestinationRejected      = &Error{Kind: KindDestinationRejected}
	ErrDestinationRateLimited   = &Error{Kind: KindDestinationRateLimited}
	ErrDestinationUnavailable   = &Error{Kind: KindDestinationUnavailable}
	ErrDuplicateKey             = &Error{Kind: KindDuplicateKey}
	ErrNoDestinationsConfigured = &Error{Kind: KindNoDestinationsConfigured}
	ErrLedgerCorrupt            = &Error{Kind: KindLedgerCorrupt}
)

func NewError(kind ErrorKind, op string, err error) *Error {
	return &Error{Kind: kind, Op: op, Err: err}
}

// KindOf returns the taxonomy kind of err, or "" for errors outside it.
func KindOf(err error) ErrorKind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return ""
}

// IsRetryable reports whether the item may be attempted again within the
// same pass. Uncertain outcomes are never blindly retryable.
func IsRetryable(err error) bool {
	var e *Error
	if !errors.As(err, &e) {
		return false
	}
	switch e.Kind {
	case KindMediaUnavailable, KindDestinationRateLimited:
		return true
	case KindDestinationUnavailable:
		return !e.Uncertain
	default:
		return false
	}
}

// IsUncertain reports whether err leaves the remote outcome unknown.
func IsUncertain(err error) bool {
	var e *Error
	return errors.As(err, &e) && e.Uncertain
}

// RetryAfterOf returns the server-requested wait carried by err.
func RetryAfterOf(err error) time.Duration {
	var e *Error
	if errors.As(err, &e) {
		return e.RetryAfter
	}
	return 0
}

// RefOf returns the remote handle carried by an uncertain err.
func RefOf(err error) string {
	var e *Error
	if errors.As(err, &e) {
		return e.Ref
	}
	return ""
}
