// Package schematerr defines the error taxonomy shared across the core
// object runtime. Every error carries a Kind so callers can branch with
// errors.Is instead of string matching, and wraps an optional cause with
// %w so context survives across package boundaries.
package schematerr

import "fmt"

// Kind identifies one of the error categories from the runtime's error
// taxonomy. Kinds are sentinel-comparable with errors.Is.
type Kind string

const (
	KindNotLoaded       Kind = "not_loaded"
	KindURLNotFound     Kind = "url_not_found"
	KindValidation      Kind = "validation"
	KindVersionConflict Kind = "version_conflict"
	KindObjectNotFound  Kind = "object_not_found"
	KindServerTimeout   Kind = "server_timeout"
	KindRemote          Kind = "remote"
	KindSealMismatch    Kind = "seal_mismatch"
	KindUnsupported     Kind = "unsupported"
)

// Error is the concrete error type returned by the runtime. It is
// comparable by Kind via errors.Is: Error{Kind: K} matches any Error with
// the same Kind regardless of Message/Cause.
type Error struct {
	Kind    Kind
	Message string
	Cause   error
}

func New(kind Kind, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

func Wrap(kind Kind, message string, cause error) *Error {
	return &Error{Kind: kind, Message: message, Cause: cause}
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error { return e.Cause }

// Is implements errors.Is matching semantics keyed on Kind alone, so
// callers can write errors.Is(err, schematerr.New(schematerr.KindNotLoaded, "")).
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Kind == e.Kind
}

// KindOf extracts the Kind of err if it is (or wraps) a *Error, and ok=false
// otherwise.
func KindOf(err error) (Kind, bool) {
	var e *Error
	if ok := asError(err, &e); ok {
		return e.Kind, true
	}
	return "", false
}

func asError(err error, target **Error) bool {
	for err != nil {
		if e, ok := err.(*Error); ok {
			*target = e
			return true
		}
		u, ok := err.(interface{ Unwrap() error })
		if !ok {
			return false
		}
		err = u.Unwrap()
	}
	return false
}

// Sentinel instances for errors.Is comparisons against a specific kind,
// e.g. errors.Is(err, schematerr.NotLoaded).
var (
	NotLoaded       = &Error{Kind: KindNotLoaded}
	URLNotFound     = &Error{Kind: KindURLNotFound}
	Validation      = &Error{Kind: KindValidation}
	VersionConflict = &Error{Kind: KindVersionConflict}
	ObjectNotFound  = &Error{Kind: KindObjectNotFound}
	ServerTimeout   = &Error{Kind: KindServerTimeout}
	Remote          = &Error{Kind: KindRemote}
	SealMismatch    = &Error{Kind: KindSealMismatch}
	Unsupported     = &Error{Kind: KindUnsupported}
)
