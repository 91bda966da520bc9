// Package engineerr defines the typed error kinds surfaced by the
// logscope engine (spec.md §7). It follows the teacher's per-concern
// typed-error shape (one struct per kind, Unwrap for errors.Is/As)
// rather than plain sentinel errors, so callers can recover structured
// context (path, op, recoverability) instead of string-matching.
package engineerr

import (
	"errors"
	"fmt"
	"time"
)

// Kind enumerates the error kinds spec.md §7 names.
type Kind string

const (
	KindIO           Kind = "io"
	KindNotFound     Kind = "not-found"
	KindInvalidInput Kind = "invalid-input"
	KindCancelled    Kind = "cancelled"
	KindTooLarge     Kind = "too-large"
	KindCapacity     Kind = "capacity"
	KindTransport    Kind = "transport"
)

// Error is the engine's single error type; Kind discriminates recovery
// policy the way spec.md §7 describes.
type Error struct {
	Kind        Kind
	Op          string
	Path        string
	Underlying  error
	Recoverable bool
	Timestamp   time.Time
}

// New creates an Error of the given kind for the given operation.
func New(kind Kind, op string, err error) *Error {
	return &Error{
		Kind:       kind,
		Op:         op,
		Underlying: err,
		Timestamp:  time.Now(),
	}
}

// WithPath attaches a file path to the error.
func (e *Error) WithPath(path string) *Error {
	e.Path = path
	return e
}

// WithRecoverable marks whether the caller may retry.
func (e *Error) WithRecoverable(recoverable bool) *Error {
	e.Recoverable = recoverable
	return e
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Path != "" {
		if e.Underlying != nil {
			return fmt.Sprintf("%s: %s failed for %s: %v", e.Kind, e.Op, e.Path, e.Underlying)
		}
		return fmt.Sprintf("%s: %s failed for %s", e.Kind, e.Op, e.Path)
	}
	if e.Underlying != nil {
		return fmt.Sprintf("%s: %s failed: %v", e.Kind, e.Op, e.Underlying)
	}
	return fmt.Sprintf("%s: %s failed", e.Kind, e.Op)
}

// Unwrap returns the underlying error for errors.Is/As.
func (e *Error) Unwrap() error {
	return e.Underlying
}

// Is reports whether target is an *Error with the same Kind when target
// carries no Op, Path or Underlying error (for example
// errors.Is(err, &engineerr.Error{Kind: engineerr.KindCancelled}));
// any other *Error target matches only itself.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	if t.Underlying == nil && t.Op == "" && t.Path == "" {
		return e.Kind == t.Kind
	}
	return e == t
}

// Constructors, one per kind; each sets Op, so its result matches
// under errors.Is only itself, not every error of its kind.
func IOErr(op string, err error) *Error           { return New(KindIO, op, err) }
func NotFound(op string, err error) *Error        { return New(KindNotFound, op, err) }
func InvalidInput(op string, err error) *Error    { return New(KindInvalidInput, op, err) }
func Cancelled(op string) *Error                  { return New(KindCancelled, op, nil) }
func TooLarge(op string, err error) *Error        { return New(KindTooLarge, op, err) }
func Capacity(op string, err error) *Error        { return New(KindCapacity, op, err) }
func TransportErr(op string, err error) *Error    { return New(KindTransport, op, err) }

// KindOf reports the Kind of err if it is (or wraps) an *Error, and
// whether one was found.
func KindOf(err error) (Kind, bool) {
	var e *Error
	if !errors.As(err, &e) {
		return "", false
	}
	return e.Kind, true
}
