// Package pmerrors defines the error taxonomy used across the parallel
// manager: config-time validation failures, invariant violations found
// while maintaining the cell map, transport failures from the communicator,
// and exchange size mismatches.
package pmerrors

import (
	"errors"
	"fmt"
	"os"
)

// Kind classifies an Error into one of the taxonomy buckets the spec
// describes. Every error the core returns carries one of these.
type Kind string

const (
	// ConfigError marks a failure detected at manager construction time:
	// an unknown lb_props name, an invalid domain, an unrecognized
	// lb_method.
	ConfigError Kind = "config_error"

	// InvariantViolation marks a cell-map or gid invariant that does not
	// hold: a degenerate cell size is recovered by clamping (not an
	// error), but a gid duplicate, a cell/row disagreement, or a cell
	// centroid outside every partition's box is fatal.
	InvariantViolation Kind = "invariant_violation"

	// TransportError marks a communicator call (Send, Recv, Allreduce,
	// Allgather, Barrier) that failed or timed out.
	TransportError Kind = "transport_error"

	// SizeMismatch marks a disagreement between the count-receive
	// expectation exchanged in step 2 of the load-balance protocol and
	// the row count actually received.
	SizeMismatch Kind = "size_mismatch"
)

// Error is the concrete error type returned by every exported operation in
// the parallel manager. It carries a Kind for programmatic matching, a
// human-readable message, and an optional wrapped cause.
type Error struct {
	Kind    Kind
	Message string
	Cause   error
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

// Unwrap exposes the wrapped cause to errors.Is/errors.As.
func (e *Error) Unwrap() error { return e.Cause }

// Is reports whether target is an *Error of the same Kind, so callers can
// write errors.Is(err, pmerrors.New(pmerrors.ConfigError, "")) loosely, or
// more idiomatically use the Is<Kind> helpers below.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return e.Kind == t.Kind
}

// New builds an Error of the given kind with a formatted message.
func New(kind Kind, format string, args ...interface{}) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// Wrap builds an Error of the given kind around an existing cause.
func Wrap(kind Kind, cause error, format string, args ...interface{}) *Error {
	if cause == nil {
		return nil
	}
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...), Cause: cause}
}

func kindMatcher(k Kind) func(error) bool {
	return func(err error) bool {
		var e *Error
		if errors.As(err, &e) {
			return e.Kind == k
		}
		return false
	}
}

// IsConfigError reports whether err (or something it wraps) is a ConfigError.
var IsConfigError = kindMatcher(ConfigError)

// IsInvariantViolation reports whether err (or something it wraps) is an
// InvariantViolation.
var IsInvariantViolation = kindMatcher(InvariantViolation)

// IsTransportError reports whether err (or something it wraps) is a
// TransportError.
var IsTransportError = kindMatcher(TransportError)

// IsSizeMismatch reports whether err (or something it wraps) is a
// SizeMismatch.
var IsSizeMismatch = kindMatcher(SizeMismatch)

// Fatal writes a single-line diagnostic to stderr and exits the process
// with non-zero status, per the spec's "user-visible failure surface".
// Only cmd/pmdemo calls this; library code always returns errors.
func Fatal(err error) {
	fmt.Fprintln(os.Stderr, err)
	os.Exit(1)
}
