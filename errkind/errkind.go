// Copyright (C) 2020-2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

// Package errkind enumerates the error taxonomy every layer of this
// system classifies its failures into, as sentinel-wrapped values, so
// callers can classify a returned error with errors.Is instead of
// matching on concrete types.
package errkind

import (
	"errors"
	"fmt"
)

// Kind is one of the error taxonomy's buckets.
type Kind int

const (
	// Input covers malformed JSON, oversized bodies, bad hex, and
	// out-of-range enums. Surfaced as 4xx with no state mutation.
	Input Kind = iota
	// Authentication covers bad webhook secrets, bad bearer tokens, and
	// bad envelope signatures.
	Authentication
	// Validation covers signature failure, sequence replay, non-target,
	// unknown/inactive bot, and config version regression.
	Validation
	// TransientIO covers upstream timeouts, peer 5xxs, and connection
	// refusals. Retried per the policy named at each call site.
	TransientIO
	// Fatal covers conditions where continuing risks an invariant
	// violation (unpersistable sequence counter, unreadable key file,
	// locally detected duplicate sequence). The process aborts.
	Fatal
	// Equivocation is not propagated to a caller as an error — it is
	// recorded as audit evidence — but is enumerated here so detection
	// code can tag it consistently wherever it is logged.
	Equivocation
)

func (k Kind) String() string {
	switch k {
	case Input:
		return "input"
	case Authentication:
		return "authentication"
	case Validation:
		return "validation"
	case TransientIO:
		return "transient_io"
	case Fatal:
		return "fatal"
	case Equivocation:
		return "equivocation"
	default:
		return "unknown"
	}
}

// Error wraps an underlying cause with a Kind.
type Error struct {
	Kind  Kind
	Cause error
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s: %v", e.Kind, e.Cause)
}

func (e *Error) Unwrap() error { return e.Cause }

// Wrap returns an *Error tagging cause with kind. A nil cause returns nil.
func Wrap(kind Kind, cause error) error {
	if cause == nil {
		return nil
	}
	return &Error{Kind: kind, Cause: cause}
}

// Wrapf is Wrap with a formatted cause.
func Wrapf(kind Kind, format string, args ...interface{}) error {
	return &Error{Kind: kind, Cause: fmt.Errorf(format, args...)}
}

// Is reports whether err (or anything it wraps) carries kind.
func Is(err error, kind Kind) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind == kind
	}
	return false
}

// KindOf returns the Kind carried by err, or Validation if err does not
// carry a tagged Kind (the safest default ingress classification).
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return Validation
}
