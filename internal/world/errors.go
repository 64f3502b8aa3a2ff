// Gaia World Sync - Real-Time World State Synchronization Engine
// Copyright 2026 Aeonia AI
// SPDX-License-Identifier: Apache-2.0
// https://github.com/Aeonia-ai/gaia-sub003

package world

import (
	"errors"
	"fmt"
)

// ErrorKind classifies engine errors for wire-level reporting.
// Every error surfaced to a client maps to exactly one kind.
type ErrorKind string

const (
	// KindValidation indicates a precondition failed. No mutation occurred.
	KindValidation ErrorKind = "validation"

	// KindConflict indicates an optimistic-concurrency version mismatch.
	// Conflicts are retried internally up to a bound before surfacing.
	KindConflict ErrorKind = "conflict"

	// KindNotFound indicates an unknown experience, player, or entity.
	KindNotFound ErrorKind = "not_found"

	// KindTimeout indicates the narrative path exceeded its deadline.
	KindTimeout ErrorKind = "timeout"

	// KindInternal indicates an unexpected failure.
	KindInternal ErrorKind = "internal"
)

// Error is a typed engine error carrying its wire classification.
type Error struct {
	Kind    ErrorKind
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is reports whether target is an *Error with the same kind.
// This lets callers match on sentinel errors built with the same kind.
func (e *Error) Is(target error) bool {
	var t *Error
	if !errors.As(target, &t) {
		return false
	}
	return e.Kind == t.Kind
}

// NewValidation returns a validation error with a formatted message.
func NewValidation(format string, args ...interface{}) *Error {
	return &Error{Kind: KindValidation, Message: fmt.Sprintf(format, args...)}
}

// NewConflict returns a conflict error with a formatted message.
func NewConflict(format string, args ...interface{}) *Error {
	return &Error{Kind: KindConflict, Message: fmt.Sprintf(format, args...)}
}

// NewNotFound returns a not-found error with a formatted message.
func NewNotFound(format string, args ...interface{}) *Error {
	return &Error{Kind: KindNotFound, Message: fmt.Sprintf(format, args...)}
}

// NewTimeout returns a timeout error with a formatted message.
func NewTimeout(format string, args ...interface{}) *Error {
	return &Error{Kind: KindTimeout, Message: fmt.Sprintf(format, args...)}
}

// NewInternal wraps an unexpected failure.
func NewInternal(msg string, err error) *Error {
	return &Error{Kind: KindInternal, Message: msg, Err: err}
}

// KindOf extracts the ErrorKind from an error chain.
// Unclassified errors report KindInternal.
func KindOf(err error) ErrorKind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindInternal
}

// IsKind reports whether err carries the given kind.
func IsKind(err error, kind ErrorKind) bool {
	return err != nil && KindOf(err) == kind
}
