// Copyright 2026 Teradata
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//	http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package types holds the error kinds and identifier helpers shared by every
// crucible package.
package types

import (
	"errors"
	"fmt"
	"strings"
)

// ErrorKind classifies a crucible error.
type ErrorKind string

const (
	// KindNotFound is an unknown catalog id (recipe, endpoint, template, ...).
	KindNotFound ErrorKind = "not_found"

	// KindValidation is a malformed input: bad DTO, overlapping grading
	// ranges, duplicate names, out-of-range percentages.
	KindValidation ErrorKind = "validation_error"

	// KindConnectorTransient is a remote failure that may succeed on retry.
	KindConnectorTransient ErrorKind = "connector_transient"

	// KindConnectorPermanent is a remote failure that will not succeed on
	// retry (auth, malformed request).
	KindConnectorPermanent ErrorKind = "connector_permanent"

	// KindStore is a persistent store failure. Fatal to the current run.
	KindStore ErrorKind = "store_error"

	// KindCancelled marks work that stopped because of a cancel request.
	// It is a terminal state rather than a failure.
	KindCancelled ErrorKind = "cancelled"
)

// Error is the structured error returned across package boundaries.
type Error struct {
	Kind    ErrorKind
	Message string
	Cause   error

	// Suggestions lists close matches for NotFound errors.
	Suggestions []string
}

// Error implements the error interface.
// Format: "[kind] message" or "[kind] message: cause".
func (e *Error) Error() string {
	msg := fmt.Sprintf("[%s] %s", e.Kind, e.Message)
	if len(e.Suggestions) > 0 {
		msg += fmt.Sprintf(" (did you mean: %s?)", strings.Join(e.Suggestions, ", "))
	}
	if e.Cause != nil {
		msg += ": " + e.Cause.Error()
	}
	return msg
}

// Unwrap returns the underlying cause.
func (e *Error) Unwrap() error {
	return e.Cause
}

// Is reports whether target is an *Error of the same kind.
func (e *Error) Is(target error) bool {
	var t *Error
	if errors.As(target, &t) {
		return t.Kind == e.Kind
	}
	return false
}

// Sentinels usable with errors.Is.
var (
	ErrNotFound           = &Error{Kind: KindNotFound}
	ErrValidation         = &Error{Kind: KindValidation}
	ErrConnectorTransient = &Error{Kind: KindConnectorTransient}
	ErrConnectorPermanent = &Error{Kind: KindConnectorPermanent}
	ErrStore              = &Error{Kind: KindStore}
	ErrCancelled          = &Error{Kind: KindCancelled}
)

// NotFound creates a NotFound error for an entity of the given kind.
func NotFound(entity, id string, suggestions ...string) *Error {
	return &Error{
		Kind:        KindNotFound,
		Message:     fmt.Sprintf("%s %q not found", entity, id),
		Suggestions: suggestions,
	}
}

// Validation creates a ValidationError.
func Validation(format string, args ...any) *Error {
	return &Error{Kind: KindValidation, Message: fmt.Sprintf(format, args...)}
}

// Store wraps a store failure.
func Store(message string, cause error) *Error {
	return &Error{Kind: KindStore, Message: message, Cause: cause}
}

// Cancelled creates a Cancelled marker error.
func Cancelled(message string) *Error {
	return &Error{Kind: KindCancelled, Message: message}
}

// KindOf returns the kind of err, or "" when err is not a crucible error.
func KindOf(err error) ErrorKind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return ""
}

// IsNotFound reports whether err is a NotFound error.
func IsNotFound(err error) bool { return errors.Is(err, ErrNotFound) }

// IsValidation reports whether err is a ValidationError.
func IsValidation(err error) bool { return errors.Is(err, ErrValidation) }

// IsStore reports whether err is a StoreError.
func IsStore(err error) bool { return errors.Is(err, ErrStore) }

// IsCancelled reports whether err marks a cancellation.
func IsCancelled(err error) bool { return errors.Is(err, ErrCancelled) }
