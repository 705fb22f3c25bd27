// Package domain holds the error taxonomy shared by the catalog aggregates.
package domain

import (
	"errors"
	"fmt"
)

type Kind string

const (
	KindValidation Kind = "validation"
	KindNotFound   Kind = "not_found"
	KindConflict   Kind = "conflict"
)

// Error is a categorized business error. Handlers map the Kind to an HTTP
// status; everything else is an internal failure.
type Error struct {
	Kind    Kind
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *Error) Unwrap() error {
	return e.Err
}

var ErrNotFound = &Error{Kind: KindNotFound, Message: "not found"}

func NewValidation(format string, args ...any) *Error {
	return &Error{Kind: KindValidation, Message: fmt.Sprintf(format, args...)}
}

func NewConflict(format string, args ...any) *Error {
	return &Error{Kind: KindConflict, Message: fmt.Sprintf(format, args...)}
}

func NewNotFound(format string, args ...any) *Error {
	return &Error{Kind: KindNotFound, Message: fmt.Sprintf(format, args...)}
}

func kindOf(err error) Kind {
	var de *Error
	if errors.As(err, &de) {
		return de.Kind
	}
	return ""
}

// IsValidation reports whether err is a client-side business rule failure.
// Uniqueness conflicts count as validation failures on the wire.
func IsValidation(err error) bool {
	k := kindOf(err)
	return k == KindValidation || k == KindConflict
}

func IsNotFound(err error) bool {
	return kindOf(err) == KindNotFound
}
