// Package apperr defines the error kinds surfaced at the transport boundary.
//
// Domain packages declare their sentinels with New so that handlers can map
// any wrapped error to a response status without knowing every sentinel.
package apperr

import "github.com/go-faster/errors"

// Kind classifies a domain error.
type Kind string

const (
	// KindInternal is a storage or programming fault.
	KindInternal Kind = "internal"
	// KindNotFound means the referenced entity does not exist.
	KindNotFound Kind = "not_found"
	// KindValidation means the request was rejected by a business rule.
	KindValidation Kind = "validation"
	// KindConflict means the request collides with existing state.
	KindConflict Kind = "conflict"
)

// Error is a domain error carrying a Kind and a stable, human-readable message.
type Error struct {
	Kind    Kind
	Message string
}

func (e *Error) Error() string {
	return e.Message
}

// New returns a sentinel error of the given kind.
func New(kind Kind, msg string) *Error {
	return &Error{Kind: kind, Message: msg}
}

// Validation returns a validation error with the given message.
func Validation(msg string) *Error {
	return New(KindValidation, msg)
}

// KindOf returns the kind of the first *Error in err's chain, or KindInternal.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindInternal
}
