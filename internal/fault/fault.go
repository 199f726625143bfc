// Package fault classifies domain errors so transport layers can map them
// to responses without knowing every sentinel.
package fault

import (
	"errors"
	"fmt"
)

// Kind is the category of a domain error.
type Kind uint8

const (
	KindUnknown Kind = iota
	KindAuth
	KindForbidden
	KindValidation
	KindConflict
	KindNotFound
	KindStore
	KindDependency
)

func (k Kind) String() string {
	switch k {
	case KindAuth:
		return "auth"
	case KindForbidden:
		return "forbidden"
	case KindValidation:
		return "validation"
	case KindConflict:
		return "conflict"
	case KindNotFound:
		return "not_found"
	case KindStore:
		return "store"
	case KindDependency:
		return "dependency"
	default:
		return "unknown"
	}
}

// Error is a classified error with a stable machine-readable code.
type Error struct {
	Kind    Kind
	Code    string
	Message string
	Err     error
}

// New returns a classified error. Package-level sentinels are created with
// New and compared with errors.Is.
func New(kind Kind, code, message string) *Error {
	return &Error{Kind: kind, Code: code, Message: message}
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

// Validation builds a validation error for a single field.
func Validation(field, message string) *Error {
	msg := message
	if field != "" {
		msg = fmt.Sprintf("invalid %s: %s", field, message)
	}
	return &Error{Kind: KindValidation, Code: "validation_error", Message: msg}
}

// Store wraps a persistence failure.
func Store(op string, err error) *Error {
	return &Error{Kind: KindStore, Code: "store_error", Message: op, Err: err}
}

// Dependency wraps a failure of an external collaborator such as the mailer.
func Dependency(op string, err error) *Error {
	return &Error{Kind: KindDependency, Code: "dependency_error", Message: op, Err: err}
}

// KindOf returns the kind of the first classified error in err's chain.
func KindOf(err error) Kind {
	var fe *Error
	if errors.As(err, &fe) {
		return fe.Kind
	}
	return KindUnknown
}

// CodeOf returns the code of the first classified error in err's chain.
func CodeOf(err error) string {
	var fe *Error
	if errors.As(err, &fe) {
		return fe.Code
	}
	return ""
}

// MessageOf returns the public message of the first classified error.
func MessageOf(err error) string {
	var fe *Error
	if errors.As(err, &fe) {
		return fe.Message
	}
	return ""
}
