package schema

import (
	"errors"
	"fmt"
)

// ErrorKind classifies engine failures.
type ErrorKind string

const (
	ErrUnknownTarget     ErrorKind = "UnknownTarget"
	ErrNotWritable       ErrorKind = "NotWritable"
	ErrUnknownAction     ErrorKind = "UnknownAction"
	ErrUnknownMethod     ErrorKind = "UnknownMethod"
	ErrDuplicatePath     ErrorKind = "DuplicatePath"
	ErrPatchHookFailure  ErrorKind = "PatchHookFailure"
	ErrPatchRejected     ErrorKind = "PatchRejected"
	ErrInvalidPatch      ErrorKind = "InvalidPatch"
	ErrSchemaCycle       ErrorKind = "SchemaCycle"
	ErrInvalidDefinition ErrorKind = "InvalidDefinition"
	ErrBadRequest        ErrorKind = "BadRequest"
)

// Error is a classified engine error.
type Error struct {
	Kind    ErrorKind
	Target  string
	Message string
	Err     error
}

// Error returns the error message.
func (e *Error) Error() string {
	msg := string(e.Kind)
	if e.Target != "" {
		msg += " " + fmt.Sprintf("%q", e.Target)
	}
	if e.Message != "" {
		msg += ": " + e.Message
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

// Unwrap returns the wrapped error.
func (e *Error) Unwrap() error { return e.Err }

// ErrorKind implements Kinded.
func (e *Error) ErrorKind() ErrorKind { return e.Kind }

// Kinded is implemented by every classified error type.
type Kinded interface {
	error
	ErrorKind() ErrorKind
}

// KindOf returns the kind of the first classified error in err's chain,
// or "" for unclassified errors such as those returned by user callbacks.
func KindOf(err error) ErrorKind {
	var k Kinded
	if errors.As(err, &k) {
		return k.ErrorKind()
	}
	return ""
}

// Errorf builds a classified error.
func Errorf(kind ErrorKind, target, format string, args ...any) *Error {
	return &Error{Kind: kind, Target: target, Message: fmt.Sprintf(format, args...)}
}
