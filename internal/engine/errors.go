package engine

import (
	"errors"
	"fmt"
)

// Code categorizes command failures. Codes are the machine-readable half of
// the error taxonomy; messages are for humans and never expose internals.
type Code string

const (
	// CodeNotFound - a referenced case, vault, or position does not exist.
	CodeNotFound Code = "NOT_FOUND"

	// CodeUnauthorized - the caller lacks the required role.
	CodeUnauthorized Code = "UNAUTHORIZED"

	// CodeInvalidState - the command is not valid for the entity's status.
	CodeInvalidState Code = "INVALID_STATE"

	// CodeInvalidInput - malformed amount, wrong denom, bad parties,
	// allocation overflow, or any arithmetic that cannot be represented.
	CodeInvalidInput Code = "INVALID_INPUT"

	// CodeExpired - a time-window violation.
	CodeExpired Code = "EXPIRED"

	// CodeInsufficient - a withdrawal or debit exceeds the recorded balance.
	CodeInsufficient Code = "INSUFFICIENT"
)

// Error is a typed command failure. Every validation failure aborts the
// whole invocation; the engine rolls the transaction back, so the caller
// observes no partial effect.
type Error struct {
	Code Code
	Msg  string
}

// Error implements the error interface.
func (e *Error) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Msg)
}

// Newf builds a typed Error with a formatted message.
func Newf(code Code, format string, args ...any) *Error {
	return &Error{Code: code, Msg: fmt.Sprintf(format, args...)}
}

// CodeOf extracts the failure code from an error chain. Returns empty when
// the error is not a typed command failure.
func CodeOf(err error) Code {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return ""
}

// IsCode reports whether err carries the given failure code.
func IsCode(err error, code Code) bool {
	return CodeOf(err) == code
}
