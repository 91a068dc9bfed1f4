// Package apperr marks errors caused by the caller's input so handlers can
// tell them apart from storage or infrastructure failures.
package apperr

import (
	"errors"
	"fmt"
)

type invalidError struct {
	msg string
}

func (e *invalidError) Error() string { return e.msg }

// Invalid returns a client input error with the given message.
func Invalid(msg string) error {
	return &invalidError{msg: msg}
}

// Invalidf formats a client input error.
func Invalidf(format string, args ...interface{}) error {
	return &invalidError{msg: fmt.Sprintf(format, args...)}
}

// IsInvalid reports whether err, or anything it wraps, is a client input error.
func IsInvalid(err error) bool {
	var ie *invalidError
	return errors.As(err, &ie)
}
