package connection

import (
	"errors"
	"fmt"

	"github.com/leanstore/leanstore.go/pkg/constants"
)

// Error is a {code, message} failure. It matches the kind sentinel of its code with
// errors.Is, e.g. errors.Is(err, constants.ErrNotFound).
type Error struct {
	Code       constants.ErrorCode
	Message    string
	StatusCode int
	Err        error
}

func NewError(code constants.ErrorCode, message string) *Error {
	return &Error{Code: code, Message: message}
}

func Errorf(code constants.ErrorCode, format string, args ...any) *Error {
	return &Error{Code: code, Message: fmt.Sprintf(format, args...)}
}

// Wrap returns an Error with the given code carrying err as its cause.
func Wrap(code constants.ErrorCode, err error) *Error {
	return &Error{Code: code, Message: err.Error(), Err: err}
}

func (e *Error) Error() string {
	return fmt.Sprintf("code %d: %s", e.Code, e.Message)
}

func (e *Error) Is(target error) bool {
	if target == nil {
		return false
	}
	return target == e.Code.Kind()
}

func (e *Error) Unwrap() error {
	return e.Err
}

// AsError returns err as an *Error, wrapping foreign errors with the code matching
// their kind.
func AsError(err error) *Error {
	if err == nil {
		return nil
	}
	var e *Error
	if errors.As(err, &e) {
		return e
	}
	switch {
	case errors.Is(err, constants.ErrValidation):
		return Wrap(constants.ValidationError, err)
	case errors.Is(err, constants.ErrNotFound):
		return Wrap(constants.ObjectNotFound, err)
	case errors.Is(err, constants.ErrConditionNotMet):
		return Wrap(constants.ConditionNotMet, err)
	case errors.Is(err, constants.ErrTransport):
		return Wrap(constants.ConnectionFailed, err)
	}
	return Wrap(constants.OtherCause, err)
}
