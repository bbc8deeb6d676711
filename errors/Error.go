// Package errors provides the typed application error used across guachain.
//
// Adapted from the teacher's error package: the Code/Message/WrappedErr
// shape, New/Is/As/Unwrap/Join are kept. The gRPC/protobuf wrap-unwrap
// half is dropped — guachain has no RPC transport for an error to cross.
package errors

import (
	"errors"
	"fmt"
)

// Code identifies the class of a guachain error.
type Code int

const (
	ErrUnknown Code = iota
	ErrNotFound
	ErrInvalidArgument
	ErrCorrupt
	ErrBadBlock
	ErrConflict
	ErrOrigin
)

var codeNames = map[Code]string{
	ErrUnknown:         "UNKNOWN",
	ErrNotFound:        "NOT_FOUND",
	ErrInvalidArgument: "INVALID_ARGUMENT",
	ErrCorrupt:         "CORRUPT",
	ErrBadBlock:        "BAD_BLOCK",
	ErrConflict:        "CONFLICT",
	ErrOrigin:          "ORIGIN_MISMATCH",
}

func (c Code) String() string {
	if n, ok := codeNames[c]; ok {
		return n
	}
	return "UNKNOWN"
}

// Error is guachain's typed error: a code, a message, and an optional
// wrapped cause.
type Error struct {
	Code       Code
	Message    string
	WrappedErr error
}

func (e *Error) Error() string {
	if e == nil {
		return "<nil>"
	}
	if e.WrappedErr == nil {
		return fmt.Sprintf("%s: %s", e.Code, e.Message)
	}
	return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.WrappedErr)
}

// Is reports whether error codes match.
func (e *Error) Is(target error) bool {
	if e == nil {
		return false
	}

	var ue *Error
	if errors.As(target, &ue) {
		if e.Code == ue.Code {
			return true
		}
		if e.WrappedErr == nil {
			return false
		}
	}

	if unwrapped := errors.Unwrap(e); unwrapped != nil {
		if ue, ok := unwrapped.(*Error); ok {
			return ue.Is(target)
		}
	}

	return false
}

func (e *Error) As(target interface{}) bool {
	if e == nil {
		return false
	}
	if targetErr, ok := target.(**Error); ok {
		*targetErr = e
		return true
	}
	if e.WrappedErr != nil {
		return errors.As(e.WrappedErr, target)
	}
	return false
}

func (e *Error) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.WrappedErr
}

// New builds an *Error. If the last param is an error, it becomes the
// wrapped cause and is excluded from message formatting.
func New(code Code, message string, params ...interface{}) *Error {
	var wErr error

	if len(params) > 0 {
		lastParam := params[len(params)-1]
		if err, ok := lastParam.(error); ok {
			wErr = err
			params = params[:len(params)-1]
		}
	}

	if len(params) > 0 {
		message = fmt.Sprintf(message, params...)
	}

	return &Error{Code: code, Message: message, WrappedErr: wErr}
}

func Join(errs ...error) error {
	return errors.Join(errs...)
}

func Is(err, target error) bool {
	return errors.Is(err, target)
}

func As(err error, target any) bool {
	return errors.As(err, target)
}
