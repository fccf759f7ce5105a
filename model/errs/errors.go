// Package errs defines the error taxonomy shared by the orchestration
// components. Errors carry a stable Code so that callers can branch with
// errors.Is instead of comparing message text.
package errs

import (
	"errors"
	"fmt"
)

// Code identifies a class of failure.
type Code string

const (
	AdmissionDenied    Code = "ADMISSION_DENIED"
	PermissionDenied   Code = "PERMISSION_DENIED"
	DependencyNotFound Code = "DEPENDENCY_NOT_FOUND"
	DependencyFailed   Code = "DEPENDENCY_FAILED"
	DispatchFailed     Code = "DISPATCH_FAILED"
	ValidationError    Code = "VALIDATION_ERROR"
	MergeFailure       Code = "MERGE_FAILURE"
)

// Error is a coded error. Err optionally holds the underlying cause.
type Error struct {
	Code    Code
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil && e.Message == "" {
		return e.Err.Error()
	}
	if e.Err != nil {
		return e.Message + ": " + e.Err.Error()
	}
	return e.Message
}

func (e *Error) Unwrap() error { return e.Err }

// Is reports whether target is an *Error with the same Code, so that
// errors.Is(err, errs.New(errs.DependencyFailed, "")) matches any message.
func (e *Error) Is(target error) bool {
	var t *Error
	if !errors.As(target, &t) {
		return false
	}
	return t.Code == e.Code
}

// New creates a coded error.
func New(code Code, format string, args ...interface{}) *Error {
	return &Error{Code: code, Message: fmt.Sprintf(format, args...)}
}

// Wrap creates a coded error with cause.
func Wrap(code Code, err error, format string, args ...interface{}) *Error {
	return &Error{Code: code, Message: fmt.Sprintf(format, args...), Err: err}
}

// CodeOf returns the Code of the first *Error in err's chain, or "" when none.
func CodeOf(err error) Code {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return ""
}

// Sentinel values usable as errors.Is targets.
var (
	ErrAdmissionDenied    = &Error{Code: AdmissionDenied}
	ErrPermissionDenied   = &Error{Code: PermissionDenied}
	ErrDependencyNotFound = &Error{Code: DependencyNotFound}
	ErrDependencyFailed   = &Error{Code: DependencyFailed}
	ErrDispatchFailed     = &Error{Code: DispatchFailed}
	ErrValidation         = &Error{Code: ValidationError}
	ErrMergeFailure       = &Error{Code: MergeFailure}
)
