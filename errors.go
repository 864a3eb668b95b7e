package blockbench

import (
	"syscall"

	"github.com/ehrlich-b/go-blockbench/internal/errs"
)

// Error represents a structured scan error with location and errno mapping
type Error = errs.Error

// ErrorCode represents high-level error categories
type ErrorCode = errs.Code

const (
	ErrCodeConfiguration = errs.CodeConfiguration
	ErrCodeResource      = errs.CodeResource
	ErrCodeIO            = errs.CodeIO
	ErrCodeInternal      = errs.CodeInternal
	ErrCodeCanceled      = errs.CodeCanceled
)

// Sentinels matched by code through errors.Is
var (
	ErrInvalidConfiguration = errs.ErrConfiguration
	ErrResourceUnavailable  = errs.ErrResource
	ErrIO                   = errs.ErrIO
	ErrInternal             = errs.ErrInternal
	ErrCanceled             = errs.ErrCanceled
)

// NewError creates a new structured error
func NewError(op string, code ErrorCode, msg string) *Error {
	return errs.New(op, code, msg)
}

// NewErrorWithErrno creates a new structured error with errno
func NewErrorWithErrno(op string, code ErrorCode, errno syscall.Errno) *Error {
	return errs.NewWithErrno(op, code, errno)
}

// WrapError wraps an existing error with scan context
func WrapError(op string, inner error) *Error {
	return errs.WrapError(op, inner)
}

// IsCode checks if an error matches a specific error code
func IsCode(err error, code ErrorCode) bool {
	return errs.IsCode(err, code)
}

// IsErrno checks if an error matches a specific errno
func IsErrno(err error, errno syscall.Errno) bool {
	return errs.IsErrno(err, errno)
}
