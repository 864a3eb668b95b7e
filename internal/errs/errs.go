// Package errs defines the structured error type shared by every layer of
// the scanner. The root package re-exports it.
package errs

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"syscall"
)

// Code represents high-level error categories
type Code string

const (
	CodeConfiguration Code = "invalid configuration"
	CodeResource      Code = "resource unavailable"
	CodeIO            Code = "I/O error"
	CodeInternal      Code = "internal invariant violated"
	CodeCanceled      Code = "canceled"
)

// Error represents a structured scan error with location and errno
type Error struct {
	Op     string        // Operation that failed (e.g., "ring_setup", "read")
	Code   Code          // High-level error category
	Worker int           // Worker index (-1 if not applicable)
	Block  int64         // Block number (-1 if not applicable)
	Offset int64         // Byte offset (-1 if not applicable)
	Errno  syscall.Errno // Kernel errno (0 if not applicable)
	Msg    string        // Human-readable message
	Inner  error         // Wrapped error
}

// Error implements the error interface
func (e *Error) Error() string {
	var parts []string

	if e.Op != "" {
		parts = append(parts, "op="+e.Op)
	}
	if e.Worker >= 0 {
		parts = append(parts, fmt.Sprintf("worker=%d", e.Worker))
	}
	if e.Block >= 0 {
		parts = append(parts, fmt.Sprintf("block=%d", e.Block))
	}
	if e.Offset >= 0 {
		parts = append(parts, fmt.Sprintf("offset=%d", e.Offset))
	}
	if e.Errno != 0 {
		parts = append(parts, fmt.Sprintf("errno=%d", int(e.Errno)))
	}

	msg := e.Msg
	if msg == "" {
		msg = string(e.Code)
	}

	if len(parts) > 0 {
		return fmt.Sprintf("blockbench: %s (%s)", msg, strings.Join(parts, ", "))
	}
	return "blockbench: " + msg
}

// Unwrap returns the wrapped error for errors.Is/As support
func (e *Error) Unwrap() error {
	return e.Inner
}

// Is matches another *Error by code, so sentinels work with errors.Is
func (e *Error) Is(target error) bool {
	te, ok := target.(*Error)
	if !ok || te == nil {
		return false
	}
	return e.Code == te.Code
}

// Sentinels for errors.Is comparisons
var (
	ErrConfiguration = &Error{Code: CodeConfiguration, Worker: -1, Block: -1, Offset: -1}
	ErrResource      = &Error{Code: CodeResource, Worker: -1, Block: -1, Offset: -1}
	ErrIO            = &Error{Code: CodeIO, Worker: -1, Block: -1, Offset: -1}
	ErrInternal      = &Error{Code: CodeInternal, Worker: -1, Block: -1, Offset: -1}
	ErrCanceled      = &Error{Code: CodeCanceled, Worker: -1, Block: -1, Offset: -1}
)

// New creates a structured error with no location
func New(op string, code Code, msg string) *Error {
	return &Error{Op: op, Code: code, Worker: -1, Block: -1, Offset: -1, Msg: msg}
}

// Newf is New with a format string
func Newf(op string, code Code, format string, args ...any) *Error {
	return New(op, code, fmt.Sprintf(format, args...))
}

// NewWithErrno creates a structured error carrying a kernel errno
func NewWithErrno(op string, code Code, errno syscall.Errno) *Error {
	e := New(op, code, errno.Error())
	e.Errno = errno
	return e
}

// NewIO creates an I/O error located at a block and byte offset
func NewIO(op string, block, offset int64, errno syscall.Errno, msg string) *Error {
	e := New(op, CodeIO, msg)
	e.Block = block
	e.Offset = offset
	e.Errno = errno
	if msg == "" && errno != 0 {
		e.Msg = errno.Error()
	}
	return e
}

// WithWorker returns a copy of e attributed to a worker
func (e *Error) WithWorker(worker int) *Error {
	c := *e
	c.Worker = worker
	return &c
}

// WrapError wraps an existing error with scan context. Structured errors
// keep their code and location; raw errnos are mapped to a code.
func WrapError(op string, inner error) *Error {
	if inner == nil {
		return nil
	}

	var se *Error
	if errors.As(inner, &se) {
		c := *se
		c.Op = op
		return &c
	}

	if errors.Is(inner, context.Canceled) || errors.Is(inner, context.DeadlineExceeded) {
		e := New(op, CodeCanceled, inner.Error())
		e.Inner = inner
		return e
	}

	var errno syscall.Errno
	if errors.As(inner, &errno) {
		e := NewWithErrno(op, mapErrnoToCode(errno), errno)
		e.Inner = inner
		return e
	}

	e := New(op, CodeIO, inner.Error())
	e.Inner = inner
	return e
}

// mapErrnoToCode maps syscall errno to error codes
func mapErrnoToCode(errno syscall.Errno) Code {
	switch errno {
	case syscall.EINVAL, syscall.E2BIG:
		return CodeConfiguration
	case syscall.ENOMEM, syscall.EMFILE, syscall.ENFILE, syscall.ENOSYS,
		syscall.EPERM, syscall.EACCES, syscall.ENOENT, syscall.EOPNOTSUPP:
		return CodeResource
	case syscall.EINTR, syscall.ECANCELED:
		return CodeCanceled
	default:
		return CodeIO
	}
}

// IsCode checks if an error matches a specific error code
func IsCode(err error, code Code) bool {
	var se *Error
	if errors.As(err, &se) {
		return se.Code == code
	}
	return false
}

// IsErrno checks if an error matches a specific errno
func IsErrno(err error, errno syscall.Errno) bool {
	var se *Error
	if errors.As(err, &se) {
		return se.Errno == errno
	}
	return false
}
