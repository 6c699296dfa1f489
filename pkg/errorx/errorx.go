package errorx

import (
	"errors"
	"fmt"
)

// CodeError is an error carrying a business code.
// It wraps an optional cause so errors.Is/errors.As keep working through it.
type CodeError struct {
	Code  int    // business code
	Msg   string // message shown to the caller
	cause error  // wrapped error
}

// Error renders "msg: cause" when a cause is present, otherwise just the message.
func (e *CodeError) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("%s: %v", e.Msg, e.cause)
	}
	return e.Msg
}

// Unwrap exposes the cause to errors.Is/errors.As.
func (e *CodeError) Unwrap() error {
	return e.cause
}

// Is matches another *CodeError by code, so predefined errors can be used as sentinels.
func (e *CodeError) Is(target error) bool {
	var t *CodeError
	if errors.As(target, &t) {
		return t.Code == e.Code && t.cause == nil
	}
	return false
}

// New creates a CodeError.
func New(code int, msg string) *CodeError {
	return &CodeError{
		Code: code,
		Msg:  msg,
	}
}

// Newf creates a CodeError with a formatted message.
func Newf(code int, format string, args ...any) *CodeError {
	return &CodeError{
		Code: code,
		Msg:  fmt.Sprintf(format, args...),
	}
}

// Wrap attaches a code and message to an underlying error.
// Usage: errorx.Wrap(err, CodeNotFound, "session not found")
func Wrap(err error, code int, msg string) *CodeError {
	return &CodeError{
		Code:  code,
		Msg:   msg,
		cause: err,
	}
}

// Wrapf is Wrap with a formatted message.
// Usage: errorx.Wrapf(err, CodeNotFound, "session %s not found", id)
func Wrapf(err error, code int, format string, args ...any) *CodeError {
	return &CodeError{
		Code:  code,
		Msg:   fmt.Sprintf(format, args...),
		cause: err,
	}
}

// GetCode extracts the business code, defaulting to CodeServerBusy for foreign errors.
func GetCode(err error) int {
	var codeErr *CodeError
	if errors.As(err, &codeErr) {
		return codeErr.Code
	}
	return CodeServerBusy
}

// HasCode reports whether err carries the given business code.
func HasCode(err error, code int) bool {
	return err != nil && GetCode(err) == code
}

// Business codes
const (
	CodeSuccess          = 1000 // ok
	CodeInvalidParam     = 1001 // malformed request
	CodeValidation       = 1002 // precondition/validation failure, nothing was written
	CodeBlocked          = 1003 // session is blocked
	CodeForbidden        = 1004 // operation not allowed on this record
	CodeServerBusy       = 1005 // unknown failure
	CodeUnauthorized     = 1006 // missing or invalid admin token
	CodeConflict         = 1007 // state conflict, e.g. correlation id already set
	CodeNotFound         = 1008 // record does not exist
	CodeCascadePartial   = 1009 // cascade delete stopped half way
	CodeStoreUnavailable = 1010 // transient persistence/network failure
	CodeFeedError        = 1011 // change feed publish/consume failure
)

// Predefined errors, usable directly or as errors.Is targets.
var (
	ErrInvalidParam = New(CodeInvalidParam, "invalid request parameters")
	ErrServerBusy   = New(CodeServerBusy, "server busy")
	ErrBlocked      = New(CodeBlocked, "session is blocked")
	ErrNotFound     = New(CodeNotFound, "record not found")
)

// IsNotFound reports whether err is a not-found error.
func IsNotFound(err error) bool {
	return HasCode(err, CodeNotFound)
}

// IsTransient reports whether err is a transient I/O failure the user may retry.
func IsTransient(err error) bool {
	return HasCode(err, CodeStoreUnavailable) || HasCode(err, CodeFeedError)
}
