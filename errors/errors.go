// Package errors defines the structured error taxonomy surfaced by the
// engine. Every error that crosses a package boundary carries a stable
// Code so callers can distinguish recoverable contention from programmer
// mistakes and fatal storage faults.
package errors

import (
	stderrors "errors"
	"fmt"
)

// Code identifies an error category. Codes are part of the public API and
// must stay stable across releases.
type Code string

const (
	// CodeBusy means a lock could not be acquired within the configured
	// busy timeout. Recoverable: the caller may retry the statement or
	// transaction.
	CodeBusy Code = "BUSY"

	// CodeTxnActive means Begin was called on a connection that already
	// has an active transaction.
	CodeTxnActive Code = "TXN_ACTIVE"

	// CodeNoTxn means Commit or Rollback was called on a connection with
	// no active transaction.
	CodeNoTxn Code = "TXN_NONE"

	// CodeBinding means bound parameters did not match the statement's
	// placeholder schema (arity or name mismatch).
	CodeBinding Code = "BIND_MISMATCH"

	// CodeConnClosed means an operation was attempted on a closed
	// connection.
	CodeConnClosed Code = "CONN_CLOSED"

	// CodeParse means the statement text could not be compiled.
	CodeParse Code = "PARSE"

	// CodeSchema means the statement referenced a missing table or
	// column, or tried to create a table that exists. A programmer
	// mistake, not a fault: an active transaction stays usable.
	CodeSchema Code = "SCHEMA"

	// CodeStorage is an unclassified storage fault (I/O, corruption).
	// Fatal for the affected connection; any active transaction is rolled
	// back before the error propagates.
	CodeStorage Code = "STORAGE_FAULT"

	// CodeInternal marks invariant violations inside the engine.
	CodeInternal Code = "INTERNAL"
)

// CorvusError is the structured error type used across the engine.
type CorvusError struct {
	Code    Code
	Message string
	Cause   error
}

// Error implements the error interface.
func (e *CorvusError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// Unwrap returns the underlying cause.
func (e *CorvusError) Unwrap() error {
	return e.Cause
}

// New creates an error with the given code and message.
func New(code Code, message string) *CorvusError {
	return &CorvusError{Code: code, Message: message}
}

// Newf creates an error with a formatted message.
func Newf(code Code, format string, args ...any) *CorvusError {
	return &CorvusError{Code: code, Message: fmt.Sprintf(format, args...)}
}

// Wrap wraps an existing error with a code and message. A nil cause
// yields a plain coded error.
func Wrap(err error, code Code, message string) *CorvusError {
	return &CorvusError{Code: code, Message: message, Cause: err}
}

// CodeOf extracts the Code from err, unwrapping as needed. Errors that
// did not originate in this package report CodeInternal.
func CodeOf(err error) Code {
	var ce *CorvusError
	if stderrors.As(err, &ce) {
		return ce.Code
	}
	return CodeInternal
}

// IsBusy reports whether err is lock contention.
func IsBusy(err error) bool { return CodeOf(err) == CodeBusy }

// IsFatal reports whether err must abort the owning connection's
// transaction before propagating. Only genuine storage faults (I/O,
// corruption) qualify; schema and binding mistakes leave the
// transaction active.
func IsFatal(err error) bool { return CodeOf(err) == CodeStorage }
