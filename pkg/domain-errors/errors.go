// Package domainerrors provides coded errors shared across services and the
// HTTP transport. Stores return sentinel errors; services translate them into
// coded errors here so handlers can map codes to status lines without
// inspecting error strings.
package domainerrors

import (
	"errors"
	"fmt"
)

// Code classifies a failure for propagation and retry decisions.
type Code string

const (
	// CodeValidation marks input rejected before any external call was made.
	CodeValidation Code = "validation"
	// CodeNotFound marks a missing entity; also returned to the loser of a
	// concurrent decision race once the winner deleted the record.
	CodeNotFound Code = "not_found"
	// CodeConflict marks duplicate registrations and duplicate fingerprint
	// anchoring attempts.
	CodeConflict Code = "conflict"
	// CodeUnauthorized marks missing or invalid credentials.
	CodeUnauthorized Code = "unauthorized"
	// CodeForbidden marks a role check failure.
	CodeForbidden Code = "forbidden"
	// CodeExternal marks a transport failure talking to a collaborator.
	// Retryable with backoff.
	CodeExternal Code = "external_service"
	// CodeLedgerRejected marks an on-chain precondition failure (revert).
	// Not retryable without remediation.
	CodeLedgerRejected Code = "ledger_rejected"
	// CodeConfirmationTimeout marks an unknown outcome: the transaction was
	// submitted but not confirmed within the deadline. It may still land, so
	// callers must re-check state before retrying.
	CodeConfirmationTimeout Code = "confirmation_timeout"
	// CodeConsistency marks a post-hoc disagreement between the database and
	// the ledger. Never auto-resolved; surfaced for operator reconciliation.
	CodeConsistency Code = "consistency_fault"
	// CodeInternal is the fallback for unexpected failures.
	CodeInternal Code = "internal"
)

// Error carries a code, an operator-readable message, and an optional cause.
type Error struct {
	Code    Code
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *Error) Unwrap() error { return e.Err }

// New creates a coded error without a cause.
func New(code Code, message string) error {
	return &Error{Code: code, Message: message}
}

// Newf creates a coded error with a formatted message.
func Newf(code Code, format string, args ...any) error {
	return &Error{Code: code, Message: fmt.Sprintf(format, args...)}
}

// Wrap attaches a code and message to an underlying cause. A nil cause yields
// nil so call sites can wrap unconditionally.
func Wrap(err error, code Code, message string) error {
	if err == nil {
		return nil
	}
	return &Error{Code: code, Message: message, Err: err}
}

// HasCode reports whether err or anything it wraps carries the given code.
func HasCode(err error, code Code) bool {
	var de *Error
	if errors.As(err, &de) {
		return de.Code == code
	}
	return false
}

// CodeOf extracts the code from err, defaulting to CodeInternal.
func CodeOf(err error) Code {
	var de *Error
	if errors.As(err, &de) {
		return de.Code
	}
	return CodeInternal
}

// Retryable reports whether the failure class is safe to retry blindly.
// Confirmation timeouts are intentionally excluded: the outcome is unknown and
// state must be re-checked first.
func Retryable(err error) bool {
	return HasCode(err, CodeExternal)
}
