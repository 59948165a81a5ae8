// Package domainerrors carries the error kinds the bridge surfaces to its
// callers. Services translate infrastructure facts (pkg/platform/sentinel,
// ledger errors) into one of these codes; the transport layer maps codes to
// status classes.
package domainerrors

import (
	"errors"
)

// Code identifies the kind of a domain error.
type Code string

const (
	// Bridge error kinds.
	CodeSecurity                  Code = "security"
	CodeInvalidConfiguration      Code = "invalid_configuration"
	CodeInvalidAddress            Code = "invalid_stellar_address"
	CodeFederationFailed          Code = "federation_failed"
	CodeAccountCreationFailed     Code = "stellar_account_creation_failed"
	CodeTrustLineAdjustmentFailed Code = "stellar_trust_line_adjustment_failed"
	CodeInvalidJournalEntry       Code = "invalid_journal_entry"

	// Generic kinds.
	CodeInvalidInput Code = "invalid_input"
	CodeBadRequest   Code = "bad_request"
	CodeNotFound     Code = "not_found"
	CodeConflict     Code = "conflict"
	CodeUnavailable  Code = "unavailable"
	CodeInternal     Code = "internal_error"
)

// Error is a coded error with a caller-safe message.
type Error struct {
	Code    Code
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return e.Message + ": " + e.Err.Error()
	}
	return e.Message
}

func (e *Error) Unwrap() error {
	return e.Err
}

// New creates a coded error.
func New(code Code, message string) error {
	return &Error{Code: code, Message: message}
}

// Wrap attaches a code and message to an underlying error.
func Wrap(err error, code Code, message string) error {
	if err == nil {
		return nil
	}
	return &Error{Code: code, Message: message, Err: err}
}

// CodeOf returns the code of the outermost domain error in the chain.
func CodeOf(err error) (Code, bool) {
	var de *Error
	if errors.As(err, &de) {
		return de.Code, true
	}
	return "", false
}

// HasCode reports whether the outermost domain error in the chain has code.
func HasCode(err error, code Code) bool {
	c, ok := CodeOf(err)
	return ok && c == code
}

// Message returns the caller-safe message of the outermost domain error, or
// an empty string for uncoded errors.
func Message(err error) string {
	var de *Error
	if errors.As(err, &de) {
		return de.Message
	}
	return ""
}
