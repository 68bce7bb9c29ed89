// Package dErrors provides coded domain errors shared across services.
//
// Services return these so transports can map outcomes to status codes without
// inspecting error strings. Stores return sentinel errors (pkg/platform/sentinel)
// and services translate them into coded errors at the boundary.
package dErrors

import (
	"errors"
	"fmt"
	"net/http"
)

// Code classifies a domain error.
type Code string

const (
	// CodeInvalidInput marks malformed input (bad national ID format, empty
	// fields). Never retried by the system.
	CodeInvalidInput Code = "invalid_input"

	// CodeNotFound marks lookups for entities that do not exist.
	CodeNotFound Code = "not_found"

	// CodeDuplicate marks operations that would violate a uniqueness
	// invariant (an active credential already exists for the pair).
	CodeDuplicate Code = "duplicate"

	// CodeNotEligible marks precondition failures on otherwise well-formed
	// requests (subject not identity-verified, issuer does not own the
	// achievement).
	CodeNotEligible Code = "not_eligible"

	// CodeExternalService marks failures of upstream collaborators
	// (registry, document verifier, liveness analyzer).
	CodeExternalService Code = "external_service"

	// CodeSignature marks HSM signing failures. Nothing is persisted when
	// issuance fails with this code.
	CodeSignature Code = "signature_failed"

	// CodeUnauthorized marks missing or invalid caller credentials.
	CodeUnauthorized Code = "unauthorized"

	// CodeInternal marks unexpected infrastructure failures.
	CodeInternal Code = "internal"
)

// Error is a coded domain error with an optional wrapped cause.
type Error struct {
	Code    Code
	Message string
	cause   error
}

func (e *Error) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *Error) Unwrap() error { return e.cause }

// New constructs a coded error.
func New(code Code, message string) *Error {
	return &Error{Code: code, Message: message}
}

// Wrap constructs a coded error with a cause preserved for errors.Is/As.
func Wrap(code Code, message string, cause error) *Error {
	return &Error{Code: code, Message: message, cause: cause}
}

// HasCode reports whether err (or anything it wraps) carries the given code.
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

// ToHTTPStatus maps a code to the HTTP status used by all transports.
func ToHTTPStatus(code Code) int {
	switch code {
	case CodeInvalidInput:
		return http.StatusBadRequest
	case CodeNotFound:
		return http.StatusNotFound
	case CodeDuplicate:
		return http.StatusConflict
	case CodeNotEligible:
		return http.StatusUnprocessableEntity
	case CodeExternalService:
		return http.StatusBadGateway
	case CodeSignature:
		return http.StatusBadGateway
	case CodeUnauthorized:
		return http.StatusUnauthorized
	default:
		return http.StatusInternalServerError
	}
}
