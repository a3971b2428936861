package domain

import (
	"errors"
	"fmt"
)

// Application error codes
const (
	EINVALID      = "invalid"             // Invalid input or validation failure
	EUNAUTHORIZED = "unauthorized"        // Authentication required
	EFORBIDDEN    = "forbidden"           // Permission denied
	ENOTFOUND     = "not_found"           // Resource not found
	ECONFLICT     = "conflict"            // Resource conflict (e.g., illegal state transition)
	ERATELIMIT    = "rate_limit"          // Rate limit exceeded
	EQUOTELIMIT   = "quote_limit"         // Monthly quote quota exceeded (clients render an upgrade prompt)
	EPAYEE        = "payee_not_onboarded" // Payee's connected account cannot receive charges
	EPAYMENT      = "payment"             // Payment required
	EUNAVAILABLE  = "unavailable"         // Upstream dependency unreachable; safe to retry
	EINTERNAL     = "internal"            // Internal server error
)

// Error represents an application error with structured information.
type Error struct {
	Code    string // Machine-readable error code
	Op      string // Operation that failed (e.g., "job.accept_quote")
	Message string // Human-readable message
	Err     error  // Underlying error
}

func (e *Error) Error() string {
	if e.Op != "" {
		return fmt.Sprintf("%s: %s", e.Op, e.Message)
	}
	return e.Message
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Errorf creates a new Error with the given code, operation, and formatted message.
func Errorf(code, op, format string, args ...interface{}) *Error {
	return &Error{
		Code:    code,
		Op:      op,
		Message: fmt.Sprintf(format, args...),
	}
}

// ErrorCode returns the code of the root error, or EINTERNAL if none.
func ErrorCode(err error) string {
	if err == nil {
		return ""
	}
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return EINTERNAL
}

// ErrorMessage returns the human-readable message of the error.
// Internal errors are reduced to a generic message so infrastructure
// details never reach the client.
func ErrorMessage(err error) string {
	if err == nil {
		return ""
	}
	var e *Error
	if errors.As(err, &e) && e.Code != EINTERNAL {
		return e.Message
	}
	return "An internal error occurred. Please try again later."
}

// ErrorOp returns the operation of the root error, if any.
func ErrorOp(err error) string {
	if err == nil {
		return ""
	}
	var e *Error
	if errors.As(err, &e) {
		return e.Op
	}
	return ""
}

// Convenience constructors for common error types

// NotFound creates a not found error.
func NotFound(op, resource, id string) *Error {
	return &Error{
		Code:    ENOTFOUND,
		Op:      op,
		Message: fmt.Sprintf("%s with ID %q not found", resource, id),
	}
}

// Invalid creates a validation error.
func Invalid(op, message string) *Error {
	return &Error{
		Code:    EINVALID,
		Op:      op,
		Message: message,
	}
}

// Unauthorized creates an authentication error.
func Unauthorized(op, message string) *Error {
	return &Error{
		Code:    EUNAUTHORIZED,
		Op:      op,
		Message: message,
	}
}

// Forbidden creates a permission error.
func Forbidden(op, message string) *Error {
	return &Error{
		Code:    EFORBIDDEN,
		Op:      op,
		Message: message,
	}
}

// Conflict creates a state-conflict error. Used when an operation is
// illegal in the entity's current status; the caller should reload and
// retry rather than overwrite.
func Conflict(op, message string) *Error {
	return &Error{
		Code:    ECONFLICT,
		Op:      op,
		Message: message,
	}
}

// Internal creates an internal error, wrapping the underlying error.
func Internal(err error, op, message string) *Error {
	return &Error{
		Code:    EINTERNAL,
		Op:      op,
		Message: message,
		Err:     err,
	}
}

// Unavailable creates a retryable dependency-failure error.
func Unavailable(err error, op, message string) *Error {
	return &Error{
		Code:    EUNAVAILABLE,
		Op:      op,
		Message: message,
		Err:     err,
	}
}

// RateLimit creates a rate limit error.
func RateLimit(op string) *Error {
	return &Error{
		Code:    ERATELIMIT,
		Op:      op,
		Message: "Too many requests. Please try again later.",
	}
}

// QuoteLimitExceeded creates a quota error for quote submission.
// The distinct code lets clients branch to an upgrade prompt.
func QuoteLimitExceeded(op string, used, limit int64) *Error {
	return &Error{
		Code:    EQUOTELIMIT,
		Op:      op,
		Message: fmt.Sprintf("Monthly quote limit reached (%d of %d used). Upgrade your plan to send more quotes.", used, limit),
	}
}

// PayeeNotOnboarded creates an error for checkout attempts against a
// tradesperson whose connected account cannot receive charges yet.
func PayeeNotOnboarded(op string) *Error {
	return &Error{
		Code:    EPAYEE,
		Op:      op,
		Message: "The tradesperson has not completed payment onboarding yet.",
	}
}
