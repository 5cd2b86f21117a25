package services

import (
	"errors"
	"fmt"
)

// ErrorType represents the type/category of error
type ErrorType string

const (
	ErrorTypeNotFound           ErrorType = "not_found"
	ErrorTypeValidation         ErrorType = "validation"
	ErrorTypeInvalidCredentials ErrorType = "invalid_credentials"
	ErrorTypeDuplicateEmail     ErrorType = "duplicate_email"
	ErrorTypeTokenMalformed     ErrorType = "token_malformed"
	ErrorTypeTokenExpired       ErrorType = "token_expired"
	ErrorTypeInvalidPayload     ErrorType = "invalid_payload"
	ErrorTypeUserGone           ErrorType = "user_gone"
	ErrorTypeTokenReused        ErrorType = "token_reused"
	ErrorTypeUnauthenticated    ErrorType = "unauthenticated"
	ErrorTypeForbidden          ErrorType = "forbidden"
	ErrorTypeRateLimit          ErrorType = "rate_limit"
	ErrorTypeConflict           ErrorType = "conflict"
	ErrorTypeInternal           ErrorType = "internal"
	ErrorTypeUnavailable        ErrorType = "unavailable"
)

// DomainError represents a structured error with additional context
type DomainError struct {
	Type    ErrorType
	Message string
	Err     error
	Details map[string]interface{}
}

// Error implements the error interface
func (e *DomainError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s (%v)", e.Type, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Type, e.Message)
}

// Unwrap implements errors.Unwrap
func (e *DomainError) Unwrap() error {
	return e.Err
}

// Is implements errors.Is
func (e *DomainError) Is(target error) bool {
	t, ok := target.(*DomainError)
	if !ok {
		return false
	}
	return e.Type == t.Type
}

// WithDetail adds a detail to the error
func (e *DomainError) WithDetail(key string, value interface{}) *DomainError {
	if e.Details == nil {
		e.Details = make(map[string]interface{})
	}
	e.Details[key] = value
	return e
}

// NewDomainError creates a new domain error
func NewDomainError(errType ErrorType, message string, err error) *DomainError {
	return &DomainError{
		Type:    errType,
		Message: message,
		Err:     err,
		Details: make(map[string]interface{}),
	}
}

// Domain error variables

var (
	// Not Found Errors
	ErrUserNotFound     = NewDomainError(ErrorTypeNotFound, "user not found", nil)
	ErrTokenNotFound    = NewDomainError(ErrorTypeNotFound, "refresh token not found", nil)
	ErrAuditLogNotFound = NewDomainError(ErrorTypeNotFound, "audit log not found", nil)

	// Validation Errors
	ErrInvalidInput = NewDomainError(ErrorTypeValidation, "invalid input", nil)
	ErrInvalidEmail = NewDomainError(ErrorTypeValidation, "invalid email format", nil)
	ErrInvalidRole  = NewDomainError(ErrorTypeValidation, "invalid role", nil)

	// Credential Errors. The message is identical whether the email was
	// unknown or the password wrong, so callers cannot probe for accounts.
	ErrInvalidCredentials = NewDomainError(ErrorTypeInvalidCredentials, "Incorrect email or password", nil)
	ErrDuplicateEmail     = NewDomainError(ErrorTypeDuplicateEmail, "Email already registered", nil)

	// Token Errors. Messages are the client-facing strings; handlers write
	// them verbatim into the response body.
	ErrTokenMalformed = NewDomainError(ErrorTypeTokenMalformed, "Invalid refresh token", nil)
	ErrTokenExpired   = NewDomainError(ErrorTypeTokenExpired, "Refresh token expired", nil)
	ErrInvalidPayload = NewDomainError(ErrorTypeInvalidPayload, "Invalid token payload", nil)
	ErrUserGone       = NewDomainError(ErrorTypeUserGone, "User no longer exists", nil)
	ErrTokenReused    = NewDomainError(ErrorTypeTokenReused, "Refresh token invalid or reused", nil)

	// Authorization Errors
	ErrUnauthenticated = NewDomainError(ErrorTypeUnauthenticated, "Could not validate credentials", nil)
	ErrForbidden       = NewDomainError(ErrorTypeForbidden, "Operation not permitted", nil)

	// Rate Limit Errors
	ErrRateLimitExceeded         = NewDomainError(ErrorTypeRateLimit, "rate limit exceeded", nil)
	ErrRequestsPerMinuteExceeded = NewDomainError(ErrorTypeRateLimit, "requests per minute limit exceeded", nil)
	ErrRequestsPerHourExceeded   = NewDomainError(ErrorTypeRateLimit, "requests per hour limit exceeded", nil)

	// Conflict Errors
	ErrConcurrentUpdate = NewDomainError(ErrorTypeConflict, "concurrent update detected", nil)

	// Internal Errors
	ErrInternal          = NewDomainError(ErrorTypeInternal, "internal server error", nil)
	ErrDatabaseError     = NewDomainError(ErrorTypeInternal, "database error", nil)
	ErrTransactionFailed = NewDomainError(ErrorTypeInternal, "transaction failed", nil)

	// Unavailable Errors
	ErrDatabaseUnavailable = NewDomainError(ErrorTypeUnavailable, "database unavailable", nil)
)

// Error type checking helper functions

// IsNotFoundError checks if an error is a not found error
func IsNotFoundError(err error) bool {
	var domainErr *DomainError
	if errors.As(err, &domainErr) {
		return domainErr.Type == ErrorTypeNotFound
	}
	return false
}

// IsValidationError checks if an error is a validation error
func IsValidationError(err error) bool {
	var domainErr *DomainError
	if errors.As(err, &domainErr) {
		return domainErr.Type == ErrorTypeValidation
	}
	return false
}

// IsInvalidCredentialsError checks if an error is an invalid credentials error
func IsInvalidCredentialsError(err error) bool {
	var domainErr *DomainError
	if errors.As(err, &domainErr) {
		return domainErr.Type == ErrorTypeInvalidCredentials
	}
	return false
}

// IsDuplicateEmailError checks if an error is a duplicate email error
func IsDuplicateEmailError(err error) bool {
	var domainErr *DomainError
	if errors.As(err, &domainErr) {
		return domainErr.Type == ErrorTypeDuplicateEmail
	}
	return false
}

// IsTokenMalformedError checks if an error is a malformed token error
func IsTokenMalformedError(err error) bool {
	var domainErr *DomainError
	if errors.As(err, &domainErr) {
		return domainErr.Type == ErrorTypeTokenMalformed
	}
	return false
}

// IsTokenExpiredError checks if an error is an expired token error
func IsTokenExpiredError(err error) bool {
	var domainErr *DomainError
	if errors.As(err, &domainErr) {
		return domainErr.Type == ErrorTypeTokenExpired
	}
	return false
}

// IsInvalidPayloadError checks if an error is an invalid token payload error
func IsInvalidPayloadError(err error) bool {
	var domainErr *DomainError
	if errors.As(err, &domainErr) {
		return domainErr.Type == ErrorTypeInvalidPayload
	}
	return false
}

// IsUserGoneError checks if an error is a user gone error
func IsUserGoneError(err error) bool {
	var domainErr *DomainError
	if errors.As(err, &domainErr) {
		return domainErr.Type == ErrorTypeUserGone
	}
	return false
}

// IsTokenReusedError checks if an error is a token reuse error
func IsTokenReusedError(err error) bool {
	var domainErr *DomainError
	if errors.As(err, &domainErr) {
		return domainErr.Type == ErrorTypeTokenReused
	}
	return false
}

// IsUnauthenticatedError checks if an error is an unauthenticated error
func IsUnauthenticatedError(err error) bool {
	var domainErr *DomainError
	if errors.As(err, &domainErr) {
		return domainErr.Type == ErrorTypeUnauthenticated
	}
	return false
}

// IsForbiddenError checks if an error is a forbidden error
func IsForbiddenError(err error) bool {
	var domainErr *DomainError
	if errors.As(err, &domainErr) {
		return domainErr.Type == ErrorTypeForbidden
	}
	return false
}

// IsRateLimitError checks if an error is a rate limit error
func IsRateLimitError(err error) bool {
	var domainErr *DomainError
	if errors.As(err, &domainErr) {
		return domainErr.Type == ErrorTypeRateLimit
	}
	return false
}

// IsConflictError checks if an error is a conflict error
func IsConflictError(err error) bool {
	var domainErr *DomainError
	if errors.As(err, &domainErr) {
		return domainErr.Type == ErrorTypeConflict
	}
	return false
}

// IsInternalError checks if an error is an internal error
func IsInternalError(err error) bool {
	var domainErr *DomainError
	if errors.As(err, &domainErr) {
		return domainErr.Type == ErrorTypeInternal
	}
	return false
}

// IsUnavailableError checks if an error is an unavailable error
func IsUnavailableError(err error) bool {
	var domainErr *DomainError
	if errors.As(err, &domainErr) {
		return domainErr.Type == ErrorTypeUnavailable
	}
	return false
}

// GetErrorType returns the ErrorType of a domain error, or empty string if not a domain error
func GetErrorType(err error) ErrorType {
	var domainErr *DomainError
	if errors.As(err, &domainErr) {
		return domainErr.Type
	}
	return ""
}

// GetErrorDetails returns the details map of a domain error, or nil if not a domain error
func GetErrorDetails(err error) map[string]interface{} {
	var domainErr *DomainError
	if errors.As(err, &domainErr) {
		return domainErr.Details
	}
	return nil
}

// GetErrorMessage returns the client-facing message of a domain error,
// falling back to the full error string for plain errors.
func GetErrorMessage(err error) string {
	var domainErr *DomainError
	if errors.As(err, &domainErr) {
		return domainErr.Message
	}
	if err != nil {
		return err.Error()
	}
	return ""
}

// WrapError wraps an error with additional context
func WrapError(errType ErrorType, message string, err error) error {
	return NewDomainError(errType, message, err)
}

// WrapInternal wraps an error as an internal error
func WrapInternal(message string, err error) error {
	return NewDomainError(ErrorTypeInternal, message, err)
}
