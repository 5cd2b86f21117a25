package services

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewDomainError(t *testing.T) {
	baseErr := errors.New("base error")
	domainErr := NewDomainError(ErrorTypeNotFound, "resource not found", baseErr)

	assert.Equal(t, ErrorTypeNotFound, domainErr.Type)
	assert.Equal(t, "resource not found", domainErr.Message)
	assert.Equal(t, baseErr, domainErr.Err)
	assert.NotNil(t, domainErr.Details)
}

func TestDomainError_Error(t *testing.T) {
	tests := []struct {
		name    string
		err     *DomainError
		wantMsg string
	}{
		{
			name: "error with wrapped error",
			err: &DomainError{
				Type:    ErrorTypeNotFound,
				Message: "user not found",
				Err:     errors.New("db error"),
			},
			wantMsg: "not_found: user not found (db error)",
		},
		{
			name: "error without wrapped error",
			err: &DomainError{
				Type:    ErrorTypeValidation,
				Message: "invalid input",
				Err:     nil,
			},
			wantMsg: "validation: invalid input",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.wantMsg, tt.err.Error())
		})
	}
}

func TestDomainError_Unwrap(t *testing.T) {
	baseErr := errors.New("base error")
	domainErr := NewDomainError(ErrorTypeInternal, "internal error", baseErr)

	unwrapped := errors.Unwrap(domainErr)
	assert.Equal(t, baseErr, unwrapped)
}

func TestDomainError_Is(t *testing.T) {
	tests := []struct {
		name   string
		err    error
		target error
		want   bool
	}{
		{
			name:   "same error type",
			err:    NewDomainError(ErrorTypeNotFound, "not found", nil),
			target: ErrUserNotFound,
			want:   true,
		},
		{
			name:   "different error type",
			err:    NewDomainError(ErrorTypeValidation, "validation", nil),
			target: ErrUserNotFound,
			want:   false,
		},
		{
			name:   "not a domain error",
			err:    NewDomainError(ErrorTypeNotFound, "not found", nil),
			target: errors.New("regular error"),
			want:   false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, errors.Is(tt.err, tt.target))
		})
	}
}

func TestDomainError_WithDetail(t *testing.T) {
	err := NewDomainError(ErrorTypeValidation, "validation error", nil)

	err.WithDetail("field", "email").WithDetail("value", "invalid-email")

	assert.Equal(t, "email", err.Details["field"])
	assert.Equal(t, "invalid-email", err.Details["value"])
}

func TestIsNotFoundError(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"not found error", ErrUserNotFound, true},
		{"wrapped not found", fmt.Errorf("wrapped: %w", ErrTokenNotFound), true},
		{"validation error", ErrInvalidInput, false},
		{"regular error", errors.New("regular"), false},
		{"nil error", nil, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, IsNotFoundError(tt.err))
		})
	}
}

func TestIsValidationError(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"validation error", ErrInvalidInput, true},
		{"wrapped validation", fmt.Errorf("wrapped: %w", ErrInvalidEmail), true},
		{"not found error", ErrUserNotFound, false},
		{"regular error", errors.New("regular"), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, IsValidationError(tt.err))
		})
	}
}

func TestIsInvalidCredentialsError(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"invalid credentials", ErrInvalidCredentials, true},
		{"wrapped invalid credentials", fmt.Errorf("wrapped: %w", ErrInvalidCredentials), true},
		{"unauthenticated error", ErrUnauthenticated, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, IsInvalidCredentialsError(tt.err))
		})
	}
}

func TestIsDuplicateEmailError(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"duplicate email", ErrDuplicateEmail, true},
		{"validation error", ErrInvalidEmail, false},
		{"conflict error", ErrConcurrentUpdate, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, IsDuplicateEmailError(tt.err))
		})
	}
}

func TestTokenErrorCheckersAreDisjoint(t *testing.T) {
	// Each token failure mode maps to exactly one checker so handlers can
	// produce the right response message.
	tests := []struct {
		name      string
		err       error
		malformed bool
		expired   bool
		payload   bool
		gone      bool
		reused    bool
	}{
		{"malformed", ErrTokenMalformed, true, false, false, false, false},
		{"expired", ErrTokenExpired, false, true, false, false, false},
		{"invalid payload", ErrInvalidPayload, false, false, true, false, false},
		{"user gone", ErrUserGone, false, false, false, true, false},
		{"reused", ErrTokenReused, false, false, false, false, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.malformed, IsTokenMalformedError(tt.err))
			assert.Equal(t, tt.expired, IsTokenExpiredError(tt.err))
			assert.Equal(t, tt.payload, IsInvalidPayloadError(tt.err))
			assert.Equal(t, tt.gone, IsUserGoneError(tt.err))
			assert.Equal(t, tt.reused, IsTokenReusedError(tt.err))
		})
	}
}

func TestIsUnauthenticatedError(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"unauthenticated error", ErrUnauthenticated, true},
		{"invalid credentials", ErrInvalidCredentials, false},
		{"validation error", ErrInvalidInput, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, IsUnauthenticatedError(tt.err))
		})
	}
}

func TestIsForbiddenError(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"forbidden error", ErrForbidden, true},
		{"unauthenticated error", ErrUnauthenticated, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, IsForbiddenError(tt.err))
		})
	}
}

func TestIsRateLimitError(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"rate limit error", ErrRateLimitExceeded, true},
		{"requests per minute", ErrRequestsPerMinuteExceeded, true},
		{"requests per hour", ErrRequestsPerHourExceeded, true},
		{"internal error", ErrInternal, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, IsRateLimitError(tt.err))
		})
	}
}

func TestIsConflictError(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"concurrent update", ErrConcurrentUpdate, true},
		{"duplicate email is its own type", ErrDuplicateEmail, false},
		{"validation error", ErrInvalidInput, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, IsConflictError(tt.err))
		})
	}
}

func TestIsInternalError(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"internal error", ErrInternal, true},
		{"database error", ErrDatabaseError, true},
		{"transaction failed", ErrTransactionFailed, true},
		{"unavailable error", ErrDatabaseUnavailable, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, IsInternalError(tt.err))
		})
	}
}

func TestIsUnavailableError(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"database unavailable", ErrDatabaseUnavailable, true},
		{"internal error", ErrInternal, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, IsUnavailableError(tt.err))
		})
	}
}

func TestGetErrorType(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want ErrorType
	}{
		{"not found", ErrUserNotFound, ErrorTypeNotFound},
		{"validation", ErrInvalidInput, ErrorTypeValidation},
		{"token reused", ErrTokenReused, ErrorTypeTokenReused},
		{"rate limit", ErrRateLimitExceeded, ErrorTypeRateLimit},
		{"regular error", errors.New("regular"), ErrorType("")},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, GetErrorType(tt.err))
		})
	}
}

func TestGetErrorDetails(t *testing.T) {
	err := NewDomainError(ErrorTypeValidation, "validation error", nil)
	err.WithDetail("field", "email").WithDetail("reason", "invalid format")

	details := GetErrorDetails(err)
	require.NotNil(t, details)
	assert.Equal(t, "email", details["field"])
	assert.Equal(t, "invalid format", details["reason"])

	regularErr := errors.New("regular error")
	assert.Nil(t, GetErrorDetails(regularErr))
}

func TestClientFacingMessages(t *testing.T) {
	// These messages are written verbatim into HTTP error responses, so a
	// wording change here is an API change.
	tests := []struct {
		err     error
		message string
	}{
		{ErrInvalidCredentials, "Incorrect email or password"},
		{ErrDuplicateEmail, "Email already registered"},
		{ErrTokenMalformed, "Invalid refresh token"},
		{ErrTokenExpired, "Refresh token expired"},
		{ErrInvalidPayload, "Invalid token payload"},
		{ErrUserGone, "User no longer exists"},
		{ErrTokenReused, "Refresh token invalid or reused"},
		{ErrUnauthenticated, "Could not validate credentials"},
	}

	for _, tt := range tests {
		t.Run(tt.message, func(t *testing.T) {
			assert.Equal(t, tt.message, GetErrorMessage(tt.err))
		})
	}
}

func TestGetErrorMessage_PlainError(t *testing.T) {
	assert.Equal(t, "plain failure", GetErrorMessage(errors.New("plain failure")))
	assert.Equal(t, "", GetErrorMessage(nil))
}

func TestWrapError(t *testing.T) {
	baseErr := errors.New("base error")
	wrapped := WrapError(ErrorTypeInternal, "wrapped message", baseErr)

	var domainErr *DomainError
	require.True(t, errors.As(wrapped, &domainErr))
	assert.Equal(t, ErrorTypeInternal, domainErr.Type)
	assert.Equal(t, "wrapped message", domainErr.Message)
	assert.Equal(t, baseErr, errors.Unwrap(wrapped))
}

func TestWrapInternal(t *testing.T) {
	baseErr := errors.New("database connection failed")
	wrapped := WrapInternal("failed to connect", baseErr)

	assert.True(t, IsInternalError(wrapped))
	assert.Equal(t, baseErr, errors.Unwrap(wrapped))
}

func TestAllErrorVariablesAreDefined(t *testing.T) {
	// Test that all predefined error variables are properly initialized
	errorVars := []error{
		// Not Found
		ErrUserNotFound,
		ErrTokenNotFound,
		ErrAuditLogNotFound,

		// Validation
		ErrInvalidInput,
		ErrInvalidEmail,
		ErrInvalidRole,

		// Credentials
		ErrInvalidCredentials,
		ErrDuplicateEmail,

		// Tokens
		ErrTokenMalformed,
		ErrTokenExpired,
		ErrInvalidPayload,
		ErrUserGone,
		ErrTokenReused,

		// Authorization
		ErrUnauthenticated,
		ErrForbidden,

		// Rate Limit
		ErrRateLimitExceeded,
		ErrRequestsPerMinuteExceeded,
		ErrRequestsPerHourExceeded,

		// Conflict
		ErrConcurrentUpdate,

		// Internal
		ErrInternal,
		ErrDatabaseError,
		ErrTransactionFailed,

		// Unavailable
		ErrDatabaseUnavailable,
	}

	for _, err := range errorVars {
		assert.NotNil(t, err, "error variable should not be nil")
		assert.NotEmpty(t, err.Error(), "error should have a message")
	}
}

func TestErrorTypeCheckersCoverage(t *testing.T) {
	// Ensure all error types have corresponding checker functions
	typeCheckers := map[ErrorType]func(error) bool{
		ErrorTypeNotFound:           IsNotFoundError,
		ErrorTypeValidation:         IsValidationError,
		ErrorTypeInvalidCredentials: IsInvalidCredentialsError,
		ErrorTypeDuplicateEmail:     IsDuplicateEmailError,
		ErrorTypeTokenMalformed:     IsTokenMalformedError,
		ErrorTypeTokenExpired:       IsTokenExpiredError,
		ErrorTypeInvalidPayload:     IsInvalidPayloadError,
		ErrorTypeUserGone:           IsUserGoneError,
		ErrorTypeTokenReused:        IsTokenReusedError,
		ErrorTypeUnauthenticated:    IsUnauthenticatedError,
		ErrorTypeForbidden:          IsForbiddenError,
		ErrorTypeRateLimit:          IsRateLimitError,
		ErrorTypeConflict:           IsConflictError,
		ErrorTypeInternal:           IsInternalError,
		ErrorTypeUnavailable:        IsUnavailableError,
	}

	for errType, checker := range typeCheckers {
		t.Run(string(errType), func(t *testing.T) {
			err := NewDomainError(errType, "test error", nil)
			assert.True(t, checker(err), "checker should return true for %s", errType)
		})
	}
}
