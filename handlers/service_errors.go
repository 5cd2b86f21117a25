package handlers

import (
	"net/http"

	"go.uber.org/zap"

	"github.com/upb/auth-control-plane/backend/services"
	"github.com/upb/auth-control-plane/backend/utils"
)

// HandleServiceError maps domain errors to HTTP responses. Response bodies
// carry the domain error's client-facing message, never the wrapped cause.
func HandleServiceError(w http.ResponseWriter, err error, logger *zap.Logger) {
	if err == nil {
		return
	}

	message := services.GetErrorMessage(err)
	details := services.GetErrorDetails(err)

	switch {
	case services.IsInvalidCredentialsError(err),
		services.IsTokenExpiredError(err),
		services.IsTokenMalformedError(err),
		services.IsInvalidPayloadError(err),
		services.IsUserGoneError(err),
		services.IsTokenReusedError(err),
		services.IsUnauthenticatedError(err):
		// Every authentication failure carries the bearer challenge.
		w.Header().Set("WWW-Authenticate", "Bearer")
		if err := utils.WriteUnauthorized(w, message); err != nil {
			logger.Error("failed to write unauthorized response", zap.Error(err))
		}

	case services.IsDuplicateEmailError(err):
		if err := utils.WriteBadRequest(w, message, nil); err != nil {
			logger.Error("failed to write bad request response", zap.Error(err))
		}

	case services.IsValidationError(err):
		if err := utils.WriteBadRequest(w, message, details); err != nil {
			logger.Error("failed to write bad request response", zap.Error(err))
		}

	case services.IsForbiddenError(err):
		if err := utils.WriteForbidden(w, message); err != nil {
			logger.Error("failed to write forbidden response", zap.Error(err))
		}

	case services.IsNotFoundError(err):
		if err := utils.WriteNotFound(w, message); err != nil {
			logger.Error("failed to write not found response", zap.Error(err))
		}

	case services.IsRateLimitError(err):
		if err := utils.WriteTooManyRequests(w, message, details); err != nil {
			logger.Error("failed to write rate limit response", zap.Error(err))
		}

	case services.IsConflictError(err):
		if err := utils.WriteConflict(w, message, details); err != nil {
			logger.Error("failed to write conflict response", zap.Error(err))
		}

	case services.IsUnavailableError(err):
		logger.Error("service unavailable", zap.Error(err))
		if err := utils.WriteJSON(w, http.StatusServiceUnavailable, utils.ErrorResponse{
			Error:   "unavailable",
			Message: "Service temporarily unavailable",
		}); err != nil {
			logger.Error("failed to write unavailable response", zap.Error(err))
		}

	case services.IsInternalError(err):
		// Log the cause but return a generic message.
		logger.Error("internal server error", zap.Error(err))
		if err := utils.WriteInternalServerError(w, "An internal error occurred"); err != nil {
			logger.Error("failed to write internal error response", zap.Error(err))
		}

	default:
		logger.Error("unhandled error type",
			zap.Error(err),
			zap.String("error_type", string(services.GetErrorType(err))))
		if err := utils.WriteInternalServerError(w, "An unexpected error occurred"); err != nil {
			logger.Error("failed to write internal error response", zap.Error(err))
		}
	}
}

// HandleValidationError handles validation errors from request parsing
func HandleValidationError(w http.ResponseWriter, err error, logger *zap.Logger) {
	if utils.IsValidationError(err) {
		fields := utils.GetValidationFields(err)
		details := make(map[string]interface{})
		for k, v := range fields {
			details[k] = v
		}
		if err := utils.WriteBadRequest(w, "Validation failed", details); err != nil {
			logger.Error("failed to write validation error response", zap.Error(err))
		}
		return
	}

	if err := utils.WriteBadRequest(w, err.Error(), nil); err != nil {
		logger.Error("failed to write validation error response", zap.Error(err))
	}
}
