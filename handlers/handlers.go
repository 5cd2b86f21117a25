package handlers

import (
	"encoding/json"
	"net/http"
	"time"

	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"

	"github.com/upb/auth-control-plane/backend/middleware"
	"github.com/upb/auth-control-plane/backend/models"
	"github.com/upb/auth-control-plane/backend/services/audit"
)

// AuditRecorder captures the audit emitters the HTTP boundary invokes.
// Recording is asynchronous and never fails the request.
type AuditRecorder interface {
	RegistrationSucceeded(user *models.User, meta audit.RequestMeta)
	LoginSucceeded(user *models.User, meta audit.RequestMeta)
	LoginFailed(email string, meta audit.RequestMeta)
	RefreshRotated(user *models.User, meta audit.RequestMeta)
	ReuseDetected(userID uuid.UUID, rotationID string, meta audit.RequestMeta)
	LogoutCompleted(user *models.User, meta audit.RequestMeta)
	AdminAction(actor *models.User, operation string, details interface{}, meta audit.RequestMeta)
}

// UserResponse is the public view of a user. The password hash and the
// rotation pointer never leave the service.
type UserResponse struct {
	ID        uuid.UUID       `json:"id"`
	Email     string          `json:"email"`
	Role      models.UserRole `json:"role"`
	CreatedAt string          `json:"created_at"`
}

// userToResponse converts a User model to a UserResponse
func userToResponse(u *models.User) UserResponse {
	return UserResponse{
		ID:        u.ID,
		Email:     u.Email,
		Role:      u.Role,
		CreatedAt: u.CreatedAt.UTC().Format(time.RFC3339),
	}
}

// respondJSON writes a JSON response
func respondJSON(w http.ResponseWriter, statusCode int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	_ = json.NewEncoder(w).Encode(data)
}

// requestMeta collects the request attribution attached to audit entries.
func requestMeta(r *http.Request) audit.RequestMeta {
	return audit.RequestMeta{
		RequestID: chimiddleware.GetReqID(r.Context()),
		IPAddress: middleware.ClientIP(r),
		UserAgent: r.UserAgent(),
	}
}
