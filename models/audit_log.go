package models

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// AuditAction represents the type of action being audited
type AuditAction string

const (
	AuditActionUserRegistered AuditAction = "user_registered"
	AuditActionLoginSucceeded AuditAction = "login_succeeded"
	AuditActionLoginFailed    AuditAction = "login_failed"
	AuditActionTokenRefreshed AuditAction = "token_refreshed"
	AuditActionReuseDetected  AuditAction = "refresh_reuse_detected"
	AuditActionLogout         AuditAction = "logout"
	AuditActionAdminAction    AuditAction = "admin_action"
)

// AuditLog represents an audit trail entry
type AuditLog struct {
	ID        uuid.UUID       `json:"id" db:"id"`
	UserID    *uuid.UUID      `json:"user_id,omitempty" db:"user_id"`
	Email     string          `json:"email" db:"email"`
	Action    AuditAction     `json:"action" db:"action"`
	Outcome   string          `json:"outcome" db:"outcome"` // success, failure
	Details   json.RawMessage `json:"details" db:"details"` // JSONB for flexible metadata
	IPAddress string          `json:"ip_address" db:"ip_address"`
	UserAgent string          `json:"user_agent" db:"user_agent"`
	RequestID string          `json:"request_id" db:"request_id"`
	Timestamp time.Time       `json:"timestamp" db:"timestamp"`
}

// TableName returns the table name for the AuditLog model
func (AuditLog) TableName() string {
	return "audit_logs"
}

// NewAuditLog creates a new AuditLog instance
func NewAuditLog(action AuditAction, outcome string) *AuditLog {
	return &AuditLog{
		ID:        uuid.New(),
		Action:    action,
		Outcome:   outcome,
		Timestamp: time.Now(),
	}
}

// WithUser sets the user ID
func (a *AuditLog) WithUser(userID uuid.UUID) *AuditLog {
	a.UserID = &userID
	return a
}

// WithEmail sets the email the event concerns. Failed logins carry the
// attempted email even though no user resolved.
func (a *AuditLog) WithEmail(email string) *AuditLog {
	a.Email = email
	return a
}

// WithDetails sets the details
func (a *AuditLog) WithDetails(details interface{}) *AuditLog {
	if data, err := json.Marshal(details); err == nil {
		a.Details = data
	}
	return a
}

// WithRequest sets request metadata
func (a *AuditLog) WithRequest(requestID, ipAddress, userAgent string) *AuditLog {
	a.RequestID = requestID
	a.IPAddress = ipAddress
	a.UserAgent = userAgent
	return a
}
