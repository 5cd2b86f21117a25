package models

import (
	"time"

	"github.com/google/uuid"
)

// RefreshToken represents one issued refresh token in the store. RotationID
// is the token's jti claim; it is unique across all records and is what the
// user's LastRefreshID pointer refers to. Deactivation is permanent: rotated
// or revoked tokens stay in the table with IsActive=false.
type RefreshToken struct {
	ID         uuid.UUID `json:"id" db:"id"`
	RotationID string    `json:"rotation_id" db:"rotation_id"`
	UserID     uuid.UUID `json:"user_id" db:"user_id"`
	IsActive   bool      `json:"is_active" db:"is_active"`
	ExpiresAt  time.Time `json:"expires_at" db:"expires_at"`
	CreatedAt  time.Time `json:"created_at" db:"created_at"`
}

// TableName returns the table name for the RefreshToken model
func (RefreshToken) TableName() string {
	return "refresh_tokens"
}

// NewRefreshToken creates a new active RefreshToken instance
func NewRefreshToken(userID uuid.UUID, rotationID string, expiresAt time.Time) *RefreshToken {
	return &RefreshToken{
		ID:         uuid.New(),
		RotationID: rotationID,
		UserID:     userID,
		IsActive:   true,
		ExpiresAt:  expiresAt,
		CreatedAt:  time.Now(),
	}
}

// Usable reports whether the token is still active and unexpired at now.
func (t *RefreshToken) Usable(now time.Time) bool {
	return t.IsActive && t.ExpiresAt.After(now)
}
