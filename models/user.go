package models

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// UserRole represents the role of a user. The set is closed: values outside
// the three constants below are rejected at every boundary.
type UserRole string

const (
	RoleStandard UserRole = "standard"
	RoleAdmin    UserRole = "admin"
	RoleGuest    UserRole = "guest"
)

// ParseUserRole validates a role string against the closed role set.
func ParseUserRole(s string) (UserRole, error) {
	switch UserRole(s) {
	case RoleStandard, RoleAdmin, RoleGuest:
		return UserRole(s), nil
	default:
		return "", fmt.Errorf("unknown role %q", s)
	}
}

// User represents a registered account. LastRefreshID is the rotation
// pointer: the jti of the most recently issued refresh token, or "" when no
// refresh token is outstanding (after logout, or before first login).
type User struct {
	ID             uuid.UUID `json:"id" db:"id"`
	Email          string    `json:"email" db:"email"`
	HashedPassword string    `json:"-" db:"hashed_password"`
	Role           UserRole  `json:"role" db:"role"`
	LastRefreshID  string    `json:"-" db:"last_refresh_id"`
	CreatedAt      time.Time `json:"created_at" db:"created_at"`
	UpdatedAt      time.Time `json:"updated_at" db:"updated_at"`
}

// TableName returns the table name for the User model
func (User) TableName() string {
	return "users"
}

// NewUser creates a new User instance
func NewUser(email, hashedPassword string, role UserRole) *User {
	now := time.Now()
	return &User{
		ID:             uuid.New(),
		Email:          email,
		HashedPassword: hashedPassword,
		Role:           role,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
}

// IsAdmin returns true if the user has admin role
func (u *User) IsAdmin() bool {
	return u.Role == RoleAdmin
}

// HasRole returns true if the user's role is one of the given roles.
func (u *User) HasRole(roles ...UserRole) bool {
	for _, r := range roles {
		if u.Role == r {
			return true
		}
	}
	return false
}
