package repositories

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/upb/auth-control-plane/backend/models"
)

// Sentinel errors returned by repository implementations. Services translate
// these into domain errors; handlers never see them directly.
var (
	ErrNotFound  = errors.New("record not found")
	ErrDuplicate = errors.New("duplicate record")
)

// TransactionManager manages database transactions
type TransactionManager interface {
	// Begin starts a new transaction
	Begin(ctx context.Context) (Transaction, error)

	// InTransaction executes a function within a transaction
	// Automatically commits if function succeeds, rolls back on error
	InTransaction(ctx context.Context, fn func(ctx context.Context, tx Transaction) error) error
}

// Transaction represents a database transaction
type Transaction interface {
	// Commit commits the transaction
	Commit() error

	// Rollback rolls back the transaction
	Rollback() error

	// Context returns the transaction context
	Context() context.Context
}

// UserRepository handles user data operations
type UserRepository interface {
	// Create creates a new user
	Create(ctx context.Context, user *models.User) error

	// GetByID retrieves a user by ID
	GetByID(ctx context.Context, id uuid.UUID) (*models.User, error)

	// GetByEmail retrieves a user by email
	GetByEmail(ctx context.Context, email string) (*models.User, error)

	// List retrieves all users with pagination
	List(ctx context.Context, limit, offset int) ([]*models.User, error)

	// Update updates a user's mutable fields (email, role)
	Update(ctx context.Context, user *models.User) error

	// SetLastRefreshID unconditionally sets the rotation pointer.
	// Pass "" to clear it (logout).
	SetLastRefreshID(ctx context.Context, id uuid.UUID, rotationID string) error

	// CompareAndSwapLastRefreshID atomically moves the rotation pointer from
	// old to new and reports whether the swap happened. A false return means
	// the pointer no longer held old: a concurrent rotation won.
	CompareAndSwapLastRefreshID(ctx context.Context, id uuid.UUID, old, new string) (bool, error)

	// SetRole changes a user's role
	SetRole(ctx context.Context, id uuid.UUID, role models.UserRole) error

	// Delete deletes a user
	Delete(ctx context.Context, id uuid.UUID) error

	// DeleteByEmailPattern deletes non-admin users whose email matches the
	// SQL LIKE pattern and returns the number of rows removed.
	DeleteByEmailPattern(ctx context.Context, pattern string) (int64, error)

	// WithTx returns a new repository instance bound to the transaction
	WithTx(tx Transaction) UserRepository
}

// RefreshTokenRepository handles refresh token data operations. Records are
// keyed by rotation ID (the token's jti claim) and are never physically
// removed on rotation, only flipped inactive.
type RefreshTokenRepository interface {
	// Create inserts a new active refresh token record
	Create(ctx context.Context, token *models.RefreshToken) error

	// GetByRotationID retrieves a refresh token by rotation ID
	GetByRotationID(ctx context.Context, rotationID string) (*models.RefreshToken, error)

	// Deactivate marks the token with the given rotation ID inactive.
	// Unknown rotation IDs are a no-op.
	Deactivate(ctx context.Context, rotationID string) error

	// DeactivateAllForUser marks every active token of the user inactive
	// and returns the number of tokens affected.
	DeactivateAllForUser(ctx context.Context, userID uuid.UUID) (int64, error)

	// IsValid reports whether the token exists, is active and is unexpired
	// at the given instant.
	IsValid(ctx context.Context, rotationID string, now time.Time) (bool, error)

	// ListValidForUser retrieves the user's active, unexpired tokens.
	ListValidForUser(ctx context.Context, userID uuid.UUID, now time.Time) ([]*models.RefreshToken, error)

	// DeleteExpiredBefore removes token records that expired before the
	// given cutoff and returns the number removed. Retention housekeeping.
	DeleteExpiredBefore(ctx context.Context, cutoff time.Time) (int64, error)

	// WithTx returns a new repository instance bound to the transaction
	WithTx(tx Transaction) RefreshTokenRepository
}

// AuditRepository handles audit log data operations
type AuditRepository interface {
	// Insert inserts a new audit log entry
	Insert(ctx context.Context, log *models.AuditLog) error

	// GetByID retrieves an audit log by ID
	GetByID(ctx context.Context, id uuid.UUID) (*models.AuditLog, error)

	// GetByUserID retrieves audit logs for a user with pagination
	GetByUserID(ctx context.Context, userID uuid.UUID, limit, offset int) ([]*models.AuditLog, error)

	// GetByAction retrieves audit logs by action type
	GetByAction(ctx context.Context, action models.AuditAction, limit, offset int) ([]*models.AuditLog, error)

	// GetByDateRange retrieves audit logs within a date range
	GetByDateRange(ctx context.Context, start, end time.Time, limit, offset int) ([]*models.AuditLog, error)

	// WithTx returns a new repository instance bound to the transaction
	WithTx(tx Transaction) AuditRepository
}

// Repositories aggregates all repository interfaces
type Repositories struct {
	Users         UserRepository
	RefreshTokens RefreshTokenRepository
	AuditLogs     AuditRepository
}
