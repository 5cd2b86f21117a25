package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"
	"github.com/upb/auth-control-plane/backend/models"
	"github.com/upb/auth-control-plane/backend/repositories"
	"go.uber.org/zap"
)

// RefreshTokenRepository implements the repositories.RefreshTokenRepository interface
type RefreshTokenRepository struct {
	db     *DB
	logger *zap.Logger
}

// NewRefreshTokenRepository creates a new refresh token repository
func NewRefreshTokenRepository(db *DB, logger *zap.Logger) repositories.RefreshTokenRepository {
	return &RefreshTokenRepository{
		db:     db,
		logger: logger,
	}
}

// Create inserts a new active refresh token record
func (r *RefreshTokenRepository) Create(ctx context.Context, token *models.RefreshToken) error {
	query := `
		INSERT INTO refresh_tokens (id, rotation_id, user_id, is_active, expires_at, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`

	executor := GetExecutor(ctx, r.db)
	_, err := executor.ExecContext(ctx, query,
		token.ID,
		token.RotationID,
		token.UserID,
		token.IsActive,
		token.ExpiresAt,
		token.CreatedAt,
	)

	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == uniqueViolation {
			return fmt.Errorf("rotation id %s: %w", token.RotationID, repositories.ErrDuplicate)
		}
		return fmt.Errorf("failed to create refresh token: %w", err)
	}

	r.logger.Debug("refresh token created",
		zap.String("user_id", token.UserID.String()),
		zap.String("rotation_id", token.RotationID),
	)
	return nil
}

// GetByRotationID retrieves a refresh token by rotation ID
func (r *RefreshTokenRepository) GetByRotationID(ctx context.Context, rotationID string) (*models.RefreshToken, error) {
	query := `
		SELECT id, rotation_id, user_id, is_active, expires_at, created_at
		FROM refresh_tokens
		WHERE rotation_id = $1
	`

	executor := GetExecutor(ctx, r.db)
	token := &models.RefreshToken{}

	err := executor.QueryRowContext(ctx, query, rotationID).Scan(
		&token.ID,
		&token.RotationID,
		&token.UserID,
		&token.IsActive,
		&token.ExpiresAt,
		&token.CreatedAt,
	)

	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("refresh token %s: %w", rotationID, repositories.ErrNotFound)
		}
		return nil, fmt.Errorf("failed to get refresh token: %w", err)
	}

	return token, nil
}

// Deactivate marks the token with the given rotation ID inactive.
// Unknown rotation IDs are a no-op: deactivation is used on failure paths
// where the record may never have existed.
func (r *RefreshTokenRepository) Deactivate(ctx context.Context, rotationID string) error {
	query := `
		UPDATE refresh_tokens
		SET is_active = false
		WHERE rotation_id = $1
	`

	executor := GetExecutor(ctx, r.db)
	result, err := executor.ExecContext(ctx, query, rotationID)
	if err != nil {
		return fmt.Errorf("failed to deactivate refresh token: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}

	r.logger.Debug("refresh token deactivated",
		zap.String("rotation_id", rotationID),
		zap.Int64("rows", rowsAffected),
	)
	return nil
}

// DeactivateAllForUser marks every active token of the user inactive
func (r *RefreshTokenRepository) DeactivateAllForUser(ctx context.Context, userID uuid.UUID) (int64, error) {
	query := `
		UPDATE refresh_tokens
		SET is_active = false
		WHERE user_id = $1 AND is_active = true
	`

	executor := GetExecutor(ctx, r.db)
	result, err := executor.ExecContext(ctx, query, userID)
	if err != nil {
		return 0, fmt.Errorf("failed to deactivate refresh tokens: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to get rows affected: %w", err)
	}

	r.logger.Debug("refresh tokens deactivated for user",
		zap.String("user_id", userID.String()),
		zap.Int64("count", rowsAffected),
	)
	return rowsAffected, nil
}

// IsValid reports whether the token exists, is active and is unexpired
func (r *RefreshTokenRepository) IsValid(ctx context.Context, rotationID string, now time.Time) (bool, error) {
	query := `
		SELECT EXISTS (
			SELECT 1 FROM refresh_tokens
			WHERE rotation_id = $1 AND is_active = true AND expires_at > $2
		)
	`

	executor := GetExecutor(ctx, r.db)
	var valid bool
	if err := executor.QueryRowContext(ctx, query, rotationID, now).Scan(&valid); err != nil {
		return false, fmt.Errorf("failed to check refresh token validity: %w", err)
	}

	return valid, nil
}

// ListValidForUser retrieves the user's active, unexpired tokens
func (r *RefreshTokenRepository) ListValidForUser(ctx context.Context, userID uuid.UUID, now time.Time) ([]*models.RefreshToken, error) {
	query := `
		SELECT id, rotation_id, user_id, is_active, expires_at, created_at
		FROM refresh_tokens
		WHERE user_id = $1 AND is_active = true AND expires_at > $2
		ORDER BY created_at DESC
	`

	executor := GetExecutor(ctx, r.db)
	rows, err := executor.QueryContext(ctx, query, userID, now)
	if err != nil {
		return nil, fmt.Errorf("failed to query refresh tokens: %w", err)
	}
	defer rows.Close()

	var tokens []*models.RefreshToken
	for rows.Next() {
		token := &models.RefreshToken{}
		err := rows.Scan(
			&token.ID,
			&token.RotationID,
			&token.UserID,
			&token.IsActive,
			&token.ExpiresAt,
			&token.CreatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan refresh token: %w", err)
		}
		tokens = append(tokens, token)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating refresh token rows: %w", err)
	}

	return tokens, nil
}

// DeleteExpiredBefore removes token records that expired before the cutoff
func (r *RefreshTokenRepository) DeleteExpiredBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	query := `DELETE FROM refresh_tokens WHERE expires_at < $1`

	executor := GetExecutor(ctx, r.db)
	result, err := executor.ExecContext(ctx, query, cutoff)
	if err != nil {
		return 0, fmt.Errorf("failed to delete expired refresh tokens: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to get rows affected: %w", err)
	}

	if rowsAffected > 0 {
		r.logger.Debug("expired refresh tokens removed", zap.Int64("count", rowsAffected))
	}
	return rowsAffected, nil
}

// WithTx returns a new repository instance bound to the transaction
func (r *RefreshTokenRepository) WithTx(tx repositories.Transaction) repositories.RefreshTokenRepository {
	return &RefreshTokenRepository{
		db:     r.db,
		logger: r.logger,
	}
}
