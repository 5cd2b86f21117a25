package services

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/upb/auth-control-plane/backend/config"
	"github.com/upb/auth-control-plane/backend/models"
	"github.com/upb/auth-control-plane/backend/repositories"
)

// TokenPair is the access/refresh pair returned by login and refresh.
type TokenPair struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	TokenType    string `json:"token_type"`
}

// TokenTypeBearer is the only token type this service issues
const TokenTypeBearer = "bearer"

// RotationService orchestrates refresh token issuance, rotation with reuse
// detection, and revocation.
//
// Each user has at most one live rotation ID, stored both as the active row
// in refresh_tokens and as the last_refresh_id pointer on the user row. The
// pointer is advanced with a compare-and-swap, so two concurrent refreshes
// of the same token cannot both win.
type RotationService struct {
	users                repositories.UserRepository
	tokens               repositories.RefreshTokenRepository
	txManager            repositories.TransactionManager
	codec                *TokenCodec
	verifier             *CredentialVerifier
	revokeLineageOnReuse bool
	logger               *zap.Logger
}

// NewRotationService creates a new RotationService instance
func NewRotationService(
	users repositories.UserRepository,
	tokens repositories.RefreshTokenRepository,
	txManager repositories.TransactionManager,
	codec *TokenCodec,
	verifier *CredentialVerifier,
	cfg config.AuthConfig,
	logger *zap.Logger,
) *RotationService {
	return &RotationService{
		users:                users,
		tokens:               tokens,
		txManager:            txManager,
		codec:                codec,
		verifier:             verifier,
		revokeLineageOnReuse: cfg.RevokeLineageOnReuse,
		logger:               logger,
	}
}

// IssueOnLogin authenticates the credentials and issues a fresh token pair.
// Unknown email and wrong password both fail with ErrInvalidCredentials.
func (s *RotationService) IssueOnLogin(ctx context.Context, email, password string) (*TokenPair, *models.User, error) {
	user, err := s.users.GetByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, repositories.ErrNotFound) {
			return nil, nil, ErrInvalidCredentials
		}
		return nil, nil, WrapInternal("failed to load user", err)
	}

	if err := s.verifier.VerifyPassword(password, user.HashedPassword); err != nil {
		return nil, nil, ErrInvalidCredentials
	}

	pair, err := s.issue(ctx, user)
	if err != nil {
		return nil, nil, err
	}

	s.logger.Info("login issued token pair", zap.String("user_id", user.ID.String()))
	return pair, user, nil
}

// issue mints a new rotation ID, signs the pair, and persists the refresh
// record together with the pointer update in one transaction.
func (s *RotationService) issue(ctx context.Context, user *models.User) (*TokenPair, error) {
	now := time.Now().UTC()
	rotationID := uuid.NewString()

	access, err := s.codec.SignAccess(user.ID, now)
	if err != nil {
		return nil, err
	}
	refresh, err := s.codec.SignRefresh(user.ID, rotationID, now)
	if err != nil {
		return nil, err
	}

	record := models.NewRefreshToken(user.ID, rotationID, now.Add(s.codec.RefreshTTL()))

	err = WithTransaction(ctx, s.txManager, func(txCtx context.Context, _ repositories.Transaction) error {
		if err := s.tokens.Create(txCtx, record); err != nil {
			return WrapInternal("failed to persist refresh token", err)
		}
		if err := s.users.SetLastRefreshID(txCtx, user.ID, rotationID); err != nil {
			return WrapInternal("failed to set rotation pointer", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	user.LastRefreshID = rotationID

	return &TokenPair{
		AccessToken:  access,
		RefreshToken: refresh,
		TokenType:    TokenTypeBearer,
	}, nil
}

// Refresh rotates a presented refresh token into a new pair.
//
// The presented rotation ID must match the user's pointer exactly (an empty
// pointer matches nothing) AND the store record must independently be active
// and unexpired. Any mismatch is reuse: the presented record is deactivated
// in its own committed transaction, the pointer is left untouched, and the
// call fails with ErrTokenReused. The rotation itself commits the old
// record's deactivation, the new record, and the pointer CAS as one unit;
// a failed CAS means a concurrent refresh already won.
func (s *RotationService) Refresh(ctx context.Context, rawRefresh string) (*TokenPair, *models.User, error) {
	claims, err := s.codec.Parse(rawRefresh)
	if err != nil {
		return nil, nil, err
	}
	if claims.RotationID == "" {
		return nil, nil, ErrInvalidPayload
	}

	user, err := s.users.GetByID(ctx, claims.Subject)
	if err != nil {
		if errors.Is(err, repositories.ErrNotFound) {
			return nil, nil, ErrUserGone
		}
		return nil, nil, WrapInternal("failed to load user", err)
	}

	if user.LastRefreshID == "" || user.LastRefreshID != claims.RotationID {
		return nil, nil, s.handleReuse(ctx, user, claims.RotationID)
	}

	// The record must hold up on its own even when the pointer matches. It
	// may have expired or been deactivated out-of-band.
	valid, err := s.tokens.IsValid(ctx, claims.RotationID, time.Now().UTC())
	if err != nil {
		return nil, nil, WrapInternal("failed to check refresh token", err)
	}
	if !valid {
		return nil, nil, s.handleReuse(ctx, user, claims.RotationID)
	}

	now := time.Now().UTC()
	newID := uuid.NewString()

	access, err := s.codec.SignAccess(user.ID, now)
	if err != nil {
		return nil, nil, err
	}
	refresh, err := s.codec.SignRefresh(user.ID, newID, now)
	if err != nil {
		return nil, nil, err
	}

	record := models.NewRefreshToken(user.ID, newID, now.Add(s.codec.RefreshTTL()))

	err = WithTransaction(ctx, s.txManager, func(txCtx context.Context, _ repositories.Transaction) error {
		if err := s.tokens.Deactivate(txCtx, claims.RotationID); err != nil {
			return WrapInternal("failed to deactivate refresh token", err)
		}
		if err := s.tokens.Create(txCtx, record); err != nil {
			return WrapInternal("failed to persist refresh token", err)
		}

		swapped, err := s.users.CompareAndSwapLastRefreshID(txCtx, user.ID, claims.RotationID, newID)
		if err != nil {
			return WrapInternal("failed to advance rotation pointer", err)
		}
		if !swapped {
			// A concurrent refresh advanced the pointer first. Roll back;
			// the winner's rotation stands.
			s.logger.Warn("lost rotation race",
				zap.String("user_id", user.ID.String()),
				zap.String("rotation_id", claims.RotationID))
			return newReuseError(user.ID, claims.RotationID)
		}
		return nil
	})
	if err != nil {
		return nil, nil, err
	}

	user.LastRefreshID = newID

	s.logger.Info("refresh token rotated",
		zap.String("user_id", user.ID.String()),
		zap.String("rotation_id", newID))

	return &TokenPair{
		AccessToken:  access,
		RefreshToken: refresh,
		TokenType:    TokenTypeBearer,
	}, user, nil
}

// handleReuse records the reuse side effect and builds the caller's error.
// The deactivation runs in its own transaction so it commits even though the
// refresh operation fails. The rotation pointer is never cleared here: a
// replayed stale token must not lock out the holder of the current one.
func (s *RotationService) handleReuse(ctx context.Context, user *models.User, rotationID string) error {
	s.logger.Warn("refresh token reuse detected",
		zap.String("user_id", user.ID.String()),
		zap.String("rotation_id", rotationID),
		zap.Bool("lineage_revoked", s.revokeLineageOnReuse))

	err := WithTransaction(ctx, s.txManager, func(txCtx context.Context, _ repositories.Transaction) error {
		if s.revokeLineageOnReuse {
			_, err := s.tokens.DeactivateAllForUser(txCtx, user.ID)
			return err
		}
		return s.tokens.Deactivate(txCtx, rotationID)
	})
	if err != nil {
		// The refresh fails regardless of whether this write landed.
		s.logger.Error("failed to deactivate refresh token on reuse",
			zap.Error(err),
			zap.String("user_id", user.ID.String()))
	}

	return newReuseError(user.ID, rotationID)
}

// newReuseError builds a TokenReused error carrying the identifiers the
// boundary needs for its audit record.
func newReuseError(userID uuid.UUID, rotationID string) error {
	return NewDomainError(ErrorTypeTokenReused, "Refresh token invalid or reused", nil).
		WithDetail("user_id", userID.String()).
		WithDetail("rotation_id", rotationID)
}

// Logout revokes every active refresh token for the user and clears the
// rotation pointer, as one transaction. Idempotent: a second logout finds
// nothing active and still succeeds.
func (s *RotationService) Logout(ctx context.Context, user *models.User) error {
	err := WithTransaction(ctx, s.txManager, func(txCtx context.Context, _ repositories.Transaction) error {
		if _, err := s.tokens.DeactivateAllForUser(txCtx, user.ID); err != nil {
			return WrapInternal("failed to deactivate refresh tokens", err)
		}
		if err := s.users.SetLastRefreshID(txCtx, user.ID, ""); err != nil {
			if errors.Is(err, repositories.ErrNotFound) {
				return ErrUserGone
			}
			return WrapInternal("failed to clear rotation pointer", err)
		}
		return nil
	})
	if err != nil {
		return err
	}

	user.LastRefreshID = ""

	s.logger.Info("user logged out", zap.String("user_id", user.ID.String()))
	return nil
}
