package services

import (
	"context"
	"errors"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/upb/auth-control-plane/backend/config"
	"github.com/upb/auth-control-plane/backend/models"
	"github.com/upb/auth-control-plane/backend/repositories"
	"github.com/upb/auth-control-plane/backend/utils"
)

// UserService manages user accounts and role administration.
type UserService struct {
	users    repositories.UserRepository
	verifier *CredentialVerifier
	logger   *zap.Logger
}

// NewUserService creates a new UserService instance
func NewUserService(users repositories.UserRepository, verifier *CredentialVerifier, logger *zap.Logger) *UserService {
	return &UserService{
		users:    users,
		verifier: verifier,
		logger:   logger,
	}
}

// Register creates a standard user account
func (s *UserService) Register(ctx context.Context, email, password string) (*models.User, error) {
	return s.register(ctx, email, password, models.RoleStandard)
}

// RegisterWithRole creates an account with an explicit role. Admin path.
func (s *UserService) RegisterWithRole(ctx context.Context, email, password string, role models.UserRole) (*models.User, error) {
	if _, err := models.ParseUserRole(string(role)); err != nil {
		return nil, ErrInvalidRole
	}
	return s.register(ctx, email, password, role)
}

func (s *UserService) register(ctx context.Context, email, password string, role models.UserRole) (*models.User, error) {
	email = strings.TrimSpace(email)
	if err := utils.ValidateEmail(email); err != nil {
		return nil, ErrInvalidEmail
	}
	if password == "" {
		return nil, NewDomainError(ErrorTypeValidation, "password must not be empty", nil)
	}

	// Pre-check for the common duplicate case; the unique index on email
	// catches the race where two registrations pass this at once.
	if _, err := s.users.GetByEmail(ctx, email); err == nil {
		return nil, ErrDuplicateEmail
	} else if !errors.Is(err, repositories.ErrNotFound) {
		return nil, WrapInternal("failed to check existing email", err)
	}

	hash, err := s.verifier.HashPassword(password)
	if err != nil {
		return nil, err
	}

	user := models.NewUser(email, hash, role)
	if err := s.users.Create(ctx, user); err != nil {
		if errors.Is(err, repositories.ErrDuplicate) {
			return nil, ErrDuplicateEmail
		}
		return nil, WrapInternal("failed to create user", err)
	}

	s.logger.Info("user registered",
		zap.String("user_id", user.ID.String()),
		zap.String("role", string(user.Role)))

	return user, nil
}

// Get returns a user by ID
func (s *UserService) Get(ctx context.Context, id uuid.UUID) (*models.User, error) {
	user, err := s.users.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, repositories.ErrNotFound) {
			return nil, ErrUserNotFound
		}
		return nil, WrapInternal("failed to get user", err)
	}
	return user, nil
}

// GetByEmail returns a user by email
func (s *UserService) GetByEmail(ctx context.Context, email string) (*models.User, error) {
	user, err := s.users.GetByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, repositories.ErrNotFound) {
			return nil, ErrUserNotFound
		}
		return nil, WrapInternal("failed to get user by email", err)
	}
	return user, nil
}

// List returns users ordered by creation time, newest first.
// A non-positive limit falls back to 50; limits above 200 are capped.
func (s *UserService) List(ctx context.Context, limit, offset int) ([]*models.User, error) {
	if limit <= 0 {
		limit = 50
	}
	if limit > 200 {
		limit = 200
	}
	if offset < 0 {
		offset = 0
	}

	users, err := s.users.List(ctx, limit, offset)
	if err != nil {
		return nil, WrapInternal("failed to list users", err)
	}
	return users, nil
}

// DeleteByEmailPattern removes every non-admin user whose email matches the
// SQL LIKE pattern and returns the number of rows deleted. Admin accounts are
// never matched, whatever the pattern.
func (s *UserService) DeleteByEmailPattern(ctx context.Context, pattern string) (int64, error) {
	pattern = strings.TrimSpace(pattern)
	if pattern == "" {
		return 0, NewDomainError(ErrorTypeValidation, "pattern must not be empty", nil)
	}

	deleted, err := s.users.DeleteByEmailPattern(ctx, pattern)
	if err != nil {
		return 0, WrapInternal("failed to delete users by pattern", err)
	}

	s.logger.Info("users deleted by pattern",
		zap.String("pattern", pattern),
		zap.Int64("deleted", deleted))

	return deleted, nil
}

// ChangeRole updates a user's role
func (s *UserService) ChangeRole(ctx context.Context, id uuid.UUID, role models.UserRole) error {
	if _, err := models.ParseUserRole(string(role)); err != nil {
		return ErrInvalidRole
	}

	if err := s.users.SetRole(ctx, id, role); err != nil {
		if errors.Is(err, repositories.ErrNotFound) {
			return ErrUserNotFound
		}
		return WrapInternal("failed to change role", err)
	}

	s.logger.Info("user role changed",
		zap.String("user_id", id.String()),
		zap.String("role", string(role)))

	return nil
}

// SeedGuest creates the shared guest account at startup if it does not
// already exist. Safe to run on every boot and across replicas: a concurrent
// seed losing the unique-index race is treated as success.
func (s *UserService) SeedGuest(ctx context.Context, cfg config.SeedConfig) error {
	if !cfg.Enabled {
		return nil
	}

	if _, err := s.users.GetByEmail(ctx, cfg.GuestEmail); err == nil {
		s.logger.Debug("guest user already exists", zap.String("email", cfg.GuestEmail))
		return nil
	} else if !errors.Is(err, repositories.ErrNotFound) {
		return WrapInternal("failed to check guest user", err)
	}

	if _, err := s.register(ctx, cfg.GuestEmail, cfg.GuestPassword, models.RoleGuest); err != nil {
		if IsDuplicateEmailError(err) {
			return nil
		}
		return err
	}

	s.logger.Info("guest user seeded", zap.String("email", cfg.GuestEmail))
	return nil
}
