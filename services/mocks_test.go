package services

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/mock"

	"github.com/upb/auth-control-plane/backend/models"
	"github.com/upb/auth-control-plane/backend/repositories"
)

// MockUserRepository is a mock implementation of UserRepository
type MockUserRepository struct {
	mock.Mock
}

func (m *MockUserRepository) Create(ctx context.Context, user *models.User) error {
	args := m.Called(ctx, user)
	return args.Error(0)
}

func (m *MockUserRepository) GetByID(ctx context.Context, id uuid.UUID) (*models.User, error) {
	args := m.Called(ctx, id)
	if user := args.Get(0); user != nil {
		return user.(*models.User), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *MockUserRepository) GetByEmail(ctx context.Context, email string) (*models.User, error) {
	args := m.Called(ctx, email)
	if user := args.Get(0); user != nil {
		return user.(*models.User), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *MockUserRepository) List(ctx context.Context, limit, offset int) ([]*models.User, error) {
	args := m.Called(ctx, limit, offset)
	if users := args.Get(0); users != nil {
		return users.([]*models.User), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *MockUserRepository) Update(ctx context.Context, user *models.User) error {
	args := m.Called(ctx, user)
	return args.Error(0)
}

func (m *MockUserRepository) SetLastRefreshID(ctx context.Context, id uuid.UUID, rotationID string) error {
	args := m.Called(ctx, id, rotationID)
	return args.Error(0)
}

func (m *MockUserRepository) CompareAndSwapLastRefreshID(ctx context.Context, id uuid.UUID, old, new string) (bool, error) {
	args := m.Called(ctx, id, old, new)
	return args.Bool(0), args.Error(1)
}

func (m *MockUserRepository) SetRole(ctx context.Context, id uuid.UUID, role models.UserRole) error {
	args := m.Called(ctx, id, role)
	return args.Error(0)
}

func (m *MockUserRepository) Delete(ctx context.Context, id uuid.UUID) error {
	args := m.Called(ctx, id)
	return args.Error(0)
}

func (m *MockUserRepository) DeleteByEmailPattern(ctx context.Context, pattern string) (int64, error) {
	args := m.Called(ctx, pattern)
	return args.Get(0).(int64), args.Error(1)
}

func (m *MockUserRepository) WithTx(tx repositories.Transaction) repositories.UserRepository {
	args := m.Called(tx)
	return args.Get(0).(repositories.UserRepository)
}

// MockRefreshTokenRepository is a mock implementation of RefreshTokenRepository
type MockRefreshTokenRepository struct {
	mock.Mock
}

func (m *MockRefreshTokenRepository) Create(ctx context.Context, token *models.RefreshToken) error {
	args := m.Called(ctx, token)
	return args.Error(0)
}

func (m *MockRefreshTokenRepository) GetByRotationID(ctx context.Context, rotationID string) (*models.RefreshToken, error) {
	args := m.Called(ctx, rotationID)
	if token := args.Get(0); token != nil {
		return token.(*models.RefreshToken), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *MockRefreshTokenRepository) Deactivate(ctx context.Context, rotationID string) error {
	args := m.Called(ctx, rotationID)
	return args.Error(0)
}

func (m *MockRefreshTokenRepository) DeactivateAllForUser(ctx context.Context, userID uuid.UUID) (int64, error) {
	args := m.Called(ctx, userID)
	return args.Get(0).(int64), args.Error(1)
}

func (m *MockRefreshTokenRepository) IsValid(ctx context.Context, rotationID string, now time.Time) (bool, error) {
	args := m.Called(ctx, rotationID, now)
	return args.Bool(0), args.Error(1)
}

func (m *MockRefreshTokenRepository) ListValidForUser(ctx context.Context, userID uuid.UUID, now time.Time) ([]*models.RefreshToken, error) {
	args := m.Called(ctx, userID, now)
	if tokens := args.Get(0); tokens != nil {
		return tokens.([]*models.RefreshToken), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *MockRefreshTokenRepository) DeleteExpiredBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	args := m.Called(ctx, cutoff)
	return args.Get(0).(int64), args.Error(1)
}

func (m *MockRefreshTokenRepository) WithTx(tx repositories.Transaction) repositories.RefreshTokenRepository {
	args := m.Called(tx)
	return args.Get(0).(repositories.RefreshTokenRepository)
}

// passthroughTxManager satisfies TransactionManager for tests that exercise
// flows through WithTransaction without caring about transaction mechanics.
// Every Begin hands out a fresh passthroughTx that records its outcome.
type passthroughTxManager struct {
	beginErr error
	txs      []*passthroughTx
}

func (m *passthroughTxManager) Begin(ctx context.Context) (repositories.Transaction, error) {
	if m.beginErr != nil {
		return nil, m.beginErr
	}
	tx := &passthroughTx{ctx: ctx}
	m.txs = append(m.txs, tx)
	return tx, nil
}

func (m *passthroughTxManager) InTransaction(ctx context.Context, fn func(ctx context.Context, tx repositories.Transaction) error) error {
	tx, err := m.Begin(ctx)
	if err != nil {
		return err
	}
	if err := fn(tx.Context(), tx); err != nil {
		_ = tx.Rollback()
		return err
	}
	return tx.Commit()
}

// committed reports whether every started transaction committed.
func (m *passthroughTxManager) committed() bool {
	for _, tx := range m.txs {
		if !tx.committed {
			return false
		}
	}
	return len(m.txs) > 0
}

// rolledBack reports whether any started transaction rolled back.
func (m *passthroughTxManager) rolledBack() bool {
	for _, tx := range m.txs {
		if tx.rolledBack {
			return true
		}
	}
	return false
}

type passthroughTx struct {
	ctx        context.Context
	committed  bool
	rolledBack bool
}

func (t *passthroughTx) Commit() error {
	t.committed = true
	return nil
}

func (t *passthroughTx) Rollback() error {
	t.rolledBack = true
	return nil
}

func (t *passthroughTx) Context() context.Context {
	return t.ctx
}
