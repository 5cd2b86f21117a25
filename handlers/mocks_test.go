package handlers

import (
	"context"
	"encoding/json"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/upb/auth-control-plane/backend/models"
	"github.com/upb/auth-control-plane/backend/services"
	"github.com/upb/auth-control-plane/backend/services/audit"
	"github.com/upb/auth-control-plane/backend/utils"
)

// MockTokenIssuer is a mock implementation of TokenIssuer
type MockTokenIssuer struct {
	mock.Mock
}

func (m *MockTokenIssuer) IssueOnLogin(ctx context.Context, email, password string) (*services.TokenPair, *models.User, error) {
	args := m.Called(ctx, email, password)
	var pair *services.TokenPair
	if p := args.Get(0); p != nil {
		pair = p.(*services.TokenPair)
	}
	var user *models.User
	if u := args.Get(1); u != nil {
		user = u.(*models.User)
	}
	return pair, user, args.Error(2)
}

func (m *MockTokenIssuer) Refresh(ctx context.Context, rawRefresh string) (*services.TokenPair, *models.User, error) {
	args := m.Called(ctx, rawRefresh)
	var pair *services.TokenPair
	if p := args.Get(0); p != nil {
		pair = p.(*services.TokenPair)
	}
	var user *models.User
	if u := args.Get(1); u != nil {
		user = u.(*models.User)
	}
	return pair, user, args.Error(2)
}

func (m *MockTokenIssuer) Logout(ctx context.Context, user *models.User) error {
	args := m.Called(ctx, user)
	return args.Error(0)
}

// MockUserService is a mock implementation of UserRegistrar and
// UserAdministrator
type MockUserService struct {
	mock.Mock
}

func (m *MockUserService) Register(ctx context.Context, email, password string) (*models.User, error) {
	args := m.Called(ctx, email, password)
	if user := args.Get(0); user != nil {
		return user.(*models.User), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *MockUserService) RegisterWithRole(ctx context.Context, email, password string, role models.UserRole) (*models.User, error) {
	args := m.Called(ctx, email, password, role)
	if user := args.Get(0); user != nil {
		return user.(*models.User), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *MockUserService) List(ctx context.Context, limit, offset int) ([]*models.User, error) {
	args := m.Called(ctx, limit, offset)
	if users := args.Get(0); users != nil {
		return users.([]*models.User), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *MockUserService) DeleteByEmailPattern(ctx context.Context, pattern string) (int64, error) {
	args := m.Called(ctx, pattern)
	return args.Get(0).(int64), args.Error(1)
}

func (m *MockUserService) ChangeRole(ctx context.Context, id uuid.UUID, role models.UserRole) error {
	args := m.Called(ctx, id, role)
	return args.Error(0)
}

// MockAuditRecorder is a mock implementation of AuditRecorder
type MockAuditRecorder struct {
	mock.Mock
}

func (m *MockAuditRecorder) RegistrationSucceeded(user *models.User, meta audit.RequestMeta) {
	m.Called(user, meta)
}

func (m *MockAuditRecorder) LoginSucceeded(user *models.User, meta audit.RequestMeta) {
	m.Called(user, meta)
}

func (m *MockAuditRecorder) LoginFailed(email string, meta audit.RequestMeta) {
	m.Called(email, meta)
}

func (m *MockAuditRecorder) RefreshRotated(user *models.User, meta audit.RequestMeta) {
	m.Called(user, meta)
}

func (m *MockAuditRecorder) ReuseDetected(userID uuid.UUID, rotationID string, meta audit.RequestMeta) {
	m.Called(userID, rotationID, meta)
}

func (m *MockAuditRecorder) LogoutCompleted(user *models.User, meta audit.RequestMeta) {
	m.Called(user, meta)
}

func (m *MockAuditRecorder) AdminAction(actor *models.User, operation string, details interface{}, meta audit.RequestMeta) {
	m.Called(actor, operation, details, meta)
}

// newTestUser builds a persisted-looking user for handler tests.
func newTestUser(email string, role models.UserRole) *models.User {
	return &models.User{
		ID:        uuid.New(),
		Email:     email,
		Role:      role,
		CreatedAt: time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC),
		UpdatedAt: time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC),
	}
}

// decodeErrorBody decodes the structured error envelope from a response.
func decodeErrorBody(t *testing.T, w *httptest.ResponseRecorder) utils.ErrorResponse {
	t.Helper()
	var body utils.ErrorResponse
	require.NoError(t, json.NewDecoder(w.Body).Decode(&body))
	return body
}
