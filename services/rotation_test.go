package services

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/upb/auth-control-plane/backend/config"
	"github.com/upb/auth-control-plane/backend/models"
	"github.com/upb/auth-control-plane/backend/repositories"
)

type rotationFixture struct {
	users  *MockUserRepository
	tokens *MockRefreshTokenRepository
	txm    *passthroughTxManager
	codec  *TokenCodec
	svc    *RotationService
}

func newRotationFixture(t *testing.T, revokeLineage bool) *rotationFixture {
	t.Helper()

	codec := newTestCodec(t)
	users := new(MockUserRepository)
	tokens := new(MockRefreshTokenRepository)
	txm := &passthroughTxManager{}
	svc := NewRotationService(users, tokens, txm, codec, NewCredentialVerifier(),
		config.AuthConfig{RevokeLineageOnReuse: revokeLineage}, zap.NewNop())

	return &rotationFixture{users: users, tokens: tokens, txm: txm, codec: codec, svc: svc}
}

func userWithPassword(t *testing.T, password string) *models.User {
	t.Helper()

	hash, err := NewCredentialVerifier().HashPassword(password)
	require.NoError(t, err)
	return models.NewUser("alice@example.com", hash, models.RoleStandard)
}

func TestRotationService_IssueOnLogin(t *testing.T) {
	ctx := context.Background()

	t.Run("issues a pair and persists record and pointer together", func(t *testing.T) {
		f := newRotationFixture(t, false)
		user := userWithPassword(t, "pw1")

		f.users.On("GetByEmail", ctx, "alice@example.com").Return(user, nil)
		f.tokens.On("Create", mock.Anything, mock.MatchedBy(func(rt *models.RefreshToken) bool {
			return rt.UserID == user.ID && rt.IsActive && rt.RotationID != ""
		})).Return(nil)
		f.users.On("SetLastRefreshID", mock.Anything, user.ID, mock.AnythingOfType("string")).Return(nil)

		pair, gotUser, err := f.svc.IssueOnLogin(ctx, "alice@example.com", "pw1")

		require.NoError(t, err)
		assert.Same(t, user, gotUser)
		assert.Equal(t, TokenTypeBearer, pair.TokenType)
		assert.True(t, f.txm.committed())

		// The refresh token's jti is the freshly stored pointer.
		claims, err := f.codec.Parse(pair.RefreshToken)
		require.NoError(t, err)
		assert.Equal(t, user.ID, claims.Subject)
		assert.Equal(t, user.LastRefreshID, claims.RotationID)
		assert.NotEmpty(t, claims.RotationID)

		accessClaims, err := f.codec.Parse(pair.AccessToken)
		require.NoError(t, err)
		assert.Equal(t, user.ID, accessClaims.Subject)
		assert.Empty(t, accessClaims.RotationID)

		f.users.AssertExpectations(t)
		f.tokens.AssertExpectations(t)
	})

	t.Run("unknown email fails with invalid credentials", func(t *testing.T) {
		f := newRotationFixture(t, false)
		f.users.On("GetByEmail", ctx, "ghost@example.com").Return(nil, repositories.ErrNotFound)

		_, _, err := f.svc.IssueOnLogin(ctx, "ghost@example.com", "pw1")

		assert.ErrorIs(t, err, ErrInvalidCredentials)
		assert.Empty(t, f.txm.txs)
	})

	t.Run("wrong password fails with invalid credentials", func(t *testing.T) {
		f := newRotationFixture(t, false)
		user := userWithPassword(t, "pw1")
		f.users.On("GetByEmail", ctx, "alice@example.com").Return(user, nil)

		_, _, err := f.svc.IssueOnLogin(ctx, "alice@example.com", "wrong")

		assert.ErrorIs(t, err, ErrInvalidCredentials)
		f.tokens.AssertNotCalled(t, "Create", mock.Anything, mock.Anything)
	})

	t.Run("a failed persist rolls the issuance back", func(t *testing.T) {
		f := newRotationFixture(t, false)
		user := userWithPassword(t, "pw1")
		f.users.On("GetByEmail", ctx, "alice@example.com").Return(user, nil)
		f.tokens.On("Create", mock.Anything, mock.Anything).Return(errors.New("insert failed"))

		_, _, err := f.svc.IssueOnLogin(ctx, "alice@example.com", "pw1")

		assert.True(t, IsInternalError(err))
		assert.True(t, f.txm.rolledBack())
		f.users.AssertNotCalled(t, "SetLastRefreshID", mock.Anything, mock.Anything, mock.Anything)
	})
}

func TestRotationService_Refresh(t *testing.T) {
	ctx := context.Background()
	now := time.Now().UTC()

	t.Run("rotates the current token into a new pair", func(t *testing.T) {
		f := newRotationFixture(t, false)
		user := userWithPassword(t, "pw1")
		oldID := uuid.NewString()
		user.LastRefreshID = oldID

		raw, err := f.codec.SignRefresh(user.ID, oldID, now)
		require.NoError(t, err)

		f.users.On("GetByID", ctx, user.ID).Return(user, nil)
		f.tokens.On("IsValid", ctx, oldID, mock.AnythingOfType("time.Time")).Return(true, nil)
		f.tokens.On("Deactivate", mock.Anything, oldID).Return(nil)
		f.tokens.On("Create", mock.Anything, mock.MatchedBy(func(rt *models.RefreshToken) bool {
			return rt.UserID == user.ID && rt.RotationID != oldID
		})).Return(nil)
		f.users.On("CompareAndSwapLastRefreshID", mock.Anything, user.ID, oldID, mock.AnythingOfType("string")).Return(true, nil)

		pair, gotUser, err := f.svc.Refresh(ctx, raw)

		require.NoError(t, err)
		assert.Same(t, user, gotUser)
		assert.True(t, f.txm.committed())

		claims, err := f.codec.Parse(pair.RefreshToken)
		require.NoError(t, err)
		assert.NotEqual(t, oldID, claims.RotationID)
		assert.Equal(t, claims.RotationID, user.LastRefreshID, "pointer advanced to the new rotation ID")

		f.users.AssertExpectations(t)
		f.tokens.AssertExpectations(t)
	})

	t.Run("an expired refresh token is rejected before any lookup", func(t *testing.T) {
		f := newRotationFixture(t, false)
		user := userWithPassword(t, "pw1")

		raw, err := f.codec.SignRefresh(user.ID, uuid.NewString(), now.Add(-30*24*time.Hour))
		require.NoError(t, err)

		_, _, err = f.svc.Refresh(ctx, raw)

		assert.ErrorIs(t, err, ErrTokenExpired)
		f.users.AssertNotCalled(t, "GetByID", mock.Anything, mock.Anything)
	})

	t.Run("a garbage token is malformed", func(t *testing.T) {
		f := newRotationFixture(t, false)

		_, _, err := f.svc.Refresh(ctx, "not-a-token")

		assert.ErrorIs(t, err, ErrTokenMalformed)
	})

	t.Run("an access token presented as refresh is an invalid payload", func(t *testing.T) {
		f := newRotationFixture(t, false)
		user := userWithPassword(t, "pw1")

		raw, err := f.codec.SignAccess(user.ID, now)
		require.NoError(t, err)

		_, _, err = f.svc.Refresh(ctx, raw)

		assert.ErrorIs(t, err, ErrInvalidPayload)
		f.users.AssertNotCalled(t, "GetByID", mock.Anything, mock.Anything)
	})

	t.Run("a deleted user is gone, not invalid", func(t *testing.T) {
		f := newRotationFixture(t, false)
		userID := uuid.New()

		raw, err := f.codec.SignRefresh(userID, uuid.NewString(), now)
		require.NoError(t, err)

		f.users.On("GetByID", ctx, userID).Return(nil, repositories.ErrNotFound)

		_, _, err = f.svc.Refresh(ctx, raw)

		assert.ErrorIs(t, err, ErrUserGone)
	})

	t.Run("a stale rotation ID deactivates only the presented record", func(t *testing.T) {
		f := newRotationFixture(t, false)
		user := userWithPassword(t, "pw1")
		currentID := uuid.NewString()
		staleID := uuid.NewString()
		user.LastRefreshID = currentID

		raw, err := f.codec.SignRefresh(user.ID, staleID, now)
		require.NoError(t, err)

		f.users.On("GetByID", ctx, user.ID).Return(user, nil)
		f.tokens.On("Deactivate", mock.Anything, staleID).Return(nil)

		_, _, err = f.svc.Refresh(ctx, raw)

		assert.ErrorIs(t, err, ErrTokenReused)
		assert.Equal(t, currentID, user.LastRefreshID, "the live pointer survives reuse detection")
		assert.True(t, f.txm.committed(), "the deactivation commits even though the refresh fails")
		f.tokens.AssertNotCalled(t, "DeactivateAllForUser", mock.Anything, mock.Anything)
		f.users.AssertNotCalled(t, "SetLastRefreshID", mock.Anything, mock.Anything, mock.Anything)

		details := GetErrorDetails(err)
		require.NotNil(t, details)
		assert.Equal(t, user.ID.String(), details["user_id"])
		assert.Equal(t, staleID, details["rotation_id"])
	})

	t.Run("an empty pointer matches nothing", func(t *testing.T) {
		f := newRotationFixture(t, false)
		user := userWithPassword(t, "pw1")
		user.LastRefreshID = ""
		presentedID := uuid.NewString()

		raw, err := f.codec.SignRefresh(user.ID, presentedID, now)
		require.NoError(t, err)

		f.users.On("GetByID", ctx, user.ID).Return(user, nil)
		f.tokens.On("Deactivate", mock.Anything, presentedID).Return(nil)

		_, _, err = f.svc.Refresh(ctx, raw)

		assert.ErrorIs(t, err, ErrTokenReused)
		assert.Equal(t, "", user.LastRefreshID)
	})

	t.Run("reuse revokes the whole lineage when configured", func(t *testing.T) {
		f := newRotationFixture(t, true)
		user := userWithPassword(t, "pw1")
		user.LastRefreshID = uuid.NewString()
		staleID := uuid.NewString()

		raw, err := f.codec.SignRefresh(user.ID, staleID, now)
		require.NoError(t, err)

		f.users.On("GetByID", ctx, user.ID).Return(user, nil)
		f.tokens.On("DeactivateAllForUser", mock.Anything, user.ID).Return(int64(3), nil)

		_, _, err = f.svc.Refresh(ctx, raw)

		assert.ErrorIs(t, err, ErrTokenReused)
		f.tokens.AssertNotCalled(t, "Deactivate", mock.Anything, mock.Anything)
	})

	t.Run("a matching pointer still fails when the store record is dead", func(t *testing.T) {
		f := newRotationFixture(t, false)
		user := userWithPassword(t, "pw1")
		currentID := uuid.NewString()
		user.LastRefreshID = currentID

		raw, err := f.codec.SignRefresh(user.ID, currentID, now)
		require.NoError(t, err)

		f.users.On("GetByID", ctx, user.ID).Return(user, nil)
		f.tokens.On("IsValid", ctx, currentID, mock.AnythingOfType("time.Time")).Return(false, nil)
		f.tokens.On("Deactivate", mock.Anything, currentID).Return(nil)

		_, _, err = f.svc.Refresh(ctx, raw)

		assert.ErrorIs(t, err, ErrTokenReused)
		assert.Equal(t, currentID, user.LastRefreshID)
	})

	t.Run("a store check failure is internal, not reuse", func(t *testing.T) {
		f := newRotationFixture(t, false)
		user := userWithPassword(t, "pw1")
		currentID := uuid.NewString()
		user.LastRefreshID = currentID

		raw, err := f.codec.SignRefresh(user.ID, currentID, now)
		require.NoError(t, err)

		f.users.On("GetByID", ctx, user.ID).Return(user, nil)
		f.tokens.On("IsValid", ctx, currentID, mock.AnythingOfType("time.Time")).Return(false, errors.New("db down"))

		_, _, err = f.svc.Refresh(ctx, raw)

		assert.True(t, IsInternalError(err))
		f.tokens.AssertNotCalled(t, "Deactivate", mock.Anything, mock.Anything)
	})

	t.Run("losing the pointer race fails with token reused and rolls back", func(t *testing.T) {
		f := newRotationFixture(t, false)
		user := userWithPassword(t, "pw1")
		oldID := uuid.NewString()
		user.LastRefreshID = oldID

		raw, err := f.codec.SignRefresh(user.ID, oldID, now)
		require.NoError(t, err)

		f.users.On("GetByID", ctx, user.ID).Return(user, nil)
		f.tokens.On("IsValid", ctx, oldID, mock.AnythingOfType("time.Time")).Return(true, nil)
		f.tokens.On("Deactivate", mock.Anything, oldID).Return(nil)
		f.tokens.On("Create", mock.Anything, mock.Anything).Return(nil)
		f.users.On("CompareAndSwapLastRefreshID", mock.Anything, user.ID, oldID, mock.AnythingOfType("string")).Return(false, nil)

		_, _, err = f.svc.Refresh(ctx, raw)

		assert.ErrorIs(t, err, ErrTokenReused)
		assert.True(t, f.txm.rolledBack(), "the loser's writes must not land")
	})

	t.Run("a rotated token cannot be refreshed twice", func(t *testing.T) {
		f := newRotationFixture(t, false)
		user := userWithPassword(t, "pw1")
		oldID := uuid.NewString()
		user.LastRefreshID = oldID

		raw, err := f.codec.SignRefresh(user.ID, oldID, now)
		require.NoError(t, err)

		f.users.On("GetByID", ctx, user.ID).Return(user, nil)
		f.tokens.On("IsValid", ctx, oldID, mock.AnythingOfType("time.Time")).Return(true, nil).Once()
		f.tokens.On("Deactivate", mock.Anything, oldID).Return(nil)
		f.tokens.On("Create", mock.Anything, mock.Anything).Return(nil)
		f.users.On("CompareAndSwapLastRefreshID", mock.Anything, user.ID, oldID, mock.AnythingOfType("string")).Return(true, nil).Once()

		_, _, err = f.svc.Refresh(ctx, raw)
		require.NoError(t, err)

		// The pointer has moved on; replaying the old token is reuse.
		_, _, err = f.svc.Refresh(ctx, raw)
		assert.ErrorIs(t, err, ErrTokenReused)
	})

	t.Run("exactly one of two concurrent refreshes wins", func(t *testing.T) {
		f := newRotationFixture(t, false)
		oldID := uuid.NewString()

		hash, err := NewCredentialVerifier().HashPassword("pw1")
		require.NoError(t, err)

		// Each call gets its own copy so the winner's pointer mutation does
		// not race the loser's reads.
		userID := uuid.New()
		makeUser := func() *models.User {
			u := models.NewUser("alice@example.com", hash, models.RoleStandard)
			u.ID = userID
			u.LastRefreshID = oldID
			return u
		}

		raw, err := f.codec.SignRefresh(userID, oldID, now)
		require.NoError(t, err)

		f.users.On("GetByID", ctx, userID).Return(makeUser(), nil).Once()
		f.users.On("GetByID", ctx, userID).Return(makeUser(), nil).Once()
		f.tokens.On("IsValid", ctx, oldID, mock.AnythingOfType("time.Time")).Return(true, nil)
		f.tokens.On("Deactivate", mock.Anything, oldID).Return(nil)
		f.tokens.On("Create", mock.Anything, mock.Anything).Return(nil)
		f.users.On("CompareAndSwapLastRefreshID", mock.Anything, userID, oldID, mock.AnythingOfType("string")).Return(true, nil).Once()
		f.users.On("CompareAndSwapLastRefreshID", mock.Anything, userID, oldID, mock.AnythingOfType("string")).Return(false, nil).Once()

		type outcome struct {
			pair *TokenPair
			err  error
		}
		results := make(chan outcome, 2)

		var wg sync.WaitGroup
		for i := 0; i < 2; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				pair, _, err := f.svc.Refresh(ctx, raw)
				results <- outcome{pair: pair, err: err}
			}()
		}
		wg.Wait()
		close(results)

		var wins, reuses int
		for res := range results {
			if res.err == nil {
				require.NotNil(t, res.pair)
				wins++
			} else {
				assert.ErrorIs(t, res.err, ErrTokenReused)
				reuses++
			}
		}
		assert.Equal(t, 1, wins, "exactly one refresh must win")
		assert.Equal(t, 1, reuses, "the other must observe reuse")
	})
}

func TestRotationService_Logout(t *testing.T) {
	ctx := context.Background()

	t.Run("revokes all tokens and clears the pointer in one transaction", func(t *testing.T) {
		f := newRotationFixture(t, false)
		user := userWithPassword(t, "pw1")
		user.LastRefreshID = uuid.NewString()

		f.tokens.On("DeactivateAllForUser", mock.Anything, user.ID).Return(int64(2), nil)
		f.users.On("SetLastRefreshID", mock.Anything, user.ID, "").Return(nil)

		require.NoError(t, f.svc.Logout(ctx, user))

		assert.Equal(t, "", user.LastRefreshID)
		assert.True(t, f.txm.committed())
		f.users.AssertExpectations(t)
		f.tokens.AssertExpectations(t)
	})

	t.Run("is idempotent when nothing is active", func(t *testing.T) {
		f := newRotationFixture(t, false)
		user := userWithPassword(t, "pw1")

		f.tokens.On("DeactivateAllForUser", mock.Anything, user.ID).Return(int64(0), nil)
		f.users.On("SetLastRefreshID", mock.Anything, user.ID, "").Return(nil)

		assert.NoError(t, f.svc.Logout(ctx, user))
		assert.NoError(t, f.svc.Logout(ctx, user))
	})

	t.Run("a vanished user rolls back as gone", func(t *testing.T) {
		f := newRotationFixture(t, false)
		user := userWithPassword(t, "pw1")

		f.tokens.On("DeactivateAllForUser", mock.Anything, user.ID).Return(int64(0), nil)
		f.users.On("SetLastRefreshID", mock.Anything, user.ID, "").Return(repositories.ErrNotFound)

		err := f.svc.Logout(ctx, user)

		assert.ErrorIs(t, err, ErrUserGone)
		assert.True(t, f.txm.rolledBack())
	})
}
