package services

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/upb/auth-control-plane/backend/config"
)

// TokenClaims is the decoded content of a verified token.
type TokenClaims struct {
	// Subject is the user ID the token was issued to.
	Subject uuid.UUID
	// RotationID is the jti claim. Set on refresh tokens, empty on access tokens.
	RotationID string
	ExpiresAt  time.Time
}

// TokenCodec signs and verifies the JWTs issued by this service. All tokens
// are HMAC-signed with the configured secret; verification accepts only the
// configured algorithm.
type TokenCodec struct {
	secret     []byte
	method     jwt.SigningMethod
	accessTTL  time.Duration
	refreshTTL time.Duration
	leeway     time.Duration
}

// NewTokenCodec creates a codec from the auth configuration
func NewTokenCodec(cfg config.AuthConfig) (*TokenCodec, error) {
	method := jwt.GetSigningMethod(cfg.Algorithm)
	if method == nil {
		return nil, fmt.Errorf("unsupported signing algorithm: %s", cfg.Algorithm)
	}

	return &TokenCodec{
		secret:     []byte(cfg.SecretKey),
		method:     method,
		accessTTL:  cfg.AccessTokenTTL,
		refreshTTL: cfg.RefreshTokenTTL,
		leeway:     cfg.Leeway,
	}, nil
}

// SignAccess issues a short-lived access token for the user
func (c *TokenCodec) SignAccess(userID uuid.UUID, now time.Time) (string, error) {
	return c.sign(jwt.RegisteredClaims{
		Subject:   userID.String(),
		ExpiresAt: jwt.NewNumericDate(now.Add(c.accessTTL)),
		IssuedAt:  jwt.NewNumericDate(now),
	})
}

// SignRefresh issues a refresh token carrying the rotation ID as its jti claim
func (c *TokenCodec) SignRefresh(userID uuid.UUID, rotationID string, now time.Time) (string, error) {
	return c.sign(jwt.RegisteredClaims{
		ID:        rotationID,
		Subject:   userID.String(),
		ExpiresAt: jwt.NewNumericDate(now.Add(c.refreshTTL)),
		IssuedAt:  jwt.NewNumericDate(now),
	})
}

func (c *TokenCodec) sign(claims jwt.RegisteredClaims) (string, error) {
	signed, err := jwt.NewWithClaims(c.method, claims).SignedString(c.secret)
	if err != nil {
		return "", WrapInternal("failed to sign token", err)
	}
	return signed, nil
}

// Parse verifies a token and decodes its claims.
//
// The signing method allow-list rejects tokens signed with any algorithm
// other than the configured one, including alg=none. Failure modes:
//   - expired signature window: ErrTokenExpired
//   - bad signature, wrong algorithm, missing expiry, garbage input: ErrTokenMalformed
//   - valid signature but subject is not a UUID: ErrInvalidPayload
func (c *TokenCodec) Parse(raw string) (*TokenClaims, error) {
	claims := &jwt.RegisteredClaims{}
	_, err := jwt.ParseWithClaims(raw, claims, func(t *jwt.Token) (interface{}, error) {
		return c.secret, nil
	},
		jwt.WithValidMethods([]string{c.method.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithLeeway(c.leeway),
	)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, ErrTokenExpired
		}
		return nil, ErrTokenMalformed
	}

	subject, err := uuid.Parse(claims.Subject)
	if err != nil {
		return nil, ErrInvalidPayload
	}

	return &TokenClaims{
		Subject:    subject,
		RotationID: claims.ID,
		ExpiresAt:  claims.ExpiresAt.Time,
	}, nil
}

// AccessTTL reports the configured access token lifetime
func (c *TokenCodec) AccessTTL() time.Duration {
	return c.accessTTL
}

// RefreshTTL reports the configured refresh token lifetime
func (c *TokenCodec) RefreshTTL() time.Duration {
	return c.refreshTTL
}
