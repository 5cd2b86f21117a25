package services

import (
	"golang.org/x/crypto/bcrypt"
)

// CredentialVerifier hashes and verifies user passwords with bcrypt.
type CredentialVerifier struct {
	cost int
}

// NewCredentialVerifier creates a verifier using the default bcrypt cost
func NewCredentialVerifier() *CredentialVerifier {
	return &CredentialVerifier{cost: bcrypt.DefaultCost}
}

// HashPassword hashes a plain password for storage
func (v *CredentialVerifier) HashPassword(plain string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(plain), v.cost)
	if err != nil {
		return "", WrapInternal("failed to hash password", err)
	}
	return string(hash), nil
}

// VerifyPassword checks a plain password against a stored hash. Every
// failure mode returns ErrInvalidCredentials, including a corrupt hash.
func (v *CredentialVerifier) VerifyPassword(plain, hash string) error {
	if err := bcrypt.CompareHashAndPassword([]byte(hash), []byte(plain)); err != nil {
		return ErrInvalidCredentials
	}
	return nil
}
