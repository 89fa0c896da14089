package auth

import (
	"crypto/sha256"
	"encoding/hex"
	"time"

	"github.com/BradenHooton/accountd/internal/models"
	pkgauth "github.com/BradenHooton/accountd/pkg/auth"
)

// OneTimeTokenBytes is the entropy of a verification or reset token
const OneTimeTokenBytes = 32

// OneTimeTokenGenerator mints single-use tokens for email verification and password reset
type OneTimeTokenGenerator struct {
	ttl time.Duration
	now func() time.Time
}

func NewOneTimeTokenGenerator(ttl time.Duration) *OneTimeTokenGenerator {
	return &OneTimeTokenGenerator{ttl: ttl, now: time.Now}
}

// Generate returns a fresh token for purpose expiring ttl from now
func (g *OneTimeTokenGenerator) Generate(purpose models.TokenPurpose) (*models.OneTimeToken, error) {
	plain, err := pkgauth.GenerateRandomHex(OneTimeTokenBytes)
	if err != nil {
		return nil, err
	}

	return &models.OneTimeToken{
		Purpose:   purpose,
		Plain:     plain,
		Hash:      HashOneTimeToken(purpose, plain),
		ExpiresAt: g.now().Add(g.ttl),
	}, nil
}

// HashOneTimeToken derives the stored form of a token. The purpose is part of
// the digest so a reset token never matches a verification hash.
func HashOneTimeToken(purpose models.TokenPurpose, plain string) string {
	sum := sha256.Sum256([]byte(string(purpose) + ":" + plain))
	return hex.EncodeToString(sum[:])
}
