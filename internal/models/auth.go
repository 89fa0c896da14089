package models

import (
	"time"

	"github.com/golang-jwt/jwt/v5"
)

const SessionTokenType = "session"

// SessionClaims is the payload of a signed session token
type SessionClaims struct {
	Type      string `json:"type"`
	AccountID string `json:"id"`
	jwt.RegisteredClaims
}

// TokenPurpose separates verification tokens from reset tokens
type TokenPurpose string

const (
	PurposeEmailVerification TokenPurpose = "email_verification"
	PurposePasswordReset     TokenPurpose = "password_reset"
)

// OneTimeToken is a freshly minted single-use token. Plain goes to the user,
// Hash is what gets stored.
type OneTimeToken struct {
	Purpose   TokenPurpose
	Plain     string
	Hash      string
	ExpiresAt time.Time
}
