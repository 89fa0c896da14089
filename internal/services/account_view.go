package services

import (
	"time"

	"github.com/BradenHooton/accountd/internal/models"
)

// AccountResponse represents an account in HTTP responses. It never carries
// the password hash or token material.
type AccountResponse struct {
	ID        string         `json:"id"`
	Username  string         `json:"username"`
	Email     string         `json:"email"`
	Role      string         `json:"role"`
	Verified  bool           `json:"verified"`
	Profile   models.Profile `json:"profile"`
	CreatedAt string         `json:"createdAt"`
	UpdatedAt string         `json:"updatedAt"`
}

// SessionAccountResponse is the slim account view returned by login
type SessionAccountResponse struct {
	ID       string `json:"id"`
	Username string `json:"username"`
	Email    string `json:"email"`
	Role     string `json:"role"`
}

// RegisteredAccountResponse is the account view returned by register
type RegisteredAccountResponse struct {
	Username string `json:"username"`
	Email    string `json:"email"`
}

func NewAccountResponse(account *models.Account) *AccountResponse {
	return &AccountResponse{
		ID:        account.ID,
		Username:  account.Username,
		Email:     account.Email,
		Role:      account.Role,
		Verified:  account.Verified,
		Profile:   account.Profile,
		CreatedAt: account.CreatedAt.Format(time.RFC3339),
		UpdatedAt: account.UpdatedAt.Format(time.RFC3339),
	}
}

func NewSessionAccountResponse(account *models.Account) *SessionAccountResponse {
	return &SessionAccountResponse{
		ID:       account.ID,
		Username: account.Username,
		Email:    account.Email,
		Role:     account.Role,
	}
}
