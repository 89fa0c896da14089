package services

import (
	"context"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/BradenHooton/accountd/internal/models"
	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"
)

// MockAccountRepository implements AccountRepository for testing
type MockAccountRepository struct {
	CreateFunc                   func(ctx context.Context, draft *models.AccountDraft) (*models.Account, error)
	GetByIDFunc                  func(ctx context.Context, id string) (*models.Account, error)
	GetByEmailFunc               func(ctx context.Context, email string) (*models.Account, error)
	SetResetTokenFunc            func(ctx context.Context, id, tokenHash string, expiresAt time.Time) error
	UpdateProfileFunc            func(ctx context.Context, id string, profile models.Profile) (*models.Account, error)
	DeletePendingFunc            func(ctx context.Context, id string) error
	ConsumeVerificationTokenFunc func(ctx context.Context, tokenHash string, now time.Time) (*models.Account, error)
	ResetPasswordFunc            func(ctx context.Context, tokenHash, newPassword string, now time.Time) (*models.Account, error)
	ComparePasswordFunc          func(account *models.Account, candidate string) bool
}

func (m *MockAccountRepository) Create(ctx context.Context, draft *models.AccountDraft) (*models.Account, error) {
	if m.CreateFunc != nil {
		return m.CreateFunc(ctx, draft)
	}
	return nil, models.ErrInternalServer
}

func (m *MockAccountRepository) GetByID(ctx context.Context, id string) (*models.Account, error) {
	if m.GetByIDFunc != nil {
		return m.GetByIDFunc(ctx, id)
	}
	return nil, models.ErrNotFound
}

func (m *MockAccountRepository) GetByEmail(ctx context.Context, email string) (*models.Account, error) {
	if m.GetByEmailFunc != nil {
		return m.GetByEmailFunc(ctx, email)
	}
	return nil, models.ErrNotFound
}

func (m *MockAccountRepository) SetResetToken(ctx context.Context, id, tokenHash string, expiresAt time.Time) error {
	if m.SetResetTokenFunc != nil {
		return m.SetResetTokenFunc(ctx, id, tokenHash, expiresAt)
	}
	return nil
}

func (m *MockAccountRepository) UpdateProfile(ctx context.Context, id string, profile models.Profile) (*models.Account, error) {
	if m.UpdateProfileFunc != nil {
		return m.UpdateProfileFunc(ctx, id, profile)
	}
	return nil, models.ErrNotFound
}

func (m *MockAccountRepository) DeletePending(ctx context.Context, id string) error {
	if m.DeletePendingFunc != nil {
		return m.DeletePendingFunc(ctx, id)
	}
	return nil
}

func (m *MockAccountRepository) ConsumeVerificationToken(ctx context.Context, tokenHash string, now time.Time) (*models.Account, error) {
	if m.ConsumeVerificationTokenFunc != nil {
		return m.ConsumeVerificationTokenFunc(ctx, tokenHash, now)
	}
	return nil, models.ErrNotFound
}

func (m *MockAccountRepository) ResetPassword(ctx context.Context, tokenHash, newPassword string, now time.Time) (*models.Account, error) {
	if m.ResetPasswordFunc != nil {
		return m.ResetPasswordFunc(ctx, tokenHash, newPassword, now)
	}
	return nil, models.ErrNotFound
}

func (m *MockAccountRepository) ComparePassword(account *models.Account, candidate string) bool {
	if m.ComparePasswordFunc != nil {
		return m.ComparePasswordFunc(account, candidate)
	}
	return false
}

// SentEmail records one call to MockEmailService
type SentEmail struct {
	Kind      string
	To        string
	Username  string
	Token     string
	ExpiresAt time.Time
}

// MockEmailService implements EmailService for testing. Every call is recorded
// in Sent before the optional func field runs.
type MockEmailService struct {
	SendVerificationEmailFunc  func(ctx context.Context, email, username, token string, expiresAt time.Time) error
	SendPasswordResetEmailFunc func(ctx context.Context, email, username, token string, expiresAt time.Time) error

	mu   sync.Mutex
	Sent []SentEmail
}

func (m *MockEmailService) record(kind, email, username, token string, expiresAt time.Time) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Sent = append(m.Sent, SentEmail{Kind: kind, To: email, Username: username, Token: token, ExpiresAt: expiresAt})
}

func (m *MockEmailService) SendVerificationEmail(ctx context.Context, email, username, token string, expiresAt time.Time) error {
	m.record("verification", email, username, token, expiresAt)
	if m.SendVerificationEmailFunc != nil {
		return m.SendVerificationEmailFunc(ctx, email, username, token, expiresAt)
	}
	return nil
}

func (m *MockEmailService) SendPasswordResetEmail(ctx context.Context, email, username, token string, expiresAt time.Time) error {
	m.record("password_reset", email, username, token, expiresAt)
	if m.SendPasswordResetEmailFunc != nil {
		return m.SendPasswordResetEmailFunc(ctx, email, username, token, expiresAt)
	}
	return nil
}

// LastTokenFor returns the token of the most recent email of kind sent to email
func (m *MockEmailService) LastTokenFor(kind, email string) string {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := len(m.Sent) - 1; i >= 0; i-- {
		if m.Sent[i].Kind == kind && m.Sent[i].To == email {
			return m.Sent[i].Token
		}
	}
	return ""
}

// MockImageStore implements ImageStore for testing
type MockImageStore struct {
	UploadFunc func(ctx context.Context, accountID string, r io.Reader) (string, error)
}

func (m *MockImageStore) Upload(ctx context.Context, accountID string, r io.Reader) (string, error) {
	if m.UploadFunc != nil {
		return m.UploadFunc(ctx, accountID, r)
	}
	return "https://images.example.com/profiles/" + accountID + "/picture.png", nil
}

// InMemoryAccountRepository is a map-backed AccountRepository with the same
// uniqueness and token semantics as the PostgreSQL store
type InMemoryAccountRepository struct {
	mu       sync.Mutex
	accounts map[string]*models.Account
}

func NewInMemoryAccountRepository() *InMemoryAccountRepository {
	return &InMemoryAccountRepository{accounts: make(map[string]*models.Account)}
}

func cloneAccount(a *models.Account) *models.Account {
	c := *a
	if a.Profile.BirthDate != nil {
		birthDate := *a.Profile.BirthDate
		c.Profile.BirthDate = &birthDate
	}
	return &c
}

func (r *InMemoryAccountRepository) Create(ctx context.Context, draft *models.AccountDraft) (*models.Account, error) {
	// Minimum cost keeps tests fast; the real store uses pkg/auth.BcryptCost
	hash, err := bcrypt.GenerateFromPassword([]byte(draft.Password), bcrypt.MinCost)
	if err != nil {
		return nil, err
	}
	draft.Password = ""

	r.mu.Lock()
	defer r.mu.Unlock()

	email := strings.ToLower(draft.Email)
	for _, existing := range r.accounts {
		if existing.Email == email || existing.Username == draft.Username {
			return nil, models.ErrConflict
		}
	}

	role := draft.Role
	if role == "" {
		role = models.RoleUser
	}

	now := time.Now()
	account := &models.Account{
		ID:           uuid.New().String(),
		Username:     draft.Username,
		Email:        email,
		PasswordHash: string(hash),
		Role:         role,
		Profile:      draft.Profile,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if draft.VerificationToken != nil {
		tokenHash := draft.VerificationToken.Hash
		expiresAt := draft.VerificationToken.ExpiresAt
		account.VerificationTokenHash = &tokenHash
		account.VerificationTokenExpiresAt = &expiresAt
	}

	r.accounts[account.ID] = account
	return cloneAccount(account), nil
}

func (r *InMemoryAccountRepository) GetByID(ctx context.Context, id string) (*models.Account, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	account, ok := r.accounts[id]
	if !ok {
		return nil, models.ErrNotFound
	}
	return cloneAccount(account), nil
}

func (r *InMemoryAccountRepository) GetByEmail(ctx context.Context, email string) (*models.Account, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	email = strings.ToLower(email)
	for _, account := range r.accounts {
		if account.Email == email {
			return cloneAccount(account), nil
		}
	}
	return nil, models.ErrNotFound
}

func (r *InMemoryAccountRepository) SetResetToken(ctx context.Context, id, tokenHash string, expiresAt time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	account, ok := r.accounts[id]
	if !ok {
		return models.ErrNotFound
	}
	account.ResetTokenHash = &tokenHash
	account.ResetTokenExpiresAt = &expiresAt
	account.UpdatedAt = time.Now()
	return nil
}

func (r *InMemoryAccountRepository) UpdateProfile(ctx context.Context, id string, profile models.Profile) (*models.Account, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	account, ok := r.accounts[id]
	if !ok {
		return nil, models.ErrNotFound
	}
	account.Profile = cloneAccount(&models.Account{Profile: profile}).Profile
	account.UpdatedAt = time.Now()
	return cloneAccount(account), nil
}

func (r *InMemoryAccountRepository) DeletePending(ctx context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	account, ok := r.accounts[id]
	if !ok || account.Verified {
		return models.ErrNotFound
	}
	delete(r.accounts, id)
	return nil
}

func (r *InMemoryAccountRepository) ConsumeVerificationToken(ctx context.Context, tokenHash string, now time.Time) (*models.Account, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, account := range r.accounts {
		if account.VerificationTokenHash != nil && *account.VerificationTokenHash == tokenHash &&
			account.VerificationTokenExpiresAt.After(now) {
			account.Verified = true
			account.VerificationTokenHash = nil
			account.VerificationTokenExpiresAt = nil
			account.UpdatedAt = now
			return cloneAccount(account), nil
		}
	}
	return nil, models.ErrNotFound
}

func (r *InMemoryAccountRepository) ResetPassword(ctx context.Context, tokenHash, newPassword string, now time.Time) (*models.Account, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(newPassword), bcrypt.MinCost)
	if err != nil {
		return nil, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	for _, account := range r.accounts {
		if account.ResetTokenHash != nil && *account.ResetTokenHash == tokenHash &&
			account.ResetTokenExpiresAt.After(now) {
			account.PasswordHash = string(hash)
			account.ResetTokenHash = nil
			account.ResetTokenExpiresAt = nil
			account.UpdatedAt = now
			return cloneAccount(account), nil
		}
	}
	return nil, models.ErrNotFound
}

func (r *InMemoryAccountRepository) ComparePassword(account *models.Account, candidate string) bool {
	if account == nil || account.PasswordHash == "" {
		return false
	}
	return bcrypt.CompareHashAndPassword([]byte(account.PasswordHash), []byte(candidate)) == nil
}

// ClearExpiredTokens mirrors the PostgreSQL sweep
func (r *InMemoryAccountRepository) ClearExpiredTokens(ctx context.Context, now time.Time) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var cleared int64
	for _, account := range r.accounts {
		touched := false
		if account.VerificationTokenExpiresAt != nil && !account.VerificationTokenExpiresAt.After(now) {
			account.VerificationTokenHash = nil
			account.VerificationTokenExpiresAt = nil
			touched = true
		}
		if account.ResetTokenExpiresAt != nil && !account.ResetTokenExpiresAt.After(now) {
			account.ResetTokenHash = nil
			account.ResetTokenExpiresAt = nil
			touched = true
		}
		if touched {
			cleared++
		}
	}
	return cleared, nil
}

// Count returns the number of stored accounts
func (r *InMemoryAccountRepository) Count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.accounts)
}

// NewTestAccount creates a verified account with the given password hash
func NewTestAccount(id, username, email, passwordHash string) *models.Account {
	now := time.Now()
	return &models.Account{
		ID:           id,
		Username:     username,
		Email:        email,
		PasswordHash: passwordHash,
		Role:         models.RoleUser,
		Verified:     true,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
}
