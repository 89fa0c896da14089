package repositories

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/BradenHooton/accountd/internal/database"
	"github.com/BradenHooton/accountd/internal/models"
	"github.com/BradenHooton/accountd/pkg/auth"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
)

const accountColumns = `id, username, email, password_hash, role, verified, profile,
	verification_token_hash, verification_token_expires_at,
	reset_token_hash, reset_token_expires_at, created_at, updated_at`

// AccountRepository is the PostgreSQL credential store. It is the only place
// passwords are hashed or compared.
type AccountRepository struct {
	pool *pgxpool.Pool
	now  func() time.Time
}

func NewAccountRepository(db *database.DB) *AccountRepository {
	return &AccountRepository{pool: db.Pool, now: time.Now}
}

// rowScanner interface for scanning account rows (supports both single row and multiple rows)
type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanAccountRow(scanner rowScanner) (*models.Account, error) {
	var account models.Account
	var profile []byte

	err := scanner.Scan(
		&account.ID, &account.Username, &account.Email, &account.PasswordHash,
		&account.Role, &account.Verified, &profile,
		&account.VerificationTokenHash, &account.VerificationTokenExpiresAt,
		&account.ResetTokenHash, &account.ResetTokenExpiresAt,
		&account.CreatedAt, &account.UpdatedAt,
	)
	if err != nil {
		return nil, database.MapPostgresError(err)
	}

	if len(profile) > 0 {
		if err := json.Unmarshal(profile, &account.Profile); err != nil {
			return nil, fmt.Errorf("failed to decode profile: %w", err)
		}
	}

	return &account, nil
}

// Create hashes the draft password and inserts an unverified account.
// A taken email or username yields models.ErrConflict.
func (r *AccountRepository) Create(ctx context.Context, draft *models.AccountDraft) (*models.Account, error) {
	passwordHash, err := auth.HashPassword(draft.Password)
	if err != nil {
		return nil, err
	}
	draft.Password = ""

	profile, err := json.Marshal(draft.Profile)
	if err != nil {
		return nil, fmt.Errorf("failed to encode profile: %w", err)
	}

	role := draft.Role
	if role == "" {
		role = models.RoleUser
	}

	var tokenHash *string
	var tokenExpiresAt *time.Time
	if draft.VerificationToken != nil {
		tokenHash = &draft.VerificationToken.Hash
		tokenExpiresAt = &draft.VerificationToken.ExpiresAt
	}

	now := r.now().UTC()
	query := `
		INSERT INTO accounts (id, username, email, password_hash, role, verified, profile,
			verification_token_hash, verification_token_expires_at, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, FALSE, $6, $7, $8, $9, $9)
		RETURNING ` + accountColumns

	return scanAccountRow(r.pool.QueryRow(ctx, query,
		uuid.New().String(), draft.Username, strings.ToLower(draft.Email), passwordHash, role,
		profile, tokenHash, tokenExpiresAt, now,
	))
}

func (r *AccountRepository) GetByID(ctx context.Context, id string) (*models.Account, error) {
	if _, err := uuid.Parse(id); err != nil {
		return nil, models.ErrNotFound
	}

	query := `SELECT ` + accountColumns + ` FROM accounts WHERE id = $1`
	return scanAccountRow(r.pool.QueryRow(ctx, query, id))
}

func (r *AccountRepository) GetByEmail(ctx context.Context, email string) (*models.Account, error) {
	query := `SELECT ` + accountColumns + ` FROM accounts WHERE email = $1`
	return scanAccountRow(r.pool.QueryRow(ctx, query, strings.ToLower(email)))
}

// SetResetToken stores a fresh reset token pair, replacing any earlier one.
// No other column is written.
func (r *AccountRepository) SetResetToken(ctx context.Context, id, tokenHash string, expiresAt time.Time) error {
	if _, err := uuid.Parse(id); err != nil {
		return models.ErrNotFound
	}

	query := `
		UPDATE accounts
		SET reset_token_hash = $2, reset_token_expires_at = $3, updated_at = $4
		WHERE id = $1`

	tag, err := r.pool.Exec(ctx, query, id, tokenHash, expiresAt.UTC(), r.now().UTC())
	if err != nil {
		return database.MapPostgresError(err)
	}
	if tag.RowsAffected() == 0 {
		return models.ErrNotFound
	}
	return nil
}

// UpdateProfile replaces the profile document of an account. Verification
// state and token columns are left alone.
func (r *AccountRepository) UpdateProfile(ctx context.Context, id string, profile models.Profile) (*models.Account, error) {
	if _, err := uuid.Parse(id); err != nil {
		return nil, models.ErrNotFound
	}

	doc, err := json.Marshal(profile)
	if err != nil {
		return nil, fmt.Errorf("failed to encode profile: %w", err)
	}

	query := `
		UPDATE accounts
		SET profile = $2, updated_at = $3
		WHERE id = $1
		RETURNING ` + accountColumns

	return scanAccountRow(r.pool.QueryRow(ctx, query, id, doc, r.now().UTC()))
}

// DeletePending removes an account that has not been verified yet. A verified
// or unknown id yields models.ErrNotFound.
func (r *AccountRepository) DeletePending(ctx context.Context, id string) error {
	if _, err := uuid.Parse(id); err != nil {
		return models.ErrNotFound
	}

	tag, err := r.pool.Exec(ctx, `DELETE FROM accounts WHERE id = $1 AND verified = FALSE`, id)
	if err != nil {
		return database.MapPostgresError(err)
	}
	if tag.RowsAffected() == 0 {
		return models.ErrNotFound
	}
	return nil
}

// ConsumeVerificationToken marks the matching account verified and clears the
// token in one statement. Unknown and expired hashes both yield models.ErrNotFound.
func (r *AccountRepository) ConsumeVerificationToken(ctx context.Context, tokenHash string, now time.Time) (*models.Account, error) {
	query := `
		UPDATE accounts
		SET verified = TRUE, verification_token_hash = NULL, verification_token_expires_at = NULL, updated_at = $2
		WHERE verification_token_hash = $1 AND verification_token_expires_at > $2
		RETURNING ` + accountColumns

	return scanAccountRow(r.pool.QueryRow(ctx, query, tokenHash, now.UTC()))
}

// ResetPassword hashes newPassword and swaps it in for the account holding the
// unexpired reset token, clearing the token in the same statement.
func (r *AccountRepository) ResetPassword(ctx context.Context, tokenHash, newPassword string, now time.Time) (*models.Account, error) {
	passwordHash, err := auth.HashPassword(newPassword)
	if err != nil {
		return nil, err
	}

	query := `
		UPDATE accounts
		SET password_hash = $3, reset_token_hash = NULL, reset_token_expires_at = NULL, updated_at = $2
		WHERE reset_token_hash = $1 AND reset_token_expires_at > $2
		RETURNING ` + accountColumns

	return scanAccountRow(r.pool.QueryRow(ctx, query, tokenHash, now.UTC(), passwordHash))
}

// ComparePassword reports whether candidate matches the stored hash
func (r *AccountRepository) ComparePassword(account *models.Account, candidate string) bool {
	if account == nil {
		return false
	}
	return auth.CheckPassword(account.PasswordHash, candidate)
}

// ClearExpiredTokens nulls every verification or reset token pair that expired
// at or before now and returns the number of accounts touched.
func (r *AccountRepository) ClearExpiredTokens(ctx context.Context, now time.Time) (int64, error) {
	query := `
		UPDATE accounts
		SET verification_token_hash = CASE WHEN verification_token_expires_at <= $1 THEN NULL ELSE verification_token_hash END,
			verification_token_expires_at = CASE WHEN verification_token_expires_at <= $1 THEN NULL ELSE verification_token_expires_at END,
			reset_token_hash = CASE WHEN reset_token_expires_at <= $1 THEN NULL ELSE reset_token_hash END,
			reset_token_expires_at = CASE WHEN reset_token_expires_at <= $1 THEN NULL ELSE reset_token_expires_at END
		WHERE verification_token_expires_at <= $1 OR reset_token_expires_at <= $1
	`

	tag, err := r.pool.Exec(ctx, query, now.UTC())
	if err != nil {
		return 0, fmt.Errorf("failed to clear expired tokens: %w", err)
	}

	return tag.RowsAffected(), nil
}
