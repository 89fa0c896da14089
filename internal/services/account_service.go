package services

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/BradenHooton/accountd/internal/auth"
	"github.com/BradenHooton/accountd/internal/models"
	pkgauth "github.com/BradenHooton/accountd/pkg/auth"
	pkglogger "github.com/BradenHooton/accountd/pkg/logger"
)

// MaxBioLength is the longest accepted profile bio, in characters
const MaxBioLength = 500

// AccountRepository defines the interface for account data access
type AccountRepository interface {
	Create(ctx context.Context, draft *models.AccountDraft) (*models.Account, error)
	GetByID(ctx context.Context, id string) (*models.Account, error)
	GetByEmail(ctx context.Context, email string) (*models.Account, error)
	SetResetToken(ctx context.Context, id, tokenHash string, expiresAt time.Time) error
	UpdateProfile(ctx context.Context, id string, profile models.Profile) (*models.Account, error)
	DeletePending(ctx context.Context, id string) error
	ConsumeVerificationToken(ctx context.Context, tokenHash string, now time.Time) (*models.Account, error)
	ResetPassword(ctx context.Context, tokenHash, newPassword string, now time.Time) (*models.Account, error)
	ComparePassword(account *models.Account, candidate string) bool
}

// SessionIssuer signs session tokens
type SessionIssuer interface {
	Issue(accountID string) (string, error)
}

// OneTimeTokenGenerator mints verification and reset tokens
type OneTimeTokenGenerator interface {
	Generate(purpose models.TokenPurpose) (*models.OneTimeToken, error)
}

// AccountService handles the account lifecycle: registration, verification,
// login, password reset and profile changes
type AccountService struct {
	repo     AccountRepository
	sessions SessionIssuer
	tokens   OneTimeTokenGenerator
	mailer   EmailService
	images   ImageStore
	timing   *auth.TimingDelay
	logger   *slog.Logger
	now      func() time.Time

	defaultPicture string
}

// AccountServiceDeps groups the collaborators of AccountService
type AccountServiceDeps struct {
	Repo     AccountRepository
	Sessions SessionIssuer
	Tokens   OneTimeTokenGenerator
	Mailer   EmailService
	Images   ImageStore
	Timing   *auth.TimingDelay
	Logger   *slog.Logger

	// DefaultPicture is the profile picture reference of a new account
	DefaultPicture string
}

// NewAccountService creates a new AccountService
func NewAccountService(deps AccountServiceDeps) *AccountService {
	return &AccountService{
		repo:     deps.Repo,
		sessions: deps.Sessions,
		tokens:   deps.Tokens,
		mailer:   deps.Mailer,
		images:   deps.Images,
		timing:   deps.Timing,
		logger:   deps.Logger,
		now:      time.Now,

		defaultPicture: deps.DefaultPicture,
	}
}

// RegisterInput is the data needed to open an account
type RegisterInput struct {
	Username string
	Email    string
	Password string
	Role     string
}

// LoginResult carries the authenticated account and its signed session token
type LoginResult struct {
	Account *models.Account
	Token   string
}

// Register creates an unverified account and awaits delivery of its verification email
func (s *AccountService) Register(ctx context.Context, in RegisterInput) (*models.Account, error) {
	username := strings.TrimSpace(in.Username)
	email := strings.ToLower(strings.TrimSpace(in.Email))
	if username == "" || email == "" || in.Password == "" {
		return nil, models.ErrMissingFields
	}

	if err := pkgauth.ValidatePassword(in.Password); err != nil {
		return nil, fmt.Errorf("%w: %s", models.ErrBadRequest, err.Error())
	}

	role := strings.TrimSpace(in.Role)
	if role == "" {
		role = models.RoleUser
	}
	if !models.IsValidRole(role) {
		return nil, fmt.Errorf("%w: role must be user or admin", models.ErrBadRequest)
	}

	if _, err := s.repo.GetByEmail(ctx, email); err == nil {
		return nil, models.ErrConflict
	} else if !errors.Is(err, models.ErrNotFound) {
		return nil, fmt.Errorf("failed to check email: %w", err)
	}

	token, err := s.tokens.Generate(models.PurposeEmailVerification)
	if err != nil {
		return nil, fmt.Errorf("failed to generate verification token: %w", err)
	}

	account, err := s.repo.Create(ctx, &models.AccountDraft{
		Username:          username,
		Email:             email,
		Password:          in.Password,
		Role:              role,
		Profile:           models.Profile{ProfilePic: s.defaultPicture},
		VerificationToken: token,
	})
	if err != nil {
		if errors.Is(err, models.ErrConflict) {
			return nil, models.ErrConflict
		}
		return nil, fmt.Errorf("failed to create account: %w", err)
	}

	// The user has no other way to verify, so a mail failure fails the request
	// and frees the email and username for a retry
	if err := s.mailer.SendVerificationEmail(ctx, account.Email, account.Username, token.Plain, token.ExpiresAt); err != nil {
		if delErr := s.repo.DeletePending(context.WithoutCancel(ctx), account.ID); delErr != nil {
			s.logger.Error("failed to remove account after verification mail failure",
				slog.String("account_id", account.ID), slog.Any("error", delErr))
		}
		return nil, err
	}

	s.logger.Info("account registered",
		slog.String("account_id", account.ID),
		slog.String("email", pkglogger.SanitizedEmail(account.Email)))

	return account, nil
}

// Verify consumes a verification token. Unknown, expired and already used
// tokens all yield models.ErrNotFound.
func (s *AccountService) Verify(ctx context.Context, plainToken string) (*models.Account, error) {
	if plainToken == "" {
		return nil, models.ErrNotFound
	}

	hash := auth.HashOneTimeToken(models.PurposeEmailVerification, plainToken)
	account, err := s.repo.ConsumeVerificationToken(ctx, hash, s.now())
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			s.logger.Info("verification rejected", slog.String("token_fp", pkglogger.TokenFingerprint(plainToken)))
			return nil, models.ErrNotFound
		}
		return nil, fmt.Errorf("failed to verify account: %w", err)
	}

	s.logger.Info("account verified", slog.String("account_id", account.ID))
	return account, nil
}

// Login checks credentials of a verified account and issues a session token
func (s *AccountService) Login(ctx context.Context, email, password string) (*LoginResult, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	if email == "" || password == "" {
		return nil, models.ErrMissingFields
	}

	start := time.Now()

	account, err := s.repo.GetByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			s.logger.Info("login failed: unknown email")
			s.timing.WaitFrom(start, false)
			return nil, models.ErrNotFound
		}
		return nil, fmt.Errorf("failed to load account: %w", err)
	}

	if !account.Verified {
		s.logger.Info("login failed: email not verified", slog.String("account_id", account.ID))
		s.timing.WaitFrom(start, false)
		return nil, models.ErrEmailNotVerified
	}

	if !s.repo.ComparePassword(account, password) {
		s.logger.Info("login failed: invalid credentials", slog.String("account_id", account.ID))
		s.timing.WaitFrom(start, false)
		return nil, models.ErrInvalidCredentials
	}

	token, err := s.sessions.Issue(account.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to issue session: %w", err)
	}

	s.timing.WaitFrom(start, true)
	s.logger.Info("login succeeded", slog.String("account_id", account.ID))

	return &LoginResult{Account: account, Token: token}, nil
}

// ForgotPassword stores a fresh reset token and mails it when email belongs to
// an account. An unknown email is not an error.
func (s *AccountService) ForgotPassword(ctx context.Context, email string) error {
	email = strings.ToLower(strings.TrimSpace(email))
	if email == "" {
		return models.ErrMissingFields
	}

	account, err := s.repo.GetByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			s.logger.Info("password reset requested for unknown email",
				slog.String("email", pkglogger.SanitizedEmail(email)))
			return nil
		}
		return fmt.Errorf("failed to load account: %w", err)
	}

	token, err := s.tokens.Generate(models.PurposePasswordReset)
	if err != nil {
		return fmt.Errorf("failed to generate reset token: %w", err)
	}

	if err := s.repo.SetResetToken(ctx, account.ID, token.Hash, token.ExpiresAt); err != nil {
		return fmt.Errorf("failed to store reset token: %w", err)
	}

	if err := s.mailer.SendPasswordResetEmail(ctx, account.Email, account.Username, token.Plain, token.ExpiresAt); err != nil {
		return err
	}

	s.logger.Info("password reset requested", slog.String("account_id", account.ID))
	return nil
}

// ResetPassword replaces the password of the account holding the reset token
func (s *AccountService) ResetPassword(ctx context.Context, plainToken, newPassword string) error {
	if newPassword == "" {
		return models.ErrMissingFields
	}
	if plainToken == "" {
		return models.ErrInvalidToken
	}

	if err := pkgauth.ValidatePassword(newPassword); err != nil {
		return fmt.Errorf("%w: %s", models.ErrBadRequest, err.Error())
	}

	hash := auth.HashOneTimeToken(models.PurposePasswordReset, plainToken)
	account, err := s.repo.ResetPassword(ctx, hash, newPassword, s.now())
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			s.logger.Info("password reset rejected", slog.String("token_fp", pkglogger.TokenFingerprint(plainToken)))
			return models.ErrInvalidToken
		}
		return fmt.Errorf("failed to reset password: %w", err)
	}

	s.logger.Info("password reset", slog.String("account_id", account.ID))
	return nil
}

// UpdateProfile merges patch into the stored profile. When picture is non-nil
// it is uploaded first and its URL replaces the stored picture reference.
func (s *AccountService) UpdateProfile(ctx context.Context, accountID string, patch models.ProfilePatch, picture io.Reader) (*models.Account, error) {
	if picture == nil && patch.IsEmpty() {
		return nil, fmt.Errorf("%w: no profile fields supplied", models.ErrBadRequest)
	}
	if patch.Bio != nil && utf8.RuneCountInString(*patch.Bio) > MaxBioLength {
		return nil, fmt.Errorf("%w: bio must be at most %d characters", models.ErrBadRequest, MaxBioLength)
	}

	account, err := s.repo.GetByID(ctx, accountID)
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			return nil, models.ErrNotFound
		}
		return nil, fmt.Errorf("failed to load account: %w", err)
	}

	if picture != nil {
		url, err := s.images.Upload(ctx, account.ID, picture)
		if err != nil {
			return nil, err
		}
		patch.ProfilePic = &url
	}

	patch.Apply(&account.Profile)

	updated, err := s.repo.UpdateProfile(ctx, account.ID, account.Profile)
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			return nil, models.ErrNotFound
		}
		return nil, fmt.Errorf("failed to update profile: %w", err)
	}

	s.logger.Info("profile updated", slog.String("account_id", updated.ID))
	return updated, nil
}

// Me returns the account behind a verified session
func (s *AccountService) Me(ctx context.Context, accountID string) (*models.Account, error) {
	account, err := s.repo.GetByID(ctx, accountID)
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			return nil, models.ErrNotFound
		}
		return nil, fmt.Errorf("failed to load account: %w", err)
	}
	return account, nil
}
