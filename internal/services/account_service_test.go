package services

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/BradenHooton/accountd/internal/auth"
	"github.com/BradenHooton/accountd/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testJWTSecret = "test-secret-32-characters-long!!"

type serviceFixture struct {
	svc    *AccountService
	repo   *InMemoryAccountRepository
	mailer *MockEmailService
	images *MockImageStore
	tm     *auth.TokenManager
}

func newServiceFixture(t *testing.T) *serviceFixture {
	t.Helper()

	f := &serviceFixture{
		repo:   NewInMemoryAccountRepository(),
		mailer: &MockEmailService{},
		images: &MockImageStore{},
		tm:     auth.NewTokenManager(testJWTSecret, 24*time.Hour),
	}
	f.svc = NewAccountService(AccountServiceDeps{
		Repo:           f.repo,
		Sessions:       f.tm,
		Tokens:         auth.NewOneTimeTokenGenerator(time.Hour),
		Mailer:         f.mailer,
		Images:         f.images,
		Timing:         auth.NewTimingDelay(auth.TimingConfig{}),
		Logger:         slog.Default(),
		DefaultPicture: "default-avatar.png",
	})
	return f
}

// registerVerified registers an account and consumes its verification token
func (f *serviceFixture) registerVerified(t *testing.T, username, email, password string) *models.Account {
	t.Helper()
	ctx := context.Background()

	_, err := f.svc.Register(ctx, RegisterInput{Username: username, Email: email, Password: password})
	require.NoError(t, err)

	account, err := f.svc.Verify(ctx, f.mailer.LastTokenFor("verification", email))
	require.NoError(t, err)
	return account
}

func TestAccountService_Register_Success(t *testing.T) {
	f := newServiceFixture(t)

	account, err := f.svc.Register(context.Background(), RegisterInput{
		Username: "u1",
		Email:    "E1@Example.com",
		Password: "password-one",
	})
	require.NoError(t, err)

	assert.Equal(t, "u1", account.Username)
	assert.Equal(t, "e1@example.com", account.Email)
	assert.Equal(t, models.RoleUser, account.Role)
	assert.False(t, account.Verified)
	assert.NotEqual(t, "password-one", account.PasswordHash)
	assert.NotEmpty(t, account.PasswordHash)
	assert.Equal(t, "default-avatar.png", account.Profile.ProfilePic)
	require.NotNil(t, account.VerificationTokenExpiresAt)
	assert.True(t, account.VerificationTokenExpiresAt.After(time.Now()))

	require.Len(t, f.mailer.Sent, 1)
	sent := f.mailer.Sent[0]
	assert.Equal(t, "verification", sent.Kind)
	assert.Equal(t, "e1@example.com", sent.To)
	assert.Len(t, sent.Token, 64)
	assert.NotEqual(t, sent.Token, *account.VerificationTokenHash, "only the hash is stored")
}

func TestAccountService_Register_MissingFields(t *testing.T) {
	f := newServiceFixture(t)

	inputs := []RegisterInput{
		{Email: "a@example.com", Password: "password-one"},
		{Username: "a", Password: "password-one"},
		{Username: "a", Email: "a@example.com"},
		{Username: "   ", Email: "a@example.com", Password: "password-one"},
	}
	for _, in := range inputs {
		_, err := f.svc.Register(context.Background(), in)
		assert.ErrorIs(t, err, models.ErrMissingFields)
	}
	assert.Zero(t, f.repo.Count())
}

func TestAccountService_Register_DuplicateEmail(t *testing.T) {
	f := newServiceFixture(t)
	ctx := context.Background()

	_, err := f.svc.Register(ctx, RegisterInput{Username: "first", Email: "dup@example.com", Password: "password-one"})
	require.NoError(t, err)

	_, err = f.svc.Register(ctx, RegisterInput{Username: "second", Email: "DUP@example.com", Password: "password-two"})
	assert.ErrorIs(t, err, models.ErrConflict)
	assert.Equal(t, 1, f.repo.Count())
}

func TestAccountService_Register_DuplicateUsername(t *testing.T) {
	f := newServiceFixture(t)
	ctx := context.Background()

	_, err := f.svc.Register(ctx, RegisterInput{Username: "same", Email: "one@example.com", Password: "password-one"})
	require.NoError(t, err)

	_, err = f.svc.Register(ctx, RegisterInput{Username: "same", Email: "two@example.com", Password: "password-two"})
	assert.ErrorIs(t, err, models.ErrConflict)
}

func TestAccountService_Register_InvalidInput(t *testing.T) {
	f := newServiceFixture(t)
	ctx := context.Background()

	_, err := f.svc.Register(ctx, RegisterInput{Username: "a", Email: "a@example.com", Password: "short"})
	assert.ErrorIs(t, err, models.ErrBadRequest)

	_, err = f.svc.Register(ctx, RegisterInput{Username: "a", Email: "a@example.com", Password: "password-one", Role: "root"})
	assert.ErrorIs(t, err, models.ErrBadRequest)

	account, err := f.svc.Register(ctx, RegisterInput{Username: "a", Email: "a@example.com", Password: "password-one", Role: "admin"})
	require.NoError(t, err)
	assert.Equal(t, models.RoleAdmin, account.Role)
}

func TestAccountService_Register_EmailFailurePropagates(t *testing.T) {
	f := newServiceFixture(t)
	f.mailer.SendVerificationEmailFunc = func(ctx context.Context, email, username, token string, expiresAt time.Time) error {
		return errors.New("ses unavailable")
	}

	_, err := f.svc.Register(context.Background(), RegisterInput{Username: "a", Email: "a@example.com", Password: "password-one"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "ses unavailable")
	assert.False(t, errors.Is(err, models.ErrConflict))
	assert.Equal(t, 0, f.repo.Count())
}

func TestAccountService_Register_RetryAfterEmailFailure(t *testing.T) {
	f := newServiceFixture(t)
	ctx := context.Background()
	input := RegisterInput{Username: "a", Email: "a@example.com", Password: "password-one"}

	f.mailer.SendVerificationEmailFunc = func(ctx context.Context, email, username, token string, expiresAt time.Time) error {
		return errors.New("ses unavailable")
	}
	_, err := f.svc.Register(ctx, input)
	require.Error(t, err)

	f.mailer.SendVerificationEmailFunc = nil
	account, err := f.svc.Register(ctx, input)
	require.NoError(t, err)
	assert.Equal(t, 1, f.repo.Count())

	verified, err := f.svc.Verify(ctx, f.mailer.LastTokenFor("verification", "a@example.com"))
	require.NoError(t, err)
	assert.Equal(t, account.ID, verified.ID)
}

func TestAccountService_Register_EmailFailureCleanupError(t *testing.T) {
	mem := NewInMemoryAccountRepository()
	repo := &MockAccountRepository{
		GetByEmailFunc: mem.GetByEmail,
		CreateFunc:     mem.Create,
		DeletePendingFunc: func(ctx context.Context, id string) error {
			return errors.New("connection reset")
		},
	}
	mailer := &MockEmailService{
		SendVerificationEmailFunc: func(ctx context.Context, email, username, token string, expiresAt time.Time) error {
			return errors.New("ses unavailable")
		},
	}
	svc := NewAccountService(AccountServiceDeps{
		Repo:   repo,
		Tokens: auth.NewOneTimeTokenGenerator(time.Hour),
		Mailer: mailer,
		Logger: slog.Default(),
	})

	_, err := svc.Register(context.Background(), RegisterInput{Username: "a", Email: "a@example.com", Password: "password-one"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "ses unavailable")
}

func TestAccountService_Register_LookupFailure(t *testing.T) {
	repo := &MockAccountRepository{
		GetByEmailFunc: func(ctx context.Context, email string) (*models.Account, error) {
			return nil, errors.New("connection refused")
		},
	}
	svc := NewAccountService(AccountServiceDeps{
		Repo:   repo,
		Tokens: auth.NewOneTimeTokenGenerator(time.Hour),
		Mailer: &MockEmailService{},
		Logger: slog.Default(),
	})

	_, err := svc.Register(context.Background(), RegisterInput{Username: "a", Email: "a@example.com", Password: "password-one"})
	require.Error(t, err)
	assert.False(t, errors.Is(err, models.ErrConflict))
	assert.False(t, errors.Is(err, models.ErrNotFound))
}

func TestAccountService_Verify_OnlyOnce(t *testing.T) {
	f := newServiceFixture(t)
	ctx := context.Background()

	_, err := f.svc.Register(ctx, RegisterInput{Username: "u1", Email: "e1@example.com", Password: "password-one"})
	require.NoError(t, err)
	token := f.mailer.LastTokenFor("verification", "e1@example.com")

	account, err := f.svc.Verify(ctx, token)
	require.NoError(t, err)
	assert.True(t, account.Verified)
	assert.Nil(t, account.VerificationTokenHash)
	assert.Nil(t, account.VerificationTokenExpiresAt)

	_, err = f.svc.Verify(ctx, token)
	assert.ErrorIs(t, err, models.ErrNotFound)
}

func TestAccountService_Verify_ExpiredMatchesUnknown(t *testing.T) {
	f := newServiceFixture(t)
	ctx := context.Background()

	_, err := f.svc.Register(ctx, RegisterInput{Username: "u1", Email: "e1@example.com", Password: "password-one"})
	require.NoError(t, err)
	token := f.mailer.LastTokenFor("verification", "e1@example.com")

	f.svc.now = func() time.Time { return time.Now().Add(2 * time.Hour) }

	_, expiredErr := f.svc.Verify(ctx, token)
	_, unknownErr := f.svc.Verify(ctx, strings.Repeat("ab", 32))
	assert.ErrorIs(t, expiredErr, models.ErrNotFound)
	assert.Equal(t, unknownErr, expiredErr)
}

func TestAccountService_Verify_RejectsResetToken(t *testing.T) {
	f := newServiceFixture(t)
	ctx := context.Background()

	_, err := f.svc.Register(ctx, RegisterInput{Username: "u1", Email: "e1@example.com", Password: "password-one"})
	require.NoError(t, err)
	require.NoError(t, f.svc.ForgotPassword(ctx, "e1@example.com"))

	resetToken := f.mailer.LastTokenFor("password_reset", "e1@example.com")
	require.NotEmpty(t, resetToken)

	_, err = f.svc.Verify(ctx, resetToken)
	assert.ErrorIs(t, err, models.ErrNotFound)

	verificationToken := f.mailer.LastTokenFor("verification", "e1@example.com")
	err = f.svc.ResetPassword(ctx, verificationToken, "new-password-1")
	assert.ErrorIs(t, err, models.ErrInvalidToken)
}

func TestAccountService_Login_Unverified(t *testing.T) {
	f := newServiceFixture(t)
	ctx := context.Background()

	_, err := f.svc.Register(ctx, RegisterInput{Username: "u1", Email: "e1@example.com", Password: "password-one"})
	require.NoError(t, err)

	_, err = f.svc.Login(ctx, "e1@example.com", "password-one")
	assert.ErrorIs(t, err, models.ErrEmailNotVerified)

	_, err = f.svc.Login(ctx, "e1@example.com", "wrong-password")
	assert.ErrorIs(t, err, models.ErrEmailNotVerified)
}

func TestAccountService_Login(t *testing.T) {
	f := newServiceFixture(t)
	ctx := context.Background()
	registered := f.registerVerified(t, "u1", "e1@example.com", "password-one")

	t.Run("success", func(t *testing.T) {
		result, err := f.svc.Login(ctx, " E1@example.com ", "password-one")
		require.NoError(t, err)
		assert.Equal(t, registered.ID, result.Account.ID)

		claims, err := f.tm.Verify(result.Token)
		require.NoError(t, err)
		assert.Equal(t, registered.ID, claims.AccountID)
	})

	t.Run("wrong password", func(t *testing.T) {
		_, err := f.svc.Login(ctx, "e1@example.com", "password-two")
		assert.ErrorIs(t, err, models.ErrInvalidCredentials)
	})

	t.Run("unknown email", func(t *testing.T) {
		_, err := f.svc.Login(ctx, "nobody@example.com", "password-one")
		assert.ErrorIs(t, err, models.ErrNotFound)
	})

	t.Run("missing fields", func(t *testing.T) {
		_, err := f.svc.Login(ctx, "", "password-one")
		assert.ErrorIs(t, err, models.ErrMissingFields)
		_, err = f.svc.Login(ctx, "e1@example.com", "")
		assert.ErrorIs(t, err, models.ErrMissingFields)
	})
}

func TestAccountService_ForgotPassword_UnknownEmail(t *testing.T) {
	f := newServiceFixture(t)

	err := f.svc.ForgotPassword(context.Background(), "nobody@example.com")
	assert.NoError(t, err)
	assert.Empty(t, f.mailer.Sent)
}

func TestAccountService_ForgotPassword_MailFailure(t *testing.T) {
	f := newServiceFixture(t)
	f.registerVerified(t, "u1", "e1@example.com", "password-one")
	f.mailer.SendPasswordResetEmailFunc = func(ctx context.Context, email, username, token string, expiresAt time.Time) error {
		return errors.New("ses throttled")
	}

	err := f.svc.ForgotPassword(context.Background(), "e1@example.com")
	assert.Error(t, err)
}

func TestAccountService_ResetPassword_RoundTrip(t *testing.T) {
	f := newServiceFixture(t)
	ctx := context.Background()
	f.registerVerified(t, "u1", "e1@example.com", "old-password")

	require.NoError(t, f.svc.ForgotPassword(ctx, "e1@example.com"))
	token := f.mailer.LastTokenFor("password_reset", "e1@example.com")

	require.NoError(t, f.svc.ResetPassword(ctx, token, "new-password"))

	_, err := f.svc.Login(ctx, "e1@example.com", "old-password")
	assert.ErrorIs(t, err, models.ErrInvalidCredentials)

	_, err = f.svc.Login(ctx, "e1@example.com", "new-password")
	assert.NoError(t, err)

	err = f.svc.ResetPassword(ctx, token, "third-password")
	assert.ErrorIs(t, err, models.ErrInvalidToken)
}

func TestAccountService_ResetPassword_Expired(t *testing.T) {
	f := newServiceFixture(t)
	ctx := context.Background()
	f.registerVerified(t, "u1", "e1@example.com", "old-password")

	require.NoError(t, f.svc.ForgotPassword(ctx, "e1@example.com"))
	token := f.mailer.LastTokenFor("password_reset", "e1@example.com")

	f.svc.now = func() time.Time { return time.Now().Add(61 * time.Minute) }

	err := f.svc.ResetPassword(ctx, token, "new-password")
	assert.ErrorIs(t, err, models.ErrInvalidToken)
}

func TestAccountService_ResetPassword_Validation(t *testing.T) {
	f := newServiceFixture(t)
	ctx := context.Background()

	assert.ErrorIs(t, f.svc.ResetPassword(ctx, "token", ""), models.ErrMissingFields)
	assert.ErrorIs(t, f.svc.ResetPassword(ctx, "token", "short"), models.ErrBadRequest)
	assert.ErrorIs(t, f.svc.ResetPassword(ctx, "", "long-enough"), models.ErrInvalidToken)
}

func TestAccountService_UpdateProfile_MergesPresentFields(t *testing.T) {
	f := newServiceFixture(t)
	ctx := context.Background()
	account := f.registerVerified(t, "u1", "e1@example.com", "password-one")

	fullName := "User One"
	bio := "first bio"
	updated, err := f.svc.UpdateProfile(ctx, account.ID, models.ProfilePatch{FullName: &fullName, Bio: &bio}, nil)
	require.NoError(t, err)
	assert.Equal(t, "User One", updated.Profile.FullName)
	assert.Equal(t, "default-avatar.png", updated.Profile.ProfilePic, "picture untouched without upload")

	location := "Berlin"
	updated, err = f.svc.UpdateProfile(ctx, account.ID, models.ProfilePatch{Location: &location}, nil)
	require.NoError(t, err)
	assert.Equal(t, "User One", updated.Profile.FullName)
	assert.Equal(t, "first bio", updated.Profile.Bio)
	assert.Equal(t, "Berlin", updated.Profile.Location)
}

func TestAccountService_UpdateProfile_WithPicture(t *testing.T) {
	f := newServiceFixture(t)
	ctx := context.Background()
	account := f.registerVerified(t, "u1", "e1@example.com", "password-one")

	var uploaded []byte
	f.images.UploadFunc = func(ctx context.Context, accountID string, r io.Reader) (string, error) {
		uploaded, _ = io.ReadAll(r)
		return "https://cdn.example.com/profiles/" + accountID + "/new.png", nil
	}

	updated, err := f.svc.UpdateProfile(ctx, account.ID, models.ProfilePatch{}, strings.NewReader("png-bytes"))
	require.NoError(t, err)
	assert.Equal(t, []byte("png-bytes"), uploaded)
	assert.Equal(t, "https://cdn.example.com/profiles/"+account.ID+"/new.png", updated.Profile.ProfilePic)
}

func TestAccountService_UpdateProfile_Errors(t *testing.T) {
	f := newServiceFixture(t)
	ctx := context.Background()
	account := f.registerVerified(t, "u1", "e1@example.com", "password-one")

	location := "Berlin"
	_, err := f.svc.UpdateProfile(ctx, "missing-id", models.ProfilePatch{Location: &location}, nil)
	assert.ErrorIs(t, err, models.ErrNotFound)

	_, err = f.svc.UpdateProfile(ctx, account.ID, models.ProfilePatch{}, nil)
	assert.ErrorIs(t, err, models.ErrBadRequest)

	longBio := strings.Repeat("x", MaxBioLength+1)
	_, err = f.svc.UpdateProfile(ctx, account.ID, models.ProfilePatch{Bio: &longBio}, nil)
	assert.ErrorIs(t, err, models.ErrBadRequest)

	f.images.UploadFunc = func(ctx context.Context, accountID string, r io.Reader) (string, error) {
		return "", models.ErrUnsupportedImage
	}
	_, err = f.svc.UpdateProfile(ctx, account.ID, models.ProfilePatch{}, strings.NewReader("gif"))
	assert.ErrorIs(t, err, models.ErrUnsupportedImage)

	stored, err := f.svc.Me(ctx, account.ID)
	require.NoError(t, err)
	assert.Equal(t, "default-avatar.png", stored.Profile.ProfilePic)
}

func TestAccountService_Me(t *testing.T) {
	f := newServiceFixture(t)
	account := f.registerVerified(t, "u1", "e1@example.com", "password-one")

	me, err := f.svc.Me(context.Background(), account.ID)
	require.NoError(t, err)
	assert.Equal(t, account.ID, me.ID)

	_, err = f.svc.Me(context.Background(), "unknown")
	assert.ErrorIs(t, err, models.ErrNotFound)
}

// staleReadRepo runs between once after GetByEmail has loaded an account, so
// the caller continues with a stale copy
type staleReadRepo struct {
	*InMemoryAccountRepository
	between func()
}

func (r *staleReadRepo) GetByEmail(ctx context.Context, email string) (*models.Account, error) {
	account, err := r.InMemoryAccountRepository.GetByEmail(ctx, email)
	if r.between != nil {
		between := r.between
		r.between = nil
		between()
	}
	return account, err
}

func TestAccountService_ForgotPassword_KeepsConcurrentVerification(t *testing.T) {
	f := newServiceFixture(t)
	ctx := context.Background()
	repo := &staleReadRepo{InMemoryAccountRepository: f.repo}
	f.svc.repo = repo

	_, err := f.svc.Register(ctx, RegisterInput{Username: "u1", Email: "e1@example.com", Password: "password-one"})
	require.NoError(t, err)
	verificationToken := f.mailer.LastTokenFor("verification", "e1@example.com")

	repo.between = func() {
		_, err := f.svc.Verify(ctx, verificationToken)
		require.NoError(t, err)
	}
	require.NoError(t, f.svc.ForgotPassword(ctx, "e1@example.com"))

	stored, err := f.repo.GetByEmail(ctx, "e1@example.com")
	require.NoError(t, err)
	assert.True(t, stored.Verified)
	assert.Nil(t, stored.VerificationTokenHash)

	_, err = f.svc.Verify(ctx, verificationToken)
	assert.ErrorIs(t, err, models.ErrNotFound)
}

func TestAccountService_UpdateProfile_KeepsResetDuringUpload(t *testing.T) {
	f := newServiceFixture(t)
	ctx := context.Background()
	account := f.registerVerified(t, "u1", "e1@example.com", "password-one")

	require.NoError(t, f.svc.ForgotPassword(ctx, "e1@example.com"))
	resetToken := f.mailer.LastTokenFor("password_reset", "e1@example.com")

	f.images.UploadFunc = func(ctx context.Context, accountID string, r io.Reader) (string, error) {
		require.NoError(t, f.svc.ResetPassword(ctx, resetToken, "password-two"))
		return "https://cdn.example.com/profiles/" + accountID + "/new.png", nil
	}

	updated, err := f.svc.UpdateProfile(ctx, account.ID, models.ProfilePatch{}, strings.NewReader("png-bytes"))
	require.NoError(t, err)
	assert.Nil(t, updated.ResetTokenHash)
	assert.True(t, updated.Verified)

	err = f.svc.ResetPassword(ctx, resetToken, "password-three")
	assert.ErrorIs(t, err, models.ErrInvalidToken)

	_, err = f.svc.Login(ctx, "e1@example.com", "password-three")
	assert.ErrorIs(t, err, models.ErrInvalidCredentials)
	_, err = f.svc.Login(ctx, "e1@example.com", "password-two")
	assert.NoError(t, err)
}
