package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/BradenHooton/accountd/internal/auth"
	"github.com/BradenHooton/accountd/internal/models"
	"github.com/BradenHooton/accountd/internal/services"
	pkghttp "github.com/BradenHooton/accountd/pkg/http"
	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
)

// NewTestRequest creates an HTTP request with JSON body for testing
func NewTestRequest(t *testing.T, method, url string, body interface{}) *http.Request {
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("failed to encode request body: %v", err)
		}
	}
	req := httptest.NewRequest(method, url, &buf)
	req.Header.Set("Content-Type", "application/json")
	return req
}

// WithSessionContext adds session claims to request context for testing authenticated endpoints
func WithSessionContext(req *http.Request, accountID string) *http.Request {
	claims := &models.SessionClaims{
		Type:      models.SessionTokenType,
		AccountID: accountID,
	}
	return req.WithContext(auth.WithSession(req.Context(), claims))
}

// WithURLParam sets a chi URL parameter on the request
func WithURLParam(req *http.Request, key, value string) *http.Request {
	rctx := chi.NewRouteContext()
	rctx.URLParams.Add(key, value)
	return req.WithContext(context.WithValue(req.Context(), chi.RouteCtxKey, rctx))
}

// AssertJSONResponse checks that response has correct status and decodes JSON body
func AssertJSONResponse(t *testing.T, w *httptest.ResponseRecorder, expectedStatus int, target interface{}) {
	assert.Equal(t, expectedStatus, w.Code, "Response status mismatch")
	assert.Equal(t, "application/json", w.Header().Get("Content-Type"), "Content-Type should be application/json")

	if target != nil {
		err := json.Unmarshal(w.Body.Bytes(), target)
		assert.NoError(t, err, "Failed to decode response JSON")
	}
}

// AssertErrorResponse checks that response is a valid error response
func AssertErrorResponse(t *testing.T, w *httptest.ResponseRecorder, expectedStatus int, expectedError string) pkghttp.ErrorResponse {
	assert.Equal(t, expectedStatus, w.Code, "Response status mismatch")

	var resp pkghttp.ErrorResponse
	err := json.Unmarshal(w.Body.Bytes(), &resp)
	assert.NoError(t, err, "Failed to decode error response")
	assert.Equal(t, expectedError, resp.Error, "Error code mismatch")
	assert.NotEmpty(t, resp.Message, "Error message should not be empty")
	return resp
}

// MockAccountService implements AccountServiceInterface for testing
type MockAccountService struct {
	RegisterFunc       func(ctx context.Context, in services.RegisterInput) (*models.Account, error)
	VerifyFunc         func(ctx context.Context, plainToken string) (*models.Account, error)
	LoginFunc          func(ctx context.Context, email, password string) (*services.LoginResult, error)
	ForgotPasswordFunc func(ctx context.Context, email string) error
	ResetPasswordFunc  func(ctx context.Context, plainToken, newPassword string) error
	UpdateProfileFunc  func(ctx context.Context, accountID string, patch models.ProfilePatch, picture io.Reader) (*models.Account, error)
	MeFunc             func(ctx context.Context, accountID string) (*models.Account, error)
}

func (m *MockAccountService) Register(ctx context.Context, in services.RegisterInput) (*models.Account, error) {
	if m.RegisterFunc == nil {
		return nil, models.ErrConflict
	}
	return m.RegisterFunc(ctx, in)
}

func (m *MockAccountService) Verify(ctx context.Context, plainToken string) (*models.Account, error) {
	if m.VerifyFunc == nil {
		return nil, models.ErrNotFound
	}
	return m.VerifyFunc(ctx, plainToken)
}

func (m *MockAccountService) Login(ctx context.Context, email, password string) (*services.LoginResult, error) {
	if m.LoginFunc == nil {
		return nil, models.ErrInvalidCredentials
	}
	return m.LoginFunc(ctx, email, password)
}

func (m *MockAccountService) ForgotPassword(ctx context.Context, email string) error {
	if m.ForgotPasswordFunc == nil {
		return nil
	}
	return m.ForgotPasswordFunc(ctx, email)
}

func (m *MockAccountService) ResetPassword(ctx context.Context, plainToken, newPassword string) error {
	if m.ResetPasswordFunc == nil {
		return models.ErrInvalidToken
	}
	return m.ResetPasswordFunc(ctx, plainToken, newPassword)
}

func (m *MockAccountService) UpdateProfile(ctx context.Context, accountID string, patch models.ProfilePatch, picture io.Reader) (*models.Account, error) {
	if m.UpdateProfileFunc == nil {
		return nil, models.ErrNotFound
	}
	return m.UpdateProfileFunc(ctx, accountID, patch, picture)
}

func (m *MockAccountService) Me(ctx context.Context, accountID string) (*models.Account, error) {
	if m.MeFunc == nil {
		return nil, models.ErrNotFound
	}
	return m.MeFunc(ctx, accountID)
}
