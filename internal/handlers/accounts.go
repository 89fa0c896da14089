package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"strings"
	"time"

	"github.com/BradenHooton/accountd/internal/auth"
	"github.com/BradenHooton/accountd/internal/models"
	"github.com/BradenHooton/accountd/internal/services"
	pkghttp "github.com/BradenHooton/accountd/pkg/http"
	"github.com/go-chi/chi/v5"
)

// AccountServiceInterface defines the interface for account business logic
type AccountServiceInterface interface {
	Register(ctx context.Context, in services.RegisterInput) (*models.Account, error)
	Verify(ctx context.Context, plainToken string) (*models.Account, error)
	Login(ctx context.Context, email, password string) (*services.LoginResult, error)
	ForgotPassword(ctx context.Context, email string) error
	ResetPassword(ctx context.Context, plainToken, newPassword string) error
	UpdateProfile(ctx context.Context, accountID string, patch models.ProfilePatch, picture io.Reader) (*models.Account, error)
	Me(ctx context.Context, accountID string) (*models.Account, error)
}

// AccountHandlerConfig carries the HTTP-level settings of AccountHandler
type AccountHandlerConfig struct {
	Cookie         auth.CookieConfig
	SessionTTL     time.Duration
	MaxUploadBytes int64
	ExposeDetails  bool // attach internal error text to 500 responses
}

// AccountHandler handles account HTTP requests
type AccountHandler struct {
	service AccountServiceInterface
	config  AccountHandlerConfig
	logger  *slog.Logger
}

// NewAccountHandler creates a new AccountHandler
func NewAccountHandler(service AccountServiceInterface, config AccountHandlerConfig, logger *slog.Logger) *AccountHandler {
	return &AccountHandler{service: service, config: config, logger: logger}
}

// Request DTOs

// RegisterRequest represents the request body for registration
type RegisterRequest struct {
	Username string `json:"username" validate:"required,max=64"`
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required,min=8,max=72"`
	Role     string `json:"role" validate:"omitempty,oneof=user admin"`
}

// LoginRequest represents the request body for login
type LoginRequest struct {
	Email    string `json:"email" validate:"required"`
	Password string `json:"password" validate:"required"`
}

// ForgotPasswordRequest represents the request body for a reset link
type ForgotPasswordRequest struct {
	Email string `json:"email" validate:"required,email"`
}

// ResetPasswordRequest represents the request body for a password reset
type ResetPasswordRequest struct {
	Password string `json:"password" validate:"required,min=8,max=72"`
}

// UpdateProfileRequest holds the optional profile fields. Nil means absent.
type UpdateProfileRequest struct {
	FullName  *string `json:"fullName" validate:"omitempty,max=100"`
	Bio       *string `json:"bio" validate:"omitempty,max=500"`
	BirthDate *string `json:"birthDate"`
	Location  *string `json:"location" validate:"omitempty,max=100"`
	AboutMe   *string `json:"aboutMe" validate:"omitempty,max=2000"`
}

// MessageResponse is a body carrying only a message
type MessageResponse struct {
	Message string `json:"message"`
}

// RegisterResponse is returned by a successful registration
type RegisterResponse struct {
	Message string                              `json:"message"`
	User    *services.RegisteredAccountResponse `json:"user"`
}

// LoginResponse is returned by a successful login. The session token only
// travels in the cookie.
type LoginResponse struct {
	Message string                           `json:"message"`
	User    *services.SessionAccountResponse `json:"user"`
}

// Register handles account registration
// @Router /register [post]
func (h *AccountHandler) Register(w http.ResponseWriter, r *http.Request) {
	var req RegisterRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		pkghttp.WriteBadRequest(w, "Invalid request body")
		return
	}

	if req.Username == "" || req.Email == "" || req.Password == "" {
		pkghttp.WriteError(w, http.StatusBadRequest, "missing_fields", "All fields are required")
		return
	}

	if err := ValidateRequest(req); err != nil {
		pkghttp.WriteBadRequest(w, err.Error())
		return
	}

	account, err := h.service.Register(r.Context(), services.RegisterInput{
		Username: req.Username,
		Email:    req.Email,
		Password: req.Password,
		Role:     req.Role,
	})
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}

	pkghttp.WriteJSON(w, http.StatusCreated, RegisterResponse{
		Message: "User registered successfully. Please check your email to verify your account.",
		User: &services.RegisteredAccountResponse{
			Username: account.Username,
			Email:    account.Email,
		},
	})
}

// Verify consumes an email verification token from the path
// @Router /verify/{verificationToken} [get]
func (h *AccountHandler) Verify(w http.ResponseWriter, r *http.Request) {
	token := chi.URLParam(r, "verificationToken")

	if _, err := h.service.Verify(r.Context(), token); err != nil {
		if errors.Is(err, models.ErrNotFound) {
			pkghttp.WriteNotFound(w, "Invalid or expired verification token")
			return
		}
		h.writeServiceError(w, r, err)
		return
	}

	pkghttp.WriteJSON(w, http.StatusOK, MessageResponse{Message: "Email verified successfully"})
}

// Login authenticates a verified account and sets the session cookie
// @Router /login [post]
func (h *AccountHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req LoginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		pkghttp.WriteBadRequest(w, "Invalid request body")
		return
	}

	if err := ValidateRequest(req); err != nil {
		pkghttp.WriteError(w, http.StatusBadRequest, "missing_fields", "All fields are required")
		return
	}

	result, err := h.service.Login(r.Context(), req.Email, req.Password)
	if err != nil {
		switch {
		case errors.Is(err, models.ErrNotFound):
			pkghttp.WriteError(w, http.StatusBadRequest, "not_found", "User not found")
		case errors.Is(err, models.ErrEmailNotVerified):
			pkghttp.WriteError(w, http.StatusBadRequest, "email_not_verified", "Please verify your email before logging in")
		default:
			h.writeServiceError(w, r, err)
		}
		return
	}

	auth.SetSessionCookie(w, result.Token, h.config.SessionTTL, h.config.Cookie)

	pkghttp.WriteJSON(w, http.StatusOK, LoginResponse{
		Message: "Login successful",
		User:    services.NewSessionAccountResponse(result.Account),
	})
}

// Logout clears the session cookie. Session tokens are stateless, so nothing
// else needs to happen.
// @Router /logout [post]
func (h *AccountHandler) Logout(w http.ResponseWriter, r *http.Request) {
	auth.ClearSessionCookie(w, h.config.Cookie)
	pkghttp.WriteJSON(w, http.StatusOK, MessageResponse{Message: "Logged out successfully"})
}

// Me returns the account behind the session cookie
// @Router /me [get]
func (h *AccountHandler) Me(w http.ResponseWriter, r *http.Request) {
	claims := auth.GetSessionFromContext(r)
	if claims == nil {
		pkghttp.WriteBadRequest(w, "User not found")
		return
	}

	account, err := h.service.Me(r.Context(), claims.AccountID)
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			pkghttp.WriteBadRequest(w, "User not found")
			return
		}
		h.writeServiceError(w, r, err)
		return
	}

	pkghttp.WriteJSON(w, http.StatusOK, services.NewAccountResponse(account))
}

// ForgotPassword mails a reset link. The response is the same whether or not
// the email belongs to an account.
// @Router /forgotPassword [post]
func (h *AccountHandler) ForgotPassword(w http.ResponseWriter, r *http.Request) {
	var req ForgotPasswordRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		pkghttp.WriteBadRequest(w, "Invalid request body")
		return
	}

	if err := ValidateRequest(req); err != nil {
		pkghttp.WriteBadRequest(w, err.Error())
		return
	}

	if err := h.service.ForgotPassword(r.Context(), req.Email); err != nil {
		h.writeServiceError(w, r, err)
		return
	}

	pkghttp.WriteJSON(w, http.StatusOK, MessageResponse{
		Message: "If an account with that email exists, a password reset link has been sent",
	})
}

// ResetPassword sets a new password using the reset token from the path
// @Router /resetPassword/{token} [post]
func (h *AccountHandler) ResetPassword(w http.ResponseWriter, r *http.Request) {
	var req ResetPasswordRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		pkghttp.WriteBadRequest(w, "Invalid request body")
		return
	}

	if err := ValidateRequest(req); err != nil {
		pkghttp.WriteBadRequest(w, err.Error())
		return
	}

	if err := h.service.ResetPassword(r.Context(), chi.URLParam(r, "token"), req.Password); err != nil {
		h.writeServiceError(w, r, err)
		return
	}

	pkghttp.WriteJSON(w, http.StatusOK, MessageResponse{Message: "Password reset successfully"})
}

// UpdateProfile merges the submitted profile fields and an optional picture
// @Router /updateProfile [put]
func (h *AccountHandler) UpdateProfile(w http.ResponseWriter, r *http.Request) {
	claims := auth.GetSessionFromContext(r)
	if claims == nil {
		pkghttp.WriteUnauthorized(w, "Unauthorized - no token provided")
		return
	}

	req, picture, err := h.decodeProfileRequest(w, r)
	if err != nil {
		pkghttp.WriteBadRequest(w, err.Error())
		return
	}
	if picture != nil {
		defer picture.Close()
	}

	if err := ValidateRequest(req); err != nil {
		pkghttp.WriteBadRequest(w, err.Error())
		return
	}

	patch, err := req.toPatch()
	if err != nil {
		pkghttp.WriteBadRequest(w, err.Error())
		return
	}

	var pictureReader io.Reader
	if picture != nil {
		pictureReader = picture
	}

	account, err := h.service.UpdateProfile(r.Context(), claims.AccountID, patch, pictureReader)
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			pkghttp.WriteNotFound(w, "User not found")
			return
		}
		h.writeServiceError(w, r, err)
		return
	}

	pkghttp.WriteJSON(w, http.StatusOK, services.NewAccountResponse(account))
}

// decodeProfileRequest accepts multipart form data (with an optional
// profilePic file) or a JSON body.
func (h *AccountHandler) decodeProfileRequest(w http.ResponseWriter, r *http.Request) (UpdateProfileRequest, multipart.File, error) {
	var req UpdateProfileRequest

	if !strings.HasPrefix(r.Header.Get("Content-Type"), "multipart/form-data") {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			return req, nil, errors.New("invalid request body")
		}
		return req, nil, nil
	}

	// Room for the picture plus the text fields
	r.Body = http.MaxBytesReader(w, r.Body, h.config.MaxUploadBytes+1<<20)
	if err := r.ParseMultipartForm(h.config.MaxUploadBytes); err != nil {
		return req, nil, errors.New("invalid multipart form")
	}

	values := r.MultipartForm.Value
	field := func(name string) *string {
		if v, ok := values[name]; ok && len(v) > 0 {
			s := v[0]
			return &s
		}
		return nil
	}
	req.FullName = field("fullName")
	req.Bio = field("bio")
	req.BirthDate = field("birthDate")
	req.Location = field("location")
	req.AboutMe = field("aboutMe")

	file, _, err := r.FormFile("profilePic")
	if err != nil {
		if errors.Is(err, http.ErrMissingFile) {
			return req, nil, nil
		}
		return req, nil, errors.New("invalid profile picture")
	}

	return req, file, nil
}

func (req UpdateProfileRequest) toPatch() (models.ProfilePatch, error) {
	patch := models.ProfilePatch{
		FullName: req.FullName,
		Bio:      req.Bio,
		Location: req.Location,
		AboutMe:  req.AboutMe,
	}

	if req.BirthDate != nil && *req.BirthDate != "" {
		birthDate, err := parseBirthDate(*req.BirthDate)
		if err != nil {
			return patch, err
		}
		patch.BirthDate = &birthDate
	}

	return patch, nil
}

func parseBirthDate(value string) (time.Time, error) {
	if t, err := time.Parse("2006-01-02", value); err == nil {
		return t, nil
	}
	if t, err := time.Parse(time.RFC3339, value); err == nil {
		return t.UTC(), nil
	}
	return time.Time{}, errors.New("validation failed: birthDate: must be a date (YYYY-MM-DD)")
}

// writeServiceError maps service errors onto the HTTP error taxonomy
func (h *AccountHandler) writeServiceError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, models.ErrMissingFields):
		pkghttp.WriteError(w, http.StatusBadRequest, "missing_fields", "All fields are required")
	case errors.Is(err, models.ErrConflict):
		pkghttp.WriteError(w, http.StatusBadRequest, "already_exists", "User already exists")
	case errors.Is(err, models.ErrInvalidCredentials):
		pkghttp.WriteError(w, http.StatusBadRequest, "invalid_credentials", "Invalid credentials")
	case errors.Is(err, models.ErrInvalidToken):
		pkghttp.WriteError(w, http.StatusBadRequest, "invalid_token", "Invalid or expired token")
	case errors.Is(err, models.ErrUnsupportedImage), errors.Is(err, models.ErrImageTooLarge):
		pkghttp.WriteBadRequest(w, err.Error())
	case errors.Is(err, models.ErrBadRequest):
		pkghttp.WriteBadRequest(w, strings.TrimPrefix(err.Error(), models.ErrBadRequest.Error()+": "))
	case errors.Is(err, models.ErrNotFound):
		pkghttp.WriteNotFound(w, "Resource not found")
	default:
		h.logger.Error("request failed",
			slog.String("method", r.Method),
			slog.String("path", r.URL.Path),
			slog.Any("error", err))
		pkghttp.WriteInternalErrorFor(w, err, h.config.ExposeDetails)
	}
}
