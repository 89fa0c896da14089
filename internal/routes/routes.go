package routes

import (
	"net/http"

	"github.com/BradenHooton/accountd/internal/auth"
	"github.com/BradenHooton/accountd/internal/handlers"
	"github.com/go-chi/chi/v5"
)

// Options controls route registration
type Options struct {
	BasePath string
	// ResetRequiresSession puts forgotPassword and resetPassword behind the session gate
	ResetRequiresSession bool
}

// RegisterRoutes registers the account routes under opts.BasePath
func RegisterRoutes(
	router chi.Router,
	accountHandler *handlers.AccountHandler,
	sessions auth.SessionVerifier,
	opts Options,
) {
	gate := auth.SessionMiddleware(sessions)

	resetMiddleware := func(next http.Handler) http.Handler { return next }
	if opts.ResetRequiresSession {
		resetMiddleware = gate
	}

	router.Route(opts.BasePath, func(r chi.Router) {
		// Public routes - no authentication required
		r.Post("/register", accountHandler.Register)
		r.Post("/login", accountHandler.Login)
		r.Post("/logout", accountHandler.Logout)
		r.Get("/verify/{verificationToken}", accountHandler.Verify)

		r.With(resetMiddleware).Post("/forgotPassword", accountHandler.ForgotPassword)
		r.With(resetMiddleware).Post("/resetPassword/{token}", accountHandler.ResetPassword)

		// Protected routes - session cookie required
		r.Group(func(r chi.Router) {
			r.Use(gate)
			r.Get("/me", accountHandler.Me)
			r.Put("/updateProfile", accountHandler.UpdateProfile)
		})
	})
}
