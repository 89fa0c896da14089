package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/BradenHooton/accountd/internal/auth"
	"github.com/BradenHooton/accountd/internal/background"
	"github.com/BradenHooton/accountd/internal/config"
	"github.com/BradenHooton/accountd/internal/database"
	"github.com/BradenHooton/accountd/internal/handlers"
	middlewareCustom "github.com/BradenHooton/accountd/internal/middleware"
	"github.com/BradenHooton/accountd/internal/repositories"
	"github.com/BradenHooton/accountd/internal/routes"
	"github.com/BradenHooton/accountd/internal/services"
	pkglogger "github.com/BradenHooton/accountd/pkg/logger"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	slog.SetDefault(logger)

	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		logger.Error("failed to load configuration", slog.Any("error", err))
		os.Exit(1)
	}

	logger = slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: parseLevel(cfg.Server.LogLevel)}))
	slog.SetDefault(logger)
	logger.Info("configuration loaded",
		slog.String("env", cfg.Server.Env),
		pkglogger.RedactedAttr("email_from", cfg.Email.FromAddress, cfg.Server.Env),
		pkglogger.RedactedAttr("s3_bucket", cfg.Images.S3Bucket, cfg.Server.Env))

	// Initialize database
	db, err := database.NewConnection(&cfg.Database, logger)
	if err != nil {
		logger.Error("failed to connect to database", slog.Any("error", err))
		os.Exit(1)
	}
	defer db.Close()

	migrateCtx, migrateCancel := context.WithTimeout(context.Background(), time.Minute)
	err = db.Migrate(migrateCtx)
	migrateCancel()
	if err != nil {
		logger.Error("failed to apply migrations", slog.Any("error", err))
		os.Exit(1)
	}

	accountRepo := repositories.NewAccountRepository(db)
	cleanupManager := background.NewCleanupManager(accountRepo, logger, cfg.Auth.TokenSweepInterval)

	tokenManager := auth.NewTokenManager(cfg.Auth.JWTSecret, cfg.Auth.SessionTTL)
	oneTimeTokens := auth.NewOneTimeTokenGenerator(cfg.Auth.OneTimeTokenTTL)
	timingDelay := auth.NewTimingDelay(auth.TimingConfig{
		BaseDelayMs:   cfg.Auth.TimingBaseDelayMs,
		RandomDelayMs: cfg.Auth.TimingRandomDelayMs,
	})

	// AWS clients
	initCtx, initCancel := context.WithTimeout(context.Background(), 10*time.Second)
	emailService, err := services.NewAWSSESEmailService(initCtx, cfg.Email, logger)
	if err != nil {
		initCancel()
		logger.Error("failed to initialize email service", slog.Any("error", err))
		os.Exit(1)
	}
	imageStore, err := services.NewS3ImageStore(initCtx, cfg.Images, logger)
	initCancel()
	if err != nil {
		logger.Error("failed to initialize image store", slog.Any("error", err))
		os.Exit(1)
	}

	accountService := services.NewAccountService(services.AccountServiceDeps{
		Repo:           accountRepo,
		Sessions:       tokenManager,
		Tokens:         oneTimeTokens,
		Mailer:         emailService,
		Images:         imageStore,
		Timing:         timingDelay,
		Logger:         logger,
		DefaultPicture: cfg.Images.DefaultPicture,
	})

	accountHandler := handlers.NewAccountHandler(accountService, handlers.AccountHandlerConfig{
		Cookie: auth.CookieConfig{
			Domain:   cfg.Auth.CookieDomain,
			Secure:   cfg.Auth.CookieSecure,
			SameSite: cfg.Auth.CookieSameSite,
		},
		SessionTTL:     tokenManager.TTL(),
		MaxUploadBytes: cfg.Images.MaxUploadBytes,
		ExposeDetails:  !cfg.IsProduction(),
	}, logger)

	// Setup router
	router := chi.NewRouter()
	router.Use(middleware.RequestID)
	router.Use(middleware.RealIP)
	router.Use(middlewareCustom.SecurityHeaders(middlewareCustom.SecurityHeadersConfig{Env: cfg.Server.Env}))
	router.Use(middlewareCustom.CORS(middlewareCustom.NewCORSConfig(cfg.Server.AllowedOrigins)))
	router.Use(middlewareCustom.SecureLogger(logger))
	router.Use(middleware.Recoverer)
	router.Use(middleware.Timeout(60 * time.Second))

	router.Get("/health", handlers.Health(db, logger))
	routes.RegisterRoutes(router, accountHandler, tokenManager, routes.Options{
		BasePath:             cfg.Server.BasePath,
		ResetRequiresSession: cfg.Auth.ResetRequiresSession,
	})

	server := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	// Start cleanup task
	cleanupCtx, cleanupCancel := context.WithCancel(context.Background())
	defer cleanupCancel()

	go cleanupManager.Start(cleanupCtx)

	// Start server
	go func() {
		logger.Info("starting server", slog.String("addr", server.Addr), slog.String("base_path", cfg.Server.BasePath))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("server error", slog.Any("error", err))
			os.Exit(1)
		}
	}()

	// Graceful shutdown
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	<-sigChan

	logger.Info("shutdown signal received")

	cleanupManager.Stop()
	cleanupCancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown error", slog.Any("error", err))
		return
	}

	logger.Info("server stopped gracefully")
}

func parseLevel(level string) slog.Level {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
