package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/caarlos0/env/v10"
	"github.com/joho/godotenv"
)

type Config struct {
	Server   ServerConfig   `envPrefix:"SERVER_"`
	Database DatabaseConfig `envPrefix:"DB_"`
	Auth     AuthConfig     `envPrefix:"AUTH_"`
	Email    EmailConfig    `envPrefix:"EMAIL_"`
	Images   ImageConfig    `envPrefix:"IMAGES_"`
}

type ServerConfig struct {
	Port           string        `env:"PORT" envDefault:"8080"`
	Env            string        `env:"ENV" envDefault:"development"`
	LogLevel       string        `env:"LOG_LEVEL" envDefault:"info"`
	BasePath       string        `env:"BASE_PATH" envDefault:"/api/users"`
	AllowedOrigins []string      `env:"ALLOWED_ORIGINS" envSeparator:","`
	ReadTimeout    time.Duration `env:"READ_TIMEOUT" envDefault:"15s"`
	WriteTimeout   time.Duration `env:"WRITE_TIMEOUT" envDefault:"30s"`
	IdleTimeout    time.Duration `env:"IDLE_TIMEOUT" envDefault:"60s"`
}

type DatabaseConfig struct {
	URL             string        `env:"URL,required"`
	MaxConns        int32         `env:"MAX_CONNS" envDefault:"25"`
	MinConns        int32         `env:"MIN_CONNS" envDefault:"2"`
	MaxConnLifetime time.Duration `env:"MAX_CONN_LIFETIME" envDefault:"5m"`
	MaxConnIdleTime time.Duration `env:"MAX_CONN_IDLE_TIME" envDefault:"1m"`
	ConnectTimeout  time.Duration `env:"CONNECT_TIMEOUT" envDefault:"10s"`
}

type AuthConfig struct {
	JWTSecret            string        `env:"JWT_SECRET,required"`
	SessionTTL           time.Duration `env:"SESSION_TTL" envDefault:"24h"`
	OneTimeTokenTTL      time.Duration `env:"ONE_TIME_TOKEN_TTL" envDefault:"1h"`
	CookieDomain         string        `env:"COOKIE_DOMAIN"`
	CookieSecure         bool          `env:"COOKIE_SECURE" envDefault:"true"`
	CookieSameSite       string        `env:"COOKIE_SAME_SITE" envDefault:"none"`
	TimingBaseDelayMs    int           `env:"TIMING_BASE_DELAY_MS" envDefault:"0"`
	TimingRandomDelayMs  int           `env:"TIMING_RANDOM_DELAY_MS" envDefault:"0"`
	ResetRequiresSession bool          `env:"RESET_REQUIRES_SESSION" envDefault:"false"`
	TokenSweepInterval   time.Duration `env:"TOKEN_SWEEP_INTERVAL" envDefault:"15m"`
}

type EmailConfig struct {
	AWSRegion   string `env:"AWS_REGION" envDefault:"us-east-1"`
	FromAddress string `env:"FROM_ADDRESS,required"`
	FromName    string `env:"FROM_NAME" envDefault:"Weg Blog"`
	AppBaseURL  string `env:"APP_BASE_URL" envDefault:"http://localhost:8080"`
}

type ImageConfig struct {
	S3Region       string `env:"S3_REGION" envDefault:"us-east-1"`
	S3Bucket       string `env:"S3_BUCKET,required"`
	S3Endpoint     string `env:"S3_ENDPOINT"`
	S3AccessKey    string `env:"S3_ACCESS_KEY"`
	S3SecretKey    string `env:"S3_SECRET_KEY"`
	PublicBaseURL  string `env:"PUBLIC_BASE_URL"`
	MaxUploadBytes int64  `env:"MAX_UPLOAD_BYTES" envDefault:"5242880"`
	DefaultPicture string `env:"DEFAULT_PICTURE" envDefault:"default-avatar.png"`
}

// Load reads the process environment (and .env when present) once
func Load() (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("failed to parse environment: %w", err)
	}

	cfg.Server.Env = strings.ToLower(strings.TrimSpace(cfg.Server.Env))
	cfg.Server.BasePath = "/" + strings.Trim(cfg.Server.BasePath, "/")
	cfg.Server.AllowedOrigins = normalizeOrigins(cfg.Server.AllowedOrigins, cfg.Server.Env)

	if err := validateJWTSecret(cfg.Auth.JWTSecret, cfg.Server.Env); err != nil {
		return nil, err
	}

	switch cfg.Auth.CookieSameSite {
	case "strict", "lax", "none":
	default:
		return nil, fmt.Errorf("AUTH_COOKIE_SAME_SITE must be one of strict, lax, none (got %q)", cfg.Auth.CookieSameSite)
	}

	if cfg.Auth.CookieSameSite == "none" && !cfg.Auth.CookieSecure {
		return nil, fmt.Errorf("AUTH_COOKIE_SECURE must be true when AUTH_COOKIE_SAME_SITE is none")
	}

	if cfg.Auth.SessionTTL <= 0 || cfg.Auth.OneTimeTokenTTL <= 0 {
		return nil, fmt.Errorf("token lifetimes must be positive")
	}

	return cfg, nil
}

// IsProduction reports whether the service runs in production mode
func (c *Config) IsProduction() bool {
	return c.Server.Env == "production"
}

// validateJWTSecret enforces minimum security standards for the session signing secret
func validateJWTSecret(secret, env string) error {
	minLength := 16
	if env == "production" {
		minLength = 32 // 256 bits
	}

	if len(secret) < minLength {
		return fmt.Errorf("AUTH_JWT_SECRET must be at least %d characters in %s environment (got %d)",
			minLength, env, len(secret))
	}

	weakSecrets := []string{
		"secret", "test", "password", "12345", "changeme",
		"admin", "root", "default", "example",
	}

	secretLower := strings.ToLower(secret)
	for _, weak := range weakSecrets {
		if secretLower == weak {
			return fmt.Errorf("AUTH_JWT_SECRET cannot be a common weak value")
		}
	}

	return nil
}

func normalizeOrigins(origins []string, env string) []string {
	cleaned := make([]string, 0, len(origins))
	for _, origin := range origins {
		if origin = strings.TrimSpace(origin); origin != "" {
			cleaned = append(cleaned, origin)
		}
	}

	if len(cleaned) > 0 || env == "production" {
		return cleaned
	}

	// Development: allow localhost variants
	return []string{
		"http://localhost:3000",
		"http://localhost:5173", // Vite default
		"http://localhost:8080",
		"http://127.0.0.1:3000",
		"http://127.0.0.1:5173",
		"http://127.0.0.1:8080",
	}
}
