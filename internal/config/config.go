package config

import (
	"fmt"
	"net/http"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Development defaults. Validate refuses them in production.
const (
	DefaultJWTSecret  = "your_secure_jwt_secret_key_here"
	DefaultDBPassword = "fpinnova_secure_pass"
)

// Config holds all application configuration
type Config struct {
	Server    ServerConfig
	Database  DatabaseConfig
	JWT       JWTConfig
	Session   SessionConfig
	TwoFactor TwoFactorConfig
	Email     EmailConfig
	CORS      CORSConfig
	RateLimit RateLimitConfig
	App       AppConfig
	Log       LogConfig
	Scheduler SchedulerConfig
	Vault     VaultConfig
	Storage   StorageConfig
	Admin     AdminConfig
}

// ServerConfig holds server-related configuration
type ServerConfig struct {
	Host         string
	Port         string
	TimeoutRead  time.Duration
	TimeoutWrite time.Duration
	TimeoutIdle  time.Duration
}

// DatabaseConfig holds database-related configuration
type DatabaseConfig struct {
	Host            string
	Port            string
	User            string
	Password        string
	Name            string
	SSLMode         string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
	MigrationsPath  string
}

// DSN returns the lib/pq connection string
func (c DatabaseConfig) DSN() string {
	return fmt.Sprintf(
		"host=%s port=%s user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.Name, c.SSLMode,
	)
}

// JWTConfig holds JWT-related configuration
type JWTConfig struct {
	Secret              string
	Expiration          time.Duration
	ChallengeExpiration time.Duration
}

// SessionConfig holds the session cookie settings
type SessionConfig struct {
	CookieName string
	Secure     bool
	SameSite   http.SameSite
	Domain     string
}

// TwoFactorConfig holds second-factor settings
type TwoFactorConfig struct {
	Issuer      string
	MaxAttempts int
	Lockout     time.Duration
	// per-IP budget for the 2FA endpoints
	Requests int
	Duration time.Duration
}

// EmailConfig holds email-related configuration
type EmailConfig struct {
	Provider       string // smtp, sendgrid or log
	SMTPHost       string
	SMTPPort       string
	SMTPUsername   string
	SMTPPassword   string
	From           string
	FromName       string
	SendGridAPIKey string
	FrontendURL    string
}

// CORSConfig holds CORS-related configuration
type CORSConfig struct {
	AllowedOrigins   []string
	AllowedMethods   []string
	AllowedHeaders   []string
	ExposedHeaders   []string
	AllowCredentials bool
	MaxAge           int
}

// RateLimitConfig holds rate limiting configuration
type RateLimitConfig struct {
	Enabled  bool
	Requests int
	Duration time.Duration
}

// AppConfig holds general application configuration
type AppConfig struct {
	Env     string
	Name    string
	Version string
}

// IsDevelopment reports whether detailed errors may be exposed
func (a AppConfig) IsDevelopment() bool {
	return a.Env == "development"
}

// LogConfig holds logging configuration
type LogConfig struct {
	Level string
}

// SchedulerConfig holds scheduler configuration
type SchedulerConfig struct {
	Enabled                bool
	AmendmentExpiryCron    string // e.g. "*/15 * * * *"
	AmendmentReminderCron  string // e.g. "0 8 * * *"
	SessionCleanupCron     string
	CodeExpiryCron         string
	AmendmentReminderHours int
}

// VaultConfig holds Vault-related configuration
type VaultConfig struct {
	Address      string
	Token        string
	TransitMount string
	KeyName      string
	Enabled      bool
	// key material for the local cipher used when Vault is disabled; falls back to the JWT secret
	LocalKey string
}

// StorageConfig holds uploaded document storage settings
type StorageConfig struct {
	UploadDir     string
	MaxUploadSize int64
}

// AdminConfig holds the bootstrap administrator account
type AdminConfig struct {
	Email    string
	Password string
	Name     string
}

// Load loads configuration from environment variables
func Load() (*Config, error) {
	// godotenv doesn't override already-set variables, so order matters
	_ = godotenv.Load(".env")
	_ = godotenv.Load("../.env")

	frontendURL := getEnv("FRONTEND_URL", "http://localhost:5173")
	env := getEnv("APP_ENV", "development")

	cfg := &Config{
		Server: ServerConfig{
			Host:         getEnv("SERVER_HOST", ""),
			Port:         getEnv("PORT", "3000"),
			TimeoutRead:  getDurationEnv("SERVER_TIMEOUT_READ", 15*time.Second),
			TimeoutWrite: getDurationEnv("SERVER_TIMEOUT_WRITE", 30*time.Second),
			TimeoutIdle:  getDurationEnv("SERVER_TIMEOUT_IDLE", 60*time.Second),
		},
		Database: DatabaseConfig{
			Host:            getEnv("DB_HOST", "localhost"),
			Port:            getEnv("DB_PORT", "5432"),
			User:            getEnv("DB_USER", "fpinnova"),
			Password:        getEnv("DB_PASSWORD", DefaultDBPassword),
			Name:            getEnv("DB_NAME", "fpinnova"),
			SSLMode:         getEnv("DB_SSLMODE", "disable"),
			MaxOpenConns:    getIntEnv("DB_MAX_OPEN_CONNS", 10),
			MaxIdleConns:    getIntEnv("DB_MAX_IDLE_CONNS", 5),
			ConnMaxLifetime: getDurationEnv("DB_CONN_MAX_LIFETIME", 5*time.Minute),
			MigrationsPath:  getEnv("MIGRATIONS_PATH", "./migrations"),
		},
		JWT: JWTConfig{
			Secret:              getEnv("JWT_SECRET", DefaultJWTSecret),
			Expiration:          getDurationEnv("JWT_EXPIRATION", 24*time.Hour),
			ChallengeExpiration: getDurationEnv("JWT_CHALLENGE_EXPIRATION", 5*time.Minute),
		},
		Session: SessionConfig{
			CookieName: getEnv("SESSION_COOKIE_NAME", "fpinnova_session"),
			Secure:     getBoolEnv("SESSION_COOKIE_SECURE", env != "development"),
			SameSite:   parseSameSite(getEnv("SESSION_COOKIE_SAMESITE", "lax")),
			Domain:     getEnv("SESSION_COOKIE_DOMAIN", ""),
		},
		TwoFactor: TwoFactorConfig{
			Issuer:      getEnv("TWO_FACTOR_ISSUER", "FP Innova"),
			MaxAttempts: getIntEnv("TWO_FACTOR_MAX_ATTEMPTS", 5),
			Lockout:     getDurationEnv("TWO_FACTOR_LOCKOUT", 15*time.Minute),
			Requests:    getIntEnv("TWO_FACTOR_RATE_REQUESTS", 10),
			Duration:    getDurationEnv("TWO_FACTOR_RATE_DURATION", time.Minute),
		},
		Email: EmailConfig{
			Provider:       strings.ToLower(getEnv("EMAIL_PROVIDER", "log")),
			SMTPHost:       getEnv("SMTP_HOST", ""),
			SMTPPort:       getEnv("SMTP_PORT", "587"),
			SMTPUsername:   getEnv("SMTP_USERNAME", ""),
			SMTPPassword:   getEnv("SMTP_PASSWORD", ""),
			From:           getEnv("EMAIL_FROM", "noreply@fpinnova.local"),
			FromName:       getEnv("EMAIL_FROM_NAME", "FP Innova"),
			SendGridAPIKey: getEnv("SENDGRID_API_KEY", ""),
			FrontendURL:    frontendURL,
		},
		CORS: CORSConfig{
			AllowedOrigins:   getSliceEnv("CORS_ALLOWED_ORIGINS", []string{frontendURL}),
			AllowedMethods:   getSliceEnv("CORS_ALLOWED_METHODS", []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"}),
			AllowedHeaders:   getSliceEnv("CORS_ALLOWED_HEADERS", []string{"Accept", "Content-Type", "X-Request-ID"}),
			ExposedHeaders:   getSliceEnv("CORS_EXPOSED_HEADERS", []string{"X-Request-ID"}),
			AllowCredentials: getBoolEnv("CORS_ALLOW_CREDENTIALS", true),
			MaxAge:           getIntEnv("CORS_MAX_AGE", 300),
		},
		RateLimit: RateLimitConfig{
			Enabled:  getBoolEnv("RATE_LIMIT_ENABLED", true),
			Requests: getIntEnv("RATE_LIMIT_REQUESTS", 300),
			Duration: getDurationEnv("RATE_LIMIT_DURATION", time.Minute),
		},
		App: AppConfig{
			Env:     env,
			Name:    getEnv("APP_NAME", "FP Innova"),
			Version: getEnv("APP_VERSION", "1.0.0"),
		},
		Log: LogConfig{
			Level: getEnv("LOG_LEVEL", "info"),
		},
		Scheduler: SchedulerConfig{
			Enabled:                getBoolEnv("SCHEDULER_ENABLED", true),
			AmendmentExpiryCron:    getEnv("SCHEDULER_AMENDMENT_EXPIRY_CRON", "*/15 * * * *"),
			AmendmentReminderCron:  getEnv("SCHEDULER_AMENDMENT_REMINDER_CRON", "0 8 * * *"),
			SessionCleanupCron:     getEnv("SCHEDULER_SESSION_CLEANUP_CRON", "0 */1 * * *"),
			CodeExpiryCron:         getEnv("SCHEDULER_CODE_EXPIRY_CRON", "30 */1 * * *"),
			AmendmentReminderHours: getIntEnv("SCHEDULER_AMENDMENT_REMINDER_HOURS", 48),
		},
		Vault: VaultConfig{
			Address:      getEnv("VAULT_ADDR", "http://localhost:8200"),
			Token:        getEnv("VAULT_TOKEN", ""),
			TransitMount: getEnv("VAULT_TRANSIT_MOUNT", "transit"),
			KeyName:      getEnv("VAULT_KEY_NAME", "fpinnova-2fa"),
			Enabled:      getBoolEnv("VAULT_ENABLED", false),
			LocalKey:     getEnv("ENCRYPTION_KEY", ""),
		},
		Storage: StorageConfig{
			UploadDir:     getEnv("UPLOAD_DIR", "./uploads"),
			MaxUploadSize: int64(getIntEnv("UPLOAD_MAX_MB", 20)) << 20,
		},
		Admin: AdminConfig{
			Email:    getEnv("ADMIN_EMAIL", ""),
			Password: getEnv("ADMIN_PASSWORD", ""),
			Name:     getEnv("ADMIN_NAME", "Administrador"),
		},
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate validates the configuration
func (c *Config) Validate() error {
	if c.JWT.Secret == "" {
		return fmt.Errorf("JWT_SECRET is required")
	}
	if c.App.Env == "production" {
		if c.JWT.Secret == DefaultJWTSecret {
			return fmt.Errorf("JWT_SECRET must be changed in production")
		}
		if c.Database.Password == "" || c.Database.Password == DefaultDBPassword {
			return fmt.Errorf("DB_PASSWORD must be set in production")
		}
	}
	switch c.Email.Provider {
	case "smtp":
		if c.Email.SMTPHost == "" {
			return fmt.Errorf("SMTP_HOST is required for the smtp email provider")
		}
	case "sendgrid":
		if c.Email.SendGridAPIKey == "" {
			return fmt.Errorf("SENDGRID_API_KEY is required for the sendgrid email provider")
		}
	case "log":
	default:
		return fmt.Errorf("unknown EMAIL_PROVIDER %q", c.Email.Provider)
	}
	if c.Vault.Enabled && c.Vault.Token == "" {
		return fmt.Errorf("VAULT_TOKEN is required when VAULT_ENABLED is set")
	}
	if c.TwoFactor.MaxAttempts < 1 {
		return fmt.Errorf("TWO_FACTOR_MAX_ATTEMPTS must be at least 1")
	}
	return nil
}

func parseSameSite(value string) http.SameSite {
	switch strings.ToLower(value) {
	case "strict":
		return http.SameSiteStrictMode
	case "none":
		return http.SameSiteNoneMode
	default:
		return http.SameSiteLaxMode
	}
}

// Helper functions

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getIntEnv(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

func getBoolEnv(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolVal, err := strconv.ParseBool(value); err == nil {
			return boolVal
		}
	}
	return defaultValue
}

func getDurationEnv(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}

func getSliceEnv(key string, defaultValue []string) []string {
	if value := os.Getenv(key); value != "" {
		parts := strings.Split(value, ",")
		var result []string
		for _, v := range parts {
			if trimmed := strings.TrimSpace(v); trimmed != "" {
				result = append(result, trimmed)
			}
		}
		if len(result) > 0 {
			return result
		}
	}
	return defaultValue
}
