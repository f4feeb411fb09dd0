package config

import (
	"net/http"
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("APP_ENV", "development")
	t.Setenv("EMAIL_PROVIDER", "log")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if cfg.Server.Port != "3000" {
		t.Errorf("Expected default port 3000, got %s", cfg.Server.Port)
	}
	if cfg.Database.Name != "fpinnova" || cfg.Database.User != "fpinnova" {
		t.Errorf("Unexpected database defaults: %+v", cfg.Database)
	}
	if len(cfg.CORS.AllowedOrigins) != 1 || cfg.CORS.AllowedOrigins[0] != "http://localhost:5173" {
		t.Errorf("Expected frontend origin as CORS default, got %v", cfg.CORS.AllowedOrigins)
	}
	if cfg.Session.Secure {
		t.Error("Session cookie should not be secure in development")
	}
	if cfg.TwoFactor.MaxAttempts != 5 || cfg.TwoFactor.Lockout != 15*time.Minute {
		t.Errorf("Unexpected two-factor defaults: %+v", cfg.TwoFactor)
	}
}

func TestLoadFrontendURLFeedsCORS(t *testing.T) {
	t.Setenv("EMAIL_PROVIDER", "log")
	t.Setenv("FRONTEND_URL", "https://innova.example.org")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.CORS.AllowedOrigins[0] != "https://innova.example.org" {
		t.Errorf("Expected CORS origin from FRONTEND_URL, got %v", cfg.CORS.AllowedOrigins)
	}
	if cfg.Email.FrontendURL != "https://innova.example.org" {
		t.Errorf("Expected email links to use FRONTEND_URL, got %s", cfg.Email.FrontendURL)
	}
}

func TestValidateProductionRejectsDevelopmentSecrets(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(c *Config)
		wantErr bool
	}{
		{
			name:    "default jwt secret",
			mutate:  func(c *Config) {},
			wantErr: true,
		},
		{
			name: "default db password",
			mutate: func(c *Config) {
				c.JWT.Secret = "a-real-secret"
			},
			wantErr: true,
		},
		{
			name: "real secrets",
			mutate: func(c *Config) {
				c.JWT.Secret = "a-real-secret"
				c.Database.Password = "another-real-secret"
			},
			wantErr: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := &Config{
				App:       AppConfig{Env: "production"},
				JWT:       JWTConfig{Secret: DefaultJWTSecret},
				Database:  DatabaseConfig{Password: DefaultDBPassword},
				Email:     EmailConfig{Provider: "log"},
				TwoFactor: TwoFactorConfig{MaxAttempts: 5},
			}
			tt.mutate(cfg)
			err := cfg.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestValidateEmailProvider(t *testing.T) {
	cfg := &Config{
		App:       AppConfig{Env: "development"},
		JWT:       JWTConfig{Secret: "secret"},
		Email:     EmailConfig{Provider: "sendgrid"},
		TwoFactor: TwoFactorConfig{MaxAttempts: 5},
	}
	if err := cfg.Validate(); err == nil {
		t.Error("Expected error for sendgrid without API key")
	}

	cfg.Email.SendGridAPIKey = "SG.key"
	if err := cfg.Validate(); err != nil {
		t.Errorf("Unexpected error: %v", err)
	}

	cfg.Email.Provider = "pigeon"
	if err := cfg.Validate(); err == nil {
		t.Error("Expected error for unknown provider")
	}
}

func TestParseSameSite(t *testing.T) {
	if parseSameSite("Strict") != http.SameSiteStrictMode {
		t.Error("Expected strict mode")
	}
	if parseSameSite("whatever") != http.SameSiteLaxMode {
		t.Error("Expected lax mode as fallback")
	}
}
