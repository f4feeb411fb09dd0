package auth

import (
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/x509"
	"encoding/pem"
	"errors"
	"regexp"
	"strings"
	"testing"
	"time"

	"github.com/pquerna/otp/totp"

	"fp-innova/internal/config"
)

func testConfig() *config.JWTConfig {
	return &config.JWTConfig{
		Secret:              "test-secret",
		Expiration:          24 * time.Hour,
		ChallengeExpiration: 5 * time.Minute,
	}
}

func TestHashPassword(t *testing.T) {
	svc := NewService(testConfig())

	password := "testpassword123"
	hash, err := svc.HashPassword(password)
	if err != nil {
		t.Fatalf("Failed to hash password: %v", err)
	}
	if hash == "" {
		t.Error("Hash should not be empty")
	}
	if hash == password {
		t.Error("Hash should not equal the original password")
	}
}

func TestVerifyPassword(t *testing.T) {
	svc := NewService(testConfig())

	hash, err := svc.HashPassword("testpassword123")
	if err != nil {
		t.Fatalf("Failed to hash password: %v", err)
	}
	if err := svc.VerifyPassword(hash, "testpassword123"); err != nil {
		t.Errorf("Should verify correct password, got error: %v", err)
	}
	if err := svc.VerifyPassword(hash, "wrongpassword"); err == nil {
		t.Error("Should not verify incorrect password")
	}
}

func TestSessionTokenRoundTrip(t *testing.T) {
	svc := NewService(testConfig())

	token, jti, err := svc.GenerateSessionToken(7, "ana@example.com", "reviewer")
	if err != nil {
		t.Fatalf("Failed to generate token: %v", err)
	}

	claims, err := svc.ValidatePurpose(token, PurposeSession)
	if err != nil {
		t.Fatalf("Failed to validate token: %v", err)
	}
	if claims.UserID != 7 || claims.Email != "ana@example.com" || claims.Role != "reviewer" {
		t.Errorf("unexpected claims: %+v", claims)
	}
	if claims.ID != jti {
		t.Errorf("Expected JTI %s, got %s", jti, claims.ID)
	}
}

func TestChallengeTokenCannotBeUsedAsSession(t *testing.T) {
	svc := NewService(testConfig())

	token, err := svc.GenerateChallengeToken(1, "test@example.com")
	if err != nil {
		t.Fatalf("Failed to generate challenge: %v", err)
	}
	if _, err := svc.ValidatePurpose(token, PurposeSession); !errors.Is(err, ErrWrongPurpose) {
		t.Errorf("expected ErrWrongPurpose, got %v", err)
	}
	if _, err := svc.ValidatePurpose(token, PurposeTwoFactor); err != nil {
		t.Errorf("challenge rejected for its own purpose: %v", err)
	}
}

func TestValidateExpiredToken(t *testing.T) {
	cfg := testConfig()
	cfg.Expiration = -1 * time.Hour
	svc := NewService(cfg)

	token, _, err := svc.GenerateSessionToken(1, "test@example.com", "guest")
	if err != nil {
		t.Fatalf("Failed to generate token: %v", err)
	}
	if _, err := svc.ValidateToken(token); !errors.Is(err, ErrExpiredToken) {
		t.Errorf("expected ErrExpiredToken, got %v", err)
	}

	// logout still needs the session id of an expired token
	jti, err := svc.ExtractJTI(token)
	if err != nil || jti == "" {
		t.Errorf("ExtractJTI() = %q, %v", jti, err)
	}
}

func TestTokenFromOtherSecretRejected(t *testing.T) {
	a := NewService(testConfig())
	cfg := testConfig()
	cfg.Secret = "another-secret"
	b := NewService(cfg)

	token, _, err := a.GenerateSessionToken(1, "x@example.com", "admin")
	if err != nil {
		t.Fatal(err)
	}
	if _, err := b.ValidateToken(token); err == nil {
		t.Error("token signed with another secret was accepted")
	}
}

func TestECKeySecretUsesES256(t *testing.T) {
	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	if err != nil {
		t.Fatal(err)
	}
	der, err := x509.MarshalECPrivateKey(key)
	if err != nil {
		t.Fatal(err)
	}
	cfg := testConfig()
	cfg.Secret = string(pem.EncodeToMemory(&pem.Block{Type: "EC PRIVATE KEY", Bytes: der}))
	svc := NewService(cfg)

	token, _, err := svc.GenerateSessionToken(1, "x@example.com", "admin")
	if err != nil {
		t.Fatalf("Failed to generate token: %v", err)
	}
	if _, err := svc.ValidateToken(token); err != nil {
		t.Errorf("ES256 token rejected: %v", err)
	}
	if svc.method.Alg() != "ES256" {
		t.Errorf("expected ES256, got %s", svc.method.Alg())
	}
}

func TestGenerateRandomToken(t *testing.T) {
	token1, err := GenerateRandomToken(32)
	if err != nil {
		t.Fatalf("Failed to generate random token: %v", err)
	}
	token2, err := GenerateRandomToken(32)
	if err != nil {
		t.Fatalf("Failed to generate second random token: %v", err)
	}
	if token1 == "" || token1 == token2 {
		t.Error("Random tokens should be non-empty and unique")
	}
}

var recoveryPattern = regexp.MustCompile(`^[0-9A-Z]{5}-[0-9A-Z]{5}-[0-9A-Z]{5}-[0-9A-Z]{5}$`)

func TestGenerateRecoveryCode(t *testing.T) {
	seen := map[string]bool{}
	for i := 0; i < 20; i++ {
		code, err := GenerateRecoveryCode()
		if err != nil {
			t.Fatalf("GenerateRecoveryCode() error = %v", err)
		}
		if !recoveryPattern.MatchString(code) {
			t.Errorf("code %q does not match format", code)
		}
		if seen[code] {
			t.Errorf("duplicate code %q", code)
		}
		seen[code] = true
	}
}

func TestRecoveryCodeHash(t *testing.T) {
	code, err := GenerateRecoveryCode()
	if err != nil {
		t.Fatal(err)
	}
	hash, err := HashRecoveryCode(code)
	if err != nil {
		t.Fatal(err)
	}
	if !VerifyRecoveryCode(hash, code) {
		t.Error("exact code rejected")
	}
	if !VerifyRecoveryCode(hash, "  "+strings.ToLower(code)+" ") {
		t.Error("code with whitespace and lowercase rejected")
	}
	if VerifyRecoveryCode(hash, "AAAAA-AAAAA-AAAAA-AAAAA") {
		t.Error("wrong code accepted")
	}
}

func TestTOTP(t *testing.T) {
	key, qr, err := GenerateTOTP("FP Innova", "ana@example.com")
	if err != nil {
		t.Fatalf("GenerateTOTP() error = %v", err)
	}
	if key.Issuer() != "FP Innova" || key.AccountName() != "ana@example.com" {
		t.Errorf("unexpected key: issuer=%q account=%q", key.Issuer(), key.AccountName())
	}
	if !strings.HasPrefix(qr, "data:image/png;base64,") {
		t.Errorf("QR code is not a PNG data URL")
	}

	now := time.Now()
	code, err := totp.GenerateCode(key.Secret(), now)
	if err != nil {
		t.Fatal(err)
	}
	step, ok := MatchTOTP(code, key.Secret(), now)
	if !ok {
		t.Error("current code rejected")
	}
	if want := now.Unix() / 30; step != want {
		t.Errorf("step = %d, want %d", step, want)
	}
	if prev, ok := MatchTOTP(code, key.Secret(), now.Add(30*time.Second)); !ok || prev != step {
		t.Errorf("code from the previous step: ok=%v step=%d, want %d", ok, prev, step)
	}
	if _, ok := MatchTOTP(code, key.Secret(), now.Add(5*time.Minute)); ok {
		t.Error("stale code accepted")
	}
	if _, ok := MatchTOTP("12345", key.Secret(), now); ok {
		t.Error("short code accepted")
	}
}
