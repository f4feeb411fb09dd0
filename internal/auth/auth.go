package auth

import (
	"crypto/ecdsa"
	"crypto/rand"
	"crypto/x509"
	"encoding/base64"
	"encoding/pem"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/crypto/bcrypt"

	"fp-innova/internal/config"
)

var (
	ErrInvalidToken = errors.New("invalid token")
	ErrExpiredToken = errors.New("token has expired")
	ErrWrongPurpose = errors.New("token issued for another purpose")
)

// Token purposes
const (
	PurposeSession   = "session"
	PurposeTwoFactor = "2fa"
)

// MinPasswordLength is enforced on registration and password changes
const MinPasswordLength = 8

// JWTClaims represents the claims in a JWT token
type JWTClaims struct {
	UserID  uint   `json:"uid"`
	Email   string `json:"email"`
	Role    string `json:"role,omitempty"`
	Purpose string `json:"purpose"`
	jwt.RegisteredClaims
}

// Service handles password hashing and token signing
type Service struct {
	method              jwt.SigningMethod
	signKey             any
	verifyKey           any
	expiration          time.Duration
	challengeExpiration time.Duration
}

// NewService creates a new authentication service. A PEM encoded EC private
// key in the secret selects ES256, any other secret signs with HS256.
func NewService(cfg *config.JWTConfig) *Service {
	s := &Service{
		expiration:          cfg.Expiration,
		challengeExpiration: cfg.ChallengeExpiration,
	}
	if key := parseECKey(cfg.Secret); key != nil {
		s.method = jwt.SigningMethodES256
		s.signKey = key
		s.verifyKey = &key.PublicKey
	} else {
		s.method = jwt.SigningMethodHS256
		s.signKey = []byte(cfg.Secret)
		s.verifyKey = []byte(cfg.Secret)
	}
	return s
}

// SessionExpiration is the lifetime of session tokens
func (s *Service) SessionExpiration() time.Duration {
	return s.expiration
}

// HashPassword hashes a password using bcrypt
func (s *Service) HashPassword(password string) (string, error) {
	hashedBytes, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", fmt.Errorf("failed to hash password: %w", err)
	}
	return string(hashedBytes), nil
}

// VerifyPassword verifies a password against a hash
func (s *Service) VerifyPassword(hashedPassword, password string) error {
	return bcrypt.CompareHashAndPassword([]byte(hashedPassword), []byte(password))
}

func (s *Service) sign(userID uint, email, role, purpose, jti string, expiration time.Duration) (string, error) {
	now := time.Now()
	claims := JWTClaims{
		UserID:  userID,
		Email:   email,
		Role:    role,
		Purpose: purpose,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        jti,
			ExpiresAt: jwt.NewNumericDate(now.Add(expiration)),
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
		},
	}

	token := jwt.NewWithClaims(s.method, claims)
	tokenString, err := token.SignedString(s.signKey)
	if err != nil {
		return "", fmt.Errorf("failed to sign token: %w", err)
	}
	return tokenString, nil
}

// GenerateSessionToken signs a session token and returns it with its JTI
func (s *Service) GenerateSessionToken(userID uint, email, role string) (string, string, error) {
	jti, err := GenerateRandomToken(16)
	if err != nil {
		return "", "", fmt.Errorf("failed to generate JTI: %w", err)
	}
	token, err := s.sign(userID, email, role, PurposeSession, jti, s.expiration)
	return token, jti, err
}

// GenerateChallengeToken signs the short lived token that bridges password
// login and the second factor
func (s *Service) GenerateChallengeToken(userID uint, email string) (string, error) {
	jti, err := GenerateRandomToken(16)
	if err != nil {
		return "", fmt.Errorf("failed to generate JTI: %w", err)
	}
	return s.sign(userID, email, "", PurposeTwoFactor, jti, s.challengeExpiration)
}

// ValidateToken validates a JWT token and returns the claims
func (s *Service) ValidateToken(tokenString string) (*JWTClaims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &JWTClaims{}, func(token *jwt.Token) (any, error) {
		if token.Method.Alg() != s.method.Alg() {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return s.verifyKey, nil
	})
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, ErrExpiredToken
		}
		return nil, fmt.Errorf("failed to parse token: %w", err)
	}

	claims, ok := token.Claims.(*JWTClaims)
	if !ok || !token.Valid {
		return nil, ErrInvalidToken
	}
	return claims, nil
}

// ValidatePurpose validates the token and checks it was issued for purpose
func (s *Service) ValidatePurpose(tokenString, purpose string) (*JWTClaims, error) {
	claims, err := s.ValidateToken(tokenString)
	if err != nil {
		return nil, err
	}
	if claims.Purpose != purpose {
		return nil, ErrWrongPurpose
	}
	return claims, nil
}

// ExtractJTI extracts the JTI from a token without validating signature or expiration
// This is useful for logout where we want to invalidate even expired tokens
func (s *Service) ExtractJTI(tokenString string) (string, error) {
	parser := jwt.NewParser(jwt.WithoutClaimsValidation())
	token, _, err := parser.ParseUnverified(tokenString, &JWTClaims{})
	if err != nil {
		return "", fmt.Errorf("failed to parse token: %w", err)
	}

	claims, ok := token.Claims.(*JWTClaims)
	if !ok {
		return "", ErrInvalidToken
	}
	return claims.ID, nil
}

// GenerateRandomToken returns length random bytes, URL-safe base64 encoded
func GenerateRandomToken(length int) (string, error) {
	bytes := make([]byte, length)
	if _, err := rand.Read(bytes); err != nil {
		return "", fmt.Errorf("failed to generate random token: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(bytes), nil
}

func parseECKey(secret string) *ecdsa.PrivateKey {
	// .env files carry the PEM on one line with escaped newlines
	block, _ := pem.Decode([]byte(strings.ReplaceAll(secret, `\n`, "\n")))
	if block == nil {
		return nil
	}
	if key, err := x509.ParseECPrivateKey(block.Bytes); err == nil {
		return key
	}
	if parsed, err := x509.ParsePKCS8PrivateKey(block.Bytes); err == nil {
		if key, ok := parsed.(*ecdsa.PrivateKey); ok {
			return key
		}
	}
	return nil
}
