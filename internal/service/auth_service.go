package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"fp-innova/internal/auth"
	"fp-innova/internal/config"
	"fp-innova/internal/models"
	"fp-innova/internal/repository"
	"fp-innova/internal/vault"
	"fp-innova/pkg/validator"
)

// AuthUserStore is the user persistence needed for authentication
type AuthUserStore interface {
	Create(ctx context.Context, user *models.User) error
	GetByID(ctx context.Context, id uint) (*models.User, error)
	GetByEmail(ctx context.Context, email string) (*models.User, error)
	UpdatePassword(ctx context.Context, id uint, hash string) error
	UpdateLastLogin(ctx context.Context, id uint, at time.Time) error
	SetTwoFactorPending(ctx context.Context, id uint, encSecret, recoveryHash string) error
	EnableTwoFactor(ctx context.Context, id uint) error
	DisableTwoFactor(ctx context.Context, id uint) error
	ConsumeRecoveryCode(ctx context.Context, id uint, recoveryHash string) (bool, error)
	RecordTwoFactorFailure(ctx context.Context, id uint, maxAttempts int, lockout time.Duration) (int, *time.Time, error)
	ResetTwoFactorFailures(ctx context.Context, id uint) error
	ClaimTOTPStep(ctx context.Context, id uint, step int64) (bool, error)
	CountByRole(ctx context.Context, role string) (int, error)
}

// SessionStore persists browser sessions
type SessionStore interface {
	Create(ctx context.Context, session *models.Session) error
	GetByJTI(ctx context.Context, jti string) (*models.Session, error)
	ListByUser(ctx context.Context, userID uint) ([]models.Session, error)
	Touch(ctx context.Context, jti string, at time.Time) error
	DeleteByJTI(ctx context.Context, jti string) error
	DeleteForUser(ctx context.Context, userID, sessionID uint) error
	DeleteOthers(ctx context.Context, userID uint, keepJTI string) (int64, error)
	DeleteExpired(ctx context.Context) (int64, error)
}

// VerificationCodeStore persists registration invite codes
type VerificationCodeStore interface {
	Create(ctx context.Context, code *models.VerificationCode) error
	List(ctx context.Context, status string) ([]models.VerificationCode, error)
	Consume(ctx context.Context, code string) (*models.VerificationCode, error)
	Revoke(ctx context.Context, id uint) error
	ExpireOverdue(ctx context.Context) (int64, error)
}

// LoginResult is returned by the login steps. Either Token is set, or
// RequiresTwoFactor with a ChallengeToken.
type LoginResult struct {
	User              *models.User
	Token             string
	ExpiresAt         time.Time
	RequiresTwoFactor bool
	ChallengeToken    string
}

// RegisterRequest carries an invite-code registration
type RegisterRequest struct {
	Name     string `json:"name" validate:"required,notblank,max=255"`
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required,min=8"`
	Code     string `json:"code" validate:"required,notblank"`
}

// CreateCodeRequest describes a new verification code
type CreateCodeRequest struct {
	Role      string    `json:"role" validate:"required,role"`
	MaxUses   int       `json:"maxUses" validate:"required,min=1,max=1000"`
	ExpiresAt time.Time `json:"expiresAt" validate:"required"`
}

// AuthService handles authentication business logic
type AuthService struct {
	tx          TxRunner
	userRepo    AuthUserStore
	sessionRepo SessionStore
	codeRepo    VerificationCodeStore
	audit       *AuditService
	authSvc     *auth.Service
	cipher      vault.Cipher
	twoFactor   config.TwoFactorConfig
	now         func() time.Time
}

// NewAuthService creates a new authentication service
func NewAuthService(
	tx TxRunner,
	userRepo AuthUserStore,
	sessionRepo SessionStore,
	codeRepo VerificationCodeStore,
	audit *AuditService,
	authSvc *auth.Service,
	cipher vault.Cipher,
	twoFactor config.TwoFactorConfig,
) *AuthService {
	if twoFactor.MaxAttempts <= 0 {
		twoFactor.MaxAttempts = 5
	}
	if twoFactor.Lockout <= 0 {
		twoFactor.Lockout = 15 * time.Minute
	}
	if twoFactor.Issuer == "" {
		twoFactor.Issuer = "FP Innova"
	}
	return &AuthService{
		tx:          tx,
		userRepo:    userRepo,
		sessionRepo: sessionRepo,
		codeRepo:    codeRepo,
		audit:       audit,
		authSvc:     authSvc,
		cipher:      cipher,
		twoFactor:   twoFactor,
		now:         time.Now,
	}
}

// Login checks the password. Users with a second factor get a challenge
// token instead of a session.
func (s *AuthService) Login(ctx context.Context, email, password string) (*LoginResult, error) {
	user, err := s.userRepo.GetByEmail(ctx, validator.SanitizeEmail(email))
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrInvalidCredentials
		}
		return nil, err
	}
	if err := s.authSvc.VerifyPassword(user.PasswordHash, password); err != nil {
		return nil, ErrInvalidCredentials
	}
	if !user.Active {
		return nil, ErrUserInactive
	}

	if err := s.userRepo.UpdateLastLogin(ctx, user.ID, s.now()); err != nil {
		slog.Warn("Failed to update last login", "user_id", user.ID, "error", err)
	}

	if user.TwoFactorEnabled {
		challenge, err := s.authSvc.GenerateChallengeToken(user.ID, user.Email)
		if err != nil {
			return nil, err
		}
		return &LoginResult{User: user, RequiresTwoFactor: true, ChallengeToken: challenge}, nil
	}
	return s.startSession(ctx, user)
}

// CompleteTwoFactorLogin finishes a login with a TOTP code or the recovery
// code. A recovery code also disables the second factor.
func (s *AuthService) CompleteTwoFactorLogin(ctx context.Context, challengeToken, code string) (*LoginResult, error) {
	claims, err := s.authSvc.ValidatePurpose(challengeToken, auth.PurposeTwoFactor)
	if err != nil {
		return nil, ErrSessionInvalid
	}
	user, err := s.userRepo.GetByID(ctx, claims.UserID)
	if err != nil {
		return nil, err
	}
	if !user.Active {
		return nil, ErrUserInactive
	}
	if !user.TwoFactorEnabled {
		return nil, ErrTwoFactorState
	}

	if isRecoveryCode(code) {
		if err := s.consumeRecoveryCode(ctx, user, code); err != nil {
			return nil, err
		}
	} else if err := s.checkTOTP(ctx, user, code); err != nil {
		return nil, err
	}
	return s.startSession(ctx, user)
}

func isRecoveryCode(code string) bool {
	return len(strings.TrimSpace(code)) > 6
}

func (s *AuthService) startSession(ctx context.Context, user *models.User) (*LoginResult, error) {
	token, jti, err := s.authSvc.GenerateSessionToken(user.ID, user.Email, user.Role)
	if err != nil {
		return nil, fmt.Errorf("failed to generate session token: %w", err)
	}
	meta := RequestMetaFrom(ctx)
	session := &models.Session{
		UserID:    user.ID,
		JTI:       jti,
		IPAddress: meta.IPAddress,
		UserAgent: meta.UserAgent,
		ExpiresAt: s.now().Add(s.authSvc.SessionExpiration()),
	}
	if err := s.sessionRepo.Create(ctx, session); err != nil {
		return nil, fmt.Errorf("failed to create session: %w", err)
	}

	s.audit.Log(ctx, &user.ID, AuditLogin, "users", idString(user.ID), "Signed in", nil)
	slog.Info("User logged in", "user_id", user.ID)
	return &LoginResult{User: user, Token: token, ExpiresAt: session.ExpiresAt}, nil
}

// Authenticate resolves a session token to its user. The session row must
// still exist; deleting it revokes the token.
func (s *AuthService) Authenticate(ctx context.Context, token string) (*models.User, *models.Session, error) {
	claims, err := s.authSvc.ValidatePurpose(token, auth.PurposeSession)
	if err != nil {
		return nil, nil, ErrSessionInvalid
	}
	session, err := s.sessionRepo.GetByJTI(ctx, claims.ID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, nil, ErrSessionInvalid
		}
		return nil, nil, err
	}
	if session.UserID != claims.UserID {
		return nil, nil, ErrSessionInvalid
	}
	user, err := s.userRepo.GetByID(ctx, claims.UserID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, nil, ErrSessionInvalid
		}
		return nil, nil, err
	}
	if !user.Active {
		return nil, nil, ErrUserInactive
	}
	if err := s.sessionRepo.Touch(ctx, session.JTI, s.now()); err != nil {
		slog.Debug("Failed to touch session", "error", err)
	}
	return user, session, nil
}

// Logout deletes the session of token. Expired or unknown tokens are ignored.
func (s *AuthService) Logout(ctx context.Context, token string) error {
	jti, err := s.authSvc.ExtractJTI(token)
	if err != nil {
		return nil
	}
	if err := s.sessionRepo.DeleteByJTI(ctx, jti); err != nil && !errors.Is(err, repository.ErrNotFound) {
		return err
	}
	return nil
}

// ListSessions returns the user's active sessions, flagging the current one
func (s *AuthService) ListSessions(ctx context.Context, userID uint, currentJTI string) ([]models.Session, error) {
	sessions, err := s.sessionRepo.ListByUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	for i := range sessions {
		sessions[i].Current = sessions[i].JTI == currentJTI
	}
	return sessions, nil
}

// RevokeSession deletes one of the user's own sessions
func (s *AuthService) RevokeSession(ctx context.Context, userID, sessionID uint) error {
	return s.sessionRepo.DeleteForUser(ctx, userID, sessionID)
}

// RevokeOtherSessions deletes every session of the user except currentJTI
func (s *AuthService) RevokeOtherSessions(ctx context.Context, userID uint, currentJTI string) (int64, error) {
	return s.sessionRepo.DeleteOthers(ctx, userID, currentJTI)
}

// Register creates an account from an invite code. The new user gets the
// role of the code.
func (s *AuthService) Register(ctx context.Context, req RegisterRequest) (*models.User, error) {
	req.Email = validator.SanitizeEmail(req.Email)
	req.Name = validator.SanitizeString(req.Name)
	req.Code = strings.TrimSpace(req.Code)
	if err := validator.ValidateStruct(req); err != nil {
		return nil, err
	}

	hash, err := s.authSvc.HashPassword(req.Password)
	if err != nil {
		return nil, err
	}

	user := &models.User{
		Name:         req.Name,
		Email:        req.Email,
		PasswordHash: hash,
		Active:       true,
	}
	err = s.tx.WithinTx(ctx, func(ctx context.Context) error {
		code, err := s.codeRepo.Consume(ctx, req.Code)
		if err != nil {
			if errors.Is(err, repository.ErrNotFound) {
				return ErrInvalidVerificationCode
			}
			return err
		}
		user.Role = code.Role
		if err := s.userRepo.Create(ctx, user); err != nil {
			if errors.Is(err, repository.ErrDuplicate) {
				return ErrEmailTaken
			}
			return err
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.audit.Log(ctx, &user.ID, AuditRegister, "users", idString(user.ID), "Registered with role "+user.Role, nil)
	slog.Info("User registered", "user_id", user.ID, "role", user.Role)
	return user, nil
}

// CreateVerificationCode issues an invite code
func (s *AuthService) CreateVerificationCode(ctx context.Context, actor *models.User, req CreateCodeRequest) (*models.VerificationCode, error) {
	if err := validator.ValidateStruct(req); err != nil {
		return nil, err
	}
	if !req.ExpiresAt.After(s.now()) {
		return nil, fieldError("expiresAt", "expiresAt debe ser una fecha futura")
	}
	raw, err := auth.GenerateRandomToken(6)
	if err != nil {
		return nil, err
	}
	code := &models.VerificationCode{
		Code:      strings.ToUpper(raw),
		Role:      req.Role,
		Status:    models.CodeStatusActive,
		MaxUses:   req.MaxUses,
		ExpiresAt: req.ExpiresAt,
		CreatedBy: &actor.ID,
	}
	if err := s.codeRepo.Create(ctx, code); err != nil {
		return nil, err
	}
	s.audit.Log(ctx, &actor.ID, AuditCreate, "verification_codes", idString(code.ID),
		fmt.Sprintf("Created code for role %s (%d uses)", code.Role, code.MaxUses), nil)
	return code, nil
}

// ListVerificationCodes lists codes, optionally by status
func (s *AuthService) ListVerificationCodes(ctx context.Context, status string) ([]models.VerificationCode, error) {
	return s.codeRepo.List(ctx, status)
}

// RevokeVerificationCode revokes an active code
func (s *AuthService) RevokeVerificationCode(ctx context.Context, actor *models.User, id uint) error {
	if err := s.codeRepo.Revoke(ctx, id); err != nil {
		return err
	}
	s.audit.Log(ctx, &actor.ID, AuditDelete, "verification_codes", idString(id), "Revoked code", nil)
	return nil
}

// ExpireVerificationCodes marks codes past their expiry; run by the scheduler
func (s *AuthService) ExpireVerificationCodes(ctx context.Context) (int64, error) {
	return s.codeRepo.ExpireOverdue(ctx)
}

// CleanupSessions deletes expired sessions; run by the scheduler
func (s *AuthService) CleanupSessions(ctx context.Context) (int64, error) {
	return s.sessionRepo.DeleteExpired(ctx)
}

// ChangePassword replaces the password and signs out every other session
func (s *AuthService) ChangePassword(ctx context.Context, user *models.User, currentJTI, oldPassword, newPassword string) error {
	if err := s.authSvc.VerifyPassword(user.PasswordHash, oldPassword); err != nil {
		return fieldError("currentPassword", "la contraseña actual no es correcta")
	}
	if err := validator.ValidatePassword(newPassword); err != nil {
		return fieldError("newPassword", err.Error())
	}
	hash, err := s.authSvc.HashPassword(newPassword)
	if err != nil {
		return err
	}
	if err := s.userRepo.UpdatePassword(ctx, user.ID, hash); err != nil {
		return err
	}
	revoked, err := s.sessionRepo.DeleteOthers(ctx, user.ID, currentJTI)
	if err != nil {
		slog.Warn("Failed to revoke sessions after password change", "user_id", user.ID, "error", err)
	}
	s.audit.Log(ctx, &user.ID, AuditPassword, "users", idString(user.ID),
		fmt.Sprintf("Password changed, %d other sessions revoked", revoked), nil)
	return nil
}

// SetupTwoFactor starts enrolment: disabled -> pending. Repeating it while
// pending replaces the secret and recovery code.
func (s *AuthService) SetupTwoFactor(ctx context.Context, user *models.User) (*auth.TwoFactorSetup, error) {
	if user.TwoFactorEnabled {
		return nil, ErrTwoFactorState
	}
	key, qr, err := auth.GenerateTOTP(s.twoFactor.Issuer, user.Email)
	if err != nil {
		return nil, err
	}
	recovery, err := auth.GenerateRecoveryCode()
	if err != nil {
		return nil, err
	}
	recoveryHash, err := auth.HashRecoveryCode(recovery)
	if err != nil {
		return nil, err
	}
	encrypted, err := s.cipher.Encrypt(ctx, key.Secret())
	if err != nil {
		return nil, fmt.Errorf("failed to encrypt two-factor secret: %w", err)
	}
	if err := s.userRepo.SetTwoFactorPending(ctx, user.ID, encrypted, recoveryHash); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrTwoFactorState
		}
		return nil, err
	}
	return &auth.TwoFactorSetup{
		Secret:       key.Secret(),
		OTPAuthURL:   key.URL(),
		QRCode:       qr,
		RecoveryCode: recovery,
	}, nil
}

// VerifyTwoFactorSetup confirms enrolment: pending -> enabled
func (s *AuthService) VerifyTwoFactorSetup(ctx context.Context, userID uint, code string) error {
	user, err := s.userRepo.GetByID(ctx, userID)
	if err != nil {
		return err
	}
	if user.TwoFactorState() != models.TwoFactorPending {
		return ErrTwoFactorState
	}
	if err := s.checkTOTP(ctx, user, code); err != nil {
		return err
	}
	if err := s.userRepo.EnableTwoFactor(ctx, user.ID); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return ErrTwoFactorState
		}
		return err
	}
	s.audit.Log(ctx, &user.ID, AuditTwoFactor, "users", idString(user.ID), "Two-factor enabled", nil)
	return nil
}

// DisableTwoFactor turns the second factor off with a valid TOTP code: enabled -> disabled
func (s *AuthService) DisableTwoFactor(ctx context.Context, userID uint, code string) error {
	user, err := s.userRepo.GetByID(ctx, userID)
	if err != nil {
		return err
	}
	if !user.TwoFactorEnabled {
		return ErrTwoFactorState
	}
	if err := s.checkTOTP(ctx, user, code); err != nil {
		return err
	}
	if err := s.userRepo.DisableTwoFactor(ctx, user.ID); err != nil {
		return err
	}
	s.audit.Log(ctx, &user.ID, AuditTwoFactor, "users", idString(user.ID), "Two-factor disabled", nil)
	return nil
}

// UseRecoveryCode disables the second factor of the account with email when
// the recovery code matches. Unknown accounts report invalid credentials.
func (s *AuthService) UseRecoveryCode(ctx context.Context, email, code string) error {
	user, err := s.userRepo.GetByEmail(ctx, validator.SanitizeEmail(email))
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return ErrInvalidCredentials
		}
		return err
	}
	if !user.TwoFactorEnabled {
		return ErrTwoFactorState
	}
	return s.consumeRecoveryCode(ctx, user, code)
}

func (s *AuthService) consumeRecoveryCode(ctx context.Context, user *models.User, code string) error {
	if err := s.checkLock(user); err != nil {
		return err
	}
	if user.RecoveryCodeHash == nil || !auth.VerifyRecoveryCode(*user.RecoveryCodeHash, code) {
		return s.recordFailure(ctx, user)
	}
	ok, err := s.userRepo.ConsumeRecoveryCode(ctx, user.ID, *user.RecoveryCodeHash)
	if err != nil {
		return err
	}
	if !ok {
		// a concurrent request used the code first
		return ErrInvalidTwoFactorCode
	}
	user.TwoFactorEnabled = false
	user.TwoFactorSecret = nil
	user.RecoveryCodeHash = nil
	s.audit.Log(ctx, &user.ID, AuditTwoFactor, "users", idString(user.ID), "Recovery code used, two-factor disabled", nil)
	slog.Info("Recovery code used", "user_id", user.ID)
	return nil
}

// checkTOTP validates code against the stored secret, applying the lockout.
// Each time step is accepted at most once per user.
func (s *AuthService) checkTOTP(ctx context.Context, user *models.User, code string) error {
	if err := s.checkLock(user); err != nil {
		return err
	}
	if user.TwoFactorSecret == nil {
		return ErrTwoFactorState
	}
	secret, err := s.cipher.Decrypt(ctx, *user.TwoFactorSecret)
	if err != nil {
		return fmt.Errorf("failed to decrypt two-factor secret: %w", err)
	}
	step, ok := auth.MatchTOTP(code, secret, s.now())
	if !ok {
		return s.recordFailure(ctx, user)
	}
	claimed, err := s.userRepo.ClaimTOTPStep(ctx, user.ID, step)
	if err != nil {
		return err
	}
	if !claimed {
		slog.Warn("Rejected reused TOTP code", "user_id", user.ID)
		return s.recordFailure(ctx, user)
	}
	if user.TwoFactorFailedAttempts > 0 {
		if err := s.userRepo.ResetTwoFactorFailures(ctx, user.ID); err != nil {
			slog.Warn("Failed to reset two-factor failures", "user_id", user.ID, "error", err)
		}
	}
	return nil
}

func (s *AuthService) checkLock(user *models.User) error {
	if user.TwoFactorLockedUntil != nil && s.now().Before(*user.TwoFactorLockedUntil) {
		return ErrTwoFactorLocked
	}
	return nil
}

func (s *AuthService) recordFailure(ctx context.Context, user *models.User) error {
	_, lockedUntil, err := s.userRepo.RecordTwoFactorFailure(ctx, user.ID, s.twoFactor.MaxAttempts, s.twoFactor.Lockout)
	if err != nil {
		return err
	}
	if lockedUntil != nil && s.now().Before(*lockedUntil) {
		slog.Warn("Two-factor locked after repeated failures", "user_id", user.ID, "until", *lockedUntil)
		return ErrTwoFactorLocked
	}
	return ErrInvalidTwoFactorCode
}

// EnsureAdmin creates the bootstrap administrator when no admin exists
func (s *AuthService) EnsureAdmin(ctx context.Context, email, password, name string) error {
	if email == "" || password == "" {
		return nil
	}
	n, err := s.userRepo.CountByRole(ctx, models.RoleAdmin)
	if err != nil {
		return err
	}
	if n > 0 {
		return nil
	}
	hash, err := s.authSvc.HashPassword(password)
	if err != nil {
		return err
	}
	if name == "" {
		name = "Administrador"
	}
	admin := &models.User{
		Name:         name,
		Email:        validator.SanitizeEmail(email),
		PasswordHash: hash,
		Role:         models.RoleAdmin,
		Active:       true,
	}
	if err := s.userRepo.Create(ctx, admin); err != nil {
		return fmt.Errorf("failed to create bootstrap admin: %w", err)
	}
	slog.Info("Bootstrap administrator created", "email", admin.Email)
	return nil
}
