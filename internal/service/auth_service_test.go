package service

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/pquerna/otp/totp"

	"fp-innova/internal/auth"
	"fp-innova/internal/config"
	"fp-innova/internal/models"
	"fp-innova/internal/repository"
	"fp-innova/internal/vault"
)

// fakeAuthUsers implements AuthUserStore on top of fakeUsers
type fakeAuthUsers struct {
	*fakeUsers
}

func (f *fakeAuthUsers) update(id uint, fn func(u *models.User)) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	u, ok := f.users[id]
	if !ok {
		return repository.ErrNotFound
	}
	fn(u)
	return nil
}

func (f *fakeAuthUsers) GetByEmail(_ context.Context, email string) (*models.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, u := range f.users {
		if u.Email == email {
			c := *u
			return &c, nil
		}
	}
	return nil, repository.ErrNotFound
}

func (f *fakeAuthUsers) UpdatePassword(_ context.Context, id uint, hash string) error {
	return f.update(id, func(u *models.User) { u.PasswordHash = hash })
}

func (f *fakeAuthUsers) UpdateLastLogin(_ context.Context, id uint, at time.Time) error {
	return f.update(id, func(u *models.User) { u.LastLogin = &at })
}

func (f *fakeAuthUsers) SetTwoFactorPending(_ context.Context, id uint, encSecret, recoveryHash string) error {
	return f.update(id, func(u *models.User) {
		u.TwoFactorSecret = &encSecret
		u.RecoveryCodeHash = &recoveryHash
	})
}

func (f *fakeAuthUsers) EnableTwoFactor(_ context.Context, id uint) error {
	return f.update(id, func(u *models.User) { u.TwoFactorEnabled = true })
}

func (f *fakeAuthUsers) DisableTwoFactor(_ context.Context, id uint) error {
	return f.update(id, func(u *models.User) {
		u.TwoFactorEnabled = false
		u.TwoFactorSecret = nil
		u.RecoveryCodeHash = nil
	})
}

func (f *fakeAuthUsers) ConsumeRecoveryCode(_ context.Context, id uint, recoveryHash string) (bool, error) {
	consumed := false
	err := f.update(id, func(u *models.User) {
		if u.RecoveryCodeHash != nil && *u.RecoveryCodeHash == recoveryHash {
			u.TwoFactorEnabled = false
			u.TwoFactorSecret = nil
			u.RecoveryCodeHash = nil
			consumed = true
		}
	})
	return consumed, err
}

func (f *fakeAuthUsers) RecordTwoFactorFailure(_ context.Context, id uint, maxAttempts int, lockout time.Duration) (int, *time.Time, error) {
	var (
		attempts    int
		lockedUntil *time.Time
	)
	err := f.update(id, func(u *models.User) {
		u.TwoFactorFailedAttempts++
		if u.TwoFactorFailedAttempts >= maxAttempts {
			until := time.Now().Add(lockout)
			u.TwoFactorLockedUntil = &until
			u.TwoFactorFailedAttempts = 0
		}
		attempts = u.TwoFactorFailedAttempts
		lockedUntil = u.TwoFactorLockedUntil
	})
	return attempts, lockedUntil, err
}

func (f *fakeAuthUsers) ResetTwoFactorFailures(_ context.Context, id uint) error {
	return f.update(id, func(u *models.User) {
		u.TwoFactorFailedAttempts = 0
		u.TwoFactorLockedUntil = nil
	})
}

func (f *fakeAuthUsers) ClaimTOTPStep(_ context.Context, id uint, step int64) (bool, error) {
	claimed := false
	err := f.update(id, func(u *models.User) {
		if u.TwoFactorLastStep == nil || *u.TwoFactorLastStep < step {
			u.TwoFactorLastStep = &step
			claimed = true
		}
	})
	return claimed, err
}

func (f *fakeAuthUsers) CountByRole(_ context.Context, role string) (int, error) {
	users, _ := f.List(context.Background(), models.UserFilter{Role: role})
	return len(users), nil
}

type fakeSessions struct {
	mu       sync.Mutex
	sessions map[string]*models.Session
	next     uint
}

func newFakeSessions() *fakeSessions {
	return &fakeSessions{sessions: map[string]*models.Session{}}
}

func (f *fakeSessions) Create(_ context.Context, s *models.Session) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.next++
	s.ID = f.next
	c := *s
	f.sessions[s.JTI] = &c
	return nil
}

func (f *fakeSessions) GetByJTI(_ context.Context, jti string) (*models.Session, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	s, ok := f.sessions[jti]
	if !ok {
		return nil, repository.ErrNotFound
	}
	c := *s
	return &c, nil
}

func (f *fakeSessions) ListByUser(_ context.Context, userID uint) ([]models.Session, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []models.Session
	for _, s := range f.sessions {
		if s.UserID == userID {
			out = append(out, *s)
		}
	}
	return out, nil
}

func (f *fakeSessions) Touch(context.Context, string, time.Time) error { return nil }

func (f *fakeSessions) DeleteByJTI(_ context.Context, jti string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.sessions[jti]; !ok {
		return repository.ErrNotFound
	}
	delete(f.sessions, jti)
	return nil
}

func (f *fakeSessions) DeleteForUser(_ context.Context, userID, sessionID uint) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for jti, s := range f.sessions {
		if s.ID == sessionID && s.UserID == userID {
			delete(f.sessions, jti)
			return nil
		}
	}
	return repository.ErrNotFound
}

func (f *fakeSessions) DeleteOthers(_ context.Context, userID uint, keepJTI string) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var n int64
	for jti, s := range f.sessions {
		if s.UserID == userID && jti != keepJTI {
			delete(f.sessions, jti)
			n++
		}
	}
	return n, nil
}

func (f *fakeSessions) DeleteExpired(context.Context) (int64, error) { return 0, nil }

type fakeCodes struct {
	mu    sync.Mutex
	codes []*models.VerificationCode
}

func (f *fakeCodes) Create(_ context.Context, c *models.VerificationCode) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	c.ID = uint(len(f.codes) + 1)
	cp := *c
	f.codes = append(f.codes, &cp)
	return nil
}

func (f *fakeCodes) List(context.Context, string) ([]models.VerificationCode, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []models.VerificationCode
	for _, c := range f.codes {
		out = append(out, *c)
	}
	return out, nil
}

func (f *fakeCodes) Consume(_ context.Context, code string) (*models.VerificationCode, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, c := range f.codes {
		if c.Code == code && c.Usable(time.Now()) {
			c.CurrentUses++
			if c.CurrentUses >= c.MaxUses {
				c.Status = models.CodeStatusUsed
			}
			cp := *c
			return &cp, nil
		}
	}
	return nil, repository.ErrNotFound
}

func (f *fakeCodes) Revoke(_ context.Context, id uint) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, c := range f.codes {
		if c.ID == id && c.Status == models.CodeStatusActive {
			c.Status = models.CodeStatusRevoked
			return nil
		}
	}
	return repository.ErrNotFound
}

func (f *fakeCodes) ExpireOverdue(context.Context) (int64, error) { return 0, nil }

type authFixture struct {
	svc      *AuthService
	users    *fakeAuthUsers
	sessions *fakeSessions
	codes    *fakeCodes
	admin    *models.User
}

func newAuthFixture(t *testing.T) *authFixture {
	t.Helper()
	cipher, err := vault.NewLocalCipher([]byte("test key material"))
	if err != nil {
		t.Fatalf("NewLocalCipher failed: %v", err)
	}
	f := &authFixture{
		users:    &fakeAuthUsers{fakeUsers: newFakeUsers()},
		sessions: newFakeSessions(),
		codes:    &fakeCodes{},
	}
	authSvc := auth.NewService(&config.JWTConfig{
		Secret:              "test-secret",
		Expiration:          time.Hour,
		ChallengeExpiration: 5 * time.Minute,
	})
	f.svc = NewAuthService(fakeTx{}, f.users, f.sessions, f.codes, newTestAudit(), authSvc, cipher,
		config.TwoFactorConfig{MaxAttempts: 3, Lockout: time.Minute})

	if err := f.svc.EnsureAdmin(context.Background(), "admin@fpinnova.test", "Admin1234!", ""); err != nil {
		t.Fatalf("EnsureAdmin failed: %v", err)
	}
	f.admin, err = f.users.GetByEmail(context.Background(), "admin@fpinnova.test")
	if err != nil {
		t.Fatalf("bootstrap admin not created: %v", err)
	}
	return f
}

func (f *authFixture) register(t *testing.T, role, email string) *models.User {
	t.Helper()
	ctx := context.Background()
	code, err := f.svc.CreateVerificationCode(ctx, f.admin, CreateCodeRequest{Role: role, MaxUses: 1, ExpiresAt: time.Now().Add(time.Hour)})
	if err != nil {
		t.Fatalf("CreateVerificationCode failed: %v", err)
	}
	user, err := f.svc.Register(ctx, RegisterRequest{Name: "Lucía Pérez", Email: email, Password: "Secreta123!", Code: code.Code})
	if err != nil {
		t.Fatalf("Register failed: %v", err)
	}
	return user
}

func TestRegisterLoginLogout(t *testing.T) {
	f := newAuthFixture(t)
	ctx := context.Background()

	user := f.register(t, models.RoleReviewer, "Lucia@Example.com")
	if user.Role != models.RoleReviewer || user.Email != "lucia@example.com" {
		t.Errorf("registered user = %+v", user)
	}

	if _, err := f.svc.Login(ctx, "lucia@example.com", "wrong"); !errors.Is(err, ErrInvalidCredentials) {
		t.Errorf("wrong password: expected ErrInvalidCredentials, got %v", err)
	}
	if _, err := f.svc.Login(ctx, "nobody@example.com", "Secreta123!"); !errors.Is(err, ErrInvalidCredentials) {
		t.Errorf("unknown user: expected ErrInvalidCredentials, got %v", err)
	}

	res, err := f.svc.Login(ctx, "lucia@example.com", "Secreta123!")
	if err != nil {
		t.Fatalf("Login failed: %v", err)
	}
	if res.Token == "" || res.RequiresTwoFactor {
		t.Fatalf("unexpected login result: %+v", res)
	}
	got, session, err := f.svc.Authenticate(ctx, res.Token)
	if err != nil {
		t.Fatalf("Authenticate failed: %v", err)
	}
	if got.ID != user.ID || session.UserID != user.ID {
		t.Errorf("authenticated as %d", got.ID)
	}

	if err := f.svc.Logout(ctx, res.Token); err != nil {
		t.Fatalf("Logout failed: %v", err)
	}
	if _, _, err := f.svc.Authenticate(ctx, res.Token); !errors.Is(err, ErrSessionInvalid) {
		t.Errorf("after logout: expected ErrSessionInvalid, got %v", err)
	}

	if err := f.users.SetActive(ctx, user.ID, false); err != nil {
		t.Fatalf("SetActive failed: %v", err)
	}
	if _, err := f.svc.Login(ctx, "lucia@example.com", "Secreta123!"); !errors.Is(err, ErrUserInactive) {
		t.Errorf("inactive user: expected ErrUserInactive, got %v", err)
	}
}

func TestRegisterRejectsUsedCodesAndDuplicates(t *testing.T) {
	f := newAuthFixture(t)
	ctx := context.Background()

	code, err := f.svc.CreateVerificationCode(ctx, f.admin, CreateCodeRequest{Role: models.RolePresenter, MaxUses: 2, ExpiresAt: time.Now().Add(time.Hour)})
	if err != nil {
		t.Fatalf("CreateVerificationCode failed: %v", err)
	}
	req := RegisterRequest{Name: "Ana", Email: "ana@example.com", Password: "Secreta123!", Code: code.Code}
	if _, err := f.svc.Register(ctx, req); err != nil {
		t.Fatalf("Register failed: %v", err)
	}
	if _, err := f.svc.Register(ctx, req); !errors.Is(err, ErrEmailTaken) {
		t.Errorf("duplicate email: expected ErrEmailTaken, got %v", err)
	}

	req.Email = "otra@example.com"
	if _, err := f.svc.Register(ctx, req); !errors.Is(err, ErrInvalidVerificationCode) {
		t.Errorf("exhausted code: expected ErrInvalidVerificationCode, got %v", err)
	}
	req.Code = "NOPE"
	if _, err := f.svc.Register(ctx, req); !errors.Is(err, ErrInvalidVerificationCode) {
		t.Errorf("unknown code: expected ErrInvalidVerificationCode, got %v", err)
	}

	if _, err := f.svc.CreateVerificationCode(ctx, f.admin, CreateCodeRequest{Role: models.RolePresenter, MaxUses: 1,
		ExpiresAt: time.Now().Add(-time.Minute)}); err == nil {
		t.Error("expected error for a code expiring in the past")
	}
}

func enrollTwoFactor(t *testing.T, f *authFixture, user *models.User) *auth.TwoFactorSetup {
	t.Helper()
	ctx := context.Background()
	setup, err := f.svc.SetupTwoFactor(ctx, user)
	if err != nil {
		t.Fatalf("SetupTwoFactor failed: %v", err)
	}
	stored, _ := f.users.GetByID(ctx, user.ID)
	if stored.TwoFactorState() != models.TwoFactorPending {
		t.Fatalf("state = %s, want pending", stored.TwoFactorState())
	}
	if *stored.TwoFactorSecret == setup.Secret {
		t.Fatal("secret stored in plain text")
	}
	code, err := totp.GenerateCode(setup.Secret, time.Now())
	if err != nil {
		t.Fatalf("GenerateCode failed: %v", err)
	}
	if err := f.svc.VerifyTwoFactorSetup(ctx, user.ID, code); err != nil {
		t.Fatalf("VerifyTwoFactorSetup failed: %v", err)
	}
	return setup
}

func TestTwoFactorLoginAndLockout(t *testing.T) {
	f := newAuthFixture(t)
	ctx := context.Background()
	user := f.register(t, models.RoleCoordinator, "coord@example.com")
	setup := enrollTwoFactor(t, f, user)

	res, err := f.svc.Login(ctx, "coord@example.com", "Secreta123!")
	if err != nil {
		t.Fatalf("Login failed: %v", err)
	}
	if !res.RequiresTwoFactor || res.Token != "" || res.ChallengeToken == "" {
		t.Fatalf("expected a two-factor challenge, got %+v", res)
	}
	if _, _, err := f.svc.Authenticate(ctx, res.ChallengeToken); !errors.Is(err, ErrSessionInvalid) {
		t.Errorf("challenge token must not authenticate, got %v", err)
	}

	code, _ := totp.GenerateCode(setup.Secret, time.Now().Add(30*time.Second))
	done, err := f.svc.CompleteTwoFactorLogin(ctx, res.ChallengeToken, code)
	if err != nil {
		t.Fatalf("CompleteTwoFactorLogin failed: %v", err)
	}
	if done.Token == "" {
		t.Error("no session token after second factor")
	}

	for i := 0; i < 2; i++ {
		if _, err := f.svc.CompleteTwoFactorLogin(ctx, res.ChallengeToken, "000000"); !errors.Is(err, ErrInvalidTwoFactorCode) {
			t.Fatalf("attempt %d: expected ErrInvalidTwoFactorCode, got %v", i+1, err)
		}
	}
	if _, err := f.svc.CompleteTwoFactorLogin(ctx, res.ChallengeToken, "000000"); !errors.Is(err, ErrTwoFactorLocked) {
		t.Fatalf("third failure: expected ErrTwoFactorLocked, got %v", err)
	}
	code, _ = totp.GenerateCode(setup.Secret, time.Now())
	if _, err := f.svc.CompleteTwoFactorLogin(ctx, res.ChallengeToken, code); !errors.Is(err, ErrTwoFactorLocked) {
		t.Errorf("valid code while locked: expected ErrTwoFactorLocked, got %v", err)
	}
}

func TestTOTPCodeCannotBeReused(t *testing.T) {
	f := newAuthFixture(t)
	ctx := context.Background()
	user := f.register(t, models.RoleReviewer, "rev2fa@example.com")
	setup := enrollTwoFactor(t, f, user)

	// VerifyTwoFactorSetup spent the enrolment step and everything before it
	code, _ := totp.GenerateCode(setup.Secret, time.Now().Add(-30*time.Second))
	res, err := f.svc.Login(ctx, "rev2fa@example.com", "Secreta123!")
	if err != nil {
		t.Fatalf("Login failed: %v", err)
	}
	if _, err := f.svc.CompleteTwoFactorLogin(ctx, res.ChallengeToken, code); !errors.Is(err, ErrInvalidTwoFactorCode) {
		t.Fatalf("enrolment code reused: expected ErrInvalidTwoFactorCode, got %v", err)
	}

	next, _ := totp.GenerateCode(setup.Secret, time.Now().Add(30*time.Second))
	if _, err := f.svc.CompleteTwoFactorLogin(ctx, res.ChallengeToken, next); err != nil {
		t.Fatalf("CompleteTwoFactorLogin with a fresh step failed: %v", err)
	}
	if _, err := f.svc.CompleteTwoFactorLogin(ctx, res.ChallengeToken, next); !errors.Is(err, ErrInvalidTwoFactorCode) {
		t.Errorf("replayed login code: expected ErrInvalidTwoFactorCode, got %v", err)
	}
	if err := f.svc.DisableTwoFactor(ctx, user.ID, next); !errors.Is(err, ErrInvalidTwoFactorCode) {
		t.Errorf("replayed code on disable: expected ErrInvalidTwoFactorCode, got %v", err)
	}
	stored, _ := f.users.GetByID(ctx, user.ID)
	if !stored.TwoFactorEnabled {
		t.Error("two-factor disabled with a replayed code")
	}
}

func TestRecoveryCodeDisablesTwoFactor(t *testing.T) {
	f := newAuthFixture(t)
	ctx := context.Background()
	user := f.register(t, models.RolePresenter, "pres@example.com")
	setup := enrollTwoFactor(t, f, user)

	if _, err := f.svc.SetupTwoFactor(ctx, &models.User{ID: user.ID, TwoFactorEnabled: true}); !errors.Is(err, ErrTwoFactorState) {
		t.Errorf("setup while enabled: expected ErrTwoFactorState, got %v", err)
	}

	if err := f.svc.UseRecoveryCode(ctx, "pres@example.com", "AAAAA-AAAAA-AAAAA-AAAAA"); !errors.Is(err, ErrInvalidTwoFactorCode) {
		t.Errorf("wrong recovery code: expected ErrInvalidTwoFactorCode, got %v", err)
	}
	if err := f.svc.UseRecoveryCode(ctx, "pres@example.com", setup.RecoveryCode); err != nil {
		t.Fatalf("UseRecoveryCode failed: %v", err)
	}
	stored, _ := f.users.GetByID(ctx, user.ID)
	if stored.TwoFactorState() != models.TwoFactorDisabled {
		t.Errorf("state = %s, want disabled", stored.TwoFactorState())
	}
	if err := f.svc.UseRecoveryCode(ctx, "pres@example.com", setup.RecoveryCode); !errors.Is(err, ErrTwoFactorState) {
		t.Errorf("second use: expected ErrTwoFactorState, got %v", err)
	}

	res, err := f.svc.Login(ctx, "pres@example.com", "Secreta123!")
	if err != nil || res.RequiresTwoFactor {
		t.Errorf("login after recovery = %+v, %v", res, err)
	}
}

func TestChangePasswordRevokesOtherSessions(t *testing.T) {
	f := newAuthFixture(t)
	ctx := context.Background()
	f.register(t, models.RoleReviewer, "rev@example.com")

	first, err := f.svc.Login(ctx, "rev@example.com", "Secreta123!")
	if err != nil {
		t.Fatalf("Login failed: %v", err)
	}
	second, err := f.svc.Login(ctx, "rev@example.com", "Secreta123!")
	if err != nil {
		t.Fatalf("Login failed: %v", err)
	}
	user, current, err := f.svc.Authenticate(ctx, second.Token)
	if err != nil {
		t.Fatalf("Authenticate failed: %v", err)
	}

	if err := f.svc.ChangePassword(ctx, user, current.JTI, "wrong", "Nueva1234!"); err == nil {
		t.Error("expected error for wrong current password")
	}
	if err := f.svc.ChangePassword(ctx, user, current.JTI, "Secreta123!", "Nueva1234!"); err != nil {
		t.Fatalf("ChangePassword failed: %v", err)
	}
	if _, _, err := f.svc.Authenticate(ctx, first.Token); !errors.Is(err, ErrSessionInvalid) {
		t.Errorf("other session should be revoked, got %v", err)
	}
	if _, _, err := f.svc.Authenticate(ctx, second.Token); err != nil {
		t.Errorf("current session should survive: %v", err)
	}
	if _, err := f.svc.Login(ctx, "rev@example.com", "Nueva1234!"); err != nil {
		t.Errorf("login with new password failed: %v", err)
	}
}
