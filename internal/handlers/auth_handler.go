package handlers

import (
	"log/slog"
	"net/http"
	"time"

	"fp-innova/internal/config"
	"fp-innova/internal/middleware"
	"fp-innova/internal/models"
	"fp-innova/internal/service"
)

// AuthHandler handles authentication requests
type AuthHandler struct {
	errorResponder
	authService *service.AuthService
	authMw      *middleware.AuthMiddleware
	session     config.SessionConfig
}

// NewAuthHandler creates a new auth handler
func NewAuthHandler(authService *service.AuthService, authMw *middleware.AuthMiddleware, cfg *config.Config) *AuthHandler {
	return &AuthHandler{
		errorResponder: errorResponder{exposeErrors: cfg.App.IsDevelopment()},
		authService:    authService,
		authMw:         authMw,
		session:        cfg.Session,
	}
}

// LoginRequest represents a login request
type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// TwoFactorLoginRequest completes a login with a second factor
type TwoFactorLoginRequest struct {
	ChallengeToken string `json:"challengeToken"`
	Code           string `json:"code"`
}

// TwoFactorCodeRequest carries a TOTP code
type TwoFactorCodeRequest struct {
	Code string `json:"code"`
}

// RecoveryRequest disables two-factor with the recovery code
type RecoveryRequest struct {
	Email        string `json:"email"`
	RecoveryCode string `json:"recoveryCode"`
}

// ChangePasswordRequest changes the password of the current user
type ChangePasswordRequest struct {
	CurrentPassword string `json:"currentPassword"`
	NewPassword     string `json:"newPassword"`
}

// LoginResponse is returned by both login steps
type LoginResponse struct {
	RequiresTwoFactor bool         `json:"requiresTwoFactor"`
	ChallengeToken    string       `json:"challengeToken,omitempty"`
	User              *models.User `json:"user,omitempty"`
	ExpiresAt         *time.Time   `json:"expiresAt,omitempty"`
}

// MeResponse describes the signed-in user
type MeResponse struct {
	*models.User
	TwoFactorState models.TwoFactorState `json:"twoFactorState"`
}

func (h *AuthHandler) setSessionCookie(w http.ResponseWriter, token string, expires time.Time) {
	http.SetCookie(w, &http.Cookie{
		Name:     h.session.CookieName,
		Value:    token,
		Path:     "/",
		Domain:   h.session.Domain,
		Expires:  expires,
		MaxAge:   int(time.Until(expires).Seconds()),
		HttpOnly: true,
		Secure:   h.session.Secure,
		SameSite: h.session.SameSite,
	})
}

func (h *AuthHandler) clearSessionCookie(w http.ResponseWriter) {
	http.SetCookie(w, &http.Cookie{
		Name:     h.session.CookieName,
		Value:    "",
		Path:     "/",
		Domain:   h.session.Domain,
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   h.session.Secure,
		SameSite: h.session.SameSite,
	})
}

func (h *AuthHandler) respondLogin(w http.ResponseWriter, result *service.LoginResult) {
	if result.RequiresTwoFactor {
		respondWithJSON(w, http.StatusOK, LoginResponse{RequiresTwoFactor: true, ChallengeToken: result.ChallengeToken})
		return
	}
	h.setSessionCookie(w, result.Token, result.ExpiresAt)
	respondWithJSON(w, http.StatusOK, LoginResponse{User: result.User, ExpiresAt: &result.ExpiresAt})
}

// Login handles password login
// @Summary Log in
// @Description Checks the password. Accounts with two-factor get a challenge token instead of a session cookie.
// @Tags Authentication
// @Accept json
// @Produce json
// @Param request body LoginRequest true "Credentials"
// @Success 200 {object} LoginResponse
// @Failure 401 {object} map[string]string "Invalid credentials"
// @Router /auth/login [post]
func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req LoginRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	result, err := h.authService.Login(r.Context(), req.Email, req.Password)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	h.respondLogin(w, result)
}

// CompleteTwoFactorLogin finishes a login started with a challenge token
// @Summary Complete two-factor login
// @Description Accepts a TOTP code or the recovery code. The recovery code also disables two-factor.
// @Tags Authentication
// @Accept json
// @Produce json
// @Param request body TwoFactorLoginRequest true "Challenge token and code"
// @Success 200 {object} LoginResponse
// @Failure 401 {object} map[string]string "Invalid code or challenge"
// @Failure 429 {object} map[string]string "Locked after too many attempts"
// @Router /auth/2fa/login [post]
func (h *AuthHandler) CompleteTwoFactorLogin(w http.ResponseWriter, r *http.Request) {
	var req TwoFactorLoginRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	result, err := h.authService.CompleteTwoFactorLogin(r.Context(), req.ChallengeToken, req.Code)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	h.respondLogin(w, result)
}

// Logout handles user logout
// @Summary Log out
// @Tags Authentication
// @Produce json
// @Success 200 {object} map[string]string
// @Router /auth/logout [post]
func (h *AuthHandler) Logout(w http.ResponseWriter, r *http.Request) {
	if token := h.authMw.Token(r); token != "" {
		if err := h.authService.Logout(r.Context(), token); err != nil {
			slog.Error("Failed to delete session on logout", "error", err)
		}
	}
	h.clearSessionCookie(w)
	respondWithMessage(w, "Logged out successfully")
}

// Register handles invite-code registration
// @Summary Register with a verification code
// @Tags Authentication
// @Accept json
// @Produce json
// @Param request body service.RegisterRequest true "Registration details"
// @Success 201 {object} models.User
// @Failure 400 {object} map[string]interface{} "Validation failed or invalid code"
// @Failure 409 {object} map[string]string "Email already registered"
// @Router /auth/register [post]
func (h *AuthHandler) Register(w http.ResponseWriter, r *http.Request) {
	var req service.RegisterRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	user, err := h.authService.Register(r.Context(), req)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	respondWithJSON(w, http.StatusCreated, user)
}

// Me returns the signed-in user
// @Summary Current user
// @Tags Authentication
// @Produce json
// @Success 200 {object} MeResponse
// @Failure 401 {object} map[string]string
// @Router /auth/me [get]
func (h *AuthHandler) Me(w http.ResponseWriter, r *http.Request) {
	user, ok := currentUser(w, r)
	if !ok {
		return
	}
	respondWithJSON(w, http.StatusOK, MeResponse{User: user, TwoFactorState: user.TwoFactorState()})
}

// ChangePassword changes the password and signs out every other session
// @Summary Change password
// @Tags Authentication
// @Accept json
// @Produce json
// @Param request body ChangePasswordRequest true "Current and new password"
// @Success 200 {object} map[string]string
// @Failure 400 {object} map[string]interface{}
// @Failure 401 {object} map[string]string
// @Router /auth/password [put]
func (h *AuthHandler) ChangePassword(w http.ResponseWriter, r *http.Request) {
	user, ok := currentUser(w, r)
	if !ok {
		return
	}
	var req ChangePasswordRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	var jti string
	if session, ok := middleware.GetSession(r); ok {
		jti = session.JTI
	}
	if err := h.authService.ChangePassword(r.Context(), user, jti, req.CurrentPassword, req.NewPassword); err != nil {
		h.fail(w, r, err)
		return
	}
	respondWithMessage(w, "Password changed")
}

// SetupTwoFactor starts two-factor enrolment
// @Summary Start two-factor setup
// @Description Returns the TOTP secret, otpauth URL, QR code and the single recovery code. Shown only once.
// @Tags Two-factor
// @Produce json
// @Success 200 {object} auth.TwoFactorSetup
// @Failure 409 {object} map[string]string "Already enabled"
// @Router /auth/2fa/setup [post]
func (h *AuthHandler) SetupTwoFactor(w http.ResponseWriter, r *http.Request) {
	user, ok := currentUser(w, r)
	if !ok {
		return
	}
	setup, err := h.authService.SetupTwoFactor(r.Context(), user)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	respondWithJSON(w, http.StatusOK, setup)
}

// VerifyTwoFactorSetup enables two-factor after a valid code
// @Summary Confirm two-factor setup
// @Tags Two-factor
// @Accept json
// @Produce json
// @Param request body TwoFactorCodeRequest true "TOTP code"
// @Success 200 {object} map[string]string
// @Failure 401 {object} map[string]string "Invalid code"
// @Failure 409 {object} map[string]string "No setup pending"
// @Router /auth/2fa/verify [post]
func (h *AuthHandler) VerifyTwoFactorSetup(w http.ResponseWriter, r *http.Request) {
	user, ok := currentUser(w, r)
	if !ok {
		return
	}
	var req TwoFactorCodeRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if err := h.authService.VerifyTwoFactorSetup(r.Context(), user.ID, req.Code); err != nil {
		h.fail(w, r, err)
		return
	}
	respondWithMessage(w, "Two-factor authentication enabled")
}

// DisableTwoFactor turns two-factor off with a valid code
// @Summary Disable two-factor
// @Tags Two-factor
// @Accept json
// @Produce json
// @Param request body TwoFactorCodeRequest true "TOTP code"
// @Success 200 {object} map[string]string
// @Failure 401 {object} map[string]string "Invalid code"
// @Router /auth/2fa/disable [post]
func (h *AuthHandler) DisableTwoFactor(w http.ResponseWriter, r *http.Request) {
	user, ok := currentUser(w, r)
	if !ok {
		return
	}
	var req TwoFactorCodeRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if err := h.authService.DisableTwoFactor(r.Context(), user.ID, req.Code); err != nil {
		h.fail(w, r, err)
		return
	}
	respondWithMessage(w, "Two-factor authentication disabled")
}

// UseRecoveryCode disables two-factor for an account that lost its device
// @Summary Use the recovery code
// @Tags Two-factor
// @Accept json
// @Produce json
// @Param request body RecoveryRequest true "Email and recovery code"
// @Success 200 {object} map[string]string
// @Failure 401 {object} map[string]string
// @Failure 429 {object} map[string]string
// @Router /auth/2fa/recovery [post]
func (h *AuthHandler) UseRecoveryCode(w http.ResponseWriter, r *http.Request) {
	var req RecoveryRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if err := h.authService.UseRecoveryCode(r.Context(), req.Email, req.RecoveryCode); err != nil {
		h.fail(w, r, err)
		return
	}
	respondWithMessage(w, "Two-factor authentication disabled. Log in with your password.")
}
