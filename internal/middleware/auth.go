package middleware

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"fp-innova/internal/models"
	"fp-innova/internal/service"
)

type contextKey string

const (
	userKey    contextKey = "user"
	sessionKey contextKey = "session"
)

// Authenticator resolves session tokens
type Authenticator interface {
	Authenticate(ctx context.Context, token string) (*models.User, *models.Session, error)
}

// AuthMiddleware validates session tokens from the session cookie or an
// Authorization bearer header
type AuthMiddleware struct {
	authService Authenticator
	cookieName  string
}

// NewAuthMiddleware creates a new auth middleware
func NewAuthMiddleware(authService Authenticator, cookieName string) *AuthMiddleware {
	return &AuthMiddleware{
		authService: authService,
		cookieName:  cookieName,
	}
}

// Token extracts the session token of r, preferring the cookie
func (m *AuthMiddleware) Token(r *http.Request) string {
	if c, err := r.Cookie(m.cookieName); err == nil && c.Value != "" {
		return c.Value
	}
	parts := strings.SplitN(r.Header.Get("Authorization"), " ", 2)
	if len(parts) == 2 && strings.EqualFold(parts[0], "Bearer") {
		return strings.TrimSpace(parts[1])
	}
	return ""
}

func (m *AuthMiddleware) resolve(r *http.Request) (*http.Request, error) {
	token := m.Token(r)
	if token == "" {
		return r, service.ErrSessionInvalid
	}
	user, session, err := m.authService.Authenticate(r.Context(), token)
	if err != nil {
		return r, err
	}
	ctx := context.WithValue(r.Context(), userKey, user)
	ctx = context.WithValue(ctx, sessionKey, session)
	return r.WithContext(ctx), nil
}

// Authenticate rejects requests without a live session and stores the user
// in the request context
func (m *AuthMiddleware) Authenticate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		authed, err := m.resolve(r)
		if err != nil {
			switch {
			case errors.Is(err, service.ErrUserInactive):
				respondWithError(w, http.StatusUnauthorized, "Account is inactive")
			case errors.Is(err, service.ErrSessionInvalid):
				respondWithError(w, http.StatusUnauthorized, "Authentication required")
			default:
				slog.Error("Failed to authenticate request", "path", r.URL.Path, "error", err)
				respondWithError(w, http.StatusInternalServerError, "Internal Server Error")
			}
			return
		}
		next.ServeHTTP(w, authed)
	})
}

// OptionalAuth attaches the user when a valid session is present but never
// rejects the request
func (m *AuthMiddleware) OptionalAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if authed, err := m.resolve(r); err == nil {
			r = authed
		}
		next.ServeHTTP(w, r)
	})
}

// GetUser retrieves the authenticated user from the request context
func GetUser(r *http.Request) (*models.User, bool) {
	user, ok := r.Context().Value(userKey).(*models.User)
	return user, ok && user != nil
}

// GetUserID retrieves the authenticated user id from the request context
func GetUserID(r *http.Request) (uint, bool) {
	user, ok := GetUser(r)
	if !ok {
		return 0, false
	}
	return user.ID, true
}

// GetSession retrieves the current session from the request context
func GetSession(r *http.Request) (*models.Session, bool) {
	session, ok := r.Context().Value(sessionKey).(*models.Session)
	return session, ok && session != nil
}

func respondWithError(w http.ResponseWriter, code int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_, _ = w.Write([]byte(`{"message":"` + message + `"}`))
}
