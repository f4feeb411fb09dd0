package middleware

import (
	"log/slog"
	"net/http"
	"slices"
)

// PermissionChecker answers RBAC questions against the effective policy
type PermissionChecker interface {
	HasPermission(role, action, resource string) bool
}

// RBACMiddleware handles role-based access control. It must run after
// AuthMiddleware.Authenticate.
type RBACMiddleware struct {
	policy PermissionChecker
}

// NewRBACMiddleware creates a new RBAC middleware
func NewRBACMiddleware(policy PermissionChecker) *RBACMiddleware {
	return &RBACMiddleware{policy: policy}
}

// RequirePermission checks that the user's role may perform action on resource
func (m *RBACMiddleware) RequirePermission(action, resource string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			user, ok := GetUser(r)
			if !ok {
				respondWithError(w, http.StatusUnauthorized, "Authentication required")
				return
			}
			if !m.policy.HasPermission(user.Role, action, resource) {
				slog.Warn("Permission denied",
					"user_id", user.ID,
					"role", user.Role,
					"action", action,
					"resource", resource,
					"path", r.URL.Path,
				)
				respondWithError(w, http.StatusForbidden, "Insufficient permissions")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// RequireAnyRole checks that the user holds one of roles
func (m *RBACMiddleware) RequireAnyRole(roles ...string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			user, ok := GetUser(r)
			if !ok {
				respondWithError(w, http.StatusUnauthorized, "Authentication required")
				return
			}
			if !slices.Contains(roles, user.Role) {
				respondWithError(w, http.StatusForbidden, "Insufficient permissions")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
