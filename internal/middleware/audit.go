package middleware

import (
	"context"
	"net/http"

	"fp-innova/internal/models"
)

// AuditLogger records audit entries
type AuditLogger interface {
	Log(ctx context.Context, userID *uint, action, resource, resourceID, details string, changes models.FieldChanges)
}

// AuditMiddleware records access to sensitive read-only endpoints. Writes are
// audited by the services themselves.
type AuditMiddleware struct {
	audit AuditLogger
}

// NewAuditMiddleware creates a new audit middleware
func NewAuditMiddleware(audit AuditLogger) *AuditMiddleware {
	return &AuditMiddleware{audit: audit}
}

// Log records action on resource once the wrapped handler succeeded. The
// resource id is taken from the {id} path value.
func (m *AuditMiddleware) Log(action, resource string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			rec := wrapWriter(w)
			next.ServeHTTP(rec, r)

			if rec.Status() >= http.StatusBadRequest {
				return
			}
			var userID *uint
			if id, ok := GetUserID(r); ok {
				userID = &id
			}
			m.audit.Log(r.Context(), userID, action, resource, r.PathValue("id"), r.Method+" "+r.URL.Path, nil)
		})
	}
}
