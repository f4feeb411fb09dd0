package handlers

import (
	"net/http"

	"fp-innova/internal/models"
	"fp-innova/internal/service"
)

// AuditHandler handles audit log requests
type AuditHandler struct {
	errorResponder
	auditService *service.AuditService
}

// NewAuditHandler creates a new audit handler
func NewAuditHandler(auditService *service.AuditService, exposeErrors bool) *AuditHandler {
	return &AuditHandler{
		errorResponder: errorResponder{exposeErrors: exposeErrors},
		auditService:   auditService,
	}
}

// ListAuditLogs lists audit logs, newest first
// @Summary List audit logs
// @Tags Admin
// @Produce json
// @Param page query int false "Page number" default(1)
// @Param limit query int false "Items per page" default(50)
// @Param userId query int false "Filter by user ID"
// @Param resource query string false "Filter by resource"
// @Param resourceId query string false "Filter by resource ID"
// @Success 200 {object} map[string]interface{} "Paginated audit logs"
// @Failure 403 {object} map[string]string "Forbidden"
// @Router /audit-logs [get]
func (h *AuditHandler) ListAuditLogs(w http.ResponseWriter, r *http.Request) {
	limit, offset := pagination(r, 50, 100)
	q := r.URL.Query()
	logs, err := h.auditService.List(r.Context(), models.AuditFilter{
		Resource:   q.Get("resource"),
		ResourceID: q.Get("resourceId"),
		UserID:     queryUint(r, "userId"),
		Limit:      limit,
		Offset:     offset,
	})
	if err != nil {
		h.fail(w, r, err)
		return
	}
	respondWithJSON(w, http.StatusOK, map[string]any{
		"logs":  logs,
		"page":  offset/limit + 1,
		"limit": limit,
	})
}
