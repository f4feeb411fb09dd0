package service

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"reflect"

	"fp-innova/internal/models"
)

// Audit actions
const (
	AuditCreate     = "create"
	AuditUpdate     = "update"
	AuditDelete     = "delete"
	AuditDeactivate = "deactivate"
	AuditImport     = "import"
	AuditLogin      = "login"
	AuditLogout     = "logout"
	AuditTwoFactor  = "two_factor"
	AuditPassword   = "password_change"
	AuditRegister   = "register"
)

// AuditStore persists audit entries
type AuditStore interface {
	Create(ctx context.Context, log *models.AuditLog) error
	List(ctx context.Context, filter models.AuditFilter) ([]models.AuditLog, error)
}

// RequestMeta identifies the client of a request for audit and session records
type RequestMeta struct {
	IPAddress string
	UserAgent string
}

type requestMetaKey struct{}

// WithRequestMeta attaches client details to ctx
func WithRequestMeta(ctx context.Context, meta RequestMeta) context.Context {
	return context.WithValue(ctx, requestMetaKey{}, meta)
}

// RequestMetaFrom returns the client details attached to ctx
func RequestMetaFrom(ctx context.Context) RequestMeta {
	meta, _ := ctx.Value(requestMetaKey{}).(RequestMeta)
	return meta
}

// AuditService handles audit logging
type AuditService struct {
	auditRepo AuditStore
}

// NewAuditService creates a new audit service
func NewAuditService(auditRepo AuditStore) *AuditService {
	return &AuditService{auditRepo: auditRepo}
}

// Log writes an audit entry. Failures are logged and never fail the caller.
func (s *AuditService) Log(ctx context.Context, userID *uint, action, resource, resourceID, details string, changes models.FieldChanges) {
	meta := RequestMetaFrom(ctx)
	entry := &models.AuditLog{
		UserID:     userID,
		Action:     action,
		Resource:   resource,
		ResourceID: resourceID,
		Details:    details,
		Changes:    changes,
		IPAddress:  meta.IPAddress,
		UserAgent:  meta.UserAgent,
	}
	if err := s.auditRepo.Create(ctx, entry); err != nil {
		slog.Error("Failed to write audit log", "action", action, "resource", resource, "error", err)
	}
}

// List returns audit entries, newest first
func (s *AuditService) List(ctx context.Context, filter models.AuditFilter) ([]models.AuditLog, error) {
	if filter.Limit <= 0 || filter.Limit > 500 {
		filter.Limit = 100
	}
	return s.auditRepo.List(ctx, filter)
}

// Diff compares the JSON forms of before and after field by field. Timestamps
// and ids are skipped. A nil before records every field of after as new.
func Diff(before, after any) models.FieldChanges {
	old := toFieldMap(before)
	cur := toFieldMap(after)
	changes := models.FieldChanges{}
	for field, v := range cur {
		switch field {
		case "id", "createdAt", "updatedAt", "lastModified":
			continue
		}
		if o, ok := old[field]; !ok || !reflect.DeepEqual(o, v) {
			changes[field] = models.FieldChange{Old: old[field], New: v}
		}
	}
	for field, o := range old {
		if _, ok := cur[field]; !ok {
			changes[field] = models.FieldChange{Old: o, New: nil}
		}
	}
	return changes
}

func toFieldMap(v any) map[string]any {
	out := map[string]any{}
	if v == nil || (reflect.ValueOf(v).Kind() == reflect.Pointer && reflect.ValueOf(v).IsNil()) {
		return out
	}
	b, err := json.Marshal(v)
	if err != nil {
		return out
	}
	_ = json.Unmarshal(b, &out)
	return out
}

func idString(id uint) string {
	return fmt.Sprintf("%d", id)
}
