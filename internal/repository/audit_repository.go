package repository

import (
	"context"
	"fmt"
	"strings"

	"github.com/jmoiron/sqlx"

	"fp-innova/internal/database"
	"fp-innova/internal/models"
)

// AuditRepository handles audit log database operations
type AuditRepository struct {
	db *sqlx.DB
}

// NewAuditRepository creates a new audit repository
func NewAuditRepository(db *sqlx.DB) *AuditRepository {
	return &AuditRepository{db: db}
}

// Create creates a new audit log entry
func (r *AuditRepository) Create(ctx context.Context, log *models.AuditLog) error {
	err := sqlx.GetContext(ctx, database.Conn(ctx, r.db), log, `
		INSERT INTO audit_logs (user_id, action, resource, resource_id, details, changes, ip_address, user_agent)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING id, user_id, action, resource, resource_id, details, changes, ip_address, user_agent, created_at`,
		log.UserID, log.Action, log.Resource, log.ResourceID, log.Details, log.Changes, log.IPAddress, log.UserAgent)
	if err != nil {
		return translate("create audit log", err)
	}
	return nil
}

// List returns audit entries matching filter, newest first
func (r *AuditRepository) List(ctx context.Context, filter models.AuditFilter) ([]models.AuditLog, error) {
	var (
		where []string
		args  []any
	)
	arg := func(v any) string {
		args = append(args, v)
		return fmt.Sprintf("$%d", len(args))
	}
	if filter.Resource != "" {
		where = append(where, "a.resource = "+arg(filter.Resource))
	}
	if filter.ResourceID != "" {
		where = append(where, "a.resource_id = "+arg(filter.ResourceID))
	}
	if filter.UserID != nil {
		where = append(where, "a.user_id = "+arg(*filter.UserID))
	}

	query := `
		SELECT a.id, a.user_id, u.name AS user_name, a.action, a.resource, a.resource_id, a.details,
		       a.changes, a.ip_address, a.user_agent, a.created_at
		FROM audit_logs a
		LEFT JOIN users u ON u.id = a.user_id`
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	limit := filter.Limit
	if limit <= 0 {
		limit = 100
	}
	query += " ORDER BY a.created_at DESC, a.id DESC LIMIT " + arg(limit) + " OFFSET " + arg(filter.Offset)

	logs := []models.AuditLog{}
	if err := sqlx.SelectContext(ctx, database.Conn(ctx, r.db), &logs, query, args...); err != nil {
		return nil, translate("list audit logs", err)
	}
	return logs, nil
}
