package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"fp-innova/internal/database"
	"fp-innova/internal/models"
)

const sessionColumns = `id, user_id, jti, ip_address, user_agent, expires_at, last_activity_at, created_at`

// SessionRepository handles session database operations
type SessionRepository struct {
	db *sqlx.DB
}

// NewSessionRepository creates a new session repository
func NewSessionRepository(db *sqlx.DB) *SessionRepository {
	return &SessionRepository{db: db}
}

// Create creates a new session
func (r *SessionRepository) Create(ctx context.Context, session *models.Session) error {
	err := sqlx.GetContext(ctx, database.Conn(ctx, r.db), session, `
		INSERT INTO sessions (user_id, jti, ip_address, user_agent, expires_at)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING `+sessionColumns,
		session.UserID, session.JTI, session.IPAddress, session.UserAgent, session.ExpiresAt)
	if err != nil {
		return translate("create session", err)
	}
	return nil
}

// GetByJTI retrieves an unexpired session by JTI
func (r *SessionRepository) GetByJTI(ctx context.Context, jti string) (*models.Session, error) {
	session := &models.Session{}
	err := sqlx.GetContext(ctx, database.Conn(ctx, r.db), session,
		`SELECT `+sessionColumns+` FROM sessions WHERE jti = $1 AND expires_at > NOW()`, jti)
	if err != nil {
		return nil, translate("get session", err)
	}
	return session, nil
}

// ListByUser returns the active sessions of a user, newest first
func (r *SessionRepository) ListByUser(ctx context.Context, userID uint) ([]models.Session, error) {
	sessions := []models.Session{}
	err := sqlx.SelectContext(ctx, database.Conn(ctx, r.db), &sessions,
		`SELECT `+sessionColumns+` FROM sessions WHERE user_id = $1 AND expires_at > NOW() ORDER BY last_activity_at DESC`, userID)
	if err != nil {
		return nil, translate("list sessions", err)
	}
	return sessions, nil
}

// Touch updates the last activity timestamp
func (r *SessionRepository) Touch(ctx context.Context, jti string, at time.Time) error {
	_, err := database.Conn(ctx, r.db).ExecContext(ctx,
		`UPDATE sessions SET last_activity_at = $2 WHERE jti = $1`, jti, at)
	return translate("touch session", err)
}

// DeleteByJTI removes a session
func (r *SessionRepository) DeleteByJTI(ctx context.Context, jti string) error {
	_, err := database.Conn(ctx, r.db).ExecContext(ctx, `DELETE FROM sessions WHERE jti = $1`, jti)
	return translate("delete session", err)
}

// DeleteForUser removes one session of a user
func (r *SessionRepository) DeleteForUser(ctx context.Context, userID, sessionID uint) error {
	res, err := database.Conn(ctx, r.db).ExecContext(ctx,
		`DELETE FROM sessions WHERE id = $1 AND user_id = $2`, sessionID, userID)
	if err != nil {
		return translate("delete session", err)
	}
	return expectOne(res, "delete session")
}

// DeleteOthers removes every session of a user except keepJTI
func (r *SessionRepository) DeleteOthers(ctx context.Context, userID uint, keepJTI string) (int64, error) {
	res, err := database.Conn(ctx, r.db).ExecContext(ctx,
		`DELETE FROM sessions WHERE user_id = $1 AND jti <> $2`, userID, keepJTI)
	if err != nil {
		return 0, translate("delete sessions", err)
	}
	return res.RowsAffected()
}

// DeleteAllForUser removes every session of a user
func (r *SessionRepository) DeleteAllForUser(ctx context.Context, userID uint) error {
	_, err := database.Conn(ctx, r.db).ExecContext(ctx, `DELETE FROM sessions WHERE user_id = $1`, userID)
	return translate("delete sessions", err)
}

// DeleteExpired removes sessions past their expiry
func (r *SessionRepository) DeleteExpired(ctx context.Context) (int64, error) {
	res, err := database.Conn(ctx, r.db).ExecContext(ctx, `DELETE FROM sessions WHERE expires_at <= NOW()`)
	if err != nil {
		return 0, fmt.Errorf("failed to delete expired sessions: %w", err)
	}
	return res.RowsAffected()
}
