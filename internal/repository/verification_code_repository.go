package repository

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"

	"fp-innova/internal/database"
	"fp-innova/internal/models"
)

const codeColumns = `id, code, role, status, max_uses, current_uses, expires_at, created_by, created_at, updated_at`

// VerificationCodeRepository stores registration invite codes
type VerificationCodeRepository struct {
	db *sqlx.DB
}

// NewVerificationCodeRepository creates a new verification code repository
func NewVerificationCodeRepository(db *sqlx.DB) *VerificationCodeRepository {
	return &VerificationCodeRepository{db: db}
}

// Create stores a new active code
func (r *VerificationCodeRepository) Create(ctx context.Context, code *models.VerificationCode) error {
	err := sqlx.GetContext(ctx, database.Conn(ctx, r.db), code, `
		INSERT INTO verification_codes (code, role, max_uses, expires_at, created_by)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING `+codeColumns,
		code.Code, code.Role, code.MaxUses, code.ExpiresAt, code.CreatedBy)
	if err != nil {
		return translate("create verification code", err)
	}
	return nil
}

// GetByCode looks a code up
func (r *VerificationCodeRepository) GetByCode(ctx context.Context, code string) (*models.VerificationCode, error) {
	vc := &models.VerificationCode{}
	err := sqlx.GetContext(ctx, database.Conn(ctx, r.db), vc,
		`SELECT `+codeColumns+` FROM verification_codes WHERE code = $1`, code)
	if err != nil {
		return nil, translate("get verification code", err)
	}
	return vc, nil
}

// List returns all codes, newest first. An empty status lists every status.
func (r *VerificationCodeRepository) List(ctx context.Context, status string) ([]models.VerificationCode, error) {
	codes := []models.VerificationCode{}
	err := sqlx.SelectContext(ctx, database.Conn(ctx, r.db), &codes,
		`SELECT `+codeColumns+` FROM verification_codes WHERE ($1 = '' OR status = $1) ORDER BY created_at DESC`, status)
	if err != nil {
		return nil, translate("list verification codes", err)
	}
	return codes, nil
}

// Consume atomically takes one use of an active, unexpired code with uses
// left, marking it used when the last use is taken. It returns ErrNotFound
// when the code cannot be used.
func (r *VerificationCodeRepository) Consume(ctx context.Context, code string) (*models.VerificationCode, error) {
	vc := &models.VerificationCode{}
	err := sqlx.GetContext(ctx, database.Conn(ctx, r.db), vc, `
		UPDATE verification_codes
		SET current_uses = current_uses + 1,
		    status = CASE WHEN current_uses + 1 >= max_uses THEN 'used' ELSE status END,
		    updated_at = NOW()
		WHERE code = $1 AND status = 'active' AND expires_at > NOW() AND current_uses < max_uses
		RETURNING `+codeColumns, code)
	if err != nil {
		return nil, translate("consume verification code", err)
	}
	return vc, nil
}

// Revoke marks an active code revoked
func (r *VerificationCodeRepository) Revoke(ctx context.Context, id uint) error {
	res, err := database.Conn(ctx, r.db).ExecContext(ctx,
		`UPDATE verification_codes SET status = 'revoked', updated_at = NOW() WHERE id = $1 AND status = 'active'`, id)
	if err != nil {
		return translate("revoke verification code", err)
	}
	return expectOne(res, "revoke verification code")
}

// ExpireOverdue marks active codes past their expiry as expired
func (r *VerificationCodeRepository) ExpireOverdue(ctx context.Context) (int64, error) {
	res, err := database.Conn(ctx, r.db).ExecContext(ctx,
		`UPDATE verification_codes SET status = 'expired', updated_at = NOW() WHERE status = 'active' AND expires_at <= NOW()`)
	if err != nil {
		return 0, fmt.Errorf("failed to expire verification codes: %w", err)
	}
	return res.RowsAffected()
}
