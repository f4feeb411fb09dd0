package repository

import (
	"context"
	"errors"

	"github.com/jmoiron/sqlx"

	"fp-innova/internal/database"
	"fp-innova/internal/models"
)

// SettingsRepository stores versioned JSON settings documents by key
type SettingsRepository struct {
	db *sqlx.DB
}

// NewSettingsRepository creates a new settings repository
func NewSettingsRepository(db *sqlx.DB) *SettingsRepository {
	return &SettingsRepository{db: db}
}

// Get returns the stored document of key
func (r *SettingsRepository) Get(ctx context.Context, key string) (*models.SettingsRecord, error) {
	rec := &models.SettingsRecord{}
	err := sqlx.GetContext(ctx, database.Conn(ctx, r.db), rec,
		`SELECT key, value, version, updated_by, created_at, updated_at FROM settings WHERE key = $1`, key)
	if err != nil {
		return nil, translate("get settings", err)
	}
	return rec, nil
}

// Save writes value under key when the stored version equals expectedVersion.
// Version 0 means the key must not exist yet. On success rec holds the new row.
func (r *SettingsRepository) Save(ctx context.Context, key string, value []byte, expectedVersion int, updatedBy *uint) (*models.SettingsRecord, error) {
	rec := &models.SettingsRecord{}
	err := sqlx.GetContext(ctx, database.Conn(ctx, r.db), rec, `
		INSERT INTO settings (key, value, version, updated_by)
		VALUES ($1, $2::JSONB, 1, $4)
		ON CONFLICT (key) DO UPDATE
		SET value = EXCLUDED.value, version = settings.version + 1,
		    updated_by = EXCLUDED.updated_by, updated_at = NOW()
		WHERE settings.version = $3
		RETURNING key, value, version, updated_by, created_at, updated_at`,
		key, string(value), expectedVersion, updatedBy)
	if err != nil {
		if err = translate("save settings", err); errors.Is(err, ErrNotFound) {
			return nil, ErrVersionConflict
		}
		return nil, err
	}
	return rec, nil
}
