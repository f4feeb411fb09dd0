package database

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/jmoiron/sqlx"
)

// Migration is one numbered schema change read from NNN_name.up.sql / .down.sql
type Migration struct {
	Version  string
	Title    string
	UpSQL    string
	DownSQL  string
	Checksum string // SHA256 of UpSQL
}

// MigrationExecutor applies file-based migrations and records them in schema_migrations
type MigrationExecutor struct {
	db *sqlx.DB
}

// NewMigrationExecutor creates a new migration executor
func NewMigrationExecutor(db *sqlx.DB) *MigrationExecutor {
	return &MigrationExecutor{db: db}
}

// RunMigrations executes all pending migrations from the migrations directory
func (m *MigrationExecutor) RunMigrations(ctx context.Context, migrationsPath string) error {
	if err := m.createMigrationsTable(ctx); err != nil {
		return fmt.Errorf("failed to create migrations table: %w", err)
	}

	migrations, err := ReadMigrations(migrationsPath)
	if err != nil {
		return fmt.Errorf("failed to read migration files: %w", err)
	}

	applied, err := m.appliedChecksums(ctx)
	if err != nil {
		return fmt.Errorf("failed to get applied migrations: %w", err)
	}

	if err := verifyChecksums(migrations, applied); err != nil {
		return fmt.Errorf("migration validation failed: %w", err)
	}

	for _, migration := range migrations {
		if _, done := applied[migration.Version]; done {
			continue
		}
		if err := m.apply(ctx, migration); err != nil {
			return fmt.Errorf("failed to execute migration %s: %w", migration.Version, err)
		}
		slog.Info("Applied migration", "version", migration.Version, "title", migration.Title)
	}

	return nil
}

// RollbackLast reverts the most recently applied migration using its down file
func (m *MigrationExecutor) RollbackLast(ctx context.Context, migrationsPath string) error {
	migrations, err := ReadMigrations(migrationsPath)
	if err != nil {
		return fmt.Errorf("failed to read migration files: %w", err)
	}

	var version string
	err = m.db.GetContext(ctx, &version, `SELECT version FROM schema_migrations ORDER BY version DESC LIMIT 1`)
	if err != nil {
		return fmt.Errorf("failed to find last migration: %w", err)
	}

	for _, migration := range migrations {
		if migration.Version != version {
			continue
		}
		if migration.DownSQL == "" {
			return fmt.Errorf("migration %s has no down file", version)
		}
		return WithTx(ctx, m.db, func(tx *sqlx.Tx) error {
			if _, err := tx.ExecContext(ctx, migration.DownSQL); err != nil {
				return fmt.Errorf("down migration failed: %w", err)
			}
			_, err := tx.ExecContext(ctx, `DELETE FROM schema_migrations WHERE version = $1`, version)
			return err
		})
	}

	return fmt.Errorf("migration %s not found in %s", version, migrationsPath)
}

func (m *MigrationExecutor) createMigrationsTable(ctx context.Context) error {
	_, err := m.db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS schema_migrations (
			version VARCHAR(255) PRIMARY KEY,
			title VARCHAR(500),
			checksum VARCHAR(64),
			applied_at TIMESTAMPTZ DEFAULT CURRENT_TIMESTAMP
		)
	`)
	return err
}

func (m *MigrationExecutor) appliedChecksums(ctx context.Context) (map[string]string, error) {
	var rows []struct {
		Version  string  `db:"version"`
		Checksum *string `db:"checksum"`
	}
	if err := m.db.SelectContext(ctx, &rows, `SELECT version, checksum FROM schema_migrations`); err != nil {
		return nil, err
	}

	applied := make(map[string]string, len(rows))
	for _, r := range rows {
		if r.Checksum != nil {
			applied[r.Version] = *r.Checksum
		} else {
			applied[r.Version] = ""
		}
	}
	return applied, nil
}

func (m *MigrationExecutor) apply(ctx context.Context, migration Migration) error {
	return WithTx(ctx, m.db, func(tx *sqlx.Tx) error {
		if _, err := tx.ExecContext(ctx, migration.UpSQL); err != nil {
			return fmt.Errorf("migration SQL failed: %w", err)
		}
		_, err := tx.ExecContext(ctx,
			`INSERT INTO schema_migrations (version, title, checksum) VALUES ($1, $2, $3)`,
			migration.Version, migration.Title, migration.Checksum,
		)
		if err != nil {
			return fmt.Errorf("failed to record migration: %w", err)
		}
		return nil
	})
}

// ReadMigrations loads and orders the migration files of a directory
func ReadMigrations(migrationsPath string) ([]Migration, error) {
	files, err := os.ReadDir(migrationsPath)
	if err != nil {
		return nil, err
	}

	byVersion := make(map[string]*Migration)
	for _, file := range files {
		name := file.Name()
		if file.IsDir() || !strings.HasSuffix(name, ".sql") {
			continue
		}

		var base string
		var isUp bool
		switch {
		case strings.HasSuffix(name, ".up.sql"):
			base, isUp = strings.TrimSuffix(name, ".up.sql"), true
		case strings.HasSuffix(name, ".down.sql"):
			base = strings.TrimSuffix(name, ".down.sql")
		default:
			continue
		}

		version, rest, ok := strings.Cut(base, "_")
		if !ok {
			continue
		}

		content, err := os.ReadFile(filepath.Join(migrationsPath, name))
		if err != nil {
			return nil, err
		}

		mig := byVersion[version]
		if mig == nil {
			mig = &Migration{Version: version, Title: strings.ReplaceAll(rest, "_", " ")}
			byVersion[version] = mig
		}
		if isUp {
			mig.UpSQL = string(content)
			mig.Checksum = calculateChecksum(mig.UpSQL)
		} else {
			mig.DownSQL = string(content)
		}
	}

	migrations := make([]Migration, 0, len(byVersion))
	for _, mig := range byVersion {
		if mig.UpSQL != "" {
			migrations = append(migrations, *mig)
		}
	}
	sort.Slice(migrations, func(i, j int) bool {
		return migrations[i].Version < migrations[j].Version
	})

	return migrations, nil
}

// verifyChecksums fails when an applied migration file was edited afterwards
func verifyChecksums(migrations []Migration, applied map[string]string) error {
	var mismatches []string
	for _, migration := range migrations {
		checksum, ok := applied[migration.Version]
		if !ok || checksum == "" {
			continue
		}
		if checksum != migration.Checksum {
			mismatches = append(mismatches, fmt.Sprintf(
				"\n  Migration %s (%s): recorded %s, file %s",
				migration.Version, migration.Title, checksum, migration.Checksum,
			))
		}
	}

	if len(mismatches) > 0 {
		return fmt.Errorf("applied migrations have been modified:%s\n"+
			"restore the original files or add a new migration instead",
			strings.Join(mismatches, ""))
	}
	return nil
}

func calculateChecksum(content string) string {
	hash := sha256.Sum256([]byte(content))
	return hex.EncodeToString(hash[:])
}
