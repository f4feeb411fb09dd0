package repository

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"fp-innova/internal/database"
	"fp-innova/internal/models"
)

const userColumns = `id, name, email, password_hash, role, avatar, center_id, department_id, active,
	two_factor_enabled, two_factor_secret, recovery_code_hash, two_factor_failed_attempts,
	two_factor_locked_until, two_factor_last_step, last_login, created_at, updated_at`

// UserRepository handles user database operations
type UserRepository struct {
	db *sqlx.DB
}

// NewUserRepository creates a new user repository
func NewUserRepository(db *sqlx.DB) *UserRepository {
	return &UserRepository{db: db}
}

// Create creates a new user
func (r *UserRepository) Create(ctx context.Context, user *models.User) error {
	query := `
		INSERT INTO users (name, email, password_hash, role, avatar, center_id, department_id, active)
		VALUES (:name, :email, :password_hash, :role, :avatar, :center_id, :department_id, :active)
		RETURNING id, created_at, updated_at`

	rows, err := sqlx.NamedQueryContext(ctx, database.Conn(ctx, r.db), query, user)
	if err != nil {
		return translate("create user", err)
	}
	defer rows.Close()
	if rows.Next() {
		if err := rows.Scan(&user.ID, &user.CreatedAt, &user.UpdatedAt); err != nil {
			return fmt.Errorf("failed to scan user: %w", err)
		}
	}
	return translate("create user", rows.Err())
}

// GetByID retrieves a user by ID
func (r *UserRepository) GetByID(ctx context.Context, id uint) (*models.User, error) {
	user := &models.User{}
	err := sqlx.GetContext(ctx, database.Conn(ctx, r.db), user,
		`SELECT `+userColumns+` FROM users WHERE id = $1`, id)
	if err != nil {
		return nil, translate("get user", err)
	}
	return user, nil
}

// GetByEmail retrieves a user by email, case-insensitively
func (r *UserRepository) GetByEmail(ctx context.Context, email string) (*models.User, error) {
	user := &models.User{}
	err := sqlx.GetContext(ctx, database.Conn(ctx, r.db), user,
		`SELECT `+userColumns+` FROM users WHERE LOWER(email) = LOWER($1)`, email)
	if err != nil {
		return nil, translate("get user by email", err)
	}
	return user, nil
}

// List returns users matching filter ordered by name
func (r *UserRepository) List(ctx context.Context, filter models.UserFilter) ([]models.User, error) {
	var (
		where []string
		args  []any
	)
	arg := func(v any) string {
		args = append(args, v)
		return fmt.Sprintf("$%d", len(args))
	}

	if filter.Role != "" {
		where = append(where, "role = "+arg(filter.Role))
	}
	if filter.CenterID != nil {
		where = append(where, "center_id = "+arg(*filter.CenterID))
	}
	if filter.Active != nil {
		where = append(where, "active = "+arg(*filter.Active))
	}
	if filter.Search != "" {
		p := arg(likePattern(filter.Search))
		where = append(where, "(name ILIKE "+p+" OR email ILIKE "+p+")")
	}

	query := `SELECT ` + userColumns + ` FROM users`
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY name, id"
	if filter.Limit > 0 {
		query += " LIMIT " + arg(filter.Limit) + " OFFSET " + arg(filter.Offset)
	}

	users := []models.User{}
	if err := sqlx.SelectContext(ctx, database.Conn(ctx, r.db), &users, query, args...); err != nil {
		return nil, translate("list users", err)
	}
	return users, nil
}

// ListByIDs returns the users with the given ids
func (r *UserRepository) ListByIDs(ctx context.Context, ids []uint) ([]models.User, error) {
	users := []models.User{}
	if len(ids) == 0 {
		return users, nil
	}
	err := sqlx.SelectContext(ctx, database.Conn(ctx, r.db), &users,
		`SELECT `+userColumns+` FROM users WHERE id = ANY($1) ORDER BY name`, pq.Array(toInt64s(ids)))
	if err != nil {
		return nil, translate("list users by id", err)
	}
	return users, nil
}

// ListActiveByRoles returns active users having any of roles
func (r *UserRepository) ListActiveByRoles(ctx context.Context, roles []string) ([]models.User, error) {
	users := []models.User{}
	err := sqlx.SelectContext(ctx, database.Conn(ctx, r.db), &users,
		`SELECT `+userColumns+` FROM users WHERE active AND role = ANY($1) ORDER BY name`, pq.Array(roles))
	if err != nil {
		return nil, translate("list users by role", err)
	}
	return users, nil
}

// Update stores the editable profile and administrative fields
func (r *UserRepository) Update(ctx context.Context, user *models.User) error {
	query := `
		UPDATE users
		SET name = :name, email = :email, role = :role, avatar = :avatar,
		    center_id = :center_id, department_id = :department_id, updated_at = NOW()
		WHERE id = :id`
	res, err := sqlx.NamedExecContext(ctx, database.Conn(ctx, r.db), query, user)
	if err != nil {
		return translate("update user", err)
	}
	return expectOne(res, "update user")
}

// SetActive activates or deactivates a user
func (r *UserRepository) SetActive(ctx context.Context, id uint, active bool) error {
	res, err := database.Conn(ctx, r.db).ExecContext(ctx,
		`UPDATE users SET active = $2, updated_at = NOW() WHERE id = $1`, id, active)
	if err != nil {
		return translate("update user status", err)
	}
	return expectOne(res, "update user status")
}

// UpdatePassword stores a new password hash
func (r *UserRepository) UpdatePassword(ctx context.Context, id uint, hash string) error {
	res, err := database.Conn(ctx, r.db).ExecContext(ctx,
		`UPDATE users SET password_hash = $2, updated_at = NOW() WHERE id = $1`, id, hash)
	if err != nil {
		return translate("update password", err)
	}
	return expectOne(res, "update password")
}

// UpdateLastLogin stamps the last successful login
func (r *UserRepository) UpdateLastLogin(ctx context.Context, id uint, at time.Time) error {
	_, err := database.Conn(ctx, r.db).ExecContext(ctx,
		`UPDATE users SET last_login = $2 WHERE id = $1`, id, at)
	return translate("update last login", err)
}

// SetTwoFactorPending stores a fresh encrypted secret and recovery code hash
// and leaves the second factor disabled until verified
func (r *UserRepository) SetTwoFactorPending(ctx context.Context, id uint, encSecret, recoveryHash string) error {
	res, err := database.Conn(ctx, r.db).ExecContext(ctx, `
		UPDATE users
		SET two_factor_secret = $2, recovery_code_hash = $3, two_factor_enabled = FALSE,
		    two_factor_failed_attempts = 0, two_factor_locked_until = NULL, updated_at = NOW()
		WHERE id = $1 AND NOT two_factor_enabled`, id, encSecret, recoveryHash)
	if err != nil {
		return translate("start two-factor setup", err)
	}
	return expectOne(res, "start two-factor setup")
}

// EnableTwoFactor moves a pending setup to enabled
func (r *UserRepository) EnableTwoFactor(ctx context.Context, id uint) error {
	res, err := database.Conn(ctx, r.db).ExecContext(ctx, `
		UPDATE users
		SET two_factor_enabled = TRUE, two_factor_failed_attempts = 0, two_factor_locked_until = NULL, updated_at = NOW()
		WHERE id = $1 AND two_factor_secret IS NOT NULL AND NOT two_factor_enabled`, id)
	if err != nil {
		return translate("enable two-factor", err)
	}
	return expectOne(res, "enable two-factor")
}

// DisableTwoFactor clears the secret and recovery code
func (r *UserRepository) DisableTwoFactor(ctx context.Context, id uint) error {
	res, err := database.Conn(ctx, r.db).ExecContext(ctx, `
		UPDATE users
		SET two_factor_enabled = FALSE, two_factor_secret = NULL, recovery_code_hash = NULL,
		    two_factor_failed_attempts = 0, two_factor_locked_until = NULL, updated_at = NOW()
		WHERE id = $1`, id)
	if err != nil {
		return translate("disable two-factor", err)
	}
	return expectOne(res, "disable two-factor")
}

// ConsumeRecoveryCode disables the second factor only if the stored recovery
// hash is still recoveryHash. It returns false when another request already
// used or replaced the code.
func (r *UserRepository) ConsumeRecoveryCode(ctx context.Context, id uint, recoveryHash string) (bool, error) {
	res, err := database.Conn(ctx, r.db).ExecContext(ctx, `
		UPDATE users
		SET two_factor_enabled = FALSE, two_factor_secret = NULL, recovery_code_hash = NULL,
		    two_factor_failed_attempts = 0, two_factor_locked_until = NULL, updated_at = NOW()
		WHERE id = $1 AND two_factor_enabled AND recovery_code_hash = $2`, id, recoveryHash)
	if err != nil {
		return false, translate("consume recovery code", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to consume recovery code: %w", err)
	}
	return n == 1, nil
}

// RecordTwoFactorFailure increments the failure counter and, once it reaches
// maxAttempts, locks the second factor until now+lockout. The counter restarts
// after the lock.
func (r *UserRepository) RecordTwoFactorFailure(ctx context.Context, id uint, maxAttempts int, lockout time.Duration) (int, *time.Time, error) {
	var result struct {
		Attempts    int        `db:"two_factor_failed_attempts"`
		LockedUntil *time.Time `db:"two_factor_locked_until"`
	}
	err := sqlx.GetContext(ctx, database.Conn(ctx, r.db), &result, `
		UPDATE users
		SET two_factor_failed_attempts = CASE WHEN two_factor_failed_attempts + 1 >= $2 THEN 0 ELSE two_factor_failed_attempts + 1 END,
		    two_factor_locked_until = CASE WHEN two_factor_failed_attempts + 1 >= $2 THEN NOW() + make_interval(secs => $3) ELSE two_factor_locked_until END
		WHERE id = $1
		RETURNING two_factor_failed_attempts, two_factor_locked_until`,
		id, maxAttempts, lockout.Seconds())
	if err != nil {
		return 0, nil, translate("record two-factor failure", err)
	}
	return result.Attempts, result.LockedUntil, nil
}

// ClaimTOTPStep records step as the last accepted TOTP time step. It reports
// false when a code from the same or a later step was already accepted.
func (r *UserRepository) ClaimTOTPStep(ctx context.Context, id uint, step int64) (bool, error) {
	res, err := database.Conn(ctx, r.db).ExecContext(ctx, `
		UPDATE users SET two_factor_last_step = $2
		WHERE id = $1 AND (two_factor_last_step IS NULL OR two_factor_last_step < $2)`, id, step)
	if err != nil {
		return false, translate("claim TOTP step", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to claim TOTP step: %w", err)
	}
	return n == 1, nil
}

// ResetTwoFactorFailures clears the failure counter and lock
func (r *UserRepository) ResetTwoFactorFailures(ctx context.Context, id uint) error {
	_, err := database.Conn(ctx, r.db).ExecContext(ctx,
		`UPDATE users SET two_factor_failed_attempts = 0, two_factor_locked_until = NULL WHERE id = $1`, id)
	return translate("reset two-factor failures", err)
}

// CountByRole returns the number of users with role
func (r *UserRepository) CountByRole(ctx context.Context, role string) (int, error) {
	var n int
	err := sqlx.GetContext(ctx, database.Conn(ctx, r.db), &n, `SELECT COUNT(*) FROM users WHERE role = $1`, role)
	if err != nil {
		return 0, translate("count users", err)
	}
	return n, nil
}

func toInt64s(ids []uint) []int64 {
	out := make([]int64, len(ids))
	for i, id := range ids {
		out[i] = int64(id)
	}
	return out
}
