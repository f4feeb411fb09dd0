package repository

import (
	"context"
	"fmt"
	"strings"

	"github.com/jmoiron/sqlx"

	"fp-innova/internal/database"
	"fp-innova/internal/models"
)

// MasterRepository is the shared CRUD repository of the master data tables.
// Every table has id, code (unique), name, active, created_at and updated_at.
type MasterRepository[T any] struct {
	db *sqlx.DB
	// table name, columns written on insert/update and optional filter columns
	table        string
	columns      []string
	parentColumn string
	hasCenter    bool
}

// NewCenterRepository creates the centers repository
func NewCenterRepository(db *sqlx.DB) *MasterRepository[models.Center] {
	return &MasterRepository[models.Center]{
		db:      db,
		table:   "centers",
		columns: []string{"code", "name", "address", "city", "province", "phone", "email", "active"},
	}
}

// NewFamilyRepository creates the professional families repository
func NewFamilyRepository(db *sqlx.DB) *MasterRepository[models.ProfessionalFamily] {
	return &MasterRepository[models.ProfessionalFamily]{
		db:      db,
		table:   "professional_families",
		columns: []string{"code", "name", "description", "active"},
	}
}

// NewCycleRepository creates the cycles repository, filtered by family
func NewCycleRepository(db *sqlx.DB) *MasterRepository[models.Cycle] {
	return &MasterRepository[models.Cycle]{
		db:           db,
		table:        "cycles",
		columns:      []string{"code", "name", "family_id", "level", "duration", "description", "active"},
		parentColumn: "family_id",
	}
}

// NewCourseRepository creates the courses repository, filtered by cycle
func NewCourseRepository(db *sqlx.DB) *MasterRepository[models.Course] {
	return &MasterRepository[models.Course]{
		db:           db,
		table:        "courses",
		columns:      []string{"code", "name", "cycle_id", "year", "active"},
		parentColumn: "cycle_id",
	}
}

// NewDepartmentRepository creates the departments repository, filtered by family and center
func NewDepartmentRepository(db *sqlx.DB) *MasterRepository[models.Department] {
	return &MasterRepository[models.Department]{
		db:           db,
		table:        "departments",
		columns:      []string{"code", "name", "description", "family_id", "center_id", "head_user_id", "email", "phone", "active"},
		parentColumn: "family_id",
		hasCenter:    true,
	}
}

func (r *MasterRepository[T]) selectColumns() string {
	return "id, " + strings.Join(r.columns, ", ") + ", created_at, updated_at"
}

// Create inserts item and reloads it so generated columns are filled in
func (r *MasterRepository[T]) Create(ctx context.Context, item *T) error {
	named := make([]string, len(r.columns))
	for i, c := range r.columns {
		named[i] = ":" + c
	}
	query := fmt.Sprintf(`INSERT INTO %s (%s) VALUES (%s) RETURNING id`,
		r.table, strings.Join(r.columns, ", "), strings.Join(named, ", "))

	rows, err := sqlx.NamedQueryContext(ctx, database.Conn(ctx, r.db), query, item)
	if err != nil {
		return translate("create "+r.table, err)
	}
	var id uint
	if rows.Next() {
		if err := rows.Scan(&id); err != nil {
			rows.Close()
			return fmt.Errorf("failed to scan %s id: %w", r.table, err)
		}
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return translate("create "+r.table, err)
	}

	got, err := r.GetByID(ctx, id)
	if err != nil {
		return err
	}
	*item = *got
	return nil
}

// GetByID retrieves one record
func (r *MasterRepository[T]) GetByID(ctx context.Context, id uint) (*T, error) {
	item := new(T)
	err := sqlx.GetContext(ctx, database.Conn(ctx, r.db), item,
		fmt.Sprintf(`SELECT %s FROM %s WHERE id = $1`, r.selectColumns(), r.table), id)
	if err != nil {
		return nil, translate("get "+r.table, err)
	}
	return item, nil
}

// List returns records matching filter ordered by name
func (r *MasterRepository[T]) List(ctx context.Context, filter models.MasterDataFilter) ([]T, error) {
	var (
		where []string
		args  []any
	)
	arg := func(v any) string {
		args = append(args, v)
		return fmt.Sprintf("$%d", len(args))
	}
	if filter.ActiveOnly {
		where = append(where, "active")
	}
	if filter.Search != "" {
		p := arg(likePattern(filter.Search))
		where = append(where, "(code ILIKE "+p+" OR name ILIKE "+p+")")
	}
	if filter.ParentID != nil && r.parentColumn != "" {
		where = append(where, r.parentColumn+" = "+arg(*filter.ParentID))
	}
	if filter.CenterID != nil && r.hasCenter {
		where = append(where, "center_id = "+arg(*filter.CenterID))
	}

	query := fmt.Sprintf(`SELECT %s FROM %s`, r.selectColumns(), r.table)
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY name, id"

	items := []T{}
	if err := sqlx.SelectContext(ctx, database.Conn(ctx, r.db), &items, query, args...); err != nil {
		return nil, translate("list "+r.table, err)
	}
	return items, nil
}

// Update writes every column of item. The item must carry its id.
func (r *MasterRepository[T]) Update(ctx context.Context, id uint, item *T) error {
	sets := make([]string, len(r.columns))
	for i, c := range r.columns {
		sets[i] = c + " = :" + c
	}
	query := fmt.Sprintf(`UPDATE %s SET %s, updated_at = NOW() WHERE id = :id`, r.table, strings.Join(sets, ", "))
	res, err := sqlx.NamedExecContext(ctx, database.Conn(ctx, r.db), query, item)
	if err != nil {
		return translate("update "+r.table, err)
	}
	if err := expectOne(res, "update "+r.table); err != nil {
		return err
	}

	got, err := r.GetByID(ctx, id)
	if err != nil {
		return err
	}
	*item = *got
	return nil
}

// SetActive toggles the active flag; used as the soft delete
func (r *MasterRepository[T]) SetActive(ctx context.Context, id uint, active bool) error {
	res, err := database.Conn(ctx, r.db).ExecContext(ctx,
		fmt.Sprintf(`UPDATE %s SET active = $2, updated_at = NOW() WHERE id = $1`, r.table), id, active)
	if err != nil {
		return translate("update "+r.table, err)
	}
	return expectOne(res, "update "+r.table)
}

// Delete removes a record. It returns ErrReferenced when other rows point to it.
func (r *MasterRepository[T]) Delete(ctx context.Context, id uint) error {
	res, err := database.Conn(ctx, r.db).ExecContext(ctx,
		fmt.Sprintf(`DELETE FROM %s WHERE id = $1`, r.table), id)
	if err != nil {
		return translate("delete "+r.table, err)
	}
	return expectOne(res, "delete "+r.table)
}

// CodeExists reports whether code is taken by a record other than excludeID
func (r *MasterRepository[T]) CodeExists(ctx context.Context, code string, excludeID uint) (bool, error) {
	var exists bool
	err := sqlx.GetContext(ctx, database.Conn(ctx, r.db), &exists,
		fmt.Sprintf(`SELECT EXISTS(SELECT 1 FROM %s WHERE LOWER(code) = LOWER($1) AND id <> $2)`, r.table), code, excludeID)
	if err != nil {
		return false, translate("check "+r.table+" code", err)
	}
	return exists, nil
}
