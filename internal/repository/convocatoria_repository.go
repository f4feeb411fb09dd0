package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"fp-innova/internal/database"
	"fp-innova/internal/models"
)

// convocatoriaRow is the flat table layout of a convocatoria
type convocatoriaRow struct {
	ID                   uint      `db:"id"`
	Title                string    `db:"title"`
	Description          string    `db:"description"`
	Year                 int       `db:"year"`
	Status               string    `db:"status"`
	MaxProjectsPerCenter int       `db:"max_projects_per_center"`
	SubmissionStart      time.Time `db:"submission_start"`
	SubmissionEnd        time.Time `db:"submission_end"`
	FirstReviewStart     time.Time `db:"first_review_start"`
	FirstReviewEnd       time.Time `db:"first_review_end"`
	CorrectionsStart     time.Time `db:"corrections_start"`
	CorrectionsEnd       time.Time `db:"corrections_end"`
	ResultsPublication   time.Time `db:"results_publication"`
	CreatedBy            *uint     `db:"created_by"`
	CreatedAt            time.Time `db:"created_at"`
	UpdatedAt            time.Time `db:"updated_at"`
}

const convocatoriaColumns = `id, title, description, year, status, max_projects_per_center,
	submission_start, submission_end, first_review_start, first_review_end,
	corrections_start, corrections_end, results_publication, created_by, created_at, updated_at`

const categoryColumns = `id, convocatoria_id, position, name, description, max_participants, min_corrections,
	requirements, cutoff_score, total_budget, rubric, created_at, updated_at`

func toConvocatoriaRow(c *models.Convocatoria) convocatoriaRow {
	return convocatoriaRow{
		ID:                   c.ID,
		Title:                c.Title,
		Description:          c.Description,
		Year:                 c.Year,
		Status:               c.Status,
		MaxProjectsPerCenter: c.MaxProjectsPerCenter,
		SubmissionStart:      c.Phases.Submission.Start,
		SubmissionEnd:        c.Phases.Submission.End,
		FirstReviewStart:     c.Phases.FirstReview.Start,
		FirstReviewEnd:       c.Phases.FirstReview.End,
		CorrectionsStart:     c.Phases.Corrections.Start,
		CorrectionsEnd:       c.Phases.Corrections.End,
		ResultsPublication:   c.Phases.ResultsPublication,
		CreatedBy:            c.CreatedBy,
	}
}

func (row convocatoriaRow) model() models.Convocatoria {
	return models.Convocatoria{
		ID:                   row.ID,
		Title:                row.Title,
		Description:          row.Description,
		Year:                 row.Year,
		Status:               row.Status,
		MaxProjectsPerCenter: row.MaxProjectsPerCenter,
		Phases: models.Phases{
			Submission:         models.DateRange{Start: row.SubmissionStart, End: row.SubmissionEnd},
			FirstReview:        models.DateRange{Start: row.FirstReviewStart, End: row.FirstReviewEnd},
			Corrections:        models.DateRange{Start: row.CorrectionsStart, End: row.CorrectionsEnd},
			ResultsPublication: row.ResultsPublication,
		},
		CreatedBy: row.CreatedBy,
		CreatedAt: row.CreatedAt,
		UpdatedAt: row.UpdatedAt,
	}
}

// ConvocatoriaRepository stores convocatorias and their categories
type ConvocatoriaRepository struct {
	db *sqlx.DB
}

// NewConvocatoriaRepository creates a new convocatoria repository
func NewConvocatoriaRepository(db *sqlx.DB) *ConvocatoriaRepository {
	return &ConvocatoriaRepository{db: db}
}

// Create inserts the convocatoria and its categories
func (r *ConvocatoriaRepository) Create(ctx context.Context, c *models.Convocatoria) error {
	row := toConvocatoriaRow(c)
	if row.Status == "" {
		row.Status = models.ConvocatoriaDraft
	}
	query := `
		INSERT INTO convocatorias (title, description, year, status, max_projects_per_center,
			submission_start, submission_end, first_review_start, first_review_end,
			corrections_start, corrections_end, results_publication, created_by)
		VALUES (:title, :description, :year, :status, :max_projects_per_center,
			:submission_start, :submission_end, :first_review_start, :first_review_end,
			:corrections_start, :corrections_end, :results_publication, :created_by)
		RETURNING id`
	rows, err := sqlx.NamedQueryContext(ctx, database.Conn(ctx, r.db), query, row)
	if err != nil {
		return translate("create convocatoria", err)
	}
	if rows.Next() {
		if err := rows.Scan(&c.ID); err != nil {
			rows.Close()
			return fmt.Errorf("failed to scan convocatoria id: %w", err)
		}
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return translate("create convocatoria", err)
	}

	if err := r.ReplaceCategories(ctx, c.ID, c.Categories); err != nil {
		return err
	}
	got, err := r.GetByID(ctx, c.ID)
	if err != nil {
		return err
	}
	*c = *got
	return nil
}

// GetByID returns a convocatoria with its categories in position order
func (r *ConvocatoriaRepository) GetByID(ctx context.Context, id uint) (*models.Convocatoria, error) {
	var row convocatoriaRow
	err := sqlx.GetContext(ctx, database.Conn(ctx, r.db), &row,
		`SELECT `+convocatoriaColumns+` FROM convocatorias WHERE id = $1`, id)
	if err != nil {
		return nil, translate("get convocatoria", err)
	}
	c := row.model()
	if c.Categories, err = r.ListCategories(ctx, id); err != nil {
		return nil, err
	}
	return &c, nil
}

// LockForUpdate locks the convocatoria row until the surrounding transaction
// ends. Concurrent submissions for the same convocatoria serialize on it.
func (r *ConvocatoriaRepository) LockForUpdate(ctx context.Context, id uint) (*models.Convocatoria, error) {
	var row convocatoriaRow
	err := sqlx.GetContext(ctx, database.Conn(ctx, r.db), &row,
		`SELECT `+convocatoriaColumns+` FROM convocatorias WHERE id = $1 FOR UPDATE`, id)
	if err != nil {
		return nil, translate("lock convocatoria", err)
	}
	c := row.model()
	return &c, nil
}

// List returns convocatorias, newest year first. An empty status lists all.
func (r *ConvocatoriaRepository) List(ctx context.Context, status string) ([]models.Convocatoria, error) {
	rows := []convocatoriaRow{}
	err := sqlx.SelectContext(ctx, database.Conn(ctx, r.db), &rows,
		`SELECT `+convocatoriaColumns+` FROM convocatorias WHERE ($1 = '' OR status = $1) ORDER BY year DESC, id DESC`, status)
	if err != nil {
		return nil, translate("list convocatorias", err)
	}

	categories := []models.Category{}
	err = sqlx.SelectContext(ctx, database.Conn(ctx, r.db), &categories,
		`SELECT `+categoryColumns+` FROM categories ORDER BY convocatoria_id, position, id`)
	if err != nil {
		return nil, translate("list categories", err)
	}
	byConvocatoria := make(map[uint][]models.Category)
	for _, cat := range categories {
		byConvocatoria[cat.ConvocatoriaID] = append(byConvocatoria[cat.ConvocatoriaID], cat)
	}

	out := make([]models.Convocatoria, 0, len(rows))
	for _, row := range rows {
		c := row.model()
		c.Categories = byConvocatoria[c.ID]
		out = append(out, c)
	}
	return out, nil
}

// Update stores the scalar fields and phases
func (r *ConvocatoriaRepository) Update(ctx context.Context, c *models.Convocatoria) error {
	query := `
		UPDATE convocatorias
		SET title = :title, description = :description, year = :year,
		    max_projects_per_center = :max_projects_per_center,
		    submission_start = :submission_start, submission_end = :submission_end,
		    first_review_start = :first_review_start, first_review_end = :first_review_end,
		    corrections_start = :corrections_start, corrections_end = :corrections_end,
		    results_publication = :results_publication, updated_at = NOW()
		WHERE id = :id`
	res, err := sqlx.NamedExecContext(ctx, database.Conn(ctx, r.db), query, toConvocatoriaRow(c))
	if err != nil {
		return translate("update convocatoria", err)
	}
	return expectOne(res, "update convocatoria")
}

// UpdateStatus sets the status
func (r *ConvocatoriaRepository) UpdateStatus(ctx context.Context, id uint, status string) error {
	res, err := database.Conn(ctx, r.db).ExecContext(ctx,
		`UPDATE convocatorias SET status = $2, updated_at = NOW() WHERE id = $1`, id, status)
	if err != nil {
		return translate("update convocatoria status", err)
	}
	return expectOne(res, "update convocatoria status")
}

// Delete removes a convocatoria and, by cascade, its categories
func (r *ConvocatoriaRepository) Delete(ctx context.Context, id uint) error {
	res, err := database.Conn(ctx, r.db).ExecContext(ctx, `DELETE FROM convocatorias WHERE id = $1`, id)
	if err != nil {
		return translate("delete convocatoria", err)
	}
	return expectOne(res, "delete convocatoria")
}

// ListCategories returns the categories of a convocatoria in position order
func (r *ConvocatoriaRepository) ListCategories(ctx context.Context, convocatoriaID uint) ([]models.Category, error) {
	categories := []models.Category{}
	err := sqlx.SelectContext(ctx, database.Conn(ctx, r.db), &categories,
		`SELECT `+categoryColumns+` FROM categories WHERE convocatoria_id = $1 ORDER BY position, id`, convocatoriaID)
	if err != nil {
		return nil, translate("list categories", err)
	}
	return categories, nil
}

// GetCategory returns one category
func (r *ConvocatoriaRepository) GetCategory(ctx context.Context, id uint) (*models.Category, error) {
	cat := &models.Category{}
	err := sqlx.GetContext(ctx, database.Conn(ctx, r.db), cat,
		`SELECT `+categoryColumns+` FROM categories WHERE id = $1`, id)
	if err != nil {
		return nil, translate("get category", err)
	}
	return cat, nil
}

// ReplaceCategories makes categories the ordered category list of the
// convocatoria. Categories with an id are updated in place so projects keep
// their reference; the rest are inserted; missing ones are deleted.
func (r *ConvocatoriaRepository) ReplaceCategories(ctx context.Context, convocatoriaID uint, categories []models.Category) error {
	conn := database.Conn(ctx, r.db)
	keep := make([]uint, 0, len(categories))
	for i := range categories {
		cat := &categories[i]
		cat.ConvocatoriaID = convocatoriaID
		cat.Position = i
		if cat.ID != 0 {
			res, err := sqlx.NamedExecContext(ctx, conn, `
				UPDATE categories
				SET position = :position, name = :name, description = :description,
				    max_participants = :max_participants, min_corrections = :min_corrections,
				    requirements = :requirements, cutoff_score = :cutoff_score,
				    total_budget = :total_budget, rubric = :rubric, updated_at = NOW()
				WHERE id = :id AND convocatoria_id = :convocatoria_id`, cat)
			if err != nil {
				return translate("update category", err)
			}
			if err := expectOne(res, "update category"); err != nil {
				return err
			}
			keep = append(keep, cat.ID)
			continue
		}
		rows, err := sqlx.NamedQueryContext(ctx, conn, `
			INSERT INTO categories (convocatoria_id, position, name, description, max_participants,
				min_corrections, requirements, cutoff_score, total_budget, rubric)
			VALUES (:convocatoria_id, :position, :name, :description, :max_participants,
				:min_corrections, :requirements, :cutoff_score, :total_budget, :rubric)
			RETURNING id`, cat)
		if err != nil {
			return translate("create category", err)
		}
		if rows.Next() {
			if err := rows.Scan(&cat.ID); err != nil {
				rows.Close()
				return fmt.Errorf("failed to scan category id: %w", err)
			}
		}
		rows.Close()
		if err := rows.Err(); err != nil {
			return translate("create category", err)
		}
		keep = append(keep, cat.ID)
	}

	query, args, err := sqlx.In(`DELETE FROM categories WHERE convocatoria_id = ? AND id NOT IN (?)`, convocatoriaID, append(keep, 0))
	if err != nil {
		return fmt.Errorf("failed to build category cleanup: %w", err)
	}
	if _, err := conn.ExecContext(ctx, sqlx.Rebind(sqlx.DOLLAR, query), args...); err != nil {
		return translate("delete categories", err)
	}
	return nil
}
