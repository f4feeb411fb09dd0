package repository

import (
	"context"
	"fmt"
	"strings"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"fp-innova/internal/database"
	"fp-innova/internal/models"
)

const projectColumns = `p.id, p.convocatoria_id, p.category_id, p.category_snapshot, p.title, p.description,
	p.requested_amount, p.center_id, p.department_id, p.status, p.score, p.weighted_score, p.created_by,
	p.submitted_at, p.status_changed_at, p.created_at, p.updated_at`

const documentColumns = `id, project_id, name, type, storage_key, size, status, uploaded_by, uploaded_at`

// ProjectRepository stores projects with their presenters, reviewers,
// collaborating centers and documents
type ProjectRepository struct {
	db *sqlx.DB
}

// NewProjectRepository creates a new project repository
func NewProjectRepository(db *sqlx.DB) *ProjectRepository {
	return &ProjectRepository{db: db}
}

// Create inserts the project row together with presenters and collaborating centers
func (r *ProjectRepository) Create(ctx context.Context, p *models.Project) error {
	query := `
		INSERT INTO projects (convocatoria_id, category_id, category_snapshot, title, description,
			requested_amount, center_id, department_id, status, created_by)
		VALUES (:convocatoria_id, :category_id, :category_snapshot, :title, :description,
			:requested_amount, :center_id, :department_id, :status, :created_by)
		RETURNING id, status_changed_at, created_at, updated_at`
	rows, err := sqlx.NamedQueryContext(ctx, database.Conn(ctx, r.db), query, p)
	if err != nil {
		return translate("create project", err)
	}
	if rows.Next() {
		if err := rows.Scan(&p.ID, &p.StatusChangedAt, &p.CreatedAt, &p.UpdatedAt); err != nil {
			rows.Close()
			return fmt.Errorf("failed to scan project: %w", err)
		}
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return translate("create project", err)
	}

	if err := r.SetPresenters(ctx, p.ID, p.Presenters); err != nil {
		return err
	}
	return r.SetCollaboratingCenters(ctx, p.ID, p.CollaboratingCenters)
}

// GetByID returns a project with every child collection loaded
func (r *ProjectRepository) GetByID(ctx context.Context, id uint) (*models.Project, error) {
	return r.get(ctx, id, "")
}

// GetForUpdate is GetByID with the project row locked until the surrounding
// transaction ends
func (r *ProjectRepository) GetForUpdate(ctx context.Context, id uint) (*models.Project, error) {
	return r.get(ctx, id, " FOR UPDATE OF p")
}

func (r *ProjectRepository) get(ctx context.Context, id uint, lock string) (*models.Project, error) {
	p := &models.Project{}
	err := sqlx.GetContext(ctx, database.Conn(ctx, r.db), p,
		`SELECT `+projectColumns+` FROM projects p WHERE p.id = $1`+lock, id)
	if err != nil {
		return nil, translate("get project", err)
	}
	if err := r.loadChildren(ctx, []*models.Project{p}); err != nil {
		return nil, err
	}
	return p, nil
}

// List returns projects matching filter, most recently modified first
func (r *ProjectRepository) List(ctx context.Context, filter models.ProjectFilter) ([]models.Project, error) {
	var (
		where []string
		args  []any
	)
	arg := func(v any) string {
		args = append(args, v)
		return fmt.Sprintf("$%d", len(args))
	}
	if filter.ConvocatoriaID != nil {
		where = append(where, "p.convocatoria_id = "+arg(*filter.ConvocatoriaID))
	}
	if filter.CategoryID != nil {
		where = append(where, "p.category_id = "+arg(*filter.CategoryID))
	}
	if filter.CenterID != nil {
		where = append(where, "p.center_id = "+arg(*filter.CenterID))
	}
	if filter.Status != "" {
		where = append(where, "p.status = "+arg(filter.Status))
	}
	if filter.PresenterID != nil {
		where = append(where, "EXISTS (SELECT 1 FROM project_presenters pp WHERE pp.project_id = p.id AND pp.user_id = "+arg(*filter.PresenterID)+")")
	}
	if filter.ReviewerID != nil {
		where = append(where, "EXISTS (SELECT 1 FROM project_reviewers pr WHERE pr.project_id = p.id AND pr.user_id = "+arg(*filter.ReviewerID)+")")
	}

	query := `SELECT ` + projectColumns + ` FROM projects p`
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY p.updated_at DESC, p.id DESC"
	if filter.Limit > 0 {
		query += " LIMIT " + arg(filter.Limit) + " OFFSET " + arg(filter.Offset)
	}

	projects := []models.Project{}
	if err := sqlx.SelectContext(ctx, database.Conn(ctx, r.db), &projects, query, args...); err != nil {
		return nil, translate("list projects", err)
	}
	ptrs := make([]*models.Project, len(projects))
	for i := range projects {
		ptrs[i] = &projects[i]
	}
	if err := r.loadChildren(ctx, ptrs); err != nil {
		return nil, err
	}
	return projects, nil
}

// loadChildren fills presenters, reviewers, collaborating centers and
// documents with one query per collection
func (r *ProjectRepository) loadChildren(ctx context.Context, projects []*models.Project) error {
	if len(projects) == 0 {
		return nil
	}
	conn := database.Conn(ctx, r.db)
	ids := make([]int64, len(projects))
	byID := make(map[uint]*models.Project, len(projects))
	for i, p := range projects {
		ids[i] = int64(p.ID)
		byID[p.ID] = p
		p.Presenters = []uint{}
		p.Reviewers = []models.ProjectReviewer{}
		p.CollaboratingCenters = []models.CollaboratingCenter{}
		p.Documents = []models.ProjectDocument{}
	}

	var presenters []struct {
		ProjectID uint `db:"project_id"`
		UserID    uint `db:"user_id"`
	}
	if err := sqlx.SelectContext(ctx, conn, &presenters,
		`SELECT project_id, user_id FROM project_presenters WHERE project_id = ANY($1) ORDER BY user_id`, pq.Array(ids)); err != nil {
		return translate("list project presenters", err)
	}
	for _, pp := range presenters {
		byID[pp.ProjectID].Presenters = append(byID[pp.ProjectID].Presenters, pp.UserID)
	}

	var reviewers []models.ProjectReviewer
	if err := sqlx.SelectContext(ctx, conn, &reviewers, `
		SELECT pr.project_id, pr.user_id, u.name, u.role, pr.has_reviewed, pr.assigned_at
		FROM project_reviewers pr
		JOIN users u ON u.id = pr.user_id
		WHERE pr.project_id = ANY($1)
		ORDER BY pr.assigned_at, pr.user_id`, pq.Array(ids)); err != nil {
		return translate("list project reviewers", err)
	}
	for _, pr := range reviewers {
		byID[pr.ProjectID].Reviewers = append(byID[pr.ProjectID].Reviewers, pr)
	}

	var centers []models.CollaboratingCenter
	if err := sqlx.SelectContext(ctx, conn, &centers,
		`SELECT id, project_id, center_id, name, department FROM project_collaborating_centers WHERE project_id = ANY($1) ORDER BY id`, pq.Array(ids)); err != nil {
		return translate("list collaborating centers", err)
	}
	for _, c := range centers {
		byID[c.ProjectID].CollaboratingCenters = append(byID[c.ProjectID].CollaboratingCenters, c)
	}

	var docs []models.ProjectDocument
	if err := sqlx.SelectContext(ctx, conn, &docs,
		`SELECT `+documentColumns+` FROM project_documents WHERE project_id = ANY($1) ORDER BY uploaded_at, id`, pq.Array(ids)); err != nil {
		return translate("list project documents", err)
	}
	for _, d := range docs {
		byID[d.ProjectID].Documents = append(byID[d.ProjectID].Documents, d)
	}
	return nil
}

// Update stores the editable fields of a project
func (r *ProjectRepository) Update(ctx context.Context, p *models.Project) error {
	query := `
		UPDATE projects
		SET title = :title, description = :description, requested_amount = :requested_amount,
		    department_id = :department_id, updated_at = NOW()
		WHERE id = :id`
	res, err := sqlx.NamedExecContext(ctx, database.Conn(ctx, r.db), query, p)
	if err != nil {
		return translate("update project", err)
	}
	if err := expectOne(res, "update project"); err != nil {
		return err
	}
	return r.SetCollaboratingCenters(ctx, p.ID, p.CollaboratingCenters)
}

// UpdateStatus moves the project to status. Submitting stamps submitted_at once.
func (r *ProjectRepository) UpdateStatus(ctx context.Context, id uint, status models.ProjectStatus) error {
	res, err := database.Conn(ctx, r.db).ExecContext(ctx, `
		UPDATE projects
		SET status = $2, status_changed_at = NOW(), updated_at = NOW(),
		    submitted_at = CASE WHEN $2 = 'submitted' AND submitted_at IS NULL THEN NOW() ELSE submitted_at END
		WHERE id = $1`, id, status)
	if err != nil {
		return translate("update project status", err)
	}
	return expectOne(res, "update project status")
}

// UpdateScore stores the aggregated scores; nil clears them
func (r *ProjectRepository) UpdateScore(ctx context.Context, id uint, score, weighted *float64) error {
	_, err := database.Conn(ctx, r.db).ExecContext(ctx,
		`UPDATE projects SET score = $2, weighted_score = $3, updated_at = NOW() WHERE id = $1`, id, score, weighted)
	return translate("update project score", err)
}

// Delete removes a project and its children
func (r *ProjectRepository) Delete(ctx context.Context, id uint) error {
	res, err := database.Conn(ctx, r.db).ExecContext(ctx, `DELETE FROM projects WHERE id = $1`, id)
	if err != nil {
		return translate("delete project", err)
	}
	return expectOne(res, "delete project")
}

// CountByCenter counts the projects of a center in a convocatoria that count
// towards the quota, excluding excludeID
func (r *ProjectRepository) CountByCenter(ctx context.Context, convocatoriaID, centerID, excludeID uint) (int, error) {
	var n int
	err := sqlx.GetContext(ctx, database.Conn(ctx, r.db), &n, `
		SELECT COUNT(*) FROM projects
		WHERE convocatoria_id = $1 AND center_id = $2 AND status <> 'rejected' AND id <> $3`,
		convocatoriaID, centerID, excludeID)
	if err != nil {
		return 0, translate("count projects", err)
	}
	return n, nil
}

// SetPresenters replaces the presenter list
func (r *ProjectRepository) SetPresenters(ctx context.Context, projectID uint, userIDs []uint) error {
	conn := database.Conn(ctx, r.db)
	if _, err := conn.ExecContext(ctx, `DELETE FROM project_presenters WHERE project_id = $1`, projectID); err != nil {
		return translate("clear presenters", err)
	}
	if len(userIDs) == 0 {
		return nil
	}
	_, err := conn.ExecContext(ctx, `
		INSERT INTO project_presenters (project_id, user_id)
		SELECT $1::BIGINT, UNNEST($2::BIGINT[])
		ON CONFLICT DO NOTHING`, projectID, pq.Array(toInt64s(userIDs)))
	return translate("set presenters", err)
}

// SetCollaboratingCenters replaces the collaborating centers
func (r *ProjectRepository) SetCollaboratingCenters(ctx context.Context, projectID uint, centers []models.CollaboratingCenter) error {
	conn := database.Conn(ctx, r.db)
	if _, err := conn.ExecContext(ctx, `DELETE FROM project_collaborating_centers WHERE project_id = $1`, projectID); err != nil {
		return translate("clear collaborating centers", err)
	}
	for i := range centers {
		centers[i].ProjectID = projectID
		err := sqlx.GetContext(ctx, conn, &centers[i].ID, `
			INSERT INTO project_collaborating_centers (project_id, center_id, name, department)
			VALUES ($1, $2, $3, $4) RETURNING id`,
			projectID, centers[i].CenterID, centers[i].Name, centers[i].Department)
		if err != nil {
			return translate("add collaborating center", err)
		}
	}
	return nil
}

// ReplaceReviewers makes userIDs the reviewer list. Retained reviewers keep
// their has_reviewed flag and assignment time. It returns the newly added ids.
func (r *ProjectRepository) ReplaceReviewers(ctx context.Context, projectID uint, userIDs []uint) ([]uint, error) {
	conn := database.Conn(ctx, r.db)
	ids := pq.Array(toInt64s(userIDs))
	if _, err := conn.ExecContext(ctx,
		`DELETE FROM project_reviewers WHERE project_id = $1 AND NOT (user_id = ANY($2::BIGINT[]))`, projectID, ids); err != nil {
		return nil, translate("remove reviewers", err)
	}
	added := []uint{}
	if len(userIDs) == 0 {
		return added, nil
	}
	err := sqlx.SelectContext(ctx, conn, &added, `
		INSERT INTO project_reviewers (project_id, user_id)
		SELECT $1::BIGINT, UNNEST($2::BIGINT[])
		ON CONFLICT (project_id, user_id) DO NOTHING
		RETURNING user_id`, projectID, ids)
	if err != nil {
		return nil, translate("add reviewers", err)
	}
	return added, nil
}

// UpsertReviewer adds userID as a reviewer or updates its has_reviewed flag
func (r *ProjectRepository) UpsertReviewer(ctx context.Context, projectID, userID uint, hasReviewed bool) error {
	_, err := database.Conn(ctx, r.db).ExecContext(ctx, `
		INSERT INTO project_reviewers (project_id, user_id, has_reviewed)
		VALUES ($1, $2, $3)
		ON CONFLICT (project_id, user_id) DO UPDATE SET has_reviewed = EXCLUDED.has_reviewed`,
		projectID, userID, hasReviewed)
	return translate("upsert reviewer", err)
}

// SetHasReviewed updates the has_reviewed flag of an assigned reviewer
func (r *ProjectRepository) SetHasReviewed(ctx context.Context, projectID, userID uint, hasReviewed bool) error {
	_, err := database.Conn(ctx, r.db).ExecContext(ctx,
		`UPDATE project_reviewers SET has_reviewed = $3 WHERE project_id = $1 AND user_id = $2`,
		projectID, userID, hasReviewed)
	return translate("update reviewer", err)
}

// AddDocument stores document metadata
func (r *ProjectRepository) AddDocument(ctx context.Context, d *models.ProjectDocument) error {
	if d.Status == "" {
		d.Status = models.DocumentPending
	}
	err := sqlx.GetContext(ctx, database.Conn(ctx, r.db), d, `
		INSERT INTO project_documents (project_id, name, type, storage_key, size, status, uploaded_by)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING `+documentColumns,
		d.ProjectID, d.Name, d.Type, d.StorageKey, d.Size, d.Status, d.UploadedBy)
	if err != nil {
		return translate("add document", err)
	}
	return nil
}

// GetDocument returns one document of a project
func (r *ProjectRepository) GetDocument(ctx context.Context, projectID, documentID uint) (*models.ProjectDocument, error) {
	d := &models.ProjectDocument{}
	err := sqlx.GetContext(ctx, database.Conn(ctx, r.db), d,
		`SELECT `+documentColumns+` FROM project_documents WHERE id = $1 AND project_id = $2`, documentID, projectID)
	if err != nil {
		return nil, translate("get document", err)
	}
	return d, nil
}

// ListDocuments returns the documents of a project in upload order
func (r *ProjectRepository) ListDocuments(ctx context.Context, projectID uint) ([]models.ProjectDocument, error) {
	docs := []models.ProjectDocument{}
	err := sqlx.SelectContext(ctx, database.Conn(ctx, r.db), &docs,
		`SELECT `+documentColumns+` FROM project_documents WHERE project_id = $1 ORDER BY uploaded_at, id`, projectID)
	if err != nil {
		return nil, translate("list documents", err)
	}
	return docs, nil
}

// SetDocumentStatus updates the review status of a document
func (r *ProjectRepository) SetDocumentStatus(ctx context.Context, projectID, documentID uint, status string) error {
	res, err := database.Conn(ctx, r.db).ExecContext(ctx,
		`UPDATE project_documents SET status = $3 WHERE id = $1 AND project_id = $2`, documentID, projectID, status)
	if err != nil {
		return translate("update document status", err)
	}
	return expectOne(res, "update document status")
}

// DeleteDocument removes document metadata
func (r *ProjectRepository) DeleteDocument(ctx context.Context, projectID, documentID uint) error {
	res, err := database.Conn(ctx, r.db).ExecContext(ctx,
		`DELETE FROM project_documents WHERE id = $1 AND project_id = $2`, documentID, projectID)
	if err != nil {
		return translate("delete document", err)
	}
	return expectOne(res, "delete document")
}
