package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"fp-innova/internal/database"
	"fp-innova/internal/models"
)

const amendmentColumns = `id, project_id, reviewer_id, status, deadline, verification_code, completed_at, created_at, updated_at`

const documentAmendmentColumns = `id, amendment_id, document_id, document_name, justification, status,
	requested_at, deadline, completed_at, replacement_document_id`

// AmendmentRepository stores project amendments and their per-document entries
type AmendmentRepository struct {
	db *sqlx.DB
}

// NewAmendmentRepository creates a new amendment repository
func NewAmendmentRepository(db *sqlx.DB) *AmendmentRepository {
	return &AmendmentRepository{db: db}
}

// Create inserts an amendment with its document entries
func (r *AmendmentRepository) Create(ctx context.Context, a *models.ProjectAmendment) error {
	conn := database.Conn(ctx, r.db)
	err := sqlx.GetContext(ctx, conn, a, `
		INSERT INTO project_amendments (project_id, reviewer_id, status, deadline, verification_code)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING `+amendmentColumns,
		a.ProjectID, a.ReviewerID, a.Status, a.Deadline, a.VerificationCode)
	if err != nil {
		return translate("create amendment", err)
	}
	for i := range a.Documents {
		d := &a.Documents[i]
		d.AmendmentID = a.ID
		err := sqlx.GetContext(ctx, conn, d, `
			INSERT INTO document_amendments (amendment_id, document_id, document_name, justification, status, deadline)
			VALUES ($1, $2, $3, $4, $5, $6)
			RETURNING `+documentAmendmentColumns,
			d.AmendmentID, d.DocumentID, d.DocumentName, d.Justification, d.Status, d.Deadline)
		if err != nil {
			return translate("create document amendment", err)
		}
	}
	return nil
}

// GetByID returns an amendment with its document entries
func (r *AmendmentRepository) GetByID(ctx context.Context, id uint) (*models.ProjectAmendment, error) {
	a := &models.ProjectAmendment{}
	err := sqlx.GetContext(ctx, database.Conn(ctx, r.db), a,
		`SELECT `+amendmentColumns+` FROM project_amendments WHERE id = $1`, id)
	if err != nil {
		return nil, translate("get amendment", err)
	}
	if err := r.loadDocuments(ctx, []*models.ProjectAmendment{a}); err != nil {
		return nil, err
	}
	return a, nil
}

// ListByProject returns the amendments of a project, newest first
func (r *AmendmentRepository) ListByProject(ctx context.Context, projectID uint) ([]models.ProjectAmendment, error) {
	return r.list(ctx, `WHERE project_id = $1 ORDER BY created_at DESC, id DESC`, projectID)
}

// ListByReviewer returns the amendments requested by reviewerID, newest first
func (r *AmendmentRepository) ListByReviewer(ctx context.Context, reviewerID uint) ([]models.ProjectAmendment, error) {
	return r.list(ctx, `WHERE reviewer_id = $1 ORDER BY created_at DESC, id DESC`, reviewerID)
}

// ListOverdue returns open amendments with at least one open entry past its deadline
func (r *AmendmentRepository) ListOverdue(ctx context.Context, now time.Time) ([]models.ProjectAmendment, error) {
	return r.list(ctx, `
		WHERE status IN ('pending', 'in_progress')
		  AND EXISTS (SELECT 1 FROM document_amendments d
		              WHERE d.amendment_id = project_amendments.id
		                AND d.status IN ('pending', 'in_progress') AND d.deadline < $1)
		ORDER BY deadline`, now)
}

// ListDueBetween returns open amendments whose deadline falls in [from, to)
func (r *AmendmentRepository) ListDueBetween(ctx context.Context, from, to time.Time) ([]models.ProjectAmendment, error) {
	return r.list(ctx, `
		WHERE status IN ('pending', 'in_progress') AND deadline >= $1 AND deadline < $2
		ORDER BY deadline`, from, to)
}

func (r *AmendmentRepository) list(ctx context.Context, clause string, args ...any) ([]models.ProjectAmendment, error) {
	amendments := []models.ProjectAmendment{}
	err := sqlx.SelectContext(ctx, database.Conn(ctx, r.db), &amendments,
		`SELECT `+amendmentColumns+` FROM project_amendments `+clause, args...)
	if err != nil {
		return nil, translate("list amendments", err)
	}
	ptrs := make([]*models.ProjectAmendment, len(amendments))
	for i := range amendments {
		ptrs[i] = &amendments[i]
	}
	if err := r.loadDocuments(ctx, ptrs); err != nil {
		return nil, err
	}
	return amendments, nil
}

func (r *AmendmentRepository) loadDocuments(ctx context.Context, amendments []*models.ProjectAmendment) error {
	if len(amendments) == 0 {
		return nil
	}
	ids := make([]int64, len(amendments))
	byID := make(map[uint]*models.ProjectAmendment, len(amendments))
	for i, a := range amendments {
		ids[i] = int64(a.ID)
		byID[a.ID] = a
		a.Documents = []models.DocumentAmendment{}
	}
	var docs []models.DocumentAmendment
	err := sqlx.SelectContext(ctx, database.Conn(ctx, r.db), &docs,
		`SELECT `+documentAmendmentColumns+` FROM document_amendments WHERE amendment_id = ANY($1) ORDER BY id`, pq.Array(ids))
	if err != nil {
		return translate("list document amendments", err)
	}
	for _, d := range docs {
		byID[d.AmendmentID].Documents = append(byID[d.AmendmentID].Documents, d)
	}
	return nil
}

// CompleteDocument marks an open document entry completed with its replacement.
// It returns ErrNotFound when the entry is not open.
func (r *AmendmentRepository) CompleteDocument(ctx context.Context, amendmentID, entryID, replacementID uint, at time.Time) error {
	res, err := database.Conn(ctx, r.db).ExecContext(ctx, `
		UPDATE document_amendments
		SET status = 'completed', completed_at = $3, replacement_document_id = $4
		WHERE id = $1 AND amendment_id = $2 AND status IN ('pending', 'in_progress')`,
		entryID, amendmentID, at, replacementID)
	if err != nil {
		return translate("complete document amendment", err)
	}
	return expectOne(res, "complete document amendment")
}

// UpdateStatus stores the aggregate status; completedAt is set only on completion
func (r *AmendmentRepository) UpdateStatus(ctx context.Context, id uint, status string, completedAt *time.Time) error {
	res, err := database.Conn(ctx, r.db).ExecContext(ctx,
		`UPDATE project_amendments SET status = $2, completed_at = $3, updated_at = NOW() WHERE id = $1`,
		id, status, completedAt)
	if err != nil {
		return translate("update amendment status", err)
	}
	return expectOne(res, "update amendment status")
}

// MarkExpired persists the expired status of open entries past deadline and of
// their amendments. It returns the number of amendments that changed.
func (r *AmendmentRepository) MarkExpired(ctx context.Context, ids []uint, now time.Time) (int64, error) {
	if len(ids) == 0 {
		return 0, nil
	}
	conn := database.Conn(ctx, r.db)
	arr := pq.Array(toInt64s(ids))
	if _, err := conn.ExecContext(ctx, `
		UPDATE document_amendments SET status = 'expired'
		WHERE amendment_id = ANY($1) AND status IN ('pending', 'in_progress') AND deadline < $2`, arr, now); err != nil {
		return 0, fmt.Errorf("failed to expire document amendments: %w", err)
	}
	res, err := conn.ExecContext(ctx, `
		UPDATE project_amendments SET status = 'expired', updated_at = NOW()
		WHERE id = ANY($1) AND status IN ('pending', 'in_progress')`, arr)
	if err != nil {
		return 0, fmt.Errorf("failed to expire amendments: %w", err)
	}
	return res.RowsAffected()
}
