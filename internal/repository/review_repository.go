package repository

import (
	"context"

	"github.com/jmoiron/sqlx"

	"fp-innova/internal/database"
	"fp-innova/internal/models"
)

const reviewColumns = `r.id, r.project_id, r.reviewer_id, u.name AS reviewer_name, r.scores, r.comments,
	r.general_observations, r.proposed_amount, r.amount_justification, r.score, r.weighted_score,
	r.is_draft, r.finalized_at, r.created_at, r.updated_at`

// ReviewRepository stores reviews, one per (project, reviewer)
type ReviewRepository struct {
	db *sqlx.DB
}

// NewReviewRepository creates a new review repository
func NewReviewRepository(db *sqlx.DB) *ReviewRepository {
	return &ReviewRepository{db: db}
}

// Upsert inserts the review or replaces the stored one of the same reviewer.
// A stored final review is never overwritten: ErrNotFound is returned instead.
func (r *ReviewRepository) Upsert(ctx context.Context, review *models.Review) error {
	query := `
		INSERT INTO reviews (project_id, reviewer_id, scores, comments, general_observations,
			proposed_amount, amount_justification, score, weighted_score, is_draft, finalized_at)
		VALUES (:project_id, :reviewer_id, :scores, :comments, :general_observations,
			:proposed_amount, :amount_justification, :score, :weighted_score, :is_draft, :finalized_at)
		ON CONFLICT (project_id, reviewer_id) DO UPDATE SET
			scores = EXCLUDED.scores,
			comments = EXCLUDED.comments,
			general_observations = EXCLUDED.general_observations,
			proposed_amount = EXCLUDED.proposed_amount,
			amount_justification = EXCLUDED.amount_justification,
			score = EXCLUDED.score,
			weighted_score = EXCLUDED.weighted_score,
			is_draft = EXCLUDED.is_draft,
			finalized_at = EXCLUDED.finalized_at,
			updated_at = NOW()
		WHERE reviews.is_draft
		RETURNING id, created_at, updated_at`
	rows, err := sqlx.NamedQueryContext(ctx, database.Conn(ctx, r.db), query, review)
	if err != nil {
		return translate("save review", err)
	}
	defer rows.Close()
	if !rows.Next() {
		if err := rows.Err(); err != nil {
			return translate("save review", err)
		}
		return ErrNotFound
	}
	if err := rows.Scan(&review.ID, &review.CreatedAt, &review.UpdatedAt); err != nil {
		return translate("save review", err)
	}
	return nil
}

// GetByID returns a review
func (r *ReviewRepository) GetByID(ctx context.Context, id uint) (*models.Review, error) {
	review := &models.Review{}
	err := sqlx.GetContext(ctx, database.Conn(ctx, r.db), review,
		`SELECT `+reviewColumns+` FROM reviews r JOIN users u ON u.id = r.reviewer_id WHERE r.id = $1`, id)
	if err != nil {
		return nil, translate("get review", err)
	}
	return review, nil
}

// GetByProjectAndReviewer returns the review of one reviewer on a project
func (r *ReviewRepository) GetByProjectAndReviewer(ctx context.Context, projectID, reviewerID uint) (*models.Review, error) {
	review := &models.Review{}
	err := sqlx.GetContext(ctx, database.Conn(ctx, r.db), review,
		`SELECT `+reviewColumns+` FROM reviews r JOIN users u ON u.id = r.reviewer_id
		 WHERE r.project_id = $1 AND r.reviewer_id = $2`, projectID, reviewerID)
	if err != nil {
		return nil, translate("get review", err)
	}
	return review, nil
}

// ListByProject returns every review of a project, oldest first
func (r *ReviewRepository) ListByProject(ctx context.Context, projectID uint) ([]models.Review, error) {
	reviews := []models.Review{}
	err := sqlx.SelectContext(ctx, database.Conn(ctx, r.db), &reviews,
		`SELECT `+reviewColumns+` FROM reviews r JOIN users u ON u.id = r.reviewer_id
		 WHERE r.project_id = $1 ORDER BY r.created_at, r.id`, projectID)
	if err != nil {
		return nil, translate("list reviews", err)
	}
	return reviews, nil
}

// ListByReviewer returns every review written by reviewerID, newest first
func (r *ReviewRepository) ListByReviewer(ctx context.Context, reviewerID uint) ([]models.Review, error) {
	reviews := []models.Review{}
	err := sqlx.SelectContext(ctx, database.Conn(ctx, r.db), &reviews,
		`SELECT `+reviewColumns+` FROM reviews r JOIN users u ON u.id = r.reviewer_id
		 WHERE r.reviewer_id = $1 ORDER BY r.updated_at DESC`, reviewerID)
	if err != nil {
		return nil, translate("list reviews", err)
	}
	return reviews, nil
}

// Delete removes a review
func (r *ReviewRepository) Delete(ctx context.Context, id uint) error {
	res, err := database.Conn(ctx, r.db).ExecContext(ctx, `DELETE FROM reviews WHERE id = $1`, id)
	if err != nil {
		return translate("delete review", err)
	}
	return expectOne(res, "delete review")
}

// FinalScores returns the score and weighted score of every final review of a
// project. The number of rows is the number of distinct reviewers who finished.
func (r *ReviewRepository) FinalScores(ctx context.Context, projectID uint) ([]float64, []float64, error) {
	var rows []struct {
		Score         float64 `db:"score"`
		WeightedScore float64 `db:"weighted_score"`
	}
	err := sqlx.SelectContext(ctx, database.Conn(ctx, r.db), &rows,
		`SELECT score, weighted_score FROM reviews WHERE project_id = $1 AND NOT is_draft ORDER BY id`, projectID)
	if err != nil {
		return nil, nil, translate("list final review scores", err)
	}
	scores := make([]float64, len(rows))
	weighted := make([]float64, len(rows))
	for i, row := range rows {
		scores[i] = row.Score
		weighted[i] = row.WeightedScore
	}
	return scores, weighted, nil
}

// CountByProject returns the number of final and draft reviews of a project
func (r *ReviewRepository) CountByProject(ctx context.Context, projectID uint) (final, draft int, err error) {
	var counts struct {
		Final int `db:"final"`
		Draft int `db:"draft"`
	}
	err = sqlx.GetContext(ctx, database.Conn(ctx, r.db), &counts, `
		SELECT COUNT(*) FILTER (WHERE NOT is_draft) AS final, COUNT(*) FILTER (WHERE is_draft) AS draft
		FROM reviews WHERE project_id = $1`, projectID)
	if err != nil {
		return 0, 0, translate("count reviews", err)
	}
	return counts.Final, counts.Draft, nil
}
