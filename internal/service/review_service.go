package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"fp-innova/internal/models"
	"fp-innova/internal/rbac"
	"fp-innova/internal/repository"
	"fp-innova/internal/workflow"
	"fp-innova/pkg/validator"
)

// ReviewStore persists reviews
type ReviewStore interface {
	Upsert(ctx context.Context, review *models.Review) error
	GetByID(ctx context.Context, id uint) (*models.Review, error)
	GetByProjectAndReviewer(ctx context.Context, projectID, reviewerID uint) (*models.Review, error)
	ListByProject(ctx context.Context, projectID uint) ([]models.Review, error)
	ListByReviewer(ctx context.Context, reviewerID uint) ([]models.Review, error)
	Delete(ctx context.Context, id uint) error
	FinalScores(ctx context.Context, projectID uint) ([]float64, []float64, error)
	CountByProject(ctx context.Context, projectID uint) (final, draft int, err error)
}

type reviewSettings interface {
	Reviews(ctx context.Context) models.ReviewSettings
}

// SaveReviewRequest is the scoring submitted by a reviewer
type SaveReviewRequest struct {
	Scores              map[string]float64 `json:"scores"`
	Comments            map[string]string  `json:"comments"`
	GeneralObservations string             `json:"generalObservations" validate:"max=10000"`
	ProposedAmount      *float64           `json:"proposedAmount" validate:"omitempty,gte=0"`
	AmountJustification string             `json:"amountJustification" validate:"max=5000"`
	IsDraft             bool               `json:"isDraft"`
}

// ReviewService records reviews and drives the project through review
type ReviewService struct {
	tx       TxRunner
	projects ProjectStore
	reviews  ReviewStore
	settings reviewSettings
	policy   PermissionChecker
	notifier Notifier
	audit    *AuditService
	now      func() time.Time
}

// NewReviewService creates a new review service
func NewReviewService(tx TxRunner, projects ProjectStore, reviews ReviewStore, settings reviewSettings,
	policy PermissionChecker, notifier Notifier, audit *AuditService) *ReviewService {
	return &ReviewService{
		tx:       tx,
		projects: projects,
		reviews:  reviews,
		settings: settings,
		policy:   policy,
		notifier: notifier,
		audit:    audit,
		now:      time.Now,
	}
}

// canReview reports whether actor may score p: assigned reviewers always,
// administrators and coordinators when the review settings allow it
func canReview(actor *models.User, p *models.Project, settings models.ReviewSettings) bool {
	if _, assigned := p.Reviewer(actor.ID); assigned {
		return true
	}
	switch actor.Role {
	case models.RoleAdmin:
		return settings.AllowAdminReview
	case models.RoleCoordinator:
		return settings.AllowCoordinatorReview
	}
	return false
}

// SaveReview creates or updates the actor's review of a project. A final
// review cannot be changed afterwards.
func (s *ReviewService) SaveReview(ctx context.Context, actor *models.User, projectID uint, req SaveReviewRequest) (*models.Review, error) {
	if err := validator.ValidateStruct(req); err != nil {
		return nil, err
	}
	if !s.policy.HasPermission(actor.Role, rbac.ActionReview, rbac.ResourceReviews) {
		return nil, ErrForbidden
	}
	settings := s.settings.Reviews(ctx)

	var (
		review *models.Review
		change *statusChange
	)
	err := s.tx.WithinTx(ctx, func(ctx context.Context) error {
		p, err := s.projects.GetForUpdate(ctx, projectID)
		if err != nil {
			return err
		}
		if !canReview(actor, p, settings) {
			return ErrForbidden
		}
		switch p.Status {
		case models.ProjectSubmitted, models.ProjectReviewing, models.ProjectReviewed:
		case models.ProjectNeedsChanges:
			if !req.IsDraft {
				return fmt.Errorf("%w: reviews cannot be finalized while amendments are pending", ErrInvalidTransition)
			}
		default:
			return fmt.Errorf("%w: project %d is %s", ErrInvalidTransition, p.ID, p.Status)
		}

		existing, err := s.reviews.GetByProjectAndReviewer(ctx, projectID, actor.ID)
		switch {
		case err == nil && !existing.IsDraft:
			return ErrReviewFinalized
		case err != nil && !errors.Is(err, repository.ErrNotFound):
			return err
		}

		rubric := models.Category(p.Category).Rubric
		if err := workflow.ValidateScores(&rubric, req.Scores); err != nil {
			return fieldError("scores", err.Error())
		}
		if !req.IsDraft {
			if missing := unscoredCriterion(&rubric, req.Scores); missing != "" {
				return fieldError("scores."+missing, "una revisión final debe puntuar todos los criterios")
			}
		}

		review = &models.Review{
			ProjectID:           projectID,
			ReviewerID:          actor.ID,
			ReviewerName:        actor.Name,
			Scores:              models.ScoreMap(req.Scores),
			Comments:            models.CommentMap(req.Comments),
			GeneralObservations: req.GeneralObservations,
			ProposedAmount:      req.ProposedAmount,
			AmountJustification: req.AmountJustification,
			Score:               workflow.ReviewScore(req.Scores),
			WeightedScore:       workflow.WeightedScore(&rubric, req.Scores),
			IsDraft:             req.IsDraft,
		}
		if review.Scores == nil {
			review.Scores = models.ScoreMap{}
		}
		if review.Comments == nil {
			review.Comments = models.CommentMap{}
		}
		if !req.IsDraft {
			at := s.now()
			review.FinalizedAt = &at
		}
		if err := s.reviews.Upsert(ctx, review); err != nil {
			if errors.Is(err, repository.ErrNotFound) {
				return ErrReviewFinalized
			}
			return err
		}

		reviewerCount := len(p.Reviewers)
		if !req.IsDraft {
			if _, assigned := p.Reviewer(actor.ID); assigned {
				err = s.projects.SetHasReviewed(ctx, projectID, actor.ID, true)
			} else {
				err = s.projects.UpsertReviewer(ctx, projectID, actor.ID, true)
				reviewerCount++
			}
			if err != nil {
				return err
			}
			if err := s.refreshScore(ctx, projectID); err != nil {
				return err
			}
		}

		if p.Status == models.ProjectNeedsChanges {
			return nil
		}
		final, _, err := s.reviews.CountByProject(ctx, projectID)
		if err != nil {
			return err
		}
		change, err = applyTransition(ctx, s.projects, p, workflow.EventReviewSaved, workflow.Conditions{
			ReviewerCount:    reviewerCount,
			CompletedReviews: final,
			MinCorrections:   p.Category.MinCorrections,
			ActorRole:        actor.Role,
		})
		return err
	})
	if err != nil {
		return nil, err
	}

	if !review.IsDraft {
		s.audit.Log(ctx, &actor.ID, AuditUpdate, "reviews", idString(review.ID),
			fmt.Sprintf("Finalized review of project %d with score %.2f", projectID, review.Score), nil)
		slog.Info("Review finalized", "project_id", projectID, "review_id", review.ID, "score", review.Score)
	}
	announceStatus(ctx, s.notifier, change)
	return review, nil
}

func unscoredCriterion(rubric *models.Rubric, scores map[string]float64) string {
	for _, section := range rubric.Sections {
		for _, c := range section.Criteria {
			if _, ok := scores[c.ID]; !ok {
				return c.ID
			}
		}
	}
	return ""
}

// refreshScore recomputes the project scores from the final reviews
func (s *ReviewService) refreshScore(ctx context.Context, projectID uint) error {
	scores, weighted, err := s.reviews.FinalScores(ctx, projectID)
	if err != nil {
		return err
	}
	return s.projects.UpdateScore(ctx, projectID, workflow.ProjectScore(scores), workflow.ProjectScore(weighted))
}

// DeleteReview removes a review and recomputes the project status
func (s *ReviewService) DeleteReview(ctx context.Context, actor *models.User, reviewID uint) error {
	if !s.policy.HasPermission(actor.Role, rbac.ActionDelete, rbac.ResourceReviews) {
		return ErrForbidden
	}
	var change *statusChange
	var projectID uint
	err := s.tx.WithinTx(ctx, func(ctx context.Context) error {
		review, err := s.reviews.GetByID(ctx, reviewID)
		if err != nil {
			return err
		}
		projectID = review.ProjectID
		p, err := s.projects.GetForUpdate(ctx, review.ProjectID)
		if err != nil {
			return err
		}
		if err := s.reviews.Delete(ctx, reviewID); err != nil {
			return err
		}
		if _, assigned := p.Reviewer(review.ReviewerID); assigned {
			if err := s.projects.SetHasReviewed(ctx, p.ID, review.ReviewerID, false); err != nil {
				return err
			}
		}
		if err := s.refreshScore(ctx, p.ID); err != nil {
			return err
		}
		if p.Status != models.ProjectReviewing && p.Status != models.ProjectReviewed {
			return nil
		}
		final, _, err := s.reviews.CountByProject(ctx, p.ID)
		if err != nil {
			return err
		}
		change, err = applyTransition(ctx, s.projects, p, workflow.EventReviewDeleted, workflow.Conditions{
			ReviewerCount:    len(p.Reviewers),
			CompletedReviews: final,
			MinCorrections:   p.Category.MinCorrections,
			ActorRole:        actor.Role,
		})
		return err
	})
	if err != nil {
		return err
	}
	s.audit.Log(ctx, &actor.ID, AuditDelete, "reviews", idString(reviewID),
		fmt.Sprintf("Deleted review of project %d", projectID), nil)
	announceStatus(ctx, s.notifier, change)
	return nil
}

// GetCompletionStatus reports how many final reviews a project has against
// the minimum its category requires
func (s *ReviewService) GetCompletionStatus(ctx context.Context, actor *models.User, projectID uint) (*models.ReviewCompletion, error) {
	p, err := s.projects.GetByID(ctx, projectID)
	if err != nil {
		return nil, err
	}
	if !canViewProject(actor, p) {
		return nil, repository.ErrNotFound
	}
	return reviewCompletion(ctx, s.reviews, p)
}

func reviewCompletion(ctx context.Context, counter ReviewCounter, p *models.Project) (*models.ReviewCompletion, error) {
	final, draft, err := counter.CountByProject(ctx, p.ID)
	if err != nil {
		return nil, err
	}
	return &models.ReviewCompletion{
		ProjectID:        p.ID,
		CompletedReviews: final,
		DraftReviews:     draft,
		MinCorrections:   p.Category.MinCorrections,
		Complete:         final >= max(p.Category.MinCorrections, 1),
	}, nil
}

// ListByProject returns the reviews of a project. Drafts are only visible to
// their author and to administrators and coordinators.
func (s *ReviewService) ListByProject(ctx context.Context, actor *models.User, projectID uint) ([]models.Review, error) {
	p, err := s.projects.GetByID(ctx, projectID)
	if err != nil {
		return nil, err
	}
	if !canViewProject(actor, p) {
		return nil, repository.ErrNotFound
	}
	all, err := s.reviews.ListByProject(ctx, projectID)
	if err != nil {
		return nil, err
	}
	visible := make([]models.Review, 0, len(all))
	for _, r := range all {
		if canSeeReview(actor, &r) {
			visible = append(visible, r)
		}
	}
	return visible, nil
}

func canSeeReview(actor *models.User, r *models.Review) bool {
	return !r.IsDraft || r.ReviewerID == actor.ID || isManager(actor)
}

// Get returns one review
func (s *ReviewService) Get(ctx context.Context, actor *models.User, reviewID uint) (*models.Review, error) {
	r, err := s.reviews.GetByID(ctx, reviewID)
	if err != nil {
		return nil, err
	}
	p, err := s.projects.GetByID(ctx, r.ProjectID)
	if err != nil {
		return nil, err
	}
	if !canViewProject(actor, p) || !canSeeReview(actor, r) {
		return nil, repository.ErrNotFound
	}
	return r, nil
}

// ListMine returns the reviews written by actor
func (s *ReviewService) ListMine(ctx context.Context, actor *models.User) ([]models.Review, error) {
	return s.reviews.ListByReviewer(ctx, actor.ID)
}
