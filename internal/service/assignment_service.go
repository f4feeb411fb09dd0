package service

import (
	"context"
	"fmt"
	"log/slog"

	"fp-innova/internal/models"
	"fp-innova/internal/rbac"
	"fp-innova/internal/workflow"
)

// ReviewerCandidates lists who may be assigned to review a project
type ReviewerCandidates struct {
	Candidates         []models.User            `json:"candidates"`
	Assigned           []models.ProjectReviewer `json:"assigned"`
	RecommendedMinimum int                      `json:"recommendedMinimum"`
}

// AssignmentService assigns reviewers to projects
type AssignmentService struct {
	tx       TxRunner
	projects ProjectStore
	reviews  ReviewCounter
	users    UserStore
	settings reviewSettings
	policy   PermissionChecker
	notifier Notifier
	audit    *AuditService
}

// NewAssignmentService creates a new assignment service
func NewAssignmentService(tx TxRunner, projects ProjectStore, reviews ReviewCounter, users UserStore, settings reviewSettings,
	policy PermissionChecker, notifier Notifier, audit *AuditService) *AssignmentService {
	return &AssignmentService{
		tx:       tx,
		projects: projects,
		reviews:  reviews,
		users:    users,
		settings: settings,
		policy:   policy,
		notifier: notifier,
		audit:    audit,
	}
}

// candidateRoles returns the roles that may review under the current settings
func candidateRoles(settings models.ReviewSettings) []string {
	roles := []string{models.RoleReviewer}
	if settings.AllowAdminReview {
		roles = append(roles, models.RoleAdmin)
	}
	if settings.AllowCoordinatorReview {
		roles = append(roles, models.RoleCoordinator)
	}
	return roles
}

// ListCandidates returns the active users that may be assigned to the project
// and the recommended number of reviewers
func (s *AssignmentService) ListCandidates(ctx context.Context, actor *models.User, projectID uint) (*ReviewerCandidates, error) {
	if !s.policy.HasPermission(actor.Role, rbac.ActionAssign, rbac.ResourceProjects) {
		return nil, ErrForbidden
	}
	p, err := s.projects.GetByID(ctx, projectID)
	if err != nil {
		return nil, err
	}
	users, err := s.users.ListActiveByRoles(ctx, candidateRoles(s.settings.Reviews(ctx)))
	if err != nil {
		return nil, err
	}
	return &ReviewerCandidates{
		Candidates:         users,
		Assigned:           p.Reviewers,
		RecommendedMinimum: max(p.Category.MinCorrections, 1),
	}, nil
}

// AssignReviewers replaces the reviewer list of a project. Reviewers that stay
// keep their progress. A submitted project moves to reviewing; a project under
// review has its status recomputed against the new list.
func (s *AssignmentService) AssignReviewers(ctx context.Context, actor *models.User, projectID uint, userIDs []uint) (*models.Project, error) {
	if !s.policy.HasPermission(actor.Role, rbac.ActionAssign, rbac.ResourceProjects) {
		return nil, ErrForbidden
	}
	userIDs = dedupe(userIDs)
	candidates, err := s.users.ListActiveByRoles(ctx, candidateRoles(s.settings.Reviews(ctx)))
	if err != nil {
		return nil, err
	}
	allowed := make(map[uint]bool, len(candidates))
	for _, u := range candidates {
		allowed[u.ID] = true
	}
	for i, id := range userIDs {
		if !allowed[id] {
			return nil, fieldError(fmt.Sprintf("userIds[%d]", i), "el usuario no puede revisar proyectos")
		}
	}

	var (
		added   []uint
		change  *statusChange
		project *models.Project
	)
	err = s.tx.WithinTx(ctx, func(ctx context.Context) error {
		p, err := s.projects.GetForUpdate(ctx, projectID)
		if err != nil {
			return err
		}
		switch p.Status {
		case models.ProjectDraft, models.ProjectApproved, models.ProjectRejected:
			return fmt.Errorf("%w: cannot assign reviewers to a %s project", ErrInvalidTransition, p.Status)
		}
		project = p
		for _, id := range userIDs {
			if p.IsPresenter(id) {
				return fieldError("userIds", "un presentador no puede revisar su propio proyecto")
			}
		}
		if added, err = s.projects.ReplaceReviewers(ctx, projectID, userIDs); err != nil {
			return err
		}
		switch p.Status {
		case models.ProjectSubmitted:
			if len(userIDs) == 0 {
				return nil
			}
			change, err = applyTransition(ctx, s.projects, p, workflow.EventAssignReviewers, workflow.Conditions{
				ReviewerCount: len(userIDs),
				ActorRole:     actor.Role,
			})
		case models.ProjectReviewing, models.ProjectReviewed:
			final, _, cerr := s.reviews.CountByProject(ctx, projectID)
			if cerr != nil {
				return cerr
			}
			change, err = applyTransition(ctx, s.projects, p, workflow.EventReviewersChanged, workflow.Conditions{
				ReviewerCount:    len(userIDs),
				CompletedReviews: final,
				MinCorrections:   p.Category.MinCorrections,
				ActorRole:        actor.Role,
			})
		}
		return err
	})
	if err != nil {
		return nil, err
	}

	s.audit.Log(ctx, &actor.ID, AuditUpdate, "projects", idString(projectID),
		fmt.Sprintf("Assigned %d reviewers (%d new)", len(userIDs), len(added)), nil)
	slog.Info("Reviewers assigned", "project_id", projectID, "reviewers", len(userIDs), "added", len(added))
	if len(added) > 0 {
		s.notifier.Notify(ctx, added, models.NotificationReviewAssigned, "Nueva revisión asignada",
			fmt.Sprintf("Se le ha asignado la revisión del proyecto \"%s\".", project.Title),
			projectLink(projectID))
	}
	announceStatus(ctx, s.notifier, change)
	return s.projects.GetByID(ctx, projectID)
}
