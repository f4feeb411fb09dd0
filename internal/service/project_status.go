package service

import (
	"context"
	"fmt"
	"log/slog"

	"fp-innova/internal/models"
	"fp-innova/internal/workflow"
)

var statusLabels = map[models.ProjectStatus]string{
	models.ProjectDraft:        "borrador",
	models.ProjectSubmitted:    "presentado",
	models.ProjectReviewing:    "en revisión",
	models.ProjectReviewed:     "revisado",
	models.ProjectApproved:     "aprobado",
	models.ProjectRejected:     "rechazado",
	models.ProjectNeedsChanges: "pendiente de subsanación",
}

type projectStatusWriter interface {
	UpdateStatus(ctx context.Context, id uint, status models.ProjectStatus) error
}

// statusChange records a transition that still has to be announced once the
// surrounding transaction commits
type statusChange struct {
	projectID  uint
	title      string
	presenters []uint
	from, to   models.ProjectStatus
	event      workflow.Event
}

// applyTransition runs event through the state machine and stores the new
// status. It returns nil when the status does not change.
func applyTransition(ctx context.Context, store projectStatusWriter, p *models.Project, event workflow.Event, c workflow.Conditions) (*statusChange, error) {
	next, err := workflow.Transition(p.Status, event, c)
	if err != nil {
		return nil, err
	}
	if next == p.Status {
		return nil, nil
	}
	if err := store.UpdateStatus(ctx, p.ID, next); err != nil {
		return nil, err
	}
	change := &statusChange{
		projectID:  p.ID,
		title:      p.Title,
		presenters: append([]uint(nil), p.Presenters...),
		from:       p.Status,
		to:         next,
		event:      event,
	}
	p.Status = next
	return change, nil
}

// announceStatus logs a committed transition and tells the presenters
func announceStatus(ctx context.Context, notifier Notifier, change *statusChange) {
	if change == nil {
		return
	}
	slog.Info("Project status changed", "project_id", change.projectID, "event", change.event,
		"from", change.from, "to", change.to)
	notifier.Notify(ctx, change.presenters, models.NotificationProjectStatus,
		"Cambio de estado del proyecto",
		fmt.Sprintf("El proyecto \"%s\" ha pasado a estado %s.", change.title, statusLabels[change.to]),
		projectLink(change.projectID))
}

func projectLink(id uint) string {
	return fmt.Sprintf("/projects/%d", id)
}

// canViewProject decides project visibility by role
func canViewProject(actor *models.User, p *models.Project) bool {
	switch actor.Role {
	case models.RoleAdmin, models.RoleCoordinator:
		return true
	case models.RolePresenter:
		return p.IsPresenter(actor.ID)
	case models.RoleReviewer:
		_, assigned := p.Reviewer(actor.ID)
		return assigned
	default:
		return p.Status == models.ProjectApproved
	}
}

func isManager(actor *models.User) bool {
	return actor.Role == models.RoleAdmin || actor.Role == models.RoleCoordinator
}
