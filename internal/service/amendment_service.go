package service

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"fp-innova/internal/email"
	"fp-innova/internal/models"
	"fp-innova/internal/rbac"
	"fp-innova/internal/repository"
	"fp-innova/internal/storage"
	"fp-innova/internal/workflow"
	"fp-innova/pkg/validator"
)

// AmendmentStore persists amendments and their document entries
type AmendmentStore interface {
	Create(ctx context.Context, a *models.ProjectAmendment) error
	GetByID(ctx context.Context, id uint) (*models.ProjectAmendment, error)
	ListByProject(ctx context.Context, projectID uint) ([]models.ProjectAmendment, error)
	ListByReviewer(ctx context.Context, reviewerID uint) ([]models.ProjectAmendment, error)
	ListOverdue(ctx context.Context, now time.Time) ([]models.ProjectAmendment, error)
	ListDueBetween(ctx context.Context, from, to time.Time) ([]models.ProjectAmendment, error)
	CompleteDocument(ctx context.Context, amendmentID, entryID, replacementID uint, at time.Time) error
	UpdateStatus(ctx context.Context, id uint, status string, completedAt *time.Time) error
	MarkExpired(ctx context.Context, ids []uint, now time.Time) (int64, error)
}

// ReminderMailer emails amendment deadline reminders
type ReminderMailer interface {
	SendAmendmentReminder(ctx context.Context, to, name, projectTitle string, projectID uint, items []email.ReminderItem) error
}

// AmendmentDocumentRequest asks for one document to be corrected. Without a
// documentId it asks for a new document named documentName.
type AmendmentDocumentRequest struct {
	DocumentID    *uint      `json:"documentId"`
	DocumentName  string     `json:"documentName" validate:"max=255"`
	Justification string     `json:"justification" validate:"required,notblank,max=5000"`
	Deadline      *time.Time `json:"deadline"`
}

// RequestAmendmentsRequest lists the documents to correct
type RequestAmendmentsRequest struct {
	Documents []AmendmentDocumentRequest `json:"documents" validate:"required,min=1,dive"`
}

// AmendmentService handles document correction requests
type AmendmentService struct {
	tx         TxRunner
	amendments AmendmentStore
	projects   ProjectStore
	reviews    ReviewStore
	users      UserStore
	files      storage.Store
	policy     PermissionChecker
	notifier   Notifier
	mailer     ReminderMailer
	audit      *AuditService
	now        func() time.Time
}

// NewAmendmentService creates a new amendment service
func NewAmendmentService(tx TxRunner, amendments AmendmentStore, projects ProjectStore, reviews ReviewStore, users UserStore,
	files storage.Store, policy PermissionChecker, notifier Notifier, mailer ReminderMailer, audit *AuditService) *AmendmentService {
	return &AmendmentService{
		tx:         tx,
		amendments: amendments,
		projects:   projects,
		reviews:    reviews,
		users:      users,
		files:      files,
		policy:     policy,
		notifier:   notifier,
		mailer:     mailer,
		audit:      audit,
		now:        time.Now,
	}
}

func newVerificationCode() string {
	return strings.ToUpper(strings.ReplaceAll(uuid.NewString(), "-", "")[:10])
}

// RequestAmendments opens a correction request and moves the project to
// needs_changes. A reviewer who already finalized a review cannot request
// amendments.
func (s *AmendmentService) RequestAmendments(ctx context.Context, actor *models.User, projectID uint, req RequestAmendmentsRequest) (*models.ProjectAmendment, error) {
	if err := validator.ValidateStruct(req); err != nil {
		return nil, err
	}
	if !s.policy.HasPermission(actor.Role, rbac.ActionRequestAmendments, rbac.ResourceReviews) {
		return nil, ErrForbidden
	}
	now := s.now()

	var (
		amendment *models.ProjectAmendment
		change    *statusChange
		project   *models.Project
	)
	err := s.tx.WithinTx(ctx, func(ctx context.Context) error {
		p, err := s.projects.GetForUpdate(ctx, projectID)
		if err != nil {
			return err
		}
		if _, assigned := p.Reviewer(actor.ID); !assigned && !isManager(actor) {
			return ErrForbidden
		}
		project = p

		hasFinal := false
		existing, err := s.reviews.GetByProjectAndReviewer(ctx, projectID, actor.ID)
		switch {
		case err == nil:
			hasFinal = !existing.IsDraft
		case !errors.Is(err, repository.ErrNotFound):
			return err
		}

		docs := make([]models.DocumentAmendment, 0, len(req.Documents))
		for i, d := range req.Documents {
			entry := models.DocumentAmendment{
				DocumentID:    d.DocumentID,
				DocumentName:  validator.SanitizeString(d.DocumentName),
				Justification: d.Justification,
				Status:        models.AmendmentPending,
				Deadline:      now.Add(workflow.DefaultAmendmentPeriod),
			}
			if d.DocumentID != nil {
				doc, err := s.projects.GetDocument(ctx, projectID, *d.DocumentID)
				if err != nil {
					return fieldError(fmt.Sprintf("documents[%d].documentId", i), "el documento no pertenece al proyecto")
				}
				entry.DocumentName = doc.Name
			} else if entry.DocumentName == "" {
				return fieldError(fmt.Sprintf("documents[%d].documentName", i), "indique el documento a subsanar")
			}
			if d.Deadline != nil {
				if !d.Deadline.After(now) {
					return fieldError(fmt.Sprintf("documents[%d].deadline", i), "el plazo debe ser posterior a la fecha actual")
				}
				entry.Deadline = *d.Deadline
			}
			docs = append(docs, entry)
		}

		change, err = applyTransition(ctx, s.projects, p, workflow.EventRequestAmendments, workflow.Conditions{
			ReviewerCount:           len(p.Reviewers),
			ActorRole:               actor.Role,
			RequesterHasFinalReview: hasFinal,
		})
		if err != nil {
			return err
		}

		amendment = &models.ProjectAmendment{
			ProjectID:        projectID,
			ReviewerID:       actor.ID,
			Status:           models.AmendmentPending,
			Deadline:         workflow.EarliestDeadline(docs),
			VerificationCode: newVerificationCode(),
			Documents:        docs,
		}
		return s.amendments.Create(ctx, amendment)
	})
	if err != nil {
		return nil, err
	}

	s.audit.Log(ctx, &actor.ID, AuditCreate, "amendments", idString(amendment.ID),
		fmt.Sprintf("Requested %d document amendments on project %d", len(amendment.Documents), projectID), nil)
	slog.Info("Amendments requested", "project_id", projectID, "amendment_id", amendment.ID, "documents", len(amendment.Documents))
	s.notifier.Notify(ctx, project.Presenters, models.NotificationAmendmentRequested,
		"Subsanación solicitada",
		fmt.Sprintf("Se han solicitado %d subsanaciones en el proyecto \"%s\". Plazo: %s.",
			len(amendment.Documents), project.Title, amendment.Deadline.Format("02/01/2006 15:04")),
		projectLink(projectID))
	announceStatus(ctx, s.notifier, change)
	return amendment, nil
}

// UploadAmendment stores the corrected file for one entry. When every entry is
// completed the project returns to review.
func (s *AmendmentService) UploadAmendment(ctx context.Context, actor *models.User, amendmentID, entryID uint, name, contentType string, r io.Reader) (*models.ProjectAmendment, error) {
	if !s.policy.HasPermission(actor.Role, rbac.ActionUploadAmendments, rbac.ResourceAmendments) {
		return nil, ErrForbidden
	}
	a, err := s.amendments.GetByID(ctx, amendmentID)
	if err != nil {
		return nil, err
	}
	p, err := s.projects.GetByID(ctx, a.ProjectID)
	if err != nil {
		return nil, err
	}
	if !p.IsPresenter(actor.ID) && actor.Role != models.RoleAdmin {
		return nil, ErrForbidden
	}
	now := s.now()
	var entry *models.DocumentAmendment
	for i := range a.Documents {
		if a.Documents[i].ID == entryID {
			entry = &a.Documents[i]
		}
	}
	if entry == nil {
		return nil, repository.ErrNotFound
	}
	switch workflow.DocumentStatus(entry, now) {
	case models.AmendmentExpired:
		return nil, ErrAmendmentExpired
	case models.AmendmentCompleted:
		return nil, ErrAmendmentClosed
	}

	name = validator.SanitizeString(name)
	if name == "" {
		return nil, fieldError("file", "el fichero debe tener nombre")
	}
	key, size, err := s.files.Save(ctx, name, r)
	if err != nil {
		if errors.Is(err, storage.ErrTooLarge) {
			return nil, fieldError("file", "el fichero supera el tamaño máximo permitido")
		}
		return nil, err
	}

	var change *statusChange
	err = s.tx.WithinTx(ctx, func(ctx context.Context) error {
		doc := &models.ProjectDocument{
			ProjectID:  a.ProjectID,
			Name:       name,
			Type:       contentType,
			StorageKey: key,
			Size:       size,
			UploadedBy: &actor.ID,
		}
		if err := s.projects.AddDocument(ctx, doc); err != nil {
			return err
		}
		if err := s.amendments.CompleteDocument(ctx, amendmentID, entryID, doc.ID, now); err != nil {
			if errors.Is(err, repository.ErrNotFound) {
				return ErrAmendmentClosed
			}
			return err
		}
		updated, err := s.amendments.GetByID(ctx, amendmentID)
		if err != nil {
			return err
		}
		status := workflow.AmendmentStatus(updated.Documents, now)
		var completedAt *time.Time
		if status == models.AmendmentCompleted {
			completedAt = &now
		}
		if err := s.amendments.UpdateStatus(ctx, amendmentID, status, completedAt); err != nil {
			return err
		}
		if status != models.AmendmentCompleted {
			return nil
		}
		locked, err := s.projects.GetForUpdate(ctx, a.ProjectID)
		if err != nil {
			return err
		}
		change, err = applyTransition(ctx, s.projects, locked, workflow.EventAmendmentsCompleted, workflow.Conditions{
			ReviewerCount: len(locked.Reviewers),
			ActorRole:     actor.Role,
		})
		return err
	})
	if err != nil {
		if rmErr := s.files.Delete(ctx, key); rmErr != nil {
			slog.Warn("Failed to remove orphaned upload", "key", key, "error", rmErr)
		}
		return nil, err
	}

	s.audit.Log(ctx, &actor.ID, AuditUpdate, "amendments", idString(amendmentID),
		fmt.Sprintf("Uploaded correction for entry %d", entryID), nil)
	announceStatus(ctx, s.notifier, change)
	if change != nil {
		s.notifier.Notify(ctx, []uint{a.ReviewerID}, models.NotificationProjectStatus,
			"Subsanación completada",
			fmt.Sprintf("Se han entregado todas las subsanaciones del proyecto \"%s\".", p.Title),
			projectLink(p.ID))
	}
	return s.Get(ctx, actor, amendmentID)
}

// Get returns an amendment with statuses derived at the current time
func (s *AmendmentService) Get(ctx context.Context, actor *models.User, id uint) (*models.ProjectAmendment, error) {
	a, err := s.amendments.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	p, err := s.projects.GetByID(ctx, a.ProjectID)
	if err != nil {
		return nil, err
	}
	if !canViewProject(actor, p) {
		return nil, repository.ErrNotFound
	}
	s.present(actor, p, a)
	return a, nil
}

// present derives statuses and hides the verification code from users other
// than the requester, the presenters and managers
func (s *AmendmentService) present(actor *models.User, p *models.Project, a *models.ProjectAmendment) {
	workflow.ApplyDerivedStatus(a, s.now())
	if a.ReviewerID != actor.ID && !p.IsPresenter(actor.ID) && !isManager(actor) {
		a.VerificationCode = ""
	}
}

// ListByProject returns the amendments of a project
func (s *AmendmentService) ListByProject(ctx context.Context, actor *models.User, projectID uint) ([]models.ProjectAmendment, error) {
	p, err := s.projects.GetByID(ctx, projectID)
	if err != nil {
		return nil, err
	}
	if !canViewProject(actor, p) {
		return nil, repository.ErrNotFound
	}
	amendments, err := s.amendments.ListByProject(ctx, projectID)
	if err != nil {
		return nil, err
	}
	for i := range amendments {
		s.present(actor, p, &amendments[i])
	}
	return amendments, nil
}

// ListMine returns the amendments requested by actor
func (s *AmendmentService) ListMine(ctx context.Context, actor *models.User) ([]models.ProjectAmendment, error) {
	amendments, err := s.amendments.ListByReviewer(ctx, actor.ID)
	if err != nil {
		return nil, err
	}
	now := s.now()
	for i := range amendments {
		workflow.ApplyDerivedStatus(&amendments[i], now)
	}
	return amendments, nil
}

// ExpireOverdue persists the expired status of amendments past their deadline
// and tells the requesting reviewers
func (s *AmendmentService) ExpireOverdue(ctx context.Context) (int64, error) {
	now := s.now()
	overdue, err := s.amendments.ListOverdue(ctx, now)
	if err != nil {
		return 0, err
	}
	if len(overdue) == 0 {
		return 0, nil
	}
	ids := make([]uint, len(overdue))
	for i, a := range overdue {
		ids[i] = a.ID
	}
	n, err := s.amendments.MarkExpired(ctx, ids, now)
	if err != nil {
		return 0, err
	}
	released := map[uint]bool{}
	for _, a := range overdue {
		s.notifier.Notify(ctx, []uint{a.ReviewerID}, models.NotificationProjectStatus,
			"Subsanación vencida",
			fmt.Sprintf("El plazo de la subsanación %d ha vencido sin completarse.", a.ID),
			projectLink(a.ProjectID))
		if released[a.ProjectID] {
			continue
		}
		released[a.ProjectID] = true
		if err := s.releaseExpired(ctx, a.ProjectID, now); err != nil {
			slog.Error("Failed to return project to review after expiry", "project_id", a.ProjectID, "error", err)
		}
	}
	slog.Info("Expired overdue amendments", "count", n)
	return n, nil
}

// releaseExpired moves a project out of needs_changes once none of its
// amendments is still open
func (s *AmendmentService) releaseExpired(ctx context.Context, projectID uint, now time.Time) error {
	var change *statusChange
	err := s.tx.WithinTx(ctx, func(ctx context.Context) error {
		p, err := s.projects.GetForUpdate(ctx, projectID)
		if err != nil {
			return err
		}
		if p.Status != models.ProjectNeedsChanges {
			return nil
		}
		amendments, err := s.amendments.ListByProject(ctx, projectID)
		if err != nil {
			return err
		}
		for i := range amendments {
			switch workflow.AmendmentStatus(amendments[i].Documents, now) {
			case models.AmendmentPending, models.AmendmentInProgress:
				return nil
			}
		}
		change, err = applyTransition(ctx, s.projects, p, workflow.EventAmendmentsExpired, workflow.Conditions{
			ReviewerCount: len(p.Reviewers),
		})
		return err
	})
	if err != nil {
		return err
	}
	announceStatus(ctx, s.notifier, change)
	return nil
}

// SendReminders emails the presenters of amendments due within the given
// window. It returns the number of emails sent.
func (s *AmendmentService) SendReminders(ctx context.Context, within time.Duration) (int, error) {
	now := s.now()
	due, err := s.amendments.ListDueBetween(ctx, now, now.Add(within))
	if err != nil {
		return 0, err
	}
	sent := 0
	for i := range due {
		a := &due[i]
		var items []email.ReminderItem
		for j := range a.Documents {
			d := &a.Documents[j]
			status := workflow.DocumentStatus(d, now)
			if status == models.AmendmentCompleted || status == models.AmendmentExpired {
				continue
			}
			items = append(items, email.ReminderItem{DocumentName: d.DocumentName, Deadline: d.Deadline})
		}
		if len(items) == 0 {
			continue
		}
		p, err := s.projects.GetByID(ctx, a.ProjectID)
		if err != nil {
			slog.Error("Failed to load project for reminder", "amendment_id", a.ID, "error", err)
			continue
		}
		presenters, err := s.users.ListByIDs(ctx, p.Presenters)
		if err != nil {
			slog.Error("Failed to load presenters for reminder", "amendment_id", a.ID, "error", err)
			continue
		}
		for _, u := range presenters {
			if !u.Active {
				continue
			}
			if err := s.mailer.SendAmendmentReminder(ctx, u.Email, u.Name, p.Title, p.ID, items); err != nil {
				slog.Error("Failed to send amendment reminder", "amendment_id", a.ID, "user_id", u.ID, "error", err)
				continue
			}
			sent++
		}
	}
	return sent, nil
}
