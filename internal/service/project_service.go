package service

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"fp-innova/internal/models"
	"fp-innova/internal/rbac"
	"fp-innova/internal/repository"
	"fp-innova/internal/storage"
	"fp-innova/internal/workflow"
	"fp-innova/pkg/validator"
)

// ProjectStore persists projects and their child collections
type ProjectStore interface {
	Create(ctx context.Context, p *models.Project) error
	GetByID(ctx context.Context, id uint) (*models.Project, error)
	GetForUpdate(ctx context.Context, id uint) (*models.Project, error)
	List(ctx context.Context, filter models.ProjectFilter) ([]models.Project, error)
	Update(ctx context.Context, p *models.Project) error
	UpdateStatus(ctx context.Context, id uint, status models.ProjectStatus) error
	UpdateScore(ctx context.Context, id uint, score, weighted *float64) error
	Delete(ctx context.Context, id uint) error
	CountByCenter(ctx context.Context, convocatoriaID, centerID, excludeID uint) (int, error)
	SetPresenters(ctx context.Context, projectID uint, userIDs []uint) error
	ReplaceReviewers(ctx context.Context, projectID uint, userIDs []uint) ([]uint, error)
	UpsertReviewer(ctx context.Context, projectID, userID uint, hasReviewed bool) error
	SetHasReviewed(ctx context.Context, projectID, userID uint, hasReviewed bool) error
	AddDocument(ctx context.Context, d *models.ProjectDocument) error
	GetDocument(ctx context.Context, projectID, documentID uint) (*models.ProjectDocument, error)
	ListDocuments(ctx context.Context, projectID uint) ([]models.ProjectDocument, error)
	SetDocumentStatus(ctx context.Context, projectID, documentID uint, status string) error
	DeleteDocument(ctx context.Context, projectID, documentID uint) error
}

// ReviewCounter counts final and draft reviews of a project
type ReviewCounter interface {
	CountByProject(ctx context.Context, projectID uint) (final, draft int, err error)
}

// CreateProjectRequest is a new project application
type CreateProjectRequest struct {
	ConvocatoriaID       uint                         `json:"convocatoriaId" validate:"required"`
	CategoryID           uint                         `json:"categoryId" validate:"required"`
	Title                string                       `json:"title" validate:"required,notblank,max=255"`
	Description          string                       `json:"description" validate:"required,notblank"`
	RequestedAmount      float64                      `json:"requestedAmount" validate:"gt=0"`
	CenterID             uint                         `json:"centerId"`
	DepartmentID         *uint                        `json:"departmentId"`
	Presenters           []uint                       `json:"presenters"`
	CollaboratingCenters []models.CollaboratingCenter `json:"collaboratingCenters" validate:"dive"`
}

// UpdateProjectRequest changes the editable fields of a project
type UpdateProjectRequest struct {
	Title                string                       `json:"title" validate:"required,notblank,max=255"`
	Description          string                       `json:"description" validate:"required,notblank"`
	RequestedAmount      float64                      `json:"requestedAmount" validate:"gt=0"`
	DepartmentID         *uint                        `json:"departmentId"`
	Presenters           []uint                       `json:"presenters"`
	CollaboratingCenters []models.CollaboratingCenter `json:"collaboratingCenters" validate:"dive"`
}

// ProjectDetail is a project with its review progress
type ProjectDetail struct {
	*models.Project
	ReviewStatus *models.ReviewCompletion `json:"reviewStatus,omitempty"`
}

// DocumentContent is an open document ready to stream
type DocumentContent struct {
	Document *models.ProjectDocument
	Body     io.ReadCloser
}

// ProjectService manages project applications and their documents
type ProjectService struct {
	tx            TxRunner
	projects      ProjectStore
	convocatorias ConvocatoriaStore
	reviews       ReviewCounter
	files         storage.Store
	notifier      Notifier
	policy        PermissionChecker
	audit         *AuditService
	now           func() time.Time
}

// NewProjectService creates a new project service
func NewProjectService(tx TxRunner, projects ProjectStore, convocatorias ConvocatoriaStore, reviews ReviewCounter,
	files storage.Store, notifier Notifier, policy PermissionChecker, audit *AuditService) *ProjectService {
	return &ProjectService{
		tx:            tx,
		projects:      projects,
		convocatorias: convocatorias,
		reviews:       reviews,
		files:         files,
		notifier:      notifier,
		policy:        policy,
		audit:         audit,
		now:           time.Now,
	}
}

// List returns the projects visible to actor. Presenters only see their own
// projects, reviewers only the assigned ones and guests only approved ones.
func (s *ProjectService) List(ctx context.Context, actor *models.User, filter models.ProjectFilter) ([]models.Project, error) {
	switch actor.Role {
	case models.RolePresenter:
		filter.PresenterID = &actor.ID
	case models.RoleReviewer:
		filter.ReviewerID = &actor.ID
	case models.RoleGuest:
		filter.Status = models.ProjectApproved
	}
	if filter.Limit <= 0 || filter.Limit > 200 {
		filter.Limit = 50
	}
	projects, err := s.projects.List(ctx, filter)
	if err != nil {
		return nil, err
	}
	for i := range projects {
		setDocumentURLs(&projects[i])
	}
	return projects, nil
}

// Get returns a project with its review progress
func (s *ProjectService) Get(ctx context.Context, actor *models.User, id uint) (*ProjectDetail, error) {
	p, err := s.visible(ctx, actor, id)
	if err != nil {
		return nil, err
	}
	completion, err := reviewCompletion(ctx, s.reviews, p)
	if err != nil {
		return nil, err
	}
	return &ProjectDetail{Project: p, ReviewStatus: completion}, nil
}

func (s *ProjectService) visible(ctx context.Context, actor *models.User, id uint) (*models.Project, error) {
	p, err := s.projects.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if !canViewProject(actor, p) {
		// hide existence from users who may not see it
		return nil, repository.ErrNotFound
	}
	setDocumentURLs(p)
	return p, nil
}

// Create stores a draft project. The category is copied onto the project so
// later rubric changes do not affect it.
func (s *ProjectService) Create(ctx context.Context, actor *models.User, req CreateProjectRequest) (*models.Project, error) {
	if !s.policy.HasPermission(actor.Role, rbac.ActionCreate, rbac.ResourceProjects) {
		return nil, ErrForbidden
	}
	req.Title = validator.SanitizeString(req.Title)
	if err := validator.ValidateStruct(req); err != nil {
		return nil, err
	}
	if actor.Role == models.RolePresenter || req.CenterID == 0 {
		if actor.CenterID == nil {
			return nil, fieldError("centerId", "es obligatorio indicar el centro")
		}
		req.CenterID = *actor.CenterID
	}

	p := &models.Project{
		ConvocatoriaID:       req.ConvocatoriaID,
		CategoryID:           req.CategoryID,
		Title:                req.Title,
		Description:          req.Description,
		RequestedAmount:      req.RequestedAmount,
		CenterID:             req.CenterID,
		DepartmentID:         req.DepartmentID,
		Status:               models.ProjectDraft,
		CreatedBy:            actor.ID,
		Presenters:           withCreator(actor, req.Presenters),
		CollaboratingCenters: req.CollaboratingCenters,
	}

	err := s.tx.WithinTx(ctx, func(ctx context.Context) error {
		conv, err := s.convocatorias.LockForUpdate(ctx, req.ConvocatoriaID)
		if err != nil {
			if errors.Is(err, repository.ErrNotFound) {
				return fieldError("convocatoriaId", "la convocatoria no existe")
			}
			return err
		}
		if conv.Status != models.ConvocatoriaActive {
			return fmt.Errorf("%w: convocatoria %d is %s", ErrConvocatoriaNotOpen, conv.ID, conv.Status)
		}
		category, err := s.convocatorias.GetCategory(ctx, req.CategoryID)
		if err != nil || category.ConvocatoriaID != conv.ID {
			return fieldError("categoryId", "la categoría no pertenece a la convocatoria")
		}
		if err := checkBudget(category, req.RequestedAmount); err != nil {
			return err
		}
		if err := s.checkQuota(ctx, conv, req.CenterID, 0); err != nil {
			return err
		}
		p.Category = models.CategorySnapshot(*category)
		return s.projects.Create(ctx, p)
	})
	if err != nil {
		return nil, mapProjectWriteError(err)
	}

	s.audit.Log(ctx, &actor.ID, AuditCreate, "projects", idString(p.ID), "Created project "+p.Title, nil)
	slog.Info("Project created", "project_id", p.ID, "convocatoria_id", p.ConvocatoriaID, "user_id", actor.ID)
	if others := without(p.Presenters, actor.ID); len(others) > 0 {
		s.notifier.Notify(ctx, others, models.NotificationProjectAssigned, "Nuevo proyecto",
			fmt.Sprintf("%s le ha añadido como presentador del proyecto \"%s\".", actor.Name, p.Title),
			projectLink(p.ID))
	}
	return s.projects.GetByID(ctx, p.ID)
}

func withCreator(actor *models.User, presenters []uint) []uint {
	return dedupe(append([]uint{actor.ID}, presenters...))
}

func without(ids []uint, id uint) []uint {
	out := make([]uint, 0, len(ids))
	for _, v := range ids {
		if v != id {
			out = append(out, v)
		}
	}
	return out
}

func checkBudget(category *models.Category, amount float64) error {
	if amount <= 0 || amount > category.TotalBudget {
		return fieldError("requestedAmount",
			fmt.Sprintf("el importe debe ser mayor que 0 y no superar %.2f", category.TotalBudget))
	}
	return nil
}

// checkQuota fails when the center already holds the maximum number of
// projects in the convocatoria, not counting excludeID
func (s *ProjectService) checkQuota(ctx context.Context, conv *models.Convocatoria, centerID, excludeID uint) error {
	n, err := s.projects.CountByCenter(ctx, conv.ID, centerID, excludeID)
	if err != nil {
		return err
	}
	if n >= conv.MaxProjectsPerCenter {
		return fmt.Errorf("%w: center %d already has %d of %d projects", ErrQuotaExceeded, centerID, n, conv.MaxProjectsPerCenter)
	}
	return nil
}

// checkEdit fails with ErrForbidden when the role may not edit projects and
// with ErrNotEditable when this project is out of reach. Presenters may only
// edit their own projects while they are editable.
func (s *ProjectService) checkEdit(actor *models.User, p *models.Project) error {
	if !s.policy.HasPermission(actor.Role, rbac.ActionEdit, rbac.ResourceProjects) {
		return ErrForbidden
	}
	if isManager(actor) || (p.IsPresenter(actor.ID) && workflow.Editable(p.Status)) {
		return nil
	}
	return fmt.Errorf("%w: project %d is %s", ErrNotEditable, p.ID, p.Status)
}

// Update changes the editable fields of a project
func (s *ProjectService) Update(ctx context.Context, actor *models.User, id uint, req UpdateProjectRequest) (*models.Project, error) {
	req.Title = validator.SanitizeString(req.Title)
	if err := validator.ValidateStruct(req); err != nil {
		return nil, err
	}
	var before models.Project
	err := s.tx.WithinTx(ctx, func(ctx context.Context) error {
		p, err := s.projects.GetForUpdate(ctx, id)
		if err != nil {
			return err
		}
		if !canViewProject(actor, p) {
			return repository.ErrNotFound
		}
		if err := s.checkEdit(actor, p); err != nil {
			return err
		}
		before = *p
		category := models.Category(p.Category)
		if err := checkBudget(&category, req.RequestedAmount); err != nil {
			return err
		}
		p.Title = req.Title
		p.Description = req.Description
		p.RequestedAmount = req.RequestedAmount
		p.DepartmentID = req.DepartmentID
		p.CollaboratingCenters = req.CollaboratingCenters
		if err := s.projects.Update(ctx, p); err != nil {
			return err
		}
		if req.Presenters != nil {
			presenters := dedupe(req.Presenters)
			if actor.Role == models.RolePresenter {
				presenters = dedupe(append([]uint{actor.ID}, presenters...))
			}
			return s.projects.SetPresenters(ctx, id, presenters)
		}
		return nil
	})
	if err != nil {
		return nil, mapProjectWriteError(err)
	}
	updated, err := s.projects.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	s.audit.Log(ctx, &actor.ID, AuditUpdate, "projects", idString(id), "Updated project", Diff(&before, updated))
	setDocumentURLs(updated)
	return updated, nil
}

// Submit moves a draft to submitted. The convocatoria must be active, inside
// its submission phase, and the center quota is checked again.
func (s *ProjectService) Submit(ctx context.Context, actor *models.User, id uint) (*models.Project, error) {
	var change *statusChange
	err := s.tx.WithinTx(ctx, func(ctx context.Context) error {
		p, err := s.projects.GetForUpdate(ctx, id)
		if err != nil {
			return err
		}
		if !canViewProject(actor, p) {
			return repository.ErrNotFound
		}
		if !p.IsPresenter(actor.ID) && actor.Role != models.RoleAdmin {
			return ErrForbidden
		}
		conv, err := s.convocatorias.LockForUpdate(ctx, p.ConvocatoriaID)
		if err != nil {
			return err
		}
		if conv.Status != models.ConvocatoriaActive || !conv.Phases.Submission.Contains(s.now()) {
			return fmt.Errorf("%w: submission phase of convocatoria %d is closed", ErrConvocatoriaNotOpen, conv.ID)
		}
		if err := s.checkQuota(ctx, conv, p.CenterID, p.ID); err != nil {
			return err
		}
		change, err = applyTransition(ctx, s.projects, p, workflow.EventSubmit, workflow.Conditions{ActorRole: actor.Role})
		return err
	})
	if err != nil {
		return nil, err
	}
	s.audit.Log(ctx, &actor.ID, AuditUpdate, "projects", idString(id), "Submitted project",
		models.FieldChanges{"status": {Old: models.ProjectDraft, New: models.ProjectSubmitted}})
	announceStatus(ctx, s.notifier, change)
	return s.projects.GetByID(ctx, id)
}

// Decide approves, rejects or reopens a reviewed project
func (s *ProjectService) Decide(ctx context.Context, actor *models.User, id uint, event workflow.Event) (*models.Project, error) {
	switch event {
	case workflow.EventApprove, workflow.EventReject, workflow.EventReopen:
	default:
		return nil, fmt.Errorf("%w: %s is not a decision", ErrInvalidTransition, event)
	}
	var change *statusChange
	err := s.tx.WithinTx(ctx, func(ctx context.Context) error {
		p, err := s.projects.GetForUpdate(ctx, id)
		if err != nil {
			return err
		}
		final, _, err := s.reviews.CountByProject(ctx, id)
		if err != nil {
			return err
		}
		change, err = applyTransition(ctx, s.projects, p, event, workflow.Conditions{
			ReviewerCount:    len(p.Reviewers),
			CompletedReviews: final,
			MinCorrections:   p.Category.MinCorrections,
			ActorRole:        actor.Role,
			ActorCanApprove:  s.policy.HasPermission(actor.Role, rbac.ActionApprove, rbac.ResourceProjects),
		})
		return err
	})
	if err != nil {
		return nil, err
	}
	if change != nil {
		s.audit.Log(ctx, &actor.ID, AuditUpdate, "projects", idString(id), "Project decision: "+string(event),
			models.FieldChanges{"status": {Old: change.from, New: change.to}})
	}
	announceStatus(ctx, s.notifier, change)
	return s.projects.GetByID(ctx, id)
}

// Delete removes a draft project and its stored files. Only presenters of the
// project and administrators may delete.
func (s *ProjectService) Delete(ctx context.Context, actor *models.User, id uint) error {
	p, err := s.projects.GetByID(ctx, id)
	if err != nil {
		return err
	}
	if actor.Role != models.RoleAdmin && !(p.IsPresenter(actor.ID) || p.CreatedBy == actor.ID) {
		return ErrForbidden
	}
	if p.Status != models.ProjectDraft {
		return fmt.Errorf("%w: only drafts can be deleted", ErrNotEditable)
	}
	if err := s.projects.Delete(ctx, id); err != nil {
		return err
	}
	for _, d := range p.Documents {
		if err := s.files.Delete(ctx, d.StorageKey); err != nil {
			slog.Warn("Failed to remove project file", "project_id", id, "key", d.StorageKey, "error", err)
		}
	}
	s.audit.Log(ctx, &actor.ID, AuditDelete, "projects", idString(id), "Deleted project "+p.Title, nil)
	return nil
}

// ListDocuments returns the documents of a project
func (s *ProjectService) ListDocuments(ctx context.Context, actor *models.User, projectID uint) ([]models.ProjectDocument, error) {
	p, err := s.visible(ctx, actor, projectID)
	if err != nil {
		return nil, err
	}
	return p.Documents, nil
}

// AddDocument stores an uploaded file and attaches it to the project
func (s *ProjectService) AddDocument(ctx context.Context, actor *models.User, projectID uint, name, contentType string, r io.Reader) (*models.ProjectDocument, error) {
	p, err := s.visible(ctx, actor, projectID)
	if err != nil {
		return nil, err
	}
	if err := s.checkEdit(actor, p); err != nil {
		return nil, err
	}
	return s.storeDocument(ctx, actor, projectID, name, contentType, r)
}

// storeDocument saves the file and inserts the document row, removing the
// file again if the row cannot be written
func (s *ProjectService) storeDocument(ctx context.Context, actor *models.User, projectID uint, name, contentType string, r io.Reader) (*models.ProjectDocument, error) {
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
	d := &models.ProjectDocument{
		ProjectID:  projectID,
		Name:       name,
		Type:       contentType,
		StorageKey: key,
		Size:       size,
		UploadedBy: &actor.ID,
	}
	if err := s.projects.AddDocument(ctx, d); err != nil {
		if rmErr := s.files.Delete(ctx, key); rmErr != nil {
			slog.Warn("Failed to remove orphaned upload", "key", key, "error", rmErr)
		}
		return nil, err
	}
	setDocumentURL(d)
	slog.Info("Project document stored", "project_id", projectID, "document_id", d.ID, "size", size)
	return d, nil
}

// OpenDocument opens a stored document for download
func (s *ProjectService) OpenDocument(ctx context.Context, actor *models.User, projectID, documentID uint) (*DocumentContent, error) {
	if _, err := s.visible(ctx, actor, projectID); err != nil {
		return nil, err
	}
	d, err := s.projects.GetDocument(ctx, projectID, documentID)
	if err != nil {
		return nil, err
	}
	body, err := s.files.Open(ctx, d.StorageKey)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil, repository.ErrNotFound
		}
		return nil, err
	}
	return &DocumentContent{Document: d, Body: body}, nil
}

// SetDocumentStatus marks a document pending, approved or rejected. Managers
// and the assigned reviewers may do so.
func (s *ProjectService) SetDocumentStatus(ctx context.Context, actor *models.User, projectID, documentID uint, status string) (*models.ProjectDocument, error) {
	if err := validator.ValidateVar(status, "oneof=pending approved rejected"); err != nil {
		return nil, fieldError("status", "estado de documento no válido")
	}
	p, err := s.visible(ctx, actor, projectID)
	if err != nil {
		return nil, err
	}
	if _, assigned := p.Reviewer(actor.ID); !assigned && !isManager(actor) {
		return nil, ErrForbidden
	}
	if err := s.projects.SetDocumentStatus(ctx, projectID, documentID, status); err != nil {
		return nil, err
	}
	d, err := s.projects.GetDocument(ctx, projectID, documentID)
	if err != nil {
		return nil, err
	}
	setDocumentURL(d)
	return d, nil
}

// DeleteDocument removes a document from a draft project. Administrators may
// remove documents in any status.
func (s *ProjectService) DeleteDocument(ctx context.Context, actor *models.User, projectID, documentID uint) error {
	p, err := s.visible(ctx, actor, projectID)
	if err != nil {
		return err
	}
	if actor.Role != models.RoleAdmin && !(p.IsPresenter(actor.ID) && p.Status == models.ProjectDraft) {
		return fmt.Errorf("%w: documents can only be removed from drafts", ErrNotEditable)
	}
	d, err := s.projects.GetDocument(ctx, projectID, documentID)
	if err != nil {
		return err
	}
	if err := s.projects.DeleteDocument(ctx, projectID, documentID); err != nil {
		if errors.Is(err, repository.ErrReferenced) {
			return fmt.Errorf("%w: the document is part of an amendment", ErrInUse)
		}
		return err
	}
	if err := s.files.Delete(ctx, d.StorageKey); err != nil {
		slog.Warn("Failed to remove project file", "project_id", projectID, "key", d.StorageKey, "error", err)
	}
	return nil
}

func setDocumentURL(d *models.ProjectDocument) {
	d.URL = fmt.Sprintf("/api/projects/%d/documents/%d", d.ProjectID, d.ID)
}

func setDocumentURLs(p *models.Project) {
	for i := range p.Documents {
		setDocumentURL(&p.Documents[i])
	}
}

func mapProjectWriteError(err error) error {
	if errors.Is(err, repository.ErrInvalidRef) {
		return fieldError("presenters", "algún presentador, centro o departamento no existe")
	}
	return err
}
