package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"fp-innova/internal/models"
	"fp-innova/internal/repository"
	"fp-innova/internal/workflow"
	"fp-innova/pkg/validator"
)

// ConvocatoriaStore persists convocatorias and their categories
type ConvocatoriaStore interface {
	Create(ctx context.Context, c *models.Convocatoria) error
	GetByID(ctx context.Context, id uint) (*models.Convocatoria, error)
	LockForUpdate(ctx context.Context, id uint) (*models.Convocatoria, error)
	List(ctx context.Context, status string) ([]models.Convocatoria, error)
	Update(ctx context.Context, c *models.Convocatoria) error
	UpdateStatus(ctx context.Context, id uint, status string) error
	Delete(ctx context.Context, id uint) error
	ListCategories(ctx context.Context, convocatoriaID uint) ([]models.Category, error)
	GetCategory(ctx context.Context, id uint) (*models.Category, error)
	ReplaceCategories(ctx context.Context, convocatoriaID uint, categories []models.Category) error
}

// convocatoriaTransitions lists the allowed status changes
var convocatoriaTransitions = map[string][]string{
	models.ConvocatoriaDraft:  {models.ConvocatoriaActive},
	models.ConvocatoriaActive: {models.ConvocatoriaClosed},
	models.ConvocatoriaClosed: {models.ConvocatoriaArchived, models.ConvocatoriaActive},
}

// ConvocatoriaService manages grant calls, their categories and rubrics
type ConvocatoriaService struct {
	tx    TxRunner
	repo  ConvocatoriaStore
	audit *AuditService
}

// NewConvocatoriaService creates a new convocatoria service
func NewConvocatoriaService(tx TxRunner, repo ConvocatoriaStore, audit *AuditService) *ConvocatoriaService {
	return &ConvocatoriaService{tx: tx, repo: repo, audit: audit}
}

// List returns convocatorias. Users without edit rights only see active and
// closed ones.
func (s *ConvocatoriaService) List(ctx context.Context, status string, includeDrafts bool) ([]models.Convocatoria, error) {
	all, err := s.repo.List(ctx, status)
	if err != nil {
		return nil, err
	}
	if includeDrafts {
		return all, nil
	}
	visible := make([]models.Convocatoria, 0, len(all))
	for _, c := range all {
		if c.Status == models.ConvocatoriaActive || c.Status == models.ConvocatoriaClosed {
			visible = append(visible, c)
		}
	}
	return visible, nil
}

// Get returns a convocatoria with its categories
func (s *ConvocatoriaService) Get(ctx context.Context, id uint) (*models.Convocatoria, error) {
	return s.repo.GetByID(ctx, id)
}

// validateConvocatoria checks the struct tags and every category rubric, and
// fills the derived rubric fields
func validateConvocatoria(c *models.Convocatoria) error {
	c.Title = validator.SanitizeString(c.Title)
	if err := validator.ValidateStruct(c); err != nil {
		return err
	}
	return validateCategories(c.Categories)
}

func validateCategories(categories []models.Category) error {
	for i := range categories {
		cat := &categories[i]
		if err := validator.ValidateStruct(cat); err != nil {
			return err
		}
		if err := workflow.ValidateRubric(&cat.Rubric); err != nil {
			return fieldError(fmt.Sprintf("categories[%d].rubric", i), err.Error())
		}
		workflow.NormalizeRubric(&cat.Rubric)
		if cat.Requirements == nil {
			cat.Requirements = models.StringList{}
		}
	}
	return nil
}

// Create stores a new convocatoria in draft status
func (s *ConvocatoriaService) Create(ctx context.Context, actor *models.User, c *models.Convocatoria) (*models.Convocatoria, error) {
	c.Status = models.ConvocatoriaDraft
	c.CreatedBy = &actor.ID
	if err := validateConvocatoria(c); err != nil {
		return nil, err
	}
	err := s.tx.WithinTx(ctx, func(ctx context.Context) error {
		return s.repo.Create(ctx, c)
	})
	if err != nil {
		return nil, err
	}
	s.audit.Log(ctx, &actor.ID, AuditCreate, "convocatorias", idString(c.ID), "Created convocatoria "+c.Title, nil)
	slog.Info("Convocatoria created", "convocatoria_id", c.ID, "user_id", actor.ID)
	return c, nil
}

// Update replaces the fields, phases and categories. Status only changes
// through ChangeStatus.
func (s *ConvocatoriaService) Update(ctx context.Context, actor *models.User, id uint, c *models.Convocatoria) (*models.Convocatoria, error) {
	before, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	c.ID = id
	c.Status = before.Status
	if err := validateConvocatoria(c); err != nil {
		return nil, err
	}
	err = s.tx.WithinTx(ctx, func(ctx context.Context) error {
		if err := s.repo.Update(ctx, c); err != nil {
			return err
		}
		return s.repo.ReplaceCategories(ctx, id, c.Categories)
	})
	if err != nil {
		if errors.Is(err, repository.ErrReferenced) {
			return nil, fmt.Errorf("%w: a removed category still has projects", ErrInUse)
		}
		return nil, err
	}
	updated, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	s.audit.Log(ctx, &actor.ID, AuditUpdate, "convocatorias", idString(id), "Updated convocatoria "+updated.Title, Diff(before, updated))
	return updated, nil
}

// ChangeStatus moves a convocatoria along draft -> active -> closed -> archived.
// A closed convocatoria may be reopened.
func (s *ConvocatoriaService) ChangeStatus(ctx context.Context, actor *models.User, id uint, status string) (*models.Convocatoria, error) {
	c, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	allowed := false
	for _, next := range convocatoriaTransitions[c.Status] {
		if next == status {
			allowed = true
		}
	}
	if !allowed {
		return nil, fmt.Errorf("%w: convocatoria %s to %s", ErrInvalidTransition, c.Status, status)
	}
	if status == models.ConvocatoriaActive && len(c.Categories) == 0 {
		return nil, fmt.Errorf("%w: a convocatoria needs at least one category to open", ErrPreconditionFailed)
	}
	if err := s.repo.UpdateStatus(ctx, id, status); err != nil {
		return nil, err
	}
	s.audit.Log(ctx, &actor.ID, AuditUpdate, "convocatorias", idString(id), "Changed status",
		models.FieldChanges{"status": {Old: c.Status, New: status}})
	slog.Info("Convocatoria status changed", "convocatoria_id", id, "from", c.Status, "to", status)
	c.Status = status
	return c, nil
}

// Delete removes a convocatoria that has no projects
func (s *ConvocatoriaService) Delete(ctx context.Context, actor *models.User, id uint) error {
	if err := s.repo.Delete(ctx, id); err != nil {
		if errors.Is(err, repository.ErrReferenced) {
			return fmt.Errorf("%w: the convocatoria has projects", ErrInUse)
		}
		return err
	}
	s.audit.Log(ctx, &actor.ID, AuditDelete, "convocatorias", idString(id), "Deleted convocatoria", nil)
	return nil
}

// ListCategories returns the ordered categories of a convocatoria
func (s *ConvocatoriaService) ListCategories(ctx context.Context, convocatoriaID uint) ([]models.Category, error) {
	if _, err := s.repo.GetByID(ctx, convocatoriaID); err != nil {
		return nil, err
	}
	return s.repo.ListCategories(ctx, convocatoriaID)
}

// ReplaceCategories validates the rubrics and stores the ordered list
func (s *ConvocatoriaService) ReplaceCategories(ctx context.Context, actor *models.User, convocatoriaID uint, categories []models.Category) ([]models.Category, error) {
	if err := validateCategories(categories); err != nil {
		return nil, err
	}
	err := s.tx.WithinTx(ctx, func(ctx context.Context) error {
		if _, err := s.repo.LockForUpdate(ctx, convocatoriaID); err != nil {
			return err
		}
		return s.repo.ReplaceCategories(ctx, convocatoriaID, categories)
	})
	if err != nil {
		if errors.Is(err, repository.ErrReferenced) {
			return nil, fmt.Errorf("%w: a removed category still has projects", ErrInUse)
		}
		return nil, err
	}
	s.audit.Log(ctx, &actor.ID, AuditUpdate, "convocatorias", idString(convocatoriaID),
		fmt.Sprintf("Replaced categories (%d)", len(categories)), nil)
	return s.repo.ListCategories(ctx, convocatoriaID)
}
