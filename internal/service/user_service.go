package service

import (
	"context"
	"errors"
	"fmt"

	"fp-innova/internal/auth"
	"fp-innova/internal/models"
	"fp-innova/internal/repository"
	"fp-innova/pkg/validator"
)

// UserStore is the user persistence needed for administration
type UserStore interface {
	Create(ctx context.Context, user *models.User) error
	GetByID(ctx context.Context, id uint) (*models.User, error)
	List(ctx context.Context, filter models.UserFilter) ([]models.User, error)
	ListByIDs(ctx context.Context, ids []uint) ([]models.User, error)
	ListActiveByRoles(ctx context.Context, roles []string) ([]models.User, error)
	Update(ctx context.Context, user *models.User) error
	SetActive(ctx context.Context, id uint, active bool) error
}

// CreateUserRequest is an administrator-created account
type CreateUserRequest struct {
	Name         string `json:"name" validate:"required,notblank,max=255"`
	Email        string `json:"email" validate:"required,email"`
	Password     string `json:"password" validate:"required,min=8"`
	Role         string `json:"role" validate:"required,role"`
	CenterID     *uint  `json:"centerId"`
	DepartmentID *uint  `json:"departmentId"`
}

// UpdateUserRequest changes the administrative fields of a user
type UpdateUserRequest struct {
	Name         string `json:"name" validate:"required,notblank,max=255"`
	Email        string `json:"email" validate:"required,email"`
	Role         string `json:"role" validate:"required,role"`
	CenterID     *uint  `json:"centerId"`
	DepartmentID *uint  `json:"departmentId"`
}

// UpdateProfileRequest is what users may change about themselves
type UpdateProfileRequest struct {
	Name   string `json:"name" validate:"required,notblank,max=255"`
	Avatar string `json:"avatar" validate:"omitempty,url"`
}

// UserService handles user administration
type UserService struct {
	userRepo UserStore
	audit    *AuditService
	authSvc  *auth.Service
}

// NewUserService creates a new user service
func NewUserService(userRepo UserStore, audit *AuditService, authSvc *auth.Service) *UserService {
	return &UserService{userRepo: userRepo, audit: audit, authSvc: authSvc}
}

// List returns users matching filter
func (s *UserService) List(ctx context.Context, filter models.UserFilter) ([]models.User, error) {
	return s.userRepo.List(ctx, filter)
}

// Get returns one user
func (s *UserService) Get(ctx context.Context, id uint) (*models.User, error) {
	return s.userRepo.GetByID(ctx, id)
}

// Create creates an account. Coordinators cannot create administrators.
func (s *UserService) Create(ctx context.Context, actor *models.User, req CreateUserRequest) (*models.User, error) {
	req.Email = validator.SanitizeEmail(req.Email)
	req.Name = validator.SanitizeString(req.Name)
	if err := validator.ValidateStruct(req); err != nil {
		return nil, err
	}
	if req.Role == models.RoleAdmin && actor.Role != models.RoleAdmin {
		return nil, ErrForbidden
	}
	hash, err := s.authSvc.HashPassword(req.Password)
	if err != nil {
		return nil, err
	}
	user := &models.User{
		Name:         req.Name,
		Email:        req.Email,
		PasswordHash: hash,
		Role:         req.Role,
		CenterID:     req.CenterID,
		DepartmentID: req.DepartmentID,
		Active:       true,
	}
	if err := s.userRepo.Create(ctx, user); err != nil {
		return nil, mapUserWriteError(err)
	}
	s.audit.Log(ctx, &actor.ID, AuditCreate, "users", idString(user.ID),
		fmt.Sprintf("Created user %s with role %s", user.Email, user.Role), Diff(nil, user))
	return user, nil
}

// Update changes the administrative fields of a user. Only administrators may
// grant or revoke the admin role.
func (s *UserService) Update(ctx context.Context, actor *models.User, id uint, req UpdateUserRequest) (*models.User, error) {
	req.Email = validator.SanitizeEmail(req.Email)
	req.Name = validator.SanitizeString(req.Name)
	if err := validator.ValidateStruct(req); err != nil {
		return nil, err
	}
	user, err := s.userRepo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if actor.Role != models.RoleAdmin && (user.Role == models.RoleAdmin || req.Role == models.RoleAdmin) {
		return nil, ErrForbidden
	}
	before := *user
	user.Name = req.Name
	user.Email = req.Email
	user.Role = req.Role
	user.CenterID = req.CenterID
	user.DepartmentID = req.DepartmentID
	if err := s.userRepo.Update(ctx, user); err != nil {
		return nil, mapUserWriteError(err)
	}
	s.audit.Log(ctx, &actor.ID, AuditUpdate, "users", idString(user.ID), "Updated user", Diff(&before, user))
	return user, nil
}

// SetActive activates or deactivates a user. Users are never deleted.
func (s *UserService) SetActive(ctx context.Context, actor *models.User, id uint, active bool) error {
	if actor.ID == id && !active {
		return fieldError("active", "no puede desactivar su propia cuenta")
	}
	user, err := s.userRepo.GetByID(ctx, id)
	if err != nil {
		return err
	}
	if user.Role == models.RoleAdmin && actor.Role != models.RoleAdmin {
		return ErrForbidden
	}
	if err := s.userRepo.SetActive(ctx, id, active); err != nil {
		return err
	}
	action := AuditDeactivate
	if active {
		action = AuditUpdate
	}
	s.audit.Log(ctx, &actor.ID, action, "users", idString(id), fmt.Sprintf("Set active=%t", active),
		models.FieldChanges{"active": {Old: user.Active, New: active}})
	return nil
}

// UpdateProfile changes the current user's own profile
func (s *UserService) UpdateProfile(ctx context.Context, user *models.User, req UpdateProfileRequest) (*models.User, error) {
	req.Name = validator.SanitizeString(req.Name)
	if err := validator.ValidateStruct(req); err != nil {
		return nil, err
	}
	updated := *user
	updated.Name = req.Name
	updated.Avatar = req.Avatar
	if err := s.userRepo.Update(ctx, &updated); err != nil {
		return nil, mapUserWriteError(err)
	}
	return &updated, nil
}

func mapUserWriteError(err error) error {
	switch {
	case errors.Is(err, repository.ErrDuplicate):
		return ErrEmailTaken
	case errors.Is(err, repository.ErrInvalidRef):
		return fieldError("centerId", "el centro o departamento no existe")
	}
	return err
}
