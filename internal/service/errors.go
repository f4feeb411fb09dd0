package service

import (
	"context"
	"errors"

	"fp-innova/internal/workflow"
	"fp-innova/pkg/validator"
)

var (
	ErrInvalidCredentials      = errors.New("invalid credentials")
	ErrUserInactive            = errors.New("user account is inactive")
	ErrSessionInvalid          = errors.New("session is invalid or expired")
	ErrForbidden               = errors.New("forbidden")
	ErrEmailTaken              = errors.New("email already registered")
	ErrInvalidVerificationCode = errors.New("verification code is invalid, expired or exhausted")
	ErrInvalidTwoFactorCode    = errors.New("invalid two-factor code")
	ErrTwoFactorLocked         = errors.New("too many failed two-factor attempts")
	ErrTwoFactorState          = errors.New("operation not allowed in the current two-factor state")
	ErrDuplicateCode           = errors.New("code already in use")
	ErrInUse                   = errors.New("record is still referenced")
	ErrConvocatoriaNotOpen     = errors.New("convocatoria is not accepting submissions")
	ErrQuotaExceeded           = errors.New("center project quota exceeded")
	ErrNotEditable             = errors.New("project cannot be modified in its current status")
	ErrReviewFinalized         = errors.New("review is already finalized")
	ErrAmendmentExpired        = errors.New("amendment deadline has passed")
	ErrAmendmentClosed         = errors.New("amendment entry is already completed")
	ErrMessagingNotAllowed     = errors.New("messaging between these roles is not allowed")
	ErrVersionConflict         = errors.New("settings were modified by someone else")

	// ErrInvalidTransition and ErrPreconditionFailed come from the state machine
	ErrInvalidTransition  = workflow.ErrInvalidTransition
	ErrPreconditionFailed = workflow.ErrPreconditionFailed
)

// fieldError builds a single-field validation error
func fieldError(field, message string) error {
	return validator.Errors{field: message}
}

// TxRunner runs fn inside a database transaction carried by ctx
type TxRunner interface {
	WithinTx(ctx context.Context, fn func(ctx context.Context) error) error
}

// PermissionChecker answers RBAC questions
type PermissionChecker interface {
	HasPermission(role, action, resource string) bool
}

// Notifier sends in-app and email notifications. Delivery failures are
// logged, never returned.
type Notifier interface {
	Notify(ctx context.Context, userIDs []uint, notificationType, title, message, link string)
}
