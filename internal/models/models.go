package models

import (
	"time"
)

// Role names
const (
	RoleAdmin       = "admin"
	RoleCoordinator = "coordinator"
	RolePresenter   = "presenter"
	RoleReviewer    = "reviewer"
	RoleGuest       = "guest"
)

// Roles lists every role in display order
var Roles = []string{RoleAdmin, RoleCoordinator, RolePresenter, RoleReviewer, RoleGuest}

// IsValidRole reports whether role is one of Roles
func IsValidRole(role string) bool {
	for _, r := range Roles {
		if r == role {
			return true
		}
	}
	return false
}

// User represents a user in the system. Users are deactivated, never deleted.
type User struct {
	ID                      uint       `json:"id" db:"id"`
	Name                    string     `json:"name" db:"name"`
	Email                   string     `json:"email" db:"email"`
	PasswordHash            string     `json:"-" db:"password_hash"`
	Role                    string     `json:"role" db:"role"`
	Avatar                  string     `json:"avatar,omitempty" db:"avatar"`
	CenterID                *uint      `json:"centerId,omitempty" db:"center_id"`
	DepartmentID            *uint      `json:"departmentId,omitempty" db:"department_id"`
	Active                  bool       `json:"active" db:"active"`
	TwoFactorEnabled        bool       `json:"twoFactorEnabled" db:"two_factor_enabled"`
	TwoFactorSecret         *string    `json:"-" db:"two_factor_secret"`
	RecoveryCodeHash        *string    `json:"-" db:"recovery_code_hash"`
	TwoFactorFailedAttempts int        `json:"-" db:"two_factor_failed_attempts"`
	TwoFactorLockedUntil    *time.Time `json:"-" db:"two_factor_locked_until"`
	TwoFactorLastStep       *int64     `json:"-" db:"two_factor_last_step"`
	LastLogin               *time.Time `json:"lastLogin,omitempty" db:"last_login"`
	CreatedAt               time.Time  `json:"createdAt" db:"created_at"`
	UpdatedAt               time.Time  `json:"updatedAt" db:"updated_at"`
}

// TwoFactorState is the derived state of the second factor
type TwoFactorState string

const (
	TwoFactorDisabled TwoFactorState = "disabled"
	TwoFactorPending  TwoFactorState = "pending"
	TwoFactorEnabled  TwoFactorState = "enabled"
)

// TwoFactorState derives the 2FA state from the stored columns
func (u *User) TwoFactorState() TwoFactorState {
	switch {
	case u.TwoFactorEnabled:
		return TwoFactorEnabled
	case u.TwoFactorSecret != nil && *u.TwoFactorSecret != "":
		return TwoFactorPending
	default:
		return TwoFactorDisabled
	}
}

// UserFilter narrows user listings
type UserFilter struct {
	Role     string
	CenterID *uint
	Active   *bool
	Search   string
	Limit    int
	Offset   int
}

// Session represents a signed-in browser session. JTI is the token id.
type Session struct {
	ID             uint      `json:"id" db:"id"`
	UserID         uint      `json:"userId" db:"user_id"`
	JTI            string    `json:"-" db:"jti"`
	IPAddress      string    `json:"ipAddress,omitempty" db:"ip_address"`
	UserAgent      string    `json:"userAgent,omitempty" db:"user_agent"`
	ExpiresAt      time.Time `json:"expiresAt" db:"expires_at"`
	LastActivityAt time.Time `json:"lastActivityAt" db:"last_activity_at"`
	CreatedAt      time.Time `json:"createdAt" db:"created_at"`
	Current        bool      `json:"current" db:"-"`
}

// Verification code statuses
const (
	CodeStatusActive  = "active"
	CodeStatusUsed    = "used"
	CodeStatusExpired = "expired"
	CodeStatusRevoked = "revoked"
)

// VerificationCode is an invite code granting a role at registration
type VerificationCode struct {
	ID          uint      `json:"id" db:"id"`
	Code        string    `json:"code" db:"code"`
	Role        string    `json:"role" db:"role"`
	Status      string    `json:"status" db:"status"`
	MaxUses     int       `json:"maxUses" db:"max_uses"`
	CurrentUses int       `json:"currentUses" db:"current_uses"`
	ExpiresAt   time.Time `json:"expiresAt" db:"expires_at"`
	CreatedBy   *uint     `json:"createdBy,omitempty" db:"created_by"`
	CreatedAt   time.Time `json:"createdAt" db:"created_at"`
	UpdatedAt   time.Time `json:"updatedAt" db:"updated_at"`
}

// Usable reports whether the code can still register a user at now
func (c *VerificationCode) Usable(now time.Time) bool {
	return c.Status == CodeStatusActive && now.Before(c.ExpiresAt) && c.CurrentUses < c.MaxUses
}

// AuditLog represents an audit log entry
type AuditLog struct {
	ID         uint         `json:"id" db:"id"`
	UserID     *uint        `json:"userId,omitempty" db:"user_id"`
	UserName   *string      `json:"userName,omitempty" db:"user_name"`
	Action     string       `json:"action" db:"action"`
	Resource   string       `json:"resource" db:"resource"`
	ResourceID string       `json:"resourceId,omitempty" db:"resource_id"`
	Details    string       `json:"details,omitempty" db:"details"`
	Changes    FieldChanges `json:"changes,omitempty" db:"changes"`
	IPAddress  string       `json:"ipAddress,omitempty" db:"ip_address"`
	UserAgent  string       `json:"userAgent,omitempty" db:"user_agent"`
	CreatedAt  time.Time    `json:"createdAt" db:"created_at"`
}

// FieldChange records one modified field
type FieldChange struct {
	Old any `json:"old"`
	New any `json:"new"`
}

// FieldChanges maps field name to its change
type FieldChanges map[string]FieldChange

// AuditFilter narrows audit log listings
type AuditFilter struct {
	Resource   string
	ResourceID string
	UserID     *uint
	Limit      int
	Offset     int
}
