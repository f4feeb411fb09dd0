// Package rbac holds the role permission table and the permission check.
package rbac

import (
	"sort"
	"sync/atomic"

	"fp-innova/internal/models"
)

// Actions
const (
	ActionView              = "view"
	ActionCreate            = "create"
	ActionEdit              = "edit"
	ActionDelete            = "delete"
	ActionApprove           = "approve"
	ActionAssign            = "assign"
	ActionReview            = "review"
	ActionRequestAmendments = "request_amendments"
	ActionUploadAmendments  = "upload_amendments"
	ActionManageSettings    = "manage_settings"
	ActionManageCodes       = "manage_codes"
	ActionManageMasterData  = "manage_master_data"
	ActionExport            = "export"
)

// Resources
const (
	ResourceProjects      = "projects"
	ResourceUsers         = "users"
	ResourceConvocatorias = "convocatorias"
	ResourceReviews       = "reviews"
	ResourceAmendments    = "amendments"
	ResourceSettings      = "settings"
	ResourceSystem        = "system"
	ResourceReports       = "reports"
)

// Table maps role to resource to the allowed actions
type Table map[string]map[string][]string

var defaultTable = Table{
	models.RoleAdmin: {
		ResourceProjects:      {ActionView, ActionCreate, ActionEdit, ActionDelete, ActionApprove, ActionAssign},
		ResourceUsers:         {ActionView, ActionCreate, ActionEdit, ActionDelete},
		ResourceConvocatorias: {ActionView, ActionCreate, ActionEdit, ActionDelete},
		ResourceReviews:       {ActionView, ActionCreate, ActionEdit, ActionDelete, ActionReview, ActionRequestAmendments},
		ResourceSettings:      {ActionView, ActionEdit, ActionManageSettings},
		ResourceSystem:        {ActionView, ActionManageCodes, ActionManageMasterData},
		ResourceReports:       {ActionView, ActionExport},
	},
	models.RoleCoordinator: {
		ResourceProjects: {ActionView, ActionCreate, ActionEdit, ActionApprove, ActionAssign},
		ResourceUsers:    {ActionView, ActionCreate, ActionEdit},
		ResourceReviews:  {ActionView, ActionCreate, ActionEdit, ActionReview, ActionRequestAmendments},
		ResourceSettings: {ActionView, ActionEdit},
		ResourceReports:  {ActionView, ActionExport},
	},
	models.RolePresenter: {
		ResourceProjects:   {ActionView, ActionCreate, ActionEdit},
		ResourceReviews:    {ActionView},
		ResourceAmendments: {ActionView, ActionUploadAmendments},
		ResourceSettings:   {ActionView, ActionEdit},
	},
	models.RoleReviewer: {
		ResourceProjects:   {ActionView},
		ResourceReviews:    {ActionView, ActionCreate, ActionEdit, ActionReview, ActionRequestAmendments},
		ResourceAmendments: {ActionView, ActionCreate},
		ResourceSettings:   {ActionView, ActionEdit},
	},
	models.RoleGuest: {
		ResourceProjects: {ActionView},
		ResourceSettings: {ActionView},
	},
}

// DefaultTable returns a copy of the built-in permission table
func DefaultTable() Table {
	return defaultTable.Clone()
}

// HasPermission checks role against the built-in table. Admin is always allowed.
func HasPermission(role, action, resource string) bool {
	return defaultTable.HasPermission(role, action, resource)
}

// HasPermission checks role against t. Admin is always allowed regardless of t.
func (t Table) HasPermission(role, action, resource string) bool {
	if role == models.RoleAdmin {
		return true
	}
	for _, a := range t[role][resource] {
		if a == action {
			return true
		}
	}
	return false
}

// Clone returns a deep copy of t
func (t Table) Clone() Table {
	out := make(Table, len(t))
	for role, resources := range t {
		rc := make(map[string][]string, len(resources))
		for res, actions := range resources {
			rc[res] = append([]string(nil), actions...)
		}
		out[role] = rc
	}
	return out
}

// Pairs lists every (action, resource) pair in t, sorted
func (t Table) Pairs() [][2]string {
	seen := map[[2]string]bool{}
	for _, resources := range t {
		for res, actions := range resources {
			for _, a := range actions {
				seen[[2]string{a, res}] = true
			}
		}
	}
	pairs := make([][2]string, 0, len(seen))
	for p := range seen {
		pairs = append(pairs, p)
	}
	sort.Slice(pairs, func(i, j int) bool {
		if pairs[i][1] != pairs[j][1] {
			return pairs[i][1] < pairs[j][1]
		}
		return pairs[i][0] < pairs[j][0]
	})
	return pairs
}

// Validate reports the first unknown role in t
func (t Table) Validate() error {
	for role := range t {
		if !models.IsValidRole(role) {
			return &UnknownRoleError{Role: role}
		}
	}
	return nil
}

// UnknownRoleError is returned for a table entry whose role does not exist
type UnknownRoleError struct {
	Role string
}

func (e *UnknownRoleError) Error() string {
	return "unknown role in permission table: " + e.Role
}

// Policy holds the effective table. It is safe for concurrent use.
type Policy struct {
	table atomic.Pointer[Table]
}

// NewPolicy creates a policy using the built-in table
func NewPolicy() *Policy {
	p := &Policy{}
	p.Reset()
	return p
}

// HasPermission checks role against the effective table
func (p *Policy) HasPermission(role, action, resource string) bool {
	return (*p.table.Load()).HasPermission(role, action, resource)
}

// Table returns a copy of the effective table
func (p *Policy) Table() Table {
	return (*p.table.Load()).Clone()
}

// Replace swaps in an overriding table
func (p *Policy) Replace(t Table) {
	c := t.Clone()
	p.table.Store(&c)
}

// Reset restores the built-in table
func (p *Policy) Reset() {
	p.Replace(defaultTable)
}
