package rbac

import (
	"testing"

	"fp-innova/internal/models"
)

func TestHasPermission(t *testing.T) {
	tests := []struct {
		role, action, resource string
		want                   bool
	}{
		{models.RoleGuest, ActionDelete, ResourceProjects, false},
		{models.RoleGuest, ActionView, ResourceProjects, true},
		{models.RoleReviewer, ActionReview, ResourceReviews, true},
		{models.RoleReviewer, ActionApprove, ResourceProjects, false},
		{models.RolePresenter, ActionUploadAmendments, ResourceAmendments, true},
		{models.RolePresenter, ActionRequestAmendments, ResourceReviews, false},
		{models.RoleCoordinator, ActionAssign, ResourceProjects, true},
		{models.RoleCoordinator, ActionDelete, ResourceUsers, false},
		{models.RoleAdmin, "anything", "anywhere", true},
		{"unknown", ActionView, ResourceProjects, false},
	}

	for _, tt := range tests {
		t.Run(tt.role+"/"+tt.action+"/"+tt.resource, func(t *testing.T) {
			if got := HasPermission(tt.role, tt.action, tt.resource); got != tt.want {
				t.Errorf("HasPermission(%q, %q, %q) = %v, want %v", tt.role, tt.action, tt.resource, got, tt.want)
			}
		})
	}
}

func TestAdminHasEveryPairInTable(t *testing.T) {
	pairs := DefaultTable().Pairs()
	if len(pairs) == 0 {
		t.Fatal("expected permission pairs in default table")
	}
	for _, p := range pairs {
		if !HasPermission(models.RoleAdmin, p[0], p[1]) {
			t.Errorf("admin denied %s on %s", p[0], p[1])
		}
	}
}

func TestAdminRuleSurvivesEmptyOverride(t *testing.T) {
	empty := Table{}
	if !empty.HasPermission(models.RoleAdmin, ActionDelete, ResourceProjects) {
		t.Error("admin should be allowed even when the table is empty")
	}
	if empty.HasPermission(models.RoleCoordinator, ActionView, ResourceProjects) {
		t.Error("coordinator should be denied by an empty table")
	}
}

func TestPolicyReplaceAndReset(t *testing.T) {
	p := NewPolicy()
	if p.HasPermission(models.RoleGuest, ActionCreate, ResourceProjects) {
		t.Fatal("guest should not create projects by default")
	}

	override := DefaultTable()
	override[models.RoleGuest][ResourceProjects] = append(override[models.RoleGuest][ResourceProjects], ActionCreate)
	p.Replace(override)

	if !p.HasPermission(models.RoleGuest, ActionCreate, ResourceProjects) {
		t.Error("override not applied")
	}
	if HasPermission(models.RoleGuest, ActionCreate, ResourceProjects) {
		t.Error("override leaked into the built-in table")
	}

	p.Reset()
	if p.HasPermission(models.RoleGuest, ActionCreate, ResourceProjects) {
		t.Error("reset did not restore the built-in table")
	}
}

func TestTableValidate(t *testing.T) {
	if err := DefaultTable().Validate(); err != nil {
		t.Fatalf("default table invalid: %v", err)
	}
	bad := Table{"superuser": {ResourceProjects: {ActionView}}}
	if err := bad.Validate(); err == nil {
		t.Error("expected error for unknown role")
	}
}
