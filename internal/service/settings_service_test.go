package service

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"fp-innova/internal/models"
	"fp-innova/internal/rbac"
	"fp-innova/internal/repository"
	"fp-innova/pkg/validator"
)

type fakeSettingsStore struct {
	mu   sync.Mutex
	rows map[string]*models.SettingsRecord
}

func newFakeSettingsStore() *fakeSettingsStore {
	return &fakeSettingsStore{rows: map[string]*models.SettingsRecord{}}
}

func (f *fakeSettingsStore) Get(_ context.Context, key string) (*models.SettingsRecord, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	rec, ok := f.rows[key]
	if !ok {
		return nil, repository.ErrNotFound
	}
	c := *rec
	return &c, nil
}

func (f *fakeSettingsStore) Save(_ context.Context, key string, value []byte, expectedVersion int, updatedBy *uint) (*models.SettingsRecord, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	current := 0
	if rec, ok := f.rows[key]; ok {
		current = rec.Version
	}
	if current != expectedVersion {
		return nil, repository.ErrVersionConflict
	}
	rec := &models.SettingsRecord{Key: key, Value: value, Version: current + 1, UpdatedBy: updatedBy, UpdatedAt: time.Now()}
	f.rows[key] = rec
	c := *rec
	return &c, nil
}

func newSettingsFixture(t *testing.T) (*SettingsService, *fakeSettingsStore, *rbac.Policy) {
	t.Helper()
	store := newFakeSettingsStore()
	policy := rbac.NewPolicy()
	svc := NewSettingsService(store, policy, newTestAudit())
	if err := svc.Load(context.Background()); err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	return svc, store, policy
}

func systemValue(t *testing.T, mutate func(s *models.SystemSettings)) json.RawMessage {
	t.Helper()
	s := models.DefaultSystemSettings()
	mutate(&s)
	raw, err := json.Marshal(s)
	if err != nil {
		t.Fatalf("Marshal failed: %v", err)
	}
	return raw
}

func TestSettingsDefaultsWhenNothingStored(t *testing.T) {
	svc, _, _ := newSettingsFixture(t)

	doc, err := svc.Get(context.Background(), models.SettingsKeySystem)
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if doc.Version != 0 {
		t.Errorf("version = %d, want 0", doc.Version)
	}
	if got := svc.System(context.Background()).General.Timezone; got != "Europe/Madrid" {
		t.Errorf("timezone = %q", got)
	}
	if _, err := svc.Get(context.Background(), "unknown"); !errors.Is(err, repository.ErrNotFound) {
		t.Errorf("unknown key: expected ErrNotFound, got %v", err)
	}
}

func TestSettingsOptimisticLocking(t *testing.T) {
	svc, _, _ := newSettingsFixture(t)
	admin := testUser(100, models.RoleAdmin)
	ctx := context.Background()

	value := systemValue(t, func(s *models.SystemSettings) { s.Reviews.AllowAdminReview = true })
	doc, err := svc.Update(ctx, admin, models.SettingsKeySystem, 0, value)
	if err != nil {
		t.Fatalf("Update failed: %v", err)
	}
	if doc.Version != 1 {
		t.Errorf("version = %d, want 1", doc.Version)
	}
	if !svc.Reviews(ctx).AllowAdminReview {
		t.Error("cache not refreshed after update")
	}

	if _, err := svc.Update(ctx, admin, models.SettingsKeySystem, 0, value); !errors.Is(err, ErrVersionConflict) {
		t.Fatalf("stale version: expected ErrVersionConflict, got %v", err)
	}
	if _, err := svc.Update(ctx, admin, models.SettingsKeySystem, 1, value); err != nil {
		t.Errorf("update with current version failed: %v", err)
	}
}

func TestSettingsUpdateValidation(t *testing.T) {
	svc, _, _ := newSettingsFixture(t)
	admin := testUser(100, models.RoleAdmin)

	tests := []struct {
		name  string
		key   string
		value json.RawMessage
	}{
		{"bad time format", models.SettingsKeySystem, systemValue(t, func(s *models.SystemSettings) { s.General.TimeFormat = "25h" })},
		{"bad color", models.SettingsKeySystem, systemValue(t, func(s *models.SystemSettings) { s.Appearance.Colors.Primary = "blue" })},
		{"unknown timezone", models.SettingsKeySystem, systemValue(t, func(s *models.SystemSettings) { s.General.Timezone = "Mars/Olympus" })},
		{"malformed json", models.SettingsKeySystem, json.RawMessage(`{"general":`)},
		{"unknown role in rbac", models.SettingsKeyRBAC, json.RawMessage(`{"superuser":{"projects":["view"]}}`)},
		{"unknown role in messaging", models.SettingsKeyMessaging, json.RawMessage(`[{"fromRole":"alien","toRole":"admin","allowed":true}]`)},
		{"unknown notification type", models.SettingsKeyNotifications, json.RawMessage(`{"reviewer":{"weekly_digest":false}}`)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := svc.Update(context.Background(), admin, tt.key, 0, tt.value)
			var verr validator.Errors
			if !errors.As(err, &verr) {
				t.Fatalf("expected validation error, got %v", err)
			}
		})
	}
}

func TestSettingsUpdatePermissions(t *testing.T) {
	svc, _, _ := newSettingsFixture(t)
	value := systemValue(t, func(*models.SystemSettings) {})

	for _, role := range []string{models.RoleCoordinator, models.RolePresenter, models.RoleReviewer, models.RoleGuest} {
		if _, err := svc.Update(context.Background(), testUser(1, role), models.SettingsKeySystem, 0, value); !errors.Is(err, ErrForbidden) {
			t.Errorf("%s: expected ErrForbidden, got %v", role, err)
		}
	}
}

func TestPermissionTableUpdateReloadsPolicy(t *testing.T) {
	svc, _, policy := newSettingsFixture(t)
	ctx := context.Background()

	if !policy.HasPermission(models.RoleCoordinator, rbac.ActionApprove, rbac.ResourceProjects) {
		t.Fatal("coordinator should approve projects by default")
	}
	table := rbac.DefaultTable()
	table[models.RoleCoordinator][rbac.ResourceProjects] = []string{rbac.ActionView}
	raw, _ := json.Marshal(table)

	if _, err := svc.Update(ctx, testUser(100, models.RoleAdmin), models.SettingsKeyRBAC, 0, raw); err != nil {
		t.Fatalf("Update failed: %v", err)
	}
	if policy.HasPermission(models.RoleCoordinator, rbac.ActionApprove, rbac.ResourceProjects) {
		t.Error("policy still grants approve after the table update")
	}
	if !policy.HasPermission(models.RoleAdmin, rbac.ActionApprove, rbac.ResourceProjects) {
		t.Error("admin must keep every permission")
	}
}

func TestSettingsLoadFallsBackOnInvalidRows(t *testing.T) {
	store := newFakeSettingsStore()
	store.rows[models.SettingsKeyRBAC] = &models.SettingsRecord{Key: models.SettingsKeyRBAC, Value: []byte(`{"ghost":{}}`), Version: 3}
	store.rows[models.SettingsKeySystem] = &models.SettingsRecord{
		Key:     models.SettingsKeySystem,
		Value:   []byte(`{"reviews":{"allowCoordinatorReview":true}}`),
		Version: 2,
	}
	policy := rbac.NewPolicy()
	svc := NewSettingsService(store, policy, newTestAudit())

	if err := svc.Load(context.Background()); err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if !policy.HasPermission(models.RolePresenter, rbac.ActionCreate, rbac.ResourceProjects) {
		t.Error("invalid stored table should fall back to the defaults")
	}
	system := svc.System(context.Background())
	if !system.Reviews.AllowCoordinatorReview {
		t.Error("stored value lost during migration")
	}
	if system.General.Timezone != "Europe/Madrid" || system.SchemaVersion != models.SettingsSchemaVersion {
		t.Errorf("partial document not migrated over defaults: %+v", system.General)
	}
}
