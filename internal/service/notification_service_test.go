package service

import (
	"context"
	"errors"
	"sync"
	"testing"

	"fp-innova/internal/models"
	"fp-innova/internal/realtime"
	"fp-innova/pkg/validator"
)

type fakeNotificationStore struct {
	mu            sync.Mutex
	notifications []models.Notification
	prefs         map[uint]map[string]models.NotificationPreference
}

func newFakeNotificationStore() *fakeNotificationStore {
	return &fakeNotificationStore{prefs: map[uint]map[string]models.NotificationPreference{}}
}

func (f *fakeNotificationStore) Create(_ context.Context, n *models.Notification) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	n.ID = uint(len(f.notifications) + 1)
	f.notifications = append(f.notifications, *n)
	return nil
}

func (f *fakeNotificationStore) forUser(userID uint) []models.Notification {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []models.Notification
	for _, n := range f.notifications {
		if n.UserID == userID {
			out = append(out, n)
		}
	}
	return out
}

func (f *fakeNotificationStore) List(_ context.Context, userID uint, _ bool, limit, offset int) ([]models.Notification, error) {
	all := f.forUser(userID)
	if offset >= len(all) {
		return nil, nil
	}
	return all[offset:min(len(all), offset+limit)], nil
}

func (f *fakeNotificationStore) UnreadCount(_ context.Context, userID uint) (int, error) {
	return len(f.forUser(userID)), nil
}

func (f *fakeNotificationStore) MarkRead(context.Context, uint, uint) error { return nil }

func (f *fakeNotificationStore) MarkAllRead(context.Context, uint) (int64, error) { return 0, nil }

func (f *fakeNotificationStore) Delete(context.Context, uint, uint) error { return nil }

func (f *fakeNotificationStore) ListPreferences(_ context.Context, userID uint) ([]models.NotificationPreference, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []models.NotificationPreference
	for _, p := range f.prefs[userID] {
		out = append(out, p)
	}
	return out, nil
}

func (f *fakeNotificationStore) UpsertPreference(_ context.Context, userID uint, p models.NotificationPreference) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.prefs[userID] == nil {
		f.prefs[userID] = map[string]models.NotificationPreference{}
	}
	f.prefs[userID][p.Type] = p
	return nil
}

type fakeNotificationMailer struct {
	mu sync.Mutex
	to []string
}

func (m *fakeNotificationMailer) SendNotification(_ context.Context, to, _, _, _, _ string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.to = append(m.to, to)
	return nil
}

type fakeNotificationSettings struct {
	perms        models.NotificationRolePermissions
	emailEnabled bool
}

func (f *fakeNotificationSettings) NotificationPermissions(context.Context) models.NotificationRolePermissions {
	return f.perms
}

func (f *fakeNotificationSettings) EmailNotificationsEnabled(context.Context) bool { return f.emailEnabled }

type notificationFixture struct {
	svc       *NotificationService
	store     *fakeNotificationStore
	settings  *fakeNotificationSettings
	mailer    *fakeNotificationMailer
	publisher *fakePublisher
}

func newNotificationFixture(t *testing.T) *notificationFixture {
	t.Helper()
	inactive := testUser(4, models.RolePresenter)
	inactive.Active = false
	users := newFakeUsers(testUser(1, models.RolePresenter), testUser(7, models.RoleReviewer), inactive)
	f := &notificationFixture{
		store:     newFakeNotificationStore(),
		settings:  &fakeNotificationSettings{emailEnabled: true},
		mailer:    &fakeNotificationMailer{},
		publisher: &fakePublisher{},
	}
	f.svc = NewNotificationService(f.store, users, f.settings, f.mailer, f.publisher)
	return f
}

func TestNotifyDeliversInAppAndEmail(t *testing.T) {
	f := newNotificationFixture(t)
	f.svc.Notify(context.Background(), []uint{1, 1, 4, 0}, models.NotificationProjectStatus, "Cambio", "Mensaje", "/projects/1")

	if got := f.store.forUser(1); len(got) != 1 || got[0].Link != "/projects/1" {
		t.Errorf("stored notifications = %+v", got)
	}
	if got := f.store.forUser(4); len(got) != 0 {
		t.Errorf("inactive user received %d notifications", len(got))
	}
	if got := f.publisher.ofType(realtime.EventNotification); len(got) != 1 || got[0].userID != 1 {
		t.Errorf("published = %+v", got)
	}
	if len(f.mailer.to) != 1 || f.mailer.to[0] != "presenter@fpinnova.test" {
		t.Errorf("emails = %v", f.mailer.to)
	}
}

func TestNotifyRespectsSwitches(t *testing.T) {
	tests := []struct {
		name       string
		setup      func(f *notificationFixture)
		kind       string
		wantStored int
		wantEmails int
	}{
		{
			name:       "messages are not emailed by default",
			kind:       models.NotificationMessageReceived,
			wantStored: 1,
		},
		{
			name:       "global email switch off",
			setup:      func(f *notificationFixture) { f.settings.emailEnabled = false },
			kind:       models.NotificationProjectStatus,
			wantStored: 1,
		},
		{
			name: "role disabled",
			setup: func(f *notificationFixture) {
				f.settings.perms = models.NotificationRolePermissions{models.RolePresenter: {models.NotificationProjectStatus: false}}
			},
			kind: models.NotificationProjectStatus,
		},
		{
			name: "type disabled by user",
			setup: func(f *notificationFixture) {
				_ = f.store.UpsertPreference(context.Background(), 1, models.NotificationPreference{Type: models.NotificationProjectStatus})
			},
			kind: models.NotificationProjectStatus,
		},
		{
			name: "email only",
			setup: func(f *notificationFixture) {
				_ = f.store.UpsertPreference(context.Background(), 1,
					models.NotificationPreference{Type: models.NotificationProjectStatus, Enabled: true, Email: true})
			},
			kind:       models.NotificationProjectStatus,
			wantEmails: 1,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newNotificationFixture(t)
			if tt.setup != nil {
				tt.setup(f)
			}
			f.svc.Notify(context.Background(), []uint{1}, tt.kind, "t", "m", "")
			if got := len(f.store.forUser(1)); got != tt.wantStored {
				t.Errorf("stored = %d, want %d", got, tt.wantStored)
			}
			if got := len(f.mailer.to); got != tt.wantEmails {
				t.Errorf("emails = %d, want %d", got, tt.wantEmails)
			}
		})
	}
}

func TestNotificationPreferences(t *testing.T) {
	f := newNotificationFixture(t)
	ctx := context.Background()

	prefs, err := f.svc.Preferences(ctx, 1)
	if err != nil {
		t.Fatalf("Preferences failed: %v", err)
	}
	if len(prefs) != len(models.NotificationTypes) {
		t.Fatalf("got %d preferences, want one per type", len(prefs))
	}

	updated, err := f.svc.UpdatePreferences(ctx, 1, []models.NotificationPreference{
		{Type: models.NotificationReviewAssigned, Enabled: true, InApp: true},
	})
	if err != nil {
		t.Fatalf("UpdatePreferences failed: %v", err)
	}
	for _, p := range updated {
		if p.Type == models.NotificationReviewAssigned && p.Email {
			t.Error("stored preference not applied")
		}
	}

	_, err = f.svc.UpdatePreferences(ctx, 1, []models.NotificationPreference{{Type: "weekly_digest", Enabled: true}})
	var verr validator.Errors
	if !errors.As(err, &verr) {
		t.Fatalf("expected validation error, got %v", err)
	}
}
