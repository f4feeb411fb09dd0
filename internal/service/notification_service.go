package service

import (
	"context"
	"log/slog"

	"fp-innova/internal/models"
	"fp-innova/internal/realtime"
	"fp-innova/pkg/validator"
)

// NotificationStore persists notifications and per-user preferences
type NotificationStore interface {
	Create(ctx context.Context, n *models.Notification) error
	List(ctx context.Context, userID uint, unreadOnly bool, limit, offset int) ([]models.Notification, error)
	UnreadCount(ctx context.Context, userID uint) (int, error)
	MarkRead(ctx context.Context, userID, id uint) error
	MarkAllRead(ctx context.Context, userID uint) (int64, error)
	Delete(ctx context.Context, userID, id uint) error
	ListPreferences(ctx context.Context, userID uint) ([]models.NotificationPreference, error)
	UpsertPreference(ctx context.Context, userID uint, p models.NotificationPreference) error
}

// NotificationMailer emails a notification
type NotificationMailer interface {
	SendNotification(ctx context.Context, to, name, title, message, link string) error
}

// notificationSettings is the part of the settings the service consults
type notificationSettings interface {
	NotificationPermissions(ctx context.Context) models.NotificationRolePermissions
	EmailNotificationsEnabled(ctx context.Context) bool
}

// NotificationService delivers notifications in-app, over the websocket and
// by email according to user preferences
type NotificationService struct {
	repo      NotificationStore
	users     UserStore
	settings  notificationSettings
	mailer    NotificationMailer
	publisher realtime.Publisher
}

// NewNotificationService creates a new notification service
func NewNotificationService(repo NotificationStore, users UserStore, settings notificationSettings, mailer NotificationMailer, publisher realtime.Publisher) *NotificationService {
	return &NotificationService{repo: repo, users: users, settings: settings, mailer: mailer, publisher: publisher}
}

// Notify implements Notifier. Failures are logged per recipient.
func (s *NotificationService) Notify(ctx context.Context, userIDs []uint, notificationType, title, message, link string) {
	if len(userIDs) == 0 {
		return
	}
	users, err := s.users.ListByIDs(ctx, dedupe(userIDs))
	if err != nil {
		slog.Error("Failed to load notification recipients", "type", notificationType, "error", err)
		return
	}
	rolePerms := s.settings.NotificationPermissions(ctx)
	emailEnabled := s.settings.EmailNotificationsEnabled(ctx)

	for i := range users {
		user := &users[i]
		if !user.Active || !rolePerms.Allows(user.Role, notificationType) {
			continue
		}
		pref, err := s.preference(ctx, user.ID, notificationType)
		if err != nil {
			slog.Error("Failed to load notification preference", "user_id", user.ID, "error", err)
			continue
		}
		if !pref.Enabled {
			continue
		}
		if pref.InApp {
			n := &models.Notification{UserID: user.ID, Type: notificationType, Title: title, Message: message, Link: link}
			if err := s.repo.Create(ctx, n); err != nil {
				slog.Error("Failed to store notification", "user_id", user.ID, "type", notificationType, "error", err)
			} else {
				s.publisher.Publish(user.ID, realtime.Event{Type: realtime.EventNotification, Payload: n})
			}
		}
		if pref.Email && emailEnabled {
			if err := s.mailer.SendNotification(ctx, user.Email, user.Name, title, message, link); err != nil {
				slog.Error("Failed to email notification", "user_id", user.ID, "type", notificationType, "error", err)
			}
		}
	}
}

func (s *NotificationService) preference(ctx context.Context, userID uint, notificationType string) (models.NotificationPreference, error) {
	prefs, err := s.Preferences(ctx, userID)
	if err != nil {
		return models.NotificationPreference{}, err
	}
	for _, p := range prefs {
		if p.Type == notificationType {
			return p, nil
		}
	}
	return models.NotificationPreference{Type: notificationType, Enabled: true, InApp: true}, nil
}

// List returns a page of the user's notifications
func (s *NotificationService) List(ctx context.Context, userID uint, unreadOnly bool, limit, offset int) ([]models.Notification, error) {
	if limit <= 0 || limit > 100 {
		limit = 20
	}
	if offset < 0 {
		offset = 0
	}
	return s.repo.List(ctx, userID, unreadOnly, limit, offset)
}

// UnreadCount returns the number of unread notifications
func (s *NotificationService) UnreadCount(ctx context.Context, userID uint) (int, error) {
	return s.repo.UnreadCount(ctx, userID)
}

// MarkRead marks one notification as read
func (s *NotificationService) MarkRead(ctx context.Context, userID, id uint) error {
	return s.repo.MarkRead(ctx, userID, id)
}

// MarkAllRead marks every notification as read
func (s *NotificationService) MarkAllRead(ctx context.Context, userID uint) (int64, error) {
	return s.repo.MarkAllRead(ctx, userID)
}

// Delete removes one notification
func (s *NotificationService) Delete(ctx context.Context, userID, id uint) error {
	return s.repo.Delete(ctx, userID, id)
}

// Preferences returns one preference per notification type, stored values
// taking precedence over the defaults
func (s *NotificationService) Preferences(ctx context.Context, userID uint) ([]models.NotificationPreference, error) {
	stored, err := s.repo.ListPreferences(ctx, userID)
	if err != nil {
		return nil, err
	}
	prefs := models.DefaultNotificationPreferences()
	for i := range prefs {
		for _, p := range stored {
			if p.Type == prefs[i].Type {
				prefs[i] = p
			}
		}
	}
	return prefs, nil
}

// UpdatePreferences stores the given preferences and returns the full set
func (s *NotificationService) UpdatePreferences(ctx context.Context, userID uint, prefs []models.NotificationPreference) ([]models.NotificationPreference, error) {
	for i := range prefs {
		if err := validator.ValidateStruct(prefs[i]); err != nil {
			return nil, err
		}
	}
	for _, p := range prefs {
		if err := s.repo.UpsertPreference(ctx, userID, p); err != nil {
			return nil, err
		}
	}
	return s.Preferences(ctx, userID)
}

func dedupe(ids []uint) []uint {
	seen := make(map[uint]struct{}, len(ids))
	out := make([]uint, 0, len(ids))
	for _, id := range ids {
		if _, ok := seen[id]; ok || id == 0 {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}
