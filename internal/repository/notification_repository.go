package repository

import (
	"context"

	"github.com/jmoiron/sqlx"

	"fp-innova/internal/database"
	"fp-innova/internal/models"
)

const notificationColumns = `id, user_id, type, title, message, link, read, created_at`

// NotificationRepository stores in-app notifications and delivery preferences
type NotificationRepository struct {
	db *sqlx.DB
}

// NewNotificationRepository creates a new notification repository
func NewNotificationRepository(db *sqlx.DB) *NotificationRepository {
	return &NotificationRepository{db: db}
}

// Create stores a notification
func (r *NotificationRepository) Create(ctx context.Context, n *models.Notification) error {
	err := sqlx.GetContext(ctx, database.Conn(ctx, r.db), n, `
		INSERT INTO notifications (user_id, type, title, message, link)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING `+notificationColumns,
		n.UserID, n.Type, n.Title, n.Message, n.Link)
	if err != nil {
		return translate("create notification", err)
	}
	return nil
}

// List returns the notifications of a user, newest first
func (r *NotificationRepository) List(ctx context.Context, userID uint, unreadOnly bool, limit, offset int) ([]models.Notification, error) {
	notifications := []models.Notification{}
	err := sqlx.SelectContext(ctx, database.Conn(ctx, r.db), &notifications, `
		SELECT `+notificationColumns+` FROM notifications
		WHERE user_id = $1 AND (NOT $2 OR NOT read)
		ORDER BY created_at DESC, id DESC
		LIMIT $3 OFFSET $4`, userID, unreadOnly, limit, offset)
	if err != nil {
		return nil, translate("list notifications", err)
	}
	return notifications, nil
}

// UnreadCount returns the number of unread notifications of a user
func (r *NotificationRepository) UnreadCount(ctx context.Context, userID uint) (int, error) {
	var n int
	err := sqlx.GetContext(ctx, database.Conn(ctx, r.db), &n,
		`SELECT COUNT(*) FROM notifications WHERE user_id = $1 AND NOT read`, userID)
	if err != nil {
		return 0, translate("count notifications", err)
	}
	return n, nil
}

// MarkRead marks one notification of a user as read
func (r *NotificationRepository) MarkRead(ctx context.Context, userID, id uint) error {
	res, err := database.Conn(ctx, r.db).ExecContext(ctx,
		`UPDATE notifications SET read = TRUE WHERE id = $1 AND user_id = $2`, id, userID)
	if err != nil {
		return translate("mark notification read", err)
	}
	return expectOne(res, "mark notification read")
}

// MarkAllRead marks every notification of a user as read
func (r *NotificationRepository) MarkAllRead(ctx context.Context, userID uint) (int64, error) {
	res, err := database.Conn(ctx, r.db).ExecContext(ctx,
		`UPDATE notifications SET read = TRUE WHERE user_id = $1 AND NOT read`, userID)
	if err != nil {
		return 0, translate("mark notifications read", err)
	}
	return res.RowsAffected()
}

// Delete removes one notification of a user
func (r *NotificationRepository) Delete(ctx context.Context, userID, id uint) error {
	res, err := database.Conn(ctx, r.db).ExecContext(ctx,
		`DELETE FROM notifications WHERE id = $1 AND user_id = $2`, id, userID)
	if err != nil {
		return translate("delete notification", err)
	}
	return expectOne(res, "delete notification")
}

// ListPreferences returns the stored preferences of a user. Types without a
// stored row are absent.
func (r *NotificationRepository) ListPreferences(ctx context.Context, userID uint) ([]models.NotificationPreference, error) {
	prefs := []models.NotificationPreference{}
	err := sqlx.SelectContext(ctx, database.Conn(ctx, r.db), &prefs,
		`SELECT type, enabled, email, in_app FROM notification_preferences WHERE user_id = $1 ORDER BY type`, userID)
	if err != nil {
		return nil, translate("list notification preferences", err)
	}
	return prefs, nil
}

// UpsertPreference stores one preference of a user
func (r *NotificationRepository) UpsertPreference(ctx context.Context, userID uint, p models.NotificationPreference) error {
	_, err := database.Conn(ctx, r.db).ExecContext(ctx, `
		INSERT INTO notification_preferences (user_id, type, enabled, email, in_app)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (user_id, type) DO UPDATE
		SET enabled = EXCLUDED.enabled, email = EXCLUDED.email, in_app = EXCLUDED.in_app`,
		userID, p.Type, p.Enabled, p.Email, p.InApp)
	return translate("save notification preference", err)
}
