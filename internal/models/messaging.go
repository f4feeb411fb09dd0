package models

import "time"

// Chat types
const (
	ChatDirect = "direct"
	ChatGroup  = "group"
)

// Message types
const (
	MessageText  = "text"
	MessageFile  = "file"
	MessageEmoji = "emoji"
)

// Chat is a direct or group conversation
type Chat struct {
	ID            uint      `json:"id" db:"id"`
	Type          string    `json:"type" db:"type"`
	Name          *string   `json:"name,omitempty" db:"name"`
	Avatar        *string   `json:"avatar,omitempty" db:"avatar"`
	CreatedBy     *uint     `json:"createdBy,omitempty" db:"created_by"`
	LastMessageID *uint     `json:"-" db:"last_message_id"`
	CreatedAt     time.Time `json:"createdAt" db:"created_at"`
	UpdatedAt     time.Time `json:"updatedAt" db:"updated_at"`
	Participants  []uint    `json:"participants" db:"-"`
	LastMessage   *Message  `json:"lastMessage,omitempty" db:"-"`
	UnreadCount   int       `json:"unreadCount" db:"unread_count"`
}

// HasParticipant reports whether userID takes part in the chat
func (c *Chat) HasParticipant(userID uint) bool {
	for _, id := range c.Participants {
		if id == userID {
			return true
		}
	}
	return false
}

// Message belongs to a chat. ReadBy always contains the sender.
type Message struct {
	ID        uint      `json:"id" db:"id"`
	ChatID    uint      `json:"chatId" db:"chat_id"`
	SenderID  uint      `json:"senderId" db:"sender_id"`
	Type      string    `json:"type" db:"type"`
	Content   string    `json:"content" db:"content"`
	FileURL   *string   `json:"fileUrl,omitempty" db:"file_url"`
	FileName  *string   `json:"fileName,omitempty" db:"file_name"`
	FileSize  *int64    `json:"fileSize,omitempty" db:"file_size"`
	CreatedAt time.Time `json:"createdAt" db:"created_at"`
	ReadBy    []uint    `json:"readBy" db:"-"`
}

// MessagePermission allows or denies messaging from one role to another
type MessagePermission struct {
	FromRole string `json:"fromRole" validate:"required,role"`
	ToRole   string `json:"toRole" validate:"required,role"`
	Allowed  bool   `json:"allowed"`
}

// Notification types
const (
	NotificationProjectAssigned    = "project_assigned"
	NotificationProjectStatus      = "project_status"
	NotificationReviewAssigned     = "review_assigned"
	NotificationAmendmentRequested = "amendment_requested"
	NotificationMessageReceived    = "message_received"
)

// NotificationTypes lists every notification type
var NotificationTypes = []string{
	NotificationProjectAssigned,
	NotificationProjectStatus,
	NotificationReviewAssigned,
	NotificationAmendmentRequested,
	NotificationMessageReceived,
}

// Notification is a per-user in-app notice
type Notification struct {
	ID        uint      `json:"id" db:"id"`
	UserID    uint      `json:"userId" db:"user_id"`
	Type      string    `json:"type" db:"type"`
	Title     string    `json:"title" db:"title"`
	Message   string    `json:"message" db:"message"`
	Link      string    `json:"link,omitempty" db:"link"`
	Read      bool      `json:"read" db:"read"`
	CreatedAt time.Time `json:"createdAt" db:"created_at"`
}

// NotificationPreference controls delivery of one notification type
type NotificationPreference struct {
	Type    string `json:"type" db:"type" validate:"required,oneof=project_assigned project_status review_assigned amendment_requested message_received"`
	Enabled bool   `json:"enabled" db:"enabled"`
	Email   bool   `json:"email" db:"email"`
	InApp   bool   `json:"inApp" db:"in_app"`
}

// DefaultNotificationPreferences returns the preferences of a user who never changed them
func DefaultNotificationPreferences() []NotificationPreference {
	prefs := make([]NotificationPreference, 0, len(NotificationTypes))
	for _, t := range NotificationTypes {
		prefs = append(prefs, NotificationPreference{
			Type:    t,
			Enabled: true,
			Email:   t != NotificationMessageReceived,
			InApp:   true,
		})
	}
	return prefs
}
