package service

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"unicode/utf8"

	"fp-innova/internal/models"
	"fp-innova/internal/realtime"
	"fp-innova/internal/repository"
	"fp-innova/internal/storage"
	"fp-innova/pkg/validator"
)

// ChatStore persists chats and messages
type ChatStore interface {
	Create(ctx context.Context, chat *models.Chat) error
	FindDirect(ctx context.Context, userA, userB uint) (*models.Chat, error)
	GetForUser(ctx context.Context, chatID, userID uint) (*models.Chat, error)
	ListForUser(ctx context.Context, userID uint) ([]models.Chat, error)
	AddMessage(ctx context.Context, m *models.Message) error
	ListMessages(ctx context.Context, chatID, beforeID uint, limit int) ([]models.Message, error)
	MarkRead(ctx context.Context, chatID, userID uint) (int64, error)
}

type messagingSettings interface {
	MessagePermissions(ctx context.Context) []models.MessagePermission
}

// CreateChatRequest opens a direct or group chat
type CreateChatRequest struct {
	Type         string `json:"type" validate:"required,oneof=direct group"`
	Name         string `json:"name" validate:"max=255"`
	Participants []uint `json:"participants" validate:"required,min=1"`
}

// SendMessageRequest is a new chat message
type SendMessageRequest struct {
	Type     string  `json:"type" validate:"required,oneof=text file emoji"`
	Content  string  `json:"content" validate:"max=10000"`
	FileURL  *string `json:"fileUrl"`
	FileName *string `json:"fileName"`
	FileSize *int64  `json:"fileSize"`
}

// MessagingService handles chats between users
type MessagingService struct {
	tx        TxRunner
	chats     ChatStore
	users     UserStore
	settings  messagingSettings
	files     storage.Store
	publisher realtime.Publisher
	notifier  Notifier
}

// NewMessagingService creates a new messaging service
func NewMessagingService(tx TxRunner, chats ChatStore, users UserStore, settings messagingSettings,
	files storage.Store, publisher realtime.Publisher, notifier Notifier) *MessagingService {
	return &MessagingService{
		tx:        tx,
		chats:     chats,
		users:     users,
		settings:  settings,
		files:     files,
		publisher: publisher,
		notifier:  notifier,
	}
}

// messagingAllowed looks up fromRole -> toRole. Pairs missing from the matrix
// fall back to the defaults.
func messagingAllowed(perms []models.MessagePermission, fromRole, toRole string) bool {
	for _, p := range perms {
		if p.FromRole == fromRole && p.ToRole == toRole {
			return p.Allowed
		}
	}
	for _, p := range models.DefaultMessagePermissions() {
		if p.FromRole == fromRole && p.ToRole == toRole {
			return p.Allowed
		}
	}
	return false
}

// checkRecipients fails unless sender may message every one of recipients
func (s *MessagingService) checkRecipients(ctx context.Context, sender *models.User, recipients []models.User) error {
	perms := s.settings.MessagePermissions(ctx)
	for _, u := range recipients {
		if u.ID == sender.ID {
			continue
		}
		if !messagingAllowed(perms, sender.Role, u.Role) {
			return fmt.Errorf("%w: %s may not message %s", ErrMessagingNotAllowed, sender.Role, u.Role)
		}
	}
	return nil
}

// CreateChat opens a chat. A direct chat with the same user is reused.
func (s *MessagingService) CreateChat(ctx context.Context, actor *models.User, req CreateChatRequest) (*models.Chat, error) {
	req.Name = validator.SanitizeString(req.Name)
	if err := validator.ValidateStruct(req); err != nil {
		return nil, err
	}
	others := without(dedupe(req.Participants), actor.ID)
	switch req.Type {
	case models.ChatDirect:
		if len(others) != 1 {
			return nil, fieldError("participants", "un chat directo tiene exactamente dos participantes")
		}
	case models.ChatGroup:
		if req.Name == "" {
			return nil, fieldError("name", "el nombre del grupo es obligatorio")
		}
		if len(others) < 2 {
			return nil, fieldError("participants", "un grupo necesita al menos dos participantes además del creador")
		}
	}

	users, err := s.users.ListByIDs(ctx, others)
	if err != nil {
		return nil, err
	}
	if len(users) != len(others) {
		return nil, fieldError("participants", "algún participante no existe")
	}
	for _, u := range users {
		if !u.Active {
			return nil, fieldError("participants", "algún participante está desactivado")
		}
	}
	if err := s.checkRecipients(ctx, actor, users); err != nil {
		return nil, err
	}

	if req.Type == models.ChatDirect {
		existing, err := s.chats.FindDirect(ctx, actor.ID, others[0])
		if err == nil {
			return existing, nil
		}
		if !errors.Is(err, repository.ErrNotFound) {
			return nil, err
		}
	}

	chat := &models.Chat{
		Type:         req.Type,
		CreatedBy:    &actor.ID,
		Participants: append([]uint{actor.ID}, others...),
	}
	if req.Type == models.ChatGroup {
		chat.Name = &req.Name
	}
	err = s.tx.WithinTx(ctx, func(ctx context.Context) error {
		return s.chats.Create(ctx, chat)
	})
	if err != nil {
		return nil, err
	}
	slog.Info("Chat created", "chat_id", chat.ID, "type", chat.Type, "participants", len(chat.Participants))
	return s.chats.GetForUser(ctx, chat.ID, actor.ID)
}

// ListChats returns the chats of actor with last message and unread count
func (s *MessagingService) ListChats(ctx context.Context, actor *models.User) ([]models.Chat, error) {
	return s.chats.ListForUser(ctx, actor.ID)
}

// GetChat returns one chat the actor takes part in
func (s *MessagingService) GetChat(ctx context.Context, actor *models.User, chatID uint) (*models.Chat, error) {
	chat, err := s.chats.GetForUser(ctx, chatID, actor.ID)
	if err != nil {
		return nil, err
	}
	if !chat.HasParticipant(actor.ID) {
		return nil, repository.ErrNotFound
	}
	return chat, nil
}

// ListMessages returns a page of messages, oldest first. beforeID pages
// backwards; 0 returns the newest page.
func (s *MessagingService) ListMessages(ctx context.Context, actor *models.User, chatID, beforeID uint, limit int) ([]models.Message, error) {
	if _, err := s.GetChat(ctx, actor, chatID); err != nil {
		return nil, err
	}
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	return s.chats.ListMessages(ctx, chatID, beforeID, limit)
}

// SendMessage stores a message, pushes it to online participants and
// notifies the others
func (s *MessagingService) SendMessage(ctx context.Context, actor *models.User, chatID uint, req SendMessageRequest) (*models.Message, error) {
	if err := validator.ValidateStruct(req); err != nil {
		return nil, err
	}
	req.Content = strings.TrimSpace(req.Content)
	switch req.Type {
	case models.MessageFile:
		if req.FileURL == nil || req.FileName == nil || *req.FileURL == "" || *req.FileName == "" {
			return nil, fieldError("fileUrl", "un mensaje de fichero necesita fileUrl y fileName")
		}
	case models.MessageEmoji:
		if req.Content == "" || utf8.RuneCountInString(req.Content) > 8 {
			return nil, fieldError("content", "emoji no válido")
		}
	default:
		if req.Content == "" {
			return nil, fieldError("content", "el mensaje está vacío")
		}
	}

	chat, err := s.GetChat(ctx, actor, chatID)
	if err != nil {
		return nil, err
	}
	others := without(chat.Participants, actor.ID)
	recipients, err := s.users.ListByIDs(ctx, others)
	if err != nil {
		return nil, err
	}
	if err := s.checkRecipients(ctx, actor, recipients); err != nil {
		return nil, err
	}

	msg := &models.Message{
		ChatID:   chatID,
		SenderID: actor.ID,
		Type:     req.Type,
		Content:  req.Content,
		FileURL:  req.FileURL,
		FileName: req.FileName,
		FileSize: req.FileSize,
	}
	err = s.tx.WithinTx(ctx, func(ctx context.Context) error {
		return s.chats.AddMessage(ctx, msg)
	})
	if err != nil {
		return nil, err
	}

	for _, id := range chat.Participants {
		s.publisher.Publish(id, realtime.Event{Type: realtime.EventMessage, Payload: msg})
	}
	preview := msg.Content
	if msg.Type == models.MessageFile {
		preview = *msg.FileName
	}
	if utf8.RuneCountInString(preview) > 80 {
		preview = string([]rune(preview)[:80]) + "…"
	}
	s.notifier.Notify(ctx, others, models.NotificationMessageReceived,
		"Nuevo mensaje de "+actor.Name, preview, fmt.Sprintf("/messages/%d", chatID))
	return msg, nil
}

// UploadAttachment stores a file for a chat and returns the file message
// fields to send with it
func (s *MessagingService) UploadAttachment(ctx context.Context, actor *models.User, chatID uint, name string, r io.Reader) (*SendMessageRequest, error) {
	if _, err := s.GetChat(ctx, actor, chatID); err != nil {
		return nil, err
	}
	name = validator.SanitizeString(name)
	if name == "" {
		return nil, fieldError("file", "el fichero debe tener nombre")
	}
	key, size, err := s.files.Save(ctx, name, r)
	if err != nil {
		if errors.Is(err, storage.ErrTooLarge) {
			return nil, fieldError("file", "el fichero supera el tamaño máximo permitido")
		}
		return nil, err
	}
	url := fmt.Sprintf("/api/chats/%d/files/%s", chatID, key)
	return &SendMessageRequest{Type: models.MessageFile, FileURL: &url, FileName: &name, FileSize: &size}, nil
}

// OpenAttachment opens a chat file for a participant
func (s *MessagingService) OpenAttachment(ctx context.Context, actor *models.User, chatID uint, key string) (io.ReadCloser, error) {
	if _, err := s.GetChat(ctx, actor, chatID); err != nil {
		return nil, err
	}
	body, err := s.files.Open(ctx, key)
	if errors.Is(err, storage.ErrNotFound) {
		return nil, repository.ErrNotFound
	}
	return body, err
}

// MarkRead marks the chat read by actor and tells the other participants
func (s *MessagingService) MarkRead(ctx context.Context, actor *models.User, chatID uint) (int64, error) {
	chat, err := s.GetChat(ctx, actor, chatID)
	if err != nil {
		return 0, err
	}
	n, err := s.chats.MarkRead(ctx, chatID, actor.ID)
	if err != nil {
		return 0, err
	}
	if n > 0 {
		payload := map[string]uint{"chatId": chatID, "userId": actor.ID}
		for _, id := range chat.Participants {
			s.publisher.Publish(id, realtime.Event{Type: realtime.EventChatRead, Payload: payload})
		}
	}
	return n, nil
}
