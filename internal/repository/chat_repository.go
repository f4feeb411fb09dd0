package repository

import (
	"context"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"fp-innova/internal/database"
	"fp-innova/internal/models"
)

const messageColumns = `id, chat_id, sender_id, type, content, file_url, file_name, file_size, created_at`

// ChatRepository stores chats, participants, messages and read markers
type ChatRepository struct {
	db *sqlx.DB
}

// NewChatRepository creates a new chat repository
func NewChatRepository(db *sqlx.DB) *ChatRepository {
	return &ChatRepository{db: db}
}

// Create inserts a chat and its participants
func (r *ChatRepository) Create(ctx context.Context, chat *models.Chat) error {
	conn := database.Conn(ctx, r.db)
	err := sqlx.GetContext(ctx, conn, chat, `
		INSERT INTO chats (type, name, avatar, created_by)
		VALUES ($1, $2, $3, $4)
		RETURNING id, type, name, avatar, created_by, last_message_id, created_at, updated_at, 0 AS unread_count`,
		chat.Type, chat.Name, chat.Avatar, chat.CreatedBy)
	if err != nil {
		return translate("create chat", err)
	}
	_, err = conn.ExecContext(ctx, `
		INSERT INTO chat_participants (chat_id, user_id)
		SELECT $1::BIGINT, UNNEST($2::BIGINT[])
		ON CONFLICT DO NOTHING`, chat.ID, pq.Array(toInt64s(chat.Participants)))
	if err != nil {
		return translate("add chat participants", err)
	}
	return nil
}

// FindDirect returns the direct chat between two users
func (r *ChatRepository) FindDirect(ctx context.Context, userA, userB uint) (*models.Chat, error) {
	var id uint
	err := sqlx.GetContext(ctx, database.Conn(ctx, r.db), &id, `
		SELECT c.id FROM chats c
		WHERE c.type = 'direct'
		  AND EXISTS (SELECT 1 FROM chat_participants p WHERE p.chat_id = c.id AND p.user_id = $1)
		  AND EXISTS (SELECT 1 FROM chat_participants p WHERE p.chat_id = c.id AND p.user_id = $2)
		ORDER BY c.id LIMIT 1`, userA, userB)
	if err != nil {
		return nil, translate("find direct chat", err)
	}
	return r.GetForUser(ctx, id, userA)
}

// GetForUser returns a chat with participants, last message and the unread
// count of userID
func (r *ChatRepository) GetForUser(ctx context.Context, chatID, userID uint) (*models.Chat, error) {
	chats, err := r.list(ctx, userID, `c.id = $2`, chatID)
	if err != nil {
		return nil, err
	}
	if len(chats) == 0 {
		return nil, ErrNotFound
	}
	return &chats[0], nil
}

// ListForUser returns the chats of userID, most recently active first
func (r *ChatRepository) ListForUser(ctx context.Context, userID uint) ([]models.Chat, error) {
	return r.list(ctx, userID, `TRUE`)
}

func (r *ChatRepository) list(ctx context.Context, userID uint, cond string, args ...any) ([]models.Chat, error) {
	conn := database.Conn(ctx, r.db)
	chats := []models.Chat{}
	err := sqlx.SelectContext(ctx, conn, &chats, `
		SELECT c.id, c.type, c.name, c.avatar, c.created_by, c.last_message_id, c.created_at, c.updated_at,
		       (SELECT COUNT(*) FROM messages m
		        WHERE m.chat_id = c.id AND m.sender_id <> $1
		          AND NOT EXISTS (SELECT 1 FROM message_reads mr WHERE mr.message_id = m.id AND mr.user_id = $1)
		       ) AS unread_count
		FROM chats c
		JOIN chat_participants cp ON cp.chat_id = c.id AND cp.user_id = $1
		WHERE `+cond+`
		ORDER BY c.updated_at DESC, c.id DESC`, append([]any{userID}, args...)...)
	if err != nil {
		return nil, translate("list chats", err)
	}
	if len(chats) == 0 {
		return chats, nil
	}

	ids := make([]int64, len(chats))
	byID := make(map[uint]*models.Chat, len(chats))
	var lastIDs []int64
	for i := range chats {
		ids[i] = int64(chats[i].ID)
		byID[chats[i].ID] = &chats[i]
		chats[i].Participants = []uint{}
		if chats[i].LastMessageID != nil {
			lastIDs = append(lastIDs, int64(*chats[i].LastMessageID))
		}
	}

	var participants []struct {
		ChatID uint `db:"chat_id"`
		UserID uint `db:"user_id"`
	}
	if err := sqlx.SelectContext(ctx, conn, &participants,
		`SELECT chat_id, user_id FROM chat_participants WHERE chat_id = ANY($1) ORDER BY joined_at, user_id`, pq.Array(ids)); err != nil {
		return nil, translate("list chat participants", err)
	}
	for _, p := range participants {
		byID[p.ChatID].Participants = append(byID[p.ChatID].Participants, p.UserID)
	}

	if len(lastIDs) > 0 {
		var last []models.Message
		if err := sqlx.SelectContext(ctx, conn, &last,
			`SELECT `+messageColumns+` FROM messages WHERE id = ANY($1)`, pq.Array(lastIDs)); err != nil {
			return nil, translate("list last messages", err)
		}
		if err := r.loadReadBy(ctx, last); err != nil {
			return nil, err
		}
		for i := range last {
			m := last[i]
			byID[m.ChatID].LastMessage = &m
		}
	}
	return chats, nil
}

// AddMessage stores a message, marks it read by the sender and makes it the
// last message of the chat
func (r *ChatRepository) AddMessage(ctx context.Context, m *models.Message) error {
	conn := database.Conn(ctx, r.db)
	err := sqlx.GetContext(ctx, conn, m, `
		INSERT INTO messages (chat_id, sender_id, type, content, file_url, file_name, file_size)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING `+messageColumns,
		m.ChatID, m.SenderID, m.Type, m.Content, m.FileURL, m.FileName, m.FileSize)
	if err != nil {
		return translate("add message", err)
	}
	if _, err := conn.ExecContext(ctx,
		`INSERT INTO message_reads (message_id, user_id) VALUES ($1, $2)`, m.ID, m.SenderID); err != nil {
		return translate("mark message read", err)
	}
	if _, err := conn.ExecContext(ctx,
		`UPDATE chats SET last_message_id = $2, updated_at = $3 WHERE id = $1`, m.ChatID, m.ID, m.CreatedAt); err != nil {
		return translate("update chat", err)
	}
	m.ReadBy = []uint{m.SenderID}
	return nil
}

// ListMessages returns up to limit messages of a chat older than beforeID
// (0 for the newest), oldest first
func (r *ChatRepository) ListMessages(ctx context.Context, chatID, beforeID uint, limit int) ([]models.Message, error) {
	messages := []models.Message{}
	err := sqlx.SelectContext(ctx, database.Conn(ctx, r.db), &messages, `
		SELECT * FROM (
			SELECT `+messageColumns+` FROM messages
			WHERE chat_id = $1 AND ($2 = 0 OR id < $2)
			ORDER BY id DESC LIMIT $3
		) page ORDER BY id`, chatID, beforeID, limit)
	if err != nil {
		return nil, translate("list messages", err)
	}
	if err := r.loadReadBy(ctx, messages); err != nil {
		return nil, err
	}
	return messages, nil
}

func (r *ChatRepository) loadReadBy(ctx context.Context, messages []models.Message) error {
	if len(messages) == 0 {
		return nil
	}
	ids := make([]int64, len(messages))
	byID := make(map[uint]*models.Message, len(messages))
	for i := range messages {
		ids[i] = int64(messages[i].ID)
		byID[messages[i].ID] = &messages[i]
		messages[i].ReadBy = []uint{}
	}
	var reads []struct {
		MessageID uint `db:"message_id"`
		UserID    uint `db:"user_id"`
	}
	if err := sqlx.SelectContext(ctx, database.Conn(ctx, r.db), &reads,
		`SELECT message_id, user_id FROM message_reads WHERE message_id = ANY($1) ORDER BY read_at`, pq.Array(ids)); err != nil {
		return translate("list message reads", err)
	}
	for _, rd := range reads {
		byID[rd.MessageID].ReadBy = append(byID[rd.MessageID].ReadBy, rd.UserID)
	}
	return nil
}

// MarkRead marks every message of the chat read by userID and returns how many changed
func (r *ChatRepository) MarkRead(ctx context.Context, chatID, userID uint) (int64, error) {
	res, err := database.Conn(ctx, r.db).ExecContext(ctx, `
		INSERT INTO message_reads (message_id, user_id)
		SELECT id, $2::BIGINT FROM messages WHERE chat_id = $1
		ON CONFLICT DO NOTHING`, chatID, userID)
	if err != nil {
		return 0, translate("mark chat read", err)
	}
	return res.RowsAffected()
}
