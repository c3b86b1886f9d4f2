package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"github.com/linemk/peo-market/internal/domain/models"
)

// ChatStorage - чаты и сообщения, которые создаются побочно при работе с заказами
type ChatStorage interface {
	// GetOrCreateChat ищет чат пары пользователей в любом порядке и создаёт его при отсутствии.
	GetOrCreateChat(ctx context.Context, tx *sql.Tx, userID, sendToUserID int64) (*models.Chat, error)
	// BulkCreateMessages вставляет сообщения одним запросом и возвращает число вставленных.
	BulkCreateMessages(ctx context.Context, tx *sql.Tx, messages []*models.ChatMessage) (int64, error)
	// ListChatsByUser возвращает чаты пользователя с последним сообщением, свежие первыми.
	ListChatsByUser(ctx context.Context, userID int64) ([]*models.Chat, error)
	GetChat(ctx context.Context, id int64) (*models.Chat, error)
	// ListChatMessages возвращает последние limit сообщений чата в хронологическом порядке.
	ListChatMessages(ctx context.Context, chatID int64, limit int) ([]*models.ChatMessage, error)
}

type chatRepository struct {
	db *sql.DB
}

func NewChatRepository(db *sql.DB) ChatStorage {
	return &chatRepository{db: db}
}

func (r *chatRepository) findChat(ctx context.Context, tx *sql.Tx, userID, sendToUserID int64) (*models.Chat, error) {
	query := `
		SELECT id, uuid, user_id, send_to_user_id
		FROM chats
		WHERE (user_id = $1 AND send_to_user_id = $2) OR (user_id = $2 AND send_to_user_id = $1)
		ORDER BY id
		LIMIT 1`
	chat := &models.Chat{}
	err := tx.QueryRowContext(ctx, query, userID, sendToUserID).Scan(&chat.ID, &chat.UUID, &chat.UserID, &chat.SendToUser)
	if err != nil {
		return nil, err
	}
	return chat, nil
}

func (r *chatRepository) GetOrCreateChat(ctx context.Context, tx *sql.Tx, userID, sendToUserID int64) (*models.Chat, error) {
	chat, err := r.findChat(ctx, tx, userID, sendToUserID)
	if err == nil {
		return chat, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("failed to find chat: %w", err)
	}

	// уникальный индекс по неупорядоченной паре не даёт создать второй чат параллельно
	chat = &models.Chat{UUID: uuid.NewString(), UserID: userID, SendToUser: sendToUserID}
	query := `
		INSERT INTO chats (uuid, user_id, send_to_user_id, created_at)
		VALUES ($1, $2, $3, NOW())
		ON CONFLICT ((LEAST(user_id, send_to_user_id)), (GREATEST(user_id, send_to_user_id))) DO NOTHING
		RETURNING id`
	err = tx.QueryRowContext(ctx, query, chat.UUID, userID, sendToUserID).Scan(&chat.ID)
	if err == nil {
		return chat, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("failed to create chat: %w", err)
	}

	// чат успела создать другая транзакция
	chat, err = r.findChat(ctx, tx, userID, sendToUserID)
	if err != nil {
		return nil, fmt.Errorf("failed to find chat after conflict: %w", err)
	}
	return chat, nil
}

func (r *chatRepository) BulkCreateMessages(ctx context.Context, tx *sql.Tx, messages []*models.ChatMessage) (int64, error) {
	if len(messages) == 0 {
		return 0, nil
	}

	var (
		uuids    = make([]string, len(messages))
		chats    = make([]int64, len(messages))
		users    = make([]int64, len(messages))
		kinds    = make([]string, len(messages))
		objects  = make([]int64, len(messages))
		contents = make([]string, len(messages))
	)
	for i, m := range messages {
		if m.UUID == "" {
			m.UUID = uuid.NewString()
		}
		uuids[i] = m.UUID
		chats[i] = m.ChatID
		users[i] = m.UserID
		contents[i] = m.Message
		if m.Object != nil {
			kinds[i] = string(m.Object.Kind)
			objects[i] = m.Object.ID
		}
	}

	// пустой тип и нулевой id означают сообщение без ссылки
	query := `
		INSERT INTO chat_messages (uuid, chat_id, user_id, object_kind, object_id, message, created_at)
		SELECT t.u, t.c, t.us, NULLIF(t.k, ''), NULLIF(t.o, 0), t.m, NOW()
		FROM unnest($1::uuid[], $2::bigint[], $3::bigint[], $4::text[], $5::bigint[], $6::text[]) AS t(u, c, us, k, o, m)`
	res, err := tx.ExecContext(ctx, query,
		pq.Array(uuids), pq.Array(chats), pq.Array(users),
		pq.Array(kinds), pq.Array(objects), pq.Array(contents),
	)
	if err != nil {
		return 0, fmt.Errorf("failed to create chat messages: %w", err)
	}
	return res.RowsAffected()
}

func (r *chatRepository) ListChatsByUser(ctx context.Context, userID int64) ([]*models.Chat, error) {
	query := `
		SELECT c.id, c.uuid, c.user_id, c.send_to_user_id, m.message, m.created_at
		FROM chats c
		LEFT JOIN LATERAL (
		    SELECT message, created_at
		    FROM chat_messages
		    WHERE chat_id = c.id
		    ORDER BY created_at DESC, id DESC
		    LIMIT 1
		) m ON TRUE
		WHERE c.user_id = $1 OR c.send_to_user_id = $1
		ORDER BY m.created_at DESC NULLS LAST, c.id DESC`
	rows, err := r.db.QueryContext(ctx, query, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to query chats: %w", err)
	}
	defer rows.Close()

	var chats []*models.Chat
	for rows.Next() {
		var (
			c    = &models.Chat{}
			last sql.NullString
			at   sql.NullTime
		)
		if err := rows.Scan(&c.ID, &c.UUID, &c.UserID, &c.SendToUser, &last, &at); err != nil {
			return nil, fmt.Errorf("failed to scan chat: %w", err)
		}
		c.LastMessage = last.String
		if at.Valid {
			t := at.Time
			c.LastMessageAt = &t
		}
		chats = append(chats, c)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return chats, nil
}

func (r *chatRepository) GetChat(ctx context.Context, id int64) (*models.Chat, error) {
	chat := &models.Chat{}
	err := r.db.QueryRowContext(ctx, "SELECT id, uuid, user_id, send_to_user_id FROM chats WHERE id = $1", id).
		Scan(&chat.ID, &chat.UUID, &chat.UserID, &chat.SendToUser)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrChatNotFound
		}
		return nil, fmt.Errorf("failed to get chat: %w", err)
	}
	return chat, nil
}

func (r *chatRepository) ListChatMessages(ctx context.Context, chatID int64, limit int) ([]*models.ChatMessage, error) {
	query := `
		SELECT id, uuid, chat_id, user_id, object_kind, object_id, message, created_at
		FROM (
		    SELECT id, uuid, chat_id, user_id, object_kind, object_id, message, created_at
		    FROM chat_messages
		    WHERE chat_id = $1
		    ORDER BY created_at DESC, id DESC
		    LIMIT $2
		) last
		ORDER BY created_at, id`
	rows, err := r.db.QueryContext(ctx, query, chatID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query chat messages: %w", err)
	}
	defer rows.Close()

	var messages []*models.ChatMessage
	for rows.Next() {
		var (
			m      = &models.ChatMessage{}
			kind   sql.NullString
			object sql.NullInt64
		)
		if err := rows.Scan(&m.ID, &m.UUID, &m.ChatID, &m.UserID, &kind, &object, &m.Message, &m.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan chat message: %w", err)
		}
		if kind.Valid && object.Valid {
			m.Object = &models.ObjectRef{Kind: models.ObjectKind(kind.String), ID: object.Int64}
		}
		messages = append(messages, m)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return messages, nil
}
