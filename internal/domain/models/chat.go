package models

import "time"

// Chat - переписка двух пользователей, порядок участников не важен
type Chat struct {
	ID         int64  `json:"id"`
	UUID       string `json:"uuid"`
	UserID     int64  `json:"user_id"`
	SendToUser int64  `json:"send_to_user_id"`

	// последнее сообщение заполняется только в списке чатов
	LastMessage   string     `json:"last_message,omitempty"`
	LastMessageAt *time.Time `json:"last_message_at,omitempty"`
}

// HasParticipant - пользователь одна из сторон чата
func (c *Chat) HasParticipant(userID int64) bool {
	return c.UserID == userID || c.SendToUser == userID
}

// ChatMessage - сообщение в чате, может ссылаться на позицию заказа или товар
type ChatMessage struct {
	ID        int64      `json:"id"`
	UUID      string     `json:"uuid"`
	ChatID    int64      `json:"chat_id"`
	UserID    int64      `json:"user_id"`
	Object    *ObjectRef `json:"object,omitempty"`
	Message   string     `json:"message"`
	CreatedAt time.Time  `json:"created_at"`
}
