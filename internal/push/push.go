// Package push доставляет push-уведомления на устройства пользователей.
// Доставка best-effort: ошибки пишутся в лог и не возвращаются вызывающему коду.
package push

import (
	"context"
	"errors"
	"log/slog"
)

// ErrUnregistered - токен устройства больше не действителен
var ErrUnregistered = errors.New("device token is no longer registered")

// Message - содержимое push-уведомления
type Message struct {
	Title string
	Body  string
	Data  map[string]string
}

// Alert - уведомление для конкретного пользователя, токен устройства ищется при отправке
type Alert struct {
	UserID  int64
	Message Message
}

// Sender отправляет сообщение на устройство с заданным токеном
type Sender interface {
	Send(ctx context.Context, token string, msg Message) error
}

// LogSender только пишет сообщение в лог, используется когда push выключен
type LogSender struct {
	log *slog.Logger
}

func NewLogSender(log *slog.Logger) *LogSender {
	return &LogSender{log: log.With(slog.String("component", "push.LogSender"))}
}

func (s *LogSender) Send(_ context.Context, token string, msg Message) error {
	s.log.Debug("push skipped, sender disabled",
		slog.String("title", msg.Title),
		slog.String("body", msg.Body),
		slog.Int("token_len", len(token)),
	)
	return nil
}
