package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/linemk/peo-market/internal/domain/models"
	"github.com/linemk/peo-market/internal/lib/apperr"
	"github.com/linemk/peo-market/internal/storage"
)

const defaultMessagesLimit = 100

// ChatService - чтение переписки; сообщения создаются побочно при оформлении и переходах
type ChatService interface {
	List(ctx context.Context, userID int64) ([]*models.Chat, error)
	Messages(ctx context.Context, actorID, chatID int64, limit int) ([]*models.ChatMessage, error)
}

type chatService struct {
	log  *slog.Logger
	repo storage.ChatStorage
}

func NewChatService(log *slog.Logger, repo storage.ChatStorage) ChatService {
	return &chatService{log: log, repo: repo}
}

func (s *chatService) List(ctx context.Context, userID int64) ([]*models.Chat, error) {
	const op = "service.ChatService.List"
	logger := s.log.With(slog.String("op", op), slog.Int64("userID", userID))

	chats, err := s.repo.ListChatsByUser(ctx, userID)
	if err != nil {
		logger.Error("failed to list chats", slog.Any("error", err))
		return nil, fmt.Errorf("%s: failed to list chats: %w", op, err)
	}
	if chats == nil {
		chats = []*models.Chat{}
	}
	return chats, nil
}

// Messages - последние сообщения чата; читать может только участник
func (s *chatService) Messages(ctx context.Context, actorID, chatID int64, limit int) ([]*models.ChatMessage, error) {
	const op = "service.ChatService.Messages"
	logger := s.log.With(
		slog.String("op", op),
		slog.Int64("actorID", actorID),
		slog.Int64("chatID", chatID),
	)

	if limit <= 0 || limit > defaultMessagesLimit {
		limit = defaultMessagesLimit
	}

	chat, err := s.repo.GetChat(ctx, chatID)
	if err != nil {
		if errors.Is(err, storage.ErrChatNotFound) {
			logger.Warn("chat not found")
			return nil, fmt.Errorf("%s: %w", op, apperr.NotFound("chat", err))
		}
		logger.Error("failed to get chat", slog.Any("error", err))
		return nil, fmt.Errorf("%s: failed to get chat: %w", op, err)
	}
	if !chat.HasParticipant(actorID) {
		logger.Warn("actor is not a chat participant")
		return nil, fmt.Errorf("%s: %w", op, apperr.Permission("you are not a participant of this chat"))
	}

	messages, err := s.repo.ListChatMessages(ctx, chatID, limit)
	if err != nil {
		logger.Error("failed to list chat messages", slog.Any("error", err))
		return nil, fmt.Errorf("%s: failed to list chat messages: %w", op, err)
	}
	if messages == nil {
		messages = []*models.ChatMessage{}
	}
	return messages, nil
}
