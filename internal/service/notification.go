package service

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/linemk/peo-market/internal/domain/models"
	"github.com/linemk/peo-market/internal/storage"
)

const defaultInboxLimit = 50

type NotificationService interface {
	List(ctx context.Context, recipientID int64, limit int) ([]*models.Notification, error)
}

type notificationService struct {
	log  *slog.Logger
	repo storage.NotificationStorage
}

func NewNotificationService(log *slog.Logger, repo storage.NotificationStorage) NotificationService {
	return &notificationService{log: log, repo: repo}
}

// List - входящие получателя, новые первыми
func (s *notificationService) List(ctx context.Context, recipientID int64, limit int) ([]*models.Notification, error) {
	const op = "service.NotificationService.List"
	logger := s.log.With(slog.String("op", op), slog.Int64("recipientID", recipientID))

	if limit <= 0 || limit > defaultInboxLimit {
		limit = defaultInboxLimit
	}

	list, err := s.repo.ListByRecipient(ctx, recipientID, limit)
	if err != nil {
		logger.Error("failed to list notifications", slog.Any("error", err))
		return nil, fmt.Errorf("%s: failed to list notifications: %w", op, err)
	}
	if list == nil {
		list = []*models.Notification{}
	}
	return list, nil
}
