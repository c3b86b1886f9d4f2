package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"

	"github.com/linemk/peo-market/internal/domain/models"
	"github.com/linemk/peo-market/internal/lib/apperr"
	"github.com/linemk/peo-market/internal/storage"
)

type TransitionInput struct {
	ItemID       int64
	ActorID      int64
	Status       string
	ShippingCost *int64 // учитывается, только когда продавец подтверждает позицию
}

type OrderService interface {
	// Transition переводит позицию заказа в новый статус под блокировкой строки
	Transition(ctx context.Context, in TransitionInput) (*models.OrderItem, error)
	ListOrders(ctx context.Context, actorID int64, role string) ([]*models.Order, error)
}

type orderService struct {
	log       *slog.Logger
	db        *sql.DB
	orderRepo storage.OrderStorage
	fanout    *fanout
	notifier  Notifier
}

func NewOrderService(
	log *slog.Logger,
	db *sql.DB,
	orderRepo storage.OrderStorage,
	notificationRepo storage.NotificationStorage,
	chatRepo storage.ChatStorage,
	bankRepo storage.PaymentBankStorage,
	notifier Notifier,
) OrderService {
	return &orderService{
		log:       log,
		db:        db,
		orderRepo: orderRepo,
		fanout:    &fanout{notifications: notificationRepo, chats: chatRepo, banks: bankRepo},
		notifier:  notifier,
	}
}

func (s *orderService) Transition(ctx context.Context, in TransitionInput) (*models.OrderItem, error) {
	const op = "service.OrderService.Transition"
	logger := s.log.With(
		slog.String("op", op),
		slog.Int64("itemID", in.ItemID),
		slog.Int64("actorID", in.ActorID),
		slog.String("status", in.Status),
	)

	next, err := models.ParseStatus(in.Status)
	if err != nil {
		logger.Warn("unknown status")
		return nil, fmt.Errorf("%s: %w", op, apperr.Validation(apperr.CodeInvalidStatus,
			fmt.Sprintf("unknown status %q", in.Status)))
	}
	if in.ShippingCost != nil && *in.ShippingCost < 0 {
		logger.Warn("negative shipping cost")
		return nil, fmt.Errorf("%s: %w", op, apperr.Validation(apperr.CodeInvalidShipping, "shipping cost must not be negative"))
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		logger.Error("failed to begin transaction", slog.Any("error", err))
		return nil, fmt.Errorf("%s: failed to begin transaction: %w", op, err)
	}
	defer rollback(logger, tx)

	// проверка и запись под одной блокировкой: повторный запрос дождётся её и увидит новый статус
	item, err := s.orderRepo.LockOrderItem(ctx, tx, in.ItemID)
	if err != nil {
		if errors.Is(err, storage.ErrOrderItemNotFound) {
			logger.Warn("order item not found")
			return nil, fmt.Errorf("%s: %w", op, apperr.NotFound("order item", err))
		}
		logger.Error("failed to lock order item", slog.Any("error", err))
		return nil, fmt.Errorf("%s: failed to lock order item: %w", op, err)
	}

	role, ok := item.RoleOf(in.ActorID)
	if !ok {
		logger.Warn("actor is not a party of the order")
		return nil, fmt.Errorf("%s: %w", op, apperr.Permission("you are not a party of this order"))
	}

	prev := item.Status
	switch err := models.CheckTransition(prev, next, role); {
	case errors.Is(err, models.ErrIllegalTransition):
		logger.Warn("illegal transition", slog.String("current", string(prev)))
		return nil, fmt.Errorf("%s: %w", op, apperr.IllegalTransition(string(prev), string(next)))
	case errors.Is(err, models.ErrRoleNotAllowed):
		logger.Warn("role not allowed", slog.String("role", string(role)))
		return nil, fmt.Errorf("%s: %w", op, apperr.Permission(
			fmt.Sprintf("%s cannot change status from %s to %s", role, prev, next)))
	}

	var shipping *int64
	if next == models.StatusConfirmed && role == models.RoleSeller {
		shipping = in.ShippingCost
	}
	if err := s.orderRepo.UpdateOrderItemStatus(ctx, tx, item.ID, next, shipping); err != nil {
		logger.Error("failed to update order item status", slog.Any("error", err))
		return nil, fmt.Errorf("%s: failed to update order item status: %w", op, err)
	}
	item.Status = next
	if shipping != nil {
		item.ShippingCost = shipping
	}

	// статус заказа производный, пересчитываем по всем позициям.
	// Блокировка заказа упорядочивает пересчёт между переходами разных позиций:
	// следующий увидит уже закоммиченные статусы. Порядок всегда позиция, затем заказ
	if err := s.orderRepo.LockOrder(ctx, tx, item.OrderID); err != nil {
		logger.Error("failed to lock order", slog.Any("error", err))
		return nil, fmt.Errorf("%s: failed to lock order: %w", op, err)
	}
	statuses, err := s.orderRepo.ListItemStatuses(ctx, tx, item.OrderID)
	if err != nil {
		logger.Error("failed to list item statuses", slog.Any("error", err))
		return nil, fmt.Errorf("%s: failed to list item statuses: %w", op, err)
	}
	if err := s.orderRepo.UpdateOrderSummary(ctx, tx, item.OrderID, models.DeriveOrderStatus(statuses)); err != nil {
		logger.Error("failed to update order summary", slog.Any("error", err))
		return nil, fmt.Errorf("%s: failed to update order summary: %w", op, err)
	}

	if err := s.fanout.transitionEffects(ctx, tx, item, prev, in.ActorID, role); err != nil {
		logger.Error("failed to create transition side effects", slog.Any("error", err))
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	if err := tx.Commit(); err != nil {
		logger.Error("failed to commit transaction", slog.Any("error", err))
		return nil, fmt.Errorf("%s: failed to commit transaction: %w", op, err)
	}

	s.notifier.Enqueue(statusAlert(item, item.Counterparty(role)))

	logger.Info("order item status changed", slog.String("from", string(prev)), slog.String("to", string(next)))
	return item, nil
}

func (s *orderService) ListOrders(ctx context.Context, actorID int64, role string) ([]*models.Order, error) {
	const op = "service.OrderService.ListOrders"
	logger := s.log.With(slog.String("op", op), slog.Int64("actorID", actorID), slog.String("role", role))

	r := models.Role(role)
	if r != models.RoleBuyer && r != models.RoleSeller {
		logger.Warn("invalid role")
		return nil, fmt.Errorf("%s: %w", op, apperr.Validation(apperr.CodeInvalidRole, "role must be buyer or seller"))
	}

	tx, err := s.db.BeginTx(ctx, readOnly)
	if err != nil {
		logger.Error("failed to begin transaction", slog.Any("error", err))
		return nil, fmt.Errorf("%s: failed to begin transaction: %w", op, err)
	}
	defer rollback(logger, tx)

	orders, err := s.orderRepo.ListOrdersByUser(ctx, tx, actorID, r)
	if err != nil {
		logger.Error("failed to list orders", slog.Any("error", err))
		return nil, fmt.Errorf("%s: failed to list orders: %w", op, err)
	}
	if len(orders) == 0 {
		return []*models.Order{}, nil
	}

	ids := make([]int64, len(orders))
	byID := make(map[int64]*models.Order, len(orders))
	for i, o := range orders {
		ids[i] = o.ID
		o.Items = []*models.OrderItem{}
		byID[o.ID] = o
	}
	items, err := s.orderRepo.ListItemsByOrderIDs(ctx, tx, ids)
	if err != nil {
		logger.Error("failed to list order items", slog.Any("error", err))
		return nil, fmt.Errorf("%s: failed to list order items: %w", op, err)
	}
	for _, it := range items {
		if o, ok := byID[it.OrderID]; ok {
			o.Items = append(o.Items, it)
		}
	}

	if err := tx.Commit(); err != nil {
		logger.Error("failed to commit transaction", slog.Any("error", err))
		return nil, fmt.Errorf("%s: failed to commit transaction: %w", op, err)
	}
	return orders, nil
}
