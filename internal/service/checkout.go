package service

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"

	"github.com/linemk/peo-market/internal/domain/models"
	"github.com/linemk/peo-market/internal/lib/apperr"
	"github.com/linemk/peo-market/internal/push"
	"github.com/linemk/peo-market/internal/storage"
)

type CheckoutResult struct {
	OrdersCreated int             `json:"orders_created"`
	ItemsCreated  int             `json:"items_created"`
	Orders        []*models.Order `json:"orders"`
}

type CheckoutService interface {
	// Checkout превращает корзины покупателя в заказы одной транзакцией.
	// sellerIDs и cartIDs - параллельные списки; продавец всегда берётся из корзины
	Checkout(ctx context.Context, buyerID int64, sellerIDs, cartIDs []int64) (*CheckoutResult, error)
}

type checkoutService struct {
	log       *slog.Logger
	db        *sql.DB
	cartRepo  storage.CartStorage
	itemRepo  storage.CartItemStorage
	orderRepo storage.OrderStorage
	fanout    *fanout
	notifier  Notifier
	lenient   bool
}

func NewCheckoutService(
	log *slog.Logger,
	db *sql.DB,
	cartRepo storage.CartStorage,
	itemRepo storage.CartItemStorage,
	orderRepo storage.OrderStorage,
	notificationRepo storage.NotificationStorage,
	chatRepo storage.ChatStorage,
	notifier Notifier,
	lenientBatches bool,
) CheckoutService {
	return &checkoutService{
		log:       log,
		db:        db,
		cartRepo:  cartRepo,
		itemRepo:  itemRepo,
		orderRepo: orderRepo,
		fanout:    &fanout{notifications: notificationRepo, chats: chatRepo},
		notifier:  notifier,
		lenient:   lenientBatches,
	}
}

func validateCheckout(sellerIDs, cartIDs []int64) error {
	if len(sellerIDs) == 0 || len(cartIDs) == 0 {
		return apperr.Validation(apperr.CodeMissingParams, "seller_ids and cart_ids are required")
	}
	if len(sellerIDs) != len(cartIDs) {
		return apperr.Validation(apperr.CodeMissingParams, "seller_ids and cart_ids must have the same length")
	}
	seen := make(map[int64]struct{}, len(cartIDs))
	for _, id := range cartIDs {
		if _, ok := seen[id]; ok {
			return apperr.Validation(apperr.CodeMissingParams, fmt.Sprintf("cart %d is listed twice", id))
		}
		seen[id] = struct{}{}
	}
	return nil
}

func (s *checkoutService) Checkout(ctx context.Context, buyerID int64, sellerIDs, cartIDs []int64) (*CheckoutResult, error) {
	const op = "service.CheckoutService.Checkout"
	logger := s.log.With(
		slog.String("op", op),
		slog.Int64("buyerID", buyerID),
		slog.Any("cartIDs", cartIDs),
	)

	if err := validateCheckout(sellerIDs, cartIDs); err != nil {
		logger.Warn("invalid checkout request", slog.Any("error", err))
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	logger.Info("starting checkout transaction")
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		logger.Error("failed to begin transaction", slog.Any("error", err))
		return nil, fmt.Errorf("%s: failed to begin transaction: %w", op, err)
	}
	defer rollback(logger, tx)

	// блокируем корзины в порядке id, повторный сабмит ждёт здесь и затем видит заказы
	carts, err := s.cartRepo.LockCartsForBuyer(ctx, tx, buyerID, cartIDs)
	if err != nil {
		logger.Error("failed to lock carts", slog.Any("error", err))
		return nil, fmt.Errorf("%s: failed to lock carts: %w", op, err)
	}
	if len(carts) != len(cartIDs) {
		logger.Warn("some carts not found", slog.Int("found", len(carts)))
		return nil, fmt.Errorf("%s: %w", op, apperr.NotFound("cart", storage.ErrCartNotFound))
	}

	byID := make(map[int64]*models.Cart, len(carts))
	for _, c := range carts {
		byID[c.ID] = c
	}
	for i, id := range cartIDs {
		if c := byID[id]; c.SellerID != sellerIDs[i] {
			logger.Warn("client seller id ignored",
				slog.Int64("cartID", id),
				slog.Int64("clientSellerID", sellerIDs[i]),
				slog.Int64("sellerID", c.SellerID),
			)
		}
	}

	ordered, err := s.orderRepo.OrderedCartIDs(ctx, tx, buyerID, cartIDs)
	if err != nil {
		logger.Error("failed to check ordered carts", slog.Any("error", err))
		return nil, fmt.Errorf("%s: failed to check ordered carts: %w", op, err)
	}
	if len(ordered) > 0 {
		logger.Warn("carts already ordered", slog.Any("ordered", ordered))
		return nil, fmt.Errorf("%s: %w", op, apperr.Conflict(apperr.CodeCartAlreadyOrdered,
			fmt.Sprintf("carts already ordered: %v", ordered)))
	}
	for _, c := range carts {
		if c.IsDone {
			logger.Warn("cart is done", slog.Int64("cartID", c.ID))
			return nil, fmt.Errorf("%s: %w", op, apperr.Conflict(apperr.CodeCartAlreadyOrdered,
				fmt.Sprintf("cart %d is already ordered", c.ID)))
		}
	}

	cartItems, err := s.itemRepo.ListByCartIDs(ctx, tx, cartIDs)
	if err != nil {
		logger.Error("failed to list cart items", slog.Any("error", err))
		return nil, fmt.Errorf("%s: failed to list cart items: %w", op, err)
	}

	// заказы: любая ошибка прерывает оформление целиком
	orders := make([]*models.Order, 0, len(cartIDs))
	for _, id := range cartIDs {
		orders = append(orders, models.NewOrderFromCart(byID[id]))
	}
	if _, err := s.orderRepo.BulkCreateOrders(ctx, tx, orders); err != nil {
		if storage.IsIntegrityViolation(err) {
			logger.Error("orders violate integrity", slog.Any("error", err))
			return nil, fmt.Errorf("%s: %w", op, apperr.Integrity("failed to create orders", err))
		}
		logger.Error("failed to create orders", slog.Any("error", err))
		return nil, fmt.Errorf("%s: failed to create orders: %w", op, err)
	}

	orderByCart := make(map[int64]*models.Order, len(orders))
	orderByID := make(map[int64]*models.Order, len(orders))
	for _, o := range orders {
		o.Items = []*models.OrderItem{}
		orderByCart[o.CartID] = o
		orderByID[o.ID] = o
	}
	items := make([]*models.OrderItem, 0, len(cartItems))
	for _, ci := range cartItems {
		o := orderByCart[ci.CartID]
		items = append(items, &models.OrderItem{
			OrderID:   o.ID,
			ProductID: ci.ProductID,
			Quantity:  ci.Quantity,
			Note:      ci.Note,
			UnitPrice: ci.UnitPrice,
			Status:    models.StatusPending,
			BuyerID:   o.BuyerID,
			SellerID:  o.SellerID,
		})
	}

	var created []*models.OrderItem
	err = batch(ctx, tx, logger, s.lenient, "order_items", func() error {
		var err error
		created, err = s.orderRepo.BulkCreateOrderItems(ctx, tx, items, s.lenient)
		return err
	})
	if err != nil {
		logger.Error("failed to create order items", slog.Any("error", err))
		return nil, fmt.Errorf("%s: failed to create order items: %w", op, err)
	}
	if skipped := len(items) - len(created); skipped > 0 {
		logger.Warn("duplicate order items skipped", slog.Int("skipped", skipped))
	}
	for _, it := range created {
		if o, ok := orderByID[it.OrderID]; ok {
			o.Items = append(o.Items, it)
		}
	}

	if err := s.fanout.checkoutEffects(ctx, tx, logger, s.lenient, created); err != nil {
		logger.Error("failed to create checkout side effects", slog.Any("error", err))
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	if err := s.cartRepo.MarkCartsDone(ctx, tx, cartIDs); err != nil {
		logger.Error("failed to mark carts done", slog.Any("error", err))
		return nil, fmt.Errorf("%s: failed to mark carts done: %w", op, err)
	}

	if err := tx.Commit(); err != nil {
		logger.Error("failed to commit transaction", slog.Any("error", err))
		return nil, fmt.Errorf("%s: failed to commit transaction: %w", op, err)
	}

	// push только после коммита, ошибки доставки сюда не возвращаются
	s.notifier.Enqueue(newOrderAlerts(orders)...)

	logger.Info("checkout completed",
		slog.Int("orders", len(orders)),
		slog.Int("items", len(created)),
	)
	return &CheckoutResult{
		OrdersCreated: len(orders),
		ItemsCreated:  len(created),
		Orders:        orders,
	}, nil
}

func newOrderAlerts(orders []*models.Order) []push.Alert {
	alerts := make([]push.Alert, 0, len(orders))
	for _, o := range orders {
		if len(o.Items) == 0 {
			continue
		}
		alerts = append(alerts, push.Alert{
			UserID: o.SellerID,
			Message: push.Message{
				Title: "New order",
				Body:  fmt.Sprintf("You have a new order with %d item(s)", len(o.Items)),
				Data: map[string]string{
					"order_uuid": o.UUID,
				},
			},
		})
	}
	return alerts
}
