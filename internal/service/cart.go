package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/linemk/peo-market/internal/domain/models"
	"github.com/linemk/peo-market/internal/lib/apperr"
	"github.com/linemk/peo-market/internal/storage"
)

type CartService interface {
	// UpsertLine добавляет товар в корзину, меняет количество или удаляет строку при quantity <= 0.
	// Результат nil, если строка удалена или её не было.
	UpsertLine(ctx context.Context, buyerID, productID int64, quantity int, note string) (*models.CartItem, error)
	DeleteLine(ctx context.Context, actorID, cartItemID int64) error
	ListCarts(ctx context.Context, buyerID int64) ([]*models.Cart, error)
}

type cartService struct {
	log         *slog.Logger
	db          *sql.DB
	userRepo    storage.UserStorage
	productRepo storage.ProductStorage
	cartRepo    storage.CartStorage
	itemRepo    storage.CartItemStorage
	now         func() time.Time
}

func NewCartService(
	log *slog.Logger,
	db *sql.DB,
	userRepo storage.UserStorage,
	productRepo storage.ProductStorage,
	cartRepo storage.CartStorage,
	itemRepo storage.CartItemStorage,
) CartService {
	return &cartService{
		log:         log,
		db:          db,
		userRepo:    userRepo,
		productRepo: productRepo,
		cartRepo:    cartRepo,
		itemRepo:    itemRepo,
		now:         time.Now,
	}
}

// checkProduct - проверки до любых изменений
func (s *cartService) checkProduct(product *models.Product, buyerID int64) error {
	switch {
	case !product.IsActive:
		return apperr.Validation(apperr.CodeProductInactive, "product is not available for ordering")
	case product.DeadlinePassed(s.now()):
		return apperr.Validation(apperr.CodeDeadlinePassed, "order deadline for this product has passed")
	case product.OwnerID == buyerID:
		return apperr.Validation(apperr.CodeSelfPurchase, "you cannot buy your own product")
	}
	return nil
}

func (s *cartService) UpsertLine(ctx context.Context, buyerID, productID int64, quantity int, note string) (*models.CartItem, error) {
	const op = "service.CartService.UpsertLine"
	logger := s.log.With(
		slog.String("op", op),
		slog.Int64("buyerID", buyerID),
		slog.Int64("productID", productID),
		slog.Int("quantity", quantity),
	)

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		logger.Error("failed to begin transaction", slog.Any("error", err))
		return nil, fmt.Errorf("%s: failed to begin transaction: %w", op, err)
	}
	defer rollback(logger, tx)

	product, err := s.productRepo.GetProductByID(ctx, tx, productID)
	if err != nil {
		if errors.Is(err, storage.ErrProductNotFound) {
			logger.Warn("product not found")
			return nil, fmt.Errorf("%s: %w", op, apperr.NotFound("product", err))
		}
		logger.Error("failed to get product", slog.Any("error", err))
		return nil, fmt.Errorf("%s: failed to get product: %w", op, err)
	}
	if err := s.checkProduct(product, buyerID); err != nil {
		logger.Warn("product check failed", slog.Any("error", err))
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	// блокировка покупателя сериализует параллельные изменения его корзин,
	// иначе два запроса могут одновременно не найти корзину и создать две
	if _, err := s.userRepo.LockUserByIDTx(ctx, tx, buyerID); err != nil {
		if errors.Is(err, storage.ErrUserNotFound) {
			logger.Warn("buyer not found")
			return nil, fmt.Errorf("%s: %w", op, apperr.NotFound("user", err))
		}
		logger.Error("failed to lock buyer", slog.Any("error", err))
		return nil, fmt.Errorf("%s: failed to lock buyer: %w", op, err)
	}

	cart, err := s.cartRepo.LockOpenCart(ctx, tx, buyerID, product.OwnerID)
	switch {
	case errors.Is(err, storage.ErrCartNotFound):
		if quantity <= 0 {
			// удалять нечего
			logger.Info("no open cart, nothing to remove")
			return nil, nil
		}
		cart, err = s.cartRepo.CreateCart(ctx, tx, buyerID, product.OwnerID)
		if err != nil {
			logger.Error("failed to create cart", slog.Any("error", err))
			return nil, fmt.Errorf("%s: failed to create cart: %w", op, err)
		}
		logger.Info("cart created", slog.Int64("cartID", cart.ID))
	case err != nil:
		logger.Error("failed to lock cart", slog.Any("error", err))
		return nil, fmt.Errorf("%s: failed to lock cart: %w", op, err)
	}

	item, err := s.itemRepo.LockCartItem(ctx, tx, cart.ID, productID)
	if err != nil && !errors.Is(err, storage.ErrCartItemNotFound) {
		logger.Error("failed to lock cart item", slog.Any("error", err))
		return nil, fmt.Errorf("%s: failed to lock cart item: %w", op, err)
	}
	exists := err == nil

	var result *models.CartItem
	switch {
	case quantity > 0 && exists:
		item.Quantity = quantity
		item.Note = note
		if err := s.itemRepo.UpdateCartItem(ctx, tx, item); err != nil {
			logger.Error("failed to update cart item", slog.Any("error", err))
			return nil, fmt.Errorf("%s: failed to update cart item: %w", op, err)
		}
		result = item
	case quantity > 0:
		// цена фиксируется в момент добавления
		item, err = s.itemRepo.CreateCartItem(ctx, tx, &models.CartItem{
			CartID:    cart.ID,
			ProductID: productID,
			Quantity:  quantity,
			Note:      note,
			UnitPrice: product.Price,
		})
		if err != nil {
			logger.Error("failed to create cart item", slog.Any("error", err))
			return nil, fmt.Errorf("%s: failed to create cart item: %w", op, err)
		}
		result = item
	case exists:
		if err := s.removeLine(ctx, tx, item); err != nil {
			logger.Error("failed to remove cart item", slog.Any("error", err))
			return nil, fmt.Errorf("%s: failed to remove cart item: %w", op, err)
		}
	default:
		// корзина есть, строки нет: её не трогаем, удалять нечего
	}

	if err := tx.Commit(); err != nil {
		logger.Error("failed to commit transaction", slog.Any("error", err))
		return nil, fmt.Errorf("%s: failed to commit transaction: %w", op, err)
	}

	logger.Info("cart line upserted", slog.Int64("cartID", cart.ID), slog.Bool("removed", result == nil))
	return result, nil
}

// removeLine удаляет строку и корзину, если строк в ней не осталось
func (s *cartService) removeLine(ctx context.Context, tx *sql.Tx, item *models.CartItem) error {
	if err := s.itemRepo.DeleteCartItem(ctx, tx, item.ID); err != nil {
		return err
	}
	left, err := s.itemRepo.CountCartItems(ctx, tx, item.CartID)
	if err != nil {
		return err
	}
	if left == 0 {
		return s.cartRepo.DeleteCart(ctx, tx, item.CartID)
	}
	return nil
}

func (s *cartService) DeleteLine(ctx context.Context, actorID, cartItemID int64) error {
	const op = "service.CartService.DeleteLine"
	logger := s.log.With(
		slog.String("op", op),
		slog.Int64("actorID", actorID),
		slog.Int64("cartItemID", cartItemID),
	)

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		logger.Error("failed to begin transaction", slog.Any("error", err))
		return fmt.Errorf("%s: failed to begin transaction: %w", op, err)
	}
	defer rollback(logger, tx)

	// порядок блокировок как в UpsertLine: корзина, затем строка
	item, err := s.itemRepo.GetCartItemByID(ctx, tx, cartItemID)
	if err != nil {
		if errors.Is(err, storage.ErrCartItemNotFound) {
			logger.Warn("cart item not found")
			return fmt.Errorf("%s: %w", op, apperr.NotFound("cart item", err))
		}
		logger.Error("failed to get cart item", slog.Any("error", err))
		return fmt.Errorf("%s: failed to get cart item: %w", op, err)
	}

	cart, err := s.cartRepo.LockCartByID(ctx, tx, item.CartID)
	if err != nil {
		if errors.Is(err, storage.ErrCartNotFound) {
			logger.Warn("cart not found")
			return fmt.Errorf("%s: %w", op, apperr.NotFound("cart item", err))
		}
		logger.Error("failed to lock cart", slog.Any("error", err))
		return fmt.Errorf("%s: failed to lock cart: %w", op, err)
	}
	if cart.BuyerID != actorID {
		logger.Warn("cart belongs to another user")
		return fmt.Errorf("%s: %w", op, apperr.Permission("cart item belongs to another user"))
	}
	if cart.IsDone {
		logger.Warn("cart is already ordered")
		return fmt.Errorf("%s: %w", op, apperr.Conflict(apperr.CodeCartAlreadyOrdered, "cart is already ordered"))
	}

	// строку могли удалить, пока мы ждали блокировку корзины
	item, err = s.itemRepo.LockCartItemByID(ctx, tx, cartItemID)
	if err != nil {
		if errors.Is(err, storage.ErrCartItemNotFound) {
			logger.Warn("cart item removed concurrently")
			return fmt.Errorf("%s: %w", op, apperr.NotFound("cart item", err))
		}
		logger.Error("failed to lock cart item", slog.Any("error", err))
		return fmt.Errorf("%s: failed to lock cart item: %w", op, err)
	}

	if err := s.removeLine(ctx, tx, item); err != nil {
		logger.Error("failed to remove cart item", slog.Any("error", err))
		return fmt.Errorf("%s: failed to remove cart item: %w", op, err)
	}

	if err := tx.Commit(); err != nil {
		logger.Error("failed to commit transaction", slog.Any("error", err))
		return fmt.Errorf("%s: failed to commit transaction: %w", op, err)
	}

	logger.Info("cart item deleted")
	return nil
}

func (s *cartService) ListCarts(ctx context.Context, buyerID int64) ([]*models.Cart, error) {
	const op = "service.CartService.ListCarts"
	logger := s.log.With(slog.String("op", op), slog.Int64("buyerID", buyerID))

	tx, err := s.db.BeginTx(ctx, readOnly)
	if err != nil {
		logger.Error("failed to begin transaction", slog.Any("error", err))
		return nil, fmt.Errorf("%s: failed to begin transaction: %w", op, err)
	}
	defer rollback(logger, tx)

	carts, err := s.cartRepo.ListOpenCarts(ctx, tx, buyerID)
	if err != nil {
		logger.Error("failed to list carts", slog.Any("error", err))
		return nil, fmt.Errorf("%s: failed to list carts: %w", op, err)
	}
	if len(carts) == 0 {
		return []*models.Cart{}, nil
	}

	ids := make([]int64, len(carts))
	byID := make(map[int64]*models.Cart, len(carts))
	for i, c := range carts {
		ids[i] = c.ID
		c.Items = []*models.CartItem{}
		byID[c.ID] = c
	}

	items, err := s.itemRepo.ListByCartIDs(ctx, tx, ids)
	if err != nil {
		logger.Error("failed to list cart items", slog.Any("error", err))
		return nil, fmt.Errorf("%s: failed to list cart items: %w", op, err)
	}
	for _, it := range items {
		if c, ok := byID[it.CartID]; ok {
			c.Items = append(c.Items, it)
		}
	}

	if err := tx.Commit(); err != nil {
		logger.Error("failed to commit transaction", slog.Any("error", err))
		return nil, fmt.Errorf("%s: failed to commit transaction: %w", op, err)
	}
	return carts, nil
}
