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

// CartItemStorage описывает методы для работы со строками корзины.
type CartItemStorage interface {
	GetCartItemByID(ctx context.Context, tx *sql.Tx, id int64) (*models.CartItem, error)
	// LockCartItem находит строку товара в корзине и блокирует её.
	LockCartItem(ctx context.Context, tx *sql.Tx, cartID, productID int64) (*models.CartItem, error)
	LockCartItemByID(ctx context.Context, tx *sql.Tx, id int64) (*models.CartItem, error)
	CreateCartItem(ctx context.Context, tx *sql.Tx, item *models.CartItem) (*models.CartItem, error)
	UpdateCartItem(ctx context.Context, tx *sql.Tx, item *models.CartItem) error
	DeleteCartItem(ctx context.Context, tx *sql.Tx, id int64) error
	CountCartItems(ctx context.Context, tx *sql.Tx, cartID int64) (int, error)
	ListByCartIDs(ctx context.Context, tx *sql.Tx, cartIDs []int64) ([]*models.CartItem, error)
}

type cartItemRepository struct {
	db *sql.DB
}

func NewCartItemRepository(db *sql.DB) CartItemStorage {
	return &cartItemRepository{db: db}
}

const cartItemColumns = "id, uuid, cart_id, product_id, quantity, note, unit_price"

func scanCartItem(row rowScanner) (*models.CartItem, error) {
	item := &models.CartItem{}
	if err := row.Scan(&item.ID, &item.UUID, &item.CartID, &item.ProductID, &item.Quantity, &item.Note, &item.UnitPrice); err != nil {
		return nil, err
	}
	return item, nil
}

func (r *cartItemRepository) getOne(ctx context.Context, tx *sql.Tx, query string, args ...any) (*models.CartItem, error) {
	item, err := scanCartItem(tx.QueryRowContext(ctx, query, args...))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrCartItemNotFound
		}
		return nil, err
	}
	return item, nil
}

func (r *cartItemRepository) GetCartItemByID(ctx context.Context, tx *sql.Tx, id int64) (*models.CartItem, error) {
	return r.getOne(ctx, tx, "SELECT "+cartItemColumns+" FROM cart_items WHERE id = $1", id)
}

func (r *cartItemRepository) LockCartItem(ctx context.Context, tx *sql.Tx, cartID, productID int64) (*models.CartItem, error) {
	return r.getOne(ctx, tx,
		"SELECT "+cartItemColumns+" FROM cart_items WHERE cart_id = $1 AND product_id = $2 FOR UPDATE",
		cartID, productID,
	)
}

func (r *cartItemRepository) LockCartItemByID(ctx context.Context, tx *sql.Tx, id int64) (*models.CartItem, error) {
	return r.getOne(ctx, tx, "SELECT "+cartItemColumns+" FROM cart_items WHERE id = $1 FOR UPDATE", id)
}

func (r *cartItemRepository) CreateCartItem(ctx context.Context, tx *sql.Tx, item *models.CartItem) (*models.CartItem, error) {
	if item.UUID == "" {
		item.UUID = uuid.NewString()
	}
	query := `INSERT INTO cart_items (uuid, cart_id, product_id, quantity, note, unit_price)
	          VALUES ($1, $2, $3, $4, $5, $6) RETURNING id`
	err := tx.QueryRowContext(ctx, query, item.UUID, item.CartID, item.ProductID, item.Quantity, item.Note, item.UnitPrice).Scan(&item.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to create cart item: %w", err)
	}
	return item, nil
}

func (r *cartItemRepository) UpdateCartItem(ctx context.Context, tx *sql.Tx, item *models.CartItem) error {
	res, err := tx.ExecContext(ctx,
		"UPDATE cart_items SET quantity = $1, note = $2 WHERE id = $3",
		item.Quantity, item.Note, item.ID,
	)
	if err != nil {
		return fmt.Errorf("failed to update cart item: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return ErrCartItemNotFound
	}
	return nil
}

func (r *cartItemRepository) DeleteCartItem(ctx context.Context, tx *sql.Tx, id int64) error {
	res, err := tx.ExecContext(ctx, "DELETE FROM cart_items WHERE id = $1", id)
	if err != nil {
		return fmt.Errorf("failed to delete cart item: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return ErrCartItemNotFound
	}
	return nil
}

func (r *cartItemRepository) CountCartItems(ctx context.Context, tx *sql.Tx, cartID int64) (int, error) {
	var count int
	if err := tx.QueryRowContext(ctx, "SELECT COUNT(*) FROM cart_items WHERE cart_id = $1", cartID).Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count cart items: %w", err)
	}
	return count, nil
}

func (r *cartItemRepository) ListByCartIDs(ctx context.Context, tx *sql.Tx, cartIDs []int64) ([]*models.CartItem, error) {
	query := "SELECT " + cartItemColumns + " FROM cart_items WHERE cart_id = ANY($1) ORDER BY cart_id, id"
	rows, err := tx.QueryContext(ctx, query, pq.Array(cartIDs))
	if err != nil {
		return nil, fmt.Errorf("failed to query cart items: %w", err)
	}
	defer rows.Close()

	var items []*models.CartItem
	for rows.Next() {
		item, err := scanCartItem(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan cart item: %w", err)
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return items, nil
}
