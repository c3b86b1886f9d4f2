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

// CartStorage описывает методы для работы с корзинами.
type CartStorage interface {
	// LockOpenCart находит открытую корзину покупателя у продавца и блокирует её.
	LockOpenCart(ctx context.Context, tx *sql.Tx, buyerID, sellerID int64) (*models.Cart, error)
	// LockCartByID блокирует корзину по идентификатору.
	LockCartByID(ctx context.Context, tx *sql.Tx, id int64) (*models.Cart, error)
	// LockCartsForBuyer блокирует корзины покупателя в порядке id; чужие и несуществующие не возвращаются.
	LockCartsForBuyer(ctx context.Context, tx *sql.Tx, buyerID int64, ids []int64) ([]*models.Cart, error)
	CreateCart(ctx context.Context, tx *sql.Tx, buyerID, sellerID int64) (*models.Cart, error)
	DeleteCart(ctx context.Context, tx *sql.Tx, id int64) error
	MarkCartsDone(ctx context.Context, tx *sql.Tx, ids []int64) error
	ListOpenCarts(ctx context.Context, tx *sql.Tx, buyerID int64) ([]*models.Cart, error)
}

type cartRepository struct {
	db *sql.DB
}

func NewCartRepository(db *sql.DB) CartStorage {
	return &cartRepository{db: db}
}

const cartColumns = "id, uuid, buyer_id, seller_id, is_done, created_at, updated_at"

type rowScanner interface {
	Scan(dest ...any) error
}

func scanCart(row rowScanner) (*models.Cart, error) {
	c := &models.Cart{}
	if err := row.Scan(&c.ID, &c.UUID, &c.BuyerID, &c.SellerID, &c.IsDone, &c.CreatedAt, &c.UpdatedAt); err != nil {
		return nil, err
	}
	return c, nil
}

func (r *cartRepository) LockOpenCart(ctx context.Context, tx *sql.Tx, buyerID, sellerID int64) (*models.Cart, error) {
	query := "SELECT " + cartColumns + " FROM carts WHERE buyer_id = $1 AND seller_id = $2 AND NOT is_done FOR UPDATE"
	cart, err := scanCart(tx.QueryRowContext(ctx, query, buyerID, sellerID))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrCartNotFound
		}
		return nil, err
	}
	return cart, nil
}

func (r *cartRepository) LockCartByID(ctx context.Context, tx *sql.Tx, id int64) (*models.Cart, error) {
	query := "SELECT " + cartColumns + " FROM carts WHERE id = $1 FOR UPDATE"
	cart, err := scanCart(tx.QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrCartNotFound
		}
		return nil, err
	}
	return cart, nil
}

func (r *cartRepository) LockCartsForBuyer(ctx context.Context, tx *sql.Tx, buyerID int64, ids []int64) ([]*models.Cart, error) {
	query := "SELECT " + cartColumns + " FROM carts WHERE buyer_id = $1 AND id = ANY($2) ORDER BY id FOR UPDATE"
	return r.queryCarts(ctx, tx, query, buyerID, pq.Array(ids))
}

func (r *cartRepository) ListOpenCarts(ctx context.Context, tx *sql.Tx, buyerID int64) ([]*models.Cart, error) {
	query := "SELECT " + cartColumns + " FROM carts WHERE buyer_id = $1 AND NOT is_done ORDER BY created_at DESC"
	return r.queryCarts(ctx, tx, query, buyerID)
}

func (r *cartRepository) queryCarts(ctx context.Context, tx *sql.Tx, query string, args ...any) ([]*models.Cart, error) {
	rows, err := tx.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query carts: %w", err)
	}
	defer rows.Close()

	var carts []*models.Cart
	for rows.Next() {
		cart, err := scanCart(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan cart: %w", err)
		}
		carts = append(carts, cart)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return carts, nil
}

func (r *cartRepository) CreateCart(ctx context.Context, tx *sql.Tx, buyerID, sellerID int64) (*models.Cart, error) {
	cart := &models.Cart{UUID: uuid.NewString(), BuyerID: buyerID, SellerID: sellerID}
	query := `INSERT INTO carts (uuid, buyer_id, seller_id, is_done, created_at, updated_at)
	          VALUES ($1, $2, $3, FALSE, NOW(), NOW())
	          RETURNING id, created_at, updated_at`
	err := tx.QueryRowContext(ctx, query, cart.UUID, buyerID, sellerID).Scan(&cart.ID, &cart.CreatedAt, &cart.UpdatedAt)
	if err != nil {
		return nil, fmt.Errorf("failed to create cart: %w", err)
	}
	return cart, nil
}

// DeleteCart удаляет корзину, строки удаляются каскадно
func (r *cartRepository) DeleteCart(ctx context.Context, tx *sql.Tx, id int64) error {
	res, err := tx.ExecContext(ctx, "DELETE FROM carts WHERE id = $1", id)
	if err != nil {
		return fmt.Errorf("failed to delete cart: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return ErrCartNotFound
	}
	return nil
}

func (r *cartRepository) MarkCartsDone(ctx context.Context, tx *sql.Tx, ids []int64) error {
	_, err := tx.ExecContext(ctx, "UPDATE carts SET is_done = TRUE, updated_at = NOW() WHERE id = ANY($1)", pq.Array(ids))
	if err != nil {
		return fmt.Errorf("failed to mark carts done: %w", err)
	}
	return nil
}
