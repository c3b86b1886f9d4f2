package storage

import (
	"context"
	"database/sql"
	"errors"

	"github.com/linemk/peo-market/internal/domain/models"
)

// ProductStorage - чтение снимка товара.
type ProductStorage interface {
	GetProductByID(ctx context.Context, tx *sql.Tx, id int64) (*models.Product, error)
}

type productRepository struct {
	db *sql.DB
}

func NewProductRepository(db *sql.DB) ProductStorage {
	return &productRepository{db: db}
}

func (r *productRepository) GetProductByID(ctx context.Context, tx *sql.Tx, id int64) (*models.Product, error) {
	p := &models.Product{}
	query := `SELECT id, uuid, owner_id, name, price, order_deadline, delivery_date, is_active
	          FROM products WHERE id = $1`
	row := tx.QueryRowContext(ctx, query, id)
	if err := row.Scan(&p.ID, &p.UUID, &p.OwnerID, &p.Name, &p.Price, &p.OrderDeadline, &p.DeliveryDate, &p.IsActive); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrProductNotFound
		}
		return nil, err
	}
	return p, nil
}
