package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"github.com/linemk/peo-market/internal/domain/models"
)

// OrderStorage описывает методы для работы с заказами и их позициями.
type OrderStorage interface {
	// OrderedCartIDs возвращает те корзины из списка, по которым у покупателя уже есть заказ.
	OrderedCartIDs(ctx context.Context, tx *sql.Tx, buyerID int64, cartIDs []int64) ([]int64, error)
	// BulkCreateOrders вставляет заказы одним запросом и заполняет ID, UUID и CreatedAt.
	BulkCreateOrders(ctx context.Context, tx *sql.Tx, orders []*models.Order) ([]*models.Order, error)
	// BulkCreateOrderItems вставляет позиции одним запросом. При skipConflicts дубликаты
	// (order_id, product_id) пропускаются, а возвращаются только реально вставленные позиции.
	BulkCreateOrderItems(ctx context.Context, tx *sql.Tx, items []*models.OrderItem, skipConflicts bool) ([]*models.OrderItem, error)
	// LockOrderItem блокирует позицию и подтягивает участников заказа и название товара.
	LockOrderItem(ctx context.Context, tx *sql.Tx, id int64) (*models.OrderItem, error)
	UpdateOrderItemStatus(ctx context.Context, tx *sql.Tx, id int64, status models.Status, shippingCost *int64) error
	// LockOrder блокирует строку заказа до конца транзакции.
	LockOrder(ctx context.Context, tx *sql.Tx, orderID int64) error
	ListItemStatuses(ctx context.Context, tx *sql.Tx, orderID int64) ([]models.Status, error)
	// UpdateOrderSummary записывает статус заказа и пересчитывает доставку по живым позициям.
	UpdateOrderSummary(ctx context.Context, tx *sql.Tx, orderID int64, status models.Status) error
	// ListOrdersByUser возвращает заказы пользователя как покупателя или как продавца.
	ListOrdersByUser(ctx context.Context, tx *sql.Tx, userID int64, role models.Role) ([]*models.Order, error)
	ListItemsByOrderIDs(ctx context.Context, tx *sql.Tx, orderIDs []int64) ([]*models.OrderItem, error)
}

type orderRepository struct {
	db *sql.DB
}

// NewOrderRepository создаёт новый репозиторий заказов.
func NewOrderRepository(db *sql.DB) OrderStorage {
	return &orderRepository{db: db}
}

func (r *orderRepository) OrderedCartIDs(ctx context.Context, tx *sql.Tx, buyerID int64, cartIDs []int64) ([]int64, error) {
	query := "SELECT DISTINCT cart_id FROM orders WHERE buyer_id = $1 AND cart_id = ANY($2) ORDER BY cart_id"
	rows, err := tx.QueryContext(ctx, query, buyerID, pq.Array(cartIDs))
	if err != nil {
		return nil, fmt.Errorf("failed to query ordered carts: %w", err)
	}
	defer rows.Close()

	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("failed to scan cart id: %w", err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return ids, nil
}

func (r *orderRepository) BulkCreateOrders(ctx context.Context, tx *sql.Tx, orders []*models.Order) ([]*models.Order, error) {
	if len(orders) == 0 {
		return orders, nil
	}

	uuids := make([]string, len(orders))
	buyers := make([]int64, len(orders))
	sellers := make([]int64, len(orders))
	carts := make([]int64, len(orders))
	byUUID := make(map[string]*models.Order, len(orders))
	for i, o := range orders {
		if o.UUID == "" {
			o.UUID = uuid.NewString()
		}
		uuids[i], buyers[i], sellers[i], carts[i] = o.UUID, o.BuyerID, o.SellerID, o.CartID
		byUUID[o.UUID] = o
	}

	query := `
		INSERT INTO orders (uuid, buyer_id, seller_id, cart_id, status, created_at)
		SELECT t.u, t.b, t.s, t.c, $5, NOW()
		FROM unnest($1::uuid[], $2::bigint[], $3::bigint[], $4::bigint[]) AS t(u, b, s, c)
		RETURNING id, uuid, created_at`
	rows, err := tx.QueryContext(ctx, query,
		pq.Array(uuids), pq.Array(buyers), pq.Array(sellers), pq.Array(carts), models.StatusPending,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create orders: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			id        int64
			u         string
			createdAt time.Time
		)
		if err := rows.Scan(&id, &u, &createdAt); err != nil {
			return nil, fmt.Errorf("failed to scan order: %w", err)
		}
		o, ok := byUUID[u]
		if !ok {
			return nil, fmt.Errorf("unexpected order uuid %s", u)
		}
		o.ID = id
		o.Status = models.StatusPending
		o.CreatedAt = createdAt
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to create orders: %w", err)
	}
	return orders, nil
}

func (r *orderRepository) BulkCreateOrderItems(ctx context.Context, tx *sql.Tx, items []*models.OrderItem, skipConflicts bool) ([]*models.OrderItem, error) {
	if len(items) == 0 {
		return nil, nil
	}

	var (
		uuids      = make([]string, len(items))
		orderIDs   = make([]int64, len(items))
		productIDs = make([]int64, len(items))
		quantities = make([]int64, len(items))
		notes      = make([]string, len(items))
		prices     = make([]int64, len(items))
		byUUID     = make(map[string]*models.OrderItem, len(items))
	)
	for i, it := range items {
		if it.UUID == "" {
			it.UUID = uuid.NewString()
		}
		uuids[i] = it.UUID
		orderIDs[i] = it.OrderID
		productIDs[i] = it.ProductID
		quantities[i] = int64(it.Quantity)
		notes[i] = it.Note
		prices[i] = it.UnitPrice
		byUUID[it.UUID] = it
	}

	query := `
		INSERT INTO order_items (uuid, order_id, product_id, quantity, note, unit_price, status)
		SELECT t.u, t.o, t.p, t.q, t.n, t.pr, $7
		FROM unnest($1::uuid[], $2::bigint[], $3::bigint[], $4::int[], $5::text[], $6::bigint[]) AS t(u, o, p, q, n, pr)`
	if skipConflicts {
		query += `
		ON CONFLICT (order_id, product_id) DO NOTHING`
	}
	query += `
		RETURNING id, uuid`

	rows, err := tx.QueryContext(ctx, query,
		pq.Array(uuids), pq.Array(orderIDs), pq.Array(productIDs),
		pq.Array(quantities), pq.Array(notes), pq.Array(prices), models.StatusPending,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create order items: %w", err)
	}
	defer rows.Close()

	created := make([]*models.OrderItem, 0, len(items))
	for rows.Next() {
		var (
			id int64
			u  string
		)
		if err := rows.Scan(&id, &u); err != nil {
			return nil, fmt.Errorf("failed to scan order item: %w", err)
		}
		it, ok := byUUID[u]
		if !ok {
			return nil, fmt.Errorf("unexpected order item uuid %s", u)
		}
		it.ID = id
		it.Status = models.StatusPending
		created = append(created, it)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to create order items: %w", err)
	}
	return created, nil
}

func (r *orderRepository) LockOrderItem(ctx context.Context, tx *sql.Tx, id int64) (*models.OrderItem, error) {
	query := `
		SELECT oi.id, oi.uuid, oi.order_id, oi.product_id, p.name, oi.quantity, oi.note,
		       oi.unit_price, oi.shipping_cost, oi.status, o.buyer_id, o.seller_id
		FROM order_items oi
		JOIN orders o ON o.id = oi.order_id
		JOIN products p ON p.id = oi.product_id
		WHERE oi.id = $1
		FOR UPDATE OF oi`
	item := &models.OrderItem{}
	err := tx.QueryRowContext(ctx, query, id).Scan(
		&item.ID, &item.UUID, &item.OrderID, &item.ProductID, &item.ProductName, &item.Quantity, &item.Note,
		&item.UnitPrice, &item.ShippingCost, &item.Status, &item.BuyerID, &item.SellerID,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrOrderItemNotFound
		}
		return nil, err
	}
	return item, nil
}

// UpdateOrderItemStatus меняет статус; стоимость доставки обновляется, только если передана
func (r *orderRepository) UpdateOrderItemStatus(ctx context.Context, tx *sql.Tx, id int64, status models.Status, shippingCost *int64) error {
	res, err := tx.ExecContext(ctx,
		"UPDATE order_items SET status = $1, shipping_cost = COALESCE($2, shipping_cost) WHERE id = $3",
		status, shippingCost, id,
	)
	if err != nil {
		return fmt.Errorf("failed to update order item status: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return ErrOrderItemNotFound
	}
	return nil
}

func (r *orderRepository) LockOrder(ctx context.Context, tx *sql.Tx, orderID int64) error {
	var id int64
	err := tx.QueryRowContext(ctx, "SELECT id FROM orders WHERE id = $1 FOR UPDATE", orderID).Scan(&id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return ErrOrderNotFound
		}
		return fmt.Errorf("failed to lock order: %w", err)
	}
	return nil
}

func (r *orderRepository) ListItemStatuses(ctx context.Context, tx *sql.Tx, orderID int64) ([]models.Status, error) {
	rows, err := tx.QueryContext(ctx, "SELECT status FROM order_items WHERE order_id = $1", orderID)
	if err != nil {
		return nil, fmt.Errorf("failed to query item statuses: %w", err)
	}
	defer rows.Close()

	var statuses []models.Status
	for rows.Next() {
		var st models.Status
		if err := rows.Scan(&st); err != nil {
			return nil, fmt.Errorf("failed to scan item status: %w", err)
		}
		statuses = append(statuses, st)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return statuses, nil
}

// UpdateOrderSummary - доставка заказа равна сумме доставки неотменённых позиций, NULL если её нет ни у одной
func (r *orderRepository) UpdateOrderSummary(ctx context.Context, tx *sql.Tx, orderID int64, status models.Status) error {
	query := `
		UPDATE orders
		SET status = $1,
		    shipping_cost = (
		        SELECT SUM(shipping_cost)
		        FROM order_items
		        WHERE order_id = $2 AND status NOT IN ($3, $4)
		    )
		WHERE id = $2`
	res, err := tx.ExecContext(ctx, query, status, orderID, models.StatusRejected, models.StatusCanceled)
	if err != nil {
		return fmt.Errorf("failed to update order summary: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return ErrOrderNotFound
	}
	return nil
}

// ListOrdersByUser возвращает список заказов пользователя, новые первыми.
func (r *orderRepository) ListOrdersByUser(ctx context.Context, tx *sql.Tx, userID int64, role models.Role) ([]*models.Order, error) {
	column := "buyer_id"
	if role == models.RoleSeller {
		column = "seller_id"
	}
	query := `
		SELECT id, uuid, buyer_id, seller_id, cart_id, shipping_cost, status, created_at
		FROM orders
		WHERE ` + column + ` = $1
		ORDER BY created_at DESC, id DESC`
	rows, err := tx.QueryContext(ctx, query, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to query orders: %w", err)
	}
	defer rows.Close()

	var orders []*models.Order
	for rows.Next() {
		o := &models.Order{}
		if err := rows.Scan(&o.ID, &o.UUID, &o.BuyerID, &o.SellerID, &o.CartID, &o.ShippingCost, &o.Status, &o.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan order: %w", err)
		}
		orders = append(orders, o)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return orders, nil
}

func (r *orderRepository) ListItemsByOrderIDs(ctx context.Context, tx *sql.Tx, orderIDs []int64) ([]*models.OrderItem, error) {
	query := `
		SELECT oi.id, oi.uuid, oi.order_id, oi.product_id, p.name, oi.quantity, oi.note,
		       oi.unit_price, oi.shipping_cost, oi.status, o.buyer_id, o.seller_id
		FROM order_items oi
		JOIN orders o ON o.id = oi.order_id
		JOIN products p ON p.id = oi.product_id
		WHERE oi.order_id = ANY($1)
		ORDER BY oi.order_id, oi.id`
	rows, err := tx.QueryContext(ctx, query, pq.Array(orderIDs))
	if err != nil {
		return nil, fmt.Errorf("failed to query order items: %w", err)
	}
	defer rows.Close()

	var items []*models.OrderItem
	for rows.Next() {
		it := &models.OrderItem{}
		if err := rows.Scan(
			&it.ID, &it.UUID, &it.OrderID, &it.ProductID, &it.ProductName, &it.Quantity, &it.Note,
			&it.UnitPrice, &it.ShippingCost, &it.Status, &it.BuyerID, &it.SellerID,
		); err != nil {
			return nil, fmt.Errorf("failed to scan order item: %w", err)
		}
		items = append(items, it)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return items, nil
}
