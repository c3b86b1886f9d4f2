package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/lib/pq"
)

var (
	ErrUserNotFound      = errors.New("user not found")
	ErrProductNotFound   = errors.New("product not found")
	ErrCartNotFound      = errors.New("cart not found")
	ErrCartItemNotFound  = errors.New("cart item not found")
	ErrOrderItemNotFound = errors.New("order item not found")
	ErrOrderNotFound     = errors.New("order not found")
	ErrChatNotFound      = errors.New("chat not found")
)

// коды ошибок PostgreSQL
const (
	pqUniqueViolation = "23505"
	pqIntegrityClass  = "23"
)

// IsUniqueViolation - нарушение уникального ограничения
func IsUniqueViolation(err error) bool {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return pqErr.Code == pqUniqueViolation
	}
	return false
}

// IsIntegrityViolation - любая ошибка класса 23 (unique, foreign key, not null, check)
func IsIntegrityViolation(err error) bool {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return pqErr.Code.Class() == pqIntegrityClass
	}
	return false
}

// WithSavepoint выполняет fn внутри точки сохранения: при ошибке fn
// откатывается только её часть транзакции, а сама транзакция остаётся рабочей
func WithSavepoint(ctx context.Context, tx *sql.Tx, name string, fn func() error) error {
	if _, err := tx.ExecContext(ctx, "SAVEPOINT "+pq.QuoteIdentifier(name)); err != nil {
		return fmt.Errorf("failed to create savepoint %s: %w", name, err)
	}

	if err := fn(); err != nil {
		if _, rbErr := tx.ExecContext(ctx, "ROLLBACK TO SAVEPOINT "+pq.QuoteIdentifier(name)); rbErr != nil {
			return fmt.Errorf("failed to rollback to savepoint %s: %v (original error: %w)", name, rbErr, err)
		}
		return err
	}

	if _, err := tx.ExecContext(ctx, "RELEASE SAVEPOINT "+pq.QuoteIdentifier(name)); err != nil {
		return fmt.Errorf("failed to release savepoint %s: %w", name, err)
	}
	return nil
}
