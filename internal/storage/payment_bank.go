package storage

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/linemk/peo-market/internal/domain/models"
)

// PaymentBankStorage - реквизиты продавцов
type PaymentBankStorage interface {
	// ListActiveByUser читает реквизиты внутри транзакции перехода статуса.
	ListActiveByUser(ctx context.Context, tx *sql.Tx, userID int64) ([]*models.PaymentBank, error)
	ListActivePaymentBanks(ctx context.Context, userID int64) ([]*models.PaymentBank, error)
	// CreatePaymentBank заполняет ID и IsActive.
	CreatePaymentBank(ctx context.Context, bank *models.PaymentBank) error
}

// queryer - общее у *sql.DB и *sql.Tx
type queryer interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
}

type paymentBankRepository struct {
	db *sql.DB
}

func NewPaymentBankRepository(db *sql.DB) PaymentBankStorage {
	return &paymentBankRepository{db: db}
}

func (r *paymentBankRepository) ListActiveByUser(ctx context.Context, tx *sql.Tx, userID int64) ([]*models.PaymentBank, error) {
	return listActiveBanks(ctx, tx, userID)
}

func (r *paymentBankRepository) ListActivePaymentBanks(ctx context.Context, userID int64) ([]*models.PaymentBank, error) {
	return listActiveBanks(ctx, r.db, userID)
}

func listActiveBanks(ctx context.Context, q queryer, userID int64) ([]*models.PaymentBank, error) {
	query := `
		SELECT id, user_id, bank_name, account_name, account_number, is_active
		FROM payment_banks
		WHERE user_id = $1 AND is_active
		ORDER BY id`
	rows, err := q.QueryContext(ctx, query, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to query payment banks: %w", err)
	}
	defer rows.Close()

	var banks []*models.PaymentBank
	for rows.Next() {
		b := &models.PaymentBank{}
		if err := rows.Scan(&b.ID, &b.UserID, &b.BankName, &b.AccountName, &b.AccountNumber, &b.IsActive); err != nil {
			return nil, fmt.Errorf("failed to scan payment bank: %w", err)
		}
		banks = append(banks, b)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return banks, nil
}

func (r *paymentBankRepository) CreatePaymentBank(ctx context.Context, bank *models.PaymentBank) error {
	query := `
		INSERT INTO payment_banks (user_id, bank_name, account_name, account_number)
		VALUES ($1, $2, $3, $4)
		RETURNING id, is_active`
	err := r.db.QueryRowContext(ctx, query, bank.UserID, bank.BankName, bank.AccountName, bank.AccountNumber).
		Scan(&bank.ID, &bank.IsActive)
	if err != nil {
		return fmt.Errorf("failed to create payment bank: %w", err)
	}
	return nil
}
