package service

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/linemk/peo-market/internal/domain/models"
	"github.com/linemk/peo-market/internal/lib/apperr"
	"github.com/linemk/peo-market/internal/storage"
)

type PaymentBankInput struct {
	UserID        int64
	BankName      string
	AccountName   string
	AccountNumber string
}

// PaymentBankService - реквизиты, которые продавец показывает покупателю при подтверждении
type PaymentBankService interface {
	Create(ctx context.Context, in PaymentBankInput) (*models.PaymentBank, error)
	List(ctx context.Context, userID int64) ([]*models.PaymentBank, error)
}

type paymentBankService struct {
	log  *slog.Logger
	repo storage.PaymentBankStorage
}

func NewPaymentBankService(log *slog.Logger, repo storage.PaymentBankStorage) PaymentBankService {
	return &paymentBankService{log: log, repo: repo}
}

func (s *paymentBankService) Create(ctx context.Context, in PaymentBankInput) (*models.PaymentBank, error) {
	const op = "service.PaymentBankService.Create"
	logger := s.log.With(slog.String("op", op), slog.Int64("userID", in.UserID))

	bank := &models.PaymentBank{
		UserID:        in.UserID,
		BankName:      strings.TrimSpace(in.BankName),
		AccountName:   strings.TrimSpace(in.AccountName),
		AccountNumber: strings.TrimSpace(in.AccountNumber),
	}
	if bank.BankName == "" || bank.AccountName == "" || bank.AccountNumber == "" {
		logger.Warn("empty bank details")
		return nil, fmt.Errorf("%s: %w", op, apperr.Validation(apperr.CodeMissingParams,
			"bank_name, account_name and account_number are required"))
	}

	if err := s.repo.CreatePaymentBank(ctx, bank); err != nil {
		if storage.IsIntegrityViolation(err) {
			logger.Warn("payment bank rejected by constraint", slog.Any("error", err))
			return nil, fmt.Errorf("%s: %w", op, apperr.Integrity("payment bank violates a constraint", err))
		}
		logger.Error("failed to create payment bank", slog.Any("error", err))
		return nil, fmt.Errorf("%s: failed to create payment bank: %w", op, err)
	}

	logger.Info("payment bank created", slog.Int64("bankID", bank.ID))
	return bank, nil
}

// List - активные реквизиты пользователя; покупатель смотрит так реквизиты продавца
func (s *paymentBankService) List(ctx context.Context, userID int64) ([]*models.PaymentBank, error) {
	const op = "service.PaymentBankService.List"
	logger := s.log.With(slog.String("op", op), slog.Int64("userID", userID))

	banks, err := s.repo.ListActivePaymentBanks(ctx, userID)
	if err != nil {
		logger.Error("failed to list payment banks", slog.Any("error", err))
		return nil, fmt.Errorf("%s: failed to list payment banks: %w", op, err)
	}
	if banks == nil {
		banks = []*models.PaymentBank{}
	}
	return banks, nil
}
