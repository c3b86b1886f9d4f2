package handlers

import (
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/render"

	"github.com/linemk/peo-market/internal/lib/apperr"
	"github.com/linemk/peo-market/internal/service"
)

type PaymentBankRequest struct {
	BankName      string `json:"bank_name" validate:"required"`
	AccountName   string `json:"account_name" validate:"required"`
	AccountNumber string `json:"account_number" validate:"required"`
}

// CreatePaymentBankHandler - POST /api/payment-banks, реквизиты текущего пользователя
func CreatePaymentBankHandler(log *slog.Logger, bankService service.PaymentBankService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		const op = "handlers.CreatePaymentBankHandler"
		logger := log.With(slog.String("op", op))

		userID, err := currentUser(r)
		if err != nil {
			renderError(w, r, logger, err)
			return
		}

		var req PaymentBankRequest
		if err := decode(r, &req); err != nil {
			renderError(w, r, logger, err)
			return
		}

		bank, err := bankService.Create(r.Context(), service.PaymentBankInput{
			UserID:        userID,
			BankName:      req.BankName,
			AccountName:   req.AccountName,
			AccountNumber: req.AccountNumber,
		})
		if err != nil {
			renderError(w, r, logger, err)
			return
		}

		render.Status(r, http.StatusCreated)
		render.JSON(w, r, bank)
	}
}

// ListPaymentBanksHandler - GET /api/payment-banks?seller_id=N, без seller_id свои реквизиты
func ListPaymentBanksHandler(log *slog.Logger, bankService service.PaymentBankService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		const op = "handlers.ListPaymentBanksHandler"
		logger := log.With(slog.String("op", op))

		userID, err := currentUser(r)
		if err != nil {
			renderError(w, r, logger, err)
			return
		}

		if raw := r.URL.Query().Get("seller_id"); raw != "" {
			userID, err = strconv.ParseInt(raw, 10, 64)
			if err != nil || userID <= 0 {
				renderError(w, r, logger, apperr.Validation(apperr.CodeMissingParams, "seller_id must be a positive integer"))
				return
			}
		}

		banks, err := bankService.List(r.Context(), userID)
		if err != nil {
			renderError(w, r, logger, err)
			return
		}
		render.JSON(w, r, banks)
	}
}
