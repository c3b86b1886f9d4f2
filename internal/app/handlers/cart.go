package handlers

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/render"

	"github.com/linemk/peo-market/internal/service"
)

type CartItemRequest struct {
	ProductID int64  `json:"product_id" validate:"required,gt=0"`
	Quantity  int    `json:"quantity"` // 0 и меньше удаляют строку
	Note      string `json:"note" validate:"max=500"`
}

func ListCartsHandler(log *slog.Logger, cartService service.CartService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		const op = "handlers.ListCartsHandler"
		logger := log.With(slog.String("op", op))

		userID, err := currentUser(r)
		if err != nil {
			renderError(w, r, logger, err)
			return
		}

		carts, err := cartService.ListCarts(r.Context(), userID)
		if err != nil {
			renderError(w, r, logger, err)
			return
		}
		render.JSON(w, r, carts)
	}
}

// UpsertCartItemHandler - POST /api/cart-items: 200 со строкой или 204, если строка удалена
func UpsertCartItemHandler(log *slog.Logger, cartService service.CartService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		const op = "handlers.UpsertCartItemHandler"
		logger := log.With(slog.String("op", op))

		userID, err := currentUser(r)
		if err != nil {
			renderError(w, r, logger, err)
			return
		}

		var req CartItemRequest
		if err := decode(r, &req); err != nil {
			renderError(w, r, logger, err)
			return
		}

		item, err := cartService.UpsertLine(r.Context(), userID, req.ProductID, req.Quantity, req.Note)
		if err != nil {
			renderError(w, r, logger, err)
			return
		}
		if item == nil {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		render.JSON(w, r, item)
	}
}

func DeleteCartItemHandler(log *slog.Logger, cartService service.CartService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		const op = "handlers.DeleteCartItemHandler"
		logger := log.With(slog.String("op", op))

		userID, err := currentUser(r)
		if err != nil {
			renderError(w, r, logger, err)
			return
		}
		id, err := idParam(r)
		if err != nil {
			renderError(w, r, logger, err)
			return
		}

		if err := cartService.DeleteLine(r.Context(), userID, id); err != nil {
			renderError(w, r, logger, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}
