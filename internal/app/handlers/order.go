package handlers

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/render"

	"github.com/linemk/peo-market/internal/service"
)

// CheckoutRequest - параллельные списки продавцов и корзин
type CheckoutRequest struct {
	SellerIDs []int64 `json:"seller_ids"`
	CartIDs   []int64 `json:"cart_ids"`
}

type TransitionRequest struct {
	Status       string `json:"status" validate:"required"`
	ShippingCost *int64 `json:"shipping_cost"`
}

// CheckoutHandler обрабатывает POST /api/orders/bulk
func CheckoutHandler(log *slog.Logger, checkoutService service.CheckoutService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		const op = "handlers.CheckoutHandler"
		logger := log.With(slog.String("op", op))

		userID, err := currentUser(r)
		if err != nil {
			renderError(w, r, logger, err)
			return
		}

		// пустые и несогласованные списки проверяет сервис
		var req CheckoutRequest
		if err := decode(r, &req); err != nil {
			renderError(w, r, logger, err)
			return
		}

		res, err := checkoutService.Checkout(r.Context(), userID, req.SellerIDs, req.CartIDs)
		if err != nil {
			renderError(w, r, logger, err)
			return
		}

		render.Status(r, http.StatusCreated)
		render.JSON(w, r, res)
	}
}

// ListOrdersHandler - GET /api/orders?role=buyer|seller, по умолчанию buyer
func ListOrdersHandler(log *slog.Logger, orderService service.OrderService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		const op = "handlers.ListOrdersHandler"
		logger := log.With(slog.String("op", op))

		userID, err := currentUser(r)
		if err != nil {
			renderError(w, r, logger, err)
			return
		}

		role := r.URL.Query().Get("role")
		if role == "" {
			role = "buyer"
		}

		orders, err := orderService.ListOrders(r.Context(), userID, role)
		if err != nil {
			renderError(w, r, logger, err)
			return
		}
		render.JSON(w, r, orders)
	}
}

// TransitionHandler - PATCH /api/order-items/{id}
func TransitionHandler(log *slog.Logger, orderService service.OrderService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		const op = "handlers.TransitionHandler"
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

		var req TransitionRequest
		if err := decode(r, &req); err != nil {
			renderError(w, r, logger, err)
			return
		}

		item, err := orderService.Transition(r.Context(), service.TransitionInput{
			ItemID:       id,
			ActorID:      userID,
			Status:       req.Status,
			ShippingCost: req.ShippingCost,
		})
		if err != nil {
			renderError(w, r, logger, err)
			return
		}
		render.JSON(w, r, item)
	}
}
