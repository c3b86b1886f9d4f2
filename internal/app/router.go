package app

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/linemk/peo-market/internal/app/handlers"
	"github.com/linemk/peo-market/internal/jwt-new/jwtmiddleware"
	"github.com/linemk/peo-market/internal/lib/logger/handlers/urllog"
)

// NewRouter собирает маршруты API
func NewRouter(log *slog.Logger, svc Services, jwtSecret string) http.Handler {
	router := chi.NewRouter()
	// настройка middleware
	router.Use(middleware.RequestID)
	router.Use(urllog.CustomLoggerMiddleware(log))
	router.Use(middleware.Recoverer)
	router.Use(middleware.URLFormat)

	// эндпоинт для аутентификации
	router.Post("/api/auth", handlers.AuthHandler(log, svc.Auth))

	router.Group(func(r chi.Router) {
		r.Use(jwtmiddleware.NewJWTMiddleware(jwtSecret))

		r.Put("/api/devices", handlers.DeviceHandler(log, svc.Auth))

		r.Get("/api/carts", handlers.ListCartsHandler(log, svc.Cart))
		r.Post("/api/cart-items", handlers.UpsertCartItemHandler(log, svc.Cart))
		r.Delete("/api/cart-items/{id}", handlers.DeleteCartItemHandler(log, svc.Cart))

		// оформление сразу нескольких корзин
		r.Post("/api/orders/bulk", handlers.CheckoutHandler(log, svc.Checkout))
		r.Get("/api/orders", handlers.ListOrdersHandler(log, svc.Order))
		r.Patch("/api/order-items/{id}", handlers.TransitionHandler(log, svc.Order))

		r.Get("/api/notifications", handlers.ListNotificationsHandler(log, svc.Notification))

		r.Get("/api/chats", handlers.ListChatsHandler(log, svc.Chat))
		r.Get("/api/chats/{id}/messages", handlers.ListChatMessagesHandler(log, svc.Chat))

		r.Post("/api/payment-banks", handlers.CreatePaymentBankHandler(log, svc.PaymentBank))
		r.Get("/api/payment-banks", handlers.ListPaymentBanksHandler(log, svc.PaymentBank))
	})

	return router
}
