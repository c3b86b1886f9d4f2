package handlers

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/render"

	"github.com/linemk/peo-market/internal/service"
)

// AuthRequest представляет структуру запроса для аутентификации с тегами валидации
type AuthRequest struct {
	Username string `json:"username" validate:"required,min=3,max=64"`
	Password string `json:"password" validate:"required,min=8"`
}

type AuthResponse struct {
	Token string `json:"token"`
}

// AuthHandler – вход или регистрация, отдаёт JWT
func AuthHandler(log *slog.Logger, authService service.AuthServiceInterface) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		const op = "handlers.AuthHandler"
		logger := log.With(slog.String("op", op))

		var req AuthRequest
		if err := decode(r, &req); err != nil {
			renderError(w, r, logger, err)
			return
		}

		token, err := authService.Login(r.Context(), req.Username, req.Password)
		if err != nil {
			renderError(w, r, logger, err)
			return
		}

		render.JSON(w, r, AuthResponse{Token: token})
	}
}

type DeviceRequest struct {
	PushToken string `json:"push_token" validate:"max=4096"`
}

// DeviceHandler сохраняет push-токен устройства; пустой токен отключает push
func DeviceHandler(log *slog.Logger, authService service.AuthServiceInterface) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		const op = "handlers.DeviceHandler"
		logger := log.With(slog.String("op", op))

		userID, err := currentUser(r)
		if err != nil {
			renderError(w, r, logger, err)
			return
		}

		var req DeviceRequest
		if err := decode(r, &req); err != nil {
			renderError(w, r, logger, err)
			return
		}

		if err := authService.RegisterDevice(r.Context(), userID, req.PushToken); err != nil {
			renderError(w, r, logger, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}
