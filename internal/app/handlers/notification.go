package handlers

import (
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/render"

	"github.com/linemk/peo-market/internal/lib/apperr"
	"github.com/linemk/peo-market/internal/service"
)

func ListNotificationsHandler(log *slog.Logger, notificationService service.NotificationService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		const op = "handlers.ListNotificationsHandler"
		logger := log.With(slog.String("op", op))

		userID, err := currentUser(r)
		if err != nil {
			renderError(w, r, logger, err)
			return
		}

		var limit int
		if raw := r.URL.Query().Get("limit"); raw != "" {
			limit, err = strconv.Atoi(raw)
			if err != nil {
				renderError(w, r, logger, apperr.Validation(apperr.CodeMissingParams, "limit must be an integer"))
				return
			}
		}

		list, err := notificationService.List(r.Context(), userID, limit)
		if err != nil {
			renderError(w, r, logger, err)
			return
		}
		render.JSON(w, r, list)
	}
}
