package handlers

import (
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/render"

	"github.com/linemk/peo-market/internal/lib/apperr"
	"github.com/linemk/peo-market/internal/service"
)

// ListChatsHandler - GET /api/chats
func ListChatsHandler(log *slog.Logger, chatService service.ChatService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		const op = "handlers.ListChatsHandler"
		logger := log.With(slog.String("op", op))

		userID, err := currentUser(r)
		if err != nil {
			renderError(w, r, logger, err)
			return
		}

		chats, err := chatService.List(r.Context(), userID)
		if err != nil {
			renderError(w, r, logger, err)
			return
		}
		render.JSON(w, r, chats)
	}
}

// ListChatMessagesHandler - GET /api/chats/{id}/messages?limit=N
func ListChatMessagesHandler(log *slog.Logger, chatService service.ChatService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		const op = "handlers.ListChatMessagesHandler"
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

		var limit int
		if raw := r.URL.Query().Get("limit"); raw != "" {
			limit, err = strconv.Atoi(raw)
			if err != nil {
				renderError(w, r, logger, apperr.Validation(apperr.CodeMissingParams, "limit must be an integer"))
				return
			}
		}

		messages, err := chatService.Messages(r.Context(), userID, id, limit)
		if err != nil {
			renderError(w, r, logger, err)
			return
		}
		render.JSON(w, r, messages)
	}
}
