package handlers

import (
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/render"
	"github.com/go-playground/validator/v10"

	"github.com/linemk/peo-market/internal/jwt-new/jwtmiddleware"
	"github.com/linemk/peo-market/internal/lib/apperr"
)

var validate = validator.New()

type ErrorBody struct {
	Kind          apperr.Kind `json:"kind"`
	Code          string      `json:"code"`
	Message       string      `json:"message"`
	CurrentStatus string      `json:"current_status,omitempty"`
}

// ErrorResponse - единый формат ошибки для всех эндпоинтов
type ErrorResponse struct {
	Error ErrorBody `json:"error"`
}

// renderError пишет ошибку сервиса; детали внутренних ошибок остаются только в логе
func renderError(w http.ResponseWriter, r *http.Request, logger *slog.Logger, err error) {
	appErr := apperr.As(err)
	status := appErr.HTTPStatus()

	msg := appErr.Message
	if appErr.Kind == apperr.KindInternal {
		logger.Error("request failed", slog.Any("error", err))
		msg = "internal server error"
	} else {
		logger.Warn("request rejected", slog.String("code", appErr.Code), slog.Any("error", err))
	}

	render.Status(r, status)
	render.JSON(w, r, ErrorResponse{Error: ErrorBody{
		Kind:          appErr.Kind,
		Code:          appErr.Code,
		Message:       msg,
		CurrentStatus: appErr.Current,
	}})
}

// decode читает JSON и прогоняет validator
func decode(r *http.Request, v any) error {
	if err := render.DecodeJSON(r.Body, v); err != nil {
		return apperr.Validation(apperr.CodeMissingParams, "invalid request body")
	}
	if err := validate.Struct(v); err != nil {
		return apperr.Validation(apperr.CodeMissingParams, err.Error())
	}
	return nil
}

func currentUser(r *http.Request) (int64, error) {
	userID, ok := jwtmiddleware.FromContext(r.Context())
	if !ok {
		return 0, apperr.Unauthorized("unauthorized")
	}
	return userID, nil
}

func idParam(r *http.Request) (int64, error) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id <= 0 {
		return 0, apperr.Validation(apperr.CodeMissingParams, "id must be a positive integer")
	}
	return id, nil
}
