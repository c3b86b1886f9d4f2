package apperr

import (
	"errors"
	"fmt"
	"net/http"
)

// Kind - класс ошибки, по нему транспорт выбирает HTTP-статус
type Kind string

const (
	KindValidation        Kind = "validation"
	KindNotFound          Kind = "not_found"
	KindPermission        Kind = "permission"
	KindUnauthorized      Kind = "unauthorized"
	KindConflict          Kind = "conflict"
	KindIllegalTransition Kind = "illegal_transition"
	KindIntegrity         Kind = "integrity"
	KindInternal          Kind = "internal"
)

// Коды конкретных ситуаций
const (
	CodeMissingParams      = "MISSING_PARAMS"
	CodeDeadlinePassed     = "DEADLINE_PASSED"
	CodeSelfPurchase       = "SELF_PURCHASE"
	CodeProductInactive    = "PRODUCT_INACTIVE"
	CodeInvalidStatus      = "INVALID_STATUS"
	CodeInvalidRole        = "INVALID_ROLE"
	CodeInvalidShipping    = "INVALID_SHIPPING_COST"
	CodeInvalidCredentials = "INVALID_CREDENTIALS"
	CodeCartAlreadyOrdered = "CART_ALREADY_ORDERED"
	CodeIllegalTransition  = "ILLEGAL_TRANSITION"
	CodeNotFound           = "NOT_FOUND"
	CodeForbidden          = "FORBIDDEN"
	CodeIntegrity          = "INTEGRITY_ERROR"
	CodeInternal           = "INTERNAL_ERROR"
)

type AppError struct {
	Kind    Kind
	Code    string
	Message string
	Current string // текущий статус позиции, только для KindIllegalTransition
	Err     error
}

func (e *AppError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *AppError) Unwrap() error {
	return e.Err
}

// HTTPStatus сопоставляет класс ошибки и код ответа
func (e *AppError) HTTPStatus() int {
	switch e.Kind {
	case KindValidation:
		return http.StatusBadRequest
	case KindNotFound:
		return http.StatusNotFound
	case KindPermission:
		return http.StatusForbidden
	case KindUnauthorized:
		return http.StatusUnauthorized
	case KindConflict, KindIllegalTransition, KindIntegrity:
		return http.StatusConflict
	}
	return http.StatusInternalServerError
}

func Validation(code, message string) *AppError {
	return &AppError{Kind: KindValidation, Code: code, Message: message}
}

func NotFound(resource string, err error) *AppError {
	return &AppError{
		Kind:    KindNotFound,
		Code:    CodeNotFound,
		Message: fmt.Sprintf("%s not found", resource),
		Err:     err,
	}
}

func Permission(message string) *AppError {
	return &AppError{Kind: KindPermission, Code: CodeForbidden, Message: message}
}

func Unauthorized(message string) *AppError {
	return &AppError{Kind: KindUnauthorized, Code: CodeInvalidCredentials, Message: message}
}

func Conflict(code, message string) *AppError {
	return &AppError{Kind: KindConflict, Code: code, Message: message}
}

func IllegalTransition(current, next string) *AppError {
	return &AppError{
		Kind:    KindIllegalTransition,
		Code:    CodeIllegalTransition,
		Message: fmt.Sprintf("cannot change status from %s to %s", current, next),
		Current: current,
	}
}

func Integrity(message string, err error) *AppError {
	return &AppError{Kind: KindIntegrity, Code: CodeIntegrity, Message: message, Err: err}
}

func Internal(message string, err error) *AppError {
	return &AppError{Kind: KindInternal, Code: CodeInternal, Message: message, Err: err}
}

// As достаёт AppError из цепочки; любая другая ошибка считается внутренней
func As(err error) *AppError {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr
	}
	return Internal("internal server error", err)
}

// IsKind проверяет класс ошибки в цепочке
func IsKind(err error, kind Kind) bool {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Kind == kind
	}
	return false
}

// IsCode проверяет код ошибки в цепочке
func IsCode(err error, code string) bool {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Code == code
	}
	return false
}
