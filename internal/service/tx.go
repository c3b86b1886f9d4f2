package service

import (
	"database/sql"
	"errors"
	"log/slog"

	"github.com/linemk/peo-market/internal/push"
)

// Notifier принимает push-уведомления после коммита; реализация не должна блокировать
type Notifier interface {
	Enqueue(alerts ...push.Alert)
}

var readOnly = &sql.TxOptions{ReadOnly: true}

// rollback откатывает транзакцию; после Commit вызов безопасен и ничего не делает
func rollback(logger *slog.Logger, tx *sql.Tx) {
	if err := tx.Rollback(); err != nil && !errors.Is(err, sql.ErrTxDone) {
		logger.Error("transaction rollback failed", slog.Any("error", err))
	}
}
