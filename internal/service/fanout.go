package service

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"strings"

	"github.com/linemk/peo-market/internal/domain/models"
	"github.com/linemk/peo-market/internal/lib/apperr"
	"github.com/linemk/peo-market/internal/push"
	"github.com/linemk/peo-market/internal/storage"
)

// fanout создаёт побочные записи заказа: уведомления и сообщения в чатах.
// Всё пишется в транзакции вызывающего, push отправляется отдельно после коммита
type fanout struct {
	notifications storage.NotificationStorage
	chats         storage.ChatStorage
	banks         storage.PaymentBankStorage
}

// batch выполняет пакетную вставку по политике оформления заказа.
// lenient: нарушение целостности откатывает только этот пакет, пишется предупреждение, работа продолжается.
// strict: нарушение целостности превращается в IntegrityError и прерывает операцию
func batch(ctx context.Context, tx *sql.Tx, logger *slog.Logger, lenient bool, name string, fn func() error) error {
	if !lenient {
		if err := fn(); err != nil {
			if storage.IsIntegrityViolation(err) {
				return apperr.Integrity(fmt.Sprintf("%s batch violates integrity", name), err)
			}
			return err
		}
		return nil
	}

	err := storage.WithSavepoint(ctx, tx, name, fn)
	if err != nil && storage.IsIntegrityViolation(err) {
		logger.Warn("batch skipped on integrity violation", slog.String("batch", name), slog.Any("error", err))
		return nil
	}
	return err
}

// checkoutEffects - уведомление продавцу и стартовое сообщение в чате на каждую позицию
func (f *fanout) checkoutEffects(ctx context.Context, tx *sql.Tx, logger *slog.Logger, lenient bool, items []*models.OrderItem) error {
	if len(items) == 0 {
		return nil
	}

	notifications := make([]*models.Notification, 0, len(items))
	for _, it := range items {
		notifications = append(notifications, &models.Notification{
			ActorID:     it.BuyerID,
			RecipientID: it.SellerID,
			Verb:        models.VerbNew,
			Object:      models.OrderItemRef(it.ID),
		})
	}
	err := batch(ctx, tx, logger, lenient, "notifications", func() error {
		n, err := f.notifications.BulkCreateNotifications(ctx, tx, notifications)
		if err == nil {
			logger.Debug("notifications created", slog.Int64("count", n))
		}
		return err
	})
	if err != nil {
		return fmt.Errorf("failed to create notifications: %w", err)
	}

	err = batch(ctx, tx, logger, lenient, "chat_messages", func() error {
		// один чат на пару покупатель-продавец на весь вызов
		chatIDs := make(map[[2]int64]int64)
		messages := make([]*models.ChatMessage, 0, len(items))
		for _, it := range items {
			key := [2]int64{it.BuyerID, it.SellerID}
			chatID, ok := chatIDs[key]
			if !ok {
				chat, err := f.chats.GetOrCreateChat(ctx, tx, it.BuyerID, it.SellerID)
				if err != nil {
					return err
				}
				chatID = chat.ID
				chatIDs[key] = chatID
			}
			ref := models.OrderItemRef(it.ID)
			messages = append(messages, &models.ChatMessage{
				ChatID:  chatID,
				UserID:  it.BuyerID,
				Object:  &ref,
				Message: newOrderMessage(it),
			})
		}
		n, err := f.chats.BulkCreateMessages(ctx, tx, messages)
		if err == nil {
			logger.Debug("chat messages created", slog.Int64("count", n))
		}
		return err
	})
	if err != nil {
		return fmt.Errorf("failed to seed chat messages: %w", err)
	}
	return nil
}

// transitionEffects - ровно одно уведомление второй стороне, а при подтверждении
// ещё и сообщение с реквизитами для оплаты. Ошибки всегда прерывают переход
func (f *fanout) transitionEffects(ctx context.Context, tx *sql.Tx, item *models.OrderItem, prev models.Status, actorID int64, role models.Role) error {
	verb, ok := models.VerbForStatus(item.Status)
	if !ok {
		return fmt.Errorf("no notification verb for status %s", item.Status)
	}

	_, err := f.notifications.BulkCreateNotifications(ctx, tx, []*models.Notification{{
		ActorID:     actorID,
		RecipientID: item.Counterparty(role),
		Verb:        verb,
		Object:      models.OrderItemRef(item.ID),
	}})
	if err != nil {
		return fmt.Errorf("failed to create notification: %w", err)
	}

	if prev != models.StatusPending || item.Status != models.StatusConfirmed {
		return nil
	}

	banks, err := f.banks.ListActiveByUser(ctx, tx, item.SellerID)
	if err != nil {
		return fmt.Errorf("failed to get seller payment banks: %w", err)
	}
	chat, err := f.chats.GetOrCreateChat(ctx, tx, item.BuyerID, item.SellerID)
	if err != nil {
		return fmt.Errorf("failed to get chat: %w", err)
	}
	ref := models.OrderItemRef(item.ID)
	_, err = f.chats.BulkCreateMessages(ctx, tx, []*models.ChatMessage{{
		ChatID:  chat.ID,
		UserID:  item.SellerID,
		Object:  &ref,
		Message: paymentInstructions(item, banks),
	}})
	if err != nil {
		return fmt.Errorf("failed to create payment message: %w", err)
	}
	return nil
}

func newOrderMessage(it *models.OrderItem) string {
	msg := fmt.Sprintf("New order: item #%d, quantity %d, price %d.", it.ID, it.Quantity, it.UnitPrice)
	if it.Note != "" {
		msg += " Note: " + it.Note
	}
	return msg
}

func paymentInstructions(item *models.OrderItem, banks []*models.PaymentBank) string {
	var b strings.Builder

	name := item.ProductName
	if name == "" {
		name = fmt.Sprintf("item #%d", item.ID)
	}
	fmt.Fprintf(&b, "Your order for %s is confirmed.\n", name)

	var shipping int64
	if item.ShippingCost != nil {
		shipping = *item.ShippingCost
	}
	fmt.Fprintf(&b, "Total to pay: %d (%d x %d + shipping %d).\n", item.Total(), item.Quantity, item.UnitPrice, shipping)

	if len(banks) == 0 {
		b.WriteString("Please contact the seller for payment details.")
		return b.String()
	}
	b.WriteString("Transfer to:")
	for _, bank := range banks {
		fmt.Fprintf(&b, "\n- %s %s (%s)", bank.BankName, bank.AccountNumber, bank.AccountName)
	}
	return b.String()
}

func statusAlert(item *models.OrderItem, recipientID int64) push.Alert {
	return push.Alert{
		UserID: recipientID,
		Message: push.Message{
			Title: "Order update",
			Body:  fmt.Sprintf("Order item #%d is now %s", item.ID, item.Status),
			Data: map[string]string{
				"object_kind": string(models.ObjectOrderItem),
				"object_id":   fmt.Sprintf("%d", item.ID),
				"status":      string(item.Status),
			},
		},
	}
}
