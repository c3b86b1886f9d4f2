package storage

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"github.com/linemk/peo-market/internal/domain/models"
)

// NotificationStorage - входящие уведомления, только добавление и чтение
type NotificationStorage interface {
	// BulkCreateNotifications вставляет уведомления одним запросом и возвращает число вставленных.
	BulkCreateNotifications(ctx context.Context, tx *sql.Tx, notifications []*models.Notification) (int64, error)
	ListByRecipient(ctx context.Context, recipientID int64, limit int) ([]*models.Notification, error)
}

type notificationRepository struct {
	db *sql.DB
}

func NewNotificationRepository(db *sql.DB) NotificationStorage {
	return &notificationRepository{db: db}
}

func (r *notificationRepository) BulkCreateNotifications(ctx context.Context, tx *sql.Tx, notifications []*models.Notification) (int64, error) {
	if len(notifications) == 0 {
		return 0, nil
	}

	var (
		uuids      = make([]string, len(notifications))
		actors     = make([]int64, len(notifications))
		recipients = make([]int64, len(notifications))
		verbs      = make([]string, len(notifications))
		kinds      = make([]string, len(notifications))
		objects    = make([]int64, len(notifications))
	)
	for i, n := range notifications {
		if n.UUID == "" {
			n.UUID = uuid.NewString()
		}
		uuids[i] = n.UUID
		actors[i] = n.ActorID
		recipients[i] = n.RecipientID
		verbs[i] = string(n.Verb)
		kinds[i] = string(n.Object.Kind)
		objects[i] = n.Object.ID
	}

	query := `
		INSERT INTO notifications (uuid, actor_id, recipient_id, verb, object_kind, object_id, created_at)
		SELECT t.u, t.a, t.r, t.v, t.k, t.o, NOW()
		FROM unnest($1::uuid[], $2::bigint[], $3::bigint[], $4::text[], $5::text[], $6::bigint[]) AS t(u, a, r, v, k, o)`
	res, err := tx.ExecContext(ctx, query,
		pq.Array(uuids), pq.Array(actors), pq.Array(recipients),
		pq.Array(verbs), pq.Array(kinds), pq.Array(objects),
	)
	if err != nil {
		return 0, fmt.Errorf("failed to create notifications: %w", err)
	}
	return res.RowsAffected()
}

func (r *notificationRepository) ListByRecipient(ctx context.Context, recipientID int64, limit int) ([]*models.Notification, error) {
	query := `
		SELECT id, uuid, actor_id, recipient_id, verb, object_kind, object_id, created_at
		FROM notifications
		WHERE recipient_id = $1
		ORDER BY created_at DESC, id DESC
		LIMIT $2`
	rows, err := r.db.QueryContext(ctx, query, recipientID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query notifications: %w", err)
	}
	defer rows.Close()

	var notifications []*models.Notification
	for rows.Next() {
		n := &models.Notification{}
		if err := rows.Scan(&n.ID, &n.UUID, &n.ActorID, &n.RecipientID, &n.Verb, &n.Object.Kind, &n.Object.ID, &n.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan notification: %w", err)
		}
		notifications = append(notifications, n)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return notifications, nil
}
