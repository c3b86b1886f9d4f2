package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"github.com/linemk/peo-market/internal/domain/models"
)

type UserStorage interface {
	GetUserByUsername(ctx context.Context, username string) (*models.User, error)
	CreateUser(ctx context.Context, user *models.User) (*models.User, error)
	GetUserByID(ctx context.Context, id int64) (*models.User, error)
	// LockUserByIDTx блокирует строку пользователя до конца транзакции
	LockUserByIDTx(ctx context.Context, tx *sql.Tx, id int64) (*models.User, error)
	UpdatePushToken(ctx context.Context, id int64, token string) error
	// GetPushTokens возвращает токены устройств; пользователи без токена пропускаются
	GetPushTokens(ctx context.Context, ids []int64) (map[int64]string, error)
}

type userRepository struct {
	db *sql.DB
}

func NewUserRepository(db *sql.DB) *userRepository {
	return &userRepository{db: db}
}

const userColumns = "id, uuid, username, pass_hash, push_token"

func scanUser(row *sql.Row) (*models.User, error) {
	user := &models.User{}
	if err := row.Scan(&user.ID, &user.UUID, &user.Username, &user.PassHash, &user.PushToken); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrUserNotFound
		}
		return nil, err
	}
	return user, nil
}

// получение уже существующего пользователя
func (r *userRepository) GetUserByUsername(ctx context.Context, username string) (*models.User, error) {
	row := r.db.QueryRowContext(ctx, "SELECT "+userColumns+" FROM users WHERE username = $1", username)
	return scanUser(row)
}

func (r *userRepository) GetUserByID(ctx context.Context, id int64) (*models.User, error) {
	row := r.db.QueryRowContext(ctx, "SELECT "+userColumns+" FROM users WHERE id = $1", id)
	return scanUser(row)
}

func (r *userRepository) CreateUser(ctx context.Context, user *models.User) (*models.User, error) {
	if user.UUID == "" {
		user.UUID = uuid.NewString()
	}
	var id int64
	err := r.db.QueryRowContext(ctx,
		"INSERT INTO users (uuid, username, pass_hash) VALUES ($1, $2, $3) RETURNING id",
		user.UUID, user.Username, user.PassHash,
	).Scan(&id)
	if err != nil {
		return nil, err
	}
	user.ID = id
	return user, nil
}

// Ждём освобождения строки: конкурирующие изменения корзин одного покупателя выполняются по очереди
func (r *userRepository) LockUserByIDTx(ctx context.Context, tx *sql.Tx, id int64) (*models.User, error) {
	row := tx.QueryRowContext(ctx, "SELECT "+userColumns+" FROM users WHERE id = $1 FOR UPDATE", id)
	return scanUser(row)
}

func (r *userRepository) UpdatePushToken(ctx context.Context, id int64, token string) error {
	res, err := r.db.ExecContext(ctx, "UPDATE users SET push_token = NULLIF($1, '') WHERE id = $2", token, id)
	if err != nil {
		return fmt.Errorf("failed to update push token: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return ErrUserNotFound
	}
	return nil
}

func (r *userRepository) GetPushTokens(ctx context.Context, ids []int64) (map[int64]string, error) {
	tokens := make(map[int64]string, len(ids))
	if len(ids) == 0 {
		return tokens, nil
	}

	rows, err := r.db.QueryContext(ctx,
		"SELECT id, push_token FROM users WHERE id = ANY($1) AND push_token IS NOT NULL",
		pq.Array(ids),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query push tokens: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			id    int64
			token string
		)
		if err := rows.Scan(&id, &token); err != nil {
			return nil, fmt.Errorf("failed to scan push token: %w", err)
		}
		tokens[id] = token
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return tokens, nil
}
