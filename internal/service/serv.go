package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/crypto/bcrypt"

	"github.com/linemk/peo-market/internal/domain/models"
	security "github.com/linemk/peo-market/internal/jwt-new"
	"github.com/linemk/peo-market/internal/lib/apperr"
	"github.com/linemk/peo-market/internal/storage"
)

type AuthService struct {
	log       *slog.Logger
	userRepo  storage.UserStorage
	jwtSecret string
	tokenTTL  time.Duration
}

func NewAuthService(log *slog.Logger, userRepo storage.UserStorage, jwtSecret string, tokenTTL time.Duration) *AuthService {
	return &AuthService{
		log:       log,
		userRepo:  userRepo,
		jwtSecret: jwtSecret,
		tokenTTL:  tokenTTL,
	}
}

type AuthServiceInterface interface {
	Login(ctx context.Context, username, password string) (string, error)
	RegisterDevice(ctx context.Context, userID int64, pushToken string) error
}

// Login осуществляет аутентификацию пользователя.
// Если пользователь не найден, он создаётся (пароль хэшируется через bcrypt, соль добавляется автоматически).
// Если найден, введённый пароль сравнивается с сохранённым хэшем.
// После успешной проверки выдаётся JWT-токен.
func (a *AuthService) Login(ctx context.Context, username, password string) (string, error) {
	const op = "service.AuthService.Login"
	logger := a.log.With(
		slog.String("op", op),
		slog.String("username", username),
	)
	logger.Info("checking user")

	user, err := a.userRepo.GetUserByUsername(ctx, username)
	switch {
	case errors.Is(err, storage.ErrUserNotFound):
		logger.Info("user not found, creating new user")
		passHash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
		if err != nil {
			logger.Error("failed to hash password", slog.Any("error", err))
			return "", fmt.Errorf("%s: failed to hash password: %w", op, err)
		}
		user, err = a.userRepo.CreateUser(ctx, &models.User{
			Username: username,
			PassHash: passHash,
		})
		if err != nil {
			if storage.IsUniqueViolation(err) {
				// параллельная регистрация с тем же именем
				logger.Warn("username taken concurrently")
				return "", fmt.Errorf("%s: %w", op, apperr.Unauthorized("invalid credentials"))
			}
			logger.Error("failed to create user", slog.Any("error", err))
			return "", fmt.Errorf("%s: failed to create user: %w", op, err)
		}
	case err != nil:
		logger.Error("failed to get user", slog.Any("error", err))
		return "", fmt.Errorf("%s: failed to get user: %w", op, err)
	default:
		if err := bcrypt.CompareHashAndPassword(user.PassHash, []byte(password)); err != nil {
			logger.Warn("invalid password")
			return "", fmt.Errorf("%s: %w", op, apperr.Unauthorized("invalid credentials"))
		}
	}

	token, err := security.NewToken(user, a.jwtSecret, a.tokenTTL)
	if err != nil {
		logger.Error("failed to generate token", slog.Any("error", err))
		return "", fmt.Errorf("%s: failed to generate token: %w", op, err)
	}

	logger.Info("user logged in successfully", slog.Int64("userID", user.ID))
	return token, nil
}

// RegisterDevice сохраняет токен устройства для push; пустой токен отключает push
func (a *AuthService) RegisterDevice(ctx context.Context, userID int64, pushToken string) error {
	const op = "service.AuthService.RegisterDevice"
	logger := a.log.With(slog.String("op", op), slog.Int64("userID", userID))

	if err := a.userRepo.UpdatePushToken(ctx, userID, pushToken); err != nil {
		if errors.Is(err, storage.ErrUserNotFound) {
			logger.Warn("user not found")
			return fmt.Errorf("%s: %w", op, apperr.NotFound("user", err))
		}
		logger.Error("failed to update push token", slog.Any("error", err))
		return fmt.Errorf("%s: failed to update push token: %w", op, err)
	}

	logger.Info("push token updated", slog.Bool("cleared", pushToken == ""))
	return nil
}
