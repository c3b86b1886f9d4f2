package app

import (
	"context"
	"database/sql"
	"log/slog"
	"time"

	_ "github.com/lib/pq"
	"github.com/pkg/errors"

	"github.com/linemk/peo-market/internal/config"
	"github.com/linemk/peo-market/internal/push"
	"github.com/linemk/peo-market/internal/service"
	"github.com/linemk/peo-market/internal/storage"
)

type App struct {
	Config   *config.Config
	Logger   *slog.Logger
	DB       *sql.DB
	Push     *push.Dispatcher
	Services Services
}

// Services - всё, что нужно HTTP-слою
type Services struct {
	Auth         service.AuthServiceInterface
	Cart         service.CartService
	Checkout     service.CheckoutService
	Order        service.OrderService
	Notification service.NotificationService
	Chat         service.ChatService
	PaymentBank  service.PaymentBankService
}

// NewApp создаёт новый экземпляр App: подключение к БД, репозитории, сервисы и push
func NewApp(ctx context.Context, log *slog.Logger, cfg *config.Config) (*App, error) {
	db, err := sql.Open("postgres", cfg.Database.DSN())
	if err != nil {
		return nil, errors.Wrap(err, "failed to open database")
	}
	db.SetMaxOpenConns(cfg.Database.MaxOpenConns)
	db.SetMaxIdleConns(cfg.Database.MaxIdleConns)

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, errors.Wrap(err, "failed to ping database")
	}

	sender, err := newSender(ctx, log, cfg.Push)
	if err != nil {
		db.Close()
		return nil, err
	}

	// реализация слоев по работе с БД по каждому направлению
	userRepo := storage.NewUserRepository(db)
	productRepo := storage.NewProductRepository(db)
	bankRepo := storage.NewPaymentBankRepository(db)
	cartRepo := storage.NewCartRepository(db)
	cartItemRepo := storage.NewCartItemRepository(db)
	orderRepo := storage.NewOrderRepository(db)
	notificationRepo := storage.NewNotificationRepository(db)
	chatRepo := storage.NewChatRepository(db)

	dispatcher := push.NewDispatcher(log, sender, userRepo,
		cfg.Push.Workers, cfg.Push.QueueSize, cfg.Push.Timeout)

	services := Services{
		Auth: service.NewAuthService(log, userRepo, cfg.JWT.Secret,
			time.Duration(cfg.JWT.TokenTTL)*time.Minute),
		Cart: service.NewCartService(log, db, userRepo, productRepo, cartRepo, cartItemRepo),
		Checkout: service.NewCheckoutService(log, db, cartRepo, cartItemRepo, orderRepo,
			notificationRepo, chatRepo, dispatcher, !cfg.Checkout.StrictBatches),
		Order:        service.NewOrderService(log, db, orderRepo, notificationRepo, chatRepo, bankRepo, dispatcher),
		Notification: service.NewNotificationService(log, notificationRepo),
		Chat:         service.NewChatService(log, chatRepo),
		PaymentBank:  service.NewPaymentBankService(log, bankRepo),
	}

	return &App{
		Config:   cfg,
		Logger:   log,
		DB:       db,
		Push:     dispatcher,
		Services: services,
	}, nil
}

// newSender выбирает реальную отправку через FCM или запись в лог
func newSender(ctx context.Context, log *slog.Logger, cfg config.PushConfig) (push.Sender, error) {
	if !cfg.Enabled {
		log.Info("push disabled, alerts go to log")
		return push.NewLogSender(log), nil
	}
	sender, err := push.NewFCMSender(ctx, cfg.ProjectID, cfg.CredentialsFile)
	if err != nil {
		return nil, errors.Wrap(err, "failed to init push sender")
	}
	log.Info("push enabled", slog.String("project_id", cfg.ProjectID))
	return sender, nil
}
