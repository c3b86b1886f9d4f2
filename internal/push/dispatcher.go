package push

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"
)

// TokenSource возвращает токены устройств пользователей
type TokenSource interface {
	GetPushTokens(ctx context.Context, ids []int64) (map[int64]string, error)
}

// Dispatcher - ограниченная очередь push-уведомлений с пулом воркеров.
// Enqueue никогда не блокирует: при заполненной очереди уведомление отбрасывается.
type Dispatcher struct {
	log     *slog.Logger
	sender  Sender
	tokens  TokenSource
	queue   chan Alert
	workers int
	timeout time.Duration
	wg      sync.WaitGroup
}

func NewDispatcher(log *slog.Logger, sender Sender, tokens TokenSource, workers, queueSize int, timeout time.Duration) *Dispatcher {
	if workers < 1 {
		workers = 1
	}
	if queueSize < 1 {
		queueSize = 1
	}
	return &Dispatcher{
		log:     log.With(slog.String("component", "push.Dispatcher")),
		sender:  sender,
		tokens:  tokens,
		queue:   make(chan Alert, queueSize),
		workers: workers,
		timeout: timeout,
	}
}

// Start запускает воркеров. После отмены ctx воркеры дорабатывают то, что уже в очереди, и завершаются
func (d *Dispatcher) Start(ctx context.Context) {
	for i := 0; i < d.workers; i++ {
		d.wg.Add(1)
		go d.worker(ctx)
	}
	d.log.Info("push dispatcher started", slog.Int("workers", d.workers), slog.Int("queue_size", cap(d.queue)))
}

// Wait дожидается завершения воркеров
func (d *Dispatcher) Wait() {
	d.wg.Wait()
}

func (d *Dispatcher) Enqueue(alerts ...Alert) {
	for _, a := range alerts {
		select {
		case d.queue <- a:
		default:
			d.log.Warn("push queue is full, alert dropped",
				slog.Int64("userID", a.UserID),
				slog.String("title", a.Message.Title),
			)
		}
	}
}

func (d *Dispatcher) worker(ctx context.Context) {
	defer d.wg.Done()
	// отправка не должна обрываться вместе с ctx сервера во время дренажа
	sendCtx := context.WithoutCancel(ctx)

	for {
		select {
		case a := <-d.queue:
			d.deliver(sendCtx, a)
		case <-ctx.Done():
			for {
				select {
				case a := <-d.queue:
					d.deliver(sendCtx, a)
				default:
					return
				}
			}
		}
	}
}

func (d *Dispatcher) deliver(ctx context.Context, a Alert) {
	logger := d.log.With(slog.Int64("userID", a.UserID))

	if d.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, d.timeout)
		defer cancel()
	}

	tokens, err := d.tokens.GetPushTokens(ctx, []int64{a.UserID})
	if err != nil {
		logger.Error("failed to get push token", slog.Any("error", err))
		return
	}
	token, ok := tokens[a.UserID]
	if !ok {
		logger.Debug("user has no push token")
		return
	}

	if err := d.sender.Send(ctx, token, a.Message); err != nil {
		if errors.Is(err, ErrUnregistered) {
			logger.Warn("push token is stale", slog.Any("error", err))
			return
		}
		logger.Error("failed to send push", slog.Any("error", err))
		return
	}
	logger.Debug("push sent", slog.String("title", a.Message.Title))
}
