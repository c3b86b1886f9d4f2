package push

import (
	"context"
	"fmt"

	firebase "firebase.google.com/go/v4"
	"firebase.google.com/go/v4/messaging"
	"google.golang.org/api/option"
)

// FCMSender отправляет уведомления через Firebase Cloud Messaging
type FCMSender struct {
	client *messaging.Client
}

// NewFCMSender инициализирует приложение Firebase. Без файла ключа используются
// учётные данные окружения (GOOGLE_APPLICATION_CREDENTIALS)
func NewFCMSender(ctx context.Context, projectID, credentialsFile string) (*FCMSender, error) {
	const op = "push.NewFCMSender"

	var opts []option.ClientOption
	if credentialsFile != "" {
		opts = append(opts, option.WithCredentialsFile(credentialsFile))
	}

	var cfg *firebase.Config
	if projectID != "" {
		cfg = &firebase.Config{ProjectID: projectID}
	}

	app, err := firebase.NewApp(ctx, cfg, opts...)
	if err != nil {
		return nil, fmt.Errorf("%s: failed to init firebase app: %w", op, err)
	}

	client, err := app.Messaging(ctx)
	if err != nil {
		return nil, fmt.Errorf("%s: failed to init messaging client: %w", op, err)
	}

	return &FCMSender{client: client}, nil
}

func (s *FCMSender) Send(ctx context.Context, token string, msg Message) error {
	_, err := s.client.Send(ctx, &messaging.Message{
		Token: token,
		Notification: &messaging.Notification{
			Title: msg.Title,
			Body:  msg.Body,
		},
		Data: msg.Data,
	})
	if err != nil {
		if messaging.IsUnregistered(err) {
			return fmt.Errorf("%w: %v", ErrUnregistered, err)
		}
		return fmt.Errorf("failed to send fcm message: %w", err)
	}
	return nil
}
