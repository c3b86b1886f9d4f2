package models

// User представляет пользователя: он может быть и покупателем, и продавцом
type User struct {
	ID        int64
	UUID      string
	Username  string
	PassHash  []byte
	PushToken *string // токен устройства для push-уведомлений, может отсутствовать
}
