package service

import "time"

// SetClock подменяет часы сервиса корзин в тестах
func SetClock(s CartService, now func() time.Time) {
	s.(*cartService).now = now
}
