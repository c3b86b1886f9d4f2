package models

import "time"

// Product - снимок товара, который нужен корзине и заказам
type Product struct {
	ID            int64     `json:"id"`
	UUID          string    `json:"uuid"`
	OwnerID       int64     `json:"owner_id"` // продавец
	Name          string    `json:"name"`
	Price         int64     `json:"price"` // в минимальных единицах валюты
	OrderDeadline time.Time `json:"order_deadline"`
	DeliveryDate  time.Time `json:"delivery_date"`
	IsActive      bool      `json:"is_active"`
}

// DeadlinePassed сообщает, закрыт ли приём заказов на момент now
func (p *Product) DeadlinePassed(now time.Time) bool {
	return now.After(p.OrderDeadline)
}
