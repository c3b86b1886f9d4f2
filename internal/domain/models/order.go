package models

import "time"

// Order - заказ, созданный из одной корзины при оформлении
type Order struct {
	ID           int64        `json:"id"`
	UUID         string       `json:"uuid"`
	BuyerID      int64        `json:"buyer_id"`
	SellerID     int64        `json:"seller_id"`
	CartID       int64        `json:"cart_id"`
	ShippingCost *int64       `json:"shipping_cost,omitempty"`
	Status       Status       `json:"status"` // производный статус, источник истины - OrderItem.Status
	CreatedAt    time.Time    `json:"created_at"`
	Items        []*OrderItem `json:"items,omitempty"`
}

// NewOrderFromCart готовит заказ по корзине. Продавец берётся только из корзины
func NewOrderFromCart(cart *Cart) *Order {
	return &Order{
		BuyerID:  cart.BuyerID,
		SellerID: cart.SellerID,
		CartID:   cart.ID,
		Status:   StatusPending,
	}
}

// OrderItem - товарная позиция заказа со своим статусом
type OrderItem struct {
	ID           int64  `json:"id"`
	UUID         string `json:"uuid"`
	OrderID      int64  `json:"order_id"`
	ProductID    int64  `json:"product_id"`
	ProductName  string `json:"product_name,omitempty"` // заполняется через JOIN с products
	Quantity     int    `json:"quantity"`
	Note         string `json:"note,omitempty"`
	UnitPrice    int64  `json:"unit_price"`
	ShippingCost *int64 `json:"shipping_cost,omitempty"`
	Status       Status `json:"status"`

	// участники заказа, заполняются через JOIN с orders
	BuyerID  int64 `json:"buyer_id"`
	SellerID int64 `json:"seller_id"`
}

// Total - стоимость позиции с доставкой
func (i *OrderItem) Total() int64 {
	total := i.UnitPrice * int64(i.Quantity)
	if i.ShippingCost != nil {
		total += *i.ShippingCost
	}
	return total
}

// RoleOf возвращает роль пользователя в заказе
func (i *OrderItem) RoleOf(userID int64) (Role, bool) {
	switch userID {
	case i.SellerID:
		return RoleSeller, true
	case i.BuyerID:
		return RoleBuyer, true
	}
	return "", false
}

// Counterparty - вторая сторона заказа для заданной роли
func (i *OrderItem) Counterparty(role Role) int64 {
	if role == RoleSeller {
		return i.BuyerID
	}
	return i.SellerID
}
