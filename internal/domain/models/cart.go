package models

import "time"

// Cart - корзина покупателя у одного продавца.
// Открытой (IsDone=false) может быть только одна корзина на пару (buyer, seller)
type Cart struct {
	ID        int64       `json:"id"`
	UUID      string      `json:"uuid"`
	BuyerID   int64       `json:"buyer_id"`
	SellerID  int64       `json:"seller_id"`
	IsDone    bool        `json:"is_done"`
	CreatedAt time.Time   `json:"created_at"`
	UpdatedAt time.Time   `json:"updated_at"`
	Items     []*CartItem `json:"items"`
}

// CartItem - строка корзины; товар встречается в корзине не больше одного раза
type CartItem struct {
	ID        int64  `json:"id"`
	UUID      string `json:"uuid"`
	CartID    int64  `json:"cart_id"`
	ProductID int64  `json:"product_id"`
	Quantity  int    `json:"quantity"`
	Note      string `json:"note,omitempty"`
	UnitPrice int64  `json:"unit_price"` // цена товара на момент добавления в корзину
}
