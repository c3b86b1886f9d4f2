package models

// PaymentBank - реквизиты продавца для оплаты заказа
type PaymentBank struct {
	ID            int64  `json:"id"`
	UserID        int64  `json:"user_id"`
	BankName      string `json:"bank_name"`
	AccountName   string `json:"account_name"`
	AccountNumber string `json:"account_number"`
	IsActive      bool   `json:"is_active"`
}
