package models

import "time"

// Verb - событие, о котором сообщает уведомление
type Verb string

const (
	VerbNew      Verb = "new"
	VerbAccepted Verb = "accepted"
	VerbPayed    Verb = "payed"
	VerbDeliver  Verb = "deliver"
	VerbDone     Verb = "done"
	VerbRejected Verb = "rejected"
	VerbCanceled Verb = "canceled"
)

// VerbForStatus сопоставляет новый статус позиции и глагол уведомления
func VerbForStatus(s Status) (Verb, bool) {
	switch s {
	case StatusPending:
		return VerbNew, true
	case StatusConfirmed:
		return VerbAccepted, true
	case StatusPayed:
		return VerbPayed, true
	case StatusDeliver:
		return VerbDeliver, true
	case StatusDone:
		return VerbDone, true
	case StatusRejected:
		return VerbRejected, true
	case StatusCanceled:
		return VerbCanceled, true
	}
	return "", false
}

// ObjectKind - тип сущности, на которую ссылается уведомление или сообщение
type ObjectKind string

const (
	ObjectOrderItem ObjectKind = "order_item"
	ObjectProduct   ObjectKind = "product"
)

// ObjectRef - слабая ссылка на сущность: тип + идентификатор, без внешнего ключа
type ObjectRef struct {
	Kind ObjectKind `json:"kind"`
	ID   int64      `json:"id"`
}

// OrderItemRef - ссылка на позицию заказа
func OrderItemRef(id int64) ObjectRef {
	return ObjectRef{Kind: ObjectOrderItem, ID: id}
}

// Notification - запись во входящих получателя, после создания не меняется
type Notification struct {
	ID          int64     `json:"id"`
	UUID        string    `json:"uuid"`
	ActorID     int64     `json:"actor_id"`
	RecipientID int64     `json:"recipient_id"`
	Verb        Verb      `json:"verb"`
	Object      ObjectRef `json:"object"`
	CreatedAt   time.Time `json:"created_at"`
}
