package service_test

import (
	"context"
	"database/sql"
	"errors"
	"io"
	"log/slog"
	"regexp"
	"slices"
	"sync"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"

	"github.com/linemk/peo-market/internal/domain/models"
	"github.com/linemk/peo-market/internal/push"
	"github.com/linemk/peo-market/internal/storage"
)

// fakeStore - память вместо PostgreSQL, реализует все репозитории.
// Транзакции не моделирует: их границы проверяются через sqlmock
type fakeStore struct {
	mu     sync.Mutex
	nextID int64

	users         map[int64]*models.User
	products      map[int64]*models.Product
	banks         []*models.PaymentBank
	carts         map[int64]*models.Cart
	cartItems     map[int64]*models.CartItem
	orders        map[int64]*models.Order
	orderItems    map[int64]*models.OrderItem
	notifications []*models.Notification
	chats         []*models.Chat
	messages      []*models.ChatMessage
	lockedOrders  []int64

	// ошибки, которые вернут соответствующие вставки
	ordersErr        error
	orderItemsErr    error
	notificationsErr error
	messagesErr      error
	banksErr         error
	chatsErr         error
}

var (
	_ storage.UserStorage         = (*fakeStore)(nil)
	_ storage.ProductStorage      = (*fakeStore)(nil)
	_ storage.PaymentBankStorage  = (*fakeStore)(nil)
	_ storage.CartStorage         = (*fakeStore)(nil)
	_ storage.CartItemStorage     = (*fakeStore)(nil)
	_ storage.OrderStorage        = (*fakeStore)(nil)
	_ storage.NotificationStorage = (*fakeStore)(nil)
	_ storage.ChatStorage         = (*fakeStore)(nil)
)

var uniqueViolation = &pq.Error{Code: "23505", Message: "duplicate key value violates unique constraint"}

func newFakeStore() *fakeStore {
	return &fakeStore{
		nextID:     100,
		users:      make(map[int64]*models.User),
		products:   make(map[int64]*models.Product),
		carts:      make(map[int64]*models.Cart),
		cartItems:  make(map[int64]*models.CartItem),
		orders:     make(map[int64]*models.Order),
		orderItems: make(map[int64]*models.OrderItem),
	}
}

func (f *fakeStore) id() int64 {
	f.nextID++
	return f.nextID
}

func (f *fakeStore) addUser(id int64, username string) *models.User {
	u := &models.User{ID: id, UUID: username + "-uuid", Username: username}
	f.users[id] = u
	return u
}

func (f *fakeStore) addProduct(id, ownerID, price int64) *models.Product {
	p := &models.Product{
		ID:            id,
		OwnerID:       ownerID,
		Name:          "product",
		Price:         price,
		OrderDeadline: time.Now().Add(24 * time.Hour),
		DeliveryDate:  time.Now().Add(72 * time.Hour),
		IsActive:      true,
	}
	f.products[id] = p
	return p
}

// --- users

func (f *fakeStore) GetUserByUsername(_ context.Context, username string) (*models.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, u := range f.users {
		if u.Username == username {
			return u, nil
		}
	}
	return nil, storage.ErrUserNotFound
}

func (f *fakeStore) CreateUser(_ context.Context, user *models.User) (*models.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	user.ID = f.id()
	f.users[user.ID] = user
	return user, nil
}

func (f *fakeStore) GetUserByID(_ context.Context, id int64) (*models.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if u, ok := f.users[id]; ok {
		return u, nil
	}
	return nil, storage.ErrUserNotFound
}

func (f *fakeStore) LockUserByIDTx(ctx context.Context, _ *sql.Tx, id int64) (*models.User, error) {
	return f.GetUserByID(ctx, id)
}

func (f *fakeStore) UpdatePushToken(_ context.Context, id int64, token string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	u, ok := f.users[id]
	if !ok {
		return storage.ErrUserNotFound
	}
	if token == "" {
		u.PushToken = nil
	} else {
		u.PushToken = &token
	}
	return nil
}

func (f *fakeStore) GetPushTokens(_ context.Context, ids []int64) (map[int64]string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	res := make(map[int64]string)
	for _, id := range ids {
		if u, ok := f.users[id]; ok && u.PushToken != nil {
			res[id] = *u.PushToken
		}
	}
	return res, nil
}

// --- products, banks

func (f *fakeStore) GetProductByID(_ context.Context, _ *sql.Tx, id int64) (*models.Product, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if p, ok := f.products[id]; ok {
		return p, nil
	}
	return nil, storage.ErrProductNotFound
}

func (f *fakeStore) ListActiveByUser(_ context.Context, _ *sql.Tx, userID int64) ([]*models.PaymentBank, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var res []*models.PaymentBank
	for _, b := range f.banks {
		if b.UserID == userID {
			res = append(res, b)
		}
	}
	return res, nil
}

func (f *fakeStore) ListActivePaymentBanks(ctx context.Context, userID int64) ([]*models.PaymentBank, error) {
	return f.ListActiveByUser(ctx, nil, userID)
}

func (f *fakeStore) CreatePaymentBank(_ context.Context, bank *models.PaymentBank) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.banksErr != nil {
		return f.banksErr
	}
	bank.ID = f.id()
	bank.IsActive = true
	cp := *bank
	f.banks = append(f.banks, &cp)
	return nil
}

// --- carts

func (f *fakeStore) LockOpenCart(_ context.Context, _ *sql.Tx, buyerID, sellerID int64) (*models.Cart, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, c := range f.carts {
		if c.BuyerID == buyerID && c.SellerID == sellerID && !c.IsDone {
			return c, nil
		}
	}
	return nil, storage.ErrCartNotFound
}

func (f *fakeStore) LockCartByID(_ context.Context, _ *sql.Tx, id int64) (*models.Cart, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if c, ok := f.carts[id]; ok {
		return c, nil
	}
	return nil, storage.ErrCartNotFound
}

func (f *fakeStore) LockCartsForBuyer(_ context.Context, _ *sql.Tx, buyerID int64, ids []int64) ([]*models.Cart, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var res []*models.Cart
	for _, c := range f.carts {
		if c.BuyerID == buyerID && slices.Contains(ids, c.ID) {
			res = append(res, c)
		}
	}
	slices.SortFunc(res, func(a, b *models.Cart) int { return int(a.ID - b.ID) })
	return res, nil
}

func (f *fakeStore) CreateCart(_ context.Context, _ *sql.Tx, buyerID, sellerID int64) (*models.Cart, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	c := &models.Cart{ID: f.id(), BuyerID: buyerID, SellerID: sellerID, CreatedAt: time.Now(), UpdatedAt: time.Now()}
	f.carts[c.ID] = c
	return c, nil
}

func (f *fakeStore) DeleteCart(_ context.Context, _ *sql.Tx, id int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.carts[id]; !ok {
		return storage.ErrCartNotFound
	}
	delete(f.carts, id)
	for itemID, it := range f.cartItems {
		if it.CartID == id {
			delete(f.cartItems, itemID)
		}
	}
	return nil
}

func (f *fakeStore) MarkCartsDone(_ context.Context, _ *sql.Tx, ids []int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, id := range ids {
		if c, ok := f.carts[id]; ok {
			c.IsDone = true
		}
	}
	return nil
}

func (f *fakeStore) ListOpenCarts(_ context.Context, _ *sql.Tx, buyerID int64) ([]*models.Cart, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var res []*models.Cart
	for _, c := range f.carts {
		if c.BuyerID == buyerID && !c.IsDone {
			res = append(res, c)
		}
	}
	return res, nil
}

// --- cart items

func (f *fakeStore) GetCartItemByID(_ context.Context, _ *sql.Tx, id int64) (*models.CartItem, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if it, ok := f.cartItems[id]; ok {
		cp := *it
		return &cp, nil
	}
	return nil, storage.ErrCartItemNotFound
}

func (f *fakeStore) LockCartItem(_ context.Context, _ *sql.Tx, cartID, productID int64) (*models.CartItem, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, it := range f.cartItems {
		if it.CartID == cartID && it.ProductID == productID {
			cp := *it
			return &cp, nil
		}
	}
	return nil, storage.ErrCartItemNotFound
}

func (f *fakeStore) LockCartItemByID(ctx context.Context, tx *sql.Tx, id int64) (*models.CartItem, error) {
	return f.GetCartItemByID(ctx, tx, id)
}

func (f *fakeStore) CreateCartItem(_ context.Context, _ *sql.Tx, item *models.CartItem) (*models.CartItem, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, it := range f.cartItems {
		if it.CartID == item.CartID && it.ProductID == item.ProductID {
			return nil, uniqueViolation
		}
	}
	item.ID = f.id()
	cp := *item
	f.cartItems[item.ID] = &cp
	return item, nil
}

func (f *fakeStore) UpdateCartItem(_ context.Context, _ *sql.Tx, item *models.CartItem) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	it, ok := f.cartItems[item.ID]
	if !ok {
		return storage.ErrCartItemNotFound
	}
	it.Quantity, it.Note = item.Quantity, item.Note
	return nil
}

func (f *fakeStore) DeleteCartItem(_ context.Context, _ *sql.Tx, id int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.cartItems[id]; !ok {
		return storage.ErrCartItemNotFound
	}
	delete(f.cartItems, id)
	return nil
}

func (f *fakeStore) CountCartItems(_ context.Context, _ *sql.Tx, cartID int64) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, it := range f.cartItems {
		if it.CartID == cartID {
			n++
		}
	}
	return n, nil
}

func (f *fakeStore) ListByCartIDs(_ context.Context, _ *sql.Tx, cartIDs []int64) ([]*models.CartItem, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var res []*models.CartItem
	for _, it := range f.cartItems {
		if slices.Contains(cartIDs, it.CartID) {
			cp := *it
			res = append(res, &cp)
		}
	}
	slices.SortFunc(res, func(a, b *models.CartItem) int { return int(a.ID - b.ID) })
	return res, nil
}

// --- orders

func (f *fakeStore) OrderedCartIDs(_ context.Context, _ *sql.Tx, buyerID int64, cartIDs []int64) ([]int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var res []int64
	for _, o := range f.orders {
		if o.BuyerID == buyerID && slices.Contains(cartIDs, o.CartID) && !slices.Contains(res, o.CartID) {
			res = append(res, o.CartID)
		}
	}
	return res, nil
}

func (f *fakeStore) BulkCreateOrders(_ context.Context, _ *sql.Tx, orders []*models.Order) ([]*models.Order, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.ordersErr != nil {
		return nil, f.ordersErr
	}
	for _, o := range orders {
		o.ID = f.id()
		o.UUID = "order-uuid"
		o.Status = models.StatusPending
		o.CreatedAt = time.Now()
		cp := *o
		cp.Items = nil
		f.orders[o.ID] = &cp
	}
	return orders, nil
}

func (f *fakeStore) BulkCreateOrderItems(_ context.Context, _ *sql.Tx, items []*models.OrderItem, skipConflicts bool) ([]*models.OrderItem, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.orderItemsErr != nil {
		return nil, f.orderItemsErr
	}
	exists := func(orderID, productID int64) bool {
		for _, it := range f.orderItems {
			if it.OrderID == orderID && it.ProductID == productID {
				return true
			}
		}
		return false
	}
	var created []*models.OrderItem
	for _, it := range items {
		if exists(it.OrderID, it.ProductID) {
			if skipConflicts {
				continue
			}
			return nil, uniqueViolation
		}
		it.ID = f.id()
		it.Status = models.StatusPending
		cp := *it
		f.orderItems[it.ID] = &cp
		created = append(created, it)
	}
	return created, nil
}

func (f *fakeStore) LockOrderItem(_ context.Context, _ *sql.Tx, id int64) (*models.OrderItem, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	it, ok := f.orderItems[id]
	if !ok {
		return nil, storage.ErrOrderItemNotFound
	}
	cp := *it
	if o, ok := f.orders[it.OrderID]; ok {
		cp.BuyerID, cp.SellerID = o.BuyerID, o.SellerID
	}
	if p, ok := f.products[it.ProductID]; ok {
		cp.ProductName = p.Name
	}
	return &cp, nil
}

func (f *fakeStore) UpdateOrderItemStatus(_ context.Context, _ *sql.Tx, id int64, status models.Status, shippingCost *int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	it, ok := f.orderItems[id]
	if !ok {
		return storage.ErrOrderItemNotFound
	}
	it.Status = status
	if shippingCost != nil {
		v := *shippingCost
		it.ShippingCost = &v
	}
	return nil
}

func (f *fakeStore) ListItemStatuses(_ context.Context, _ *sql.Tx, orderID int64) ([]models.Status, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var res []models.Status
	for _, it := range f.orderItems {
		if it.OrderID == orderID {
			res = append(res, it.Status)
		}
	}
	return res, nil
}

func (f *fakeStore) LockOrder(_ context.Context, _ *sql.Tx, orderID int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.orders[orderID]; !ok {
		return storage.ErrOrderNotFound
	}
	f.lockedOrders = append(f.lockedOrders, orderID)
	return nil
}

func (f *fakeStore) UpdateOrderSummary(_ context.Context, _ *sql.Tx, orderID int64, status models.Status) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	o, ok := f.orders[orderID]
	if !ok {
		return storage.ErrOrderNotFound
	}
	// ListItemStatuses должен идти под блокировкой заказа
	if !slices.Contains(f.lockedOrders, orderID) {
		return errors.New("order summary updated without order lock")
	}
	o.Status = status

	var total *int64
	for _, it := range f.orderItems {
		if it.OrderID != orderID || it.ShippingCost == nil ||
			it.Status == models.StatusRejected || it.Status == models.StatusCanceled {
			continue
		}
		if total == nil {
			total = new(int64)
		}
		*total += *it.ShippingCost
	}
	o.ShippingCost = total
	return nil
}

func (f *fakeStore) ListOrdersByUser(_ context.Context, _ *sql.Tx, userID int64, role models.Role) ([]*models.Order, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var res []*models.Order
	for _, o := range f.orders {
		if (role == models.RoleBuyer && o.BuyerID == userID) || (role == models.RoleSeller && o.SellerID == userID) {
			cp := *o
			res = append(res, &cp)
		}
	}
	slices.SortFunc(res, func(a, b *models.Order) int { return int(a.ID - b.ID) })
	return res, nil
}

func (f *fakeStore) ListItemsByOrderIDs(_ context.Context, _ *sql.Tx, orderIDs []int64) ([]*models.OrderItem, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var res []*models.OrderItem
	for _, it := range f.orderItems {
		if slices.Contains(orderIDs, it.OrderID) {
			cp := *it
			res = append(res, &cp)
		}
	}
	slices.SortFunc(res, func(a, b *models.OrderItem) int { return int(a.ID - b.ID) })
	return res, nil
}

// --- notifications, chats

func (f *fakeStore) BulkCreateNotifications(_ context.Context, _ *sql.Tx, notifications []*models.Notification) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.notificationsErr != nil {
		return 0, f.notificationsErr
	}
	for _, n := range notifications {
		for _, existing := range f.notifications {
			if existing.RecipientID == n.RecipientID && existing.Verb == n.Verb && existing.Object == n.Object {
				return 0, uniqueViolation
			}
		}
	}
	for _, n := range notifications {
		n.ID = f.id()
		f.notifications = append(f.notifications, n)
	}
	return int64(len(notifications)), nil
}

func (f *fakeStore) ListByRecipient(_ context.Context, recipientID int64, limit int) ([]*models.Notification, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var res []*models.Notification
	for i := len(f.notifications) - 1; i >= 0 && len(res) < limit; i-- {
		if f.notifications[i].RecipientID == recipientID {
			res = append(res, f.notifications[i])
		}
	}
	return res, nil
}

func (f *fakeStore) GetOrCreateChat(_ context.Context, _ *sql.Tx, userID, sendToUserID int64) (*models.Chat, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, c := range f.chats {
		if (c.UserID == userID && c.SendToUser == sendToUserID) || (c.UserID == sendToUserID && c.SendToUser == userID) {
			return c, nil
		}
	}
	c := &models.Chat{ID: f.id(), UserID: userID, SendToUser: sendToUserID}
	f.chats = append(f.chats, c)
	return c, nil
}

func (f *fakeStore) BulkCreateMessages(_ context.Context, _ *sql.Tx, messages []*models.ChatMessage) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.messagesErr != nil {
		return 0, f.messagesErr
	}
	for _, m := range messages {
		m.ID = f.id()
		f.messages = append(f.messages, m)
	}
	return int64(len(messages)), nil
}

func (f *fakeStore) ListChatsByUser(_ context.Context, userID int64) ([]*models.Chat, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.chatsErr != nil {
		return nil, f.chatsErr
	}
	var res []*models.Chat
	for _, c := range f.chats {
		if !c.HasParticipant(userID) {
			continue
		}
		cp := *c
		for _, m := range f.messages {
			if m.ChatID == c.ID {
				cp.LastMessage = m.Message
				at := m.CreatedAt
				cp.LastMessageAt = &at
			}
		}
		res = append(res, &cp)
	}
	return res, nil
}

func (f *fakeStore) GetChat(_ context.Context, id int64) (*models.Chat, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.chatsErr != nil {
		return nil, f.chatsErr
	}
	for _, c := range f.chats {
		if c.ID == id {
			cp := *c
			return &cp, nil
		}
	}
	return nil, storage.ErrChatNotFound
}

func (f *fakeStore) ListChatMessages(_ context.Context, chatID int64, limit int) ([]*models.ChatMessage, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var res []*models.ChatMessage
	for _, m := range f.messages {
		if m.ChatID == chatID {
			res = append(res, m)
		}
	}
	if len(res) > limit {
		res = res[len(res)-limit:]
	}
	return res, nil
}

func (f *fakeStore) notificationsFor(recipientID int64, verb models.Verb) []*models.Notification {
	var res []*models.Notification
	for _, n := range f.notifications {
		if n.RecipientID == recipientID && n.Verb == verb {
			res = append(res, n)
		}
	}
	return res
}

// fakeNotifier запоминает push-уведомления
type fakeNotifier struct {
	mu     sync.Mutex
	alerts []push.Alert
}

func (n *fakeNotifier) Enqueue(alerts ...push.Alert) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.alerts = append(n.alerts, alerts...)
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newMockDB(t *testing.T) (*sql.DB, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	assert.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return db, mock
}

// expectSavepoint ожидает SAVEPOINT и RELEASE либо ROLLBACK TO для пакета
func expectSavepoint(mock sqlmock.Sqlmock, name string, released bool) {
	mock.ExpectExec(regexp.QuoteMeta(`SAVEPOINT "` + name + `"`)).WillReturnResult(sqlmock.NewResult(0, 0))
	if released {
		mock.ExpectExec(regexp.QuoteMeta(`RELEASE SAVEPOINT "` + name + `"`)).WillReturnResult(sqlmock.NewResult(0, 0))
		return
	}
	mock.ExpectExec(regexp.QuoteMeta(`ROLLBACK TO SAVEPOINT "` + name + `"`)).WillReturnResult(sqlmock.NewResult(0, 0))
}
