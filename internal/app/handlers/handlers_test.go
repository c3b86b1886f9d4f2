package handlers_test

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"

	"github.com/linemk/peo-market/internal/app/handlers"
	"github.com/linemk/peo-market/internal/domain/models"
	"github.com/linemk/peo-market/internal/jwt-new/jwtmiddleware"
	"github.com/linemk/peo-market/internal/lib/apperr"
	"github.com/linemk/peo-market/internal/service"
)

var testLogger = slog.New(slog.NewTextHandler(io.Discard, nil))

type fakeAuthService struct {
	token     string
	err       error
	pushToken string
}

func (f *fakeAuthService) Login(context.Context, string, string) (string, error) {
	return f.token, f.err
}

func (f *fakeAuthService) RegisterDevice(_ context.Context, _ int64, pushToken string) error {
	f.pushToken = pushToken
	return f.err
}

type fakeCartService struct {
	item      *models.CartItem
	err       error
	gotBuyer  int64
	gotDelete int64
}

func (f *fakeCartService) UpsertLine(_ context.Context, buyerID, _ int64, _ int, _ string) (*models.CartItem, error) {
	f.gotBuyer = buyerID
	return f.item, f.err
}

func (f *fakeCartService) DeleteLine(_ context.Context, _, cartItemID int64) error {
	f.gotDelete = cartItemID
	return f.err
}

func (f *fakeCartService) ListCarts(context.Context, int64) ([]*models.Cart, error) {
	return []*models.Cart{}, f.err
}

type fakeCheckoutService struct {
	res *service.CheckoutResult
	err error
}

func (f *fakeCheckoutService) Checkout(context.Context, int64, []int64, []int64) (*service.CheckoutResult, error) {
	return f.res, f.err
}

type fakeOrderService struct {
	item    *models.OrderItem
	err     error
	gotIn   service.TransitionInput
	gotRole string
}

func (f *fakeOrderService) Transition(_ context.Context, in service.TransitionInput) (*models.OrderItem, error) {
	f.gotIn = in
	return f.item, f.err
}

func (f *fakeOrderService) ListOrders(_ context.Context, _ int64, role string) ([]*models.Order, error) {
	f.gotRole = role
	return []*models.Order{}, f.err
}

type fakeNotificationService struct {
	gotLimit int
}

func (f *fakeNotificationService) List(_ context.Context, _ int64, limit int) ([]*models.Notification, error) {
	f.gotLimit = limit
	return []*models.Notification{}, nil
}

type fakeChatService struct {
	err      error
	gotActor int64
	gotChat  int64
	gotLimit int
}

func (f *fakeChatService) List(_ context.Context, userID int64) ([]*models.Chat, error) {
	f.gotActor = userID
	return []*models.Chat{{ID: 4, UserID: userID, SendToUser: 2, LastMessage: "hi"}}, f.err
}

func (f *fakeChatService) Messages(_ context.Context, actorID, chatID int64, limit int) ([]*models.ChatMessage, error) {
	f.gotActor, f.gotChat, f.gotLimit = actorID, chatID, limit
	if f.err != nil {
		return nil, f.err
	}
	return []*models.ChatMessage{}, nil
}

type fakePaymentBankService struct {
	err     error
	gotIn   service.PaymentBankInput
	gotUser int64
}

func (f *fakePaymentBankService) Create(_ context.Context, in service.PaymentBankInput) (*models.PaymentBank, error) {
	f.gotIn = in
	if f.err != nil {
		return nil, f.err
	}
	return &models.PaymentBank{ID: 9, UserID: in.UserID, BankName: in.BankName, IsActive: true}, nil
}

func (f *fakePaymentBankService) List(_ context.Context, userID int64) ([]*models.PaymentBank, error) {
	f.gotUser = userID
	return []*models.PaymentBank{}, f.err
}

// withUser кладёт userID в контекст, как это делает JWT middleware
func withUser(req *http.Request, userID int64) *http.Request {
	return req.WithContext(context.WithValue(req.Context(), jwtmiddleware.UserIDKey, userID))
}

// withID добавляет параметр {id} из маршрута chi
func withID(req *http.Request, id string) *http.Request {
	rctx := chi.NewRouteContext()
	rctx.URLParams.Add("id", id)
	return req.WithContext(context.WithValue(req.Context(), chi.RouteCtxKey, rctx))
}

func decodeError(t *testing.T, rr *httptest.ResponseRecorder) handlers.ErrorBody {
	t.Helper()
	var resp handlers.ErrorResponse
	assert.NoError(t, json.NewDecoder(rr.Body).Decode(&resp))
	return resp.Error
}

func TestAuthHandler_Success(t *testing.T) {
	handler := handlers.AuthHandler(testLogger, &fakeAuthService{token: "test-token"})

	req := httptest.NewRequest(http.MethodPost, "/api/auth", bytes.NewBufferString(`{"username":"buyer","password":"password123"}`))
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)

	assert.Equal(t, http.StatusOK, rr.Code)
	var resp handlers.AuthResponse
	assert.NoError(t, json.NewDecoder(rr.Body).Decode(&resp))
	assert.Equal(t, "test-token", resp.Token)
}

func TestAuthHandler_InvalidJSON(t *testing.T) {
	handler := handlers.AuthHandler(testLogger, &fakeAuthService{})

	req := httptest.NewRequest(http.MethodPost, "/api/auth", bytes.NewBufferString(`{"username": "buyer", "password":`))
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)

	assert.Equal(t, http.StatusBadRequest, rr.Code)
	assert.Equal(t, apperr.CodeMissingParams, decodeError(t, rr).Code)
}

func TestAuthHandler_ValidationError(t *testing.T) {
	handler := handlers.AuthHandler(testLogger, &fakeAuthService{})

	req := httptest.NewRequest(http.MethodPost, "/api/auth", bytes.NewBufferString(`{"username":"buyer","password":"short"}`))
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)

	assert.Equal(t, http.StatusBadRequest, rr.Code)
}

func TestAuthHandler_InvalidCredentials(t *testing.T) {
	handler := handlers.AuthHandler(testLogger, &fakeAuthService{err: apperr.Unauthorized("invalid credentials")})

	req := httptest.NewRequest(http.MethodPost, "/api/auth", bytes.NewBufferString(`{"username":"buyer","password":"password123"}`))
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)

	assert.Equal(t, http.StatusUnauthorized, rr.Code)
	body := decodeError(t, rr)
	assert.Equal(t, apperr.KindUnauthorized, body.Kind)
	assert.Equal(t, apperr.CodeInvalidCredentials, body.Code)
}

func TestDeviceHandler(t *testing.T) {
	svc := &fakeAuthService{}
	handler := handlers.DeviceHandler(testLogger, svc)

	req := httptest.NewRequest(http.MethodPut, "/api/devices", bytes.NewBufferString(`{"push_token":"fcm-token"}`))
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, withUser(req, 1))

	assert.Equal(t, http.StatusNoContent, rr.Code)
	assert.Equal(t, "fcm-token", svc.pushToken)
}

func TestHandlers_Unauthorized(t *testing.T) {
	handler := handlers.ListCartsHandler(testLogger, &fakeCartService{})

	req := httptest.NewRequest(http.MethodGet, "/api/carts", nil)
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)

	assert.Equal(t, http.StatusUnauthorized, rr.Code)
}

func TestUpsertCartItemHandler(t *testing.T) {
	svc := &fakeCartService{item: &models.CartItem{ID: 5, ProductID: 10, Quantity: 2, UnitPrice: 100}}
	handler := handlers.UpsertCartItemHandler(testLogger, svc)

	req := httptest.NewRequest(http.MethodPost, "/api/cart-items", bytes.NewBufferString(`{"product_id":10,"quantity":2}`))
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, withUser(req, 7))

	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, int64(7), svc.gotBuyer)
	var item models.CartItem
	assert.NoError(t, json.NewDecoder(rr.Body).Decode(&item))
	assert.Equal(t, int64(5), item.ID)
}

func TestUpsertCartItemHandler_Removed(t *testing.T) {
	handler := handlers.UpsertCartItemHandler(testLogger, &fakeCartService{})

	req := httptest.NewRequest(http.MethodPost, "/api/cart-items", bytes.NewBufferString(`{"product_id":10,"quantity":0}`))
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, withUser(req, 7))

	assert.Equal(t, http.StatusNoContent, rr.Code)
}

func TestUpsertCartItemHandler_MissingProduct(t *testing.T) {
	handler := handlers.UpsertCartItemHandler(testLogger, &fakeCartService{})

	req := httptest.NewRequest(http.MethodPost, "/api/cart-items", bytes.NewBufferString(`{"quantity":1}`))
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, withUser(req, 7))

	assert.Equal(t, http.StatusBadRequest, rr.Code)
}

func TestUpsertCartItemHandler_DeadlinePassed(t *testing.T) {
	svc := &fakeCartService{err: apperr.Validation(apperr.CodeDeadlinePassed, "order deadline for this product has passed")}
	handler := handlers.UpsertCartItemHandler(testLogger, svc)

	req := httptest.NewRequest(http.MethodPost, "/api/cart-items", bytes.NewBufferString(`{"product_id":10,"quantity":1}`))
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, withUser(req, 7))

	assert.Equal(t, http.StatusBadRequest, rr.Code)
	assert.Equal(t, apperr.CodeDeadlinePassed, decodeError(t, rr).Code)
}

func TestDeleteCartItemHandler(t *testing.T) {
	svc := &fakeCartService{}
	handler := handlers.DeleteCartItemHandler(testLogger, svc)

	req := httptest.NewRequest(http.MethodDelete, "/api/cart-items/42", nil)
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, withUser(withID(req, "42"), 7))

	assert.Equal(t, http.StatusNoContent, rr.Code)
	assert.Equal(t, int64(42), svc.gotDelete)
}

func TestDeleteCartItemHandler_BadID(t *testing.T) {
	handler := handlers.DeleteCartItemHandler(testLogger, &fakeCartService{})

	req := httptest.NewRequest(http.MethodDelete, "/api/cart-items/abc", nil)
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, withUser(withID(req, "abc"), 7))

	assert.Equal(t, http.StatusBadRequest, rr.Code)
}

func TestDeleteCartItemHandler_Forbidden(t *testing.T) {
	handler := handlers.DeleteCartItemHandler(testLogger, &fakeCartService{err: apperr.Permission("cart item belongs to another user")})

	req := httptest.NewRequest(http.MethodDelete, "/api/cart-items/42", nil)
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, withUser(withID(req, "42"), 7))

	assert.Equal(t, http.StatusForbidden, rr.Code)
}

func TestCheckoutHandler_Created(t *testing.T) {
	svc := &fakeCheckoutService{res: &service.CheckoutResult{OrdersCreated: 1, ItemsCreated: 2, Orders: []*models.Order{{ID: 1}}}}
	handler := handlers.CheckoutHandler(testLogger, svc)

	req := httptest.NewRequest(http.MethodPost, "/api/orders/bulk", bytes.NewBufferString(`{"seller_ids":[2],"cart_ids":[9]}`))
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, withUser(req, 1))

	assert.Equal(t, http.StatusCreated, rr.Code)
	var res service.CheckoutResult
	assert.NoError(t, json.NewDecoder(rr.Body).Decode(&res))
	assert.Equal(t, 1, res.OrdersCreated)
	assert.Equal(t, 2, res.ItemsCreated)
}

func TestCheckoutHandler_Conflict(t *testing.T) {
	svc := &fakeCheckoutService{err: apperr.Conflict(apperr.CodeCartAlreadyOrdered, "carts already ordered: [9]")}
	handler := handlers.CheckoutHandler(testLogger, svc)

	req := httptest.NewRequest(http.MethodPost, "/api/orders/bulk", bytes.NewBufferString(`{"seller_ids":[2],"cart_ids":[9]}`))
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, withUser(req, 1))

	assert.Equal(t, http.StatusConflict, rr.Code)
	body := decodeError(t, rr)
	assert.Equal(t, apperr.KindConflict, body.Kind)
	assert.Equal(t, apperr.CodeCartAlreadyOrdered, body.Code)
}

func TestCheckoutHandler_InternalErrorHidden(t *testing.T) {
	svc := &fakeCheckoutService{err: errors.New("pq: connection refused")}
	handler := handlers.CheckoutHandler(testLogger, svc)

	req := httptest.NewRequest(http.MethodPost, "/api/orders/bulk", bytes.NewBufferString(`{"seller_ids":[2],"cart_ids":[9]}`))
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, withUser(req, 1))

	assert.Equal(t, http.StatusInternalServerError, rr.Code)
	body := decodeError(t, rr)
	assert.Equal(t, apperr.CodeInternal, body.Code)
	assert.Equal(t, "internal server error", body.Message)
}

func TestListOrdersHandler_Role(t *testing.T) {
	svc := &fakeOrderService{}
	handler := handlers.ListOrdersHandler(testLogger, svc)

	req := httptest.NewRequest(http.MethodGet, "/api/orders?role=seller", nil)
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, withUser(req, 1))
	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, "seller", svc.gotRole)

	req = httptest.NewRequest(http.MethodGet, "/api/orders", nil)
	rr = httptest.NewRecorder()
	handler.ServeHTTP(rr, withUser(req, 1))
	assert.Equal(t, "buyer", svc.gotRole)
}

func TestTransitionHandler(t *testing.T) {
	svc := &fakeOrderService{item: &models.OrderItem{ID: 3, Status: models.StatusConfirmed}}
	handler := handlers.TransitionHandler(testLogger, svc)

	req := httptest.NewRequest(http.MethodPatch, "/api/order-items/3", bytes.NewBufferString(`{"status":"confirmed","shipping_cost":150}`))
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, withUser(withID(req, "3"), 2))

	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, int64(3), svc.gotIn.ItemID)
	assert.Equal(t, int64(2), svc.gotIn.ActorID)
	assert.Equal(t, "confirmed", svc.gotIn.Status)
	if assert.NotNil(t, svc.gotIn.ShippingCost) {
		assert.Equal(t, int64(150), *svc.gotIn.ShippingCost)
	}
}

func TestTransitionHandler_IllegalTransition(t *testing.T) {
	svc := &fakeOrderService{err: apperr.IllegalTransition("pending", "done")}
	handler := handlers.TransitionHandler(testLogger, svc)

	req := httptest.NewRequest(http.MethodPatch, "/api/order-items/3", bytes.NewBufferString(`{"status":"done"}`))
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, withUser(withID(req, "3"), 2))

	assert.Equal(t, http.StatusConflict, rr.Code)
	body := decodeError(t, rr)
	assert.Equal(t, apperr.KindIllegalTransition, body.Kind)
	assert.Equal(t, "pending", body.CurrentStatus)
}

func TestTransitionHandler_MissingStatus(t *testing.T) {
	handler := handlers.TransitionHandler(testLogger, &fakeOrderService{})

	req := httptest.NewRequest(http.MethodPatch, "/api/order-items/3", bytes.NewBufferString(`{}`))
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, withUser(withID(req, "3"), 2))

	assert.Equal(t, http.StatusBadRequest, rr.Code)
}

func TestListNotificationsHandler(t *testing.T) {
	svc := &fakeNotificationService{}
	handler := handlers.ListNotificationsHandler(testLogger, svc)

	req := httptest.NewRequest(http.MethodGet, "/api/notifications?limit=20", nil)
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, withUser(req, 1))
	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, 20, svc.gotLimit)
	assert.JSONEq(t, `[]`, rr.Body.String())

	req = httptest.NewRequest(http.MethodGet, "/api/notifications?limit=many", nil)
	rr = httptest.NewRecorder()
	handler.ServeHTTP(rr, withUser(req, 1))
	assert.Equal(t, http.StatusBadRequest, rr.Code)
}

func TestListChatsHandler(t *testing.T) {
	svc := &fakeChatService{}
	handler := handlers.ListChatsHandler(testLogger, svc)

	req := httptest.NewRequest(http.MethodGet, "/api/chats", nil)
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, withUser(req, 1))

	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, int64(1), svc.gotActor)
	var chats []models.Chat
	assert.NoError(t, json.NewDecoder(rr.Body).Decode(&chats))
	if assert.Len(t, chats, 1) {
		assert.Equal(t, "hi", chats[0].LastMessage)
	}
}

func TestListChatMessagesHandler(t *testing.T) {
	svc := &fakeChatService{}
	handler := handlers.ListChatMessagesHandler(testLogger, svc)

	req := httptest.NewRequest(http.MethodGet, "/api/chats/4/messages?limit=20", nil)
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, withUser(withID(req, "4"), 1))

	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, int64(4), svc.gotChat)
	assert.Equal(t, 20, svc.gotLimit)
	assert.JSONEq(t, `[]`, rr.Body.String())

	req = httptest.NewRequest(http.MethodGet, "/api/chats/4/messages?limit=all", nil)
	rr = httptest.NewRecorder()
	handler.ServeHTTP(rr, withUser(withID(req, "4"), 1))
	assert.Equal(t, http.StatusBadRequest, rr.Code)
}

func TestListChatMessagesHandler_NotAParticipant(t *testing.T) {
	handler := handlers.ListChatMessagesHandler(testLogger, &fakeChatService{err: apperr.Permission("you are not a participant of this chat")})

	req := httptest.NewRequest(http.MethodGet, "/api/chats/4/messages", nil)
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, withUser(withID(req, "4"), 3))

	assert.Equal(t, http.StatusForbidden, rr.Code)
	assert.Equal(t, apperr.KindPermission, decodeError(t, rr).Kind)
}

func TestListChatMessagesHandler_NotFound(t *testing.T) {
	handler := handlers.ListChatMessagesHandler(testLogger, &fakeChatService{err: apperr.NotFound("chat", errors.New("chat not found"))})

	req := httptest.NewRequest(http.MethodGet, "/api/chats/404/messages", nil)
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, withUser(withID(req, "404"), 1))

	assert.Equal(t, http.StatusNotFound, rr.Code)
}

func TestCreatePaymentBankHandler(t *testing.T) {
	svc := &fakePaymentBankService{}
	handler := handlers.CreatePaymentBankHandler(testLogger, svc)

	body := `{"bank_name":"Mandiri","account_name":"Seller","account_number":"123-456"}`
	req := httptest.NewRequest(http.MethodPost, "/api/payment-banks", bytes.NewBufferString(body))
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, withUser(req, 2))

	assert.Equal(t, http.StatusCreated, rr.Code)
	assert.Equal(t, int64(2), svc.gotIn.UserID)
	assert.Equal(t, "123-456", svc.gotIn.AccountNumber)

	var bank models.PaymentBank
	assert.NoError(t, json.NewDecoder(rr.Body).Decode(&bank))
	assert.Equal(t, int64(9), bank.ID)
	assert.True(t, bank.IsActive)
}

func TestCreatePaymentBankHandler_MissingFields(t *testing.T) {
	svc := &fakePaymentBankService{}
	handler := handlers.CreatePaymentBankHandler(testLogger, svc)

	req := httptest.NewRequest(http.MethodPost, "/api/payment-banks", bytes.NewBufferString(`{"bank_name":"Mandiri"}`))
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, withUser(req, 2))

	assert.Equal(t, http.StatusBadRequest, rr.Code)
	assert.Equal(t, apperr.CodeMissingParams, decodeError(t, rr).Code)
	// до сервиса запрос не дошёл
	assert.Zero(t, svc.gotIn.UserID)
}

func TestListPaymentBanksHandler(t *testing.T) {
	svc := &fakePaymentBankService{}
	handler := handlers.ListPaymentBanksHandler(testLogger, svc)

	req := httptest.NewRequest(http.MethodGet, "/api/payment-banks", nil)
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, withUser(req, 2))
	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, int64(2), svc.gotUser)

	// покупатель смотрит реквизиты продавца
	req = httptest.NewRequest(http.MethodGet, "/api/payment-banks?seller_id=5", nil)
	rr = httptest.NewRecorder()
	handler.ServeHTTP(rr, withUser(req, 1))
	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, int64(5), svc.gotUser)

	req = httptest.NewRequest(http.MethodGet, "/api/payment-banks?seller_id=-1", nil)
	rr = httptest.NewRecorder()
	handler.ServeHTTP(rr, withUser(req, 1))
	assert.Equal(t, http.StatusBadRequest, rr.Code)
}
