package checkout_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/MichaelCampos91/pedidos-sub000/internal/checkout"
	"github.com/MichaelCampos91/pedidos-sub000/internal/gateway"
	"github.com/MichaelCampos91/pedidos-sub000/internal/models"
	"github.com/MichaelCampos91/pedidos-sub000/internal/quote"
	"github.com/MichaelCampos91/pedidos-sub000/internal/repository"
)

type fakeOrderStore struct {
	orders   map[string]*models.Order
	statuses []models.OrderStatus
}

func newFakeOrderStore() *fakeOrderStore {
	return &fakeOrderStore{orders: map[string]*models.Order{}}
}

func (f *fakeOrderStore) Create(_ context.Context, o *models.Order) error {
	cp := *o
	f.orders[o.ID] = &cp
	return nil
}

func (f *fakeOrderStore) GetByID(_ context.Context, id string) (*models.Order, error) {
	o, ok := f.orders[id]
	if !ok {
		return nil, nil
	}
	cp := *o
	return &cp, nil
}

func (f *fakeOrderStore) SetStatus(_ context.Context, id string, status models.OrderStatus, paymentID string) error {
	o, ok := f.orders[id]
	if !ok {
		return models.ErrOrderNotFound
	}
	o.Status = status
	if paymentID != "" {
		o.PaymentID = paymentID
	}
	f.statuses = append(f.statuses, status)
	return nil
}

type fakeQuoter struct {
	resp *quote.Response
	err  error
	last quote.Request
}

func (f *fakeQuoter) Quote(_ context.Context, req quote.Request) (*quote.Response, error) {
	f.last = req
	return f.resp, f.err
}

type fakeCharger struct {
	resp *gateway.ChargeResponse
	err  error
	last gateway.ChargeRequest
}

func (f *fakeCharger) CreateCharge(_ context.Context, req gateway.ChargeRequest) (*gateway.ChargeResponse, error) {
	f.last = req
	return f.resp, f.err
}

type fakeTasks struct {
	kinds    []repository.TaskKind
	payloads [][]byte
}

func (f *fakeTasks) CreateTask(_ context.Context, kind repository.TaskKind, payload []byte) error {
	f.kinds = append(f.kinds, kind)
	f.payloads = append(f.payloads, payload)
	return nil
}

func (f *fakeTasks) GetPendingTasks(context.Context, int, int) ([]*repository.Task, error) {
	return nil, nil
}
func (f *fakeTasks) MarkTaskProcessing(context.Context, int) error { return nil }
func (f *fakeTasks) DeleteTask(context.Context, int) error         { return nil }
func (f *fakeTasks) UpdateTaskFailure(context.Context, int, int, repository.TaskStatus, time.Time) error {
	return nil
}

func quotedOptions() *quote.Response {
	return &quote.Response{
		Options: []models.ShippingOption{
			{ID: 1, Name: "PAC", Price: "22.50", DeliveryTime: 8},
			{ID: 2, Name: "SEDEX", Price: "41.90", DeliveryTime: 3},
		},
	}
}

func checkoutRequest() checkout.Request {
	return checkout.Request{
		CustomerName:     "Maria",
		CustomerEmail:    "maria@example.com",
		DestinationState: "SP",
		DestinationZip:   "01310-100",
		Items: []models.OrderItem{
			{SKU: "MUG-01", Name: "Mug", Quantity: 2, UnitPrice: decimal.RequireFromString("30.00")},
			{SKU: "TEE-02", Name: "Shirt", Quantity: 1, UnitPrice: decimal.RequireFromString("40.00")},
		},
		WeightKg:         decimal.RequireFromString("1.2"),
		ShippingMethodID: 1,
		CardToken:        "tok_abc",
	}
}

func newCheckoutService(orders *fakeOrderStore, quoter *fakeQuoter, charger *fakeCharger, tasks *fakeTasks) *checkout.Service {
	return checkout.NewService(orders, quoter, charger, tasks, nil)
}

func TestCheckoutEmptyCart(t *testing.T) {
	svc := newCheckoutService(newFakeOrderStore(), &fakeQuoter{}, &fakeCharger{}, &fakeTasks{})

	req := checkoutRequest()
	req.Items = nil
	_, err := svc.Checkout(context.Background(), req)
	assert.ErrorIs(t, err, models.ErrEmptyCart)
}

func TestCheckoutRejectsNonPositiveQuantity(t *testing.T) {
	svc := newCheckoutService(newFakeOrderStore(), &fakeQuoter{}, &fakeCharger{}, &fakeTasks{})

	req := checkoutRequest()
	req.Items[0].Quantity = 0
	_, err := svc.Checkout(context.Background(), req)
	assert.Error(t, err)
}

func TestCheckoutUnknownShippingOption(t *testing.T) {
	quoter := &fakeQuoter{resp: quotedOptions()}
	svc := newCheckoutService(newFakeOrderStore(), quoter, &fakeCharger{}, &fakeTasks{})

	req := checkoutRequest()
	req.ShippingMethodID = 99
	_, err := svc.Checkout(context.Background(), req)
	assert.ErrorIs(t, err, models.ErrUnknownOption)
}

func TestCheckoutApprovedCharge(t *testing.T) {
	orders := newFakeOrderStore()
	quoter := &fakeQuoter{resp: quotedOptions()}
	charger := &fakeCharger{resp: &gateway.ChargeResponse{PaymentID: "pay-1", Status: gateway.PaymentStatusApproved}}
	tasks := &fakeTasks{}
	svc := newCheckoutService(orders, quoter, charger, tasks)

	resp, err := svc.Checkout(context.Background(), checkoutRequest())
	require.NoError(t, err)

	// 2x30 + 1x40 priced server side, shipping from the quote
	assert.Equal(t, "100", resp.Order.Subtotal.String())
	assert.Equal(t, "22.5", resp.Order.ShippingPrice.String())
	assert.Equal(t, "122.5", resp.Order.Total.String())
	assert.Equal(t, "PAC", resp.Order.ShippingMethodName)
	assert.Equal(t, "100", quoter.last.OrderValue.String())
	assert.Equal(t, "122.5", charger.last.Amount.String())
	assert.Equal(t, "tok_abc", charger.last.CardToken)

	assert.Equal(t, models.OrderStatusPaid, resp.Order.Status)
	assert.Equal(t, "pay-1", resp.Order.PaymentID)

	// paid orders enqueue an ERP sync through the outbox
	require.Len(t, tasks.kinds, 1)
	assert.Equal(t, repository.TaskKindERPSync, tasks.kinds[0])
	assert.Contains(t, string(tasks.payloads[0]), resp.Order.ID)
}

func TestCheckoutRefusedChargeCancels(t *testing.T) {
	orders := newFakeOrderStore()
	charger := &fakeCharger{resp: &gateway.ChargeResponse{PaymentID: "pay-2", Status: gateway.PaymentStatusRefused}}
	tasks := &fakeTasks{}
	svc := newCheckoutService(orders, &fakeQuoter{resp: quotedOptions()}, charger, tasks)

	resp, err := svc.Checkout(context.Background(), checkoutRequest())
	require.NoError(t, err)
	assert.Equal(t, models.OrderStatusCancelled, resp.Order.Status)
	assert.Empty(t, tasks.kinds)
}

func TestCheckoutPendingChargeKeepsOrderPending(t *testing.T) {
	orders := newFakeOrderStore()
	charger := &fakeCharger{resp: &gateway.ChargeResponse{PaymentID: "pay-3", Status: gateway.PaymentStatusPending}}
	svc := newCheckoutService(orders, &fakeQuoter{resp: quotedOptions()}, charger, &fakeTasks{})

	resp, err := svc.Checkout(context.Background(), checkoutRequest())
	require.NoError(t, err)
	assert.Equal(t, models.OrderStatusPendingPayment, resp.Order.Status)
	assert.Equal(t, "pay-3", orders.orders[resp.Order.ID].PaymentID)
}

func TestCheckoutChargeFailureLeavesOrderPending(t *testing.T) {
	orders := newFakeOrderStore()
	charger := &fakeCharger{err: errors.New("gateway down")}
	svc := newCheckoutService(orders, &fakeQuoter{resp: quotedOptions()}, charger, &fakeTasks{})

	_, err := svc.Checkout(context.Background(), checkoutRequest())
	require.Error(t, err)

	// the order was persisted before the charge and stays pending
	require.Len(t, orders.orders, 1)
	for _, o := range orders.orders {
		assert.Equal(t, models.OrderStatusPendingPayment, o.Status)
	}
}

func TestWebhookApprovedMarksPaid(t *testing.T) {
	orders := newFakeOrderStore()
	orders.orders["o-1"] = &models.Order{ID: "o-1", Status: models.OrderStatusPendingPayment}
	tasks := &fakeTasks{}
	svc := newCheckoutService(orders, &fakeQuoter{}, &fakeCharger{}, tasks)

	err := svc.HandleWebhook(context.Background(), gateway.PaymentWebhookEvent{
		OrderID:   "o-1",
		PaymentID: "pay-9",
		Status:    gateway.PaymentStatusApproved,
	})
	require.NoError(t, err)
	assert.Equal(t, models.OrderStatusPaid, orders.orders["o-1"].Status)
	assert.Equal(t, "pay-9", orders.orders["o-1"].PaymentID)
	require.Len(t, tasks.kinds, 1)
	assert.Equal(t, repository.TaskKindERPSync, tasks.kinds[0])
}

func TestWebhookReplayIsIdempotent(t *testing.T) {
	orders := newFakeOrderStore()
	orders.orders["o-1"] = &models.Order{ID: "o-1", Status: models.OrderStatusPaid}
	tasks := &fakeTasks{}
	svc := newCheckoutService(orders, &fakeQuoter{}, &fakeCharger{}, tasks)

	err := svc.HandleWebhook(context.Background(), gateway.PaymentWebhookEvent{
		OrderID: "o-1",
		Status:  gateway.PaymentStatusApproved,
	})
	require.NoError(t, err)
	assert.Empty(t, tasks.kinds)
	assert.Empty(t, orders.statuses)
}

func TestWebhookRefundCancels(t *testing.T) {
	orders := newFakeOrderStore()
	orders.orders["o-1"] = &models.Order{ID: "o-1", Status: models.OrderStatusPaid}
	svc := newCheckoutService(orders, &fakeQuoter{}, &fakeCharger{}, &fakeTasks{})

	err := svc.HandleWebhook(context.Background(), gateway.PaymentWebhookEvent{
		OrderID: "o-1",
		Status:  gateway.PaymentStatusRefunded,
	})
	require.NoError(t, err)
	assert.Equal(t, models.OrderStatusCancelled, orders.orders["o-1"].Status)
}

func TestWebhookUnknownStatusIsAcknowledged(t *testing.T) {
	orders := newFakeOrderStore()
	orders.orders["o-1"] = &models.Order{ID: "o-1", Status: models.OrderStatusPendingPayment}
	svc := newCheckoutService(orders, &fakeQuoter{}, &fakeCharger{}, &fakeTasks{})

	err := svc.HandleWebhook(context.Background(), gateway.PaymentWebhookEvent{
		OrderID: "o-1",
		Status:  "chargeback_opened",
	})
	require.NoError(t, err)
	assert.Equal(t, models.OrderStatusPendingPayment, orders.orders["o-1"].Status)
}

func TestWebhookUnknownOrder(t *testing.T) {
	svc := newCheckoutService(newFakeOrderStore(), &fakeQuoter{}, &fakeCharger{}, &fakeTasks{})

	err := svc.HandleWebhook(context.Background(), gateway.PaymentWebhookEvent{
		OrderID: "ghost",
		Status:  gateway.PaymentStatusApproved,
	})
	assert.ErrorIs(t, err, models.ErrOrderNotFound)
}
