// Package checkout creates orders from validated carts, charges the payment
// gateway and reacts to its webhook notifications.
package checkout

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/MichaelCampos91/pedidos-sub000/internal/audit"
	"github.com/MichaelCampos91/pedidos-sub000/internal/gateway"
	"github.com/MichaelCampos91/pedidos-sub000/internal/models"
	"github.com/MichaelCampos91/pedidos-sub000/internal/quote"
	"github.com/MichaelCampos91/pedidos-sub000/internal/repository"
)

type OrderStore interface {
	Create(ctx context.Context, o *models.Order) error
	GetByID(ctx context.Context, id string) (*models.Order, error)
	SetStatus(ctx context.Context, id string, status models.OrderStatus, paymentID string) error
}

type Quoter interface {
	Quote(ctx context.Context, req quote.Request) (*quote.Response, error)
}

// Auditor matches audit.WorkerPool.Log.
type Auditor interface {
	Log(record audit.Entry)
}

type Request struct {
	CustomerName     string             `json:"customer_name"`
	CustomerEmail    string             `json:"customer_email"`
	DestinationState string             `json:"destination_state"`
	DestinationZip   string             `json:"destination_zip"`
	Items            []models.OrderItem `json:"items"`
	WeightKg         decimal.Decimal    `json:"weight_kg"`
	ShippingMethodID int                `json:"shipping_method_id"`
	CardToken        string             `json:"card_token"`
}

type Response struct {
	Order         *models.Order `json:"order"`
	PaymentStatus string        `json:"payment_status"`
}

type Service struct {
	orders  OrderStore
	quoter  Quoter
	charger gateway.Charger
	tasks   repository.TaskRepository
	auditor Auditor
}

func NewService(orders OrderStore, quoter Quoter, charger gateway.Charger, tasks repository.TaskRepository, auditor Auditor) *Service {
	return &Service{orders: orders, quoter: quoter, charger: charger, tasks: tasks, auditor: auditor}
}

// Checkout prices the chosen shipping option server side, persists the order
// and charges the gateway. The client-sent prices are never trusted.
func (s *Service) Checkout(ctx context.Context, req Request) (*Response, error) {
	if len(req.Items) == 0 {
		return nil, models.ErrEmptyCart
	}
	subtotal := decimal.Zero
	for _, item := range req.Items {
		if item.Quantity <= 0 {
			return nil, fmt.Errorf("item %s: quantity must be positive", item.SKU)
		}
		subtotal = subtotal.Add(item.UnitPrice.Mul(decimal.NewFromInt(int64(item.Quantity))))
	}

	quoted, err := s.quoter.Quote(ctx, quote.Request{
		DestinationZip:   req.DestinationZip,
		DestinationState: req.DestinationState,
		OrderValue:       subtotal,
		WeightKg:         req.WeightKg,
	})
	if err != nil {
		return nil, fmt.Errorf("price shipping: %w", err)
	}

	var chosen *models.ShippingOption
	for i := range quoted.Options {
		if quoted.Options[i].ID == req.ShippingMethodID {
			chosen = &quoted.Options[i]
			break
		}
	}
	if chosen == nil {
		return nil, models.ErrUnknownOption
	}
	shippingPrice, err := decimal.NewFromString(chosen.Price)
	if err != nil {
		return nil, fmt.Errorf("parse shipping price: %w", err)
	}

	now := time.Now().UTC()
	order := &models.Order{
		ID:                 uuid.NewString(),
		CustomerName:       req.CustomerName,
		CustomerEmail:      req.CustomerEmail,
		DestinationState:   req.DestinationState,
		DestinationZip:     req.DestinationZip,
		Subtotal:           subtotal,
		ShippingPrice:      shippingPrice,
		ShippingMethodID:   chosen.ID,
		ShippingMethodName: chosen.Name,
		Total:              subtotal.Add(shippingPrice),
		Status:             models.OrderStatusPendingPayment,
		Items:              req.Items,
		CreatedAt:          now,
		UpdatedAt:          now,
	}
	if err := s.orders.Create(ctx, order); err != nil {
		return nil, err
	}
	s.audit(order.ID, "", string(order.Status), "/checkout", "order created")

	charge, err := s.charger.CreateCharge(ctx, gateway.ChargeRequest{
		OrderID:       order.ID,
		Amount:        order.Total,
		CustomerName:  order.CustomerName,
		CustomerEmail: order.CustomerEmail,
		CardToken:     req.CardToken,
	})
	if err != nil {
		// the order stays pending_payment; the gateway webhook or a retry
		// will settle it
		return nil, fmt.Errorf("create charge: %w", err)
	}
	order.PaymentID = charge.PaymentID

	switch charge.Status {
	case gateway.PaymentStatusApproved:
		if err := s.markPaid(ctx, order); err != nil {
			return nil, err
		}
	case gateway.PaymentStatusRefused:
		if err := s.transition(ctx, order, models.OrderStatusCancelled, "/checkout", "payment refused"); err != nil {
			return nil, err
		}
	default:
		if err := s.orders.SetStatus(ctx, order.ID, order.Status, order.PaymentID); err != nil {
			return nil, err
		}
	}

	return &Response{Order: order, PaymentStatus: charge.Status}, nil
}

// HandleWebhook applies a gateway payment event to the order state machine.
// Replayed events for a state the order already reached are acknowledged
// without changes.
func (s *Service) HandleWebhook(ctx context.Context, event gateway.PaymentWebhookEvent) error {
	order, err := s.orders.GetByID(ctx, event.OrderID)
	if err != nil {
		return err
	}
	if order == nil {
		return models.ErrOrderNotFound
	}
	order.PaymentID = event.PaymentID

	var target models.OrderStatus
	switch event.Status {
	case gateway.PaymentStatusApproved:
		target = models.OrderStatusPaid
	case gateway.PaymentStatusRefused, gateway.PaymentStatusRefunded:
		target = models.OrderStatusCancelled
	default:
		// unknown statuses are acknowledged so the gateway stops retrying
		return nil
	}

	if order.Status == target {
		return nil
	}
	if target == models.OrderStatusPaid {
		return s.markPaid(ctx, order)
	}
	return s.transition(ctx, order, target, "/webhooks/payment", "payment "+event.Status)
}

func (s *Service) markPaid(ctx context.Context, order *models.Order) error {
	if err := s.transition(ctx, order, models.OrderStatusPaid, "/webhooks/payment", "payment approved"); err != nil {
		return err
	}
	// paid orders go to the ERP through the outbox
	payload, err := json.Marshal(struct {
		OrderID string `json:"order_id"`
	}{OrderID: order.ID})
	if err != nil {
		return fmt.Errorf("encode erp task: %w", err)
	}
	if err := s.tasks.CreateTask(ctx, repository.TaskKindERPSync, payload); err != nil {
		return err
	}
	return nil
}

func (s *Service) transition(ctx context.Context, order *models.Order, target models.OrderStatus, endpoint, message string) error {
	oldState := order.Status
	if err := order.Transition(target); err != nil {
		return err
	}
	if err := s.orders.SetStatus(ctx, order.ID, order.Status, order.PaymentID); err != nil {
		return err
	}
	s.audit(order.ID, string(oldState), string(order.Status), endpoint, message)
	return nil
}

func (s *Service) audit(orderID, oldState, newState, endpoint, message string) {
	if s.auditor == nil {
		return
	}
	s.auditor.Log(audit.Entry{
		Timestamp: time.Now().UTC(),
		OrderID:   orderID,
		OldState:  oldState,
		NewState:  newState,
		Endpoint:  endpoint,
		Message:   message,
	})
}
