package models

import (
	"errors"
	"time"

	"github.com/shopspring/decimal"
)

type OrderStatus string

const (
	OrderStatusPendingPayment OrderStatus = "pending_payment"
	OrderStatusPaid           OrderStatus = "paid"
	OrderStatusShipping       OrderStatus = "shipping"
	OrderStatusDelivered      OrderStatus = "delivered"
	OrderStatusCancelled      OrderStatus = "cancelled"
)

var (
	ErrOrderNotFound        = errors.New("order not found")
	ErrTransitionNotAllowed = errors.New("state transition not allowed")
	ErrRuleNotFound         = errors.New("shipping rule not found")
	ErrEmptyCart            = errors.New("cart has no items")
	ErrUnknownOption        = errors.New("chosen shipping option not in quote")
)

var allowedTransitions = map[OrderStatus][]OrderStatus{
	OrderStatusPendingPayment: {OrderStatusPaid, OrderStatusCancelled},
	OrderStatusPaid:           {OrderStatusShipping, OrderStatusCancelled},
	OrderStatusShipping:       {OrderStatusDelivered},
}

type OrderItem struct {
	SKU       string          `json:"sku"`
	Name      string          `json:"name"`
	Quantity  int             `json:"quantity"`
	UnitPrice decimal.Decimal `json:"unit_price"`
}

type Order struct {
	ID                 string          `json:"id"`
	CustomerName       string          `json:"customer_name"`
	CustomerEmail      string          `json:"customer_email"`
	DestinationState   string          `json:"destination_state"`
	DestinationZip     string          `json:"destination_zip"`
	Subtotal           decimal.Decimal `json:"subtotal"`
	ShippingPrice      decimal.Decimal `json:"shipping_price"`
	ShippingMethodID   int             `json:"shipping_method_id"`
	ShippingMethodName string          `json:"shipping_method_name"`
	Total              decimal.Decimal `json:"total"`
	Status             OrderStatus     `json:"status"`
	PaymentID          string          `json:"payment_id,omitempty"`
	Items              []OrderItem     `json:"items"`
	ERPSyncedAt        time.Time       `json:"erp_synced_at,omitempty"`
	CreatedAt          time.Time       `json:"created_at"`
	UpdatedAt          time.Time       `json:"updated_at"`
}

// Transition moves the order to newStatus if the state machine allows it.
func (o *Order) Transition(newStatus OrderStatus) error {
	for _, next := range allowedTransitions[o.Status] {
		if next == newStatus {
			o.Status = newStatus
			o.UpdatedAt = time.Now().UTC()
			return nil
		}
	}
	return ErrTransitionNotAllowed
}

func (o *Order) IsFinal() bool {
	return o.Status == OrderStatusDelivered || o.Status == OrderStatusCancelled
}
