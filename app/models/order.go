package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// OrderStatus is the fulfillment state of an order.
type OrderStatus string

const (
	StatusPending    OrderStatus = "PENDING"
	StatusPaid       OrderStatus = "PAID"
	StatusProcessing OrderStatus = "PROCESSING"
	StatusShipped    OrderStatus = "SHIPPED"
	StatusDelivered  OrderStatus = "DELIVERED"
	StatusCancelled  OrderStatus = "CANCELLED"
)

// transitions lists the moves staff may make. PENDING → PAID is absent:
// only a verified payment makes an order PAID.
var transitions = map[OrderStatus][]OrderStatus{
	StatusPending:    {StatusCancelled},
	StatusPaid:       {StatusProcessing, StatusCancelled},
	StatusProcessing: {StatusShipped, StatusCancelled},
	StatusShipped:    {StatusDelivered, StatusCancelled},
}

// ParseOrderStatus validates a status name.
func ParseOrderStatus(s string) (OrderStatus, bool) {
	st := OrderStatus(s)
	switch st {
	case StatusPending, StatusPaid, StatusProcessing, StatusShipped, StatusDelivered, StatusCancelled:
		return st, true
	}
	return "", false
}

// Terminal reports whether no further transition is possible.
func (s OrderStatus) Terminal() bool {
	return s == StatusDelivered || s == StatusCancelled
}

// CanTransitionTo reports whether staff may move an order from s to next.
func (s OrderStatus) CanTransitionTo(next OrderStatus) bool {
	for _, allowed := range transitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

// Shipping is the delivery snapshot taken at checkout.
type Shipping struct {
	Name       string `gorm:"size:255" json:"name"`
	Email      string `gorm:"size:255" json:"email"`
	Phone      string `gorm:"size:32" json:"phone"`
	Address    string `gorm:"type:text" json:"address"`
	City       string `gorm:"size:120" json:"city"`
	State      string `gorm:"size:120" json:"state"`
	PostalCode string `gorm:"size:20" json:"postal_code"`
}

// Order is created PENDING at checkout and becomes PAID once the gateway
// callback is verified. Total equals the sum of its item subtotals.
type Order struct {
	Base
	UserID           string          `gorm:"type:varchar(36);not null;index;uniqueIndex:idx_orders_user_idempotency,priority:1" json:"user_id"`
	IdempotencyKey   *string         `gorm:"size:128;uniqueIndex:idx_orders_user_idempotency,priority:2" json:"-"`
	Total            decimal.Decimal `gorm:"type:decimal(12,2);not null" json:"total"`
	Currency         string          `gorm:"size:3;not null" json:"currency"`
	GatewayOrderID   string          `gorm:"size:64;not null;uniqueIndex" json:"gateway_order_id"`
	GatewayPaymentID *string         `gorm:"size:64;uniqueIndex" json:"gateway_payment_id,omitempty"`
	Status           OrderStatus     `gorm:"size:20;not null;default:PENDING;index" json:"status"`
	PaidAt           *time.Time      `json:"paid_at,omitempty"`
	Shipping         Shipping        `gorm:"embedded;embeddedPrefix:shipping_" json:"shipping"`
	Items            []OrderItem     `gorm:"foreignKey:OrderID;constraint:OnDelete:CASCADE" json:"items"`
}

// OwnerID returns the id of the customer who placed the order.
func (o *Order) OwnerID() string { return o.UserID }

// OrderItem snapshots product name and unit price at checkout time.
type OrderItem struct {
	Base
	OrderID     string          `gorm:"type:varchar(36);not null;index" json:"order_id"`
	ProductID   string          `gorm:"type:varchar(36);not null;index" json:"product_id"`
	ProductName string          `gorm:"size:255;not null" json:"product_name"`
	Quantity    int             `gorm:"not null" json:"quantity"`
	UnitPrice   decimal.Decimal `gorm:"type:decimal(12,2);not null" json:"unit_price"`
}

// Subtotal is UnitPrice × Quantity.
func (i OrderItem) Subtotal() decimal.Decimal {
	return i.UnitPrice.Mul(decimal.NewFromInt(int64(i.Quantity)))
}

// SumItems totals item subtotals exactly.
func SumItems(items []OrderItem) decimal.Decimal {
	total := decimal.Zero
	for _, it := range items {
		total = total.Add(it.Subtotal())
	}
	return total
}
