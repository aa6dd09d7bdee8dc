package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// OrderStatus is the lifecycle state of a ledger entry.
type OrderStatus string

const (
	OrderStatusCreated OrderStatus = "created"
	OrderStatusPaid    OrderStatus = "paid"
	OrderStatusFailed  OrderStatus = "failed"
)

// Valid reports whether s is one of the known statuses.
func (s OrderStatus) Valid() bool {
	switch s {
	case OrderStatusCreated, OrderStatusPaid, OrderStatusFailed:
		return true
	}
	return false
}

// OrderRecord is one entry of a user's order history, keyed by the payment
// provider's order id. Amount is in minor currency units.
type OrderRecord struct {
	ID        uint        `json:"-" gorm:"primaryKey;autoIncrement"`
	UserID    string      `json:"-" gorm:"type:varchar(36);not null;uniqueIndex:idx_user_order"`
	OrderID   string      `json:"orderId" gorm:"type:varchar(64);not null;uniqueIndex:idx_user_order"`
	Amount    int64       `json:"amount"`
	Currency  string      `json:"currency" gorm:"type:varchar(3)"`
	Status    OrderStatus `json:"status" gorm:"type:varchar(16)"`
	CreatedAt time.Time   `json:"createdAt"`
	UpdatedAt time.Time   `json:"-"`
}

// SaveOrderRequest is the body of POST /api/orders/save.
type SaveOrderRequest struct {
	OrderID  string      `json:"orderId" validate:"required,max=64"`
	Amount   int64       `json:"amount" validate:"gt=0"`
	Currency string      `json:"currency" validate:"required,len=3"`
	Status   OrderStatus `json:"status" validate:"required,oneof=created paid failed"`
}

// CreateOrderRequest is the body of POST /api/orders/create. Amount is in
// major currency units.
type CreateOrderRequest struct {
	Amount decimal.Decimal `json:"amount" validate:"gt=0"`
}

// PaymentOrder is a provider-side order minted for a checkout, together with
// the public key the payment widget needs.
type PaymentOrder struct {
	ID       string `json:"id"`
	Amount   int64  `json:"amount"`
	Currency string `json:"currency"`
	Key      string `json:"key"`
}

// OrderEvent is published to the broker whenever the ledger records an order.
type OrderEvent struct {
	Type       string      `json:"type"`
	UserID     string      `json:"userId"`
	OrderID    string      `json:"orderId"`
	Amount     int64       `json:"amount"`
	Currency   string      `json:"currency"`
	Status     OrderStatus `json:"status"`
	OccurredAt time.Time   `json:"occurredAt"`
}

// OrderEventRecorded is the type of events emitted by the ledger.
const OrderEventRecorded = "order.recorded"
