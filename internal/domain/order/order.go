package order

import (
	"context"
	"time"

	"github.com/shopspring/decimal"

	"github.com/xenking/storefront/internal/domain/apperr"
)

// Sentinel errors for order validation and lookup.
var (
	ErrNotFound          = apperr.New(apperr.KindNotFound, "order not found")
	ErrEmptyItems        = apperr.Validation("items required")
	ErrInvalidQuantity   = apperr.Validation("quantity must be at least 1")
	ErrInvalidPrice      = apperr.Validation("unit price must not be negative")
	ErrInvalidCharge     = apperr.Validation("shipping and tax must not be negative")
	ErrInvalidStatus     = apperr.Validation("unknown order status")
	ErrInvalidTransition = apperr.Validation("order status transition not allowed")
)

// Status is the fulfilment state of an order.
type Status string

const (
	StatusPending   Status = "pending"
	StatusConfirmed Status = "confirmed"
	StatusPaid      Status = "paid"
	StatusShipped   Status = "shipped"
	StatusDelivered Status = "delivered"
	StatusCancelled Status = "cancelled"
)

// transitions lists the allowed next states. Terminal states have no entry.
var transitions = map[Status][]Status{
	StatusPending:   {StatusConfirmed, StatusPaid, StatusCancelled},
	StatusConfirmed: {StatusPaid, StatusCancelled},
	StatusPaid:      {StatusShipped, StatusCancelled},
	StatusShipped:   {StatusDelivered},
}

// Valid reports whether s is a known status.
func (s Status) Valid() bool {
	switch s {
	case StatusPending, StatusConfirmed, StatusPaid, StatusShipped, StatusDelivered, StatusCancelled:
		return true
	default:
		return false
	}
}

// CanTransition reports whether an order in status s may move to next.
// Staying in the same status is always allowed.
func (s Status) CanTransition(next Status) bool {
	if s == next {
		return true
	}
	for _, allowed := range transitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

// Item is a single order line. TotalPrice is always UnitPrice * Quantity.
type Item struct {
	ProductID  int64
	Quantity   int
	UnitPrice  decimal.Decimal
	TotalPrice decimal.Decimal
	Unit       string
}

// Order is a placed customer order.
//
// Total = Subtotal - Discount + Shipping + Tax.
type Order struct {
	ID         int64
	UserID     string
	Items      []Item
	Subtotal   decimal.Decimal
	Discount   decimal.Decimal
	Shipping   decimal.Decimal
	Tax        decimal.Decimal
	Total      decimal.Decimal
	Currency   string
	CouponCode string
	Status     Status
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

// Patch is a partial order update. Only status changes after creation.
type Patch struct {
	Status    *Status
	UpdatedAt *time.Time
}

// Repository defines persistence operations for orders.
type Repository interface {
	List(ctx context.Context) ([]Order, error)
	Get(ctx context.Context, id int64) (*Order, error)
	Create(ctx context.Context, o Order) (*Order, error)
	Update(ctx context.Context, id int64, patch Patch) (*Order, error)
	Delete(ctx context.Context, id int64) (bool, error)
}
