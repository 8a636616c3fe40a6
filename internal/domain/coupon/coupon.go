package coupon

import (
	"context"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/xenking/storefront/internal/domain/apperr"
)

var (
	// ErrNotFound is returned when no coupon matches the requested code or id.
	ErrNotFound = apperr.New(apperr.KindNotFound, "coupon not found")
	// ErrDisabled is returned when the coupon has been switched off.
	ErrDisabled = apperr.Validation("coupon is disabled")
	// ErrExpired is returned when the coupon's expiry time has passed.
	ErrExpired = apperr.Validation("coupon has expired")
	// ErrBelowMinimum is returned when the subtotal is under the coupon's
	// minimum order amount.
	ErrBelowMinimum = apperr.Validation("order subtotal is below the coupon minimum")
	// ErrUsageLimitReached is returned when the coupon has been used more
	// times than its cap allows.
	ErrUsageLimitReached = apperr.Validation("coupon usage limit reached")
	// ErrCodeTaken is returned when a coupon would take a code another
	// coupon already holds.
	ErrCodeTaken = apperr.New(apperr.KindConflict, "coupon code already exists")
)

// expiryLayouts lists the accepted ExpiresAt formats, tried in order.
var expiryLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	time.DateOnly,
}

// Coupon is a discount code and its eligibility constraints.
//
// DiscountPercent takes priority over DiscountAmount when both are set.
// ExpiresAt is kept as stored; a blank or unparsable value never expires.
type Coupon struct {
	ID              int64
	Code            string
	Description     string
	DiscountPercent *decimal.Decimal
	DiscountAmount  *decimal.Decimal
	MinOrderAmount  *decimal.Decimal
	MaxUsage        *int
	UsedCount       int
	ExpiresAt       string
	Enabled         bool
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// Expiry parses ExpiresAt. The bool is false when the coupon never expires.
func (c *Coupon) Expiry() (time.Time, bool) {
	s := strings.TrimSpace(c.ExpiresAt)
	if s == "" {
		return time.Time{}, false
	}
	for _, layout := range expiryLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

// Patch is a partial coupon update. Nil fields are left untouched.
type Patch struct {
	Code            *string
	Description     *string
	DiscountPercent *decimal.Decimal
	DiscountAmount  *decimal.Decimal
	MinOrderAmount  *decimal.Decimal
	MaxUsage        *int
	UsedCount       *int
	ExpiresAt       *string
	Enabled         *bool
	UpdatedAt       *time.Time
}

// Application is the outcome of a successfully applied coupon.
type Application struct {
	Discount decimal.Decimal
	Coupon   Coupon
}

// Repository provides lookup and mutation of coupons.
type Repository interface {
	List(ctx context.Context) ([]Coupon, error)
	Get(ctx context.Context, id int64) (*Coupon, error)
	GetByCode(ctx context.Context, code string) (*Coupon, error)
	Create(ctx context.Context, c Coupon) (*Coupon, error)
	Update(ctx context.Context, id int64, patch Patch) (*Coupon, error)
	// Modify passes the current coupon to fn and stores the returned patch
	// with no other write to that coupon in between. An error from fn is
	// returned unchanged and nothing is written.
	Modify(ctx context.Context, id int64, fn func(c Coupon) (Patch, error)) (*Coupon, error)
	Delete(ctx context.Context, id int64) (bool, error)
}
