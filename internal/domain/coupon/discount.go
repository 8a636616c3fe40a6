package coupon

import (
	"time"

	"github.com/shopspring/decimal"
)

var hundred = decimal.NewFromInt(100)

// Check runs the eligibility rules in order and returns the first failure:
// disabled, expired, below minimum, over the usage cap.
//
// The usage cap is compared with a strict greater-than, so a coupon whose
// UsedCount equals MaxUsage is still accepted once more.
func Check(c *Coupon, subtotal decimal.Decimal, now time.Time) error {
	if !c.Enabled {
		return ErrDisabled
	}
	if exp, ok := c.Expiry(); ok && exp.Before(now) {
		return ErrExpired
	}
	if c.MinOrderAmount != nil && subtotal.LessThan(*c.MinOrderAmount) {
		return ErrBelowMinimum
	}
	if c.MaxUsage != nil && c.UsedCount > *c.MaxUsage {
		return ErrUsageLimitReached
	}
	return nil
}

// Discount computes the coupon's discount for subtotal. A percentage is
// rounded to whole currency units and is not clamped; a fixed amount is
// capped at the subtotal.
func Discount(c *Coupon, subtotal decimal.Decimal) decimal.Decimal {
	switch {
	case c.DiscountPercent != nil:
		return subtotal.Mul(*c.DiscountPercent).Div(hundred).Round(0)
	case c.DiscountAmount != nil:
		return decimal.Min(*c.DiscountAmount, subtotal)
	default:
		return decimal.Zero
	}
}
