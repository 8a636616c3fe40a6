// Package money holds the JSON representation of decimal amounts.
package money

import (
	"github.com/shopspring/decimal"
)

// Number is a decimal encoded as a bare JSON number instead of the quoted
// string decimal.Decimal produces. Quoted values are accepted on decode.
type Number decimal.Decimal

func (n Number) MarshalJSON() ([]byte, error) {
	return []byte(decimal.Decimal(n).String()), nil
}

func (n *Number) UnmarshalJSON(b []byte) error {
	var d decimal.Decimal
	if err := d.UnmarshalJSON(b); err != nil {
		return err
	}
	*n = Number(d)
	return nil
}

// Decimal returns n as a decimal.Decimal.
func (n Number) Decimal() decimal.Decimal { return decimal.Decimal(n) }

// Ptr converts an optional decimal. Nil stays nil.
func Ptr(d *decimal.Decimal) *Number {
	if d == nil {
		return nil
	}
	n := Number(*d)
	return &n
}

// DecimalPtr converts an optional Number. Nil stays nil.
func DecimalPtr(n *Number) *decimal.Decimal {
	if n == nil {
		return nil
	}
	d := n.Decimal()
	return &d
}
