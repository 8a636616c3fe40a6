package repository

import (
	"context"
	"strings"
	"time"

	"github.com/xenking/storefront/internal/domain/coupon"
	"github.com/xenking/storefront/internal/money"
	"github.com/xenking/storefront/internal/storage"
)

var _ coupon.Repository = (*CouponRepository)(nil)

type couponRow struct {
	ID              int64         `json:"id,omitempty"`
	Code            string        `json:"code"`
	Description     string        `json:"description,omitempty"`
	DiscountPercent *money.Number `json:"discount_percent,omitempty"`
	DiscountAmount  *money.Number `json:"discount_amount,omitempty"`
	MinOrderAmount  *money.Number `json:"min_order_amount,omitempty"`
	MaxUsage        *int          `json:"max_usage"`
	UsedCount       int           `json:"used_count"`
	ExpiresAt       *string       `json:"expires_at"`
	Enabled         *bool         `json:"enabled,omitempty"`
	CreatedAt       time.Time     `json:"created_at"`
	UpdatedAt       time.Time     `json:"updated_at"`
}

type couponPatchRow struct {
	Code            *string       `json:"code,omitempty"`
	Description     *string       `json:"description,omitempty"`
	DiscountPercent *money.Number `json:"discount_percent,omitempty"`
	DiscountAmount  *money.Number `json:"discount_amount,omitempty"`
	MinOrderAmount  *money.Number `json:"min_order_amount,omitempty"`
	MaxUsage        *int          `json:"max_usage,omitempty"`
	UsedCount       *int          `json:"used_count,omitempty"`
	ExpiresAt       *string       `json:"expires_at,omitempty"`
	Enabled         *bool         `json:"enabled,omitempty"`
	UpdatedAt       *time.Time    `json:"updated_at,omitempty"`
}

func newCouponPatchRow(patch coupon.Patch) couponPatchRow {
	return couponPatchRow{
		Code:            patch.Code,
		Description:     patch.Description,
		DiscountPercent: money.Ptr(patch.DiscountPercent),
		DiscountAmount:  money.Ptr(patch.DiscountAmount),
		MinOrderAmount:  money.Ptr(patch.MinOrderAmount),
		MaxUsage:        patch.MaxUsage,
		UsedCount:       patch.UsedCount,
		ExpiresAt:       patch.ExpiresAt,
		Enabled:         patch.Enabled,
		UpdatedAt:       patch.UpdatedAt,
	}
}

// CouponRepository implements coupon.Repository over a storage.Adapter.
type CouponRepository struct {
	c collection[couponRow]
}

// NewCouponRepository returns a CouponRepository backed by adapter.
func NewCouponRepository(adapter storage.Adapter) *CouponRepository {
	return &CouponRepository{c: collection[couponRow]{
		adapter:  adapter,
		name:     couponsCollection,
		notFound: coupon.ErrNotFound,
	}}
}

func (r *CouponRepository) List(ctx context.Context) ([]coupon.Coupon, error) {
	rows, err := r.c.list(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]coupon.Coupon, len(rows))
	for i, row := range rows {
		out[i] = row.toDomain()
	}
	return out, nil
}

func (r *CouponRepository) Get(ctx context.Context, id int64) (*coupon.Coupon, error) {
	row, err := r.c.get(ctx, id)
	if err != nil {
		return nil, err
	}
	c := row.toDomain()
	return &c, nil
}

// GetByCode scans the collection for a case-insensitive code match.
// Returns coupon.ErrNotFound when none matches.
func (r *CouponRepository) GetByCode(ctx context.Context, code string) (*coupon.Coupon, error) {
	rows, err := r.c.list(ctx)
	if err != nil {
		return nil, err
	}
	for _, row := range rows {
		if strings.EqualFold(row.Code, code) {
			c := row.toDomain()
			return &c, nil
		}
	}
	return nil, coupon.ErrNotFound
}

func (r *CouponRepository) Create(ctx context.Context, c coupon.Coupon) (*coupon.Coupon, error) {
	enabled := c.Enabled
	var expires *string
	if c.ExpiresAt != "" {
		expires = &c.ExpiresAt
	}
	row, err := r.c.create(ctx, couponRow{
		Code:            c.Code,
		Description:     c.Description,
		DiscountPercent: money.Ptr(c.DiscountPercent),
		DiscountAmount:  money.Ptr(c.DiscountAmount),
		MinOrderAmount:  money.Ptr(c.MinOrderAmount),
		MaxUsage:        c.MaxUsage,
		UsedCount:       c.UsedCount,
		ExpiresAt:       expires,
		Enabled:         &enabled,
		CreatedAt:       c.CreatedAt,
		UpdatedAt:       c.UpdatedAt,
	})
	if err != nil {
		return nil, err
	}
	out := row.toDomain()
	return &out, nil
}

func (r *CouponRepository) Update(ctx context.Context, id int64, patch coupon.Patch) (*coupon.Coupon, error) {
	row, err := r.c.update(ctx, id, newCouponPatchRow(patch))
	if err != nil {
		return nil, err
	}
	out := row.toDomain()
	return &out, nil
}

// Modify hands fn the stored coupon and merges the patch it returns before
// any other write to the same coupon can land.
func (r *CouponRepository) Modify(ctx context.Context, id int64, fn func(c coupon.Coupon) (coupon.Patch, error)) (*coupon.Coupon, error) {
	row, err := r.c.modify(ctx, id, func(current *couponRow) (any, error) {
		patch, err := fn(current.toDomain())
		if err != nil {
			return nil, err
		}
		return newCouponPatchRow(patch), nil
	})
	if err != nil {
		return nil, err
	}
	out := row.toDomain()
	return &out, nil
}

func (r *CouponRepository) Delete(ctx context.Context, id int64) (bool, error) {
	return r.c.delete(ctx, id)
}

// toDomain maps a stored row. A coupon without an enabled flag is enabled.
func (row couponRow) toDomain() coupon.Coupon {
	c := coupon.Coupon{
		ID:              row.ID,
		Code:            row.Code,
		Description:     row.Description,
		DiscountPercent: money.DecimalPtr(row.DiscountPercent),
		DiscountAmount:  money.DecimalPtr(row.DiscountAmount),
		MinOrderAmount:  money.DecimalPtr(row.MinOrderAmount),
		MaxUsage:        row.MaxUsage,
		UsedCount:       row.UsedCount,
		Enabled:         row.Enabled == nil || *row.Enabled,
		CreatedAt:       row.CreatedAt,
		UpdatedAt:       row.UpdatedAt,
	}
	if row.ExpiresAt != nil {
		c.ExpiresAt = *row.ExpiresAt
	}
	return c
}
