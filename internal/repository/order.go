package repository

import (
	"context"
	"time"

	"github.com/xenking/storefront/internal/domain/order"
	"github.com/xenking/storefront/internal/money"
	"github.com/xenking/storefront/internal/storage"
)

var _ order.Repository = (*OrderRepository)(nil)

type orderItemRow struct {
	ProductID  int64        `json:"product_id"`
	Quantity   int          `json:"quantity"`
	UnitPrice  money.Number `json:"unit_price"`
	TotalPrice money.Number `json:"total_price"`
	Unit       string       `json:"unit,omitempty"`
}

type orderRow struct {
	ID         int64          `json:"id,omitempty"`
	UserID     string         `json:"user_id,omitempty"`
	Items      []orderItemRow `json:"items"`
	Subtotal   money.Number   `json:"subtotal"`
	Discount   money.Number   `json:"discount"`
	Shipping   money.Number   `json:"shipping"`
	Tax        money.Number   `json:"tax"`
	Total      money.Number   `json:"total"`
	Currency   string         `json:"currency,omitempty"`
	CouponCode *string        `json:"coupon_code"`
	Status     string         `json:"status"`
	CreatedAt  time.Time      `json:"created_at"`
	UpdatedAt  time.Time      `json:"updated_at"`
}

type orderPatchRow struct {
	Status    *string    `json:"status,omitempty"`
	UpdatedAt *time.Time `json:"updated_at,omitempty"`
}

// OrderRepository implements order.Repository over a storage.Adapter.
type OrderRepository struct {
	c collection[orderRow]
}

// NewOrderRepository returns an OrderRepository backed by adapter.
func NewOrderRepository(adapter storage.Adapter) *OrderRepository {
	return &OrderRepository{c: collection[orderRow]{
		adapter:  adapter,
		name:     ordersCollection,
		notFound: order.ErrNotFound,
	}}
}

func (r *OrderRepository) List(ctx context.Context) ([]order.Order, error) {
	rows, err := r.c.list(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]order.Order, len(rows))
	for i, row := range rows {
		out[i] = row.toDomain()
	}
	return out, nil
}

func (r *OrderRepository) Get(ctx context.Context, id int64) (*order.Order, error) {
	row, err := r.c.get(ctx, id)
	if err != nil {
		return nil, err
	}
	o := row.toDomain()
	return &o, nil
}

// Create stores o under a newly assigned id. An empty coupon code is
// stored as null.
func (r *OrderRepository) Create(ctx context.Context, o order.Order) (*order.Order, error) {
	items := make([]orderItemRow, len(o.Items))
	for i, it := range o.Items {
		items[i] = orderItemRow{
			ProductID:  it.ProductID,
			Quantity:   it.Quantity,
			UnitPrice:  money.Number(it.UnitPrice),
			TotalPrice: money.Number(it.TotalPrice),
			Unit:       it.Unit,
		}
	}
	var code *string
	if o.CouponCode != "" {
		code = &o.CouponCode
	}

	row, err := r.c.create(ctx, orderRow{
		UserID:     o.UserID,
		Items:      items,
		Subtotal:   money.Number(o.Subtotal),
		Discount:   money.Number(o.Discount),
		Shipping:   money.Number(o.Shipping),
		Tax:        money.Number(o.Tax),
		Total:      money.Number(o.Total),
		Currency:   o.Currency,
		CouponCode: code,
		Status:     string(o.Status),
		CreatedAt:  o.CreatedAt,
		UpdatedAt:  o.UpdatedAt,
	})
	if err != nil {
		return nil, err
	}
	out := row.toDomain()
	return &out, nil
}

func (r *OrderRepository) Update(ctx context.Context, id int64, patch order.Patch) (*order.Order, error) {
	var status *string
	if patch.Status != nil {
		s := string(*patch.Status)
		status = &s
	}
	row, err := r.c.update(ctx, id, orderPatchRow{Status: status, UpdatedAt: patch.UpdatedAt})
	if err != nil {
		return nil, err
	}
	out := row.toDomain()
	return &out, nil
}

func (r *OrderRepository) Delete(ctx context.Context, id int64) (bool, error) {
	return r.c.delete(ctx, id)
}

func (row orderRow) toDomain() order.Order {
	items := make([]order.Item, len(row.Items))
	for i, it := range row.Items {
		items[i] = order.Item{
			ProductID:  it.ProductID,
			Quantity:   it.Quantity,
			UnitPrice:  it.UnitPrice.Decimal(),
			TotalPrice: it.TotalPrice.Decimal(),
			Unit:       it.Unit,
		}
	}
	o := order.Order{
		ID:        row.ID,
		UserID:    row.UserID,
		Items:     items,
		Subtotal:  row.Subtotal.Decimal(),
		Discount:  row.Discount.Decimal(),
		Shipping:  row.Shipping.Decimal(),
		Tax:       row.Tax.Decimal(),
		Total:     row.Total.Decimal(),
		Currency:  row.Currency,
		Status:    order.Status(row.Status),
		CreatedAt: row.CreatedAt,
		UpdatedAt: row.UpdatedAt,
	}
	if row.CouponCode != nil {
		o.CouponCode = *row.CouponCode
	}
	return o
}
