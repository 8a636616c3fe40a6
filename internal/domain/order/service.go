package order

import (
	"context"
	"strings"
	"time"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"

	"github.com/xenking/storefront/internal/domain/coupon"
)

// ItemInput is a requested order line. Totals are computed by the service.
type ItemInput struct {
	ProductID int64
	Quantity  int
	UnitPrice decimal.Decimal
	Unit      string
}

// CreateRequest holds the caller-supplied part of a new order. Any client
// computed subtotal or total is not accepted here.
type CreateRequest struct {
	UserID     string
	Items      []ItemInput
	Shipping   decimal.Decimal
	Tax        decimal.Decimal
	Currency   string
	CouponCode string
	Status     Status
}

// Service encapsulates order pricing and lifecycle.
type Service struct {
	orders   Repository
	coupons  coupon.Applier
	tracer   trace.Tracer
	freeform bool
	now      func() time.Time
}

// Option configures a Service.
type Option func(*Service)

// WithTracerProvider enables spans for every pricing step.
func WithTracerProvider(tp trace.TracerProvider) Option {
	return func(s *Service) { s.tracer = tp.Tracer("storefront/order") }
}

// WithFreeformStatus disables status transition checks, so any known
// status may follow any other.
func WithFreeformStatus(enabled bool) Option {
	return func(s *Service) { s.freeform = enabled }
}

// NewService creates an order Service.
func NewService(orders Repository, coupons coupon.Applier, opts ...Option) *Service {
	s := &Service{
		orders:  orders,
		coupons: coupons,
		tracer:  noop.NewTracerProvider().Tracer(""),
		now:     time.Now,
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

// Create prices and persists a new order.
//
// couponCode, when non-empty, takes priority over req.CouponCode. A coupon
// failure aborts the order. If persisting fails after the coupon was
// applied, its usage count stays incremented.
func (s *Service) Create(ctx context.Context, req CreateRequest, couponCode string) (_ *Order, rerr error) {
	ctx, span := s.tracer.Start(ctx, "order.Create")
	defer func() {
		if rerr != nil {
			span.RecordError(rerr)
			span.SetStatus(codes.Error, rerr.Error())
		}
		span.End()
	}()

	if err := validate(req); err != nil {
		return nil, err
	}

	items, subtotal := price(req.Items)
	span.SetAttributes(
		attribute.Int("order.items", len(items)),
		attribute.String("order.subtotal", subtotal.String()),
	)

	code := strings.TrimSpace(couponCode)
	if code == "" {
		code = strings.TrimSpace(req.CouponCode)
	}

	discount := decimal.Zero
	if code != "" {
		applied, err := s.applyCoupon(ctx, code, subtotal)
		if err != nil {
			return nil, err
		}
		discount = applied.Discount
		code = applied.Coupon.Code
	}

	status := req.Status
	if status == "" {
		status = StatusPending
	}

	now := s.now().UTC()
	o := Order{
		UserID:     req.UserID,
		Items:      items,
		Subtotal:   subtotal,
		Discount:   discount,
		Shipping:   req.Shipping,
		Tax:        req.Tax,
		Total:      Total(subtotal, discount, req.Shipping, req.Tax),
		Currency:   req.Currency,
		CouponCode: code,
		Status:     status,
		CreatedAt:  now,
		UpdatedAt:  now,
	}

	created, err := s.persist(ctx, o)
	if err != nil {
		return nil, err
	}
	span.SetAttributes(attribute.Int64("order.id", created.ID))
	return created, nil
}

func (s *Service) applyCoupon(ctx context.Context, code string, subtotal decimal.Decimal) (*coupon.Application, error) {
	ctx, span := s.tracer.Start(ctx, "order.ApplyCoupon",
		trace.WithAttributes(attribute.String("coupon.code", code)),
	)
	defer span.End()

	applied, err := s.coupons.Apply(ctx, code, subtotal)
	if err != nil {
		span.RecordError(err)
		return nil, err
	}
	span.SetAttributes(attribute.String("coupon.discount", applied.Discount.String()))
	return applied, nil
}

func (s *Service) persist(ctx context.Context, o Order) (*Order, error) {
	ctx, span := s.tracer.Start(ctx, "order.Persist")
	defer span.End()

	created, err := s.orders.Create(ctx, o)
	if err != nil {
		span.RecordError(err)
		return nil, errors.Wrap(err, "create order")
	}
	return created, nil
}

func validate(req CreateRequest) error {
	if len(req.Items) == 0 {
		return ErrEmptyItems
	}
	for _, item := range req.Items {
		if item.Quantity < 1 {
			return ErrInvalidQuantity
		}
		if item.UnitPrice.IsNegative() {
			return ErrInvalidPrice
		}
	}
	if req.Shipping.IsNegative() || req.Tax.IsNegative() {
		return ErrInvalidCharge
	}
	if req.Status != "" && !req.Status.Valid() {
		return ErrInvalidStatus
	}
	return nil
}

// price builds order lines from inputs and returns them with their subtotal.
func price(inputs []ItemInput) ([]Item, decimal.Decimal) {
	items := make([]Item, len(inputs))
	subtotal := decimal.Zero
	for i, in := range inputs {
		line := in.UnitPrice.Mul(decimal.NewFromInt(int64(in.Quantity)))
		items[i] = Item{
			ProductID:  in.ProductID,
			Quantity:   in.Quantity,
			UnitPrice:  in.UnitPrice,
			TotalPrice: line,
			Unit:       in.Unit,
		}
		subtotal = subtotal.Add(line)
	}
	return items, subtotal
}

// Total returns subtotal - discount + shipping + tax.
func Total(subtotal, discount, shipping, tax decimal.Decimal) decimal.Decimal {
	return subtotal.Sub(discount).Add(shipping).Add(tax)
}

// UpdateStatus moves the order to status and refreshes UpdatedAt.
func (s *Service) UpdateStatus(ctx context.Context, id int64, status Status) (*Order, error) {
	ctx, span := s.tracer.Start(ctx, "order.UpdateStatus", trace.WithAttributes(
		attribute.Int64("order.id", id),
		attribute.String("order.status", string(status)),
	))
	defer span.End()

	if !status.Valid() {
		return nil, ErrInvalidStatus
	}

	current, err := s.orders.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if !s.freeform && !current.Status.CanTransition(status) {
		return nil, errors.Wrapf(ErrInvalidTransition, "%s to %s", current.Status, status)
	}

	now := s.now().UTC()
	updated, err := s.orders.Update(ctx, id, Patch{Status: &status, UpdatedAt: &now})
	if err != nil {
		return nil, errors.Wrap(err, "update order status")
	}
	return updated, nil
}

// Get returns the order with the given id.
func (s *Service) Get(ctx context.Context, id int64) (*Order, error) {
	return s.orders.Get(ctx, id)
}

// List returns all orders.
func (s *Service) List(ctx context.Context) ([]Order, error) {
	return s.orders.List(ctx)
}

// Delete removes the order with the given id.
func (s *Service) Delete(ctx context.Context, id int64) error {
	removed, err := s.orders.Delete(ctx, id)
	if err != nil {
		return err
	}
	if !removed {
		return ErrNotFound
	}
	return nil
}
