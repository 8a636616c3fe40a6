package coupon

import (
	"context"
	"strings"
	"time"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"
	"go.uber.org/zap"
)

// Applier applies a coupon code to an order subtotal. The order service
// depends on this rather than on *Service.
type Applier interface {
	Apply(ctx context.Context, code string, subtotal decimal.Decimal) (*Application, error)
}

var _ Applier = (*Service)(nil)

// Service implements coupon application and administration.
type Service struct {
	repo         Repository
	lg           *zap.Logger
	applications metric.Int64Counter
	now          func() time.Time
}

// Option configures a Service.
type Option func(*Service)

// WithLogger sets the service logger.
func WithLogger(lg *zap.Logger) Option {
	return func(s *Service) { s.lg = lg }
}

// WithMeterProvider registers the coupon application counter with mp.
func WithMeterProvider(mp metric.MeterProvider) Option {
	return func(s *Service) {
		counter, err := mp.Meter("storefront/coupon").Int64Counter(
			"coupon.applications",
			metric.WithDescription("Coupon application attempts by outcome"),
		)
		if err == nil {
			s.applications = counter
		}
	}
}

// NewService creates a coupon Service backed by repo.
func NewService(repo Repository, opts ...Option) *Service {
	noopCounter, _ := noop.NewMeterProvider().Meter("").Int64Counter("")
	s := &Service{
		repo:         repo,
		lg:           zap.NewNop(),
		applications: noopCounter,
		now:          time.Now,
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

// Apply looks up code, validates it against subtotal, computes the discount
// and records one more use of the coupon. Validation and the increment run
// as one step against the stored coupon, so concurrent applications neither
// lose uses nor slip past the usage cap.
//
// The usage increment is persisted before Apply returns and is never rolled
// back, even if the caller later fails to persist its order.
func (s *Service) Apply(ctx context.Context, code string, subtotal decimal.Decimal) (*Application, error) {
	c, err := s.repo.GetByCode(ctx, strings.TrimSpace(code))
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			s.record(ctx, "not_found", err)
			return nil, ErrNotFound
		}
		s.record(ctx, "error", err)
		return nil, errors.Wrap(err, "lookup coupon")
	}

	var (
		discount decimal.Decimal
		rejected error
	)
	updated, err := s.repo.Modify(ctx, c.ID, func(current Coupon) (Patch, error) {
		now := s.now()
		if err := Check(&current, subtotal, now); err != nil {
			rejected = err
			return Patch{}, err
		}
		discount = Discount(&current, subtotal)
		used := current.UsedCount + 1
		now = now.UTC()
		return Patch{UsedCount: &used, UpdatedAt: &now}, nil
	})
	switch {
	case rejected != nil:
		s.record(ctx, "rejected", rejected)
		return nil, rejected
	case errors.Is(err, ErrNotFound):
		s.record(ctx, "not_found", err)
		return nil, ErrNotFound
	case err != nil:
		s.record(ctx, "error", err)
		return nil, errors.Wrap(err, "increment coupon usage")
	}

	s.record(ctx, "applied", nil)
	s.lg.Debug("Coupon applied",
		zap.String("code", updated.Code),
		zap.Int("used_count", updated.UsedCount),
		zap.String("discount", discount.String()),
	)

	return &Application{Discount: discount, Coupon: *updated}, nil
}

func (s *Service) record(ctx context.Context, outcome string, err error) {
	attrs := []attribute.KeyValue{attribute.String("outcome", outcome)}
	if err != nil && outcome == "rejected" {
		attrs = append(attrs, attribute.String("reason", err.Error()))
	}
	s.applications.Add(ctx, 1, metric.WithAttributes(attrs...))
}

// List returns all coupons.
func (s *Service) List(ctx context.Context) ([]Coupon, error) {
	return s.repo.List(ctx)
}

// Get returns the coupon with the given id.
func (s *Service) Get(ctx context.Context, id int64) (*Coupon, error) {
	return s.repo.Get(ctx, id)
}

// Create stores a new coupon. Codes must be unique.
func (s *Service) Create(ctx context.Context, c Coupon) (*Coupon, error) {
	c.Code = strings.TrimSpace(c.Code)
	if _, err := s.repo.GetByCode(ctx, c.Code); err == nil {
		return nil, ErrCodeTaken
	} else if !errors.Is(err, ErrNotFound) {
		return nil, errors.Wrap(err, "check coupon code")
	}

	now := s.now().UTC()
	c.ID = 0
	c.CreatedAt = now
	c.UpdatedAt = now
	return s.repo.Create(ctx, c)
}

// Update applies patch to the coupon with the given id. A new code must not
// belong to another coupon.
func (s *Service) Update(ctx context.Context, id int64, patch Patch) (*Coupon, error) {
	if _, err := s.repo.Get(ctx, id); err != nil {
		return nil, err
	}
	if patch.Code != nil {
		code := strings.TrimSpace(*patch.Code)
		patch.Code = &code
		other, err := s.repo.GetByCode(ctx, code)
		switch {
		case err == nil && other.ID != id:
			return nil, ErrCodeTaken
		case err != nil && !errors.Is(err, ErrNotFound):
			return nil, errors.Wrap(err, "check coupon code")
		}
	}
	now := s.now().UTC()
	patch.UpdatedAt = &now
	return s.repo.Update(ctx, id, patch)
}

// SetEnabled switches the coupon on or off.
func (s *Service) SetEnabled(ctx context.Context, id int64, enabled bool) (*Coupon, error) {
	return s.Update(ctx, id, Patch{Enabled: &enabled})
}

// Delete removes the coupon with the given id.
func (s *Service) Delete(ctx context.Context, id int64) error {
	removed, err := s.repo.Delete(ctx, id)
	if err != nil {
		return err
	}
	if !removed {
		return ErrNotFound
	}
	return nil
}
