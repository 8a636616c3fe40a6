package coupon

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// --- Mock implementations ---

type mockCouponRepo struct {
	mu        sync.Mutex
	byID      map[int64]Coupon
	nextID    int64
	lookupErr error
	updateErr error
	patches   []Patch
	// afterLookup runs when GetByCode returns, standing in for writes that
	// land between the lookup and the increment.
	afterLookup func()
}

func newCouponRepo(coupons ...Coupon) *mockCouponRepo {
	m := &mockCouponRepo{byID: make(map[int64]Coupon), nextID: 1}
	for _, c := range coupons {
		m.byID[c.ID] = c
		if c.ID >= m.nextID {
			m.nextID = c.ID + 1
		}
	}
	return m
}

func (m *mockCouponRepo) List(_ context.Context) ([]Coupon, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Coupon, 0, len(m.byID))
	for _, c := range m.byID {
		out = append(out, c)
	}
	return out, nil
}

func (m *mockCouponRepo) Get(_ context.Context, id int64) (*Coupon, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.byID[id]
	if !ok {
		return nil, ErrNotFound
	}
	return &c, nil
}

func (m *mockCouponRepo) GetByCode(_ context.Context, code string) (*Coupon, error) {
	c, err := m.lookup(code)
	if m.afterLookup != nil {
		m.afterLookup()
	}
	return c, err
}

func (m *mockCouponRepo) lookup(code string) (*Coupon, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.lookupErr != nil {
		return nil, m.lookupErr
	}
	for _, c := range m.byID {
		if strings.EqualFold(c.Code, code) {
			return &c, nil
		}
	}
	return nil, ErrNotFound
}

func (m *mockCouponRepo) Create(_ context.Context, c Coupon) (*Coupon, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	c.ID = m.nextID
	m.nextID++
	m.byID[c.ID] = c
	return &c, nil
}

func (m *mockCouponRepo) Update(_ context.Context, id int64, patch Patch) (*Coupon, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.updateErr != nil {
		return nil, m.updateErr
	}
	return m.apply(id, patch)
}

func (m *mockCouponRepo) Modify(_ context.Context, id int64, fn func(Coupon) (Patch, error)) (*Coupon, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.updateErr != nil {
		return nil, m.updateErr
	}
	c, ok := m.byID[id]
	if !ok {
		return nil, ErrNotFound
	}
	patch, err := fn(c)
	if err != nil {
		return nil, err
	}
	return m.apply(id, patch)
}

// apply records and merges patch. Callers hold m.mu.
func (m *mockCouponRepo) apply(id int64, patch Patch) (*Coupon, error) {
	m.patches = append(m.patches, patch)
	c, ok := m.byID[id]
	if !ok {
		return nil, ErrNotFound
	}
	if patch.Code != nil {
		c.Code = *patch.Code
	}
	if patch.UsedCount != nil {
		c.UsedCount = *patch.UsedCount
	}
	if patch.Enabled != nil {
		c.Enabled = *patch.Enabled
	}
	if patch.Description != nil {
		c.Description = *patch.Description
	}
	if patch.UpdatedAt != nil {
		c.UpdatedAt = *patch.UpdatedAt
	}
	m.byID[id] = c
	return &c, nil
}

func (m *mockCouponRepo) Delete(_ context.Context, id int64) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.byID[id]
	delete(m.byID, id)
	return ok, nil
}

var fixedNow = time.Date(2025, 6, 15, 12, 0, 0, 0, time.UTC)

func newTestService(repo Repository) *Service {
	svc := NewService(repo)
	svc.now = func() time.Time { return fixedNow }
	return svc
}

// --- Tests ---

func TestService_Apply(t *testing.T) {
	tests := []struct {
		name         string
		coupon       Coupon
		code         string
		subtotal     string
		wantDiscount string
		wantErr      error
	}{
		{
			name:         "percent coupon",
			coupon:       Coupon{ID: 1, Code: "SAVE10", DiscountPercent: d("10"), Enabled: true},
			code:         "SAVE10",
			subtotal:     "200",
			wantDiscount: "20",
		},
		{
			name:         "flat coupon capped by subtotal",
			coupon:       Coupon{ID: 1, Code: "FLAT5", DiscountAmount: d("5"), Enabled: true},
			code:         "FLAT5",
			subtotal:     "3",
			wantDiscount: "3",
		},
		{
			name:         "code is trimmed and case-insensitive",
			coupon:       Coupon{ID: 1, Code: "SAVE10", DiscountPercent: d("10"), Enabled: true},
			code:         "  save10 ",
			subtotal:     "50",
			wantDiscount: "5",
		},
		{
			name:     "unknown code",
			coupon:   Coupon{ID: 1, Code: "SAVE10", Enabled: true},
			code:     "NOPE",
			subtotal: "50",
			wantErr:  ErrNotFound,
		},
		{
			name:     "expired",
			coupon:   Coupon{ID: 1, Code: "OLD", DiscountPercent: d("10"), Enabled: true, ExpiresAt: "2000-01-01T00:00:00Z"},
			code:     "OLD",
			subtotal: "50",
			wantErr:  ErrExpired,
		},
		{
			name:     "disabled",
			coupon:   Coupon{ID: 1, Code: "OFF", DiscountPercent: d("10"), Enabled: false},
			code:     "OFF",
			subtotal: "50",
			wantErr:  ErrDisabled,
		},
		{
			name:     "below minimum",
			coupon:   Coupon{ID: 1, Code: "BIG", DiscountAmount: d("10"), Enabled: true, MinOrderAmount: d("100")},
			code:     "BIG",
			subtotal: "99",
			wantErr:  ErrBelowMinimum,
		},
		{
			name:     "over usage cap",
			coupon:   Coupon{ID: 1, Code: "CAP", DiscountAmount: d("1"), Enabled: true, MaxUsage: intPtr(2), UsedCount: 3},
			code:     "CAP",
			subtotal: "10",
			wantErr:  ErrUsageLimitReached,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			repo := newCouponRepo(tt.coupon)
			svc := newTestService(repo)

			app, err := svc.Apply(context.Background(), tt.code, decimal.RequireFromString(tt.subtotal))
			if tt.wantErr != nil {
				require.ErrorIs(t, err, tt.wantErr)
				assert.Empty(t, repo.patches, "rejected coupon must not be incremented")
				return
			}
			require.NoError(t, err)
			want := decimal.RequireFromString(tt.wantDiscount)
			assert.True(t, want.Equal(app.Discount), "expected %s, got %s", want, app.Discount)
			assert.Equal(t, tt.coupon.UsedCount+1, app.Coupon.UsedCount)
			assert.Equal(t, fixedNow, app.Coupon.UpdatedAt)
		})
	}
}

func TestService_Apply_CountsEveryUse(t *testing.T) {
	repo := newCouponRepo(Coupon{ID: 3, Code: "MULTI", DiscountAmount: d("1"), Enabled: true})
	svc := newTestService(repo)

	const n = 7
	for i := 0; i < n; i++ {
		_, err := svc.Apply(context.Background(), "MULTI", decimal.NewFromInt(10))
		require.NoError(t, err)
	}

	got, err := repo.Get(context.Background(), 3)
	require.NoError(t, err)
	assert.Equal(t, n, got.UsedCount)
}

func TestService_Apply_CapAllowsOneExtraUse(t *testing.T) {
	repo := newCouponRepo(Coupon{ID: 1, Code: "TWO", DiscountAmount: d("1"), Enabled: true, MaxUsage: intPtr(2)})
	svc := newTestService(repo)
	ctx := context.Background()

	// Strict comparison: used counts 0, 1 and 2 all pass, 3 fails.
	for i := 0; i < 3; i++ {
		_, err := svc.Apply(ctx, "TWO", decimal.NewFromInt(10))
		require.NoError(t, err, "use %d", i+1)
	}
	_, err := svc.Apply(ctx, "TWO", decimal.NewFromInt(10))
	require.ErrorIs(t, err, ErrUsageLimitReached)
}

func TestService_Apply_ChecksStoredUsage(t *testing.T) {
	repo := newCouponRepo(Coupon{ID: 1, Code: "ONE", DiscountAmount: d("1"), Enabled: true, MaxUsage: intPtr(1), UsedCount: 1})
	// Another checkout uses the coupon after this one looked it up.
	repo.afterLookup = func() {
		repo.mu.Lock()
		defer repo.mu.Unlock()
		c := repo.byID[1]
		c.UsedCount = 2
		repo.byID[1] = c
		repo.afterLookup = nil
	}
	svc := newTestService(repo)

	_, err := svc.Apply(context.Background(), "ONE", decimal.NewFromInt(10))
	require.ErrorIs(t, err, ErrUsageLimitReached)
	assert.Empty(t, repo.patches)

	got, err := repo.Get(context.Background(), 1)
	require.NoError(t, err)
	assert.Equal(t, 2, got.UsedCount)
}

func TestService_Apply_IncrementsStoredCount(t *testing.T) {
	repo := newCouponRepo(Coupon{ID: 1, Code: "SAVE10", DiscountPercent: d("10"), Enabled: true})
	repo.afterLookup = func() {
		repo.mu.Lock()
		defer repo.mu.Unlock()
		c := repo.byID[1]
		c.UsedCount = 4
		repo.byID[1] = c
		repo.afterLookup = nil
	}
	svc := newTestService(repo)

	app, err := svc.Apply(context.Background(), "SAVE10", decimal.NewFromInt(100))
	require.NoError(t, err)
	assert.Equal(t, 5, app.Coupon.UsedCount)
}

func TestService_Apply_DeletedAfterLookup(t *testing.T) {
	repo := newCouponRepo(Coupon{ID: 1, Code: "GONE", DiscountAmount: d("1"), Enabled: true})
	repo.afterLookup = func() {
		repo.mu.Lock()
		defer repo.mu.Unlock()
		delete(repo.byID, 1)
	}
	svc := newTestService(repo)

	_, err := svc.Apply(context.Background(), "GONE", decimal.NewFromInt(10))
	require.ErrorIs(t, err, ErrNotFound)
}

func TestService_Apply_LookupError(t *testing.T) {
	repo := newCouponRepo()
	repo.lookupErr = errors.New("connection refused")
	svc := newTestService(repo)

	_, err := svc.Apply(context.Background(), "ANY", decimal.NewFromInt(10))
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrNotFound)
	assert.Contains(t, err.Error(), "lookup coupon")
}

func TestService_Apply_IncrementError(t *testing.T) {
	repo := newCouponRepo(Coupon{ID: 1, Code: "SAVE10", DiscountPercent: d("10"), Enabled: true})
	repo.updateErr = errors.New("disk full")
	svc := newTestService(repo)

	_, err := svc.Apply(context.Background(), "SAVE10", decimal.NewFromInt(100))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "increment coupon usage")
}

func TestService_Create(t *testing.T) {
	repo := newCouponRepo(Coupon{ID: 1, Code: "TAKEN", Enabled: true})
	svc := newTestService(repo)
	ctx := context.Background()

	_, err := svc.Create(ctx, Coupon{Code: "taken"})
	require.ErrorIs(t, err, ErrCodeTaken)

	got, err := svc.Create(ctx, Coupon{ID: 77, Code: " FRESH ", Enabled: true, DiscountPercent: d("5")})
	require.NoError(t, err)
	assert.Equal(t, int64(2), got.ID)
	assert.Equal(t, "FRESH", got.Code)
	assert.Equal(t, fixedNow, got.CreatedAt)
	assert.Equal(t, fixedNow, got.UpdatedAt)
}

func TestService_Create_LookupError(t *testing.T) {
	repo := newCouponRepo()
	repo.lookupErr = errors.New("timeout")
	svc := newTestService(repo)

	_, err := svc.Create(context.Background(), Coupon{Code: "X"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "check coupon code")
}

func TestService_Update_Code(t *testing.T) {
	tests := []struct {
		name     string
		id       int64
		code     string
		wantErr  error
		wantCode string
	}{
		{name: "code held by another coupon", id: 2, code: "first", wantErr: ErrCodeTaken},
		{name: "own code in another case", id: 1, code: "first", wantCode: "first"},
		{name: "free code is trimmed", id: 2, code: " THIRD ", wantCode: "THIRD"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			repo := newCouponRepo(
				Coupon{ID: 1, Code: "FIRST", Enabled: true},
				Coupon{ID: 2, Code: "SECOND", Enabled: true},
			)
			svc := newTestService(repo)

			got, err := svc.Update(context.Background(), tt.id, Patch{Code: &tt.code})
			if tt.wantErr != nil {
				require.ErrorIs(t, err, tt.wantErr)
				assert.Empty(t, repo.patches)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.wantCode, got.Code)
		})
	}
}

func TestService_Update_CodeLookupError(t *testing.T) {
	repo := newCouponRepo(Coupon{ID: 1, Code: "FIRST", Enabled: true})
	repo.lookupErr = errors.New("timeout")
	svc := newTestService(repo)

	code := "OTHER"
	_, err := svc.Update(context.Background(), 1, Patch{Code: &code})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "check coupon code")
}

func TestService_SetEnabled(t *testing.T) {
	repo := newCouponRepo(Coupon{ID: 1, Code: "SAVE10", DiscountPercent: d("10"), Enabled: true})
	svc := newTestService(repo)
	ctx := context.Background()

	got, err := svc.SetEnabled(ctx, 1, false)
	require.NoError(t, err)
	assert.False(t, got.Enabled)

	_, err = svc.Apply(ctx, "SAVE10", decimal.NewFromInt(100))
	require.ErrorIs(t, err, ErrDisabled)

	_, err = svc.SetEnabled(ctx, 42, true)
	require.ErrorIs(t, err, ErrNotFound)
}

func TestService_Delete(t *testing.T) {
	svc := newTestService(newCouponRepo(Coupon{ID: 1, Code: "A"}))

	require.NoError(t, svc.Delete(context.Background(), 1))
	require.ErrorIs(t, svc.Delete(context.Background(), 1), ErrNotFound)
}
