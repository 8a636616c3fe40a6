package handler

import (
	"net/http"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/xenking/storefront/internal/domain/apperr"
	"github.com/xenking/storefront/internal/domain/coupon"
	"github.com/xenking/storefront/internal/money"
)

var (
	errCodeRequired     = apperr.Validation("code is required")
	errPercentRange     = apperr.Validation("discountPercent must be between 0 and 100")
	errNegativeAmount   = apperr.Validation("discountAmount must not be negative")
	errNegativeMinimum  = apperr.Validation("minOrderAmount must not be negative")
	errNegativeMaxUsage = apperr.Validation("maxUsage must not be negative")
	errNegativeSubtotal = apperr.Validation("subtotal must not be negative")
	errEnabledRequired  = apperr.Validation("enabled is required")
)

type couponResponse struct {
	ID              int64         `json:"id"`
	Code            string        `json:"code"`
	Description     string        `json:"description,omitempty"`
	DiscountPercent *money.Number `json:"discountPercent"`
	DiscountAmount  *money.Number `json:"discountAmount"`
	MinOrderAmount  *money.Number `json:"minOrderAmount"`
	MaxUsage        *int          `json:"maxUsage"`
	UsedCount       int           `json:"usedCount"`
	ExpiresAt       *string       `json:"expiresAt"`
	Enabled         bool          `json:"enabled"`
	CreatedAt       time.Time     `json:"createdAt"`
	UpdatedAt       time.Time     `json:"updatedAt"`
}

type couponRequest struct {
	Code            *string       `json:"code"`
	Description     *string       `json:"description"`
	DiscountPercent *money.Number `json:"discountPercent"`
	DiscountAmount  *money.Number `json:"discountAmount"`
	MinOrderAmount  *money.Number `json:"minOrderAmount"`
	MaxUsage        *int          `json:"maxUsage"`
	ExpiresAt       *string       `json:"expiresAt"`
	Enabled         *bool         `json:"enabled"`
}

type applyCouponRequest struct {
	Code     string       `json:"code"`
	Subtotal money.Number `json:"subtotal"`
}

type applyCouponResponse struct {
	Discount money.Number   `json:"discount"`
	Coupon   couponResponse `json:"coupon"`
}

type setEnabledRequest struct {
	Enabled *bool `json:"enabled"`
}

var hundred = decimal.NewFromInt(100)

// validate checks the numeric bounds of any fields present in req.
func (req *couponRequest) validate() error {
	if req.Code != nil && strings.TrimSpace(*req.Code) == "" {
		return errCodeRequired
	}
	if p := money.DecimalPtr(req.DiscountPercent); p != nil && (p.IsNegative() || p.GreaterThan(hundred)) {
		return errPercentRange
	}
	if a := money.DecimalPtr(req.DiscountAmount); a != nil && a.IsNegative() {
		return errNegativeAmount
	}
	if m := money.DecimalPtr(req.MinOrderAmount); m != nil && m.IsNegative() {
		return errNegativeMinimum
	}
	if req.MaxUsage != nil && *req.MaxUsage < 0 {
		return errNegativeMaxUsage
	}
	return nil
}

func (h *Handler) ListCoupons(w http.ResponseWriter, r *http.Request) {
	coupons, err := h.coupons.List(r.Context())
	if err != nil {
		writeError(w, r, err)
		return
	}
	out := make([]couponResponse, len(coupons))
	for i, c := range coupons {
		out[i] = toCouponResponse(c)
	}
	writeJSON(w, http.StatusOK, out)
}

func (h *Handler) CreateCoupon(w http.ResponseWriter, r *http.Request) {
	var req couponRequest
	if err := decode(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	if req.Code == nil {
		writeError(w, r, errCodeRequired)
		return
	}
	if err := req.validate(); err != nil {
		writeError(w, r, err)
		return
	}

	c := coupon.Coupon{
		Code:            *req.Code,
		DiscountPercent: money.DecimalPtr(req.DiscountPercent),
		DiscountAmount:  money.DecimalPtr(req.DiscountAmount),
		MinOrderAmount:  money.DecimalPtr(req.MinOrderAmount),
		MaxUsage:        req.MaxUsage,
		Enabled:         req.Enabled == nil || *req.Enabled,
	}
	if req.Description != nil {
		c.Description = *req.Description
	}
	if req.ExpiresAt != nil {
		c.ExpiresAt = *req.ExpiresAt
	}

	created, err := h.coupons.Create(r.Context(), c)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, toCouponResponse(*created))
}

func (h *Handler) UpdateCoupon(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	var req couponRequest
	if err := decode(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	if err := req.validate(); err != nil {
		writeError(w, r, err)
		return
	}
	if req.Code != nil {
		code := strings.TrimSpace(*req.Code)
		req.Code = &code
	}

	updated, err := h.coupons.Update(r.Context(), id, coupon.Patch{
		Code:            req.Code,
		Description:     req.Description,
		DiscountPercent: money.DecimalPtr(req.DiscountPercent),
		DiscountAmount:  money.DecimalPtr(req.DiscountAmount),
		MinOrderAmount:  money.DecimalPtr(req.MinOrderAmount),
		MaxUsage:        req.MaxUsage,
		ExpiresAt:       req.ExpiresAt,
		Enabled:         req.Enabled,
	})
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toCouponResponse(*updated))
}

// SetCouponEnabled serves PUT /api/coupons/{id}/enabled.
func (h *Handler) SetCouponEnabled(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	var req setEnabledRequest
	if err := decode(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	if req.Enabled == nil {
		writeError(w, r, errEnabledRequired)
		return
	}

	updated, err := h.coupons.SetEnabled(r.Context(), id, *req.Enabled)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toCouponResponse(*updated))
}

func (h *Handler) DeleteCoupon(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	if err := h.coupons.Delete(r.Context(), id); err != nil {
		writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// ApplyCoupon serves POST /api/coupons/apply. A successful call counts as
// one use of the coupon.
func (h *Handler) ApplyCoupon(w http.ResponseWriter, r *http.Request) {
	var req applyCouponRequest
	if err := decode(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	if strings.TrimSpace(req.Code) == "" {
		writeError(w, r, errCodeRequired)
		return
	}
	if req.Subtotal.Decimal().IsNegative() {
		writeError(w, r, errNegativeSubtotal)
		return
	}

	app, err := h.coupons.Apply(r.Context(), req.Code, req.Subtotal.Decimal())
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, applyCouponResponse{
		Discount: money.Number(app.Discount),
		Coupon:   toCouponResponse(app.Coupon),
	})
}

func toCouponResponse(c coupon.Coupon) couponResponse {
	resp := couponResponse{
		ID:              c.ID,
		Code:            c.Code,
		Description:     c.Description,
		DiscountPercent: money.Ptr(c.DiscountPercent),
		DiscountAmount:  money.Ptr(c.DiscountAmount),
		MinOrderAmount:  money.Ptr(c.MinOrderAmount),
		MaxUsage:        c.MaxUsage,
		UsedCount:       c.UsedCount,
		Enabled:         c.Enabled,
		CreatedAt:       c.CreatedAt,
		UpdatedAt:       c.UpdatedAt,
	}
	if c.ExpiresAt != "" {
		exp := c.ExpiresAt
		resp.ExpiresAt = &exp
	}
	return resp
}
