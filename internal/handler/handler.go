// Package handler exposes the storefront services over HTTP.
package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-faster/sdk/zctx"
	"go.uber.org/zap"

	"github.com/xenking/storefront/internal/domain/apperr"
	"github.com/xenking/storefront/internal/domain/coupon"
	"github.com/xenking/storefront/internal/domain/order"
	"github.com/xenking/storefront/internal/domain/product"
)

// maxBodyBytes caps request bodies.
const maxBodyBytes = 1 << 20

// ProductService is the product surface used by the handlers.
type ProductService interface {
	List(ctx context.Context, f product.ListFilter) ([]product.Enhanced, error)
	Get(ctx context.Context, id int64) (*product.Enhanced, error)
	GetMany(ctx context.Context, ids []int64) ([]product.Enhanced, error)
	Create(ctx context.Context, p product.Product) (*product.Product, error)
	Update(ctx context.Context, id int64, patch product.Patch) (*product.Product, error)
	Delete(ctx context.Context, id int64) error
	AddReview(ctx context.Context, in product.ReviewInput) (*product.Review, error)
}

// CouponService is the coupon surface used by the handlers.
type CouponService interface {
	coupon.Applier
	List(ctx context.Context) ([]coupon.Coupon, error)
	Create(ctx context.Context, c coupon.Coupon) (*coupon.Coupon, error)
	Update(ctx context.Context, id int64, patch coupon.Patch) (*coupon.Coupon, error)
	SetEnabled(ctx context.Context, id int64, enabled bool) (*coupon.Coupon, error)
	Delete(ctx context.Context, id int64) error
}

// OrderService is the order surface used by the handlers.
type OrderService interface {
	Create(ctx context.Context, req order.CreateRequest, couponCode string) (*order.Order, error)
	List(ctx context.Context) ([]order.Order, error)
	Get(ctx context.Context, id int64) (*order.Order, error)
	UpdateStatus(ctx context.Context, id int64, status order.Status) (*order.Order, error)
	Delete(ctx context.Context, id int64) error
}

var (
	_ ProductService = (*product.Service)(nil)
	_ CouponService  = (*coupon.Service)(nil)
	_ OrderService   = (*order.Service)(nil)
)

// Handler serves the /api routes.
type Handler struct {
	products ProductService
	coupons  CouponService
	orders   OrderService
}

// New constructs a Handler.
func New(products ProductService, coupons CouponService, orders OrderService) *Handler {
	return &Handler{
		products: products,
		coupons:  coupons,
		orders:   orders,
	}
}

// Routes registers every API route on r.
func (h *Handler) Routes(r chi.Router) {
	r.Route("/products", func(r chi.Router) {
		r.Get("/", h.ListProducts)
		r.Post("/", h.CreateProduct)
		r.Get("/{id}", h.GetProduct)
		r.Patch("/{id}", h.UpdateProduct)
		r.Delete("/{id}", h.DeleteProduct)
		r.Post("/{id}/reviews", h.AddReview)
	})
	r.Route("/coupons", func(r chi.Router) {
		r.Get("/", h.ListCoupons)
		r.Post("/", h.CreateCoupon)
		r.Post("/apply", h.ApplyCoupon)
		r.Patch("/{id}", h.UpdateCoupon)
		r.Put("/{id}/enabled", h.SetCouponEnabled)
		r.Delete("/{id}", h.DeleteCoupon)
	})
	r.Route("/orders", func(r chi.Router) {
		r.Get("/", h.ListOrders)
		r.Post("/", h.CreateOrder)
		r.Get("/{id}", h.GetOrder)
		r.Put("/{id}/status", h.UpdateOrderStatus)
		r.Delete("/{id}", h.DeleteOrder)
	})
}

// Router returns a chi router with the API mounted under /api.
func (h *Handler) Router() chi.Router {
	r := chi.NewRouter()
	r.Route("/api", h.Routes)
	return r
}

// errorResponse is the JSON body of every failed request.
type errorResponse struct {
	Code    int         `json:"code"`
	Kind    apperr.Kind `json:"kind"`
	Message string      `json:"message"`
}

var errBadID = apperr.Validation("id must be a positive integer")

func pathID(r *http.Request) (int64, error) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id <= 0 {
		return 0, errBadID
	}
	return id, nil
}

// decode reads a JSON body into v. Failures are validation errors.
func decode(w http.ResponseWriter, r *http.Request, v any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err := dec.Decode(v); err != nil {
		return apperr.Validation("invalid request body: " + err.Error())
	}
	return nil
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// writeError maps err to a status by its apperr kind. Internal errors are
// logged and their message hidden from the client.
func writeError(w http.ResponseWriter, r *http.Request, err error) {
	kind := apperr.KindOf(err)
	status := statusOf(kind)
	msg := err.Error()
	if kind == apperr.KindInternal {
		zctx.From(r.Context()).Error("Request failed",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Error(err),
		)
		msg = http.StatusText(status)
	}
	writeJSON(w, status, errorResponse{Code: status, Kind: kind, Message: msg})
}

func statusOf(kind apperr.Kind) int {
	switch kind {
	case apperr.KindNotFound:
		return http.StatusNotFound
	case apperr.KindValidation:
		return http.StatusBadRequest
	case apperr.KindConflict:
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}
