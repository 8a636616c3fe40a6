package handler

import (
	"net/http"
	"time"

	"github.com/xenking/storefront/internal/domain/apperr"
	"github.com/xenking/storefront/internal/domain/order"
	"github.com/xenking/storefront/internal/money"
)

var errOrderRequired = apperr.Validation("order is required")

type orderItemJSON struct {
	ProductID  int64        `json:"productId"`
	Quantity   int          `json:"quantity"`
	UnitPrice  money.Number `json:"unitPrice"`
	TotalPrice money.Number `json:"totalPrice"`
	Unit       string       `json:"unit,omitempty"`
}

type orderResponse struct {
	ID         int64           `json:"id"`
	UserID     string          `json:"userId,omitempty"`
	Items      []orderItemJSON `json:"items"`
	Subtotal   money.Number    `json:"subtotal"`
	Discount   money.Number    `json:"discount"`
	Shipping   money.Number    `json:"shipping"`
	Tax        money.Number    `json:"tax"`
	Total      money.Number    `json:"total"`
	Currency   string          `json:"currency,omitempty"`
	CouponCode *string         `json:"couponCode"`
	Status     order.Status    `json:"status"`
	CreatedAt  time.Time       `json:"createdAt"`
	UpdatedAt  time.Time       `json:"updatedAt"`
}

// orderInput is the client view of a new order. Computed fields such as
// subtotal, totalPrice and total are ignored if sent.
type orderInput struct {
	UserID     string          `json:"userId"`
	Items      []orderItemJSON `json:"items"`
	Shipping   money.Number    `json:"shipping"`
	Tax        money.Number    `json:"tax"`
	Currency   string          `json:"currency"`
	CouponCode string          `json:"couponCode"`
	Status     order.Status    `json:"status"`
}

type createOrderRequest struct {
	Order      *orderInput `json:"order"`
	CouponCode string      `json:"couponCode"`
}

type updateStatusRequest struct {
	Status order.Status `json:"status"`
}

// CreateOrder serves POST /api/orders.
func (h *Handler) CreateOrder(w http.ResponseWriter, r *http.Request) {
	var req createOrderRequest
	if err := decode(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	if req.Order == nil {
		writeError(w, r, errOrderRequired)
		return
	}

	in := req.Order
	items := make([]order.ItemInput, len(in.Items))
	for i, it := range in.Items {
		items[i] = order.ItemInput{
			ProductID: it.ProductID,
			Quantity:  it.Quantity,
			UnitPrice: it.UnitPrice.Decimal(),
			Unit:      it.Unit,
		}
	}

	o, err := h.orders.Create(r.Context(), order.CreateRequest{
		UserID:     in.UserID,
		Items:      items,
		Shipping:   in.Shipping.Decimal(),
		Tax:        in.Tax.Decimal(),
		Currency:   in.Currency,
		CouponCode: in.CouponCode,
		Status:     in.Status,
	}, req.CouponCode)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, toOrderResponse(*o))
}

func (h *Handler) ListOrders(w http.ResponseWriter, r *http.Request) {
	orders, err := h.orders.List(r.Context())
	if err != nil {
		writeError(w, r, err)
		return
	}
	out := make([]orderResponse, len(orders))
	for i, o := range orders {
		out[i] = toOrderResponse(o)
	}
	writeJSON(w, http.StatusOK, out)
}

func (h *Handler) GetOrder(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	o, err := h.orders.Get(r.Context(), id)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toOrderResponse(*o))
}

// UpdateOrderStatus serves PUT /api/orders/{id}/status.
func (h *Handler) UpdateOrderStatus(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	var req updateStatusRequest
	if err := decode(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}

	o, err := h.orders.UpdateStatus(r.Context(), id, req.Status)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toOrderResponse(*o))
}

func (h *Handler) DeleteOrder(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	if err := h.orders.Delete(r.Context(), id); err != nil {
		writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func toOrderResponse(o order.Order) orderResponse {
	resp := orderResponse{
		ID:        o.ID,
		UserID:    o.UserID,
		Items:     make([]orderItemJSON, len(o.Items)),
		Subtotal:  money.Number(o.Subtotal),
		Discount:  money.Number(o.Discount),
		Shipping:  money.Number(o.Shipping),
		Tax:       money.Number(o.Tax),
		Total:     money.Number(o.Total),
		Currency:  o.Currency,
		Status:    o.Status,
		CreatedAt: o.CreatedAt,
		UpdatedAt: o.UpdatedAt,
	}
	for i, it := range o.Items {
		resp.Items[i] = orderItemJSON{
			ProductID:  it.ProductID,
			Quantity:   it.Quantity,
			UnitPrice:  money.Number(it.UnitPrice),
			TotalPrice: money.Number(it.TotalPrice),
			Unit:       it.Unit,
		}
	}
	if o.CouponCode != "" {
		code := o.CouponCode
		resp.CouponCode = &code
	}
	return resp
}
