package handler

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/xenking/storefront/internal/domain/apperr"
	"github.com/xenking/storefront/internal/domain/product"
	"github.com/xenking/storefront/internal/money"
)

var (
	errNameRequired  = apperr.Validation("name is required")
	errNegativePrice = apperr.Validation("price must not be negative")
	errNegativeStock = apperr.Validation("stock and reserved must not be negative")
)

type reviewResponse struct {
	ID        int64     `json:"id"`
	ProductID int64     `json:"productId"`
	UserID    string    `json:"userId,omitempty"`
	Rating    int       `json:"rating"`
	Title     string    `json:"title,omitempty"`
	Comment   string    `json:"comment,omitempty"`
	Published bool      `json:"published"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

type productResponse struct {
	ID                int64            `json:"id"`
	Name              string           `json:"name"`
	Description       string           `json:"description,omitempty"`
	Price             money.Number     `json:"price"`
	Currency          string           `json:"currency,omitempty"`
	Stock             int              `json:"stock"`
	Reserved          int              `json:"reserved"`
	LowStockThreshold *int             `json:"lowStockThreshold,omitempty"`
	Active            bool             `json:"active"`
	Images            []string         `json:"images"`
	RelatedProductIDs []int64          `json:"relatedProductIds"`
	CategoryIDs       []string         `json:"categoryIds"`
	Reviews           []reviewResponse `json:"reviews"`
	RealStock         int              `json:"realStock"`
	InStock           bool             `json:"inStock"`
	IsLowStock        bool             `json:"isLowStock"`
	AvgRating         float64          `json:"avgRating"`
	ReviewCount       int              `json:"reviewCount"`
	MainImage         *string          `json:"mainImage"`
	CreatedAt         time.Time        `json:"createdAt"`
	UpdatedAt         time.Time        `json:"updatedAt"`
}

type createProductRequest struct {
	Name              string       `json:"name"`
	Description       string       `json:"description"`
	Price             money.Number `json:"price"`
	Currency          string       `json:"currency"`
	Stock             int          `json:"stock"`
	Reserved          int          `json:"reserved"`
	LowStockThreshold *int         `json:"lowStockThreshold"`
	Active            *bool        `json:"active"`
	Images            []string     `json:"images"`
	RelatedProductIDs []int64      `json:"relatedProductIds"`
	CategoryIDs       []string     `json:"categoryIds"`
}

type updateProductRequest struct {
	Name              *string       `json:"name"`
	Description       *string       `json:"description"`
	Price             *money.Number `json:"price"`
	Currency          *string       `json:"currency"`
	Stock             *int          `json:"stock"`
	Reserved          *int          `json:"reserved"`
	LowStockThreshold *int          `json:"lowStockThreshold"`
	Active            *bool         `json:"active"`
	Images            *[]string     `json:"images"`
	RelatedProductIDs *[]int64      `json:"relatedProductIds"`
	CategoryIDs       *[]string     `json:"categoryIds"`
}

type addReviewRequest struct {
	UserID  string `json:"userId"`
	Rating  int    `json:"rating"`
	Title   string `json:"title"`
	Comment string `json:"comment"`
}

// ListProducts serves GET /api/products. ?active=true hides inactive products.
// maxBatchIDs caps the ids query of ListProducts.
const maxBatchIDs = 100

var errBadIDs = apperr.Validation("ids must be a comma-separated list of positive integers")

// parseIDs splits the ids query value. Duplicates are kept; the response
// follows the requested order.
func parseIDs(v string) ([]int64, error) {
	parts := strings.Split(v, ",")
	if len(parts) > maxBatchIDs {
		return nil, apperr.Validation("at most " + strconv.Itoa(maxBatchIDs) + " ids per request")
	}
	ids := make([]int64, 0, len(parts))
	for _, part := range parts {
		id, err := strconv.ParseInt(strings.TrimSpace(part), 10, 64)
		if err != nil || id <= 0 {
			return nil, errBadIDs
		}
		ids = append(ids, id)
	}
	return ids, nil
}

// ListProducts serves the catalog. With ?ids=1,2,3 it returns exactly those
// products in that order and fails with 404 if any is missing; the active
// filter does not apply then.
func (h *Handler) ListProducts(w http.ResponseWriter, r *http.Request) {
	if r.URL.Query().Has("ids") {
		h.getProducts(w, r)
		return
	}

	var f product.ListFilter
	if v := r.URL.Query().Get("active"); v != "" {
		active, err := strconv.ParseBool(v)
		if err != nil {
			writeError(w, r, apperr.Validation("active must be a boolean"))
			return
		}
		f.ActiveOnly = active
	}

	products, err := h.products.List(r.Context(), f)
	if err != nil {
		writeError(w, r, err)
		return
	}
	out := make([]productResponse, len(products))
	for i, p := range products {
		out[i] = toProductResponse(p)
	}
	writeJSON(w, http.StatusOK, out)
}

func (h *Handler) getProducts(w http.ResponseWriter, r *http.Request) {
	ids, err := parseIDs(r.URL.Query().Get("ids"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	products, err := h.products.GetMany(r.Context(), ids)
	if err != nil {
		writeError(w, r, err)
		return
	}
	out := make([]productResponse, len(products))
	for i, p := range products {
		out[i] = toProductResponse(p)
	}
	writeJSON(w, http.StatusOK, out)
}

func (h *Handler) GetProduct(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	p, err := h.products.Get(r.Context(), id)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toProductResponse(*p))
}

func (h *Handler) CreateProduct(w http.ResponseWriter, r *http.Request) {
	var req createProductRequest
	if err := decode(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	if strings.TrimSpace(req.Name) == "" {
		writeError(w, r, errNameRequired)
		return
	}
	if req.Price.Decimal().IsNegative() {
		writeError(w, r, errNegativePrice)
		return
	}
	if req.Stock < 0 || req.Reserved < 0 {
		writeError(w, r, errNegativeStock)
		return
	}

	p, err := h.products.Create(r.Context(), product.Product{
		Name:              strings.TrimSpace(req.Name),
		Description:       req.Description,
		Price:             req.Price.Decimal(),
		Currency:          req.Currency,
		Stock:             req.Stock,
		Reserved:          req.Reserved,
		LowStockThreshold: req.LowStockThreshold,
		Active:            req.Active == nil || *req.Active,
		Images:            req.Images,
		RelatedProductIDs: req.RelatedProductIDs,
		CategoryIDs:       req.CategoryIDs,
	})
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, toProductResponse(product.Enhance(*p)))
}

func (h *Handler) UpdateProduct(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	var req updateProductRequest
	if err := decode(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	if req.Name != nil && strings.TrimSpace(*req.Name) == "" {
		writeError(w, r, errNameRequired)
		return
	}
	if req.Price != nil && req.Price.Decimal().IsNegative() {
		writeError(w, r, errNegativePrice)
		return
	}
	if (req.Stock != nil && *req.Stock < 0) || (req.Reserved != nil && *req.Reserved < 0) {
		writeError(w, r, errNegativeStock)
		return
	}

	if _, err := h.products.Update(r.Context(), id, product.Patch{
		Name:              req.Name,
		Description:       req.Description,
		Price:             money.DecimalPtr(req.Price),
		Currency:          req.Currency,
		Stock:             req.Stock,
		Reserved:          req.Reserved,
		LowStockThreshold: req.LowStockThreshold,
		Active:            req.Active,
		Images:            req.Images,
		RelatedProductIDs: req.RelatedProductIDs,
		CategoryIDs:       req.CategoryIDs,
	}); err != nil {
		writeError(w, r, err)
		return
	}

	// Re-read so the response carries reviews and computed fields.
	p, err := h.products.Get(r.Context(), id)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toProductResponse(*p))
}

func (h *Handler) DeleteProduct(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	if err := h.products.Delete(r.Context(), id); err != nil {
		writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// AddReview serves POST /api/products/{id}/reviews.
func (h *Handler) AddReview(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	var req addReviewRequest
	if err := decode(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}

	rv, err := h.products.AddReview(r.Context(), product.ReviewInput{
		ProductID: id,
		UserID:    req.UserID,
		Rating:    req.Rating,
		Title:     req.Title,
		Comment:   req.Comment,
	})
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, toReviewResponse(*rv))
}

func toProductResponse(p product.Enhanced) productResponse {
	resp := productResponse{
		ID:                p.ID,
		Name:              p.Name,
		Description:       p.Description,
		Price:             money.Number(p.Price),
		Currency:          p.Currency,
		Stock:             p.Stock,
		Reserved:          p.Reserved,
		LowStockThreshold: p.LowStockThreshold,
		Active:            p.Active,
		Images:            nonNil(p.Images),
		RelatedProductIDs: nonNil(p.RelatedProductIDs),
		CategoryIDs:       nonNil(p.CategoryIDs),
		Reviews:           make([]reviewResponse, len(p.Reviews)),
		RealStock:         p.RealStock,
		InStock:           p.InStock,
		IsLowStock:        p.IsLowStock,
		AvgRating:         p.AvgRating,
		ReviewCount:       p.ReviewCount,
		CreatedAt:         p.CreatedAt,
		UpdatedAt:         p.UpdatedAt,
	}
	for i, rv := range p.Reviews {
		resp.Reviews[i] = toReviewResponse(rv)
	}
	if p.MainImage != "" {
		img := p.MainImage
		resp.MainImage = &img
	}
	return resp
}

func toReviewResponse(rv product.Review) reviewResponse {
	return reviewResponse{
		ID:        rv.ID,
		ProductID: rv.ProductID,
		UserID:    rv.UserID,
		Rating:    rv.Rating,
		Title:     rv.Title,
		Comment:   rv.Comment,
		Published: rv.Published,
		CreatedAt: rv.CreatedAt,
		UpdatedAt: rv.UpdatedAt,
	}
}

func nonNil[T any](s []T) []T {
	if s == nil {
		return []T{}
	}
	return s
}
