package repository

import (
	"context"
	"time"

	"github.com/xenking/storefront/internal/domain/product"
	"github.com/xenking/storefront/internal/money"
	"github.com/xenking/storefront/internal/storage"
)

var _ product.Repository = (*ProductRepository)(nil)

type productRow struct {
	ID                int64        `json:"id,omitempty"`
	Name              string       `json:"name"`
	Description       string       `json:"description,omitempty"`
	Price             money.Number `json:"price"`
	Currency          string       `json:"currency,omitempty"`
	Stock             int          `json:"stock"`
	Reserved          int          `json:"reserved"`
	LowStockThreshold *int         `json:"low_stock_threshold,omitempty"`
	Active            *bool        `json:"active,omitempty"`
	Images            []string     `json:"images,omitempty"`
	RelatedProductIDs []int64      `json:"related_product_ids,omitempty"`
	CategoryIDs       []string     `json:"category_ids,omitempty"`
	CreatedAt         time.Time    `json:"created_at"`
	UpdatedAt         time.Time    `json:"updated_at"`
}

type productPatchRow struct {
	Name              *string       `json:"name,omitempty"`
	Description       *string       `json:"description,omitempty"`
	Price             *money.Number `json:"price,omitempty"`
	Currency          *string       `json:"currency,omitempty"`
	Stock             *int          `json:"stock,omitempty"`
	Reserved          *int          `json:"reserved,omitempty"`
	LowStockThreshold *int          `json:"low_stock_threshold,omitempty"`
	Active            *bool         `json:"active,omitempty"`
	Images            *[]string     `json:"images,omitempty"`
	RelatedProductIDs *[]int64      `json:"related_product_ids,omitempty"`
	CategoryIDs       *[]string     `json:"category_ids,omitempty"`
	UpdatedAt         *time.Time    `json:"updated_at,omitempty"`
}

// ProductRepository implements product.Repository over a storage.Adapter.
type ProductRepository struct {
	c collection[productRow]
}

// NewProductRepository returns a ProductRepository backed by adapter.
func NewProductRepository(adapter storage.Adapter) *ProductRepository {
	return &ProductRepository{c: collection[productRow]{
		adapter:  adapter,
		name:     productsCollection,
		notFound: product.ErrNotFound,
	}}
}

// List returns every stored product in storage order.
func (r *ProductRepository) List(ctx context.Context) ([]product.Product, error) {
	rows, err := r.c.list(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]product.Product, len(rows))
	for i, row := range rows {
		out[i] = row.toDomain()
	}
	return out, nil
}

// Get returns the product with the given id, or product.ErrNotFound.
func (r *ProductRepository) Get(ctx context.Context, id int64) (*product.Product, error) {
	row, err := r.c.get(ctx, id)
	if err != nil {
		return nil, err
	}
	p := row.toDomain()
	return &p, nil
}

// Create stores p under a newly assigned id.
func (r *ProductRepository) Create(ctx context.Context, p product.Product) (*product.Product, error) {
	active := p.Active
	row, err := r.c.create(ctx, productRow{
		Name:              p.Name,
		Description:       p.Description,
		Price:             money.Number(p.Price),
		Currency:          p.Currency,
		Stock:             p.Stock,
		Reserved:          p.Reserved,
		LowStockThreshold: p.LowStockThreshold,
		Active:            &active,
		Images:            p.Images,
		RelatedProductIDs: p.RelatedProductIDs,
		CategoryIDs:       p.CategoryIDs,
		CreatedAt:         p.CreatedAt,
		UpdatedAt:         p.UpdatedAt,
	})
	if err != nil {
		return nil, err
	}
	out := row.toDomain()
	return &out, nil
}

// Update writes the non-nil fields of patch onto the product.
func (r *ProductRepository) Update(ctx context.Context, id int64, patch product.Patch) (*product.Product, error) {
	row, err := r.c.update(ctx, id, productPatchRow{
		Name:              patch.Name,
		Description:       patch.Description,
		Price:             money.Ptr(patch.Price),
		Currency:          patch.Currency,
		Stock:             patch.Stock,
		Reserved:          patch.Reserved,
		LowStockThreshold: patch.LowStockThreshold,
		Active:            patch.Active,
		Images:            patch.Images,
		RelatedProductIDs: patch.RelatedProductIDs,
		CategoryIDs:       patch.CategoryIDs,
		UpdatedAt:         patch.UpdatedAt,
	})
	if err != nil {
		return nil, err
	}
	out := row.toDomain()
	return &out, nil
}

// Delete removes the product with the given id.
func (r *ProductRepository) Delete(ctx context.Context, id int64) (bool, error) {
	return r.c.delete(ctx, id)
}

// toDomain maps a stored row. A product without an active flag is active.
func (row productRow) toDomain() product.Product {
	return product.Product{
		ID:                row.ID,
		Name:              row.Name,
		Description:       row.Description,
		Price:             row.Price.Decimal(),
		Currency:          row.Currency,
		Stock:             row.Stock,
		Reserved:          row.Reserved,
		LowStockThreshold: row.LowStockThreshold,
		Active:            row.Active == nil || *row.Active,
		Images:            row.Images,
		RelatedProductIDs: row.RelatedProductIDs,
		CategoryIDs:       row.CategoryIDs,
		CreatedAt:         row.CreatedAt,
		UpdatedAt:         row.UpdatedAt,
	}
}
