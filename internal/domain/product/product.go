package product

import (
	"context"
	"time"

	"github.com/shopspring/decimal"

	"github.com/xenking/storefront/internal/domain/apperr"
)

var (
	// ErrNotFound is returned when a requested product does not exist.
	ErrNotFound = apperr.New(apperr.KindNotFound, "product not found")
	// ErrInvalidRating is returned for review ratings outside 1..5.
	ErrInvalidRating = apperr.Validation("rating must be between 1 and 5")
	// ErrCommentTooShort is returned for non-empty review comments under
	// MinCommentLength characters.
	ErrCommentTooShort = apperr.Validation("comment must be at least 10 characters")
)

// Product is a catalog item as stored. Reviews are attached at read time.
type Product struct {
	ID                int64
	Name              string
	Description       string
	Price             decimal.Decimal
	Currency          string
	Stock             int
	Reserved          int
	LowStockThreshold *int
	Active            bool
	Images            []string
	RelatedProductIDs []int64
	CategoryIDs       []string
	Reviews           []Review
	CreatedAt         time.Time
	UpdatedAt         time.Time
}

// Patch is a partial product update. Nil fields are left untouched.
type Patch struct {
	Name              *string
	Description       *string
	Price             *decimal.Decimal
	Currency          *string
	Stock             *int
	Reserved          *int
	LowStockThreshold *int
	Active            *bool
	Images            *[]string
	RelatedProductIDs *[]int64
	CategoryIDs       *[]string
	UpdatedAt         *time.Time
}

// Review is a customer rating of a product.
type Review struct {
	ID        int64
	ProductID int64
	UserID    string
	Rating    int
	Title     string
	Comment   string
	Published bool
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Repository defines persistence operations for products.
type Repository interface {
	List(ctx context.Context) ([]Product, error)
	Get(ctx context.Context, id int64) (*Product, error)
	Create(ctx context.Context, p Product) (*Product, error)
	Update(ctx context.Context, id int64, patch Patch) (*Product, error)
	Delete(ctx context.Context, id int64) (bool, error)
}

// ReviewRepository defines persistence operations for reviews.
type ReviewRepository interface {
	List(ctx context.Context) ([]Review, error)
	ListByProduct(ctx context.Context, productID int64) ([]Review, error)
	Create(ctx context.Context, r Review) (*Review, error)
	Delete(ctx context.Context, id int64) (bool, error)
}
