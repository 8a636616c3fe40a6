package repository

import (
	"context"
	"time"

	"github.com/xenking/storefront/internal/domain/apperr"
	"github.com/xenking/storefront/internal/domain/product"
	"github.com/xenking/storefront/internal/storage"
)

var _ product.ReviewRepository = (*ReviewRepository)(nil)

// ErrReviewNotFound is returned when a review id does not exist.
var ErrReviewNotFound = apperr.New(apperr.KindNotFound, "review not found")

type reviewRow struct {
	ID        int64     `json:"id,omitempty"`
	ProductID int64     `json:"product_id"`
	UserID    string    `json:"user_id,omitempty"`
	Rating    int       `json:"rating"`
	Title     string    `json:"title,omitempty"`
	Comment   string    `json:"comment,omitempty"`
	Published bool      `json:"published"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// ReviewRepository stores product reviews.
type ReviewRepository struct {
	c collection[reviewRow]
}

// NewReviewRepository returns a ReviewRepository backed by adapter.
func NewReviewRepository(adapter storage.Adapter) *ReviewRepository {
	return &ReviewRepository{c: collection[reviewRow]{
		adapter:  adapter,
		name:     reviewsCollection,
		notFound: ErrReviewNotFound,
	}}
}

func (r *ReviewRepository) List(ctx context.Context) ([]product.Review, error) {
	rows, err := r.c.list(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]product.Review, len(rows))
	for i, row := range rows {
		out[i] = row.toDomain()
	}
	return out, nil
}

// ListByProduct returns the reviews of one product, published or not.
func (r *ReviewRepository) ListByProduct(ctx context.Context, productID int64) ([]product.Review, error) {
	rows, err := r.c.list(ctx)
	if err != nil {
		return nil, err
	}
	var out []product.Review
	for _, row := range rows {
		if row.ProductID == productID {
			out = append(out, row.toDomain())
		}
	}
	return out, nil
}

func (r *ReviewRepository) Create(ctx context.Context, rv product.Review) (*product.Review, error) {
	row, err := r.c.create(ctx, reviewRow{
		ProductID: rv.ProductID,
		UserID:    rv.UserID,
		Rating:    rv.Rating,
		Title:     rv.Title,
		Comment:   rv.Comment,
		Published: rv.Published,
		CreatedAt: rv.CreatedAt,
		UpdatedAt: rv.UpdatedAt,
	})
	if err != nil {
		return nil, err
	}
	out := row.toDomain()
	return &out, nil
}

func (r *ReviewRepository) Delete(ctx context.Context, id int64) (bool, error) {
	return r.c.delete(ctx, id)
}

func (row reviewRow) toDomain() product.Review {
	return product.Review{
		ID:        row.ID,
		ProductID: row.ProductID,
		UserID:    row.UserID,
		Rating:    row.Rating,
		Title:     row.Title,
		Comment:   row.Comment,
		Published: row.Published,
		CreatedAt: row.CreatedAt,
		UpdatedAt: row.UpdatedAt,
	}
}
