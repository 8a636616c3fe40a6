package product

import (
	"context"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/go-faster/errors"
	"golang.org/x/sync/errgroup"
)

// MinCommentLength is the shortest accepted non-empty review comment.
const MinCommentLength = 10

// maxParallelLoads bounds concurrent lookups in GetMany.
const maxParallelLoads = 8

// ListFilter narrows List results.
type ListFilter struct {
	ActiveOnly bool
}

// ReviewInput holds the caller-supplied fields of a new review.
type ReviewInput struct {
	ProductID int64
	UserID    string
	Rating    int
	Title     string
	Comment   string
}

// Service serves enhanced product reads and catalog writes.
type Service struct {
	products Repository
	reviews  ReviewRepository
	now      func() time.Time
}

// NewService creates a product Service.
func NewService(products Repository, reviews ReviewRepository) *Service {
	return &Service{
		products: products,
		reviews:  reviews,
		now:      time.Now,
	}
}

// List returns all products with their published reviews attached and
// computed fields derived.
func (s *Service) List(ctx context.Context, f ListFilter) ([]Enhanced, error) {
	products, err := s.products.List(ctx)
	if err != nil {
		return nil, errors.Wrap(err, "list products")
	}
	reviews, err := s.reviews.List(ctx)
	if err != nil {
		return nil, errors.Wrap(err, "list reviews")
	}

	byProduct := make(map[int64][]Review)
	for _, r := range reviews {
		if r.Published {
			byProduct[r.ProductID] = append(byProduct[r.ProductID], r)
		}
	}

	out := make([]Enhanced, 0, len(products))
	for _, p := range products {
		if f.ActiveOnly && !p.Active {
			continue
		}
		p.Reviews = byProduct[p.ID]
		out = append(out, Enhance(p))
	}
	return out, nil
}

// Get returns a single enhanced product.
func (s *Service) Get(ctx context.Context, id int64) (*Enhanced, error) {
	p, err := s.products.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	reviews, err := s.reviews.ListByProduct(ctx, id)
	if err != nil {
		return nil, errors.Wrapf(err, "list reviews of product %d", id)
	}
	p.Reviews = published(reviews)

	e := Enhance(*p)
	return &e, nil
}

// GetMany loads the given products concurrently and returns them in the
// order of ids. Any missing product fails the whole call.
func (s *Service) GetMany(ctx context.Context, ids []int64) ([]Enhanced, error) {
	out := make([]Enhanced, len(ids))

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(maxParallelLoads)
	for i, id := range ids {
		g.Go(func() error {
			e, err := s.Get(ctx, id)
			if err != nil {
				return errors.Wrapf(err, "product %d", id)
			}
			out[i] = *e
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}

// Create stores a new product, stamping its timestamps.
func (s *Service) Create(ctx context.Context, p Product) (*Product, error) {
	now := s.now().UTC()
	p.ID = 0
	p.Reviews = nil
	p.CreatedAt = now
	p.UpdatedAt = now
	return s.products.Create(ctx, p)
}

// Update applies patch to the product and refreshes its UpdatedAt.
func (s *Service) Update(ctx context.Context, id int64, patch Patch) (*Product, error) {
	if _, err := s.products.Get(ctx, id); err != nil {
		return nil, err
	}
	now := s.now().UTC()
	patch.UpdatedAt = &now
	return s.products.Update(ctx, id, patch)
}

// Delete removes the product together with its reviews, so a product that
// later reuses the id starts without any.
func (s *Service) Delete(ctx context.Context, id int64) error {
	removed, err := s.products.Delete(ctx, id)
	if err != nil {
		return err
	}
	if !removed {
		return ErrNotFound
	}

	reviews, err := s.reviews.ListByProduct(ctx, id)
	if err != nil {
		return errors.Wrapf(err, "list reviews of product %d", id)
	}
	for _, r := range reviews {
		if _, err := s.reviews.Delete(ctx, r.ID); err != nil {
			return errors.Wrapf(err, "delete review %d of product %d", r.ID, id)
		}
	}
	return nil
}

// AddReview validates in and stores it as a published review of an
// existing product.
func (s *Service) AddReview(ctx context.Context, in ReviewInput) (*Review, error) {
	if err := ValidateReview(in.Rating, in.Comment); err != nil {
		return nil, err
	}
	if _, err := s.products.Get(ctx, in.ProductID); err != nil {
		return nil, err
	}

	now := s.now().UTC()
	return s.reviews.Create(ctx, Review{
		ProductID: in.ProductID,
		UserID:    in.UserID,
		Rating:    in.Rating,
		Title:     strings.TrimSpace(in.Title),
		Comment:   strings.TrimSpace(in.Comment),
		Published: true,
		CreatedAt: now,
		UpdatedAt: now,
	})
}

// ValidateReview checks the rating range and minimum comment length.
func ValidateReview(rating int, comment string) error {
	if rating < 1 || rating > 5 {
		return ErrInvalidRating
	}
	comment = strings.TrimSpace(comment)
	if comment != "" && utf8.RuneCountInString(comment) < MinCommentLength {
		return ErrCommentTooShort
	}
	return nil
}

func published(reviews []Review) []Review {
	out := make([]Review, 0, len(reviews))
	for _, r := range reviews {
		if r.Published {
			out = append(out, r)
		}
	}
	return out
}
