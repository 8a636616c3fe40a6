package product

import "math"

// DefaultLowStockThreshold applies when a product has no threshold set.
const DefaultLowStockThreshold = 5

// Enhanced is a product with its read-only computed fields.
type Enhanced struct {
	Product

	RealStock   int
	InStock     bool
	IsLowStock  bool
	AvgRating   float64
	ReviewCount int
	MainImage   string
}

// Enhance derives stock availability, rating and main image from p and the
// reviews attached to it. It does not modify p.
func Enhance(p Product) Enhanced {
	threshold := DefaultLowStockThreshold
	if p.LowStockThreshold != nil {
		threshold = *p.LowStockThreshold
	}

	realStock := p.Stock - p.Reserved

	e := Enhanced{
		Product:     p,
		RealStock:   realStock,
		InStock:     realStock > 0,
		IsLowStock:  realStock > 0 && realStock <= threshold,
		ReviewCount: len(p.Reviews),
	}
	if len(p.Reviews) > 0 {
		sum := 0
		for _, r := range p.Reviews {
			sum += r.Rating
		}
		e.AvgRating = round1(float64(sum) / float64(len(p.Reviews)))
	}
	if len(p.Images) > 0 {
		e.MainImage = p.Images[0]
	}
	return e
}

func round1(v float64) float64 {
	return math.Round(v*10) / 10
}
