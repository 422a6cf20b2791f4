// Package shipping quotes tenant shipping methods for a cart.
package shipping

import (
	"math"

	"github.com/vitrine-field/api/internal/domain"
)

// AggregateDimensions sums weight over every line and volume over the lines whose product has
// all three dimensions, then reports the package as a cube of equal volume. Lines with a
// non-positive quantity contribute nothing.
func AggregateDimensions(lines []domain.CartLine) domain.ProductDimensions {
	var weight, volume float64
	for _, line := range lines {
		if line.Quantity <= 0 {
			continue
		}
		qty := float64(line.Quantity)
		p := line.Product
		if p.Weight != nil {
			weight += *p.Weight * qty
		}
		if p.Length != nil && p.Width != nil && p.Height != nil {
			volume += *p.Length * *p.Width * *p.Height * qty
		}
	}

	side := math.Cbrt(volume)
	return domain.ProductDimensions{
		Weight: weight,
		Length: side,
		Width:  side,
		Height: side,
		Volume: volume,
	}
}
