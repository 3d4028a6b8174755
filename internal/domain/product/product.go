package product

import (
	"context"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
)

// ErrNotFound is returned when a requested product does not exist.
var ErrNotFound = errors.New("product not found")

// Product represents a catalog item available for purchase.
type Product struct {
	ID         string
	Name       string
	SKU        string
	Price      decimal.Decimal
	CategoryID string
	Stock      int
	Image      Image
	Variants   []Variant
}

// Variant is a purchasable option of a product. A nil Price means the
// variant sells at the product price.
type Variant struct {
	ID      string
	Name    string
	SKU     string
	Price   *decimal.Decimal
	Stock   int
	Options map[string]string
}

// Image holds responsive image URLs for a product.
type Image struct {
	Thumbnail string
	Mobile    string
	Tablet    string
	Desktop   string
}

// Variant returns the variant with the given id.
func (p *Product) Variant(id string) (*Variant, bool) {
	for i := range p.Variants {
		if p.Variants[i].ID == id {
			return &p.Variants[i], true
		}
	}
	return nil, false
}

// PriceOf returns the unit price of the product, or of its variant when one
// is given and carries its own price.
func (p *Product) PriceOf(v *Variant) decimal.Decimal {
	if v != nil && v.Price != nil {
		return *v.Price
	}
	return p.Price
}

// Repository defines read operations for the product catalog.
type Repository interface {
	// GetByIDs returns products matching any of the given IDs, with their
	// variants. Unknown IDs are silently skipped.
	GetByIDs(ctx context.Context, ids []string) ([]Product, error)
}
