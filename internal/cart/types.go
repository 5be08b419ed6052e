package cart

import (
	"context"
	"time"

	"github.com/noah-isme/storefront-checkout/internal/pricing"
)

// Variant is a purchasable option of a product with its own price.
type Variant struct {
	ID    string  `json:"id"`
	Name  string  `json:"name"`
	Price float64 `json:"price"`
}

// Product is the catalogue entry a cart line is priced from.
type Product struct {
	ID       string    `json:"id"`
	Name     string    `json:"name"`
	Price    float64   `json:"price"`
	Image    string    `json:"image,omitempty"`
	Variants []Variant `json:"variants,omitempty"`
}

// Variant returns the variant with the given id.
func (p Product) Variant(id string) (Variant, bool) {
	for _, v := range p.Variants {
		if v.ID == id {
			return v, true
		}
	}
	return Variant{}, false
}

// Item is a single line in a customer's cart.
type Item struct {
	ID        string  `json:"id"`
	ProductID string  `json:"productId"`
	VariantID string  `json:"variantId,omitempty"`
	Name      string  `json:"name"`
	Image     string  `json:"image,omitempty"`
	UnitPrice float64 `json:"unitPrice"`
	Quantity  int     `json:"quantity"`
}

// Cart is the document owned by a single signed-in user.
type Cart struct {
	UserID    string    `json:"userId"`
	Items     []Item    `json:"items"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// LineItems converts the cart into the pricing engine's input.
func (c Cart) LineItems() []pricing.LineItem {
	out := make([]pricing.LineItem, 0, len(c.Items))
	for _, it := range c.Items {
		out = append(out, pricing.LineItem{ID: it.ID, UnitPrice: it.UnitPrice, Quantity: it.Quantity})
	}
	return out
}

// Store persists cart documents keyed by user.
// GetCart returns an empty cart, not an error, when the user has none yet.
type Store interface {
	GetCart(ctx context.Context, userID string) (Cart, error)
	SaveCart(ctx context.Context, c Cart) error
	DeleteCart(ctx context.Context, userID string) error
}

// Catalog resolves products referenced by cart lines.
type Catalog interface {
	GetProduct(ctx context.Context, id string) (Product, error)
}

func lineID(productID, variantID string) string {
	if variantID == "" {
		return productID
	}
	return productID + ":" + variantID
}
