package cart

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/noah-isme/storefront-checkout/internal/pricing"
)

var (
	// ErrNotFound indicates the requested cart line could not be located.
	ErrNotFound = errors.New("cart item not found")
	// ErrProductNotFound is returned by catalogs when a product id is unknown.
	ErrProductNotFound = errors.New("product not found")
	// ErrInvalidInput is returned when the provided payload is invalid.
	ErrInvalidInput = errors.New("invalid input")
)

// MaxQuantity caps a single line.
const MaxQuantity = 99

// Service encapsulates cart domain operations.
type Service struct {
	Store    Store
	Products Catalog
	Now      func() time.Time
}

func (s *Service) now() time.Time {
	if s != nil && s.Now != nil {
		return s.Now()
	}
	return time.Now()
}

func (s *Service) ready() error {
	if s == nil || s.Store == nil {
		return errors.New("cart service not configured")
	}
	return nil
}

// Get loads the user's cart.
func (s *Service) Get(ctx context.Context, userID string) (Cart, error) {
	if err := s.ready(); err != nil {
		return Cart{}, err
	}
	c, err := s.Store.GetCart(ctx, userID)
	if err != nil {
		return Cart{}, err
	}
	c.UserID = userID
	return c, nil
}

// LineItems returns the cart in pricing form.
func (s *Service) LineItems(ctx context.Context, userID string) ([]pricing.LineItem, error) {
	c, err := s.Get(ctx, userID)
	if err != nil {
		return nil, err
	}
	return c.LineItems(), nil
}

// AddItem inserts a line or increments an existing one for the same product and variant.
// The unit price is the variant price when a variant is selected, otherwise the product price.
func (s *Service) AddItem(ctx context.Context, userID, productID, variantID string, qty int) (Cart, error) {
	if err := s.ready(); err != nil {
		return Cart{}, err
	}
	if s.Products == nil {
		return Cart{}, errors.New("cart catalog not configured")
	}
	productID = strings.TrimSpace(productID)
	variantID = strings.TrimSpace(variantID)
	if productID == "" {
		return Cart{}, fmt.Errorf("productId is required: %w", ErrInvalidInput)
	}
	if qty <= 0 {
		return Cart{}, fmt.Errorf("qty must be positive: %w", ErrInvalidInput)
	}
	product, err := s.Products.GetProduct(ctx, productID)
	if err != nil {
		return Cart{}, err
	}
	unitPrice := product.Price
	name := product.Name
	if variantID != "" {
		variant, ok := product.Variant(variantID)
		if !ok {
			return Cart{}, fmt.Errorf("variant does not belong to product: %w", ErrInvalidInput)
		}
		unitPrice = variant.Price
		if variant.Name != "" {
			name = product.Name + " - " + variant.Name
		}
	}
	if unitPrice < 0 {
		unitPrice = 0
	}

	c, err := s.Get(ctx, userID)
	if err != nil {
		return Cart{}, err
	}
	id := lineID(productID, variantID)
	items := append([]Item(nil), c.Items...)
	found := false
	for i := range items {
		if items[i].ID == id {
			items[i].Quantity = clampQty(items[i].Quantity + qty)
			items[i].UnitPrice = unitPrice
			found = true
			break
		}
	}
	if !found {
		items = append(items, Item{
			ID:        id,
			ProductID: productID,
			VariantID: variantID,
			Name:      name,
			Image:     product.Image,
			UnitPrice: unitPrice,
			Quantity:  clampQty(qty),
		})
	}
	c.Items = items
	return s.save(ctx, c)
}

// UpdateQty sets the quantity of a line. A quantity below 1 removes the line.
func (s *Service) UpdateQty(ctx context.Context, userID, itemID string, qty int) (Cart, error) {
	if qty < 1 {
		return s.RemoveItem(ctx, userID, itemID)
	}
	c, err := s.Get(ctx, userID)
	if err != nil {
		return Cart{}, err
	}
	items := append([]Item(nil), c.Items...)
	for i := range items {
		if items[i].ID == itemID {
			items[i].Quantity = clampQty(qty)
			c.Items = items
			return s.save(ctx, c)
		}
	}
	return Cart{}, ErrNotFound
}

// RemoveItem deletes a line from the cart.
func (s *Service) RemoveItem(ctx context.Context, userID, itemID string) (Cart, error) {
	c, err := s.Get(ctx, userID)
	if err != nil {
		return Cart{}, err
	}
	items := make([]Item, 0, len(c.Items))
	for _, it := range c.Items {
		if it.ID == itemID {
			continue
		}
		items = append(items, it)
	}
	if len(items) == len(c.Items) {
		return Cart{}, ErrNotFound
	}
	c.Items = items
	return s.save(ctx, c)
}

// Clear empties the user's cart.
func (s *Service) Clear(ctx context.Context, userID string) error {
	if err := s.ready(); err != nil {
		return err
	}
	return s.Store.DeleteCart(ctx, userID)
}

func (s *Service) save(ctx context.Context, c Cart) (Cart, error) {
	c.UpdatedAt = s.now().UTC()
	if err := s.Store.SaveCart(ctx, c); err != nil {
		return Cart{}, fmt.Errorf("save cart: %w", err)
	}
	return c, nil
}

func clampQty(q int) int {
	if q < 1 {
		return 1
	}
	if q > MaxQuantity {
		return MaxQuantity
	}
	return q
}
