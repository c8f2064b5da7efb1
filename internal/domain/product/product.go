package product

import (
	"context"
	"fmt"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
)

// ErrNotFound is returned when a requested product does not exist.
var ErrNotFound = errors.New("product not found")

// Product represents a catalog item available for purchase. Stock is tracked
// on the product itself or, when variants exist, per variant.
type Product struct {
	ID       string
	Name     string
	Price    decimal.Decimal
	Category string
	Active   bool
	Stock    int
	Variants []Variant
}

// Variant is a specific sellable configuration of a product (size, color)
// with its own SKU, stock counter, and optional price override.
type Variant struct {
	ID         string
	SKU        string
	Price      *decimal.Decimal
	Stock      int
	Attributes map[string]string
}

// Variant returns the variant with the given id, if any.
func (p *Product) Variant(id string) (*Variant, bool) {
	for i := range p.Variants {
		if p.Variants[i].ID == id {
			return &p.Variants[i], true
		}
	}
	return nil, false
}

// UnitPrice returns the effective unit price for the given variant: the
// variant override when set, otherwise the product price. The variant must
// exist; callers resolve it first via Variant.
func (p *Product) UnitPrice(v *Variant) decimal.Decimal {
	if v != nil && v.Price != nil {
		return *v.Price
	}
	return p.Price
}

// Available returns the sellable stock for the product or, when v is
// non-nil, for that variant.
func (p *Product) Available(v *Variant) int {
	if v != nil {
		return v.Stock
	}
	return p.Stock
}

// InactiveError indicates an order referenced a deactivated product.
type InactiveError struct {
	ProductID string
}

func (e *InactiveError) Error() string {
	return fmt.Sprintf("product %s is not available for purchase", e.ProductID)
}

// VariantNotFoundError indicates a line item referenced a variant that does
// not belong to the product.
type VariantNotFoundError struct {
	ProductID string
	VariantID string
}

func (e *VariantNotFoundError) Error() string {
	return fmt.Sprintf("variant %s not found for product %s", e.VariantID, e.ProductID)
}

// InsufficientStockError indicates the requested quantity exceeds the stock
// available inside the current transaction.
type InsufficientStockError struct {
	ProductID string
	VariantID string
	Requested int
	Available int
}

func (e *InsufficientStockError) Error() string {
	if e.VariantID != "" {
		return fmt.Sprintf("insufficient stock for product %s variant %s: requested %d, available %d",
			e.ProductID, e.VariantID, e.Requested, e.Available)
	}
	return fmt.Sprintf("insufficient stock for product %s: requested %d, available %d",
		e.ProductID, e.Requested, e.Available)
}

// Repository defines read operations for the product catalog, used outside
// of order transactions.
type Repository interface {
	List(ctx context.Context) ([]Product, error)
	GetByID(ctx context.Context, id string) (*Product, error)
}

// TxStore is the stock contract consumed by the order transaction manager.
// Every method must run on the enclosing transaction so reads belong to its
// isolation snapshot and writes become visible only at commit.
type TxStore interface {
	// GetForUpdate reads a product and its variants with row locks held for
	// the remainder of the transaction.
	GetForUpdate(ctx context.Context, id string) (*Product, error)

	// DecrementStock applies a relative decrement to product (variantID
	// empty) or variant stock. It returns InsufficientStockError when the
	// resulting stock would drop below zero.
	DecrementStock(ctx context.Context, productID, variantID string, qty int) error

	// IncrementStock restores stock released by a cancellation. Restocking
	// has no upper bound.
	IncrementStock(ctx context.Context, productID, variantID string, qty int) error
}
