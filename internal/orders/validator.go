package orders

import (
	"context"
	"fmt"
	"math"
	"slices"
	"strings"
)

// Validator is the read-only cart pre-check. It never writes; the creation
// transaction repeats the stock check under row locks.
type Validator struct {
	Catalog CatalogReader
}

func (v *Validator) Validate(ctx context.Context, buyerID string, items []ItemInput) (ValidatedCart, error) {
	if strings.TrimSpace(buyerID) == "" {
		return ValidatedCart{}, fmt.Errorf("%w: buyer id is required", ErrInvalidInput)
	}
	lines, err := coalesce(items)
	if err != nil {
		return ValidatedCart{}, err
	}

	cart := ValidatedCart{Items: make([]LineItem, 0, len(lines))}
	var sellers []string
	for _, it := range lines {
		p, err := v.Catalog.LookupProduct(ctx, it.ProductID)
		if err != nil {
			return ValidatedCart{}, err
		}
		if it.Quantity > p.Stock {
			return ValidatedCart{}, &StockError{ProductID: it.ProductID, Requested: it.Quantity, Available: p.Stock}
		}
		if !slices.Contains(sellers, p.SellerID) {
			sellers = append(sellers, p.SellerID)
		}
		cart.Items = append(cart.Items, LineItem{ProductID: it.ProductID, Quantity: it.Quantity, UnitPrice: p.Price})
	}
	if len(sellers) > 1 {
		return ValidatedCart{}, &MixedSellerError{SellerIDs: sellers}
	}
	cart.SellerID = sellers[0]
	return cart, nil
}

// MaxLineQuantity bounds a single cart line, before and after merging. It
// matches the INT columns quantities are stored in.
const MaxLineQuantity = math.MaxInt32

// coalesce rejects malformed lines and merges repeated product ids, keeping
// the position of the first occurrence.
func coalesce(items []ItemInput) ([]ItemInput, error) {
	if len(items) == 0 {
		return nil, fmt.Errorf("%w: cart must contain at least one item", ErrInvalidInput)
	}
	out := make([]ItemInput, 0, len(items))
	pos := make(map[string]int, len(items))
	for _, it := range items {
		id := strings.TrimSpace(it.ProductID)
		if id == "" {
			return nil, fmt.Errorf("%w: product id is required", ErrInvalidInput)
		}
		if it.Quantity <= 0 {
			return nil, fmt.Errorf("%w: quantity must be positive for product %s", ErrInvalidInput, id)
		}
		if it.Quantity > MaxLineQuantity {
			return nil, fmt.Errorf("%w: quantity for product %s exceeds %d", ErrInvalidInput, id, MaxLineQuantity)
		}
		if i, ok := pos[id]; ok {
			if it.Quantity > MaxLineQuantity-out[i].Quantity {
				return nil, fmt.Errorf("%w: merged quantity for product %s exceeds %d", ErrInvalidInput, id, MaxLineQuantity)
			}
			out[i].Quantity += it.Quantity
			continue
		}
		pos[id] = len(out)
		out = append(out, ItemInput{ProductID: id, Quantity: it.Quantity})
	}
	return out, nil
}
