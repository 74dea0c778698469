package usecase

import (
	"context"

	"go.uber.org/zap"

	"chesapeake-backend/internal/domain"
)

type InventoryAdjustment struct {
	ProductKey string
	Quantity   int
}

// ProductKeyFor picks the provider product id, then the price id, then the order-level hint.
func ProductKeyFor(li domain.LineItem, hint string) string {
	switch {
	case li.ProductID != "":
		return li.ProductID
	case li.PriceID != "":
		return li.PriceID
	case hint != "":
		return hint
	default:
		return domain.UnknownProductKey
	}
}

// AggregateInventory sums purchased quantity per product key, in first-seen order.
// Shipping lines are ignored.
func AggregateInventory(items []domain.LineItem, hint string) []InventoryAdjustment {
	idx := map[string]int{}
	var out []InventoryAdjustment
	for _, li := range items {
		if li.IsShipping() {
			continue
		}
		qty := li.Quantity
		if qty <= 0 {
			qty = 1
		}
		key := ProductKeyFor(li, hint)
		if i, ok := idx[key]; ok {
			out[i].Quantity += qty
			continue
		}
		idx[key] = len(out)
		out = append(out, InventoryAdjustment{ProductKey: key, Quantity: qty})
	}
	return out
}

// adjustInventory runs after the order exists, so failures are logged rather than returned:
// a redelivery would stop at the idempotency guard and never reach this point again.
func (s *ReconcileService) adjustInventory(ctx context.Context, adj []InventoryAdjustment) {
	for _, a := range adj {
		if a.ProductKey == domain.UnknownProductKey {
			s.log().Warn("skipping inventory for unidentified line item", zap.Int("quantity", a.Quantity))
			continue
		}
		found, err := s.Products.DecrementInventory(ctx, a.ProductKey, a.Quantity)
		if err != nil {
			s.log().Error("inventory decrement failed",
				zap.String("product_key", a.ProductKey),
				zap.Int("quantity", a.Quantity),
				zap.Error(err),
			)
			continue
		}
		if !found {
			s.log().Warn("product not found for inventory update", zap.String("product_key", a.ProductKey))
		}
	}
}
