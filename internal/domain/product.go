package domain

// Product holds the inventory fields the reconciliation core touches.
// QuantityAvailable is nil when the catalog never set a quantity.
type Product struct {
	ID                string `json:"id"`
	StripeProductID   string `json:"stripeProductId,omitempty"`
	Name              string `json:"name"`
	PriceCents        int64  `json:"priceCents"`
	QuantityAvailable *int   `json:"quantityAvailable"`
	IsSold            bool   `json:"isSold"`
}

// Decrement applies a purchase of qty units: the quantity floors at zero and
// the sold flag only ever flips to true.
func (p *Product) Decrement(qty int) {
	if p.QuantityAvailable == nil {
		zero := 0
		p.QuantityAvailable = &zero
		p.IsSold = true
		return
	}
	left := *p.QuantityAvailable - qty
	if left <= 0 {
		left = 0
		p.IsSold = true
	}
	p.QuantityAvailable = &left
}
