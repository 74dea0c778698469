package domain

import (
	"strconv"
	"strings"
)

// Webhook event types delivered by the payment provider.
const (
	EventCheckoutCompleted    = "checkout.session.completed"
	EventCheckoutExpired      = "checkout.session.expired"
	EventPaymentSucceeded     = "payment_intent.succeeded"
	EventPaymentFailed        = "payment_intent.payment_failed"
	ShippingProductKey        = "shipping"
	UnknownProductKey         = "unknown"
	customOrderProductKeyPref = "custom_order:"
)

type WebhookEvent struct {
	ID        string
	Type      string
	SessionID string
}

type LineItem struct {
	ID              string
	Description     string
	ProductID       string
	ProductName     string
	PriceID         string
	Quantity        int
	UnitAmountCents int64
	AmountTotal     int64
}

// IsShipping reports whether the line item is a shipping charge rather than merchandise.
func (l LineItem) IsShipping() bool {
	for _, s := range []string{l.Description, l.ProductName} {
		if strings.Contains(strings.ToLower(s), "shipping") {
			return true
		}
	}
	return false
}

// UnitPriceCents prefers the unit amount and derives it from the line total otherwise.
func (l LineItem) UnitPriceCents() int64 {
	if l.UnitAmountCents > 0 {
		return l.UnitAmountCents
	}
	if l.Quantity > 0 {
		return l.AmountTotal / int64(l.Quantity)
	}
	return l.AmountTotal
}

type CheckoutSession struct {
	ID              string
	PaymentIntentID string
	InvoiceID       string
	Metadata        map[string]string
	AmountTotal     int64
	AmountSubtotal  int64
	ShippingCents   int64
	Currency        string
	CustomerEmail   string
	CustomerName    string
	ShippingName    string
	ShippingAddress Address
	CardLast4       string
	CardBrand       string
	LineItems       []LineItem
}

// IdempotencyKey is the payment intent id, or the session id for sessions that never created one.
func (s *CheckoutSession) IdempotencyKey() string {
	if s.PaymentIntentID != "" {
		return s.PaymentIntentID
	}
	return s.ID
}

// MerchandiseItems returns the line items with shipping charges filtered out.
func (s *CheckoutSession) MerchandiseItems() []LineItem {
	out := make([]LineItem, 0, len(s.LineItems))
	for _, li := range s.LineItems {
		if li.IsShipping() {
			continue
		}
		out = append(out, li)
	}
	return out
}

// OrderKind is the closed set of payment purposes carried in session metadata.
type OrderKind interface {
	isOrderKind()
}

type StandardSale struct {
	ProductHint  string
	QuantityHint int
}

type CustomOrderSale struct {
	CustomOrderID string
}

type InvoiceSale struct {
	InvoiceID string
}

func (StandardSale) isOrderKind()    {}
func (CustomOrderSale) isOrderKind() {}
func (InvoiceSale) isOrderKind()     {}

// DecodeOrderKind reads session metadata once; downstream code switches on the result.
func DecodeOrderKind(md map[string]string) OrderKind {
	get := func(keys ...string) string {
		for _, k := range keys {
			if v := strings.TrimSpace(md[k]); v != "" {
				return v
			}
		}
		return ""
	}
	typ := strings.ToLower(get("type", "orderType"))
	if id := get("customOrderId", "custom_order_id"); id != "" || typ == "custom_order" {
		return CustomOrderSale{CustomOrderID: id}
	}
	if id := get("invoiceId", "invoice_id"); id != "" || typ == "invoice" {
		return InvoiceSale{InvoiceID: id}
	}
	qty := 1
	if n, err := strconv.Atoi(get("quantity")); err == nil && n > 0 {
		qty = n
	}
	return StandardSale{ProductHint: get("productId", "product_id"), QuantityHint: qty}
}

func CustomOrderProductKey(customOrderID string) string {
	return customOrderProductKeyPref + customOrderID
}
