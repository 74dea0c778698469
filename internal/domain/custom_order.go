package domain

import "time"

type CustomOrderStatus string

const (
	CustomOrderPending CustomOrderStatus = "pending"
	CustomOrderPaid    CustomOrderStatus = "paid"
)

type CustomOrder struct {
	ID                   string            `json:"id"`
	DisplayCustomOrderID string            `json:"displayCustomOrderId"`
	CustomerName         string            `json:"customerName"`
	CustomerEmail        string            `json:"customerEmail"`
	Description          string            `json:"description"`
	ImageURL             string            `json:"imageUrl,omitempty"`
	AmountCents          int64             `json:"amountCents"`
	ShippingCents        int64             `json:"shippingCents"`
	Status               CustomOrderStatus `json:"status"`
	PaymentLink          string            `json:"paymentLink,omitempty"`
	PaymentIntentID      string            `json:"paymentIntentId,omitempty"`
	StripeSessionID      string            `json:"stripeSessionId,omitempty"`
	PaidAt               *time.Time        `json:"paidAt,omitempty"`
	ShippingName         string            `json:"shippingName,omitempty"`
	ShippingAddress      Address           `json:"shippingAddress"`
	CreatedAt            time.Time         `json:"createdAt"`
}

// Processed reports whether a payment has already been recorded against the custom order.
func (c *CustomOrder) Processed() bool {
	return c.PaymentIntentID != "" || c.StripeSessionID != ""
}

// CustomOrderPayment carries the fields written on the pending -> paid transition.
// PaymentIntentID, SessionID and PaidAt are first-write-wins; shipping fields always overwrite.
type CustomOrderPayment struct {
	PaymentIntentID string
	SessionID       string
	PaidAt          time.Time
	ShippingName    string
	ShippingAddress Address
}
