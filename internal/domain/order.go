package domain

import "time"

type OrderType string

const (
	OrderStandard OrderType = "standard"
	OrderCustom   OrderType = "custom"
	// OrderUntagged is stored as NULL.
	OrderUntagged OrderType = ""
)

type Address struct {
	Line1      string `json:"line1,omitempty"`
	Line2      string `json:"line2,omitempty"`
	City       string `json:"city,omitempty"`
	State      string `json:"state,omitempty"`
	PostalCode string `json:"postal_code,omitempty"`
	Country    string `json:"country,omitempty"`
}

func (a Address) IsZero() bool {
	return a == Address{}
}

type OrderItem struct {
	ID         string `json:"id"`
	OrderID    string `json:"orderId"`
	ProductID  string `json:"productId"`
	Quantity   int    `json:"quantity"`
	PriceCents int64  `json:"priceCents"`
}

type Order struct {
	ID              string    `json:"id"`
	DisplayOrderID  string    `json:"displayOrderId"`
	OrderType       OrderType `json:"orderType,omitempty"`
	PaymentIntentID string    `json:"paymentIntentId,omitempty"`
	TotalCents      int64     `json:"totalCents"`
	ShippingCents   int64     `json:"shippingCents"`
	Currency        string    `json:"currency"`
	CustomerEmail   string    `json:"customerEmail"`
	ShippingName    string    `json:"shippingName"`
	ShippingAddress Address   `json:"shippingAddress"`
	CardLast4       string    `json:"cardLast4,omitempty"`
	CardBrand       string    `json:"cardBrand,omitempty"`
	CreatedAt       time.Time `json:"createdAt"`
}

// OrderEvent is published after an order has been persisted.
type OrderEvent struct {
	EventType      string    `json:"event_type"`
	OrderID        string    `json:"order_id"`
	DisplayOrderID string    `json:"display_order_id"`
	OrderType      OrderType `json:"order_type,omitempty"`
	TotalCents     int64     `json:"total_cents"`
	Currency       string    `json:"currency"`
	CustomerEmail  string    `json:"customer_email"`
	ItemCount      int       `json:"item_count"`
	CreatedAt      time.Time `json:"created_at"`
}
