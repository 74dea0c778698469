package usecase

import (
	"context"
	"time"

	"chesapeake-backend/internal/domain"
)

type OrderRepo interface {
	FindOrderByPaymentIntent(ctx context.Context, paymentIntentID string) (*domain.Order, bool, error)
	InsertOrder(ctx context.Context, o *domain.Order) error
	InsertOrderItem(ctx context.Context, it *domain.OrderItem) error
}

type CounterRepo interface {
	// NextYearCounter increments the counter row for year (creating it at 1) and returns the new value.
	NextYearCounter(ctx context.Context, year int) (int, error)
}

type ProductRepo interface {
	// DecrementInventory matches productKey against the provider product id or the internal id.
	DecrementInventory(ctx context.Context, productKey string, qty int) (bool, error)
}

type CustomOrderRepo interface {
	GetCustomOrder(ctx context.Context, id string) (*domain.CustomOrder, bool, error)
	MarkCustomOrderPaid(ctx context.Context, id string, p domain.CustomOrderPayment) error
}

// OrderStub is the slice of an order the backfill needs.
type OrderStub struct {
	ID        string
	CreatedAt time.Time
}

// BackfillTx runs inside one storage transaction.
type BackfillTx interface {
	YearCounters(ctx context.Context) (map[int]int, error)
	OrdersMissingDisplayID(ctx context.Context) ([]OrderStub, error)
	SetDisplayOrderID(ctx context.Context, orderID, displayID string) error
	SetYearCounter(ctx context.Context, year, counter int) error
}

type BackfillRepo interface {
	// WithBackfillTx commits when fn returns nil and rolls everything back otherwise.
	WithBackfillTx(ctx context.Context, fn func(BackfillTx) error) error
}

type PaymentProvider interface {
	VerifyEvent(payload []byte, signatureHeader string) (domain.WebhookEvent, error)
	RetrieveCheckoutSession(ctx context.Context, sessionID string) (*domain.CheckoutSession, error)
}

type Notifier interface {
	SendCustomerConfirmation(ctx context.Context, n OrderNotice) error
	SendOwnerNotification(ctx context.Context, n OrderNotice) error
}

type EventPublisher interface {
	PublishOrderCreated(ctx context.Context, ev domain.OrderEvent) error
}
