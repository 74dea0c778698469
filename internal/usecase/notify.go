package usecase

import (
	"context"
	"time"

	"go.uber.org/zap"

	"chesapeake-backend/internal/domain"
)

const defaultNotifyTimeout = 5 * time.Second

type NoticeLine struct {
	Description    string
	Quantity       int
	UnitPriceCents int64
}

// OrderNotice is everything the email collaborator needs; it never reads the stores itself.
type OrderNotice struct {
	Order         domain.Order
	CustomerName  string
	Lines         []NoticeLine
	SubtotalCents int64
	ShippingCents int64
	TotalCents    int64
	// CustomDescription is set for custom orders.
	CustomDescription string
}

func (s *ReconcileService) notify(ctx context.Context, n OrderNotice) {
	if s.Notifier == nil {
		return
	}
	timeout := s.NotifyTimeout
	if timeout <= 0 {
		timeout = defaultNotifyTimeout
	}
	// Both emails share one budget so a hung provider cannot stall the webhook response.
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	if n.Order.CustomerEmail != "" {
		if err := s.Notifier.SendCustomerConfirmation(ctx, n); err != nil {
			s.log().Error("customer confirmation email failed",
				zap.String("display_order_id", n.Order.DisplayOrderID),
				zap.Error(err),
			)
		}
	} else {
		s.log().Warn("no customer email on order, skipping confirmation", zap.String("display_order_id", n.Order.DisplayOrderID))
	}
	if err := s.Notifier.SendOwnerNotification(ctx, n); err != nil {
		s.log().Error("owner notification email failed",
			zap.String("display_order_id", n.Order.DisplayOrderID),
			zap.Error(err),
		)
	}
}

func (s *ReconcileService) publish(ctx context.Context, o *domain.Order, itemCount int) {
	if s.Events == nil {
		return
	}
	ev := domain.OrderEvent{
		EventType:      "order_created",
		OrderID:        o.ID,
		DisplayOrderID: o.DisplayOrderID,
		OrderType:      o.OrderType,
		TotalCents:     o.TotalCents,
		Currency:       o.Currency,
		CustomerEmail:  o.CustomerEmail,
		ItemCount:      itemCount,
		CreatedAt:      o.CreatedAt,
	}
	if err := s.Events.PublishOrderCreated(ctx, ev); err != nil {
		s.log().Error("failed to publish order_created event", zap.String("order_id", o.ID), zap.Error(err))
	}
}

func noticeLines(items []domain.OrderItem, names map[string]string) []NoticeLine {
	out := make([]NoticeLine, 0, len(items))
	for _, it := range items {
		desc := names[it.ProductID]
		if desc == "" {
			desc = it.ProductID
		}
		out = append(out, NoticeLine{Description: desc, Quantity: it.Quantity, UnitPriceCents: it.PriceCents})
	}
	return out
}
