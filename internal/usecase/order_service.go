package usecase

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"chesapeake-backend/internal/domain"
)

// OrderDraft is an order header plus its prepared line items. ID, DisplayOrderID and
// CreatedAt on Header are filled in by InsertOrder.
type OrderDraft struct {
	Header domain.Order
	Items  []domain.OrderItem
	// DisplayIDOverride reuses an id already issued from the shared counter.
	DisplayIDOverride string
	// Legacy single-product metadata, used only when Items is empty.
	FallbackProductID string
	FallbackQuantity  int
	SubtotalCents     int64
}

// ShouldProcess is the idempotency guard: false when an order already references paymentIntentID.
func (s *ReconcileService) ShouldProcess(ctx context.Context, paymentIntentID string) (bool, error) {
	if paymentIntentID == "" {
		return true, nil
	}
	_, found, err := s.Orders.FindOrderByPaymentIntent(ctx, paymentIntentID)
	if err != nil {
		return false, fmt.Errorf("idempotency lookup: %w", err)
	}
	return !found, nil
}

// InsertOrder writes the header, then the items. A header failure aborts with an error;
// an item failure is logged and the remaining items are still written.
// A storage-level duplicate surfaces as ErrDuplicateOrder.
func (s *ReconcileService) InsertOrder(ctx context.Context, d OrderDraft) (*domain.Order, []domain.OrderItem, error) {
	o := d.Header
	o.ID = uuid.NewString()
	o.CreatedAt = s.now()
	if d.DisplayIDOverride != "" {
		o.DisplayOrderID = d.DisplayIDOverride
	} else {
		id, err := s.DisplayIDs.Next(ctx, domain.TwoDigitYear(o.CreatedAt))
		if err != nil {
			return nil, nil, err
		}
		o.DisplayOrderID = id
	}

	if err := s.Orders.InsertOrder(ctx, &o); err != nil {
		if errors.Is(err, ErrDuplicateOrder) {
			return nil, nil, err
		}
		return nil, nil, fmt.Errorf("insert order %s: %w", o.DisplayOrderID, err)
	}

	items := d.Items
	if len(items) == 0 && d.FallbackProductID != "" {
		qty := d.FallbackQuantity
		if qty <= 0 {
			qty = 1
		}
		items = []domain.OrderItem{{
			ProductID:  d.FallbackProductID,
			Quantity:   qty,
			PriceCents: d.SubtotalCents / int64(qty),
		}}
	}
	if len(items) == 0 {
		s.log().Warn("order created without line items",
			zap.String("display_order_id", o.DisplayOrderID),
			zap.String("payment_intent_id", o.PaymentIntentID),
		)
	}

	written := make([]domain.OrderItem, 0, len(items))
	for _, it := range items {
		it.ID = uuid.NewString()
		it.OrderID = o.ID
		if err := s.Orders.InsertOrderItem(ctx, &it); err != nil {
			s.log().Error("order item insert failed",
				zap.String("order_id", o.ID),
				zap.String("product_id", it.ProductID),
				zap.Error(err),
			)
			continue
		}
		written = append(written, it)
	}
	return &o, written, nil
}

func (s *ReconcileService) now() time.Time {
	if s.Now != nil {
		return s.Now().UTC()
	}
	return time.Now().UTC()
}

func (s *ReconcileService) log() *zap.Logger {
	if s.Log == nil {
		return zap.NewNop()
	}
	return s.Log
}
