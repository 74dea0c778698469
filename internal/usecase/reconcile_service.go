package usecase

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"

	"chesapeake-backend/internal/domain"
)

type Outcome string

const (
	OutcomeCreated   Outcome = "created"
	OutcomeDuplicate Outcome = "duplicate"
	OutcomeNotFound  Outcome = "not_found"
	OutcomeIgnored   Outcome = "ignored"
)

type Result struct {
	Outcome        Outcome
	Kind           string
	OrderID        string
	DisplayOrderID string
}

// ReconcileService turns completed checkout sessions into orders.
type ReconcileService struct {
	Orders       OrderRepo
	Products     ProductRepo
	CustomOrders CustomOrderRepo
	DisplayIDs   *DisplayIDs
	Provider     PaymentProvider
	Notifier     Notifier
	Events       EventPublisher
	Log          *zap.Logger
	Now          func() time.Time

	// NotifyTimeout bounds both emails together; zero means five seconds.
	NotifyTimeout time.Duration
}

// HandleEvent reconciles checkout.session.completed and acknowledges every other type.
func (s *ReconcileService) HandleEvent(ctx context.Context, ev domain.WebhookEvent) (Result, error) {
	if ev.Type != domain.EventCheckoutCompleted {
		s.log().Info("webhook event acknowledged", zap.String("event_id", ev.ID), zap.String("event_type", ev.Type))
		return Result{Outcome: OutcomeIgnored}, nil
	}
	if ev.SessionID == "" {
		return Result{}, ErrBadRequest("checkout session id missing from event " + ev.ID)
	}
	sess, err := s.Provider.RetrieveCheckoutSession(ctx, ev.SessionID)
	if err != nil {
		return Result{}, fmt.Errorf("retrieve checkout session %s: %w", ev.SessionID, err)
	}
	return s.HandleCheckoutCompleted(ctx, sess)
}

func (s *ReconcileService) HandleCheckoutCompleted(ctx context.Context, sess *domain.CheckoutSession) (Result, error) {
	ctx, span := otel.Tracer("chesapeake-backend").Start(ctx, "ReconcileCheckout")
	defer span.End()
	span.SetAttributes(
		attribute.String("checkout.session_id", sess.ID),
		attribute.String("payment.intent_id", sess.PaymentIntentID),
	)

	var (
		res Result
		err error
	)
	switch k := domain.DecodeOrderKind(sess.Metadata).(type) {
	case domain.CustomOrderSale:
		res, err = s.reconcileCustomOrder(ctx, sess, k)
		res.Kind = "custom"
	case domain.InvoiceSale:
		res, err = s.reconcileCatalog(ctx, sess, domain.OrderUntagged, "", 0, false)
		res.Kind = "invoice"
	case domain.StandardSale:
		res, err = s.reconcileCatalog(ctx, sess, domain.OrderStandard, k.ProductHint, k.QuantityHint, true)
		res.Kind = "standard"
	}
	if err != nil {
		span.RecordError(err)
		return res, err
	}
	span.SetAttributes(attribute.String("reconcile.outcome", string(res.Outcome)))
	return res, nil
}

func (s *ReconcileService) reconcileCatalog(ctx context.Context, sess *domain.CheckoutSession, typ domain.OrderType, hint string, hintQty int, adjustStock bool) (Result, error) {
	key := sess.IdempotencyKey()
	ok, err := s.ShouldProcess(ctx, key)
	if err != nil {
		return Result{}, err
	}
	if !ok {
		s.log().Info("duplicate checkout delivery, order already exists", zap.String("payment_intent_id", key))
		return Result{Outcome: OutcomeDuplicate}, nil
	}

	merch := sess.MerchandiseItems()
	names := map[string]string{}
	items := make([]domain.OrderItem, 0, len(merch))
	for _, li := range merch {
		pk := ProductKeyFor(li, hint)
		qty := li.Quantity
		if qty <= 0 {
			qty = 1
		}
		items = append(items, domain.OrderItem{ProductID: pk, Quantity: qty, PriceCents: li.UnitPriceCents()})
		if names[pk] == "" {
			names[pk] = firstNonEmpty(li.ProductName, li.Description)
		}
	}

	draft := OrderDraft{
		Header:            s.headerFromSession(sess, typ, key),
		Items:             items,
		FallbackProductID: hint,
		FallbackQuantity:  hintQty,
		SubtotalCents:     sess.AmountSubtotal,
	}
	o, written, err := s.InsertOrder(ctx, draft)
	if errors.Is(err, ErrDuplicateOrder) {
		s.log().Info("order insert rejected as duplicate by storage", zap.String("payment_intent_id", key))
		return Result{Outcome: OutcomeDuplicate}, nil
	}
	if err != nil {
		return Result{}, err
	}

	if adjustStock {
		adj := AggregateInventory(merch, hint)
		if len(adj) == 0 && hint != "" {
			adj = []InventoryAdjustment{{ProductKey: hint, Quantity: max(hintQty, 1)}}
		}
		s.adjustInventory(ctx, adj)
	}

	s.log().Info("order created",
		zap.String("order_id", o.ID),
		zap.String("display_order_id", o.DisplayOrderID),
		zap.String("payment_intent_id", key),
		zap.Int("items", len(written)),
	)
	s.notify(ctx, OrderNotice{
		Order:         *o,
		CustomerName:  firstNonEmpty(sess.CustomerName, sess.ShippingName),
		Lines:         noticeLines(written, names),
		SubtotalCents: sess.AmountSubtotal,
		ShippingCents: sess.ShippingCents,
		TotalCents:    o.TotalCents,
	})
	s.publish(ctx, o, len(written))
	return Result{Outcome: OutcomeCreated, OrderID: o.ID, DisplayOrderID: o.DisplayOrderID}, nil
}

func (s *ReconcileService) reconcileCustomOrder(ctx context.Context, sess *domain.CheckoutSession, k domain.CustomOrderSale) (Result, error) {
	co, found, err := s.CustomOrders.GetCustomOrder(ctx, k.CustomOrderID)
	if err != nil {
		return Result{}, fmt.Errorf("load custom order %s: %w", k.CustomOrderID, err)
	}
	if !found {
		s.log().Warn("custom order referenced by checkout not found",
			zap.String("custom_order_id", k.CustomOrderID),
			zap.String("session_id", sess.ID),
		)
		return Result{Outcome: OutcomeNotFound}, nil
	}
	key := sess.IdempotencyKey()
	// Stronger boundary than the catalog path: once a payment is recorded on the
	// custom order and its Order exists, nothing else runs, emails included.
	if co.Processed() {
		recorded := firstNonEmpty(co.PaymentIntentID, co.StripeSessionID)
		if recorded != key {
			s.log().Info("custom order already paid by another checkout, skipping",
				zap.String("custom_order_id", co.ID),
				zap.String("payment_intent_id", co.PaymentIntentID),
				zap.String("session_id", sess.ID),
			)
			return Result{Outcome: OutcomeDuplicate}, nil
		}
		pending, err := s.ShouldProcess(ctx, recorded)
		if err != nil {
			return Result{}, err
		}
		if !pending {
			s.log().Info("custom order already paid, skipping",
				zap.String("custom_order_id", co.ID),
				zap.String("payment_intent_id", co.PaymentIntentID),
			)
			return Result{Outcome: OutcomeDuplicate}, nil
		}
		s.log().Warn("custom order marked paid without an order, resuming",
			zap.String("custom_order_id", co.ID),
			zap.String("payment_intent_id", recorded),
		)
	}

	if err := s.CustomOrders.MarkCustomOrderPaid(ctx, co.ID, domain.CustomOrderPayment{
		PaymentIntentID: sess.PaymentIntentID,
		SessionID:       sess.ID,
		PaidAt:          s.now(),
		ShippingName:    sess.ShippingName,
		ShippingAddress: sess.ShippingAddress,
	}); err != nil {
		return Result{}, fmt.Errorf("mark custom order %s paid: %w", co.ID, err)
	}

	ok, err := s.ShouldProcess(ctx, key)
	if err != nil {
		return Result{}, err
	}
	if !ok {
		s.log().Info("order already exists for custom order payment", zap.String("payment_intent_id", key))
		return Result{Outcome: OutcomeDuplicate}, nil
	}

	shipping := sess.ShippingCents
	if shipping == 0 {
		shipping = co.ShippingCents
	}
	header := s.headerFromSession(sess, domain.OrderCustom, key)
	header.ShippingCents = shipping
	if header.TotalCents == 0 {
		header.TotalCents = co.AmountCents + shipping
	}
	header.CustomerEmail = firstNonEmpty(header.CustomerEmail, co.CustomerEmail)
	header.ShippingName = firstNonEmpty(header.ShippingName, co.CustomerName)

	itemKey := domain.CustomOrderProductKey(co.ID)
	o, written, err := s.InsertOrder(ctx, OrderDraft{
		Header: header,
		Items: []domain.OrderItem{
			{ProductID: itemKey, Quantity: 1, PriceCents: co.AmountCents},
			{ProductID: domain.ShippingProductKey, Quantity: 1, PriceCents: shipping},
		},
		DisplayIDOverride: co.DisplayCustomOrderID,
	})
	if errors.Is(err, ErrDuplicateOrder) {
		return Result{Outcome: OutcomeDuplicate}, nil
	}
	if err != nil {
		return Result{}, err
	}

	s.log().Info("custom order paid",
		zap.String("custom_order_id", co.ID),
		zap.String("order_id", o.ID),
		zap.String("display_order_id", o.DisplayOrderID),
	)
	s.notify(ctx, OrderNotice{
		Order:             *o,
		CustomerName:      firstNonEmpty(co.CustomerName, sess.CustomerName),
		Lines:             noticeLines(written, map[string]string{itemKey: co.Description, domain.ShippingProductKey: "Shipping"}),
		SubtotalCents:     co.AmountCents,
		ShippingCents:     shipping,
		TotalCents:        o.TotalCents,
		CustomDescription: co.Description,
	})
	s.publish(ctx, o, len(written))
	return Result{Outcome: OutcomeCreated, OrderID: o.ID, DisplayOrderID: o.DisplayOrderID}, nil
}

func (s *ReconcileService) headerFromSession(sess *domain.CheckoutSession, typ domain.OrderType, key string) domain.Order {
	return domain.Order{
		OrderType:       typ,
		PaymentIntentID: key,
		TotalCents:      sess.AmountTotal,
		ShippingCents:   sess.ShippingCents,
		Currency:        firstNonEmpty(sess.Currency, "usd"),
		CustomerEmail:   sess.CustomerEmail,
		ShippingName:    firstNonEmpty(sess.ShippingName, sess.CustomerName),
		ShippingAddress: sess.ShippingAddress,
		CardLast4:       sess.CardLast4,
		CardBrand:       sess.CardBrand,
	}
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v != "" {
			return v
		}
	}
	return ""
}
