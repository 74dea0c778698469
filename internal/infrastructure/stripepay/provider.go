package stripepay

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/stripe/stripe-go/v76"
	"github.com/stripe/stripe-go/v76/checkout/session"
	"github.com/stripe/stripe-go/v76/client"
	"github.com/stripe/stripe-go/v76/webhook"

	"chesapeake-backend/internal/domain"
	"chesapeake-backend/internal/usecase"
)

// SessionGetter is the slice of the Stripe client the provider calls.
type SessionGetter interface {
	Get(id string, params *stripe.CheckoutSessionParams) (*stripe.CheckoutSession, error)
	ListLineItems(params *stripe.CheckoutSessionListLineItemsParams) *session.LineItemIter
}

type Provider struct {
	WebhookSecret string
	Sessions      SessionGetter
}

func New(secretKey, webhookSecret string) *Provider {
	sc := &client.API{}
	sc.Init(secretKey, nil)
	return &Provider{WebhookSecret: webhookSecret, Sessions: sc.CheckoutSessions}
}

func (p *Provider) VerifyEvent(payload []byte, signatureHeader string) (domain.WebhookEvent, error) {
	if strings.TrimSpace(signatureHeader) == "" {
		return domain.WebhookEvent{}, fmt.Errorf("%w: missing Stripe-Signature header", usecase.ErrInvalidSignature)
	}
	evt, err := webhook.ConstructEventWithOptions(payload, signatureHeader, p.WebhookSecret, webhook.ConstructEventOptions{
		IgnoreAPIVersionMismatch: true,
	})
	if err != nil {
		return domain.WebhookEvent{}, fmt.Errorf("%w: %v", usecase.ErrInvalidSignature, err)
	}
	out := domain.WebhookEvent{ID: evt.ID, Type: string(evt.Type)}
	if strings.HasPrefix(out.Type, "checkout.session.") && evt.Data != nil {
		var obj struct {
			ID string `json:"id"`
		}
		if err := json.Unmarshal(evt.Data.Raw, &obj); err != nil {
			return domain.WebhookEvent{}, usecase.ErrBadRequest("malformed checkout session payload: " + err.Error())
		}
		out.SessionID = obj.ID
	}
	return out, nil
}

// RetrieveCheckoutSession loads the session with line items, products and the card used.
func (p *Provider) RetrieveCheckoutSession(ctx context.Context, sessionID string) (*domain.CheckoutSession, error) {
	params := &stripe.CheckoutSessionParams{}
	params.Context = ctx
	params.AddExpand("line_items")
	params.AddExpand("line_items.data.price.product")
	params.AddExpand("payment_intent.payment_method")
	sess, err := p.Sessions.Get(sessionID, params)
	if err != nil {
		return nil, err
	}
	if sess.LineItems != nil && sess.LineItems.HasMore {
		rest, err := p.remainingLineItems(ctx, sess)
		if err != nil {
			return nil, fmt.Errorf("list line items for %s: %w", sessionID, err)
		}
		sess.LineItems.Data = append(sess.LineItems.Data, rest...)
		sess.LineItems.HasMore = false
	}
	return toCheckoutSession(sess), nil
}

// remainingLineItems pages through the line items after the expanded first page.
func (p *Provider) remainingLineItems(ctx context.Context, sess *stripe.CheckoutSession) ([]*stripe.LineItem, error) {
	params := &stripe.CheckoutSessionListLineItemsParams{Session: stripe.String(sess.ID)}
	params.Context = ctx
	params.AddExpand("data.price.product")
	if n := len(sess.LineItems.Data); n > 0 && sess.LineItems.Data[n-1] != nil {
		params.StartingAfter = stripe.String(sess.LineItems.Data[n-1].ID)
	}
	var out []*stripe.LineItem
	it := p.Sessions.ListLineItems(params)
	for it.Next() {
		out = append(out, it.LineItem())
	}
	if err := it.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

func toCheckoutSession(s *stripe.CheckoutSession) *domain.CheckoutSession {
	out := &domain.CheckoutSession{
		ID:             s.ID,
		Metadata:       s.Metadata,
		AmountTotal:    s.AmountTotal,
		AmountSubtotal: s.AmountSubtotal,
		Currency:       string(s.Currency),
	}
	if out.Metadata == nil {
		out.Metadata = map[string]string{}
	}
	if s.CustomerDetails != nil {
		out.CustomerEmail = s.CustomerDetails.Email
		out.CustomerName = s.CustomerDetails.Name
		out.ShippingAddress = toAddress(s.CustomerDetails.Address)
	}
	if s.ShippingDetails != nil {
		out.ShippingName = s.ShippingDetails.Name
		if a := toAddress(s.ShippingDetails.Address); !a.IsZero() {
			out.ShippingAddress = a
		}
	}
	if s.ShippingCost != nil {
		out.ShippingCents = s.ShippingCost.AmountTotal
	}
	if s.Invoice != nil {
		out.InvoiceID = s.Invoice.ID
	}
	if pi := s.PaymentIntent; pi != nil {
		out.PaymentIntentID = pi.ID
		if pi.PaymentMethod != nil && pi.PaymentMethod.Card != nil {
			out.CardBrand = string(pi.PaymentMethod.Card.Brand)
			out.CardLast4 = pi.PaymentMethod.Card.Last4
		}
	}
	if s.LineItems != nil {
		for _, li := range s.LineItems.Data {
			if li == nil {
				continue
			}
			item := domain.LineItem{
				ID:          li.ID,
				Description: li.Description,
				Quantity:    int(li.Quantity),
				AmountTotal: li.AmountTotal,
			}
			if pr := li.Price; pr != nil {
				item.PriceID = pr.ID
				item.UnitAmountCents = pr.UnitAmount
				if pr.Product != nil {
					item.ProductID = pr.Product.ID
					item.ProductName = pr.Product.Name
				}
			}
			out.LineItems = append(out.LineItems, item)
		}
	}
	return out
}

func toAddress(a *stripe.Address) domain.Address {
	if a == nil {
		return domain.Address{}
	}
	return domain.Address{
		Line1:      a.Line1,
		Line2:      a.Line2,
		City:       a.City,
		State:      a.State,
		PostalCode: a.PostalCode,
		Country:    a.Country,
	}
}
