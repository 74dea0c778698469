package stripepay

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stripe/stripe-go/v76"
	"github.com/stripe/stripe-go/v76/checkout/session"
	"github.com/stripe/stripe-go/v76/form"
	"github.com/stripe/stripe-go/v76/webhook"

	"chesapeake-backend/internal/usecase"
)

const testSecret = "whsec_test"

func signed(t *testing.T, payload string) string {
	t.Helper()
	sp := webhook.GenerateTestSignedPayload(&webhook.UnsignedPayload{
		Payload:   []byte(payload),
		Secret:    testSecret,
		Timestamp: time.Now(),
	})
	return sp.Header
}

func TestVerifyEventCheckoutCompleted(t *testing.T) {
	p := &Provider{WebhookSecret: testSecret}
	payload := `{"id":"evt_1","object":"event","type":"checkout.session.completed","data":{"object":{"id":"cs_123","object":"checkout.session"}}}`

	ev, err := p.VerifyEvent([]byte(payload), signed(t, payload))
	require.NoError(t, err)
	assert.Equal(t, "evt_1", ev.ID)
	assert.Equal(t, "checkout.session.completed", ev.Type)
	assert.Equal(t, "cs_123", ev.SessionID)
}

func TestVerifyEventOtherTypeHasNoSession(t *testing.T) {
	p := &Provider{WebhookSecret: testSecret}
	payload := `{"id":"evt_2","object":"event","type":"payment_intent.succeeded","data":{"object":{"id":"pi_1","object":"payment_intent"}}}`

	ev, err := p.VerifyEvent([]byte(payload), signed(t, payload))
	require.NoError(t, err)
	assert.Equal(t, "payment_intent.succeeded", ev.Type)
	assert.Empty(t, ev.SessionID)
}

func TestVerifyEventRejectsBadSignature(t *testing.T) {
	p := &Provider{WebhookSecret: testSecret}
	payload := `{"id":"evt_3","object":"event","type":"checkout.session.completed","data":{"object":{"id":"cs_1"}}}`

	_, err := p.VerifyEvent([]byte(payload), "t=1,v1=deadbeef")
	assert.True(t, errors.Is(err, usecase.ErrInvalidSignature))

	_, err = p.VerifyEvent([]byte(payload), "")
	assert.True(t, errors.Is(err, usecase.ErrInvalidSignature))
}

type fakeSessions struct {
	got    *stripe.CheckoutSessionParams
	gotID  string
	result *stripe.CheckoutSession

	// tail is served by ListLineItems, one item per page.
	tail     []*stripe.LineItem
	listErr  error
	listed   *stripe.CheckoutSessionListLineItemsParams
	after    string
	pageHits int
}

func (f *fakeSessions) ListLineItems(params *stripe.CheckoutSessionListLineItemsParams) *session.LineItemIter {
	f.listed = params
	if params.StartingAfter != nil {
		f.after = *params.StartingAfter
	}
	next := 0
	return &session.LineItemIter{Iter: stripe.GetIter(params, func(*stripe.Params, *form.Values) ([]interface{}, stripe.ListContainer, error) {
		f.pageHits++
		list := &stripe.LineItemList{}
		if f.listErr != nil {
			return nil, list, f.listErr
		}
		if next < len(f.tail) {
			list.Data = []*stripe.LineItem{f.tail[next]}
			next++
		}
		list.HasMore = next < len(f.tail)
		ret := make([]interface{}, len(list.Data))
		for i, v := range list.Data {
			ret[i] = v
		}
		return ret, list, nil
	})}
}

func (f *fakeSessions) Get(id string, params *stripe.CheckoutSessionParams) (*stripe.CheckoutSession, error) {
	f.gotID = id
	f.got = params
	return f.result, nil
}

func TestRetrieveCheckoutSessionMapsFields(t *testing.T) {
	fs := &fakeSessions{result: &stripe.CheckoutSession{
		ID:             "cs_123",
		AmountTotal:    4000,
		AmountSubtotal: 3500,
		Currency:       stripe.CurrencyUSD,
		Metadata:       map[string]string{"type": "standard"},
		CustomerDetails: &stripe.CheckoutSessionCustomerDetails{
			Email: "buyer@example.com",
			Name:  "Pat Buyer",
		},
		ShippingCost: &stripe.CheckoutSessionShippingCost{AmountTotal: 500},
		PaymentIntent: &stripe.PaymentIntent{
			ID: "pi_123",
			PaymentMethod: &stripe.PaymentMethod{
				Card: &stripe.PaymentMethodCard{Brand: "visa", Last4: "4242"},
			},
		},
		LineItems: &stripe.LineItemList{Data: []*stripe.LineItem{
			{ID: "li_1", Description: "Oyster dish", Quantity: 1, AmountTotal: 2000,
				Price: &stripe.Price{ID: "price_a", UnitAmount: 2000, Product: &stripe.Product{ID: "prod_a", Name: "Oyster dish"}}},
			{ID: "li_2", Description: "Shipping", Quantity: 1, AmountTotal: 500},
		}},
	}}
	p := &Provider{Sessions: fs}

	sess, err := p.RetrieveCheckoutSession(context.Background(), "cs_123")
	require.NoError(t, err)
	assert.Equal(t, "cs_123", fs.gotID)
	require.NotNil(t, fs.got)
	assert.Len(t, fs.got.Expand, 3)

	assert.Equal(t, "pi_123", sess.PaymentIntentID)
	assert.Equal(t, int64(4000), sess.AmountTotal)
	assert.Equal(t, int64(500), sess.ShippingCents)
	assert.Equal(t, "usd", sess.Currency)
	assert.Equal(t, "buyer@example.com", sess.CustomerEmail)
	assert.Equal(t, "visa", sess.CardBrand)
	assert.Equal(t, "4242", sess.CardLast4)
	require.Len(t, sess.LineItems, 2)
	assert.Equal(t, "prod_a", sess.LineItems[0].ProductID)
	assert.Equal(t, int64(2000), sess.LineItems[0].UnitAmountCents)
	assert.Len(t, sess.MerchandiseItems(), 1)
}

func pagedSession() *stripe.CheckoutSession {
	return &stripe.CheckoutSession{
		ID:            "cs_big",
		PaymentIntent: &stripe.PaymentIntent{ID: "pi_big"},
		LineItems: &stripe.LineItemList{
			ListMeta: stripe.ListMeta{HasMore: true},
			Data: []*stripe.LineItem{
				{ID: "li_1", Quantity: 1, Price: &stripe.Price{UnitAmount: 1000, Product: &stripe.Product{ID: "prod_1"}}},
			},
		},
	}
}

func TestRetrieveCheckoutSessionPagesRemainingLineItems(t *testing.T) {
	fs := &fakeSessions{
		result: pagedSession(),
		tail: []*stripe.LineItem{
			{ID: "li_2", Quantity: 2, Price: &stripe.Price{UnitAmount: 1500, Product: &stripe.Product{ID: "prod_2"}}},
			{ID: "li_3", Quantity: 1, Price: &stripe.Price{UnitAmount: 700, Product: &stripe.Product{ID: "prod_3"}}},
		},
	}
	p := &Provider{Sessions: fs}

	sess, err := p.RetrieveCheckoutSession(context.Background(), "cs_big")
	require.NoError(t, err)
	require.Len(t, sess.LineItems, 3)
	assert.Equal(t, "prod_2", sess.LineItems[1].ProductID)
	assert.Equal(t, 2, sess.LineItems[1].Quantity)
	assert.Equal(t, "prod_3", sess.LineItems[2].ProductID)

	require.NotNil(t, fs.listed)
	assert.Equal(t, "cs_big", *fs.listed.Session)
	assert.Equal(t, "li_1", fs.after)
	assert.Equal(t, 2, fs.pageHits)
	assert.Contains(t, fs.listed.Expand, stripe.String("data.price.product"))
}

func TestRetrieveCheckoutSessionFailsWhenPagingFails(t *testing.T) {
	fs := &fakeSessions{result: pagedSession(), listErr: errors.New("rate limited")}
	p := &Provider{Sessions: fs}

	_, err := p.RetrieveCheckoutSession(context.Background(), "cs_big")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "rate limited")
}

func TestRetrieveCheckoutSessionSkipsPagingForCompleteList(t *testing.T) {
	fs := &fakeSessions{result: &stripe.CheckoutSession{ID: "cs_small", LineItems: &stripe.LineItemList{}}}
	p := &Provider{Sessions: fs}

	_, err := p.RetrieveCheckoutSession(context.Background(), "cs_small")
	require.NoError(t, err)
	assert.Nil(t, fs.listed)
}
