package mailer

import (
	"context"
	"errors"
	"fmt"
	"html"
	"strings"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"chesapeake-backend/internal/domain"
	"chesapeake-backend/internal/usecase"
)

type Sender interface {
	Send(ctx context.Context, m Message) (SendResp, error)
}

// Notifier renders order notices into the customer and owner emails.
type Notifier struct {
	Sender     Sender
	From       string
	OwnerEmail string
	SiteURL    string
	Log        *zap.Logger
}

func (n *Notifier) SendCustomerConfirmation(ctx context.Context, notice usecase.OrderNotice) error {
	to := strings.TrimSpace(notice.Order.CustomerEmail)
	if to == "" {
		return errors.New("order has no customer email")
	}
	m := Message{
		From:    n.From,
		To:      []string{to},
		Subject: "Your Chesapeake Shell order " + notice.Order.DisplayOrderID,
		HTML:    n.render(notice, true),
		ReplyTo: n.OwnerEmail,
	}
	return n.send(ctx, "customer", m)
}

func (n *Notifier) SendOwnerNotification(ctx context.Context, notice usecase.OrderNotice) error {
	if n.OwnerEmail == "" {
		n.log().Warn("owner email not configured, skipping owner notification",
			zap.String("display_order_id", notice.Order.DisplayOrderID))
		return nil
	}
	kind := "New order"
	if notice.Order.OrderType == domain.OrderCustom {
		kind = "Custom order paid"
	}
	m := Message{
		From:    n.From,
		To:      []string{n.OwnerEmail},
		Subject: fmt.Sprintf("%s %s (%s)", kind, notice.Order.DisplayOrderID, Dollars(notice.TotalCents)),
		HTML:    n.render(notice, false),
		ReplyTo: notice.Order.CustomerEmail,
	}
	return n.send(ctx, "owner", m)
}

func (n *Notifier) send(ctx context.Context, audience string, m Message) error {
	resp, err := n.Sender.Send(ctx, m)
	if err != nil {
		return fmt.Errorf("send %s email: %w", audience, err)
	}
	n.log().Info("order email sent",
		zap.String("audience", audience),
		zap.String("email_id", resp.ID),
		zap.String("subject", m.Subject),
	)
	return nil
}

func (n *Notifier) render(notice usecase.OrderNotice, customer bool) string {
	var b strings.Builder
	if customer {
		name := notice.CustomerName
		if name == "" {
			name = "there"
		}
		fmt.Fprintf(&b, "<p>Hi %s,</p><p>Thank you for your order! Your order number is <strong>%s</strong>.</p>",
			html.EscapeString(name), html.EscapeString(notice.Order.DisplayOrderID))
	} else {
		fmt.Fprintf(&b, "<p>Order <strong>%s</strong> from %s &lt;%s&gt;.</p>",
			html.EscapeString(notice.Order.DisplayOrderID),
			html.EscapeString(notice.CustomerName),
			html.EscapeString(notice.Order.CustomerEmail))
	}
	if notice.CustomDescription != "" {
		fmt.Fprintf(&b, "<p>%s</p>", html.EscapeString(notice.CustomDescription))
	}
	b.WriteString("<table>")
	for _, l := range notice.Lines {
		fmt.Fprintf(&b, "<tr><td>%s</td><td>x%d</td><td>%s</td></tr>",
			html.EscapeString(l.Description), l.Quantity, Dollars(l.UnitPriceCents*int64(l.Quantity)))
	}
	b.WriteString("</table>")
	fmt.Fprintf(&b, "<p>Subtotal: %s<br>Shipping: %s<br><strong>Total: %s</strong></p>",
		Dollars(notice.SubtotalCents), Dollars(notice.ShippingCents), Dollars(notice.TotalCents))
	if addr := FormatAddress(notice.Order.ShippingName, notice.Order.ShippingAddress); addr != "" {
		fmt.Fprintf(&b, "<p>Shipping to:<br>%s</p>", addr)
	}
	if notice.Order.CardLast4 != "" {
		fmt.Fprintf(&b, "<p>Paid with %s ending in %s</p>",
			html.EscapeString(strings.ToUpper(notice.Order.CardBrand)), html.EscapeString(notice.Order.CardLast4))
	}
	if customer && n.SiteURL != "" {
		fmt.Fprintf(&b, `<p><a href="%s">The Chesapeake Shell</a></p>`, html.EscapeString(n.SiteURL))
	}
	return b.String()
}

func (n *Notifier) log() *zap.Logger {
	if n.Log == nil {
		return zap.NewNop()
	}
	return n.Log
}

// Dollars renders cents as $D.CC.
func Dollars(cents int64) string {
	return "$" + decimal.New(cents, -2).StringFixed(2)
}

func FormatAddress(name string, a domain.Address) string {
	var lines []string
	for _, s := range []string{name, a.Line1, a.Line2} {
		if s = strings.TrimSpace(s); s != "" {
			lines = append(lines, html.EscapeString(s))
		}
	}
	city := strings.TrimSpace(strings.Join(nonEmpty(a.City, strings.TrimSpace(a.State+" "+a.PostalCode)), ", "))
	if city != "" {
		lines = append(lines, html.EscapeString(city))
	}
	if a.Country != "" {
		lines = append(lines, html.EscapeString(a.Country))
	}
	return strings.Join(lines, "<br>")
}

func nonEmpty(vals ...string) []string {
	var out []string
	for _, v := range vals {
		if v != "" {
			out = append(out, v)
		}
	}
	return out
}

// LogNotifier stands in when no email API key is configured.
type LogNotifier struct {
	Log *zap.Logger
}

func (l LogNotifier) SendCustomerConfirmation(_ context.Context, n usecase.OrderNotice) error {
	l.Log.Info("email disabled, customer confirmation not sent",
		zap.String("display_order_id", n.Order.DisplayOrderID),
		zap.String("to", n.Order.CustomerEmail))
	return nil
}

func (l LogNotifier) SendOwnerNotification(_ context.Context, n usecase.OrderNotice) error {
	l.Log.Info("email disabled, owner notification not sent",
		zap.String("display_order_id", n.Order.DisplayOrderID),
		zap.String("total", Dollars(n.TotalCents)))
	return nil
}
