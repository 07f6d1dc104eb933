// Package mailer renders and delivers order confirmation emails.
package mailer

import (
	"bytes"
	"context"
	"fmt"
	"html/template"
	"strings"

	"github.com/gateline/gateline/pkg/logger"
	"github.com/gateline/gateline/pkg/order"
)

// Message is a rendered confirmation email.
type Message struct {
	To      string
	Subject string
	HTML    string
	Text    string
}

// Sender delivers rendered messages. Implementations must be idempotent per
// order: re-sending a confirmation is harmless.
type Sender interface {
	Send(ctx context.Context, msg Message) error
}

const confirmationHTML = `<html>
<body>
<h1>Your tickets for {{.Event.Name}}</h1>
<p>Hi {{.Order.PurchaserName}},</p>
<p>Your order <strong>{{.Order.ID}}</strong> is confirmed.
{{.Count}} ticket(s) for {{.Event.Name}}{{if .Event.Venue}} at {{.Event.Venue}}{{end}}.</p>
<ul>
{{range .Payloads}}<li>{{.TypeName}} — {{.HolderName}}</li>
{{end}}</ul>
<p>Total: {{.Total}}</p>
<p>Your QR tickets are attached. See you there!</p>
</body>
</html>`

var confirmationTmpl = template.Must(template.New("confirmation").Parse(confirmationHTML))

// Mailer renders confirmations and hands them to a Sender. It implements the
// workflow's Mailer collaborator.
type Mailer struct {
	sender Sender
	log    logger.Logger
}

// Option customizes the mailer.
type Option func(m *Mailer)

// WithLogger wires a logger.
func WithLogger(log logger.Logger) Option {
	return func(m *Mailer) {
		if log != nil {
			m.log = log
		}
	}
}

// New creates a mailer delivering through the given sender.
func New(sender Sender, opts ...Option) (*Mailer, error) {
	if sender == nil {
		return nil, fmt.Errorf("sender cannot be nil")
	}
	m := &Mailer{sender: sender, log: logger.Global()}
	for _, opt := range opts {
		if opt != nil {
			opt(m)
		}
	}
	return m, nil
}

func formatMoney(amount order.Money) string {
	return fmt.Sprintf("$%d.%02d", amount/100, amount%100)
}

// Render produces the confirmation message for an order.
func (m *Mailer) Render(event *order.Event, o *order.Order, payloads []order.TicketPayload) (Message, error) {
	data := struct {
		Event    *order.Event
		Order    *order.Order
		Payloads []order.TicketPayload
		Count    int
		Total    string
	}{
		Event:    event,
		Order:    o,
		Payloads: payloads,
		Count:    len(payloads),
		Total:    formatMoney(o.Total),
	}

	var html bytes.Buffer
	if err := confirmationTmpl.Execute(&html, data); err != nil {
		return Message{}, fmt.Errorf("render confirmation: %w", err)
	}

	var text strings.Builder
	fmt.Fprintf(&text, "Your order %s for %s is confirmed.\n", o.ID, event.Name)
	for _, p := range payloads {
		fmt.Fprintf(&text, "- %s: %s\n", p.TypeName, p.HolderName)
	}
	fmt.Fprintf(&text, "Total: %s\n", data.Total)

	return Message{
		To:      o.PurchaserEmail,
		Subject: fmt.Sprintf("Your tickets for %s", event.Name),
		HTML:    html.String(),
		Text:    text.String(),
	}, nil
}

// SendOrderConfirmation renders and delivers the confirmation email.
func (m *Mailer) SendOrderConfirmation(ctx context.Context, event *order.Event, o *order.Order, payloads []order.TicketPayload) error {
	msg, err := m.Render(event, o, payloads)
	if err != nil {
		return err
	}
	if err := m.sender.Send(ctx, msg); err != nil {
		return fmt.Errorf("send confirmation for order %s: %w", o.ID, err)
	}
	m.log.InfoContext(ctx, "sent order confirmation",
		"order_id", o.ID, "to", o.PurchaserEmail, "tickets", len(payloads))
	return nil
}

// LogSender writes deliveries to the log instead of an outbound channel.
// Used in development and tests.
type LogSender struct {
	log logger.Logger
}

// NewLogSender creates a log-backed sender.
func NewLogSender(log logger.Logger) *LogSender {
	if log == nil {
		log = logger.Global()
	}
	return &LogSender{log: log}
}

// Send logs the message instead of delivering it.
func (s *LogSender) Send(ctx context.Context, msg Message) error {
	s.log.InfoContext(ctx, "email delivery (log sender)",
		"to", msg.To, "subject", msg.Subject, "bytes", len(msg.HTML))
	return nil
}
