package mailer

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/gateline/gateline/pkg/order"
)

type captureSender struct {
	fail bool
	msgs []Message
}

func (s *captureSender) Send(_ context.Context, msg Message) error {
	if s.fail {
		return errors.New("delivery failed")
	}
	s.msgs = append(s.msgs, msg)
	return nil
}

func fixtures() (*order.Event, *order.Order, []order.TicketPayload) {
	event := &order.Event{ID: "ev-1", Name: "Warehouse Live", Venue: "Pier 9"}
	o := &order.Order{
		ID:             "ord-1",
		EventID:        "ev-1",
		PurchaserEmail: "ada@example.com",
		PurchaserName:  "Ada Lovelace",
		Total:          9700,
	}
	payloads := []order.TicketPayload{
		{TicketID: "tkt-1", TypeName: "General Admission", HolderName: "Ada Lovelace", Token: "tok-1"},
		{TicketID: "tkt-2", TypeName: "VIP", HolderName: "Ada Lovelace", Token: "tok-2"},
	}
	return event, o, payloads
}

func TestSendOrderConfirmation(t *testing.T) {
	sender := &captureSender{}
	m, err := New(sender)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	event, o, payloads := fixtures()
	if err := m.SendOrderConfirmation(context.Background(), event, o, payloads); err != nil {
		t.Fatalf("SendOrderConfirmation() error = %v", err)
	}

	if len(sender.msgs) != 1 {
		t.Fatalf("expected 1 delivery, got %d", len(sender.msgs))
	}
	msg := sender.msgs[0]
	if msg.To != "ada@example.com" {
		t.Errorf("to = %q", msg.To)
	}
	if !strings.Contains(msg.Subject, "Warehouse Live") {
		t.Errorf("subject = %q", msg.Subject)
	}
	if !strings.Contains(msg.HTML, "ord-1") || !strings.Contains(msg.HTML, "Pier 9") {
		t.Error("HTML body missing order or venue")
	}
	if !strings.Contains(msg.HTML, "$97.00") {
		t.Errorf("HTML body missing formatted total: %s", msg.HTML)
	}
	if !strings.Contains(msg.Text, "General Admission") {
		t.Error("text body missing ticket line")
	}
}

func TestSendOrderConfirmationDeliveryError(t *testing.T) {
	m, _ := New(&captureSender{fail: true})
	event, o, payloads := fixtures()

	err := m.SendOrderConfirmation(context.Background(), event, o, payloads)
	if err == nil {
		t.Fatal("expected delivery error")
	}
	if !strings.Contains(err.Error(), "ord-1") {
		t.Errorf("error should name the order: %v", err)
	}
}

func TestRenderEscapesHTML(t *testing.T) {
	m, _ := New(&captureSender{})
	event, o, payloads := fixtures()
	o.PurchaserName = "<script>alert(1)</script>"

	msg, err := m.Render(event, o, payloads)
	if err != nil {
		t.Fatalf("Render() error = %v", err)
	}
	if strings.Contains(msg.HTML, "<script>") {
		t.Error("purchaser name not escaped")
	}
}

func TestNewRequiresSender(t *testing.T) {
	if _, err := New(nil); err == nil {
		t.Fatal("expected error for nil sender")
	}
}
