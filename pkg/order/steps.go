package order

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Step names, as reported in saga results and execution projections.
const (
	StepLoadEvent        = "LoadEvent"
	StepReserveInventory = "ReserveInventory"
	StepCreateOrder      = "CreateOrder"
	StepGenerateTickets  = "GenerateTickets"
	StepSendEmail        = "SendEmail"
	StepUpdateWaitlist   = "UpdateWaitlist"
)

// loadEvent reads the event record and computes totals plus normalized
// line-item rows from the input. Read-only: no compensation.
func (w *Workflow) loadEvent(ctx context.Context, oc OrderContext) (OrderContext, error) {
	event, err := w.catalog.GetEvent(ctx, oc.Input.EventID)
	if err != nil {
		return oc, err
	}

	items := make([]LineItem, 0, len(oc.Input.LineItems))
	var totals Totals
	for _, in := range oc.Input.LineItems {
		tt, ok := event.TicketTypeByID(in.TicketTypeID)
		if !ok {
			return oc, fmt.Errorf("%w: %s", ErrUnknownTicketType, in.TicketTypeID)
		}

		display := in.DisplayName
		if display == "" {
			display = tt.Name
		}
		item := LineItem{
			TicketTypeID: in.TicketTypeID,
			DisplayName:  display,
			Quantity:     in.Quantity,
			UnitPrice:    Money(in.UnitPrice),
			UnitFee:      Money(in.UnitFee),
		}
		item.LineTotal = (item.UnitPrice + item.UnitFee) * Money(item.Quantity)

		totals.Subtotal += item.UnitPrice * Money(item.Quantity)
		totals.Fees += item.UnitFee * Money(item.Quantity)
		items = append(items, item)
	}
	totals.Total = totals.Subtotal + totals.Fees

	rows, err := json.Marshal(items)
	if err != nil {
		return oc, fmt.Errorf("marshal line items: %w", err)
	}

	oc.Event = event
	oc.LineItems = items
	oc.Totals = totals
	oc.LineItemsJSON = string(rows)
	return oc, nil
}

// reserveInventory calls the atomic check-and-reserve primitive for the
// requested line items.
func (w *Workflow) reserveInventory(ctx context.Context, oc OrderContext) (OrderContext, error) {
	items := make([]ReservationItem, 0, len(oc.LineItems))
	for _, li := range oc.LineItems {
		items = append(items, ReservationItem{TicketTypeID: li.TicketTypeID, Quantity: li.Quantity})
	}

	reservationID, err := w.inventory.Reserve(ctx, oc.Event.ID, items)
	if err != nil {
		return oc, err
	}

	oc.ReservationID = reservationID
	oc.ReservedTickets = items
	return oc, nil
}

// releaseInventory is the compensation for reserveInventory: best-effort
// release of the same line items. Errors are logged and swallowed so the
// remaining compensations still run cleanly.
func (w *Workflow) releaseInventory(ctx context.Context, oc OrderContext) error {
	if oc.ReservationID == "" {
		return nil
	}
	if err := w.inventory.Release(ctx, oc.Event.ID, oc.ReservationID, oc.ReservedTickets); err != nil {
		w.log.WarnContext(ctx, "failed to release inventory reservation",
			"event_id", oc.Event.ID, "reservation_id", oc.ReservationID, "error", err)
	}
	return nil
}

func (w *Workflow) createOrder(ctx context.Context, oc OrderContext) (OrderContext, error) {
	now := time.Now().UTC()
	o := &Order{
		ID:              uuid.NewString(),
		EventID:         oc.Event.ID,
		PurchaserEmail:  oc.Input.PurchaserEmail,
		PurchaserName:   oc.Input.PurchaserName,
		PurchaserUserID: oc.Input.PurchaserUserID,
		Status:          OrderStatusPending,
		Subtotal:        oc.Totals.Subtotal,
		Fees:            oc.Totals.Fees,
		Total:           oc.Totals.Total,
		LineItemsJSON:   oc.LineItemsJSON,
		PromoCodeID:     oc.Input.PromoCodeID,
		Metadata:        oc.Input.Metadata,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
	if err := w.orders.Insert(ctx, o); err != nil {
		return oc, fmt.Errorf("create order: %w", err)
	}

	oc.Order = o
	return oc, nil
}

// cancelOrder is the compensation for createOrder: the row is kept but
// flipped to cancelled with the reason recorded in metadata.
func (w *Workflow) cancelOrder(ctx context.Context, oc OrderContext) error {
	if oc.Order == nil {
		return nil
	}
	return w.orders.UpdateStatus(ctx, oc.Order.ID, OrderStatusCancelled, map[string]string{
		"cancellation_reason": "purchase workflow compensated",
	})
}

// generateTickets issues every ticket unit of the order in three phases:
// synchronous preparation of deterministic ticket rows, concurrent per-ticket
// payload and QR generation, then a single batched insert. Round trips stay
// O(1) in the ticket count.
func (w *Workflow) generateTickets(ctx context.Context, oc OrderContext) (OrderContext, error) {
	orderUUID, err := uuid.Parse(oc.Order.ID)
	if err != nil {
		return oc, fmt.Errorf("parse order id: %w", err)
	}

	holder := oc.Input.TicketHolderName
	if holder == "" {
		holder = oc.Input.PurchaserName
	}

	now := time.Now().UTC()
	tickets := make([]*Ticket, 0, ticketCount(oc.LineItems))
	seq := 0
	for _, li := range oc.LineItems {
		for i := 0; i < li.Quantity; i++ {
			seq++
			tickets = append(tickets, &Ticket{
				ID:           uuid.NewSHA1(orderUUID, []byte(fmt.Sprintf("ticket-%d", seq))).String(),
				OrderID:      oc.Order.ID,
				EventID:      oc.Event.ID,
				TicketTypeID: li.TicketTypeID,
				HolderName:   holder,
				Seq:          seq,
				Status:       TicketStatusValid,
				IssuedAt:     now,
			})
		}
	}

	// Fan out per-ticket token and QR generation; each goroutine writes to
	// its own output slot and reads only immutable prepared data.
	payloads := make([]TicketPayload, len(tickets))
	var wg sync.WaitGroup
	var mu sync.Mutex
	var firstErr error
	for i, ticket := range tickets {
		wg.Add(1)
		go func(i int, ticket *Ticket) {
			defer wg.Done()
			payload, err := w.encoder.Encode(ctx, ticket, oc.Event)
			if err != nil {
				mu.Lock()
				if firstErr == nil {
					firstErr = err
				}
				mu.Unlock()
				return
			}
			payloads[i] = payload
		}(i, ticket)
	}
	wg.Wait()
	if firstErr != nil {
		return oc, fmt.Errorf("encode tickets: %w", firstErr)
	}

	if err := w.tickets.InsertBatch(ctx, tickets); err != nil {
		return oc, fmt.Errorf("insert tickets: %w", err)
	}
	if err := w.orders.UpdateStatus(ctx, oc.Order.ID, OrderStatusPaid, nil); err != nil {
		return oc, fmt.Errorf("mark order paid: %w", err)
	}

	paid := *oc.Order
	paid.Status = OrderStatusPaid
	paid.UpdatedAt = time.Now().UTC()
	oc.Order = &paid
	oc.Tickets = tickets
	oc.EmailPayloads = payloads
	return oc, nil
}

// cancelTickets is the compensation for generateTickets.
func (w *Workflow) cancelTickets(ctx context.Context, oc OrderContext) error {
	if oc.Order == nil {
		return nil
	}
	return w.tickets.CancelByOrder(ctx, oc.Order.ID)
}

// sendEmail delivers the confirmation. Non-critical: a delivery failure is
// logged and never fails the purchase, and delivery is never undone.
func (w *Workflow) sendEmail(ctx context.Context, oc OrderContext) (OrderContext, error) {
	if err := w.mailer.SendOrderConfirmation(ctx, oc.Event, oc.Order, oc.EmailPayloads); err != nil {
		return oc, err
	}
	oc.EmailSent = true
	return oc, nil
}

// updateWaitlist auto-converts a matching waitlist entry for the purchaser.
// Non-critical and idempotent.
func (w *Workflow) updateWaitlist(ctx context.Context, oc OrderContext) (OrderContext, error) {
	converted, err := w.waitlist.ConvertEntry(ctx, oc.Event.ID, oc.Input.PurchaserEmail)
	if err != nil {
		return oc, err
	}
	oc.WaitlistConverted = converted
	return oc, nil
}

func ticketCount(items []LineItem) int {
	total := 0
	for _, li := range items {
		total += li.Quantity
	}
	return total
}
