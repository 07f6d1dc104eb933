package order

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"
)

type fakeCatalog struct {
	events map[string]*Event
	calls  int
}

func (f *fakeCatalog) GetEvent(_ context.Context, eventID string) (*Event, error) {
	f.calls++
	event, ok := f.events[eventID]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrEventNotFound, eventID)
	}
	return event, nil
}

type fakeInventory struct {
	mu           sync.Mutex
	failReserves int
	soldOut      bool
	reserves     int
	releases     []string
}

func (f *fakeInventory) Reserve(_ context.Context, eventID string, items []ReservationItem) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.reserves++
	if f.soldOut {
		return "", fmt.Errorf("%w: GA sold out", ErrInsufficientInventory)
	}
	if f.failReserves > 0 {
		f.failReserves--
		return "", errors.New("inventory backend unavailable")
	}
	return fmt.Sprintf("res-%d", f.reserves), nil
}

func (f *fakeInventory) Release(_ context.Context, eventID, reservationID string, items []ReservationItem) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.releases = append(f.releases, reservationID)
	return nil
}

type fakeOrderStore struct {
	mu       sync.Mutex
	failNext bool
	inserted []*Order
	statuses map[string]OrderStatus
	metadata map[string]map[string]string
}

func newFakeOrderStore() *fakeOrderStore {
	return &fakeOrderStore{
		statuses: make(map[string]OrderStatus),
		metadata: make(map[string]map[string]string),
	}
}

func (f *fakeOrderStore) Insert(_ context.Context, o *Order) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failNext {
		f.failNext = false
		return errors.New("insert rejected")
	}
	f.inserted = append(f.inserted, o)
	f.statuses[o.ID] = o.Status
	return nil
}

func (f *fakeOrderStore) UpdateStatus(_ context.Context, orderID string, status OrderStatus, metadata map[string]string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.statuses[orderID] = status
	if metadata != nil {
		f.metadata[orderID] = metadata
	}
	return nil
}

func (f *fakeOrderStore) Get(_ context.Context, orderID string) (*Order, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, o := range f.inserted {
		if o.ID == orderID {
			return o, nil
		}
	}
	return nil, errors.New("order not found")
}

type fakeTicketStore struct {
	mu          sync.Mutex
	failInsert  bool
	batchCalls  int
	inserted    []*Ticket
	cancelCalls []string
}

func (f *fakeTicketStore) InsertBatch(_ context.Context, tickets []*Ticket) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.batchCalls++
	if f.failInsert {
		return errors.New("ticket write failed")
	}
	f.inserted = append(f.inserted, tickets...)
	return nil
}

func (f *fakeTicketStore) CancelByOrder(_ context.Context, orderID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.cancelCalls = append(f.cancelCalls, orderID)
	return nil
}

func (f *fakeTicketStore) ListByOrder(_ context.Context, orderID string) ([]*Ticket, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]*Ticket, 0)
	for _, tk := range f.inserted {
		if tk.OrderID == orderID {
			out = append(out, tk)
		}
	}
	return out, nil
}

type fakeEncoder struct {
	mu    sync.Mutex
	fail  bool
	calls int
}

func (f *fakeEncoder) Encode(_ context.Context, ticket *Ticket, event *Event) (TicketPayload, error) {
	f.mu.Lock()
	f.calls++
	f.mu.Unlock()
	if f.fail {
		return TicketPayload{}, errors.New("signing key unavailable")
	}
	return TicketPayload{
		TicketID:   ticket.ID,
		HolderName: ticket.HolderName,
		Token:      "tok-" + ticket.ID,
		QRPNG:      []byte{0x89, 0x50},
	}, nil
}

type fakeMailer struct {
	fail bool
	sent int
}

func (f *fakeMailer) SendOrderConfirmation(_ context.Context, event *Event, o *Order, payloads []TicketPayload) error {
	if f.fail {
		return errors.New("smtp unreachable")
	}
	f.sent++
	return nil
}

type fakeWaitlist struct {
	converted bool
	fail      bool
}

func (f *fakeWaitlist) ConvertEntry(_ context.Context, eventID, email string) (bool, error) {
	if f.fail {
		return false, errors.New("waitlist unavailable")
	}
	return f.converted, nil
}

type workflowFixture struct {
	catalog   *fakeCatalog
	inventory *fakeInventory
	orders    *fakeOrderStore
	tickets   *fakeTicketStore
	encoder   *fakeEncoder
	mailer    *fakeMailer
	waitlist  *fakeWaitlist
}

func newFixture() *workflowFixture {
	return &workflowFixture{
		catalog: &fakeCatalog{events: map[string]*Event{
			"ev-1": {
				ID:    "ev-1",
				Name:  "Warehouse Live",
				Venue: "Pier 9",
				TicketTypes: []TicketType{
					{ID: "ga", Name: "General Admission", Price: 4500, Fee: 350, Capacity: 100},
					{ID: "vip", Name: "VIP", Price: 12000, Fee: 900, Capacity: 10},
				},
			},
		}},
		inventory: &fakeInventory{},
		orders:    newFakeOrderStore(),
		tickets:   &fakeTicketStore{},
		encoder:   &fakeEncoder{},
		mailer:    &fakeMailer{},
		waitlist:  &fakeWaitlist{converted: true},
	}
}

func (fx *workflowFixture) workflow(t *testing.T, cfg Config, opts ...Option) *Workflow {
	t.Helper()
	w, err := NewWorkflow(Deps{
		Catalog:   fx.catalog,
		Inventory: fx.inventory,
		Orders:    fx.orders,
		Tickets:   fx.tickets,
		Encoder:   fx.encoder,
		Mailer:    fx.mailer,
		Waitlist:  fx.waitlist,
	}, cfg, opts...)
	if err != nil {
		t.Fatalf("NewWorkflow() error = %v", err)
	}
	return w
}

func validInput() Input {
	return Input{
		EventID:        "ev-1",
		PurchaserEmail: "ada@example.com",
		PurchaserName:  "Ada Lovelace",
		LineItems: []InputLineItem{
			{TicketTypeID: "ga", Quantity: 2, UnitPrice: 4500, UnitFee: 350},
			{TicketTypeID: "vip", Quantity: 1, UnitPrice: 12000, UnitFee: 900},
		},
	}
}

func TestWorkflowSuccessfulPurchase(t *testing.T) {
	fx := newFixture()
	w := fx.workflow(t, Config{})

	res := w.Execute(context.Background(), validInput())
	if !res.Success {
		t.Fatalf("expected success, got failed step %q: %v", res.FailedStep, res.Err)
	}
	if res.Order == nil || res.Order.Status != OrderStatusPaid {
		t.Fatalf("expected paid order, got %+v", res.Order)
	}
	if res.Order.Subtotal != 2*4500+12000 {
		t.Fatalf("unexpected subtotal %d", res.Order.Subtotal)
	}
	if res.Order.Fees != 2*350+900 {
		t.Fatalf("unexpected fees %d", res.Order.Fees)
	}
	if res.Order.Total != res.Order.Subtotal+res.Order.Fees {
		t.Fatalf("unexpected total %d", res.Order.Total)
	}
	if len(res.TicketPayloads) != 3 {
		t.Fatalf("expected 3 ticket payloads, got %d", len(res.TicketPayloads))
	}
	if !res.EmailSent || fx.mailer.sent != 1 {
		t.Fatal("expected confirmation email delivery")
	}
	if !res.WaitlistConverted {
		t.Fatal("expected waitlist conversion")
	}
	if fx.orders.statuses[res.Order.ID] != OrderStatusPaid {
		t.Fatalf("order store status = %s, want paid", fx.orders.statuses[res.Order.ID])
	}
}

func TestWorkflowBatchInsertsTicketsOnce(t *testing.T) {
	fx := newFixture()
	w := fx.workflow(t, Config{})

	input := validInput()
	input.LineItems = []InputLineItem{{TicketTypeID: "ga", Quantity: 7, UnitPrice: 4500, UnitFee: 350}}

	res := w.Execute(context.Background(), input)
	if !res.Success {
		t.Fatalf("Execute() failed: %v", res.Err)
	}
	if fx.tickets.batchCalls != 1 {
		t.Fatalf("expected exactly one batch insert for 7 tickets, got %d", fx.tickets.batchCalls)
	}
	if len(fx.tickets.inserted) != 7 {
		t.Fatalf("expected 7 inserted tickets, got %d", len(fx.tickets.inserted))
	}
	if fx.encoder.calls != 7 {
		t.Fatalf("expected one encode per ticket, got %d", fx.encoder.calls)
	}

	seen := make(map[string]struct{})
	for i, tk := range fx.tickets.inserted {
		if tk.Seq != i+1 {
			t.Fatalf("ticket %d has seq %d", i, tk.Seq)
		}
		if _, dup := seen[tk.ID]; dup {
			t.Fatalf("duplicate ticket id %s", tk.ID)
		}
		seen[tk.ID] = struct{}{}
	}
}

func TestWorkflowInsufficientInventory(t *testing.T) {
	fx := newFixture()
	fx.inventory.soldOut = true
	w := fx.workflow(t, Config{})

	res := w.Execute(context.Background(), validInput())
	if res.Success {
		t.Fatal("expected failure")
	}
	if res.FailedStep != StepReserveInventory {
		t.Fatalf("expected failed step %s, got %q", StepReserveInventory, res.FailedStep)
	}
	if !IsSoldOut(res.Err) {
		t.Fatalf("expected sold-out classification, got %v", res.Err)
	}
	if len(res.CompensatedSteps) != 1 || res.CompensatedSteps[0] != StepLoadEvent {
		t.Fatalf("unexpected compensated steps: %v", res.CompensatedSteps)
	}
	if len(fx.inventory.releases) != 0 {
		t.Fatalf("nothing was reserved, release must not be called: %v", fx.inventory.releases)
	}
	if len(fx.orders.inserted) != 0 {
		t.Fatal("no order row may be created")
	}
}

func TestWorkflowTicketFailureCompensatesOrderAndInventory(t *testing.T) {
	fx := newFixture()
	fx.tickets.failInsert = true
	w := fx.workflow(t, Config{})

	res := w.Execute(context.Background(), validInput())
	if res.Success {
		t.Fatal("expected failure")
	}
	if res.FailedStep != StepGenerateTickets {
		t.Fatalf("expected failed step %s, got %q", StepGenerateTickets, res.FailedStep)
	}

	want := []string{StepCreateOrder, StepReserveInventory, StepLoadEvent}
	if len(res.CompensatedSteps) != len(want) {
		t.Fatalf("unexpected compensated steps: %v", res.CompensatedSteps)
	}
	for i, step := range want {
		if res.CompensatedSteps[i] != step {
			t.Fatalf("compensation order mismatch: got %v, want %v", res.CompensatedSteps, want)
		}
	}

	orderID := fx.orders.inserted[0].ID
	if fx.orders.statuses[orderID] != OrderStatusCancelled {
		t.Fatalf("order status = %s, want cancelled", fx.orders.statuses[orderID])
	}
	if fx.orders.metadata[orderID]["cancellation_reason"] == "" {
		t.Fatal("expected cancellation reason in order metadata")
	}
	if len(fx.inventory.releases) != 1 {
		t.Fatalf("expected exactly one inventory release, got %d", len(fx.inventory.releases))
	}
	if len(res.CompensationErrors) != 0 {
		t.Fatalf("unexpected compensation errors: %v", res.CompensationErrors)
	}
}

func TestWorkflowEmailFailureDoesNotFailPurchase(t *testing.T) {
	fx := newFixture()
	fx.mailer.fail = true
	w := fx.workflow(t, Config{})

	res := w.Execute(context.Background(), validInput())
	if !res.Success {
		t.Fatalf("expected success despite email failure, got %v", res.Err)
	}
	if res.EmailSent {
		t.Fatal("expected emailSent=false after delivery failure")
	}
	if res.FailedStep != "" {
		t.Fatalf("email failure must not surface as failed step, got %q", res.FailedStep)
	}
	if !res.WaitlistConverted {
		t.Fatal("waitlist step must still run after email failure")
	}
}

func TestWorkflowWaitlistFailureDoesNotFailPurchase(t *testing.T) {
	fx := newFixture()
	fx.waitlist.fail = true
	w := fx.workflow(t, Config{})

	res := w.Execute(context.Background(), validInput())
	if !res.Success {
		t.Fatalf("expected success despite waitlist failure, got %v", res.Err)
	}
	if res.WaitlistConverted {
		t.Fatal("expected waitlistConverted=false after failure")
	}
}

func TestWorkflowEventNotFound(t *testing.T) {
	fx := newFixture()
	w := fx.workflow(t, Config{})

	input := validInput()
	input.EventID = "ev-missing"

	res := w.Execute(context.Background(), input)
	if res.Success {
		t.Fatal("expected failure")
	}
	if res.FailedStep != StepLoadEvent {
		t.Fatalf("expected failed step %s, got %q", StepLoadEvent, res.FailedStep)
	}
	if !errors.Is(res.Err, ErrEventNotFound) {
		t.Fatalf("expected ErrEventNotFound, got %v", res.Err)
	}
	if len(res.CompensatedSteps) != 0 {
		t.Fatalf("nothing completed, nothing to compensate: %v", res.CompensatedSteps)
	}
}

func TestWorkflowUnknownTicketType(t *testing.T) {
	fx := newFixture()
	w := fx.workflow(t, Config{})

	input := validInput()
	input.LineItems = []InputLineItem{{TicketTypeID: "backstage", Quantity: 1}}

	res := w.Execute(context.Background(), input)
	if res.Success {
		t.Fatal("expected failure")
	}
	if !errors.Is(res.Err, ErrUnknownTicketType) {
		t.Fatalf("expected ErrUnknownTicketType, got %v", res.Err)
	}
}

func TestWorkflowRejectsInvalidInput(t *testing.T) {
	fx := newFixture()
	w := fx.workflow(t, Config{})

	res := w.Execute(context.Background(), Input{PurchaserEmail: "not-an-email"})
	if res.Success {
		t.Fatal("expected rejection")
	}
	if !errors.Is(res.Err, ErrInvalidInput) {
		t.Fatalf("expected ErrInvalidInput, got %v", res.Err)
	}
	if fx.catalog.calls != 0 {
		t.Fatal("invalid input must be rejected before the saga runs")
	}
}

func TestWorkflowReserveRetriesTransientFailure(t *testing.T) {
	fx := newFixture()
	fx.inventory.failReserves = 2
	w := fx.workflow(t, Config{ReserveRetries: 2, ReserveRetryDelay: time.Millisecond})

	res := w.Execute(context.Background(), validInput())
	if !res.Success {
		t.Fatalf("expected success after retries, got %v", res.Err)
	}
	if fx.inventory.reserves != 3 {
		t.Fatalf("expected 3 reserve attempts, got %d", fx.inventory.reserves)
	}
}

func TestWorkflowEncoderFailureCancelsTickets(t *testing.T) {
	fx := newFixture()
	fx.encoder.fail = true
	w := fx.workflow(t, Config{})

	res := w.Execute(context.Background(), validInput())
	if res.Success {
		t.Fatal("expected failure")
	}
	if res.FailedStep != StepGenerateTickets {
		t.Fatalf("expected failed step %s, got %q", StepGenerateTickets, res.FailedStep)
	}
	if fx.tickets.batchCalls != 0 {
		t.Fatal("no batch insert may happen when encoding fails")
	}
	if len(fx.tickets.cancelCalls) != 1 {
		t.Fatalf("expected ticket cancellation for the order, got %v", fx.tickets.cancelCalls)
	}
}

func TestNewWorkflowValidatesDeps(t *testing.T) {
	fx := newFixture()
	_, err := NewWorkflow(Deps{
		Catalog:   fx.catalog,
		Inventory: fx.inventory,
		Orders:    fx.orders,
		Tickets:   fx.tickets,
		Encoder:   fx.encoder,
		Mailer:    fx.mailer,
	}, Config{})
	if err == nil {
		t.Fatal("expected error for missing waitlist dependency")
	}
}
