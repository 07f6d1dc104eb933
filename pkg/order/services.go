package order

import "context"

// EventCatalog reads event records. Implementations return ErrEventNotFound
// for unknown ids.
type EventCatalog interface {
	GetEvent(ctx context.Context, eventID string) (*Event, error)
}

// Inventory is the atomic check-and-reserve primitive. Reserve either
// reserves every requested item or reserves nothing and returns
// ErrInsufficientInventory; atomicity with respect to concurrent callers is
// the implementation's responsibility, the workflow only trusts it.
type Inventory interface {
	Reserve(ctx context.Context, eventID string, items []ReservationItem) (reservationID string, err error)
	Release(ctx context.Context, eventID, reservationID string, items []ReservationItem) error
}

// OrderStore persists order rows.
type OrderStore interface {
	Insert(ctx context.Context, o *Order) error
	UpdateStatus(ctx context.Context, orderID string, status OrderStatus, metadata map[string]string) error
	Get(ctx context.Context, orderID string) (*Order, error)
}

// TicketStore persists issued tickets. InsertBatch writes all rows in one
// store operation.
type TicketStore interface {
	InsertBatch(ctx context.Context, tickets []*Ticket) error
	CancelByOrder(ctx context.Context, orderID string) error
	ListByOrder(ctx context.Context, orderID string) ([]*Ticket, error)
}

// TicketEncoder derives the cryptographic admission token and QR image for
// one ticket. The derivation algorithm is outside the workflow's concern.
type TicketEncoder interface {
	Encode(ctx context.Context, ticket *Ticket, event *Event) (TicketPayload, error)
}

// Mailer renders and delivers the order confirmation. Delivery must be safe
// to retry; it is never undone.
type Mailer interface {
	SendOrderConfirmation(ctx context.Context, event *Event, o *Order, payloads []TicketPayload) error
}

// Waitlist converts a matching waitlist entry for a purchaser. The operation
// is idempotent and keyed by event plus purchaser identity.
type Waitlist interface {
	ConvertEntry(ctx context.Context, eventID, purchaserEmail string) (converted bool, err error)
}
