// Package order implements the ticket-purchase workflow: a six-step saga
// that loads the event, reserves inventory, creates the order, issues
// tickets, notifies the purchaser and converts a matching waitlist entry.
package order

import "time"

// Money is an amount in the smallest currency unit (cents).
type Money int64

// TicketType is one sellable admission class of an event.
type TicketType struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	Price    Money  `json:"price"`
	Fee      Money  `json:"fee"`
	Capacity int    `json:"capacity"`
}

// Event is the catalog record a purchase is made against.
type Event struct {
	ID          string       `json:"id"`
	Name        string       `json:"name"`
	Venue       string       `json:"venue"`
	StartsAt    time.Time    `json:"starts_at"`
	TicketTypes []TicketType `json:"ticket_types"`
}

// TicketTypeByID returns the ticket type with the given id, if present.
func (e *Event) TicketTypeByID(id string) (TicketType, bool) {
	for _, tt := range e.TicketTypes {
		if tt.ID == id {
			return tt, true
		}
	}
	return TicketType{}, false
}

// OrderStatus is the lifecycle state of an order row.
type OrderStatus string

const (
	OrderStatusPending   OrderStatus = "pending"
	OrderStatusPaid      OrderStatus = "paid"
	OrderStatusCancelled OrderStatus = "cancelled"
)

// Order is the purchase record.
type Order struct {
	ID              string            `json:"id"`
	EventID         string            `json:"event_id"`
	PurchaserEmail  string            `json:"purchaser_email"`
	PurchaserName   string            `json:"purchaser_name"`
	PurchaserUserID string            `json:"purchaser_user_id,omitempty"`
	Status          OrderStatus       `json:"status"`
	Subtotal        Money             `json:"subtotal"`
	Fees            Money             `json:"fees"`
	Total           Money             `json:"total"`
	LineItemsJSON   string            `json:"line_items_json"`
	PromoCodeID     string            `json:"promo_code_id,omitempty"`
	Metadata        map[string]string `json:"metadata,omitempty"`
	CreatedAt       time.Time         `json:"created_at"`
	UpdatedAt       time.Time         `json:"updated_at"`
}

// TicketStatus is the lifecycle state of an issued ticket.
type TicketStatus string

const (
	TicketStatusValid     TicketStatus = "valid"
	TicketStatusCancelled TicketStatus = "cancelled"
)

// Ticket is one issued admission unit.
type Ticket struct {
	ID           string       `json:"id"`
	OrderID      string       `json:"order_id"`
	EventID      string       `json:"event_id"`
	TicketTypeID string       `json:"ticket_type_id"`
	HolderName   string       `json:"holder_name"`
	Seq          int          `json:"seq"`
	Status       TicketStatus `json:"status"`
	IssuedAt     time.Time    `json:"issued_at"`
}

// TicketPayload is the per-ticket artifact delivered to the purchaser:
// the signed admission token and its QR rendering. Token derivation is the
// TicketEncoder collaborator's concern.
type TicketPayload struct {
	TicketID   string `json:"ticket_id"`
	TypeName   string `json:"type_name"`
	HolderName string `json:"holder_name"`
	Token      string `json:"token"`
	QRPNG      []byte `json:"qr_png,omitempty"`
}

// LineItem is a normalized purchase row computed from the input against the
// event's ticket types.
type LineItem struct {
	TicketTypeID string `json:"ticket_type_id"`
	DisplayName  string `json:"display_name"`
	Quantity     int    `json:"quantity"`
	UnitPrice    Money  `json:"unit_price"`
	UnitFee      Money  `json:"unit_fee"`
	LineTotal    Money  `json:"line_total"`
}

// Totals is the price summary of an order.
type Totals struct {
	Subtotal Money `json:"subtotal"`
	Fees     Money `json:"fees"`
	Total    Money `json:"total"`
}

// ReservationItem is one ticket-type quantity in an inventory reservation.
type ReservationItem struct {
	TicketTypeID string `json:"ticket_type_id"`
	Quantity     int    `json:"quantity"`
}
