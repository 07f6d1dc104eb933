package order

// InputLineItem is one requested ticket-type quantity in a purchase.
type InputLineItem struct {
	TicketTypeID string `json:"ticket_type_id" validate:"required"`
	Quantity     int    `json:"quantity" validate:"required,min=1"`
	UnitPrice    int64  `json:"unit_price" validate:"min=0"`
	UnitFee      int64  `json:"unit_fee" validate:"min=0"`
	DisplayName  string `json:"display_name"`
}

// Input is the purchase request handed to the workflow.
type Input struct {
	EventID          string            `json:"event_id" validate:"required"`
	PurchaserEmail   string            `json:"purchaser_email" validate:"required,email"`
	PurchaserName    string            `json:"purchaser_name" validate:"required"`
	PurchaserUserID  string            `json:"purchaser_user_id,omitempty"`
	LineItems        []InputLineItem   `json:"line_items" validate:"required,min=1,dive"`
	Metadata         map[string]string `json:"metadata,omitempty"`
	TicketHolderName string            `json:"ticket_holder_name,omitempty"`
	PromoCodeID      string            `json:"promo_code_id,omitempty"`
}

// OrderContext is the value threaded through the saga. Fields accumulate as
// steps run; each field is written by exactly one step and only read by later
// ones. Steps receive it by value and return an updated copy, never mutate
// shared state.
type OrderContext struct {
	Input Input

	// Set by LoadEvent.
	Event         *Event
	Totals        Totals
	LineItems     []LineItem
	LineItemsJSON string

	// Set by ReserveInventory.
	ReservationID   string
	ReservedTickets []ReservationItem

	// Set by CreateOrder, status advanced by GenerateTickets.
	Order *Order

	// Set by GenerateTickets.
	Tickets       []*Ticket
	EmailPayloads []TicketPayload

	// Set by SendEmail.
	EmailSent bool

	// Set by UpdateWaitlist.
	WaitlistConverted bool
}
