package order

import "errors"

var (
	// ErrEventNotFound is returned by LoadEvent for unknown event ids.
	ErrEventNotFound = errors.New("event not found")

	// ErrUnknownTicketType is returned when an input line item names a
	// ticket type the event does not sell.
	ErrUnknownTicketType = errors.New("unknown ticket type")

	// ErrInsufficientInventory is returned by the inventory primitive when
	// the requested quantities cannot be reserved.
	ErrInsufficientInventory = errors.New("insufficient inventory")

	// ErrInvalidInput is returned before the saga runs when the order input
	// fails validation.
	ErrInvalidInput = errors.New("invalid order input")
)

// IsSoldOut reports whether the failure should surface to the purchaser as
// "sold out" rather than a generic error.
func IsSoldOut(err error) bool {
	return errors.Is(err, ErrInsufficientInventory)
}
