// Package inventory provides implementations of the order inventory
// primitive: an atomic multi-item check-and-reserve with matching release.
package inventory

import (
	"context"
	"fmt"
	"sync"

	"github.com/gateline/gateline/pkg/order"
	"github.com/google/uuid"
)

// Memory is an in-process inventory keyed by event and ticket type.
// Reserve is all-or-nothing under a single lock, so concurrent purchases
// of the last unit resolve to exactly one winner.
type Memory struct {
	mu           sync.Mutex
	remaining    map[string]map[string]int // eventID -> ticketTypeID -> units
	reservations map[string]reservation
}

type reservation struct {
	eventID string
	items   []order.ReservationItem
}

// NewMemory creates an empty in-memory inventory.
func NewMemory() *Memory {
	return &Memory{
		remaining:    make(map[string]map[string]int),
		reservations: make(map[string]reservation),
	}
}

// SetCapacity sets the remaining units for one ticket type of an event.
func (m *Memory) SetCapacity(eventID, ticketTypeID string, units int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	event, ok := m.remaining[eventID]
	if !ok {
		event = make(map[string]int)
		m.remaining[eventID] = event
	}
	event[ticketTypeID] = units
}

// SeedEvent loads capacities for every ticket type of an event.
func (m *Memory) SeedEvent(_ context.Context, event *order.Event) error {
	for _, tt := range event.TicketTypes {
		m.SetCapacity(event.ID, tt.ID, tt.Capacity)
	}
	return nil
}

// Remaining returns the units left for one ticket type.
func (m *Memory) Remaining(eventID, ticketTypeID string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.remaining[eventID][ticketTypeID]
}

// Reserve atomically decrements every requested ticket type or none of them.
func (m *Memory) Reserve(_ context.Context, eventID string, items []order.ReservationItem) (string, error) {
	if len(items) == 0 {
		return "", fmt.Errorf("no items to reserve")
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	event, ok := m.remaining[eventID]
	if !ok {
		return "", fmt.Errorf("%w: no inventory for event %s", order.ErrInsufficientInventory, eventID)
	}
	for _, item := range items {
		if event[item.TicketTypeID] < item.Quantity {
			return "", fmt.Errorf("%w: %s has %d left, requested %d",
				order.ErrInsufficientInventory, item.TicketTypeID, event[item.TicketTypeID], item.Quantity)
		}
	}
	for _, item := range items {
		event[item.TicketTypeID] -= item.Quantity
	}

	reservationID := uuid.NewString()
	m.reservations[reservationID] = reservation{eventID: eventID, items: items}
	return reservationID, nil
}

// Release returns the reserved units. Idempotent: releasing an unknown or
// already-released reservation is a no-op.
func (m *Memory) Release(_ context.Context, eventID, reservationID string, _ []order.ReservationItem) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	res, ok := m.reservations[reservationID]
	if !ok || res.eventID != eventID {
		return nil
	}
	delete(m.reservations, reservationID)

	event := m.remaining[eventID]
	for _, item := range res.items {
		event[item.TicketTypeID] += item.Quantity
	}
	return nil
}
