// Package memory provides an in-memory implementation of the storage
// interface, used in tests and single-node development setups.
package memory

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/gateline/gateline/pkg/order"
	"github.com/gateline/gateline/pkg/storage"
)

// MemoryStorage implements the Store interface with maps. All reads and
// writes copy, so callers never alias stored state.
type MemoryStorage struct {
	mu      sync.RWMutex
	events  map[string]*order.Event
	orders  map[string]*order.Order
	tickets map[string][]*order.Ticket // orderID -> tickets
}

// NewMemoryStorage creates an empty in-memory store.
func NewMemoryStorage() *MemoryStorage {
	return &MemoryStorage{
		events:  make(map[string]*order.Event),
		orders:  make(map[string]*order.Order),
		tickets: make(map[string][]*order.Ticket),
	}
}

func cloneEvent(e *order.Event) *order.Event {
	c := *e
	c.TicketTypes = append([]order.TicketType(nil), e.TicketTypes...)
	return &c
}

func cloneOrder(o *order.Order) *order.Order {
	c := *o
	if o.Metadata != nil {
		c.Metadata = make(map[string]string, len(o.Metadata))
		for k, v := range o.Metadata {
			c.Metadata[k] = v
		}
	}
	return &c
}

func cloneTicket(t *order.Ticket) *order.Ticket {
	c := *t
	return &c
}

// SaveEvent writes an event catalog record.
func (m *MemoryStorage) SaveEvent(_ context.Context, event *order.Event) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.events[event.ID] = cloneEvent(event)
	return nil
}

// GetEvent retrieves an event by ID.
func (m *MemoryStorage) GetEvent(_ context.Context, id string) (*order.Event, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	event, ok := m.events[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", order.ErrEventNotFound, id)
	}
	return cloneEvent(event), nil
}

// ListEvents lists events with pagination.
func (m *MemoryStorage) ListEvents(_ context.Context, filter *storage.EventFilter) ([]*order.Event, int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	events := make([]*order.Event, 0, len(m.events))
	for _, e := range m.events {
		events = append(events, cloneEvent(e))
	}

	total := len(events)
	if filter != nil && filter.Limit > 0 {
		start := filter.Offset
		end := filter.Offset + filter.Limit
		if start > len(events) {
			start = len(events)
		}
		if end > len(events) {
			end = len(events)
		}
		events = events[start:end]
	}
	return events, total, nil
}

// Insert creates a new order row. Inserting an existing ID fails.
func (m *MemoryStorage) Insert(_ context.Context, o *order.Order) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, exists := m.orders[o.ID]; exists {
		return &storage.DuplicateKeyError{EntityType: "order", ID: o.ID}
	}
	m.orders[o.ID] = cloneOrder(o)
	return nil
}

// UpdateStatus transitions an order's status and merges metadata.
func (m *MemoryStorage) UpdateStatus(_ context.Context, orderID string, status order.OrderStatus, metadata map[string]string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	o, ok := m.orders[orderID]
	if !ok {
		return &storage.NotFoundError{EntityType: "order", ID: orderID}
	}
	o.Status = status
	o.UpdatedAt = time.Now().UTC()
	if len(metadata) > 0 {
		if o.Metadata == nil {
			o.Metadata = make(map[string]string, len(metadata))
		}
		for k, v := range metadata {
			o.Metadata[k] = v
		}
	}
	return nil
}

// Get retrieves an order by ID.
func (m *MemoryStorage) Get(_ context.Context, orderID string) (*order.Order, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	o, ok := m.orders[orderID]
	if !ok {
		return nil, &storage.NotFoundError{EntityType: "order", ID: orderID}
	}
	return cloneOrder(o), nil
}

// ListOrders lists orders with optional filtering and pagination.
func (m *MemoryStorage) ListOrders(_ context.Context, filter *storage.OrderFilter) ([]*order.Order, int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	orders := make([]*order.Order, 0, len(m.orders))
	for _, o := range m.orders {
		if filter != nil {
			if filter.Status != "" && o.Status != filter.Status {
				continue
			}
			if filter.EventID != "" && o.EventID != filter.EventID {
				continue
			}
		}
		orders = append(orders, cloneOrder(o))
	}

	total := len(orders)
	if filter != nil && filter.Limit > 0 {
		start := filter.Offset
		end := filter.Offset + filter.Limit
		if start > len(orders) {
			start = len(orders)
		}
		if end > len(orders) {
			end = len(orders)
		}
		orders = orders[start:end]
	}
	return orders, total, nil
}

// InsertBatch writes all tickets of an order atomically.
func (m *MemoryStorage) InsertBatch(_ context.Context, tickets []*order.Ticket) error {
	if len(tickets) == 0 {
		return nil
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	for _, t := range tickets {
		m.tickets[t.OrderID] = append(m.tickets[t.OrderID], cloneTicket(t))
	}
	return nil
}

// CancelByOrder flips every ticket of an order to cancelled.
func (m *MemoryStorage) CancelByOrder(_ context.Context, orderID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, t := range m.tickets[orderID] {
		t.Status = order.TicketStatusCancelled
	}
	return nil
}

// ListByOrder lists all tickets of an order.
func (m *MemoryStorage) ListByOrder(_ context.Context, orderID string) ([]*order.Ticket, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	stored := m.tickets[orderID]
	tickets := make([]*order.Ticket, 0, len(stored))
	for _, t := range stored {
		tickets = append(tickets, cloneTicket(t))
	}
	return tickets, nil
}

// Close is a no-op for the in-memory store.
func (m *MemoryStorage) Close() error {
	return nil
}
