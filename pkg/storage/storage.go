// Package storage provides persistent storage for events, orders and tickets.
package storage

import (
	"context"
	"fmt"

	"github.com/gateline/gateline/pkg/order"
)

// Store is the persistence surface of the platform. It satisfies the
// workflow's EventCatalog, OrderStore and TicketStore collaborator
// interfaces.
type Store interface {
	// Event catalog
	SaveEvent(ctx context.Context, event *order.Event) error
	GetEvent(ctx context.Context, id string) (*order.Event, error)
	ListEvents(ctx context.Context, filter *EventFilter) ([]*order.Event, int, error)

	// Orders
	Insert(ctx context.Context, o *order.Order) error
	UpdateStatus(ctx context.Context, orderID string, status order.OrderStatus, metadata map[string]string) error
	Get(ctx context.Context, orderID string) (*order.Order, error)
	ListOrders(ctx context.Context, filter *OrderFilter) ([]*order.Order, int, error)

	// Tickets
	InsertBatch(ctx context.Context, tickets []*order.Ticket) error
	CancelByOrder(ctx context.Context, orderID string) error
	ListByOrder(ctx context.Context, orderID string) ([]*order.Ticket, error)

	// Lifecycle
	Close() error
}

// EventFilter defines pagination for listing events.
type EventFilter struct {
	Limit  int `json:"limit"`
	Offset int `json:"offset"`
}

// OrderFilter defines filtering options for listing orders.
type OrderFilter struct {
	EventID string            `json:"event_id,omitempty"`
	Status  order.OrderStatus `json:"status,omitempty"`
	Limit   int               `json:"limit"`
	Offset  int               `json:"offset"`
}

// NotFoundError indicates that the requested entity was not found.
type NotFoundError struct {
	EntityType string
	ID         string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s not found: %s", e.EntityType, e.ID)
}

// DuplicateKeyError indicates that an entity with the given ID already exists.
type DuplicateKeyError struct {
	EntityType string
	ID         string
}

func (e *DuplicateKeyError) Error() string {
	return fmt.Sprintf("%s already exists: %s", e.EntityType, e.ID)
}

// StorageUnavailableError indicates that the storage backend is unavailable.
type StorageUnavailableError struct {
	Cause error
}

func (e *StorageUnavailableError) Error() string {
	return fmt.Sprintf("storage unavailable: %v", e.Cause)
}

func (e *StorageUnavailableError) Unwrap() error {
	return e.Cause
}

// SerializationError indicates a failure in data serialization/deserialization.
type SerializationError struct {
	Operation string
	Cause     error
}

func (e *SerializationError) Error() string {
	return fmt.Sprintf("serialization error during %s: %v", e.Operation, e.Cause)
}

func (e *SerializationError) Unwrap() error {
	return e.Cause
}
