// Package badger provides a Badger-based implementation of the storage interface.
package badger

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/gateline/gateline/pkg/order"
	"github.com/gateline/gateline/pkg/storage"
)

// Config holds configuration for BadgerStorage.
type Config struct {
	Path              string
	SyncWrites        bool
	ValueLogFileSize  int64
	NumVersionsToKeep int
}

// BadgerStorage implements the Store interface using Badger.
type BadgerStorage struct {
	db     *badger.DB
	config *Config
}

// NewBadgerStorage creates a new Badger storage instance.
func NewBadgerStorage(config *Config) (*BadgerStorage, error) {
	opts := badger.DefaultOptions(config.Path)
	opts.SyncWrites = config.SyncWrites
	if config.ValueLogFileSize > 0 {
		opts.ValueLogFileSize = config.ValueLogFileSize
	}
	if config.NumVersionsToKeep > 0 {
		opts.NumVersionsToKeep = config.NumVersionsToKeep
	}

	db, err := badger.Open(opts)
	if err != nil {
		return nil, &storage.StorageUnavailableError{Cause: err}
	}

	return &BadgerStorage{
		db:     db,
		config: config,
	}, nil
}

// NewWithDB wraps an already-open Badger database. Used when the execution
// store and the order store share one database.
func NewWithDB(db *badger.DB) *BadgerStorage {
	return &BadgerStorage{db: db, config: &Config{}}
}

// Key generation functions
func eventKey(id string) []byte {
	return []byte(fmt.Sprintf("event:%s", id))
}

func orderKey(id string) []byte {
	return []byte(fmt.Sprintf("order:%s", id))
}

func orderIndexStatusKey(status order.OrderStatus, id string) []byte {
	return []byte(fmt.Sprintf("order:index:status:%s:%s", status, id))
}

func orderIndexEventKey(eventID, orderID string) []byte {
	return []byte(fmt.Sprintf("order:index:event:%s:%s", eventID, orderID))
}

func ticketKey(orderID, ticketID string) []byte {
	return []byte(fmt.Sprintf("ticket:%s:%s", orderID, ticketID))
}

// Serialization helpers
func serialize(v interface{}) ([]byte, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, &storage.SerializationError{
			Operation: "marshal",
			Cause:     err,
		}
	}
	return data, nil
}

func deserialize(data []byte, v interface{}) error {
	if err := json.Unmarshal(data, v); err != nil {
		return &storage.SerializationError{
			Operation: "unmarshal",
			Cause:     err,
		}
	}
	return nil
}

// SaveEvent writes an event catalog record.
func (b *BadgerStorage) SaveEvent(ctx context.Context, event *order.Event) error {
	data, err := serialize(event)
	if err != nil {
		return err
	}
	return b.db.Update(func(txn *badger.Txn) error {
		return txn.Set(eventKey(event.ID), data)
	})
}

// GetEvent retrieves an event by ID.
func (b *BadgerStorage) GetEvent(ctx context.Context, id string) (*order.Event, error) {
	var event order.Event

	err := b.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(eventKey(id))
		if err != nil {
			if err == badger.ErrKeyNotFound {
				return fmt.Errorf("%w: %s", order.ErrEventNotFound, id)
			}
			return err
		}
		return item.Value(func(val []byte) error {
			return deserialize(val, &event)
		})
	})

	if err != nil {
		return nil, err
	}
	return &event, nil
}

// ListEvents lists events with pagination.
func (b *BadgerStorage) ListEvents(ctx context.Context, filter *storage.EventFilter) ([]*order.Event, int, error) {
	var events []*order.Event

	err := b.db.View(func(txn *badger.Txn) error {
		prefix := []byte("event:")
		opts := badger.DefaultIteratorOptions
		opts.Prefix = prefix

		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Rewind(); it.Valid(); it.Next() {
			var event order.Event
			err := it.Item().Value(func(val []byte) error {
				return deserialize(val, &event)
			})
			if err != nil {
				continue
			}
			events = append(events, &event)
		}
		return nil
	})

	if err != nil {
		return nil, 0, err
	}

	total := len(events)
	events = paginate(events, filter)
	return events, total, nil
}

// Insert creates a new order row. Inserting an existing ID fails.
func (b *BadgerStorage) Insert(ctx context.Context, o *order.Order) error {
	data, err := serialize(o)
	if err != nil {
		return err
	}

	return b.db.Update(func(txn *badger.Txn) error {
		if _, err := txn.Get(orderKey(o.ID)); err == nil {
			return &storage.DuplicateKeyError{EntityType: "order", ID: o.ID}
		} else if err != badger.ErrKeyNotFound {
			return err
		}

		if err := txn.Set(orderKey(o.ID), data); err != nil {
			return err
		}
		if err := txn.Set(orderIndexStatusKey(o.Status, o.ID), []byte{}); err != nil {
			return err
		}
		return txn.Set(orderIndexEventKey(o.EventID, o.ID), []byte{})
	})
}

// UpdateStatus transitions an order's status and merges metadata, keeping the
// status index in step. Read-modify-write transactions can conflict under
// concurrency; conflicts are retried.
func (b *BadgerStorage) UpdateStatus(ctx context.Context, orderID string, status order.OrderStatus, metadata map[string]string) error {
	for {
		err := b.updateStatusOnce(orderID, status, metadata)
		if err != badger.ErrConflict {
			return err
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}
	}
}

func (b *BadgerStorage) updateStatusOnce(orderID string, status order.OrderStatus, metadata map[string]string) error {
	return b.db.Update(func(txn *badger.Txn) error {
		o, err := b.getOrderInTxn(txn, orderID)
		if err != nil {
			return err
		}

		oldStatus := o.Status
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

		data, err := serialize(o)
		if err != nil {
			return err
		}
		if err := txn.Set(orderKey(orderID), data); err != nil {
			return err
		}

		if oldStatus != status {
			if err := txn.Delete(orderIndexStatusKey(oldStatus, orderID)); err != nil {
				return err
			}
			if err := txn.Set(orderIndexStatusKey(status, orderID), []byte{}); err != nil {
				return err
			}
		}
		return nil
	})
}

// Get retrieves an order by ID.
func (b *BadgerStorage) Get(ctx context.Context, orderID string) (*order.Order, error) {
	var o *order.Order
	err := b.db.View(func(txn *badger.Txn) error {
		var err error
		o, err = b.getOrderInTxn(txn, orderID)
		return err
	})
	if err != nil {
		return nil, err
	}
	return o, nil
}

func (b *BadgerStorage) getOrderInTxn(txn *badger.Txn, orderID string) (*order.Order, error) {
	item, err := txn.Get(orderKey(orderID))
	if err != nil {
		if err == badger.ErrKeyNotFound {
			return nil, &storage.NotFoundError{EntityType: "order", ID: orderID}
		}
		return nil, err
	}

	var o order.Order
	err = item.Value(func(val []byte) error {
		return deserialize(val, &o)
	})
	if err != nil {
		return nil, err
	}
	return &o, nil
}

// ListOrders lists orders with optional filtering and pagination.
func (b *BadgerStorage) ListOrders(ctx context.Context, filter *storage.OrderFilter) ([]*order.Order, int, error) {
	var orders []*order.Order

	err := b.db.View(func(txn *badger.Txn) error {
		var prefix []byte
		var fromIndex bool
		switch {
		case filter != nil && filter.Status != "":
			prefix = []byte(fmt.Sprintf("order:index:status:%s:", filter.Status))
			fromIndex = true
		case filter != nil && filter.EventID != "":
			prefix = []byte(fmt.Sprintf("order:index:event:%s:", filter.EventID))
			fromIndex = true
		default:
			prefix = []byte("order:")
		}

		opts := badger.DefaultIteratorOptions
		opts.Prefix = prefix
		opts.PrefetchValues = !fromIndex

		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Rewind(); it.Valid(); it.Next() {
			key := string(it.Item().Key())

			if fromIndex {
				// Index keys end in the order id. UUIDs carry no colons, so
				// the last segment is the whole id.
				parts := strings.Split(key, ":")
				orderID := parts[len(parts)-1]
				o, err := b.getOrderInTxn(txn, orderID)
				if err != nil {
					continue
				}
				if filter.EventID != "" && o.EventID != filter.EventID {
					continue
				}
				orders = append(orders, o)
				continue
			}

			// Full scan: skip index keys.
			if strings.HasPrefix(key, "order:index:") {
				continue
			}
			var o order.Order
			err := it.Item().Value(func(val []byte) error {
				return deserialize(val, &o)
			})
			if err != nil {
				continue
			}
			orders = append(orders, &o)
		}
		return nil
	})

	if err != nil {
		return nil, 0, err
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

// InsertBatch writes all tickets of an order in one transaction: either every
// ticket lands or none do.
func (b *BadgerStorage) InsertBatch(ctx context.Context, tickets []*order.Ticket) error {
	if len(tickets) == 0 {
		return nil
	}

	return b.db.Update(func(txn *badger.Txn) error {
		for _, t := range tickets {
			data, err := serialize(t)
			if err != nil {
				return err
			}
			if err := txn.Set(ticketKey(t.OrderID, t.ID), data); err != nil {
				return err
			}
		}
		return nil
	})
}

// CancelByOrder flips every ticket of an order to cancelled.
func (b *BadgerStorage) CancelByOrder(ctx context.Context, orderID string) error {
	return b.db.Update(func(txn *badger.Txn) error {
		prefix := []byte(fmt.Sprintf("ticket:%s:", orderID))
		opts := badger.DefaultIteratorOptions
		opts.Prefix = prefix

		it := txn.NewIterator(opts)
		defer it.Close()

		type pending struct {
			key  []byte
			data []byte
		}
		var updates []pending

		for it.Rewind(); it.Valid(); it.Next() {
			item := it.Item()
			var t order.Ticket
			err := item.Value(func(val []byte) error {
				return deserialize(val, &t)
			})
			if err != nil {
				return err
			}
			t.Status = order.TicketStatusCancelled

			data, err := serialize(&t)
			if err != nil {
				return err
			}
			updates = append(updates, pending{key: item.KeyCopy(nil), data: data})
		}

		for _, u := range updates {
			if err := txn.Set(u.key, u.data); err != nil {
				return err
			}
		}
		return nil
	})
}

// ListByOrder lists all tickets of an order.
func (b *BadgerStorage) ListByOrder(ctx context.Context, orderID string) ([]*order.Ticket, error) {
	var tickets []*order.Ticket

	err := b.db.View(func(txn *badger.Txn) error {
		prefix := []byte(fmt.Sprintf("ticket:%s:", orderID))
		opts := badger.DefaultIteratorOptions
		opts.Prefix = prefix

		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Rewind(); it.Valid(); it.Next() {
			var t order.Ticket
			err := it.Item().Value(func(val []byte) error {
				return deserialize(val, &t)
			})
			if err != nil {
				continue
			}
			tickets = append(tickets, &t)
		}
		return nil
	})

	if err != nil {
		return nil, err
	}
	return tickets, nil
}

func paginate(events []*order.Event, filter *storage.EventFilter) []*order.Event {
	if filter == nil || filter.Limit <= 0 {
		return events
	}
	start := filter.Offset
	end := filter.Offset + filter.Limit
	if start > len(events) {
		start = len(events)
	}
	if end > len(events) {
		end = len(events)
	}
	return events[start:end]
}

// Close closes the Badger database.
func (b *BadgerStorage) Close() error {
	if err := b.db.RunValueLogGC(0.5); err != nil && err != badger.ErrNoRewrite {
		// GC failure is not fatal on close
	}
	return b.db.Close()
}
