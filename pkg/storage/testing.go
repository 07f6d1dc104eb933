package storage

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/gateline/gateline/pkg/order"
)

// StorageTestSuite defines a test suite that can be run against any Store
// implementation.
type StorageTestSuite struct {
	NewStorage func(t *testing.T) Store
}

// RunAllTests runs all storage tests against the provided implementation.
func (s *StorageTestSuite) RunAllTests(t *testing.T) {
	t.Run("EventCatalog", s.TestEventCatalog)
	t.Run("OrderLifecycle", s.TestOrderLifecycle)
	t.Run("DuplicateOrder", s.TestDuplicateOrder)
	t.Run("ListOrdersWithFilter", s.TestListOrdersWithFilter)
	t.Run("ListOrdersWithPagination", s.TestListOrdersWithPagination)
	t.Run("TicketBatch", s.TestTicketBatch)
	t.Run("CancelTicketsByOrder", s.TestCancelTicketsByOrder)
	t.Run("ConcurrentAccess", s.TestConcurrentAccess)
	t.Run("OrderNotFound", s.TestOrderNotFound)
}

func testEvent(id string) *order.Event {
	return &order.Event{
		ID:       id,
		Name:     "Warehouse Live",
		Venue:    "Pier 9",
		StartsAt: time.Now().Add(24 * time.Hour).UTC(),
		TicketTypes: []order.TicketType{
			{ID: "ga", Name: "General Admission", Price: 4500, Fee: 350, Capacity: 100},
			{ID: "vip", Name: "VIP", Price: 12000, Fee: 900, Capacity: 10},
		},
	}
}

func testOrder(id, eventID string, status order.OrderStatus) *order.Order {
	now := time.Now().UTC()
	return &order.Order{
		ID:             id,
		EventID:        eventID,
		PurchaserEmail: "ada@example.com",
		PurchaserName:  "Ada Lovelace",
		Status:         status,
		Subtotal:       9000,
		Fees:           700,
		Total:          9700,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
}

// TestEventCatalog tests event save and retrieval.
func (s *StorageTestSuite) TestEventCatalog(t *testing.T) {
	store := s.NewStorage(t)
	defer store.Close()

	ctx := context.Background()

	if err := store.SaveEvent(ctx, testEvent("ev-1")); err != nil {
		t.Fatalf("SaveEvent failed: %v", err)
	}

	retrieved, err := store.GetEvent(ctx, "ev-1")
	if err != nil {
		t.Fatalf("GetEvent failed: %v", err)
	}
	if retrieved.Name != "Warehouse Live" {
		t.Errorf("expected name Warehouse Live, got %s", retrieved.Name)
	}
	if len(retrieved.TicketTypes) != 2 {
		t.Errorf("expected 2 ticket types, got %d", len(retrieved.TicketTypes))
	}

	_, err = store.GetEvent(ctx, "ev-missing")
	if !errors.Is(err, order.ErrEventNotFound) {
		t.Errorf("expected ErrEventNotFound, got %v", err)
	}

	events, total, err := store.ListEvents(ctx, nil)
	if err != nil {
		t.Fatalf("ListEvents failed: %v", err)
	}
	if total != 1 || len(events) != 1 {
		t.Errorf("expected 1 event, got total=%d len=%d", total, len(events))
	}
}

// TestOrderLifecycle tests order insert, status transition and retrieval.
func (s *StorageTestSuite) TestOrderLifecycle(t *testing.T) {
	store := s.NewStorage(t)
	defer store.Close()

	ctx := context.Background()

	o := testOrder("ord-1", "ev-1", order.OrderStatusPending)
	if err := store.Insert(ctx, o); err != nil {
		t.Fatalf("Insert failed: %v", err)
	}

	retrieved, err := store.Get(ctx, "ord-1")
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if retrieved.Status != order.OrderStatusPending {
		t.Errorf("expected pending, got %s", retrieved.Status)
	}
	if retrieved.Total != 9700 {
		t.Errorf("expected total 9700, got %d", retrieved.Total)
	}

	err = store.UpdateStatus(ctx, "ord-1", order.OrderStatusCancelled, map[string]string{
		"cancellation_reason": "test",
	})
	if err != nil {
		t.Fatalf("UpdateStatus failed: %v", err)
	}

	updated, err := store.Get(ctx, "ord-1")
	if err != nil {
		t.Fatalf("Get after update failed: %v", err)
	}
	if updated.Status != order.OrderStatusCancelled {
		t.Errorf("expected cancelled, got %s", updated.Status)
	}
	if updated.Metadata["cancellation_reason"] != "test" {
		t.Errorf("expected cancellation reason, got %v", updated.Metadata)
	}
}

// TestDuplicateOrder tests that inserting an existing order ID fails.
func (s *StorageTestSuite) TestDuplicateOrder(t *testing.T) {
	store := s.NewStorage(t)
	defer store.Close()

	ctx := context.Background()

	if err := store.Insert(ctx, testOrder("ord-dup", "ev-1", order.OrderStatusPending)); err != nil {
		t.Fatalf("Insert failed: %v", err)
	}

	err := store.Insert(ctx, testOrder("ord-dup", "ev-1", order.OrderStatusPending))
	if err == nil {
		t.Fatal("expected error for duplicate order id")
	}
	var dup *DuplicateKeyError
	if !errors.As(err, &dup) {
		t.Errorf("expected DuplicateKeyError, got %T", err)
	}
}

// TestListOrdersWithFilter tests order listing with status and event filters.
func (s *StorageTestSuite) TestListOrdersWithFilter(t *testing.T) {
	store := s.NewStorage(t)
	defer store.Close()

	ctx := context.Background()

	seed := []*order.Order{
		testOrder("ord-a", "ev-1", order.OrderStatusPaid),
		testOrder("ord-b", "ev-1", order.OrderStatusCancelled),
		testOrder("ord-c", "ev-2", order.OrderStatusPaid),
	}
	for _, o := range seed {
		if err := store.Insert(ctx, o); err != nil {
			t.Fatalf("Insert failed: %v", err)
		}
	}

	paid, total, err := store.ListOrders(ctx, &OrderFilter{Status: order.OrderStatusPaid})
	if err != nil {
		t.Fatalf("ListOrders failed: %v", err)
	}
	if total != 2 || len(paid) != 2 {
		t.Errorf("expected 2 paid orders, got total=%d len=%d", total, len(paid))
	}
	for _, o := range paid {
		if o.Status != order.OrderStatusPaid {
			t.Errorf("unexpected status %s in filtered results", o.Status)
		}
	}

	byEvent, total, err := store.ListOrders(ctx, &OrderFilter{EventID: "ev-2"})
	if err != nil {
		t.Fatalf("ListOrders by event failed: %v", err)
	}
	if total != 1 || len(byEvent) != 1 || byEvent[0].ID != "ord-c" {
		t.Errorf("unexpected event filter result: total=%d %v", total, byEvent)
	}
}

// TestListOrdersWithPagination tests order listing with pagination.
func (s *StorageTestSuite) TestListOrdersWithPagination(t *testing.T) {
	store := s.NewStorage(t)
	defer store.Close()

	ctx := context.Background()

	for i := 0; i < 10; i++ {
		o := testOrder(fmt.Sprintf("ord-%02d", i), "ev-1", order.OrderStatusPaid)
		if err := store.Insert(ctx, o); err != nil {
			t.Fatalf("Insert failed: %v", err)
		}
	}

	filter := &OrderFilter{Limit: 3, Offset: 0}
	orders, total, err := store.ListOrders(ctx, filter)
	if err != nil {
		t.Fatalf("ListOrders failed: %v", err)
	}
	if total != 10 {
		t.Errorf("expected total 10, got %d", total)
	}
	if len(orders) != 3 {
		t.Errorf("expected 3 orders, got %d", len(orders))
	}

	filter.Offset = 9
	orders, _, err = store.ListOrders(ctx, filter)
	if err != nil {
		t.Fatalf("ListOrders (last page) failed: %v", err)
	}
	if len(orders) != 1 {
		t.Errorf("expected 1 order on last page, got %d", len(orders))
	}
}

// TestTicketBatch tests the all-or-nothing ticket batch write.
func (s *StorageTestSuite) TestTicketBatch(t *testing.T) {
	store := s.NewStorage(t)
	defer store.Close()

	ctx := context.Background()

	tickets := make([]*order.Ticket, 0, 5)
	for i := 1; i <= 5; i++ {
		tickets = append(tickets, &order.Ticket{
			ID:           fmt.Sprintf("tkt-%d", i),
			OrderID:      "ord-1",
			EventID:      "ev-1",
			TicketTypeID: "ga",
			HolderName:   "Ada Lovelace",
			Seq:          i,
			Status:       order.TicketStatusValid,
			IssuedAt:     time.Now().UTC(),
		})
	}

	if err := store.InsertBatch(ctx, tickets); err != nil {
		t.Fatalf("InsertBatch failed: %v", err)
	}

	listed, err := store.ListByOrder(ctx, "ord-1")
	if err != nil {
		t.Fatalf("ListByOrder failed: %v", err)
	}
	if len(listed) != 5 {
		t.Errorf("expected 5 tickets, got %d", len(listed))
	}

	other, err := store.ListByOrder(ctx, "ord-other")
	if err != nil {
		t.Fatalf("ListByOrder (other) failed: %v", err)
	}
	if len(other) != 0 {
		t.Errorf("expected no tickets for other order, got %d", len(other))
	}
}

// TestCancelTicketsByOrder tests the bulk cancellation used by compensation.
func (s *StorageTestSuite) TestCancelTicketsByOrder(t *testing.T) {
	store := s.NewStorage(t)
	defer store.Close()

	ctx := context.Background()

	tickets := []*order.Ticket{
		{ID: "tkt-1", OrderID: "ord-1", EventID: "ev-1", TicketTypeID: "ga", Seq: 1, Status: order.TicketStatusValid},
		{ID: "tkt-2", OrderID: "ord-1", EventID: "ev-1", TicketTypeID: "ga", Seq: 2, Status: order.TicketStatusValid},
		{ID: "tkt-3", OrderID: "ord-2", EventID: "ev-1", TicketTypeID: "ga", Seq: 1, Status: order.TicketStatusValid},
	}
	if err := store.InsertBatch(ctx, tickets); err != nil {
		t.Fatalf("InsertBatch failed: %v", err)
	}

	if err := store.CancelByOrder(ctx, "ord-1"); err != nil {
		t.Fatalf("CancelByOrder failed: %v", err)
	}

	cancelled, err := store.ListByOrder(ctx, "ord-1")
	if err != nil {
		t.Fatalf("ListByOrder failed: %v", err)
	}
	for _, tk := range cancelled {
		if tk.Status != order.TicketStatusCancelled {
			t.Errorf("ticket %s still %s", tk.ID, tk.Status)
		}
	}

	untouched, err := store.ListByOrder(ctx, "ord-2")
	if err != nil {
		t.Fatalf("ListByOrder (ord-2) failed: %v", err)
	}
	if len(untouched) != 1 || untouched[0].Status != order.TicketStatusValid {
		t.Errorf("cancellation leaked to another order: %v", untouched)
	}

	// Cancelling an order without tickets is a no-op.
	if err := store.CancelByOrder(ctx, "ord-empty"); err != nil {
		t.Errorf("CancelByOrder (empty) failed: %v", err)
	}
}

// TestConcurrentAccess tests concurrent read/write operations.
func (s *StorageTestSuite) TestConcurrentAccess(t *testing.T) {
	store := s.NewStorage(t)
	defer store.Close()

	ctx := context.Background()

	if err := store.Insert(ctx, testOrder("ord-concurrent", "ev-1", order.OrderStatusPending)); err != nil {
		t.Fatalf("Insert failed: %v", err)
	}

	var wg sync.WaitGroup
	errs := make(chan error, 20)

	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func(idx int) {
			defer wg.Done()
			if _, err := store.Get(ctx, "ord-concurrent"); err != nil {
				errs <- err
				return
			}
			meta := map[string]string{"iteration": fmt.Sprintf("%d", idx)}
			if err := store.UpdateStatus(ctx, "ord-concurrent", order.OrderStatusPending, meta); err != nil {
				errs <- err
			}
		}(i)
	}

	wg.Wait()
	close(errs)

	for err := range errs {
		t.Errorf("concurrent operation failed: %v", err)
	}

	if _, err := store.Get(ctx, "ord-concurrent"); err != nil {
		t.Errorf("Get after concurrent updates failed: %v", err)
	}
}

// TestOrderNotFound tests NotFoundError for orders.
func (s *StorageTestSuite) TestOrderNotFound(t *testing.T) {
	store := s.NewStorage(t)
	defer store.Close()

	ctx := context.Background()

	_, err := store.Get(ctx, "missing-order")
	if err == nil {
		t.Fatal("expected error for missing order")
	}
	var nf *NotFoundError
	if !errors.As(err, &nf) {
		t.Errorf("expected NotFoundError, got %T", err)
	}

	err = store.UpdateStatus(ctx, "missing-order", order.OrderStatusCancelled, nil)
	if err == nil {
		t.Error("expected error when updating missing order")
	}
}
