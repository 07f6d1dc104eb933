package memory

import (
	"context"
	"testing"
	"time"

	"github.com/gateline/gateline/pkg/order"
	"github.com/gateline/gateline/pkg/storage"
)

// TestMemoryStorageSuite runs the full storage test suite against MemoryStorage.
func TestMemoryStorageSuite(t *testing.T) {
	suite := &storage.StorageTestSuite{
		NewStorage: func(t *testing.T) storage.Store {
			return NewMemoryStorage()
		},
	}

	suite.RunAllTests(t)
}

func TestMemoryStorage_NoAliasing(t *testing.T) {
	s := NewMemoryStorage()
	ctx := context.Background()

	event := &order.Event{
		ID:   "ev-1",
		Name: "Warehouse Live",
		TicketTypes: []order.TicketType{
			{ID: "ga", Name: "General Admission", Capacity: 100},
		},
	}
	if err := s.SaveEvent(ctx, event); err != nil {
		t.Fatalf("SaveEvent failed: %v", err)
	}

	// Mutating the caller's copy must not touch stored state.
	event.TicketTypes[0].Capacity = 0
	got, err := s.GetEvent(ctx, "ev-1")
	if err != nil {
		t.Fatalf("GetEvent failed: %v", err)
	}
	if got.TicketTypes[0].Capacity != 100 {
		t.Errorf("stored event aliased caller state: capacity=%d", got.TicketTypes[0].Capacity)
	}

	// Mutating a retrieved copy must not touch stored state either.
	got.Name = "changed"
	again, _ := s.GetEvent(ctx, "ev-1")
	if again.Name != "Warehouse Live" {
		t.Errorf("retrieved event aliased stored state: %s", again.Name)
	}
}

func TestMemoryStorage_MetadataMerge(t *testing.T) {
	s := NewMemoryStorage()
	ctx := context.Background()

	now := time.Now().UTC()
	o := &order.Order{
		ID:        "ord-1",
		EventID:   "ev-1",
		Status:    order.OrderStatusPending,
		Metadata:  map[string]string{"source": "web"},
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := s.Insert(ctx, o); err != nil {
		t.Fatalf("Insert failed: %v", err)
	}

	err := s.UpdateStatus(ctx, "ord-1", order.OrderStatusCancelled, map[string]string{
		"cancellation_reason": "test",
	})
	if err != nil {
		t.Fatalf("UpdateStatus failed: %v", err)
	}

	got, err := s.Get(ctx, "ord-1")
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if got.Metadata["source"] != "web" {
		t.Errorf("existing metadata lost: %v", got.Metadata)
	}
	if got.Metadata["cancellation_reason"] != "test" {
		t.Errorf("new metadata missing: %v", got.Metadata)
	}
	if !got.UpdatedAt.After(now) && !got.UpdatedAt.Equal(now) {
		t.Errorf("UpdatedAt not advanced: %v", got.UpdatedAt)
	}
}
