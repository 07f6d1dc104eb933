// Package events fans saga and order lifecycle events out to in-process
// subscribers, typically the websocket handler.
package events

import (
	"sync"
	"time"

	"github.com/gateline/gateline/pkg/saga"
)

// Event is the canonical event payload broadcast to websocket subscribers.
type Event struct {
	Type      string    `json:"type"`
	Timestamp time.Time `json:"timestamp"`
	Payload   any       `json:"payload"`
}

// Broadcaster broadcasts events to in-process subscribers.
type Broadcaster struct {
	mu          sync.RWMutex
	subscribers map[chan Event]struct{}
}

// NewBroadcaster creates a broadcaster instance.
func NewBroadcaster() *Broadcaster {
	return &Broadcaster{
		subscribers: make(map[chan Event]struct{}),
	}
}

// Subscribe subscribes to events with a buffered channel.
func (b *Broadcaster) Subscribe(buffer int) chan Event {
	if buffer <= 0 {
		buffer = 16
	}
	ch := make(chan Event, buffer)
	b.mu.Lock()
	b.subscribers[ch] = struct{}{}
	b.mu.Unlock()
	return ch
}

// Unsubscribe removes a subscription and closes its channel.
func (b *Broadcaster) Unsubscribe(ch chan Event) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if _, ok := b.subscribers[ch]; !ok {
		return
	}
	delete(b.subscribers, ch)
	close(ch)
}

// Broadcast broadcasts a generic event to all subscribers.
func (b *Broadcaster) Broadcast(event Event) {
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now().UTC()
	}

	b.mu.RLock()
	subs := make([]chan Event, 0, len(b.subscribers))
	for ch := range b.subscribers {
		subs = append(subs, ch)
	}
	b.mu.RUnlock()

	for _, ch := range subs {
		select {
		case ch <- event:
		default:
			// Drop on overflow to keep broadcasters non-blocking.
		}
	}
}

// BroadcastSagaStateChanged emits one event per saga execution transition.
// Wire it into a workflow run via saga.WithStateChange.
func (b *Broadcaster) BroadcastSagaStateChanged(exec saga.Execution) {
	payload := map[string]any{
		"saga_id":         exec.SagaID,
		"name":            exec.Name,
		"state":           exec.Status.String(),
		"completed_steps": exec.CompletedSteps,
		"updated_at":      exec.UpdatedAt.UTC().Format(time.RFC3339Nano),
	}
	if exec.CurrentStep != "" {
		payload["current_step"] = exec.CurrentStep
	}
	if exec.FailedStep != "" {
		payload["failed_step"] = exec.FailedStep
	}
	if exec.Error != "" {
		payload["error"] = exec.Error
	}
	if len(exec.Compensated) > 0 {
		payload["compensated_steps"] = exec.Compensated
	}

	b.Broadcast(Event{
		Type:    "saga.state_changed",
		Payload: payload,
	})
}

// BroadcastOrderCompleted emits a purchase completion event.
func (b *Broadcaster) BroadcastOrderCompleted(sagaID, orderID, eventID string, ticketCount int, total int64) {
	b.Broadcast(Event{
		Type: "order.completed",
		Payload: map[string]any{
			"saga_id":      sagaID,
			"order_id":     orderID,
			"event_id":     eventID,
			"ticket_count": ticketCount,
			"total":        total,
		},
	})
}

// BroadcastOrderFailed emits a purchase failure event with the failed step.
func (b *Broadcaster) BroadcastOrderFailed(sagaID, eventID, failedStep, reason string) {
	payload := map[string]any{
		"saga_id":  sagaID,
		"event_id": eventID,
	}
	if failedStep != "" {
		payload["failed_step"] = failedStep
	}
	if reason != "" {
		payload["reason"] = reason
	}

	b.Broadcast(Event{
		Type:    "order.failed",
		Payload: payload,
	})
}

// Close closes all subscriber channels.
func (b *Broadcaster) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	for ch := range b.subscribers {
		close(ch)
		delete(b.subscribers, ch)
	}
}
