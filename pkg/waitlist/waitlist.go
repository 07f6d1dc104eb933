// Package waitlist tracks purchase-intent entries per event and converts
// them when the person buys a ticket.
package waitlist

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"
)

// EntryStatus is the lifecycle state of a waitlist entry.
type EntryStatus string

const (
	EntryStatusWaiting   EntryStatus = "waiting"
	EntryStatusConverted EntryStatus = "converted"
)

// Entry is one waitlist registration.
type Entry struct {
	EventID     string      `json:"event_id"`
	Email       string      `json:"email"`
	Status      EntryStatus `json:"status"`
	JoinedAt    time.Time   `json:"joined_at"`
	ConvertedAt *time.Time  `json:"converted_at,omitempty"`
}

// Memory is an in-process waitlist keyed by event and normalized email.
type Memory struct {
	mu      sync.Mutex
	entries map[string]*Entry // key: eventID + "\x00" + email
}

// NewMemory creates an empty waitlist.
func NewMemory() *Memory {
	return &Memory{entries: make(map[string]*Entry)}
}

func key(eventID, email string) string {
	return eventID + "\x00" + strings.ToLower(strings.TrimSpace(email))
}

// Join registers an email on an event's waitlist. Joining twice is a no-op.
func (m *Memory) Join(_ context.Context, eventID, email string) (*Entry, error) {
	if eventID == "" || email == "" {
		return nil, fmt.Errorf("event id and email are required")
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	k := key(eventID, email)
	if e, ok := m.entries[k]; ok {
		copied := *e
		return &copied, nil
	}

	e := &Entry{
		EventID:  eventID,
		Email:    strings.ToLower(strings.TrimSpace(email)),
		Status:   EntryStatusWaiting,
		JoinedAt: time.Now().UTC(),
	}
	m.entries[k] = e
	copied := *e
	return &copied, nil
}

// ConvertEntry marks a matching waiting entry as converted. Returns true only
// on the transition; converting an absent or already-converted entry is a
// no-op returning false.
func (m *Memory) ConvertEntry(_ context.Context, eventID, email string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	e, ok := m.entries[key(eventID, email)]
	if !ok || e.Status != EntryStatusWaiting {
		return false, nil
	}

	now := time.Now().UTC()
	e.Status = EntryStatusConverted
	e.ConvertedAt = &now
	return true, nil
}

// List returns the entries of an event, waiting first.
func (m *Memory) List(_ context.Context, eventID string) ([]*Entry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var waiting, converted []*Entry
	for _, e := range m.entries {
		if e.EventID != eventID {
			continue
		}
		copied := *e
		if e.Status == EntryStatusWaiting {
			waiting = append(waiting, &copied)
		} else {
			converted = append(converted, &copied)
		}
	}
	return append(waiting, converted...), nil
}
