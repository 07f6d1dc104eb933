package handlers

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"

	"github.com/gateline/gateline/pkg/api/models"
	"github.com/gateline/gateline/pkg/api/response"
)

func (e *testEnv) eventsRouter() chi.Router {
	h := NewEventsHandler(e.store, e.inventory, e.waitlist, e.log)
	r := chi.NewRouter()
	r.Post("/api/v1/events", h.CreateEvent)
	r.Get("/api/v1/events", h.ListEvents)
	r.Get("/api/v1/events/{id}", h.GetEvent)
	r.Post("/api/v1/events/{id}/waitlist", h.JoinWaitlist)
	r.Get("/api/v1/events/{id}/waitlist", h.ListWaitlist)
	return r
}

const validEventBody = `{
	"id": "evt-1",
	"name": "Go Conference",
	"venue": "Main Hall",
	"ticket_types": [
		{"id": "ga", "name": "General Admission", "price": 5000, "fee": 500, "capacity": 100}
	]
}`

func TestCreateEvent(t *testing.T) {
	env := newTestEnv(t)
	router := env.eventsRouter()

	req := httptest.NewRequest(http.MethodPost, "/api/v1/events", bytes.NewBufferString(validEventBody))
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	if w.Code != http.StatusCreated {
		t.Fatalf("expected status 201, got %d: %s", w.Code, w.Body.String())
	}

	// The event is immediately sellable: inventory was seeded
	if remaining := env.inventory.Remaining("evt-1", "ga"); remaining != 100 {
		t.Errorf("remaining inventory = %d, want 100", remaining)
	}
}

func TestCreateEvent_Invalid(t *testing.T) {
	env := newTestEnv(t)
	router := env.eventsRouter()

	tests := []struct {
		name string
		body string
	}{
		{name: "malformed json", body: `{not json`},
		{name: "missing id", body: `{"name":"Go Conference","ticket_types":[{"id":"ga","name":"GA","capacity":10}]}`},
		{name: "missing name", body: `{"id":"evt-1","ticket_types":[{"id":"ga","name":"GA","capacity":10}]}`},
		{name: "no ticket types", body: `{"id":"evt-1","name":"Go Conference","ticket_types":[]}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodPost, "/api/v1/events", bytes.NewBufferString(tt.body))
			w := httptest.NewRecorder()
			router.ServeHTTP(w, req)

			if w.Code != http.StatusBadRequest {
				t.Errorf("expected status 400, got %d: %s", w.Code, w.Body.String())
			}
		})
	}
}

func TestGetEvent(t *testing.T) {
	env := newTestEnv(t)
	env.seedEvent(t, "evt-1", 10)
	router := env.eventsRouter()

	req := httptest.NewRequest(http.MethodGet, "/api/v1/events/evt-1", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", w.Code)
	}

	req = httptest.NewRequest(http.MethodGet, "/api/v1/events/evt-missing", nil)
	w = httptest.NewRecorder()
	router.ServeHTTP(w, req)

	if w.Code != http.StatusNotFound {
		t.Fatalf("expected status 404 for unknown event, got %d", w.Code)
	}
}

func TestListEvents(t *testing.T) {
	env := newTestEnv(t)
	env.seedEvent(t, "evt-1", 10)
	env.seedEvent(t, "evt-2", 10)
	router := env.eventsRouter()

	req := httptest.NewRequest(http.MethodGet, "/api/v1/events?limit=1", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", w.Code)
	}
	var list models.EventListResponse
	if err := json.Unmarshal(w.Body.Bytes(), &list); err != nil {
		t.Fatalf("failed to unmarshal list: %v", err)
	}
	if list.Total != 2 {
		t.Errorf("total = %d, want 2", list.Total)
	}
	if len(list.Items) != 1 {
		t.Errorf("expected 1 item with limit=1, got %d", len(list.Items))
	}
}

func TestJoinWaitlist(t *testing.T) {
	env := newTestEnv(t)
	env.seedEvent(t, "evt-1", 10)
	router := env.eventsRouter()

	body := bytes.NewBufferString(`{"email": "grace@example.com"}`)
	req := httptest.NewRequest(http.MethodPost, "/api/v1/events/evt-1/waitlist", body)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	if w.Code != http.StatusCreated {
		t.Fatalf("expected status 201, got %d: %s", w.Code, w.Body.String())
	}

	var entry models.WaitlistEntryResponse
	if err := json.Unmarshal(w.Body.Bytes(), &entry); err != nil {
		t.Fatalf("failed to unmarshal entry: %v", err)
	}
	if entry.Status != "waiting" {
		t.Errorf("entry status = %v, want waiting", entry.Status)
	}
	if entry.Email != "grace@example.com" {
		t.Errorf("entry email = %v, want grace@example.com", entry.Email)
	}
}

func TestJoinWaitlist_UnknownEvent(t *testing.T) {
	env := newTestEnv(t)
	router := env.eventsRouter()

	body := bytes.NewBufferString(`{"email": "grace@example.com"}`)
	req := httptest.NewRequest(http.MethodPost, "/api/v1/events/evt-missing/waitlist", body)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	if w.Code != http.StatusNotFound {
		t.Fatalf("expected status 404, got %d: %s", w.Code, w.Body.String())
	}
}

func TestJoinWaitlist_InvalidEmail(t *testing.T) {
	env := newTestEnv(t)
	env.seedEvent(t, "evt-1", 10)
	router := env.eventsRouter()

	body := bytes.NewBufferString(`{"email": "not-an-email"}`)
	req := httptest.NewRequest(http.MethodPost, "/api/v1/events/evt-1/waitlist", body)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	if w.Code != http.StatusBadRequest {
		t.Fatalf("expected status 400, got %d: %s", w.Code, w.Body.String())
	}

	var errResp response.ErrorResponse
	if err := json.Unmarshal(w.Body.Bytes(), &errResp); err != nil {
		t.Fatalf("failed to unmarshal error response: %v", err)
	}
	if errResp.Error.Code != response.ErrCodeValidationFailed {
		t.Errorf("error code = %v, want %v", errResp.Error.Code, response.ErrCodeValidationFailed)
	}
}

func TestListWaitlist(t *testing.T) {
	env := newTestEnv(t)
	env.seedEvent(t, "evt-1", 10)
	router := env.eventsRouter()

	for _, email := range []string{"grace@example.com", "ada@example.com"} {
		body, _ := json.Marshal(models.WaitlistJoinRequest{Email: email})
		req := httptest.NewRequest(http.MethodPost, "/api/v1/events/evt-1/waitlist", bytes.NewBuffer(body))
		w := httptest.NewRecorder()
		router.ServeHTTP(w, req)
		if w.Code != http.StatusCreated {
			t.Fatalf("join failed for %s: %d %s", email, w.Code, w.Body.String())
		}
	}

	req := httptest.NewRequest(http.MethodGet, "/api/v1/events/evt-1/waitlist", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", w.Code)
	}
	var entries []models.WaitlistEntryResponse
	if err := json.Unmarshal(w.Body.Bytes(), &entries); err != nil {
		t.Fatalf("failed to unmarshal entries: %v", err)
	}
	if len(entries) != 2 {
		t.Errorf("expected 2 entries, got %d", len(entries))
	}
}
