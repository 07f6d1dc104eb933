package handlers

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/gateline/gateline/pkg/api/models"
	"github.com/gateline/gateline/pkg/api/response"
	"github.com/gateline/gateline/pkg/logger"
	"github.com/gateline/gateline/pkg/order"
	"github.com/gateline/gateline/pkg/storage"
	"github.com/gateline/gateline/pkg/waitlist"
)

// InventorySeeder loads sellable capacity when an event enters the catalog.
type InventorySeeder interface {
	SeedEvent(ctx context.Context, event *order.Event) error
}

// WaitlistService is the waitlist surface the API exposes.
type WaitlistService interface {
	Join(ctx context.Context, eventID, email string) (*waitlist.Entry, error)
	List(ctx context.Context, eventID string) ([]*waitlist.Entry, error)
}

// EventsHandler handles event catalog and waitlist endpoints.
type EventsHandler struct {
	store     storage.Store
	inventory InventorySeeder
	waitlist  WaitlistService
	logger    logger.Logger
	validator *validator.Validate
}

// NewEventsHandler creates an events handler.
func NewEventsHandler(store storage.Store, inv InventorySeeder, wl WaitlistService, log logger.Logger) *EventsHandler {
	return &EventsHandler{
		store:     store,
		inventory: inv,
		waitlist:  wl,
		logger:    log,
		validator: validator.New(),
	}
}

// CreateEvent handles POST /api/v1/events. Saving the catalog record and
// seeding inventory happen together so the event is immediately sellable.
func (h *EventsHandler) CreateEvent(w http.ResponseWriter, r *http.Request) {
	var event order.Event
	if err := json.NewDecoder(r.Body).Decode(&event); err != nil {
		response.Error(w, http.StatusBadRequest, response.ErrCodeBadRequest, "invalid request body", getRequestID(r.Context()))
		return
	}
	if event.ID == "" || event.Name == "" || len(event.TicketTypes) == 0 {
		response.Error(w, http.StatusBadRequest, response.ErrCodeValidationFailed, "id, name and at least one ticket type are required", getRequestID(r.Context()))
		return
	}

	if err := h.store.SaveEvent(r.Context(), &event); err != nil {
		response.HandleError(w, err, getRequestID(r.Context()))
		return
	}

	if h.inventory != nil {
		if err := h.inventory.SeedEvent(r.Context(), &event); err != nil {
			if h.logger != nil {
				h.logger.Error("inventory seeding failed", "event_id", event.ID, "error", err)
			}
			response.HandleError(w, err, getRequestID(r.Context()))
			return
		}
	}

	response.JSON(w, http.StatusCreated, &event)
}

// GetEvent handles GET /api/v1/events/{id}.
func (h *EventsHandler) GetEvent(w http.ResponseWriter, r *http.Request) {
	eventID := chi.URLParam(r, "id")
	if eventID == "" {
		response.Error(w, http.StatusBadRequest, response.ErrCodeBadRequest, "event id is required", getRequestID(r.Context()))
		return
	}

	event, err := h.store.GetEvent(r.Context(), eventID)
	if err != nil {
		response.HandleError(w, err, getRequestID(r.Context()))
		return
	}

	response.JSON(w, http.StatusOK, event)
}

// ListEvents handles GET /api/v1/events.
func (h *EventsHandler) ListEvents(w http.ResponseWriter, r *http.Request) {
	limit, offset := parsePagination(r, 20)

	items, total, err := h.store.ListEvents(r.Context(), &storage.EventFilter{Limit: limit, Offset: offset})
	if err != nil {
		response.HandleError(w, err, getRequestID(r.Context()))
		return
	}

	response.JSON(w, http.StatusOK, models.EventListResponse{
		Items:  items,
		Total:  total,
		Limit:  limit,
		Offset: offset,
	})
}

// JoinWaitlist handles POST /api/v1/events/{id}/waitlist.
func (h *EventsHandler) JoinWaitlist(w http.ResponseWriter, r *http.Request) {
	if h.waitlist == nil {
		response.Error(w, http.StatusServiceUnavailable, response.ErrCodeServiceUnavailable, "waitlist unavailable", getRequestID(r.Context()))
		return
	}

	eventID := chi.URLParam(r, "id")
	if eventID == "" {
		response.Error(w, http.StatusBadRequest, response.ErrCodeBadRequest, "event id is required", getRequestID(r.Context()))
		return
	}

	// Joining requires a real event; unknown ids 404.
	if _, err := h.store.GetEvent(r.Context(), eventID); err != nil {
		response.HandleError(w, err, getRequestID(r.Context()))
		return
	}

	var req models.WaitlistJoinRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		response.Error(w, http.StatusBadRequest, response.ErrCodeBadRequest, "invalid request body", getRequestID(r.Context()))
		return
	}
	if err := h.validator.Struct(&req); err != nil {
		response.Error(w, http.StatusBadRequest, response.ErrCodeValidationFailed, err.Error(), getRequestID(r.Context()))
		return
	}

	entry, err := h.waitlist.Join(r.Context(), eventID, req.Email)
	if err != nil {
		response.HandleError(w, err, getRequestID(r.Context()))
		return
	}

	response.JSON(w, http.StatusCreated, waitlistEntryResponse(entry))
}

// ListWaitlist handles GET /api/v1/events/{id}/waitlist.
func (h *EventsHandler) ListWaitlist(w http.ResponseWriter, r *http.Request) {
	if h.waitlist == nil {
		response.Error(w, http.StatusServiceUnavailable, response.ErrCodeServiceUnavailable, "waitlist unavailable", getRequestID(r.Context()))
		return
	}

	eventID := chi.URLParam(r, "id")
	if eventID == "" {
		response.Error(w, http.StatusBadRequest, response.ErrCodeBadRequest, "event id is required", getRequestID(r.Context()))
		return
	}

	if _, err := h.store.GetEvent(r.Context(), eventID); err != nil {
		response.HandleError(w, err, getRequestID(r.Context()))
		return
	}

	entries, err := h.waitlist.List(r.Context(), eventID)
	if err != nil {
		response.HandleError(w, err, getRequestID(r.Context()))
		return
	}

	items := make([]models.WaitlistEntryResponse, 0, len(entries))
	for _, entry := range entries {
		items = append(items, waitlistEntryResponse(entry))
	}
	response.JSON(w, http.StatusOK, items)
}

func waitlistEntryResponse(entry *waitlist.Entry) models.WaitlistEntryResponse {
	return models.WaitlistEntryResponse{
		EventID:     entry.EventID,
		Email:       entry.Email,
		Status:      string(entry.Status),
		JoinedAt:    entry.JoinedAt,
		ConvertedAt: entry.ConvertedAt,
	}
}
