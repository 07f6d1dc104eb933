package handlers

import (
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/gateline/gateline/pkg/api/models"
	"github.com/gateline/gateline/pkg/api/response"
	"github.com/gateline/gateline/pkg/saga"
)

// SagaHandler exposes persisted saga execution projections. Sagas are
// started by the order workflow, never through this API; the handler is a
// read-only observability surface.
type SagaHandler struct {
	store saga.ExecutionStore
}

// NewSagaHandler creates a saga handler backed by an execution store.
func NewSagaHandler(store saga.ExecutionStore) *SagaHandler {
	return &SagaHandler{store: store}
}

// GetSaga handles GET /api/v1/sagas/{id}.
func (h *SagaHandler) GetSaga(w http.ResponseWriter, r *http.Request) {
	if h.store == nil {
		response.Error(w, http.StatusServiceUnavailable, response.ErrCodeServiceUnavailable, "saga store unavailable", getRequestID(r.Context()))
		return
	}

	sagaID := chi.URLParam(r, "id")
	if sagaID == "" {
		response.Error(w, http.StatusBadRequest, response.ErrCodeBadRequest, "saga id is required", getRequestID(r.Context()))
		return
	}

	exec, err := h.store.Get(r.Context(), sagaID)
	if err != nil {
		response.HandleError(w, err, getRequestID(r.Context()))
		return
	}

	response.JSON(w, http.StatusOK, models.NewSagaStatusResponse(exec))
}

// ListSagas handles GET /api/v1/sagas.
func (h *SagaHandler) ListSagas(w http.ResponseWriter, r *http.Request) {
	if h.store == nil {
		response.Error(w, http.StatusServiceUnavailable, response.ErrCodeServiceUnavailable, "saga store unavailable", getRequestID(r.Context()))
		return
	}

	limit, offset := parsePagination(r, 20)
	state := strings.TrimSpace(r.URL.Query().Get("state"))

	executions, total, err := h.store.List(r.Context(), saga.ListFilter{
		Status: state,
		Limit:  limit,
		Offset: offset,
	})
	if err != nil {
		response.HandleError(w, err, getRequestID(r.Context()))
		return
	}

	items := make([]models.SagaSummary, 0, len(executions))
	for _, exec := range executions {
		items = append(items, models.NewSagaSummary(exec))
	}

	response.JSON(w, http.StatusOK, models.SagaListResponse{
		Items:  items,
		Total:  total,
		Limit:  limit,
		Offset: offset,
	})
}
