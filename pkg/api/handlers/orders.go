// Package handlers provides HTTP request handlers.
package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/gateline/gateline/pkg/api/events"
	"github.com/gateline/gateline/pkg/api/middleware"
	"github.com/gateline/gateline/pkg/api/models"
	"github.com/gateline/gateline/pkg/api/response"
	"github.com/gateline/gateline/pkg/logger"
	"github.com/gateline/gateline/pkg/order"
	"github.com/gateline/gateline/pkg/saga"
	"github.com/gateline/gateline/pkg/storage"
)

func getRequestID(ctx context.Context) string {
	return middleware.GetRequestID(ctx)
}

// parsePagination reads limit/offset query params with a default page size.
func parsePagination(r *http.Request, defaultLimit int) (limit, offset int) {
	limit = defaultLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		if parsed, err := strconv.Atoi(raw); err == nil && parsed >= 0 {
			limit = parsed
		}
	}
	if raw := r.URL.Query().Get("offset"); raw != "" {
		if parsed, err := strconv.Atoi(raw); err == nil && parsed >= 0 {
			offset = parsed
		}
	}
	return limit, offset
}

// OrdersHandler handles order API endpoints.
type OrdersHandler struct {
	workflow    *order.Workflow
	store       storage.Store
	broadcaster *events.Broadcaster
	logger      logger.Logger
}

// NewOrdersHandler creates an orders handler. The broadcaster is optional.
func NewOrdersHandler(workflow *order.Workflow, store storage.Store, broadcaster *events.Broadcaster, log logger.Logger) *OrdersHandler {
	return &OrdersHandler{
		workflow:    workflow,
		store:       store,
		broadcaster: broadcaster,
		logger:      log,
	}
}

// Purchase handles POST /api/v1/orders. It runs the whole purchase saga
// synchronously and returns the outcome; input validation failures and
// sold-out conditions map to client errors, everything else to 500.
func (h *OrdersHandler) Purchase(w http.ResponseWriter, r *http.Request) {
	if h.workflow == nil {
		response.Error(w, http.StatusServiceUnavailable, response.ErrCodeServiceUnavailable, "order workflow unavailable", getRequestID(r.Context()))
		return
	}

	var input order.Input
	if err := json.NewDecoder(r.Body).Decode(&input); err != nil {
		response.Error(w, http.StatusBadRequest, response.ErrCodeBadRequest, "invalid request body", getRequestID(r.Context()))
		return
	}

	var opts []saga.ExecuteOption
	if h.broadcaster != nil {
		opts = append(opts, saga.WithStateChange(h.broadcaster.BroadcastSagaStateChanged))
	}

	res := h.workflow.Execute(r.Context(), input, opts...)
	if !res.Success {
		h.handlePurchaseFailure(w, r, input, res)
		return
	}

	if h.broadcaster != nil && res.Order != nil {
		h.broadcaster.BroadcastOrderCompleted(res.SagaID, res.Order.ID, res.Order.EventID, len(res.TicketPayloads), int64(res.Order.Total))
	}

	response.JSON(w, http.StatusCreated, models.NewPurchaseResponse(res))
}

func (h *OrdersHandler) handlePurchaseFailure(w http.ResponseWriter, r *http.Request, input order.Input, res order.Result) {
	if h.broadcaster != nil {
		reason := ""
		if res.Err != nil {
			reason = res.Err.Error()
		}
		h.broadcaster.BroadcastOrderFailed(res.SagaID, input.EventID, res.FailedStep, reason)
	}

	err := res.Err
	if err == nil {
		err = errors.New("purchase failed")
	}

	status := response.HTTPStatusFromError(err)
	code := response.ErrorCodeFromError(err)

	details := map[string]interface{}{}
	if res.SagaID != "" {
		details["saga_id"] = res.SagaID
	}
	if res.FailedStep != "" {
		details["failed_step"] = res.FailedStep
	}
	if len(res.CompensatedSteps) > 0 {
		details["compensated_steps"] = res.CompensatedSteps
	}

	if h.logger != nil && status >= http.StatusInternalServerError {
		h.logger.Error("purchase failed",
			"saga_id", res.SagaID,
			"event_id", input.EventID,
			"failed_step", res.FailedStep,
			"error", err,
		)
	}

	response.ErrorWithDetails(w, status, code, err.Error(), details, getRequestID(r.Context()))
}

// GetOrder handles GET /api/v1/orders/{id}.
func (h *OrdersHandler) GetOrder(w http.ResponseWriter, r *http.Request) {
	orderID := chi.URLParam(r, "id")
	if orderID == "" {
		response.Error(w, http.StatusBadRequest, response.ErrCodeBadRequest, "order id is required", getRequestID(r.Context()))
		return
	}

	o, err := h.store.Get(r.Context(), orderID)
	if err != nil {
		response.HandleError(w, err, getRequestID(r.Context()))
		return
	}

	response.JSON(w, http.StatusOK, o)
}

// ListOrders handles GET /api/v1/orders.
func (h *OrdersHandler) ListOrders(w http.ResponseWriter, r *http.Request) {
	limit, offset := parsePagination(r, 20)
	filter := &storage.OrderFilter{
		EventID: strings.TrimSpace(r.URL.Query().Get("event_id")),
		Status:  order.OrderStatus(strings.TrimSpace(r.URL.Query().Get("status"))),
		Limit:   limit,
		Offset:  offset,
	}

	orders, total, err := h.store.ListOrders(r.Context(), filter)
	if err != nil {
		response.HandleError(w, err, getRequestID(r.Context()))
		return
	}

	response.JSON(w, http.StatusOK, models.OrderListResponse{
		Items:  orders,
		Total:  total,
		Limit:  limit,
		Offset: offset,
	})
}

// ListTickets handles GET /api/v1/orders/{id}/tickets.
func (h *OrdersHandler) ListTickets(w http.ResponseWriter, r *http.Request) {
	orderID := chi.URLParam(r, "id")
	if orderID == "" {
		response.Error(w, http.StatusBadRequest, response.ErrCodeBadRequest, "order id is required", getRequestID(r.Context()))
		return
	}

	// 404 for unknown orders rather than an empty list.
	if _, err := h.store.Get(r.Context(), orderID); err != nil {
		response.HandleError(w, err, getRequestID(r.Context()))
		return
	}

	tickets, err := h.store.ListByOrder(r.Context(), orderID)
	if err != nil {
		response.HandleError(w, err, getRequestID(r.Context()))
		return
	}

	response.JSON(w, http.StatusOK, models.TicketListResponse{
		OrderID: orderID,
		Items:   tickets,
	})
}
