package orders

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/oms-lab/orderdesk/internal/domain"
)

// Pinger is what the readiness probe needs from the database handle.
type Pinger interface {
	PingContext(ctx context.Context) error
}

type Handler struct {
	service *Service
	db      Pinger
	logger  *slog.Logger
}

func NewHandler(service *Service, db Pinger, logger *slog.Logger) *Handler {
	return &Handler{
		service: service,
		db:      db,
		logger:  logger,
	}
}

type createOrderRequest struct {
	CustomerID      string             `json:"customer_id"`
	Items           []domain.OrderItem `json:"items"`
	Tax             int64              `json:"tax"`
	ShippingCost    int64              `json:"shipping_cost"`
	Discount        int64              `json:"discount"`
	Currency        string             `json:"currency"`
	ShippingAddress domain.Address     `json:"shipping_address"`
	BillingAddress  domain.Address     `json:"billing_address"`
}

func (h *Handler) HandleCreate(w http.ResponseWriter, r *http.Request) {
	var req createOrderRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	order, err := h.service.CreateOrder(r.Context(), CreateOrderInput{
		CustomerID:    req.CustomerID,
		Items:         req.Items,
		Tax:           req.Tax,
		ShippingCost:  req.ShippingCost,
		Discount:      req.Discount,
		Currency:      req.Currency,
		ShippingAddr:  req.ShippingAddress,
		BillingAddr:   req.BillingAddress,
		Actor:         actor(r),
		CorrelationID: r.Header.Get("X-Correlation-ID"),
	})
	if err != nil {
		h.writeServiceError(w, err, "failed to create order")
		return
	}

	h.writeJSON(w, http.StatusCreated, order)
}

func (h *Handler) HandleGet(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if id == "" {
		h.writeError(w, http.StatusBadRequest, "missing order id")
		return
	}

	order, err := h.service.GetOrder(r.Context(), id)
	if err != nil {
		h.writeServiceError(w, err, "failed to get order")
		return
	}

	h.writeJSON(w, http.StatusOK, order)
}

func (h *Handler) HandleList(w http.ResponseWriter, r *http.Request) {
	filter, err := parseListFilter(r)
	if err != nil {
		h.writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	page, err := h.service.ListOrders(r.Context(), filter)
	if err != nil {
		h.writeServiceError(w, err, "failed to list orders")
		return
	}

	h.writeJSON(w, http.StatusOK, page)
}

type updateStatusRequest struct {
	Status domain.OrderStatus `json:"status"`
	Reason string             `json:"reason"`
}

func (h *Handler) HandleUpdateStatus(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if id == "" {
		h.writeError(w, http.StatusBadRequest, "missing order id")
		return
	}

	var req updateStatusRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	order, err := h.service.UpdateStatus(r.Context(), id, req.Status, UpdateStatusInput{
		Reason:        req.Reason,
		Actor:         actor(r),
		CorrelationID: r.Header.Get("X-Correlation-ID"),
	})
	if err != nil {
		h.writeServiceError(w, err, "failed to update order status")
		return
	}

	h.writeJSON(w, http.StatusOK, order)
}

func (h *Handler) HandleDelete(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if id == "" {
		h.writeError(w, http.StatusBadRequest, "missing order id")
		return
	}

	deleted, err := h.service.DeleteOrder(r.Context(), id, actor(r), r.Header.Get("X-Correlation-ID"))
	if err != nil {
		h.writeServiceError(w, err, "failed to delete order")
		return
	}

	if !deleted {
		h.writeError(w, http.StatusNotFound, "order not found")
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) HandleHealthz(w http.ResponseWriter, _ *http.Request) {
	h.writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (h *Handler) HandleReadyz(w http.ResponseWriter, r *http.Request) {
	if h.db != nil {
		if err := h.db.PingContext(r.Context()); err != nil {
			h.logger.Error("readiness check failed", "error", err)
			h.writeError(w, http.StatusServiceUnavailable, "database unavailable")
			return
		}
	}
	h.writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}

func parseListFilter(r *http.Request) (ListFilter, error) {
	q := r.URL.Query()
	filter := ListFilter{
		Status:     domain.OrderStatus(q.Get("status")),
		CustomerID: q.Get("customer_id"),
		SortAsc:    q.Get("sort") == "asc",
	}

	if filter.Status != "" && !filter.Status.Valid() {
		return filter, errors.New("unknown status filter")
	}

	if v := q.Get("from"); v != "" {
		t, err := time.Parse(time.RFC3339, v)
		if err != nil {
			return filter, errors.New("from must be RFC3339")
		}
		filter.From = t
	}
	if v := q.Get("to"); v != "" {
		t, err := time.Parse(time.RFC3339, v)
		if err != nil {
			return filter, errors.New("to must be RFC3339")
		}
		filter.To = t
	}
	if v := q.Get("page"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 {
			return filter, errors.New("page must be a positive integer")
		}
		filter.Page = n
	}
	if v := q.Get("page_size"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 {
			return filter, errors.New("page_size must be a positive integer")
		}
		filter.PageSize = n
	}

	return filter, nil
}

func actor(r *http.Request) string {
	if a := r.Header.Get("X-Actor"); a != "" {
		return a
	}
	return "api"
}

// writeServiceError maps the error taxonomy onto HTTP statuses: bad input is
// 400, a rejected transition 422, a missing order 404, a lost version race
// 409, anything else 500.
func (h *Handler) writeServiceError(w http.ResponseWriter, err error, logMsg string) {
	var validationErr *domain.ValidationError
	var transitionErr *domain.InvalidTransitionError

	switch {
	case errors.As(err, &validationErr):
		h.writeError(w, http.StatusBadRequest, validationErr.Error())
	case errors.As(err, &transitionErr):
		h.writeError(w, http.StatusUnprocessableEntity, transitionErr.Error())
	case errors.Is(err, domain.ErrNotFound):
		h.writeError(w, http.StatusNotFound, "order not found")
	case errors.Is(err, domain.ErrVersionConflict):
		h.writeError(w, http.StatusConflict, "order was modified concurrently, retry")
	default:
		h.logger.Error(logMsg, "error", err)
		h.writeError(w, http.StatusInternalServerError, "internal server error")
	}
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.logger.Error("failed to encode response", "error", err)
	}
}

func (h *Handler) writeError(w http.ResponseWriter, status int, message string) {
	h.writeJSON(w, status, map[string]string{"error": message})
}
