package orders

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/Sahil123-FNO/plubming-backend/internal/auth"
	"github.com/Sahil123-FNO/plubming-backend/internal/cache"
	"github.com/Sahil123-FNO/plubming-backend/internal/httpx"
	"github.com/Sahil123-FNO/plubming-backend/internal/middleware"
	"github.com/Sahil123-FNO/plubming-backend/internal/transport"
	"github.com/Sahil123-FNO/plubming-backend/internal/validation"
	"github.com/go-chi/chi/v5"
)

const statsCacheKey = "orders:stats"

var sortFields = map[string]string{
	"createdAt":   "createdAt",
	"totalAmount": "totalAmount",
	"status":      "status",
	"orderNumber": "orderNumber",
}

type Handler struct {
	service  *Service
	val      *validation.Validator
	cache    cache.Cache
	cacheTTL time.Duration
	location *time.Location
	log      *slog.Logger
}

func NewHandler(service *Service, val *validation.Validator, store cache.Cache, cacheTTL time.Duration, location *time.Location, log *slog.Logger) *Handler {
	if store == nil {
		store = cache.NewNoop()
	}
	if location == nil {
		location = time.UTC
	}
	return &Handler{
		service:  service,
		val:      val,
		cache:    store,
		cacheTTL: cacheTTL,
		location: location,
		log:      log,
	}
}

// Routes mounts the order endpoints available to any signed-in user.
func (h *Handler) Routes(r chi.Router) {
	r.Post("/", h.Create)
	r.Get("/", h.List)
	r.Get("/{id}", h.Get)
	r.Get("/{id}/invoice", h.Invoice)
	r.Post("/{id}/cancel", h.Cancel)
	r.With(middleware.RequireAdmin).Patch("/{id}/status", h.UpdateStatus)
}

// AdminRoutes mounts the order endpoints under the admin prefix.
func (h *Handler) AdminRoutes(r chi.Router) {
	r.Get("/orders", h.List)
	r.Get("/orders/{id}", h.Get)
	r.Patch("/orders/{id}/status", h.UpdateStatus)
	r.Post("/orders/{id}/cancel", h.Cancel)
	r.Get("/orders-stats", h.Stats)
}

func (h *Handler) Create(w http.ResponseWriter, r *http.Request) {
	log := h.logWithRequest(r)
	actor, _ := auth.IdentityFromContext(r.Context())

	var req CreateRequest
	if err := httpx.DecodeJSON(r.Body, &req); err != nil {
		log.Warn("order create: invalid json")
		transport.WriteError(w, http.StatusBadRequest, "invalid json", nil)
		return
	}
	if err := h.val.Struct(req); err != nil {
		log.Warn("order create: validation error")
		transport.WriteError(w, http.StatusBadRequest, "validation error", httpx.ValidationDetails(h.val.ValidationErrors(err)))
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 8*time.Second)
	defer cancel()

	order, err := h.service.Create(ctx, actor.UserID, req)
	if err != nil {
		h.writeError(w, log, "order create", err)
		return
	}

	h.invalidateStats(ctx)
	log.Info("order create: ok", slog.String("order_id", order.ID), slog.String("order_number", order.OrderNumber))
	transport.WriteJSON(w, http.StatusCreated, order)
}

func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	log := h.logWithRequest(r)
	actor, _ := auth.IdentityFromContext(r.Context())
	values := r.URL.Query()

	page, err := httpx.ParsePage(values, 10, 100)
	if err != nil {
		log.Warn("order list: invalid query", slog.String("error", err.Error()))
		transport.WriteError(w, http.StatusBadRequest, err.Error(), nil)
		return
	}
	sort, err := httpx.ParseSort(values, sortFields, httpx.Sort{Field: "createdAt", Desc: true})
	if err != nil {
		transport.WriteError(w, http.StatusBadRequest, err.Error(), nil)
		return
	}
	from, to, err := httpx.ParseDateRange(values, h.location)
	if err != nil {
		transport.WriteError(w, http.StatusBadRequest, err.Error(), nil)
		return
	}

	q := ListQuery{
		Filter: ListFilter{
			Status:        Status(strings.ToLower(strings.TrimSpace(values.Get("status")))),
			PaymentStatus: PaymentStatus(strings.ToLower(strings.TrimSpace(values.Get("paymentStatus")))),
			From:          from,
			To:            to,
			Search:        strings.TrimSpace(values.Get("search")),
		},
		Limit:     page.Limit,
		Offset:    page.Skip(),
		SortField: sort.Field,
		SortDesc:  sort.Desc,
	}

	ctx, cancel := context.WithTimeout(r.Context(), 8*time.Second)
	defer cancel()

	items, total, err := h.service.List(ctx, q, actor)
	if err != nil {
		h.writeError(w, log, "order list", err)
		return
	}

	log.Info("order list: ok", slog.Int("count", len(items)))
	transport.WriteJSON(w, http.StatusOK, map[string]interface{}{
		"orders":     items,
		"pagination": transport.NewPagination(page.Page, page.Limit, total),
	})
}

func (h *Handler) Get(w http.ResponseWriter, r *http.Request) {
	log := h.logWithRequest(r)
	actor, _ := auth.IdentityFromContext(r.Context())
	id := strings.TrimSpace(chi.URLParam(r, "id"))

	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	order, err := h.service.Get(ctx, id, actor)
	if err != nil {
		h.writeError(w, log, "order get", err)
		return
	}
	transport.WriteJSON(w, http.StatusOK, order)
}

func (h *Handler) Invoice(w http.ResponseWriter, r *http.Request) {
	log := h.logWithRequest(r)
	actor, _ := auth.IdentityFromContext(r.Context())
	id := strings.TrimSpace(chi.URLParam(r, "id"))

	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	order, err := h.service.Get(ctx, id, actor)
	if err != nil {
		h.writeError(w, log, "order invoice", err)
		return
	}

	var buf bytes.Buffer
	if err := WriteInvoice(&buf, order, h.location); err != nil {
		log.Error("order invoice: render failed", slog.String("order_id", id), slog.String("error", err.Error()))
		transport.WriteError(w, http.StatusInternalServerError, "failed to render invoice", nil)
		return
	}

	w.Header().Set("Content-Type", "application/pdf")
	w.Header().Set("Content-Disposition", "attachment; filename=invoice-"+order.OrderNumber+".pdf")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(buf.Bytes())
}

func (h *Handler) UpdateStatus(w http.ResponseWriter, r *http.Request) {
	log := h.logWithRequest(r)
	actor, _ := auth.IdentityFromContext(r.Context())
	id := strings.TrimSpace(chi.URLParam(r, "id"))

	var req StatusUpdateRequest
	if err := httpx.DecodeJSON(r.Body, &req); err != nil {
		log.Warn("order status: invalid json")
		transport.WriteError(w, http.StatusBadRequest, "invalid json", nil)
		return
	}
	if err := h.val.Struct(req); err != nil {
		log.Warn("order status: validation error")
		transport.WriteError(w, http.StatusBadRequest, "validation error", httpx.ValidationDetails(h.val.ValidationErrors(err)))
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 8*time.Second)
	defer cancel()

	order, err := h.service.UpdateStatus(ctx, id, req.Status, req.Note, actor.UserID)
	if err != nil {
		h.writeError(w, log, "order status", err)
		return
	}

	h.invalidateStats(ctx)
	log.Info("order status: ok", slog.String("order_id", id), slog.String("status", string(order.Status)))
	transport.WriteJSON(w, http.StatusOK, order)
}

func (h *Handler) Cancel(w http.ResponseWriter, r *http.Request) {
	log := h.logWithRequest(r)
	actor, _ := auth.IdentityFromContext(r.Context())
	id := strings.TrimSpace(chi.URLParam(r, "id"))

	var req CancelRequest
	if err := httpx.DecodeJSON(r.Body, &req); err != nil {
		log.Warn("order cancel: invalid json")
		transport.WriteError(w, http.StatusBadRequest, "invalid json", nil)
		return
	}
	if err := h.val.Struct(req); err != nil {
		log.Warn("order cancel: validation error")
		transport.WriteError(w, http.StatusBadRequest, "validation error", httpx.ValidationDetails(h.val.ValidationErrors(err)))
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 8*time.Second)
	defer cancel()

	order, err := h.service.Cancel(ctx, id, req, actor)
	if err != nil {
		h.writeError(w, log, "order cancel", err)
		return
	}

	h.invalidateStats(ctx)
	log.Info("order cancel: ok", slog.String("order_id", id))
	transport.WriteJSON(w, http.StatusOK, order)
}

func (h *Handler) Stats(w http.ResponseWriter, r *http.Request) {
	log := h.logWithRequest(r)
	values := r.URL.Query()

	from, to, err := httpx.ParseDateRange(values, h.location)
	if err != nil {
		transport.WriteError(w, http.StatusBadRequest, err.Error(), nil)
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 8*time.Second)
	defer cancel()

	cacheable := from == nil && to == nil
	if cacheable {
		if cached, ok, err := h.cache.Get(ctx, statsCacheKey); err == nil && ok {
			transport.WriteCachedJSON(w, http.StatusOK, cached)
			return
		}
	}

	stats, err := h.service.Stats(ctx, from, to)
	if err != nil {
		h.writeError(w, log, "order stats", err)
		return
	}

	payload, err := json.Marshal(stats)
	if err != nil {
		log.Error("order stats: encode failed", slog.String("error", err.Error()))
		transport.WriteError(w, http.StatusInternalServerError, "encode error", nil)
		return
	}
	if cacheable {
		if err := h.cache.Set(ctx, statsCacheKey, payload, h.cacheTTL); err != nil {
			log.Warn("order stats: cache set failed", slog.String("error", err.Error()))
		}
	}
	transport.WriteCachedJSON(w, http.StatusOK, payload)
}

func (h *Handler) invalidateStats(ctx context.Context) {
	if err := h.cache.Delete(ctx, statsCacheKey); err != nil {
		h.log.Warn("order stats: cache invalidation failed", slog.String("error", err.Error()))
	}
}

func (h *Handler) writeError(w http.ResponseWriter, log *slog.Logger, op string, err error) {
	switch {
	case errors.Is(err, ErrNotFound):
		log.Warn(op+": not found", slog.String("error", err.Error()))
		transport.WriteError(w, http.StatusNotFound, "order not found", nil)
	case errors.Is(err, ErrItemNotFound):
		log.Warn(op+": item not found", slog.String("error", err.Error()))
		transport.WriteError(w, http.StatusNotFound, err.Error(), nil)
	case errors.Is(err, ErrForbidden):
		log.Warn(op+": forbidden")
		transport.WriteError(w, http.StatusForbidden, "not authorized to access this order", nil)
	case errors.Is(err, ErrNoItems):
		transport.WriteError(w, http.StatusBadRequest, err.Error(), map[string]string{"items": "min"})
	case errors.Is(err, ErrInvalidStatus):
		transport.WriteError(w, http.StatusBadRequest, "invalid status", map[string]string{"status": "oneof"})
	case errors.Is(err, ErrOrderCompleted), errors.Is(err, ErrInvalidTransition), errors.Is(err, ErrNotCancellable):
		log.Warn(op+": rejected", slog.String("error", err.Error()))
		transport.WriteError(w, http.StatusBadRequest, err.Error(), nil)
	case errors.Is(err, ErrConflict):
		log.Warn(op+": conflict", slog.String("error", err.Error()))
		transport.WriteError(w, http.StatusConflict, "order was modified concurrently, retry", nil)
	default:
		log.Error(op+": database error", slog.String("error", err.Error()))
		transport.WriteError(w, http.StatusInternalServerError, "database error", nil)
	}
}

func (h *Handler) logWithRequest(r *http.Request) *slog.Logger {
	return middleware.LoggerFrom(h.log, r)
}
