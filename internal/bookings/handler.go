package bookings

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/Sahil123-FNO/plubming-backend/internal/auth"
	"github.com/Sahil123-FNO/plubming-backend/internal/httpx"
	"github.com/Sahil123-FNO/plubming-backend/internal/middleware"
	"github.com/Sahil123-FNO/plubming-backend/internal/transport"
	"github.com/Sahil123-FNO/plubming-backend/internal/validation"
	"github.com/go-chi/chi/v5"
)

var sortFields = map[string]string{
	"createdAt": "createdAt",
	"date":      "date",
	"amount":    "amount",
	"status":    "status",
}

type Handler struct {
	service  *Service
	val      *validation.Validator
	location *time.Location
	log      *slog.Logger
}

func NewHandler(service *Service, val *validation.Validator, location *time.Location, log *slog.Logger) *Handler {
	if location == nil {
		location = time.UTC
	}
	return &Handler{
		service:  service,
		val:      val,
		location: location,
		log:      log,
	}
}

func (h *Handler) Routes(r chi.Router) {
	r.Post("/", h.Create)
	r.Get("/", h.List)
	r.Get("/{id}", h.Get)
	r.Put("/{id}", h.Update)
	r.Delete("/{id}", h.Cancel)
}

func (h *Handler) AdminRoutes(r chi.Router) {
	r.Get("/bookings", h.List)
	r.Get("/bookings/{id}", h.Get)
	r.Patch("/bookings/{id}/status", h.UpdateStatus)
}

func (h *Handler) Create(w http.ResponseWriter, r *http.Request) {
	log := h.logWithRequest(r)
	actor, _ := auth.IdentityFromContext(r.Context())

	var req CreateRequest
	if err := httpx.DecodeJSON(r.Body, &req); err != nil {
		log.Warn("booking create: invalid json")
		transport.WriteError(w, http.StatusBadRequest, "invalid json", nil)
		return
	}
	if err := h.val.Struct(req); err != nil {
		log.Warn("booking create: validation error")
		transport.WriteError(w, http.StatusBadRequest, "validation error", httpx.ValidationDetails(h.val.ValidationErrors(err)))
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 8*time.Second)
	defer cancel()

	booking, err := h.service.Create(ctx, actor.UserID, req)
	if err != nil {
		h.writeError(w, log, "booking create", err)
		return
	}

	go h.sendConfirmation(log, booking)

	log.Info("booking create: booked",
		slog.String("booking_id", booking.ID),
		slog.String("service_id", booking.ServiceID),
		slog.String("date", booking.Date),
		slog.String("time", booking.Time),
	)
	transport.WriteJSON(w, http.StatusCreated, booking)
}

func (h *Handler) sendConfirmation(log *slog.Logger, booking Booking) {
	ctx, cancel := context.WithTimeout(context.Background(), 8*time.Second)
	defer cancel()

	messageID, err := h.service.NotifyCreated(ctx, booking)
	if err != nil {
		log.Warn("booking email: send failed", slog.String("booking_id", booking.ID), slog.String("error", err.Error()))
		return
	}
	if messageID != "" {
		log.Info("booking email: sent", slog.String("booking_id", booking.ID), slog.String("message_id", messageID))
	}
}

func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	log := h.logWithRequest(r)
	actor, _ := auth.IdentityFromContext(r.Context())
	values := r.URL.Query()

	page, err := httpx.ParsePage(values, 10, 100)
	if err != nil {
		log.Warn("booking list: invalid query", slog.String("error", err.Error()))
		transport.WriteError(w, http.StatusBadRequest, err.Error(), nil)
		return
	}
	sort, err := httpx.ParseSort(values, sortFields, httpx.Sort{Field: "createdAt", Desc: true})
	if err != nil {
		transport.WriteError(w, http.StatusBadRequest, err.Error(), nil)
		return
	}

	q := ListQuery{
		Filter: ListFilter{
			Status:        Status(strings.ToLower(strings.TrimSpace(values.Get("status")))),
			PaymentStatus: PaymentStatus(strings.ToLower(strings.TrimSpace(values.Get("paymentStatus")))),
			ServiceID:     strings.TrimSpace(values.Get("serviceId")),
			Date:          strings.TrimSpace(values.Get("date")),
		},
		Limit:     page.Limit,
		Offset:    page.Skip(),
		SortField: sort.Field,
		SortDesc:  sort.Desc,
	}

	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	items, total, err := h.service.List(ctx, q, actor)
	if err != nil {
		h.writeError(w, log, "booking list", err)
		return
	}

	transport.WriteJSON(w, http.StatusOK, map[string]interface{}{
		"items":      items,
		"pagination": transport.NewPagination(page.Page, page.Limit, total),
	})
}

func (h *Handler) Get(w http.ResponseWriter, r *http.Request) {
	log := h.logWithRequest(r)
	actor, _ := auth.IdentityFromContext(r.Context())

	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	booking, err := h.service.Get(ctx, chi.URLParam(r, "id"), actor)
	if err != nil {
		h.writeError(w, log, "booking get", err)
		return
	}
	transport.WriteJSON(w, http.StatusOK, booking)
}

func (h *Handler) Update(w http.ResponseWriter, r *http.Request) {
	log := h.logWithRequest(r)
	actor, _ := auth.IdentityFromContext(r.Context())
	id := strings.TrimSpace(chi.URLParam(r, "id"))

	var req UpdateRequest
	if err := httpx.DecodeJSON(r.Body, &req); err != nil {
		log.Warn("booking update: invalid json")
		transport.WriteError(w, http.StatusBadRequest, "invalid json", nil)
		return
	}
	if err := h.val.Struct(req); err != nil {
		log.Warn("booking update: validation error")
		transport.WriteError(w, http.StatusBadRequest, "validation error", httpx.ValidationDetails(h.val.ValidationErrors(err)))
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 8*time.Second)
	defer cancel()

	booking, err := h.service.Update(ctx, id, actor, req)
	if err != nil {
		h.writeError(w, log, "booking update", err)
		return
	}

	log.Info("booking update: ok", slog.String("booking_id", id))
	transport.WriteJSON(w, http.StatusOK, booking)
}

func (h *Handler) Cancel(w http.ResponseWriter, r *http.Request) {
	log := h.logWithRequest(r)
	actor, _ := auth.IdentityFromContext(r.Context())
	id := strings.TrimSpace(chi.URLParam(r, "id"))

	var req CancelRequest
	if r.ContentLength != 0 {
		if err := httpx.DecodeJSON(r.Body, &req); err != nil {
			log.Warn("booking cancel: invalid json")
			transport.WriteError(w, http.StatusBadRequest, "invalid json", nil)
			return
		}
		if err := h.val.Struct(req); err != nil {
			transport.WriteError(w, http.StatusBadRequest, "validation error", httpx.ValidationDetails(h.val.ValidationErrors(err)))
			return
		}
	}

	ctx, cancel := context.WithTimeout(r.Context(), 8*time.Second)
	defer cancel()

	booking, err := h.service.Cancel(ctx, id, actor, req.Reason)
	if err != nil {
		h.writeError(w, log, "booking cancel", err)
		return
	}

	log.Info("booking cancel: ok", slog.String("booking_id", id), slog.String("cancelled_by", actor.UserID))
	transport.WriteJSON(w, http.StatusOK, map[string]interface{}{
		"message": "Booking cancelled successfully",
		"booking": booking,
	})
}

func (h *Handler) UpdateStatus(w http.ResponseWriter, r *http.Request) {
	log := h.logWithRequest(r)
	id := strings.TrimSpace(chi.URLParam(r, "id"))

	var req StatusRequest
	if err := httpx.DecodeJSON(r.Body, &req); err != nil {
		transport.WriteError(w, http.StatusBadRequest, "invalid json", nil)
		return
	}
	if err := h.val.Struct(req); err != nil {
		transport.WriteError(w, http.StatusBadRequest, "validation error", httpx.ValidationDetails(h.val.ValidationErrors(err)))
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	booking, err := h.service.UpdateStatus(ctx, id, Status(req.Status))
	if err != nil {
		h.writeError(w, log, "booking status", err)
		return
	}

	log.Info("booking status: ok", slog.String("booking_id", id), slog.String("status", string(booking.Status)))
	transport.WriteJSON(w, http.StatusOK, booking)
}

// Availability serves GET /api/services/{id}/availability?date=YYYY-MM-DD.
func (h *Handler) Availability(w http.ResponseWriter, r *http.Request) {
	log := h.logWithRequest(r)
	serviceID := strings.TrimSpace(chi.URLParam(r, "id"))
	date := strings.TrimSpace(r.URL.Query().Get("date"))
	if date == "" {
		transport.WriteError(w, http.StatusBadRequest, "missing date", map[string]string{"date": "required"})
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	slots, duration, err := h.service.Availability(ctx, serviceID, date)
	if err != nil {
		h.writeError(w, log, "service availability", err)
		return
	}

	log.Info("service availability: ok", slog.String("service_id", serviceID), slog.String("date", date), slog.Int("slots", len(slots)))
	transport.WriteJSON(w, http.StatusOK, map[string]interface{}{
		"serviceId": serviceID,
		"date":      date,
		"timezone":  h.location.String(),
		"duration":  duration,
		"slots":     slots,
	})
}

func (h *Handler) writeError(w http.ResponseWriter, log *slog.Logger, op string, err error) {
	switch {
	case errors.Is(err, ErrNotFound):
		log.Warn(op+": not found")
		transport.WriteError(w, http.StatusNotFound, "booking not found", nil)
	case errors.Is(err, ErrServiceNotFound):
		log.Warn(op+": service not found")
		transport.WriteError(w, http.StatusNotFound, err.Error(), nil)
	case errors.Is(err, ErrForbidden):
		log.Warn(op+": forbidden")
		transport.WriteError(w, http.StatusForbidden, err.Error(), nil)
	case errors.Is(err, ErrSlotTaken):
		log.Warn(op+": slot overlap")
		transport.WriteError(w, http.StatusConflict, err.Error(), nil)
	case errors.Is(err, ErrConflict):
		log.Warn(op+": conflict")
		transport.WriteError(w, http.StatusConflict, "booking was modified concurrently, retry", nil)
	case errors.Is(err, ErrServiceUnavailable), errors.Is(err, ErrInvalidSchedule), errors.Is(err, ErrDatePast),
		errors.Is(err, ErrSlotPast), errors.Is(err, ErrSlotNotAllowed), errors.Is(err, ErrNotEditable), errors.Is(err, ErrNotCancellable),
		errors.Is(err, ErrInvalidTransition):
		log.Warn(op+": rejected", slog.String("error", err.Error()))
		transport.WriteError(w, http.StatusBadRequest, err.Error(), nil)
	default:
		log.Error(op+": database error", slog.String("error", err.Error()))
		transport.WriteError(w, http.StatusInternalServerError, "database error", nil)
	}
}

func (h *Handler) logWithRequest(r *http.Request) *slog.Logger {
	return middleware.LoggerFrom(h.log, r)
}
