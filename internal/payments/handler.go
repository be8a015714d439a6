package payments

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/Sahil123-FNO/plubming-backend/internal/auth"
	"github.com/Sahil123-FNO/plubming-backend/internal/bookings"
	"github.com/Sahil123-FNO/plubming-backend/internal/httpx"
	"github.com/Sahil123-FNO/plubming-backend/internal/middleware"
	"github.com/Sahil123-FNO/plubming-backend/internal/orders"
	"github.com/Sahil123-FNO/plubming-backend/internal/transport"
	"github.com/Sahil123-FNO/plubming-backend/internal/validation"
	"github.com/go-chi/chi/v5"
)

const maxWebhookBody = 1 << 20

type Handler struct {
	service *Service
	val     *validation.Validator
	log     *slog.Logger
}

func NewHandler(service *Service, val *validation.Validator, log *slog.Logger) *Handler {
	return &Handler{service: service, val: val, log: log}
}

// Routes mounts the endpoints for signed-in users.
func (h *Handler) Routes(r chi.Router) {
	r.Post("/create", h.Initiate)
	r.Post("/process", h.Initiate)
	r.Post("/verify", h.Verify)
	r.Post("/complete", h.Complete)
	r.Get("/history", h.History)
	r.Get("/{id}", h.Detail)
}

// WebhookRoutes mounts the unauthenticated gateway callbacks.
func (h *Handler) WebhookRoutes(r chi.Router) {
	r.Post("/", h.webhook("razorpay", SignatureHeaderRazorpay))
	r.Post("/stripe", h.webhook("stripe", SignatureHeaderStripe))
}

func (h *Handler) Initiate(w http.ResponseWriter, r *http.Request) {
	log := h.logWithRequest(r)
	actor, _ := auth.IdentityFromContext(r.Context())

	var req InitiateRequest
	if err := httpx.DecodeJSON(r.Body, &req); err != nil {
		log.Warn("payment initiate: invalid json")
		transport.WriteError(w, http.StatusBadRequest, "invalid json", nil)
		return
	}
	if err := h.val.Struct(req); err != nil {
		log.Warn("payment initiate: validation error")
		transport.WriteError(w, http.StatusBadRequest, "validation error", httpx.ValidationDetails(h.val.ValidationErrors(err)))
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 15*time.Second)
	defer cancel()

	result, err := h.service.Initiate(ctx, actor, req)
	if err != nil {
		h.writeError(w, log, "payment initiate", err)
		return
	}

	log.Info("payment initiate: ok",
		slog.String("payment_id", result.Payment.ID),
		slog.String("gateway", result.Gateway),
		slog.String("charge_id", result.ChargeID),
	)
	transport.WriteJSON(w, http.StatusCreated, result)
}

func (h *Handler) Verify(w http.ResponseWriter, r *http.Request) {
	log := h.logWithRequest(r)
	actor, _ := auth.IdentityFromContext(r.Context())

	var req VerifyRequest
	if err := httpx.DecodeJSON(r.Body, &req); err != nil {
		log.Warn("payment verify: invalid json")
		transport.WriteError(w, http.StatusBadRequest, "invalid json", nil)
		return
	}
	if err := h.val.Struct(req); err != nil {
		log.Warn("payment verify: validation error")
		transport.WriteError(w, http.StatusBadRequest, "validation error", httpx.ValidationDetails(h.val.ValidationErrors(err)))
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 15*time.Second)
	defer cancel()

	payment, err := h.service.Verify(ctx, actor, req)
	if err != nil {
		h.writeError(w, log, "payment verify", err)
		return
	}

	log.Info("payment verify: ok", slog.String("payment_id", payment.ID))
	transport.WriteJSON(w, http.StatusOK, map[string]interface{}{
		"message": "Payment verified successfully",
		"payment": payment,
	})
}

func (h *Handler) Complete(w http.ResponseWriter, r *http.Request) {
	log := h.logWithRequest(r)
	actor, _ := auth.IdentityFromContext(r.Context())

	var req CompleteRequest
	if err := httpx.DecodeJSON(r.Body, &req); err != nil {
		log.Warn("payment complete: invalid json")
		transport.WriteError(w, http.StatusBadRequest, "invalid json", nil)
		return
	}
	if err := h.val.Struct(req); err != nil {
		transport.WriteError(w, http.StatusBadRequest, "validation error", httpx.ValidationDetails(h.val.ValidationErrors(err)))
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 15*time.Second)
	defer cancel()

	payment, err := h.service.Complete(ctx, actor, req)
	if err != nil {
		h.writeError(w, log, "payment complete", err)
		return
	}

	log.Info("payment complete: ok", slog.String("payment_id", payment.ID), slog.String("status", string(payment.Status)))
	transport.WriteJSON(w, http.StatusOK, payment)
}

func (h *Handler) History(w http.ResponseWriter, r *http.Request) {
	log := h.logWithRequest(r)
	actor, _ := auth.IdentityFromContext(r.Context())

	page, err := httpx.ParsePage(r.URL.Query(), 10, 100)
	if err != nil {
		transport.WriteError(w, http.StatusBadRequest, err.Error(), nil)
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	entries, total, err := h.service.History(ctx, actor, page.Limit, page.Skip())
	if err != nil {
		h.writeError(w, log, "payment history", err)
		return
	}

	transport.WriteJSON(w, http.StatusOK, map[string]interface{}{
		"payments":   entries,
		"pagination": transport.NewPagination(page.Page, page.Limit, total),
	})
}

func (h *Handler) Detail(w http.ResponseWriter, r *http.Request) {
	log := h.logWithRequest(r)
	actor, _ := auth.IdentityFromContext(r.Context())

	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	payment, err := h.service.Detail(ctx, actor, chi.URLParam(r, "id"))
	if err != nil {
		h.writeError(w, log, "payment detail", err)
		return
	}
	transport.WriteJSON(w, http.StatusOK, payment)
}

func (h *Handler) webhook(gateway, header string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		log := h.logWithRequest(r).With(slog.String("gateway", gateway))

		body, err := io.ReadAll(io.LimitReader(r.Body, maxWebhookBody))
		if err != nil {
			log.Warn("payment webhook: read failed", slog.String("error", err.Error()))
			transport.WriteError(w, http.StatusBadRequest, "invalid body", nil)
			return
		}

		ctx, cancel := context.WithTimeout(r.Context(), 15*time.Second)
		defer cancel()

		event, applied, err := h.service.Webhook(ctx, gateway, body, strings.TrimSpace(r.Header.Get(header)))
		if err != nil {
			h.writeError(w, log, "payment webhook", err)
			return
		}

		log.Info("payment webhook: ok",
			slog.String("event", event.Type),
			slog.String("event_id", event.ID),
			slog.Bool("applied", applied),
		)
		transport.WriteJSON(w, http.StatusOK, map[string]interface{}{"received": true})
	}
}

func (h *Handler) writeError(w http.ResponseWriter, log *slog.Logger, op string, err error) {
	switch {
	case errors.Is(err, ErrNotFound):
		log.Warn(op + ": not found")
		transport.WriteError(w, http.StatusNotFound, err.Error(), nil)
	case errors.Is(err, ErrSourceNotFound):
		log.Warn(op + ": source not found")
		transport.WriteError(w, http.StatusNotFound, err.Error(), nil)
	case errors.Is(err, ErrForbidden):
		log.Warn(op + ": forbidden")
		transport.WriteError(w, http.StatusForbidden, err.Error(), nil)
	case errors.Is(err, ErrInvalidSignature):
		log.Warn(op+": invalid signature", slog.String("error", err.Error()))
		transport.WriteError(w, http.StatusBadRequest, "invalid signature", nil)
	case errors.Is(err, ErrInvalidPayload):
		log.Warn(op+": invalid payload", slog.String("error", err.Error()))
		transport.WriteError(w, http.StatusBadRequest, "invalid payload", nil)
	case errors.Is(err, ErrSourceRequired), errors.Is(err, ErrAlreadyPaid), errors.Is(err, ErrInvalidAmount),
		errors.Is(err, ErrUnknownGateway), errors.Is(err, ErrNotConfirmed):
		log.Warn(op+": rejected", slog.String("error", err.Error()))
		transport.WriteError(w, http.StatusBadRequest, err.Error(), nil)
	case errors.Is(err, orders.ErrConflict), errors.Is(err, bookings.ErrConflict):
		log.Warn(op+": conflict", slog.String("error", err.Error()))
		transport.WriteError(w, http.StatusConflict, "record was modified concurrently, retry", nil)
	case errors.Is(err, ErrGateway):
		log.Error(op+": gateway error", slog.String("error", err.Error()))
		transport.WriteError(w, http.StatusBadGateway, "payment gateway error", nil)
	default:
		log.Error(op+": database error", slog.String("error", err.Error()))
		transport.WriteError(w, http.StatusInternalServerError, "database error", nil)
	}
}

func (h *Handler) logWithRequest(r *http.Request) *slog.Logger {
	return middleware.LoggerFrom(h.log, r)
}
