package users

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
	"name":      "name",
	"email":     "email",
	"role":      "role",
}

type Handler struct {
	service *Service
	val     *validation.Validator
	log     *slog.Logger
}

func NewHandler(service *Service, val *validation.Validator, log *slog.Logger) *Handler {
	return &Handler{
		service: service,
		val:     val,
		log:     log,
	}
}

// AuthRoutes mounts the public account routes under /api/auth.
func (h *Handler) AuthRoutes(r chi.Router) {
	r.Post("/signup", h.Signup)
	r.Post("/login", h.Login)
	r.Post("/forgotPassword", h.ForgotPassword)
	r.Post("/resetPassword", h.ResetPassword)
	r.Post("/resentVerifyLink", h.ResendVerification)
	r.Get("/verify/{token}", h.Verify)
}

// Routes mounts the self-service routes under /api/users.
func (h *Handler) Routes(r chi.Router) {
	r.Put("/change-password", h.ChangePassword)
	r.Put("/update-profile", h.UpdateProfile)
}

func (h *Handler) AdminRoutes(r chi.Router) {
	r.Get("/users", h.List)
	r.Put("/users/{id}", h.AdminUpdate)
	r.Delete("/users/{id}", h.Delete)
	r.Patch("/users/{id}/toggle-status", h.ToggleStatus)
}

func (h *Handler) Signup(w http.ResponseWriter, r *http.Request) {
	log := h.logWithRequest(r)

	var req SignupRequest
	if !h.decode(w, r, log, "auth signup", &req) {
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 8*time.Second)
	defer cancel()

	user, err := h.service.Signup(ctx, req)
	if err != nil {
		h.writeError(w, log, "auth signup", err)
		return
	}

	go h.sendEmail(log, "verification", user, h.service.SendVerification)

	log.Info("auth signup: created", slog.String("user_id", user.ID))
	transport.WriteJSON(w, http.StatusCreated, map[string]interface{}{
		"message": "Signup successful, please verify your email",
		"user":    user,
	})
}

func (h *Handler) Verify(w http.ResponseWriter, r *http.Request) {
	log := h.logWithRequest(r)

	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	user, err := h.service.Verify(ctx, chi.URLParam(r, "token"))
	if err != nil {
		h.writeError(w, log, "auth verify", err)
		return
	}

	log.Info("auth verify: ok", slog.String("user_id", user.ID))
	transport.WriteMessage(w, http.StatusOK, "Email verified successfully")
}

func (h *Handler) Login(w http.ResponseWriter, r *http.Request) {
	log := h.logWithRequest(r)

	var req LoginRequest
	if !h.decode(w, r, log, "auth login", &req) {
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	res, err := h.service.Login(ctx, req)
	if err != nil {
		h.writeError(w, log, "auth login", err)
		return
	}

	log.Info("auth login: ok", slog.String("user_id", res.User.ID), slog.String("role", res.User.Role))
	transport.WriteJSON(w, http.StatusOK, res)
}

func (h *Handler) ResendVerification(w http.ResponseWriter, r *http.Request) {
	log := h.logWithRequest(r)

	var req EmailRequest
	if !h.decode(w, r, log, "auth resend", &req) {
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	user, err := h.service.ResendVerification(ctx, req.Email)
	if err != nil {
		h.writeError(w, log, "auth resend", err)
		return
	}

	go h.sendEmail(log, "verification", user, h.service.SendVerification)

	log.Info("auth resend: ok", slog.String("user_id", user.ID))
	transport.WriteMessage(w, http.StatusOK, "Verification link sent")
}

func (h *Handler) ForgotPassword(w http.ResponseWriter, r *http.Request) {
	log := h.logWithRequest(r)

	var req EmailRequest
	if !h.decode(w, r, log, "auth forgot", &req) {
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	user, err := h.service.ForgotPassword(ctx, req.Email)
	if err != nil {
		h.writeError(w, log, "auth forgot", err)
		return
	}

	go h.sendEmail(log, "password reset", user, h.service.SendPasswordReset)

	log.Info("auth forgot: token issued", slog.String("user_id", user.ID))
	transport.WriteMessage(w, http.StatusOK, "Password reset token sent")
}

func (h *Handler) ResetPassword(w http.ResponseWriter, r *http.Request) {
	log := h.logWithRequest(r)

	var req ResetPasswordRequest
	if !h.decode(w, r, log, "auth reset", &req) {
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	if err := h.service.ResetPassword(ctx, req); err != nil {
		h.writeError(w, log, "auth reset", err)
		return
	}

	log.Info("auth reset: ok")
	transport.WriteMessage(w, http.StatusOK, "Password reset successfully")
}

func (h *Handler) ChangePassword(w http.ResponseWriter, r *http.Request) {
	log := h.logWithRequest(r)
	actor, _ := auth.IdentityFromContext(r.Context())

	var req ChangePasswordRequest
	if !h.decode(w, r, log, "user change password", &req) {
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	if err := h.service.ChangePassword(ctx, actor.UserID, req); err != nil {
		h.writeError(w, log, "user change password", err)
		return
	}

	log.Info("user change password: ok", slog.String("user_id", actor.UserID))
	transport.WriteMessage(w, http.StatusOK, "Password changed successfully")
}

func (h *Handler) UpdateProfile(w http.ResponseWriter, r *http.Request) {
	log := h.logWithRequest(r)
	actor, _ := auth.IdentityFromContext(r.Context())

	var req UpdateProfileRequest
	if !h.decode(w, r, log, "user update profile", &req) {
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	user, err := h.service.UpdateProfile(ctx, actor.UserID, req)
	if err != nil {
		h.writeError(w, log, "user update profile", err)
		return
	}

	log.Info("user update profile: ok", slog.String("user_id", user.ID))
	transport.WriteJSON(w, http.StatusOK, user)
}

func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	log := h.logWithRequest(r)
	values := r.URL.Query()

	page, err := httpx.ParsePage(values, 10, 100)
	if err != nil {
		log.Warn("user list: invalid query", slog.String("error", err.Error()))
		transport.WriteError(w, http.StatusBadRequest, err.Error(), nil)
		return
	}
	sort, err := httpx.ParseSort(values, sortFields, httpx.Sort{Field: "createdAt", Desc: true})
	if err != nil {
		transport.WriteError(w, http.StatusBadRequest, err.Error(), nil)
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	items, total, err := h.service.List(ctx, ListQuery{
		Search:    values.Get("search"),
		Limit:     page.Limit,
		Offset:    page.Skip(),
		SortField: sort.Field,
		SortDesc:  sort.Desc,
	})
	if err != nil {
		h.writeError(w, log, "user list", err)
		return
	}

	transport.WriteJSON(w, http.StatusOK, map[string]interface{}{
		"items":      items,
		"pagination": transport.NewPagination(page.Page, page.Limit, total),
	})
}

func (h *Handler) AdminUpdate(w http.ResponseWriter, r *http.Request) {
	log := h.logWithRequest(r)
	id := strings.TrimSpace(chi.URLParam(r, "id"))

	var req AdminUpdateRequest
	if !h.decode(w, r, log, "user admin update", &req) {
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	user, err := h.service.AdminUpdate(ctx, id, req)
	if err != nil {
		h.writeError(w, log, "user admin update", err)
		return
	}

	log.Info("user admin update: ok", slog.String("user_id", id))
	transport.WriteJSON(w, http.StatusOK, user)
}

func (h *Handler) Delete(w http.ResponseWriter, r *http.Request) {
	log := h.logWithRequest(r)
	id := strings.TrimSpace(chi.URLParam(r, "id"))

	if actor, _ := auth.IdentityFromContext(r.Context()); actor.UserID == id {
		log.Warn("user delete: self")
		transport.WriteError(w, http.StatusBadRequest, "cannot delete your own account", nil)
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	if err := h.service.Delete(ctx, id); err != nil {
		h.writeError(w, log, "user delete", err)
		return
	}

	log.Info("user delete: ok", slog.String("user_id", id))
	transport.WriteMessage(w, http.StatusOK, "User deleted successfully")
}

func (h *Handler) ToggleStatus(w http.ResponseWriter, r *http.Request) {
	log := h.logWithRequest(r)
	id := strings.TrimSpace(chi.URLParam(r, "id"))

	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	user, err := h.service.ToggleStatus(ctx, id)
	if err != nil {
		h.writeError(w, log, "user toggle", err)
		return
	}

	log.Info("user toggle: ok", slog.String("user_id", id), slog.Bool("is_active", user.IsActive))
	transport.WriteJSON(w, http.StatusOK, user)
}

func (h *Handler) decode(w http.ResponseWriter, r *http.Request, log *slog.Logger, op string, v interface{}) bool {
	if err := httpx.DecodeJSON(r.Body, v); err != nil {
		log.Warn(op + ": invalid json")
		transport.WriteError(w, http.StatusBadRequest, "invalid json", nil)
		return false
	}
	if err := h.val.Struct(v); err != nil {
		log.Warn(op + ": validation error")
		transport.WriteError(w, http.StatusBadRequest, "validation error", httpx.ValidationDetails(h.val.ValidationErrors(err)))
		return false
	}
	return true
}

func (h *Handler) sendEmail(log *slog.Logger, kind string, user User, send func(context.Context, User) (string, error)) {
	ctx, cancel := context.WithTimeout(context.Background(), 8*time.Second)
	defer cancel()

	messageID, err := send(ctx, user)
	if err != nil {
		log.Warn("auth email: send failed", slog.String("kind", kind), slog.String("user_id", user.ID), slog.String("error", err.Error()))
		return
	}
	if messageID != "" {
		log.Info("auth email: sent", slog.String("kind", kind), slog.String("user_id", user.ID), slog.String("message_id", messageID))
	}
}

func (h *Handler) writeError(w http.ResponseWriter, log *slog.Logger, op string, err error) {
	switch {
	case errors.Is(err, ErrNotFound):
		log.Warn(op+": not found")
		transport.WriteError(w, http.StatusNotFound, err.Error(), nil)
	case errors.Is(err, ErrInactive):
		log.Warn(op+": inactive account")
		transport.WriteError(w, http.StatusForbidden, err.Error(), nil)
	case errors.Is(err, ErrEmailTaken), errors.Is(err, ErrUnknownEmail), errors.Is(err, ErrInvalidCredentials),
		errors.Is(err, ErrNotVerified), errors.Is(err, ErrAlreadyVerified), errors.Is(err, ErrInvalidToken),
		errors.Is(err, ErrWrongPassword):
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
