package catalog

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/Sahil123-FNO/plubming-backend/internal/auth"
	"github.com/Sahil123-FNO/plubming-backend/internal/cache"
	"github.com/Sahil123-FNO/plubming-backend/internal/httpx"
	"github.com/Sahil123-FNO/plubming-backend/internal/middleware"
	"github.com/Sahil123-FNO/plubming-backend/internal/transport"
	"github.com/Sahil123-FNO/plubming-backend/internal/validation"
	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
)

const maxImageBytes = 8 << 20

var sortFields = map[string]string{
	"createdAt":     "createdAt",
	"name":          "name",
	"price":         "price",
	"averageRating": "averageRating",
}

type Handler struct {
	service  *Service
	val      *validation.Validator
	cache    cache.Cache
	cacheTTL time.Duration
	log      *slog.Logger
}

func NewHandler(service *Service, val *validation.Validator, store cache.Cache, cacheTTL time.Duration, log *slog.Logger) *Handler {
	if store == nil {
		store = cache.NewNoop()
	}
	return &Handler{
		service:  service,
		val:      val,
		cache:    store,
		cacheTTL: cacheTTL,
		log:      log,
	}
}

// PublicRoutes mounts the read-only listing endpoints.
func (h *Handler) PublicRoutes(r chi.Router) {
	r.Get("/", h.List)
	r.Get("/{id}", h.Get)
}

// AdminRoutes mounts the management endpoints; the caller applies admin auth.
func (h *Handler) AdminRoutes(r chi.Router) {
	r.Get("/", h.AdminList)
	r.Post("/", h.Create)
	r.Put("/{id}", h.Update)
	r.Delete("/{id}", h.Delete)
	r.Patch("/{id}/toggle-status", h.ToggleStatus)
	r.Post("/{id}/image", h.UploadImage)
}

func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	h.list(w, r, true)
}

func (h *Handler) AdminList(w http.ResponseWriter, r *http.Request) {
	h.list(w, r, false)
}

func (h *Handler) list(w http.ResponseWriter, r *http.Request, public bool) {
	log := h.logWithRequest(r)
	area := h.service.Kind().Plural() + " list"
	values := r.URL.Query()

	page, err := httpx.ParsePage(values, 10, 100)
	if err != nil {
		transport.WriteError(w, http.StatusBadRequest, err.Error(), nil)
		return
	}
	sort, err := httpx.ParseSort(values, sortFields, httpx.Sort{Field: "createdAt", Desc: true})
	if err != nil {
		transport.WriteError(w, http.StatusBadRequest, err.Error(), nil)
		return
	}
	filter := ListFilter{
		Category:   values.Get("category"),
		Search:     strings.TrimSpace(values.Get("search")),
		ActiveOnly: public,
	}
	if filter.MinPrice, err = parsePrice(values.Get("minPrice")); err != nil {
		transport.WriteError(w, http.StatusBadRequest, "invalid minPrice", nil)
		return
	}
	if filter.MaxPrice, err = parsePrice(values.Get("maxPrice")); err != nil {
		transport.WriteError(w, http.StatusBadRequest, "invalid maxPrice", nil)
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	cacheKey := ""
	if public {
		cacheKey = h.listCacheKey(ctx, r.URL.RawQuery)
		if cached, ok, err := h.cache.Get(ctx, cacheKey); err == nil && ok {
			log.Info(area+": cache hit")
			transport.WriteCachedJSON(w, http.StatusOK, cached)
			return
		}
	}

	items, total, err := h.service.List(ctx, ListQuery{
		Filter:    filter,
		Limit:     page.Limit,
		Offset:    page.Skip(),
		SortField: sort.Field,
		SortDesc:  sort.Desc,
	})
	if err != nil {
		h.writeError(w, log, area, err)
		return
	}

	payload, err := json.Marshal(map[string]interface{}{
		"items":      items,
		"pagination": transport.NewPagination(page.Page, page.Limit, total),
	})
	if err != nil {
		log.Error(area+": encode error", slog.String("error", err.Error()))
		transport.WriteError(w, http.StatusInternalServerError, "encode error", nil)
		return
	}
	if cacheKey != "" {
		_ = h.cache.Set(ctx, cacheKey, payload, h.cacheTTL)
	}

	log.Info(area+": ok", slog.Int("count", len(items)))
	transport.WriteCachedJSON(w, http.StatusOK, payload)
}

func (h *Handler) Get(w http.ResponseWriter, r *http.Request) {
	log := h.logWithRequest(r)
	id := strings.TrimSpace(chi.URLParam(r, "id"))

	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	item, err := h.service.GetPublic(ctx, id)
	if err != nil {
		h.writeError(w, log, string(h.service.Kind())+" get", err)
		return
	}
	transport.WriteJSON(w, http.StatusOK, item)
}

func (h *Handler) Create(w http.ResponseWriter, r *http.Request) {
	log := h.logWithRequest(r)
	area := "admin " + string(h.service.Kind()) + " create"
	actor, _ := auth.IdentityFromContext(r.Context())

	var req UpsertRequest
	if err := httpx.DecodeJSON(r.Body, &req); err != nil {
		log.Warn(area + ": invalid json")
		transport.WriteError(w, http.StatusBadRequest, "invalid json", nil)
		return
	}
	if err := h.val.Struct(req); err != nil {
		log.Warn(area + ": validation error")
		transport.WriteError(w, http.StatusBadRequest, "validation error", httpx.ValidationDetails(h.val.ValidationErrors(err)))
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	item, err := h.service.Create(ctx, req, actor.UserID)
	if err != nil {
		h.writeError(w, log, area, err)
		return
	}

	h.invalidate(ctx)
	log.Info(area+": ok", slog.String("id", item.ID), slog.String("slug", item.Slug))
	transport.WriteJSON(w, http.StatusCreated, item)
}

func (h *Handler) Update(w http.ResponseWriter, r *http.Request) {
	log := h.logWithRequest(r)
	area := "admin " + string(h.service.Kind()) + " update"
	id := strings.TrimSpace(chi.URLParam(r, "id"))

	var req UpsertRequest
	if err := httpx.DecodeJSON(r.Body, &req); err != nil {
		log.Warn(area + ": invalid json")
		transport.WriteError(w, http.StatusBadRequest, "invalid json", nil)
		return
	}
	if err := h.val.Struct(req); err != nil {
		log.Warn(area + ": validation error")
		transport.WriteError(w, http.StatusBadRequest, "validation error", httpx.ValidationDetails(h.val.ValidationErrors(err)))
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	item, err := h.service.Update(ctx, id, req)
	if err != nil {
		h.writeError(w, log, area, err)
		return
	}

	h.invalidate(ctx)
	log.Info(area+": ok", slog.String("id", id))
	transport.WriteJSON(w, http.StatusOK, item)
}

func (h *Handler) Delete(w http.ResponseWriter, r *http.Request) {
	log := h.logWithRequest(r)
	area := "admin " + string(h.service.Kind()) + " delete"
	id := strings.TrimSpace(chi.URLParam(r, "id"))

	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	if err := h.service.Delete(ctx, id); err != nil {
		h.writeError(w, log, area, err)
		return
	}

	h.invalidate(ctx)
	log.Info(area+": ok", slog.String("id", id))
	transport.WriteMessage(w, http.StatusOK, string(h.service.Kind())+" deleted")
}

func (h *Handler) ToggleStatus(w http.ResponseWriter, r *http.Request) {
	log := h.logWithRequest(r)
	area := "admin " + string(h.service.Kind()) + " toggle"
	id := strings.TrimSpace(chi.URLParam(r, "id"))

	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	item, err := h.service.ToggleStatus(ctx, id)
	if err != nil {
		h.writeError(w, log, area, err)
		return
	}

	h.invalidate(ctx)
	log.Info(area+": ok", slog.String("id", id), slog.Bool("active", item.IsActive))
	transport.WriteJSON(w, http.StatusOK, item)
}

func (h *Handler) UploadImage(w http.ResponseWriter, r *http.Request) {
	log := h.logWithRequest(r)
	area := "admin " + string(h.service.Kind()) + " image"
	id := strings.TrimSpace(chi.URLParam(r, "id"))

	r.Body = http.MaxBytesReader(w, r.Body, maxImageBytes)
	if err := r.ParseMultipartForm(maxImageBytes); err != nil {
		log.Warn(area+": invalid form", slog.String("error", err.Error()))
		transport.WriteError(w, http.StatusBadRequest, "invalid multipart form", nil)
		return
	}
	file, _, err := r.FormFile("image")
	if err != nil {
		transport.WriteError(w, http.StatusBadRequest, "validation error", map[string]string{"image": "required"})
		return
	}
	defer file.Close()

	ctx, cancel := context.WithTimeout(r.Context(), 15*time.Second)
	defer cancel()

	item, err := h.service.UploadImage(ctx, id, file)
	if err != nil {
		h.writeError(w, log, area, err)
		return
	}

	h.invalidate(ctx)
	log.Info(area+": ok", slog.String("id", id), slog.String("image", item.Image))
	transport.WriteJSON(w, http.StatusOK, item)
}

func (h *Handler) Rate(w http.ResponseWriter, r *http.Request) {
	log := h.logWithRequest(r)
	area := string(h.service.Kind()) + " rate"
	actor, _ := auth.IdentityFromContext(r.Context())
	id := strings.TrimSpace(chi.URLParam(r, "id"))

	var req RatingRequest
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

	item, err := h.service.Rate(ctx, id, actor.UserID, req)
	if err != nil {
		h.writeError(w, log, area, err)
		return
	}

	h.invalidate(ctx)
	log.Info(area+": ok", slog.String("id", id), slog.Float64("average", item.AverageRating))
	transport.WriteJSON(w, http.StatusOK, item)
}

// listCacheKey scopes list entries by a generation counter so one write
// invalidates every cached page of the catalog.
func (h *Handler) listCacheKey(ctx context.Context, rawQuery string) string {
	gen := "0"
	if v, ok, err := h.cache.Get(ctx, h.genKey()); err == nil && ok {
		gen = string(v)
	}
	sum := sha256.Sum256([]byte(rawQuery))
	return "catalog:" + h.service.Kind().Plural() + ":" + gen + ":" + hex.EncodeToString(sum[:8])
}

func (h *Handler) genKey() string {
	return "catalog:" + h.service.Kind().Plural() + ":gen"
}

func (h *Handler) invalidate(ctx context.Context) {
	if err := h.cache.Set(ctx, h.genKey(), []byte(uuid.NewString()), 0); err != nil {
		h.log.Warn("catalog cache: invalidation failed", slog.String("error", err.Error()))
	}
}

func (h *Handler) writeError(w http.ResponseWriter, log *slog.Logger, area string, err error) {
	switch {
	case errors.Is(err, ErrNotFound):
		log.Warn(area + ": not found")
		transport.WriteError(w, http.StatusNotFound, string(h.service.Kind())+" not found", nil)
	case errors.Is(err, ErrSlugExists), errors.Is(err, ErrInvalidSlug):
		transport.WriteError(w, http.StatusBadRequest, err.Error(), map[string]string{"name": "unique"})
	case errors.Is(err, ErrInvalidCategory):
		transport.WriteError(w, http.StatusBadRequest, "validation error", map[string]string{"category": "oneof"})
	case errors.Is(err, ErrDurationMissing):
		transport.WriteError(w, http.StatusBadRequest, "validation error", map[string]string{"duration": "required"})
	case errors.Is(err, ErrNotRateable), errors.Is(err, ErrInvalidImage):
		log.Warn(area+": rejected", slog.String("error", err.Error()))
		transport.WriteError(w, http.StatusBadRequest, err.Error(), nil)
	default:
		log.Error(area+": database error", slog.String("error", err.Error()))
		transport.WriteError(w, http.StatusInternalServerError, "database error", nil)
	}
}

func (h *Handler) logWithRequest(r *http.Request) *slog.Logger {
	return middleware.LoggerFrom(h.log, r)
}

func parsePrice(raw string) (*float64, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, nil
	}
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil || v < 0 {
		return nil, errors.New("invalid price")
	}
	return &v, nil
}
