// Package dashboard serves the admin overview counts.
package dashboard

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/Sahil123-FNO/plubming-backend/internal/middleware"
	"github.com/Sahil123-FNO/plubming-backend/internal/transport"
	"golang.org/x/sync/errgroup"
)

type Counter interface {
	Count(ctx context.Context) (int64, error)
}

type Counts struct {
	Users    int64 `json:"users"`
	Orders   int64 `json:"orders"`
	Products int64 `json:"products"`
	Services int64 `json:"services"`
	Bookings int64 `json:"bookings"`
}

type Sources struct {
	Users    Counter
	Orders   Counter
	Products Counter
	Services Counter
	Bookings Counter
}

type Handler struct {
	sources Sources
	log     *slog.Logger
}

func NewHandler(sources Sources, log *slog.Logger) *Handler {
	return &Handler{sources: sources, log: log}
}

// Collect runs every count concurrently and fails on the first error.
func Collect(ctx context.Context, s Sources) (Counts, error) {
	var out Counts
	g, ctx := errgroup.WithContext(ctx)
	for _, job := range []struct {
		src Counter
		dst *int64
	}{
		{s.Users, &out.Users},
		{s.Orders, &out.Orders},
		{s.Products, &out.Products},
		{s.Services, &out.Services},
		{s.Bookings, &out.Bookings},
	} {
		if job.src == nil {
			continue
		}
		job := job
		g.Go(func() error {
			n, err := job.src.Count(ctx)
			if err != nil {
				return err
			}
			*job.dst = n
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return Counts{}, err
	}
	return out, nil
}

func (h *Handler) Get(w http.ResponseWriter, r *http.Request) {
	log := middleware.LoggerFrom(h.log, r)

	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	counts, err := Collect(ctx, h.sources)
	if err != nil {
		log.Error("admin dashboard: database error", slog.String("error", err.Error()))
		transport.WriteError(w, http.StatusInternalServerError, "database error", nil)
		return
	}
	transport.WriteJSON(w, http.StatusOK, counts)
}
