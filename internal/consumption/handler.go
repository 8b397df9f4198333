package consumption

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/sisco70/tabacchi/internal/platform/httpx"
)

// ErrAlreadyQueued is returned by an Enqueuer when a recalculation is
// already waiting to run.
var ErrAlreadyQueued = errors.New("consumption: recalculation already queued")

// Enqueuer schedules a background recalculation and returns the task id.
type Enqueuer interface {
	EnqueueRecalculation(ctx context.Context) (string, error)
}

// Handler exposes consumption statistics.
type Handler struct {
	logger   *slog.Logger
	service  *Service
	enqueuer Enqueuer
	now      func() time.Time
}

// NewHandler builds Handler instance. enqueuer may be nil when no worker
// queue is configured.
func NewHandler(logger *slog.Logger, service *Service, enqueuer Enqueuer) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{logger: logger, service: service, enqueuer: enqueuer, now: time.Now}
}

// MountRoutes registers consumption routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Post("/recalculate", h.recalculate)
	r.Get("/top", h.top)
	r.Get("/{article}", h.summary)
}

func (h *Handler) recalculate(w http.ResponseWriter, r *http.Request) {
	if h.enqueuer == nil {
		httpx.Problem(w, http.StatusServiceUnavailable, "Queue Unavailable", "background jobs are not configured")
		return
	}
	id, err := h.enqueuer.EnqueueRecalculation(r.Context())
	if errors.Is(err, ErrAlreadyQueued) {
		httpx.Problem(w, http.StatusConflict, "Already Queued", err.Error())
		return
	}
	if err != nil {
		h.logger.Error("enqueue recalculation", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusAccepted, map[string]string{"task_id": id})
}

func (h *Handler) summary(w http.ResponseWriter, r *http.Request) {
	from, to, ok := h.window(w, r)
	if !ok {
		return
	}
	sum, err := h.service.Summary(r.Context(), chi.URLParam(r, "article"), from, to)
	if err != nil {
		h.logger.Warn("consumption summary", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, sum)
}

func (h *Handler) top(w http.ResponseWriter, r *http.Request) {
	from, to, ok := h.window(w, r)
	if !ok {
		return
	}
	out, err := h.service.TopPurchased(r.Context(), from, to)
	if err != nil {
		h.logger.Warn("top purchased", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	if out == nil {
		out = []Purchase{}
	}
	httpx.JSON(w, http.StatusOK, out)
}

// window reads from/to (YYYY-MM-DD), defaulting to the last year.
func (h *Handler) window(w http.ResponseWriter, r *http.Request) (time.Time, time.Time, bool) {
	to := h.now().AddDate(0, 0, 1)
	from := to.AddDate(-1, 0, 0)
	for key, dst := range map[string]*time.Time{"from": &from, "to": &to} {
		raw := r.URL.Query().Get(key)
		if raw == "" {
			continue
		}
		parsed, err := time.Parse(time.DateOnly, raw)
		if err != nil {
			httpx.Problem(w, http.StatusBadRequest, "Invalid Filter", key+" must be YYYY-MM-DD")
			return time.Time{}, time.Time{}, false
		}
		*dst = parsed
	}
	return from, to, true
}
