package schedule

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/sisco70/tabacchi/internal/orders"
	"github.com/sisco70/tabacchi/internal/platform/httpx"
)

const maxPlanBytes = 1 << 20

// Confirmer marks an order SENT when the plan lists it as accepted.
type Confirmer interface {
	ConfirmSubmission(ctx context.Context, id int64, rows []orders.SubmissionRow) (bool, error)
}

// Handler exposes the delivery plan.
type Handler struct {
	logger    *slog.Logger
	list      *List
	confirmer Confirmer
	loc       *time.Location
}

// NewHandler builds Handler instance.
func NewHandler(logger *slog.Logger, list *List, confirmer Confirmer, loc *time.Location) *Handler {
	if loc == nil {
		loc = time.Local
	}
	return &Handler{logger: logger, list: list, confirmer: confirmer, loc: loc}
}

// MountRoutes registers the plan routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/", h.entries)
	r.Put("/", h.replace)
}

// MountOrderRoutes registers the routes that act on one order; it is meant
// to be mounted below /orders/{id}.
func (h *Handler) MountOrderRoutes(r chi.Router) {
	r.Post("/submission/plan", h.confirm)
}

type entryView struct {
	Delivery string `json:"delivery"`
	Deadline string `json:"deadline"`
	OrderRef string `json:"order_ref,omitempty"`
	Status   string `json:"status"`
	Channel  string `json:"channel,omitempty"`
	Kind     string `json:"kind,omitempty"`
	Valid    bool   `json:"valid"`
}

func (h *Handler) entries(w http.ResponseWriter, _ *http.Request) {
	entries := h.list.Entries()
	out := make([]entryView, 0, len(entries))
	for _, e := range entries {
		out = append(out, entryView{
			Delivery: e.Delivery.Format(time.DateOnly),
			Deadline: e.Deadline.Format("2006-01-02 15:04"),
			OrderRef: e.OrderRef,
			Status:   e.Status,
			Channel:  e.Channel,
			Kind:     e.Kind,
			Valid:    e.Valid(),
		})
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"entries": out})
}

// replace accepts either the YAML plan file or the tab separated table
// copied from the supplier portal.
func (h *Handler) replace(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxPlanBytes))
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Body", err.Error())
		return
	}
	var entries []Entry
	if strings.Contains(r.Header.Get("Content-Type"), "yaml") {
		entries, err = Decode(body, h.loc)
		if err != nil {
			h.logger.Warn("decode plan", slog.Any("error", err))
			httpx.RespondError(w, err)
			return
		}
	} else {
		entries = ParseTable(string(body), h.loc)
	}
	if len(entries) == 0 {
		httpx.Problem(w, http.StatusBadRequest, "Empty Plan", "no delivery rows found")
		return
	}
	h.list.Replace(entries)
	h.logger.Info("delivery plan replaced", slog.Int("entries", len(entries)))
	httpx.JSON(w, http.StatusOK, map[string]int{"entries": len(entries)})
}

func (h *Handler) confirm(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id <= 0 {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Order", "order id must be a positive integer")
		return
	}
	confirmed, err := h.confirmer.ConfirmSubmission(r.Context(), id, h.list.SubmissionRows())
	if err != nil {
		h.logger.Warn("confirm submission from plan", slog.Int64("order_id", id), slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]bool{"confirmed": confirmed})
}
