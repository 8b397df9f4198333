package orders

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/sisco70/tabacchi/internal/platform/httpx"
	"github.com/sisco70/tabacchi/internal/shared"
)

// HistoryReader reads the audit trail of an entity.
type HistoryReader interface {
	History(ctx context.Context, entity, entityID string, limit int) ([]shared.AuditLog, error)
}

// HistoryHandler serves the audit trail of an order.
type HistoryHandler struct {
	logger *slog.Logger
	reader HistoryReader
}

// NewHistoryHandler builds HistoryHandler instance.
func NewHistoryHandler(logger *slog.Logger, reader HistoryReader) *HistoryHandler {
	return &HistoryHandler{logger: logger, reader: reader}
}

// MountRoutes registers the history route below /orders/{id}.
func (h *HistoryHandler) MountRoutes(r chi.Router) {
	r.Get("/history", h.history)
}

type historyEntry struct {
	Action string         `json:"action"`
	At     time.Time      `json:"at"`
	Meta   map[string]any `json:"meta,omitempty"`
}

func (h *HistoryHandler) history(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id <= 0 {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Order", "order id must be a positive integer")
		return
	}
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	entries, err := h.reader.History(r.Context(), "order", strconv.FormatInt(id, 10), limit)
	if err != nil {
		h.logger.Error("order history", slog.Int64("order_id", id), slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	out := make([]historyEntry, 0, len(entries))
	for _, e := range entries {
		out = append(out, historyEntry{Action: e.Action, At: e.At, Meta: e.Meta})
	}
	httpx.JSON(w, http.StatusOK, out)
}
