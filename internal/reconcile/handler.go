package reconcile

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"
	"golang.org/x/text/language"

	"github.com/sisco70/tabacchi/internal/platform/httpx"
)

var labelLanguages = language.NewMatcher([]language.Tag{language.Italian, language.English})

// Handler exposes reconciliation sessions over HTTP.
type Handler struct {
	logger    *slog.Logger
	service   *Service
	registry  *Registry
	scanner   *WSSource
	validator *validator.Validate
}

// NewHandler builds Handler instance.
func NewHandler(logger *slog.Logger, service *Service, registry *Registry, scanner *WSSource) *Handler {
	return &Handler{logger: logger, service: service, registry: registry, scanner: scanner, validator: validator.New()}
}

// MountRoutes registers the reconciliation routes below an order route
// carrying the {id} parameter.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Route("/reconciliation", func(r chi.Router) {
		r.Post("/", h.open)
		r.Get("/", h.state)
		r.Delete("/", h.close)
		r.Post("/load", h.load)
		r.Post("/scan", h.scan)
		r.Post("/pending", h.resolve)
		r.Post("/add", h.add)
		r.Post("/align", h.align)
		r.Delete("/lines/{article}", h.deleteLine)
		r.Post("/commit", h.commit)
		r.Post("/finalize", h.finalize)
		r.Get("/scanner", h.serveScanner)
	})
}

type lineView struct {
	ArticleID   string `json:"article_id"`
	Description string `json:"description"`
	Barcode     string `json:"barcode,omitempty"`
	Ordered     string `json:"ordered"`
	Loaded      string `json:"loaded"`
	Value       string `json:"value"`
	Verified    bool   `json:"verified"`
	CanAlign    bool   `json:"can_align"`
	Added       bool   `json:"added"`
}

type totalsView struct {
	Loaded       string `json:"loaded"`
	Ordered      string `json:"ordered"`
	LoadedValue  string `json:"loaded_value"`
	OrderedValue string `json:"ordered_value"`
}

type sessionView struct {
	OrderID     int64       `json:"order_id"`
	Token       string      `json:"token"`
	Lines       []lineView  `json:"lines"`
	Deleted     []string    `json:"deleted"`
	Totals      totalsView  `json:"totals"`
	Labels      Labels      `json:"labels"`
	Dirty       bool        `json:"dirty"`
	CanFinalize bool        `json:"can_finalize"`
	Pending     []ScanReply `json:"pending"`
}

func (h *Handler) view(r *http.Request, live *Live) sessionView {
	tag, _ := language.MatchStrings(labelLanguages, r.Header.Get("Accept-Language"))
	v := sessionView{OrderID: live.OrderID(), Token: live.ID.String(), Lines: []lineView{}, Pending: []ScanReply{}}
	_ = live.Do(func(s *Session) error {
		for _, l := range s.Lines() {
			v.Lines = append(v.Lines, lineView{
				ArticleID:   l.ArticleID,
				Description: l.Description,
				Barcode:     l.Barcode,
				Ordered:     l.Ordered.StringFixed(3),
				Loaded:      l.Loaded.StringFixed(3),
				Value:       l.LoadedValue().StringFixed(2),
				Verified:    l.Verified(),
				CanAlign:    s.CanAlign(l.ArticleID),
				Added:       l.Added,
			})
		}
		t := s.Totals()
		v.Totals = totalsView{
			Loaded:       t.Loaded.StringFixed(3),
			Ordered:      t.Ordered.StringFixed(3),
			LoadedValue:  t.LoadedValue.StringFixed(2),
			OrderedValue: t.OrderedValue.StringFixed(2),
		}
		v.Labels = FormatTotals(t, tag)
		v.Deleted = s.Deleted()
		v.Dirty = s.Dirty()
		v.CanFinalize = s.CanFinalize()
		return nil
	})
	for _, e := range live.Pending() {
		v.Pending = append(v.Pending, newScanReply(e, nil))
	}
	return v
}

func (h *Handler) open(w http.ResponseWriter, r *http.Request) {
	id, ok := h.orderID(w, r)
	if !ok {
		return
	}
	live, created, err := h.registry.Open(r.Context(), id, func(ctx context.Context) (*Session, error) {
		return h.service.Open(ctx, id)
	})
	if err != nil {
		h.fail(w, "open reconciliation", err)
		return
	}
	status := http.StatusOK
	if created {
		status = http.StatusCreated
	}
	httpx.JSON(w, status, h.view(r, live))
}

func (h *Handler) state(w http.ResponseWriter, r *http.Request) {
	live, ok := h.live(w, r)
	if !ok {
		return
	}
	httpx.JSON(w, http.StatusOK, h.view(r, live))
}

type loadRequest struct {
	ArticleID string          `json:"article_id" validate:"required"`
	Quantity  decimal.Decimal `json:"quantity"`
	Confirm   bool            `json:"confirm"`
}

func (h *Handler) load(w http.ResponseWriter, r *http.Request) {
	live, ok := h.live(w, r)
	if !ok {
		return
	}
	var req loadRequest
	if !h.decode(w, r, &req) {
		return
	}
	err := live.Do(func(s *Session) error { return s.SetLoaded(req.ArticleID, req.Quantity, req.Confirm) })
	var over *OverDeliveryError
	if errors.As(err, &over) {
		httpx.ProblemWith(w, http.StatusConflict, "Over Delivery", over.Error(), map[string]any{
			"article_id": over.ArticleID,
			"ordered":    over.Ordered.StringFixed(3),
			"requested":  over.Requested.StringFixed(3),
		})
		return
	}
	h.respond(w, r, live, "set loaded", err)
}

type codeRequest struct {
	Code string `json:"code" validate:"required"`
}

func (h *Handler) scan(w http.ResponseWriter, r *http.Request) {
	live, ok := h.live(w, r)
	if !ok {
		return
	}
	var req codeRequest
	if !h.decode(w, r, &req) {
		return
	}
	e, err := live.Scan(req.Code)
	if err != nil && !e.Rejected() {
		h.fail(w, "scan", err)
		return
	}
	httpx.JSON(w, http.StatusOK, newScanReply(e, err))
}

type resolveRequest struct {
	Code   string `json:"code" validate:"required"`
	Accept bool   `json:"accept"`
}

func (h *Handler) resolve(w http.ResponseWriter, r *http.Request) {
	live, ok := h.live(w, r)
	if !ok {
		return
	}
	var req resolveRequest
	if !h.decode(w, r, &req) {
		return
	}
	_, err := live.Resolve(req.Code, req.Accept)
	h.respond(w, r, live, "resolve scan", err)
}

func (h *Handler) add(w http.ResponseWriter, r *http.Request) {
	live, ok := h.live(w, r)
	if !ok {
		return
	}
	var req codeRequest
	if !h.decode(w, r, &req) {
		return
	}
	err := live.Do(func(s *Session) error { return s.AddArticle(req.Code) })
	h.respond(w, r, live, "add article", err)
}

type articleRequest struct {
	ArticleID string `json:"article_id" validate:"required"`
}

func (h *Handler) align(w http.ResponseWriter, r *http.Request) {
	live, ok := h.live(w, r)
	if !ok {
		return
	}
	var req articleRequest
	if !h.decode(w, r, &req) {
		return
	}
	err := live.Do(func(s *Session) error { return s.Align(req.ArticleID) })
	h.respond(w, r, live, "align line", err)
}

func (h *Handler) deleteLine(w http.ResponseWriter, r *http.Request) {
	live, ok := h.live(w, r)
	if !ok {
		return
	}
	article := chi.URLParam(r, "article")
	err := live.Do(func(s *Session) error { return s.Delete(article) })
	h.respond(w, r, live, "delete line", err)
}

func (h *Handler) commit(w http.ResponseWriter, r *http.Request) {
	live, ok := h.live(w, r)
	if !ok {
		return
	}
	err := live.Do(func(s *Session) error { return h.service.Commit(r.Context(), s) })
	h.respond(w, r, live, "commit reconciliation", err)
}

type finalizeRequest struct {
	Confirm bool `json:"confirm"`
}

func (h *Handler) finalize(w http.ResponseWriter, r *http.Request) {
	live, ok := h.live(w, r)
	if !ok {
		return
	}
	var req finalizeRequest
	if r.ContentLength != 0 && !h.decode(w, r, &req) {
		return
	}
	if err := live.Do(func(s *Session) error { return h.service.Finalize(r.Context(), s, req.Confirm) }); err != nil {
		h.fail(w, "finalize reconciliation", err)
		return
	}
	h.registry.Remove(live.OrderID())
	h.logger.Info("order received", slog.Int64("order_id", live.OrderID()))
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) close(w http.ResponseWriter, r *http.Request) {
	live, ok := h.live(w, r)
	if !ok {
		return
	}
	discard := r.URL.Query().Get("discard") == "1"
	if err := live.Do(func(s *Session) error { return h.service.Close(s, discard) }); err != nil {
		h.fail(w, "close reconciliation", err)
		return
	}
	h.registry.Remove(live.OrderID())
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) serveScanner(w http.ResponseWriter, r *http.Request) {
	live, ok := h.live(w, r)
	if !ok {
		return
	}
	if err := h.scanner.Serve(r.Context(), w, r, live); err != nil {
		h.logger.Warn("scanner session", slog.Int64("order_id", live.OrderID()), slog.Any("error", err))
	}
}

func (h *Handler) respond(w http.ResponseWriter, r *http.Request, live *Live, op string, err error) {
	if err != nil {
		h.fail(w, op, err)
		return
	}
	httpx.JSON(w, http.StatusOK, h.view(r, live))
}

func (h *Handler) live(w http.ResponseWriter, r *http.Request) (*Live, bool) {
	id, ok := h.orderID(w, r)
	if !ok {
		return nil, false
	}
	live, found := h.registry.Get(id)
	if !found {
		httpx.Problem(w, http.StatusNotFound, "Not Found", "no open reconciliation for this order")
		return nil, false
	}
	return live, true
}

func (h *Handler) orderID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id <= 0 {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Order", "order id must be a positive integer")
		return 0, false
	}
	return id, true
}

func (h *Handler) decode(w http.ResponseWriter, r *http.Request, target any) bool {
	return httpx.DecodeValid(w, r, h.validator, target)
}

func (h *Handler) fail(w http.ResponseWriter, op string, err error) {
	h.logger.Warn(op, slog.Any("error", err))
	httpx.RespondError(w, err)
}
