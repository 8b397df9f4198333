package orders

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/sisco70/tabacchi/internal/export"
	"github.com/sisco70/tabacchi/internal/platform/httpx"
)

// Handler manages order endpoints.
type Handler struct {
	logger    *slog.Logger
	service   *Service
	validator *validator.Validate
}

// NewHandler builds Handler instance.
func NewHandler(logger *slog.Logger, service *Service) *Handler {
	return &Handler{logger: logger, service: service, validator: validator.New()}
}

// MountRoutes registers order routes. extra routes are mounted below
// /{id} so that other packages can extend an order.
func (h *Handler) MountRoutes(r chi.Router, extra ...func(chi.Router)) {
	r.Get("/", h.list)
	r.Post("/", h.create)
	r.Post("/import", h.importDocument)
	r.Route("/{id}", func(r chi.Router) {
		r.Get("/", h.get)
		r.Delete("/", h.delete)
		r.Get("/sheet", h.sheet)
		r.Put("/lines/{article}", h.recordLine)
		r.Put("/resume", h.setResume)
		r.Get("/estimate", h.estimate)
		r.Get("/check", h.check)
		r.Get("/export", h.export)
		r.Post("/send", h.send)
		r.Post("/submission", h.submission)
		r.Put("/supplemental", h.attachSupplemental)
		r.Delete("/supplemental", h.detachSupplemental)
		for _, mount := range extra {
			mount(r)
		}
	})
}

type orderView struct {
	ID               int64      `json:"id"`
	PlacedAt         time.Time  `json:"placed_at"`
	Delivery         string     `json:"delivery"`
	State            State      `json:"state"`
	ResumeIndex      int        `json:"resume_index"`
	Supplemental     string     `json:"supplemental"`
	SupplementalDate *string    `json:"supplemental_date,omitempty"`
	Weight           *float64   `json:"weight,omitempty"`
	Cost             *float64   `json:"cost,omitempty"`
	Lines            []lineView `json:"lines,omitempty"`
}

type lineView struct {
	ArticleID   string  `json:"article_id"`
	Description string  `json:"description"`
	Ordered     float64 `json:"ordered"`
	Price       float64 `json:"price"`
	Stock       float64 `json:"stock"`
	Consumption float64 `json:"consumption"`
}

func newOrderView(o Order) orderView {
	v := orderView{
		ID:           o.ID,
		PlacedAt:     o.PlacedAt,
		Delivery:     o.Delivery.Format(time.DateOnly),
		State:        o.State,
		ResumeIndex:  o.ResumeIndex,
		Supplemental: string(o.Supplemental),
	}
	if o.SupplementalDate != nil {
		d := o.SupplementalDate.Format(time.DateOnly)
		v.SupplementalDate = &d
	}
	return v
}

func newLineView(l Line) lineView {
	return lineView{ArticleID: l.ArticleID, Description: l.Description, Ordered: l.Ordered, Price: l.Price, Stock: l.Stock, Consumption: l.Consumption}
}

func (h *Handler) list(w http.ResponseWriter, r *http.Request) {
	since := time.Time{}
	if raw := r.URL.Query().Get("since"); raw != "" {
		parsed, err := time.Parse(time.DateOnly, raw)
		if err != nil {
			httpx.Problem(w, http.StatusBadRequest, "Invalid Filter", "since must be YYYY-MM-DD")
			return
		}
		since = parsed
	}
	summaries, err := h.service.List(r.Context(), since)
	if err != nil {
		h.fail(w, "list orders", err)
		return
	}
	out := make([]orderView, 0, len(summaries))
	for _, s := range summaries {
		v := newOrderView(s.Order)
		weight, cost := s.Weight, s.Cost
		v.Weight, v.Cost = &weight, &cost
		out = append(out, v)
	}
	httpx.JSON(w, http.StatusOK, out)
}

func (h *Handler) create(w http.ResponseWriter, r *http.Request) {
	order, err := h.service.Create(r.Context())
	if err != nil {
		h.fail(w, "create order", err)
		return
	}
	h.logger.Info("order created", slog.Int64("order_id", order.ID), slog.String("delivery", order.Delivery.Format(time.DateOnly)))
	httpx.JSON(w, http.StatusCreated, newOrderView(order))
}

func (h *Handler) get(w http.ResponseWriter, r *http.Request) {
	id, ok := h.orderID(w, r)
	if !ok {
		return
	}
	order, err := h.service.Get(r.Context(), id)
	if err != nil {
		h.fail(w, "get order", err)
		return
	}
	lines, err := h.service.Lines(r.Context(), id)
	if err != nil {
		h.fail(w, "get order lines", err)
		return
	}
	v := newOrderView(order)
	for _, l := range lines {
		v.Lines = append(v.Lines, newLineView(l))
	}
	httpx.JSON(w, http.StatusOK, v)
}

func (h *Handler) delete(w http.ResponseWriter, r *http.Request) {
	id, ok := h.orderID(w, r)
	if !ok {
		return
	}
	if err := h.service.Delete(r.Context(), id, r.URL.Query().Get("confirm") == "1"); err != nil {
		h.fail(w, "delete order", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type sheetRowView struct {
	ArticleID   string   `json:"article_id"`
	Description string   `json:"description"`
	MinLevel    float64  `json:"min_level"`
	Line        lineView `json:"line"`
	HasLine     bool     `json:"has_line"`
	Previous    lineView `json:"previous"`
	Suggested   float64  `json:"suggested"`
}

func (h *Handler) sheet(w http.ResponseWriter, r *http.Request) {
	id, ok := h.orderID(w, r)
	if !ok {
		return
	}
	order, rows, err := h.service.Sheet(r.Context(), id)
	if err != nil {
		h.fail(w, "order sheet", err)
		return
	}
	out := make([]sheetRowView, 0, len(rows))
	for _, row := range rows {
		out = append(out, sheetRowView{
			ArticleID:   row.Article.ID,
			Description: row.Article.Description,
			MinLevel:    row.Article.MinLevel,
			Line:        newLineView(row.Line),
			HasLine:     row.HasLine,
			Previous:    newLineView(row.Previous),
			Suggested:   row.Suggested,
		})
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"order": newOrderView(order), "mode": order.State.Mode(), "rows": out})
}

type lineRequest struct {
	Stock   float64 `json:"stock" validate:"gte=0"`
	Ordered float64 `json:"ordered" validate:"gte=0"`
}

func (h *Handler) recordLine(w http.ResponseWriter, r *http.Request) {
	id, ok := h.orderID(w, r)
	if !ok {
		return
	}
	var req lineRequest
	if !h.decode(w, r, &req) {
		return
	}
	line, err := h.service.RecordLine(r.Context(), LineInput{OrderID: id, ArticleID: chi.URLParam(r, "article"), Stock: req.Stock, Ordered: req.Ordered})
	if err != nil {
		h.fail(w, "record line", err)
		return
	}
	httpx.JSON(w, http.StatusOK, newLineView(line))
}

type resumeRequest struct {
	Index int `json:"index" validate:"gte=0"`
}

func (h *Handler) setResume(w http.ResponseWriter, r *http.Request) {
	id, ok := h.orderID(w, r)
	if !ok {
		return
	}
	var req resumeRequest
	if !h.decode(w, r, &req) {
		return
	}
	if err := h.service.SetResumeIndex(r.Context(), id, req.Index); err != nil {
		h.fail(w, "set resume index", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) estimate(w http.ResponseWriter, r *http.Request) {
	id, ok := h.orderID(w, r)
	if !ok {
		return
	}
	order, err := h.service.Get(r.Context(), id)
	if err != nil {
		h.fail(w, "estimate", err)
		return
	}
	lines, err := h.service.Lines(r.Context(), id)
	if err != nil {
		h.fail(w, "estimate", err)
		return
	}
	incoming := make(map[string]float64, len(lines))
	for _, l := range lines {
		incoming[l.ArticleID] = l.Ordered
	}
	proposed, err := h.service.Estimate(r.Context(), order.PlacedAt, incoming)
	if err != nil {
		h.fail(w, "estimate", err)
		return
	}
	httpx.JSON(w, http.StatusOK, proposed)
}

func (h *Handler) check(w http.ResponseWriter, r *http.Request) {
	id, ok := h.orderID(w, r)
	if !ok {
		return
	}
	missing, err := h.service.CheckSend(r.Context(), id)
	if err != nil {
		h.fail(w, "check order", err)
		return
	}
	if missing == nil {
		missing = []MissingArticle{}
	}
	httpx.JSON(w, http.StatusOK, missing)
}

func (h *Handler) export(w http.ResponseWriter, r *http.Request) {
	id, ok := h.orderID(w, r)
	if !ok {
		return
	}
	order, err := h.service.Get(r.Context(), id)
	if err != nil {
		h.fail(w, "export order", err)
		return
	}
	if order.State != StateInProgress {
		httpx.RespondError(w, fmt.Errorf("%w: order %d is %s", ErrInvalidState, id, order.State))
		return
	}
	lines, err := h.service.Lines(r.Context(), id)
	if err != nil {
		h.fail(w, "export order", err)
		return
	}
	rows := make([]export.Row, 0, len(lines))
	for _, l := range lines {
		rows = append(rows, export.Row{Code: l.ArticleID, Weight: l.Ordered, Description: l.Description})
	}
	w.Header().Set("Content-Type", export.ContentType)
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%s", export.FileName(order.PlacedAt)))
	if err := export.WriteOrder(w, rows); err != nil {
		h.logger.Error("export order", slog.Int64("order_id", id), slog.Any("error", err))
	}
}

type sendRequest struct {
	ShiftIfLate bool `json:"shift_if_late"`
}

func (h *Handler) send(w http.ResponseWriter, r *http.Request) {
	id, ok := h.orderID(w, r)
	if !ok {
		return
	}
	var req sendRequest
	if r.ContentLength != 0 && !h.decode(w, r, &req) {
		return
	}
	order, err := h.service.Send(r.Context(), id, SendOptions{ShiftIfLate: req.ShiftIfLate})
	var late *DeadlineError
	if errors.As(err, &late) {
		httpx.ProblemWith(w, http.StatusConflict, "Deadline Passed", late.Error(), map[string]any{
			"deadline":          late.Deadline,
			"proposed_deadline": late.Proposed.Deadline,
			"proposed_delivery": late.Proposed.Delivery.Format(time.DateOnly),
		})
		return
	}
	if err != nil {
		h.fail(w, "send order", err)
		return
	}
	httpx.JSON(w, http.StatusOK, newOrderView(order))
}

type submissionRequest struct {
	Rows []struct {
		Delivery string `json:"delivery" validate:"required,datetime=2006-01-02"`
		Status   string `json:"status" validate:"required"`
	} `json:"rows" validate:"required,dive"`
}

func (h *Handler) submission(w http.ResponseWriter, r *http.Request) {
	id, ok := h.orderID(w, r)
	if !ok {
		return
	}
	var req submissionRequest
	if !h.decode(w, r, &req) {
		return
	}
	rows := make([]SubmissionRow, 0, len(req.Rows))
	for _, row := range req.Rows {
		d, _ := time.Parse(time.DateOnly, row.Delivery)
		rows = append(rows, SubmissionRow{Delivery: d, Status: row.Status})
	}
	confirmed, err := h.service.ConfirmSubmission(r.Context(), id, rows)
	if err != nil {
		h.fail(w, "confirm submission", err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]bool{"confirmed": confirmed})
}

type supplementalRequest struct {
	Kind  SupplementalKind `json:"kind" validate:"required,oneof=URGENT EXTRAORDINARY"`
	Date  string           `json:"date" validate:"required,datetime=2006-01-02"`
	Lines []struct {
		ArticleID string  `json:"article_id" validate:"required"`
		Weight    float64 `json:"weight" validate:"gte=0"`
	} `json:"lines" validate:"required,min=1,dive"`
}

func (h *Handler) attachSupplemental(w http.ResponseWriter, r *http.Request) {
	id, ok := h.orderID(w, r)
	if !ok {
		return
	}
	var req supplementalRequest
	if !h.decode(w, r, &req) {
		return
	}
	date, _ := time.Parse(time.DateOnly, req.Date)
	in := SupplementalInput{Kind: req.Kind, Date: date}
	for _, l := range req.Lines {
		in.Lines = append(in.Lines, SupplementalLine{ArticleID: l.ArticleID, Weight: l.Weight})
	}
	if err := h.service.AttachSupplemental(r.Context(), id, in); err != nil {
		h.fail(w, "attach supplemental", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) detachSupplemental(w http.ResponseWriter, r *http.Request) {
	id, ok := h.orderID(w, r)
	if !ok {
		return
	}
	if err := h.service.DetachSupplemental(r.Context(), id); err != nil {
		h.fail(w, "detach supplemental", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type importRequest struct {
	PlacedAt  time.Time    `json:"placed_at" validate:"required"`
	Delivery  string       `json:"delivery" validate:"required,datetime=2006-01-02"`
	Kind      DocumentKind `json:"kind" validate:"required,oneof=INVOICE ORDER_CONFIRMATION"`
	Overwrite bool         `json:"overwrite"`
	Rows      []struct {
		ArticleID   string  `json:"article_id" validate:"required"`
		Description string  `json:"description" validate:"required"`
		Weight      float64 `json:"weight" validate:"gte=0"`
		UnitCost    float64 `json:"unit_cost" validate:"gte=0"`
	} `json:"rows" validate:"required,min=1,dive"`
}

func (h *Handler) importDocument(w http.ResponseWriter, r *http.Request) {
	var req importRequest
	if !h.decode(w, r, &req) {
		return
	}
	delivery, _ := time.Parse(time.DateOnly, req.Delivery)
	doc := ImportDocument{PlacedAt: req.PlacedAt, Delivery: delivery, Kind: req.Kind}
	for _, row := range req.Rows {
		doc.Rows = append(doc.Rows, ImportRow{ArticleID: row.ArticleID, Description: row.Description, Weight: row.Weight, UnitCost: row.UnitCost})
	}
	order, err := h.service.Import(r.Context(), doc, ImportOptions{Overwrite: req.Overwrite})
	if err != nil {
		h.fail(w, "import document", err)
		return
	}
	h.logger.Info("document imported", slog.Int64("order_id", order.ID), slog.String("kind", string(req.Kind)), slog.Int("rows", len(doc.Rows)))
	httpx.JSON(w, http.StatusCreated, newOrderView(order))
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
