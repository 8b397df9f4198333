package catalog

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/sisco70/tabacchi/internal/platform/httpx"
	"github.com/sisco70/tabacchi/internal/shared"
)

// Store is the catalog surface exposed over HTTP.
type Store interface {
	Reader
	Upsert(ctx context.Context, a Article) error
	SetBarcode(ctx context.Context, id, code string) error
}

// Handler serves catalog endpoints.
type Handler struct {
	logger    *slog.Logger
	store     Store
	validator *validator.Validate
}

// NewHandler builds Handler instance.
func NewHandler(logger *slog.Logger, store Store) *Handler {
	return &Handler{logger: logger, store: store, validator: validator.New()}
}

// MountRoutes registers catalog routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/", h.list)
	r.Get("/{id}", h.get)
	r.Put("/{id}", h.upsert)
	r.Put("/{id}/barcode", h.setBarcode)
}

type articleView struct {
	ID          string  `json:"id"`
	Description string  `json:"description"`
	Type        string  `json:"type"`
	UnitWeight  float64 `json:"unit_weight"`
	PricePerKg  float64 `json:"price_per_kg"`
	PackPrice   float64 `json:"pack_price"`
	MinLevel    float64 `json:"min_level"`
	InStock     bool    `json:"in_stock"`
	Barcode     string  `json:"barcode,omitempty"`
}

func toView(a Article) articleView {
	return articleView{
		ID:          a.ID,
		Description: a.Description,
		Type:        a.Type,
		UnitWeight:  a.UnitWeight,
		PricePerKg:  a.PricePerKg,
		PackPrice:   shared.RoundEuro(a.PackPrice()),
		MinLevel:    a.MinLevel,
		InStock:     a.InStock,
		Barcode:     a.Barcode,
	}
}

func (h *Handler) list(w http.ResponseWriter, r *http.Request) {
	var (
		articles []Article
		err      error
	)
	if r.URL.Query().Get("in_stock") == "1" {
		articles, err = h.store.ListInStock(r.Context())
	} else {
		articles, err = h.store.List(r.Context())
	}
	if err != nil {
		h.logger.Error("list articles", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	out := make([]articleView, 0, len(articles))
	for _, a := range articles {
		out = append(out, toView(a))
	}
	httpx.JSON(w, http.StatusOK, out)
}

func (h *Handler) get(w http.ResponseWriter, r *http.Request) {
	a, err := h.store.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, toView(a))
}

type articleRequest struct {
	Description    string  `json:"description" validate:"required,max=120"`
	Type           string  `json:"type" validate:"max=60"`
	UnitWeight     float64 `json:"unit_weight" validate:"gt=0"`
	PricePerKg     float64 `json:"price_per_kg" validate:"gte=0"`
	PiecesPerUnit  int     `json:"pieces_per_unit" validate:"gte=0"`
	MinLevel       float64 `json:"min_level" validate:"gte=0"`
	InStock        bool    `json:"in_stock"`
	PriceEffective string  `json:"price_effective" validate:"omitempty,datetime=2006-01-02"`
	Barcode        string  `json:"barcode" validate:"max=64"`
}

func (h *Handler) upsert(w http.ResponseWriter, r *http.Request) {
	var req articleRequest
	if !httpx.DecodeValid(w, r, h.validator, &req) {
		return
	}
	a := Article{
		ID:            chi.URLParam(r, "id"),
		Description:   req.Description,
		Type:          req.Type,
		UnitWeight:    shared.RoundKg(req.UnitWeight),
		PricePerKg:    req.PricePerKg,
		PiecesPerUnit: req.PiecesPerUnit,
		MinLevel:      shared.RoundKg(req.MinLevel),
		InStock:       req.InStock,
		Barcode:       req.Barcode,
	}
	if req.PriceEffective != "" {
		a.PriceEffective, _ = time.Parse(time.DateOnly, req.PriceEffective)
	}
	if err := h.store.Upsert(r.Context(), a); err != nil {
		h.logger.Error("upsert article", slog.String("article_id", a.ID), slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, toView(a))
}

type barcodeRequest struct {
	Code string `json:"code" validate:"required,max=64"`
}

func (h *Handler) setBarcode(w http.ResponseWriter, r *http.Request) {
	var req barcodeRequest
	if !httpx.DecodeValid(w, r, h.validator, &req) {
		return
	}
	id := chi.URLParam(r, "id")
	if err := h.store.SetBarcode(r.Context(), id, req.Code); err != nil {
		httpx.RespondError(w, err)
		return
	}
	h.logger.Info("barcode associated", slog.String("article_id", id), slog.String("barcode", req.Code))
	w.WriteHeader(http.StatusNoContent)
}
