// Package catalog holds the tobacco articles the shop can order.
package catalog

import (
	"context"
	"time"
)

// Article is a catalog entry. Weights are kilograms, prices euro per kg.
type Article struct {
	ID             string
	Description    string
	Type           string
	UnitWeight     float64
	PricePerKg     float64
	PiecesPerUnit  int
	MinLevel       float64
	InStock        bool
	PriceEffective time.Time
	Barcode        string
}

// PackPrice is the shelf price of a single piece.
func (a Article) PackPrice() float64 {
	if a.PiecesPerUnit <= 0 {
		return 0
	}
	return a.PricePerKg * a.UnitWeight / float64(a.PiecesPerUnit)
}

// Reader is the read side of the catalog used by orders and reconciliation.
type Reader interface {
	List(ctx context.Context) ([]Article, error)
	ListInStock(ctx context.Context) ([]Article, error)
	Get(ctx context.Context, id string) (Article, error)
}

// BarcodeIndex resolves scanned codes to articles.
type BarcodeIndex map[string]Article

// NewBarcodeIndex indexes the articles that carry a barcode.
func NewBarcodeIndex(articles []Article) BarcodeIndex {
	idx := make(BarcodeIndex, len(articles))
	for _, a := range articles {
		if a.Barcode == "" {
			continue
		}
		idx[a.Barcode] = a
	}
	return idx
}

// Lookup returns the article for code.
func (i BarcodeIndex) Lookup(code string) (Article, bool) {
	a, ok := i[code]
	return a, ok
}

// ByID indexes articles by code.
func ByID(articles []Article) map[string]Article {
	out := make(map[string]Article, len(articles))
	for _, a := range articles {
		out[a.ID] = a
	}
	return out
}
