// Package orders implements the periodic tobacco order: its lines, the
// IN_PROGRESS → SENT → RECEIVED lifecycle, the send deadline and the
// quantity estimator used when orders are created or imported.
package orders

import (
	"fmt"
	"time"

	"github.com/sisco70/tabacchi/internal/shared"
)

// SupplementalKind classifies the supplemental order attached to a regular one.
type SupplementalKind string

const (
	SupplementalNone          SupplementalKind = "NONE"
	SupplementalUrgent        SupplementalKind = "URGENT"
	SupplementalExtraordinary SupplementalKind = "EXTRAORDINARY"
)

// Valid reports whether k is a known kind.
func (k SupplementalKind) Valid() bool {
	switch k {
	case SupplementalNone, SupplementalUrgent, SupplementalExtraordinary:
		return true
	}
	return false
}

// Order is the header of a periodic order.
type Order struct {
	ID               int64
	PlacedAt         time.Time
	Delivery         time.Time
	State            State
	ResumeIndex      int
	Supplemental     SupplementalKind
	SupplementalDate *time.Time
}

// Line is one article of an order. Weights in kg, Price in euro per kg.
type Line struct {
	OrderID     int64
	ArticleID   string
	Description string
	Ordered     float64
	Price       float64
	Stock       float64
	Consumption float64
}

// Level is the quantity available for the cycle: what was on the shelf plus
// what was ordered.
func (l Line) Level() float64 { return l.Stock + l.Ordered }

// Cost is the value of the ordered weight.
func (l Line) Cost() float64 { return l.Ordered * l.Price }

// SupplementalLine is one article of a supplemental order.
type SupplementalLine struct {
	OrderID     int64
	ArticleID   string
	Description string
	Weight      float64
}

// Summary is the listing row for an order.
type Summary struct {
	Order
	Weight             float64
	Cost               float64
	SupplementalWeight float64
}

var (
	// ErrInvalidState indicates an operation not allowed in the order's state.
	ErrInvalidState = fmt.Errorf("%w: order %w", shared.ErrValidation, shared.ErrInvalidState)
	// ErrOrderNotFound is returned when the order id does not exist.
	ErrOrderNotFound = fmt.Errorf("order %w", shared.ErrNotFound)
	// ErrOpenOrderExists blocks creation while an order has not been received.
	ErrOpenOrderExists = fmt.Errorf("%w: an order has not been received yet", shared.ErrValidation)
	// ErrNotLatest blocks creation when an order already sits in the future.
	ErrNotLatest = fmt.Errorf("%w: a newer order already exists", shared.ErrValidation)
	// ErrEmptyCatalog blocks creation when no article is in stock.
	ErrEmptyCatalog = fmt.Errorf("%w: no article in stock", shared.ErrValidation)
	// ErrDeliveryTaken is returned when another order has the same delivery date.
	ErrDeliveryTaken = fmt.Errorf("%w: delivery date already used by another order", shared.ErrValidation)
)

// DateOnly truncates t to midnight in its location.
func DateOnly(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, t.Location())
}
