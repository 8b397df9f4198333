// Package consumption derives how much of each article was sold between two
// deliveries and keeps the stored per-line consumption in step with the
// order history.
package consumption

import (
	"context"
	"fmt"
	"time"

	"github.com/sisco70/tabacchi/internal/shared"
)

// HistoryRow is one order line in the recalculation pass. Rows must be
// ordered by article and then by order.
type HistoryRow struct {
	ArticleID string
	OrderID   int64
	Stock     float64
	Ordered   float64
}

// Update is the consumption computed for one order line.
type Update struct {
	ArticleID   string
	OrderID     int64
	Consumption float64
}

// Recalculate computes the consumption of every row. The consumption of a
// cycle is what was available in the previous one (stock plus ordered) minus
// the stock counted now. The first cycle of an article has no predecessor
// and gets 0.
func Recalculate(rows []HistoryRow) []Update {
	out, _ := recalculate(context.Background(), rows, nil)
	return out
}

// Progress is told how many rows were processed out of the total.
type Progress func(done, total int)

func recalculate(ctx context.Context, rows []HistoryRow, progress Progress) ([]Update, error) {
	out := make([]Update, 0, len(rows))
	var prev *HistoryRow
	for i := range rows {
		if err := ctx.Err(); err != nil {
			return nil, fmt.Errorf("consumption: stopped at row %d of %d: %w", i, len(rows), shared.ErrStopped)
		}
		cur := rows[i]
		consumption := 0.0
		if prev != nil && prev.ArticleID == cur.ArticleID {
			consumption = shared.RoundKg((shared.RoundKg(prev.Stock) + shared.RoundKg(prev.Ordered)) - shared.RoundKg(cur.Stock))
		}
		out = append(out, Update{ArticleID: cur.ArticleID, OrderID: cur.OrderID, Consumption: consumption})
		prev = &rows[i]
		if progress != nil {
			progress(i+1, len(rows))
		}
	}
	return out, nil
}

// Cycle is one delivery in the history of an article.
type Cycle struct {
	PlacedAt    time.Time `json:"placed_at"`
	Consumption float64   `json:"consumption"`
	Ordered     float64   `json:"ordered"`
	Stock       float64   `json:"stock"`
}

// Summary is the consumption trend of one article over a window.
type Summary struct {
	ArticleID   string  `json:"article_id"`
	Description string  `json:"description"`
	MinLevel    float64 `json:"min_level"`
	Cycles      []Cycle `json:"cycles"`
	Min         float64 `json:"min"`
	Max         float64 `json:"max"`
	Average     float64 `json:"average"`
}

// StoredCycle is an order line of the article as persisted.
type StoredCycle struct {
	PlacedAt    time.Time
	Consumption float64
	Ordered     float64
	Stock       float64
}

// Summarize builds the trend from the stored cycles, oldest first. Negative
// values are shown as 0 and the stock of a cycle excludes what the previous
// order brought in.
func Summarize(articleID string, stored []StoredCycle) Summary {
	s := Summary{ArticleID: articleID, Cycles: make([]Cycle, 0, len(stored))}
	prevOrdered := 0.0
	for i, c := range stored {
		ordered := shared.RoundKg(c.Ordered)
		cycle := Cycle{
			PlacedAt:    c.PlacedAt,
			Consumption: nonNegative(shared.RoundKg(c.Consumption)),
			Ordered:     nonNegative(ordered),
			Stock:       nonNegative(shared.RoundKg(c.Stock) - prevOrdered),
		}
		prevOrdered = ordered
		s.Cycles = append(s.Cycles, cycle)
		if i == 0 || cycle.Consumption < s.Min {
			s.Min = cycle.Consumption
		}
		if cycle.Consumption > s.Max {
			s.Max = cycle.Consumption
		}
		s.Average += cycle.Consumption
	}
	if n := len(s.Cycles); n > 0 {
		s.Average = shared.RoundKg(s.Average / float64(n))
	}
	return s
}

func nonNegative(v float64) float64 {
	if v < 0 {
		return 0
	}
	return v
}

// Purchase is the total bought of one article in a window.
type Purchase struct {
	ArticleID    string    `json:"article_id"`
	Description  string    `json:"description"`
	Total        float64   `json:"total"`
	LastPurchase time.Time `json:"last_purchase"`
}
