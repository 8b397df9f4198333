package orders

import (
	"math"

	"github.com/sisco70/tabacchi/internal/shared"
)

// EstimateInput carries what the estimator needs. Previous and Next hold the
// per-article level (stock + ordered) of the adjacent orders and are nil when
// there is no such order.
type EstimateInput struct {
	Articles  []string
	Previous  map[string]float64
	Next      map[string]float64
	MinLevels map[string]float64
	Incoming  map[string]float64
}

// Estimate proposes the on-hand quantity for each article.
//
// When both neighbors recorded the article, the lower of their levels is the
// target. Otherwise the current catalog minimum is used. The incoming weight
// is subtracted and the result never goes below zero. With no neighbor order
// at all every article gets zero.
func Estimate(in EstimateInput) map[string]float64 {
	out := make(map[string]float64, len(in.Articles))
	if in.Previous == nil && in.Next == nil {
		for _, id := range in.Articles {
			out[id] = 0
		}
		return out
	}
	for _, id := range in.Articles {
		level := in.MinLevels[id]
		prev, okPrev := in.Previous[id]
		next, okNext := in.Next[id]
		if okPrev && okNext {
			level = math.Min(prev, next)
		}
		out[id] = clampedRemainder(level, in.Incoming[id])
	}
	return out
}

// SuggestOrder is the weight to order to bring stock back to minLevel.
func SuggestOrder(minLevel, stock float64) float64 {
	return clampedRemainder(minLevel, stock)
}

func clampedRemainder(level, minus float64) float64 {
	v := shared.RoundKg(shared.RoundKg(level) - minus)
	if v < 0 {
		return 0
	}
	return v
}

func levels(lines []Line) map[string]float64 {
	out := make(map[string]float64, len(lines))
	for _, l := range lines {
		out[l.ArticleID] = l.Level()
	}
	return out
}
