package consumption

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/sisco70/tabacchi/internal/catalog"
	"github.com/sisco70/tabacchi/internal/shared"
)

// Status is the outcome of a recalculation run.
type Status string

const (
	StatusCompleted Status = "COMPLETED"
	StatusStopped   Status = "STOPPED"
	StatusFailed    Status = "FAILED"
)

// Result reports a recalculation run.
type Result struct {
	Status   Status
	Rows     int
	Duration time.Duration
}

// Repository describes the storage used by the consumption service.
type Repository interface {
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
	History(ctx context.Context, articleID string, from, to time.Time) ([]StoredCycle, error)
	TopPurchased(ctx context.Context, from, to time.Time) ([]Purchase, error)
}

// TxRepository exposes the rows rewritten by a recalculation.
type TxRepository interface {
	Rows(ctx context.Context) ([]HistoryRow, error)
	WriteConsumption(ctx context.Context, updates []Update) error
}

// Service recalculates and reports consumption.
type Service struct {
	repo    Repository
	catalog catalog.Reader
	logger  *slog.Logger
}

// NewService constructs the service.
func NewService(repo Repository, cat catalog.Reader, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{repo: repo, catalog: cat, logger: logger}
}

// Recalculate rewrites the consumption of every order line in one
// transaction. Cancelling ctx discards the whole pass and returns
// shared.ErrStopped.
func (s *Service) Recalculate(ctx context.Context, progress Progress) (Result, error) {
	start := time.Now()
	var res Result
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		rows, err := tx.Rows(ctx)
		if err != nil {
			return err
		}
		updates, err := recalculate(ctx, rows, progress)
		if err != nil {
			return err
		}
		res.Rows = len(updates)
		return tx.WriteConsumption(ctx, updates)
	})
	res.Duration = time.Since(start)
	switch {
	case err == nil:
		res.Status = StatusCompleted
		s.logger.Info("consumption recalculated", slog.Int("rows", res.Rows), slog.Duration("duration", res.Duration))
		return res, nil
	case stopped(ctx, err):
		res.Status, res.Rows = StatusStopped, 0
		s.logger.Info("consumption recalculation stopped", slog.Duration("duration", res.Duration))
		if !errors.Is(err, shared.ErrStopped) {
			err = fmt.Errorf("consumption: recalculate: %w: %w", shared.ErrStopped, err)
		}
		return res, err
	default:
		res.Status, res.Rows = StatusFailed, 0
		return res, fmt.Errorf("consumption: recalculate: %w", err)
	}
}

// stopped reports whether a failed pass was cut short by cancellation, which
// may surface from the store rather than from the row loop.
func stopped(ctx context.Context, err error) bool {
	return errors.Is(err, shared.ErrStopped) ||
		errors.Is(err, context.Canceled) ||
		errors.Is(err, context.DeadlineExceeded) ||
		ctx.Err() != nil
}

// Summary returns the consumption trend of one article placed in (from, to).
func (s *Service) Summary(ctx context.Context, articleID string, from, to time.Time) (Summary, error) {
	if !to.After(from) {
		return Summary{}, shared.Invalid("window end %s is not after start %s", to.Format(time.DateOnly), from.Format(time.DateOnly))
	}
	article, err := s.catalog.Get(ctx, articleID)
	if err != nil {
		return Summary{}, err
	}
	stored, err := s.repo.History(ctx, articleID, from, to)
	if err != nil {
		return Summary{}, err
	}
	sum := Summarize(articleID, stored)
	sum.Description = article.Description
	sum.MinLevel = article.MinLevel
	return sum, nil
}

// TopPurchased ranks the in-stock articles by weight bought in (from, to).
func (s *Service) TopPurchased(ctx context.Context, from, to time.Time) ([]Purchase, error) {
	if !to.After(from) {
		return nil, shared.Invalid("window end %s is not after start %s", to.Format(time.DateOnly), from.Format(time.DateOnly))
	}
	return s.repo.TopPurchased(ctx, from, to)
}
