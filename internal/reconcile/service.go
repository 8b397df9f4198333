package reconcile

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"

	"github.com/shopspring/decimal"

	"github.com/sisco70/tabacchi/internal/catalog"
	"github.com/sisco70/tabacchi/internal/orders"
	"github.com/sisco70/tabacchi/internal/shared"
)

// StoredLine is a persisted reconciliation row.
type StoredLine struct {
	ArticleID string
	Loaded    float64
	Ordered   float64
	Deleted   bool
}

// ReceiptLine is the final ordered weight of an article at receipt.
type ReceiptLine struct {
	ArticleID   string
	Description string
	Ordered     float64
	PricePerKg  float64
}

// Repository describes the storage used by Service.
type Repository interface {
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
	Order(ctx context.Context, id int64) (orders.Order, error)
	OrderLines(ctx context.Context, id int64) ([]orders.Line, error)
	LoadSession(ctx context.Context, orderID int64) ([]StoredLine, error)
}

// TxRepository exposes the transactional writes.
type TxRepository interface {
	LockOrder(ctx context.Context, id int64) (orders.Order, error)
	SaveLine(ctx context.Context, orderID int64, line StoredLine) error
	// CommitReceipt rewrites the order lines with the received weights,
	// zeroes the removed articles, purges the reconciliation rows and marks
	// the order RECEIVED.
	CommitReceipt(ctx context.Context, orderID int64, lines []ReceiptLine, deleted []string) error
}

// ErrNotSent is returned when reconciling an order that is not SENT.
var ErrNotSent = fmt.Errorf("%w: only sent orders can be reconciled", orders.ErrInvalidState)

// Service opens, saves and finalizes reconciliation sessions.
type Service struct {
	repo    Repository
	catalog catalog.Reader
	audit   orders.AuditPort
	logger  *slog.Logger
}

// NewService constructs the reconciliation service.
func NewService(repo Repository, cat catalog.Reader, audit orders.AuditPort, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{repo: repo, catalog: cat, audit: audit, logger: logger}
}

// Open builds the session of a SENT order, resuming saved rows when present.
func (s *Service) Open(ctx context.Context, orderID int64) (*Session, error) {
	order, err := s.repo.Order(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if order.State != orders.StateSent {
		return nil, fmt.Errorf("%w (order %d is %s)", ErrNotSent, orderID, order.State)
	}
	articles, err := s.catalog.List(ctx)
	if err != nil {
		return nil, err
	}
	orderLines, err := s.repo.OrderLines(ctx, orderID)
	if err != nil {
		return nil, err
	}
	stored, err := s.repo.LoadSession(ctx, orderID)
	if err != nil {
		return nil, err
	}

	byID := catalog.ByID(articles)
	ordered := make(map[string]orders.Line, len(orderLines))
	for _, l := range orderLines {
		ordered[l.ArticleID] = l
	}
	newLine := func(id string, loaded, weight float64) Line {
		a := byID[id]
		l := Line{
			ArticleID:   id,
			Description: a.Description,
			Barcode:     a.Barcode,
			UnitWeight:  shared.Kg(a.UnitWeight),
			PricePerKg:  decimal.NewFromFloat(a.PricePerKg),
			Ordered:     shared.Kg(weight),
			Loaded:      shared.Kg(loaded),
		}
		if ol, ok := ordered[id]; ok {
			l.Description = ol.Description
			l.PricePerKg = decimal.NewFromFloat(ol.Price)
		} else {
			l.Added = true
		}
		return l
	}

	var (
		lines   []Line
		deleted []string
	)
	if len(stored) > 0 {
		for _, row := range stored {
			switch {
			case row.Deleted:
				deleted = append(deleted, row.ArticleID)
			case row.Ordered > 0:
				lines = append(lines, newLine(row.ArticleID, row.Loaded, row.Ordered))
			}
		}
	} else {
		for _, ol := range orderLines {
			if ol.Ordered > 0 {
				lines = append(lines, newLine(ol.ArticleID, 0, ol.Ordered))
			}
		}
	}
	s.logger.Info("reconciliation opened", slog.Int64("order_id", orderID), slog.Int("lines", len(lines)),
		slog.Int("deleted", len(deleted)), slog.Bool("resumed", len(stored) > 0))
	return NewSession(orderID, lines, deleted, articles), nil
}

// Commit persists every line and every removed article. The session is
// marked clean only when the transaction succeeds.
func (s *Service) Commit(ctx context.Context, sess *Session) error {
	lines := sess.Lines()
	deleted := sess.Deleted()
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		if _, err := s.lockSent(ctx, tx, sess.OrderID()); err != nil {
			return err
		}
		for _, l := range lines {
			row := StoredLine{ArticleID: l.ArticleID, Loaded: l.Loaded.InexactFloat64(), Ordered: l.Ordered.InexactFloat64()}
			if err := tx.SaveLine(ctx, sess.OrderID(), row); err != nil {
				return err
			}
		}
		for _, id := range deleted {
			if err := tx.SaveLine(ctx, sess.OrderID(), StoredLine{ArticleID: id, Deleted: true}); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("reconcile: commit order %d: %w", sess.OrderID(), err)
	}
	sess.MarkClean()
	s.recordAudit(ctx, "RECONCILIATION_COMMIT", sess.OrderID(), map[string]any{"lines": len(lines), "deleted": len(deleted)})
	return nil
}

// Finalize records the receipt and moves the order to RECEIVED. It is
// refused unless the delivery matches the order and needs confirmed.
func (s *Service) Finalize(ctx context.Context, sess *Session, confirmed bool) error {
	if !sess.CanFinalize() {
		return ErrFinalizeRefused
	}
	if !confirmed {
		return fmt.Errorf("finalize order %d: %w", sess.OrderID(), shared.ErrConfirmationRequired)
	}
	lines := sess.Lines()
	receipt := make([]ReceiptLine, 0, len(lines))
	for _, l := range lines {
		receipt = append(receipt, ReceiptLine{
			ArticleID:   l.ArticleID,
			Description: l.Description,
			Ordered:     l.Ordered.InexactFloat64(),
			PricePerKg:  l.PricePerKg.InexactFloat64(),
		})
	}
	deleted := sess.Deleted()
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		if _, err := s.lockSent(ctx, tx, sess.OrderID()); err != nil {
			return err
		}
		return tx.CommitReceipt(ctx, sess.OrderID(), receipt, deleted)
	})
	if err != nil {
		return fmt.Errorf("reconcile: finalize order %d: %w", sess.OrderID(), err)
	}
	sess.MarkClean()
	t := sess.Totals()
	s.recordAudit(ctx, "ORDER_RECEIVE", sess.OrderID(), map[string]any{
		"weight": t.Ordered.StringFixed(3),
		"value":  t.OrderedValue.StringFixed(2),
	})
	return nil
}

// Close checks that the session can be dropped.
func (s *Service) Close(sess *Session, discard bool) error {
	if sess.Dirty() && !discard {
		return ErrUnsavedChanges
	}
	return nil
}

func (s *Service) lockSent(ctx context.Context, tx TxRepository, orderID int64) (orders.Order, error) {
	order, err := tx.LockOrder(ctx, orderID)
	if err != nil {
		return orders.Order{}, err
	}
	if !orders.CanTransition(order.State, orders.StateReceived) {
		return orders.Order{}, fmt.Errorf("%w (order %d is %s)", ErrNotSent, orderID, order.State)
	}
	return order, nil
}

func (s *Service) recordAudit(ctx context.Context, action string, id int64, meta map[string]any) {
	if s.audit == nil {
		return
	}
	if err := s.audit.Record(ctx, shared.AuditLog{Action: action, Entity: "order", EntityID: strconv.FormatInt(id, 10), Meta: meta}); err != nil {
		s.logger.Warn("audit record", slog.String("action", action), slog.Int64("order_id", id), slog.Any("error", err))
	}
}
