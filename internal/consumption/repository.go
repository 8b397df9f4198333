package consumption

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/sisco70/tabacchi/internal/platform/db"
	"github.com/sisco70/tabacchi/internal/shared"
)

// PgRepository reads order history from PostgreSQL.
type PgRepository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs PgRepository.
func NewRepository(pool *pgxpool.Pool) *PgRepository {
	return &PgRepository{pool: pool}
}

type txRepo struct {
	tx pgx.Tx
}

// WithTx wraps callback in repeatable-read transaction.
func (r *PgRepository) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	return db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		return fn(ctx, &txRepo{tx: tx})
	})
}

// History returns the order lines of an article placed in (from, to), oldest first.
func (r *PgRepository) History(ctx context.Context, articleID string, from, to time.Time) ([]StoredCycle, error) {
	op := fmt.Sprintf("consumption: history %s", articleID)
	rows, err := r.pool.Query(ctx, `SELECT o.placed_at, l.consumption, l.ordered, l.stock
FROM order_lines l JOIN orders o ON o.id = l.order_id
WHERE l.article_id=$1 AND o.placed_at > $2 AND o.placed_at < $3
ORDER BY o.placed_at`, articleID, from, to)
	if err != nil {
		return nil, shared.Persistence(op, err)
	}
	defer rows.Close()
	var out []StoredCycle
	for rows.Next() {
		var c StoredCycle
		if err := rows.Scan(&c.PlacedAt, &c.Consumption, &c.Ordered, &c.Stock); err != nil {
			return nil, shared.Persistence(op, err)
		}
		out = append(out, c)
	}
	return out, shared.Persistence(op, rows.Err())
}

// TopPurchased sums the weight ordered per in-stock article, heaviest first.
func (r *PgRepository) TopPurchased(ctx context.Context, from, to time.Time) ([]Purchase, error) {
	rows, err := r.pool.Query(ctx, `SELECT a.id, a.description, SUM(l.ordered) AS total, MAX(o.placed_at)
FROM order_lines l
JOIN orders o ON o.id = l.order_id
JOIN articles a ON a.id = l.article_id
WHERE a.in_stock AND l.ordered > 0 AND o.placed_at > $1 AND o.placed_at < $2
GROUP BY a.id, a.description
ORDER BY total DESC`, from, to)
	if err != nil {
		return nil, shared.Persistence("consumption: top purchased", err)
	}
	defer rows.Close()
	var out []Purchase
	for rows.Next() {
		var p Purchase
		if err := rows.Scan(&p.ArticleID, &p.Description, &p.Total, &p.LastPurchase); err != nil {
			return nil, shared.Persistence("consumption: top purchased", err)
		}
		out = append(out, p)
	}
	return out, shared.Persistence("consumption: top purchased", rows.Err())
}

func (t *txRepo) Rows(ctx context.Context) ([]HistoryRow, error) {
	rows, err := t.tx.Query(ctx, `SELECT l.article_id, l.order_id, l.stock, l.ordered
FROM order_lines l JOIN orders o ON o.id = l.order_id
ORDER BY l.article_id, l.order_id`)
	if err != nil {
		return nil, shared.Persistence("consumption: rows", err)
	}
	defer rows.Close()
	var out []HistoryRow
	for rows.Next() {
		var h HistoryRow
		if err := rows.Scan(&h.ArticleID, &h.OrderID, &h.Stock, &h.Ordered); err != nil {
			return nil, shared.Persistence("consumption: rows", err)
		}
		out = append(out, h)
	}
	return out, shared.Persistence("consumption: rows", rows.Err())
}

func (t *txRepo) WriteConsumption(ctx context.Context, updates []Update) error {
	if len(updates) == 0 {
		return nil
	}
	batch := &pgx.Batch{}
	for _, u := range updates {
		batch.Queue(`UPDATE order_lines SET consumption=$3 WHERE article_id=$1 AND order_id=$2`, u.ArticleID, u.OrderID, u.Consumption)
	}
	if err := t.tx.SendBatch(ctx, batch).Close(); err != nil {
		return shared.Persistence(fmt.Sprintf("consumption: write %d rows", len(updates)), err)
	}
	return nil
}
