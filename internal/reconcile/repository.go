package reconcile

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/sisco70/tabacchi/internal/orders"
	"github.com/sisco70/tabacchi/internal/platform/db"
	"github.com/sisco70/tabacchi/internal/shared"
)

// PgRepository persists reconciliation rows in PostgreSQL.
type PgRepository struct {
	pool   *pgxpool.Pool
	orders *orders.PgRepository
}

// NewRepository constructs PgRepository.
func NewRepository(pool *pgxpool.Pool) *PgRepository {
	return &PgRepository{pool: pool, orders: orders.NewRepository(pool)}
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

// Order loads the order header.
func (r *PgRepository) Order(ctx context.Context, id int64) (orders.Order, error) {
	return r.orders.Get(ctx, id)
}

// OrderLines loads the order lines.
func (r *PgRepository) OrderLines(ctx context.Context, id int64) ([]orders.Line, error) {
	return r.orders.Lines(ctx, id)
}

// LoadSession returns the saved reconciliation rows of an order.
func (r *PgRepository) LoadSession(ctx context.Context, orderID int64) ([]StoredLine, error) {
	op := fmt.Sprintf("reconcile: load session %d", orderID)
	rows, err := r.pool.Query(ctx, `SELECT article_id, loaded, ordered, deleted
FROM reconciliation_lines WHERE order_id=$1 ORDER BY article_id`, orderID)
	if err != nil {
		return nil, shared.Persistence(op, err)
	}
	defer rows.Close()
	var out []StoredLine
	for rows.Next() {
		var l StoredLine
		if err := rows.Scan(&l.ArticleID, &l.Loaded, &l.Ordered, &l.Deleted); err != nil {
			return nil, shared.Persistence(op, err)
		}
		out = append(out, l)
	}
	return out, shared.Persistence(op, rows.Err())
}

func (t *txRepo) LockOrder(ctx context.Context, id int64) (orders.Order, error) {
	var (
		o     orders.Order
		state string
	)
	err := t.tx.QueryRow(ctx, `SELECT id, placed_at, delivery, state FROM orders WHERE id=$1 FOR UPDATE`, id).
		Scan(&o.ID, &o.PlacedAt, &o.Delivery, &state)
	if errors.Is(err, pgx.ErrNoRows) {
		return orders.Order{}, fmt.Errorf("%w: %d", orders.ErrOrderNotFound, id)
	}
	if err != nil {
		return orders.Order{}, shared.Persistence(fmt.Sprintf("reconcile: lock order %d", id), err)
	}
	o.State = orders.State(state)
	return o, nil
}

func (t *txRepo) SaveLine(ctx context.Context, orderID int64, line StoredLine) error {
	_, err := t.tx.Exec(ctx, `INSERT INTO reconciliation_lines (order_id, article_id, loaded, ordered, deleted)
VALUES ($1, $2, $3, $4, $5)
ON CONFLICT (article_id, order_id) DO UPDATE SET loaded=EXCLUDED.loaded, ordered=EXCLUDED.ordered, deleted=EXCLUDED.deleted`,
		orderID, line.ArticleID, line.Loaded, line.Ordered, line.Deleted)
	return shared.Persistence(fmt.Sprintf("reconcile: save line %d/%s", orderID, line.ArticleID), err)
}

func (t *txRepo) CommitReceipt(ctx context.Context, orderID int64, lines []ReceiptLine, deleted []string) error {
	batch := &pgx.Batch{}
	for _, l := range lines {
		batch.Queue(`INSERT INTO order_lines (order_id, article_id, description, ordered, price)
VALUES ($1, $2, $3, $4, $5)
ON CONFLICT (article_id, order_id) DO UPDATE SET ordered=EXCLUDED.ordered`,
			orderID, l.ArticleID, l.Description, l.Ordered, l.PricePerKg)
	}
	if len(deleted) > 0 {
		batch.Queue(`UPDATE order_lines SET ordered=0 WHERE order_id=$1 AND article_id = ANY($2)`, orderID, deleted)
	}
	batch.Queue(`DELETE FROM reconciliation_lines WHERE order_id=$1`, orderID)
	batch.Queue(`UPDATE orders SET state=$2 WHERE id=$1`, orderID, string(orders.StateReceived))
	if err := t.tx.SendBatch(ctx, batch).Close(); err != nil {
		return shared.Persistence(fmt.Sprintf("reconcile: commit receipt %d", orderID), err)
	}
	return nil
}
