package orders

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/sisco70/tabacchi/internal/platform/db"
	"github.com/sisco70/tabacchi/internal/shared"
)

// PgRepository persists orders in PostgreSQL.
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

const orderColumns = `id, placed_at, delivery, state, resume_index, supplemental, supplemental_date`

func scanOrder(row pgx.Row) (Order, error) {
	var (
		o     Order
		state string
		kind  string
	)
	if err := row.Scan(&o.ID, &o.PlacedAt, &o.Delivery, &state, &o.ResumeIndex, &kind, &o.SupplementalDate); err != nil {
		return Order{}, err
	}
	o.State = State(state)
	o.Supplemental = SupplementalKind(kind)
	return o, nil
}

func getOrder(q pgx.Row, id int64) (Order, error) {
	o, err := scanOrder(q)
	if errors.Is(err, pgx.ErrNoRows) {
		return Order{}, fmt.Errorf("%w: %d", ErrOrderNotFound, id)
	}
	if err != nil {
		return Order{}, shared.Persistence(fmt.Sprintf("orders: get %d", id), err)
	}
	return o, nil
}

// Get loads an order header.
func (r *PgRepository) Get(ctx context.Context, id int64) (Order, error) {
	return getOrder(r.pool.QueryRow(ctx, `SELECT `+orderColumns+` FROM orders WHERE id=$1`, id), id)
}

// Lines loads the lines of an order.
func (r *PgRepository) Lines(ctx context.Context, id int64) ([]Line, error) {
	rows, err := r.pool.Query(ctx, `SELECT order_id, article_id, description, ordered, price, stock, consumption
FROM order_lines WHERE order_id=$1 ORDER BY description, article_id`, id)
	if err != nil {
		return nil, shared.Persistence(fmt.Sprintf("orders: lines %d", id), err)
	}
	defer rows.Close()
	var out []Line
	for rows.Next() {
		var l Line
		if err := rows.Scan(&l.OrderID, &l.ArticleID, &l.Description, &l.Ordered, &l.Price, &l.Stock, &l.Consumption); err != nil {
			return nil, shared.Persistence(fmt.Sprintf("orders: lines %d", id), err)
		}
		out = append(out, l)
	}
	return out, shared.Persistence(fmt.Sprintf("orders: lines %d", id), rows.Err())
}

// SupplementalLines loads the supplemental lines of an order.
func (r *PgRepository) SupplementalLines(ctx context.Context, id int64) ([]SupplementalLine, error) {
	rows, err := r.pool.Query(ctx, `SELECT order_id, article_id, description, weight
FROM supplemental_lines WHERE order_id=$1 ORDER BY description`, id)
	if err != nil {
		return nil, shared.Persistence(fmt.Sprintf("orders: supplemental lines %d", id), err)
	}
	defer rows.Close()
	var out []SupplementalLine
	for rows.Next() {
		var l SupplementalLine
		if err := rows.Scan(&l.OrderID, &l.ArticleID, &l.Description, &l.Weight); err != nil {
			return nil, shared.Persistence(fmt.Sprintf("orders: supplemental lines %d", id), err)
		}
		out = append(out, l)
	}
	return out, shared.Persistence(fmt.Sprintf("orders: supplemental lines %d", id), rows.Err())
}

// List returns summaries of the orders placed after since, newest first.
func (r *PgRepository) List(ctx context.Context, since time.Time) ([]Summary, error) {
	rows, err := r.pool.Query(ctx, `SELECT o.id, o.placed_at, o.delivery, o.state, o.resume_index, o.supplemental, o.supplemental_date,
 COALESCE((SELECT SUM(l.ordered) FROM order_lines l WHERE l.order_id=o.id), 0),
 COALESCE((SELECT SUM(l.ordered*l.price) FROM order_lines l WHERE l.order_id=o.id), 0),
 COALESCE((SELECT SUM(s.weight) FROM supplemental_lines s WHERE s.order_id=o.id), 0)
FROM orders o WHERE o.placed_at > $1 ORDER BY o.placed_at DESC`, since)
	if err != nil {
		return nil, shared.Persistence("orders: list", err)
	}
	defer rows.Close()
	var out []Summary
	for rows.Next() {
		var (
			s     Summary
			state string
			kind  string
		)
		if err := rows.Scan(&s.ID, &s.PlacedAt, &s.Delivery, &state, &s.ResumeIndex, &kind, &s.SupplementalDate,
			&s.Weight, &s.Cost, &s.SupplementalWeight); err != nil {
			return nil, shared.Persistence("orders: list", err)
		}
		s.State, s.Supplemental = State(state), SupplementalKind(kind)
		out = append(out, s)
	}
	return out, shared.Persistence("orders: list", rows.Err())
}

func (r *PgRepository) findOne(ctx context.Context, op, where string, args ...any) (Order, bool, error) {
	o, err := scanOrder(r.pool.QueryRow(ctx, `SELECT `+orderColumns+` FROM orders `+where, args...))
	if errors.Is(err, pgx.ErrNoRows) {
		return Order{}, false, nil
	}
	if err != nil {
		return Order{}, false, shared.Persistence(op, err)
	}
	return o, true, nil
}

// Latest returns the order with the greatest placement time.
func (r *PgRepository) Latest(ctx context.Context) (Order, bool, error) {
	return r.findOne(ctx, "orders: latest", `ORDER BY placed_at DESC LIMIT 1`)
}

// CountNotReceived counts orders still waiting for their delivery.
func (r *PgRepository) CountNotReceived(ctx context.Context) (int, error) {
	var n int
	err := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM orders WHERE state <> $1`, string(StateReceived)).Scan(&n)
	return n, shared.Persistence("orders: count not received", err)
}

// FindByDelivery returns the order delivering on the given date.
func (r *PgRepository) FindByDelivery(ctx context.Context, delivery time.Time) (Order, bool, error) {
	return r.findOne(ctx, "orders: find by delivery", `WHERE delivery=$1`, DateOnly(delivery))
}

// FindPreceding returns the order placed immediately before placedAt.
func (r *PgRepository) FindPreceding(ctx context.Context, placedAt time.Time) (Order, bool, error) {
	return r.findOne(ctx, "orders: find preceding", `WHERE placed_at < $1 ORDER BY placed_at DESC LIMIT 1`, placedAt)
}

// FindFollowing returns the order placed immediately after placedAt.
func (r *PgRepository) FindFollowing(ctx context.Context, placedAt time.Time) (Order, bool, error) {
	return r.findOne(ctx, "orders: find following", `WHERE placed_at > $1 ORDER BY placed_at ASC LIMIT 1`, placedAt)
}

func (t *txRepo) Get(ctx context.Context, id int64) (Order, error) {
	return getOrder(t.tx.QueryRow(ctx, `SELECT `+orderColumns+` FROM orders WHERE id=$1 FOR UPDATE`, id), id)
}

func (t *txRepo) Create(ctx context.Context, o Order) (int64, error) {
	var id int64
	err := t.tx.QueryRow(ctx, `INSERT INTO orders (placed_at, delivery, state, resume_index, supplemental, supplemental_date)
VALUES ($1,$2,$3,$4,$5,$6) RETURNING id`,
		o.PlacedAt, DateOnly(o.Delivery), string(o.State), o.ResumeIndex, string(o.Supplemental), o.SupplementalDate).Scan(&id)
	if db.IsUniqueViolation(err) {
		return 0, fmt.Errorf("%w (%s)", ErrDeliveryTaken, o.Delivery.Format(time.DateOnly))
	}
	return id, shared.Persistence("orders: create", err)
}

func (t *txRepo) exec(ctx context.Context, op string, id int64, sql string, args ...any) error {
	tag, err := t.tx.Exec(ctx, sql, args...)
	if db.IsUniqueViolation(err) {
		return fmt.Errorf("%w (order %d)", ErrDeliveryTaken, id)
	}
	if err != nil {
		return shared.Persistence(fmt.Sprintf("%s %d", op, id), err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: %d", ErrOrderNotFound, id)
	}
	return nil
}

func (t *txRepo) UpdateState(ctx context.Context, id int64, state State) error {
	return t.exec(ctx, "orders: update state", id, `UPDATE orders SET state=$2 WHERE id=$1`, id, string(state))
}

func (t *txRepo) UpdateSchedule(ctx context.Context, id int64, placedAt, delivery time.Time) error {
	return t.exec(ctx, "orders: update schedule", id, `UPDATE orders SET placed_at=$2, delivery=$3 WHERE id=$1`, id, placedAt, DateOnly(delivery))
}

func (t *txRepo) SetResumeIndex(ctx context.Context, id int64, index int) error {
	return t.exec(ctx, "orders: resume index", id, `UPDATE orders SET resume_index=$2 WHERE id=$1`, id, index)
}

func (t *txRepo) SetSupplemental(ctx context.Context, id int64, kind SupplementalKind, date *time.Time) error {
	return t.exec(ctx, "orders: supplemental", id, `UPDATE orders SET supplemental=$2, supplemental_date=$3 WHERE id=$1`, id, string(kind), date)
}

func (t *txRepo) UpsertLine(ctx context.Context, l Line) error {
	_, err := t.tx.Exec(ctx, `INSERT INTO order_lines (order_id, article_id, description, ordered, price, stock, consumption)
VALUES ($1,$2,$3,$4,$5,$6,$7)
ON CONFLICT (article_id, order_id) DO UPDATE SET ordered=EXCLUDED.ordered, stock=EXCLUDED.stock,
 consumption=EXCLUDED.consumption, price=EXCLUDED.price, description=EXCLUDED.description`,
		l.OrderID, l.ArticleID, l.Description, l.Ordered, l.Price, l.Stock, l.Consumption)
	return shared.Persistence(fmt.Sprintf("orders: upsert line %d/%s", l.OrderID, l.ArticleID), err)
}

func (t *txRepo) DeleteLines(ctx context.Context, id int64) error {
	_, err := t.tx.Exec(ctx, `DELETE FROM order_lines WHERE order_id=$1`, id)
	return shared.Persistence(fmt.Sprintf("orders: delete lines %d", id), err)
}

func (t *txRepo) ReplaceSupplementalLines(ctx context.Context, id int64, lines []SupplementalLine) error {
	if _, err := t.tx.Exec(ctx, `DELETE FROM supplemental_lines WHERE order_id=$1`, id); err != nil {
		return shared.Persistence(fmt.Sprintf("orders: clear supplemental %d", id), err)
	}
	if len(lines) == 0 {
		return nil
	}
	batch := &pgx.Batch{}
	for _, l := range lines {
		batch.Queue(`INSERT INTO supplemental_lines (order_id, article_id, description, weight) VALUES ($1,$2,$3,$4)`,
			id, l.ArticleID, l.Description, l.Weight)
	}
	err := t.tx.SendBatch(ctx, batch).Close()
	return shared.Persistence(fmt.Sprintf("orders: insert supplemental %d", id), err)
}

func (t *txRepo) Delete(ctx context.Context, id int64) error {
	for _, table := range []string{"supplemental_lines", "reconciliation_lines", "order_lines"} {
		if _, err := t.tx.Exec(ctx, `DELETE FROM `+table+` WHERE order_id=$1`, id); err != nil {
			return shared.Persistence(fmt.Sprintf("orders: delete %s %d", table, id), err)
		}
	}
	return t.exec(ctx, "orders: delete", id, `DELETE FROM orders WHERE id=$1`, id)
}
