package catalog

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/sisco70/tabacchi/internal/shared"
)

// Repository persists articles in PostgreSQL.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs Repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

const articleColumns = `id, description, kind, unit_weight, price_per_kg, pieces_per_unit, min_level, in_stock, price_effective, barcode`

// List returns every article ordered by description.
func (r *Repository) List(ctx context.Context) ([]Article, error) {
	return r.query(ctx, `SELECT `+articleColumns+` FROM articles ORDER BY description`)
}

// ListInStock returns the articles the shop keeps on the shelf, in entry order.
func (r *Repository) ListInStock(ctx context.Context) ([]Article, error) {
	return r.query(ctx, `SELECT `+articleColumns+` FROM articles WHERE in_stock ORDER BY kind DESC, description`)
}

// Get loads one article.
func (r *Repository) Get(ctx context.Context, id string) (Article, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+articleColumns+` FROM articles WHERE id=$1`, id)
	a, err := scanArticle(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return Article{}, fmt.Errorf("catalog: article %s: %w", id, shared.ErrNotFound)
	}
	if err != nil {
		return Article{}, shared.Persistence("catalog: get "+id, err)
	}
	return a, nil
}

// Upsert inserts or replaces an article.
func (r *Repository) Upsert(ctx context.Context, a Article) error {
	var effective *time.Time
	if !a.PriceEffective.IsZero() {
		effective = &a.PriceEffective
	}
	_, err := r.pool.Exec(ctx, `INSERT INTO articles (`+articleColumns+`)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)
ON CONFLICT (id) DO UPDATE SET description=EXCLUDED.description, kind=EXCLUDED.kind,
 unit_weight=EXCLUDED.unit_weight, price_per_kg=EXCLUDED.price_per_kg, pieces_per_unit=EXCLUDED.pieces_per_unit,
 min_level=EXCLUDED.min_level, in_stock=EXCLUDED.in_stock, price_effective=EXCLUDED.price_effective, barcode=EXCLUDED.barcode`,
		a.ID, a.Description, a.Type, a.UnitWeight, a.PricePerKg, a.PiecesPerUnit, a.MinLevel, a.InStock, effective, a.Barcode)
	return shared.Persistence("catalog: upsert "+a.ID, err)
}

// SetBarcode associates a scanned code with an article.
func (r *Repository) SetBarcode(ctx context.Context, id, code string) error {
	tag, err := r.pool.Exec(ctx, `UPDATE articles SET barcode=$2 WHERE id=$1`, id, code)
	if err != nil {
		return shared.Persistence("catalog: set barcode "+id, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("catalog: article %s: %w", id, shared.ErrNotFound)
	}
	return nil
}

func (r *Repository) query(ctx context.Context, sql string, args ...any) ([]Article, error) {
	rows, err := r.pool.Query(ctx, sql, args...)
	if err != nil {
		return nil, shared.Persistence("catalog: list", err)
	}
	defer rows.Close()
	var out []Article
	for rows.Next() {
		a, err := scanArticle(rows)
		if err != nil {
			return nil, shared.Persistence("catalog: scan", err)
		}
		out = append(out, a)
	}
	return out, shared.Persistence("catalog: list", rows.Err())
}

func scanArticle(row pgx.Row) (Article, error) {
	var (
		a         Article
		effective *time.Time
	)
	if err := row.Scan(&a.ID, &a.Description, &a.Type, &a.UnitWeight, &a.PricePerKg, &a.PiecesPerUnit,
		&a.MinLevel, &a.InStock, &effective, &a.Barcode); err != nil {
		return Article{}, err
	}
	if effective != nil {
		a.PriceEffective = *effective
	}
	return a, nil
}
