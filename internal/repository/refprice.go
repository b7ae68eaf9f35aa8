package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/ordistat/ordistat-backend/internal/models"
)

type RefPriceRepo struct {
	pool *pgxpool.Pool
}

func NewRefPriceRepo(pool *pgxpool.Pool) *RefPriceRepo {
	return &RefPriceRepo{pool: pool}
}

// UpsertBatch writes a batch of reference prices in one round trip.
// Existing keys are overwritten; the cache always reflects the most
// recent fetch for a day.
func (r *RefPriceRepo) UpsertBatch(ctx context.Context, prices []models.RefPrice) error {
	if len(prices) == 0 {
		return nil
	}

	batch := &pgx.Batch{}
	for _, p := range prices {
		batch.Queue(
			`INSERT INTO reference_prices (key, price, source, updated_at)
			 VALUES ($1, $2, $3, NOW())
			 ON CONFLICT (key) DO UPDATE SET
			   price = EXCLUDED.price,
			   source = EXCLUDED.source,
			   updated_at = NOW()`,
			p.Key, p.Price, p.Source,
		)
	}

	br := r.pool.SendBatch(ctx, batch)
	defer br.Close()
	for range prices {
		if _, err := br.Exec(); err != nil {
			return fmt.Errorf("upsert reference price: %w", err)
		}
	}
	return nil
}

// LoadAll returns every stored reference price ordered by key.
func (r *RefPriceRepo) LoadAll(ctx context.Context) ([]models.RefPrice, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT key, price, source, updated_at FROM reference_prices ORDER BY key ASC`,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectRefPrices(rows)
}

// Window returns stored prices with day keys inside [start, end].
// Month keys sort below any day with the same prefix, so they are
// filtered by length.
func (r *RefPriceRepo) Window(ctx context.Context, start, end string) ([]models.RefPrice, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT key, price, source, updated_at FROM reference_prices
		 WHERE length(key) = 10 AND key >= $1 AND key <= $2
		 ORDER BY key ASC`,
		start, end,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectRefPrices(rows)
}

// LatestDay returns the most recent day key present, or "" when the
// table holds no day-keyed prices yet.
func (r *RefPriceRepo) LatestDay(ctx context.Context) (string, error) {
	var day string
	err := r.pool.QueryRow(ctx,
		`SELECT key FROM reference_prices WHERE length(key) = 10 ORDER BY key DESC LIMIT 1`,
	).Scan(&day)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return "", nil
		}
		return "", err
	}
	return day, nil
}

// Count returns the number of stored reference prices.
func (r *RefPriceRepo) Count(ctx context.Context) (int, error) {
	var n int
	err := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM reference_prices`).Scan(&n)
	return n, err
}

type rowsIter interface {
	Next() bool
	Scan(dest ...any) error
	Err() error
}

func collectRefPrices(rows rowsIter) ([]models.RefPrice, error) {
	var out []models.RefPrice
	for rows.Next() {
		var p models.RefPrice
		if err := rows.Scan(&p.Key, &p.Price, &p.Source, &p.UpdatedAt); err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}
