package db

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

// The service is read-mostly: a handful of API handlers plus the cron
// jobs, so the pool stays small and recycles connections slowly.
const (
	poolMaxConns    = 10
	poolMinConns    = 2
	poolMaxIdleTime = time.Minute
	poolMaxLifetime = 30 * time.Minute
	connectTimeout  = 10 * time.Second
)

func Connect(dsn string) (*pgxpool.Pool, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("parse dsn: %w", err)
	}

	cfg.MaxConns = poolMaxConns
	cfg.MinConns = poolMinConns
	cfg.MaxConnIdleTime = poolMaxIdleTime
	cfg.MaxConnLifetime = poolMaxLifetime

	ctx, cancel := context.WithTimeout(context.Background(), connectTimeout)
	defer cancel()

	p, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("create pool: %w", err)
	}

	if err := p.Ping(ctx); err != nil {
		p.Close()
		return nil, fmt.Errorf("ping: %w", err)
	}

	return p, nil
}

// TestConnection round-trips a trivial query so boot fails fast when
// the database is reachable but not usable.
func TestConnection(p *pgxpool.Pool) error {
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()

	var now time.Time
	if err := p.QueryRow(ctx, "SELECT NOW()").Scan(&now); err != nil {
		return fmt.Errorf("startup check: %w", err)
	}
	fmt.Printf("[DB] Connected, server time %s\n", now.Format(time.RFC3339))
	return nil
}
