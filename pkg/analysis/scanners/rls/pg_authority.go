package rls

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PGAuthority introspects a live Postgres database directly via pg_catalog.
type PGAuthority struct {
	pool *pgxpool.Pool
}

// NewPGAuthority connects to the database at databaseURL. The pool is kept
// small: the scanner issues a handful of catalog lookups per scan, nothing
// more.
func NewPGAuthority(ctx context.Context, databaseURL string) (*PGAuthority, error) {
	cfg, err := pgxpool.ParseConfig(databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse database URL: %w", err)
	}
	cfg.MaxConns = 2
	cfg.MaxConnLifetime = 5 * time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create connection pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("database unreachable: %w", err)
	}

	return &PGAuthority{pool: pool}, nil
}

func (a *PGAuthority) Close() {
	a.pool.Close()
}

const rlsEnabledQuery = `
SELECT c.relrowsecurity
FROM pg_catalog.pg_class c
JOIN pg_catalog.pg_namespace n ON n.oid = c.relnamespace
WHERE n.nspname = 'public' AND c.relname = $1`

const policiesQuery = `
SELECT p.polname, COALESCE(pg_catalog.pg_get_expr(p.polqual, p.polrelid), '')
FROM pg_catalog.pg_policy p
JOIN pg_catalog.pg_class c ON c.oid = p.polrelid
JOIN pg_catalog.pg_namespace n ON n.oid = c.relnamespace
WHERE n.nspname = 'public' AND c.relname = $1
ORDER BY p.polname`

func (a *PGAuthority) TableSecurity(ctx context.Context, table string) (TableStatus, error) {
	var status TableStatus

	err := a.pool.QueryRow(ctx, rlsEnabledQuery, table).Scan(&status.RLSEnabled)
	if errors.Is(err, pgx.ErrNoRows) {
		return TableStatus{}, ErrTableNotFound
	}
	if err != nil {
		return TableStatus{}, fmt.Errorf("rls lookup failed for %q: %w", table, err)
	}

	rows, err := a.pool.Query(ctx, policiesQuery, table)
	if err != nil {
		return TableStatus{}, fmt.Errorf("policy lookup failed for %q: %w", table, err)
	}
	defer rows.Close()

	for rows.Next() {
		var p Policy
		if err := rows.Scan(&p.Name, &p.Qual); err != nil {
			return TableStatus{}, err
		}
		status.Policies = append(status.Policies, p)
	}
	if err := rows.Err(); err != nil {
		return TableStatus{}, err
	}

	return status, nil
}
