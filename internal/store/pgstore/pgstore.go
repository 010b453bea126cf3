// Package pgstore keeps counter records in a Postgres table (key TEXT PRIMARY KEY, views BIGINT).
package pgstore

import (
	"context"
	"errors"
	"fmt"
	"regexp"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/tckz/viewcounter/internal/counter"
)

var (
	_ counter.Store       = (*Store)(nil)
	_ counter.Incrementer = (*Store)(nil)
)

const DefaultTable = "view_counters"

var tableName = regexp.MustCompile(`^[a-z_][a-z0-9_]*$`)

type Store struct {
	pool  *pgxpool.Pool
	table string
}

func NewPool(ctx context.Context, databaseURL string) (*pgxpool.Pool, error) {
	poolCfg, err := pgxpool.ParseConfig(databaseURL)
	if err != nil {
		return nil, fmt.Errorf("parse database URL: %w", err)
	}

	poolCfg.MaxConns = 20
	poolCfg.MinConns = 2

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("create DB pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping DB: %w", err)
	}

	return pool, nil
}

func New(pool *pgxpool.Pool, table string) (*Store, error) {
	if table == "" {
		table = DefaultTable
	}
	if !tableName.MatchString(table) {
		return nil, fmt.Errorf("invalid table name: %q", table)
	}
	return &Store{pool: pool, table: table}, nil
}

// EnsureSchema creates the table if it does not exist. views is nullable so that a broken row stays visible.
func (s *Store) EnsureSchema(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
	key   TEXT PRIMARY KEY,
	views BIGINT
)`, s.table))
	if err != nil {
		return fmt.Errorf("create table %s: %w", s.table, err)
	}
	return nil
}

// Increment is a single upsert; the row lock taken by ON CONFLICT serializes concurrent callers.
func (s *Store) Increment(ctx context.Context, key string) (int64, error) {
	q := fmt.Sprintf(`INSERT INTO %[1]s (key, views) VALUES ($1, 1)
ON CONFLICT (key) DO UPDATE SET views = %[1]s.views + 1
WHERE %[1]s.views IS NOT NULL AND %[1]s.views >= 0
RETURNING views`, s.table)

	var views int64
	err := s.pool.QueryRow(ctx, q, key).Scan(&views)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, fmt.Errorf("%w: key=%s, %s is missing or negative", counter.ErrDataCorruption, key, counter.FieldViews)
	}
	if err != nil {
		return 0, classify(key, "upsert", err)
	}
	return views, nil
}

func (s *Store) Get(ctx context.Context, key string) (counter.Lookup, error) {
	q := fmt.Sprintf(`SELECT views FROM %s WHERE key = $1`, s.table)

	var views *int64
	err := s.pool.QueryRow(ctx, q, key).Scan(&views)
	if errors.Is(err, pgx.ErrNoRows) {
		return counter.NotFound(key), nil
	}
	if err != nil {
		return counter.Lookup{}, classify(key, "select", err)
	}
	if views == nil {
		return counter.Lookup{}, fmt.Errorf("%w: key=%s, %s is null", counter.ErrDataCorruption, key, counter.FieldViews)
	}
	n, err := counter.ParseViews(key, *views)
	if err != nil {
		return counter.Lookup{}, err
	}
	return counter.Found(key, n), nil
}

func (s *Store) CompareAndSwap(ctx context.Context, prior counter.Lookup, next counter.Record) (bool, error) {
	var (
		tag pgconn.CommandTag
		err error
	)
	if prior.Found {
		q := fmt.Sprintf(`UPDATE %s SET views = $2 WHERE key = $1 AND views = $3`, s.table)
		tag, err = s.pool.Exec(ctx, q, next.Key, next.Views, prior.Record.Views)
	} else {
		q := fmt.Sprintf(`INSERT INTO %s (key, views) VALUES ($1, $2) ON CONFLICT (key) DO NOTHING`, s.table)
		tag, err = s.pool.Exec(ctx, q, next.Key, next.Views)
	}
	if err != nil {
		return false, classify(next.Key, "compare-and-swap", err)
	}
	return tag.RowsAffected() == 1, nil
}

func (s *Store) Close() error {
	s.pool.Close()
	return nil
}

func classify(key, op string, err error) error {
	var pgErr *pgconn.PgError
	// 22003: numeric_value_out_of_range
	if errors.As(err, &pgErr) && pgErr.Code == "22003" {
		return fmt.Errorf("%w: key=%s, %s: %w", counter.ErrDataCorruption, key, op, err)
	}
	return fmt.Errorf("%w: %s: %w", counter.ErrStoreUnavailable, op, err)
}
