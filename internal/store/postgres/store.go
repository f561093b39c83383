// Package postgres persists scroll state in a Postgres key/value table.
package postgres

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"sort"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/JakeFAU/maxscroll/internal/store"
)

var validTableName = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_]*$`)

// Config controls the pool and table used for scroll state rows.
type Config struct {
	DSN             string
	Table           string
	MaxConns        int32
	MinConns        int32
	MaxConnLifetime time.Duration
}

type pool interface {
	Exec(context.Context, string, ...any) (pgconn.CommandTag, error)
	Query(context.Context, string, ...any) (pgx.Rows, error)
	QueryRow(context.Context, string, ...any) pgx.Row
	Ping(context.Context) error
	Close()
}

// Provider opens table-backed stores sharing one pool.
type Provider struct {
	pool  pool
	table string
}

// NewProvider connects to Postgres using cfg.
func NewProvider(ctx context.Context, cfg Config) (*Provider, error) {
	if cfg.DSN == "" {
		return nil, fmt.Errorf("store.postgres.dsn is required")
	}
	poolCfg, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("parse postgres dsn: %w", err)
	}
	if cfg.MaxConns > 0 {
		poolCfg.MaxConns = cfg.MaxConns
	}
	if cfg.MinConns > 0 {
		poolCfg.MinConns = cfg.MinConns
	}
	if cfg.MaxConnLifetime > 0 {
		poolCfg.MaxConnLifetime = cfg.MaxConnLifetime
	}
	p, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	provider, err := NewProviderWithPool(p, cfg.Table)
	if err != nil {
		p.Close()
		return nil, err
	}
	return provider, nil
}

// NewProviderWithPool constructs a Provider from an existing pool (primarily for testing).
func NewProviderWithPool(p pool, table string) (*Provider, error) {
	if p == nil {
		return nil, fmt.Errorf("pool is required")
	}
	if table == "" {
		table = "scroll_state"
	}
	if !validTableName.MatchString(table) {
		return nil, fmt.Errorf("invalid table name %q", table)
	}
	return &Provider{pool: p, table: table}, nil
}

// EnsureSchema creates the state table when it does not exist.
func (p *Provider) EnsureSchema(ctx context.Context) error {
	query := fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
		store_key TEXT NOT NULL,
		field TEXT NOT NULL,
		value BIGINT NOT NULL,
		updated_at TIMESTAMPTZ NOT NULL DEFAULT now(),
		PRIMARY KEY (store_key, field)
	)`, p.table)
	if _, err := p.pool.Exec(ctx, query); err != nil {
		return fmt.Errorf("create %s: %w", p.table, err)
	}
	return nil
}

// Ping checks that the database is reachable.
func (p *Provider) Ping(ctx context.Context) error {
	if err := p.pool.Ping(ctx); err != nil {
		return fmt.Errorf("ping postgres: %w", err)
	}
	return nil
}

// Close releases the pool.
func (p *Provider) Close() {
	p.pool.Close()
}

// Open returns a Store bound to the namespace rows.
func (p *Provider) Open(_ context.Context, trackingID, namespace string) (store.Store, error) {
	key, err := store.Key(trackingID, namespace)
	if err != nil {
		return nil, err
	}
	return &Store{pool: p.pool, table: p.table, key: key}, nil
}

// Store reads and writes the rows sharing one store_key.
type Store struct {
	pool  pool
	table string
	key   string
}

// Get selects every field for the namespace.
func (s *Store) Get(ctx context.Context) (map[string]int64, error) {
	query := fmt.Sprintf(`SELECT field, value FROM %s WHERE store_key = $1`, s.table)
	rows, err := s.pool.Query(ctx, query, s.key)
	if err != nil {
		return nil, fmt.Errorf("select %s: %w", s.key, err)
	}
	defer rows.Close()
	out := make(map[string]int64)
	for rows.Next() {
		var field string
		var value int64
		if err := rows.Scan(&field, &value); err != nil {
			return nil, fmt.Errorf("scan %s: %w", s.key, err)
		}
		out[field] = value
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate %s: %w", s.key, err)
	}
	return out, nil
}

// GetOr selects one field, returning def when the row is missing.
func (s *Store) GetOr(ctx context.Context, key string, def int64) (int64, error) {
	query := fmt.Sprintf(`SELECT value FROM %s WHERE store_key = $1 AND field = $2`, s.table)
	var value int64
	err := s.pool.QueryRow(ctx, query, s.key, key).Scan(&value)
	if errors.Is(err, pgx.ErrNoRows) {
		return def, nil
	}
	if err != nil {
		return 0, fmt.Errorf("select %s %s: %w", s.key, key, err)
	}
	return value, nil
}

// Set upserts partial in a single statement.
func (s *Store) Set(ctx context.Context, partial map[string]int64) error {
	if len(partial) == 0 {
		return nil
	}
	fields := make([]string, 0, len(partial))
	for k := range partial {
		fields = append(fields, k)
	}
	sort.Strings(fields)
	values := make([]int64, len(fields))
	for i, k := range fields {
		values[i] = partial[k]
	}
	query := fmt.Sprintf(`INSERT INTO %s (store_key, field, value)
		SELECT $1, f, v FROM unnest($2::text[], $3::bigint[]) AS u(f, v)
		ON CONFLICT (store_key, field) DO UPDATE
		SET value = EXCLUDED.value, updated_at = now()`, s.table)
	if _, err := s.pool.Exec(ctx, query, s.key, fields, values); err != nil {
		return fmt.Errorf("upsert %s: %w", s.key, err)
	}
	return nil
}

// Clear deletes every row for the namespace.
func (s *Store) Clear(ctx context.Context) error {
	query := fmt.Sprintf(`DELETE FROM %s WHERE store_key = $1`, s.table)
	if _, err := s.pool.Exec(ctx, query, s.key); err != nil {
		return fmt.Errorf("delete %s: %w", s.key, err)
	}
	return nil
}
