// Package postgres mirrors manifest records into Postgres.
package postgres

import (
	"context"
	"fmt"
	"regexp"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/JakeFAU/nidus-scraper/internal/manifest"
)

const defaultTable = "manifest_records"

var validTableName = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_]*$`)

// Config controls the Postgres connection pool used for manifest rows.
type Config struct {
	DSN             string        `mapstructure:"dsn"`
	Table           string        `mapstructure:"table"`
	MaxConns        int32         `mapstructure:"max_conns"`
	MinConns        int32         `mapstructure:"min_conns"`
	MaxConnLifetime time.Duration `mapstructure:"max_conn_lifetime"`
}

type execCloser interface {
	Exec(context.Context, string, ...any) (pgconn.CommandTag, error)
	Close()
}

// ManifestStore writes manifest records into Postgres.
type ManifestStore struct {
	pool  execCloser
	table string
}

// NewManifestStore creates a Postgres-backed store using the provided config.
func NewManifestStore(ctx context.Context, cfg Config) (*ManifestStore, error) {
	if cfg.DSN == "" {
		return nil, fmt.Errorf("db.dsn is required")
	}
	table, err := tableName(cfg.Table)
	if err != nil {
		return nil, err
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
	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	return &ManifestStore{pool: pool, table: table}, nil
}

// NewManifestStoreWithPool constructs a store from an existing pool.
func NewManifestStoreWithPool(pool execCloser, table string) (*ManifestStore, error) {
	if pool == nil {
		return nil, fmt.Errorf("pool is required")
	}
	name, err := tableName(table)
	if err != nil {
		return nil, err
	}
	return &ManifestStore{pool: pool, table: name}, nil
}

func tableName(table string) (string, error) {
	if table == "" {
		table = defaultTable
	}
	if !validTableName.MatchString(table) {
		return "", fmt.Errorf("invalid table name %q", table)
	}
	return table, nil
}

// Close releases the underlying pool resources.
func (s *ManifestStore) Close() {
	if s == nil || s.pool == nil {
		return
	}
	s.pool.Close()
}

// WriteRecord inserts one manifest row.
func (s *ManifestStore) WriteRecord(ctx context.Context, rec manifest.Record) error {
	if s == nil || s.pool == nil {
		return fmt.Errorf("manifest store is not configured")
	}
	if rec.Path == "" {
		return fmt.Errorf("record path is required")
	}
	query := fmt.Sprintf(`
INSERT INTO %s (
	filename,
	sha256,
	source_url,
	downloaded_at,
	run_id
) VALUES (
	$1,$2,$3,$4,$5
)`, s.table)

	if _, err := s.pool.Exec(ctx, query, rec.Path, rec.Digest, rec.SourceURL, rec.RecordedAt, rec.RunID); err != nil {
		return fmt.Errorf("insert manifest record: %w", err)
	}
	return nil
}
