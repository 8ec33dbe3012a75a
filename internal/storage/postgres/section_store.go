// Package postgres provides a Postgres-backed catalog of written sections.
package postgres

import (
	"context"
	"fmt"
	"regexp"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/JakeFAU/irc-crawler/internal/crawler"
)

var validTableName = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_]*$`)

const defaultTable = "irc_sections"

// SectionStoreConfig controls the Postgres connection pool used for catalog rows.
type SectionStoreConfig struct {
	DSN             string
	Table           string
	MaxConns        int32
	MaxConnLifetime time.Duration
}

type execCloser interface {
	Exec(context.Context, string, ...any) (pgconn.CommandTag, error)
	Close()
}

// SectionStore upserts one row per section URL.
type SectionStore struct {
	pool  execCloser
	table string
}

// NewSectionStore connects to Postgres and ensures the catalog table exists.
func NewSectionStore(ctx context.Context, cfg SectionStoreConfig) (*SectionStore, error) {
	if cfg.DSN == "" {
		return nil, fmt.Errorf("catalog.dsn is required")
	}
	poolCfg, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("parse postgres dsn: %w", err)
	}
	if cfg.MaxConns > 0 {
		poolCfg.MaxConns = cfg.MaxConns
	}
	if cfg.MaxConnLifetime > 0 {
		poolCfg.MaxConnLifetime = cfg.MaxConnLifetime
	}
	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	store, err := NewSectionStoreWithPool(pool, cfg.Table)
	if err != nil {
		pool.Close()
		return nil, err
	}
	if err := store.EnsureSchema(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	return store, nil
}

// NewSectionStoreWithPool constructs a store from an existing pool (primarily for testing).
func NewSectionStoreWithPool(pool execCloser, table string) (*SectionStore, error) {
	if pool == nil {
		return nil, fmt.Errorf("pool is required")
	}
	if table == "" {
		table = defaultTable
	}
	if !validTableName.MatchString(table) {
		return nil, fmt.Errorf("invalid table name %q", table)
	}
	return &SectionStore{pool: pool, table: table}, nil
}

// EnsureSchema creates the catalog table when missing.
func (s *SectionStore) EnsureSchema(ctx context.Context) error {
	query := fmt.Sprintf(`
CREATE TABLE IF NOT EXISTS %s (
	url            TEXT PRIMARY KEY,
	section_number TEXT NOT NULL,
	title          TEXT NOT NULL,
	subtitle       TEXT NOT NULL,
	chapter        TEXT NOT NULL,
	path           TEXT NOT NULL,
	content_hash   TEXT NOT NULL,
	run_id         TEXT NOT NULL,
	written_at     TIMESTAMPTZ NOT NULL
)`, s.table)
	if _, err := s.pool.Exec(ctx, query); err != nil {
		return fmt.Errorf("create table %s: %w", s.table, err)
	}
	return nil
}

// Close releases the underlying pool resources.
func (s *SectionStore) Close() {
	if s == nil || s.pool == nil {
		return
	}
	s.pool.Close()
}

// RecordSection inserts or refreshes the row for a written section.
func (s *SectionStore) RecordSection(ctx context.Context, record crawler.SectionRecord) error {
	if s == nil || s.pool == nil {
		return fmt.Errorf("section store is not configured")
	}
	if record.URL == "" {
		return fmt.Errorf("record url is required")
	}
	query := fmt.Sprintf(`
INSERT INTO %s (
	url,
	section_number,
	title,
	subtitle,
	chapter,
	path,
	content_hash,
	run_id,
	written_at
) VALUES (
	$1,$2,$3,$4,$5,$6,$7,$8,$9
)
ON CONFLICT (url) DO UPDATE SET
	section_number = EXCLUDED.section_number,
	title = EXCLUDED.title,
	subtitle = EXCLUDED.subtitle,
	chapter = EXCLUDED.chapter,
	path = EXCLUDED.path,
	content_hash = EXCLUDED.content_hash,
	run_id = EXCLUDED.run_id,
	written_at = EXCLUDED.written_at`, s.table)

	args := []any{
		crawler.LeafID(record.URL),
		record.SectionNumber,
		record.Title,
		record.Subtitle,
		record.Chapter,
		record.Path,
		record.ContentHash,
		record.RunID,
		record.WrittenAt,
	}
	if _, err := s.pool.Exec(ctx, query, args...); err != nil {
		return fmt.Errorf("upsert section: %w", err)
	}
	return nil
}
