// Package postgres archives published manifests in Postgres so they outlive
// the job registry's retention window.
package postgres

import (
	"context"
	"encoding/json"
	"fmt"
	"regexp"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/JakeFAU/site-cloner/internal/cloner"
)

var validTableName = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_]*$`)

const defaultTable = "clone_manifests"

// ManifestStoreConfig controls the Postgres connection pool used for manifests.
type ManifestStoreConfig struct {
	DSN             string
	Table           string
	MaxConns        int32
	MinConns        int32
	MaxConnLifetime time.Duration
}

type pool interface {
	Exec(context.Context, string, ...any) (pgconn.CommandTag, error)
	Query(context.Context, string, ...any) (pgx.Rows, error)
	Ping(context.Context) error
	Close()
}

// ArchivedManifest is one archived publish of a site.
type ArchivedManifest struct {
	JobID       string          `json:"job_id"`
	Name        string          `json:"name"`
	SourceURL   string          `json:"source_url"`
	PublicURL   string          `json:"public_url"`
	Resources   int             `json:"resources"`
	Failed      int             `json:"failed"`
	PublishedAt time.Time       `json:"published_at"`
	Manifest    cloner.Manifest `json:"manifest"`
}

// ManifestStore writes manifests into Postgres.
type ManifestStore struct {
	pool  pool
	table string
}

// NewManifestStore creates a Postgres-backed ManifestStore using the provided config.
func NewManifestStore(ctx context.Context, cfg ManifestStoreConfig) (*ManifestStore, error) {
	if cfg.DSN == "" {
		return nil, fmt.Errorf("archive.dsn is required")
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
	p, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	return &ManifestStore{pool: p, table: table}, nil
}

// NewManifestStoreWithPool constructs a store from an existing pool (primarily for testing).
func NewManifestStoreWithPool(p pool, table string) (*ManifestStore, error) {
	if p == nil {
		return nil, fmt.Errorf("pool is required")
	}
	table, err := tableName(table)
	if err != nil {
		return nil, err
	}
	return &ManifestStore{pool: p, table: table}, nil
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

// EnsureSchema creates the archive table and its site index when missing.
func (s *ManifestStore) EnsureSchema(ctx context.Context) error {
	ddl := fmt.Sprintf(`
CREATE TABLE IF NOT EXISTS %[1]s (
	job_id TEXT PRIMARY KEY,
	site_name TEXT NOT NULL,
	source_url TEXT NOT NULL,
	public_url TEXT NOT NULL,
	resource_count INTEGER NOT NULL,
	failed_count INTEGER NOT NULL,
	published_at TIMESTAMPTZ NOT NULL,
	manifest JSONB NOT NULL
);
CREATE INDEX IF NOT EXISTS %[1]s_site_idx ON %[1]s (site_name, published_at DESC)`, s.table)
	if _, err := s.pool.Exec(ctx, ddl); err != nil {
		return fmt.Errorf("create manifest table: %w", err)
	}
	return nil
}

// Ping checks the database connection.
func (s *ManifestStore) Ping(ctx context.Context) error {
	if err := s.pool.Ping(ctx); err != nil {
		return fmt.Errorf("ping postgres: %w", err)
	}
	return nil
}

// StoreManifest upserts the manifest of a completed job.
func (s *ManifestStore) StoreManifest(ctx context.Context, jobID string, manifest cloner.Manifest) error {
	if s == nil || s.pool == nil {
		return fmt.Errorf("manifest store is not configured")
	}
	if jobID == "" {
		return fmt.Errorf("job id is required")
	}
	body, err := json.Marshal(manifest)
	if err != nil {
		return fmt.Errorf("marshal manifest: %w", err)
	}
	publishedAt := manifest.CreatedAt
	if manifest.PublishedAt != nil {
		publishedAt = *manifest.PublishedAt
	}
	query := fmt.Sprintf(`
INSERT INTO %s (
	job_id,
	site_name,
	source_url,
	public_url,
	resource_count,
	failed_count,
	published_at,
	manifest
) VALUES (
	$1,$2,$3,$4,$5,$6,$7,$8
)
ON CONFLICT (job_id) DO UPDATE SET
	public_url = EXCLUDED.public_url,
	resource_count = EXCLUDED.resource_count,
	failed_count = EXCLUDED.failed_count,
	published_at = EXCLUDED.published_at,
	manifest = EXCLUDED.manifest`, s.table)

	args := []any{
		jobID,
		manifest.Name,
		manifest.SourceURL,
		manifest.PublicURL,
		len(manifest.Resources),
		len(manifest.FailedAssets()),
		publishedAt,
		body,
	}
	if _, err := s.pool.Exec(ctx, query, args...); err != nil {
		return fmt.Errorf("insert manifest: %w", err)
	}
	return nil
}

// History returns the archived publishes of a site, newest first.
func (s *ManifestStore) History(ctx context.Context, name string, limit int) ([]ArchivedManifest, error) {
	if limit <= 0 {
		limit = 20
	}
	query := fmt.Sprintf(`
SELECT job_id, site_name, source_url, public_url, resource_count, failed_count, published_at, manifest
FROM %s
WHERE site_name = $1
ORDER BY published_at DESC
LIMIT $2`, s.table)
	rows, err := s.pool.Query(ctx, query, name, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list manifests: %w", err)
	}
	defer rows.Close()

	out := []ArchivedManifest{}
	for rows.Next() {
		var (
			rec  ArchivedManifest
			body []byte
		)
		if err := rows.Scan(
			&rec.JobID,
			&rec.Name,
			&rec.SourceURL,
			&rec.PublicURL,
			&rec.Resources,
			&rec.Failed,
			&rec.PublishedAt,
			&body,
		); err != nil {
			return nil, fmt.Errorf("failed to scan manifest row: %w", err)
		}
		if err := json.Unmarshal(body, &rec.Manifest); err != nil {
			return nil, fmt.Errorf("decode manifest %s: %w", rec.JobID, err)
		}
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to list manifests: %w", err)
	}
	return out, nil
}
