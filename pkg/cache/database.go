package cache

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/sqlitedialect"
	"github.com/uptrace/bun/driver/sqliteshim"

	"github.com/kart-io/tmplhub/pkg/logger"
)

// DatabaseBackend stores entries in a SQL table through bun.
type DatabaseBackend struct {
	db     *bun.DB
	owned  bool
	logger logger.Logger
}

type cacheRow struct {
	bun.BaseModel `bun:"table:tmplhub_cache,alias:tc"`

	Namespace string    `bun:"namespace,pk"`
	CacheKey  string    `bun:"cache_key,pk"`
	Content   string    `bun:"content,notnull"`
	ExpiresAt time.Time `bun:"expires_at,nullzero"`
	UpdatedAt time.Time `bun:"updated_at,notnull"`
}

// NewDatabaseBackend opens a SQLite database at dsn.
func NewDatabaseBackend(ctx context.Context, dsn string, log logger.Logger) (*DatabaseBackend, error) {
	sqldb, err := sql.Open(sqliteshim.ShimName, dsn)
	if err != nil {
		return nil, fmt.Errorf("open cache database: %w", err)
	}
	db := bun.NewDB(sqldb, sqlitedialect.New())

	b, err := NewDatabaseBackendWithDB(ctx, db, log)
	if err != nil {
		_ = db.Close()
		return nil, err
	}
	b.owned = true
	return b, nil
}

// NewDatabaseBackendWithDB uses an existing bun database. The caller keeps
// ownership of db.
func NewDatabaseBackendWithDB(ctx context.Context, db *bun.DB, log logger.Logger) (*DatabaseBackend, error) {
	if _, err := db.NewCreateTable().Model((*cacheRow)(nil)).IfNotExists().Exec(ctx); err != nil {
		return nil, fmt.Errorf("create cache table: %w", err)
	}
	l := logger.OrDiscard(log)
	l.Debug("Database cache initialized", "table", "tmplhub_cache")
	return &DatabaseBackend{db: db, logger: l}, nil
}

// Get reads an entry, dropping it when expired.
func (b *DatabaseBackend) Get(ctx context.Context, namespace, key string) (string, error) {
	row := new(cacheRow)
	err := b.db.NewSelect().Model(row).
		Where("namespace = ?", namespace).
		Where("cache_key = ?", key).
		Limit(1).
		Scan(ctx)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return "", ErrMiss
		}
		return "", err
	}

	if !row.ExpiresAt.IsZero() && time.Now().After(row.ExpiresAt) {
		_ = b.Delete(ctx, namespace, key)
		return "", ErrMiss
	}
	return row.Content, nil
}

// Set upserts an entry.
func (b *DatabaseBackend) Set(ctx context.Context, namespace, key, content string, ttl time.Duration) error {
	now := time.Now()
	row := &cacheRow{
		Namespace: namespace,
		CacheKey:  key,
		Content:   content,
		UpdatedAt: now,
	}
	if ttl > 0 {
		row.ExpiresAt = now.Add(ttl)
	}

	_, err := b.db.NewInsert().Model(row).
		On("CONFLICT (namespace, cache_key) DO UPDATE").
		Set("content = EXCLUDED.content").
		Set("expires_at = EXCLUDED.expires_at").
		Set("updated_at = EXCLUDED.updated_at").
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("database cache set: %w", err)
	}
	b.logger.Debug("Database cache set", "namespace", namespace, "key", key, "ttl", ttl)
	return nil
}

// Delete removes an entry.
func (b *DatabaseBackend) Delete(ctx context.Context, namespace, key string) error {
	_, err := b.db.NewDelete().Model((*cacheRow)(nil)).
		Where("namespace = ?", namespace).
		Where("cache_key = ?", key).
		Exec(ctx)
	return err
}

// Clear removes every entry of namespace.
func (b *DatabaseBackend) Clear(ctx context.Context, namespace string) error {
	_, err := b.db.NewDelete().Model((*cacheRow)(nil)).
		Where("namespace = ?", namespace).
		Exec(ctx)
	return err
}

// Close closes the database when the backend opened it.
func (b *DatabaseBackend) Close() error {
	if !b.owned {
		return nil
	}
	return b.db.Close()
}
