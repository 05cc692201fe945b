package cache

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"time"

	"github.com/kart-io/tmplhub/pkg/logger"
)

const dbmSchema = `CREATE TABLE IF NOT EXISTS cache (
	namespace  TEXT NOT NULL,
	key        TEXT NOT NULL,
	content    TEXT NOT NULL,
	expires_at INTEGER NOT NULL DEFAULT 0,
	PRIMARY KEY (namespace, key)
)`

// DBMBackend keeps every namespace in a single SQLite key/value file.
type DBMBackend struct {
	db     *sql.DB
	path   string
	logger logger.Logger
}

// NewDBMBackend opens or creates the file at path.
func NewDBMBackend(path string, log logger.Logger) (*DBMBackend, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create dbm dir: %w", err)
	}
	db, err := openSQLite(path)
	if err != nil {
		return nil, fmt.Errorf("open dbm %s: %w", path, err)
	}
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(dbmSchema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("init dbm %s: %w", path, err)
	}

	l := logger.OrDiscard(log)
	l.Debug("DBM cache initialized", "path", path)
	return &DBMBackend{db: db, path: path, logger: l}, nil
}

// Get reads an entry, dropping it when expired.
func (b *DBMBackend) Get(ctx context.Context, namespace, key string) (string, error) {
	var (
		content   string
		expiresAt int64
	)
	err := b.db.QueryRowContext(ctx,
		`SELECT content, expires_at FROM cache WHERE namespace = ? AND key = ?`,
		namespace, key,
	).Scan(&content, &expiresAt)
	if errors.Is(err, sql.ErrNoRows) {
		return "", ErrMiss
	}
	if err != nil {
		return "", err
	}

	if expiresAt != 0 && time.Now().UnixNano() > expiresAt {
		_ = b.Delete(ctx, namespace, key)
		return "", ErrMiss
	}
	return content, nil
}

// Set upserts an entry.
func (b *DBMBackend) Set(ctx context.Context, namespace, key, content string, ttl time.Duration) error {
	_, err := b.db.ExecContext(ctx,
		`INSERT INTO cache (namespace, key, content, expires_at) VALUES (?, ?, ?, ?)
		 ON CONFLICT (namespace, key) DO UPDATE SET content = excluded.content, expires_at = excluded.expires_at`,
		namespace, key, content, expiresAtNano(time.Now(), ttl),
	)
	if err != nil {
		return fmt.Errorf("dbm set: %w", err)
	}
	b.logger.Debug("DBM cache set", "namespace", namespace, "key", key, "ttl", ttl)
	return nil
}

// latestNano is the last instant UnixNano can represent.
var latestNano = time.Unix(0, math.MaxInt64)

// expiresAtNano returns the stored expiry for ttl, 0 meaning never. Deadlines
// past latestNano are stored as never.
func expiresAtNano(now time.Time, ttl time.Duration) int64 {
	if ttl <= 0 {
		return 0
	}
	deadline := now.Add(ttl)
	if deadline.After(latestNano) {
		return 0
	}
	return deadline.UnixNano()
}

// Delete removes an entry.
func (b *DBMBackend) Delete(ctx context.Context, namespace, key string) error {
	_, err := b.db.ExecContext(ctx, `DELETE FROM cache WHERE namespace = ? AND key = ?`, namespace, key)
	return err
}

// Clear removes every entry of namespace.
func (b *DBMBackend) Clear(ctx context.Context, namespace string) error {
	_, err := b.db.ExecContext(ctx, `DELETE FROM cache WHERE namespace = ?`, namespace)
	return err
}

// Close closes the database file.
func (b *DBMBackend) Close() error {
	return b.db.Close()
}
