package cache

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"github.com/natefinch/atomic"

	"github.com/kart-io/tmplhub/pkg/logger"
)

// FileBackend stores one file per entry under a directory per namespace.
// Files are replaced atomically so readers never see partial content.
type FileBackend struct {
	dir    string
	logger logger.Logger
}

type fileEntry struct {
	Content   string    `json:"content"`
	ExpiresAt time.Time `json:"expires_at,omitempty"`
}

// NewFileBackend creates the backend rooted at dir.
func NewFileBackend(dir string, log logger.Logger) (*FileBackend, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create cache dir: %w", err)
	}
	return &FileBackend{dir: dir, logger: logger.OrDiscard(log)}, nil
}

func hashName(s string) string {
	sum := sha256.Sum256([]byte(s))
	return hex.EncodeToString(sum[:16])
}

func (b *FileBackend) namespaceDir(namespace string) string {
	return filepath.Join(b.dir, hashName(namespace))
}

func (b *FileBackend) path(namespace, key string) string {
	return filepath.Join(b.namespaceDir(namespace), hashName(key)+".cache")
}

// Get reads an entry. Expired files are removed.
func (b *FileBackend) Get(ctx context.Context, namespace, key string) (string, error) {
	p := b.path(namespace, key)
	data, err := os.ReadFile(p)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return "", ErrMiss
		}
		return "", err
	}

	var entry fileEntry
	if err := json.Unmarshal(data, &entry); err != nil {
		b.logger.Warn("Discarding corrupt cache file", "path", p, "error", err)
		_ = os.Remove(p)
		return "", ErrMiss
	}
	if !entry.ExpiresAt.IsZero() && time.Now().After(entry.ExpiresAt) {
		_ = os.Remove(p)
		return "", ErrMiss
	}
	return entry.Content, nil
}

// Set writes an entry atomically.
func (b *FileBackend) Set(ctx context.Context, namespace, key, content string, ttl time.Duration) error {
	entry := fileEntry{Content: content}
	if ttl > 0 {
		entry.ExpiresAt = time.Now().Add(ttl)
	}
	data, err := json.Marshal(entry)
	if err != nil {
		return err
	}

	if err := os.MkdirAll(b.namespaceDir(namespace), 0o755); err != nil {
		return err
	}
	if err := atomic.WriteFile(b.path(namespace, key), bytes.NewReader(data)); err != nil {
		return fmt.Errorf("write cache file: %w", err)
	}

	b.logger.Debug("File cache set", "namespace", namespace, "key", key, "ttl", ttl)
	return nil
}

// Delete removes an entry.
func (b *FileBackend) Delete(ctx context.Context, namespace, key string) error {
	err := os.Remove(b.path(namespace, key))
	if err != nil && !errors.Is(err, fs.ErrNotExist) {
		return err
	}
	return nil
}

// Clear removes the namespace directory.
func (b *FileBackend) Clear(ctx context.Context, namespace string) error {
	return os.RemoveAll(b.namespaceDir(namespace))
}

// Close is a no-op.
func (b *FileBackend) Close() error {
	return nil
}
