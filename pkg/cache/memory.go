package cache

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/kart-io/tmplhub/pkg/logger"
)

// MemoryConfig configures the in-process backend.
type MemoryConfig struct {
	MaxEntries      int
	CleanupInterval time.Duration
}

// MemoryBackend implements Backend using in-memory storage
type MemoryBackend struct {
	config    MemoryConfig
	logger    logger.Logger
	entries   map[string]*memoryEntry
	mutex     sync.RWMutex
	stopCh    chan struct{}
	stopOnce  sync.Once
	cleanupWG sync.WaitGroup
}

type memoryEntry struct {
	Content   string
	ExpiresAt time.Time
	CreatedAt time.Time
	HitCount  int64
}

func (e *memoryEntry) expired(now time.Time) bool {
	return !e.ExpiresAt.IsZero() && now.After(e.ExpiresAt)
}

// NewMemoryBackend creates a new in-memory backend
func NewMemoryBackend(config MemoryConfig, log logger.Logger) *MemoryBackend {
	if config.MaxEntries <= 0 {
		config.MaxEntries = 1000
	}
	if config.CleanupInterval <= 0 {
		config.CleanupInterval = time.Minute
	}
	b := &MemoryBackend{
		config:  config,
		logger:  logger.OrDiscard(log),
		entries: make(map[string]*memoryEntry),
		stopCh:  make(chan struct{}),
	}

	b.startCleanup()

	b.logger.Debug("Memory cache initialized", "max_entries", config.MaxEntries)

	return b
}

func memoryKey(namespace, key string) string {
	return namespace + "\x00" + key
}

// Get retrieves cached content
func (b *MemoryBackend) Get(ctx context.Context, namespace, key string) (string, error) {
	b.mutex.Lock()
	defer b.mutex.Unlock()

	entry, exists := b.entries[memoryKey(namespace, key)]
	if !exists || entry.expired(time.Now()) {
		return "", ErrMiss
	}

	entry.HitCount++
	b.logger.Debug("Cache hit", "namespace", namespace, "key", key, "hit_count", entry.HitCount)

	return entry.Content, nil
}

// Set stores content with ttl
func (b *MemoryBackend) Set(ctx context.Context, namespace, key, content string, ttl time.Duration) error {
	b.mutex.Lock()
	defer b.mutex.Unlock()

	k := memoryKey(namespace, key)
	if _, exists := b.entries[k]; !exists && len(b.entries) >= b.config.MaxEntries {
		b.evictOldest()
	}

	now := time.Now()
	entry := &memoryEntry{
		Content:   content,
		CreatedAt: now,
	}
	if ttl > 0 {
		entry.ExpiresAt = now.Add(ttl)
	}
	b.entries[k] = entry

	b.logger.Debug("Cache set", "namespace", namespace, "key", key, "ttl", ttl, "size", len(content))

	return nil
}

// Delete removes cached content. Missing keys are not an error.
func (b *MemoryBackend) Delete(ctx context.Context, namespace, key string) error {
	b.mutex.Lock()
	defer b.mutex.Unlock()

	delete(b.entries, memoryKey(namespace, key))
	return nil
}

// Clear removes every entry of namespace
func (b *MemoryBackend) Clear(ctx context.Context, namespace string) error {
	b.mutex.Lock()
	defer b.mutex.Unlock()

	prefix := namespace + "\x00"
	for k := range b.entries {
		if strings.HasPrefix(k, prefix) {
			delete(b.entries, k)
		}
	}

	b.logger.Debug("Cache cleared", "namespace", namespace)

	return nil
}

// Len returns the number of stored entries, expired or not.
func (b *MemoryBackend) Len() int {
	b.mutex.RLock()
	defer b.mutex.RUnlock()
	return len(b.entries)
}

// Close stops the cleanup goroutine and drops all entries
func (b *MemoryBackend) Close() error {
	b.stopOnce.Do(func() {
		close(b.stopCh)
	})
	b.cleanupWG.Wait()

	b.mutex.Lock()
	b.entries = make(map[string]*memoryEntry)
	b.mutex.Unlock()

	b.logger.Debug("Memory cache closed")

	return nil
}

// evictOldest removes the oldest cache entry
func (b *MemoryBackend) evictOldest() {
	var oldestKey string
	var oldestTime time.Time

	for key, entry := range b.entries {
		if oldestKey == "" || entry.CreatedAt.Before(oldestTime) {
			oldestKey = key
			oldestTime = entry.CreatedAt
		}
	}

	if oldestKey != "" {
		delete(b.entries, oldestKey)
		b.logger.Debug("Cache eviction", "key", oldestKey, "created_at", oldestTime)
	}
}

func (b *MemoryBackend) startCleanup() {
	b.cleanupWG.Add(1)

	go func() {
		defer b.cleanupWG.Done()

		ticker := time.NewTicker(b.config.CleanupInterval)
		defer ticker.Stop()

		for {
			select {
			case <-ticker.C:
				b.cleanupExpired()
			case <-b.stopCh:
				return
			}
		}
	}()
}

func (b *MemoryBackend) cleanupExpired() {
	b.mutex.Lock()
	defer b.mutex.Unlock()

	now := time.Now()
	expired := 0
	for key, entry := range b.entries {
		if entry.expired(now) {
			delete(b.entries, key)
			expired++
		}
	}

	if expired > 0 {
		b.logger.Debug("Cache cleanup", "expired_entries", expired)
	}
}
