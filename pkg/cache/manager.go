package cache

import (
	"context"
	"path/filepath"
	"sync"

	"golang.org/x/sync/singleflight"

	"github.com/kart-io/tmplhub/pkg/config"
	tmplerrors "github.com/kart-io/tmplhub/pkg/errors"
	"github.com/kart-io/tmplhub/pkg/logger"
)

// Recorder receives cache hit and miss events.
type Recorder interface {
	CacheHit(ctx context.Context, namespace, backend string)
	CacheMiss(ctx context.Context, namespace, backend string)
}

type nopRecorder struct{}

func (nopRecorder) CacheHit(context.Context, string, string)  {}
func (nopRecorder) CacheMiss(context.Context, string, string) {}

// Opener creates a backend from the cache configuration.
type Opener func(cfg config.CacheConfig, log logger.Logger) (Backend, error)

// Manager hands out namespaced caches and owns the backends behind them.
type Manager struct {
	cfg      config.CacheConfig
	logger   logger.Logger
	recorder Recorder

	mu       sync.Mutex
	backends map[string]Backend
	openers  map[string]Opener
	closed   bool

	group singleflight.Group
}

// ManagerOption configures a Manager.
type ManagerOption func(*Manager)

// WithLogger sets the manager's logger.
func WithLogger(l logger.Logger) ManagerOption {
	return func(m *Manager) {
		m.logger = logger.OrDiscard(l)
	}
}

// WithRecorder reports hits and misses to r.
func WithRecorder(r Recorder) ManagerOption {
	return func(m *Manager) {
		if r != nil {
			m.recorder = r
		}
	}
}

// WithBackend installs an already opened backend for typ.
func WithBackend(typ string, b Backend) ManagerOption {
	return func(m *Manager) {
		m.backends[canonicalType(typ)] = b
	}
}

// WithOpener overrides how the backend for typ is opened.
func WithOpener(typ string, open Opener) ManagerOption {
	return func(m *Manager) {
		m.openers[canonicalType(typ)] = open
	}
}

// NewManager creates a cache manager. Backends open on first use.
func NewManager(cfg config.CacheConfig, opts ...ManagerOption) *Manager {
	m := &Manager{
		cfg:      cfg,
		logger:   logger.Discard,
		recorder: nopRecorder{},
		backends: make(map[string]Backend),
		openers: map[string]Opener{
			"memory":     openMemory,
			"file":       openFile,
			"dbm":        openDBM,
			"database":   openDatabase,
			"redis":      openRedis,
			"multilayer": nil,
		},
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// DefaultType is the backend used when a directive names none.
func (m *Manager) DefaultType() string {
	if m.cfg.DefaultType != "" {
		return m.cfg.DefaultType
	}
	return DefaultType
}

// GetCache returns the cache for namespace.
func (m *Manager) GetCache(namespace string) *Cache {
	return &Cache{namespace: namespace, manager: m}
}

// Backend returns the backend for typ, opening it if needed.
func (m *Manager) Backend(typ string) (Backend, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return nil, tmplerrors.New(tmplerrors.CodeCacheNotConfigured, "cache manager closed")
	}
	return m.backendLocked(canonicalType(typ))
}

func (m *Manager) backendLocked(typ string) (Backend, error) {
	if b, ok := m.backends[typ]; ok {
		return b, nil
	}

	open, known := m.openers[typ]
	if !known {
		return nil, tmplerrors.Newf(tmplerrors.CodeInvalidCacheType, "unknown cache type %q", typ)
	}

	var (
		b   Backend
		err error
	)
	if typ == "multilayer" && open == nil {
		b, err = m.openMultiLayerLocked()
	} else {
		b, err = open(m.cfg, m.logger)
	}
	if err != nil {
		return nil, err
	}

	m.backends[typ] = b
	m.logger.Debug("Cache backend opened", "type", typ)
	return b, nil
}

func (m *Manager) openMultiLayerLocked() (Backend, error) {
	names := m.cfg.Layers
	if len(names) == 0 {
		names = []string{"memory", "dbm"}
	}
	layers := make([]Backend, 0, len(names))
	for _, name := range names {
		name = canonicalType(name)
		if name == "multilayer" {
			return nil, tmplerrors.New(tmplerrors.CodeInvalidCacheType, "multilayer cache cannot contain itself")
		}
		b, err := m.backendLocked(name)
		if err != nil {
			return nil, err
		}
		layers = append(layers, b)
	}
	return &MultiLayerBackend{layers: layers, names: names, logger: m.logger, shared: true}, nil
}

// Close closes every opened backend.
func (m *Manager) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return nil
	}
	m.closed = true

	var errs tmplerrors.MultiError
	for typ, b := range m.backends {
		if err := b.Close(); err != nil {
			errs.Add(err)
			m.logger.Error("Failed to close cache backend", "type", typ, "error", err)
		}
	}
	m.backends = make(map[string]Backend)
	return errs.ErrorOrNil()
}

// canonicalType folds the distributed-memory aliases into "redis".
func canonicalType(typ string) string {
	switch typ {
	case "memcached", "ext:memcached", "ext:redis":
		return "redis"
	}
	return typ
}

func openMemory(cfg config.CacheConfig, log logger.Logger) (Backend, error) {
	return NewMemoryBackend(MemoryConfig{
		MaxEntries:      cfg.MemoryMaxEntries,
		CleanupInterval: cfg.CleanupInterval,
	}, log), nil
}

func openFile(cfg config.CacheConfig, log logger.Logger) (Backend, error) {
	if cfg.Dir == "" {
		return nil, tmplerrors.New(tmplerrors.CodeCacheNotConfigured, "file cache needs a directory")
	}
	return NewFileBackend(filepath.Join(cfg.Dir, "file"), log)
}

func openDBM(cfg config.CacheConfig, log logger.Logger) (Backend, error) {
	path := cfg.DBMPath
	if path == "" {
		if cfg.Dir == "" {
			return nil, tmplerrors.New(tmplerrors.CodeCacheNotConfigured, "dbm cache needs a path or directory")
		}
		path = filepath.Join(cfg.Dir, "cache.dbm")
	}
	return NewDBMBackend(path, log)
}

func openDatabase(cfg config.CacheConfig, log logger.Logger) (Backend, error) {
	if cfg.DatabaseDSN == "" {
		return nil, tmplerrors.New(tmplerrors.CodeCacheNotConfigured, "database cache needs a DSN")
	}
	return NewDatabaseBackend(context.Background(), cfg.DatabaseDSN, log)
}

func openRedis(cfg config.CacheConfig, log logger.Logger) (Backend, error) {
	if cfg.RedisAddr == "" {
		return nil, tmplerrors.New(tmplerrors.CodeCacheNotConfigured, "redis cache needs an address")
	}
	return NewRedisBackend(RedisConfig{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
		Prefix:   cfg.RedisPrefix,
	}, log)
}
