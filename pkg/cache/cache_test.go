package cache

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kart-io/tmplhub/pkg/config"
	tmplerrors "github.com/kart-io/tmplhub/pkg/errors"
	"github.com/kart-io/tmplhub/pkg/logger"
)

type countingRecorder struct {
	hits, misses atomic.Int64
}

func (r *countingRecorder) CacheHit(context.Context, string, string)  { r.hits.Add(1) }
func (r *countingRecorder) CacheMiss(context.Context, string, string) { r.misses.Add(1) }

func newMemoryManager(t *testing.T, opts ...ManagerOption) *Manager {
	t.Helper()
	cfg := config.CacheConfig{Dir: t.TempDir(), MemoryMaxEntries: 100}
	m := NewManager(cfg, opts...)
	t.Cleanup(func() { _ = m.Close() })
	return m
}

func TestDirective_Resolve(t *testing.T) {
	tests := []struct {
		name    string
		d       Directive
		key     string
		typ     string
		ttl     time.Duration
		wantErr bool
	}{
		{name: "defaults", d: Directive{Expire: "never"}, key: "default", typ: "dbm"},
		{name: "explicit", d: Directive{Key: "k", Type: "memory", Expire: "60"}, key: "k", typ: "memory", ttl: time.Minute},
		{name: "duration", d: Directive{Key: "k", Expire: "1h30m"}, key: "k", typ: "dbm", ttl: 90 * time.Minute},
		{name: "key only", d: Directive{Key: "k"}, key: "k", typ: "dbm"},
		{name: "garbage", d: Directive{Expire: "soon"}, wantErr: true},
		{name: "negative", d: Directive{Expire: "-5"}, wantErr: true},
		{name: "largest seconds", d: Directive{Key: "k", Expire: "9000000000"}, key: "k", typ: "dbm", ttl: 9000000000 * time.Second},
		{name: "seconds overflow", d: Directive{Expire: "10000000000"}, wantErr: true},
		{name: "seconds wrap", d: Directive{Expire: "20000000000"}, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.True(t, tt.d.Enabled())
			key, typ, ttl, err := tt.d.Resolve()
			if tt.wantErr {
				assert.ErrorIs(t, err, tmplerrors.ErrInvalidCacheExpire)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.key, key)
			assert.Equal(t, tt.typ, typ)
			assert.Equal(t, tt.ttl, ttl)
		})
	}

	assert.False(t, Directive{}.Enabled())
}

func TestCachedTemplate_NoDirective(t *testing.T) {
	calls := 0
	render := func() (string, error) {
		calls++
		return "out", nil
	}

	for i := 0; i < 2; i++ {
		out, err := CachedTemplate(context.Background(), nil, "t.html", render, nil, Directive{}, nil)
		require.NoError(t, err)
		assert.Equal(t, "out", out)
	}
	assert.Equal(t, 2, calls)
}

func TestCachedTemplate_Idempotent(t *testing.T) {
	rec := &countingRecorder{}
	m := newMemoryManager(t, WithRecorder(rec))
	calls := 0
	render := func() (string, error) {
		calls++
		return "rendered", nil
	}
	d := Directive{Key: "k", Type: "memory", Expire: "never"}

	first, err := CachedTemplate(context.Background(), m, "page", render, nil, d, nil)
	require.NoError(t, err)
	second, err := CachedTemplate(context.Background(), m, "page", render, nil, d, nil)
	require.NoError(t, err)

	assert.Equal(t, first, second)
	assert.Equal(t, 1, calls)
	assert.Equal(t, int64(1), rec.hits.Load())
	assert.Equal(t, int64(1), rec.misses.Load())
}

func TestCachedTemplate_NamespaceOptions(t *testing.T) {
	m := newMemoryManager(t)
	d := Directive{Type: "memory"}

	full, err := CachedTemplate(context.Background(), m, "page",
		func() (string, error) { return "full", nil },
		[]string{"fragment", "format"}, d, map[string]any{"fragment": false, "format": "xhtml"})
	require.NoError(t, err)
	frag, err := CachedTemplate(context.Background(), m, "page",
		func() (string, error) { return "fragment", nil },
		[]string{"fragment", "format"}, d, map[string]any{"fragment": true, "format": "xhtml"})
	require.NoError(t, err)

	assert.Equal(t, "full", full)
	assert.Equal(t, "fragment", frag)

	b, err := m.Backend("memory")
	require.NoError(t, err)
	got, err := b.Get(context.Background(), "pagetruexhtml", "default")
	require.NoError(t, err)
	assert.Equal(t, "fragment", got)

	missing, err := CachedTemplate(context.Background(), m, "other",
		func() (string, error) { return "x", nil },
		[]string{"fragment"}, d, nil)
	require.NoError(t, err)
	assert.Equal(t, "x", missing)
	_, err = b.Get(context.Background(), "other", "default")
	assert.NoError(t, err)
}

func TestCachedTemplate_Errors(t *testing.T) {
	render := func() (string, error) { return "x", nil }

	_, err := CachedTemplate(context.Background(), nil, "t", render, nil, Directive{Key: "k"}, nil)
	assert.ErrorIs(t, err, tmplerrors.ErrCacheNotConfigured)

	m := newMemoryManager(t)
	_, err = CachedTemplate(context.Background(), m, "t", render, nil, Directive{Type: "floppy"}, nil)
	assert.ErrorIs(t, err, tmplerrors.ErrInvalidCacheType)

	_, err = CachedTemplate(context.Background(), m, "t", render, nil, Directive{Expire: "later"}, nil)
	assert.ErrorIs(t, err, tmplerrors.ErrInvalidCacheExpire)
}

func TestCache_RenderErrorNotCached(t *testing.T) {
	m := newMemoryManager(t)
	boom := errors.New("template syntax error")
	calls := 0
	render := func() (string, error) {
		calls++
		if calls == 1 {
			return "", boom
		}
		return "ok", nil
	}

	c := m.GetCache("t")
	_, err := c.GetValue(context.Background(), "k", render, "memory", 0)
	assert.ErrorIs(t, err, boom)

	out, err := c.GetValue(context.Background(), "k", render, "memory", 0)
	require.NoError(t, err)
	assert.Equal(t, "ok", out)
	assert.Equal(t, 2, calls)
}

func TestCache_ConcurrentPopulation(t *testing.T) {
	m := newMemoryManager(t)
	var calls atomic.Int64
	render := func() (string, error) {
		calls.Add(1)
		time.Sleep(50 * time.Millisecond)
		return "shared", nil
	}

	const workers = 16
	var wg sync.WaitGroup
	results := make([]string, workers)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			out, err := m.GetCache("hot").GetValue(context.Background(), "k", render, "memory", 0)
			assert.NoError(t, err)
			results[i] = out
		}(i)
	}
	wg.Wait()

	for _, r := range results {
		assert.Equal(t, "shared", r)
	}
	assert.GreaterOrEqual(t, calls.Load(), int64(1))
	assert.Less(t, calls.Load(), int64(workers))
}

func TestCache_StoresAfterCallerCancel(t *testing.T) {
	m := newMemoryManager(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	render := func() (string, error) {
		cancel()
		return "rendered", nil
	}
	out, err := m.GetCache("ns").GetValue(ctx, "k", render, "dbm", 0)
	require.NoError(t, err)
	assert.Equal(t, "rendered", out)

	b, err := m.Backend("dbm")
	require.NoError(t, err)
	got, err := b.Get(context.Background(), "ns", "k")
	require.NoError(t, err)
	assert.Equal(t, "rendered", got)
}

func TestCache_RemoveAndClear(t *testing.T) {
	m := newMemoryManager(t)
	ctx := context.Background()
	c := m.GetCache("ns")
	assert.Equal(t, "ns", c.Namespace())

	_, err := c.GetValue(ctx, "a", func() (string, error) { return "1", nil }, "memory", 0)
	require.NoError(t, err)
	_, err = c.GetValue(ctx, "b", func() (string, error) { return "2", nil }, "memory", 0)
	require.NoError(t, err)

	require.NoError(t, c.Remove(ctx, "a", "memory"))
	b, _ := m.Backend("memory")
	_, err = b.Get(ctx, "ns", "a")
	assert.ErrorIs(t, err, ErrMiss)

	require.NoError(t, c.Clear(ctx, "memory"))
	_, err = b.Get(ctx, "ns", "b")
	assert.ErrorIs(t, err, ErrMiss)
}

func TestManager_Aliases(t *testing.T) {
	shared := NewMemoryBackend(MemoryConfig{}, nil)
	m := NewManager(config.CacheConfig{}, WithBackend("redis", shared))
	defer m.Close()

	for _, typ := range []string{"memcached", "ext:memcached", "redis", "ext:redis"} {
		b, err := m.Backend(typ)
		require.NoError(t, err, typ)
		assert.Same(t, shared, b, typ)
	}
}

func TestManager_NotConfigured(t *testing.T) {
	m := NewManager(config.CacheConfig{})
	defer m.Close()

	for _, typ := range []string{"redis", "database", "file", "dbm"} {
		_, err := m.Backend(typ)
		assert.ErrorIs(t, err, tmplerrors.ErrCacheNotConfigured, typ)
	}
}

func TestManager_Closed(t *testing.T) {
	m := NewManager(config.CacheConfig{})
	_, err := m.Backend("memory")
	require.NoError(t, err)
	require.NoError(t, m.Close())
	require.NoError(t, m.Close())

	_, err = m.Backend("memory")
	assert.ErrorIs(t, err, tmplerrors.ErrCacheNotConfigured)
}

func TestManager_Multilayer(t *testing.T) {
	dir := t.TempDir()
	m := NewManager(config.CacheConfig{Dir: dir, Layers: []string{"memory", "file"}})
	defer m.Close()
	ctx := context.Background()

	ml, err := m.Backend("multilayer")
	require.NoError(t, err)
	require.NoError(t, ml.Set(ctx, "ns", "k", "v", 0))

	mem, err := m.Backend("memory")
	require.NoError(t, err)
	require.NoError(t, mem.Delete(ctx, "ns", "k"))

	got, err := ml.Get(ctx, "ns", "k")
	require.NoError(t, err)
	assert.Equal(t, "v", got)

	got, err = mem.Get(ctx, "ns", "k")
	require.NoError(t, err, "hit in file layer should populate memory")
	assert.Equal(t, "v", got)
}

func TestManager_CustomOpener(t *testing.T) {
	opened := 0
	m := NewManager(config.CacheConfig{}, WithOpener("database", func(config.CacheConfig, logger.Logger) (Backend, error) {
		opened++
		return NewMemoryBackend(MemoryConfig{}, nil), nil
	}))
	defer m.Close()

	_, err := m.Backend("database")
	require.NoError(t, err)
	_, err = m.Backend("database")
	require.NoError(t, err)
	assert.Equal(t, 1, opened)
}

func TestManager_DefaultDBMPath(t *testing.T) {
	dir := t.TempDir()
	m := NewManager(config.CacheConfig{Dir: dir})
	defer m.Close()

	b, err := m.Backend("dbm")
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "cache.dbm"), b.(*DBMBackend).path)
}

func TestCachedTemplate_ManagerDefaultType(t *testing.T) {
	mem := NewMemoryBackend(MemoryConfig{}, nil)
	m := NewManager(config.CacheConfig{DefaultType: "memory"}, WithBackend("memory", mem))
	defer m.Close()
	assert.Equal(t, "memory", m.DefaultType())
	assert.Equal(t, DefaultType, NewManager(config.CacheConfig{}).DefaultType())

	render := func() (string, error) { return "body", nil }
	_, err := CachedTemplate(context.Background(), m, "t.html", render, nil, Directive{Key: "k"}, nil)
	require.NoError(t, err)

	got, err := mem.Get(context.Background(), "t.html", "k")
	require.NoError(t, err)
	assert.Equal(t, "body", got)
}
