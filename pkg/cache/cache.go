// Package cache provides the render cache used by the template facade.
//
// Rendered output is stored under a namespace (usually the template
// identifier plus variant suffixes) and a key. Each directive names the
// backend type to use, and the Manager opens backends lazily on first use.
package cache

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	tmplerrors "github.com/kart-io/tmplhub/pkg/errors"
)

// Defaults applied by Directive.Resolve.
const (
	DefaultType = "dbm"
	DefaultKey  = "default"
	NeverExpire = "never"
)

// maxExpireSeconds is the largest whole-second expire a time.Duration holds.
const maxExpireSeconds = math.MaxInt64 / int64(time.Second)

// ErrMiss is returned by backends when a key is absent or expired.
var ErrMiss = errors.New("cache miss")

// Backend stores rendered content by namespace and key. A ttl of zero means
// the entry never expires.
type Backend interface {
	Get(ctx context.Context, namespace, key string) (string, error)
	Set(ctx context.Context, namespace, key, content string, ttl time.Duration) error
	Delete(ctx context.Context, namespace, key string) error
	Clear(ctx context.Context, namespace string) error
	Close() error
}

// Directive is the optional cache request attached to a render call.
type Directive struct {
	Key    string
	Type   string
	Expire string
}

// Enabled reports whether the directive asks for caching at all.
func (d Directive) Enabled() bool {
	return d.Key != "" || d.Type != "" || d.Expire != ""
}

// Resolve applies defaults and parses the expiry. Expire accepts "never",
// integer seconds, or a Go duration string.
func (d Directive) Resolve() (key, typ string, ttl time.Duration, err error) {
	key, typ = d.Key, d.Type
	if typ == "" {
		typ = DefaultType
	}
	if key == "" {
		key = DefaultKey
	}
	ttl, err = ParseExpire(d.Expire)
	return key, typ, ttl, err
}

// ParseExpire converts an expiry into a ttl. Empty and "never" mean no expiry.
func ParseExpire(expire string) (time.Duration, error) {
	expire = strings.TrimSpace(expire)
	if expire == "" || expire == NeverExpire {
		return 0, nil
	}

	var ttl time.Duration
	if secs, err := strconv.ParseInt(expire, 10, 64); err == nil {
		if secs > maxExpireSeconds {
			return 0, tmplerrors.Newf(tmplerrors.CodeInvalidCacheExpire, "expire %q exceeds %d seconds", expire, maxExpireSeconds)
		}
		ttl = time.Duration(secs) * time.Second
	} else {
		d, perr := time.ParseDuration(expire)
		if perr != nil {
			return 0, tmplerrors.Wrap(tmplerrors.CodeInvalidCacheExpire, fmt.Sprintf("cannot parse %q", expire), perr)
		}
		ttl = d
	}
	if ttl <= 0 {
		return 0, tmplerrors.Newf(tmplerrors.CodeInvalidCacheExpire, "expire must be positive, got %q", expire)
	}
	return ttl, nil
}

// RenderFunc produces the content to cache on a miss.
type RenderFunc func() (string, error)

// CachedTemplate renders through the cache when the directive is enabled and
// calls render directly otherwise. The cache namespace is name followed by
// the value found in extra for each entry of nsOptions.
func CachedTemplate(ctx context.Context, mgr *Manager, name string, render RenderFunc, nsOptions []string, d Directive, extra map[string]any) (string, error) {
	if !d.Enabled() {
		return render()
	}
	if mgr == nil {
		return "", tmplerrors.New(tmplerrors.CodeCacheNotConfigured, "cache directive given but no cache manager configured").
			WithTemplate(name)
	}

	key, typ, ttl, err := d.Resolve()
	if err != nil {
		return "", err
	}
	if d.Type == "" {
		typ = mgr.DefaultType()
	}

	namespace := name
	for _, opt := range nsOptions {
		namespace += nsValue(extra[opt])
	}
	return mgr.GetCache(namespace).GetValue(ctx, key, render, typ, ttl)
}

func nsValue(v any) string {
	if v == nil {
		return ""
	}
	return fmt.Sprint(v)
}

// Cache is a view of the manager's backends scoped to one namespace.
type Cache struct {
	namespace string
	manager   *Manager
}

// Namespace returns the namespace this cache reads and writes.
func (c *Cache) Namespace() string {
	return c.namespace
}

// GetValue returns the stored value for key, or calls create and stores its
// result. Concurrent misses for the same entry share one create call.
func (c *Cache) GetValue(ctx context.Context, key string, create RenderFunc, typ string, ttl time.Duration) (string, error) {
	m := c.manager
	backend, err := m.Backend(typ)
	if err != nil {
		return "", err
	}

	content, err := backend.Get(ctx, c.namespace, key)
	if err == nil {
		m.recorder.CacheHit(ctx, c.namespace, typ)
		return content, nil
	}
	if !errors.Is(err, ErrMiss) {
		m.logger.Warn("Cache read failed, rendering", "namespace", c.namespace, "key", key, "type", typ, "error", err)
	}
	m.recorder.CacheMiss(ctx, c.namespace, typ)

	// Waiters share the stored entry; the write ignores caller cancellation.
	setCtx := context.WithoutCancel(ctx)
	flightKey := typ + "\x00" + c.namespace + "\x00" + key
	v, err, shared := m.group.Do(flightKey, func() (any, error) {
		content, err := create()
		if err != nil {
			return "", err
		}
		if err := backend.Set(setCtx, c.namespace, key, content, ttl); err != nil {
			m.logger.Warn("Cache write failed", "namespace", c.namespace, "key", key, "type", typ, "error", err)
		}
		return content, nil
	})
	if err != nil {
		return "", err
	}
	if shared {
		m.logger.Debug("Cache population shared", "namespace", c.namespace, "key", key)
	}
	return v.(string), nil
}

// Remove deletes key from the typ backend.
func (c *Cache) Remove(ctx context.Context, key, typ string) error {
	backend, err := c.manager.Backend(typ)
	if err != nil {
		return err
	}
	return backend.Delete(ctx, c.namespace, key)
}

// Clear deletes every key of this namespace from the typ backend.
func (c *Cache) Clear(ctx context.Context, typ string) error {
	backend, err := c.manager.Backend(typ)
	if err != nil {
		return err
	}
	return backend.Clear(ctx, c.namespace)
}
