// Package buffet is the engine-neutral rendering facade. Engines are
// prepared once under a name (or alias) with a template root and options,
// then any prepared engine renders templates against the request's context
// snapshot, optionally through the render cache.
package buffet

import (
	"context"
	"maps"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/kart-io/tmplhub/pkg/cache"
	"github.com/kart-io/tmplhub/pkg/engine"
	tmplerrors "github.com/kart-io/tmplhub/pkg/errors"
	"github.com/kart-io/tmplhub/pkg/logger"
	"github.com/kart-io/tmplhub/pkg/telemetry"
	"github.com/kart-io/tmplhub/pkg/tmplctx"
)

// Option names the facade itself inspects.
const (
	OptFragment = "fragment"
	OptFormat   = "format"
)

// reservedLegacyKeys move from the namespace to the render options for
// GlobalScoped engines.
var reservedLegacyKeys = []string{"output_encoding", "encoding_errors", "disable_unicode"}

type prepared struct {
	name   string
	root   string
	engine engine.Engine
}

type defaultEngine struct {
	name    string
	root    string
	options engine.Options
}

// Buffet renders templates through prepared engines.
type Buffet struct {
	mu      sync.RWMutex
	engines map[string]*prepared

	registry      *engine.Registry
	defaultEngine string
	pending       *defaultEngine
	cache         *cache.Manager
	logger        logger.Logger
	telemetry     *telemetry.Provider
}

var _ tmplctx.Renderer = (*Buffet)(nil)

// Option configures a Buffet.
type Option func(*Buffet)

// WithDefaultEngine prepares name at construction and uses it whenever a
// render call names no engine.
func WithDefaultEngine(name, root string, options engine.Options) Option {
	return func(b *Buffet) {
		b.defaultEngine = name
		b.pending = &defaultEngine{name: name, root: root, options: options}
	}
}

// WithCacheManager enables cache directives.
func WithCacheManager(m *cache.Manager) Option {
	return func(b *Buffet) {
		b.cache = m
	}
}

// WithLogger sets the logger.
func WithLogger(l logger.Logger) Option {
	return func(b *Buffet) {
		b.logger = logger.OrDiscard(l)
	}
}

// WithTelemetry traces and counts renders.
func WithTelemetry(p *telemetry.Provider) Option {
	return func(b *Buffet) {
		if p != nil {
			b.telemetry = p
		}
	}
}

// New creates a Buffet over the engines in registry.
func New(registry *engine.Registry, opts ...Option) (*Buffet, error) {
	b := &Buffet{
		engines:   make(map[string]*prepared),
		registry:  registry,
		logger:    logger.Discard,
		telemetry: telemetry.Noop(),
	}
	for _, opt := range opts {
		opt(b)
	}
	b.logger.Debug("Initialized Buffet object")

	if d := b.pending; d != nil && d.name != "" {
		b.pending = nil
		if err := b.Prepare(d.name, WithRoot(d.root), WithOptions(d.options)); err != nil {
			return nil, err
		}
	}
	return b, nil
}

// DefaultEngine returns the engine used when a render call names none.
func (b *Buffet) DefaultEngine() string {
	return b.defaultEngine
}

// Prepare instantiates the engine registered as name and stores it under
// its alias (or name). Preparing the same alias again replaces the entry.
func (b *Buffet) Prepare(name string, opts ...PrepareOption) error {
	factory, ok := b.registry.Lookup(name)
	if !ok {
		return tmplerrors.Newf(tmplerrors.CodeEngineMissing, "Please install a plugin for %q to use its functionality", name).
			WithEngine(name)
	}

	var p prepareConfig
	for _, opt := range opts {
		opt(&p)
	}
	key := name
	if p.alias != "" {
		key = p.alias
	}

	options := maps.Clone(p.options)
	if options == nil {
		options = engine.Options{}
	}
	extraVars := p.extraVars
	if v, ok := options[key+engine.ExtraVarsSuffix]; ok {
		delete(options, key+engine.ExtraVarsSuffix)
		if fn, ok := v.(func() map[string]any); ok && extraVars == nil {
			extraVars = fn
		}
	}

	eng, err := factory(engine.Config{Root: p.root, Options: options, ExtraVars: extraVars})
	if err != nil {
		return tmplerrors.Wrap(tmplerrors.CodePluginLoadFailed, "prepare engine", err).WithEngine(key)
	}

	b.mu.Lock()
	b.engines[key] = &prepared{name: name, root: p.root, engine: eng}
	b.mu.Unlock()

	b.logger.Debug("Adding template language for use with Buffet", "engine", key, "plugin", name, "root", p.root)
	return nil
}

// Render renders template with the options given. It is the entry point for
// Go callers; RenderRequest serves the render helpers.
func (b *Buffet) Render(ctx context.Context, state *tmplctx.State, template string, opts ...RenderOption) (string, error) {
	req := tmplctx.Request{Template: template, Options: map[string]any{}}
	for _, opt := range opts {
		opt(&req)
	}
	return b.RenderRequest(ctx, state, req)
}

// RenderRequest implements tmplctx.Renderer.
func (b *Buffet) RenderRequest(ctx context.Context, state *tmplctx.State, req tmplctx.Request) (out string, err error) {
	name := req.Engine
	if name == "" {
		name = b.defaultEngine
	}

	b.mu.RLock()
	p, ok := b.engines[name]
	b.mu.RUnlock()
	if !ok {
		return "", tmplerrors.Newf(tmplerrors.CodeEngineNotConfigured, "No engine with that name configured: %s", name).
			WithEngine(name).
			WithTemplate(req.Template)
	}

	ctx, span := b.telemetry.TraceRender(ctx, name, req.Template)
	start := time.Now()
	defer func() {
		b.telemetry.RecordRender(ctx, name, time.Since(start), err)
		if err != nil {
			b.telemetry.SetSpanError(span, err)
		} else {
			b.telemetry.SetSpanSuccess(span)
		}
		span.End()
	}()

	options := engine.Options(maps.Clone(req.Options))
	if options == nil {
		options = engine.Options{}
	}

	fullPath := req.Template
	var namespace map[string]any

	if scoped, ok := p.engine.(engine.GlobalScoped); ok {
		namespace, err = legacyNamespace(state, req, options, scoped.GlobalNames())
		if err != nil {
			return "", err
		}
	} else {
		namespace, err = mergedNamespace(state, req)
		if err != nil {
			return "", err
		}
		if engine.NamingOf(p.engine) == engine.NamingDotted {
			fullPath = dottedPath(p.root, req.Template)
		}
	}

	if v, ok := options[OptFormat]; ok && (v == nil || v == "") {
		delete(options, OptFormat)
	}

	render := func() (string, error) {
		b.logger.Debug("Rendering template", "template", fullPath, "engine", name)
		return p.engine.Render(ctx, namespace, fullPath, options)
	}

	directive := cache.Directive{Key: req.CacheKey, Type: req.CacheType, Expire: req.CacheExpire}
	if !directive.Enabled() {
		return render()
	}

	tfile := fullPath
	if options.Bool(OptFragment) {
		tfile += "_frag"
	}
	if format := options.String(OptFormat); format != "" {
		tfile += format
	}
	b.logger.Debug("Using render cache", "template", fullPath, "namespace", tfile)
	return cache.CachedTemplate(ctx, b.cache, tfile, render, nil, directive, nil)
}

// mergedNamespace is the namespace for ordinary engines: the snapshot alone,
// or the snapshot overlaid with explicit entries.
func mergedNamespace(state *tmplctx.State, req tmplctx.Request) (map[string]any, error) {
	if req.Namespace == nil {
		if req.ExcludeContext {
			return nil, tmplerrors.New(tmplerrors.CodeNamespaceRequired,
				"You must specify namespace when context is excluded").WithTemplate(req.Template)
		}
		return tmplctx.Snapshot(state)
	}
	if req.ExcludeContext {
		return maps.Clone(req.Namespace), nil
	}
	ns, err := tmplctx.Snapshot(state)
	if err != nil {
		return nil, err
	}
	maps.Copy(ns, req.Namespace)
	return ns, nil
}

// legacyNamespace builds the namespace for GlobalScoped engines. Reserved
// keys become options and names declared global move under GlobalArgsKey.
func legacyNamespace(state *tmplctx.State, req tmplctx.Request, options engine.Options, globalNames []string) (map[string]any, error) {
	ns := maps.Clone(req.Namespace)
	if ns == nil {
		ns = make(map[string]any)
	}
	for _, key := range reservedLegacyKeys {
		if v, ok := ns[key]; ok {
			options[key] = v
			delete(ns, key)
		}
	}

	globals := map[string]any{}
	if !req.ExcludeContext {
		snap, err := tmplctx.Snapshot(state)
		if err != nil {
			return nil, err
		}
		globals = snap
	}
	for _, key := range globalNames {
		if v, ok := ns[key]; ok {
			globals[key] = v
			delete(ns, key)
		}
	}
	ns[engine.GlobalArgsKey] = globals
	return ns, nil
}

// dottedPath joins root and name and folds separators into dots. Absolute
// names and engines without a root keep the name unchanged.
func dottedPath(root, name string) string {
	if root == "" || strings.HasPrefix(name, string(filepath.Separator)) {
		return name
	}
	full := filepath.Join(root, name)
	return strings.TrimLeft(strings.ReplaceAll(full, string(filepath.Separator), "."), ".")
}

// Engines returns the prepared names in sorted order.
func (b *Buffet) Engines() []string {
	b.mu.RLock()
	defer b.mu.RUnlock()
	names := make([]string, 0, len(b.engines))
	for name := range b.engines {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Roots returns the distinct template roots of the prepared engines.
func (b *Buffet) Roots() []string {
	b.mu.RLock()
	defer b.mu.RUnlock()
	seen := make(map[string]bool)
	var roots []string
	for _, p := range b.engines {
		if p.root != "" && !seen[p.root] {
			seen[p.root] = true
			roots = append(roots, p.root)
		}
	}
	sort.Strings(roots)
	return roots
}

// Reset drops parsed templates in every prepared engine that caches them.
func (b *Buffet) Reset() {
	b.mu.RLock()
	defer b.mu.RUnlock()
	for name, p := range b.engines {
		if r, ok := p.engine.(engine.Reloader); ok {
			r.Reset()
			b.logger.Debug("Template engine reset", "engine", name)
		}
	}
}
