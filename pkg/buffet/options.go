package buffet

import (
	"maps"

	"github.com/kart-io/tmplhub/pkg/cache"
	"github.com/kart-io/tmplhub/pkg/engine"
	"github.com/kart-io/tmplhub/pkg/tmplctx"
)

type prepareConfig struct {
	root      string
	alias     string
	options   engine.Options
	extraVars func() map[string]any
}

// PrepareOption configures Prepare.
type PrepareOption func(*prepareConfig)

// WithRoot sets the template root of the engine.
func WithRoot(root string) PrepareOption {
	return func(c *prepareConfig) {
		c.root = root
	}
}

// WithAlias stores the engine under alias instead of its plugin name.
func WithAlias(alias string) PrepareOption {
	return func(c *prepareConfig) {
		c.alias = alias
	}
}

// WithOptions passes construction options to the engine factory.
func WithOptions(options engine.Options) PrepareOption {
	return func(c *prepareConfig) {
		if c.options == nil {
			c.options = engine.Options{}
		}
		maps.Copy(c.options, options)
	}
}

// WithExtraVars sets the function the engine calls for extra render vars.
func WithExtraVars(fn func() map[string]any) PrepareOption {
	return func(c *prepareConfig) {
		c.extraVars = fn
	}
}

// RenderOption configures a single render call.
type RenderOption func(*tmplctx.Request)

// WithEngine selects a prepared engine by name or alias.
func WithEngine(name string) RenderOption {
	return func(r *tmplctx.Request) {
		r.Engine = name
	}
}

// WithNamespace supplies explicit template variables. Unless context is
// excluded, they are laid over the context snapshot.
func WithNamespace(ns map[string]any) RenderOption {
	return func(r *tmplctx.Request) {
		r.Namespace = ns
	}
}

// WithoutContext leaves the context snapshot out of the namespace.
func WithoutContext() RenderOption {
	return func(r *tmplctx.Request) {
		r.ExcludeContext = true
	}
}

// WithCache renders through the cache as directed.
func WithCache(d cache.Directive) RenderOption {
	return func(r *tmplctx.Request) {
		r.CacheKey, r.CacheType, r.CacheExpire = d.Key, d.Type, d.Expire
	}
}

// WithOption passes an engine render option.
func WithOption(key string, value any) RenderOption {
	return func(r *tmplctx.Request) {
		if r.Options == nil {
			r.Options = map[string]any{}
		}
		r.Options[key] = value
	}
}

// WithFragment asks for a fragment render.
func WithFragment(fragment bool) RenderOption {
	return WithOption(OptFragment, fragment)
}

// WithFormat sets the output format option.
func WithFormat(format string) RenderOption {
	return WithOption(OptFormat, format)
}
