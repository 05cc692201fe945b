// Package tmplctx holds the request-scoped state that templates see and
// builds the namespace snapshot handed to template engines.
package tmplctx

import (
	"context"
	"maps"
	"sync"

	"github.com/flosch/pongo2/v6"

	"github.com/kart-io/tmplhub/pkg/cache"
	"github.com/kart-io/tmplhub/pkg/i18n"
	"github.com/kart-io/tmplhub/pkg/logger"
)

// Context is the per-request attribute bag controllers fill for templates.
type Context struct {
	mu    sync.RWMutex
	attrs map[string]any
}

// NewContext creates an empty Context.
func NewContext() *Context {
	return &Context{attrs: make(map[string]any)}
}

// Set stores value under key.
func (c *Context) Set(key string, value any) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.attrs[key] = value
}

// Get returns the value stored under key.
func (c *Context) Get(key string) (any, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	v, ok := c.attrs[key]
	return v, ok
}

// Delete removes key.
func (c *Context) Delete(key string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.attrs, key)
}

// Map returns a copy of the attributes.
func (c *Context) Map() map[string]any {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return maps.Clone(c.attrs)
}

// Response is the part of an HTTP response the render helpers write to.
type Response interface {
	SetBody(body []byte)
	SetHeader(key, value string)
	SetEncodingErrors(policy string)
	DefaultContentType() string
}

// Session is the request session as templates see it.
type Session interface {
	Get(key string) any
	Set(key string, value any)
}

// Environ carries deployment flags.
type Environ struct {
	// Session controls whether "session" is part of the snapshot.
	Session bool
}

// HTMLLoader loads html/template templates with layout support.
type HTMLLoader interface {
	Render(ctx context.Context, name string, data map[string]any, fragment bool, format string) (string, error)
	Reset()
}

// Globals is the application-wide object templates see as "g".
type Globals struct {
	// Pongo2 loads templates for RenderPongo2.
	Pongo2 *pongo2.TemplateSet
	// HTML loads templates for RenderHTML.
	HTML HTMLLoader
	// Values holds application-defined globals.
	Values map[string]any
}

// Request is a render call as the engine facade receives it.
type Request struct {
	Engine         string
	Template       string
	Namespace      map[string]any
	ExcludeContext bool
	CacheKey       string
	CacheType      string
	CacheExpire    string
	Options        map[string]any
}

// Renderer renders a Request against the state it is given.
type Renderer interface {
	RenderRequest(ctx context.Context, state *State, req Request) (string, error)
}

// State is everything one request exposes to templates.
type State struct {
	Context    *Context
	Config     map[string]any
	Globals    *Globals
	Helpers    any
	Request    any
	Response   Response
	Translator i18n.Translator
	Session    Session
	Environ    Environ

	// Buffet renders on behalf of the render helpers.
	Buffet Renderer
	// Cache serves cache directives of the fixed-engine helpers.
	Cache *cache.Manager
	// Logger receives render helper warnings. Nil discards them.
	Logger logger.Logger
}
