// Package render holds the request-level render helpers. Each takes the
// request state explicitly and renders either through the state's Buffet
// or directly through one of the loaders on the globals.
package render

import (
	"context"
	"fmt"
	"maps"

	"github.com/flosch/pongo2/v6"

	"github.com/kart-io/tmplhub/pkg/cache"
	tmplerrors "github.com/kart-io/tmplhub/pkg/errors"
	"github.com/kart-io/tmplhub/pkg/i18n"
	"github.com/kart-io/tmplhub/pkg/logger"
	"github.com/kart-io/tmplhub/pkg/tmplctx"
)

// Keywords Render removes from vars before they become the namespace.
const (
	KeyFragment    = "fragment"
	KeyFormat      = "format"
	KeyCacheKey    = "cache_key"
	KeyCacheType   = "cache_type"
	KeyCacheExpire = "cache_expire"

	KeyOutputEncoding = "output_encoding"
	KeyEncodingErrors = "encoding_errors"
)

// DefaultHTMLFormat is the format RenderHTML uses when none is given.
const DefaultHTMLFormat = "xhtml"

// DeprecationWarning is logged by every RenderResponse call.
const DeprecationWarning = "RenderResponse is deprecated, write the result of Render to the response instead"

// Render renders through state.Buffet. The last arg is the template name and
// an optional arg before it names the engine. vars is not modified; after
// the fragment, format and cache keywords are taken out, the rest is the
// namespace, laid over the context snapshot.
func Render(ctx context.Context, state *tmplctx.State, vars map[string]any, args ...string) (string, error) {
	if state == nil || state.Buffet == nil {
		return "", tmplerrors.New(tmplerrors.CodeContextUnavailable, "no renderer in request state")
	}
	if len(args) == 0 {
		return "", tmplerrors.New(tmplerrors.CodeTemplateNotFound, "no template name given")
	}

	ns := maps.Clone(vars)
	if ns == nil {
		ns = map[string]any{}
	}

	fragment, _ := pop(ns, KeyFragment)
	if fragment == nil {
		fragment = false
	}
	format, _ := pop(ns, KeyFormat)

	req := tmplctx.Request{
		Template:    args[len(args)-1],
		Namespace:   ns,
		CacheKey:    popString(ns, KeyCacheKey),
		CacheType:   popString(ns, KeyCacheType),
		CacheExpire: popString(ns, KeyCacheExpire),
		Options:     map[string]any{KeyFragment: fragment, KeyFormat: format},
	}
	if len(args) > 1 {
		req.Engine = args[len(args)-2]
	}

	logger.OrDiscard(state.Logger).Debug("Render called", "template", req.Template, "engine", req.Engine, "vars", len(ns))
	return state.Buffet.RenderRequest(ctx, state, req)
}

// RenderPongo2 renders name from state.Globals.Pongo2 with the context
// snapshot as its only data. The cache namespace varies by fragment.
func RenderPongo2(ctx context.Context, state *tmplctx.State, name string, d cache.Directive) (string, error) {
	globs, err := tmplctx.Snapshot(state)
	if err != nil {
		return "", err
	}
	if state.Globals == nil || state.Globals.Pongo2 == nil {
		return "", tmplerrors.New(tmplerrors.CodeContextUnavailable, "no pongo2 template set on globals")
	}

	tpl, err := state.Globals.Pongo2.FromCache(name)
	if err != nil {
		return "", tmplerrors.Wrap(tmplerrors.CodeTemplateNotFound, "load "+name, err).WithEngine("pongo2").WithTemplate(name)
	}

	render := func() (string, error) {
		return tpl.Execute(pongo2.Context(globs))
	}
	return cache.CachedTemplate(ctx, state.Cache, name, render, []string{KeyFragment}, d, nil)
}

// RenderHTML renders name through state.Globals.HTML. A fragment renders
// only the content block; format defaults to DefaultHTMLFormat. The cache
// namespace varies by fragment and format.
func RenderHTML(ctx context.Context, state *tmplctx.State, name string, d cache.Directive, fragment bool, format string) (string, error) {
	globs, err := tmplctx.Snapshot(state)
	if err != nil {
		return "", err
	}
	if state.Globals == nil || state.Globals.HTML == nil {
		return "", tmplerrors.New(tmplerrors.CodeContextUnavailable, "no html loader on globals")
	}
	if format == "" {
		format = DefaultHTMLFormat
	}

	render := func() (string, error) {
		return state.Globals.HTML.Render(ctx, name, globs, fragment, format)
	}
	extra := map[string]any{KeyFragment: fragment, KeyFormat: format}
	return cache.CachedTemplate(ctx, state.Cache, name, render, []string{KeyFragment, KeyFormat}, d, extra)
}

// RenderResponse renders like Render and writes the result to
// state.Response. With output_encoding in vars the body is encoded in that
// charset and the content type names it. It always returns "".
//
// Deprecated: write the result of Render to the response instead.
func RenderResponse(ctx context.Context, state *tmplctx.State, vars map[string]any, args ...string) (string, error) {
	var log logger.Logger = logger.Discard
	if state != nil {
		log = logger.OrDiscard(state.Logger)
	}
	log.Warn(DeprecationWarning)

	if state == nil || state.Response == nil {
		return "", tmplerrors.New(tmplerrors.CodeContextUnavailable, "no response in request state")
	}

	content, err := Render(ctx, state, vars, args...)
	if err != nil {
		return "", err
	}

	outputEncoding := stringValue(vars[KeyOutputEncoding])
	encodingErrors := stringValue(vars[KeyEncodingErrors])

	body := []byte(content)
	if outputEncoding != "" {
		if body, err = i18n.Encode(content, outputEncoding, encodingErrors); err != nil {
			return "", err
		}
		state.Response.SetHeader("Content-Type",
			fmt.Sprintf("%s; charset=%s", state.Response.DefaultContentType(), outputEncoding))
	}
	state.Response.SetBody(body)
	if encodingErrors != "" {
		state.Response.SetEncodingErrors(encodingErrors)
	}
	return "", nil
}

func pop(m map[string]any, key string) (any, bool) {
	v, ok := m[key]
	delete(m, key)
	return v, ok
}

func popString(m map[string]any, key string) string {
	v, _ := pop(m, key)
	return stringValue(v)
}

func stringValue(v any) string {
	if v == nil {
		return ""
	}
	if s, ok := v.(string); ok {
		return s
	}
	return fmt.Sprint(v)
}
