// Package web connects tmplhub to Fiber: a middleware that builds the
// request state, a response adapter, and a fiber.Views implementation
// backed by the Buffet.
package web

import (
	"context"
	"io"
	"maps"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/session"

	"github.com/kart-io/tmplhub/pkg/buffet"
	tmplerrors "github.com/kart-io/tmplhub/pkg/errors"
	"github.com/kart-io/tmplhub/pkg/logger"
	"github.com/kart-io/tmplhub/pkg/render"
	"github.com/kart-io/tmplhub/pkg/tmplctx"
)

// LocalsKey is the c.Locals key holding the request state.
const LocalsKey = "tmplhub.state"

// StateBuilder creates the state for one request.
type StateBuilder interface {
	NewState(request any, response tmplctx.Response) *tmplctx.State
}

// StateBuilderFunc adapts a function to StateBuilder.
type StateBuilderFunc func(request any, response tmplctx.Response) *tmplctx.State

// NewState implements StateBuilder.
func (f StateBuilderFunc) NewState(request any, response tmplctx.Response) *tmplctx.State {
	return f(request, response)
}

// Config configures Middleware.
type Config struct {
	Builder StateBuilder
	// Sessions supplies the session when the state asks for one.
	Sessions *session.Store
	Logger   logger.Logger
}

// Middleware stores a fresh state in c.Locals for every request. When the
// state's session flag is set and a store is configured, the session is
// loaded before the handler runs and saved after it.
func Middleware(cfg Config) fiber.Handler {
	log := logger.OrDiscard(cfg.Logger)
	return func(c *fiber.Ctx) error {
		if cfg.Builder == nil {
			return c.Next()
		}
		state := cfg.Builder.NewState(c, NewResponse(c))

		var sess *session.Session
		if state.Environ.Session && cfg.Sessions != nil {
			s, err := cfg.Sessions.Get(c)
			if err != nil {
				log.Warn("Session unavailable", "path", c.Path(), "error", err)
			} else {
				sess = s
				state.Session = s
			}
		}

		c.Locals(LocalsKey, state)
		err := c.Next()

		if sess != nil {
			if serr := sess.Save(); serr != nil {
				log.Warn("Session save failed", "path", c.Path(), "error", serr)
			}
		}
		return err
	}
}

// StateFrom returns the state Middleware stored for this request.
func StateFrom(c *fiber.Ctx) (*tmplctx.State, error) {
	state, ok := c.Locals(LocalsKey).(*tmplctx.State)
	if !ok || state == nil {
		return nil, tmplerrors.New(tmplerrors.CodeContextUnavailable, "tmplhub middleware not installed")
	}
	return state, nil
}

// Render renders with render.Render and sends the result as HTML.
func Render(c *fiber.Ctx, vars map[string]any, args ...string) error {
	state, err := StateFrom(c)
	if err != nil {
		return err
	}
	out, err := render.Render(c.UserContext(), state, vars, args...)
	if err != nil {
		return err
	}
	c.Type("html", "utf-8")
	return c.SendString(out)
}

// Response adapts a Fiber context to tmplctx.Response.
type Response struct {
	c              *fiber.Ctx
	encodingErrors string
}

var _ tmplctx.Response = (*Response)(nil)

// NewResponse wraps c.
func NewResponse(c *fiber.Ctx) *Response {
	return &Response{c: c}
}

// SetBody replaces the response body.
func (r *Response) SetBody(body []byte) {
	r.c.Response().SetBodyRaw(body)
}

// SetHeader sets a response header.
func (r *Response) SetHeader(key, value string) {
	r.c.Set(key, value)
}

// SetEncodingErrors records the policy used when encoding the body.
func (r *Response) SetEncodingErrors(policy string) {
	r.encodingErrors = policy
}

// EncodingErrors returns the recorded policy.
func (r *Response) EncodingErrors() string {
	return r.encodingErrors
}

// DefaultContentType is the content type before any charset is added.
func (r *Response) DefaultContentType() string {
	return fiber.MIMETextHTML
}

// Views lets c.Render go through a Buffet. Set fiber.Config.PassLocalsToViews
// so the request state reaches Render; without it the binding is rendered
// with no context snapshot. Layouts are not supported.
type Views struct {
	buffet *buffet.Buffet
	engine string
}

var _ fiber.Views = (*Views)(nil)

// NewViews renders with engine, or the Buffet default when engine is "".
func NewViews(b *buffet.Buffet, engine string) *Views {
	return &Views{buffet: b, engine: engine}
}

// Load implements fiber.Views. Engines load templates lazily.
func (v *Views) Load() error {
	return nil
}

// Render implements fiber.Views.
func (v *Views) Render(w io.Writer, name string, binding interface{}, _ ...string) error {
	var ns map[string]any
	switch b := binding.(type) {
	case fiber.Map:
		ns = maps.Clone(map[string]any(b))
	case map[string]any:
		ns = maps.Clone(b)
	case nil:
		ns = map[string]any{}
	default:
		ns = map[string]any{"data": b}
	}

	state, _ := ns[LocalsKey].(*tmplctx.State)
	delete(ns, LocalsKey)

	opts := []buffet.RenderOption{buffet.WithNamespace(ns)}
	if v.engine != "" {
		opts = append(opts, buffet.WithEngine(v.engine))
	}
	if state == nil {
		opts = append(opts, buffet.WithoutContext())
	}

	out, err := v.buffet.Render(requestContext(state), state, name, opts...)
	if err != nil {
		return err
	}
	_, err = io.WriteString(w, out)
	return err
}

// requestContext returns the user context of the Fiber request behind state.
func requestContext(state *tmplctx.State) context.Context {
	if state != nil {
		if c, ok := state.Request.(*fiber.Ctx); ok {
			return c.UserContext()
		}
	}
	return context.Background()
}
