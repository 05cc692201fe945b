package web

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/session"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kart-io/tmplhub/pkg/buffet"
	"github.com/kart-io/tmplhub/pkg/engine"
	"github.com/kart-io/tmplhub/pkg/engines"
	tmplerrors "github.com/kart-io/tmplhub/pkg/errors"
	"github.com/kart-io/tmplhub/pkg/logger"
	"github.com/kart-io/tmplhub/pkg/render"
	"github.com/kart-io/tmplhub/pkg/tmplctx"
)

func newBuffet(t *testing.T) *buffet.Buffet {
	t.Helper()
	root := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(root, "hello.txt"),
		[]byte(`Hello {{.name}}{{with .c}} ({{index . "title"}}){{end}}`), 0o644))

	b, err := buffet.New(engine.Discover(engines.Builtin(), logger.Discard),
		buffet.WithDefaultEngine(engines.Gotext, root, nil))
	require.NoError(t, err)
	return b
}

func builder(b *buffet.Buffet, sessions bool) StateBuilderFunc {
	return func(request any, response tmplctx.Response) *tmplctx.State {
		c := tmplctx.NewContext()
		c.Set("title", "Home")
		return &tmplctx.State{
			Context:  c,
			Config:   map[string]any{},
			Globals:  &tmplctx.Globals{},
			Request:  request,
			Response: response,
			Environ:  tmplctx.Environ{Session: sessions},
			Buffet:   b,
		}
	}
}

func do(t *testing.T, app *fiber.App, path string) (*http.Response, string) {
	t.Helper()
	resp, err := app.Test(httptest.NewRequest(http.MethodGet, path, nil))
	require.NoError(t, err)
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return resp, string(body)
}

func TestMiddlewareAndRender(t *testing.T) {
	app := fiber.New()
	app.Use(Middleware(Config{Builder: builder(newBuffet(t), false)}))
	app.Get("/", func(c *fiber.Ctx) error {
		return Render(c, map[string]any{"name": "Ada"}, "hello.txt")
	})

	resp, body := do(t, app, "/")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "Hello Ada (Home)", body)
	assert.Equal(t, "text/html; charset=utf-8", resp.Header.Get("Content-Type"))
}

func TestStateFrom_WithoutMiddleware(t *testing.T) {
	app := fiber.New()
	var got error
	app.Get("/", func(c *fiber.Ctx) error {
		_, got = StateFrom(c)
		return c.SendStatus(http.StatusNoContent)
	})

	do(t, app, "/")
	assert.ErrorIs(t, got, tmplerrors.ErrContextUnavailable)
}

func TestMiddleware_Session(t *testing.T) {
	store := session.New()
	app := fiber.New()
	app.Use(Middleware(Config{Builder: builder(newBuffet(t), true), Sessions: store}))

	var snapshotHasSession bool
	app.Get("/", func(c *fiber.Ctx) error {
		state, err := StateFrom(c)
		if err != nil {
			return err
		}
		if state.Session == nil {
			return fiber.ErrInternalServerError
		}
		state.Session.Set("visits", 1)

		ns, err := tmplctx.Snapshot(state)
		if err != nil {
			return err
		}
		_, snapshotHasSession = ns["session"]
		return c.SendString("ok")
	})

	resp, _ := do(t, app, "/")
	assert.True(t, snapshotHasSession)
	assert.NotEmpty(t, resp.Header.Get("Set-Cookie"))
}

func TestRenderResponse_ThroughFiber(t *testing.T) {
	app := fiber.New()
	app.Use(Middleware(Config{Builder: builder(newBuffet(t), false)}))
	app.Get("/", func(c *fiber.Ctx) error {
		state, err := StateFrom(c)
		if err != nil {
			return err
		}
		_, err = render.RenderResponse(c.UserContext(), state, map[string]any{
			"name":            "Zoë",
			"output_encoding": "iso-8859-1",
		}, "hello.txt")
		return err
	})

	resp, body := do(t, app, "/")
	assert.Equal(t, "text/html; charset=iso-8859-1", resp.Header.Get("Content-Type"))
	assert.Equal(t, "Hello Zo\xeb (Home)", body)
}

func TestViews(t *testing.T) {
	b := newBuffet(t)
	app := fiber.New(fiber.Config{Views: NewViews(b, ""), PassLocalsToViews: true})
	app.Use(Middleware(Config{Builder: builder(b, false)}))
	app.Get("/", func(c *fiber.Ctx) error {
		return c.Render("hello.txt", fiber.Map{"name": "Bo"})
	})

	_, body := do(t, app, "/")
	assert.Equal(t, "Hello Bo (Home)", body)
}

func TestViews_WithoutState(t *testing.T) {
	app := fiber.New(fiber.Config{Views: NewViews(newBuffet(t), engines.Gotext)})
	app.Get("/", func(c *fiber.Ctx) error {
		return c.Render("hello.txt", fiber.Map{"name": "Cy"})
	})

	_, body := do(t, app, "/")
	assert.Equal(t, "Hello Cy", body)
}

type ctxKey struct{}

func TestViews_RequestContext(t *testing.T) {
	assert.Equal(t, context.Background(), requestContext(nil))
	assert.Equal(t, context.Background(), requestContext(&tmplctx.State{Request: "plain"}))

	var got any
	app := fiber.New()
	app.Get("/", func(c *fiber.Ctx) error {
		c.SetUserContext(context.WithValue(context.Background(), ctxKey{}, "traced"))
		got = requestContext(&tmplctx.State{Request: c}).Value(ctxKey{})
		return nil
	})

	do(t, app, "/")
	assert.Equal(t, "traced", got)
}
