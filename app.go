// Package tmplhub wires the template engine facade, the render cache and the
// request state into one application object.
//
// Basic usage:
//
//	cfg, err := config.Load("tmplhub.yaml")
//	if err != nil {
//		log.Fatal(err)
//	}
//	app, err := tmplhub.New(cfg)
//	if err != nil {
//		log.Fatal(err)
//	}
//	defer app.Close(context.Background())
//
//	state := app.NewState(nil, nil)
//	state.Context.Set("title", "Home")
//	out, err := render.Render(ctx, state, map[string]any{"name": "Ada"}, "index.html")
//
// With Fiber:
//
//	srv := fiber.New()
//	srv.Use(app.Middleware(session.New()))
//	srv.Get("/", func(c *fiber.Ctx) error {
//		return web.Render(c, nil, "index.html")
//	})
package tmplhub

import (
	"context"
	"maps"
	"slices"

	"github.com/flosch/pongo2/v6"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/session"

	"github.com/kart-io/tmplhub/pkg/buffet"
	"github.com/kart-io/tmplhub/pkg/cache"
	"github.com/kart-io/tmplhub/pkg/config"
	"github.com/kart-io/tmplhub/pkg/engine"
	"github.com/kart-io/tmplhub/pkg/engines"
	tmplerrors "github.com/kart-io/tmplhub/pkg/errors"
	"github.com/kart-io/tmplhub/pkg/helpers"
	"github.com/kart-io/tmplhub/pkg/i18n"
	"github.com/kart-io/tmplhub/pkg/logger"
	"github.com/kart-io/tmplhub/pkg/reload"
	"github.com/kart-io/tmplhub/pkg/telemetry"
	"github.com/kart-io/tmplhub/pkg/tmplctx"
	"github.com/kart-io/tmplhub/pkg/web"
)

// App holds everything a request needs to render templates.
type App struct {
	config     *config.Config
	logger     logger.Logger
	registry   *engine.Registry
	buffet     *buffet.Buffet
	cache      *cache.Manager
	telemetry  *telemetry.Provider
	pongo2     *pongo2.TemplateSet
	html       *engines.HTMLLoader
	translator i18n.Translator
	helpers    *helpers.Helpers
	globals    map[string]any
	reloader   *reload.HotReloader

	plugins       []engine.Plugin
	telemetryOpts []telemetry.Option
	cacheOpts     []cache.ManagerOption
	htmlLayout    string
	onReload      func([]reload.Event)
}

var _ web.StateBuilder = (*App)(nil)

// Option configures an App.
type Option func(*App)

// WithPlugins makes extra engine plugins available next to the built-in ones.
func WithPlugins(plugins ...engine.Plugin) Option {
	return func(a *App) {
		a.plugins = append(a.plugins, plugins...)
	}
}

// WithTranslator sets the translator templates see.
func WithTranslator(t i18n.Translator) Option {
	return func(a *App) {
		a.translator = t
	}
}

// WithGlobals sets application-wide values templates see under "g".
func WithGlobals(values map[string]any) Option {
	return func(a *App) {
		a.globals = maps.Clone(values)
	}
}

// WithTelemetryOptions passes opts to telemetry.New.
func WithTelemetryOptions(opts ...telemetry.Option) Option {
	return func(a *App) {
		a.telemetryOpts = append(a.telemetryOpts, opts...)
	}
}

// WithCacheOptions passes opts to cache.NewManager.
func WithCacheOptions(opts ...cache.ManagerOption) Option {
	return func(a *App) {
		a.cacheOpts = append(a.cacheOpts, opts...)
	}
}

// WithHTMLLayout sets the layout used by the html globals loader.
func WithHTMLLayout(layout string) Option {
	return func(a *App) {
		a.htmlLayout = layout
	}
}

// WithReloadHook runs fn after every hot reload.
func WithReloadHook(fn func([]reload.Event)) Option {
	return func(a *App) {
		a.onReload = fn
	}
}

// New builds an App from cfg. cfg is validated first.
func New(cfg *config.Config, opts ...Option) (*App, error) {
	if cfg == nil {
		return nil, tmplerrors.New(tmplerrors.CodeInvalidConfig, "config is required")
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	a := &App{
		config:     cfg,
		logger:     logger.OrDiscard(cfg.LoggerInstance),
		translator: i18n.Null(),
		helpers:    helpers.New(),
		globals:    make(map[string]any),
	}
	for _, opt := range opts {
		opt(a)
	}

	tp, err := telemetry.New(cfg.Telemetry, a.telemetryOpts...)
	if err != nil {
		return nil, tmplerrors.Wrap(tmplerrors.CodeInvalidConfig, "initialize telemetry", err)
	}
	a.telemetry = tp

	a.cache = cache.NewManager(cfg.Cache, append([]cache.ManagerOption{
		cache.WithLogger(a.logger),
		cache.WithRecorder(tp),
	}, a.cacheOpts...)...)

	a.registry = engine.Discover(append(engines.Builtin(), a.plugins...), a.logger)

	if err := a.initBuffet(); err != nil {
		a.closeQuietly()
		return nil, err
	}

	set, err := engines.NewPongo2Set("globals", cfg.TemplateRoot)
	if err != nil {
		a.closeQuietly()
		return nil, tmplerrors.Wrap(tmplerrors.CodeInvalidConfig, "create pongo2 template set", err)
	}
	a.pongo2 = set
	a.html = engines.NewHTMLLoader(cfg.TemplateRoot, a.htmlLayout)

	if cfg.Reload.Enabled {
		if err := a.initReload(); err != nil {
			a.closeQuietly()
			return nil, err
		}
	}

	a.logger.Info("tmplhub initialized", "engines", a.buffet.Engines(), "default", a.buffet.DefaultEngine(),
		"cache", cfg.Cache.DefaultType, "reload", cfg.Reload.Enabled)
	return a, nil
}

func (a *App) initBuffet() error {
	cfg := a.config

	// An unaliased entry for the default engine supplies its root and options.
	defaultRoot := cfg.TemplateRoot
	var defaultOptions engine.Options
	for _, e := range cfg.Engines {
		if e.Alias != "" || e.Name != cfg.DefaultEngine {
			continue
		}
		defaultOptions = engine.Options(e.Options)
		if e.Root != "" {
			defaultRoot = e.Root
		}
	}

	opts := []buffet.Option{
		buffet.WithCacheManager(a.cache),
		buffet.WithLogger(a.logger),
		buffet.WithTelemetry(a.telemetry),
	}
	if cfg.DefaultEngine != "" {
		opts = append(opts, buffet.WithDefaultEngine(cfg.DefaultEngine, defaultRoot, defaultOptions))
	}

	b, err := buffet.New(a.registry, opts...)
	if err != nil {
		return err
	}

	for _, e := range cfg.Engines {
		if e.Alias == "" && e.Name == cfg.DefaultEngine {
			continue
		}
		root := e.Root
		if root == "" {
			root = cfg.TemplateRoot
		}
		if err := b.Prepare(e.Name, buffet.WithRoot(root), buffet.WithAlias(e.Alias),
			buffet.WithOptions(engine.Options(e.Options))); err != nil {
			return err
		}
	}
	a.buffet = b
	return nil
}

func (a *App) initReload() error {
	paths := a.buffet.Roots()
	if !slices.Contains(paths, a.config.TemplateRoot) {
		paths = append(paths, a.config.TemplateRoot)
	}

	rc := reload.DefaultConfig(paths...)
	rc.Debounce = a.config.Reload.Debounce
	rc.OnReload = a.onReload

	set := a.pongo2
	hr, err := reload.New(rc, a.logger,
		a.buffet,
		a.html,
		reload.ResetFunc(func() { set.CleanCache() }),
	)
	if err != nil {
		return tmplerrors.Wrap(tmplerrors.CodeInvalidConfig, "start hot reload", err)
	}
	a.reloader = hr
	return nil
}

// NewState builds the state for one request. request and response may be nil
// outside a request.
func (a *App) NewState(request any, response tmplctx.Response) *tmplctx.State {
	return &tmplctx.State{
		Context: tmplctx.NewContext(),
		Config:  a.config.Values,
		Globals: &tmplctx.Globals{
			Pongo2: a.pongo2,
			HTML:   a.html,
			Values: a.globals,
		},
		Helpers:    a.helpers,
		Request:    request,
		Response:   response,
		Translator: a.translator,
		Environ:    tmplctx.Environ{Session: a.config.SessionsEnabled},
		Buffet:     a.buffet,
		Cache:      a.cache,
		Logger:     a.logger,
	}
}

// Middleware returns the Fiber middleware that stores a fresh state per
// request. sessions may be nil.
func (a *App) Middleware(sessions *session.Store) fiber.Handler {
	return web.Middleware(web.Config{Builder: a, Sessions: sessions, Logger: a.logger})
}

// Views returns a fiber.Views that renders with engine, or the default
// engine when engine is "".
func (a *App) Views(engineName string) *web.Views {
	return web.NewViews(a.buffet, engineName)
}

// Buffet returns the engine facade.
func (a *App) Buffet() *buffet.Buffet { return a.buffet }

// Cache returns the cache manager.
func (a *App) Cache() *cache.Manager { return a.cache }

// Registry returns the discovered engine plugins.
func (a *App) Registry() *engine.Registry { return a.registry }

// Config returns the validated configuration.
func (a *App) Config() *config.Config { return a.config }

// Logger returns the application logger.
func (a *App) Logger() logger.Logger { return a.logger }

// Reset drops every parsed template.
func (a *App) Reset() {
	a.buffet.Reset()
	a.html.Reset()
	a.pongo2.CleanCache()
}

// Close stops hot reload, closes the cache backends and flushes telemetry.
func (a *App) Close(ctx context.Context) error {
	var errs tmplerrors.MultiError
	if a.reloader != nil {
		errs.Add(a.reloader.Stop())
	}
	if a.cache != nil {
		errs.Add(a.cache.Close())
	}
	if a.telemetry != nil {
		errs.Add(a.telemetry.Shutdown(ctx))
	}
	return errs.ErrorOrNil()
}

func (a *App) closeQuietly() {
	if err := a.Close(context.Background()); err != nil {
		a.logger.Warn("Cleanup after failed initialization", "error", err)
	}
}
