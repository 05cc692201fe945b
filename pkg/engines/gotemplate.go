package engines

import (
	"context"
	"strings"
	"sync"

	gotemplate "github.com/goliatone/go-template"

	"github.com/kart-io/tmplhub/pkg/engine"
)

// DefaultGoTemplateExtension is appended to names without one.
const DefaultGoTemplateExtension = ".tpl"

// GoTemplateEngine renders through github.com/goliatone/go-template. Template
// names are paths relative to the root; the extension is optional.
//
// Options (construction, prefixed "gotemplate."):
//   - extension: template file extension, default ".tpl"
type GoTemplateEngine struct {
	mu        sync.RWMutex
	root      string
	extension string
	renderer  *gotemplate.Engine
	extraVars func() map[string]any
}

// NewGoTemplate is the gotemplate factory.
func NewGoTemplate(cfg engine.Config) (engine.Engine, error) {
	ext := cfg.Options.WithPrefix(Gotemplate + ".").String("extension")
	if ext == "" {
		ext = DefaultGoTemplateExtension
	}
	if !strings.HasPrefix(ext, ".") {
		ext = "." + ext
	}
	root := cfg.Root
	if root == "" {
		root = "."
	}

	e := &GoTemplateEngine{root: root, extension: ext, extraVars: cfg.ExtraVars}
	renderer, err := e.newRenderer()
	if err != nil {
		return nil, err
	}
	e.renderer = renderer
	return e, nil
}

func (e *GoTemplateEngine) newRenderer() (*gotemplate.Engine, error) {
	return gotemplate.NewRenderer(
		gotemplate.WithBaseDir(e.root),
		gotemplate.WithExtension(e.extension),
	)
}

// Render executes the template at name.
func (e *GoTemplateEngine) Render(_ context.Context, namespace map[string]any, name string, _ engine.Options) (string, error) {
	path := name
	if !strings.HasSuffix(path, e.extension) {
		path += e.extension
	}
	if _, ok := resolveDotted(e.root, path); !ok {
		return "", notFound(Gotemplate, name, e.root)
	}

	e.mu.RLock()
	renderer := e.renderer
	e.mu.RUnlock()

	out, err := renderer.RenderTemplate(name, mergeVars(e.extraVars, namespace))
	if err != nil {
		return "", renderFailed(Gotemplate, name, err)
	}
	return out, nil
}

// Reset replaces the renderer so templates are read again.
func (e *GoTemplateEngine) Reset() {
	renderer, err := e.newRenderer()
	if err != nil {
		return
	}
	e.mu.Lock()
	e.renderer = renderer
	e.mu.Unlock()
}
