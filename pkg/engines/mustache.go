package engines

import (
	"context"
	"os"
	"path/filepath"

	"github.com/cbroglie/mustache"

	"github.com/kart-io/tmplhub/pkg/engine"
)

// MustacheEngine renders Mustache templates. Template names are paths
// relative to the root and partials resolve against the root as well.
//
// Options (construction, prefixed "mustache."):
//   - extensions: partial file extensions, default ".mustache"
type MustacheEngine struct {
	name      string
	root      string
	partials  *mustache.FileProvider
	extraVars func() map[string]any
	rewrite   func(string) (string, error)
	templates parsedCache[*mustache.Template]
}

// NewMustache is the mustache factory.
func NewMustache(cfg engine.Config) (engine.Engine, error) {
	return newMustacheEngine(Mustache, cfg, ".mustache", nil), nil
}

func newMustacheEngine(name string, cfg engine.Config, ext string, rewrite func(string) (string, error)) *MustacheEngine {
	exts := stringList(cfg.Options.WithPrefix(name + ".")["extensions"])
	if len(exts) == 0 {
		exts = []string{ext}
	}
	root := cfg.Root
	if root == "" {
		root = "."
	}
	return &MustacheEngine{
		name:      name,
		root:      root,
		partials:  &mustache.FileProvider{Paths: []string{root}, Extensions: exts},
		extraVars: cfg.ExtraVars,
		rewrite:   rewrite,
	}
}

// Render executes the template at name.
func (e *MustacheEngine) Render(_ context.Context, namespace map[string]any, name string, _ engine.Options) (string, error) {
	path, ok := resolveDotted(e.root, name)
	if !ok {
		return "", notFound(e.name, name, e.root)
	}

	tmpl, err := e.templates.load(path, func() (*mustache.Template, error) {
		return e.parse(filepath.Clean(path))
	})
	if err != nil {
		return "", renderFailed(e.name, name, err)
	}

	out, err := tmpl.Render(mergeVars(e.extraVars, namespace))
	if err != nil {
		return "", renderFailed(e.name, name, err)
	}
	return out, nil
}

func (e *MustacheEngine) parse(path string) (*mustache.Template, error) {
	if e.rewrite == nil {
		return mustache.ParseFilePartials(path, e.partials)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	src, err := e.rewrite(string(data))
	if err != nil {
		return nil, err
	}
	return mustache.ParseStringPartials(src, e.partials)
}

// Reset drops parsed templates.
func (e *MustacheEngine) Reset() {
	e.templates.reset()
}
