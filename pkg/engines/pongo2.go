package engines

import (
	"context"
	"fmt"

	"github.com/flosch/pongo2/v6"

	"github.com/kart-io/tmplhub/pkg/engine"
)

// NewPongo2Set creates a pongo2 template set loading from root.
func NewPongo2Set(name, root string) (*pongo2.TemplateSet, error) {
	if root == "" {
		root = "."
	}
	loader, err := pongo2.NewLocalFileSystemLoader(root)
	if err != nil {
		return nil, fmt.Errorf("pongo2 loader for %q: %w", root, err)
	}
	return pongo2.NewSet(name, loader), nil
}

// Pongo2Engine renders Django-style templates with pongo2. Template names
// are paths relative to the root.
//
// Options (construction, prefixed "pongo2."):
//   - debug: disable the template cache and enable pongo2 debug output
type Pongo2Engine struct {
	name      string
	root      string
	set       *pongo2.TemplateSet
	extraVars func() map[string]any
}

// NewPongo2 is the pongo2 factory.
func NewPongo2(cfg engine.Config) (engine.Engine, error) {
	return newPongo2Engine(Pongo2, cfg)
}

func newPongo2Engine(name string, cfg engine.Config) (*Pongo2Engine, error) {
	set, err := NewPongo2Set(name, cfg.Root)
	if err != nil {
		return nil, err
	}
	set.Debug = cfg.Options.WithPrefix(name + ".").Bool("debug")
	return &Pongo2Engine{
		name:      name,
		root:      cfg.Root,
		set:       set,
		extraVars: cfg.ExtraVars,
	}, nil
}

// Render executes the template at path name.
func (e *Pongo2Engine) Render(_ context.Context, namespace map[string]any, name string, _ engine.Options) (string, error) {
	return e.execute(name, mergeVars(e.extraVars, namespace))
}

func (e *Pongo2Engine) execute(name string, data map[string]any) (string, error) {
	tpl, err := e.load(name)
	if err != nil {
		return "", err
	}
	out, err := tpl.Execute(pongo2.Context(data))
	if err != nil {
		return "", renderFailed(e.name, name, err)
	}
	return out, nil
}

func (e *Pongo2Engine) load(name string) (*pongo2.Template, error) {
	if _, ok := resolveDotted(e.root, name); !ok {
		return nil, notFound(e.name, name, e.root)
	}
	var (
		tpl *pongo2.Template
		err error
	)
	if e.set.Debug {
		tpl, err = e.set.FromFile(name)
	} else {
		tpl, err = e.set.FromCache(name)
	}
	if err != nil {
		return nil, renderFailed(e.name, name, err)
	}
	return tpl, nil
}

// Reset drops parsed templates.
func (e *Pongo2Engine) Reset() {
	e.set.CleanCache()
}
