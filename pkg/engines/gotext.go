package engines

import (
	"bytes"
	"context"
	"path/filepath"
	"text/template"

	"github.com/kart-io/tmplhub/pkg/engine"
)

// TextEngine renders text/template files. It takes dotted identifiers.
//
// Options (construction, prefixed "gotext."):
//   - missingkey: value for template.Option("missingkey=..."), default "default"
type TextEngine struct {
	root       string
	missingKey string
	extraVars  func() map[string]any
	templates  parsedCache[*template.Template]
}

// NewText is the gotext factory.
func NewText(cfg engine.Config) (engine.Engine, error) {
	opts := cfg.Options.WithPrefix(Gotext + ".")
	missingKey := opts.String("missingkey")
	if missingKey == "" {
		missingKey = "default"
	}
	return &TextEngine{
		root:       cfg.Root,
		missingKey: missingKey,
		extraVars:  cfg.ExtraVars,
	}, nil
}

// TemplateNaming implements engine.Named.
func (e *TextEngine) TemplateNaming() engine.Naming {
	return engine.NamingDotted
}

// Render executes the template identified by name.
func (e *TextEngine) Render(_ context.Context, namespace map[string]any, name string, _ engine.Options) (string, error) {
	path, ok := resolveDotted(e.root, name)
	if !ok {
		return "", notFound(Gotext, name, e.root)
	}

	tmpl, err := e.templates.load(path, func() (*template.Template, error) {
		return template.New(filepath.Base(path)).
			Option("missingkey=" + e.missingKey).
			Funcs(funcMap()).
			ParseFiles(path)
	})
	if err != nil {
		return "", renderFailed(Gotext, name, err)
	}

	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, mergeVars(e.extraVars, namespace)); err != nil {
		return "", renderFailed(Gotext, name, err)
	}
	return buf.String(), nil
}

// Reset drops parsed templates.
func (e *TextEngine) Reset() {
	e.templates.reset()
}
