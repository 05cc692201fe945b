package engines

import (
	"bytes"
	"context"
	"html/template"
	"path/filepath"

	"github.com/kart-io/tmplhub/pkg/engine"
	"github.com/kart-io/tmplhub/pkg/tmplctx"
)

// ContentBlock is the block a fragment render executes.
const ContentBlock = "content"

// htmlSet loads html/template pages, optionally wrapped in a layout.
type htmlSet struct {
	engineName string
	root       string
	layout     string
	templates  parsedCache[*template.Template]
}

func (s *htmlSet) parse(path string) (*template.Template, error) {
	return s.templates.load(path, func() (*template.Template, error) {
		funcs := template.FuncMap(funcMap())
		funcs["format"] = func() string { return "" }

		files := []string{path}
		if s.layout != "" {
			files = []string{filepath.Join(s.root, s.layout), path}
		}
		return template.New(filepath.Base(files[0])).Funcs(funcs).ParseFiles(files...)
	})
}

// execute renders name. A fragment runs the content block when the page
// defines one and never the layout. format is reachable as {{format}}.
func (s *htmlSet) execute(name string, data map[string]any, fragment bool, format string) (string, error) {
	path, ok := resolveDotted(s.root, name)
	if !ok {
		return "", notFound(s.engineName, name, s.root)
	}

	parsed, err := s.parse(path)
	if err != nil {
		return "", renderFailed(s.engineName, name, err)
	}
	tmpl, err := parsed.Clone()
	if err != nil {
		return "", renderFailed(s.engineName, name, err)
	}
	tmpl.Funcs(template.FuncMap{"format": func() string { return format }})

	entry := filepath.Base(path)
	switch {
	case fragment && tmpl.Lookup(ContentBlock) != nil:
		entry = ContentBlock
	case !fragment && s.layout != "":
		entry = filepath.Base(s.layout)
	}

	var buf bytes.Buffer
	if err := tmpl.ExecuteTemplate(&buf, entry, data); err != nil {
		return "", renderFailed(s.engineName, name, err)
	}
	return buf.String(), nil
}

// HTMLEngine renders html/template files. It takes dotted identifiers.
//
// Options (construction, prefixed "gohtml."):
//   - layout: layout file below the root wrapping every non-fragment render
//
// Render options: fragment (bool) and format (string).
type HTMLEngine struct {
	set       *htmlSet
	extraVars func() map[string]any
}

// NewHTML is the gohtml factory.
func NewHTML(cfg engine.Config) (engine.Engine, error) {
	opts := cfg.Options.WithPrefix(Gohtml + ".")
	return &HTMLEngine{
		set:       &htmlSet{engineName: Gohtml, root: cfg.Root, layout: opts.String("layout")},
		extraVars: cfg.ExtraVars,
	}, nil
}

// TemplateNaming implements engine.Named.
func (e *HTMLEngine) TemplateNaming() engine.Naming {
	return engine.NamingDotted
}

// Render executes the template identified by name.
func (e *HTMLEngine) Render(_ context.Context, namespace map[string]any, name string, opts engine.Options) (string, error) {
	return e.set.execute(name, mergeVars(e.extraVars, namespace), opts.Bool("fragment"), opts.String("format"))
}

// Reset drops parsed templates.
func (e *HTMLEngine) Reset() {
	e.set.templates.reset()
}

// HTMLLoader serves RenderHTML from a template root.
type HTMLLoader struct {
	set *htmlSet
}

var _ tmplctx.HTMLLoader = (*HTMLLoader)(nil)

// NewHTMLLoader creates a loader for root. layout may be empty.
func NewHTMLLoader(root, layout string) *HTMLLoader {
	return &HTMLLoader{set: &htmlSet{engineName: Gohtml, root: root, layout: layout}}
}

// Render executes name against data.
func (l *HTMLLoader) Render(_ context.Context, name string, data map[string]any, fragment bool, format string) (string, error) {
	return l.set.execute(name, data, fragment, format)
}

// Reset drops parsed templates.
func (l *HTMLLoader) Reset() {
	l.set.templates.reset()
}
