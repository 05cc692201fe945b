package engines

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kart-io/tmplhub/pkg/engine"
	tmplerrors "github.com/kart-io/tmplhub/pkg/errors"
	"github.com/kart-io/tmplhub/pkg/logger"
)

func writeTemplates(t *testing.T, files map[string]string) string {
	t.Helper()
	root := t.TempDir()
	for name, content := range files {
		path := filepath.Join(root, filepath.FromSlash(name))
		require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
		require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	}
	return root
}

// dotted mirrors the identifier the facade builds for dotted engines.
func dotted(root, name string) string {
	full := filepath.Join(root, name)
	return strings.TrimLeft(strings.ReplaceAll(full, string(filepath.Separator), "."), ".")
}

func TestBuiltin_Discover(t *testing.T) {
	reg := engine.Discover(Builtin(), logger.Discard)
	assert.Equal(t, []string{Gohtml, Gotemplate, Gotext, Handlebars, Mustache, Pongo2, Legacy}, reg.Names())
}

func TestResolveDotted(t *testing.T) {
	root := writeTemplates(t, map[string]string{
		"index.txt":       "root",
		"pages/about.txt": "about",
	})

	tests := []struct {
		name string
		in   string
		want string
	}{
		{"plain file", "index.txt", filepath.Join(root, "index.txt")},
		{"relative path", "pages/about.txt", filepath.Join(root, "pages", "about.txt")},
		{"dotted", dotted(root, "pages/about.txt"), filepath.Join(root, "pages", "about.txt")},
		{"dotted root file", dotted(root, "index.txt"), filepath.Join(root, "index.txt")},
		{"absolute", filepath.Join(root, "index.txt"), filepath.Join(root, "index.txt")},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := resolveDotted(root, tt.in)
			require.True(t, ok)
			assert.Equal(t, tt.want, got)
		})
	}

	_, ok := resolveDotted(root, "missing.txt")
	assert.False(t, ok)
}

func TestTextEngine(t *testing.T) {
	root := writeTemplates(t, map[string]string{
		"pages/hello.txt": `Hello {{.name}}{{if .extra}} ({{.extra}}){{end}} {{truncate .long 3}}`,
	})
	eng, err := NewText(engine.Config{
		Root:      root,
		ExtraVars: func() map[string]any { return map[string]any{"extra": "x", "name": "shadowed"} },
	})
	require.NoError(t, err)
	assert.Equal(t, engine.NamingDotted, engine.NamingOf(eng))

	out, err := eng.Render(context.Background(), map[string]any{"name": "World", "long": "abcdef"}, dotted(root, "pages/hello.txt"), nil)
	require.NoError(t, err)
	assert.Equal(t, "Hello World (x) abc...", out)

	_, err = eng.Render(context.Background(), nil, "nope.txt", nil)
	assert.ErrorIs(t, err, tmplerrors.ErrTemplateNotFound)
}

func TestTextEngine_ResetReparses(t *testing.T) {
	root := writeTemplates(t, map[string]string{"a.txt": "one"})
	eng, err := NewText(engine.Config{Root: root})
	require.NoError(t, err)

	out, err := eng.Render(context.Background(), nil, "a.txt", nil)
	require.NoError(t, err)
	assert.Equal(t, "one", out)

	require.NoError(t, os.WriteFile(filepath.Join(root, "a.txt"), []byte("two"), 0o644))
	out, _ = eng.Render(context.Background(), nil, "a.txt", nil)
	assert.Equal(t, "one", out, "parsed template is cached")

	eng.(engine.Reloader).Reset()
	out, err = eng.Render(context.Background(), nil, "a.txt", nil)
	require.NoError(t, err)
	assert.Equal(t, "two", out)
}

func TestTextEngine_MissingKeyOption(t *testing.T) {
	root := writeTemplates(t, map[string]string{"a.txt": "{{.absent}}"})
	eng, err := NewText(engine.Config{Root: root, Options: engine.Options{"gotext.missingkey": "error"}})
	require.NoError(t, err)

	_, err = eng.Render(context.Background(), map[string]any{}, "a.txt", nil)
	assert.ErrorIs(t, err, tmplerrors.ErrRenderFailed)
}

func TestHTMLEngine(t *testing.T) {
	root := writeTemplates(t, map[string]string{
		"layout.html": `<html>{{template "content" .}}</html>`,
		"page.html":   `{{define "content"}}<p>{{.msg}}</p><i>{{format}}</i>{{end}}`,
	})
	eng, err := NewHTML(engine.Config{Root: root, Options: engine.Options{"gohtml.layout": "layout.html"}})
	require.NoError(t, err)
	ctx := context.Background()

	out, err := eng.Render(ctx, map[string]any{"msg": "<b>hi</b>"}, dotted(root, "page.html"), engine.Options{"format": "xhtml"})
	require.NoError(t, err)
	assert.Equal(t, "<html><p>&lt;b&gt;hi&lt;/b&gt;</p><i>xhtml</i></html>", out)

	out, err = eng.Render(ctx, map[string]any{"msg": "frag"}, dotted(root, "page.html"), engine.Options{"fragment": true})
	require.NoError(t, err)
	assert.Equal(t, "<p>frag</p><i></i>", out)
}

func TestHTMLLoader(t *testing.T) {
	root := writeTemplates(t, map[string]string{
		"plain.html": `<div>{{.n}}</div>`,
		"block.html": `<body>{{block "content" .}}<p>{{.n}}</p>{{end}}</body>`,
	})
	loader := NewHTMLLoader(root, "")
	ctx := context.Background()

	out, err := loader.Render(ctx, "plain.html", map[string]any{"n": 1}, true, "")
	require.NoError(t, err)
	assert.Equal(t, "<div>1</div>", out, "fragment without a content block renders the page")

	out, err = loader.Render(ctx, "block.html", map[string]any{"n": 2}, false, "")
	require.NoError(t, err)
	assert.Equal(t, "<body><p>2</p></body>", out)

	out, err = loader.Render(ctx, "block.html", map[string]any{"n": 3}, true, "")
	require.NoError(t, err)
	assert.Equal(t, "<p>3</p>", out)

	loader.Reset()
	_, err = loader.Render(ctx, "missing.html", nil, false, "")
	assert.ErrorIs(t, err, tmplerrors.ErrTemplateNotFound)
}

func TestPongo2Engine(t *testing.T) {
	root := writeTemplates(t, map[string]string{
		"greet.html": `Hi {{ name }}{% if site %} @ {{ site }}{% endif %}`,
	})
	eng, err := NewPongo2(engine.Config{
		Root:      root,
		ExtraVars: func() map[string]any { return map[string]any{"site": "example"} },
	})
	require.NoError(t, err)
	assert.Equal(t, engine.NamingPath, engine.NamingOf(eng))

	out, err := eng.Render(context.Background(), map[string]any{"name": "Ann"}, "greet.html", nil)
	require.NoError(t, err)
	assert.Equal(t, "Hi Ann @ example", out)

	_, err = eng.Render(context.Background(), nil, "missing.html", nil)
	assert.ErrorIs(t, err, tmplerrors.ErrTemplateNotFound)
}

func TestLegacyEngine(t *testing.T) {
	root := writeTemplates(t, map[string]string{
		"body.html":   `{{ title }}:{{ c }}`,
		"layout.html": `[{{ content }}]`,
		"latin.txt":   `{{ word }}`,
	})
	eng, err := NewLegacy(engine.Config{
		Root: root,
		Options: engine.Options{
			"pongo2.legacy.allow_globals": "c, title",
			"pongo2.legacy.layout":        "layout.html",
		},
		ExtraVars: func() map[string]any { return map[string]any{"title": "extra"} },
	})
	require.NoError(t, err)
	scoped, ok := eng.(engine.GlobalScoped)
	require.True(t, ok)
	assert.Equal(t, []string{"c", "title"}, scoped.GlobalNames())

	legacy := eng.(*LegacyEngine)
	legacy.set.Globals["site"] = "example"
	legacy.set.Globals["title"] = "set"
	assert.Equal(t, []string{"c", "title", "site"}, scoped.GlobalNames())
	delete(legacy.set.Globals, "site")
	delete(legacy.set.Globals, "title")

	ns := map[string]any{
		engine.GlobalArgsKey: map[string]any{"c": "ctx", "title": "global"},
	}
	ctx := context.Background()

	out, err := eng.Render(ctx, ns, "body.html", nil)
	require.NoError(t, err)
	assert.Equal(t, "[extra:ctx]", out)

	out, err = eng.Render(ctx, ns, "body.html", engine.Options{"fragment": true})
	require.NoError(t, err)
	assert.Equal(t, "extra:ctx", out)

	out, err = eng.Render(ctx, map[string]any{"word": "café"}, "latin.txt", engine.Options{
		"fragment":        true,
		"output_encoding": "iso-8859-1",
	})
	require.NoError(t, err)
	assert.Equal(t, "caf\xe9", out)
}

func TestLegacyPluginLoads(t *testing.T) {
	f, err := loadLegacy()
	require.NoError(t, err)
	assert.NotNil(t, f)
}

func TestMustacheEngine(t *testing.T) {
	root := writeTemplates(t, map[string]string{
		"card.mustache":   `{{#items}}<{{.}}>{{/items}} {{> footer}}`,
		"footer.mustache": `by {{author}}`,
	})
	eng, err := NewMustache(engine.Config{Root: root})
	require.NoError(t, err)

	out, err := eng.Render(context.Background(), map[string]any{
		"items":  []string{"a", "b"},
		"author": "kim",
	}, "card.mustache", nil)
	require.NoError(t, err)
	assert.Equal(t, "<a><b> by kim", out)
}

func TestHandlebarsEngine(t *testing.T) {
	root := writeTemplates(t, map[string]string{
		"list.hbs":   `{{#if title}}<h1>{{title}}</h1>{{/if}}{{#each items}}[{{this}}]{{/each}}{{#unless items}}none{{/unless}} {{> footer}}`,
		"footer.hbs": `by {{author}}`,
		"open.hbs":   `{{#each items}}{{this}}`,
	})
	eng, err := NewHandlebars(engine.Config{Root: root})
	require.NoError(t, err)
	ctx := context.Background()

	out, err := eng.Render(ctx, map[string]any{
		"title":  "List",
		"items":  []string{"a", "b"},
		"author": "kim",
	}, "list.hbs", nil)
	require.NoError(t, err)
	assert.Equal(t, "<h1>List</h1>[a][b] by kim", out)

	out, err = eng.Render(ctx, map[string]any{"author": "kim"}, "list.hbs", nil)
	require.NoError(t, err)
	assert.Equal(t, "none by kim", out)

	_, err = eng.Render(ctx, nil, "open.hbs", nil)
	assert.ErrorIs(t, err, tmplerrors.ErrRenderFailed)
}

func TestHandlebarsToMustache(t *testing.T) {
	tests := []struct {
		name    string
		in      string
		want    string
		wantErr bool
	}{
		{name: "if", in: `{{#if a}}x{{/if}}`, want: `{{#a}}x{{/a}}`},
		{name: "nested", in: `{{#each rows}}{{#with cell}}{{v}}{{/with}}{{/each}}`, want: `{{#rows}}{{#cell}}{{v}}{{/cell}}{{/rows}}`},
		{name: "unless", in: `{{#unless a}}-{{/unless}}`, want: `{{^a}}-{{/a}}`},
		{name: "this", in: `{{this}} {{{ this }}}`, want: `{{.}} {{{.}}}`},
		{name: "plain sections untouched", in: `{{#items}}{{.}}{{/items}}`, want: `{{#items}}{{.}}{{/items}}`},
		{name: "stray close", in: `{{/if}}`, wantErr: true},
		{name: "unclosed", in: `{{#if a}}`, wantErr: true},
		{name: "missing argument", in: `{{#each}}{{/each}}`, wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := handlebarsToMustache(tt.in)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestGoTemplateEngine_NotFound(t *testing.T) {
	root := writeTemplates(t, map[string]string{"hello.tpl": "Hello {{ name }}"})
	eng, err := NewGoTemplate(engine.Config{Root: root})
	require.NoError(t, err)

	out, err := eng.Render(context.Background(), map[string]any{"name": "go"}, "hello", nil)
	require.NoError(t, err)
	assert.Equal(t, "Hello go", out)

	_, err = eng.Render(context.Background(), nil, "absent", nil)
	assert.ErrorIs(t, err, tmplerrors.ErrTemplateNotFound)
}

func TestStringList(t *testing.T) {
	assert.Equal(t, []string{"a", "b"}, stringList("a, b,,"))
	assert.Equal(t, []string{"x"}, stringList([]any{"x", 1, ""}))
	assert.Nil(t, stringList(42))
}
