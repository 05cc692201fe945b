// Package engines provides the template engine plugins shipped with tmplhub.
package engines

import (
	"maps"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/kart-io/tmplhub/pkg/engine"
	tmplerrors "github.com/kart-io/tmplhub/pkg/errors"
	"github.com/kart-io/tmplhub/pkg/helpers"
)

// Engine names registered by Builtin.
const (
	Gotext     = "gotext"
	Gohtml     = "gohtml"
	Pongo2     = "pongo2"
	Legacy     = engine.LegacyPlugin
	Gotemplate = "gotemplate"
	Mustache   = "mustache"
	Handlebars = "handlebars"
)

// Builtin returns the startup table of engines. Order matters only for
// duplicate names, where the first entry wins.
func Builtin() []engine.Plugin {
	return []engine.Plugin{
		engine.Static(Gotext, NewText),
		engine.Static(Gohtml, NewHTML),
		engine.Static(Pongo2, NewPongo2),
		{Name: Legacy, Load: loadLegacy},
		engine.Static(Gotemplate, NewGoTemplate),
		engine.Static(Mustache, NewMustache),
		engine.Static(Handlebars, NewHandlebars),
	}
}

// mergeVars builds the render data: extra vars first, the namespace on top.
func mergeVars(extra func() map[string]any, namespace map[string]any) map[string]any {
	out := make(map[string]any, len(namespace)+8)
	if extra != nil {
		maps.Copy(out, extra())
	}
	maps.Copy(out, namespace)
	return out
}

// funcMap returns the helper functions shared by the Go template engines.
func funcMap() map[string]any {
	return helpers.New().FuncMap()
}

func fileExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}

func notFound(engineName, name, root string) error {
	return tmplerrors.Newf(tmplerrors.CodeTemplateNotFound, "template %q not found", name).
		WithEngine(engineName).
		WithTemplate(name).
		WithMetadata("root", root)
}

func renderFailed(engineName, name string, err error) error {
	return tmplerrors.Wrap(tmplerrors.CodeRenderFailed, "render "+name, err).
		WithEngine(engineName).
		WithTemplate(name)
}

// dottedRoot is root the way the facade folds it into a dotted identifier.
func dottedRoot(root string) string {
	if root == "" {
		return ""
	}
	return strings.TrimLeft(strings.ReplaceAll(filepath.Clean(root), string(filepath.Separator), "."), ".")
}

// resolveDotted maps a template identifier back to a file below root. It
// accepts plain paths (relative to root or absolute) and the dotted form
// "<root>.<dir>.<file>.<ext>". Dotted candidates are tried deepest
// directory first.
func resolveDotted(root, name string) (string, bool) {
	if filepath.IsAbs(name) {
		return name, fileExists(name)
	}
	if direct := filepath.Join(root, filepath.FromSlash(name)); fileExists(direct) {
		return direct, true
	}
	if strings.ContainsAny(name, `/\`) {
		return "", false
	}

	rest := name
	if prefix := dottedRoot(root); prefix != "" && prefix != "." {
		rest, _ = strings.CutPrefix(name, prefix+".")
	}
	parts := strings.Split(rest, ".")
	for k := len(parts) - 1; k >= 0; k-- {
		candidate := filepath.Join(root, filepath.Join(parts[:k]...), strings.Join(parts[k:], "."))
		if fileExists(candidate) {
			return candidate, true
		}
	}
	return "", false
}

// parsedCache keeps parsed templates keyed by path until reset.
type parsedCache[T any] struct {
	mu    sync.RWMutex
	items map[string]T
}

func (c *parsedCache[T]) load(key string, parse func() (T, error)) (T, error) {
	c.mu.RLock()
	item, ok := c.items[key]
	c.mu.RUnlock()
	if ok {
		return item, nil
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if item, ok := c.items[key]; ok {
		return item, nil
	}
	item, err := parse()
	if err != nil {
		return item, err
	}
	if c.items == nil {
		c.items = make(map[string]T)
	}
	c.items[key] = item
	return item, nil
}

func (c *parsedCache[T]) reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.items = nil
}

func (c *parsedCache[T]) len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.items)
}

// stringList reads a []string option given as a slice or a comma list.
func stringList(v any) []string {
	switch val := v.(type) {
	case []string:
		return val
	case []any:
		out := make([]string, 0, len(val))
		for _, item := range val {
			if s, ok := item.(string); ok && s != "" {
				out = append(out, s)
			}
		}
		return out
	case string:
		var out []string
		for _, part := range strings.Split(val, ",") {
			if part = strings.TrimSpace(part); part != "" {
				out = append(out, part)
			}
		}
		return out
	default:
		return nil
	}
}
