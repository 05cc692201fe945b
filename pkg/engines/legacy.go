package engines

import (
	"context"
	"maps"
	"slices"

	"github.com/flosch/pongo2/v6"

	"github.com/kart-io/tmplhub/pkg/engine"
	tmplerrors "github.com/kart-io/tmplhub/pkg/errors"
	"github.com/kart-io/tmplhub/pkg/i18n"
)

// Render options understood by the legacy engine.
const (
	OptOutputEncoding = "output_encoding"
	OptEncodingErrors = "encoding_errors"
	OptDisableUnicode = "disable_unicode"
)

// legacyFilters are the pongo2 builtins the legacy layout relies on.
var legacyFilters = []string{"safe", "escape"}

func loadLegacy() (engine.Factory, error) {
	for _, f := range legacyFilters {
		if !pongo2.FilterExists(f) {
			return nil, tmplerrors.Newf(tmplerrors.CodeDependencyNotFound, "pongo2 filter %q not available", f).
				WithEngine(Legacy)
		}
	}
	return NewLegacy, nil
}

// LegacyEngine is a pongo2 engine that receives the ambient snapshot as
// interpreter globals under engine.GlobalArgsKey instead of merged into the
// namespace.
//
// Options (construction, prefixed "pongo2.legacy."):
//   - allow_globals: names declared as globals, as a list or comma string
//   - layout: template wrapping every non-fragment render as {{ content }}
//   - debug: see Pongo2Engine
//
// Render options: fragment, output_encoding, encoding_errors, disable_unicode.
type LegacyEngine struct {
	*Pongo2Engine
	globals []string
	layout  string
}

var _ engine.GlobalScoped = (*LegacyEngine)(nil)

// NewLegacy is the pongo2.legacy factory.
func NewLegacy(cfg engine.Config) (engine.Engine, error) {
	base, err := newPongo2Engine(Legacy, cfg)
	if err != nil {
		return nil, err
	}
	opts := cfg.Options.WithPrefix(Legacy + ".")
	return &LegacyEngine{
		Pongo2Engine: base,
		globals:      stringList(opts["allow_globals"]),
		layout:       opts.String("layout"),
	}, nil
}

// GlobalNames implements engine.GlobalScoped: the allow_globals names
// followed by the template set's own globals.
func (e *LegacyEngine) GlobalNames() []string {
	names := slices.Clone(e.globals)
	for _, k := range slices.Sorted(maps.Keys(e.set.Globals)) {
		if !slices.Contains(names, k) {
			names = append(names, k)
		}
	}
	return names
}

// Render executes name. Extra vars extend the globals, and the remaining
// namespace entries are the template arguments.
func (e *LegacyEngine) Render(_ context.Context, namespace map[string]any, name string, opts engine.Options) (string, error) {
	data := make(map[string]any, len(namespace)+16)
	if globals, ok := namespace[engine.GlobalArgsKey].(map[string]any); ok {
		maps.Copy(data, globals)
	}
	if e.extraVars != nil {
		maps.Copy(data, e.extraVars())
	}
	for k, v := range namespace {
		if k != engine.GlobalArgsKey {
			data[k] = v
		}
	}

	out, err := e.execute(name, data)
	if err != nil {
		return "", err
	}

	if e.layout != "" && !opts.Bool("fragment") {
		data["content"] = pongo2.AsSafeValue(out)
		if out, err = e.execute(e.layout, data); err != nil {
			return "", err
		}
	}

	if enc := opts.String(OptOutputEncoding); enc != "" {
		encoded, err := i18n.Encode(out, enc, opts.String(OptEncodingErrors))
		if err != nil {
			return "", renderFailed(Legacy, name, err)
		}
		out = string(encoded)
	}
	return out, nil
}
