// Package engine defines the template engine plugin contract and the
// registry of installed engines.
package engine

import (
	"context"
	"fmt"
	"strings"
)

// Names shared by the facade and the legacy engine.
const (
	// LegacyPlugin is the optional engine whose missing dependency is not reported.
	LegacyPlugin = "pongo2.legacy"
	// GlobalArgsKey holds the ambient snapshot for GlobalScoped engines.
	GlobalArgsKey = "_global_args"
	// ExtraVarsSuffix names the option that carries an engine's extra vars func.
	ExtraVarsSuffix = ".extra_vars_func"
)

// Options are engine-specific render or construction options.
type Options map[string]any

// Bool returns the truthiness of key.
func (o Options) Bool(key string) bool {
	switch v := o[key].(type) {
	case bool:
		return v
	case string:
		return v != "" && v != "false" && v != "0"
	case int:
		return v != 0
	case nil:
		return false
	default:
		return true
	}
}

// String returns key as a string, or "" when absent or nil.
func (o Options) String(key string) string {
	v, ok := o[key]
	if !ok || v == nil {
		return ""
	}
	if s, ok := v.(string); ok {
		return s
	}
	return fmt.Sprint(v)
}

// WithPrefix returns the options whose key starts with prefix, with the
// prefix removed. Engines use it to pick "<engine>.<option>" settings.
func (o Options) WithPrefix(prefix string) Options {
	out := make(Options)
	for k, v := range o {
		if rest, ok := strings.CutPrefix(k, prefix); ok && rest != "" {
			out[rest] = v
		}
	}
	return out
}

// Engine renders a named template against a namespace.
type Engine interface {
	Render(ctx context.Context, namespace map[string]any, template string, opts Options) (string, error)
}

// Naming describes how an engine expects template identifiers.
type Naming int

const (
	// NamingPath leaves template names as given.
	NamingPath Naming = iota
	// NamingDotted joins root and name and replaces separators with dots.
	NamingDotted
)

// Named is implemented by engines that choose their naming style.
type Named interface {
	TemplateNaming() Naming
}

// NamingOf returns the naming style of e, NamingPath by default.
func NamingOf(e Engine) Naming {
	if n, ok := e.(Named); ok {
		return n.TemplateNaming()
	}
	return NamingPath
}

// GlobalScoped is implemented by engines that take the ambient snapshot
// under GlobalArgsKey rather than merged into the namespace. GlobalNames
// lists the names declared as interpreter globals.
type GlobalScoped interface {
	GlobalNames() []string
}

// Reloader is implemented by engines that cache parsed templates.
type Reloader interface {
	Reset()
}

// Config is what a factory receives when an engine is prepared.
type Config struct {
	Root      string
	Options   Options
	ExtraVars func() map[string]any
}

// Factory creates a configured engine instance.
type Factory func(Config) (Engine, error)

// Plugin is one entry of the startup engine table.
type Plugin struct {
	Name string
	Load func() (Factory, error)
}

// Static wraps an always-available factory as a plugin.
func Static(name string, f Factory) Plugin {
	return Plugin{Name: name, Load: func() (Factory, error) { return f, nil }}
}
