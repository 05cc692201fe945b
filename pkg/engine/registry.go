package engine

import (
	"errors"
	"fmt"
	"sort"

	tmplerrors "github.com/kart-io/tmplhub/pkg/errors"
	"github.com/kart-io/tmplhub/pkg/logger"
)

// Registry maps engine names to factories. It is read-only once built.
type Registry struct {
	factories map[string]Factory
}

// Discover loads every plugin once and returns the registry of those that
// loaded. Failures are logged as warnings and the engine is left out. A
// missing dependency of LegacyPlugin is dropped silently.
func Discover(plugins []Plugin, log logger.Logger) *Registry {
	log = logger.OrDiscard(log)
	r := &Registry{factories: make(map[string]Factory, len(plugins))}

	for _, p := range plugins {
		if _, exists := r.factories[p.Name]; exists {
			log.Warn("Duplicate template engine plugin ignored", "plugin", p.Name)
			continue
		}

		factory, err := load(p)
		if err != nil {
			if p.Name == LegacyPlugin && errors.Is(err, tmplerrors.ErrDependencyNotFound) {
				continue
			}
			log.Warn("Unable to load template engine plugin", "plugin", p.Name, "error", err)
			continue
		}

		r.factories[p.Name] = factory
		log.Debug("Template engine plugin loaded", "plugin", p.Name)
	}
	return r
}

func load(p Plugin) (f Factory, err error) {
	defer func() {
		if rec := recover(); rec != nil {
			f, err = nil, tmplerrors.Newf(tmplerrors.CodePluginLoadFailed, "plugin %q panicked: %v", p.Name, rec)
		}
	}()

	if p.Load == nil {
		return nil, tmplerrors.Newf(tmplerrors.CodePluginLoadFailed, "plugin %q has no loader", p.Name)
	}
	f, err = p.Load()
	if err != nil {
		return nil, err
	}
	if f == nil {
		return nil, tmplerrors.Newf(tmplerrors.CodePluginLoadFailed, "plugin %q returned no factory", p.Name)
	}
	return f, nil
}

// Lookup returns the factory registered under name.
func (r *Registry) Lookup(name string) (Factory, bool) {
	if r == nil {
		return nil, false
	}
	f, ok := r.factories[name]
	return f, ok
}

// Has reports whether name is registered.
func (r *Registry) Has(name string) bool {
	_, ok := r.Lookup(name)
	return ok
}

// Names returns the registered engine names in sorted order.
func (r *Registry) Names() []string {
	if r == nil {
		return nil
	}
	names := make([]string, 0, len(r.factories))
	for name := range r.factories {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Len returns the number of registered engines.
func (r *Registry) Len() int {
	if r == nil {
		return 0
	}
	return len(r.factories)
}

// String implements fmt.Stringer.
func (r *Registry) String() string {
	return fmt.Sprintf("Registry%v", r.Names())
}
