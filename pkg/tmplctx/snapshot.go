package tmplctx

import (
	tmplerrors "github.com/kart-io/tmplhub/pkg/errors"
	"github.com/kart-io/tmplhub/pkg/i18n"
)

// HelpersConfigKey is the configuration entry that overrides State.Helpers.
const HelpersConfigKey = "tmplhub.h"

// Names lists the keys every snapshot carries, in addition to "session".
var Names = []string{"c", "tmpl_context", "config", "g", "h", "request", "response", "translator", "ungettext", "_", "N_"}

// Snapshot builds the namespace of well-known request values. "session" is
// present only when state.Environ.Session is set. The returned map is new on
// every call.
func Snapshot(state *State) (map[string]any, error) {
	if state == nil {
		return nil, tmplerrors.New(tmplerrors.CodeContextUnavailable, "no request state")
	}
	if state.Context == nil {
		return nil, tmplerrors.New(tmplerrors.CodeContextUnavailable, "no template context object")
	}
	if state.Config == nil {
		return nil, tmplerrors.New(tmplerrors.CodeContextUnavailable, "no configuration")
	}

	tr := state.Translator
	if tr == nil {
		tr = i18n.Null()
	}

	helpers := state.Helpers
	if h, ok := state.Config[HelpersConfigKey]; ok && h != nil {
		helpers = h
	}

	c := state.Context.Map()
	ns := map[string]any{
		"c":            c,
		"tmpl_context": c,
		"config":       state.Config,
		"g":            state.Globals,
		"h":            helpers,
		"request":      state.Request,
		"response":     state.Response,
		"translator":   tr,
		"ungettext":    tr.Ngettext,
		"_":            tr.Gettext,
		"N_":           i18n.Noop,
	}
	if state.Environ.Session {
		ns["session"] = state.Session
	}
	return ns, nil
}
