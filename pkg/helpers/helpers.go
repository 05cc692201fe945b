// Package helpers is the default "h" module exposed to templates.
package helpers

import (
	"fmt"
	"reflect"
	"strings"
	"unicode/utf8"

	"github.com/microcosm-cc/bluemonday"
)

// Helpers groups the functions templates reach through "h".
type Helpers struct {
	ugc    *bluemonday.Policy
	strict *bluemonday.Policy
}

// New creates the default helpers.
func New() *Helpers {
	return &Helpers{
		ugc:    bluemonday.UGCPolicy(),
		strict: bluemonday.StrictPolicy(),
	}
}

// Sanitize removes unsafe markup while keeping user-generated-content tags.
func (h *Helpers) Sanitize(s string) string {
	return h.ugc.Sanitize(s)
}

// StripTags removes all markup.
func (h *Helpers) StripTags(s string) string {
	return h.strict.Sanitize(s)
}

// Truncate shortens s to at most n runes, ending with "..." when cut.
func (h *Helpers) Truncate(s string, n int) string {
	if n <= 0 {
		return ""
	}
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	if n <= 3 {
		return string([]rune(s)[:n])
	}
	return string([]rune(s)[:n-3]) + "..."
}

// Default returns fallback when v is nil, empty, or a zero value.
func (h *Helpers) Default(v, fallback any) any {
	if v == nil {
		return fallback
	}
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.String, reflect.Slice, reflect.Map, reflect.Array:
		if rv.Len() == 0 {
			return fallback
		}
	case reflect.Pointer, reflect.Interface:
		if rv.IsNil() {
			return fallback
		}
	}
	return v
}

// Join renders the elements of a slice separated by sep.
func (h *Helpers) Join(items any, sep string) string {
	rv := reflect.ValueOf(items)
	if rv.Kind() != reflect.Slice && rv.Kind() != reflect.Array {
		return fmt.Sprint(items)
	}
	parts := make([]string, rv.Len())
	for i := range parts {
		parts[i] = fmt.Sprint(rv.Index(i).Interface())
	}
	return strings.Join(parts, sep)
}

// FuncMap exposes the helpers as template functions.
func (h *Helpers) FuncMap() map[string]any {
	return map[string]any{
		"sanitize":  h.Sanitize,
		"striptags": h.StripTags,
		"truncate":  h.Truncate,
		"default":   h.Default,
		"join":      h.Join,
	}
}
