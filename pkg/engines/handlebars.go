package engines

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/kart-io/tmplhub/pkg/engine"
)

var (
	hbsBlockTag = regexp.MustCompile(`\{\{\s*([#/])\s*(if|unless|each|with)\b\s*([^}]*?)\s*\}\}`)
	hbsThisTag  = regexp.MustCompile(`\{\{(\{?)\s*this\s*(\}?)\}\}`)
)

// NewHandlebars is the handlebars factory. It renders the Handlebars subset
// that maps onto Mustache sections:
//
//	{{#if x}} {{#each x}} {{#with x}}  ->  {{#x}}
//	{{#unless x}}                      ->  {{^x}}
//	{{this}}                           ->  {{.}}
//
// Helpers with arguments and {{else}} are not supported. Partials are plain
// Mustache files.
//
// Options (construction, prefixed "handlebars."):
//   - extensions: partial file extensions, default ".hbs"
func NewHandlebars(cfg engine.Config) (engine.Engine, error) {
	return newMustacheEngine(Handlebars, cfg, ".hbs", handlebarsToMustache), nil
}

// handlebarsToMustache rewrites the block helpers into Mustache sections,
// matching each closing helper to the section it opened.
func handlebarsToMustache(src string) (string, error) {
	var (
		b     strings.Builder
		open  []string
		start int
	)
	for _, m := range hbsBlockTag.FindAllStringSubmatchIndex(src, -1) {
		b.WriteString(src[start:m[0]])
		start = m[1]

		kind, helper, arg := src[m[2]:m[3]], src[m[4]:m[5]], src[m[6]:m[7]]
		if kind == "/" {
			if len(open) == 0 {
				return "", fmt.Errorf("unexpected {{/%s}}", helper)
			}
			name := open[len(open)-1]
			open = open[:len(open)-1]
			fmt.Fprintf(&b, "{{/%s}}", name)
			continue
		}

		if arg == "" {
			return "", fmt.Errorf("{{#%s}} needs an argument", helper)
		}
		if arg == "this" {
			arg = "."
		}
		open = append(open, arg)
		if helper == "unless" {
			fmt.Fprintf(&b, "{{^%s}}", arg)
		} else {
			fmt.Fprintf(&b, "{{#%s}}", arg)
		}
	}
	if len(open) > 0 {
		return "", fmt.Errorf("unclosed block {{#%s}}", open[len(open)-1])
	}
	b.WriteString(src[start:])
	return hbsThisTag.ReplaceAllString(b.String(), "{{$1.$2}}"), nil
}
