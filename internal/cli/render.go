package cli

import (
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/kart-io/tmplhub/pkg/render"
)

type renderFlags struct {
	vars        []string
	attrs       []string
	cacheKey    string
	cacheType   string
	cacheExpire string
	fragment    bool
	format      string
}

// newRenderCommand creates the "render" subcommand. It renders outside of
// any request, so request and response are nil in the namespace.
func newRenderCommand(opts *Options) *cobra.Command {
	var f renderFlags

	cmd := &cobra.Command{
		Use:   "render [engine] template",
		Short: "Render a template to stdout",
		Args:  cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			log := loggerFrom(cmd.Context())

			vars, err := parseAssignments(f.vars)
			if err != nil {
				return err
			}
			attrs, err := parseAssignments(f.attrs)
			if err != nil {
				return err
			}
			if f.cacheKey != "" {
				vars[render.KeyCacheKey] = f.cacheKey
			}
			if f.cacheType != "" {
				vars[render.KeyCacheType] = f.cacheType
			}
			if f.cacheExpire != "" {
				vars[render.KeyCacheExpire] = f.cacheExpire
			}
			if f.fragment {
				vars[render.KeyFragment] = true
			}
			if f.format != "" {
				vars[render.KeyFormat] = f.format
			}

			app, err := openApp(cmd, opts)
			if err != nil {
				return err
			}
			defer app.Close(cmd.Context())

			state := app.NewState(nil, nil)
			for k, v := range attrs {
				state.Context.Set(k, v)
			}

			out, err := render.Render(cmd.Context(), state, vars, args...)
			if err != nil {
				return err
			}
			log.Debug("Rendered template", "template", args[len(args)-1], "bytes", len(out))
			_, err = io.WriteString(cmd.OutOrStdout(), out)
			return err
		},
	}

	cmd.Flags().StringArrayVar(&f.vars, "var", nil, "Template variable as key=value (repeatable)")
	cmd.Flags().StringArrayVar(&f.attrs, "ctx", nil, "Template context attribute as key=value (repeatable)")
	cmd.Flags().StringVar(&f.cacheKey, "cache-key", "", "Cache the output under this key")
	cmd.Flags().StringVar(&f.cacheType, "cache-type", "", "Cache backend (memory, file, dbm, database, redis, multilayer)")
	cmd.Flags().StringVar(&f.cacheExpire, "cache-expire", "", "Cache lifetime in seconds, or \"never\"")
	cmd.Flags().BoolVar(&f.fragment, "fragment", false, "Render the template without its layout")
	cmd.Flags().StringVar(&f.format, "format", "", "Output format passed to the engine")
	return cmd
}

func parseAssignments(items []string) (map[string]any, error) {
	out := make(map[string]any, len(items))
	for _, item := range items {
		key, value, ok := strings.Cut(item, "=")
		key = strings.TrimSpace(key)
		if !ok || key == "" {
			return nil, fmt.Errorf("invalid assignment %q, expected key=value", item)
		}
		out[key] = value
	}
	return out, nil
}
