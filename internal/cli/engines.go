package cli

import (
	"fmt"
	"slices"

	"github.com/spf13/cobra"
)

func newEnginesCommand(opts *Options) *cobra.Command {
	return &cobra.Command{
		Use:   "engines",
		Short: "List discovered engine plugins and the engines prepared from configuration",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			app, err := openApp(cmd, opts)
			if err != nil {
				return err
			}
			defer app.Close(cmd.Context())

			out := cmd.OutOrStdout()
			b := app.Buffet()
			prepared := b.Engines()

			fmt.Fprintln(out, "Discovered plugins:")
			for _, name := range app.Registry().Names() {
				marker := " "
				if slices.Contains(prepared, name) {
					marker = "*"
				}
				fmt.Fprintf(out, "  %s %s\n", marker, name)
			}

			fmt.Fprintln(out, "Prepared engines:")
			for _, name := range prepared {
				suffix := ""
				if name == b.DefaultEngine() {
					suffix = " (default)"
				}
				fmt.Fprintf(out, "  %s%s\n", name, suffix)
			}
			return nil
		},
	}
}
