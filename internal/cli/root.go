// Package cli defines the tmplhub command-line interface.
package cli

import (
	"context"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/kart-io/tmplhub"
	"github.com/kart-io/tmplhub/pkg/config"
	"github.com/kart-io/tmplhub/pkg/logger"
)

// Options stores global CLI options shared between commands.
type Options struct {
	ConfigPath string
	Root       string
	Engine     string
	LogLevel   string
}

// Execute builds the root command, runs it with args and returns any error.
func Execute(ctx context.Context, args []string, out io.Writer, log logger.Logger) error {
	if log == nil {
		log = logger.NewTint(os.Stderr, logger.Warn)
	}
	cmd := newRootCommand(&Options{LogLevel: "warn"}, log)
	cmd.SetArgs(args)
	if out != nil {
		cmd.SetOut(out)
	}
	return cmd.ExecuteContext(ctx)
}

func newRootCommand(opts *Options, log logger.Logger) *cobra.Command {
	cmd := &cobra.Command{
		Use:           "tmplhub",
		Short:         "tmplhub renders templates through pluggable engines",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			if cmd.Flags().Changed("log-level") {
				log = logger.NewTint(cmd.ErrOrStderr(), logger.ParseLevel(opts.LogLevel))
			}
			cmd.SetContext(context.WithValue(cmd.Context(), loggerKey{}, log))
			return nil
		},
	}

	cmd.PersistentFlags().StringVarP(&opts.ConfigPath, "config", "c", "", "Path to a YAML configuration file")
	cmd.PersistentFlags().StringVar(&opts.Root, "root", "", "Template root directory")
	cmd.PersistentFlags().StringVar(&opts.Engine, "default-engine", "", "Engine used when none is named")
	cmd.PersistentFlags().StringVar(&opts.LogLevel, "log-level", opts.LogLevel, "Log level (debug, info, warn, error)")

	cmd.AddCommand(
		newEnginesCommand(opts),
		newRenderCommand(opts),
	)
	return cmd
}

type loggerKey struct{}

func loggerFrom(ctx context.Context) logger.Logger {
	if l, ok := ctx.Value(loggerKey{}).(logger.Logger); ok && l != nil {
		return l
	}
	return logger.Discard
}

// openApp loads the configuration the flags describe and builds an App.
func openApp(cmd *cobra.Command, opts *Options) (*tmplhub.App, error) {
	cfgOpts := []config.Option{
		config.WithEnvDefaults(),
		config.WithLogger(loggerFrom(cmd.Context())),
	}
	if opts.Root != "" {
		cfgOpts = append(cfgOpts, config.WithTemplateRoot(opts.Root))
	}
	if opts.Engine != "" {
		cfgOpts = append(cfgOpts, config.WithDefaultEngine(opts.Engine))
	}

	var (
		cfg *config.Config
		err error
	)
	if opts.ConfigPath != "" {
		cfg, err = config.Load(opts.ConfigPath, cfgOpts...)
	} else {
		cfg, err = config.New(cfgOpts...)
	}
	if err != nil {
		return nil, err
	}
	return tmplhub.New(cfg)
}
