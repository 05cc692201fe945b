package main

import (
	"context"
	"os"
	"os/signal"

	"github.com/kart-io/tmplhub/internal/cli"
	"github.com/kart-io/tmplhub/pkg/logger"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	log := logger.NewTint(os.Stderr, logger.Warn)
	if err := cli.Execute(ctx, os.Args[1:], os.Stdout, log); err != nil {
		log.Error("command failed", "error", err)
		stop()
		os.Exit(1)
	}
}
