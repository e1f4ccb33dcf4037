// Command opkernel runs the operation execution kernel: it loads
// configuration and model definitions, wires the resource providers and
// transports, and serves until interrupted.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/artpar/opkernel/bootstrap"
	"github.com/artpar/opkernel/config"
)

func main() {
	configPath := flag.String("config", "config.yaml", "path to the configuration file")
	flag.Parse()

	if err := run(*configPath); err != nil {
		fmt.Fprintln(os.Stderr, "opkernel:", err)
		os.Exit(1)
	}
}

func run(configPath string) error {
	bootLogger := bootstrap.SetupLogger(config.LoggingConfig{Level: "info", Format: "json"})

	holder, err := config.NewHolder(configPath, bootLogger)
	if err != nil {
		return err
	}
	defer holder.Stop()

	cfg := holder.Get()
	logger := bootstrap.SetupLogger(cfg.Logging)

	app, err := bootstrap.Build(cfg, logger)
	if err != nil {
		return err
	}

	// Log level changes apply on reload; structural changes (models,
	// providers) require a restart.
	holder.OnChange(func(next *config.Config) {
		bootstrap.SetupLogger(next.Logging)
	})
	if err := holder.WatchFile(); err != nil {
		logger.Warn().Err(err).Msg("config file watching disabled")
	}
	holder.WatchSignals()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	return app.Serve(ctx)
}
