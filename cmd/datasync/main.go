package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"tattoo-datasync/infrastructure/config"
	"tattoo-datasync/infrastructure/di"
	"tattoo-datasync/interfaces/cli"
)

func main() {
	// SIGINT/SIGTERM cancel the run between items and chunks
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)

	var container *di.Container
	factory := func(ctx context.Context, opts cli.Options) (*cli.App, error) {
		var (
			cfg *config.Config
			err error
		)
		if opts.ConfigPath != "" {
			cfg, err = config.LoadConfigFile(opts.ConfigPath)
		} else {
			cfg, err = config.LoadConfig()
		}
		if err != nil {
			return nil, fmt.Errorf("failed to load configuration: %w", err)
		}
		if opts.Exclusive {
			cfg.RunLockEnabled = true
		}
		if opts.Verbose {
			cfg.LogLevel = "debug"
		}

		container, err = di.InitializeContainer(ctx, cfg)
		if err != nil {
			return nil, fmt.Errorf("failed to initialize container: %w", err)
		}
		return &cli.App{
			Exporter:   container.Exporter,
			Migrations: container.Migrations,
			Sync:       container.Synchronizer,
			Resolver:   container.Resolver,
			Guard:      container.Guard,
			ExportDir:  cfg.ExportDir,
		}, nil
	}

	root := cli.NewRootCommand(factory)
	root.SetOut(os.Stdout)
	root.SetErr(os.Stderr)

	err := root.ExecuteContext(ctx)
	if container != nil {
		container.Shutdown()
	}
	stop()
	if err != nil {
		os.Exit(1)
	}
}
