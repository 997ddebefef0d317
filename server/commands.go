package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v3"
	"github.com/meikuraledutech/dagstore/api"
	"github.com/meikuraledutech/dagstore/config"
	"github.com/spf13/cobra"
)

const shutdownTimeout = 10 * time.Second

func newRootCmd() *cobra.Command {
	var configPath string

	root := &cobra.Command{
		Use:          "dagstore",
		Short:        "Persist directed acyclic graphs",
		SilenceUsage: true,
	}
	root.PersistentFlags().StringVarP(&configPath, "config", "c", os.Getenv("DAGSTORE_CONFIG"), "path to a YAML config file")

	load := func() (config.Config, *slog.Logger, error) {
		cfg, err := config.Load(configPath)
		if err != nil {
			return config.Config{}, nil, err
		}
		logger := cfg.Log.NewLogger(os.Stderr)
		slog.SetDefault(logger)
		return cfg, logger, nil
	}

	serve := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP server",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, err := load()
			if err != nil {
				return err
			}
			return runServe(cmd.Context(), cfg, logger)
		},
	}

	schema := &cobra.Command{
		Use:   "schema",
		Short: "Manage the store schema",
	}
	schema.AddCommand(
		&cobra.Command{
			Use:   "create",
			Short: "Create tables if they don't exist",
			RunE: func(cmd *cobra.Command, args []string) error {
				return withStore(cmd.Context(), load, func(ctx context.Context, s storeHandle) error {
					if err := s.CreateSchema(ctx); err != nil {
						return fmt.Errorf("schema: %w", err)
					}
					fmt.Fprintln(cmd.OutOrStdout(), "schema created")
					return nil
				})
			},
		},
		&cobra.Command{
			Use:   "drop",
			Short: "Drop all tables and data",
			RunE: func(cmd *cobra.Command, args []string) error {
				return withStore(cmd.Context(), load, func(ctx context.Context, s storeHandle) error {
					if err := s.DropSchema(ctx); err != nil {
						return fmt.Errorf("schema: %w", err)
					}
					fmt.Fprintln(cmd.OutOrStdout(), "schema dropped")
					return nil
				})
			},
		},
	)

	root.AddCommand(serve, schema)
	return root
}

func withStore(ctx context.Context, load func() (config.Config, *slog.Logger, error), fn func(context.Context, storeHandle) error) error {
	cfg, logger, err := load()
	if err != nil {
		return err
	}
	store, err := openStore(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer store.Close()
	return fn(ctx, store)
}

func runServe(ctx context.Context, cfg config.Config, logger *slog.Logger) error {
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	store, err := openStore(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer store.Close()

	// Badger has no schema and postgres tables are created idempotently.
	if err := store.CreateSchema(ctx); err != nil {
		return fmt.Errorf("schema: %w", err)
	}

	app := api.New(store, logger).App()

	errCh := make(chan error, 1)
	go func() {
		logger.Info("listening", "addr", cfg.ListenAddr, "driver", cfg.Store.Driver, "validation", cfg.Validation.Mode)
		errCh <- app.Listen(cfg.ListenAddr, fiber.ListenConfig{DisableStartupMessage: true})
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		logger.Info("shutting down")
		if err := app.ShutdownWithTimeout(shutdownTimeout); err != nil && !errors.Is(err, context.Canceled) {
			return fmt.Errorf("shutdown: %w", err)
		}
		return nil
	}
}
