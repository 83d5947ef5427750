// Package cli wires the taskboard commands.
package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"taskboard-server/internal/config"
	"taskboard-server/internal/logger"
	"taskboard-server/internal/repository"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "taskboard",
	Short: "Task board API server",
	Long: `Task board API server. Without a subcommand it behaves like "serve".

	taskboard serve
	taskboard init-db
	taskboard remind`,
	SilenceUsage: true,
	RunE:         runServe,
}

// Execute runs the root command with a context cancelled on SIGINT/SIGTERM.
func Execute() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

type app struct {
	cfg   *config.Config
	log   *logrus.Logger
	store *repository.Store
}

// bootstrap loads configuration, builds the logger and opens the store.
func bootstrap(ctx context.Context) (*app, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}

	log := logger.New(cfg.Logging)

	store, err := repository.Open(ctx, cfg.Database)
	if err != nil {
		return nil, err
	}

	log.WithField("driver", store.Driver()).Info("store opened")

	return &app{cfg: cfg, log: log, store: store}, nil
}

func (rt *app) close() {
	if err := rt.store.Close(context.Background()); err != nil {
		rt.log.WithError(err).Warn("failed to close store")
	}
}
