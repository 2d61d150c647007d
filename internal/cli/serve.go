package cli

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"go-seqstore/internal/config"
	"go-seqstore/internal/httpapi"
	"go-seqstore/internal/migrations"
	"go-seqstore/internal/store"
)

func newServeCommand() *cobra.Command {
	var configPath string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the seqstore daemon",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd.Context(), configPath)
		},
	}

	cmd.Flags().StringVar(&configPath, "config", "", "path to a YAML config file")
	return cmd
}

func runServe(ctx context.Context, configPath string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	slog.Info("loaded config", "server", cfg.Server, "database", cfg.Database)

	es, err := store.NewEventStore(ctx, cfg.Database.DSN)
	if err != nil {
		return fmt.Errorf("open event store: %w", err)
	}
	defer es.Close()

	if cfg.Database.AutoMigrate {
		sqlDB, err := migrations.OpenDB(cfg.Database.DSN)
		if err != nil {
			return fmt.Errorf("open migration connection: %w", err)
		}
		defer sqlDB.Close()
		if err := migrations.Run(sqlDB, true); err != nil {
			return fmt.Errorf("run migrations: %w", err)
		}
	}

	srv := httpapi.New(fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port), es, "release")

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	go func() {
		quit := make(chan os.Signal, 1)
		signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
		<-quit
		slog.Info("signal received, shutting down")
		cancel()
	}()

	if err := srv.Run(runCtx); err != nil {
		return fmt.Errorf("serve: %w", err)
	}
	slog.Info("shutdown complete")
	return nil
}
