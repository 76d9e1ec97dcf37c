package cli

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"strconv"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/playrival/rival-server/internal/factory"
	"github.com/playrival/rival-server/internal/server"
	"github.com/playrival/rival-server/internal/storage/postgres"
)

func newServeCmd() *cobra.Command {
	var storageType string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the coordination engine",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(storageType)
		},
	}

	cmd.Flags().StringVar(&storageType, "storage", factory.StorageTypePostgres,
		"Storage backend: postgres or memory")

	return cmd
}

func runServe(storageType string) error {
	logger := newLogger()

	cfg := factory.Config{
		Logger:      logger,
		StorageType: storageType,
	}
	if storageType == factory.StorageTypePostgres {
		dsn := os.Getenv("DATABASE_URL")
		if dsn == "" {
			logger.Error("DATABASE_URL required when storage is postgres")
			os.Exit(1)
		}
		pgCfg := postgres.DefaultConfig()
		pgCfg.DSN = dsn
		cfg.PostgresConfig = &pgCfg
	}

	app, err := factory.New(cfg)
	if err != nil {
		logger.Error("failed to create application", slog.String("error", err.Error()))
		os.Exit(1)
	}
	defer func() {
		if err := app.Storage.Close(); err != nil {
			logger.Error("failed to close storage", slog.String("error", err.Error()))
		}
	}()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if pgStore, ok := app.Storage.(*postgres.Storage); ok {
		if err := pgStore.RunMigrations(ctx); err != nil {
			logger.Error("failed to run migrations", slog.String("error", err.Error()))
			os.Exit(1)
		}
	}

	// A stale cache is worse than no service: warm-up failure aborts bring-up
	if err := app.Janitor.WarmUp(ctx); err != nil {
		logger.Error("failed to warm cache", slog.String("error", err.Error()))
		os.Exit(1)
	}

	go func() {
		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
		<-sigCh
		logger.Info("shutdown signal received")
		cancel()
	}()

	go app.Janitor.Run(ctx)

	serverConfig := server.DefaultConfig()
	if port := os.Getenv("PORT"); port != "" {
		parsed, err := strconv.Atoi(port)
		if err != nil {
			logger.Error("invalid PORT", slog.String("port", port))
			os.Exit(1)
		}
		serverConfig.Port = parsed
	}

	router := server.NewRouter(app.Hub, app.Storage, logger)
	srv := server.New(router, serverConfig, logger)

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Start()
	}()

	logger.Info("server started", slog.String("addr", srv.Addr()))

	select {
	case err := <-errCh:
		if err != nil {
			logger.Error("server error", slog.String("error", err.Error()))
			os.Exit(1)
		}
	case <-ctx.Done():
		// Stop accepting, then close every socket, then drain HTTP
		app.Hub.Shutdown()
		if err := srv.Shutdown(context.Background()); err != nil {
			logger.Error("shutdown error", slog.String("error", err.Error()))
			os.Exit(1)
		}
	}

	logger.Info("server stopped")
	return nil
}
