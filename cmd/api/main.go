package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"exchangeflow/config"
	"exchangeflow/db"
	"exchangeflow/events"
	"exchangeflow/exchange"
	"exchangeflow/logging"
	"exchangeflow/migrations"
	"exchangeflow/participant"
	"exchangeflow/registry"
)

func main() {
	if err := newRootCmd().ExecuteContext(context.Background()); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var configPath string

	root := &cobra.Command{
		Use:           "exchangeflow",
		Short:         "Data exchange orchestration node",
		SilenceUsage:  true,
		SilenceErrors: false,
	}
	root.PersistentFlags().StringVar(&configPath, "config", os.Getenv("EXCHANGEFLOW_CONFIG"), "path to the YAML configuration file")

	root.AddCommand(&cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load(configPath)
			if err != nil {
				return err
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return serve(ctx, cfg)
		},
	})

	root.AddCommand(&cobra.Command{
		Use:   "migrate",
		Short: "Apply the embedded database migrations",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load(configPath)
			if err != nil {
				return err
			}
			return migrate(cmd.Context(), cfg)
		},
	})

	return root
}

func migrate(ctx context.Context, cfg config.Config) error {
	if cfg.Store.Driver != config.DriverPostgres {
		return fmt.Errorf("migrate: store driver %q has no schema", cfg.Store.Driver)
	}
	logger, err := logging.New(logging.Options{Level: cfg.Log.Level, Development: cfg.Log.Development})
	if err != nil {
		return err
	}
	defer func() { _ = logger.Sync() }()

	pool, err := db.NewPool(ctx, cfg.Database.URL, db.PoolOptions{MaxConns: cfg.Database.MaxConns, MinConns: cfg.Database.MinConns})
	if err != nil {
		return err
	}
	defer pool.Close()

	applied, err := db.Migrate(ctx, pool, migrations.FS)
	if err != nil {
		return err
	}
	logger.Info("migrations applied", zap.Strings("files", applied))
	return nil
}

func serve(ctx context.Context, cfg config.Config) error {
	logger, err := logging.New(logging.Options{Level: cfg.Log.Level, Development: cfg.Log.Development})
	if err != nil {
		return err
	}
	defer func() { _ = logger.Sync() }()

	repo, closeStore, err := openStore(ctx, cfg)
	if err != nil {
		return err
	}
	defer closeStore()

	registryClient := registry.New(cfg.ContractService.BaseURL, cfg.CatalogService.BaseURL,
		max(cfg.ContractService.Timeout, cfg.CatalogService.Timeout))
	participants := participant.New(cfg.Endpoint, cfg.Replication.Timeout, cfg.Replication.Secret, cfg.Replication.TokenTTL)

	statuses := exchange.NewStatusService(repo, logger.Named("status"))
	if cfg.NATS.URL != "" {
		publisher, err := events.NewPublisher(cfg.NATS.URL, logger.Named("events"))
		if err != nil {
			return fmt.Errorf("connect nats: %w", err)
		}
		defer publisher.Close()
		statuses.WithNotifier(publisher, cfg.NATS.Subject)
	}

	flows := exchange.NewFlowService(exchange.FlowDeps{
		Contracts:    registryClient,
		Catalog:      registryClient,
		Participants: participants,
		Replicator:   participants,
		Repo:         repo,
	}, cfg.Endpoint, logger.Named("flow"))

	server := NewServer(flows, statuses, cfg.Endpoint, cfg.Replication.Secret, logger.Named("http"))
	httpServer := &http.Server{
		Addr:              cfg.HTTP.Addr,
		Handler:           server.Routes(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("http server listening", zap.String("addr", cfg.HTTP.Addr), logging.WithEndpoint(cfg.Endpoint))
		errCh <- httpServer.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	logger.Info("shutting down")
	return httpServer.Shutdown(shutdownCtx)
}

func openStore(ctx context.Context, cfg config.Config) (exchange.Repository, func(), error) {
	switch cfg.Store.Driver {
	case config.DriverBadger:
		repo, err := exchange.OpenBadgerRepository(cfg.Store.BadgerPath)
		if err != nil {
			return nil, nil, err
		}
		return repo, func() { _ = repo.Close() }, nil
	default:
		pool, err := db.NewPool(ctx, cfg.Database.URL, db.PoolOptions{MaxConns: cfg.Database.MaxConns, MinConns: cfg.Database.MinConns})
		if err != nil {
			return nil, nil, err
		}
		return exchange.NewRepository(pool), pool.Close, nil
	}
}
