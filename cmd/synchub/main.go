// Package main is the entry point for the sync hub server.
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/axonops/axonops-schema-registry/internal/api"
	"github.com/axonops/axonops-schema-registry/internal/config"
	"github.com/axonops/axonops-schema-registry/internal/hub"
	"github.com/axonops/axonops-schema-registry/internal/metrics"
	"github.com/axonops/axonops-schema-registry/internal/storage"
	"github.com/axonops/axonops-schema-registry/internal/storage/badger"
	"github.com/axonops/axonops-schema-registry/internal/storage/memory"
	"github.com/axonops/axonops-schema-registry/internal/storage/mysql"
	"github.com/axonops/axonops-schema-registry/internal/storage/postgres"
)

var (
	version   = "dev"
	commit    = "unknown"
	buildDate = "unknown"
)

func main() {
	configPath := flag.String("config", "", "Path to configuration file")
	showVersion := flag.Bool("version", false, "Show version information")
	flag.Parse()

	if *showVersion {
		fmt.Printf("synchub %s (commit: %s, built: %s)\n", version, commit, buildDate)
		os.Exit(0)
	}

	logLevel := slog.LevelInfo
	if os.Getenv("SYNCHUB_LOG_LEVEL") == "debug" {
		logLevel = slog.LevelDebug
	}

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: logLevel,
	}))
	slog.SetDefault(logger)

	cfg, err := config.Load(*configPath)
	if err != nil {
		logger.Error("failed to load configuration", slog.String("error", err.Error()))
		os.Exit(1)
	}

	logger.Info("starting sync hub",
		slog.String("version", version),
		slog.String("storage", cfg.Storage.Type),
		slog.String("address", cfg.Address()),
	)

	store, err := createStorage(cfg, logger)
	if err != nil {
		logger.Error("failed to create storage backend", slog.String("error", err.Error()))
		os.Exit(1)
	}

	ctx := context.Background()
	if err := store.Connect(ctx, true); err != nil {
		logger.Error("failed to connect storage backend", slog.String("error", err.Error()))
		os.Exit(1)
	}

	m := metrics.New()
	h := hub.New(store, hub.WithLogger(logger), hub.WithMetrics(m))

	if err := provisionNetwork(ctx, h, cfg, logger); err != nil {
		logger.Error("failed to provision network", slog.String("error", err.Error()))
		os.Exit(1)
	}

	server := api.NewServer(cfg, h, logger, api.WithMetrics(m))

	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, syscall.SIGINT, syscall.SIGTERM)

	serverErr := make(chan error, 1)
	go func() {
		serverErr <- server.Start()
	}()

	select {
	case err := <-serverErr:
		if err != nil {
			logger.Error("server error", slog.String("error", err.Error()))
			os.Exit(1)
		}
	case sig := <-shutdown:
		logger.Info("shutting down", slog.String("signal", sig.String()))

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		if err := server.Shutdown(shutdownCtx); err != nil {
			logger.Error("shutdown error", slog.String("error", err.Error()))
		}

		if err := store.Close(); err != nil {
			logger.Error("storage close error", slog.String("error", err.Error()))
		}
	}

	logger.Info("shutdown complete")
}

// provisionNetwork bootstraps the network record on first start when
// auto-provisioning is enabled. It is a no-op if the network already
// exists, so it is safe to run on every startup.
func provisionNetwork(ctx context.Context, h *hub.Hub, cfg *config.Config, logger *slog.Logger) error {
	if !cfg.Network.AutoProvision {
		return nil
	}

	if _, err := h.GetNetwork(ctx); err == nil {
		logger.Info("network already provisioned", slog.String("name", cfg.Network.Name))
		return nil
	} else if !isNetworkNotFound(err) {
		return err
	}

	schemaDoc, err := os.ReadFile(cfg.Network.SchemaFile) // #nosec G304 -- operator-supplied config path
	if err != nil {
		return fmt.Errorf("failed to read schema file %q: %w", cfg.Network.SchemaFile, err)
	}

	logger.Info("auto-provisioning network",
		slog.String("name", cfg.Network.Name),
		slog.String("schema_file", cfg.Network.SchemaFile),
		slog.Bool("fetch_before_send", cfg.Network.FetchBeforeSend),
	)

	_, err = h.InitNetwork(ctx, cfg.Network.Name, string(schemaDoc), cfg.Network.FetchBeforeSend)
	return err
}

func isNetworkNotFound(err error) bool {
	if hubErr, ok := hub.AsHubError(err); ok {
		return hubErr.Kind == hub.KindDatabaseNotFound || hubErr.Kind == hub.KindNotFound
	}
	return false
}

// createStorage creates the appropriate storage backend based on configuration.
func createStorage(cfg *config.Config, logger *slog.Logger) (storage.Storage, error) {
	switch cfg.Storage.Type {
	case "memory":
		logger.Info("using in-memory storage")
		return memory.NewStore(), nil

	case "postgresql", "postgres":
		logger.Info("connecting to PostgreSQL",
			slog.String("host", cfg.Storage.PostgreSQL.Host),
			slog.Int("port", cfg.Storage.PostgreSQL.Port),
			slog.String("database", cfg.Storage.PostgreSQL.Database),
		)
		pgCfg := postgres.Config{
			Host:            cfg.Storage.PostgreSQL.Host,
			Port:            cfg.Storage.PostgreSQL.Port,
			Database:        cfg.Storage.PostgreSQL.Database,
			Username:        cfg.Storage.PostgreSQL.User,
			Password:        cfg.Storage.PostgreSQL.Password,
			SSLMode:         cfg.Storage.PostgreSQL.SSLMode,
			MaxOpenConns:    cfg.Storage.PostgreSQL.MaxOpenConns,
			MaxIdleConns:    cfg.Storage.PostgreSQL.MaxIdleConns,
			ConnMaxLifetime: time.Duration(cfg.Storage.PostgreSQL.ConnMaxLifetime) * time.Second,
		}
		if pgCfg.Host == "" {
			pgCfg.Host = "localhost"
		}
		if pgCfg.Port == 0 {
			pgCfg.Port = 5432
		}
		if pgCfg.Database == "" {
			pgCfg.Database = "synchub"
		}
		if pgCfg.SSLMode == "" {
			pgCfg.SSLMode = "disable"
		}
		if pgCfg.MaxOpenConns == 0 {
			pgCfg.MaxOpenConns = 25
		}
		if pgCfg.MaxIdleConns == 0 {
			pgCfg.MaxIdleConns = 5
		}
		if pgCfg.ConnMaxLifetime == 0 {
			pgCfg.ConnMaxLifetime = 5 * time.Minute
		}
		return postgres.NewStore(pgCfg)

	case "mysql":
		logger.Info("connecting to MySQL",
			slog.String("host", cfg.Storage.MySQL.Host),
			slog.Int("port", cfg.Storage.MySQL.Port),
			slog.String("database", cfg.Storage.MySQL.Database),
		)
		mysqlCfg := mysql.Config{
			Host:            cfg.Storage.MySQL.Host,
			Port:            cfg.Storage.MySQL.Port,
			Database:        cfg.Storage.MySQL.Database,
			Username:        cfg.Storage.MySQL.User,
			Password:        cfg.Storage.MySQL.Password,
			TLS:             cfg.Storage.MySQL.TLS,
			MaxOpenConns:    cfg.Storage.MySQL.MaxOpenConns,
			MaxIdleConns:    cfg.Storage.MySQL.MaxIdleConns,
			ConnMaxLifetime: time.Duration(cfg.Storage.MySQL.ConnMaxLifetime) * time.Second,
		}
		if mysqlCfg.Host == "" {
			mysqlCfg.Host = "localhost"
		}
		if mysqlCfg.Port == 0 {
			mysqlCfg.Port = 3306
		}
		if mysqlCfg.Database == "" {
			mysqlCfg.Database = "synchub"
		}
		if mysqlCfg.TLS == "" {
			mysqlCfg.TLS = "false"
		}
		if mysqlCfg.MaxOpenConns == 0 {
			mysqlCfg.MaxOpenConns = 25
		}
		if mysqlCfg.MaxIdleConns == 0 {
			mysqlCfg.MaxIdleConns = 5
		}
		if mysqlCfg.ConnMaxLifetime == 0 {
			mysqlCfg.ConnMaxLifetime = 5 * time.Minute
		}
		return mysql.NewStore(mysqlCfg)

	case "badger":
		logger.Info("using embedded badger storage", slog.String("path", cfg.Storage.Badger.Path))
		badgerCfg := badger.Config{
			Path: cfg.Storage.Badger.Path,
		}
		if badgerCfg.Path == "" {
			badgerCfg.Path = "./data/hub.badger"
		}
		return badger.NewStore(badgerCfg)

	default:
		return nil, fmt.Errorf("unsupported storage type: %s", cfg.Storage.Type)
	}
}
