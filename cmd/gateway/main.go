// Package main is the entry point for the HPC gateway.
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"hpcgateway/internal/auth"
	"hpcgateway/internal/config"
	"hpcgateway/internal/controller"
	"hpcgateway/internal/gateway"
	"hpcgateway/internal/logger"
	"hpcgateway/internal/observability"
	"hpcgateway/internal/remote/firecrest"
	"hpcgateway/internal/store"
	"hpcgateway/internal/store/postgres"
	"hpcgateway/internal/store/sqlite"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

const serviceName = "hpc-gateway"

func main() {
	migrateFlag := flag.Bool("migrate", false, "Run database migrations before starting (postgres only)")
	configPath := flag.String("config", "", "Path to a yaml config file; environment variables override it")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}

	log := logger.New(cfg.LogLevel)
	if err := run(cfg, *migrateFlag, log); err != nil {
		log.Error("gateway stopped", "error", err)
		os.Exit(1)
	}
}

func run(cfg *config.Config, migrate bool, log *slog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	db, err := openStore(ctx, cfg, migrate, log)
	if err != nil {
		return err
	}
	defer db.Close()

	// Tracing
	shutdownTracer, err := observability.InitTracer(ctx, serviceName, cfg.OTELEndpoint)
	if err != nil {
		return fmt.Errorf("init tracing: %w", err)
	}
	defer func() {
		if err := shutdownTracer(context.Background()); err != nil {
			log.Warn("failed to shutdown tracer", "error", err)
		}
	}()

	// Metrics
	metricsHandler, shutdownMetrics, err := observability.InitMetrics(serviceName)
	if err != nil {
		return fmt.Errorf("init metrics: %w", err)
	}
	defer func() {
		if err := shutdownMetrics(context.Background()); err != nil {
			log.Warn("failed to shutdown metrics", "error", err)
		}
	}()
	registerJobGauge(db, log)

	rc, err := firecrest.New(firecrest.Config{
		BaseURL:          cfg.FirecrestURL,
		Auth:             firecrest.AuthMode(cfg.FirecrestAuth),
		Token:            cfg.FirecrestToken,
		ClientID:         cfg.FirecrestClientID,
		ClientSecret:     cfg.FirecrestClientSecret,
		TokenURL:         cfg.FirecrestTokenURL,
		Timeout:          cfg.RequestTimeout,
		TaskPollInterval: cfg.TaskPollInterval,
	})
	if err != nil {
		return err
	}

	manager, err := gateway.NewManager(db, db, rc, gateway.Config{
		Machine:      cfg.Machine,
		ClusterRoot:  cfg.ClusterHome,
		JobScript:    cfg.JobScript,
		VerifyScript: cfg.VerifyScript,
	}, log)
	if err != nil {
		return err
	}

	srv := controller.New(controller.Options{
		Addr:               fmt.Sprintf(":%d", cfg.HTTPPort),
		CORSAllowedOrigins: cfg.CORSAllowedOrigins,
		RateLimit:          cfg.RateLimit,
		RateLimitBurst:     cfg.RateLimitBurst,
		MaxUploadBytes:     cfg.MaxUploadBytes,
		RequestTimeout:     cfg.RequestTimeout,
		Metrics:            metricsHandler,
	}, controller.Dependencies{
		Resolver: auth.NewResolver(cfg.UserinfoURL, cfg.AllowedEmails, cfg.RequestTimeout),
		Jobs:     manager,
		Files:    gateway.NewRelay(manager),
		DB:       db,
		Logger:   log,
	})

	log.Info("gateway starting", "port", cfg.HTTPPort, "machine", cfg.Machine, "firecrest_auth", cfg.FirecrestAuth)

	// Run shuts the server down gracefully once ctx is cancelled by a signal.
	if err := srv.Run(ctx); err != nil {
		return fmt.Errorf("server stopped: %w", err)
	}
	log.Info("gateway exited properly")
	return nil
}

// openStore picks the backend from the database_url scheme.
func openStore(ctx context.Context, cfg *config.Config, migrate bool, log *slog.Logger) (store.Store, error) {
	driver, err := cfg.StoreDriver()
	if err != nil {
		return nil, err
	}

	if driver == "sqlite" {
		s, err := sqlite.New(cfg.SQLitePath())
		if err != nil {
			return nil, err
		}
		log.Info("using sqlite store", "path", cfg.SQLitePath())
		return s, nil
	}

	s, err := postgres.New(ctx, cfg.DatabaseURL)
	if err != nil {
		return nil, fmt.Errorf("connect to database: %w", err)
	}
	if migrate {
		log.Info("running database migrations")
		if err := postgres.Migrate(s.DB()); err != nil {
			s.Close()
			return nil, fmt.Errorf("migration failed: %w", err)
		}
	}
	if version, dirty, err := postgres.SchemaVersion(s.DB()); err != nil {
		log.Warn("could not read schema version", "error", err)
	} else {
		log.Info("using postgres store", "schema_version", version, "dirty", dirty)
	}
	return s, nil
}

// registerJobGauge exposes job counts per local state, queried on scrape.
func registerJobGauge(db store.Store, log *slog.Logger) {
	meter := otel.Meter(serviceName)
	_, err := meter.Int64ObservableGauge("hpcgateway.jobs",
		metric.WithDescription("Current number of job records by local state"),
		metric.WithInt64Callback(func(ctx context.Context, obs metric.Int64Observer) error {
			counts, err := db.CountJobsByState(ctx)
			if err != nil {
				log.Warn("failed to count jobs", "error", err)
				return nil // a scrape must not fail on a DB error
			}
			for state, n := range counts {
				obs.Observe(n, metric.WithAttributes(attribute.String("state", string(state))))
			}
			return nil
		}),
	)
	if err != nil {
		log.Warn("failed to register job gauge", "error", err)
	}
}
