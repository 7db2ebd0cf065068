package main

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "net/http/pprof"

	"github.com/getsentry/sentry-go"
	"github.com/joho/godotenv"
	"github.com/jonboulle/clockwork"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	flag "github.com/spf13/pflag"

	"github.com/vesdata/warehouse/loader/pkg/loader"
	"github.com/vesdata/warehouse/loader/pkg/metrics"
	"github.com/vesdata/warehouse/loader/pkg/postgres"
	"github.com/vesdata/warehouse/loader/pkg/server"
	"github.com/vesdata/warehouse/utils/pkg/logger"
)

var (
	// Set by LDFLAGS
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

const (
	defaultListenAddr      = "0.0.0.0:3020"
	defaultMetricsAddr     = "0.0.0.0:0"
	defaultRefreshInterval = 60 * time.Second
	defaultVESEnv          = "dev"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	verboseFlag := flag.Bool("verbose", false, "enable verbose (debug) logging")
	enablePprofFlag := flag.Bool("enable-pprof", false, "enable pprof server")
	metricsAddrFlag := flag.String("metrics-addr", defaultMetricsAddr, "Address to listen on for prometheus metrics")
	listenAddrFlag := flag.String("listen-addr", defaultListenAddr, "HTTP server listen address")
	migrationsEnableFlag := flag.Bool("migrations-enable", false, "enable database migrations on startup")

	// Postgres configuration
	postgresDSNFlag := flag.String("postgres-dsn", "", "Postgres connection string (or set POSTGRES_DSN env var)")

	// Loader configuration
	vesEnvFlag := flag.String("ves-env", defaultVESEnv, "VES environment (dev, staging, prod; or set VES_ENV env var)")
	refreshIntervalFlag := flag.Duration("refresh-interval", defaultRefreshInterval, "interval between load cycles")
	mockSourceFlag := flag.Bool("mock-source", false, "generate synthetic source data instead of reading the operational system (for dev/staging)")
	mockRequestsFlag := flag.Int("mock-requests", 25, "number of synthetic exam requests when --mock-source is enabled")

	flag.Parse()

	// Load .env file. godotenv does not override existing env vars, so
	// process env and explicit exports take precedence.
	_ = godotenv.Load()

	// Override flags with environment variables if set
	if envDSN := os.Getenv("POSTGRES_DSN"); envDSN != "" {
		*postgresDSNFlag = envDSN
	}
	if envVESEnv := os.Getenv("VES_ENV"); envVESEnv != "" {
		*vesEnvFlag = envVESEnv
	}
	if os.Getenv("MOCK_SOURCE") == "true" {
		*mockSourceFlag = true
	}

	log := logger.New(*verboseFlag)

	log.Info("loader starting",
		"version", version,
		"commit", commit,
		"ves_env", *vesEnvFlag,
		"mock_source", *mockSourceFlag,
	)

	if sentryDSN := os.Getenv("SENTRY_DSN"); sentryDSN != "" {
		sentryEnv := os.Getenv("SENTRY_ENVIRONMENT")
		if sentryEnv == "" {
			sentryEnv = *vesEnvFlag
		}
		err := sentry.Init(sentry.ClientOptions{
			Dsn:         sentryDSN,
			Environment: sentryEnv,
			Release:     fmt.Sprintf("warehouse-loader@%s", version),
		})
		if err != nil {
			log.Warn("failed to initialize sentry", "error", err)
		} else {
			log.Info("sentry initialized", "environment", sentryEnv)
			defer sentry.Flush(2 * time.Second)
		}
	}

	// Set up signal handling
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go func() {
		sig := <-sigCh
		log.Info("server: received signal", "signal", sig.String())
		cancel()
	}()

	if *enablePprofFlag {
		go func() {
			log.Info("starting pprof server", "address", "localhost:6060")
			err := http.ListenAndServe("localhost:6060", nil)
			if err != nil {
				log.Error("failed to start pprof server", "error", err)
			}
		}()
	}

	var metricsServerErrCh = make(chan error, 1)
	if *metricsAddrFlag != "" {
		metrics.BuildInfo.WithLabelValues(version, commit, date).Set(1)
		go func() {
			listener, err := net.Listen("tcp", *metricsAddrFlag)
			if err != nil {
				log.Error("failed to start prometheus metrics server listener", "error", err)
				metricsServerErrCh <- err
				return
			}
			log.Info("prometheus metrics server listening", "address", listener.Addr().String())
			http.Handle("/metrics", promhttp.Handler())
			if err := http.Serve(listener, nil); err != nil {
				log.Error("failed to start prometheus metrics server", "error", err)
				metricsServerErrCh <- err
				return
			}
		}()
	}

	if *postgresDSNFlag == "" {
		return fmt.Errorf("postgres-dsn is required")
	}

	db, err := postgres.NewClient(ctx, postgres.Config{
		Logger: log,
		DSN:    *postgresDSNFlag,
	})
	if err != nil {
		return fmt.Errorf("failed to create postgres client: %w", err)
	}
	defer db.Close()
	log.Info("postgres client initialized")

	var source loader.Source
	if *mockSourceFlag {
		source = loader.NewMockSource(loader.MockSourceConfig{
			Logger:   log,
			Requests: *mockRequestsFlag,
		})
	} else {
		// The operational extract feed is wired per deployment; only
		// the synthetic source ships with the loader binary.
		return fmt.Errorf("no source configured: pass --mock-source or set MOCK_SOURCE=true")
	}
	defer func() {
		if err := source.Close(); err != nil {
			log.Warn("failed to close source", "error", err)
		}
	}()

	srv, err := server.New(ctx, server.Config{
		Logger:            log,
		ListenAddr:        *listenAddrFlag,
		ReadHeaderTimeout: 30 * time.Second,
		ShutdownTimeout:   10 * time.Second,
		VersionInfo: server.VersionInfo{
			Version: version,
			Commit:  commit,
			Date:    date,
		},
		LoaderConfig: loader.Config{
			Logger:           log,
			Clock:            clockwork.NewRealClock(),
			DB:               db,
			VESEnv:           *vesEnvFlag,
			MigrationsEnable: *migrationsEnableFlag,
			MigrationsConfig: postgres.MigrationConfig{
				DSN: *postgresDSNFlag,
			},
			RefreshInterval: *refreshIntervalFlag,
			Source:          source,
		},
	})
	if err != nil {
		return fmt.Errorf("failed to create server: %w", err)
	}

	serverErrCh := make(chan error, 1)
	go func() {
		if err := srv.Run(ctx); err != nil {
			serverErrCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		log.Info("server: shutting down", "reason", ctx.Err())
		return nil
	case err := <-serverErrCh:
		log.Error("server: server error causing shutdown", "error", err)
		return err
	case err := <-metricsServerErrCh:
		log.Error("server: metrics server error causing shutdown", "error", err)
		return err
	}
}
