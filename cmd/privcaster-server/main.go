// Command privcaster-server serves the PrivCaster persistence API over HTTP.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/privcaster/privcaster/internal/config"
	"github.com/privcaster/privcaster/internal/limiter"
	"github.com/privcaster/privcaster/internal/logging"
	"github.com/privcaster/privcaster/internal/migrate"
	"github.com/privcaster/privcaster/internal/repository/postgres"
	"github.com/privcaster/privcaster/internal/server/httpapi"
)

var (
	version   = "dev"
	buildDate = "unknown"
)

// main loads configuration, runs migrations and serves until SIGINT/SIGTERM.
func main() {
	cfgPath := flag.String("config", "", "YAML config file")
	addr := flag.String("addr", "", "listen address (overrides config)")
	dsn := flag.String("dsn", "", "PostgreSQL DSN (overrides config)")
	certFile := flag.String("tls-cert", "", "TLS certificate (PEM); plain HTTP when empty")
	keyFile := flag.String("tls-key", "", "TLS private key (PEM)")
	skipMigrate := flag.Bool("skip-migrate", false, "do not apply migrations on start")
	flag.Parse()

	cfg, err := config.Load(*cfgPath, ".env")
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}
	if *addr != "" {
		cfg.Backend.Addr = *addr
	}
	if *dsn != "" {
		cfg.Backend.DSN = *dsn
	}
	if err := cfg.ValidateBackend(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}

	logger, err := logging.New(cfg.Logging)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}
	defer func() { _ = logger.Sync() }()
	logger.Info("starting",
		zap.String("version", version),
		zap.String("buildDate", buildDate),
		zap.String("addr", cfg.Backend.Addr),
	)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if !*skipMigrate {
		if err := migrate.Up(ctx, cfg.Backend.DSN, logger.Named("migrate")); err != nil {
			logger.Fatal("migrate up", zap.Error(err))
		}
	}

	db, err := postgres.New(ctx, cfg.Backend.DSN, cfg.Backend.MaxConns)
	if err != nil {
		logger.Fatal("postgres", zap.Error(err))
	}
	defer db.Close()

	api := httpapi.New(
		postgres.NewIdentityRepo(db),
		postgres.NewPostRepo(db),
		db.Ping,
		cfg.Backend.AllowedOrigins,
		logger.Named("http"),
	)
	if cfg.Backend.WriteLimit > 0 {
		api.WithLimiter(limiter.NewPG(db.Pool, cfg.Backend.WriteWindow, cfg.Backend.WriteLimit, cfg.Backend.WriteBlock))
	}
	srv := &http.Server{
		Addr:              cfg.Backend.Addr,
		Handler:           api.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		if *certFile != "" {
			logger.Info("listening (TLS)", zap.String("addr", srv.Addr))
			errCh <- srv.ListenAndServeTLS(*certFile, *keyFile)
			return
		}
		logger.Info("listening", zap.String("addr", srv.Addr))
		errCh <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Backend.ShutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.Warn("forced shutdown", zap.Error(err))
			_ = srv.Close()
		}
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			logger.Error("server error", zap.Error(err))
			os.Exit(1)
		}
	}

	logger.Info("shutdown complete")
}
