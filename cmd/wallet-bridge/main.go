// Command wallet-bridge exposes a development wallet over gRPC so the CLI and
// other local clients can sign and submit transactions without a browser.
package main

import (
	"context"
	"encoding/hex"
	"flag"
	"fmt"
	"net"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"

	"github.com/privcaster/privcaster/internal/config"
	"github.com/privcaster/privcaster/internal/logging"
	"github.com/privcaster/privcaster/internal/wallet/devwallet"
	"github.com/privcaster/privcaster/internal/wallet/walletrpc"
)

var (
	version   = "dev"
	buildDate = "unknown"
)

func main() {
	cfgPath := flag.String("config", "", "YAML config file")
	addr := flag.String("addr", "", "listen address (overrides config)")
	balance := flag.Uint64("balance", 0, "initial microcredits (overrides config)")
	certFile := flag.String("tls-cert", "", "TLS certificate (PEM); insecure when empty")
	keyFile := flag.String("tls-key", "", "TLS private key (PEM)")
	flag.Parse()

	cfg, err := config.Load(*cfgPath, ".env")
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}
	if *addr != "" {
		cfg.Bridge.Addr = *addr
	}
	if *balance != 0 {
		cfg.Bridge.Balance = *balance
	}
	if err := cfg.ValidateBridge(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}

	logger, err := logging.New(cfg.Logging)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}
	defer func() { _ = logger.Sync() }()

	var seed []byte
	if cfg.Bridge.SeedHex != "" {
		if seed, err = hex.DecodeString(cfg.Bridge.SeedHex); err != nil {
			logger.Fatal("wallet seed must be hex", zap.Error(err))
		}
	}
	w, err := devwallet.New(seed, cfg.Bridge.Balance, logger.Named("devwallet"))
	if err != nil {
		logger.Fatal("dev wallet", zap.Error(err))
	}
	logger.Info("starting",
		zap.String("version", version),
		zap.String("buildDate", buildDate),
		zap.String("addr", cfg.Bridge.Addr),
		zap.String("account", w.Address()),
		zap.Uint64("balance", w.Balance()),
	)

	var opts []grpc.ServerOption
	if *certFile != "" {
		creds, err := credentials.NewServerTLSFromFile(*certFile, *keyFile)
		if err != nil {
			logger.Fatal("failed to load TLS cert/key", zap.Error(err))
		}
		opts = append(opts, grpc.Creds(creds))
	}

	bridge := walletrpc.NewServer(w, []byte(cfg.Bridge.JWTKey), cfg.Bridge.TokenTTL, logger.Named("rpc"))
	s := walletrpc.NewGRPCServer(bridge, opts...)

	hs := health.NewServer()
	hs.SetServingStatus(walletrpc.ServiceName, healthpb.HealthCheckResponse_SERVING)
	healthpb.RegisterHealthServer(s, hs)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	lis, err := net.Listen("tcp", cfg.Bridge.Addr)
	if err != nil {
		logger.Fatal("listen", zap.Error(err))
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("listening", zap.String("addr", cfg.Bridge.Addr), zap.Bool("tls", *certFile != ""))
		errCh <- s.Serve(lis)
	}()

	select {
	case <-ctx.Done():
		hs.Shutdown()
		done := make(chan struct{})
		go func() {
			s.GracefulStop()
			close(done)
		}()
		select {
		case <-done:
		case <-time.After(5 * time.Second):
			s.Stop()
		}
	case err := <-errCh:
		logger.Error("server error", zap.Error(err))
		os.Exit(1)
	}

	logger.Info("shutdown complete")
}
