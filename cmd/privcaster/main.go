// Command privcaster is a terminal client for PrivCaster: it connects a
// wallet, shows the feed and submits posts and tips.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"

	"go.uber.org/zap"
	"google.golang.org/grpc"

	"github.com/privcaster/privcaster/internal/config"
	"github.com/privcaster/privcaster/internal/logging"
	"github.com/privcaster/privcaster/internal/persistence"
	"github.com/privcaster/privcaster/internal/session"
	"github.com/privcaster/privcaster/internal/wallet"
	"github.com/privcaster/privcaster/internal/wallet/devwallet"
	"github.com/privcaster/privcaster/internal/wallet/walletrpc"
)

func usage() {
	fmt.Fprintf(os.Stderr, `privcaster CLI
Usage:
  privcaster [-config file] [-backend URL] [-bridge HOST:PORT | -dev] [-json] <cmd> [args]

Commands:
  version
  connect | whoami                          wallet address and identity
  identity                                  create the identity now if missing
  feed | refresh                            show the feed
  post [-private] <text | ->                publish a cast
  like <post-id>                            toggle like (this session only)
  reply <post-id>                           count a reply (this session only)
  tip -author <addr> -amount <n> -post <id> tip an author
  rm <post-id>                              delete a post
  records [-program id]                     list wallet records
  decrypt <ciphertext>
  sign <message | ->
  transfer -to <addr> -amount <n> [-fee n]
  pool -total <n> -recipients <n> -criteria <text>
                                            open a private payout pool
  claim -pool <record> -amount <n> -proof <text>
  group <name>                              create a private group
  member -group <record> -address <addr>    add a group member
  group-payout -pool <record> -membership <record> -amount <n>
  history [-program id]                     wallet transaction history
  shell                                     run commands in one session
`)
	os.Exit(2)
}

var (
	version   = "dev"
	buildDate = "unknown"
)

func main() {
	cfgPath := flag.String("config", "", "YAML config file")
	backend := flag.String("backend", "", "backend base URL (overrides config)")
	bridge := flag.String("bridge", "", "wallet bridge address (overrides config)")
	dev := flag.Bool("dev", false, "use an in-process dev wallet instead of the bridge")
	useTLS := flag.Bool("tls", false, "use TLS to the bridge")
	caPath := flag.String("cacert", "", "bridge CA cert (PEM)")
	skipVerify := flag.Bool("insecure", false, "skip bridge cert verify (dev)")
	asJSON := flag.Bool("json", false, "JSON output")
	verbose := flag.Bool("v", false, "log to stderr")
	timeout := flag.Duration("timeout", 0, "overall timeout for one-shot commands")
	flag.Usage = usage
	flag.Parse()

	if flag.NArg() < 1 {
		usage()
	}

	cfg, err := config.Load(*cfgPath, ".env")
	if err != nil {
		fail(err)
	}
	if *backend != "" {
		cfg.Client.BackendURL = *backend
	}
	if *bridge != "" {
		cfg.Client.BridgeAddr = *bridge
	}

	logger := zap.NewNop()
	if *verbose {
		if logger, err = logging.New(config.Logging{Level: cfg.Logging.Level, Format: "console"}); err != nil {
			fail(err)
		}
	}
	defer func() { _ = logger.Sync() }()

	capability, closeCap, err := openWallet(cfg, *dev, *useTLS, *caPath, *skipVerify, logger)
	if err != nil {
		fail(err)
	}
	defer closeCap()

	sess := newSession(cfg, capability, logger)

	ctx := context.Background()
	if *timeout > 0 && flag.Arg(0) != "shell" {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, *timeout)
		defer cancel()
	}

	a := &app{sess: sess, in: os.Stdin, out: os.Stdout, json: *asJSON}
	err = a.run(ctx, flag.Args())
	if flag.Arg(0) != "shell" && flag.Arg(0) != "version" {
		_ = sess.Close(context.Background())
	}
	if errors.Is(err, errUsage) {
		fmt.Fprintln(os.Stderr, err)
		usage()
	}
	if err != nil {
		fail(err)
	}
}

func openWallet(cfg *config.Config, dev, useTLS bool, caPath string, skipVerify bool, log *zap.Logger) (wallet.Capability, func(), error) {
	if dev {
		seed, err := loadOrCreateSeed()
		if err != nil {
			return nil, nil, fmt.Errorf("dev wallet seed: %w", err)
		}
		w, err := devwallet.New(seed, cfg.Bridge.Balance, log.Named("devwallet"))
		if err != nil {
			return nil, nil, err
		}
		return w, func() {}, nil
	}
	creds, err := loadTLS(useTLS, caPath, skipVerify)
	if err != nil {
		return nil, nil, err
	}
	c, conn, err := walletrpc.Dial(cfg.Client.BridgeAddr, grpc.WithTransportCredentials(creds))
	if err != nil {
		return nil, nil, err
	}
	return c, func() { _ = conn.Close() }, nil
}

func newSession(cfg *config.Config, capability wallet.Capability, log *zap.Logger) *session.Session {
	wc := wallet.NewClient(capability, wallet.Config{
		Network: wallet.Network(cfg.Client.Network),
		Program: cfg.Client.Program,
		Fees: wallet.Fees{
			Identity:    cfg.Client.Fees.Identity,
			Cast:        cfg.Client.Fees.Cast,
			Tip:         cfg.Client.Fees.Tip,
			PayoutPool:  cfg.Client.Fees.PayoutPool,
			Claim:       cfg.Client.Fees.Claim,
			Group:       cfg.Client.Fees.Group,
			AddMember:   cfg.Client.Fees.AddMember,
			GroupPayout: cfg.Client.Fees.GroupPayout,
		},
		Timeout: cfg.Client.WalletTimeout,
	}, log.Named("wallet"))
	store := persistence.NewHTTPClient(cfg.Client.BackendURL, log.Named("backend"),
		persistence.WithRetry(cfg.Client.Retries, cfg.Client.RetryBackoff))
	return session.New(wc, store, session.Config{InitialReputation: cfg.Client.InitialReputation}, log)
}

func fail(err error) {
	fmt.Fprintln(os.Stderr, describe(err))
	os.Exit(1)
}
