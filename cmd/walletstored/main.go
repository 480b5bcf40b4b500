// Package main provides the walletstored daemon - a multi-chain wallet
// query and account store served over JSON-RPC.
package main

import (
	"context"
	"flag"
	"io"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/klingon-exchange/walletstore/internal/account"
	"github.com/klingon-exchange/walletstore/internal/chain"
	"github.com/klingon-exchange/walletstore/internal/config"
	"github.com/klingon-exchange/walletstore/internal/keyring"
	"github.com/klingon-exchange/walletstore/internal/notify"
	"github.com/klingon-exchange/walletstore/internal/queries"
	"github.com/klingon-exchange/walletstore/internal/query"
	"github.com/klingon-exchange/walletstore/internal/router"
	"github.com/klingon-exchange/walletstore/internal/rpc"
	"github.com/klingon-exchange/walletstore/internal/storage"
	"github.com/klingon-exchange/walletstore/pkg/logging"
)

var (
	version = "0.1.0-dev"
	commit  = "unknown"
)

func main() {
	var (
		dataDir     = flag.String("data-dir", "~/.walletstore", "Data directory")
		configFile  = flag.String("config", "", "Config file path (default: <data-dir>/config.yaml)")
		apiAddr     = flag.String("api", "", "JSON-RPC API address, overrides config")
		logLevel    = flag.String("log-level", "", "Log level (debug, info, warn, error), overrides config")
		noRegistry  = flag.Bool("no-registry", false, "Skip the chain registry sync")
		showVersion = flag.Bool("version", false, "Show version and exit")
	)
	flag.Parse()

	log := logging.New(&logging.Config{
		Level:      "info",
		TimeFormat: time.TimeOnly,
	})
	logging.SetDefault(log)

	if *showVersion {
		log.Infof("walletstored %s (commit: %s)", version, commit)
		os.Exit(0)
	}

	configDir := *dataDir
	if *configFile != "" {
		configDir = filepath.Dir(*configFile)
	}
	cfg, err := config.LoadConfig(configDir)
	if err != nil {
		log.Fatal("Failed to load config", "error", err)
	}

	if *apiAddr != "" {
		cfg.RPC.Addr = *apiAddr
	}
	if *logLevel != "" {
		cfg.Logging.Level = *logLevel
	}
	if *noRegistry {
		cfg.Chains.RegistrySource = ""
	}

	var logOut io.Writer = os.Stderr
	if cfg.Logging.File != "" {
		f, err := os.OpenFile(cfg.Logging.File, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0600)
		if err != nil {
			log.Fatal("Failed to open log file", "error", err)
		}
		defer f.Close()
		logOut = io.MultiWriter(os.Stderr, f)
	}
	log = logging.New(&logging.Config{
		Level:      cfg.Logging.Level,
		Format:     cfg.Logging.Format,
		TimeFormat: time.TimeOnly,
		Output:     logOut,
	})
	logging.SetDefault(log)

	log.Info("Config loaded", "path", config.ConfigPath(configDir))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	store, err := storage.New(&storage.Config{DataDir: cfg.Storage.DataDir})
	if err != nil {
		log.Fatal("Failed to initialize storage", "error", err)
	}
	defer store.Close()
	log.Info("Storage initialized", "path", store.Path())

	chains := chain.NewStore(chain.Defaults()...)
	if dir := cfg.ChainsPath(); dir != "" {
		infos, err := chain.LoadRegistryDir(dir)
		if err != nil {
			log.Warn("Failed to load chains", "dir", dir, "error", err)
		}
		for _, info := range infos {
			if err := chains.Add(info); err != nil {
				log.Warn("Skipping chain", "chain", info.ChainID, "error", err)
			}
		}
	}
	if cfg.Chains.RegistrySource != "" {
		go func() {
			if _, err := chains.SyncRegistry(ctx, cfg.Chains.RegistrySource, cfg.RegistryPath()); err != nil {
				log.Warn("Chain registry sync failed", "source", cfg.Chains.RegistrySource, "error", err)
			}
		}()
	}

	shared := query.NewSharedContext(query.ContextOptions{
		HTTPClient: &http.Client{Timeout: cfg.Query.HTTPTimeout},
		Store:      store,
		Registerer: prometheus.DefaultRegisterer,
		Logger:     log,
	})
	qs := queries.New(shared, chains, store, cfg.QueriesOptions())

	kr, err := keyring.NewLocal(ctx, store, "default")
	if err != nil {
		log.Fatal("Failed to open keyring", "error", err)
	}
	log.Info("Keyring opened", "status", kr.Status())

	r := router.New()
	r.AddHandler(account.SignRoute, account.NewSignHandler(kr, chains))

	notifier := &notify.Multi{}
	notifier.Add(notify.NewLogNotifier(log))

	accounts := account.NewStore(qs, kr, r, notifier, account.Options{
		Retry:         cfg.TrackRetry(),
		BroadcastMode: cfg.Account.BroadcastMode,
	})
	defer accounts.Close()

	var rpcServer *rpc.Server
	if cfg.RPC.Enabled {
		var gatherer prometheus.Gatherer
		if cfg.RPC.Metrics {
			gatherer = prometheus.DefaultGatherer
		}
		rpcServer = rpc.NewServer(qs, kr, accounts, rpc.Options{Registerer: prometheus.DefaultRegisterer, Gatherer: gatherer})
		notifier.Add(rpcServer.Notifier())
		if err := rpcServer.Start(cfg.RPC.Addr); err != nil {
			log.Fatal("Failed to start RPC server", "error", err)
		}
	}

	printBanner(log, cfg, len(chains.List()))

	go func() {
		ticker := time.NewTicker(60 * time.Second)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				log.Info("Status", "keyring", kr.Status(), "chains", len(chains.List()))
				if cfg.Storage.CacheRetention > 0 {
					n, err := store.Prune(ctx, query.PersistPrefix, cfg.Storage.CacheRetention)
					if err != nil {
						log.Warn("Failed to prune query cache", "error", err)
					} else if n > 0 {
						log.Debug("Pruned query cache", "entries", n)
					}
				}
			}
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	<-sigCh
	log.Info("Shutting down...")

	cancel()

	if rpcServer != nil {
		if err := rpcServer.Stop(); err != nil {
			log.Error("Error stopping RPC server", "error", err)
		}
	}
	kr.Lock()

	log.Info("Goodbye!")
}

func printBanner(log *logging.Logger, cfg *config.Config, chains int) {
	log.Info("")
	log.Info("=================================================")
	log.Info("  Wallet Store")
	log.Infof("  Version: %s", version)
	log.Info("=================================================")
	log.Info("")
	if cfg.RPC.Enabled {
		log.Infof("  API: http://%s", cfg.RPC.Addr)
		log.Infof("  WS:  ws://%s/ws", cfg.RPC.Addr)
		if cfg.RPC.Metrics {
			log.Infof("  Metrics: http://%s/metrics", cfg.RPC.Addr)
		}
		log.Info("")
	}
	log.Infof("  Chains: %d | Registry: %s", chains, registryLabel(cfg))
	log.Infof("  Data dir: %s", cfg.Storage.DataDir)
	log.Info("")
	log.Info("=================================================")
	log.Info("")
}

func registryLabel(cfg *config.Config) string {
	if cfg.Chains.RegistrySource == "" {
		return "disabled"
	}
	return cfg.Chains.RegistrySource
}
