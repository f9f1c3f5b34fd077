// cmd/sniper/main.go
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"github.com/rovshanmuradov/launch-sniper/internal/blockchain/solbc/rpc"
	"github.com/rovshanmuradov/launch-sniper/internal/bot"
	"github.com/rovshanmuradov/launch-sniper/internal/config"
	"github.com/rovshanmuradov/launch-sniper/internal/eventlistener"
	"github.com/rovshanmuradov/launch-sniper/internal/events"
	"github.com/rovshanmuradov/launch-sniper/internal/execution"
	"github.com/rovshanmuradov/launch-sniper/internal/jupiter"
	"github.com/rovshanmuradov/launch-sniper/internal/liquidity"
	"github.com/rovshanmuradov/launch-sniper/internal/marketdata"
	"github.com/rovshanmuradov/launch-sniper/internal/notify"
	"github.com/rovshanmuradov/launch-sniper/internal/position"
	"github.com/rovshanmuradov/launch-sniper/internal/registry"
	"github.com/rovshanmuradov/launch-sniper/internal/storage"
	"github.com/rovshanmuradov/launch-sniper/internal/storage/memory"
	"github.com/rovshanmuradov/launch-sniper/internal/storage/migrations"
	"github.com/rovshanmuradov/launch-sniper/internal/storage/postgres"
	"github.com/rovshanmuradov/launch-sniper/internal/utils/logger"
	"github.com/rovshanmuradov/launch-sniper/internal/wallet"
)

func main() {
	configPath := flag.String("config", "configs/config.yaml", "path to the JSON or YAML config file")
	envFile := flag.String("env", ".env", "optional dotenv file")
	flag.Parse()

	if err := godotenv.Load(*envFile); err != nil && !errors.Is(err, os.ErrNotExist) {
		fmt.Fprintf(os.Stderr, "failed to load %s: %v\n", *envFile, err)
	}

	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "invalid configuration: %v\n", err)
		os.Exit(1)
	}

	log, err := logger.New(&cfg.Log)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to create logger: %v\n", err)
		os.Exit(1)
	}
	defer func() { _ = log.Sync() }()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, log); err != nil {
		log.Error("Sniper stopped with error", zap.Error(err))
		_ = log.Sync()
		os.Exit(1)
	}
	log.Info("Sniper stopped")
}

func run(ctx context.Context, cfg *config.Config, base *logger.Logger) error {
	log := base.Logger
	startup := base.TrackPerformance("startup")

	shutdown := bot.NewShutdownHandler(log, 30*time.Second)
	defer func() { _ = shutdown.Shutdown(context.Background()) }()

	stores, err := openStores(ctx, cfg, base.WithComponent("storage"), shutdown)
	if err != nil {
		return err
	}

	keys, err := wallet.Load(cfg.Wallets, log)
	if err != nil {
		return fmt.Errorf("load wallets: %w", err)
	}

	chain, err := rpc.NewClient(rpc.Config{URLs: cfg.RPCList, Timeout: cfg.RPCTimeout, Retry: cfg.Retry}, base.WithComponent("rpc"))
	if err != nil {
		return fmt.Errorf("rpc client: %w", err)
	}
	shutdown.AddFunc("rpc", func() error { chain.Close(); return nil })

	bus := events.NewBus(log, 1024)
	shutdown.AddFunc("events", func() error {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return bus.Shutdown(ctx)
	})

	reg := registry.New(stores.Targets, bus, cfg.Targets.Registry, log)
	if path := cfg.Targets.Scheduler.SeedFile; path != "" {
		if err := seedTargets(ctx, reg, path, log); err != nil {
			return err
		}
	}

	quotes := jupiter.NewClient(cfg.Jupiter, cfg.Retry, base.WithComponent("jupiter"))
	market := marketdata.NewClient(cfg.DexScreener, cfg.Retry, base.WithComponent("dexscreener"))

	if cfg.AutoSnipe.UserID == "" {
		cfg.AutoSnipe.UserID = cfg.Telegram.AdminChatID
	}
	if cfg.CopyTrade.UserID == "" {
		cfg.CopyTrade.UserID = cfg.Telegram.AdminChatID
	}
	var taker string
	if key, err := keys.Key(cfg.AutoSnipe.UserID); err == nil {
		taker = key.PublicKey().String()
	}
	gate := liquidity.NewGate(market, quotes, taker, cfg.Liquidity, log)

	source := eventlistener.NewRPCSource(chain)
	fees := execution.NewFeeOracle(cfg.Fees, chain, nil, log)
	var bundles execution.BundleSender
	if cfg.Execution.UseBundles {
		bundles = execution.NewJitoClient(cfg.Execution.JitoURL, cfg.Retry, log)
	}
	engine := execution.NewEngine(cfg.Execution, chain, source, quotes, bundles, fees, base.WithComponent("execution"))

	scheduler := bot.NewScheduler(cfg.Targets.Scheduler, cfg.AutoSnipe, cfg.CopyTrade, reg, gate, engine, keys,
		stores.Executions, stores.Watched, base.WithComponent("scheduler"))
	scheduler.Register(bus)

	positions := position.NewManager(cfg.Position, reg, market, engine, keys, stores.Executions, bus, base.WithComponent("positions"))

	notifier, err := newNotifier(cfg.Telegram, log)
	if err != nil {
		return err
	}
	notify.NewDispatcher(notifier, stores.Alerts, cfg.Telegram.AdminChatID, log).Register(bus)

	runner := bot.NewRunner(log)
	runner.Add("fees", fees)
	runner.Add("scheduler", scheduler)
	runner.Add("positions", positions)
	runner.Add("gate-sweeper", bot.ServiceFunc(func(ctx context.Context) error {
		ticker := time.NewTicker(cfg.Liquidity.CacheTTL)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return nil
			case <-ticker.C:
				gate.Sweep()
			}
		}
	}))

	var subscriber eventlistener.LogSubscriber
	if cfg.WebSocketURL != "" {
		ws := eventlistener.NewWSSubscriber(cfg.WebSocketURL, log)
		shutdown.Add("websocket", ws)
		subscriber = ws
	} else {
		log.Warn("websocket_url not set, detection falls back to polling")
	}
	runner.Add("listener", eventlistener.New(cfg.Detection, source, subscriber, stores.Watched, nil, bus, log))

	startup()
	log.Info("Sniper started",
		zap.Int("rpc_endpoints", len(cfg.RPCList)),
		zap.Bool("postgres", cfg.PostgresURL != ""),
		zap.Bool("bundles", cfg.Execution.UseBundles),
		zap.Bool("autosnipe", cfg.AutoSnipe.Enabled),
		zap.Bool("copytrade", cfg.CopyTrade.Enabled),
		zap.Int("keys", keys.Len()))

	return runner.Run(ctx)
}

func openStores(ctx context.Context, cfg *config.Config, log *zap.Logger, shutdown *bot.ShutdownHandler) (storage.Stores, error) {
	if cfg.PostgresURL == "" {
		log.Warn("postgres_url not set, using in-memory storage")
		return memory.New(), nil
	}
	pool, err := postgres.NewPool(ctx, postgres.Config{DSN: cfg.PostgresURL, MaxConns: 10, MaxConnLifetime: time.Hour}, log)
	if err != nil {
		return storage.Stores{}, err
	}
	shutdown.AddFunc("postgres", func() error { pool.Close(); return nil })
	if err := migrations.RunPostgresMigrations(ctx, pool); err != nil {
		return storage.Stores{}, fmt.Errorf("migrate: %w", err)
	}
	return pool.Stores(), nil
}

func seedTargets(ctx context.Context, reg *registry.Registry, path string, log *zap.Logger) error {
	seeds, err := registry.LoadSeedFile(path, log)
	if err != nil {
		return fmt.Errorf("load seed targets: %w", err)
	}
	for _, nt := range seeds {
		if _, _, err := reg.Create(ctx, nt); err != nil {
			log.Warn("Failed to seed target", zap.String("asset", nt.AssetAddress), zap.Error(err))
		}
	}
	return nil
}

func newNotifier(cfg notify.TelegramConfig, log *zap.Logger) (notify.Notifier, error) {
	if cfg.Token == "" {
		return notify.NewLogNotifier(log), nil
	}
	tg, err := notify.NewTelegram(cfg, log)
	if err != nil {
		return nil, err
	}
	return notify.Multi{tg, notify.NewLogNotifier(log)}, nil
}
