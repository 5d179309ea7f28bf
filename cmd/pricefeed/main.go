package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/JirA44/obelisk-dex-sub013/pkg/api"
	"github.com/JirA44/obelisk-dex-sub013/pkg/config"
	"github.com/JirA44/obelisk-dex-sub013/pkg/feed"
	"github.com/JirA44/obelisk-dex-sub013/pkg/feed/cache"
	"github.com/JirA44/obelisk-dex-sub013/pkg/feed/chain"
	"github.com/JirA44/obelisk-dex-sub013/pkg/feed/hub"
	"github.com/JirA44/obelisk-dex-sub013/pkg/feed/storage"
	"github.com/JirA44/obelisk-dex-sub013/pkg/feed/venues"
	"github.com/JirA44/obelisk-dex-sub013/pkg/logging"
	"github.com/JirA44/obelisk-dex-sub013/pkg/metrics"
)

const version = "0.1.0"

var (
	configFile = flag.String("config", "config/config.yaml", "Path to configuration file")
	showVer    = flag.Bool("version", false, "Show version and exit")
)

func main() {
	flag.Parse()

	if *showVer {
		fmt.Printf("pricefeed version %s\n", version)
		os.Exit(0)
	}

	// Optional .env file for secrets like the oracle signing key
	_ = godotenv.Load()

	cfg, err := config.Load(*configFile)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}
	if err := config.Validate(cfg); err != nil {
		fmt.Fprintf(os.Stderr, "Invalid configuration: %v\n", err)
		os.Exit(1)
	}

	logger, err := logging.Init(cfg.Logging.Level, cfg.Logging.Format, cfg.Logging.Output)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	logger.Info("Starting pricefeed", "version", version)

	if cfg.Metrics.Enabled {
		metrics.Init()
		go func() {
			logger.Info("Starting metrics server", "addr", cfg.Metrics.Addr)
			if err := metrics.ServeHTTP(cfg.Metrics.Addr); err != nil {
				logger.Error("Metrics server failed", "error", err)
			}
		}()
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	errChan := make(chan error, 1)
	go func() {
		errChan <- run(ctx, cfg, logger)
	}()

	select {
	case sig := <-sigChan:
		logger.Info("Received shutdown signal", "signal", sig.String())
		cancel()
	case err := <-errChan:
		if err != nil {
			logger.Error("Component failed", "error", err)
			cancel()
		}
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	logger.Info("Shutting down gracefully...")
	<-shutdownCtx.Done()
	logger.Info("Shutdown complete")
}

func run(ctx context.Context, cfg *config.Config, logger *logging.Logger) error {
	store := feed.NewTokenPriceStore()
	history := feed.NewHistoryBuffer(cfg.History.Capacity)
	latest := feed.NewLatestStore()

	// Sinks: the latest store always, hub always, cache and storage when
	// configured. The dispatcher delivers in emission order to all of them.
	distHub := hub.New(cfg.Hub.Addr, cfg.Hub.ClientBuffer, logger)
	sinks := []feed.Sink{latest, distHub}

	if cfg.Cache.Enabled {
		redisCache, err := cache.New(cache.Config{
			Addr:     cfg.Cache.Addr,
			Password: cfg.Cache.Password,
			DB:       cfg.Cache.DB,
			TTL:      cfg.Cache.TTL.ToDuration(),
		}, logger)
		if err != nil {
			return fmt.Errorf("failed to initialize redis cache: %w", err)
		}
		defer redisCache.Close()
		sinks = append(sinks, redisCache)
	}

	if cfg.Storage.Enabled {
		dsn := fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
			cfg.Storage.Host, cfg.Storage.Port, cfg.Storage.User,
			cfg.Storage.Password, cfg.Storage.DBName, cfg.Storage.SSLMode)
		storeCfg := storage.Config{
			DSN:         dsn,
			BatchSize:   cfg.Storage.BatchSize,
			FlushPeriod: cfg.Storage.FlushPeriod.ToDuration(),
		}
		pgStore, err := storage.NewStore(storeCfg, logger)
		if err != nil {
			return fmt.Errorf("failed to initialize postgres store: %w", err)
		}
		defer pgStore.Close()

		batcher := storage.NewBatcher(pgStore, storeCfg, logger)
		go batcher.Run(ctx)
		sinks = append(sinks, batcher)
	}

	dispatcher := feed.NewDispatcher(cfg.Engine.QueueSize, logger, sinks...)
	go dispatcher.Run(ctx)

	// Venue weights feed the consensus mean.
	weights := make(map[string]float64)
	for _, venueCfg := range cfg.Venues {
		if venueCfg.Enabled {
			weights[venueCfg.Name] = venueCfg.Weight
		}
	}

	engine := feed.NewEngine(feed.EngineOptions{
		StaleAfter: cfg.Engine.StaleAfter.ToDuration(),
		QueueSize:  cfg.Engine.QueueSize,
		Weights:    weights,
		Confidence: feed.ConfidenceParams{
			SourceTarget:   cfg.Engine.Confidence.SourceTarget,
			SourceScoreMax: cfg.Engine.Confidence.SourceScoreMax,
			SpreadScoreMax: cfg.Engine.Confidence.SpreadScoreMax,
			SpreadPenalty:  cfg.Engine.Confidence.SpreadPenalty,
		},
	}, store, history, dispatcher.Enqueue, logger)
	go engine.Run(ctx)

	// Venue connectors feed the engine.
	connectors := make([]venues.Connector, 0, len(cfg.Venues))
	for _, venueCfg := range cfg.Venues {
		if !venueCfg.Enabled {
			continue
		}

		connector, err := venues.Create(venueCfg.Name, venues.Config{
			Name:         venueCfg.Name,
			URL:          venueCfg.URL,
			Weight:       venueCfg.Weight,
			PollInterval: venueCfg.PollInterval.ToDuration(),
			Pairs:        venueCfg.Pairs,
		}, logger)
		if err != nil {
			return fmt.Errorf("failed to create venue %s: %w", venueCfg.Name, err)
		}

		connector.OnTick(engine.HandleTick)

		if err := connector.Start(ctx); err != nil {
			logger.Error("Failed to start venue", "venue", venueCfg.Name, "error", err)
			continue
		}
		defer func(c venues.Connector) { _ = c.Stop() }(connector)

		connectors = append(connectors, connector)
		logger.Info("Started venue connector",
			"venue", connector.Name(), "kind", connector.Kind(), "weight", connector.Weight())
	}

	if len(connectors) == 0 {
		return fmt.Errorf("no venue connectors started")
	}

	if cfg.Chain.Enabled {
		publisher, err := chain.New(chain.Config{
			RPCURL:          cfg.Chain.RPCURL,
			ChainID:         cfg.Chain.ChainID,
			OracleAddress:   cfg.Chain.OracleAddress,
			PrivateKeyEnv:   cfg.Chain.PrivateKeyEnv,
			PublishInterval: cfg.Chain.PublishInterval.ToDuration(),
			TxTimeout:       cfg.Chain.TxTimeout.ToDuration(),
			Tokens:          cfg.Chain.Tokens,
		}, latest, logger)
		if err != nil {
			return fmt.Errorf("failed to initialize on-chain publisher: %w", err)
		}
		go publisher.Run(ctx)
	}

	apiServer := api.NewServer(cfg.API.Addr, cfg.API.CORSOrigins, latest, history, connectors, logger)
	go func() {
		if err := apiServer.Start(ctx); err != nil {
			logger.Error("API server failed", "error", err)
		}
	}()

	// The hub blocks until shutdown.
	return distHub.Start(ctx)
}
