package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"

	"killfeed/internal/api"
	"killfeed/internal/config"
	"killfeed/internal/dispatch"
	"killfeed/internal/ingest"
	"killfeed/internal/logging"
	"killfeed/internal/matches"
	"killfeed/internal/model"
	"killfeed/internal/refdata"
	"killfeed/internal/stats"
	"killfeed/internal/store"
)

var version = "dev"

func main() {
	configPath := flag.String("config", "", "path to config file (json or yaml)")
	flag.Parse()

	var mgr *config.Manager
	var err error
	if *configPath != "" {
		mgr, err = config.NewManager(config.ResolvePath(*configPath))
		if err != nil {
			fmt.Fprintf(os.Stderr, "config: %v\n", err)
			os.Exit(1)
		}
	} else {
		mgr = config.NewStaticManager(nil)
	}
	cfg := mgr.Get()

	logger := logging.NewLogger(cfg.LogLevel)
	logger.Info("starting killfeed", "version", version, "config", mgr.Path())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	st, err := store.New(cfg.Storage)
	if err != nil {
		logger.Error("storage init failed", "err", err)
		os.Exit(1)
	}
	defer st.Close()
	if err := st.Init(ctx); err != nil {
		logger.Error("storage schema failed", "err", err)
		os.Exit(1)
	}

	cacheLayers := []refdata.Cache{
		refdata.NewMemoryCache(cfg.Refdata.CacheSize, cfg.Refdata.CacheTTL),
	}
	if cfg.Refdata.Redis.Enabled {
		client := redis.NewClient(&redis.Options{Addr: cfg.Refdata.Redis.Addr, DB: cfg.Refdata.Redis.DB})
		defer client.Close()
		cacheLayers = append(cacheLayers, refdata.NewRedisCache(client, cfg.Refdata.CacheTTL))
	}
	cacheLayers = append(cacheLayers, refdata.NewStoreCache(st, cfg.Refdata.CacheTTL))
	resolver := refdata.NewResolver(cfg.Refdata.BaseURL, refdata.Layered(cacheLayers...), logger)

	matchesStore := matches.NewStore(cfg.Matches.StoreLimit)
	statsStore := stats.NewStore(cfg.Matches.StatsLimit)

	sender := dispatch.NewWebhookSender(cfg.Dispatch.Webhooks)
	dispatcher := dispatch.New(st, sender, matchesStore, statsStore,
		cfg.Dispatch.DeliveryTimeout, cfg.Dispatch.MaxConcurrent, logger)

	events := make(chan model.Killmail, cfg.Ingest.ChannelBuffer)
	go dispatcher.Run(ctx, events)

	sources := ingest.NewRegistry()
	if cfg.Ingest.RedisQ.Enabled {
		poller := ingest.NewPoller(cfg.Ingest.RedisQ, resolver, events, logger)
		sources.Start(ctx, ingest.Slot{DestinationID: "sources", Feed: "redisq"}, poller.Run)
	} else {
		logger.Info("redisq ingest disabled")
	}
	if cfg.Ingest.Kafka.Enabled {
		kafkaCfg := cfg.Ingest.Kafka
		sources.Start(ctx, ingest.Slot{DestinationID: "sources", Feed: "kafka"}, func(ctx context.Context) {
			ingest.RunKafka(ctx, kafkaCfg, resolver, events, logger)
		})
	} else {
		logger.Info("kafka ingest disabled")
	}

	api.Start(ctx, mgr, st, matchesStore, statsStore, logger, version)

	stop := make(chan struct{})
	if mgr.Path() != "" {
		go mgr.Watch(3*time.Second,
			func(cfg *config.Config) {
				logger.Info("config reloaded", "path", mgr.Path(), "log_level", cfg.LogLevel)
			},
			func(err error) {
				logger.Warn("config reload failed", "err", err)
			},
			stop)
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	logger.Info("killfeed running")
	<-sigCh

	logger.Info("shutting down")
	close(stop)
	cancel()
	sources.StopAll()
	time.Sleep(500 * time.Millisecond)
	logger.Info("bye")
}
