package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/ariefcatur/go-realtime-drops/internal/config"
	"github.com/ariefcatur/go-realtime-drops/internal/drops"
	kafkax "github.com/ariefcatur/go-realtime-drops/internal/kafka"
	"github.com/ariefcatur/go-realtime-drops/internal/logger"
	"github.com/ariefcatur/go-realtime-drops/internal/postgres"
	"github.com/ariefcatur/go-realtime-drops/internal/progress"
	"github.com/ariefcatur/go-realtime-drops/internal/redisx"
	"github.com/joho/godotenv"
	"go.uber.org/zap"
)

func main() {
	_ = godotenv.Load()
	cfg := config.Load()
	log, err := logger.New(cfg.Env)
	if err != nil {
		panic(err)
	}
	defer func() { _ = log.Sync() }()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Drop lookups only reject progress for unknown drops
	var source drops.CatalogSource
	if cfg.CatalogFile != "" {
		static, err := drops.LoadStaticCatalogFile(cfg.CatalogFile)
		if err != nil {
			log.Fatal("load catalog", zap.Error(err))
		}
		source = static
	} else {
		db, err := postgres.Connect(ctx, cfg.PostgresDSN)
		if err != nil {
			log.Fatal("db", zap.Error(err))
		}
		defer db.Close()
		source = &drops.CatalogRepo{DB: db}
	}

	rdb := redisx.New(cfg.RedisAddr)
	defer rdb.Close()

	svc := &progress.Service{
		Catalog: drops.NewCatalog(source, drops.CatalogOptions{
			TTL:      cfg.DropCacheTTL,
			Capacity: cfg.DropCacheCapacity,
			Logger:   log,
		}),
		Ledger: redisx.NewInterestLedger(rdb, drops.LedgerOptions{
			SampleCap:   cfg.InterestSampleCap,
			ActivityCap: cfg.ActivityLogCap,
		}),
		Redis:       rdb,
		ServiceName: cfg.ProgressGroup,
		Log:         log,
	}

	cons := kafkax.NewConsumer(cfg.KafkaBrokers, cfg.ProgressGroup, drops.TopicProgressUpdated, cfg.ProgressWorkers, log)
	go func() {
		log.Info("progress consumer started",
			zap.String("group", cfg.ProgressGroup),
			zap.String("topic", drops.TopicProgressUpdated),
			zap.Int("workers", cfg.ProgressWorkers))
		if err := cons.Start(ctx, svc.HandleProgressUpdated); err != nil {
			log.Error("consumer exit", zap.Error(err))
			cancel()
		}
	}()

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	select {
	case <-sig:
	case <-ctx.Done():
	}
	log.Info("shutting down consumer")
	cancel()
}
