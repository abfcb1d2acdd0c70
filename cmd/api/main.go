package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ariefcatur/go-realtime-drops/internal/config"
	"github.com/ariefcatur/go-realtime-drops/internal/drops"
	"github.com/ariefcatur/go-realtime-drops/internal/httpx"
	kafkax "github.com/ariefcatur/go-realtime-drops/internal/kafka"
	"github.com/ariefcatur/go-realtime-drops/internal/logger"
	"github.com/ariefcatur/go-realtime-drops/internal/postgres"
	"github.com/ariefcatur/go-realtime-drops/internal/progress"
	"github.com/ariefcatur/go-realtime-drops/internal/redisx"
	"github.com/ariefcatur/go-realtime-drops/migrations"
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

	// DB
	db, err := postgres.Connect(ctx, cfg.PostgresDSN)
	if err != nil {
		log.Fatal("db connect", zap.Error(err))
	}
	defer db.Close()
	applied, err := postgres.Migrate(ctx, db, migrations.FS)
	if err != nil {
		log.Fatal("migrate", zap.Error(err))
	}
	log.Info("schema ready", zap.Strings("migrations", applied))

	// Redis
	rdb := redisx.New(cfg.RedisAddr)
	defer rdb.Close()

	// Catalog: YAML file when configured, Postgres otherwise
	var source drops.CatalogSource = &drops.CatalogRepo{DB: db}
	if cfg.CatalogFile != "" {
		static, err := drops.LoadStaticCatalogFile(cfg.CatalogFile)
		if err != nil {
			log.Fatal("load catalog", zap.String("file", cfg.CatalogFile), zap.Error(err))
		}
		source = static
		log.Info("serving static catalog", zap.String("file", cfg.CatalogFile), zap.Strings("drops", static.IDs()))
	}
	catalog := drops.NewCatalog(source, drops.CatalogOptions{
		TTL:      cfg.DropCacheTTL,
		Capacity: cfg.DropCacheCapacity,
		Logger:   log,
	})
	ledger := redisx.NewInterestLedger(rdb, drops.LedgerOptions{
		SampleCap:   cfg.InterestSampleCap,
		ActivityCap: cfg.ActivityLogCap,
	})

	// Kafka producers
	resPub := kafkax.NewProducer(cfg.KafkaBrokers, drops.TopicReservationStarted, 1024, log)
	resPub.Start(ctx)
	intPub := kafkax.NewProducer(cfg.KafkaBrokers, drops.TopicInterestToggled, 1024, log)
	intPub.Start(ctx)

	// Sessions & handler
	factory := func(u drops.User) *drops.Engine {
		return drops.NewEngine(u, drops.EngineDeps{
			Catalog:    catalog,
			Ledger:     ledger,
			Cart:       redisx.NewCartSink(rdb, u.ID, redisx.TTLCart),
			HistoryCap: cfg.ReservationHistoryCap,
			Logger:     log,
		})
	}
	sessions := httpx.NewSessions(redisx.NewSessionStore(rdb, cfg.SessionTTL), factory, httpx.SessionsOptions{Logger: log})

	router := httpx.NewRouter(log)
	dh := &httpx.DropsHandler{
		Sessions:       sessions,
		Reservations:   &drops.ReservationRepo{DB: db},
		ReservationPub: resPub,
		InterestPub:    intPub,
		Service:        cfg.ServiceName,
		Log:            log,
	}
	dh.Register(router)

	// Progress consumer shares its group (and dedup namespace) with cmd/progress
	svc := &progress.Service{
		Catalog:     catalog,
		Ledger:      ledger,
		Redis:       rdb,
		ServiceName: cfg.ProgressGroup,
		Log:         log,
	}
	cons := kafkax.NewConsumer(cfg.KafkaBrokers, cfg.ProgressGroup, drops.TopicProgressUpdated, cfg.ProgressWorkers, log)
	go func() {
		if err := cons.Start(ctx, svc.HandleProgressUpdated); err != nil {
			log.Error("progress consumer exit", zap.Error(err))
		}
	}()

	// HTTP server
	srv := &http.Server{Addr: cfg.HTTPAddr, Handler: router}
	go func() {
		log.Info("HTTP listening", zap.String("addr", cfg.HTTPAddr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal("listen", zap.Error(err))
		}
	}()

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	<-sig
	log.Info("shutting down")

	ctx2, cancel2 := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel2()
	_ = srv.Shutdown(ctx2)
	resPub.Close()
	intPub.Close()
	cancel()
	resPub.WaitClosed()
	intPub.WaitClosed()
}
