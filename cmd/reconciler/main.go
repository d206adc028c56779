package main

import (
	"context"
	"github.com/ariefcatur/woodchain/internal/config"
	kafkax "github.com/ariefcatur/woodchain/internal/kafka"
	"github.com/ariefcatur/woodchain/internal/ledger"
	"github.com/ariefcatur/woodchain/internal/logging"
	"github.com/ariefcatur/woodchain/internal/metrics"
	"github.com/ariefcatur/woodchain/internal/orders"
	"github.com/ariefcatur/woodchain/internal/postgres"
	"github.com/ariefcatur/woodchain/internal/reconcile"
	"github.com/ariefcatur/woodchain/internal/redisx"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"
)

// reconciler consumes ledger mirror failures, records drift and periodically sweeps open failures.
// It never writes to the ledger.
func main() {
	_ = godotenv.Load()
	cfg := config.Load()

	logger, err := logging.New(cfg.LogEnv, cfg.ServiceName+"-reconciler")
	if err != nil {
		log.Fatalf("logger: %v", err)
	}
	defer func() { _ = logger.Sync() }()
	metrics.Register()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// DB
	db, err := postgres.Connect(ctx, cfg.PostgresDSN)
	if err != nil {
		logger.Fatal("db", zap.Error(err))
	}
	defer db.Close()

	// Redis
	rdb := redisx.New(cfg.RedisAddr)
	defer rdb.Close()

	art, err := ledger.LoadArtifact(cfg.LedgerArtifact)
	if err != nil {
		logger.Fatal("ledger artifact", zap.Error(err))
	}
	lc, err := ledger.Dial(ctx, cfg.LedgerRPCURL, art, ledger.Options{}, logger.Named("ledger"))
	if err != nil {
		logger.Fatal("ledger dial", zap.Error(err))
	}
	defer lc.Close()

	svc := &reconcile.Service{
		Local:       &orders.Repo{DB: db},
		Ledger:      lc,
		Store:       &orders.MirrorRepo{DB: db},
		Redis:       rdb,
		Log:         logger,
		ServiceName: cfg.ServiceName + "-reconciler",
	}

	// metrics only; the reconciler has no API
	go func() {
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.Handler())
		srv := &http.Server{Addr: cfg.ReconcilerMetrics, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Warn("metrics listener", zap.Error(err))
		}
	}()

	// sweep: covers failures whose event never reached the topic
	go svc.RunSweeper(ctx, cfg.ReconcilerSweepInterval, cfg.ReconcilerSweepBatch)

	// Consumer
	cons := kafkax.NewConsumer(cfg.KafkaBrokers, cfg.ReconcilerGroup, orders.TopicLedgerMirrorFailed, cfg.ReconcilerWorkers, logger.Named("kafka"))
	logger.Info("reconciler consumer started",
		zap.String("group", cfg.ReconcilerGroup),
		zap.String("topic", orders.TopicLedgerMirrorFailed),
		zap.Int("workers", cfg.ReconcilerWorkers))
	if err := cons.Start(ctx, svc.HandleMirrorFailed); err != nil && ctx.Err() == nil {
		logger.Error("consumer exit", zap.Error(err))
	}
	logger.Info("reconciler stopped")
}
