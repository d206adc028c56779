package main

import (
	"context"
	"errors"
	"github.com/ariefcatur/woodchain/internal/accounts"
	"github.com/ariefcatur/woodchain/internal/catalog"
	"github.com/ariefcatur/woodchain/internal/config"
	"github.com/ariefcatur/woodchain/internal/httpx"
	"github.com/ariefcatur/woodchain/internal/identity"
	kafkax "github.com/ariefcatur/woodchain/internal/kafka"
	"github.com/ariefcatur/woodchain/internal/ledger"
	"github.com/ariefcatur/woodchain/internal/logging"
	"github.com/ariefcatur/woodchain/internal/metrics"
	"github.com/ariefcatur/woodchain/internal/orders"
	"github.com/ariefcatur/woodchain/internal/pipeline"
	"github.com/ariefcatur/woodchain/internal/postgres"
	"github.com/ariefcatur/woodchain/internal/reconcile"
	"github.com/ariefcatur/woodchain/internal/redisx"
	"github.com/joho/godotenv"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"
)

// ledgerAudit serves GET /orders/{id}/ledger: raw reads from the client, drift from the reconciler.
type ledgerAudit struct {
	*ledger.Client
	*reconcile.Service
}

func main() {
	_ = godotenv.Load()
	cfg := config.Load()

	logger, err := logging.New(cfg.LogEnv, cfg.ServiceName)
	if err != nil {
		log.Fatalf("logger: %v", err)
	}
	defer func() { _ = logger.Sync() }()
	metrics.Register()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if cfg.AutoMigrate {
		if err := postgres.MigrateUp(cfg.PostgresDSN); err != nil {
			logger.Fatal("migrate", zap.Error(err))
		}
	}

	// DB
	db, err := postgres.Connect(ctx, cfg.PostgresDSN)
	if err != nil {
		logger.Fatal("db connect", zap.Error(err))
	}
	defer db.Close()

	// Redis
	rdb := redisx.New(cfg.RedisAddr)
	defer rdb.Close()

	// Ledger: an artifact without a deployment for the node's network is fatal
	art, err := ledger.LoadArtifact(cfg.LedgerArtifact)
	if err != nil {
		logger.Fatal("ledger artifact", zap.Error(err))
	}
	lc, err := ledger.Dial(ctx, cfg.LedgerRPCURL, art, ledger.Options{
		GasLimit:       cfg.LedgerGasLimit,
		ReceiptPoll:    cfg.LedgerReceiptPoll,
		ReceiptTimeout: cfg.LedgerReceiptTimeout,
	}, logger.Named("ledger"))
	if err != nil {
		logger.Fatal("ledger dial", zap.Error(err))
	}
	defer lc.Close()
	logger.Info("ledger contract resolved", zap.String("address", lc.Address().Hex()), zap.String("network", lc.NetworkID().String()))

	var (
		mapper identity.Mapper
		binder accounts.Binder
	)
	switch cfg.IdentityMode {
	case "first-account":
		logger.Warn("ledger writes are sent from the node's first account; actors are not attributable on-chain")
		mapper = identity.FirstAccount{Node: lc}
	default:
		keys, err := identity.NewKeyring(cfg.IdentitySecret)
		if err != nil {
			logger.Fatal("ledger identity", zap.Error(err))
		}
		reg := &identity.Registry{DB: db, Redis: rdb, Keys: keys, Autobind: cfg.IdentityAutobind}
		mapper, binder = reg, reg
	}

	// Kafka producer
	prod := kafkax.NewProducer(cfg.KafkaBrokers, 1024, logger.Named("kafka"))
	prod.Start(ctx)

	orderRepo := &orders.Repo{DB: db}
	mirrorRepo := &orders.MirrorRepo{DB: db}
	svc := &pipeline.Service{
		Orders:   orderRepo,
		Mirror:   mirrorRepo,
		Ledger:   lc,
		Identity: mapper,
		Events:   prod,
		Log:      logger.Named("pipeline"),
		Policy:   pipeline.ParseMissingProductPolicy(cfg.MissingProductPolicy),
		Producer: cfg.ServiceName,
	}
	audit := ledgerAudit{
		Client:  lc,
		Service: &reconcile.Service{Local: orderRepo, Ledger: lc, Store: mirrorRepo, Log: logger.Named("audit"), ServiceName: cfg.ServiceName},
	}

	sessions := &accounts.Sessions{Redis: rdb, TTL: cfg.SessionTTL}
	router := httpx.NewRouter(logger.Named("http"), sessions)
	(&httpx.AuthHandler{
		Accounts: &accounts.Service{DB: db, Binder: binder, Log: logger.Named("accounts")},
		Sessions: sessions,
		Log:      logger,
	}).Register(router)
	(&httpx.CatalogHandler{Catalog: &catalog.Repo{DB: db}, Log: logger}).Register(router)
	(&httpx.OrdersHandler{Orders: orderRepo, Pipeline: svc, Audit: audit, Redis: rdb, Log: logger}).Register(router)

	// HTTP server
	srv := &http.Server{Addr: cfg.HTTPAddr, Handler: router, ReadHeaderTimeout: 5 * time.Second}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info("http listening", zap.String("addr", cfg.HTTPAddr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		logger.Info("shutting down...")
		sctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(sctx)
	})
	if err := g.Wait(); err != nil {
		logger.Error("server exit", zap.Error(err))
	}

	prod.Close()      // flush inbox & close writer
	prod.WaitClosed() // drain
}
