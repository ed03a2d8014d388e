package main

import (
	"context"
	"errors"
	"flag"
	"math/big"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/linlinbupt123-crypto/energy_share_service/api"
	"github.com/linlinbupt123-crypto/energy_share_service/chain"
	"github.com/linlinbupt123-crypto/energy_share_service/config"
	"github.com/linlinbupt123-crypto/energy_share_service/db"
	"github.com/linlinbupt123-crypto/energy_share_service/domain"
	"github.com/linlinbupt123-crypto/energy_share_service/entity"
	"github.com/linlinbupt123-crypto/energy_share_service/logging"
	"github.com/linlinbupt123-crypto/energy_share_service/repository"
	"github.com/linlinbupt123-crypto/energy_share_service/repository/memory"
	"github.com/linlinbupt123-crypto/energy_share_service/service"
	"github.com/linlinbupt123-crypto/energy_share_service/utils"
)

type stores struct {
	wallets   repository.WalletRepository
	intents   repository.IntentRepository
	projects  repository.ProjectRepository
	positions repository.PositionRepository
	close     func(context.Context) error
}

// openStores uses MongoDB when a URI is configured, process memory otherwise.
func openStores(ctx context.Context, cfg config.MongoConfig, log logrus.FieldLogger) (*stores, error) {
	if cfg.URI == "" {
		log.Warn("mongo.uri is empty, using in-memory store")
		return &stores{
			wallets:   memory.NewWalletRepo(),
			intents:   memory.NewIntentRepo(),
			projects:  memory.NewProjectRepo(),
			positions: memory.NewPositionRepo(),
			close:     func(context.Context) error { return nil },
		}, nil
	}

	m, err := db.NewMongoRepo(ctx, cfg.URI, cfg.Database)
	if err != nil {
		return nil, err
	}
	if err := m.EnsureIndexes(ctx); err != nil {
		_ = m.Close(ctx)
		return nil, err
	}
	return &stores{
		wallets:   repository.NewWalletRepo(m.WalletColl),
		intents:   repository.NewIntentRepo(m.IntentColl),
		projects:  repository.NewProjectRepo(m.ProjectColl),
		positions: repository.NewPositionRepo(m.PositionColl),
		close:     m.Close,
	}, nil
}

func openGateway(ctx context.Context, cfg *config.Config, log logrus.FieldLogger) (chain.Gateway, error) {
	if cfg.Ledger.Mode == config.LedgerMemory {
		l := chain.NewMemoryLedger(chain.WithPollInterval(cfg.Ledger.PollInterval))
		price, _ := utils.ETHToWei("0.01")
		id := l.AddProject(entity.ProjectLedger{
			Name:               "Demo Solar Farm",
			Location:           "Demo Location",
			InstallationSizeKw: 500,
			EstimatedAnnualKwh: 650000,
			TotalShares:        10000,
			PricePerShare:      entity.NewAmount(price),
			Status:             entity.ProjectActive,
			ProjectWallet:      "0x00000000000000000000000000000000000000B0",
			ProjectType:        "Solar",
			ProjectSubtype:     "Photovoltaic",
		})
		log.WithField("project_id", id).Warn("using in-memory ledger with a demo project")
		return l, nil
	}
	return chain.NewETHChain(ctx, cfg.Eth, cfg.Ledger.PollInterval, log)
}

func main() {
	path := flag.String("config", "", "path to config yaml")
	flag.Parse()

	cfg, err := config.Load(*path)
	if err != nil {
		logrus.WithError(err).Fatal("load config")
	}
	log, err := logging.New(cfg.Log.Level, cfg.Log.Format)
	if err != nil {
		logrus.WithError(err).Fatal("init logger")
	}

	// 1. 初始化存储和链
	startCtx, cancelStart := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancelStart()

	st, err := openStores(startCtx, cfg.Mongo, log)
	if err != nil {
		log.WithError(err).Fatal("open store")
	}
	gateway, err := openGateway(startCtx, cfg, log)
	if err != nil {
		log.WithError(err).Fatal("open ledger gateway")
	}

	// 2. 初始化依赖
	metrics := service.NewMetrics()
	vault := domain.NewVault(domain.VaultOptions{
		Iterations: cfg.Vault.KDFIterations,
		Workers:    cfg.Vault.Workers,
		Logger:     log,
		ObserveKDF: metrics.ObserveKDF,
	})
	cacheOpts := service.CacheOptions{
		TTL:            cfg.Cache.TTL,
		RefreshTimeout: cfg.Cache.RefreshTimeout,
		SweepRate:      cfg.Cache.SweepRate,
		SweepWorkers:   cfg.Cache.SweepWorkers,
		Logger:         log,
		Metrics:        metrics,
	}
	projects := service.NewProjectCache(gateway, st.projects, cacheOpts)
	positions := service.NewPositionCache(gateway, st.positions, cacheOpts)
	watcher := service.NewConfirmationWatcher(gateway, st.intents, projects, positions, service.WatcherOptions{
		Depth:   cfg.Purchase.ConfirmationDepth,
		Timeout: cfg.Purchase.ConfirmationTimeout,
		Logger:  log,
		Metrics: metrics,
	})

	feeReserve, ok := new(big.Int).SetString(cfg.Purchase.FeeReserve, 10)
	if !ok {
		log.WithField("fee_reserve", cfg.Purchase.FeeReserve).Fatal("purchase.fee_reserve must be an integer amount in minor units")
	}
	walletService := service.NewWalletService(vault, st.wallets, log)
	purchaseService := service.NewPurchaseService(gateway, vault, st.wallets, st.intents, projects, positions, watcher, service.PurchaseOptions{
		PlatformFeeBps: cfg.Purchase.PlatformFeeBps,
		FeeReserve:     feeReserve,
		GasLimit:       cfg.Purchase.GasLimit,
		Logger:         log,
		Metrics:        metrics,
	})

	if _, err := watcher.Recover(startCtx); err != nil {
		log.WithError(err).Fatal("recover confirmation watchers")
	}
	scheduler := service.NewSweepScheduler(projects, positions, 0, log)
	if err := scheduler.ScheduleStaleRefresh(cfg.Cache.TTL); err != nil {
		log.WithError(err).Fatal("schedule stale cache refresh")
	}
	if err := scheduler.Start(cfg.Cache.SweepSchedule); err != nil {
		log.WithError(err).Fatal("schedule cache sweep")
	}

	// 3. Gin
	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           api.NewRouter(walletService, purchaseService, metrics, log),
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		log.WithField("addr", srv.Addr).Info("http server listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.WithError(err).Fatal("server start failed")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	sig := <-quit
	log.WithField("signal", sig.String()).Info("shutting down")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		log.WithError(err).Error("http shutdown")
	}
	scheduler.Stop()
	// intents still confirming are picked up by Recover on the next start
	watcher.Stop()
	projects.Close()
	positions.Close()
	if err := st.close(ctx); err != nil {
		log.WithError(err).Warn("store close")
	}
	log.Info("bye")
}
