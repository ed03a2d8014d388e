package service

import (
	"context"
	"math/big"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/linlinbupt123-crypto/energy_share_service/chain"
	"github.com/linlinbupt123-crypto/energy_share_service/domain"
	"github.com/linlinbupt123-crypto/energy_share_service/entity"
	"github.com/linlinbupt123-crypto/energy_share_service/repository"
	"github.com/linlinbupt123-crypto/energy_share_service/repository/memory"
)

// 0.01 unit
var centiUnit = big.NewInt(10_000_000_000_000_000)

func ether(n int64) *big.Int {
	return new(big.Int).Mul(big.NewInt(n), big.NewInt(1_000_000_000_000_000_000))
}

func solarProject() entity.ProjectLedger {
	return entity.ProjectLedger{
		Name:               "Test Project",
		Location:           "Test Location",
		InstallationSizeKw: 500,
		EstimatedAnnualKwh: 650000,
		TotalShares:        10000,
		PricePerShare:      entity.NewAmount(centiUnit),
		Status:             entity.ProjectActive,
		ProjectWallet:      "0x00000000000000000000000000000000000000B0",
		ProjectType:        "Solar",
		ProjectSubtype:     "Photovoltaic",
	}
}

type harness struct {
	ledger    *chain.MemoryLedger
	wallets   *memory.WalletRepo
	intents   *memory.IntentRepo
	projects  *ProjectCache
	positions *PositionCache
	watcher   *ConfirmationWatcher
	walletSvc *WalletService
	purchases *PurchaseService
	metrics   *Metrics
	projectID int64
}

type harnessOption func(*harnessConfig)

type harnessConfig struct {
	autoMine bool
	timeout  time.Duration
	noWatch  bool
	wrap     func(repository.IntentRepository) repository.IntentRepository
}

func withoutAutoMine() harnessOption {
	return func(c *harnessConfig) { c.autoMine = false }
}

func withWatchTimeout(d time.Duration) harnessOption {
	return func(c *harnessConfig) { c.timeout = d }
}

// withoutWatcher leaves submitted intents CONFIRMING.
func withoutWatcher() harnessOption {
	return func(c *harnessConfig) { c.noWatch = true }
}

// withIntentStore routes the services' intent writes through wrap.
// h.intents still reads the underlying store.
func withIntentStore(wrap func(repository.IntentRepository) repository.IntentRepository) harnessOption {
	return func(c *harnessConfig) { c.wrap = wrap }
}

func newHarness(t *testing.T, opts ...harnessOption) *harness {
	t.Helper()
	cfg := harnessConfig{autoMine: true, timeout: 10 * time.Second}
	for _, o := range opts {
		o(&cfg)
	}

	h := &harness{
		ledger: chain.NewMemoryLedger(
			chain.WithPollInterval(time.Millisecond),
			chain.WithAutoMine(cfg.autoMine),
		),
		wallets: memory.NewWalletRepo(),
		intents: memory.NewIntentRepo(),
		metrics: NewMetrics(),
	}
	h.projectID = h.ledger.AddProject(solarProject())

	var intents repository.IntentRepository = h.intents
	if cfg.wrap != nil {
		intents = cfg.wrap(h.intents)
	}

	vault := domain.NewVault(domain.VaultOptions{Iterations: 1000, Workers: 2, ObserveKDF: h.metrics.ObserveKDF})
	cacheOpts := CacheOptions{RefreshTimeout: time.Second, Metrics: h.metrics}
	h.projects = NewProjectCache(h.ledger, memory.NewProjectRepo(), cacheOpts)
	h.positions = NewPositionCache(h.ledger, memory.NewPositionRepo(), cacheOpts)
	h.watcher = NewConfirmationWatcher(h.ledger, intents, h.projects, h.positions, WatcherOptions{
		Depth:   3,
		Timeout: cfg.timeout,
		Metrics: h.metrics,
	})
	var watcher *ConfirmationWatcher
	if !cfg.noWatch {
		watcher = h.watcher
	}
	h.walletSvc = NewWalletService(vault, h.wallets, nil)
	h.purchases = NewPurchaseService(h.ledger, vault, h.wallets, intents, h.projects, h.positions, watcher, PurchaseOptions{
		PlatformFeeBps: 250,
		FeeReserve:     new(big.Int).Set(DefaultFeeReserve),
		GasLimit:       300_000,
		Metrics:        h.metrics,
	})

	t.Cleanup(func() {
		h.watcher.Stop()
		h.projects.Close()
		h.positions.Close()
	})
	return h
}

// investor creates a wallet for user and funds it on the ledger.
func (h *harness) investor(t *testing.T, user, password string, funds *big.Int) string {
	t.Helper()
	addr, err := h.walletSvc.CreateWallet(context.Background(), user, password)
	require.NoError(t, err)
	if funds != nil {
		h.ledger.Fund(addr, funds)
	}
	return addr
}

func (h *harness) intent(t *testing.T, id string) *entity.PurchaseIntent {
	t.Helper()
	it, err := h.intents.GetByID(context.Background(), id)
	require.NoError(t, err)
	require.NotNil(t, it)
	return it
}
