package api

import (
	"bytes"
	"encoding/json"
	"math/big"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/linlinbupt123-crypto/energy_share_service/chain"
	"github.com/linlinbupt123-crypto/energy_share_service/domain"
	"github.com/linlinbupt123-crypto/energy_share_service/entity"
	"github.com/linlinbupt123-crypto/energy_share_service/logging"
	"github.com/linlinbupt123-crypto/energy_share_service/repository/memory"
	"github.com/linlinbupt123-crypto/energy_share_service/service"
)

type testServer struct {
	router  *gin.Engine
	ledger  *chain.MemoryLedger
	watcher *service.ConfirmationWatcher
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	gin.SetMode(gin.TestMode)

	ledger := chain.NewMemoryLedger(chain.WithPollInterval(time.Millisecond))
	ledger.AddProject(entity.ProjectLedger{
		Name:          "Test Project",
		Location:      "Test Location",
		TotalShares:   10000,
		PricePerShare: entity.NewAmount(big.NewInt(10_000_000_000_000_000)),
		Status:        entity.ProjectActive,
		ProjectWallet: "0x00000000000000000000000000000000000000B0",
		ProjectType:   "Solar",
	})

	metrics := service.NewMetrics()
	wallets := memory.NewWalletRepo()
	intents := memory.NewIntentRepo()
	vault := domain.NewVault(domain.VaultOptions{Iterations: 1000, Workers: 2})
	projects := service.NewProjectCache(ledger, memory.NewProjectRepo(), service.CacheOptions{Metrics: metrics})
	positions := service.NewPositionCache(ledger, memory.NewPositionRepo(), service.CacheOptions{Metrics: metrics})
	watcher := service.NewConfirmationWatcher(ledger, intents, projects, positions, service.WatcherOptions{Timeout: 10 * time.Second, Metrics: metrics})
	ws := service.NewWalletService(vault, wallets, nil)
	ps := service.NewPurchaseService(ledger, vault, wallets, intents, projects, positions, watcher, service.PurchaseOptions{
		PlatformFeeBps: 250,
		Metrics:        metrics,
	})
	t.Cleanup(func() {
		watcher.Stop()
		projects.Close()
		positions.Close()
	})

	return &testServer{
		router:  NewRouter(ws, ps, metrics, logging.Discard()),
		ledger:  ledger,
		watcher: watcher,
	}
}

func (s *testServer) do(t *testing.T, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", "api-test")
	w := httptest.NewRecorder()
	s.router.ServeHTTP(w, req)
	return w
}

func decode(t *testing.T, w *httptest.ResponseRecorder, v any) {
	t.Helper()
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), v))
}

func TestWalletEndpoints(t *testing.T) {
	s := newTestServer(t)

	w := s.do(t, http.MethodGet, "/users/alice/wallet", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"has_wallet":false}`, w.Body.String())

	w = s.do(t, http.MethodPost, "/users/alice/wallet", gin.H{"password": "pw"})
	require.Equal(t, http.StatusCreated, w.Code)
	var created struct {
		Address string `json:"address"`
	}
	decode(t, w, &created)
	assert.NotEmpty(t, created.Address)

	w = s.do(t, http.MethodPost, "/users/alice/wallet", gin.H{"password": "pw"})
	assert.Equal(t, http.StatusConflict, w.Code)
	assert.Contains(t, w.Body.String(), "WALLET_EXISTS")

	w = s.do(t, http.MethodGet, "/users/alice/wallet", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.NotContains(t, w.Body.String(), "ciphertext")
	assert.Contains(t, w.Body.String(), created.Address)

	w = s.do(t, http.MethodPost, "/users/alice/wallet/verify", gin.H{"password": "wrong"})
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"valid":false}`, w.Body.String())

	w = s.do(t, http.MethodPost, "/users/alice/wallet", gin.H{})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestPurchaseFlow(t *testing.T) {
	s := newTestServer(t)

	w := s.do(t, http.MethodPost, "/users/alice/wallet", gin.H{"password": "pw"})
	require.Equal(t, http.StatusCreated, w.Code)
	var created struct {
		Address string `json:"address"`
	}
	decode(t, w, &created)
	s.ledger.Fund(created.Address, new(big.Int).Mul(big.NewInt(5), big.NewInt(1_000_000_000_000_000_000)))

	w = s.do(t, http.MethodPost, "/users/alice/purchases/estimate", gin.H{"project_id": 1, "shares": 100})
	require.Equal(t, http.StatusOK, w.Code)
	var est map[string]any
	decode(t, w, &est)
	assert.Equal(t, "1", est["total_cost"])
	assert.Equal(t, "0.025", est["platform_fee"])
	assert.Equal(t, "1000000000000000000", est["total_cost_wei"])
	assert.Equal(t, true, est["sufficient_balance"])

	w = s.do(t, http.MethodPost, "/users/alice/purchases/estimate", gin.H{"project_id": 1, "shares": 20000})
	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)
	assert.Contains(t, w.Body.String(), "INSUFFICIENT_SHARES")

	w = s.do(t, http.MethodPost, "/users/alice/purchases", gin.H{"project_id": 1, "shares": 100, "password": "nope"})
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w = s.do(t, http.MethodPost, "/users/alice/purchases", gin.H{"project_id": 1, "shares": 100, "password": "pw"})
	require.Equal(t, http.StatusAccepted, w.Code)
	var res service.SubmitResult
	decode(t, w, &res)
	assert.Equal(t, entity.StatusConfirming, res.Status)

	s.watcher.Wait()

	w = s.do(t, http.MethodGet, "/users/alice/purchases/"+res.IntentID, nil)
	require.Equal(t, http.StatusOK, w.Code)
	var it map[string]any
	decode(t, w, &it)
	assert.Equal(t, "CONFIRMED", it["status"])
	assert.Equal(t, "1000000000000000000", it["amount"])
	assert.NotContains(t, it, "ip_address")

	w = s.do(t, http.MethodGet, "/users/mallory/purchases/"+res.IntentID, nil)
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = s.do(t, http.MethodGet, "/users/alice/purchases?limit=10", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var list struct {
		Intents []entity.PurchaseIntent `json:"intents"`
		Total   int64                   `json:"total"`
	}
	decode(t, w, &list)
	assert.Equal(t, int64(1), list.Total)
	require.Len(t, list.Intents, 1)

	w = s.do(t, http.MethodGet, "/projects/1", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var p map[string]any
	decode(t, w, &p)
	assert.EqualValues(t, 100, p["shares_sold"])

	w = s.do(t, http.MethodGet, "/positions/"+created.Address+"/1?refresh=true", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var pos map[string]any
	decode(t, w, &pos)
	assert.EqualValues(t, 100, pos["shares"])
	assert.NotEmpty(t, pos["purchased_at"])
}

func TestProjectEndpoints(t *testing.T) {
	s := newTestServer(t)

	w := s.do(t, http.MethodGet, "/projects/abc", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = s.do(t, http.MethodGet, "/projects/7", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = s.do(t, http.MethodGet, "/projects", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `[]`, w.Body.String())

	w = s.do(t, http.MethodGet, "/projects/1?refresh=true", nil)
	require.Equal(t, http.StatusOK, w.Code)

	w = s.do(t, http.MethodPatch, "/projects/1/metadata", gin.H{"description": "Rooftop array"})
	require.Equal(t, http.StatusOK, w.Code)

	w = s.do(t, http.MethodGet, "/projects?type=Solar&location=test", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var list []map[string]any
	decode(t, w, &list)
	require.Len(t, list, 1)
	assert.Equal(t, "Rooftop array", list[0]["description"])

	w = s.do(t, http.MethodGet, "/projects?type=Wind", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `[]`, w.Body.String())
}

func TestMetricsEndpoint(t *testing.T) {
	s := newTestServer(t)
	s.do(t, http.MethodGet, "/projects/1", nil)

	w := s.do(t, http.MethodGet, "/metrics", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.True(t, strings.Contains(w.Body.String(), "energy_share_cache_lookups_total"))
}
