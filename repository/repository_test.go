package repository_test

import (
	"context"
	"errors"
	"fmt"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/linlinbupt123-crypto/energy_share_service/db"
	"github.com/linlinbupt123-crypto/energy_share_service/entity"
	wrapErrors "github.com/linlinbupt123-crypto/energy_share_service/errors"
	"github.com/linlinbupt123-crypto/energy_share_service/repository"
	"github.com/linlinbupt123-crypto/energy_share_service/repository/memory"
)

type stores struct {
	wallets   repository.WalletRepository
	intents   repository.IntentRepository
	projects  repository.ProjectRepository
	positions repository.PositionRepository
}

var t0 = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func memoryStores() stores {
	return stores{
		wallets:   memory.NewWalletRepo(),
		intents:   memory.NewIntentRepo(),
		projects:  memory.NewProjectRepo(),
		positions: memory.NewPositionRepo(),
	}
}

// mongoStores connects to MONGO_TEST_URI and uses a throwaway database.
func mongoStores(t *testing.T) stores {
	uri := os.Getenv("MONGO_TEST_URI")
	if uri == "" {
		t.Skip("MONGO_TEST_URI not set")
	}
	ctx := context.Background()
	name := fmt.Sprintf("energy_share_test_%d", time.Now().UnixNano())
	m, err := db.NewMongoRepo(ctx, uri, name)
	require.NoError(t, err)
	require.NoError(t, m.EnsureIndexes(ctx))
	t.Cleanup(func() {
		_ = m.DB.Drop(ctx)
		_ = m.Close(ctx)
	})
	return stores{
		wallets:   repository.NewWalletRepo(m.WalletColl),
		intents:   repository.NewIntentRepo(m.IntentColl),
		projects:  repository.NewProjectRepo(m.ProjectColl),
		positions: repository.NewPositionRepo(m.PositionColl),
	}
}

func TestMemoryRepositories(t *testing.T) {
	runContract(t, func(*testing.T) stores { return memoryStores() })
}

func TestMongoRepositories(t *testing.T) {
	runContract(t, mongoStores)
}

func runContract(t *testing.T, open func(*testing.T) stores) {
	t.Run("wallet", func(t *testing.T) { walletContract(t, open(t)) })
	t.Run("intent transitions", func(t *testing.T) { intentTransitionContract(t, open(t)) })
	t.Run("intent listing", func(t *testing.T) { intentListContract(t, open(t)) })
	t.Run("intent submission and delete", func(t *testing.T) { intentSubmissionContract(t, open(t)) })
	t.Run("project merge", func(t *testing.T) { projectContract(t, open(t)) })
	t.Run("position merge", func(t *testing.T) { positionContract(t, open(t)) })
}

func walletContract(t *testing.T, s stores) {
	ctx := context.Background()
	w := &entity.Wallet{
		UserID:         "u1",
		Address:        "0x00000000000000000000000000000000000000A1",
		DerivationPath: "m/44'/60'/0'/0/0",
		Envelope:       entity.CredentialEnvelope{KDF: "pbkdf2-sha512", Iterations: 1000, Salt: []byte{1}, IV: []byte{2}, AuthTag: []byte{3}, Ciphertext: []byte{4}},
		CreatedAt:      t0,
	}
	require.NoError(t, s.wallets.Create(ctx, w))

	got, err := s.wallets.GetByUserID(ctx, "u1")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, w.Address, got.Address)
	assert.Equal(t, []byte{4}, got.Envelope.Ciphertext)

	dup := *w
	dup.Address = "0x00000000000000000000000000000000000000A2"
	err = s.wallets.Create(ctx, &dup)
	assert.True(t, errors.Is(err, wrapErrors.ErrWalletExists))

	missing, err := s.wallets.GetByUserID(ctx, "nobody")
	require.NoError(t, err)
	assert.Nil(t, missing)
}

func newIntent(id, user string, created time.Time) *entity.PurchaseIntent {
	return &entity.PurchaseIntent{
		ID:            id,
		UserID:        user,
		WalletAddress: "0x00000000000000000000000000000000000000A1",
		Type:          entity.IntentPurchase,
		Status:        entity.StatusPending,
		ProjectID:     1,
		Shares:        100,
		Amount:        entity.AmountFromInt64(1_000),
		PlatformFee:   entity.AmountFromInt64(25),
		Metadata:      map[string]string{"user_balance": "5000"},
		CreatedAt:     created,
		UpdatedAt:     created,
	}
}

func intentTransitionContract(t *testing.T, s stores) {
	ctx := context.Background()
	require.NoError(t, s.intents.Create(ctx, newIntent("i1", "u1", t0)))

	_, err := s.intents.Transition(ctx, "i1", entity.IntentUpdate{Status: entity.StatusConfirmed, At: t0})
	assert.True(t, errors.Is(err, wrapErrors.ErrIllegalTransition), "PENDING cannot jump to CONFIRMED")

	it, err := s.intents.Transition(ctx, "i1", entity.IntentUpdate{Status: entity.StatusConfirming, SubmissionHash: "0xabc", At: t0.Add(time.Second)})
	require.NoError(t, err)
	assert.Equal(t, entity.StatusConfirming, it.Status)
	assert.Equal(t, "0xabc", it.SubmissionHash)
	require.NotNil(t, it.SubmittedAt)

	fee := entity.AmountFromInt64(777)
	it, err = s.intents.Transition(ctx, "i1", entity.IntentUpdate{Status: entity.StatusConfirmed, BlockNumber: 12, Confirmations: 3, SettlementFee: &fee, At: t0.Add(time.Minute)})
	require.NoError(t, err)
	assert.Equal(t, entity.StatusConfirmed, it.Status)
	assert.Equal(t, "777", it.SettlementFee.String())
	assert.Equal(t, "0xabc", it.SubmissionHash)

	// terminal records do not move
	_, err = s.intents.Transition(ctx, "i1", entity.IntentUpdate{Status: entity.StatusFailed, ErrorMessage: "late", At: t0.Add(time.Hour)})
	assert.True(t, errors.Is(err, wrapErrors.ErrIllegalTransition))

	got, err := s.intents.GetByID(ctx, "i1")
	require.NoError(t, err)
	assert.Equal(t, entity.StatusConfirmed, got.Status)
	assert.Empty(t, got.ErrorMessage)
	assert.Equal(t, "5000", got.Metadata["user_balance"])

	_, err = s.intents.Transition(ctx, "nope", entity.IntentUpdate{Status: entity.StatusFailed, At: t0})
	assert.True(t, errors.Is(err, wrapErrors.ErrNotFound))

	other, err := s.intents.GetForUser(ctx, "u2", "i1")
	require.NoError(t, err)
	assert.Nil(t, other)
}

func intentListContract(t *testing.T, s stores) {
	ctx := context.Background()
	for i := 0; i < 5; i++ {
		require.NoError(t, s.intents.Create(ctx, newIntent(fmt.Sprintf("i%d", i), "u1", t0.Add(time.Duration(i)*time.Minute))))
	}
	require.NoError(t, s.intents.Create(ctx, newIntent("x", "u2", t0)))
	_, err := s.intents.Transition(ctx, "i3", entity.IntentUpdate{Status: entity.StatusConfirming, SubmissionHash: "0x3", At: t0})
	require.NoError(t, err)

	page, total, err := s.intents.ListByUser(ctx, "u1", 2, 1)
	require.NoError(t, err)
	assert.Equal(t, int64(5), total)
	require.Len(t, page, 2)
	assert.Equal(t, "i3", page[0].ID)
	assert.Equal(t, "i2", page[1].ID)

	confirming, err := s.intents.ListByStatus(ctx, entity.StatusConfirming)
	require.NoError(t, err)
	require.Len(t, confirming, 1)
	assert.Equal(t, "i3", confirming[0].ID)
}

func intentSubmissionContract(t *testing.T, s stores) {
	ctx := context.Background()
	require.NoError(t, s.intents.Create(ctx, newIntent("i1", "u1", t0)))

	require.NoError(t, s.intents.RecordSubmission(ctx, "i1", "0xabc", t0.Add(time.Second)))
	got, err := s.intents.GetByID(ctx, "i1")
	require.NoError(t, err)
	assert.Equal(t, entity.StatusPending, got.Status)
	assert.Equal(t, "0xabc", got.SubmissionHash)
	require.NotNil(t, got.SubmittedAt)
	assert.Equal(t, t0.Add(time.Second), got.SubmittedAt.UTC())

	// a hash-less move to CONFIRMING keeps the recorded submission
	got, err = s.intents.Transition(ctx, "i1", entity.IntentUpdate{Status: entity.StatusConfirming, At: t0.Add(time.Minute)})
	require.NoError(t, err)
	assert.Equal(t, "0xabc", got.SubmissionHash)
	assert.Equal(t, t0.Add(time.Second), got.SubmittedAt.UTC())

	err = s.intents.RecordSubmission(ctx, "i1", "0xdef", t0.Add(time.Hour))
	assert.True(t, errors.Is(err, wrapErrors.ErrIllegalTransition))
	err = s.intents.RecordSubmission(ctx, "nope", "0xdef", t0)
	assert.True(t, errors.Is(err, wrapErrors.ErrNotFound))

	require.NoError(t, s.intents.SoftDelete(ctx, "i1", t0.Add(time.Hour)))
	got, err = s.intents.GetByID(ctx, "i1")
	require.NoError(t, err)
	assert.Nil(t, got)
	confirming, err := s.intents.ListByStatus(ctx, entity.StatusConfirming)
	require.NoError(t, err)
	assert.Empty(t, confirming)
	_, total, err := s.intents.ListByUser(ctx, "u1", 10, 0)
	require.NoError(t, err)
	assert.Zero(t, total)

	err = s.intents.SoftDelete(ctx, "i1", t0.Add(2*time.Hour))
	assert.True(t, errors.Is(err, wrapErrors.ErrNotFound))
}

func projectContract(t *testing.T, s stores) {
	ctx := context.Background()
	ledger := &entity.ProjectLedger{ProjectID: 1, Name: "Sunrise", Location: "Tunis", TotalShares: 10000, PricePerShare: entity.AmountFromInt64(10), Status: entity.ProjectActive, ProjectType: "Solar"}

	p, err := s.projects.MergeLedger(ctx, ledger, t0)
	require.NoError(t, err)
	assert.True(t, p.IsCacheValid)
	assert.Equal(t, t0, p.LastSyncedAt.UTC())

	desc := "Rooftop array"
	_, err = s.projects.UpdateMetadata(ctx, 1, entity.ProjectMetadata{Description: &desc, Images: []string{"a.png"}})
	require.NoError(t, err)

	// a refresh replaces ledger fields and keeps the off-chain ones
	ledger.SharesSold = 100
	ledger.Name = "Sunrise II"
	p, err = s.projects.MergeLedger(ctx, ledger, t0.Add(time.Hour))
	require.NoError(t, err)
	assert.Equal(t, int64(100), p.SharesSold)
	assert.Equal(t, "Sunrise II", p.Name)
	assert.Equal(t, desc, p.Description)
	assert.Equal(t, []string{"a.png"}, p.Images)
	assert.Equal(t, "10", p.PricePerShare.String())

	_, err = s.projects.MergeLedger(ctx, &entity.ProjectLedger{ProjectID: 2, Name: "Breeze", Location: "Sfax", TotalShares: 10, Status: entity.ProjectPending, ProjectType: "Wind"}, t0)
	require.NoError(t, err)

	stale, err := s.projects.ListStale(ctx, t0.Add(time.Minute))
	require.NoError(t, err)
	assert.Equal(t, []int64{2}, stale)

	ids, err := s.projects.ListIDs(ctx)
	require.NoError(t, err)
	assert.Equal(t, []int64{1, 2}, ids)

	active := entity.ProjectActive
	list, err := s.projects.List(ctx, entity.ProjectFilter{Status: &active})
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, int64(1), list[0].ProjectID)

	list, err = s.projects.List(ctx, entity.ProjectFilter{Location: "SFA"})
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, "Breeze", list[0].Name)

	_, err = s.projects.UpdateMetadata(ctx, 99, entity.ProjectMetadata{Description: &desc})
	assert.True(t, errors.Is(err, wrapErrors.ErrNotFound))
}

func positionContract(t *testing.T, s stores) {
	ctx := context.Background()
	addr := "0x00000000000000000000000000000000000000A1"

	// purchase time may arrive before the first refresh
	bought := t0.Add(-time.Hour)
	require.NoError(t, s.positions.SetPurchasedAt(ctx, addr, 1, bought))

	p, err := s.positions.MergeLedger(ctx, &entity.PositionLedger{WalletAddress: addr, ProjectID: 1, Shares: 100, TotalInvested: entity.AmountFromInt64(1000)}, t0)
	require.NoError(t, err)
	assert.Equal(t, int64(100), p.Shares)
	require.NotNil(t, p.PurchasedAt)
	assert.Equal(t, bought, p.PurchasedAt.UTC())

	require.NoError(t, s.positions.SetPurchasedAt(ctx, addr, 1, t0.Add(time.Hour)))
	got, err := s.positions.Get(ctx, addr, 1)
	require.NoError(t, err)
	assert.Equal(t, bought, got.PurchasedAt.UTC(), "first purchase time wins")

	keys, err := s.positions.ListKeys(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{entity.PositionKey(addr, 1)}, keys)

	stale, err := s.positions.ListStale(ctx, t0.Add(time.Second))
	require.NoError(t, err)
	assert.Len(t, stale, 1)
	stale, err = s.positions.ListStale(ctx, t0)
	require.NoError(t, err)
	assert.Empty(t, stale)
}
