package chain

import (
	"context"
	"math/big"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/ethclient/simulated"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	wrapErrors "github.com/linlinbupt123-crypto/energy_share_service/errors"
	"github.com/linlinbupt123-crypto/energy_share_service/logging"
)

// The simulated backend has no EnergyToken deployed; calls to the contract
// address behave like plain value transfers, which is enough to exercise
// preparation, submission and confirmation tracking.
func TestETHChainSubmitAndConfirm(t *testing.T) {
	ctx := context.Background()
	key, err := crypto.GenerateKey()
	require.NoError(t, err)
	from := crypto.PubkeyToAddress(key.PublicKey)

	sim := simulated.NewBackend(types.GenesisAlloc{from: {Balance: ether(10)}})
	defer sim.Close()

	contract := common.HexToAddress("0x00000000000000000000000000000000000C0FFE")
	gw, err := NewETHChainWithBackend(ctx, sim.Client(), contract, 5*time.Millisecond, logging.Discard())
	require.NoError(t, err)

	tx, signer, err := gw.PreparePurchase(ctx, PurchaseRequest{
		From: from.Hex(), ProjectID: 1, Shares: 100, Value: big.NewInt(12345), GasLimit: 300_000,
	})
	require.NoError(t, err)
	assert.Equal(t, contract, *tx.To())
	assert.Equal(t, uint64(300_000), tx.Gas())
	assert.Equal(t, 1, tx.GasFeeCap().Cmp(tx.GasTipCap()))

	signed, err := types.SignTx(tx, signer, key)
	require.NoError(t, err)
	hash, err := gw.Submit(ctx, signed)
	require.NoError(t, err)
	assert.Equal(t, signed.Hash().Hex(), hash)

	done := make(chan struct{})
	defer close(done)
	go func() {
		ticker := time.NewTicker(5 * time.Millisecond)
		defer ticker.Stop()
		for {
			select {
			case <-done:
				return
			case <-ticker.C:
				sim.Commit()
			}
		}
	}()

	waitCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	conf, err := gw.WaitForConfirmation(waitCtx, hash, 3)
	require.NoError(t, err)
	assert.True(t, conf.Success)
	assert.GreaterOrEqual(t, conf.Confirmations, uint64(3))
	assert.Positive(t, conf.Fee.Sign())
	assert.False(t, conf.BlockTime.IsZero())

	bal, err := gw.ReadBalance(ctx, contract.Hex())
	require.NoError(t, err)
	assert.Equal(t, "12345", bal.String())
}

func TestETHChainReadWithoutContract(t *testing.T) {
	ctx := context.Background()
	sim := simulated.NewBackend(types.GenesisAlloc{})
	defer sim.Close()

	gw, err := NewETHChainWithBackend(ctx, sim.Client(), common.HexToAddress("0x01"), time.Millisecond, logging.Discard())
	require.NoError(t, err)

	_, err = gw.ReadProject(ctx, 1)
	require.Error(t, err)
	assert.Equal(t, wrapErrors.CodeChainRPC, wrapErrors.CodeOf(err))

	_, err = gw.ReadPosition(ctx, "bogus", 1)
	assert.Equal(t, wrapErrors.CodeValidation, wrapErrors.CodeOf(err))
}

func TestETHChainWaitTimesOut(t *testing.T) {
	sim := simulated.NewBackend(types.GenesisAlloc{})
	defer sim.Close()

	gw, err := NewETHChainWithBackend(context.Background(), sim.Client(), common.HexToAddress("0x01"), time.Millisecond, logging.Discard())
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err = gw.WaitForConfirmation(ctx, common.HexToHash("0x1234").Hex(), 1)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestETHChainCheckConfirmation(t *testing.T) {
	ctx := context.Background()
	key, err := crypto.GenerateKey()
	require.NoError(t, err)
	from := crypto.PubkeyToAddress(key.PublicKey)

	sim := simulated.NewBackend(types.GenesisAlloc{from: {Balance: ether(10)}})
	defer sim.Close()

	gw, err := NewETHChainWithBackend(ctx, sim.Client(), common.HexToAddress("0x00000000000000000000000000000000000C0FFE"), time.Millisecond, logging.Discard())
	require.NoError(t, err)

	tx, signer, err := gw.PreparePurchase(ctx, PurchaseRequest{
		From: from.Hex(), ProjectID: 1, Shares: 1, Value: big.NewInt(1), GasLimit: 300_000,
	})
	require.NoError(t, err)
	signed, err := types.SignTx(tx, signer, key)
	require.NoError(t, err)
	hash, err := gw.Submit(ctx, signed)
	require.NoError(t, err)

	conf, err := gw.CheckConfirmation(ctx, hash, 3)
	require.NoError(t, err)
	assert.Nil(t, conf, "not mined yet")

	for i := 0; i < 5; i++ {
		sim.Commit()
	}

	// an exhausted wait reports the deadline even though the tx is settled
	expired, cancel := context.WithDeadline(ctx, time.Now().Add(-time.Second))
	defer cancel()
	_, err = gw.WaitForConfirmation(expired, hash, 3)
	assert.ErrorIs(t, err, context.DeadlineExceeded)

	conf, err = gw.CheckConfirmation(ctx, hash, 3)
	require.NoError(t, err)
	require.NotNil(t, conf)
	assert.True(t, conf.Success)
	assert.Equal(t, uint64(5), conf.Confirmations)

	conf, err = gw.CheckConfirmation(ctx, common.HexToHash("0x1234").Hex(), 1)
	require.NoError(t, err)
	assert.Nil(t, conf)
}
