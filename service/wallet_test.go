package service

import (
	"context"
	"errors"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	wrapErrors "github.com/linlinbupt123-crypto/energy_share_service/errors"
	"github.com/linlinbupt123-crypto/energy_share_service/utils"
)

func TestCreateWallet(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)

	addr, err := h.walletSvc.CreateWallet(ctx, "alice", "s3cret")
	require.NoError(t, err)
	assert.True(t, common.IsHexAddress(addr))

	w, err := h.walletSvc.GetWallet(ctx, "alice")
	require.NoError(t, err)
	require.NotNil(t, w)
	assert.Equal(t, addr, w.Address)
	assert.Equal(t, utils.WALLET_DERIVATION_PATH, w.DerivationPath)
	assert.Equal(t, "pbkdf2-sha512", w.Envelope.KDF)
	assert.NotContains(t, string(w.Envelope.Ciphertext), "s3cret")

	_, err = h.walletSvc.CreateWallet(ctx, "alice", "other")
	assert.True(t, errors.Is(err, wrapErrors.ErrWalletExists))

	_, err = h.walletSvc.CreateWallet(ctx, "bob", "")
	assert.True(t, errors.Is(err, wrapErrors.ErrValidation))
	_, err = h.walletSvc.CreateWallet(ctx, " ", "pw")
	assert.True(t, errors.Is(err, wrapErrors.ErrValidation))
}

func TestVerifyWalletPassword(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	h.investor(t, "alice", "s3cret", nil)

	ok, err := h.walletSvc.VerifyWalletPassword(ctx, "alice", "s3cret")
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = h.walletSvc.VerifyWalletPassword(ctx, "alice", "S3cret")
	require.NoError(t, err)
	assert.False(t, ok)

	// no wallet looks like a wrong password
	ok, err = h.walletSvc.VerifyWalletPassword(ctx, "nobody", "s3cret")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestGetWalletMissing(t *testing.T) {
	h := newHarness(t)
	w, err := h.walletSvc.GetWallet(context.Background(), "nobody")
	require.NoError(t, err)
	assert.Nil(t, w)
}
