package chain

import (
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPurchaseCalldata(t *testing.T) {
	data, err := PackPurchase(7, 250)
	require.NoError(t, err)
	assert.Len(t, data, 4+2*32)

	id, shares, err := UnpackPurchase(data)
	require.NoError(t, err)
	assert.Equal(t, int64(7), id)
	assert.Equal(t, int64(250), shares)

	_, _, err = UnpackPurchase(data[:3])
	assert.Error(t, err)

	other, err := EnergyTokenABI.Pack(methodNextProjectID)
	require.NoError(t, err)
	_, _, err = UnpackPurchase(other)
	assert.Error(t, err)
}

func TestDecodeProject(t *testing.T) {
	wallet := common.HexToAddress("0x00000000000000000000000000000000000000B0")
	price := big.NewInt(10_000_000_000_000_000)
	core := []interface{}{
		"Sunrise", "Tunis",
		big.NewInt(500), big.NewInt(650000), big.NewInt(10000), big.NewInt(100),
		price, big.NewInt(1700000000), uint8(1), wallet, true,
	}
	meta := []interface{}{"Solar", "Photovoltaic", "QmDoc", big.NewInt(788400000)}
	stats := []interface{}{big.NewInt(4200), big.NewInt(3), big.NewInt(1400), big.NewInt(1700001000)}

	p, err := decodeProject(1, core, meta, stats)
	require.NoError(t, err)
	assert.Equal(t, "Sunrise", p.Name)
	assert.Equal(t, int64(10000), p.TotalShares)
	assert.Equal(t, int64(100), p.SharesSold)
	assert.Equal(t, price.String(), p.PricePerShare.String())
	assert.Equal(t, 1, p.Status)
	assert.Equal(t, wallet.Hex(), p.ProjectWallet)
	assert.True(t, p.TransfersEnabled)
	assert.Equal(t, "Photovoltaic", p.ProjectSubtype)
	assert.Equal(t, int64(4200), p.TotalProduction)
	assert.Equal(t, int64(3), p.ProductionRecordCount)

	core[8] = "active"
	_, err = decodeProject(1, core, meta, stats)
	assert.Error(t, err)
}

func TestDecodePosition(t *testing.T) {
	out := []interface{}{big.NewInt(100), big.NewInt(1_000_000_000_000_000_000), big.NewInt(0), big.NewInt(1000), big.NewInt(6500)}
	pos, err := decodePosition("0xabc", 1, out)
	require.NoError(t, err)
	assert.Equal(t, int64(100), pos.Shares)
	assert.Equal(t, "1000000000000000000", pos.TotalInvested.String())
	assert.Equal(t, int64(1000), pos.ClaimableKwh)
	assert.Equal(t, int64(6500), pos.EstimatedAnnualKwh)

	_, err = decodePosition("0xabc", 1, out[:2])
	assert.Error(t, err)
}
