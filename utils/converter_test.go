package utils

import (
	"math/big"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFormatUnits(t *testing.T) {
	assert.Equal(t, "0.01", FormatUnits(big.NewInt(10_000_000_000_000_000), 18))
	assert.Equal(t, "1", WeiToETH(mustWei(t, "1")))
	assert.Equal(t, "0.025", WeiToETH(big.NewInt(25_000_000_000_000_000)))
	assert.Equal(t, "0", FormatUnits(nil, 18))
}

func TestParseUnits(t *testing.T) {
	v, err := ETHToWei("0.01")
	require.NoError(t, err)
	assert.Equal(t, "10000000000000000", v.String())

	_, err = ParseUnits("0.0000000000000000001", 18)
	assert.Error(t, err)

	_, err = ParseUnits("abc", 18)
	assert.Error(t, err)
}

func TestBasisPoints(t *testing.T) {
	total := mustWei(t, "1")
	assert.Equal(t, "25000000000000000", BasisPoints(total, 250).String())
	assert.Equal(t, "0", BasisPoints(big.NewInt(39), 250).String())
}

func mustWei(t *testing.T, eth string) *big.Int {
	t.Helper()
	v, err := ETHToWei(eth)
	require.NoError(t, err)
	return v
}
