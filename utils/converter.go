package utils

import (
	"fmt"
	"math/big"

	"github.com/shopspring/decimal"
)

// FormatUnits renders an integer minor-unit amount as a decimal string,
// e.g. FormatUnits(10^16, 18) == "0.01".
func FormatUnits(v *big.Int, decimals int32) string {
	if v == nil {
		return "0"
	}
	return decimal.NewFromBigInt(v, -decimals).String()
}

// ParseUnits is the inverse of FormatUnits. Fractional digits beyond
// decimals are rejected rather than rounded.
func ParseUnits(s string, decimals int32) (*big.Int, error) {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return nil, err
	}
	scaled := d.Shift(decimals)
	if !scaled.Equal(scaled.Truncate(0)) {
		return nil, fmt.Errorf("%q has more than %d fractional digits", s, decimals)
	}
	return scaled.BigInt(), nil
}

func WeiToETH(wei *big.Int) string {
	return FormatUnits(wei, LedgerDecimals)
}

func ETHToWei(eth string) (*big.Int, error) {
	return ParseUnits(eth, LedgerDecimals)
}

// BasisPoints returns v * bps / 10000, truncated toward zero.
func BasisPoints(v *big.Int, bps int64) *big.Int {
	out := new(big.Int).Mul(v, big.NewInt(bps))
	return out.Quo(out, big.NewInt(BasisPointsDenominator))
}
