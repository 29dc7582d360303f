// Package units converts between on-chain integer amounts and human readable figures.
package units

import (
	"math/big"

	"github.com/shopspring/decimal"
)

const (
	USDCDecimals  = 6
	EtherDecimals = 18
	GweiDecimals  = 9
)

// GweiToWei converts whole gwei into wei.
func GweiToWei(g int64) *big.Int {
	x := new(big.Int).SetInt64(g)
	return x.Mul(x, big.NewInt(1_000_000_000))
}

// Format renders an integer amount with the given number of decimals, trimming trailing zeros.
func Format(x *big.Int, decimals int32) string {
	if x == nil {
		return "0"
	}
	return decimal.NewFromBigInt(x, -decimals).String()
}

// FormatUSDC renders micro-USDC as USDC.
func FormatUSDC(x *big.Int) string { return Format(x, USDCDecimals) }

// FormatETH renders wei as ETH with six fixed decimals.
func FormatETH(x *big.Int) string {
	if x == nil {
		return "0"
	}
	return decimal.NewFromBigInt(x, -EtherDecimals).StringFixed(6)
}

// FormatGwei renders wei as gwei with two fixed decimals.
func FormatGwei(x *big.Int) string {
	if x == nil {
		return "0"
	}
	return decimal.NewFromBigInt(x, -GweiDecimals).StringFixed(2)
}

// MulInt64 returns a*b as a new big.Int.
func MulInt64(a, b int64) *big.Int {
	return new(big.Int).Mul(big.NewInt(a), big.NewInt(b))
}
