// Package fixedpoint implements the integer fixed-point arithmetic shared by
// every ledger in the system. Amounts are non-negative integers denominated in
// base units of SingleUnit (1e6); fee percentages and NAVs use the same scale.
// All divisions floor toward zero, so rounding error never favors the caller.
package fixedpoint

import (
	"math/big"

	"github.com/shopspring/decimal"
)

// SingleUnit is the fixed-point scale factor: 1.0 == 1e6 base units.
var SingleUnit = decimal.NewFromInt(1_000_000)

// MaxUint is the sentinel for an unset cap (2^256 - 1, matching the widest
// balance any upstream system would carry).
var MaxUint = decimal.NewFromBigInt(new(big.Int).Sub(new(big.Int).Lsh(big.NewInt(1), 256), big.NewInt(1)), 0)

// Zero is the zero amount.
var Zero = decimal.Zero

// FromUnits returns n whole units as a base-unit amount (n * 1e6).
func FromUnits(n int64) decimal.Decimal {
	return decimal.NewFromInt(n).Mul(SingleUnit)
}

// FromBase returns n base units.
func FromBase(n int64) decimal.Decimal {
	return decimal.NewFromInt(n)
}

// IsValidAmount reports whether a is a positive integer number of base units.
func IsValidAmount(a decimal.Decimal) bool {
	return a.Sign() > 0 && a.Equal(a.Floor())
}

// MulDivFloor computes floor(a * b / c) exactly, via an integer quotient, so
// no divisor magnitude can round the result across an integer boundary.
// Returns zero when c is not positive; callers validate their divisors before
// converting.
func MulDivFloor(a, b, c decimal.Decimal) decimal.Decimal {
	if c.Sign() <= 0 {
		return decimal.Zero
	}
	num := a.Mul(b).BigInt()
	return decimal.NewFromBigInt(new(big.Int).Quo(num, c.BigInt()), 0)
}

// Fee computes floor(amount * pct / SingleUnit), the levy taken from amount at
// a parts-per-SingleUnit percentage.
func Fee(amount, pct decimal.Decimal) decimal.Decimal {
	return MulDivFloor(amount, pct, SingleUnit)
}

// SharesFromAssets converts a settlement-asset amount to shares at the given
// NAV: floor(assets * SingleUnit / nav). nav must be positive.
func SharesFromAssets(assets, nav decimal.Decimal) decimal.Decimal {
	return MulDivFloor(assets, SingleUnit, nav)
}

// AssetsFromShares converts shares to a settlement-asset amount at the given
// NAV: floor(shares * nav / SingleUnit).
func AssetsFromShares(shares, nav decimal.Decimal) decimal.Decimal {
	return MulDivFloor(shares, nav, SingleUnit)
}

// Min returns the smaller of a and b.
func Min(a, b decimal.Decimal) decimal.Decimal {
	if a.LessThan(b) {
		return a
	}
	return b
}
