package liquiditymath

import (
	"errors"
	"math/big"

	"github.com/defistate/lpsnapshot-go/protocols/uniswapv3/calculator/fullmath"
	"github.com/holiman/uint256"
)

var (
	ErrLiquidityOverflow  = errors.New("liquidity overflow")
	ErrLiquidityUnderflow = errors.New("liquidity underflow")
)

// AddDelta adds a signed liquidity delta to an unsigned uint128 liquidity value.
// y is read as a two's complement signed integer.
func AddDelta(dest, x, y *uint256.Int) error {
	if y.Sign() < 0 {
		var abs uint256.Int
		abs.Neg(y)
		if abs.Gt(x) {
			return ErrLiquidityUnderflow
		}
		dest.Sub(x, &abs)
		return nil
	}

	if _, overflow := dest.AddOverflow(x, y); overflow || dest.Gt(fullmath.MaxUint128) {
		return ErrLiquidityOverflow
	}
	return nil
}

// MaxLiquidityForAmount0Imprecise writes the liquidity received for amount0 of
// token0 between the two prices into dest. It matches the rounding of the
// on-chain periphery contracts.
func MaxLiquidityForAmount0Imprecise(dest, sqrtRatioAX96, sqrtRatioBX96, amount0 *uint256.Int) error {
	if sqrtRatioAX96.Gt(sqrtRatioBX96) {
		sqrtRatioAX96, sqrtRatioBX96 = sqrtRatioBX96, sqrtRatioAX96
	}

	var intermediate, diff uint256.Int
	if err := fullmath.MulDiv(&intermediate, sqrtRatioAX96, sqrtRatioBX96, fullmath.Q96); err != nil {
		return err
	}
	diff.Sub(sqrtRatioBX96, sqrtRatioAX96)
	return fullmath.MulDiv(dest, amount0, &intermediate, &diff)
}

// MaxLiquidityForAmount0Precise is MaxLiquidityForAmount0Imprecise with the
// division deferred to the end. The triple product can exceed 512 bits, so it is
// evaluated at arbitrary precision and only the result has to fit 256 bits.
func MaxLiquidityForAmount0Precise(dest, sqrtRatioAX96, sqrtRatioBX96, amount0 *uint256.Int) error {
	if sqrtRatioAX96.Gt(sqrtRatioBX96) {
		sqrtRatioAX96, sqrtRatioBX96 = sqrtRatioBX96, sqrtRatioAX96
	}
	if sqrtRatioAX96.Eq(sqrtRatioBX96) {
		return fullmath.ErrDivisionByZero
	}

	numerator := new(big.Int).Mul(amount0.ToBig(), sqrtRatioAX96.ToBig())
	numerator.Mul(numerator, sqrtRatioBX96.ToBig())

	denominator := new(big.Int).Sub(sqrtRatioBX96.ToBig(), sqrtRatioAX96.ToBig())
	denominator.Lsh(denominator, 96)

	if overflow := dest.SetFromBig(numerator.Quo(numerator, denominator)); overflow {
		return fullmath.ErrOverflow
	}
	return nil
}

// MaxLiquidityForAmount1 writes the liquidity received for amount1 of token1
// between the two prices into dest.
func MaxLiquidityForAmount1(dest, sqrtRatioAX96, sqrtRatioBX96, amount1 *uint256.Int) error {
	if sqrtRatioAX96.Gt(sqrtRatioBX96) {
		sqrtRatioAX96, sqrtRatioBX96 = sqrtRatioBX96, sqrtRatioAX96
	}

	var diff uint256.Int
	diff.Sub(sqrtRatioBX96, sqrtRatioAX96)
	return fullmath.MulDiv(dest, amount1, fullmath.Q96, &diff)
}

// MaxLiquidityForAmounts writes the maximum liquidity that amount0 and amount1
// can back at the current price for the range [sqrtRatioA, sqrtRatioB] into dest.
// useFullPrecision selects MaxLiquidityForAmount0Precise over the imprecise form.
func MaxLiquidityForAmounts(dest, sqrtRatioCurrentX96, sqrtRatioAX96, sqrtRatioBX96, amount0, amount1 *uint256.Int, useFullPrecision bool) error {
	if sqrtRatioAX96.Gt(sqrtRatioBX96) {
		sqrtRatioAX96, sqrtRatioBX96 = sqrtRatioBX96, sqrtRatioAX96
	}

	forAmount0 := MaxLiquidityForAmount0Imprecise
	if useFullPrecision {
		forAmount0 = MaxLiquidityForAmount0Precise
	}

	switch {
	case !sqrtRatioCurrentX96.Gt(sqrtRatioAX96):
		return forAmount0(dest, sqrtRatioAX96, sqrtRatioBX96, amount0)

	case sqrtRatioCurrentX96.Lt(sqrtRatioBX96):
		var liquidity0, liquidity1 uint256.Int
		if err := forAmount0(&liquidity0, sqrtRatioCurrentX96, sqrtRatioBX96, amount0); err != nil {
			return err
		}
		if err := MaxLiquidityForAmount1(&liquidity1, sqrtRatioAX96, sqrtRatioCurrentX96, amount1); err != nil {
			return err
		}
		if liquidity0.Lt(&liquidity1) {
			dest.Set(&liquidity0)
		} else {
			dest.Set(&liquidity1)
		}
		return nil

	default:
		return MaxLiquidityForAmount1(dest, sqrtRatioAX96, sqrtRatioBX96, amount1)
	}
}
