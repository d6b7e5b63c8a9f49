package positionmath

import (
	"errors"
	"fmt"

	"github.com/defistate/lpsnapshot-go/protocols/uniswapv3/calculator/fullmath"
	"github.com/defistate/lpsnapshot-go/protocols/uniswapv3/calculator/sqrtpricemath"
	"github.com/defistate/lpsnapshot-go/protocols/uniswapv3/calculator/tickmath"
	"github.com/holiman/uint256"
)

var (
	ErrInvalidRange      = errors.New("tickLower must be less than tickUpper")
	ErrLiquidityTooLarge = errors.New("liquidity exceeds uint128")
	ErrLiquidityNil      = errors.New("liquidity cannot be nil")
)

// Validate checks that a position can be decomposed.
func Validate(tickLower, tickUpper int64, liquidity *uint256.Int) error {
	if tickLower >= tickUpper {
		return fmt.Errorf("%w: [%d, %d]", ErrInvalidRange, tickLower, tickUpper)
	}
	if tickLower < tickmath.MinTick || tickUpper > tickmath.MaxTick {
		return fmt.Errorf("%w: [%d, %d]", tickmath.ErrTickOutOfRange, tickLower, tickUpper)
	}
	if liquidity == nil {
		return ErrLiquidityNil
	}
	if liquidity.Gt(fullmath.MaxUint128) {
		return ErrLiquidityTooLarge
	}
	return nil
}

// IsActive reports whether the range [tickLower, tickUpper] contains currentTick.
func IsActive(tickLower, tickUpper, currentTick int64) bool {
	return tickLower <= currentTick && currentTick <= tickUpper
}

// Decompose returns the token amounts a position of liquidity over
// [tickLower, tickUpper] represents at currentTick, both rounded down.
//
// A range above the current tick is entirely token0 and a range below it is
// entirely token1. With activeOnly set, such out-of-range positions value to (0, 0).
func Decompose(tickLower, tickUpper int64, liquidity *uint256.Int, currentTick int64, activeOnly bool) (*uint256.Int, *uint256.Int, error) {
	if err := Validate(tickLower, tickUpper, liquidity); err != nil {
		return nil, nil, err
	}
	if currentTick < tickmath.MinTick || currentTick > tickmath.MaxTick {
		return nil, nil, fmt.Errorf("%w: current tick %d", tickmath.ErrTickOutOfRange, currentTick)
	}

	amount0 := new(uint256.Int)
	amount1 := new(uint256.Int)
	if activeOnly && !IsActive(tickLower, tickUpper, currentTick) {
		return amount0, amount1, nil
	}

	var sqrtLower, sqrtUpper uint256.Int
	if err := tickmath.GetSqrtRatioAtTick(&sqrtLower, tickLower); err != nil {
		return nil, nil, err
	}
	if err := tickmath.GetSqrtRatioAtTick(&sqrtUpper, tickUpper); err != nil {
		return nil, nil, err
	}

	switch {
	case tickLower > currentTick:
		if err := sqrtpricemath.GetAmount0Delta(amount0, &sqrtLower, &sqrtUpper, liquidity, false); err != nil {
			return nil, nil, err
		}

	case tickUpper < currentTick:
		if err := sqrtpricemath.GetAmount1Delta(amount1, &sqrtLower, &sqrtUpper, liquidity, false); err != nil {
			return nil, nil, err
		}

	default:
		var sqrtCurrent uint256.Int
		if err := tickmath.GetSqrtRatioAtTick(&sqrtCurrent, currentTick); err != nil {
			return nil, nil, err
		}
		if err := sqrtpricemath.GetAmount0Delta(amount0, &sqrtCurrent, &sqrtUpper, liquidity, false); err != nil {
			return nil, nil, err
		}
		if err := sqrtpricemath.GetAmount1Delta(amount1, &sqrtLower, &sqrtCurrent, liquidity, false); err != nil {
			return nil, nil, err
		}
	}
	return amount0, amount1, nil
}
