package sqrtpricemath

import (
	"errors"
	"fmt"
	"sync"

	"github.com/defistate/lpsnapshot-go/protocols/uniswapv3/calculator/fullmath"
	"github.com/holiman/uint256"
)

// Resolution is the number of fractional bits in the Q64.96 format.
const Resolution = uint(96)

var (
	ErrLiquidityZero     = errors.New("liquidity must be greater than zero")
	ErrSqrtPriceZero     = errors.New("sqrt price must be greater than zero")
	ErrPriceUnderflow    = errors.New("sqrt price must be greater than quotient")
	ErrLiquidityOverflow = errors.New("liquidity exceeds uint128")
)

// SqrtPriceMath holds reusable scratch values. Instances are managed by a
// sync.Pool and never escape a call.
type SqrtPriceMath struct {
	product     *uint256.Int
	numerator1  *uint256.Int
	numerator2  *uint256.Int
	denominator *uint256.Int
	quotient    *uint256.Int
	term        *uint256.Int
}

var pool = sync.Pool{
	New: func() any {
		return &SqrtPriceMath{
			product:     new(uint256.Int),
			numerator1:  new(uint256.Int),
			numerator2:  new(uint256.Int),
			denominator: new(uint256.Int),
			quotient:    new(uint256.Int),
			term:        new(uint256.Int),
		}
	},
}

// GetNextSqrtPriceFromAmount0RoundingUp writes the price reached by adding (or
// removing) amount of token0 into dest, rounding up.
func GetNextSqrtPriceFromAmount0RoundingUp(dest, sqrtPX96, liquidity, amount *uint256.Int, add bool) error {
	s := pool.Get().(*SqrtPriceMath)
	defer pool.Put(s)
	return s.getNextSqrtPriceFromAmount0RoundingUp(dest, sqrtPX96, liquidity, amount, add)
}

// GetNextSqrtPriceFromAmount1RoundingDown writes the price reached by adding (or
// removing) amount of token1 into dest, rounding down.
func GetNextSqrtPriceFromAmount1RoundingDown(dest, sqrtPX96, liquidity, amount *uint256.Int, add bool) error {
	s := pool.Get().(*SqrtPriceMath)
	defer pool.Put(s)
	return s.getNextSqrtPriceFromAmount1RoundingDown(dest, sqrtPX96, liquidity, amount, add)
}

// GetNextSqrtPriceFromInput writes the price after amountIn of the input token is added.
func GetNextSqrtPriceFromInput(dest, sqrtPX96, liquidity, amountIn *uint256.Int, zeroForOne bool) error {
	if sqrtPX96.IsZero() {
		return ErrSqrtPriceZero
	}
	if liquidity.IsZero() {
		return ErrLiquidityZero
	}

	if zeroForOne {
		return GetNextSqrtPriceFromAmount0RoundingUp(dest, sqrtPX96, liquidity, amountIn, true)
	}
	return GetNextSqrtPriceFromAmount1RoundingDown(dest, sqrtPX96, liquidity, amountIn, true)
}

// GetNextSqrtPriceFromOutput writes the price after amountOut of the output token is removed.
func GetNextSqrtPriceFromOutput(dest, sqrtPX96, liquidity, amountOut *uint256.Int, zeroForOne bool) error {
	if sqrtPX96.IsZero() {
		return ErrSqrtPriceZero
	}
	if liquidity.IsZero() {
		return ErrLiquidityZero
	}

	if zeroForOne {
		return GetNextSqrtPriceFromAmount1RoundingDown(dest, sqrtPX96, liquidity, amountOut, false)
	}
	return GetNextSqrtPriceFromAmount0RoundingUp(dest, sqrtPX96, liquidity, amountOut, false)
}

// GetAmount0Delta writes liquidity / sqrt(lower) - liquidity / sqrt(upper) into dest.
// The prices may be passed in either order.
func GetAmount0Delta(dest, sqrtRatioAX96, sqrtRatioBX96, liquidity *uint256.Int, roundUp bool) error {
	s := pool.Get().(*SqrtPriceMath)
	defer pool.Put(s)
	return s.getAmount0Delta(dest, sqrtRatioAX96, sqrtRatioBX96, liquidity, roundUp)
}

// GetAmount1Delta writes liquidity * (sqrt(upper) - sqrt(lower)) into dest.
// The prices may be passed in either order.
func GetAmount1Delta(dest, sqrtRatioAX96, sqrtRatioBX96, liquidity *uint256.Int, roundUp bool) error {
	s := pool.Get().(*SqrtPriceMath)
	defer pool.Put(s)
	return s.getAmount1Delta(dest, sqrtRatioAX96, sqrtRatioBX96, liquidity, roundUp)
}

func (s *SqrtPriceMath) getNextSqrtPriceFromAmount0RoundingUp(dest, sqrtPX96, liquidity, amount *uint256.Int, add bool) error {
	if amount.IsZero() {
		dest.Set(sqrtPX96)
		return nil
	}
	if liquidity.BitLen() > 128 {
		return ErrLiquidityOverflow
	}

	s.numerator1.Lsh(liquidity, Resolution)
	// the product is allowed to wrap; the division below detects it.
	fullmath.WrappingMul(s.product, amount, sqrtPX96)
	productFits := s.quotient.Div(s.product, amount).Eq(sqrtPX96)

	if add {
		if productFits {
			fullmath.WrappingAdd(s.denominator, s.numerator1, s.product)
			if !s.denominator.Lt(s.numerator1) {
				return fullmath.MulDivRoundingUp(dest, s.numerator1, sqrtPX96, s.denominator)
			}
		}
		// numerator1 / (numerator1 / sqrtP + amount) cannot overflow in the product.
		s.denominator.Div(s.numerator1, sqrtPX96)
		if _, overflow := s.denominator.AddOverflow(s.denominator, amount); overflow {
			return fmt.Errorf("%w: next price from amount0", fullmath.ErrOverflow)
		}
		return fullmath.DivRoundingUp(dest, s.numerator1, s.denominator)
	}

	if !productFits || !s.numerator1.Gt(s.product) {
		return fmt.Errorf("%w: next price from amount0", fullmath.ErrOverflow)
	}
	s.denominator.Sub(s.numerator1, s.product)
	if err := fullmath.MulDivRoundingUp(s.term, s.numerator1, sqrtPX96, s.denominator); err != nil {
		return err
	}
	if s.term.Gt(fullmath.MaxUint160) {
		return fmt.Errorf("%w: next price exceeds uint160", fullmath.ErrOverflow)
	}
	dest.Set(s.term)
	return nil
}

func (s *SqrtPriceMath) getNextSqrtPriceFromAmount1RoundingDown(dest, sqrtPX96, liquidity, amount *uint256.Int, add bool) error {
	if add {
		if !amount.Gt(fullmath.MaxUint160) {
			s.numerator1.Lsh(amount, Resolution)
			if err := fullmath.Div(s.quotient, s.numerator1, liquidity); err != nil {
				return err
			}
		} else if err := fullmath.MulDiv(s.quotient, amount, fullmath.Q96, liquidity); err != nil {
			return err
		}

		if _, overflow := s.term.AddOverflow(sqrtPX96, s.quotient); overflow || s.term.Gt(fullmath.MaxUint160) {
			return fmt.Errorf("%w: next price exceeds uint160", fullmath.ErrOverflow)
		}
		dest.Set(s.term)
		return nil
	}

	if !amount.Gt(fullmath.MaxUint160) {
		s.numerator1.Lsh(amount, Resolution)
		if err := fullmath.DivRoundingUp(s.quotient, s.numerator1, liquidity); err != nil {
			return err
		}
	} else if err := fullmath.MulDivRoundingUp(s.quotient, amount, fullmath.Q96, liquidity); err != nil {
		return err
	}

	if !sqrtPX96.Gt(s.quotient) {
		return ErrPriceUnderflow
	}
	dest.Sub(sqrtPX96, s.quotient)
	return nil
}

func (s *SqrtPriceMath) getAmount0Delta(dest, sqrtRatioAX96, sqrtRatioBX96, liquidity *uint256.Int, roundUp bool) error {
	if sqrtRatioAX96.Gt(sqrtRatioBX96) {
		sqrtRatioAX96, sqrtRatioBX96 = sqrtRatioBX96, sqrtRatioAX96
	}
	if sqrtRatioAX96.IsZero() {
		return ErrSqrtPriceZero
	}
	if liquidity.BitLen() > 128 {
		return ErrLiquidityOverflow
	}

	s.numerator1.Lsh(liquidity, Resolution)
	s.numerator2.Sub(sqrtRatioBX96, sqrtRatioAX96)

	if roundUp {
		if err := fullmath.MulDivRoundingUp(s.term, s.numerator1, s.numerator2, sqrtRatioBX96); err != nil {
			return err
		}
		return fullmath.DivRoundingUp(dest, s.term, sqrtRatioAX96)
	}
	if err := fullmath.MulDiv(s.term, s.numerator1, s.numerator2, sqrtRatioBX96); err != nil {
		return err
	}
	return fullmath.Div(dest, s.term, sqrtRatioAX96)
}

func (s *SqrtPriceMath) getAmount1Delta(dest, sqrtRatioAX96, sqrtRatioBX96, liquidity *uint256.Int, roundUp bool) error {
	if sqrtRatioAX96.Gt(sqrtRatioBX96) {
		sqrtRatioAX96, sqrtRatioBX96 = sqrtRatioBX96, sqrtRatioAX96
	}

	s.numerator1.Sub(sqrtRatioBX96, sqrtRatioAX96)
	if roundUp {
		return fullmath.MulDivRoundingUp(dest, liquidity, s.numerator1, fullmath.Q96)
	}
	return fullmath.MulDiv(dest, liquidity, s.numerator1, fullmath.Q96)
}
