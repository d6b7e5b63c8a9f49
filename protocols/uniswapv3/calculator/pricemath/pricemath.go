package pricemath

import (
	"bytes"
	"errors"
	"math/big"

	"github.com/defistate/lpsnapshot-go/protocols/uniswapv3/calculator/fullmath"
	"github.com/defistate/lpsnapshot-go/protocols/uniswapv3/calculator/tickmath"
	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
)

var (
	ErrSameToken    = errors.New("base and quote must be different tokens")
	ErrPriceInvalid = errors.New("price must be positive")

	q192 = new(big.Int).Lsh(big.NewInt(1), 192)
	ten  = big.NewInt(10)
)

// Token identifies one side of a pool.
type Token struct {
	Address  common.Address `json:"address"`
	Decimals uint8          `json:"decimals"`
}

// SortsBefore reports whether t is token0 of a pool made of t and other.
func (t Token) SortsBefore(other Token) bool {
	return bytes.Compare(t.Address[:], other.Address[:]) < 0
}

func pow10(decimals uint8) *big.Int {
	return new(big.Int).Exp(ten, big.NewInt(int64(decimals)), nil)
}

// PriceFromSqrtRatio returns the price of one whole base token expressed in the
// smallest unit of quote, rounded down.
func PriceFromSqrtRatio(base, quote Token, sqrtRatioX96 *uint256.Int) (*big.Int, error) {
	if base.Address == quote.Address {
		return nil, ErrSameToken
	}
	if sqrtRatioX96.IsZero() {
		return nil, tickmath.ErrSqrtRatioOutOfRange
	}

	ratio := sqrtRatioX96.ToBig()
	ratio.Mul(ratio, ratio)

	if base.SortsBefore(quote) {
		num := ratio.Mul(ratio, pow10(base.Decimals))
		return num.Quo(num, q192), nil
	}
	num := new(big.Int).Mul(q192, pow10(base.Decimals))
	return num.Quo(num, ratio), nil
}

// PriceToSqrtRatioX96 is the inverse of PriceFromSqrtRatio, rounded down.
func PriceToSqrtRatioX96(base, quote Token, price *big.Int) (*uint256.Int, error) {
	if base.Address == quote.Address {
		return nil, ErrSameToken
	}
	if price == nil || price.Sign() <= 0 {
		return nil, ErrPriceInvalid
	}

	var ratioX192 *big.Int
	if base.SortsBefore(quote) {
		ratioX192 = new(big.Int).Mul(q192, price)
		ratioX192.Quo(ratioX192, pow10(base.Decimals))
	} else {
		ratioX192 = new(big.Int).Mul(q192, pow10(base.Decimals))
		ratioX192.Quo(ratioX192, price)
	}

	out, overflow := uint256.FromBig(ratioX192.Sqrt(ratioX192))
	if overflow {
		return nil, fullmath.ErrOverflow
	}
	return out, nil
}

// TickToPrice returns the price of one whole base token in quote units at tick.
func TickToPrice(base, quote Token, tick int64) (*big.Int, error) {
	var sqrtRatioX96 uint256.Int
	if err := tickmath.GetSqrtRatioAtTick(&sqrtRatioX96, tick); err != nil {
		return nil, err
	}
	return PriceFromSqrtRatio(base, quote, &sqrtRatioX96)
}

// TickPrice is a tick together with the prices it represents.
type TickPrice struct {
	Tick          int64        `json:"tick"`
	SqrtRatioX96  *uint256.Int `json:"sqrtRatioX96"`
	Price         *big.Int     `json:"price"`
	PriceInverted *big.Int     `json:"priceInverted"`
}

// PriceToClosestTick returns the greatest tick not above the one price falls in.
// When base sorts before quote the price rises with the tick and this is the
// greatest tick whose price does not exceed price; otherwise the price falls as
// the tick rises and it is the greatest tick whose price is not below price.
// A zero price maps to the lowest usable tick and a price of 2^256-1 to the highest.
func PriceToClosestTick(base, quote Token, price *big.Int, spacing int64) (TickPrice, error) {
	if price == nil || price.Sign() < 0 {
		return TickPrice{}, ErrPriceInvalid
	}

	switch {
	case price.Sign() == 0:
		tick, err := tickmath.NearestUsableTick(tickmath.MinTick, spacing)
		if err != nil {
			return TickPrice{}, err
		}
		return TickPrice{
			Tick:          tick,
			SqrtRatioX96:  new(uint256.Int).Set(tickmath.MinSqrtRatio),
			Price:         price,
			PriceInverted: fullmath.MaxUint256.ToBig(),
		}, nil

	case price.Cmp(fullmath.MaxUint256.ToBig()) == 0:
		tick, err := tickmath.NearestUsableTick(tickmath.MaxTick, spacing)
		if err != nil {
			return TickPrice{}, err
		}
		return TickPrice{
			Tick:          tick,
			SqrtRatioX96:  new(uint256.Int).Set(tickmath.MaxSqrtRatio),
			Price:         price,
			PriceInverted: new(big.Int),
		}, nil
	}

	sqrtRatioX96, err := PriceToSqrtRatioX96(base, quote, price)
	if err != nil {
		return TickPrice{}, err
	}
	tick, err := tickmath.GetTickAtSqrtRatio(sqrtRatioX96)
	if err != nil {
		return TickPrice{}, err
	}

	// the square root is floored, so the tick may be one short.
	if tick < tickmath.MaxTick {
		next, err := TickToPrice(base, quote, tick+1)
		if err != nil {
			return TickPrice{}, err
		}
		cmp := price.Cmp(next)
		if !base.SortsBefore(quote) {
			cmp = -cmp
		}
		if cmp >= 0 {
			tick++
		}
	}
	return AtTick(base, quote, tick)
}

// PriceToClosestUsableTick is PriceToClosestTick snapped to a multiple of spacing.
func PriceToClosestUsableTick(base, quote Token, price *big.Int, spacing int64) (TickPrice, error) {
	closest, err := PriceToClosestTick(base, quote, price, spacing)
	if err != nil {
		return TickPrice{}, err
	}
	usable, err := tickmath.NearestUsableTick(closest.Tick, spacing)
	if err != nil {
		return TickPrice{}, err
	}
	if usable == closest.Tick {
		return closest, nil
	}
	return AtTick(base, quote, usable)
}

// AtTick returns tick with its sqrt ratio and the prices of base in quote and of quote in base.
func AtTick(base, quote Token, tick int64) (TickPrice, error) {
	out := TickPrice{Tick: tick, SqrtRatioX96: new(uint256.Int)}
	if err := tickmath.GetSqrtRatioAtTick(out.SqrtRatioX96, tick); err != nil {
		return TickPrice{}, err
	}

	var err error
	if out.Price, err = PriceFromSqrtRatio(base, quote, out.SqrtRatioX96); err != nil {
		return TickPrice{}, err
	}
	if out.PriceInverted, err = PriceFromSqrtRatio(quote, base, out.SqrtRatioX96); err != nil {
		return TickPrice{}, err
	}
	return out, nil
}
