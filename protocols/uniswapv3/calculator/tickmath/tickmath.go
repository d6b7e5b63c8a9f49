package tickmath

import (
	"errors"
	"fmt"
	"sync"

	"github.com/defistate/lpsnapshot-go/protocols/uniswapv3/calculator/bitmath"
	"github.com/holiman/uint256"
)

var (
	// MinTick is the minimum tick that may be passed to GetSqrtRatioAtTick.
	MinTick = int64(-887272)
	// MaxTick is the maximum tick that may be passed to GetSqrtRatioAtTick.
	MaxTick = int64(887272)

	// MinSqrtRatio is the value returned by GetSqrtRatioAtTick(MinTick).
	MinSqrtRatio = uint256.NewInt(4295128739)
	// MaxSqrtRatio is the value returned by GetSqrtRatioAtTick(MaxTick).
	MaxSqrtRatio = uint256.MustFromDecimal("1461446703485210103287273052203988822378723970342")

	ErrTickOutOfRange      = errors.New("tick out of range")
	ErrSqrtRatioOutOfRange = errors.New("sqrt ratio out of range")
	ErrInvalidSpacing      = errors.New("tick spacing must be positive")

	one        = uint256.NewInt(1)
	maxUint256 = new(uint256.Int).SetAllOne()
	q32Mask    = uint256.NewInt(0xffffffff)

	// log2 to log_sqrt(1.0001) scale and the two error bounds of the log2 approximation, Q128.
	logSqrt10001Scale = uint256.MustFromDecimal("255738958999603826347141")
	tickLowError      = uint256.MustFromDecimal("3402992956809132418596140100660247210")
	tickHighError     = uint256.MustFromDecimal("291339464771989622907027621153398088495")

	// ratioConstants[i] is 1/sqrt(1.0001^(2^i)) in UQ128.128.
	ratioConstants = [20]*uint256.Int{
		uint256.MustFromHex("0xfffcb933bd6fad37aa2d162d1a594001"),
		uint256.MustFromHex("0xfff97272373d413259a46990580e213a"),
		uint256.MustFromHex("0xfff2e50f5f656932ef12357cf3c7fdcc"),
		uint256.MustFromHex("0xffe5caca7e10e4e61c3624eaa0941cd0"),
		uint256.MustFromHex("0xffcb9843d60f6159c9db58835c926644"),
		uint256.MustFromHex("0xff973b41fa98c081472e6896dfb254c0"),
		uint256.MustFromHex("0xff2ea16466c96a3843ec78b326b52861"),
		uint256.MustFromHex("0xfe5dee046a99a2a811c461f1969c3053"),
		uint256.MustFromHex("0xfcbe86c7900a88aedcffc83b479aa3a4"),
		uint256.MustFromHex("0xf987a7253ac413176f2b074cf7815e54"),
		uint256.MustFromHex("0xf3392b0822b70005940c7a398e4b70f3"),
		uint256.MustFromHex("0xe7159475a2c29b7443b29c7fa6e889d9"),
		uint256.MustFromHex("0xd097f3bdfd2022b8845ad8f792aa5825"),
		uint256.MustFromHex("0xa9f746462d870fdf8a65dc1f90e061e5"),
		uint256.MustFromHex("0x70d869a156d2a1b890bb3df62baf32f7"),
		uint256.MustFromHex("0x31be135f97d08fd981231505542fcfa6"),
		uint256.MustFromHex("0x9aa508b5b7a84e1c677de54f3e99bc9"),
		uint256.MustFromHex("0x5d6af8dedb81196699c329225ee604"),
		uint256.MustFromHex("0x2216e584f5fa1ea926041bedfe98"),
		uint256.MustFromHex("0x48a170391f7dc42444e8fa2"),
	}
	q128 = new(uint256.Int).Lsh(one, 128)
)

// tickMath holds scratch values so hot paths do not allocate.
type tickMath struct {
	ratio *uint256.Int
	rem   *uint256.Int
	r     *uint256.Int
	f     *uint256.Int
	log2  *uint256.Int
	tmp   *uint256.Int
	low   *uint256.Int
	high  *uint256.Int
}

var pool = sync.Pool{
	New: func() any {
		return &tickMath{
			ratio: new(uint256.Int),
			rem:   new(uint256.Int),
			r:     new(uint256.Int),
			f:     new(uint256.Int),
			log2:  new(uint256.Int),
			tmp:   new(uint256.Int),
			low:   new(uint256.Int),
			high:  new(uint256.Int),
		}
	},
}

// GetSqrtRatioAtTick writes sqrt(1.0001^tick) * 2^96 into dest.
func GetSqrtRatioAtTick(dest *uint256.Int, tick int64) error {
	if tick < MinTick || tick > MaxTick {
		return fmt.Errorf("%w: %d", ErrTickOutOfRange, tick)
	}

	tm := pool.Get().(*tickMath)
	defer pool.Put(tm)

	absTick := tick
	if tick < 0 {
		absTick = -tick
	}

	if absTick&0x1 != 0 {
		tm.ratio.Set(ratioConstants[0])
	} else {
		tm.ratio.Set(q128)
	}
	// ratio stays below 2^128 and every constant is below 2^128, so the product never wraps.
	for i := 1; i < len(ratioConstants); i++ {
		if absTick&(1<<i) != 0 {
			tm.ratio.Mul(tm.ratio, ratioConstants[i]).Rsh(tm.ratio, 128)
		}
	}

	if tick > 0 {
		tm.ratio.Div(maxUint256, tm.ratio)
	}

	// Q128.128 -> Q64.96, rounding up so that GetTickAtSqrtRatio of the result is consistent.
	tm.rem.And(tm.ratio, q32Mask)
	dest.Rsh(tm.ratio, 32)
	if !tm.rem.IsZero() {
		dest.Add(dest, one)
	}
	return nil
}

// GetTickAtSqrtRatio returns the greatest tick such that GetSqrtRatioAtTick(tick) <= sqrtRatioX96.
func GetTickAtSqrtRatio(sqrtRatioX96 *uint256.Int) (int64, error) {
	if sqrtRatioX96 == nil || sqrtRatioX96.Lt(MinSqrtRatio) || !sqrtRatioX96.Lt(MaxSqrtRatio) {
		return 0, ErrSqrtRatioOutOfRange
	}

	tm := pool.Get().(*tickMath)
	defer pool.Put(tm)

	ratio := tm.ratio.Lsh(sqrtRatioX96, 32)
	msb, err := bitmath.MostSignificantBit(ratio)
	if err != nil {
		return 0, err
	}

	r := tm.r
	if msb >= 128 {
		r.Rsh(ratio, uint(msb-127))
	} else {
		r.Lsh(ratio, uint(127-msb))
	}

	// log2 is a signed Q64.64 value held in two's complement.
	log2 := tm.log2
	if msb >= 128 {
		log2.SetUint64(uint64(msb - 128))
	} else {
		log2.SetUint64(uint64(128 - msb))
		log2.Neg(log2)
	}
	log2.Lsh(log2, 64)

	for i := 0; i < 14; i++ {
		r.Mul(r, r).Rsh(r, 127)
		f := tm.f.Rsh(r, 128)
		log2.Or(log2, tm.tmp.Lsh(f, uint(63-i)))
		r.Rsh(r, uint(f.Uint64()))
	}

	logSqrt10001 := log2.Mul(log2, logSqrt10001Scale)

	tickLow := int64(tm.low.Sub(logSqrt10001, tickLowError).SRsh(tm.low, 128).Uint64())
	tickHigh := int64(tm.high.Add(logSqrt10001, tickHighError).SRsh(tm.high, 128).Uint64())

	if tickLow == tickHigh {
		return tickLow, nil
	}
	if err := GetSqrtRatioAtTick(tm.tmp, tickHigh); err != nil {
		return tickLow, nil
	}
	if !tm.tmp.Gt(sqrtRatioX96) {
		return tickHigh, nil
	}
	return tickLow, nil
}

// NearestUsableTick returns the multiple of spacing closest to tick. Halves round
// towards positive infinity. A result that falls outside the tick range is moved
// one spacing back inside.
func NearestUsableTick(tick, spacing int64) (int64, error) {
	if spacing <= 0 {
		return 0, fmt.Errorf("%w: %d", ErrInvalidSpacing, spacing)
	}
	if tick < MinTick || tick > MaxTick {
		return 0, fmt.Errorf("%w: %d", ErrTickOutOfRange, tick)
	}

	rounded := floorDiv(2*tick+spacing, 2*spacing) * spacing
	switch {
	case rounded < MinTick:
		return rounded + spacing, nil
	case rounded > MaxTick:
		return rounded - spacing, nil
	default:
		return rounded, nil
	}
}

func floorDiv(a, b int64) int64 {
	q := a / b
	if (a%b != 0) && ((a < 0) != (b < 0)) {
		q--
	}
	return q
}
