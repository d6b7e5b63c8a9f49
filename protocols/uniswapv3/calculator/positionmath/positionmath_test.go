package positionmath

import (
	"crypto/rand"
	"math/big"
	"testing"

	"github.com/defistate/lpsnapshot-go/protocols/uniswapv3/calculator/fullmath"
	"github.com/defistate/lpsnapshot-go/protocols/uniswapv3/calculator/tickmath"
	"github.com/holiman/uint256"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func randomBelow(t *testing.T, n int64) int64 {
	v, err := rand.Int(rand.Reader, big.NewInt(n))
	require.NoError(t, err)
	return v.Int64()
}

func TestDecompose(t *testing.T) {
	liquidity := uint256.NewInt(1_000_000)

	t.Run("straddling range holds both tokens", func(t *testing.T) {
		amount0, amount1, err := Decompose(-60, 60, liquidity, 0, false)
		require.NoError(t, err)
		assert.False(t, amount0.IsZero())
		assert.False(t, amount1.IsZero())
		// symmetric range around tick zero
		assert.InDelta(t, amount0.Uint64(), amount1.Uint64(), 1)
	})

	t.Run("range above the current tick with activeOnly is empty", func(t *testing.T) {
		amount0, amount1, err := Decompose(120, 180, liquidity, 0, true)
		require.NoError(t, err)
		assert.True(t, amount0.IsZero())
		assert.True(t, amount1.IsZero())
	})

	t.Run("range above the current tick is all token0", func(t *testing.T) {
		amount0, amount1, err := Decompose(120, 180, liquidity, 0, false)
		require.NoError(t, err)
		assert.False(t, amount0.IsZero())
		assert.True(t, amount1.IsZero())
	})

	t.Run("range below the current tick is all token1", func(t *testing.T) {
		amount0, amount1, err := Decompose(-180, -120, liquidity, 0, false)
		require.NoError(t, err)
		assert.True(t, amount0.IsZero())
		assert.False(t, amount1.IsZero())

		amount0, amount1, err = Decompose(-180, -120, liquidity, 0, true)
		require.NoError(t, err)
		assert.True(t, amount0.IsZero())
		assert.True(t, amount1.IsZero())
	})

	t.Run("range edges count as active", func(t *testing.T) {
		amount0, amount1, err := Decompose(0, 60, liquidity, 0, true)
		require.NoError(t, err)
		assert.False(t, amount0.IsZero())
		assert.True(t, amount1.IsZero())

		amount0, amount1, err = Decompose(-60, 0, liquidity, 0, true)
		require.NoError(t, err)
		assert.True(t, amount0.IsZero())
		assert.False(t, amount1.IsZero())
	})

	t.Run("zero liquidity is worth nothing", func(t *testing.T) {
		amount0, amount1, err := Decompose(-60, 60, new(uint256.Int), 0, false)
		require.NoError(t, err)
		assert.True(t, amount0.IsZero())
		assert.True(t, amount1.IsZero())
	})

	t.Run("invalid input", func(t *testing.T) {
		testCases := []struct {
			name      string
			lower     int64
			upper     int64
			liquidity *uint256.Int
			current   int64
			err       error
		}{
			{"empty range", 60, 60, liquidity, 0, ErrInvalidRange},
			{"inverted range", 60, -60, liquidity, 0, ErrInvalidRange},
			{"lower below min tick", tickmath.MinTick - 1, 0, liquidity, 0, tickmath.ErrTickOutOfRange},
			{"upper above max tick", 0, tickmath.MaxTick + 1, liquidity, 0, tickmath.ErrTickOutOfRange},
			{"liquidity above uint128", -60, 60, new(uint256.Int).Add(fullmath.MaxUint128, uint256.NewInt(1)), 0, ErrLiquidityTooLarge},
			{"nil liquidity", -60, 60, nil, 0, ErrLiquidityNil},
			{"current tick out of range", -60, 60, liquidity, tickmath.MaxTick + 1, tickmath.ErrTickOutOfRange},
		}
		for _, tc := range testCases {
			t.Run(tc.name, func(t *testing.T) {
				_, _, err := Decompose(tc.lower, tc.upper, tc.liquidity, tc.current, false)
				assert.ErrorIs(t, err, tc.err)
			})
		}
	})
}

func TestDecompose_Invariants(t *testing.T) {
	for i := 0; i < 500; i++ {
		lower := tickmath.MinTick + randomBelow(t, tickmath.MaxTick-tickmath.MinTick)
		upper := lower + 1 + randomBelow(t, tickmath.MaxTick-lower)
		current := tickmath.MinTick + randomBelow(t, tickmath.MaxTick-tickmath.MinTick+1)
		n, err := rand.Int(rand.Reader, new(big.Int).Lsh(big.NewInt(1), 128))
		require.NoError(t, err)
		liquidity := uint256.MustFromBig(n)

		active0, active1, err := Decompose(lower, upper, liquidity, current, true)
		require.NoError(t, err)
		all0, all1, err := Decompose(lower, upper, liquidity, current, false)
		require.NoError(t, err)

		if IsActive(lower, upper, current) {
			assert.True(t, active0.Eq(all0))
			assert.True(t, active1.Eq(all1))
			continue
		}
		assert.True(t, active0.IsZero() && active1.IsZero(), "range [%d, %d] at %d", lower, upper, current)
		assert.True(t, all0.IsZero() || all1.IsZero(), "an out of range position holds a single token")
	}
}

func TestIsActive(t *testing.T) {
	assert.True(t, IsActive(-60, 60, 0))
	assert.True(t, IsActive(-60, 60, 60))
	assert.True(t, IsActive(-60, 60, -60))
	assert.False(t, IsActive(-60, 60, 61))
	assert.False(t, IsActive(-60, 60, -61))
}
