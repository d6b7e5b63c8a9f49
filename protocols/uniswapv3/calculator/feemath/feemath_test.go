package feemath

import (
	"testing"

	"github.com/defistate/lpsnapshot-go/protocols/uniswapv3"
	"github.com/defistate/lpsnapshot-go/protocols/uniswapv3/calculator/fullmath"
	"github.com/defistate/lpsnapshot-go/protocols/uniswapv3/calculator/positionmath"
	"github.com/holiman/uint256"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func checkpoint(index int64, outer0, outer1 uint64) uniswapv3.TickCheckpoint {
	return uniswapv3.TickCheckpoint{
		Index:           index,
		OuterFeeGrowth0: uint256.NewInt(outer0),
		OuterFeeGrowth1: uint256.NewInt(outer1),
	}
}

// q128 returns v * 2^128, i.e. v fee tokens per unit of liquidity.
func q128(v uint64) *uint256.Int {
	return new(uint256.Int).Mul(uint256.NewInt(v), fullmath.Q128)
}

func TestFeeGrowthInside(t *testing.T) {
	lower := checkpoint(-60, 100, 1000)
	upper := checkpoint(60, 30, 300)
	global0 := uint256.NewInt(500)
	global1 := uint256.NewInt(5000)

	t.Run("current tick inside the range", func(t *testing.T) {
		inside0, inside1, err := FeeGrowthInside(0, lower, upper, global0, global1)
		require.NoError(t, err)
		assert.Equal(t, uint64(400), inside0.Uint64())
		assert.Equal(t, uint64(4000), inside1.Uint64())
	})

	t.Run("current tick on the lower boundary is inside", func(t *testing.T) {
		inside0, _, err := FeeGrowthInside(-60, lower, upper, global0, global1)
		require.NoError(t, err)
		assert.Equal(t, uint64(400), inside0.Uint64())
	})

	t.Run("current tick below the range uses the lower checkpoint directly", func(t *testing.T) {
		inside0, inside1, err := FeeGrowthInside(-61, lower, upper, global0, global1)
		require.NoError(t, err)
		assert.Equal(t, uint64(100), inside0.Uint64())
		assert.Equal(t, uint64(1000), inside1.Uint64())
	})

	t.Run("current tick at or above the upper tick", func(t *testing.T) {
		for _, current := range []int64{60, 1000} {
			inside0, inside1, err := FeeGrowthInside(current, checkpoint(-60, 100, 1000), checkpoint(60, 350, 1300), global0, global1)
			require.NoError(t, err)
			assert.Equal(t, uint64(250), inside0.Uint64())
			assert.Equal(t, uint64(300), inside1.Uint64())
		}
	})

	t.Run("subtraction wraps", func(t *testing.T) {
		inside0, _, err := FeeGrowthInside(0, checkpoint(-60, 2, 0), upper, uint256.NewInt(1), uint256.NewInt(0))
		require.NoError(t, err)
		assert.True(t, inside0.Eq(fullmath.MaxUint256))
	})

	t.Run("invalid range", func(t *testing.T) {
		_, _, err := FeeGrowthInside(0, upper, lower, global0, global1)
		assert.ErrorIs(t, err, positionmath.ErrInvalidRange)
	})

	t.Run("missing values", func(t *testing.T) {
		_, _, err := FeeGrowthInside(0, uniswapv3.TickCheckpoint{Index: -60}, upper, global0, global1)
		assert.ErrorIs(t, err, ErrMissingFeeGrowth)
	})
}

func TestPendingFees(t *testing.T) {
	snapshot := uniswapv3.PositionFeeSnapshot{
		Liquidity:        uint256.NewInt(1000),
		InnerFeeGrowth0:  q128(2),
		InnerFeeGrowth1:  q128(3),
		UncollectedFees0: uint256.NewInt(7),
		UncollectedFees1: uint256.NewInt(0),
	}

	t.Run("growth since the last checkpoint times liquidity plus uncollected", func(t *testing.T) {
		fees0, fees1, err := PendingFees(q128(5), q128(4), snapshot)
		require.NoError(t, err)
		assert.Equal(t, uint64(3*1000+7), fees0.Uint64())
		assert.Equal(t, uint64(1000), fees1.Uint64())
	})

	t.Run("no growth leaves only uncollected fees", func(t *testing.T) {
		fees0, fees1, err := PendingFees(q128(2), q128(3), snapshot)
		require.NoError(t, err)
		assert.Equal(t, uint64(7), fees0.Uint64())
		assert.True(t, fees1.IsZero())
	})

	t.Run("growth across the 2^256 wrap", func(t *testing.T) {
		wrapped := uniswapv3.PositionFeeSnapshot{
			Liquidity:        uint256.NewInt(1),
			InnerFeeGrowth0:  new(uint256.Int).Sub(fullmath.MaxUint256, new(uint256.Int).Sub(fullmath.Q128, uint256.NewInt(1))),
			InnerFeeGrowth1:  new(uint256.Int),
			UncollectedFees0: new(uint256.Int),
			UncollectedFees1: new(uint256.Int),
		}
		// last = 2^256 - 2^128, now = 2^128, so growth is 2 * 2^128.
		fees0, _, err := PendingFees(fullmath.Q128, new(uint256.Int), wrapped)
		require.NoError(t, err)
		assert.Equal(t, uint64(2), fees0.Uint64())
	})

	t.Run("rounds down", func(t *testing.T) {
		fees0, _, err := PendingFees(new(uint256.Int).Add(q128(2), uint256.NewInt(1)), q128(3), snapshot)
		require.NoError(t, err)
		assert.Equal(t, uint64(7), fees0.Uint64())
	})

	t.Run("missing values", func(t *testing.T) {
		_, _, err := PendingFees(q128(1), q128(1), uniswapv3.PositionFeeSnapshot{})
		assert.ErrorIs(t, err, ErrMissingFeeGrowth)
	})
}

func TestPendingFees_MonotonicInGlobalGrowth(t *testing.T) {
	lower := checkpoint(-60, 100, 100)
	upper := checkpoint(60, 50, 50)
	snapshot := uniswapv3.PositionFeeSnapshot{
		Liquidity:        uint256.NewInt(1_000_000),
		InnerFeeGrowth0:  uint256.NewInt(0),
		InnerFeeGrowth1:  uint256.NewInt(0),
		UncollectedFees0: uint256.NewInt(0),
		UncollectedFees1: uint256.NewInt(0),
	}

	prev0 := new(uint256.Int)
	prev1 := new(uint256.Int)
	global := q128(1)
	for step := 0; step < 50; step++ {
		global = new(uint256.Int).Add(global, q128(uint64(step)))

		inside0, inside1, err := FeeGrowthInside(0, lower, upper, global, global)
		require.NoError(t, err)
		fees0, fees1, err := PendingFees(inside0, inside1, snapshot)
		require.NoError(t, err)

		assert.False(t, fees0.Lt(prev0), "step %d", step)
		assert.False(t, fees1.Lt(prev1), "step %d", step)
		prev0, prev1 = fees0, fees1
	}
}
