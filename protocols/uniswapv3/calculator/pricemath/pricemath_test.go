package pricemath

import (
	"crypto/rand"
	"math/big"
	"testing"

	"github.com/defistate/lpsnapshot-go/protocols/uniswapv3/calculator/fullmath"
	"github.com/defistate/lpsnapshot-go/protocols/uniswapv3/calculator/tickmath"
	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	weth = Token{Address: common.HexToAddress("0x1000000000000000000000000000000000000000"), Decimals: 18}
	usdc = Token{Address: common.HexToAddress("0x2000000000000000000000000000000000000000"), Decimals: 6}
	dai  = Token{Address: common.HexToAddress("0x3000000000000000000000000000000000000000"), Decimals: 18}
)

func exp10(n int64) *big.Int {
	return new(big.Int).Exp(big.NewInt(10), big.NewInt(n), nil)
}

func TestSortsBefore(t *testing.T) {
	assert.True(t, weth.SortsBefore(usdc))
	assert.False(t, usdc.SortsBefore(weth))
	assert.False(t, weth.SortsBefore(weth))
}

func TestTickToPrice(t *testing.T) {
	t.Run("tick zero is parity", func(t *testing.T) {
		price, err := TickToPrice(weth, dai, 0)
		require.NoError(t, err)
		assert.Equal(t, exp10(18), price)

		inverted, err := TickToPrice(dai, weth, 0)
		require.NoError(t, err)
		assert.Equal(t, exp10(18), inverted)
	})

	t.Run("positive tick raises the token0 price", func(t *testing.T) {
		up, err := TickToPrice(weth, dai, 60)
		require.NoError(t, err)
		down, err := TickToPrice(dai, weth, 60)
		require.NoError(t, err)
		assert.Equal(t, 1, up.Cmp(exp10(18)))
		assert.Equal(t, -1, down.Cmp(exp10(18)))
	})

	t.Run("out of range tick", func(t *testing.T) {
		_, err := TickToPrice(weth, dai, tickmath.MaxTick+1)
		assert.ErrorIs(t, err, tickmath.ErrTickOutOfRange)
	})

	t.Run("same token", func(t *testing.T) {
		_, err := TickToPrice(weth, weth, 0)
		assert.ErrorIs(t, err, ErrSameToken)
	})
}

func TestPriceToClosestTick(t *testing.T) {
	t.Run("brackets the price", func(t *testing.T) {
		price := new(big.Int).Mul(big.NewInt(2000), exp10(6))
		got, err := PriceToClosestTick(weth, usdc, price, 1)
		require.NoError(t, err)

		at, err := TickToPrice(weth, usdc, got.Tick)
		require.NoError(t, err)
		next, err := TickToPrice(weth, usdc, got.Tick+1)
		require.NoError(t, err)

		assert.True(t, at.Cmp(price) <= 0)
		assert.True(t, next.Cmp(price) > 0)
		assert.Equal(t, at, got.Price)
		assert.InDelta(t, -200312, got.Tick, 1)
	})

	t.Run("zero price maps to the lowest usable tick", func(t *testing.T) {
		got, err := PriceToClosestTick(weth, usdc, new(big.Int), 60)
		require.NoError(t, err)
		assert.Equal(t, int64(-887220), got.Tick)
		assert.True(t, got.SqrtRatioX96.Eq(tickmath.MinSqrtRatio))
		assert.Equal(t, fullmath.MaxUint256.ToBig(), got.PriceInverted)
	})

	t.Run("max price maps to the highest usable tick", func(t *testing.T) {
		got, err := PriceToClosestTick(weth, usdc, fullmath.MaxUint256.ToBig(), 60)
		require.NoError(t, err)
		assert.Equal(t, int64(887220), got.Tick)
		assert.Zero(t, got.PriceInverted.Sign())
	})

	t.Run("negative price", func(t *testing.T) {
		_, err := PriceToClosestTick(weth, usdc, big.NewInt(-1), 60)
		assert.ErrorIs(t, err, ErrPriceInvalid)
	})

	t.Run("brackets the price when base sorts after quote", func(t *testing.T) {
		// 1 usdc in wei at 2000 usdc per weth
		price := new(big.Int).Mul(big.NewInt(5), exp10(14))
		got, err := PriceToClosestTick(usdc, weth, price, 1)
		require.NoError(t, err)

		at, err := TickToPrice(usdc, weth, got.Tick)
		require.NoError(t, err)
		next, err := TickToPrice(usdc, weth, got.Tick+1)
		require.NoError(t, err)

		assert.True(t, at.Cmp(price) >= 0)
		assert.True(t, next.Cmp(price) < 0)
		assert.Equal(t, at, got.Price)
	})

	t.Run("round trips inverted tick prices", func(t *testing.T) {
		for i := 0; i < 200; i++ {
			offset, err := rand.Int(rand.Reader, big.NewInt(400001))
			require.NoError(t, err)
			tick := offset.Int64() - 200000

			price, err := TickToPrice(dai, weth, tick)
			require.NoError(t, err)
			got, err := PriceToClosestTick(dai, weth, price, 1)
			require.NoError(t, err)
			assert.Equal(t, tick, got.Tick)
		}
	})

	t.Run("round trips tick prices", func(t *testing.T) {
		for i := 0; i < 200; i++ {
			offset, err := rand.Int(rand.Reader, big.NewInt(400001))
			require.NoError(t, err)
			tick := offset.Int64() - 200000

			price, err := TickToPrice(weth, dai, tick)
			require.NoError(t, err)
			got, err := PriceToClosestTick(weth, dai, price, 1)
			require.NoError(t, err)
			assert.Equal(t, tick, got.Tick)
		}
	})
}

func TestPriceToClosestUsableTick(t *testing.T) {
	price, err := TickToPrice(weth, dai, 100)
	require.NoError(t, err)

	got, err := PriceToClosestUsableTick(weth, dai, price, 60)
	require.NoError(t, err)
	assert.Equal(t, int64(120), got.Tick)

	expected := new(uint256.Int)
	require.NoError(t, tickmath.GetSqrtRatioAtTick(expected, 120))
	assert.True(t, got.SqrtRatioX96.Eq(expected))

	inverted, err := TickToPrice(dai, weth, 120)
	require.NoError(t, err)
	assert.Equal(t, inverted, got.PriceInverted)
}

func TestPriceToSqrtRatioX96(t *testing.T) {
	t.Run("parity is 2^96", func(t *testing.T) {
		sqrt, err := PriceToSqrtRatioX96(weth, dai, exp10(18))
		require.NoError(t, err)
		assert.True(t, sqrt.Eq(fullmath.Q96))

		sqrt, err = PriceToSqrtRatioX96(dai, weth, exp10(18))
		require.NoError(t, err)
		assert.True(t, sqrt.Eq(fullmath.Q96))
	})

	t.Run("rejects non positive prices", func(t *testing.T) {
		_, err := PriceToSqrtRatioX96(weth, dai, new(big.Int))
		assert.ErrorIs(t, err, ErrPriceInvalid)
	})
}

func TestAtTick(t *testing.T) {
	at, err := AtTick(weth, dai, 0)
	require.NoError(t, err)
	assert.Equal(t, int64(0), at.Tick)
	assert.True(t, at.SqrtRatioX96.Eq(fullmath.Q96))
	assert.Equal(t, exp10(18), at.Price)
	assert.Equal(t, exp10(18), at.PriceInverted)

	at, err = AtTick(weth, dai, 600)
	require.NoError(t, err)
	price, err := TickToPrice(weth, dai, 600)
	require.NoError(t, err)
	inverted, err := TickToPrice(dai, weth, 600)
	require.NoError(t, err)
	assert.Equal(t, price, at.Price)
	assert.Equal(t, inverted, at.PriceInverted)
}
