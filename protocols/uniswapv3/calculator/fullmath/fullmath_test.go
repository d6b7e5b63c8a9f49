package fullmath

import (
	"crypto/rand"
	"math/big"
	"testing"

	"github.com/holiman/uint256"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newRandInt(bits int) *uint256.Int {
	max := new(big.Int).Lsh(big.NewInt(1), uint(bits))
	n, err := rand.Int(rand.Reader, max)
	if err != nil {
		panic(err)
	}
	return uint256.MustFromBig(n)
}

func TestMulDiv(t *testing.T) {
	t.Run("reverts if denominator is zero", func(t *testing.T) {
		err := MulDiv(new(uint256.Int), Q128, uint256.NewInt(5), new(uint256.Int))
		assert.ErrorIs(t, err, ErrDivisionByZero)
	})

	t.Run("reverts on overflow", func(t *testing.T) {
		err := MulDiv(new(uint256.Int), Q128, Q128, uint256.NewInt(1))
		assert.ErrorIs(t, err, ErrOverflow)
	})

	t.Run("all max inputs", func(t *testing.T) {
		dest := new(uint256.Int)
		require.NoError(t, MulDiv(dest, MaxUint256, MaxUint256, MaxUint256))
		assert.True(t, dest.Eq(MaxUint256))
	})

	t.Run("accurate without phantom overflow", func(t *testing.T) {
		// Q128 * (50 * Q128 / 100) / (150 * Q128 / 100) == Q128 / 3
		b := new(uint256.Int).Div(new(uint256.Int).Mul(uint256.NewInt(50), Q128), uint256.NewInt(100))
		d := new(uint256.Int).Div(new(uint256.Int).Mul(uint256.NewInt(150), Q128), uint256.NewInt(100))
		dest := new(uint256.Int)
		require.NoError(t, MulDiv(dest, Q128, b, d))
		assert.True(t, dest.Eq(new(uint256.Int).Div(Q128, uint256.NewInt(3))))
	})

	t.Run("dest may alias an operand", func(t *testing.T) {
		a := uint256.NewInt(10)
		require.NoError(t, MulDiv(a, a, uint256.NewInt(3), uint256.NewInt(4)))
		assert.Equal(t, uint64(7), a.Uint64())
	})
}

func TestMulDivRoundingUp(t *testing.T) {
	t.Run("reverts if denominator is zero", func(t *testing.T) {
		err := MulDivRoundingUp(new(uint256.Int), Q128, uint256.NewInt(5), new(uint256.Int))
		assert.ErrorIs(t, err, ErrDivisionByZero)
	})

	t.Run("reverts if mulDiv overflows 256 bits after rounding up", func(t *testing.T) {
		a := uint256.MustFromDecimal("535006138814359")
		b := uint256.MustFromDecimal("432862656469423142931042426214547535783388063929571229938474969")
		err := MulDivRoundingUp(new(uint256.Int), a, b, uint256.NewInt(2))
		assert.ErrorIs(t, err, ErrOverflow)
	})

	t.Run("rounds up on remainder", func(t *testing.T) {
		dest := new(uint256.Int)
		require.NoError(t, MulDivRoundingUp(dest, uint256.NewInt(10), uint256.NewInt(3), uint256.NewInt(4)))
		assert.Equal(t, uint64(8), dest.Uint64())
	})

	t.Run("exact division is not rounded", func(t *testing.T) {
		dest := new(uint256.Int)
		require.NoError(t, MulDivRoundingUp(dest, uint256.NewInt(10), uint256.NewInt(4), uint256.NewInt(5)))
		assert.Equal(t, uint64(8), dest.Uint64())
	})
}

func TestMulDiv_Invariants(t *testing.T) {
	for i := 0; i < 1000; i++ {
		a := newRandInt(256)
		b := newRandInt(256)
		d := newRandInt(256)
		if d.IsZero() {
			d.SetOne()
		}

		down := new(uint256.Int)
		errDown := MulDiv(down, a, b, d)
		up := new(uint256.Int)
		errUp := MulDivRoundingUp(up, a, b, d)
		if errDown != nil {
			assert.ErrorIs(t, errUp, ErrOverflow)
			continue
		}
		if errUp != nil {
			continue
		}

		expected := new(big.Int).Mul(a.ToBig(), b.ToBig())
		expected.Div(expected, d.ToBig())
		assert.Equal(t, 0, expected.Cmp(down.ToBig()))

		diff := new(uint256.Int).Sub(up, down)
		assert.True(t, diff.Lt(uint256.NewInt(2)))
	}
}

func TestDivRoundingUp(t *testing.T) {
	dest := new(uint256.Int)
	assert.ErrorIs(t, DivRoundingUp(dest, uint256.NewInt(1), new(uint256.Int)), ErrDivisionByZero)
	assert.ErrorIs(t, Div(dest, uint256.NewInt(1), new(uint256.Int)), ErrDivisionByZero)

	require.NoError(t, DivRoundingUp(dest, uint256.NewInt(7), uint256.NewInt(2)))
	assert.Equal(t, uint64(4), dest.Uint64())
	require.NoError(t, Div(dest, uint256.NewInt(7), uint256.NewInt(2)))
	assert.Equal(t, uint64(3), dest.Uint64())

	require.NoError(t, DivRoundingUp(dest, MaxUint256, MaxUint256))
	assert.Equal(t, uint64(1), dest.Uint64())
}

func TestWrapping(t *testing.T) {
	dest := new(uint256.Int)
	WrappingSub(dest, uint256.NewInt(1), uint256.NewInt(2))
	assert.True(t, dest.Eq(MaxUint256))

	WrappingAdd(dest, MaxUint256, uint256.NewInt(2))
	assert.Equal(t, uint64(1), dest.Uint64())

	WrappingMul(dest, Q128, Q128)
	assert.True(t, dest.IsZero())
}
