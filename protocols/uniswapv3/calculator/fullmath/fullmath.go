package fullmath

import (
	"errors"

	"github.com/holiman/uint256"
)

var (
	// ErrDivisionByZero is returned when a divisor is zero. It is never silently mapped to a zero result.
	ErrDivisionByZero = errors.New("division by zero")
	// ErrOverflow is returned when a result does not fit the width it is stored in.
	ErrOverflow = errors.New("arithmetic overflow")

	// Q96 is the UQ64.96 fixed-point number representing 1.
	Q96 = new(uint256.Int).Lsh(uint256.NewInt(1), 96)
	// Q128 is the UQ128.128 fixed-point number representing 1.
	Q128 = new(uint256.Int).Lsh(uint256.NewInt(1), 128)

	MaxUint128 = new(uint256.Int).Sub(Q128, uint256.NewInt(1))
	MaxUint160 = new(uint256.Int).Sub(new(uint256.Int).Lsh(uint256.NewInt(1), 160), uint256.NewInt(1))
	MaxUint256 = new(uint256.Int).SetAllOne()

	one = uint256.NewInt(1)
)

// MulDiv writes floor(a*b/d) into dest. The product is kept at 512 bits, so only
// the quotient has to fit 256 bits.
func MulDiv(dest, a, b, d *uint256.Int) error {
	if d.IsZero() {
		return ErrDivisionByZero
	}
	if _, overflow := dest.MulDivOverflow(a, b, d); overflow {
		return ErrOverflow
	}
	return nil
}

// MulDivRoundingUp writes ceil(a*b/d) into dest.
func MulDivRoundingUp(dest, a, b, d *uint256.Int) error {
	if d.IsZero() {
		return ErrDivisionByZero
	}
	// the remainder has to be taken before dest is written, dest may alias an operand.
	var rem uint256.Int
	rem.MulMod(a, b, d)

	if _, overflow := dest.MulDivOverflow(a, b, d); overflow {
		return ErrOverflow
	}
	if !rem.IsZero() {
		if _, overflow := dest.AddOverflow(dest, one); overflow {
			return ErrOverflow
		}
	}
	return nil
}

// Div writes floor(a/d) into dest.
func Div(dest, a, d *uint256.Int) error {
	if d.IsZero() {
		return ErrDivisionByZero
	}
	dest.Div(a, d)
	return nil
}

// DivRoundingUp writes ceil(a/d) into dest.
func DivRoundingUp(dest, a, d *uint256.Int) error {
	if d.IsZero() {
		return ErrDivisionByZero
	}
	var rem uint256.Int
	rem.Mod(a, d)

	dest.Div(a, d)
	if !rem.IsZero() {
		// a/d < 2^256 - 1 whenever the remainder is non-zero, so this cannot wrap.
		dest.Add(dest, one)
	}
	return nil
}

// WrappingMul writes a*b mod 2^256 into dest and returns it.
func WrappingMul(dest, a, b *uint256.Int) *uint256.Int {
	return dest.Mul(a, b)
}

// WrappingAdd writes a+b mod 2^256 into dest and returns it.
func WrappingAdd(dest, a, b *uint256.Int) *uint256.Int {
	return dest.Add(a, b)
}

// WrappingSub writes a-b mod 2^256 into dest and returns it.
// Fee growth counters rely on this: a counter that wrapped past 2^256 still
// yields the correct growth since the last checkpoint.
func WrappingSub(dest, a, b *uint256.Int) *uint256.Int {
	return dest.Sub(a, b)
}
