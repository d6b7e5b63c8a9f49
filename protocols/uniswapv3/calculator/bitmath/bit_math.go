package bitmath

import (
	"errors"
	"math/bits"

	"github.com/holiman/uint256"
)

var (
	// ErrInputIsZero is returned when a function requires a non-zero input but receives zero.
	ErrInputIsZero = errors.New("input must be greater than zero")
	// ErrInputIsNil is returned when a function receives a nil pointer.
	ErrInputIsNil = errors.New("input cannot be nil")
)

type threshold struct {
	shift uint
	min   *uint256.Int
}

// thresholds are visited largest first; each one that x still reaches halves the remaining search space.
var thresholds = func() [8]threshold {
	var out [8]threshold
	shift := uint(128)
	for i := range out {
		out[i] = threshold{shift: shift, min: new(uint256.Int).Lsh(uint256.NewInt(1), shift)}
		shift >>= 1
	}
	return out
}()

// MostSignificantBit returns the index of the most significant bit of x,
// where the least significant bit is at index 0.
//
// The function satisfies the property: x >= 2**msb(x) and x < 2**(msb(x)+1)
func MostSignificantBit(x *uint256.Int) (uint8, error) {
	if x == nil {
		return 0, ErrInputIsNil
	}
	if x.IsZero() {
		return 0, ErrInputIsZero
	}

	var r uint256.Int
	r.Set(x)

	var msb uint
	for _, th := range thresholds {
		if !r.Lt(th.min) {
			r.Rsh(&r, th.shift)
			msb += th.shift
		}
	}
	return uint8(msb), nil
}

// LeastSignificantBit returns the index of the least significant bit of x.
//
// The function satisfies the property: (x & 2**lsb(x)) != 0
func LeastSignificantBit(x *uint256.Int) (uint8, error) {
	if x == nil {
		return 0, ErrInputIsNil
	}
	if x.IsZero() {
		return 0, ErrInputIsZero
	}

	// uint256.Int stores its limbs little-endian.
	for i, word := range x {
		if word != 0 {
			return uint8(i*64 + bits.TrailingZeros64(word)), nil
		}
	}
	return 0, ErrInputIsZero
}
